package telemetry

import (
	"context"

	"github.com/rs/zerolog"
)

// ZerologLogger is a Logger backed by github.com/rs/zerolog, the structured
// logging library used across the pack's service binaries.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger builds a Logger that writes structured events through the
// supplied zerolog.Logger.
func NewZerologLogger(log zerolog.Logger) Logger {
	return ZerologLogger{log: log}
}

func (l ZerologLogger) Debug(_ context.Context, msg string, keyvals ...any) {
	l.event(l.log.Debug(), msg, keyvals)
}

func (l ZerologLogger) Info(_ context.Context, msg string, keyvals ...any) {
	l.event(l.log.Info(), msg, keyvals)
}

func (l ZerologLogger) Warn(_ context.Context, msg string, keyvals ...any) {
	l.event(l.log.Warn(), msg, keyvals)
}

func (l ZerologLogger) Error(_ context.Context, msg string, keyvals ...any) {
	l.event(l.log.Error(), msg, keyvals)
}

// event applies keyvals (k1, v1, k2, v2, ...) to a zerolog event and emits msg.
// An odd-length slice drops its trailing, unpaired key.
func (l ZerologLogger) event(ev *zerolog.Event, msg string, keyvals []any) {
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, keyvals[i+1])
	}
	ev.Msg(msg)
}
