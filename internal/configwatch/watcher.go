// Package configwatch implements the per-file Config Watcher (spec §4.3): a
// filesystem watcher over a single catalog file that debounces bursts,
// suppresses reloads triggered by the process's own writes, and never lets a
// failing onReload callback disarm the watcher.
package configwatch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/telemetry"
)

const (
	// DefaultDebounce coalesces bursts of filesystem events into one reload.
	DefaultDebounce = 400 * time.Millisecond
	// DefaultSelfWriteWindow is how long MarkSelfWrite suppresses reloads for.
	DefaultSelfWriteWindow = 1 * time.Second
)

// Watcher watches a single file for external modification and invokes
// onReload, debounced, unless the change was just announced via
// MarkSelfWrite.
type Watcher struct {
	path            string
	debounce        time.Duration
	selfWriteWindow time.Duration
	onReload        func()
	tel             telemetry.Bundle

	fsw *fsnotify.Watcher

	mu             sync.Mutex
	selfWriteUntil time.Time
	debounceTimer  *time.Timer

	closeOnce sync.Once
	done      chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithSelfWriteWindow overrides DefaultSelfWriteWindow.
func WithSelfWriteWindow(d time.Duration) Option {
	return func(w *Watcher) { w.selfWriteWindow = d }
}

// WithTelemetry attaches a logging/metrics/tracing bundle.
func WithTelemetry(tel telemetry.Bundle) Option {
	return func(w *Watcher) { w.tel = tel }
}

// New starts watching the directory containing path and filters events down
// to path itself. onReload is invoked (debounced) whenever path changes on
// disk for a reason other than a recent MarkSelfWrite.
func New(path string, onReload func(), opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(abs)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:            abs,
		debounce:        DefaultDebounce,
		selfWriteWindow: DefaultSelfWriteWindow,
		onReload:        onReload,
		tel:             telemetry.NewNoop(),
		fsw:             fsw,
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	go w.loop()
	return w, nil
}

// MarkSelfWrite suppresses every reload that fires within the self-write
// window starting now. Callers invoke this immediately before persisting a file they own,
// so the watcher doesn't treat its own write as an external edit.
func (w *Watcher) MarkSelfWrite() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selfWriteUntil = time.Now().Add(w.selfWriteWindow)
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.tel.Logger.Warn(context.Background(), "config watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, w.fireReload)
}

func (w *Watcher) fireReload() {
	w.mu.Lock()
	suppressed := time.Now().Before(w.selfWriteUntil)
	w.mu.Unlock()

	if suppressed {
		return
	}
	w.safeReload()
}

// safeReload invokes onReload, recovering from panics so a broken reload
// callback never disarms the watcher for future external edits.
func (w *Watcher) safeReload() {
	defer func() {
		if r := recover(); r != nil {
			w.tel.Logger.Error(context.Background(), "onReload panicked", "path", w.path, "panic", r)
		}
	}()
	if w.onReload != nil {
		w.onReload()
	}
}
