// Package bus implements the manager's named, synchronous event bus (spec
// §4.1). Dispatch happens on the emitting goroutine: Emit does not return
// until every matching handler has run. Handlers must not emit re-entrantly
// on the same event name without their own guard, since nothing here breaks
// that cycle.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/telemetry"
)

// Closed event set (spec §4.1). Subscribers should match against these
// constants rather than ad-hoc strings.
const (
	EventAgentRegistered    = "agent:registered"
	EventAgentUnregistered  = "agent:unregistered"
	EventAgentStateChanged  = "agent:state-changed"
	EventTaskStarted        = "task:started"
	EventTaskCompleted      = "task:completed"
	EventSkillRegistered    = "skill:registered"
	EventSkillRemoved       = "skill:removed"
	EventWorkspaceMonitor   = "workspace:monitoring"
	EventWorkspaceStopped   = "workspace:stopped"
	EventWorkspaceFileChg   = "workspace:file-changed"
	EventWorkspaceSession   = "workspace:session-updated"
	EventWorkspaceGit       = "workspace:git-event"
	EventWorkspaceRemote    = "workspace:remote-update"
	EventCrossRepoDispatch  = "crossrepo:dispatched"
	EventCrossRepoCompleted = "crossrepo:completed"
	EventMessageReceived    = "message:received"
	EventServerStarted      = "server:started"
)

// Event is the payload delivered to handlers. Payload carries event-specific
// fields as a JSON-like map so the automation engine can evaluate dot-path
// lookups and filters against it without a name-specific schema.
type Event struct {
	Name    string
	Payload map[string]any
}

// Handler receives an emitted event. A Handler must not block indefinitely:
// Emit is synchronous and the emitting goroutine waits for every handler.
type Handler func(ctx context.Context, evt Event)

// Bus is a named pub/sub dispatcher. The zero value is not usable; use New.
type Bus struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	any      []Handler
	tel      telemetry.Bundle
}

// New constructs an empty Bus. A nil Bundle falls back to no-op telemetry.
func New(tel telemetry.Bundle) *Bus {
	if tel.Logger == nil {
		tel = telemetry.NewNoop()
	}
	return &Bus{handlers: make(map[string][]Handler), tel: tel}
}

// On registers handler for the exact event name. Registration order is
// preserved and determines dispatch order within that name.
func (b *Bus) On(name string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], handler)
}

// OnAny registers handler for every event emitted on the bus, regardless of
// name. The automation engine uses this to see the full event stream and do
// its own rule matching (including prefix:* wildcards spec §4.9 names).
func (b *Bus) OnAny(handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.any = append(b.any, handler)
}

// Emit dispatches name-specific handlers first, then OnAny handlers, in
// registration order, synchronously on the calling goroutine. A handler that
// panics is recovered and logged; sibling handlers still run.
func (b *Bus) Emit(ctx context.Context, name string, payload map[string]any) {
	b.mu.Lock()
	named := append([]Handler(nil), b.handlers[name]...)
	any := append([]Handler(nil), b.any...)
	b.mu.Unlock()

	evt := Event{Name: name, Payload: payload}
	for _, h := range named {
		b.invoke(ctx, h, evt)
	}
	for _, h := range any {
		b.invoke(ctx, h, evt)
	}
}

func (b *Bus) invoke(ctx context.Context, h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.tel.Logger.Error(ctx, "event handler panicked",
				"event", evt.Name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	h(ctx, evt)
}
