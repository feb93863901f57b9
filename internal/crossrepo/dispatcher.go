package crossrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/bus"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/persistence"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/provider"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/telemetry"
)

// ErrQueueFull is returned when the dispatcher is already at its
// concurrency cap (spec §4.10 admission).
var ErrQueueFull = errors.New("crossrepo: queue full")

// minPartialChars mirrors provider/subprocess's one-shot partial-success
// threshold (spec §4.6, reused verbatim by §4.10's "partial-content-on-
// timeout policy matches §4.6").
const minPartialChars = 20

// Dispatcher launches subprocess agents against target working
// directories, bounded by a global concurrency cap (spec §4.10).
type Dispatcher struct {
	mu       sync.Mutex
	cap      int
	active   int
	live     map[string]context.CancelFunc

	ring *ring

	registry  *registry.Manager
	providers *provider.Registry
	bus       *bus.Bus
	log       *persistence.AppendLog
	tel       telemetry.Bundle
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithCap(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.cap = n
		}
	}
}

func WithAppendLog(log *persistence.AppendLog) Option {
	return func(d *Dispatcher) { d.log = log }
}

func WithBus(b *bus.Bus) Option {
	return func(d *Dispatcher) { d.bus = b }
}

func WithTelemetry(tel telemetry.Bundle) Option {
	return func(d *Dispatcher) { d.tel = tel }
}

// New constructs a Dispatcher over reg/providers. Default cap is 5, default
// ring size 100.
func New(reg *registry.Manager, providers *provider.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cap:       5,
		live:      make(map[string]context.CancelFunc),
		ring:      newRing(100),
		registry:  reg,
		providers: providers,
		tel:       telemetry.NewNoop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Results returns the bounded completed-dispatch ring, most recent first.
func (d *Dispatcher) Results() []Entry { return d.ring.all() }

// Cancel requests cooperative cancellation of a live dispatch by id.
func (d *Dispatcher) Cancel(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	cancel, ok := d.live[id]
	if !ok {
		return false
	}
	cancel()
	return true
}

// Dispatch admits and runs req, preferring a registered agent matching
// req.Provider and falling back to a direct subprocess spawn (spec §4.10).
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Entry, error) {
	d.mu.Lock()
	if d.active >= d.cap {
		d.mu.Unlock()
		return Entry{}, ErrQueueFull
	}
	d.active++
	d.mu.Unlock()

	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.live[id] = cancel
	d.mu.Unlock()

	started := time.Now().UTC()
	d.emit(runCtx, bus.EventCrossRepoDispatch, map[string]any{
		"id": id, "workingDir": req.WorkingDir, "provider": req.Provider,
	})

	entry := d.run(runCtx, id, req, started)

	d.mu.Lock()
	d.active--
	delete(d.live, id)
	d.mu.Unlock()
	cancel()

	d.ring.push(entry)
	d.persist(entry)
	d.emit(context.Background(), bus.EventCrossRepoCompleted, map[string]any{
		"id": entry.ID, "success": entry.Success, "via": string(entry.Via),
	})
	return entry, nil
}

func (d *Dispatcher) run(ctx context.Context, id string, req Request, started time.Time) Entry {
	entry := Entry{ID: id, WorkingDir: req.WorkingDir, Provider: req.Provider, StartedAt: started}

	if inst, ok := d.pickAgent(req.Provider); ok {
		resp, ok := d.tryAgentRouted(ctx, inst, req)
		if ok && resp.Success {
			entry.Via = ViaAgent
			entry.Success = true
			entry.Content = resp.Content
			entry.CompletedAt = time.Now().UTC()
			entry.DurationMs = entry.CompletedAt.Sub(started).Milliseconds()
			return entry
		}
	}

	timeout := provider.EffectiveTimeout(req.TimeoutMs, 0)
	spawnCtx, spawnCancel := context.WithTimeout(ctx, timeout)
	defer spawnCancel()

	content, stderr, cancelled, err := spawnDirect(spawnCtx, req.BinaryPath, req.CliArgs, req.WorkingDir, req.Prompt)
	entry.Via = ViaSubprocess
	entry.Stderr = stderr
	entry.Cancelled = cancelled
	entry.CompletedAt = time.Now().UTC()
	entry.DurationMs = entry.CompletedAt.Sub(started).Milliseconds()

	if err != nil {
		if errors.Is(spawnCtx.Err(), context.DeadlineExceeded) && nonWhitespaceLen(content) >= minPartialChars {
			entry.Success = true
			entry.Content = content
			return entry
		}
		entry.Success = false
		entry.Error = fmt.Sprintf("%v", err)
		return entry
	}

	entry.Success = true
	entry.Content = content
	return entry
}

// pickAgent returns the least-loaded available agent of the given provider,
// tie-broken by ascending CostMultiplier (same rule as the router's
// "single" strategy, spec §4.7).
func (d *Dispatcher) pickAgent(providerName string) (*registry.Instance, bool) {
	if d.registry == nil || providerName == "" {
		return nil, false
	}
	candidates := d.registry.FindAvailable(nil)
	var best *registry.Instance
	for _, inst := range candidates {
		if inst.Config.Provider != providerName {
			continue
		}
		if best == nil ||
			inst.Runtime.ActiveTasks < best.Runtime.ActiveTasks ||
			(inst.Runtime.ActiveTasks == best.Runtime.ActiveTasks && inst.Config.CostMultiplier < best.Config.CostMultiplier) {
			best = inst
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

func (d *Dispatcher) tryAgentRouted(ctx context.Context, inst *registry.Instance, req Request) (provider.Response, bool) {
	p, ok := d.providers.Get(inst.Config.Provider)
	if !ok {
		return provider.Response{}, false
	}
	cfg := inst.Config
	cfg.Cwd = req.WorkingDir
	if len(req.CliArgs) > 0 {
		cfg.CliArgs = req.CliArgs
	}

	id := inst.Config.ID
	if err := d.registry.RecordTaskStart(ctx, id); err != nil {
		return provider.Response{}, false
	}

	resp, err := p.Send(ctx, cfg, req.Prompt, req.MaxTokens, req.TimeoutMs)
	if err != nil {
		resp = provider.Response{AgentID: id, Success: false, Error: err.Error()}
	}
	_ = d.registry.RecordTaskComplete(ctx, id, int64(resp.TokenCount), resp.CostUnits, resp.Success, resp.PremiumRequests)
	return resp, true
}

func (d *Dispatcher) persist(entry Entry) {
	if d.log == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := d.log.Append(data); err != nil {
		d.tel.Logger.Warn(context.Background(), "crossrepo: persist dispatch failed", "id", entry.ID, "error", err)
	}
}

func (d *Dispatcher) emit(ctx context.Context, name string, payload map[string]any) {
	if d.bus == nil {
		return
	}
	d.bus.Emit(ctx, name, payload)
}

func nonWhitespaceLen(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			n++
		}
	}
	return n
}
