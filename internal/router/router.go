package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/bus"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/persistence"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/provider"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/skills"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/telemetry"
)

// ErrNoAgentsAvailable is returned when a skill resolves to zero candidates.
var ErrNoAgentsAvailable = errors.New("router: no agents available for skill")

// Router implements spec §4.7's strategy dispatch over the agent registry.
type Router struct {
	registry  *registry.Manager
	skills    *skills.Store
	providers *provider.Registry
	bus       *bus.Bus
	tel       telemetry.Bundle

	history *History

	metricsMu    sync.Mutex
	metrics      GlobalMetrics
	metricsStore *persistence.Store
	taskLog      *persistence.AppendLog
}

// Option configures a Router.
type Option func(*Router)

func WithHistoryCapacity(n int) Option {
	return func(r *Router) { r.history = NewHistory(n) }
}

func WithBus(b *bus.Bus) Option {
	return func(r *Router) { r.bus = b }
}

func WithTelemetry(tel telemetry.Bundle) Option {
	return func(r *Router) { r.tel = tel }
}

// WithMetricsStore persists GlobalMetrics to state/router-metrics.json
// after every routed task (spec §6 persistence layout).
func WithMetricsStore(store *persistence.Store) Option {
	return func(r *Router) { r.metricsStore = store }
}

// WithTaskLog appends every TaskResult to state/task-history.jsonl so the
// bounded in-memory ring can be rebuilt on restart (spec §6, §4.7).
func WithTaskLog(log *persistence.AppendLog) Option {
	return func(r *Router) { r.taskLog = log }
}

// New constructs a Router over the given registry, skill store, and
// provider registry.
func New(reg *registry.Manager, skillStore *skills.Store, providers *provider.Registry, opts ...Option) *Router {
	r := &Router{
		registry:  reg,
		skills:    skillStore,
		providers: providers,
		history:   NewHistory(50),
		tel:       telemetry.NewNoop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route resolves skillID, picks candidate agents per its strategy, and
// dispatches the task (spec §4.7).
func (r *Router) Route(ctx context.Context, skillID string, params map[string]string) (TaskResult, error) {
	defPtr, ok := r.skills.Get(skillID)
	if !ok {
		return TaskResult{}, fmt.Errorf("router: unknown skill %q", skillID)
	}
	def := *defPtr

	if err := skills.ValidateParams(def, params); err != nil {
		return TaskResult{}, err
	}
	prompt := skills.ResolvePrompt(def, params)
	candidates := r.candidatesFor(def)
	if len(candidates) == 0 {
		return TaskResult{}, ErrNoAgentsAvailable
	}

	started := time.Now().UTC()
	result := TaskResult{
		ID:        uuid.NewString(),
		SkillID:   skillID,
		Strategy:  string(def.Strategy),
		Prompt:    prompt,
		StartedAt: started,
	}

	r.emit(ctx, bus.EventTaskStarted, map[string]any{
		"id": result.ID, "skillId": skillID, "strategy": result.Strategy,
	})

	var responses []provider.Response
	switch def.Strategy {
	case skills.StrategyRace:
		responses = r.race(ctx, candidates, def, prompt)
	case skills.StrategyFanOut:
		responses = r.fanOut(ctx, candidates, def, prompt)
	case skills.StrategyConsensus:
		responses = r.consensus(ctx, candidates, def, prompt)
	case skills.StrategyFallback:
		responses = r.fallback(ctx, candidates, def, prompt)
	case skills.StrategyCostOptimal:
		responses = r.costOptimized(ctx, candidates, def, prompt)
	case skills.StrategyEvaluate:
		responses = r.evaluate(ctx, candidates, def, prompt)
	default:
		responses = r.single(ctx, candidates, def, prompt)
	}

	result.Responses = responses
	result.CompletedAt = time.Now().UTC()
	result.DurationMs = result.CompletedAt.Sub(started).Milliseconds()
	for _, resp := range responses {
		if resp.Success {
			result.Success = true
			break
		}
	}

	r.recordGlobalMetrics(responses)
	r.persistMetrics(ctx)
	r.history.Push(result)
	r.persistTask(result)
	r.emit(context.Background(), bus.EventTaskCompleted, map[string]any{
		"id": result.ID, "skillId": skillID, "success": result.Success, "durationMs": result.DurationMs,
	})
	return result, nil
}

func (r *Router) emit(ctx context.Context, name string, payload map[string]any) {
	if r.bus == nil {
		return
	}
	r.bus.Emit(ctx, name, payload)
}

// Load restores global metrics and the bounded task-history ring from
// disk, when a metrics store and/or task log were configured.
func (r *Router) Load(ctx context.Context) error {
	if r.metricsStore != nil {
		data, err := r.metricsStore.Load(ctx)
		if err != nil {
			return fmt.Errorf("router: load metrics: %w", err)
		}
		if len(data) > 0 {
			var m GlobalMetrics
			if err := json.Unmarshal(data, &m); err == nil {
				r.metricsMu.Lock()
				r.metrics = m
				r.metricsMu.Unlock()
			}
		}
	}
	if r.taskLog != nil {
		records, err := r.taskLog.LoadLatestByID(persistence.JSONIDOf)
		if err != nil {
			return fmt.Errorf("router: load task history: %w", err)
		}
		results := make([]TaskResult, 0, len(records))
		for _, raw := range records {
			var tr TaskResult
			if err := json.Unmarshal(raw, &tr); err == nil {
				results = append(results, tr)
			}
		}
		sort.Slice(results, func(i, j int) bool { return results[i].CompletedAt.Before(results[j].CompletedAt) })
		for _, tr := range results {
			r.history.Push(tr)
		}
	}
	return nil
}

// persistMetrics writes the current GlobalMetrics snapshot, best-effort.
func (r *Router) persistMetrics(ctx context.Context) {
	if r.metricsStore == nil {
		return
	}
	data, err := json.Marshal(r.Metrics())
	if err != nil {
		return
	}
	if err := r.metricsStore.Save(ctx, data); err != nil {
		r.tel.Logger.Warn(ctx, "router: persist metrics failed", "error", err)
	}
}

// persistTask appends result to the task-history log, best-effort.
func (r *Router) persistTask(result TaskResult) {
	if r.taskLog == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := r.taskLog.Append(data); err != nil {
		r.tel.Logger.Warn(context.Background(), "router: persist task history failed", "error", err)
	}
}

// candidatesFor resolves a skill's target agents (explicit ids take
// precedence over tags). Explicit ids are looked up as registered, with no
// availability check; tags (or none) go through FindAvailable.
func (r *Router) candidatesFor(def skills.Definition) []*registry.Instance {
	if len(def.TargetAgents) > 0 {
		out := make([]*registry.Instance, 0, len(def.TargetAgents))
		for _, id := range def.TargetAgents {
			if inst, ok := r.registry.Get(id); ok {
				out = append(out, inst)
			}
		}
		return out
	}
	return r.registry.FindAvailable(def.TargetTags)
}

// invoke dispatches prompt to one agent, recording capacity and metrics
// bookkeeping around the provider call (spec §4.7's per-task metrics).
func (r *Router) invoke(ctx context.Context, inst *registry.Instance, def skills.Definition, prompt string) provider.Response {
	id := inst.Config.ID
	if err := r.registry.RecordTaskStart(ctx, id); err != nil {
		return provider.Response{AgentID: id, Success: false, Error: err.Error(), Timestamp: time.Now()}
	}

	p, ok := r.providers.Get(inst.Config.Provider)
	if !ok {
		resp := provider.Response{AgentID: id, Success: false, Error: fmt.Sprintf("router: provider %q not registered", inst.Config.Provider), Timestamp: time.Now()}
		_ = r.registry.RecordTaskComplete(ctx, id, 0, 0, false, 0)
		return resp
	}

	maxTokens := def.MaxTokens
	resp, err := p.Send(ctx, inst.Config, prompt, maxTokens, def.TimeoutMs)
	if err != nil {
		resp = provider.Response{AgentID: id, Success: false, Error: err.Error(), Timestamp: time.Now()}
	}

	_ = r.registry.RecordTaskComplete(ctx, id, int64(resp.TokenCount), resp.CostUnits, resp.Success, resp.PremiumRequests)
	return resp
}

// invokeTimeout wraps invoke with a per-call deadline (used by race/fan-out
// where the skill/strategy imposes its own timeout independent of the
// provider's own EffectiveTimeout resolution).
func (r *Router) invokeTimeout(ctx context.Context, inst *registry.Instance, def skills.Definition, prompt string, timeout time.Duration) provider.Response {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.invoke(callCtx, inst, def, prompt)
}

func (r *Router) recordGlobalMetrics(responses []provider.Response) {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	r.metrics.TotalTasks++
	for _, resp := range responses {
		r.metrics.TotalTokens += int64(resp.TokenCount)
		r.metrics.TotalCost += resp.CostUnits
		r.metrics.TotalPremiumRequests += resp.PremiumRequests
		if resp.TokenCountEstimated {
			r.metrics.TotalEstimatedTokens += int64(resp.TokenCount)
		}
	}
}

// Metrics returns a snapshot of the global totals.
func (r *Router) Metrics() GlobalMetrics {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	return r.metrics
}

// History returns the bounded task-history ring.
func (r *Router) History() *History {
	return r.history
}

// sortByCostAscending returns a copy of candidates sorted by ascending
// CostMultiplier (used by fallback and cost-optimized).
func sortByCostAscending(candidates []*registry.Instance) []*registry.Instance {
	out := append([]*registry.Instance(nil), candidates...)
	sort.Slice(out, func(i, j int) bool { return out[i].Config.CostMultiplier < out[j].Config.CostMultiplier })
	return out
}
