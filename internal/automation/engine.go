package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/automation/durable"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/bus"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/persistence"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/router"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/skills"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/telemetry"
)

const (
	defaultExecutionRingSize = 50
	defaultMaxRetries        = 0
	defaultBaseDelayMs       = 1000
	defaultMaxDelayMs        = 30000
)

type ruleState struct {
	rule       Rule
	stats      RuleStats
	executions []Execution
	active     int
}

// Engine is the Automation Engine (spec §4.9): it subscribes to every bus
// event, matches rules, applies throttling/conditions/concurrency gates, and
// dispatches matched rules through the Router.
type Engine struct {
	mu      sync.Mutex
	enabled bool
	order   []string
	rules   map[string]*ruleState

	throttle *throttleState

	registry *registry.Manager
	skills   *skills.Store
	router   *router.Router
	bus      *bus.Bus
	store    *persistence.Store
	tel      telemetry.Bundle
	retry    durable.RetryScheduler
}

// Option configures an Engine.
type Option func(*Engine)

func WithStore(store *persistence.Store) Option {
	return func(e *Engine) { e.store = store }
}

func WithBus(b *bus.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

func WithTelemetry(tel telemetry.Bundle) Option {
	return func(e *Engine) { e.tel = tel }
}

// WithRetryScheduler overrides how the retry ladder's delayed re-attempts
// are scheduled. The default is an in-process timer (durable.InmemScheduler);
// pass a durable.TemporalScheduler to persist pending retries across a
// process restart.
func WithRetryScheduler(s durable.RetryScheduler) Option {
	return func(e *Engine) { e.retry = s }
}

// New constructs an Engine wired to reg/skillStore/rtr. Call Load then Start
// to begin processing events.
func New(reg *registry.Manager, skillStore *skills.Store, rtr *router.Router, opts ...Option) *Engine {
	e := &Engine{
		enabled:  true,
		rules:    make(map[string]*ruleState),
		throttle: newThrottleState(),
		registry: reg,
		skills:   skillStore,
		router:   rtr,
		tel:      telemetry.NewNoop(),
		retry:    durable.NewInmemScheduler(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load restores persisted rules from the Store, if one is configured.
func (e *Engine) Load(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	data, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("automation: load rules: %w", err)
	}
	var rules []Rule
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rules); err != nil {
			return fmt.Errorf("automation: decode rules: %w", err)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range rules {
		e.rules[r.ID] = &ruleState{rule: r}
		e.order = append(e.order, r.ID)
	}
	return nil
}

// Start subscribes the Engine to the bus's full event stream.
func (e *Engine) Start() {
	if e.bus == nil {
		return
	}
	e.bus.OnAny(func(ctx context.Context, evt bus.Event) {
		e.handleEvent(context.Background(), evt)
	})
}

// Stop releases the retry scheduler's background resources (a no-op for the
// default in-process scheduler; closes the worker/client for a Temporal-
// backed one).
func (e *Engine) Stop() error {
	if e.retry == nil {
		return nil
	}
	return e.retry.Close()
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	e.mu.Lock()
	enabled := e.enabled
	matched := make([]Rule, 0, len(e.order))
	if enabled {
		for _, id := range e.order {
			st, ok := e.rules[id]
			if !ok || !st.rule.Enabled {
				continue
			}
			if matchesEvent(st.rule.Events, evt.Name) &&
				hasRequiredFields(evt.Payload, st.rule.RequiredFields) &&
				matchesFilters(evt.Payload, st.rule.Filters) {
				matched = append(matched, st.rule)
			}
		}
	}
	e.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Priority > matched[j].Priority })
	for _, rule := range matched {
		e.dispatch(ctx, rule, evt.Payload)
	}
}

// dispatch applies throttling then, if admitted, runs the rule asynchronously.
func (e *Engine) dispatch(ctx context.Context, rule Rule, payload map[string]any) {
	if rule.Throttle != nil {
		interval := time.Duration(rule.Throttle.IntervalMs) * time.Millisecond
		groupVal := ""
		if rule.Throttle.GroupBy != "" {
			groupVal, _ = dotPathLookup(payload, rule.Throttle.GroupBy)
		}
		key := throttleKey(rule.ID, groupVal)
		switch rule.Throttle.Mode {
		case ThrottleTrailing:
			e.throttle.scheduleTrailing(key, interval, payload, func(latest map[string]any) {
				e.runRule(context.Background(), rule, latest, 0)
			})
			return
		default: // leading
			if !e.throttle.allowLeading(key, interval) {
				e.recordSkip(rule.ID, StatusThrottled)
				return
			}
		}
	}
	go e.runRule(ctx, rule, payload, 0)
}

// runRule evaluates conditions and the concurrency gate, resolves
// parameters, and executes rule via the Router, retrying on failure per
// rule.Retry's exponential ladder (spec §4.9 steps 3-8).
func (e *Engine) runRule(ctx context.Context, rule Rule, payload map[string]any, attempt int) {
	if reason, ok := e.unmetCondition(rule, payload); !ok {
		e.recordExecution(rule.ID, Execution{
			ID: uuid.NewString(), RuleID: rule.ID, Status: StatusSkipped,
			Summary: reason, StartedAt: time.Now().UTC(), CompletedAt: time.Now().UTC(),
		})
		return
	}

	if !e.acquire(rule.ID, rule.MaxConcurrent) {
		e.recordSkip(rule.ID, StatusThrottled)
		return
	}
	defer e.release(rule.ID)

	params := resolveParams(rule.Params, payload)
	started := time.Now().UTC()
	exec := Execution{
		ID: uuid.NewString(), RuleID: rule.ID, Params: params,
		RetryAttempt: attempt, StartedAt: started,
	}

	if rule.DryRun {
		exec.Status = StatusSkipped
		exec.Summary = "[DRY RUN] skill not invoked"
		exec.CompletedAt = time.Now().UTC()
		exec.DurationMs = exec.CompletedAt.Sub(started).Milliseconds()
		e.recordExecution(rule.ID, exec)
		return
	}

	result, err := e.router.Route(ctx, rule.SkillID, params)
	exec.CompletedAt = time.Now().UTC()
	exec.DurationMs = exec.CompletedAt.Sub(started).Milliseconds()
	if err != nil || !result.Success {
		if err != nil {
			exec.Error = err.Error()
		} else {
			exec.Error = "skill invocation did not succeed"
		}
		exec.Status = StatusFailure
		e.recordExecution(rule.ID, exec)
		e.maybeRetry(rule, payload, attempt)
		return
	}

	exec.Status = StatusSuccess
	exec.Summary = fmt.Sprintf("%d response(s)", len(result.Responses))
	e.recordExecution(rule.ID, exec)
}

func (e *Engine) maybeRetry(rule Rule, payload map[string]any, attempt int) {
	if rule.Retry == nil || attempt >= rule.Retry.MaxRetries {
		return
	}
	base := rule.Retry.BaseDelayMs
	if base <= 0 {
		base = defaultBaseDelayMs
	}
	maxDelay := rule.Retry.MaxDelayMs
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelayMs
	}
	delay := base * (1 << uint(attempt))
	if delay > maxDelay {
		delay = maxDelay
	}
	err := e.retry.ScheduleRetry(context.Background(), rule.ID, attempt, time.Duration(delay)*time.Millisecond, func() {
		e.runRule(context.Background(), rule, payload, attempt+1)
	})
	if err != nil {
		e.tel.Logger.Warn(context.Background(), "automation: schedule retry failed", "rule", rule.ID, "error", err)
	}
}

// unmetCondition evaluates rule.Conditions, returning the first unmet
// reason, or ok=true when every condition passes (spec §4.9 step 3).
func (e *Engine) unmetCondition(rule Rule, payload map[string]any) (string, bool) {
	for _, c := range rule.Conditions {
		switch c.Type {
		case ConditionMinAgents:
			want, _ := strconv.Atoi(c.Param)
			if len(e.registry.FindAvailable(nil)) < want {
				return "min-agents not met", false
			}
		case ConditionSkillExist:
			if _, ok := e.skills.Get(c.Param); !ok {
				return fmt.Sprintf("skill %q does not exist", c.Param), false
			}
		case ConditionCooldown:
			seconds, _ := strconv.Atoi(c.Param)
			e.mu.Lock()
			st := e.rules[rule.ID]
			var last *time.Time
			if st != nil {
				last = st.stats.LastSuccessAt
			}
			e.mu.Unlock()
			if last != nil && time.Since(*last) < time.Duration(seconds)*time.Second {
				return "cooldown active", false
			}
		case ConditionCustom:
			// no custom predicate registry exists yet; always passes.
		}
	}
	return "", true
}

func (e *Engine) acquire(ruleID string, max int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.rules[ruleID]
	if !ok {
		return false
	}
	if max > 0 && st.active >= max {
		return false
	}
	st.active++
	return true
}

func (e *Engine) release(ruleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.rules[ruleID]; ok && st.active > 0 {
		st.active--
	}
}

func (e *Engine) recordSkip(ruleID string, status ExecutionStatus) {
	now := time.Now().UTC()
	e.recordExecution(ruleID, Execution{
		ID: uuid.NewString(), RuleID: ruleID, Status: status,
		StartedAt: now, CompletedAt: now,
	})
}

func (e *Engine) recordExecution(ruleID string, exec Execution) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.rules[ruleID]
	if !ok {
		return
	}
	st.executions = append([]Execution{exec}, st.executions...)
	if len(st.executions) > defaultExecutionRingSize {
		st.executions = st.executions[:defaultExecutionRingSize]
	}
	st.stats.Total++
	completed := exec.CompletedAt
	switch exec.Status {
	case StatusSuccess:
		st.stats.Success++
		st.stats.LastSuccessAt = &completed
	case StatusFailure:
		st.stats.Failure++
	case StatusSkipped:
		st.stats.Skipped++
	case StatusThrottled:
		st.stats.Throttled++
	}
	st.stats.LastExecutedAt = &completed
	st.stats.ActiveExecutions = st.active
	n := float64(st.stats.Total)
	st.stats.AvgDurationMs = st.stats.AvgDurationMs + (float64(exec.DurationMs)-st.stats.AvgDurationMs)/n
}

// resolveParams overlays static, then fromEvent dot-path, then template
// values (spec §4.9 step 5: later sources win).
func resolveParams(spec ParamSpec, payload map[string]any) map[string]string {
	out := make(map[string]string, len(spec.Static)+len(spec.FromEvent)+len(spec.Templates))
	for k, v := range spec.Static {
		out[k] = v
	}
	for k, path := range spec.FromEvent {
		if v, ok := dotPathLookup(payload, path); ok {
			out[k] = v
		} else {
			out[k] = ""
		}
	}
	for k, tmpl := range spec.Templates {
		out[k] = interpolate(tmpl, payload)
	}
	return out
}

// interpolate replaces every {event.path} token in tmpl with path's dot-path
// lookup against payload (spec §4.9 step 5: "interpolate {event.path} via
// dot-path on payload"), the same single-brace convention
// skills.ResolvePrompt uses for a skill's {name} placeholders. A path that
// resolves to nothing is replaced with an empty string; a token that isn't
// prefixed "event." is left as literal text.
func interpolate(tmpl string, payload map[string]any) string {
	var sb strings.Builder
	for {
		start := strings.IndexByte(tmpl, '{')
		if start < 0 {
			sb.WriteString(tmpl)
			break
		}
		end := strings.IndexByte(tmpl[start:], '}')
		if end < 0 {
			sb.WriteString(tmpl)
			break
		}
		end += start
		sb.WriteString(tmpl[:start])
		token := tmpl[start+1 : end]
		if path, ok := strings.CutPrefix(token, "event."); ok {
			if v, ok := dotPathLookup(payload, path); ok {
				sb.WriteString(v)
			}
		} else {
			sb.WriteString(tmpl[start : end+1])
		}
		tmpl = tmpl[end+1:]
	}
	return sb.String()
}

// --- Administrative API (spec §4.9) -----------------------------------

// RegisterRule adds a new rule, defaulting Version to "1.0.0".
func (e *Engine) RegisterRule(ctx context.Context, rule Rule) (Rule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.Version == "" {
		rule.Version = "1.0.0"
	}
	e.mu.Lock()
	if _, exists := e.rules[rule.ID]; exists {
		e.mu.Unlock()
		return Rule{}, fmt.Errorf("automation: rule %q already exists", rule.ID)
	}
	e.rules[rule.ID] = &ruleState{rule: rule}
	e.order = append(e.order, rule.ID)
	e.mu.Unlock()

	if err := e.persist(ctx); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// UpdateRule replaces rule id with patch as a whole, keeping id and bumping
// the stored version's semver patch component only (minor/major never change
// here). It is not a field-wise merge: fields left unset in patch are not
// carried over from the existing rule.
func (e *Engine) UpdateRule(ctx context.Context, id string, patch Rule) (Rule, error) {
	e.mu.Lock()
	st, ok := e.rules[id]
	if !ok {
		e.mu.Unlock()
		return Rule{}, fmt.Errorf("automation: unknown rule %q", id)
	}
	updated := patch
	updated.ID = id
	updated.Version = bumpPatch(st.rule.Version)
	st.rule = updated
	e.mu.Unlock()

	if err := e.persist(ctx); err != nil {
		return Rule{}, err
	}
	return updated, nil
}

func bumpPatch(version string) string {
	parts := strings.SplitN(version, ".", 3)
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		patch = 0
	}
	parts[2] = strconv.Itoa(patch + 1)
	return strings.Join(parts, ".")
}

// RemoveRule deletes a rule and cancels any of its pending trailing timers.
func (e *Engine) RemoveRule(ctx context.Context, id string) error {
	e.mu.Lock()
	if _, ok := e.rules[id]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("automation: unknown rule %q", id)
	}
	delete(e.rules, id)
	for i, rid := range e.order {
		if rid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	e.throttle.mu.Lock()
	for key, win := range e.throttle.pending {
		if key == id || strings.HasPrefix(key, id+"\x00") {
			win.timer.Stop()
			delete(e.throttle.pending, key)
		}
	}
	e.throttle.mu.Unlock()
	return e.persist(ctx)
}

// SetRuleEnabled toggles one rule's Enabled flag.
func (e *Engine) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	e.mu.Lock()
	st, ok := e.rules[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("automation: unknown rule %q", id)
	}
	st.rule.Enabled = enabled
	e.mu.Unlock()
	return e.persist(ctx)
}

// SetEnabled toggles the whole engine's processing.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	e.enabled = enabled
	e.mu.Unlock()
	if !enabled {
		e.throttle.cancelAll()
	}
}

// TriggerRule manually invokes rule id with testData, bypassing event
// matching and throttling; runtime conditions and the concurrency gate still
// apply. With dryRun set, the rule runs in dry-run mode.
func (e *Engine) TriggerRule(ctx context.Context, id string, testData map[string]any, dryRun bool) error {
	e.mu.Lock()
	st, ok := e.rules[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("automation: unknown rule %q", id)
	}
	rule := st.rule
	if dryRun {
		rule.DryRun = true
	}
	e.runRule(ctx, rule, testData, 0)
	return nil
}

// GetStatus reports engine-wide and per-rule execution statistics.
func (e *Engine) GetStatus() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats := make(map[string]RuleStats, len(e.rules))
	for id, st := range e.rules {
		stats[id] = st.stats
	}
	return EngineStatus{Enabled: e.enabled, RuleCount: len(e.rules), Stats: stats}
}

// GetRule returns a single rule by id.
func (e *Engine) GetRule(id string) (Rule, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.rules[id]
	if !ok {
		return Rule{}, false
	}
	return st.rule, true
}

// ListRules returns every rule, optionally narrowed to those whose Name
// contains filter (case-sensitive substring, empty matches all).
func (e *Engine) ListRules(filter string) []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Rule, 0, len(e.order))
	for _, id := range e.order {
		st := e.rules[id]
		if filter == "" || strings.Contains(st.rule.Name, filter) {
			out = append(out, st.rule)
		}
	}
	return out
}

// Executions returns the bounded execution ring for a rule, most recent first.
func (e *Engine) Executions(ruleID string) []Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.rules[ruleID]
	if !ok {
		return nil
	}
	return append([]Execution(nil), st.executions...)
}

func (e *Engine) persist(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	e.mu.Lock()
	rules := make([]Rule, 0, len(e.order))
	for _, id := range e.order {
		rules = append(rules, e.rules[id].rule)
	}
	e.mu.Unlock()

	data, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("automation: encode rules: %w", err)
	}
	if err := e.store.Save(ctx, data); err != nil {
		return fmt.Errorf("automation: save rules: %w", err)
	}
	return nil
}
