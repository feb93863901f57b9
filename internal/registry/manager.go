package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/bus"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/persistence"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/telemetry"
)

// Manager is the Agent Registry (spec §4.4): the canonical catalog of
// agents, their runtime state, and capacity accounting. The zero value is
// not usable; use New.
type Manager struct {
	mu     sync.Mutex
	agents map[string]*Instance

	store *persistence.Store
	bus   *bus.Bus
	tel   telemetry.Bundle
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore attaches the persistence Store backing agents/agents.json.
func WithStore(store *persistence.Store) Option {
	return func(m *Manager) { m.store = store }
}

// WithBus attaches the event bus lifecycle events are emitted on.
func WithBus(b *bus.Bus) Option {
	return func(m *Manager) { m.bus = b }
}

// WithTelemetry attaches a logging/metrics/tracing bundle.
func WithTelemetry(tel telemetry.Bundle) Option {
	return func(m *Manager) { m.tel = tel }
}

// New constructs an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		agents: make(map[string]*Instance),
		tel:    telemetry.NewNoop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load populates the registry from the persistence Store, if one is
// configured. Call once at startup before serving traffic.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	data, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("registry: load: %w", err)
	}
	var configs []Config
	if err := json.Unmarshal(data, &configs); err != nil {
		return fmt.Errorf("registry: unmarshal agents.json: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, cfg := range configs {
		m.agents[cfg.ID] = &Instance{
			Config:  cfg,
			Runtime: Runtime{State: StateIdle, StartedAt: now, LastActivityAt: now},
		}
	}
	return nil
}

func stateFromActiveTasks(active, max int) State {
	switch {
	case active <= 0:
		return StateIdle
	case max > 0 && active >= max:
		return StateBusy
	default:
		return StateRunning
	}
}

// Register overwrites the config for cfg.ID, preserving the runtime of an
// existing instance with the same id (spec §4.4).
func (m *Manager) Register(ctx context.Context, cfg Config) (*Instance, error) {
	m.mu.Lock()
	existing, had := m.agents[cfg.ID]
	inst := &Instance{Config: cfg}
	if had {
		inst.Runtime = existing.Runtime
	} else {
		now := time.Now()
		inst.Runtime = Runtime{State: StateIdle, StartedAt: now, LastActivityAt: now}
	}
	m.agents[cfg.ID] = inst
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if err := m.persist(ctx, snapshot); err != nil {
		return inst, err
	}
	m.emit(ctx, bus.EventAgentRegistered, map[string]any{"id": cfg.ID, "provider": cfg.Provider})
	return inst, nil
}

// Unregister removes id from the registry. Unless force is true, it refuses
// while the agent has active tasks (spec §3 AgentInstance lifecycle).
func (m *Manager) Unregister(ctx context.Context, id string, force bool) error {
	m.mu.Lock()
	inst, ok := m.agents[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if inst.Runtime.ActiveTasks > 0 && !force {
		m.mu.Unlock()
		return ErrAgentBusy
	}
	delete(m.agents, id)
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if err := m.persist(ctx, snapshot); err != nil {
		return err
	}
	m.emit(ctx, bus.EventAgentUnregistered, map[string]any{"id": id})
	return nil
}

// ConfigPatch carries partial config updates; nil fields are left unchanged.
// ID is never settable through a patch.
type ConfigPatch struct {
	Name           *string
	Model          *string
	Transport      *Transport
	Endpoint       *string
	Tags           *[]string
	CanMutate      *bool
	CostMultiplier *float64
	MaxConcurrency *int
	TimeoutMs      *int
	BinaryPath     *string
	CliArgs        *[]string
	Env            map[string]string
	Cwd            *string
}

func applyPatch(cfg *Config, patch ConfigPatch) {
	if patch.Name != nil {
		cfg.Name = *patch.Name
	}
	if patch.Model != nil {
		cfg.Model = *patch.Model
	}
	if patch.Transport != nil {
		cfg.Transport = *patch.Transport
	}
	if patch.Endpoint != nil {
		cfg.Endpoint = *patch.Endpoint
	}
	if patch.Tags != nil {
		cfg.Tags = *patch.Tags
	}
	if patch.CanMutate != nil {
		cfg.CanMutate = *patch.CanMutate
	}
	if patch.CostMultiplier != nil {
		cfg.CostMultiplier = *patch.CostMultiplier
	}
	if patch.MaxConcurrency != nil {
		cfg.MaxConcurrency = *patch.MaxConcurrency
	}
	if patch.TimeoutMs != nil {
		cfg.TimeoutMs = *patch.TimeoutMs
	}
	if patch.BinaryPath != nil {
		cfg.BinaryPath = *patch.BinaryPath
	}
	if patch.CliArgs != nil {
		cfg.CliArgs = *patch.CliArgs
	}
	if patch.Env != nil {
		cfg.Env = patch.Env
	}
	if patch.Cwd != nil {
		cfg.Cwd = *patch.Cwd
	}
}

// Update applies patch to id's config, never touching id or runtime counters.
func (m *Manager) Update(ctx context.Context, id string, patch ConfigPatch) (*Instance, error) {
	m.mu.Lock()
	inst, ok := m.agents[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	applyPatch(&inst.Config, patch)
	out := *inst
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if err := m.persist(ctx, snapshot); err != nil {
		return &out, err
	}
	return &out, nil
}

// Get returns a copy of the instance for id.
func (m *Manager) Get(id string) (*Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.agents[id]
	if !ok {
		return nil, false
	}
	out := *inst
	return &out, true
}

// GetAll returns a copy of every instance, sorted by id for deterministic
// output.
func (m *Manager) GetAll() []*Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Instance, 0, len(m.agents))
	for _, inst := range m.agents {
		cp := *inst
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Config.ID < out[j].Config.ID })
	return out
}

// FindByTags returns agents carrying any of tags (OR semantics).
func (m *Manager) FindByTags(tags []string) []*Instance {
	if len(tags) == 0 {
		return m.GetAll()
	}
	all := m.GetAll()
	out := make([]*Instance, 0, len(all))
	for _, inst := range all {
		for _, tag := range tags {
			if inst.Config.HasTag(tag) {
				out = append(out, inst)
				break
			}
		}
	}
	return out
}

// FindByProvider returns agents whose Config.Provider equals name.
func (m *Manager) FindByProvider(name string) []*Instance {
	all := m.GetAll()
	out := make([]*Instance, 0, len(all))
	for _, inst := range all {
		if inst.Config.Provider == name {
			out = append(out, inst)
		}
	}
	return out
}

func isNonTerminal(s State) bool {
	return s == StateIdle || s == StateRunning || s == StateBusy
}

// FindAvailable returns agents whose state is non-terminal and which are
// below maxConcurrency, optionally narrowed by tags (spec §4.4, §4.7).
func (m *Manager) FindAvailable(tags []string) []*Instance {
	var candidates []*Instance
	if len(tags) == 0 {
		candidates = m.GetAll()
	} else {
		candidates = m.FindByTags(tags)
	}
	out := make([]*Instance, 0, len(candidates))
	for _, inst := range candidates {
		if isNonTerminal(inst.Runtime.State) && inst.Runtime.ActiveTasks < inst.Config.MaxConcurrency {
			out = append(out, inst)
		}
	}
	return out
}

// RecordTaskStart increments activeTasks for id, transitions state
// accordingly, and emits agent:state-changed on any transition.
func (m *Manager) RecordTaskStart(ctx context.Context, id string) error {
	m.mu.Lock()
	inst, ok := m.agents[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if inst.Runtime.State == StateStopped || inst.Runtime.State == StateError {
		m.mu.Unlock()
		return ErrAgentUnavailable
	}
	if inst.Runtime.ActiveTasks >= inst.Config.MaxConcurrency {
		m.mu.Unlock()
		return ErrAtCapacity
	}
	prev := inst.Runtime.State
	inst.Runtime.ActiveTasks++
	inst.Runtime.LastActivityAt = time.Now()
	inst.Runtime.State = stateFromActiveTasks(inst.Runtime.ActiveTasks, inst.Config.MaxConcurrency)
	changed := prev != inst.Runtime.State
	m.mu.Unlock()

	if changed {
		m.emit(ctx, bus.EventAgentStateChanged, map[string]any{"id": id, "previous": string(prev), "next": string(inst.Runtime.State)})
	}
	return nil
}

// RecordTaskComplete decrements activeTasks, updates accounting counters,
// and transitions state.
func (m *Manager) RecordTaskComplete(ctx context.Context, id string, tokens int64, cost float64, success bool, premiumReqs int64) error {
	m.mu.Lock()
	inst, ok := m.agents[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	prev := inst.Runtime.State
	if inst.Runtime.ActiveTasks > 0 {
		inst.Runtime.ActiveTasks--
	}
	if success {
		inst.Runtime.TasksCompleted++
	} else {
		inst.Runtime.TasksFailed++
	}
	inst.Runtime.TotalTokensUsed += tokens
	inst.Runtime.CostAccumulated += cost
	inst.Runtime.PremiumRequests += premiumReqs
	inst.Runtime.LastActivityAt = time.Now()
	if inst.Runtime.State != StateStopped && inst.Runtime.State != StateError {
		inst.Runtime.State = stateFromActiveTasks(inst.Runtime.ActiveTasks, inst.Config.MaxConcurrency)
	}
	changed := prev != inst.Runtime.State
	m.mu.Unlock()

	if changed {
		m.emit(ctx, bus.EventAgentStateChanged, map[string]any{"id": id, "previous": string(prev), "next": string(inst.Runtime.State)})
	}
	return nil
}

// SetState explicitly transitions id to state, recording errMsg if any.
// Used to set/clear the sticky stopped/error states (spec §3).
func (m *Manager) SetState(ctx context.Context, id string, state State, errMsg string) error {
	m.mu.Lock()
	inst, ok := m.agents[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	prev := inst.Runtime.State
	inst.Runtime.State = state
	inst.Runtime.Error = errMsg
	changed := prev != state
	m.mu.Unlock()

	if changed {
		m.emit(ctx, bus.EventAgentStateChanged, map[string]any{"id": id, "previous": string(prev), "next": string(state)})
	}
	return nil
}

// GetHealth returns a Health summary for id.
func (m *Manager) GetHealth(id string) (Health, bool) {
	inst, ok := m.Get(id)
	if !ok {
		return Health{}, false
	}
	return healthFor(inst), true
}

// HealthSummary returns a Health summary for every registered agent
// (SPEC_FULL.md supplemented feature: aggregate health view).
func (m *Manager) HealthSummary() []Health {
	all := m.GetAll()
	out := make([]Health, 0, len(all))
	for _, inst := range all {
		out = append(out, healthFor(inst))
	}
	return out
}

func healthFor(inst *Instance) Health {
	total := inst.Runtime.TasksCompleted + inst.Runtime.TasksFailed
	var errorRate float64
	if total > 0 {
		errorRate = float64(inst.Runtime.TasksFailed) / float64(total)
	}
	return Health{
		ID:          inst.Config.ID,
		State:       inst.Runtime.State,
		ActiveTasks: inst.Runtime.ActiveTasks,
		Capacity:    inst.Config.MaxConcurrency,
		ErrorRate:   errorRate,
		Error:       inst.Runtime.Error,
	}
}

// ReloadFromDisk merges an externally-edited agents.json into the in-memory
// catalog (spec §4.4 hot reload). Existing ids keep their runtime with
// updated config; new ids enter as idle; ids absent from disk are removed
// only if activeTasks = 0. A wipe to empty while the in-memory catalog is
// non-empty is refused with a warning, per spec.
func (m *Manager) ReloadFromDisk(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	data, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("registry: reload: %w", err)
	}
	var configs []Config
	if err := json.Unmarshal(data, &configs); err != nil {
		return fmt.Errorf("registry: reload unmarshal: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(configs) == 0 && len(m.agents) > 0 {
		m.tel.Logger.Warn(ctx, "registry: refusing external wipe to empty catalog", "inMemoryCount", len(m.agents))
		return nil
	}

	onDisk := make(map[string]Config, len(configs))
	for _, cfg := range configs {
		onDisk[cfg.ID] = cfg
	}

	now := time.Now()
	for id, cfg := range onDisk {
		if existing, ok := m.agents[id]; ok {
			existing.Config = cfg
		} else {
			m.agents[id] = &Instance{
				Config:  cfg,
				Runtime: Runtime{State: StateIdle, StartedAt: now, LastActivityAt: now},
			}
		}
	}
	for id, inst := range m.agents {
		if _, stillOnDisk := onDisk[id]; !stillOnDisk && inst.Runtime.ActiveTasks == 0 {
			delete(m.agents, id)
		}
	}
	return nil
}

func (m *Manager) snapshotLocked() []byte {
	configs := make([]Config, 0, len(m.agents))
	for _, inst := range m.agents {
		configs = append(configs, inst.Config)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].ID < configs[j].ID })
	data, _ := json.Marshal(configs)
	return data
}

func (m *Manager) persist(ctx context.Context, data []byte) error {
	if m.store == nil {
		return nil
	}
	return m.store.Save(ctx, data)
}

func (m *Manager) emit(ctx context.Context, name string, payload map[string]any) {
	if m.bus == nil {
		return
	}
	m.bus.Emit(ctx, name, payload)
}
