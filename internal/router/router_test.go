package router

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/bus"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/provider"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/skills"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/telemetry"
)

// scriptedProvider returns a fixed response per call, optionally with a
// delay, and counts invocations.
type scriptedProvider struct {
	delay    time.Duration
	content  func(callN int) (string, bool)
	calls    int32
}

func (p *scriptedProvider) Capabilities() provider.Capabilities { return provider.Capabilities{} }

func (p *scriptedProvider) Send(ctx context.Context, cfg registry.Config, prompt string, maxTokens, timeoutMs int) (provider.Response, error) {
	n := int(atomic.AddInt32(&p.calls, 1))
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return provider.Response{AgentID: cfg.ID, Success: false, Error: "context canceled"}, nil
		}
	}
	content, success := p.content(n)
	return provider.Response{AgentID: cfg.ID, Model: cfg.Model, Content: content, Success: success, TokenCount: 5, CostUnits: cfg.CostMultiplier}, nil
}

func newTestAgent(t *testing.T, reg *registry.Manager, id string, cost float64) {
	t.Helper()
	_, err := reg.Register(context.Background(), registry.Config{
		ID: id, Name: id, Provider: "fake", Model: "fake-model",
		MaxConcurrency: 5, CostMultiplier: cost,
	})
	require.NoError(t, err)
}

func newTestRouter(t *testing.T, p provider.Provider) (*Router, *registry.Manager, *skills.Store) {
	t.Helper()
	reg := registry.New()
	skillStore := skills.New()
	providers := provider.NewRegistry()
	providers.Register("fake", p)
	return New(reg, skillStore, providers), reg, skillStore
}

func registerSkill(t *testing.T, store *skills.Store, def skills.Definition) {
	t.Helper()
	_, err := store.Register(context.Background(), def)
	require.NoError(t, err)
}

func TestSingleChoosesLeastLoadedThenCheapest(t *testing.T) {
	p := &scriptedProvider{content: func(int) (string, bool) { return "ok", true }}
	r, reg, store := newTestRouter(t, p)
	newTestAgent(t, reg, "a-expensive", 2.0)
	newTestAgent(t, reg, "a-cheap", 1.0)
	registerSkill(t, store, skills.Definition{ID: "s1", Strategy: skills.StrategySingle, PromptTemplate: "hi"})

	result, err := r.Route(context.Background(), "s1", nil)
	require.NoError(t, err)
	require.Len(t, result.Responses, 1)
	assert.Equal(t, "a-cheap", result.Responses[0].AgentID)
}

func TestRaceReturnsFirstSuccess(t *testing.T) {
	calls := int32(0)
	p := &scriptedProvider{
		content: func(int) (string, bool) {
			n := atomic.AddInt32(&calls, 1)
			return fmt.Sprintf("resp-%d", n), true
		},
	}
	r, reg, store := newTestRouter(t, p)
	newTestAgent(t, reg, "a1", 1.0)
	newTestAgent(t, reg, "a2", 1.0)
	registerSkill(t, store, skills.Definition{ID: "s1", Strategy: skills.StrategyRace, PromptTemplate: "hi"})

	result, err := r.Route(context.Background(), "s1", nil)
	require.NoError(t, err)
	require.Len(t, result.Responses, 1)
	assert.True(t, result.Responses[0].Success)
}

func TestFanOutMergesSuccessfulResponses(t *testing.T) {
	p := &scriptedProvider{content: func(n int) (string, bool) { return fmt.Sprintf("content-%d", n), true }}
	r, reg, store := newTestRouter(t, p)
	newTestAgent(t, reg, "a1", 1.0)
	newTestAgent(t, reg, "a2", 1.0)
	registerSkill(t, store, skills.Definition{ID: "s1", Strategy: skills.StrategyFanOut, MergeResults: true, PromptTemplate: "hi"})

	result, err := r.Route(context.Background(), "s1", nil)
	require.NoError(t, err)
	require.Len(t, result.Responses, 1)
	assert.Contains(t, result.Responses[0].Content, "--- Agent:")
}

func TestFallbackStopsAtFirstSuccess(t *testing.T) {
	p := &scriptedProvider{content: func(n int) (string, bool) { return "ok", n == 2 }}
	r, reg, store := newTestRouter(t, p)
	newTestAgent(t, reg, "a-cheap", 1.0)
	newTestAgent(t, reg, "a-expensive", 2.0)
	registerSkill(t, store, skills.Definition{ID: "s1", Strategy: skills.StrategyFallback, PromptTemplate: "hi"})

	result, err := r.Route(context.Background(), "s1", nil)
	require.NoError(t, err)
	require.Len(t, result.Responses, 2)
	assert.False(t, result.Responses[0].Success)
	assert.True(t, result.Responses[1].Success)
}

func TestFallbackOnEmptyTreatsShortSuccessAsFailure(t *testing.T) {
	p := &scriptedProvider{content: func(n int) (string, bool) {
		if n == 1 {
			return "ok", true
		}
		return "a sufficiently long and substantive answer here", true
	}}
	r, reg, store := newTestRouter(t, p)
	newTestAgent(t, reg, "a-cheap", 1.0)
	newTestAgent(t, reg, "a-expensive", 2.0)
	registerSkill(t, store, skills.Definition{ID: "s1", Strategy: skills.StrategyFallback, FallbackOnEmpty: true, PromptTemplate: "hi"})

	result, err := r.Route(context.Background(), "s1", nil)
	require.NoError(t, err)
	require.Len(t, result.Responses, 2)
	assert.Equal(t, "a-expensive", result.Responses[1].AgentID)
}

func TestEvaluateDegeneratesToSingleWithOneAgent(t *testing.T) {
	p := &scriptedProvider{content: func(int) (string, bool) { return "ok", true }}
	r, reg, store := newTestRouter(t, p)
	newTestAgent(t, reg, "a1", 1.0)
	registerSkill(t, store, skills.Definition{ID: "s1", Strategy: skills.StrategyEvaluate, PromptTemplate: "hi"})

	result, err := r.Route(context.Background(), "s1", nil)
	require.NoError(t, err)
	require.Len(t, result.Responses, 1)
}

func TestEvaluateSendsDoerResponseToCritic(t *testing.T) {
	p := &scriptedProvider{content: func(n int) (string, bool) {
		if n == 1 {
			return "doer answer", true
		}
		return "critic revision", true
	}}
	r, reg, store := newTestRouter(t, p)
	newTestAgent(t, reg, "a1", 1.0)
	newTestAgent(t, reg, "a2", 1.0)
	registerSkill(t, store, skills.Definition{ID: "s1", Strategy: skills.StrategyEvaluate, PromptTemplate: "hi"})

	result, err := r.Route(context.Background(), "s1", nil)
	require.NoError(t, err)
	require.Len(t, result.Responses, 2)
	assert.Contains(t, result.Responses[0].Content, "critic revision")
	assert.Contains(t, result.Responses[0].Content, "doer answer")
}

func TestRouteWithNoCandidatesReturnsError(t *testing.T) {
	p := &scriptedProvider{content: func(int) (string, bool) { return "ok", true }}
	r, _, store := newTestRouter(t, p)
	registerSkill(t, store, skills.Definition{ID: "s1", Strategy: skills.StrategySingle, PromptTemplate: "hi"})

	_, err := r.Route(context.Background(), "s1", nil)
	assert.ErrorIs(t, err, ErrNoAgentsAvailable)
}

func TestHistoryRecordsRoutedTasks(t *testing.T) {
	p := &scriptedProvider{content: func(int) (string, bool) { return "ok", true }}
	r, reg, store := newTestRouter(t, p)
	newTestAgent(t, reg, "a1", 1.0)
	registerSkill(t, store, skills.Definition{ID: "s1", Strategy: skills.StrategySingle, PromptTemplate: "hi"})

	_, err := r.Route(context.Background(), "s1", nil)
	require.NoError(t, err)

	entries := r.History().All()
	require.Len(t, entries, 1)
	assert.Equal(t, "s1", entries[0].SkillID)
}

func TestRouteEmitsTaskStartedAndTaskCompletedExactlyOnce(t *testing.T) {
	p := &scriptedProvider{content: func(int) (string, bool) { return "ok", true }}
	reg := registry.New()
	skillStore := skills.New()
	providers := provider.NewRegistry()
	providers.Register("fake", p)
	b := bus.New(telemetry.NewNoop())
	r := New(reg, skillStore, providers, WithBus(b))
	newTestAgent(t, reg, "a1", 1.0)
	registerSkill(t, skillStore, skills.Definition{ID: "s1", Strategy: skills.StrategySingle, PromptTemplate: "hi"})

	var started, completed int32
	b.On(bus.EventTaskStarted, func(context.Context, bus.Event) { atomic.AddInt32(&started, 1) })
	b.On(bus.EventTaskCompleted, func(ctx context.Context, evt bus.Event) {
		atomic.AddInt32(&completed, 1)
		assert.Equal(t, true, evt.Payload["success"])
	})

	_, err := r.Route(context.Background(), "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&started))
	assert.Equal(t, int32(1), atomic.LoadInt32(&completed))
}
