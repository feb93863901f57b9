package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/persistence"
)

func newTestAgent(id string, maxConcurrency int) Config {
	return Config{
		ID:             id,
		Name:           id,
		Provider:       "anthropic",
		MaxConcurrency: maxConcurrency,
		CostMultiplier: 1,
	}
}

func TestRegisterPreservesRuntimeOnReRegister(t *testing.T) {
	m := New()
	ctx := context.Background()

	_, err := m.Register(ctx, newTestAgent("a1", 2))
	require.NoError(t, err)
	require.NoError(t, m.RecordTaskStart(ctx, "a1"))

	inst, err := m.Register(ctx, newTestAgent("a1", 4))
	require.NoError(t, err)
	assert.Equal(t, 1, inst.Runtime.ActiveTasks, "runtime must survive re-register")
	assert.Equal(t, 4, inst.Config.MaxConcurrency, "config must update on re-register")
}

func TestUnregisterRefusesWhileBusyUnlessForced(t *testing.T) {
	m := New()
	ctx := context.Background()
	_, _ = m.Register(ctx, newTestAgent("a1", 1))
	require.NoError(t, m.RecordTaskStart(ctx, "a1"))

	err := m.Unregister(ctx, "a1", false)
	assert.ErrorIs(t, err, ErrAgentBusy)

	err = m.Unregister(ctx, "a1", true)
	assert.NoError(t, err)
	_, ok := m.Get("a1")
	assert.False(t, ok)
}

func TestUpdateNeverChangesID(t *testing.T) {
	m := New()
	ctx := context.Background()
	_, _ = m.Register(ctx, newTestAgent("a1", 2))

	newName := "renamed"
	inst, err := m.Update(ctx, "a1", ConfigPatch{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "a1", inst.Config.ID)
	assert.Equal(t, "renamed", inst.Config.Name)
}

func TestFindByTagsUsesORSemantics(t *testing.T) {
	m := New()
	ctx := context.Background()
	a := newTestAgent("a", 1)
	a.Tags = []string{"code"}
	b := newTestAgent("b", 1)
	b.Tags = []string{"security"}
	c := newTestAgent("c", 1)
	c.Tags = []string{"review"}
	_, _ = m.Register(ctx, a)
	_, _ = m.Register(ctx, b)
	_, _ = m.Register(ctx, c)

	found := m.FindByTags([]string{"code", "security"})
	ids := make([]string, 0)
	for _, inst := range found {
		ids = append(ids, inst.Config.ID)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestFindAvailableExcludesAgentsAtCapacity(t *testing.T) {
	m := New()
	ctx := context.Background()
	_, _ = m.Register(ctx, newTestAgent("full", 1))
	_, _ = m.Register(ctx, newTestAgent("open", 2))
	require.NoError(t, m.RecordTaskStart(ctx, "full"))

	available := m.FindAvailable(nil)
	ids := make([]string, 0)
	for _, inst := range available {
		ids = append(ids, inst.Config.ID)
	}
	assert.ElementsMatch(t, []string{"open"}, ids)
}

func TestRecordTaskStartTransitionsStateAndEmitsOnce(t *testing.T) {
	m := New()
	ctx := context.Background()
	_, _ = m.Register(ctx, newTestAgent("a1", 2))

	inst, _ := m.Get("a1")
	assert.Equal(t, StateIdle, inst.Runtime.State)

	require.NoError(t, m.RecordTaskStart(ctx, "a1"))
	inst, _ = m.Get("a1")
	assert.Equal(t, StateRunning, inst.Runtime.State)
	assert.Equal(t, 1, inst.Runtime.ActiveTasks)

	require.NoError(t, m.RecordTaskStart(ctx, "a1"))
	inst, _ = m.Get("a1")
	assert.Equal(t, StateBusy, inst.Runtime.State)

	err := m.RecordTaskStart(ctx, "a1")
	assert.ErrorIs(t, err, ErrAtCapacity)
}

func TestRecordTaskCompleteUpdatesCountersAndState(t *testing.T) {
	m := New()
	ctx := context.Background()
	_, _ = m.Register(ctx, newTestAgent("a1", 1))
	require.NoError(t, m.RecordTaskStart(ctx, "a1"))

	require.NoError(t, m.RecordTaskComplete(ctx, "a1", 100, 0.5, true, 0))
	inst, _ := m.Get("a1")
	assert.Equal(t, StateIdle, inst.Runtime.State)
	assert.EqualValues(t, 0, inst.Runtime.ActiveTasks)
	assert.EqualValues(t, 1, inst.Runtime.TasksCompleted)
	assert.EqualValues(t, 100, inst.Runtime.TotalTokensUsed)
	assert.Equal(t, 0.5, inst.Runtime.CostAccumulated)
}

func TestReloadMergePreservesRuntimeForExistingIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.json")
	m := New(WithStore(persistence.NewStore(path)))
	ctx := context.Background()
	_, _ = m.Register(ctx, newTestAgent("a1", 2))
	require.NoError(t, m.RecordTaskStart(ctx, "a1"))

	// Simulate external edit: same id with a new maxConcurrency, then drive
	// the merge through ReloadFromDisk.
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"a1","maxConcurrency":5,"costMultiplier":1}]`), 0o644))
	require.NoError(t, m.ReloadFromDisk(ctx))

	inst, _ := m.Get("a1")
	assert.Equal(t, 1, inst.Runtime.ActiveTasks)
	assert.Equal(t, 5, inst.Config.MaxConcurrency)
}

func TestGetHealthComputesErrorRate(t *testing.T) {
	m := New()
	ctx := context.Background()
	_, _ = m.Register(ctx, newTestAgent("a1", 2))
	require.NoError(t, m.RecordTaskStart(ctx, "a1"))
	require.NoError(t, m.RecordTaskComplete(ctx, "a1", 10, 0.1, false, 0))

	h, ok := m.GetHealth("a1")
	require.True(t, ok)
	assert.Equal(t, 1.0, h.ErrorRate)
}
