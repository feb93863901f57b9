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

func TestReloadFromDiskAddsNewIDsAsIdle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.json")
	store := persistence.NewStore(path)
	ctx := context.Background()

	m := New(WithStore(store))
	_, _ = m.Register(ctx, newTestAgent("a1", 2))

	// External process appends agent "a2" directly to the file.
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"a1","maxConcurrency":2,"costMultiplier":1},{"id":"a2","maxConcurrency":1,"costMultiplier":1}]`), 0o644))

	require.NoError(t, m.ReloadFromDisk(ctx))

	inst, ok := m.Get("a2")
	require.True(t, ok)
	assert.Equal(t, StateIdle, inst.Runtime.State)
}

func TestReloadFromDiskKeepsBusyAgentsAbsentFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.json")
	store := persistence.NewStore(path)
	ctx := context.Background()

	m := New(WithStore(store))
	_, _ = m.Register(ctx, newTestAgent("a1", 2))
	require.NoError(t, m.RecordTaskStart(ctx, "a1"))

	// External file no longer lists a1 at all.
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))
	require.NoError(t, m.ReloadFromDisk(ctx))

	_, ok := m.Get("a1")
	assert.True(t, ok, "busy agent must survive a wipe while activeTasks > 0")
}

func TestReloadFromDiskRefusesWipeToEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.json")
	store := persistence.NewStore(path)
	ctx := context.Background()

	m := New(WithStore(store))
	_, _ = m.Register(ctx, newTestAgent("a1", 2))

	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))
	require.NoError(t, m.ReloadFromDisk(ctx))

	_, ok := m.Get("a1")
	assert.True(t, ok, "idle agent must survive an external wipe-to-empty too")
}
