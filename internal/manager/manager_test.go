package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/skills"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/telemetry"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := defaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.StateDir = "state"
	cfg.Dashboard = true
	return cfg
}

func TestLoadConfigAppliesEnvOverridesOverFileDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dataDir: /from/file\nhistoryCapacity: 7\n"), 0o644))

	t.Setenv("MCP_MANAGER_DATA_DIR", "/from/env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.DataDir)
	assert.Equal(t, 7, cfg.HistoryCapacity)
}

func TestLoadConfigToleratesMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 5, cfg.CrossRepoConcurrency)
}

func TestNewWiresEverySubsystem(t *testing.T) {
	cfg := testConfig(t)
	m, err := New(cfg, telemetry.NewNoop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	assert.NotNil(t, m.Providers)
	assert.NotNil(t, m.Registry)
	assert.NotNil(t, m.Skills)
	assert.NotNil(t, m.Router)
	assert.NotNil(t, m.Automation)
	assert.NotNil(t, m.Mailbox)
	assert.NotNil(t, m.CrossRepo)
	assert.NotNil(t, m.Dashboard)

	if _, ok := m.Providers.Get("subprocess"); !ok {
		t.Fatal("subprocess provider should always be registered")
	}
}

func TestStartLoadsEmptyCatalogsOnFirstBootAndStopCleansUp(t *testing.T) {
	cfg := testConfig(t)
	m, err := New(cfg, telemetry.NewNoop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Start(ctx))

	assert.Empty(t, m.Registry.GetAll())
	assert.Empty(t, m.Skills.GetAll())
	assert.Empty(t, m.Automation.ListRules(""))

	require.NoError(t, m.Stop(ctx))

	portDir := filepath.Join(cfg.DataDir, cfg.StateDir)
	entries, err := os.ReadDir(portDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "dashboard-", "port file should be removed on stop")
	}
}

func TestStartThenRestartReloadsPersistedAgent(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dashboard = false

	m1, err := New(cfg, telemetry.NewNoop())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, m1.Start(ctx))

	_, err = m1.Registry.Register(ctx, registry.Config{ID: "agent-1", Provider: "subprocess", Model: "m1"})
	require.NoError(t, err)
	require.NoError(t, m1.Stop(ctx))

	m2, err := New(cfg, telemetry.NewNoop())
	require.NoError(t, err)
	require.NoError(t, m2.Start(ctx))
	defer m2.Stop(ctx)

	inst, ok := m2.Registry.Get("agent-1")
	require.True(t, ok)
	assert.Equal(t, "subprocess", inst.Config.Provider)
}

func TestRoutedTaskPersistsMetricsAndHistoryAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dashboard = false
	ctx := context.Background()

	m1, err := New(cfg, telemetry.NewNoop())
	require.NoError(t, err)
	require.NoError(t, m1.Start(ctx))

	_, err = m1.Registry.Register(ctx, registry.Config{ID: "agent-1", Provider: "subprocess", Model: "m1", MaxConcurrency: 1})
	require.NoError(t, err)
	_, err = m1.Skills.Register(ctx, skills.Definition{
		ID: "echo", Strategy: skills.StrategySingle, TargetAgents: []string{"agent-1"}, PromptTemplate: "{input}",
	})
	require.NoError(t, err)

	_, err = m1.Router.Route(ctx, "echo", map[string]string{"input": "hi"})
	require.NoError(t, err)
	require.NoError(t, m1.Stop(ctx))

	m2, err := New(cfg, telemetry.NewNoop())
	require.NoError(t, err)
	require.NoError(t, m2.Start(ctx))
	defer m2.Stop(ctx)

	assert.Equal(t, int64(1), m2.Router.Metrics().TotalTasks)
	history := m2.Router.History().All()
	require.Len(t, history, 1)
	assert.Equal(t, "echo", history[0].SkillID)
}

func TestNewRegistersConfiguredProviders(t *testing.T) {
	cfg := testConfig(t)
	cfg.AnthropicAPIKey = "test-key"
	cfg.OpenAIAPIKey = "test-key"

	m, err := New(cfg, telemetry.NewNoop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	_, ok := m.Providers.Get("anthropic")
	assert.True(t, ok)
	_, ok = m.Providers.Get("openai")
	assert.True(t, ok)
}
