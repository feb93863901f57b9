package crossrepo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/persistence"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/provider"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
)

func newTestDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *registry.Manager, *provider.Registry) {
	t.Helper()
	reg := registry.New()
	providers := provider.NewRegistry()
	d := New(reg, providers, opts...)
	return d, reg, providers
}

func TestDispatchFallsBackToSubprocessWhenNoAgentRegistered(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	dir := t.TempDir()

	entry, err := d.Dispatch(context.Background(), Request{
		WorkingDir: dir, Provider: "fake",
		BinaryPath: "/bin/sh", CliArgs: []string{"-c", "cat"},
		Prompt: "hello dispatcher", TimeoutMs: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, ViaSubprocess, entry.Via)
	assert.True(t, entry.Success)
	assert.Equal(t, "hello dispatcher", entry.Content)
}

func TestDispatchPrefersAgentRoutedOverSubprocess(t *testing.T) {
	d, reg, providers := newTestDispatcher(t)
	_, err := reg.Register(context.Background(), registry.Config{
		ID: "a1", Name: "a1", Provider: "fake", Model: "m", MaxConcurrency: 5,
	})
	require.NoError(t, err)
	providers.Register("fake", &stubAgentProvider{content: "agent says hi"})

	entry, err := d.Dispatch(context.Background(), Request{
		WorkingDir: t.TempDir(), Provider: "fake", Prompt: "hello", TimeoutMs: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, ViaAgent, entry.Via)
	assert.True(t, entry.Success)
	assert.Equal(t, "agent says hi", entry.Content)
}

func TestDispatchFallsBackWhenAgentRoutedFails(t *testing.T) {
	d, reg, providers := newTestDispatcher(t)
	_, err := reg.Register(context.Background(), registry.Config{
		ID: "a1", Name: "a1", Provider: "fake", Model: "m", MaxConcurrency: 5,
	})
	require.NoError(t, err)
	providers.Register("fake", &stubAgentProvider{fail: true})

	entry, err := d.Dispatch(context.Background(), Request{
		WorkingDir: t.TempDir(), Provider: "fake",
		BinaryPath: "/bin/sh", CliArgs: []string{"-c", "cat"},
		Prompt: "fallback content", TimeoutMs: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, ViaSubprocess, entry.Via)
	assert.True(t, entry.Success)
	assert.Equal(t, "fallback content", entry.Content)
}

func TestDispatchRejectsWhenAtCapacity(t *testing.T) {
	d, _, _ := newTestDispatcher(t, WithCap(1))
	d.mu.Lock()
	d.active = 1
	d.mu.Unlock()

	_, err := d.Dispatch(context.Background(), Request{WorkingDir: t.TempDir(), Provider: "fake"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestDispatchMissingBinaryFails(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	entry, err := d.Dispatch(context.Background(), Request{
		WorkingDir: t.TempDir(), Provider: "fake", Prompt: "hi", TimeoutMs: 1000,
	})
	require.NoError(t, err)
	assert.False(t, entry.Success)
	assert.NotEmpty(t, entry.Error)
}

func TestDispatchPersistsToAppendLog(t *testing.T) {
	dir := t.TempDir()
	log := persistence.NewAppendLog(filepath.Join(dir, "dispatches.jsonl"))
	d, _, _ := newTestDispatcher(t, WithAppendLog(log))

	_, err := d.Dispatch(context.Background(), Request{
		WorkingDir: t.TempDir(), Provider: "fake",
		BinaryPath: "/bin/sh", CliArgs: []string{"-c", "cat"},
		Prompt: "persisted", TimeoutMs: 5000,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "dispatches.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "persisted")
}

func TestRingBoundedAtCapacity(t *testing.T) {
	r := newRing(2)
	r.push(Entry{ID: "1"})
	r.push(Entry{ID: "2"})
	r.push(Entry{ID: "3"})
	all := r.all()
	require.Len(t, all, 2)
	assert.Equal(t, "3", all[0].ID)
	assert.Equal(t, "2", all[1].ID)
}

func TestCancelTerminatesLiveSubprocessDispatch(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	done := make(chan Entry, 1)
	go func() {
		entry, _ := d.Dispatch(context.Background(), Request{
			WorkingDir: t.TempDir(), Provider: "fake",
			BinaryPath: "/bin/sh", CliArgs: []string{"-c", "sleep 5"},
			Prompt: "", TimeoutMs: 10000,
		})
		done <- entry
	}()

	var cancelled bool
	for i := 0; i < 50; i++ {
		time.Sleep(10 * time.Millisecond)
		d.mu.Lock()
		n := len(d.live)
		var id string
		for k := range d.live {
			id = k
		}
		d.mu.Unlock()
		if n > 0 {
			cancelled = d.Cancel(id)
			break
		}
	}
	require.True(t, cancelled)

	select {
	case entry := <-done:
		assert.True(t, entry.Cancelled)
	case <-time.After(3 * time.Second):
		t.Fatal("dispatch did not complete after cancel")
	}
}

type stubAgentProvider struct {
	content string
	fail    bool
}

func (p *stubAgentProvider) Capabilities() provider.Capabilities { return provider.Capabilities{} }

func (p *stubAgentProvider) Send(ctx context.Context, cfg registry.Config, prompt string, maxTokens, timeoutMs int) (provider.Response, error) {
	if p.fail {
		return provider.Response{AgentID: cfg.ID, Success: false, Error: "boom"}, nil
	}
	return provider.Response{AgentID: cfg.ID, Content: p.content, Success: true}, nil
}
