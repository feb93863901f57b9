package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/automation"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/bus"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/mailbox"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/provider"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/router"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/skills"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/telemetry"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	b := bus.New(telemetry.NewNoop())
	reg := registry.New(registry.WithBus(b))
	skillStore := skills.New(skills.WithBus(b))
	providers := provider.NewRegistry()
	rtr := router.New(reg, skillStore, providers, router.WithBus(b))
	autoEngine := automation.New(reg, skillStore, rtr, automation.WithBus(b))
	mb := mailbox.New(mailbox.WithBus(b))
	return New(reg, skillStore, rtr, autoEngine, mb, b)
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleSnapshotReturnsEmptyCatalogs(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/snapshot", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Empty(t, snap.Agents)
	assert.Empty(t, snap.Rules)
	assert.NotNil(t, snap.ReviewQueue)
}

func TestAutomationCRUDRoundTrip(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/automation", automation.Rule{
		ID: "r1", Name: "rule one", Enabled: true, Events: []string{"task:completed"},
		SkillID: "s1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/automation/r1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rule automation.Rule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rule))
	assert.Equal(t, "rule one", rule.Name)

	rec = doRequest(t, s, http.MethodPost, "/api/automation/r1/toggle", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/automation/r1", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rule))
	assert.False(t, rule.Enabled)

	rec = doRequest(t, s, http.MethodDelete, "/api/automation/r1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/automation/r1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAutomationGetUnknownRuleReturnsNotFoundEnvelope(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/automation/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var envelope toolError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "get_automation", envelope.Tool)
	assert.NotEmpty(t, envelope.Error)
}

func TestMessagingSendReadAck(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/messages", mailbox.SendOptions{
		Channel: "general", Sender: "alice", Recipients: []string{"*"}, Body: "hi",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = doRequest(t, s, http.MethodGet, "/api/messages/general?reader=bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []mailbox.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Body)

	rec = doRequest(t, s, http.MethodPost, "/api/messages/ack", map[string]any{
		"ids": []string{created.ID}, "reader": "bob",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/messages/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats["totalChannels"])
}

func TestMessagingPurgeAllDiscriminator(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/api/messages", mailbox.SendOptions{
		Channel: "c1", Sender: "alice", Recipients: []string{"*"}, Body: "one",
	})
	rec := doRequest(t, s, http.MethodDelete, "/api/messages", map[string]any{"all": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/messages/channels", nil)
	var chans []mailbox.ChannelSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chans))
	assert.Empty(t, chans)
}

func TestWorkspaceRegisterGetRemove(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/workspaces", map[string]string{"path": "/repo/one"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var entry WorkspaceEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.True(t, entry.Monitoring)
	require.NotEmpty(t, entry.EncodedPath)

	rec = doRequest(t, s, http.MethodGet, "/api/workspaces/"+entry.EncodedPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, "/api/workspaces/"+entry.EncodedPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/workspaces/"+entry.EncodedPath, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordWorkspaceEventBoundsHistory(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < workspaceHistCap+10; i++ {
		s.recordWorkspaceEvent("enc1", map[string]any{"i": i})
	}
	s.wsMu.Lock()
	n := len(s.workspaceHist["enc1"])
	s.wsMu.Unlock()
	assert.Equal(t, workspaceHistCap, n)
}

func TestOnBusEventPublishesSSEFrames(t *testing.T) {
	s := newTestServer(t)
	ch := s.sse.subscribe()
	defer s.sse.unsubscribe(ch)

	s.bus.Emit(context.Background(), "task:started", map[string]any{"taskId": "t1"})

	frame := <-ch
	assert.Equal(t, "bus", frame.event)
	snapFrame := <-ch
	assert.Equal(t, "snapshot", snapFrame.event)
}

func TestPeerDiscoveryImplementsMailboxInterface(t *testing.T) {
	var _ mailbox.PeerDiscovery = newPeerDiscovery(t.TempDir(), 1)
}

func TestStartAndStopBindsPortAndCleansUpPortFile(t *testing.T) {
	dir := t.TempDir()
	s := newTestServer(t)
	s.stateDir = dir

	require.NoError(t, s.Start(context.Background()))
	require.GreaterOrEqual(t, s.Port(), DefaultPort)
	require.FileExists(t, portFilePath(dir, os.Getpid()))

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(s.Port()) + "/api/snapshot")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
	assert.NoFileExists(t, portFilePath(dir, os.Getpid()))
}
