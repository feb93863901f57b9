package dashboard

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/automation"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/bus"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/crossrepo"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/mailbox"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/router"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/skills"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/telemetry"
)

// DefaultPort is the dashboard's preferred bind port (spec §6). Server
// retries ascending ports up to DefaultPort+maxPortRetries before failing.
const (
	DefaultPort      = 3900
	maxPortRetries   = 10
	workspaceHistCap = 200
)

// Server is the Dashboard HTTP+SSE surface (spec §6): a localhost JSON API
// over the manager's subsystems plus an SSE stream mirroring every bus
// event. The HTML/CSS/JS frontend is out of scope; this is backend only.
type Server struct {
	stateDir string

	registry   *registry.Manager
	skills     *skills.Store
	rtr        *router.Router
	automation *automation.Engine
	crossrepo  *crossrepo.Dispatcher
	mailbox    *mailbox.Mailbox
	bus        *bus.Bus
	tel        telemetry.Bundle

	wsMu          sync.Mutex
	workspaces    map[string]WorkspaceEntry
	workspaceHist map[string][]map[string]any

	router   *mux.Router
	listener net.Listener
	httpSrv  *http.Server
	portFile string
	port     int

	sse *sseHub
}

// Option configures a Server.
type Option func(*Server)

func WithStateDir(dir string) Option    { return func(s *Server) { s.stateDir = dir } }
func WithCrossRepo(d *crossrepo.Dispatcher) Option {
	return func(s *Server) { s.crossrepo = d }
}
func WithTelemetry(tel telemetry.Bundle) Option { return func(s *Server) { s.tel = tel } }

// New constructs a Server over the manager's subsystems.
func New(
	reg *registry.Manager,
	skillStore *skills.Store,
	rtr *router.Router,
	autoEngine *automation.Engine,
	mb *mailbox.Mailbox,
	b *bus.Bus,
	opts ...Option,
) *Server {
	s := &Server{
		stateDir:      "state",
		registry:      reg,
		skills:        skillStore,
		rtr:           rtr,
		automation:    autoEngine,
		mailbox:       mb,
		bus:           b,
		tel:           telemetry.NewNoop(),
		workspaces:    make(map[string]WorkspaceEntry),
		workspaceHist: make(map[string][]map[string]any),
		sse:           newSSEHub(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = mux.NewRouter()
	s.registerRoutes()
	if s.bus != nil {
		s.bus.OnAny(s.onBusEvent)
	}
	return s
}

// Router exposes the underlying mux.Router, mainly for tests.
func (s *Server) Router() *mux.Router { return s.router }

// Start sweeps stale port files, binds a listener (retrying ascending ports
// on failure), writes its own port file, and begins serving in the
// background. Cancel ctx or call Stop to shut down.
func (s *Server) Start(ctx context.Context) error {
	if err := sweepStalePortFiles(s.stateDir); err != nil {
		s.tel.Logger.Warn(ctx, "dashboard: stale port-file sweep failed", "error", err)
	}

	var lastErr error
	for i := 0; i <= maxPortRetries; i++ {
		port := DefaultPort + i
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			lastErr = err
			continue
		}
		s.listener = ln
		s.port = port
		lastErr = nil
		break
	}
	if s.listener == nil {
		return fmt.Errorf("dashboard: no free port in [%d, %d]: %w", DefaultPort, DefaultPort+maxPortRetries, lastErr)
	}

	path, err := writePortFile(s.stateDir, s.port)
	if err != nil {
		_ = s.listener.Close()
		return err
	}
	s.portFile = path

	s.httpSrv = &http.Server{Handler: s.router}
	go func() {
		if err := s.httpSrv.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			s.tel.Logger.Error(context.Background(), "dashboard: serve failed", "error", err)
		}
	}()
	s.bus.Emit(ctx, bus.EventServerStarted, map[string]any{"port": s.port})
	return nil
}

// Stop shuts the HTTP server down cleanly and removes its port file.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}
	s.sse.closeAll()
	if s.portFile != "" {
		return removePortFile(s.portFile)
	}
	return nil
}

// Port returns the bound listening port, valid after Start succeeds.
func (s *Server) Port() int { return s.port }

// PeerDiscovery returns the mailbox.PeerDiscovery implementation backed by
// this server's port-file directory.
func (s *Server) PeerDiscovery() mailbox.PeerDiscovery {
	return newPeerDiscovery(s.stateDir, os.Getpid())
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/api/snapshot", s.handleSnapshot).Methods("GET")
	s.router.HandleFunc("/api/events/stream", s.handleSSE).Methods("GET")

	s.router.HandleFunc("/api/automation", s.handleListRules).Methods("GET")
	s.router.HandleFunc("/api/automation", s.handleCreateRule).Methods("POST")
	s.router.HandleFunc("/api/automation/{id}", s.handleGetRule).Methods("GET")
	s.router.HandleFunc("/api/automation/{id}", s.handleUpdateRule).Methods("PUT")
	s.router.HandleFunc("/api/automation/{id}", s.handleDeleteRule).Methods("DELETE")
	s.router.HandleFunc("/api/automation/{id}/toggle", s.handleToggleRule).Methods("POST")
	s.router.HandleFunc("/api/automation/{id}/trigger", s.handleTriggerRule).Methods("POST")

	s.router.HandleFunc("/api/messages", s.handleListMessages).Methods("GET")
	s.router.HandleFunc("/api/messages", s.handleSendMessage).Methods("POST")
	s.router.HandleFunc("/api/messages", s.handleDeleteMessages).Methods("DELETE")
	s.router.HandleFunc("/api/messages/channels", s.handleListChannels).Methods("GET")
	s.router.HandleFunc("/api/messages/stats", s.handleMessageStats).Methods("GET")
	s.router.HandleFunc("/api/messages/ack", s.handleAckMessages).Methods("POST")
	s.router.HandleFunc("/api/messages/inbound", s.handleInboundMessage).Methods("POST")
	s.router.HandleFunc("/api/messages/by-id/{id}", s.handleGetMessage).Methods("GET")
	s.router.HandleFunc("/api/messages/by-id/{id}", s.handleUpdateMessage).Methods("PUT")
	s.router.HandleFunc("/api/messages/{channel}", s.handleChannelMessages).Methods("GET")

	s.router.HandleFunc("/api/workspaces", s.handleListWorkspaces).Methods("GET")
	s.router.HandleFunc("/api/workspaces", s.handleRegisterWorkspace).Methods("POST")
	s.router.HandleFunc("/api/workspaces/{encodedPath}", s.handleGetWorkspace).Methods("GET")
	s.router.HandleFunc("/api/workspaces/{encodedPath}", s.handleRemoveWorkspace).Methods("DELETE")
	s.router.HandleFunc("/api/workspace-history", s.handleWorkspaceHistory).Methods("GET")
	s.router.HandleFunc("/api/workspace-history/{encodedPath}", s.handleWorkspaceHistoryFor).Methods("GET")
}

func (s *Server) snapshot() Snapshot {
	snap := Snapshot{
		Workspaces:  make([]WorkspaceEntry, 0, len(s.workspaces)),
		ReviewQueue: []any{},
	}
	if s.registry != nil {
		snap.Agents = s.registry.GetAll()
	}
	if s.skills != nil {
		snap.Skills = s.skills.GetAll()
	}
	if s.automation != nil {
		snap.Rules = s.automation.ListRules("")
		snap.Automation = s.automation.GetStatus()
	}
	if s.rtr != nil {
		snap.Tasks = s.rtr.History().All()
		snap.Metrics = s.rtr.Metrics()
	}
	if s.crossrepo != nil {
		snap.CrossRepo = s.crossrepo.Results()
	}
	if s.mailbox != nil {
		if chans, err := s.mailbox.ListChannels(context.Background()); err == nil {
			snap.Messaging = chans
		}
	}
	s.wsMu.Lock()
	for _, w := range s.workspaces {
		snap.Workspaces = append(snap.Workspaces, w)
	}
	s.wsMu.Unlock()
	return snap
}

func (s *Server) onBusEvent(ctx context.Context, evt bus.Event) {
	if encoded, ok := evt.Payload["encodedPath"].(string); ok && strings.HasPrefix(evt.Name, "workspace:") {
		s.recordWorkspaceEvent(encoded, evt.Payload)
	}
	s.sse.publish(sseFrame{event: "bus", data: map[string]any{"name": evt.Name, "payload": evt.Payload}})
	s.sse.publish(sseFrame{event: "snapshot", data: s.snapshot()})
}
