package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/automation"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/automation/durable"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/bus"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/configwatch"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/crossrepo"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/dashboard"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/mailbox"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/persistence"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/provider"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/provider/anthropic"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/provider/bedrock"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/provider/openai"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/provider/subprocess"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/router"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/sidechannel"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/skills"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/telemetry"
)

// Manager is the single process composition root (spec §1 overview, §6
// process lifecycle): it owns the shared Bus and every subsystem, and
// drives their Load/Start/Stop order.
type Manager struct {
	cfg Config
	tel telemetry.Bundle
	bus *bus.Bus

	watchers []*configwatch.Watcher

	Providers  *provider.Registry
	Registry   *registry.Manager
	Skills     *skills.Store
	Router     *router.Router
	Automation *automation.Engine
	Mailbox    *mailbox.Mailbox
	CrossRepo  *crossrepo.Dispatcher
	Dashboard  *dashboard.Server
}

// New creates the catalog directories, arms the config watchers, and
// constructs every subsystem over cfg, but loads nothing; call
// Start to load persisted catalogs and (optionally) bring up the
// dashboard listener. Pass telemetry.NewNoop() for tel if no logging/
// metrics backend is configured.
func New(cfg Config, tel telemetry.Bundle) (*Manager, error) {
	if err := ensureCatalogDirs(cfg); err != nil {
		return nil, fmt.Errorf("manager: prepare data dir: %w", err)
	}

	b := bus.New(tel)

	m := &Manager{cfg: cfg, tel: tel, bus: b}

	sideChannel, err := buildSideChannel(cfg)
	if err != nil {
		return nil, fmt.Errorf("manager: side channel: %w", err)
	}

	agentsStore, agentsWatcher, err := m.newWatchedStore("mgr:agents:all", cfg.catalogPath("agents/agents.json"), sideChannel, "agents")
	if err != nil {
		return nil, err
	}
	skillsStore, skillsWatcher, err := m.newWatchedStore("mgr:skills:all", cfg.catalogPath("skills/skills.json"), sideChannel, "skills")
	if err != nil {
		return nil, err
	}
	rulesStore, rulesWatcher, err := m.newWatchedStore("mgr:rules:all", cfg.catalogPath("automation/rules.json"), sideChannel, "rules")
	if err != nil {
		return nil, err
	}
	metricsStore, metricsWatcher, err := m.newWatchedStore("mgr:router-metrics:all", cfg.catalogPath("state/router-metrics.json"), sideChannel, "router-metrics")
	if err != nil {
		return nil, err
	}
	m.watchers = append(m.watchers, agentsWatcher, skillsWatcher, rulesWatcher, metricsWatcher)

	messagesLog := persistence.NewAppendLog(cfg.catalogPath("messaging/messages.jsonl"))
	taskHistoryLog := persistence.NewAppendLog(cfg.catalogPath("state/task-history.jsonl"))

	providers := provider.NewRegistry()
	registerProviders(providers, cfg)

	reg := registry.New(
		registry.WithStore(agentsStore),
		registry.WithBus(b),
		registry.WithTelemetry(tel),
	)

	skillStore := skills.New(
		skills.WithStore(skillsStore),
		skills.WithBus(b),
		skills.WithTelemetry(tel),
	)

	rtr := router.New(reg, skillStore, providers,
		router.WithHistoryCapacity(cfg.HistoryCapacity),
		router.WithMetricsStore(metricsStore),
		router.WithTaskLog(taskHistoryLog),
		router.WithBus(b),
		router.WithTelemetry(tel),
	)

	autoOpts := []automation.Option{
		automation.WithStore(rulesStore),
		automation.WithBus(b),
		automation.WithTelemetry(tel),
	}
	if cfg.TemporalHostPort != "" {
		scheduler, err := durable.NewTemporalScheduler(cfg.TemporalHostPort, cfg.TemporalNamespace, tel)
		if err != nil {
			return nil, fmt.Errorf("manager: temporal retry scheduler: %w", err)
		}
		autoOpts = append(autoOpts, automation.WithRetryScheduler(scheduler))
	}
	autoEngine := automation.New(reg, skillStore, rtr, autoOpts...)

	forwarder := mailbox.NewHTTPForwarder(dashboard.NewPeerDiscovery(cfg.catalogPath(cfg.StateDir)), tel)
	mb := mailbox.New(
		mailbox.WithAppendLog(messagesLog),
		mailbox.WithForwarder(forwarder),
		mailbox.WithBus(b),
		mailbox.WithTelemetry(tel),
	)

	crossDispatcher := crossrepo.New(reg, providers,
		crossrepo.WithCap(cfg.CrossRepoConcurrency),
		crossrepo.WithAppendLog(persistence.NewAppendLog(cfg.catalogPath("crossrepo/dispatches.jsonl"))),
		crossrepo.WithBus(b),
		crossrepo.WithTelemetry(tel),
	)

	dash := dashboard.New(reg, skillStore, rtr, autoEngine, mb, b,
		dashboard.WithStateDir(cfg.catalogPath(cfg.StateDir)),
		dashboard.WithCrossRepo(crossDispatcher),
		dashboard.WithTelemetry(tel),
	)

	m.Providers = providers
	m.Registry = reg
	m.Skills = skillStore
	m.Router = rtr
	m.Automation = autoEngine
	m.Mailbox = mb
	m.CrossRepo = crossDispatcher
	m.Dashboard = dash

	return m, nil
}

// ensureCatalogDirs creates every subdirectory spec §6's persistence layout
// names, since persistence.Store and configwatch.Watcher both require their
// target directory to already exist.
func ensureCatalogDirs(cfg Config) error {
	for _, rel := range []string{
		"agents", "skills", "automation", "messaging", "workspace", "state",
	} {
		if err := os.MkdirAll(cfg.catalogPath(rel), 0o755); err != nil {
			return err
		}
	}
	return os.MkdirAll(filepath.Join(cfg.DataDir, cfg.StateDir), 0o755)
}

// newWatchedStore builds a persistence.Store for relPath wired to the
// shared side channel (if any) and a configwatch.Watcher that marks the
// store's own writes so the watcher does not re-trigger on them (spec §4.3
// hot-reload, self-write suppression).
func (m *Manager) newWatchedStore(sideChannelKey, path string, sideChannel persistence.SideChannel, onReloadName string) (*persistence.Store, *configwatch.Watcher, error) {
	watcher, err := configwatch.New(path, func() {
		m.bus.Emit(context.Background(), "config:reloaded", map[string]any{"catalog": onReloadName})
	}, configwatch.WithTelemetry(m.tel))
	if err != nil {
		return nil, nil, fmt.Errorf("manager: watch %s: %w", path, err)
	}

	opts := []persistence.Option{persistence.WithTelemetry(m.tel), persistence.WithWatcher(watcher)}
	if sideChannel != nil {
		opts = append(opts, persistence.WithSideChannel(sideChannel, sideChannelKey))
	}
	store := persistence.NewStore(path, opts...)
	return store, watcher, nil
}

// buildSideChannel constructs the configured index-server recovery path
// (spec §4.2 step 3). Redis wins when both DSNs are set since it is the
// pack's lower-latency option; absent both, no side channel is wired and
// stores fall back to primary+backup only.
func buildSideChannel(cfg Config) (persistence.SideChannel, error) {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return sidechannel.NewRedisChannel(client), nil
	}
	if cfg.MongoURI != "" {
		ch, err := sidechannel.NewMongoChannel(sidechannel.MongoOptions{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDatabase,
		})
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
	return nil, nil
}

// registerProviders wires whichever provider backends have credentials
// configured, each wrapped in provider.Retrying (spec §4.6). The wrapper
// retries only Send calls that return a Go error; these adapters report SDK
// and process failures as unsuccessful responses with a nil error, and those
// are not retried. A provider with no credentials configured is simply
// absent from the registry rather than registered in a broken state.
func registerProviders(reg *provider.Registry, cfg Config) {
	retry := provider.DefaultRetryConfig()

	if cfg.AnthropicAPIKey != "" {
		if c, err := anthropic.NewFromAPIKey(cfg.AnthropicAPIKey); err == nil {
			reg.Register("anthropic", provider.Retrying(c, retry))
		}
	}
	if cfg.OpenAIAPIKey != "" {
		if c, err := openai.NewFromAPIKey(cfg.OpenAIAPIKey); err == nil {
			reg.Register("openai", provider.Retrying(c, retry))
		}
	}
	if cfg.UseBedrock {
		if c, err := newBedrockProvider(); err == nil {
			reg.Register("bedrock", provider.Retrying(c, retry))
		}
	}
	reg.Register("subprocess", provider.Retrying(subprocess.New(), retry))
}

// newBedrockProvider resolves AWS credentials/region the idiomatic way
// (environment, shared config, EC2/ECS role) rather than hand-rolling
// resolution, mirroring every other pack manifest that pairs
// aws-sdk-go-v2/service/bedrockruntime with aws-sdk-go-v2/config.
func newBedrockProvider() (*bedrock.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("manager: load aws config: %w", err)
	}
	runtime := bedrockruntime.NewFromConfig(awsCfg)
	return bedrock.New(runtime)
}

// Start loads every persisted catalog, starts the automation engine's
// event loop, and (if configured) brings up the dashboard listener.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.Registry.Load(ctx); err != nil {
		return fmt.Errorf("manager: load agents: %w", err)
	}
	if err := m.Skills.Load(ctx); err != nil {
		return fmt.Errorf("manager: load skills: %w", err)
	}
	if err := m.Router.Load(ctx); err != nil {
		return fmt.Errorf("manager: load router history: %w", err)
	}
	if err := m.Automation.Load(ctx); err != nil {
		return fmt.Errorf("manager: load automation rules: %w", err)
	}
	if err := m.Mailbox.Load(ctx); err != nil {
		return fmt.Errorf("manager: load mailbox: %w", err)
	}

	m.Automation.Start()

	if m.cfg.Dashboard {
		if err := m.Dashboard.Start(ctx); err != nil {
			return fmt.Errorf("manager: start dashboard: %w", err)
		}
	}
	return nil
}

// Stop shuts the dashboard listener down, releases the automation engine's
// retry scheduler, and closes every config watcher. Catalog contents are
// already durable (each mutation persists synchronously), so there is
// nothing else to flush.
func (m *Manager) Stop(ctx context.Context) error {
	var firstErr error
	if m.cfg.Dashboard {
		if err := m.Dashboard.Stop(ctx); err != nil {
			firstErr = err
		}
	}
	if err := m.Automation.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	for _, w := range m.watchers {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
