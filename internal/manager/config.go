// Package manager wires every subsystem (registry, skills, router,
// automation, mailbox, crossrepo, dashboard) into one running process
// (spec §4, §6). It owns process configuration, construction order, and
// the start/stop lifecycle; it does not implement domain logic itself.
package manager

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds process-wide configuration (spec §6 persistence layout,
// §1 overview). Values are loaded from an optional YAML file first, then
// overridden by environment variables, following the flat-struct-plus-env
// convention in owulveryck-agenthub/internal/config rather than a Viper
// dependency (the pack has no real use of one).
type Config struct {
	DataDir   string `yaml:"dataDir"`
	StateDir  string `yaml:"stateDir"`
	Dashboard bool   `yaml:"dashboard"`
	LogLevel  string `yaml:"logLevel"`

	AnthropicAPIKey string `yaml:"anthropicApiKey"`
	OpenAIAPIKey    string `yaml:"openaiApiKey"`
	UseBedrock      bool   `yaml:"useBedrock"`

	RedisAddr     string `yaml:"redisAddr"`
	MongoURI      string `yaml:"mongoUri"`
	MongoDatabase string `yaml:"mongoDatabase"`

	CrossRepoConcurrency int `yaml:"crossRepoConcurrency"`
	HistoryCapacity      int `yaml:"historyCapacity"`

	TemporalHostPort  string `yaml:"temporalHostPort"`
	TemporalNamespace string `yaml:"temporalNamespace"`
}

// defaultConfig returns the baseline before file/env overrides are applied.
func defaultConfig() Config {
	return Config{
		DataDir:              defaultDataDir(),
		StateDir:             "state",
		Dashboard:            true,
		LogLevel:             "info",
		CrossRepoConcurrency: 5,
		HistoryCapacity:      500,
	}
}

// defaultDataDir mirrors the OS-conventional per-user app-data location
// (spec §6 "Persistence layout"): os.UserConfigDir with a fixed leaf.
func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "mcp-agent-manager")
	}
	return "data"
}

// LoadConfig reads an optional YAML file at path (skipped silently if it
// does not exist) then applies environment variable overrides (spec §6's
// ambient configuration concern). Env vars always win over the file so an
// operator can override a checked-in config without editing it.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, err
			}
		} else if !os.IsNotExist(err) {
			return Config{}, err
		}
	}

	cfg.DataDir = getEnv("MCP_MANAGER_DATA_DIR", cfg.DataDir)
	cfg.StateDir = getEnv("MCP_MANAGER_STATE_DIR", cfg.StateDir)
	cfg.Dashboard = getEnvAsBool("MCP_MANAGER_DASHBOARD", cfg.Dashboard)
	cfg.LogLevel = getEnv("MCP_MANAGER_LOG_LEVEL", cfg.LogLevel)

	cfg.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.UseBedrock = getEnvAsBool("MCP_MANAGER_USE_BEDROCK", cfg.UseBedrock)

	cfg.RedisAddr = getEnv("MCP_MANAGER_REDIS_ADDR", cfg.RedisAddr)
	cfg.MongoURI = getEnv("MCP_MANAGER_MONGO_URI", cfg.MongoURI)
	cfg.MongoDatabase = getEnv("MCP_MANAGER_MONGO_DATABASE", cfg.MongoDatabase)

	cfg.CrossRepoConcurrency = getEnvAsInt("MCP_MANAGER_CROSSREPO_CONCURRENCY", cfg.CrossRepoConcurrency)
	cfg.HistoryCapacity = getEnvAsInt("MCP_MANAGER_HISTORY_CAPACITY", cfg.HistoryCapacity)

	cfg.TemporalHostPort = getEnv("MCP_MANAGER_TEMPORAL_HOST_PORT", cfg.TemporalHostPort)
	cfg.TemporalNamespace = getEnv("MCP_MANAGER_TEMPORAL_NAMESPACE", cfg.TemporalNamespace)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// catalogPath joins the data directory with one of the well-known catalog
// files named by spec §6's persistence layout.
func (c Config) catalogPath(rel string) string {
	return filepath.Join(c.DataDir, rel)
}
