package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default models used when the environment names a provider but not a model.
const (
	DefaultOpenAIModel    = "gpt-4o"
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
)

// ProviderFamily selects which vendor adapter serves a provider entry.
type ProviderFamily string

const (
	FamilyOpenAI    ProviderFamily = "openai"
	FamilyAnthropic ProviderFamily = "anthropic"
	FamilyCustom    ProviderFamily = "custom"
)

// ProviderConfig describes one configured LLM provider.
type ProviderConfig struct {
	ID      string         `yaml:"id"`
	Name    string         `yaml:"name"`
	Family  ProviderFamily `yaml:"family"`
	APIKey  string         `yaml:"api_key"`
	Model   string         `yaml:"model"`
	BaseURL string         `yaml:"base_url"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EngineConfig holds orchestration knobs.
type EngineConfig struct {
	// ToolPool bounds concurrent tool executions across all runs.
	ToolPool int `yaml:"tool_pool"`

	// RunTTL is how long terminal runs are retained before the sweeper
	// evicts them.
	RunTTL time.Duration `yaml:"run_ttl"`

	// ProviderTimeout bounds a single LLM call.
	ProviderTimeout time.Duration `yaml:"provider_timeout"`

	// MaxRetries is the default per-action retry ceiling for new runs.
	MaxRetries int `yaml:"max_retries"`
}

// Config is the full engine configuration. Values are resolved in order:
// built-in defaults, then the optional YAML file, then environment.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Log       LogConfig        `yaml:"log"`
	Engine    EngineConfig     `yaml:"engine"`
	Workspace string           `yaml:"workspace"`
	Providers []ProviderConfig `yaml:"providers"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8000"},
		Log:    LogConfig{Level: "info", Format: "json"},
		Engine: EngineConfig{
			ToolPool:        16,
			RunTTL:          30 * time.Minute,
			ProviderTimeout: 60 * time.Second,
			MaxRetries:      2,
		},
		Workspace: "./workspace",
	}
}

// Load resolves the configuration. path may be empty, in which case only
// defaults and environment are consulted.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.mergeEnvProviders()

	if cfg.Engine.ToolPool <= 0 {
		cfg.Engine.ToolPool = 16
	}
	if cfg.Engine.RunTTL <= 0 {
		cfg.Engine.RunTTL = 30 * time.Minute
	}
	if cfg.Engine.ProviderTimeout <= 0 {
		cfg.Engine.ProviderTimeout = 60 * time.Second
	}
	if cfg.Engine.MaxRetries <= 0 {
		cfg.Engine.MaxRetries = 2
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("NEXAR_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("NEXAR_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("NEXAR_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("WORKSPACE_ROOT"); v != "" {
		c.Workspace = v
	}
	if v := os.Getenv("NEXAR_TOOL_POOL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Engine.ToolPool = n
		}
	}
	if v := os.Getenv("NEXAR_RUN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Engine.RunTTL = d
		}
	}
}

// mergeEnvProviders appends providers declared through environment
// variables. A provider is present iff its API key variable is set;
// absent variables simply omit that provider.
func (c *Config) mergeEnvProviders() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && !c.hasProvider("openai") {
		c.Providers = append(c.Providers, ProviderConfig{
			ID:      "openai",
			Name:    "OpenAI",
			Family:  FamilyOpenAI,
			APIKey:  key,
			Model:   envOr("OPENAI_MODEL", DefaultOpenAIModel),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		})
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && !c.hasProvider("anthropic") {
		c.Providers = append(c.Providers, ProviderConfig{
			ID:     "anthropic",
			Name:   "Anthropic",
			Family: FamilyAnthropic,
			APIKey: key,
			Model:  envOr("ANTHROPIC_MODEL", DefaultAnthropicModel),
		})
	}
	if key := os.Getenv("CUSTOM_API_KEY"); key != "" && !c.hasProvider("custom") {
		c.Providers = append(c.Providers, ProviderConfig{
			ID:      "custom",
			Name:    "Custom",
			Family:  FamilyCustom,
			APIKey:  key,
			Model:   os.Getenv("CUSTOM_MODEL"),
			BaseURL: os.Getenv("CUSTOM_BASE_URL"),
		})
	}
}

func (c *Config) hasProvider(id string) bool {
	for _, p := range c.Providers {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Provider returns the provider entry with the given id.
func (c *Config) Provider(id string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
