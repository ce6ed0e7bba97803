package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL",
		"ANTHROPIC_API_KEY", "ANTHROPIC_MODEL",
		"CUSTOM_API_KEY", "CUSTOM_BASE_URL", "CUSTOM_MODEL",
		"WORKSPACE_ROOT", "NEXAR_ADDR", "NEXAR_LOG_LEVEL",
		"NEXAR_LOG_FORMAT", "NEXAR_TOOL_POOL", "NEXAR_RUN_TTL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearProviderEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Engine.ToolPool != 16 {
		t.Errorf("ToolPool = %d", cfg.Engine.ToolPool)
	}
	if cfg.Engine.RunTTL != 30*time.Minute {
		t.Errorf("RunTTL = %v", cfg.Engine.RunTTL)
	}
	if cfg.Engine.ProviderTimeout != 60*time.Second {
		t.Errorf("ProviderTimeout = %v", cfg.Engine.ProviderTimeout)
	}
	if len(cfg.Providers) != 0 {
		t.Errorf("expected no providers, got %v", cfg.Providers)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("NEXAR_ADDR", ":9999")
	t.Setenv("NEXAR_LOG_LEVEL", "debug")
	t.Setenv("WORKSPACE_ROOT", "/tmp/ws")
	t.Setenv("NEXAR_TOOL_POOL", "4")
	t.Setenv("NEXAR_RUN_TTL", "5m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}
	if cfg.Workspace != "/tmp/ws" {
		t.Errorf("Workspace = %q", cfg.Workspace)
	}
	if cfg.Engine.ToolPool != 4 {
		t.Errorf("ToolPool = %d", cfg.Engine.ToolPool)
	}
	if cfg.Engine.RunTTL != 5*time.Minute {
		t.Errorf("RunTTL = %v", cfg.Engine.RunTTL)
	}
}

func TestEnvProviders(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("ANTHROPIC_MODEL", "claude-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	openai, ok := cfg.Provider("openai")
	if !ok {
		t.Fatal("openai provider missing")
	}
	if openai.Model != DefaultOpenAIModel {
		t.Errorf("openai model = %q", openai.Model)
	}
	anthropic, ok := cfg.Provider("anthropic")
	if !ok {
		t.Fatal("anthropic provider missing")
	}
	if anthropic.Model != "claude-test" {
		t.Errorf("anthropic model = %q", anthropic.Model)
	}
	if _, ok := cfg.Provider("custom"); ok {
		t.Error("custom provider should be absent without CUSTOM_API_KEY")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	clearProviderEnv(t)

	path := filepath.Join(t.TempDir(), "nexar.yaml")
	data := `
server:
  addr: ":7070"
engine:
  tool_pool: 8
workspace: /srv/code
providers:
  - id: local
    name: Local
    family: custom
    api_key: key
    base_url: http://localhost:1234/v1
    model: llama
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Engine.ToolPool != 8 {
		t.Errorf("ToolPool = %d", cfg.Engine.ToolPool)
	}
	if cfg.Workspace != "/srv/code" {
		t.Errorf("Workspace = %q", cfg.Workspace)
	}
	p, ok := cfg.Provider("local")
	if !ok || p.Family != FamilyCustom || p.BaseURL != "http://localhost:1234/v1" {
		t.Errorf("local provider = %+v, %v", p, ok)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
