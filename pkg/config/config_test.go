package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	os.Unsetenv("PROMETHEUS_URL")
	os.Unsetenv("COST_AGENT_PROMETHEUS_URL")
	os.Unsetenv("DRY_RUN")

	cfg := NewConfig()

	if cfg.PrometheusURL != "http://localhost:9090" {
		t.Errorf("Expected default Prometheus URL, got %s", cfg.PrometheusURL)
	}
	if cfg.KubecostURL != "http://localhost:9000" {
		t.Errorf("Expected default Kubecost URL, got %s", cfg.KubecostURL)
	}
	if cfg.PrometheusTimeout != 30*time.Second {
		t.Errorf("Expected timeout 30s, got %v", cfg.PrometheusTimeout)
	}
	if !cfg.DryRun {
		t.Error("Expected dry run to default to true")
	}
	if cfg.MinConfidence != 0.7 {
		t.Errorf("Expected min confidence 0.7, got %.2f", cfg.MinConfidence)
	}
	if cfg.AutoExecuteConfidence != 0.9 {
		t.Errorf("Expected auto-execute confidence 0.9, got %.2f", cfg.AutoExecuteConfidence)
	}
	if cfg.ActivityWindow != 20 {
		t.Errorf("Expected activity window 20, got %d", cfg.ActivityWindow)
	}
	if len(cfg.CriticalNamespaces) != 3 {
		t.Errorf("Expected 3 critical namespaces, got %v", cfg.CriticalNamespaces)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate, got %v", err)
	}
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("PROMETHEUS_URL", "http://prometheus:9090")
	t.Setenv("COST_AGENT_KUBECOST_URL", "http://kubecost:9090")
	t.Setenv("GROQ_API_KEY", "secret")
	t.Setenv("DRY_RUN", "false")
	t.Setenv("COST_AGENT_LOG_LEVEL", "debug")

	cfg := NewConfig()

	if cfg.PrometheusURL != "http://prometheus:9090" {
		t.Errorf("Expected custom Prometheus URL, got %s", cfg.PrometheusURL)
	}
	if cfg.KubecostURL != "http://kubecost:9090" {
		t.Errorf("Expected prefixed Kubecost URL, got %s", cfg.KubecostURL)
	}
	if cfg.LLMAPIKey != "secret" {
		t.Errorf("Expected API key from GROQ_API_KEY, got %q", cfg.LLMAPIKey)
	}
	if cfg.DryRun {
		t.Error("Expected dry run disabled from env")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.LogLevel)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	content := `
agent:
  dry_run: false
  min_confidence: 0.8
  critical_namespaces: [kube-system, monitoring]
storage:
  enabled: true
  driver: sqlite
  url: "file:agent.db"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DryRun {
		t.Error("Expected dry run false from file")
	}
	if cfg.MinConfidence != 0.8 {
		t.Errorf("Expected min confidence 0.8, got %.2f", cfg.MinConfidence)
	}
	if len(cfg.CriticalNamespaces) != 2 || cfg.CriticalNamespaces[1] != "monitoring" {
		t.Errorf("Unexpected critical namespaces %v", cfg.CriticalNamespaces)
	}
	if !cfg.StorageEnabled || cfg.StorageDriver != "sqlite" {
		t.Errorf("Expected sqlite storage enabled, got %v/%s", cfg.StorageEnabled, cfg.StorageDriver)
	}
	// untouched keys keep defaults
	if cfg.ActivityWindow != 20 {
		t.Errorf("Expected default activity window, got %d", cfg.ActivityWindow)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Missing file should not fail, got %v", err)
	}
	if cfg.ListenAddress != ":8000" {
		t.Errorf("Expected default listen address, got %s", cfg.ListenAddress)
	}
}

func TestValidation(t *testing.T) {
	cases := map[string]func(c *Config){
		"storage without url": func(c *Config) { c.StorageEnabled = true; c.DatabaseURL = "" },
		"unknown driver":      func(c *Config) { c.StorageDriver = "mysql" },
		"confidence > 1":      func(c *Config) { c.MinConfidence = 1.5 },
		"auto below min":      func(c *Config) { c.AutoExecuteConfidence = 0.5 },
		"zero ready nodes":    func(c *Config) { c.MinReadyNodes = 0 },
		"loosened confidence": func(c *Config) { c.MinConfidence = 0.1 },
		"loosened auto":       func(c *Config) { c.AutoExecuteConfidence = 0.85 },
		"two ready nodes":     func(c *Config) { c.MinReadyNodes = 2 },
		"zero window":         func(c *Config) { c.ActivityWindow = 0 },
		"bad output":          func(c *Config) { c.OutputFormat = "xml" },
	}

	for name, mutate := range cases {
		cfg := defaults()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestValidationAllowsTighterThresholds(t *testing.T) {
	cfg := defaults()
	cfg.MinConfidence = 0.8
	cfg.AutoExecuteConfidence = 0.95
	cfg.MinReadyNodes = 5

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected tighter thresholds to validate, got %v", err)
	}
}

func TestLoadRejectsLoosenedThresholds(t *testing.T) {
	t.Setenv("COST_AGENT_AGENT_MIN_CONFIDENCE", "0.1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MinConfidence != 0.1 {
		t.Fatalf("Expected min confidence 0.1 from env, got %.2f", cfg.MinConfidence)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for min confidence below 0.7")
	}
}
