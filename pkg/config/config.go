package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Server
	ListenAddress  string
	AllowedOrigins []string

	// Kubernetes
	Kubeconfig string

	// Prometheus
	PrometheusURL     string
	PrometheusTimeout time.Duration

	// Kubecost
	KubecostURL string

	// LLM summarization (OpenAI-compatible endpoint)
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	// Agent
	DryRun                bool
	CriticalNamespaces    []string
	MinConfidence         float64
	AutoExecuteConfidence float64
	MinReadyNodes         int
	ActivityWindow        int
	EnableRightsizer      bool

	// Pricing
	PricingProvider string
	PricingRegion   string

	// Storage
	StorageEnabled bool
	StorageDriver  string // postgres, sqlite
	DatabaseURL    string

	// Logging
	LogLevel  string
	LogFormat string // json, console
	LogFile   string

	// Output
	OutputFormat string // text, json, yaml
}

// envPrefix namespaces environment overrides, e.g. COST_AGENT_LOG_LEVEL
const envPrefix = "COST_AGENT"

// legacyEnv maps bare variable names still honored for compatibility to config keys
var legacyEnv = map[string]string{
	"prometheus.url":   "PROMETHEUS_URL",
	"kubecost.url":     "KUBECOST_URL",
	"llm.api_key":      "GROQ_API_KEY",
	"llm.model":        "GROQ_MODEL_NAME",
	"storage.url":      "DATABASE_URL",
	"log.level":        "LOG_LEVEL",
	"kube.kubeconfig":  "KUBECONFIG",
	"agent.dry_run":    "DRY_RUN",
	"storage.enabled":  "STORAGE_ENABLED",
	"server.listen":    "LISTEN_ADDRESS",
	"pricing.provider": "PRICING_PROVIDER",
}

// NewConfig creates a new configuration with defaults and environment overrides
func NewConfig() *Config {
	cfg, err := Load("")
	if err != nil {
		// only reachable through malformed env values; fall back to plain defaults
		return defaults()
	}
	return cfg
}

// Load reads defaults, then the optional YAML file at path, then environment variables
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	return &Config{
		ListenAddress:         v.GetString("server.listen"),
		AllowedOrigins:        v.GetStringSlice("server.allowed_origins"),
		Kubeconfig:            v.GetString("kube.kubeconfig"),
		PrometheusURL:         v.GetString("prometheus.url"),
		PrometheusTimeout:     v.GetDuration("prometheus.timeout"),
		KubecostURL:           v.GetString("kubecost.url"),
		LLMBaseURL:            v.GetString("llm.base_url"),
		LLMAPIKey:             v.GetString("llm.api_key"),
		LLMModel:              v.GetString("llm.model"),
		DryRun:                v.GetBool("agent.dry_run"),
		CriticalNamespaces:    v.GetStringSlice("agent.critical_namespaces"),
		MinConfidence:         v.GetFloat64("agent.min_confidence"),
		AutoExecuteConfidence: v.GetFloat64("agent.auto_execute_confidence"),
		MinReadyNodes:         v.GetInt("agent.min_ready_nodes"),
		ActivityWindow:        v.GetInt("agent.activity_window"),
		EnableRightsizer:      v.GetBool("agent.enable_rightsizer"),
		PricingProvider:       v.GetString("pricing.provider"),
		PricingRegion:         v.GetString("pricing.region"),
		StorageEnabled:        v.GetBool("storage.enabled"),
		StorageDriver:         v.GetString("storage.driver"),
		DatabaseURL:           v.GetString("storage.url"),
		LogLevel:              v.GetString("log.level"),
		LogFormat:             v.GetString("log.format"),
		LogFile:               v.GetString("log.file"),
		OutputFormat:          v.GetString("output.format"),
	}, nil
}

func defaults() *Config {
	return &Config{
		ListenAddress:         ":8000",
		AllowedOrigins:        []string{"*"},
		PrometheusURL:         "http://localhost:9090",
		PrometheusTimeout:     30 * time.Second,
		KubecostURL:           "http://localhost:9000",
		LLMBaseURL:            "https://api.groq.com/openai/v1",
		LLMModel:              "openai/gpt-oss-20b",
		DryRun:                true,
		CriticalNamespaces:    []string{"kube-system", "kube-public", "opencost"},
		MinConfidence:         0.7,
		AutoExecuteConfidence: 0.9,
		MinReadyNodes:         3,
		ActivityWindow:        20,
		PricingProvider:       "",
		StorageEnabled:        false,
		StorageDriver:         "postgres",
		DatabaseURL:           "host=localhost port=5432 user=costuser password=devpassword dbname=costoptimizer sslmode=disable",
		LogLevel:              "info",
		LogFormat:             "json",
		OutputFormat:          "text",
	}
}

func setDefaults(v *viper.Viper) {
	d := defaults()
	v.SetDefault("server.listen", d.ListenAddress)
	v.SetDefault("server.allowed_origins", d.AllowedOrigins)
	v.SetDefault("kube.kubeconfig", d.Kubeconfig)
	v.SetDefault("prometheus.url", d.PrometheusURL)
	v.SetDefault("prometheus.timeout", d.PrometheusTimeout)
	v.SetDefault("kubecost.url", d.KubecostURL)
	v.SetDefault("llm.base_url", d.LLMBaseURL)
	v.SetDefault("llm.api_key", d.LLMAPIKey)
	v.SetDefault("llm.model", d.LLMModel)
	v.SetDefault("agent.dry_run", d.DryRun)
	v.SetDefault("agent.critical_namespaces", d.CriticalNamespaces)
	v.SetDefault("agent.min_confidence", d.MinConfidence)
	v.SetDefault("agent.auto_execute_confidence", d.AutoExecuteConfidence)
	v.SetDefault("agent.min_ready_nodes", d.MinReadyNodes)
	v.SetDefault("agent.activity_window", d.ActivityWindow)
	v.SetDefault("agent.enable_rightsizer", d.EnableRightsizer)
	v.SetDefault("pricing.provider", d.PricingProvider)
	v.SetDefault("pricing.region", d.PricingRegion)
	v.SetDefault("storage.enabled", d.StorageEnabled)
	v.SetDefault("storage.driver", d.StorageDriver)
	v.SetDefault("storage.url", d.DatabaseURL)
	v.SetDefault("log.level", d.LogLevel)
	v.SetDefault("log.format", d.LogFormat)
	v.SetDefault("log.file", d.LogFile)
	v.SetDefault("output.format", d.OutputFormat)
}

// Safety thresholds can be tightened but never set below these
const (
	floorMinConfidence         = 0.7
	floorAutoExecuteConfidence = 0.9
	floorMinReadyNodes         = 3
)

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.StorageEnabled && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when storage is enabled")
	}
	if c.StorageDriver != "postgres" && c.StorageDriver != "sqlite" {
		return fmt.Errorf("storage driver must be postgres or sqlite, got %q", c.StorageDriver)
	}
	if c.MinConfidence < floorMinConfidence || c.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be within [%.2f, 1], got %.2f", floorMinConfidence, c.MinConfidence)
	}
	if c.AutoExecuteConfidence < floorAutoExecuteConfidence || c.AutoExecuteConfidence > 1 {
		return fmt.Errorf("auto-execute confidence must be within [%.2f, 1], got %.2f", floorAutoExecuteConfidence, c.AutoExecuteConfidence)
	}
	if c.MinReadyNodes < floorMinReadyNodes {
		return fmt.Errorf("min ready nodes must be >= %d, got %d", floorMinReadyNodes, c.MinReadyNodes)
	}
	if c.ActivityWindow < 1 {
		return fmt.Errorf("activity window must be >= 1")
	}
	switch c.OutputFormat {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("output format must be text, json or yaml, got %q", c.OutputFormat)
	}
	return nil
}
