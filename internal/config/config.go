package config

import "context"

// Package config provides configuration management for the QoS advisor.
//
// Responsibilities:
//   - Load configuration from YAML files and environment variables
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support configuration reloading via file watching
//   - Manage sensitive data (API keys)
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (QOSADVISOR_* prefix, GROQ_API_KEY)
//   2. YAML config files (default: config.yaml in the working directory)
//   3. Built-in defaults (lowest priority)

// Config struct contains all configuration fields
type Config struct {
	// Backend subprocess configuration
	Backend struct {
		Command        string   // executable launching the metrics backend bridge
		Args           []string // arguments passed to the command
		TimeoutSeconds int      // per-call deadline
		KBResourceURI  string   // resource URI of the QoS knowledge base
	}

	// LLM provider configuration
	LLM struct {
		Provider       string // currently "groq"
		Model          string
		APIKey         string
		Temperature    float64
		MaxTokens      int
		TimeoutSeconds int
	}

	// Stability analysis window
	Stability struct {
		Window     string // range-vector window, e.g. "24h"
		Resolution string // subquery resolution, e.g. "5m"
	}

	// Logging configuration
	Logging struct {
		Level        string
		Format       string
		AppLogPath   string
		AuditLogPath string
	}

	// Self-metrics endpoint
	Metrics struct {
		Enabled       bool
		ListenAddress string
	}
}

// Manager defines the interface for configuration management
type Manager interface {
	// Load loads configuration from all sources
	Load(ctx context.Context) error

	// Get returns the current configuration
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources
	Reload(ctx context.Context) error
}

// NewManager creates a new configuration manager backed by Viper.
func NewManager(configPath string) Manager {
	return &viperConfigManager{
		configPath: configPath,
		watchChan:  make(chan Config, 1),
	}
}
