package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Backend defaults
	cfg.Backend.Command = "qos-backend"
	cfg.Backend.Args = []string{}
	cfg.Backend.TimeoutSeconds = 30
	cfg.Backend.KBResourceURI = "qos/config"

	// LLM defaults
	cfg.LLM.Provider = "groq"
	cfg.LLM.Model = "llama-3.3-70b-versatile"
	cfg.LLM.Temperature = 0.1
	cfg.LLM.MaxTokens = 2048
	cfg.LLM.TimeoutSeconds = 60

	// Stability defaults
	cfg.Stability.Window = "24h"
	cfg.Stability.Resolution = "5m"

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.AppLogPath = "logs/app.log"
	cfg.Logging.AuditLogPath = "logs/audit.log"

	// Metrics defaults
	cfg.Metrics.Enabled = false
	cfg.Metrics.ListenAddress = ":9464"

	return cfg
}
