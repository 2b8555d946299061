package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate backend configuration
	if strings.TrimSpace(c.Backend.Command) == "" {
		errs = append(errs, &ValidationError{
			Field:   "backend.command",
			Message: "backend command is required",
		})
	}

	if c.Backend.TimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "backend.timeout_seconds",
			Message: fmt.Sprintf("timeout must be at least 1 second, got %d", c.Backend.TimeoutSeconds),
		})
	}

	if strings.TrimSpace(c.Backend.KBResourceURI) == "" {
		errs = append(errs, &ValidationError{
			Field:   "backend.kb_resource_uri",
			Message: "knowledge base resource URI is required",
		})
	}

	// Validate LLM configuration
	if c.LLM.Provider != "groq" {
		errs = append(errs, &ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("invalid provider '%s', must be: groq", c.LLM.Provider),
		})
	}

	if strings.TrimSpace(c.LLM.Model) == "" {
		errs = append(errs, &ValidationError{
			Field:   "llm.model",
			Message: "model is required",
		})
	}

	// A missing API key is not fatal: the advisor degrades to its
	// deterministic outputs, so it is checked at call time instead.

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, &ValidationError{
			Field:   "llm.temperature",
			Message: fmt.Sprintf("temperature must be between 0 and 2, got %.2f", c.LLM.Temperature),
		})
	}

	if c.LLM.MaxTokens < 1 {
		errs = append(errs, &ValidationError{
			Field:   "llm.max_tokens",
			Message: fmt.Sprintf("max_tokens must be at least 1, got %d", c.LLM.MaxTokens),
		})
	}

	if c.LLM.TimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "llm.timeout_seconds",
			Message: fmt.Sprintf("timeout must be at least 1 second, got %d", c.LLM.TimeoutSeconds),
		})
	}

	// Validate stability window configuration
	if _, err := time.ParseDuration(c.Stability.Window); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "stability.window",
			Message: fmt.Sprintf("invalid duration '%s': %v", c.Stability.Window, err),
		})
	}

	if _, err := time.ParseDuration(c.Stability.Resolution); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "stability.resolution",
			Message: fmt.Sprintf("invalid duration '%s': %v", c.Stability.Resolution, err),
		})
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, text", c.Logging.Format),
		})
	}

	// Validate metrics configuration
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.ListenAddress) == "" {
		errs = append(errs, &ValidationError{
			Field:   "metrics.listen_address",
			Message: "listen_address is required when metrics are enabled",
		})
	}

	return errs
}
