package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sre-agent/qos-advisor/internal/llm/types"
	"github.com/sre-agent/qos-advisor/internal/metrics"
)

// Package adapter sits between the pipeline's language stages and the
// concrete LLM provider.
//
// Responsibilities:
//   - Expose a provider-agnostic Generate / GenerateJSON surface
//   - Extract structured JSON from free-form completions: open-weight
//     models often wrap the object in prose or code fences
//   - Record request counts and latency per call kind

// Provider is a chat-completion backend.
type Provider interface {
	Complete(ctx context.Context, messages []types.Message) (string, error)
	Model() string
}

// Adapter wraps a Provider with structured-output handling and metrics.
type Adapter struct {
	provider Provider
}

// New creates an adapter over the given provider.
func New(provider Provider) *Adapter {
	return &Adapter{provider: provider}
}

// Model returns the underlying provider's model identifier.
func (a *Adapter) Model() string { return a.provider.Model() }

// Generate runs one free-form completion.
func (a *Adapter) Generate(ctx context.Context, kind string, messages []types.Message) (string, error) {
	start := time.Now()
	out, err := a.provider.Complete(ctx, messages)
	metrics.LLMRequestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(kind, "error").Inc()
		return "", err
	}
	metrics.LLMRequestsTotal.WithLabelValues(kind, "ok").Inc()
	return out, nil
}

// GenerateJSON runs a completion and unmarshals the outermost JSON object
// found in the reply into out.
func (a *Adapter) GenerateJSON(ctx context.Context, kind string, messages []types.Message, out interface{}) error {
	text, err := a.Generate(ctx, kind, messages)
	if err != nil {
		return err
	}

	payload, err := ExtractJSON(text)
	if err != nil {
		return fmt.Errorf("completion for %s held no JSON object: %w", kind, err)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("completion for %s held malformed JSON: %w", kind, err)
	}
	return nil
}

// ExtractJSON returns the outermost {...} object embedded in text. Models
// frequently precede or follow the object with commentary or markdown fences.
func ExtractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	if start < 0 {
		return "", fmt.Errorf("no opening brace")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced braces")
}
