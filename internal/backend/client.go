package backend

import (
	"context"
	"errors"
)

// Package backend implements the client side of the metrics backend's
// tool-invocation channel. The backend is a subprocess speaking
// newline-delimited JSON-RPC 2.0 over stdio; it exposes the health_check,
// get_targets and execute_query tools plus a readable resource holding the
// QoS knowledge base.
//
// The channel multiplexes concurrent in-flight requests, so the fan-out
// stages (metrics engine, stability analyzer) can share one client.

var (
	// ErrBackendUnavailable marks a failed health probe or a dead channel.
	ErrBackendUnavailable = errors.New("metrics backend unavailable")

	// ErrKBMissing marks an absent or empty knowledge-base resource.
	ErrKBMissing = errors.New("qos knowledge base missing")
)

// Target is one active scrape target reported by the backend.
type Target struct {
	Labels map[string]string `json:"labels"`
}

// Name returns the node identity of the target: the "name" label wins over
// "instance"; targets with neither are anonymous.
func (t Target) Name() string {
	if n := t.Labels["name"]; n != "" {
		return n
	}
	return t.Labels["instance"]
}

// Client is the tool-invocation channel to the metrics backend.
type Client interface {
	// HealthCheck invokes the health_check tool and returns its raw text.
	HealthCheck(ctx context.Context) (string, error)

	// GetTargets invokes the get_targets tool and returns the active targets.
	GetTargets(ctx context.Context) ([]Target, error)

	// ExecuteQuery invokes the execute_query tool and returns the raw JSON
	// result envelope as text.
	ExecuteQuery(ctx context.Context, query string) (string, error)

	// ReadResource fetches a readable resource (e.g. the qos/config KB) by URI.
	ReadResource(ctx context.Context, uri string) (string, error)

	// Close shuts down the channel and releases the subprocess.
	Close() error
}
