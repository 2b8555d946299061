package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sre-agent/qos-advisor/internal/backend"
	"github.com/sre-agent/qos-advisor/internal/metrics"
	"github.com/sre-agent/qos-advisor/internal/qos"
)

// ContextLoader boots a request: probes backend health, enumerates the
// active targets, and loads the QoS knowledge base.
type ContextLoader struct {
	backend       backend.Client
	kbResourceURI string
	log           *zap.Logger
}

// NewContextLoader creates the stage.
func NewContextLoader(client backend.Client, kbResourceURI string, log *zap.Logger) *ContextLoader {
	return &ContextLoader{backend: client, kbResourceURI: kbResourceURI, log: log}
}

// unhealthyMarkers are failure substrings in a health probe reply.
var unhealthyMarkers = []string{"error", "unhealthy", "down"}

// Run executes the stage against the given state.
func (cl *ContextLoader) Run(ctx context.Context, st *State) error {
	health, err := cl.backend.HealthCheck(ctx)
	if err != nil {
		metrics.BackendQueriesTotal.WithLabelValues("health_check", "error").Inc()
		return fmt.Errorf("%w: %v", backend.ErrBackendUnavailable, err)
	}
	metrics.BackendQueriesTotal.WithLabelValues("health_check", "ok").Inc()

	lower := strings.ToLower(health)
	for _, marker := range unhealthyMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("%w: health probe reports %q", backend.ErrBackendUnavailable, health)
		}
	}

	targets, err := cl.backend.GetTargets(ctx)
	if err != nil {
		metrics.BackendQueriesTotal.WithLabelValues("get_targets", "error").Inc()
		return fmt.Errorf("%w: %v", backend.ErrBackendUnavailable, err)
	}
	metrics.BackendQueriesTotal.WithLabelValues("get_targets", "ok").Inc()

	// ParseTargets already dropped anonymous duplicates and sorted.
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.Name())
	}
	st.ActiveTargets = names

	raw, err := cl.backend.ReadResource(ctx, cl.kbResourceURI)
	if err != nil {
		return fmt.Errorf("%w: %v", backend.ErrKBMissing, err)
	}
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: resource %s is empty", backend.ErrKBMissing, cl.kbResourceURI)
	}

	kb, err := qos.Decode([]byte(raw))
	if err != nil {
		return err
	}
	st.KB = kb
	st.SanityOK = len(kb.Profiles) > 0
	if !st.SanityOK {
		cl.log.Warn("knowledge base has no profiles, downstream matching will be vacuous",
			zap.String("request_id", st.RequestID))
	}

	cl.log.Info("context loaded",
		zap.String("request_id", st.RequestID),
		zap.Int("targets", len(st.ActiveTargets)),
		zap.Int("metrics", len(kb.Metrics)),
		zap.Int("profiles", len(kb.Profiles)))

	return nil
}
