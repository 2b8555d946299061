package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sre-agent/qos-advisor/internal/backend"
	"github.com/sre-agent/qos-advisor/internal/metrics"
	"github.com/sre-agent/qos-advisor/internal/models"
)

// MetricsEngine takes the instantaneous snapshot: every configured metric
// query runs concurrently, failures stay local to their metric, and the
// results pivot into node rows.
type MetricsEngine struct {
	backend backend.Client
	log     *zap.Logger
}

// NewMetricsEngine creates the stage.
func NewMetricsEngine(client backend.Client, log *zap.Logger) *MetricsEngine {
	return &MetricsEngine{backend: client, log: log}
}

// queryOutcome is one metric's gather result.
type queryOutcome struct {
	metric  string
	samples []backend.Sample
	err     error
}

// Run executes the stage.
func (me *MetricsEngine) Run(ctx context.Context, st *State) error {
	start := time.Now()
	names := st.KB.MetricNames()

	outcomes := make(chan queryOutcome, len(names))
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name, query string) {
			defer wg.Done()
			text, err := me.backend.ExecuteQuery(ctx, query)
			if err != nil {
				outcomes <- queryOutcome{metric: name, err: err}
				return
			}
			samples, err := backend.ParseQueryEnvelope(text)
			outcomes <- queryOutcome{metric: name, samples: samples, err: err}
		}(name, st.KB.Metrics[name].Query)
	}
	wg.Wait()
	close(outcomes)

	snapshot := models.NewSnapshot()
	errCount := 0
	for out := range outcomes {
		if out.err != nil {
			errCount++
			metrics.BackendQueriesTotal.WithLabelValues("execute_query", "error").Inc()
			me.log.Warn("metric query failed",
				zap.String("request_id", st.RequestID),
				zap.String("metric", out.metric),
				zap.Error(out.err))
			continue
		}
		metrics.BackendQueriesTotal.WithLabelValues("execute_query", "ok").Inc()
		for _, s := range out.samples {
			// Push the target filter down to ingest.
			if st.TargetFilter != "" && s.Node != st.TargetFilter {
				continue
			}
			snapshot.Set(s.Node, out.metric, s.Value)
		}
	}

	st.Snapshot = snapshot
	me.log.Info("snapshot taken",
		zap.String("request_id", st.RequestID),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("metrics", len(names)),
		zap.Int("nodes", len(snapshot.Values)),
		zap.Int("query_errors", errCount))

	return nil
}
