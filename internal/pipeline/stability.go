package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sre-agent/qos-advisor/internal/backend"
	"github.com/sre-agent/qos-advisor/internal/metrics"
	"github.com/sre-agent/qos-advisor/internal/models"
)

// Classification constants: z-score gate and coefficient-of-variation gate.
const (
	zThreshold  = 2.0
	cvThreshold = 0.3
)

// zInfinite stands in for delta/0 when the history is perfectly flat but the
// current value moved.
const zInfinite = 999.9

// Unit-level physical threshold fallbacks.
var unitFallbackDelta = map[models.Unit]float64{
	models.UnitPercentage: 5.0,
	models.UnitBytes:      200 * 1024 * 1024,
	models.UnitRate:       5.0,
	models.UnitRaw:        1.0,
}

// StabilityAnalyzer compares each candidate's current readings against its
// own rolling-window history and classifies every (node, metric) cell.
type StabilityAnalyzer struct {
	backend backend.Client
	log     *zap.Logger

	// rangeMu guards the window knobs, which a config reload may rebind
	// between requests.
	rangeMu    sync.RWMutex
	window     string
	resolution string
}

// NewStabilityAnalyzer creates the stage.
func NewStabilityAnalyzer(client backend.Client, window, resolution string, log *zap.Logger) *StabilityAnalyzer {
	return &StabilityAnalyzer{backend: client, window: window, resolution: resolution, log: log}
}

// SetRange rebinds the rolling-window knobs. Safe to call between requests.
func (sa *StabilityAnalyzer) SetRange(window, resolution string) {
	sa.rangeMu.Lock()
	sa.window = window
	sa.resolution = resolution
	sa.rangeMu.Unlock()
}

// statOutcome is one historical query's gather result.
type statOutcome struct {
	metric  string
	kind    string // "avg" or "std"
	samples []backend.Sample
	err     error
}

// Run executes the stage: 2 queries per weighted metric, all concurrent.
// The metric set is the raw union of scoring weights across the target
// profiles, so an empty target set (or an empty candidate set) issues no
// historical queries at all.
func (sa *StabilityAnalyzer) Run(ctx context.Context, st *State) error {
	names := weightedMetricUnion(st.TargetProfiles, st.KB)

	if len(st.FinalCandidates) == 0 || len(names) == 0 {
		st.Stability = make(models.StabilityReport)
		st.History = &models.HistoricalStats{
			Avg: map[string]map[string]float64{},
			Std: map[string]map[string]float64{},
		}
		sa.log.Info("stability analysis skipped",
			zap.String("request_id", st.RequestID),
			zap.Int("metrics", len(names)),
			zap.Int("candidates", len(st.FinalCandidates)))
		return nil
	}

	sa.rangeMu.RLock()
	window, resolution := sa.window, sa.resolution
	sa.rangeMu.RUnlock()

	history := &models.HistoricalStats{
		Avg: make(map[string]map[string]float64, len(names)),
		Std: make(map[string]map[string]float64, len(names)),
	}

	outcomes := make(chan statOutcome, 2*len(names))
	var wg sync.WaitGroup
	for _, name := range names {
		base := st.KB.Metrics[name].Query
		for kind, fn := range map[string]string{"avg": "avg_over_time", "std": "stddev_over_time"} {
			wg.Add(1)
			go func(metric, kind, query string) {
				defer wg.Done()
				text, err := sa.backend.ExecuteQuery(ctx, query)
				if err != nil {
					outcomes <- statOutcome{metric: metric, kind: kind, err: err}
					return
				}
				samples, err := backend.ParseQueryEnvelope(text)
				outcomes <- statOutcome{metric: metric, kind: kind, samples: samples, err: err}
			}(name, kind, fmt.Sprintf("%s((%s)[%s:%s])", fn, base, window, resolution))
		}
	}
	wg.Wait()
	close(outcomes)

	errCount := 0
	for out := range outcomes {
		if out.err != nil {
			errCount++
			metrics.BackendQueriesTotal.WithLabelValues("execute_query", "error").Inc()
			sa.log.Warn("historical query failed",
				zap.String("request_id", st.RequestID),
				zap.String("metric", out.metric),
				zap.String("kind", out.kind),
				zap.Error(out.err))
			continue
		}
		metrics.BackendQueriesTotal.WithLabelValues("execute_query", "ok").Inc()
		dest := history.Avg
		if out.kind == "std" {
			dest = history.Std
		}
		row, ok := dest[out.metric]
		if !ok {
			row = make(map[string]float64, len(out.samples))
			dest[out.metric] = row
		}
		for _, s := range out.samples {
			row[s.Node] = s.Value
		}
	}

	report := make(models.StabilityReport, len(st.FinalCandidates))
	for _, node := range st.FinalCandidates {
		for _, name := range names {
			delta := lookupDelta(name, st.TargetProfiles, st.KB)
			x, haveX := st.Snapshot.Value(node, name)
			mu, haveMu := lookup(history.Avg, name, node)
			sigma, haveSigma := lookup(history.Std, name, node)
			report.Set(node, name, Classify(x, mu, sigma, delta, haveX && haveMu && haveSigma))
		}
	}

	st.Stability = report
	st.History = history
	sa.log.Info("stability analyzed",
		zap.String("request_id", st.RequestID),
		zap.Int("metrics", len(names)),
		zap.Int("candidates", len(st.FinalCandidates)),
		zap.Int("query_errors", errCount))

	return nil
}

// weightedMetricUnion collects every metric named in the scoring weights of
// the target profiles, restricted to metrics the catalog defines, sorted.
func weightedMetricUnion(targetProfiles []string, kb *models.KnowledgeBase) []string {
	seen := make(map[string]bool)
	for _, name := range targetProfiles {
		profile, ok := kb.Profiles[name]
		if !ok {
			continue
		}
		for metric := range profile.ScoringWeights {
			if _, ok := kb.Metrics[metric]; ok {
				seen[metric] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(m map[string]map[string]float64, metric, node string) (float64, bool) {
	row, ok := m[metric]
	if !ok {
		return 0, false
	}
	v, ok := row[node]
	return v, ok
}

// lookupDelta resolves the physical threshold cascade for one metric:
// strictest profile-level override, else metric-level default, else the
// unit fallback.
func lookupDelta(metric string, targetProfiles []string, kb *models.KnowledgeBase) float64 {
	var profileDelta *float64
	for _, name := range targetProfiles {
		profile, ok := kb.Profiles[name]
		if !ok {
			continue
		}
		sw, ok := profile.ScoringWeights[metric]
		if !ok || sw.StabilityThreshold == nil {
			continue
		}
		if profileDelta == nil || *sw.StabilityThreshold < *profileDelta {
			profileDelta = sw.StabilityThreshold
		}
	}
	if profileDelta != nil {
		return *profileDelta
	}

	if def, ok := kb.Metrics[metric]; ok {
		if def.StabilityThreshold != nil {
			return *def.StabilityThreshold
		}
		if fallback, ok := unitFallbackDelta[def.Unit]; ok {
			return fallback
		}
	}
	return unitFallbackDelta[models.UnitRaw]
}

// Classify scores one (node, metric) cell. complete is false when any of
// the current value, historical mean, or historical stdev is missing.
func Classify(x, mu, sigma, delta float64, complete bool) models.StabilityCell {
	if !complete {
		return models.StabilityCell{
			Status: models.StatusUnknown,
			Reason: "insufficient history for this metric",
		}
	}

	d := math.Abs(x - mu)
	var z float64
	switch {
	case sigma == 0 && d == 0:
		z = 0
	case sigma == 0:
		z = zInfinite
	default:
		z = d / sigma
	}

	var cv float64
	if mu >= delta && mu > 0 {
		cv = sigma / mu
	}

	cell := models.StabilityCell{ZScore: z, CV: cv}
	switch {
	case cv > cvThreshold:
		cell.Status = models.StatusChaotic
		cell.Reason = fmt.Sprintf("history is erratic (cv=%.2f over threshold %.2f)", cv, cvThreshold)
	case z > zThreshold && d > delta:
		cell.Status = models.StatusSpike
		cell.Reason = fmt.Sprintf("current value deviates from its recent norm (z=%.1f, delta=%.2f)", z, d)
	case z > zThreshold:
		cell.Status = models.StatusFalseAlarm
		cell.Reason = fmt.Sprintf("statistically unusual but physically negligible (z=%.1f, delta=%.2f)", z, d)
	default:
		cell.Status = models.StatusStable
		cell.Reason = "within its historical norm"
	}
	return cell
}
