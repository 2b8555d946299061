package pipeline

// Package pipeline wires the advisor's staged dataflow: context loading,
// intent classification, the metrics snapshot, profile fan-out, and then
// either the status reporter or the allocation chain (constraints, filter,
// stability, advisor). Stages run strictly in sequence; concurrency lives
// inside single stages.

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sre-agent/qos-advisor/internal/audit"
	"github.com/sre-agent/qos-advisor/internal/backend"
	"github.com/sre-agent/qos-advisor/internal/llm/adapter"
	"github.com/sre-agent/qos-advisor/internal/llm/types"
	"github.com/sre-agent/qos-advisor/internal/metrics"
	"github.com/sre-agent/qos-advisor/internal/models"
	"github.com/sre-agent/qos-advisor/internal/render"
)

// Outcome is what one request produced: the intent taken and the final text.
type Outcome struct {
	Intent models.Intent
	Advice *Advice // allocation path
	Report string  // status path
}

// Pipeline owns the stages and runs one request at a time.
type Pipeline struct {
	loader     *ContextLoader
	classifier *IntentClassifier
	engine     *MetricsEngine
	profiler   *TaskProfiler
	evaluator  *ProfileEvaluator
	extractor  *ConstraintExtractor
	filter     *CandidateFilter
	stability  *StabilityAnalyzer
	advisor    *AllocationAdvisor
	reporter   *Reporter

	console *render.Console
	trail   audit.Logger
	log     *zap.Logger
}

// Options carries the pipeline's external dependencies and knobs.
type Options struct {
	Backend             backend.Client
	LLM                 *adapter.Adapter
	Console             *render.Console
	Audit               audit.Logger
	Logger              *zap.Logger
	KBResourceURI       string
	StabilityWindow     string
	StabilityResolution string
}

// New assembles the pipeline.
func New(opts Options) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		loader:     NewContextLoader(opts.Backend, opts.KBResourceURI, log),
		classifier: NewIntentClassifier(opts.LLM, log),
		engine:     NewMetricsEngine(opts.Backend, log),
		profiler:   NewTaskProfiler(opts.LLM, log),
		evaluator:  NewProfileEvaluator(log),
		extractor:  NewConstraintExtractor(opts.LLM, log),
		filter:     NewCandidateFilter(log),
		stability:  NewStabilityAnalyzer(opts.Backend, opts.StabilityWindow, opts.StabilityResolution, log),
		advisor:    NewAllocationAdvisor(opts.LLM, log),
		reporter:   NewReporter(opts.LLM, log),
		console:    opts.Console,
		trail:      opts.Audit,
		log:        log,
	}
}

// SetStabilityRange rebinds the historical window knobs, typically after a
// configuration reload. The next request picks them up.
func (p *Pipeline) SetStabilityRange(window, resolution string) {
	p.stability.SetRange(window, resolution)
}

// stage pairs a name with its runner for uniform instrumentation.
type stage struct {
	name string
	run  func(context.Context, *State) error
}

// Run processes one request end to end.
func (p *Pipeline) Run(ctx context.Context, messages []types.Message) (*Outcome, error) {
	st := NewState(messages)
	ctx = audit.WithCorrelationID(ctx, st.RequestID)
	start := time.Now()

	if p.trail != nil {
		_ = p.trail.LogRequestStarted(ctx, st.RequestID, st.LastUserMessage())
	}

	// Shared prefix: boot, classify, snapshot, evaluate.
	prefix := []stage{
		{"context_loader", p.loader.Run},
		{"intent_classifier", p.classifier.Run},
		{"metrics_engine", p.engine.Run},
	}
	for _, s := range prefix {
		if err := p.runStage(ctx, st, s); err != nil {
			p.failRequest(ctx, st, err)
			return nil, err
		}
	}

	if st.Intent == models.IntentAllocation {
		if err := p.runStage(ctx, st, stage{"task_profiler", p.profiler.Run}); err != nil {
			p.failRequest(ctx, st, err)
			return nil, err
		}
	}

	if err := p.runStage(ctx, st, stage{"profile_evaluator", p.evaluator.Run}); err != nil {
		p.failRequest(ctx, st, err)
		return nil, err
	}

	// Router: status and allocation take different tails.
	var tail []stage
	if st.Intent == models.IntentAllocation {
		tail = []stage{
			{"constraint_extractor", p.extractor.Run},
			{"candidate_filter", p.filter.Run},
			{"stability_analyzer", p.stability.Run},
			{"allocation_advisor", p.advisor.Run},
		}
	} else {
		tail = []stage{
			{"reporter", p.reporter.Run},
		}
	}
	for _, s := range tail {
		if err := p.runStage(ctx, st, s); err != nil {
			p.failRequest(ctx, st, err)
			return nil, err
		}
	}

	outcome := &Outcome{Intent: st.Intent}
	if st.Intent == models.IntentAllocation {
		advice := st.Advice
		outcome.Advice = &advice
		if p.trail != nil {
			_ = p.trail.LogAdviceEmitted(ctx, st.RequestID, string(advice.Strategy), advice.Winner)
		}
	} else {
		outcome.Report = st.Report
		if p.trail != nil {
			_ = p.trail.LogReportEmitted(ctx, st.RequestID, len(st.Snapshot.Values))
		}
	}

	metrics.RequestsTotal.WithLabelValues(string(st.Intent), "ok").Inc()
	if p.trail != nil {
		_ = p.trail.LogRequestCompleted(ctx, st.RequestID, string(st.Intent), time.Since(start))
	}
	return outcome, nil
}

// runStage times one stage, reports progress, and records its outcome.
func (p *Pipeline) runStage(ctx context.Context, st *State, s stage) error {
	if p.console != nil {
		p.console.Info("▸ %s", s.name)
	}
	start := time.Now()
	err := s.run(ctx, st)
	elapsed := time.Since(start)
	metrics.StageDuration.WithLabelValues(s.name).Observe(elapsed.Seconds())

	if err != nil {
		metrics.StageFailures.WithLabelValues(s.name).Inc()
		if p.trail != nil {
			_ = p.trail.LogStageFailed(ctx, st.RequestID, s.name, err)
		}
		p.log.Error("stage failed",
			zap.String("request_id", st.RequestID),
			zap.String("stage", s.name),
			zap.Error(err))
		return err
	}

	if p.trail != nil {
		_ = p.trail.LogStageCompleted(ctx, st.RequestID, s.name, elapsed, p.stageDecisions(st, s.name))
	}
	if p.console != nil {
		p.renderStage(st, s.name)
	}
	return nil
}

// renderStage shows a stage's key decisions on the console as it lands, so
// the operator can follow the reasoning before the final answer arrives.
func (p *Pipeline) renderStage(st *State, name string) {
	switch name {
	case "intent_classifier":
		body := fmt.Sprintf("Intent: %s\nTarget: %s", st.Intent, orNone(st.TargetFilter))
		if st.ClassificationReason != "" {
			body += "\n" + st.ClassificationReason
		}
		p.console.Panel("Intent", body)
	case "metrics_engine":
		p.console.Rule("snapshot")
		p.console.Plain("%s", snapshotTable(st))
	case "task_profiler":
		body := "Profiles: " + orNone(strings.Join(st.TargetProfiles, ", "))
		if st.ProfileReasoning != "" {
			body += "\n" + st.ProfileReasoning
		}
		p.console.Panel("Workload Profile", body)
	case "constraint_extractor":
		if len(st.ExplicitConstraints) == 0 {
			p.console.Info("no explicit constraints")
			return
		}
		lines := make([]string, 0, len(st.ExplicitConstraints))
		for _, c := range st.ExplicitConstraints {
			lines = append(lines, fmt.Sprintf("%s %s %s  (%q)",
				c.MetricName, c.Operator,
				render.Humanize(c.Value, st.KB.Metrics[c.MetricName].Unit),
				c.OriginalText))
		}
		p.console.Panel("Explicit Constraints", strings.Join(lines, "\n"))
	case "allocation_advisor":
		if len(st.Advice.Ranked) == 0 {
			return
		}
		p.console.Rule("ranking")
		p.console.Plain("%s", rankingTable(st))
	}
}

// snapshotTable previews the live readings, one humanized row per node.
func snapshotTable(st *State) string {
	var rows []map[string]string
	for _, node := range st.Snapshot.Nodes() {
		row := map[string]string{"node": node}
		for _, metric := range st.KB.MetricNames() {
			if v, ok := st.Snapshot.Value(node, metric); ok {
				row[metric] = render.Humanize(v, st.KB.Metrics[metric].Unit)
			}
		}
		rows = append(rows, row)
	}
	return render.Table("node", rows)
}

// rankingTable shows the full ranking with winner and safe-haven marks.
func rankingTable(st *State) string {
	var rows []map[string]string
	for _, rc := range st.Advice.Ranked {
		var marks []string
		if rc.Node == st.Advice.Winner {
			marks = append(marks, "winner")
		}
		if rc.Node == st.Advice.RunnerUp {
			marks = append(marks, "runner-up")
		}
		if rc.Node == st.Advice.SafeHaven && rc.Node != st.Advice.Winner {
			marks = append(marks, "safe haven")
		}
		rows = append(rows, map[string]string{
			"node":   rc.Node,
			"score":  fmt.Sprintf("%.3f", rc.Score),
			"risks":  orNone(strings.Join(rc.Risks, "; ")),
			"status": strings.Join(marks, ", "),
		})
	}
	return render.Table("node", rows)
}

// stageDecisions collects the audit-worthy decision lines a stage produced.
func (p *Pipeline) stageDecisions(st *State, name string) []string {
	switch name {
	case "profile_evaluator":
		var lines []string
		for _, res := range st.ProfileResults() {
			for node, nodeLines := range res.AuditLines {
				for _, l := range nodeLines {
					lines = append(lines, res.ProfileName+" / "+node+": "+l)
				}
			}
		}
		sort.Strings(lines)
		return lines
	case "candidate_filter":
		return st.FinalCandidates
	default:
		return nil
	}
}

func (p *Pipeline) failRequest(ctx context.Context, st *State, err error) {
	metrics.RequestsTotal.WithLabelValues(string(st.Intent), "error").Inc()
	if p.trail != nil {
		_ = p.trail.LogRequestFailed(ctx, st.RequestID, err)
	}
}
