package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/sre-agent/qos-advisor/internal/backend"
	"github.com/sre-agent/qos-advisor/internal/llm/adapter"
	"github.com/sre-agent/qos-advisor/internal/llm/types"
	"github.com/sre-agent/qos-advisor/internal/models"
	"github.com/sre-agent/qos-advisor/internal/qos"
	"github.com/sre-agent/qos-advisor/internal/render"
)

// fakeBackend answers tool calls from canned data.
type fakeBackend struct {
	health  string
	targets []string
	kb      string
	// values maps base query -> node -> current value
	values map[string]map[string]float64
	// history maps "avg"/"std" -> base query -> node -> value
	history map[string]map[string]map[string]float64

	mu      sync.Mutex
	queries []string
}

func (f *fakeBackend) HealthCheck(ctx context.Context) (string, error) {
	return f.health, nil
}

func (f *fakeBackend) GetTargets(ctx context.Context) ([]backend.Target, error) {
	out := make([]backend.Target, 0, len(f.targets))
	for _, name := range f.targets {
		out = append(out, backend.Target{Labels: map[string]string{"name": name}})
	}
	return out, nil
}

func (f *fakeBackend) ExecuteQuery(ctx context.Context, query string) (string, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	rows := f.values[query]
	if rows == nil {
		for kind, fn := range map[string]string{"avg": "avg_over_time", "std": "stddev_over_time"} {
			if strings.HasPrefix(query, fn+"((") {
				inner := strings.TrimPrefix(query, fn+"((")
				if i := strings.Index(inner, ")["); i >= 0 {
					rows = f.history[kind][inner[:i]]
				}
			}
		}
	}

	env := map[string]interface{}{"result": []interface{}{}}
	var result []interface{}
	for node, v := range rows {
		result = append(result, map[string]interface{}{
			"metric": map[string]string{"name": node},
			"value":  []interface{}{1700000000, fmt.Sprintf("%v", v)},
		})
	}
	if result != nil {
		env["result"] = result
	}
	raw, _ := json.Marshal(env)
	return string(raw), nil
}

func (f *fakeBackend) ReadResource(ctx context.Context, uri string) (string, error) {
	return f.kb, nil
}

func (f *fakeBackend) Close() error { return nil }

// queueProvider replies with scripted completions in order.
type queueProvider struct {
	mu      sync.Mutex
	replies []string
}

func (p *queueProvider) Complete(ctx context.Context, messages []types.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.replies) == 0 {
		return "", fmt.Errorf("no scripted reply left")
	}
	out := p.replies[0]
	p.replies = p.replies[1:]
	return out, nil
}

func (p *queueProvider) Model() string { return "scripted" }

const pipelineKB = `{
  "metrics": {
    "cpu_usage_pct": {"query": "cpu_q", "unit": "percentage_100", "description": "CPU busy", "stability_threshold": 5.0},
    "ram_available_bytes": {"query": "ram_q", "unit": "bytes", "description": "Free memory"}
  },
  "profiles": {
    "cpu-bound": {
      "description": "Compute heavy",
      "required_conditions": [{"metric": "cpu_usage_pct", "operator": "<", "threshold": 80}],
      "scoring_weights": {"cpu_usage_pct": {"weight": 1.0, "direction": "minimize", "stability_threshold": 5.0}}
    },
    "memory-bound": {
      "description": "Memory heavy",
      "required_conditions": [{"metric": "ram_available_bytes", "operator": ">", "threshold": 1073741824}],
      "scoring_weights": {"ram_available_bytes": {"weight": 1.0, "direction": "maximize"}}
    }
  }
}`

func decodeTestKB(t *testing.T) *models.KnowledgeBase {
	t.Helper()
	kb, err := qos.Decode([]byte(pipelineKB))
	if err != nil {
		t.Fatalf("decode kb: %v", err)
	}
	return kb
}

func newTestPipeline(fb *fakeBackend, llm *queueProvider) *Pipeline {
	return New(Options{
		Backend:             fb,
		LLM:                 adapter.New(llm),
		Logger:              zap.NewNop(),
		KBResourceURI:       "qos/config",
		StabilityWindow:     "24h",
		StabilityResolution: "5m",
	})
}

func userTurn(text string) []types.Message {
	return []types.Message{{Role: types.RoleUser, Content: text}}
}

func TestPipelineStatusClusterMode(t *testing.T) {
	fb := &fakeBackend{
		health:  "Prometheus is healthy",
		targets: []string{"w1", "w2"},
		kb:      pipelineKB,
		values: map[string]map[string]float64{
			"cpu_q": {"w1": 10, "w2": 90},
			"ram_q": {"w1": 8 * gb, "w2": 4 * gb},
		},
	}
	llm := &queueProvider{replies: []string{
		`{"intent": "status", "target_filter": null, "reasoning": "fleet overview"}`,
		"Here is your fleet report.",
	}}

	out, err := newTestPipeline(fb, llm).Run(context.Background(), userTurn("how are my nodes doing?"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if out.Intent != models.IntentStatus {
		t.Errorf("intent = %s", out.Intent)
	}
	if out.Report != "Here is your fleet report." {
		t.Errorf("report = %q", out.Report)
	}
}

func TestPipelineStatusFocusMode(t *testing.T) {
	fb := &fakeBackend{
		health:  "healthy",
		targets: []string{"w1", "w2"},
		kb:      pipelineKB,
		values: map[string]map[string]float64{
			"cpu_q": {"w1": 10, "w2": 90},
			"ram_q": {"w1": 8 * gb, "w2": 4 * gb},
		},
	}
	// Narration fails, so the deterministic card comes through verbatim.
	llm := &queueProvider{replies: []string{
		`{"intent": "status", "target_filter": "w2", "reasoning": "asks about w2"}`,
	}}

	out, err := newTestPipeline(fb, llm).Run(context.Background(), userTurn("how is w2?"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !strings.Contains(out.Report, "Node: w2") {
		t.Errorf("focus card missing node header:\n%s", out.Report)
	}
	if !strings.Contains(out.Report, "memory-bound") {
		t.Errorf("focus card missing qualified profile:\n%s", out.Report)
	}
	if strings.Contains(out.Report, "Node: w1") {
		t.Errorf("focus card leaked other nodes:\n%s", out.Report)
	}
}

func TestPipelineAllocationClearWinner(t *testing.T) {
	fb := &fakeBackend{
		health:  "healthy",
		targets: []string{"w1", "w2"},
		kb:      pipelineKB,
		values: map[string]map[string]float64{
			"cpu_q": {"w1": 10, "w2": 50},
			"ram_q": {"w1": 8 * gb, "w2": 8 * gb},
		},
		history: map[string]map[string]map[string]float64{
			"avg": {"cpu_q": {"w1": 10, "w2": 50}},
			"std": {"cpu_q": {"w1": 1, "w2": 1}},
		},
	}
	llm := &queueProvider{replies: []string{
		`{"intent": "allocation", "target_filter": null, "reasoning": "placement question"}`,
		`{"selected_profiles": ["cpu-bound"], "reasoning": "compute heavy"}`,
		`{"constraints": []}`,
		"Place it on w1.",
	}}

	out, err := newTestPipeline(fb, llm).Run(context.Background(), userTurn("where should my build job go?"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if out.Intent != models.IntentAllocation {
		t.Fatalf("intent = %s", out.Intent)
	}
	advice := out.Advice
	if advice.Winner != "w1" || advice.Strategy != models.StrategyClearWinner {
		t.Errorf("winner=%s strategy=%s", advice.Winner, advice.Strategy)
	}
	if advice.Ranked[0].Score != 1.0 {
		t.Errorf("winner score = %v, want 1.0", advice.Ranked[0].Score)
	}
	if advice.Text != "Place it on w1." {
		t.Errorf("text = %q", advice.Text)
	}

	// Historical queries covered exactly the weighted metric set.
	var histQueries int
	for _, q := range fb.queries {
		if strings.Contains(q, "_over_time((cpu_q)[24h:5m])") {
			histQueries++
		}
		if strings.Contains(q, "_over_time((ram_q)") {
			t.Errorf("ram history queried despite cpu-only weights: %s", q)
		}
	}
	if histQueries != 2 {
		t.Errorf("expected avg+std for cpu_q, got %d matching queries", histQueries)
	}
}

func TestPipelineAllocationConstraintFiltering(t *testing.T) {
	fb := &fakeBackend{
		health:  "healthy",
		targets: []string{"w1", "w2"},
		kb:      pipelineKB,
		values: map[string]map[string]float64{
			"cpu_q": {"w1": 10, "w2": 20},
			"ram_q": {"w1": 8 * gb, "w2": 4 * gb},
		},
		history: map[string]map[string]map[string]float64{
			"avg": {"cpu_q": {"w1": 10, "w2": 20}},
			"std": {"cpu_q": {"w1": 1, "w2": 1}},
		},
	}
	llm := &queueProvider{replies: []string{
		`{"intent": "allocation", "target_filter": null, "reasoning": "placement"}`,
		`{"selected_profiles": ["cpu-bound"], "reasoning": "compute heavy"}`,
		`{"constraints": [{"metric_name": "ram_available_bytes", "operator": ">=", "value": 8589934592, "original_text": "at least 8 GB RAM free"}]}`,
		"Only w1 fits.",
	}}

	out, err := newTestPipeline(fb, llm).Run(context.Background(), userTurn("compute node with at least 8 GB RAM free"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(out.Advice.Ranked) != 1 || out.Advice.Winner != "w1" {
		t.Errorf("ranked = %+v", out.Advice.Ranked)
	}
}

func TestPipelineAllocationEmptyCandidates(t *testing.T) {
	fb := &fakeBackend{
		health:  "healthy",
		targets: []string{"w1"},
		kb:      pipelineKB,
		values: map[string]map[string]float64{
			"cpu_q": {"w1": 95}, // fails the cpu-bound gate
			"ram_q": {"w1": 8 * gb},
		},
	}
	// No advise reply scripted: the advisor must not call the LLM.
	llm := &queueProvider{replies: []string{
		`{"intent": "allocation", "target_filter": null, "reasoning": "placement"}`,
		`{"selected_profiles": ["cpu-bound"], "reasoning": "compute heavy"}`,
		`{"constraints": []}`,
	}}

	out, err := newTestPipeline(fb, llm).Run(context.Background(), userTurn("where does my build job go?"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !strings.Contains(out.Advice.Text, "No suitable node found") {
		t.Errorf("text = %q", out.Advice.Text)
	}
	if out.Advice.Winner != "" {
		t.Errorf("winner = %q, want empty", out.Advice.Winner)
	}
}

func TestPipelineConsoleShowsStageDecisions(t *testing.T) {
	fb := &fakeBackend{
		health:  "healthy",
		targets: []string{"w1", "w2"},
		kb:      pipelineKB,
		values: map[string]map[string]float64{
			"cpu_q": {"w1": 10, "w2": 50},
			"ram_q": {"w1": 8 * gb, "w2": 8 * gb},
		},
		history: map[string]map[string]map[string]float64{
			"avg": {"cpu_q": {"w1": 10, "w2": 50}},
			"std": {"cpu_q": {"w1": 1, "w2": 1}},
		},
	}
	llm := &queueProvider{replies: []string{
		`{"intent": "allocation", "target_filter": null, "reasoning": "asks for placement"}`,
		`{"selected_profiles": ["cpu-bound"], "reasoning": "compute heavy workload"}`,
		`{"constraints": [{"metric_name": "ram_available_bytes", "operator": ">=", "value": 1073741824, "original_text": "a gig free"}]}`,
		"Place it on w1.",
	}}

	var buf bytes.Buffer
	p := New(Options{
		Backend:             fb,
		LLM:                 adapter.New(llm),
		Console:             render.NewConsole(&buf),
		Logger:              zap.NewNop(),
		KBResourceURI:       "qos/config",
		StabilityWindow:     "24h",
		StabilityResolution: "5m",
	})

	if _, err := p.Run(context.Background(), userTurn("compute node with a gig free")); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Intent",                // classification panel
		"allocation",            // classified intent
		"snapshot",              // live readings rule
		"Workload Profile",      // profiler panel
		"cpu-bound",             // selected profile
		"compute heavy workload", // profiler reasoning
		"Explicit Constraints",  // extractor panel
		"ram_available_bytes",   // constraint metric
		"ranking",               // advisor rule
		"winner",                // ranking mark
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q:\n%s", want, out)
		}
	}
}

func TestPipelineLLMFailureDegradesToStatus(t *testing.T) {
	fb := &fakeBackend{
		health:  "healthy",
		targets: []string{"w1"},
		kb:      pipelineKB,
		values: map[string]map[string]float64{
			"cpu_q": {"w1": 10},
			"ram_q": {"w1": 8 * gb},
		},
	}
	// Classifier gets prose, reporter gets nothing: both degrade.
	llm := &queueProvider{replies: []string{"I cannot classify that."}}

	out, err := newTestPipeline(fb, llm).Run(context.Background(), userTurn("hmm?"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if out.Intent != models.IntentStatus {
		t.Errorf("intent = %s, want status fallback", out.Intent)
	}
	if !strings.Contains(out.Report, "w1") {
		t.Errorf("deterministic report missing node:\n%s", out.Report)
	}
}

func TestPipelineUnhealthyBackendIsFatal(t *testing.T) {
	fb := &fakeBackend{health: "Prometheus is DOWN", kb: pipelineKB}
	llm := &queueProvider{}

	_, err := newTestPipeline(fb, llm).Run(context.Background(), userTurn("status?"))
	if err == nil {
		t.Fatal("expected error for unhealthy backend")
	}
	if !strings.Contains(err.Error(), "unavailable") {
		t.Errorf("err = %v", err)
	}
}

func TestPipelineTargetFilterPushdown(t *testing.T) {
	fb := &fakeBackend{
		health:  "healthy",
		targets: []string{"w1", "w2"},
		kb:      pipelineKB,
		values: map[string]map[string]float64{
			"cpu_q": {"w1": 10, "w2": 90},
			"ram_q": {"w1": 8 * gb, "w2": 4 * gb},
		},
	}
	llm := &queueProvider{replies: []string{
		`{"intent": "status", "target_filter": "w1", "reasoning": "asks about w1"}`,
		"Report for w1.",
	}}

	p := newTestPipeline(fb, llm)
	st := NewState(userTurn("how is w1?"))
	ctx := context.Background()
	if err := p.loader.Run(ctx, st); err != nil {
		t.Fatal(err)
	}
	if err := p.classifier.Run(ctx, st); err != nil {
		t.Fatal(err)
	}
	if err := p.engine.Run(ctx, st); err != nil {
		t.Fatal(err)
	}

	if _, ok := st.Snapshot.Values["w2"]; ok {
		t.Error("snapshot holds a filtered-out node")
	}
	if _, ok := st.Snapshot.Value("w1", "cpu_usage_pct"); !ok {
		t.Error("snapshot missing the focused node")
	}
}
