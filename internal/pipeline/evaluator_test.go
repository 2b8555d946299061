package pipeline

import (
	"strings"
	"testing"

	"github.com/sre-agent/qos-advisor/internal/models"
)

func ptr(f float64) *float64 { return &f }

func testKB() *models.KnowledgeBase {
	return &models.KnowledgeBase{
		Metrics: map[string]models.MetricDef{
			"cpu_usage_pct": {
				Query:              "100 - cpu_idle_pct",
				Unit:               models.UnitPercentage,
				StabilityThreshold: ptr(5.0),
			},
			"ram_available_bytes": {
				Query: "node_memory_MemAvailable_bytes",
				Unit:  models.UnitBytes,
			},
		},
		Profiles: map[string]models.Profile{
			"cpu-bound": {
				Description: "Compute heavy workloads",
				RequiredConditions: []models.Condition{
					{Metric: "cpu_usage_pct", Operator: models.OpLess, Threshold: 80},
				},
				ScoringWeights: map[string]models.ScoringWeight{
					"cpu_usage_pct": {Weight: 1.0, Direction: models.Minimize, StabilityThreshold: ptr(5.0)},
				},
			},
			"memory-bound": {
				Description: "Memory heavy workloads",
				RequiredConditions: []models.Condition{
					{Metric: "ram_available_bytes", Operator: models.OpGreater, Threshold: 1073741824},
				},
				ScoringWeights: map[string]models.ScoringWeight{
					"ram_available_bytes": {Weight: 1.0, Direction: models.Maximize},
				},
			},
		},
	}
}

const gb = 1024 * 1024 * 1024

func testSnapshot() *models.Snapshot {
	snap := models.NewSnapshot()
	snap.Set("w1", "cpu_usage_pct", 10)
	snap.Set("w1", "ram_available_bytes", 8*gb)
	snap.Set("w2", "cpu_usage_pct", 90)
	snap.Set("w2", "ram_available_bytes", 4*gb)
	return snap
}

func TestEvaluateProfile(t *testing.T) {
	kb := testKB()
	snap := testSnapshot()

	cpu := EvaluateProfile("cpu-bound", kb.Profiles["cpu-bound"], snap)
	if len(cpu.QualifiedNodes) != 1 || cpu.QualifiedNodes[0] != "w1" {
		t.Errorf("cpu-bound qualified = %v, want [w1]", cpu.QualifiedNodes)
	}

	mem := EvaluateProfile("memory-bound", kb.Profiles["memory-bound"], snap)
	if len(mem.QualifiedNodes) != 2 {
		t.Errorf("memory-bound qualified = %v, want [w1 w2]", mem.QualifiedNodes)
	}
}

func TestEvaluateProfileAuditLines(t *testing.T) {
	kb := testKB()
	snap := testSnapshot()

	res := EvaluateProfile("cpu-bound", kb.Profiles["cpu-bound"], snap)

	w1 := res.AuditLines["w1"]
	if len(w1) != 1 || w1[0] != "cpu_usage_pct: 10.00 < 80.00 (PASS)" {
		t.Errorf("w1 audit = %v", w1)
	}
	w2 := res.AuditLines["w2"]
	if len(w2) != 1 || w2[0] != "cpu_usage_pct: 90.00 < 80.00 (FAIL)" {
		t.Errorf("w2 audit = %v", w2)
	}
}

func TestEvaluateProfileMissingMetricFails(t *testing.T) {
	kb := testKB()
	snap := models.NewSnapshot()
	snap.Set("w1", "ram_available_bytes", 8*gb) // no cpu reading

	res := EvaluateProfile("cpu-bound", kb.Profiles["cpu-bound"], snap)
	if len(res.QualifiedNodes) != 0 {
		t.Errorf("expected no qualified nodes, got %v", res.QualifiedNodes)
	}
	if lines := res.AuditLines["w1"]; len(lines) != 1 || !strings.Contains(lines[0], "N/A (FAIL)") {
		t.Errorf("expected N/A (FAIL) audit, got %v", lines)
	}
}

func TestEvaluateProfileIsDeterministic(t *testing.T) {
	kb := testKB()
	snap := testSnapshot()

	first := EvaluateProfile("memory-bound", kb.Profiles["memory-bound"], snap)
	for i := 0; i < 10; i++ {
		again := EvaluateProfile("memory-bound", kb.Profiles["memory-bound"], snap)
		if len(again.QualifiedNodes) != len(first.QualifiedNodes) {
			t.Fatal("qualified set changed between runs")
		}
		for j := range again.QualifiedNodes {
			if again.QualifiedNodes[j] != first.QualifiedNodes[j] {
				t.Fatal("qualified order changed between runs")
			}
		}
	}
}
