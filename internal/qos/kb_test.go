package qos

import (
	"errors"
	"strings"
	"testing"

	"github.com/sre-agent/qos-advisor/internal/models"
)

const sampleKB = `{
  "metrics": {
    "cpu_usage_pct": {
      "query": "100 - (avg by (name) (rate(node_cpu_seconds_total{mode=\"idle\"}[2m])) * 100)",
      "unit": "percentage_100",
      "description": "CPU busy percentage",
      "stability_threshold": 5.0
    },
    "ram_available_bytes": {
      "query": "node_memory_MemAvailable_bytes",
      "unit": "bytes",
      "description": "Free memory"
    }
  },
  "profiles": {
    "cpu-bound": {
      "description": "Compute heavy workloads",
      "required_conditions": [
        {"metric": "cpu_usage_pct", "operator": "<", "threshold": 80}
      ],
      "scoring_weights": {
        "cpu_usage_pct": {"weight": 1.0, "direction": "minimize", "stability_threshold": 5.0}
      }
    },
    "memory-bound": {
      "description": "Memory heavy workloads",
      "required_conditions": [
        {"metric": "ram_available_bytes", "operator": ">", "threshold": 1073741824}
      ],
      "scoring_weights": {
        "ram_available_bytes": {"weight": 1.0, "direction": "maximize"}
      }
    }
  }
}`

func TestDecode(t *testing.T) {
	kb, err := Decode([]byte(sampleKB))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	if len(kb.Metrics) != 2 {
		t.Errorf("expected 2 metrics, got %d", len(kb.Metrics))
	}
	if len(kb.Profiles) != 2 {
		t.Errorf("expected 2 profiles, got %d", len(kb.Profiles))
	}

	cpu := kb.Metrics["cpu_usage_pct"]
	if cpu.Unit != models.UnitPercentage {
		t.Errorf("expected percentage_100 unit, got %q", cpu.Unit)
	}
	if cpu.StabilityThreshold == nil || *cpu.StabilityThreshold != 5.0 {
		t.Error("expected stability_threshold 5.0 on cpu_usage_pct")
	}
	if kb.Metrics["ram_available_bytes"].StabilityThreshold != nil {
		t.Error("expected no stability_threshold on ram_available_bytes")
	}

	prof := kb.Profiles["cpu-bound"]
	if len(prof.RequiredConditions) != 1 {
		t.Fatalf("expected 1 condition, got %d", len(prof.RequiredConditions))
	}
	cond := prof.RequiredConditions[0]
	if cond.Operator != models.OpLess || cond.Threshold != 80 {
		t.Errorf("unexpected condition %+v", cond)
	}
}

func TestDecodeEmptySections(t *testing.T) {
	kb, err := Decode([]byte(`{"metrics": {}, "profiles": {}}`))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if kb.Metrics == nil || kb.Profiles == nil {
		t.Error("empty sections must decode to empty maps, not nil")
	}
}

func TestDecodeMissingKeys(t *testing.T) {
	cases := map[string]string{
		"no profiles": `{"metrics": {}}`,
		"no metrics":  `{"profiles": {}}`,
		"empty":       `  `,
		"not json":    `up{job="node"}`,
	}
	for name, raw := range cases {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrConfigInvalid) {
			t.Errorf("%s: expected ErrConfigInvalid, got %v", name, err)
		}
	}
}

func TestValidateRejectsUnknownOperator(t *testing.T) {
	raw := `{
	  "metrics": {"m": {"query": "up", "unit": "raw"}},
	  "profiles": {
	    "broken": {
	      "description": "",
	      "required_conditions": [{"metric": "m", "operator": "=>", "threshold": 1}],
	      "scoring_weights": {}
	    }
	  }
	}`
	_, err := Decode([]byte(raw))
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
	// The offending profile must be named.
	if got := err.Error(); !strings.Contains(got, "broken") {
		t.Errorf("error should name the profile: %q", got)
	}
}

func TestValidateRejectsBadUnitAndDirection(t *testing.T) {
	badUnit := `{"metrics": {"m": {"query": "up", "unit": "furlongs"}}, "profiles": {}}`
	if _, err := Decode([]byte(badUnit)); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid for bad unit, got %v", err)
	}

	badDir := `{
	  "metrics": {"m": {"query": "up", "unit": "raw"}},
	  "profiles": {
	    "p": {
	      "description": "",
	      "required_conditions": [],
	      "scoring_weights": {"m": {"weight": 1, "direction": "sideways"}}
	    }
	  }
	}`
	if _, err := Decode([]byte(badDir)); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid for bad direction, got %v", err)
	}
}
