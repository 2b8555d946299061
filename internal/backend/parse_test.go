package backend

import "testing"

func TestParseQueryEnvelope(t *testing.T) {
	text := `{
	  "result": [
	    {"metric": {"name": "node-a", "instance": "10.0.0.1:9100"}, "value": [1700000000, "42.6667"]},
	    {"metric": {"instance": "10.0.0.2:9100"}, "value": [1700000000, "7.5"]},
	    {"metric": {}, "value": [1700000000, "1"]},
	    {"metric": {"name": "node-nan"}, "value": [1700000000, "NaN"]},
	    {"metric": {"name": "node-inf"}, "value": [1700000000, "+Inf"]},
	    {"metric": {"name": "node-bad"}, "value": [1700000000, "not-a-number"]},
	    {"metric": {"name": "node-bare"}, "value": [1700000000, 3.25]}
	  ]
	}`

	samples, err := ParseQueryEnvelope(text)
	if err != nil {
		t.Fatalf("ParseQueryEnvelope() error: %v", err)
	}

	want := map[string]float64{
		"node-a":    42.667,
		"10.0.0.2:9100": 7.5,
		"unknown":   1,
		"node-bare": 3.25,
	}
	if len(samples) != len(want) {
		t.Fatalf("expected %d samples, got %d: %+v", len(want), len(samples), samples)
	}
	for _, s := range samples {
		if want[s.Node] != s.Value {
			t.Errorf("node %q: got %v, want %v", s.Node, s.Value, want[s.Node])
		}
	}
}

func TestParseQueryEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := ParseQueryEnvelope("connection refused"); err == nil {
		t.Error("expected error for non-JSON result")
	}
	samples, err := ParseQueryEnvelope(`{"result": []}`)
	if err != nil || len(samples) != 0 {
		t.Errorf("empty result should parse to no samples, got %v, %v", samples, err)
	}
}

func TestParseTargets(t *testing.T) {
	text := `{
	  "activeTargets": [
	    {"labels": {"instance": "10.0.0.3:9100", "name": "node-c"}},
	    {"labels": {"name": "node-a"}},
	    {"labels": {"instance": "node-b:9100"}},
	    {"labels": {"name": "node-a"}},
	    {"labels": {}}
	  ]
	}`

	targets, err := ParseTargets(text)
	if err != nil {
		t.Fatalf("ParseTargets() error: %v", err)
	}

	var names []string
	for _, tg := range targets {
		names = append(names, tg.Name())
	}
	want := []string{"node-a", "node-b:9100", "node-c"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("target %d: got %q, want %q", i, names[i], want[i])
		}
	}
}

func TestTargetNamePrefersNameLabel(t *testing.T) {
	tg := Target{Labels: map[string]string{"name": "pi-node", "instance": "192.168.1.10:9100"}}
	if tg.Name() != "pi-node" {
		t.Errorf("got %q, want pi-node", tg.Name())
	}
	tg = Target{Labels: map[string]string{"instance": "192.168.1.10:9100"}}
	if tg.Name() != "192.168.1.10:9100" {
		t.Errorf("got %q, want instance fallback", tg.Name())
	}
}
