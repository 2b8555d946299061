package render

import (
	"strings"
	"testing"
)

func TestTableColumnOrder(t *testing.T) {
	rows := []map[string]string{
		{"node": "pi-a", "cpu_usage_pct": "12.00%", "score": "0.91", "status": "STABLE", "risks": "none"},
		{"node": "pi-b", "cpu_usage_pct": "44.00%", "score": "0.40", "status": "SPIKE", "risks": "cpu spike"},
	}

	out := Table("node", rows)
	lines := strings.Split(out, "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header+sep+2 rows, got %d lines:\n%s", len(lines), out)
	}

	want := "| node | score | risks | status | cpu_usage_pct |"
	if lines[0] != want {
		t.Errorf("header order:\n got %q\nwant %q", lines[0], want)
	}
	if !strings.HasPrefix(lines[2], "| pi-a |") || !strings.HasPrefix(lines[3], "| pi-b |") {
		t.Errorf("row order not preserved:\n%s", out)
	}
}

func TestTableMissingCellsRenderEmpty(t *testing.T) {
	rows := []map[string]string{
		{"node": "pi-a", "ram": "4.00 GB"},
		{"node": "pi-b"},
	}
	out := Table("node", rows)
	if !strings.Contains(out, "| pi-b |  |") {
		t.Errorf("missing cell should be empty:\n%s", out)
	}
}

func TestTableEmpty(t *testing.T) {
	if out := Table("node", nil); out != "" {
		t.Errorf("expected empty string, got %q", out)
	}
}

func TestTableIsDeterministic(t *testing.T) {
	rows := []map[string]string{
		{"node": "a", "zeta": "1", "alpha": "2", "mid": "3"},
	}
	first := Table("node", rows)
	for i := 0; i < 20; i++ {
		if got := Table("node", rows); got != first {
			t.Fatalf("table output changed between runs:\n%s\nvs\n%s", first, got)
		}
	}
	if !strings.Contains(first, "| node | alpha | mid | zeta |") {
		t.Errorf("non-priority columns should sort alphabetically:\n%s", first)
	}
}
