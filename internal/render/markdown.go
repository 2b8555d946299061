package render

import (
	"sort"
	"strings"
)

// priorityColumns lead every table in this order; all other columns follow
// alphabetically. Narration prompts depend on this being stable across runs.
var priorityColumns = []string{"name", "score", "risks", "status"}

// Table renders rows as a GitHub-style markdown table. The key column comes
// first, then any priority columns present, then the rest sorted by header.
// Row order is preserved; missing cells render empty.
func Table(keyLabel string, rows []map[string]string) string {
	if len(rows) == 0 {
		return ""
	}

	seen := map[string]bool{keyLabel: true}
	var extra []string
	for _, row := range rows {
		for col := range row {
			if !seen[col] {
				seen[col] = true
				extra = append(extra, col)
			}
		}
	}

	headers := []string{keyLabel}
	for _, p := range priorityColumns {
		if p == keyLabel {
			continue
		}
		if seen[p] && contains(extra, p) {
			headers = append(headers, p)
			extra = remove(extra, p)
		}
	}
	sort.Strings(extra)
	headers = append(headers, extra...)

	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("| ")
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString(" |\n")
	}

	writeRow(headers)
	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(sep)

	for _, row := range rows {
		cells := make([]string, len(headers))
		for i, h := range headers {
			cells[i] = row[h]
		}
		writeRow(cells)
	}
	return strings.TrimRight(b.String(), "\n")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
