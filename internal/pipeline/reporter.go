package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sre-agent/qos-advisor/internal/llm/adapter"
	"github.com/sre-agent/qos-advisor/internal/llm/types"
	"github.com/sre-agent/qos-advisor/internal/render"
)

// Reporter assembles the status answer: a single-node health card when the
// request named a node, otherwise a profile suitability matrix for the whole
// fleet. Tables are built deterministically; the LLM only writes the prose
// around them.
type Reporter struct {
	llm *adapter.Adapter
	log *zap.Logger
}

// NewReporter creates the stage.
func NewReporter(llm *adapter.Adapter, log *zap.Logger) *Reporter {
	return &Reporter{llm: llm, log: log}
}

// Run executes the stage.
func (r *Reporter) Run(ctx context.Context, st *State) error {
	var body string
	if st.TargetFilter != "" {
		body = r.focusCard(st)
	} else {
		body = r.clusterMatrix(st)
	}

	prompt := fmt.Sprintf(
		"Write a short capability report for an SRE. Embed the tables verbatim; do not alter any value.\n\n%s\n\nOperator question: %s",
		body, st.LastUserMessage())

	text, err := r.llm.Generate(ctx, "report", []types.Message{
		{Role: types.RoleSystem, Content: "You word an infrastructure status report. The data is final; explain it, never recompute it. Be concise."},
		{Role: types.RoleUser, Content: prompt},
	})
	if err != nil {
		r.log.Warn("report narration failed, emitting deterministic tables",
			zap.String("request_id", st.RequestID), zap.Error(err))
		text = body
	}
	st.Report = text

	r.log.Info("report emitted",
		zap.String("request_id", st.RequestID),
		zap.Bool("focus", st.TargetFilter != ""))

	return nil
}

// focusCard renders one node's qualified profiles and per-predicate audit.
func (r *Reporter) focusCard(st *State) string {
	node := st.TargetFilter
	results := st.ProfileResults()
	sort.Slice(results, func(i, j int) bool { return results[i].ProfileName < results[j].ProfileName })

	var qualified []string
	var audit strings.Builder
	for _, res := range results {
		for _, q := range res.QualifiedNodes {
			if q == node {
				qualified = append(qualified, res.ProfileName)
			}
		}
		if lines, ok := res.AuditLines[node]; ok {
			fmt.Fprintf(&audit, "\n%s:\n", res.ProfileName)
			for _, line := range lines {
				fmt.Fprintf(&audit, "  %s\n", line)
			}
		}
	}

	qualifiedText := "none"
	if len(qualified) > 0 {
		qualifiedText = strings.Join(qualified, ", ")
	}
	return fmt.Sprintf("Node: %s\nQualified profiles: %s\n\nPredicate audit:%s",
		node, qualifiedText, audit.String())
}

// clusterMatrix renders profile × node suitability plus the technical audit.
func (r *Reporter) clusterMatrix(st *State) string {
	results := st.ProfileResults()
	sort.Slice(results, func(i, j int) bool { return results[i].ProfileName < results[j].ProfileName })

	nodes := st.Snapshot.Nodes()
	var rows []map[string]string
	for _, node := range nodes {
		row := map[string]string{"node": node}
		for _, res := range results {
			mark := "no"
			for _, q := range res.QualifiedNodes {
				if q == node {
					mark = "yes"
					break
				}
			}
			row[res.ProfileName] = mark
		}
		rows = append(rows, row)
	}
	matrix := render.Table("node", rows)

	var audit strings.Builder
	audit.WriteString("\n\nTechnical audit:\n")
	for _, node := range nodes {
		fmt.Fprintf(&audit, "\n%s:\n", node)
		for _, res := range results {
			if lines, ok := res.AuditLines[node]; ok && len(lines) > 0 {
				fmt.Fprintf(&audit, "  %s:\n", res.ProfileName)
				for _, line := range lines {
					fmt.Fprintf(&audit, "    %s\n", line)
				}
			}
		}
	}

	return matrix + audit.String()
}
