package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sre-agent/qos-advisor/internal/llm/adapter"
	"github.com/sre-agent/qos-advisor/internal/llm/types"
	"github.com/sre-agent/qos-advisor/internal/models"
)

// ConstraintExtractor pulls explicit numeric requirements out of the user's
// free text ("at least 2 GB free") and converts them to each metric's native
// unit. Allocation path only.
type ConstraintExtractor struct {
	llm *adapter.Adapter
	log *zap.Logger
}

// NewConstraintExtractor creates the stage.
func NewConstraintExtractor(llm *adapter.Adapter, log *zap.Logger) *ConstraintExtractor {
	return &ConstraintExtractor{llm: llm, log: log}
}

const extractorSystemPrompt = `You extract explicit numeric requirements from a workload request.

Reply with a single JSON object:
{"constraints": [{"metric_name": "<catalog name>", "operator": "<|<=|>|>=|==|!=", "value": <number>, "original_text": "<the words you read>"}]}

Conversion rules:
- Percentages stay on the 0-100 scale.
- Byte quantities use binary units: 1 KB = 1024, 1 MB = 1048576, 1 GB = 1073741824.
- metric_name must be an exact catalog key. Skip requirements you cannot map.
- An empty list is a valid answer.`

// Run executes the stage. Extraction failure yields an empty constraint
// list; it never blocks the pipeline.
func (ce *ConstraintExtractor) Run(ctx context.Context, st *State) error {
	var catalog strings.Builder
	for _, name := range st.KB.MetricNames() {
		def := st.KB.Metrics[name]
		fmt.Fprintf(&catalog, "- %s (%s): %s\n", name, def.Unit, def.Description)
	}

	prompt := fmt.Sprintf("Metric catalog:\n%s\nRequest: %s", catalog.String(), st.LastUserMessage())

	var out types.RequirementExtraction
	err := ce.llm.GenerateJSON(ctx, "extract", []types.Message{
		{Role: types.RoleSystem, Content: extractorSystemPrompt},
		{Role: types.RoleUser, Content: prompt},
	}, &out)
	if err != nil {
		ce.log.Warn("constraint extraction failed, proceeding unconstrained",
			zap.String("request_id", st.RequestID), zap.Error(err))
		st.ExplicitConstraints = nil
		return nil
	}

	var constraints []models.ExplicitConstraint
	for _, c := range out.Constraints {
		if _, ok := st.KB.Metrics[c.MetricName]; !ok {
			ce.log.Warn("constraint names unknown metric, discarding",
				zap.String("request_id", st.RequestID), zap.String("metric", c.MetricName))
			continue
		}
		op, err := models.ParseOperator(c.Operator)
		if err != nil {
			ce.log.Warn("constraint has unknown operator, discarding",
				zap.String("request_id", st.RequestID), zap.String("operator", c.Operator))
			continue
		}
		constraints = append(constraints, models.ExplicitConstraint{
			MetricName:   c.MetricName,
			Operator:     op,
			Value:        c.Value,
			OriginalText: c.OriginalText,
		})
	}
	st.ExplicitConstraints = constraints

	ce.log.Info("constraints extracted",
		zap.String("request_id", st.RequestID),
		zap.Int("count", len(constraints)))

	return nil
}
