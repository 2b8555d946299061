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

// IntentClassifier labels the request as a status question or an allocation
// question, optionally pinning it to one node.
type IntentClassifier struct {
	llm *adapter.Adapter
	log *zap.Logger
}

// NewIntentClassifier creates the stage.
func NewIntentClassifier(llm *adapter.Adapter, log *zap.Logger) *IntentClassifier {
	return &IntentClassifier{llm: llm, log: log}
}

const classifierSystemPrompt = `You classify an operator's question about a fleet of monitored nodes.

Reply with a single JSON object:
{"intent": "status" or "allocation", "target_filter": "<node name>" or null, "reasoning": "<one sentence>"}

"status" asks how nodes are doing right now. "allocation" asks where to place a workload.
target_filter must be exactly one of the valid node names, or null when the question concerns the whole fleet.`

// Run executes the stage. On any LLM failure the request degrades to a
// fleet-wide status question, which is always safe to answer.
func (ic *IntentClassifier) Run(ctx context.Context, st *State) error {
	question := st.LastUserMessage()
	prompt := fmt.Sprintf("Valid node names: %s\n\nQuestion: %s",
		strings.Join(st.ActiveTargets, ", "), question)

	var out types.RequestClassification
	err := ic.llm.GenerateJSON(ctx, "classify", []types.Message{
		{Role: types.RoleSystem, Content: classifierSystemPrompt},
		{Role: types.RoleUser, Content: prompt},
	}, &out)
	if err != nil {
		ic.log.Warn("intent classification failed, defaulting to status",
			zap.String("request_id", st.RequestID), zap.Error(err))
		st.Intent = models.IntentStatus
		st.TargetFilter = ""
		return nil
	}

	switch models.Intent(out.Intent) {
	case models.IntentAllocation:
		st.Intent = models.IntentAllocation
	default:
		st.Intent = models.IntentStatus
	}
	st.ClassificationReason = out.Reasoning
	st.TargetFilter = ic.sanitizeFilter(out.TargetFilter, st.ActiveTargets)

	ic.log.Info("request classified",
		zap.String("request_id", st.RequestID),
		zap.String("intent", string(st.Intent)),
		zap.String("target_filter", st.TargetFilter))

	return nil
}

// nullFilterWords are model replies meaning "no filter" in the wild.
var nullFilterWords = map[string]bool{
	"none": true, "all": true, "null": true, "tutti": true, "nessuno": true,
}

// sanitizeFilter accepts the filter only when it names a known node.
func (ic *IntentClassifier) sanitizeFilter(filter *string, valid []string) string {
	if filter == nil {
		return ""
	}
	f := strings.TrimSpace(*filter)
	if f == "" || nullFilterWords[strings.ToLower(f)] {
		return ""
	}
	for _, name := range valid {
		if name == f {
			return f
		}
	}
	ic.log.Warn("classifier proposed unknown node, ignoring filter", zap.String("filter", f))
	return ""
}
