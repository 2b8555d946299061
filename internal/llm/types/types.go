package types

// Package types holds the shared request/response shapes of the LLM layer,
// including the structured-output contracts the pipeline's language stages
// expect the model to fill.

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// RequestClassification is the structured output of the intent classifier.
// TargetFilter is nil when the question concerns the whole fleet.
type RequestClassification struct {
	Intent       string  `json:"intent"`
	TargetFilter *string `json:"target_filter"`
	Reasoning    string  `json:"reasoning,omitempty"`
}

// TaskProfileIntent is the structured output of the task profiler: which
// workload profiles from the knowledge base the request maps onto.
type TaskProfileIntent struct {
	SelectedProfiles []string `json:"selected_profiles"`
	Reasoning        string   `json:"reasoning,omitempty"`
}

// ExtractedConstraint is one explicit numeric requirement found in the
// request text, e.g. "at least 2 GB of free memory".
type ExtractedConstraint struct {
	MetricName   string  `json:"metric_name"`
	Operator     string  `json:"operator"`
	Value        float64 `json:"value"`
	OriginalText string  `json:"original_text"`
}

// RequirementExtraction is the structured output of the constraint extractor.
type RequirementExtraction struct {
	Constraints []ExtractedConstraint `json:"constraints"`
}
