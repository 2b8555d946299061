package pipeline

import (
	"sync"

	"github.com/google/uuid"

	"github.com/sre-agent/qos-advisor/internal/llm/types"
	"github.com/sre-agent/qos-advisor/internal/models"
)

// State is the per-request record threaded through the pipeline. It is
// created fresh for every request, mutated only by the stage currently
// executing, and discarded once the answer is emitted. The one exception is
// profileResults, which the evaluator fan-out appends to concurrently behind
// a mutex.
type State struct {
	RequestID string
	Messages  []types.Message

	// ContextLoader output
	ActiveTargets []string
	KB            *models.KnowledgeBase
	SanityOK      bool

	// IntentClassifier output
	Intent               models.Intent
	TargetFilter         string // empty means no filter
	ClassificationReason string

	// MetricsEngine output
	Snapshot *models.Snapshot

	// TaskProfiler output
	TargetProfiles  []string
	ProfileReasoning string

	// ProfileEvaluator accumulator
	mu             sync.Mutex
	profileResults []models.ProfileResult

	// ConstraintExtractor output
	ExplicitConstraints []models.ExplicitConstraint

	// CandidateFilter output
	FinalCandidates []string

	// StabilityAnalyzer output
	Stability models.StabilityReport
	History   *models.HistoricalStats

	// Final outputs
	Advice Advice
	Report string
}

// Advice is the allocation outcome: the fixed ranking plus the narration.
type Advice struct {
	Strategy  models.Strategy
	Ranked    []RankedCandidate
	Winner    string
	RunnerUp  string
	SafeHaven string
	Text      string
}

// RankedCandidate is one scored node in descending-score order.
type RankedCandidate struct {
	Node  string
	Score float64
	Risks []string
}

// NewState creates a request state with a fresh correlation ID.
func NewState(messages []types.Message) *State {
	return &State{
		RequestID: uuid.NewString(),
		Messages:  messages,
		Stability: make(models.StabilityReport),
	}
}

// LastUserMessage returns the most recent user turn, or empty.
func (s *State) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == types.RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// AppendProfileResult records one fan-out result. Safe for concurrent use.
func (s *State) AppendProfileResult(r models.ProfileResult) {
	s.mu.Lock()
	s.profileResults = append(s.profileResults, r)
	s.mu.Unlock()
}

// ProfileResults returns the accumulated results. Callers must not retain
// the slice across further appends.
func (s *State) ProfileResults() []models.ProfileResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ProfileResult, len(s.profileResults))
	copy(out, s.profileResults)
	return out
}
