package models

import (
	"sort"
	"time"
)

// Package models defines the typed domain records shared by every pipeline
// stage: the QoS knowledge base, the instantaneous metrics snapshot,
// per-profile evaluation results, user constraints, and the stability report.
//
// Everything here is plain data. Stages own the behavior.

// Unit tags how a metric's raw float must be interpreted and rendered.
type Unit string

const (
	UnitPercentage Unit = "percentage_100"
	UnitBytes      Unit = "bytes"
	UnitRate       Unit = "rate"
	UnitRaw        Unit = "raw"
)

// Valid reports whether u is one of the known unit tags.
func (u Unit) Valid() bool {
	switch u {
	case UnitPercentage, UnitBytes, UnitRate, UnitRaw:
		return true
	}
	return false
}

// MetricDef is one named entry of the knowledge base's metric catalog.
type MetricDef struct {
	// Query is the instantaneous PromQL-style query for this metric.
	Query string `json:"query"`

	// Unit drives humanization and the unit-level stability fallback.
	Unit Unit `json:"unit"`

	// Description is free text shown to the LLM during constraint extraction.
	Description string `json:"description,omitempty"`

	// StabilityThreshold is the metric-level physical delta override, if any.
	StabilityThreshold *float64 `json:"stability_threshold,omitempty"`
}

// Direction says whether a lower or higher reading scores better.
type Direction string

const (
	Minimize Direction = "minimize"
	Maximize Direction = "maximize"
)

// Condition is one gate predicate of a QoS profile.
type Condition struct {
	Metric    string   `json:"metric"`
	Operator  Operator `json:"operator"`
	Threshold float64  `json:"threshold"`
}

// ScoringWeight describes how one metric contributes to the allocation score.
type ScoringWeight struct {
	Weight    float64   `json:"weight"`
	Direction Direction `json:"direction"`

	// StabilityThreshold is the profile-level physical delta override, if any.
	StabilityThreshold *float64 `json:"stability_threshold,omitempty"`
}

// Profile is a named workload class: hard gate conditions plus scoring weights.
type Profile struct {
	Description        string                   `json:"description"`
	RequiredConditions []Condition              `json:"required_conditions"`
	ScoringWeights     map[string]ScoringWeight `json:"scoring_weights"`
}

// KnowledgeBase is the immutable {metrics, profiles} pair loaded once per
// session from the backend's qos/config resource.
type KnowledgeBase struct {
	Metrics  map[string]MetricDef `json:"metrics"`
	Profiles map[string]Profile   `json:"profiles"`
}

// ProfileNames returns the profile names in lexicographic order.
func (kb *KnowledgeBase) ProfileNames() []string {
	names := make([]string, 0, len(kb.Profiles))
	for name := range kb.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MetricNames returns the metric names in lexicographic order.
func (kb *KnowledgeBase) MetricNames() []string {
	names := make([]string, 0, len(kb.Metrics))
	for name := range kb.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot is an instantaneous node → metric → value map. Absent cells are
// genuinely missing, never zero: every stored value is a finite float rounded
// to three decimals at ingest.
type Snapshot struct {
	TakenAt time.Time
	Values  map[string]map[string]float64
}

// NewSnapshot returns an empty snapshot stamped with the current time.
func NewSnapshot() *Snapshot {
	return &Snapshot{TakenAt: time.Now(), Values: make(map[string]map[string]float64)}
}

// Set stores one cell, creating the node row on first use.
func (s *Snapshot) Set(node, metric string, value float64) {
	row, ok := s.Values[node]
	if !ok {
		row = make(map[string]float64)
		s.Values[node] = row
	}
	row[metric] = value
}

// Value looks up one cell.
func (s *Snapshot) Value(node, metric string) (float64, bool) {
	row, ok := s.Values[node]
	if !ok {
		return 0, false
	}
	v, ok := row[metric]
	return v, ok
}

// Nodes returns the node names present in the snapshot, sorted.
func (s *Snapshot) Nodes() []string {
	nodes := make([]string, 0, len(s.Values))
	for node := range s.Values {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}

// ProfileResult is the outcome of evaluating one profile's gate conditions
// over the snapshot. AuditLines holds one line per predicate per node in the
// literal "<metric>: <value> <op> <threshold> (PASS|FAIL)" format.
type ProfileResult struct {
	ProfileName    string
	QualifiedNodes []string
	AuditLines     map[string][]string
}

// ExplicitConstraint is a numeric requirement extracted from the user's free
// text, already converted to the metric's native unit.
type ExplicitConstraint struct {
	MetricName   string   `json:"metric_name"`
	Operator     Operator `json:"operator"`
	Value        float64  `json:"value"`
	OriginalText string   `json:"original_text"`
}

// StabilityStatus classifies one (node, metric) cell against its own recent
// history.
type StabilityStatus string

const (
	StatusStable     StabilityStatus = "STABLE"
	StatusFalseAlarm StabilityStatus = "FALSE_ALARM"
	StatusSpike      StabilityStatus = "SPIKE"
	StatusChaotic    StabilityStatus = "CHAOTIC"
	StatusUnknown    StabilityStatus = "UNKNOWN"
)

// Risky reports whether the status contributes a risk flag to ranking.
// FALSE_ALARM and UNKNOWN are deliberately not risks.
func (s StabilityStatus) Risky() bool {
	return s == StatusSpike || s == StatusChaotic
}

// StabilityCell is one classified (node, metric) cell.
type StabilityCell struct {
	Status StabilityStatus
	Reason string
	ZScore float64
	CV     float64
}

// StabilityReport maps node → metric → classified cell.
type StabilityReport map[string]map[string]StabilityCell

// Cell looks up one classified cell.
func (r StabilityReport) Cell(node, metric string) (StabilityCell, bool) {
	row, ok := r[node]
	if !ok {
		return StabilityCell{}, false
	}
	c, ok := row[metric]
	return c, ok
}

// Set stores one classified cell, creating the node row on first use.
func (r StabilityReport) Set(node, metric string, cell StabilityCell) {
	row, ok := r[node]
	if !ok {
		row = make(map[string]StabilityCell)
		r[node] = row
	}
	row[metric] = cell
}

// HistoricalStats carries the rolling-window aggregates for the stability
// analysis: metric → node → value, for both average and standard deviation.
// Absent cells are missing, not zero.
type HistoricalStats struct {
	Avg map[string]map[string]float64
	Std map[string]map[string]float64
}

// Intent is the request class decided by the intent classifier.
type Intent string

const (
	IntentStatus     Intent = "status"
	IntentAllocation Intent = "allocation"
)

// Strategy is the advisory posture selected after ranking and rescue scan.
type Strategy string

const (
	StrategyClearWinner      Strategy = "CLEAR_WINNER"
	StrategyConsiderRunnerUp Strategy = "CONSIDER_RUNNER_UP"
	StrategyProposeSafeHaven Strategy = "PROPOSE_SAFE_HAVEN"
	StrategyAllRisky         Strategy = "ALL_RISKY"
)
