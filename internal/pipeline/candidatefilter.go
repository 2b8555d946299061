package pipeline

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sre-agent/qos-advisor/internal/models"
)

// CandidateFilter converges the fan-out: profile sets intersect across the
// target profiles, then explicit user constraints prune the survivors.
type CandidateFilter struct {
	log *zap.Logger
}

// NewCandidateFilter creates the stage.
func NewCandidateFilter(log *zap.Logger) *CandidateFilter {
	return &CandidateFilter{log: log}
}

// Run executes the stage.
func (cf *CandidateFilter) Run(ctx context.Context, st *State) error {
	st.FinalCandidates = FilterCandidates(
		st.ProfileResults(), st.TargetProfiles, st.ExplicitConstraints, st.Snapshot)

	cf.log.Info("candidates filtered",
		zap.String("request_id", st.RequestID),
		zap.Strings("final_candidates", st.FinalCandidates))

	return nil
}

// FilterCandidates is the deterministic core of the stage. Results are
// sorted by profile name before the set operations so the fan-out's arrival
// order cannot influence the outcome.
func FilterCandidates(
	results []models.ProfileResult,
	targetProfiles []string,
	constraints []models.ExplicitConstraint,
	snapshot *models.Snapshot,
) []string {
	sort.Slice(results, func(i, j int) bool { return results[i].ProfileName < results[j].ProfileName })

	qualified := make(map[string]map[string]bool, len(results))
	for _, r := range results {
		set := make(map[string]bool, len(r.QualifiedNodes))
		for _, node := range r.QualifiedNodes {
			set[node] = true
		}
		qualified[r.ProfileName] = set
	}

	var initial map[string]bool
	if len(targetProfiles) == 0 {
		// Permissive: any node qualifying somewhere stays in play.
		initial = make(map[string]bool)
		for _, set := range qualified {
			for node := range set {
				initial[node] = true
			}
		}
	} else {
		// Intersection, starting from the first target profile's set.
		first, ok := qualified[targetProfiles[0]]
		if !ok {
			return nil
		}
		initial = make(map[string]bool, len(first))
		for node := range first {
			initial[node] = true
		}
		for _, name := range targetProfiles[1:] {
			set, ok := qualified[name]
			if !ok {
				return nil
			}
			for node := range initial {
				if !set[node] {
					delete(initial, node)
				}
			}
		}
	}

	var final []string
	for node := range initial {
		if satisfiesAll(node, constraints, snapshot) {
			final = append(final, node)
		}
	}
	sort.Strings(final)
	return final
}

// satisfiesAll checks every explicit constraint for one node. A missing
// metric drops the node; the first failure short-circuits.
func satisfiesAll(node string, constraints []models.ExplicitConstraint, snapshot *models.Snapshot) bool {
	for _, c := range constraints {
		value, ok := snapshot.Value(node, c.MetricName)
		if !ok {
			return false
		}
		if !c.Operator.Apply(value, c.Value) {
			return false
		}
	}
	return true
}
