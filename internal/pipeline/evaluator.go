package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sre-agent/qos-advisor/internal/models"
)

// ProfileEvaluator is the deterministic fan-out: for each relevant profile,
// every node in the snapshot is checked against the profile's gate
// conditions. One goroutine per profile; each appends its own result.
type ProfileEvaluator struct {
	log *zap.Logger
}

// NewProfileEvaluator creates the stage.
func NewProfileEvaluator(log *zap.Logger) *ProfileEvaluator {
	return &ProfileEvaluator{log: log}
}

// Run executes the stage.
func (pe *ProfileEvaluator) Run(ctx context.Context, st *State) error {
	profiles := pe.selectProfiles(st)

	var wg sync.WaitGroup
	for _, name := range profiles {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			st.AppendProfileResult(EvaluateProfile(name, st.KB.Profiles[name], st.Snapshot))
		}(name)
	}
	wg.Wait()

	pe.log.Info("profiles evaluated",
		zap.String("request_id", st.RequestID),
		zap.Int("profiles", len(profiles)),
		zap.Int("nodes", len(st.Snapshot.Values)))

	return nil
}

// selectProfiles applies early binding: an allocation request with a valid
// target set evaluates only those profiles; anything else evaluates all.
func (pe *ProfileEvaluator) selectProfiles(st *State) []string {
	if st.Intent == models.IntentAllocation && len(st.TargetProfiles) > 0 {
		var present []string
		for _, name := range st.TargetProfiles {
			if _, ok := st.KB.Profiles[name]; ok {
				present = append(present, name)
			}
		}
		if len(present) > 0 {
			return present
		}
		pe.log.Warn("target profiles matched nothing, evaluating all",
			zap.String("request_id", st.RequestID),
			zap.Strings("target_profiles", st.TargetProfiles))
	}
	return st.KB.ProfileNames()
}

// EvaluateProfile checks every node of the snapshot against one profile's
// gate conditions. Pure function: same inputs, same result.
func EvaluateProfile(name string, profile models.Profile, snapshot *models.Snapshot) models.ProfileResult {
	result := models.ProfileResult{
		ProfileName: name,
		AuditLines:  make(map[string][]string),
	}

	for _, node := range snapshot.Nodes() {
		qualified := true
		var lines []string
		for _, cond := range profile.RequiredConditions {
			value, ok := snapshot.Value(node, cond.Metric)
			if !ok {
				lines = append(lines, fmt.Sprintf("%s: N/A (FAIL)", cond.Metric))
				qualified = false
				continue
			}
			pass := cond.Operator.Apply(value, cond.Threshold)
			verdict := "PASS"
			if !pass {
				verdict = "FAIL"
				qualified = false
			}
			lines = append(lines, fmt.Sprintf("%s: %.2f %s %.2f (%s)",
				cond.Metric, value, cond.Operator, cond.Threshold, verdict))
		}
		result.AuditLines[node] = lines
		if qualified {
			result.QualifiedNodes = append(result.QualifiedNodes, node)
		}
	}

	sort.Strings(result.QualifiedNodes)
	return result
}
