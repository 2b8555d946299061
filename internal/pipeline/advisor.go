package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sre-agent/qos-advisor/internal/llm/adapter"
	"github.com/sre-agent/qos-advisor/internal/llm/types"
	"github.com/sre-agent/qos-advisor/internal/metrics"
	"github.com/sre-agent/qos-advisor/internal/models"
	"github.com/sre-agent/qos-advisor/internal/render"
)

// AllocationAdvisor turns the filtered candidates into a recommendation:
// weighted min-max scores, a deterministic ranking, a rescue scan for a
// risk-free node, and a strategy label that frames the narration. The LLM
// only words the outcome; the numbers are already settled.
type AllocationAdvisor struct {
	llm *adapter.Adapter
	log *zap.Logger
}

// NewAllocationAdvisor creates the stage.
func NewAllocationAdvisor(llm *adapter.Adapter, log *zap.Logger) *AllocationAdvisor {
	return &AllocationAdvisor{llm: llm, log: log}
}

// defaultWeights covers an allocation request that mapped to no profile.
func defaultWeights() map[string]models.ScoringWeight {
	return map[string]models.ScoringWeight{
		"cpu_usage_pct": {Weight: 1.0, Direction: models.Minimize},
	}
}

// MixWeights merges scoring weights across the target profiles with
// max-weight-wins, then normalizes to sum 1 (skipped when the sum is 0).
func MixWeights(targetProfiles []string, kb *models.KnowledgeBase) map[string]models.ScoringWeight {
	if len(targetProfiles) == 0 {
		return defaultWeights()
	}

	mixed := make(map[string]models.ScoringWeight)
	for _, name := range targetProfiles {
		profile, ok := kb.Profiles[name]
		if !ok {
			continue
		}
		for metric, sw := range profile.ScoringWeights {
			if prev, ok := mixed[metric]; !ok || sw.Weight > prev.Weight {
				mixed[metric] = sw
			}
		}
	}
	if len(mixed) == 0 {
		return defaultWeights()
	}

	var sum float64
	for _, sw := range mixed {
		sum += sw.Weight
	}
	if sum > 0 {
		for metric, sw := range mixed {
			sw.Weight /= sum
			mixed[metric] = sw
		}
	}
	return mixed
}

// RankCandidates computes weighted min-max scores and risk lists, then sorts
// by descending score with lexicographic tie-break. Pure function.
func RankCandidates(
	candidates []string,
	weights map[string]models.ScoringWeight,
	snapshot *models.Snapshot,
	stability models.StabilityReport,
) []RankedCandidate {
	scores := make(map[string]float64, len(candidates))

	metricNames := make([]string, 0, len(weights))
	for name := range weights {
		metricNames = append(metricNames, name)
	}
	sort.Strings(metricNames)

	for _, metric := range metricNames {
		sw := weights[metric]

		// Collect the candidates that actually have a reading.
		var present []string
		minV, maxV := 0.0, 0.0
		for _, node := range candidates {
			v, ok := snapshot.Value(node, metric)
			if !ok {
				continue
			}
			if len(present) == 0 || v < minV {
				minV = v
			}
			if len(present) == 0 || v > maxV {
				maxV = v
			}
			present = append(present, node)
		}
		spread := maxV - minV

		for _, node := range present {
			v, _ := snapshot.Value(node, metric)
			var component float64
			switch {
			case spread == 0:
				component = 1
			case sw.Direction == models.Minimize:
				component = (maxV - v) / spread
			default:
				component = (v - minV) / spread
			}
			scores[node] += component * sw.Weight
		}
	}

	ranked := make([]RankedCandidate, 0, len(candidates))
	for _, node := range candidates {
		rc := RankedCandidate{Node: node, Score: scores[node]}
		for _, metric := range metricNames {
			if cell, ok := stability.Cell(node, metric); ok && cell.Status.Risky() {
				rc.Risks = append(rc.Risks, fmt.Sprintf("%s → %s", metric, cell.Reason))
			}
		}
		ranked = append(ranked, rc)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Node < ranked[j].Node
	})
	return ranked
}

// SelectStrategy applies the advisory posture table to a ranking.
func SelectStrategy(ranked []RankedCandidate) (models.Strategy, string, string, string) {
	winner := ranked[0].Node
	runnerUp := ""
	if len(ranked) > 1 {
		runnerUp = ranked[1].Node
	}

	safeHaven := ""
	for _, rc := range ranked {
		if len(rc.Risks) == 0 {
			safeHaven = rc.Node
			break
		}
	}

	switch {
	case len(ranked[0].Risks) == 0:
		return models.StrategyClearWinner, winner, runnerUp, safeHaven
	case safeHaven != "" && safeHaven == runnerUp:
		return models.StrategyConsiderRunnerUp, winner, runnerUp, safeHaven
	case safeHaven != "":
		return models.StrategyProposeSafeHaven, winner, runnerUp, safeHaven
	default:
		return models.StrategyAllRisky, winner, runnerUp, ""
	}
}

// strategyInstructions frame the narration per posture.
var strategyInstructions = map[models.Strategy]string{
	models.StrategyClearWinner:      "Recommend the winner plainly. It leads the ranking and carries no risk flags.",
	models.StrategyConsiderRunnerUp: "The winner leads on score but carries risk flags; the runner-up is risk-free. Present both and lean toward the runner-up for risk-averse placements.",
	models.StrategyProposeSafeHaven: "The top of the ranking carries risk flags. Point out the safe haven lower in the ranking as the stable alternative.",
	models.StrategyAllRisky:         "Every candidate carries risk flags. Recommend the winner but state clearly that no risk-free node exists right now.",
}

// Run executes the stage.
func (aa *AllocationAdvisor) Run(ctx context.Context, st *State) error {
	if len(st.FinalCandidates) == 0 {
		st.Advice = Advice{
			Text: "No suitable node found: no candidate satisfies the requested profiles and constraints.",
		}
		aa.log.Info("no candidates to rank", zap.String("request_id", st.RequestID))
		return nil
	}

	weights := MixWeights(st.TargetProfiles, st.KB)
	ranked := RankCandidates(st.FinalCandidates, weights, st.Snapshot, st.Stability)
	strategy, winner, runnerUp, safeHaven := SelectStrategy(ranked)

	st.Advice = Advice{
		Strategy:  strategy,
		Ranked:    ranked,
		Winner:    winner,
		RunnerUp:  runnerUp,
		SafeHaven: safeHaven,
	}
	metrics.AdviceTotal.WithLabelValues(string(strategy)).Inc()

	shown := shownCandidates(ranked, strategy, winner, runnerUp, safeHaven)
	table := aa.candidateTable(shown, ranked, weights, st)

	prompt := fmt.Sprintf(
		"Strategy: %s\n%s\n\nWinner: %s\nRunner-up: %s\nSafe haven: %s\n\nCandidates:\n%s\n\nOperator request: %s",
		strategy, strategyInstructions[strategy],
		winner, orNone(runnerUp), orNone(safeHaven),
		table, st.LastUserMessage())

	text, err := aa.llm.Generate(ctx, "advise", []types.Message{
		{Role: types.RoleSystem, Content: "You word a placement recommendation for an SRE. The ranking, scores and strategy are final; explain them, never re-rank or recompute. Be concise and concrete."},
		{Role: types.RoleUser, Content: prompt},
	})
	if err != nil {
		aa.log.Warn("advice narration failed, emitting deterministic summary",
			zap.String("request_id", st.RequestID), zap.Error(err))
		text = fmt.Sprintf("Recommended node: %s (strategy %s).\n\n%s", winner, strategy, table)
	}
	st.Advice.Text = text

	aa.log.Info("advice emitted",
		zap.String("request_id", st.RequestID),
		zap.String("strategy", string(strategy)),
		zap.String("winner", winner))

	return nil
}

// shownCandidates picks which nodes the narration may talk about.
func shownCandidates(ranked []RankedCandidate, strategy models.Strategy, winner, runnerUp, safeHaven string) []string {
	switch strategy {
	case models.StrategyClearWinner:
		if runnerUp != "" {
			return []string{winner, runnerUp}
		}
		return []string{winner}
	case models.StrategyConsiderRunnerUp:
		return []string{winner, runnerUp}
	case models.StrategyProposeSafeHaven:
		shown := []string{winner}
		if runnerUp != "" {
			shown = append(shown, runnerUp)
		}
		return append(shown, safeHaven)
	default:
		var all []string
		for _, rc := range ranked {
			all = append(all, rc.Node)
		}
		return all
	}
}

// candidateTable renders the shown candidates with humanized readings.
func (aa *AllocationAdvisor) candidateTable(
	shown []string,
	ranked []RankedCandidate,
	weights map[string]models.ScoringWeight,
	st *State,
) string {
	byNode := make(map[string]RankedCandidate, len(ranked))
	for _, rc := range ranked {
		byNode[rc.Node] = rc
	}

	var rows []map[string]string
	for _, rc := range ranked {
		included := false
		for _, node := range shown {
			if node == rc.Node {
				included = true
				break
			}
		}
		if !included {
			continue
		}

		row := map[string]string{
			"node":  rc.Node,
			"score": fmt.Sprintf("%.3f", rc.Score),
			"risks": orNone(strings.Join(rc.Risks, "; ")),
		}
		for metric := range weights {
			if v, ok := st.Snapshot.Value(rc.Node, metric); ok {
				row[metric] = render.Humanize(v, st.KB.Metrics[metric].Unit)
			}
		}
		rows = append(rows, row)
	}
	return render.Table("node", rows)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
