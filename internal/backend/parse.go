package backend

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// queryEnvelope is the instant-vector result shape returned by execute_query.
type queryEnvelope struct {
	Result []struct {
		Metric map[string]string `json:"metric"`
		Value  []json.RawMessage `json:"value"`
	} `json:"result"`
}

// Sample is one parsed query result row: a node identity and its value.
type Sample struct {
	Node  string
	Value float64
}

// ParseQueryEnvelope decodes an execute_query result into per-node samples.
// The node identity comes from the "name" label, falling back to "instance"
// and then "unknown". Values are rounded to three decimals; rows whose value
// is missing, non-numeric or non-finite are dropped.
func ParseQueryEnvelope(text string) ([]Sample, error) {
	var env queryEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, fmt.Errorf("query result is not valid JSON: %w", err)
	}

	samples := make([]Sample, 0, len(env.Result))
	for _, row := range env.Result {
		if len(row.Value) < 2 {
			continue
		}
		var str string
		if err := json.Unmarshal(row.Value[1], &str); err != nil {
			// Some backends emit a bare number rather than a quoted string.
			var num float64
			if nerr := json.Unmarshal(row.Value[1], &num); nerr != nil {
				continue
			}
			str = strconv.FormatFloat(num, 'f', -1, 64)
		}
		v, err := strconv.ParseFloat(str, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}

		node := row.Metric["name"]
		if node == "" {
			node = row.Metric["instance"]
		}
		if node == "" {
			node = "unknown"
		}
		samples = append(samples, Sample{Node: node, Value: round3(v)})
	}
	return samples, nil
}

// round3 rounds to three decimal places so snapshots compare cleanly.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// targetsEnvelope is the result shape of get_targets.
type targetsEnvelope struct {
	ActiveTargets []Target `json:"activeTargets"`
}

// ParseTargets decodes a get_targets result, dropping duplicate and nameless
// targets and returning the rest sorted by node name.
func ParseTargets(text string) ([]Target, error) {
	var env targetsEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, fmt.Errorf("targets result is not valid JSON: %w", err)
	}

	seen := make(map[string]bool, len(env.ActiveTargets))
	targets := make([]Target, 0, len(env.ActiveTargets))
	for _, t := range env.ActiveTargets {
		name := t.Name()
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Name() < targets[j].Name() })
	return targets, nil
}
