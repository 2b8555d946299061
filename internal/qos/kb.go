package qos

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sre-agent/qos-advisor/internal/models"
)

// Package qos decodes and validates the QoS knowledge base fetched from the
// backend's qos/config resource. Validation is strict: an unknown operator,
// unit, or direction in the config is rejected up front with the offending
// profile or metric named, so the pipeline never hits a malformed predicate
// at evaluation time.

// ErrConfigInvalid marks a malformed knowledge base.
var ErrConfigInvalid = errors.New("invalid qos configuration")

// Decode parses the raw JSON knowledge base and validates it.
func Decode(raw []byte) (*models.KnowledgeBase, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrConfigInvalid)
	}

	// Decode into a shallow map first so a missing top-level key can be told
	// apart from an empty one.
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if _, ok := top["metrics"]; !ok {
		return nil, fmt.Errorf("%w: missing \"metrics\" key", ErrConfigInvalid)
	}
	if _, ok := top["profiles"]; !ok {
		return nil, fmt.Errorf("%w: missing \"profiles\" key", ErrConfigInvalid)
	}

	var kb models.KnowledgeBase
	if err := json.Unmarshal(raw, &kb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if kb.Metrics == nil {
		kb.Metrics = map[string]models.MetricDef{}
	}
	if kb.Profiles == nil {
		kb.Profiles = map[string]models.Profile{}
	}

	if err := Validate(&kb); err != nil {
		return nil, err
	}
	return &kb, nil
}

// Validate checks every metric and profile entry against the closed
// enumerations of the data model.
func Validate(kb *models.KnowledgeBase) error {
	for name, def := range kb.Metrics {
		if strings.TrimSpace(def.Query) == "" {
			return fmt.Errorf("%w: metric %q has no query", ErrConfigInvalid, name)
		}
		if !def.Unit.Valid() {
			return fmt.Errorf("%w: metric %q has unknown unit %q", ErrConfigInvalid, name, def.Unit)
		}
	}

	for name, prof := range kb.Profiles {
		for i, cond := range prof.RequiredConditions {
			if !cond.Operator.Valid() {
				return fmt.Errorf("%w: profile %q condition %d has unknown operator %q",
					ErrConfigInvalid, name, i, cond.Operator)
			}
			if strings.TrimSpace(cond.Metric) == "" {
				return fmt.Errorf("%w: profile %q condition %d has no metric", ErrConfigInvalid, name, i)
			}
		}
		for metric, sw := range prof.ScoringWeights {
			if sw.Weight < 0 {
				return fmt.Errorf("%w: profile %q weight for %q is negative", ErrConfigInvalid, name, metric)
			}
			if sw.Direction != models.Minimize && sw.Direction != models.Maximize {
				return fmt.Errorf("%w: profile %q weight for %q has unknown direction %q",
					ErrConfigInvalid, name, metric, sw.Direction)
			}
		}
	}
	return nil
}
