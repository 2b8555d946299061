package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sre-agent/qos-advisor/internal/models"
)

// Package render formats pipeline results for human consumption: value
// humanization per unit, markdown tables for the LLM narration prompts, and
// styled console panels for the terminal.

const (
	mib = 1024 * 1024
	gib = 1024 * mib
)

// Humanize renders a raw metric value according to its unit. Binary prefixes
// are used for bytes so a 4 GB board reads as 4.00 GB, not 4.29.
func Humanize(value float64, unit models.Unit) string {
	switch unit {
	case models.UnitPercentage:
		return fmt.Sprintf("%.2f%%", value)
	case models.UnitBytes:
		switch {
		case value >= gib:
			return fmt.Sprintf("%.2f GB", value/gib)
		case value >= mib:
			return fmt.Sprintf("%.2f MB", value/mib)
		default:
			return fmt.Sprintf("%.0f bytes", value)
		}
	case models.UnitRate:
		return fmt.Sprintf("%.2f ops/s", value)
	default:
		return fmt.Sprintf("%.2f", value)
	}
}

// ParseBytes converts a humanized byte string back to raw bytes. Constraint
// values sometimes arrive as "2 GB" rather than a number.
func ParseBytes(s string) (float64, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)

	suffixes := []struct {
		suffix string
		factor float64
	}{
		{"GB", gib},
		{"MB", mib},
		{"KB", 1024},
		{"BYTES", 1},
		{"B", 1},
	}
	for _, sf := range suffixes {
		if strings.HasSuffix(upper, sf.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(sf.suffix)])
			v, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("cannot parse byte quantity %q: %w", s, err)
			}
			return v * sf.factor, nil
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse byte quantity %q: %w", s, err)
	}
	return v, nil
}
