package alerts

import (
	"fmt"
	"strconv"
	"strings"
)

// evalCondition evaluates a rule condition string against an observation.
//
// Supported expressions (field operator value):
//
//	score < 0.3
//	score_pct <= 15
//	low_for_sec > 60
//	state == low
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, o Observation) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "state" {
		if op == "==" {
			return o.State == rhs, 0
		}
		return false, 0
	}

	v, ok := numericField(field, o)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// validCondition reports whether cond parses into a known field and operator.
func validCondition(cond string) error {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return fmt.Errorf("condition %q: want \"field op value\"", cond)
	}
	field, op, rhs := parts[0], parts[1], parts[2]
	if field == "state" {
		if op != "==" {
			return fmt.Errorf("condition %q: state supports only ==", cond)
		}
		return nil
	}
	if _, ok := numericField(field, Observation{}); !ok {
		return fmt.Errorf("condition %q: unknown field %q", cond, field)
	}
	switch op {
	case ">", ">=", "<", "<=", "==":
	default:
		return fmt.Errorf("condition %q: unknown operator %q", cond, op)
	}
	if _, err := strconv.ParseFloat(rhs, 64); err != nil {
		return fmt.Errorf("condition %q: value: %w", cond, err)
	}
	return nil
}

// numericField maps a field name to its value in the observation.
func numericField(field string, o Observation) (float64, bool) {
	switch field {
	case "score":
		return o.Score, true
	case "score_pct":
		return o.Score * 100, true
	case "low_for_sec":
		return o.LowFor.Seconds(), true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
