// Package playbook implements the pure parts of the playbook engine:
// trigger-condition matching, step-schedule generation, and the built-in
// system playbook definitions. Enrollment orchestration lives in
// internal/service/enrollment.
package playbook

import (
	"fmt"

	"github.com/griphq/retention-engine/internal/domain"
)

// Matches reports whether a member fact record satisfies every condition.
// Conditions are ANDed; an empty list always matches. A missing field, a
// non-numeric field under a numeric operator, or a malformed condition value
// fails that condition rather than erroring - matching is total.
func Matches(record map[string]any, conditions []domain.TriggerCondition) bool {
	for _, cond := range conditions {
		val, ok := record[cond.Field]
		if !ok {
			return false
		}
		if !matchOne(val, cond) {
			return false
		}
	}
	return true
}

func matchOne(val any, cond domain.TriggerCondition) bool {
	switch cond.Operator {
	case domain.OpEq:
		return equals(val, cond.Value)
	case domain.OpGt, domain.OpLt, domain.OpGte, domain.OpLte:
		f, ok := toFloat(val)
		if !ok {
			return false
		}
		want, ok := toFloat(cond.Value)
		if !ok {
			return false
		}
		switch cond.Operator {
		case domain.OpGt:
			return f > want
		case domain.OpLt:
			return f < want
		case domain.OpGte:
			return f >= want
		default:
			return f <= want
		}
	case domain.OpIn:
		return containsString(cond.Value, fmt.Sprintf("%v", val))
	default:
		return false
	}
}

// equals compares numerically when both sides are numbers (JSON decoding
// yields float64 for playbook values while fact records carry ints), and by
// value otherwise.
func equals(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func containsString(list any, want string) bool {
	switch vs := list.(type) {
	case []string:
		for _, s := range vs {
			if s == want {
				return true
			}
		}
	case []any:
		for _, v := range vs {
			if fmt.Sprintf("%v", v) == want {
				return true
			}
		}
	}
	return false
}
