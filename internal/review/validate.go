package review

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// VerdictKind classifies a validation outcome.
type VerdictKind int

const (
	// Ok means the value passed validation unchanged.
	Ok VerdictKind = iota
	// Rejected means the value is unusable and must not be committed.
	Rejected
	// Clamped means the value was adjusted into range. A clamped value is
	// never auto-committed: the caller re-presents it for confirmation.
	Clamped
)

func (k VerdictKind) String() string {
	switch k {
	case Ok:
		return "ok"
	case Rejected:
		return "rejected"
	case Clamped:
		return "clamped"
	default:
		return fmt.Sprintf("VerdictKind(%d)", int(k))
	}
}

// Verdict is the result of validating a single field edit. For numeric and
// percentage fields Value holds the parsed (possibly clamped) float64; for
// free-form fields it holds the raw input untouched.
type Verdict struct {
	Kind   VerdictKind
	Value  any
	Reason string
}

// Percentage markup fields are clamped into [0, maxMarkupPct].
const maxMarkupPct = 30.0

var numericFields = map[string]bool{
	"quantity":  true,
	"unit_cost": true,
}

var percentFields = map[string]bool{
	"overhead_pct":    true,
	"profit_pct":      true,
	"contingency_pct": true,
}

// Validate applies the shared numeric-field policy to a raw edit value.
// Numeric fields must parse as a number (Rejected otherwise) and are clamped
// to zero when negative. Percentage fields are clamped into [0, 30]. Fields
// outside the policy pass through unchanged.
func Validate(field string, raw any) Verdict {
	switch {
	case numericFields[field]:
		v, ok := toNumber(raw)
		if !ok {
			return Verdict{Kind: Rejected, Reason: fmt.Sprintf("%s must be a number, got %q", field, fmt.Sprint(raw))}
		}
		if v < 0 {
			return Verdict{Kind: Clamped, Value: 0.0, Reason: fmt.Sprintf("%s cannot be negative; clamped to 0", field)}
		}
		return Verdict{Kind: Ok, Value: v}

	case percentFields[field]:
		v, ok := toNumber(raw)
		if !ok {
			return Verdict{Kind: Rejected, Reason: fmt.Sprintf("%s must be a number, got %q", field, fmt.Sprint(raw))}
		}
		if v < 0 {
			return Verdict{Kind: Clamped, Value: 0.0, Reason: fmt.Sprintf("%s cannot be negative; clamped to 0", field)}
		}
		if v > maxMarkupPct {
			return Verdict{Kind: Clamped, Value: maxMarkupPct, Reason: fmt.Sprintf("%s capped at %.0f%%", field, maxMarkupPct)}
		}
		return Verdict{Kind: Ok, Value: v}

	default:
		return Verdict{Kind: Ok, Value: raw}
	}
}

// toNumber coerces the value representations that reach the session: JSON
// numbers decode as float64, CLI input arrives as strings.
func toNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return finite(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return finite(f)
	default:
		return 0, false
	}
}

// finite rejects NaN and infinities, which strconv.ParseFloat accepts but
// which cannot reach the backend as JSON.
func finite(f float64) (float64, bool) {
	return f, !math.IsNaN(f) && !math.IsInf(f, 0)
}
