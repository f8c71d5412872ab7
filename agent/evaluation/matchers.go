package evaluation

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/BaSui01/crewcheck/agent/tasks"
	"github.com/BaSui01/crewcheck/types"
	"github.com/shopspring/decimal"
)

// Matcher evaluates one assertion kind against an outcome.
type Matcher interface {
	Match(a tasks.Assertion, out *types.Outcome) AssertionResult
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(a tasks.Assertion, out *types.Outcome) AssertionResult

// Match calls f.
func (f MatcherFunc) Match(a tasks.Assertion, out *types.Outcome) AssertionResult {
	return f(a, out)
}

func result(a tasks.Assertion, status Status) AssertionResult {
	return AssertionResult{Assertion: a, Status: status}
}

func missingField(a tasks.Assertion) AssertionResult {
	r := result(a, StatusInconclusive)
	r.Detail = fmt.Sprintf("field %q absent from outcome", a.Field)
	return r
}

// numericMatcher compares in decimal on the shortest representation of each
// float, so 17.49 is within 0.01 of 17.50.
func numericMatcher(a tasks.Assertion, out *types.Outcome) AssertionResult {
	raw, ok := out.Lookup(a.Field)
	if !ok || raw == nil {
		return missingField(a)
	}
	if a.Value == nil {
		r := result(a, StatusInconclusive)
		r.Detail = "no expected value declared"
		return r
	}
	expected, err := floatDecimal(*a.Value)
	if err != nil {
		r := result(a, StatusInconclusive)
		r.Detail = "expected value is not finite"
		return r
	}
	var tolerance decimal.Decimal
	if a.Tolerance != nil {
		if tolerance, err = floatDecimal(*a.Tolerance); err != nil {
			r := result(a, StatusInconclusive)
			r.Detail = "tolerance is not finite"
			return r
		}
	}
	r := result(a, StatusFail)
	r.Expected = expected.String()
	if a.Tolerance != nil {
		r.Expected += " ±" + tolerance.String()
	}

	actual, err := toDecimal(raw)
	if err != nil {
		r.Actual = fmt.Sprint(raw)
		r.Detail = "value is not numeric"
		return r
	}
	r.Actual = actual.String()

	diff := actual.Sub(expected).Abs()
	if a.Tolerance == nil {
		if diff.IsZero() {
			r.Status = StatusPass
		}
		return r
	}
	if diff.LessThanOrEqual(tolerance) {
		r.Status = StatusPass
		return r
	}
	r.Detail = "off by " + diff.String()
	return r
}

func containsMatcher(a tasks.Assertion, out *types.Outcome) AssertionResult {
	raw, ok := out.Lookup(a.Field)
	if !ok || raw == nil {
		return missingField(a)
	}
	actual := stringify(raw)
	r := result(a, StatusFail)
	r.Expected = fmt.Sprintf("contains %q", a.Text)
	r.Actual = fmt.Sprintf("%q", actual)

	haystack, needle := actual, a.Text
	if !a.CaseSensitive {
		haystack, needle = strings.ToLower(haystack), strings.ToLower(needle)
	}
	if strings.Contains(haystack, needle) {
		r.Status = StatusPass
	}
	return r
}

func equalsMatcher(a tasks.Assertion, out *types.Outcome) AssertionResult {
	raw, ok := out.Lookup(a.Field)
	if !ok || raw == nil {
		return missingField(a)
	}
	r := result(a, StatusFail)
	r.Expected = fmt.Sprintf("%q", a.Text)
	r.Actual = fmt.Sprintf("%q", stringify(raw))
	if valuesEqual(raw, a.Text, a.CaseSensitive) {
		r.Status = StatusPass
	}
	return r
}

// sideEffectMatcher passes when any recorded side effect has the asserted
// kind and every required field. A missing side effect is a failure.
func sideEffectMatcher(a tasks.Assertion, out *types.Outcome) AssertionResult {
	r := result(a, StatusFail)
	r.Expected = a.Effect
	if len(a.Fields) > 0 {
		r.Expected += " " + formatFields(a.Fields)
	}

	var sameKind int
	var closest []string
	for _, effect := range out.SideEffects {
		if effect.Kind != a.Effect {
			continue
		}
		sameKind++
		mismatched := effectMismatches(effect, a.Fields)
		if len(mismatched) == 0 {
			r.Status = StatusPass
			r.Actual = effect.Kind
			return r
		}
		if closest == nil || len(mismatched) < len(closest) {
			closest = mismatched
		}
	}

	if sameKind == 0 {
		r.Detail = fmt.Sprintf("no side effect of kind %q recorded (%d recorded in total)", a.Effect, len(out.SideEffects))
		return r
	}
	r.Actual = fmt.Sprintf("%d %s side effect(s)", sameKind, a.Effect)
	r.Detail = "field mismatch: " + strings.Join(closest, "; ")
	return r
}

func effectMismatches(effect types.SideEffect, want map[string]string) []string {
	keys := make([]string, 0, len(want))
	for k := range want {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	holder := &types.Outcome{Fields: effect.Fields}
	var out []string
	for _, k := range keys {
		got, ok := holder.Lookup(k)
		if !ok {
			out = append(out, fmt.Sprintf("%s missing", k))
			continue
		}
		if !valuesEqual(got, want[k], false) {
			out = append(out, fmt.Sprintf("%s=%v, want %s", k, got, want[k]))
		}
	}
	return out
}

// semanticMatcher scores word-level cosine similarity against the reference text.
func semanticMatcher(defaultThreshold float64) MatcherFunc {
	return func(a tasks.Assertion, out *types.Outcome) AssertionResult {
		field := a.Field
		if field == "" {
			field = types.TextField
		}
		raw, ok := out.Lookup(field)
		if !ok || raw == nil {
			a.Field = field
			return missingField(a)
		}
		threshold := a.Threshold
		if threshold <= 0 {
			threshold = defaultThreshold
		}
		score := Similarity(stringify(raw), a.Text)

		r := result(a, StatusFail)
		r.Expected = fmt.Sprintf("similarity ≥ %.2f", threshold)
		r.Actual = fmt.Sprintf("%.2f", score)
		if score >= threshold {
			r.Status = StatusPass
		}
		return r
	}
}

func valuesEqual(got any, want string, caseSensitive bool) bool {
	if g, err := toDecimal(got); err == nil {
		if w, err := parseDecimal(want); err == nil {
			return g.Equal(w)
		}
	}
	gs, ws := strings.TrimSpace(stringify(got)), strings.TrimSpace(want)
	if caseSensitive {
		return gs == ws
	}
	return strings.EqualFold(gs, ws)
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case float64:
		return floatDecimal(n)
	case float32:
		if math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
			return decimal.Decimal{}, fmt.Errorf("not a finite number: %v", n)
		}
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int8:
		return decimal.NewFromInt(int64(n)), nil
	case int16:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case uint8:
		return decimal.NewFromInt(int64(n)), nil
	case uint16:
		return decimal.NewFromInt(int64(n)), nil
	case uint32:
		return decimal.NewFromInt(int64(n)), nil
	case uint:
		return decimal.NewFromString(strconv.FormatUint(uint64(n), 10))
	case uint64:
		return decimal.NewFromString(strconv.FormatUint(n, 10))
	case json.Number:
		return decimal.NewFromString(n.String())
	case decimal.Decimal:
		return n, nil
	case string:
		return parseDecimal(n)
	default:
		return decimal.Decimal{}, fmt.Errorf("not a number: %T", v)
	}
}

// floatDecimal rejects NaN and infinities, which decimal cannot represent.
func floatDecimal(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, fmt.Errorf("not a finite number: %v", f)
	}
	return decimal.NewFromFloat(f), nil
}

// parseDecimal accepts money-formatted strings such as "$1,017.50".
func parseDecimal(s string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', ',', ' ', '\u00a0':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if cleaned == "" {
		return decimal.Decimal{}, fmt.Errorf("empty number")
	}
	return decimal.NewFromString(cleaned)
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

func formatFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + fields[k]
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
