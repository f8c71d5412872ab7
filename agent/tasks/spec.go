package tasks

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// AssertionKind selects the matching strategy for one assertion.
type AssertionKind string

const (
	// AssertNumeric compares a numeric field against Value within Tolerance.
	AssertNumeric AssertionKind = "numeric"
	// AssertContains checks that a text field contains Text.
	AssertContains AssertionKind = "contains"
	// AssertEquals checks that a text field equals Text.
	AssertEquals AssertionKind = "equals"
	// AssertSideEffect checks that a side effect of kind Effect with Fields occurred.
	AssertSideEffect AssertionKind = "side_effect"
	// AssertSemantic checks that a text field is similar to Text above Threshold.
	AssertSemantic AssertionKind = "semantic"
)

// Assertion is one structured expectation about a task's outcome.
type Assertion struct {
	Kind  AssertionKind `json:"kind" yaml:"kind"`
	Field string        `json:"field,omitempty" yaml:"field,omitempty"`

	// numeric
	Value     *float64 `json:"value,omitempty" yaml:"value,omitempty"`
	Tolerance *float64 `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`

	// contains / equals / semantic
	Text          string  `json:"text,omitempty" yaml:"text,omitempty"`
	CaseSensitive bool    `json:"case_sensitive,omitempty" yaml:"case_sensitive,omitempty"`
	Threshold     float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`

	// side_effect
	Effect string            `json:"effect,omitempty" yaml:"effect,omitempty"`
	Fields map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`

	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Label renders a short human-readable form, used in mismatch details.
func (a Assertion) Label() string {
	if a.Description != "" {
		return a.Description
	}
	switch a.Kind {
	case AssertNumeric:
		if a.Value == nil {
			return fmt.Sprintf("%s numeric", a.Field)
		}
		if a.Tolerance != nil {
			return fmt.Sprintf("%s ≈ %v (±%v)", a.Field, *a.Value, *a.Tolerance)
		}
		return fmt.Sprintf("%s == %v", a.Field, *a.Value)
	case AssertContains:
		return fmt.Sprintf("%s contains %q", a.Field, a.Text)
	case AssertEquals:
		return fmt.Sprintf("%s equals %q", a.Field, a.Text)
	case AssertSideEffect:
		return fmt.Sprintf("side effect %s", a.Effect)
	case AssertSemantic:
		return fmt.Sprintf("%s similar to %q", a.Field, a.Text)
	default:
		return string(a.Kind)
	}
}

// Validate checks that the assertion is well formed for its kind.
func (a Assertion) Validate() error {
	switch a.Kind {
	case AssertNumeric:
		if a.Field == "" {
			return fmt.Errorf("numeric assertion needs a field")
		}
		if a.Value == nil {
			return fmt.Errorf("numeric assertion on %q needs a value", a.Field)
		}
		if !finite(*a.Value) {
			return fmt.Errorf("numeric assertion on %q has non-finite value %v", a.Field, *a.Value)
		}
		if a.Tolerance != nil && !finite(*a.Tolerance) {
			return fmt.Errorf("numeric assertion on %q has non-finite tolerance %v", a.Field, *a.Tolerance)
		}
		if a.Tolerance != nil && *a.Tolerance < 0 {
			return fmt.Errorf("numeric assertion on %q has negative tolerance", a.Field)
		}
	case AssertContains, AssertEquals:
		if a.Field == "" {
			return fmt.Errorf("%s assertion needs a field", a.Kind)
		}
		if a.Text == "" {
			return fmt.Errorf("%s assertion on %q needs text", a.Kind, a.Field)
		}
	case AssertSemantic:
		if a.Text == "" {
			return fmt.Errorf("semantic assertion needs reference text")
		}
		if math.IsNaN(a.Threshold) || a.Threshold < 0 || a.Threshold > 1 {
			return fmt.Errorf("semantic threshold %v outside [0,1]", a.Threshold)
		}
	case AssertSideEffect:
		if a.Effect == "" {
			return fmt.Errorf("side_effect assertion needs an effect kind")
		}
	case "":
		return fmt.Errorf("assertion kind is empty")
	default:
		return fmt.Errorf("unknown assertion kind %q", a.Kind)
	}
	return nil
}

// TaskSpec is one scenario input plus its structured expected outcome.
type TaskSpec struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	// ExpectedOutput is the prose form of the expectation; it is reported but not evaluated.
	ExpectedOutput       string        `json:"expected_output,omitempty"`
	Expect               []Assertion   `json:"expect,omitempty"`
	AgentID              string        `json:"agent_id"`
	RequiredCapabilities []string      `json:"required_capabilities,omitempty"`
	DependsOn            []string      `json:"depends_on,omitempty"`
	Timeout              time.Duration `json:"timeout,omitempty"`
	Tags                 []string      `json:"tags,omitempty"`
}

func (s TaskSpec) clone() TaskSpec {
	s.ID = strings.TrimSpace(s.ID)
	s.RequiredCapabilities = slices.Clone(s.RequiredCapabilities)
	s.DependsOn = slices.Clone(s.DependsOn)
	s.Tags = slices.Clone(s.Tags)
	if s.Expect != nil {
		expect := make([]Assertion, len(s.Expect))
		for i, a := range s.Expect {
			if a.Value != nil {
				v := *a.Value
				a.Value = &v
			}
			if a.Tolerance != nil {
				v := *a.Tolerance
				a.Tolerance = &v
			}
			if a.Fields != nil {
				fields := make(map[string]string, len(a.Fields))
				for k, v := range a.Fields {
					fields[k] = v
				}
				a.Fields = fields
			}
			expect[i] = a
		}
		s.Expect = expect
	}
	return s
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Float is a helper for building numeric assertions in code.
func Float(v float64) *float64 {
	return &v
}
