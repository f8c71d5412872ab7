package evaluation

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/crewcheck/agent/tasks"
	"github.com/BaSui01/crewcheck/types"
)

// Status is the judgment for one assertion or one task.
type Status string

const (
	StatusPass         Status = "pass"
	StatusFail         Status = "fail"
	StatusInconclusive Status = "inconclusive"
	// StatusError marks a task whose capability failed; it never comes from an assertion.
	StatusError Status = "error"
)

// rank orders statuses for aggregation: fail dominates inconclusive dominates pass.
func (s Status) rank() int {
	switch s {
	case StatusFail:
		return 2
	case StatusInconclusive:
		return 1
	default:
		return 0
	}
}

// Aggregate folds assertion statuses into a task status. An empty input is
// inconclusive since nothing was checked.
func Aggregate(statuses ...Status) Status {
	if len(statuses) == 0 {
		return StatusInconclusive
	}
	out := StatusPass
	for _, s := range statuses {
		if s.rank() > out.rank() {
			out = s
		}
	}
	return out
}

// AssertionResult is the outcome of one assertion.
type AssertionResult struct {
	Assertion tasks.Assertion `json:"assertion"`
	Status    Status          `json:"status"`
	Expected  string          `json:"expected,omitempty"`
	Actual    string          `json:"actual,omitempty"`
	Detail    string          `json:"detail,omitempty"`
}

// ErrorDetail carries the execution failure behind an error verdict.
type ErrorDetail struct {
	Code      types.ErrorCode `json:"code"`
	Message   string          `json:"message"`
	Retryable bool            `json:"retryable"`
}

// Verdict is the judgment for one task.
type Verdict struct {
	TaskID     string            `json:"task_id"`
	AgentID    string            `json:"agent_id"`
	Status     Status            `json:"status"`
	Assertions []AssertionResult `json:"assertions,omitempty"`
	Detail     string            `json:"detail,omitempty"`
	Error      *ErrorDetail      `json:"error,omitempty"`
	Outcome    *types.Outcome    `json:"outcome,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    time.Time         `json:"ended_at"`
	Duration   time.Duration     `json:"duration"`
	Attempts   int               `json:"attempts,omitempty"`
}

// Mismatches returns every assertion that did not pass, in declaration order.
func (v Verdict) Mismatches() []AssertionResult {
	var out []AssertionResult
	for _, r := range v.Assertions {
		if r.Status != StatusPass {
			out = append(out, r)
		}
	}
	return out
}

// HasTimestamps reports whether the verdict carries a usable time window.
func (v Verdict) HasTimestamps() bool {
	return !v.StartedAt.IsZero() && !v.EndedAt.IsZero()
}

// Explain renders the verdict and all its mismatches as text.
func (v Verdict) Explain() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", v.TaskID, v.AgentID, strings.ToUpper(string(v.Status)))
	if v.Error != nil {
		fmt.Fprintf(&b, ": %s %s", v.Error.Code, v.Error.Message)
	} else if v.Detail != "" {
		fmt.Fprintf(&b, ": %s", v.Detail)
	}
	for _, m := range v.Mismatches() {
		fmt.Fprintf(&b, "\n  - %s (%s)", m.Assertion.Label(), m.Status)
		if m.Expected != "" || m.Actual != "" {
			fmt.Fprintf(&b, " expected %s, got %s", m.Expected, orNone(m.Actual))
		}
		if m.Detail != "" {
			fmt.Fprintf(&b, ": %s", m.Detail)
		}
	}
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}
