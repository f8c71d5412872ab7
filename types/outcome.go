package types

import (
	"strings"
	"time"
)

// TextField is the payload field name that falls back to Outcome.Text.
const TextField = "text"

// Outcome is the raw structured result of executing one task through a capability.
type Outcome struct {
	Text        string         `json:"text,omitempty" yaml:"text,omitempty"`
	Fields      map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
	SideEffects []SideEffect   `json:"side_effects,omitempty" yaml:"side_effects,omitempty"`
	Trace       []Invocation   `json:"trace,omitempty" yaml:"trace,omitempty"`

	// Capability-reported timing. Zero values mean the capability did not report them.
	StartedAt time.Time     `json:"started_at,omitempty" yaml:"-"`
	EndedAt   time.Time     `json:"ended_at,omitempty" yaml:"-"`
	Duration  time.Duration `json:"duration,omitempty" yaml:"-"`
}

// SideEffect records an externally visible action, e.g. "spreadsheet.row_appended".
type SideEffect struct {
	Kind   string         `json:"kind" yaml:"kind"`
	Fields map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Invocation is one entry of the capability's tool invocation trace.
type Invocation struct {
	Tool     string        `json:"tool" yaml:"tool"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Lookup resolves a dotted field path ("receipt.vendor") in the payload.
// The "text" field falls back to Outcome.Text when the payload has no such key.
func (o *Outcome) Lookup(path string) (any, bool) {
	if o == nil {
		return nil, false
	}
	if v, ok := lookupPath(o.Fields, path); ok {
		return v, true
	}
	if path == TextField && o.Text != "" {
		return o.Text, true
	}
	return nil, false
}

// HasTimestamps reports whether the capability reported a start and end time.
func (o *Outcome) HasTimestamps() bool {
	return o != nil && !o.StartedAt.IsZero() && !o.EndedAt.IsZero()
}

func lookupPath(fields map[string]any, path string) (any, bool) {
	if len(fields) == 0 || path == "" {
		return nil, false
	}
	if v, ok := fields[path]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	switch next := fields[head].(type) {
	case map[string]any:
		return lookupPath(next, rest)
	case map[any]any:
		converted := make(map[string]any, len(next))
		for k, v := range next {
			if ks, ok := k.(string); ok {
				converted[ks] = v
			}
		}
		return lookupPath(converted, rest)
	default:
		return nil, false
	}
}
