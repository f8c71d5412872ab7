package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/crewcheck/agent/evaluation"
	"github.com/google/uuid"
)

// Counts aggregates verdict statuses.
type Counts struct {
	Total        int `json:"total"`
	Pass         int `json:"pass"`
	Fail         int `json:"fail"`
	Inconclusive int `json:"inconclusive"`
	Error        int `json:"error"`
}

// Add counts one verdict status.
func (c *Counts) Add(s evaluation.Status) {
	c.Total++
	switch s {
	case evaluation.StatusPass:
		c.Pass++
	case evaluation.StatusFail:
		c.Fail++
	case evaluation.StatusError:
		c.Error++
	default:
		c.Inconclusive++
	}
}

// PassRate is Pass/Total, zero for an empty run.
func (c Counts) PassRate() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Pass) / float64(c.Total)
}

// RunReport is the persisted summary of one crew run.
type RunReport struct {
	RunID    string               `json:"run_id"`
	CrewID   string               `json:"crew_id"`
	CrewName string               `json:"crew_name,omitempty"`
	Verdicts []evaluation.Verdict `json:"verdicts"`
	Counts   Counts               `json:"counts"`
	// TotalDuration is the wall-clock span of the run, or the sum of task
	// durations when no verdict carries timestamps.
	TotalDuration time.Duration `json:"total_duration"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Partial       bool          `json:"partial"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Failed reports whether any task failed or errored.
func (r *RunReport) Failed() bool {
	return r.Counts.Fail > 0 || r.Counts.Error > 0
}

// Verdict returns the verdict for a task id.
func (r *RunReport) Verdict(taskID string) (evaluation.Verdict, bool) {
	for _, v := range r.Verdicts {
		if v.TaskID == taskID {
			return v, true
		}
	}
	return evaluation.Verdict{}, false
}

// Summary renders a one-line summary, e.g.
// "expenses: 2 tasks, 1 pass, 1 fail, 0 inconclusive, 0 error in 1.2s".
func (r *RunReport) Summary() string {
	name := r.CrewName
	if name == "" {
		name = r.CrewID
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d tasks, %d pass, %d fail, %d inconclusive, %d error in %s",
		name, r.Counts.Total, r.Counts.Pass, r.Counts.Fail, r.Counts.Inconclusive, r.Counts.Error,
		r.TotalDuration.Round(time.Millisecond))
	if r.Partial {
		b.WriteString(" (partial)")
	}
	return b.String()
}

// NewRunID derives a run id from t plus a random suffix, e.g.
// run_20260314_090000_1a2b3c4d. Ids sort by time.
func NewRunID(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "run_" + t.UTC().Format("20060102_150405") + "_" + suffix
}
