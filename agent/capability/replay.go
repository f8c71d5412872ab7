package capability

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/crewcheck/agent/profiles"
	"github.com/BaSui01/crewcheck/agent/tasks"
	"github.com/BaSui01/crewcheck/types"
	"go.uber.org/zap"
)

// Fixture is the canned behaviour of one task.
type Fixture struct {
	Outcome *types.Outcome
	// Err is returned instead of an outcome.
	Err *types.Error
	// Delay is slept before answering; a cancelled context interrupts it.
	Delay time.Duration
	// FailTimes transient failures are returned before the fixture answers.
	FailTimes int
}

// Replay answers invocations from fixtures keyed by task id. It lets scenario
// files run without any backend.
type Replay struct {
	mu       sync.Mutex
	fixtures map[string]Fixture
	calls    map[string]int
	now      func() time.Time
	logger   *zap.Logger
}

// NewReplay creates a replay capability. fixtures is copied.
func NewReplay(fixtures map[string]Fixture, logger *zap.Logger) *Replay {
	if logger == nil {
		logger = zap.NewNop()
	}
	copied := make(map[string]Fixture, len(fixtures))
	for id, fx := range fixtures {
		copied[id] = fx
	}
	return &Replay{
		fixtures: copied,
		calls:    make(map[string]int),
		now:      time.Now,
		logger:   logger.With(zap.String("component", "replay_capability")),
	}
}

// Invoke implements crews.Capability.
func (r *Replay) Invoke(ctx context.Context, agent profiles.AgentProfile, task tasks.TaskSpec) (*types.Outcome, error) {
	r.mu.Lock()
	fx, ok := r.fixtures[task.ID]
	r.calls[task.ID]++
	call := r.calls[task.ID]
	r.mu.Unlock()

	if !ok {
		return nil, types.PermanentFailure("no replay fixture for task", nil).WithSubject(task.ID)
	}

	start := r.now()
	if fx.Delay > 0 {
		t := time.NewTimer(fx.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	if call <= fx.FailTimes {
		r.logger.Debug("replaying transient failure", zap.String("task_id", task.ID), zap.Int("call", call))
		return nil, types.TransientFailure("replayed transient failure", nil).WithSubject(task.ID)
	}
	if fx.Err != nil {
		e := *fx.Err
		return nil, &e
	}
	if fx.Outcome == nil {
		return nil, types.PermanentFailure("replay fixture has no outcome", nil).WithSubject(task.ID)
	}

	out := *fx.Outcome
	if !out.HasTimestamps() {
		out.StartedAt = start
		out.EndedAt = r.now()
		out.Duration = out.EndedAt.Sub(out.StartedAt)
	}
	r.logger.Debug("replayed outcome", zap.String("task_id", task.ID), zap.String("agent_id", agent.ID))
	return &out, nil
}

// Calls returns how many times a task was invoked.
func (r *Replay) Calls(taskID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[taskID]
}

// Has reports whether a fixture exists for the task.
func (r *Replay) Has(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.fixtures[taskID]
	return ok
}
