// Package evaluation judges task outcomes against their structured assertions.
package evaluation

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/crewcheck/agent/crews"
	"github.com/BaSui01/crewcheck/agent/tasks"
	"github.com/BaSui01/crewcheck/types"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// EvaluatorConfig configures the evaluator.
type EvaluatorConfig struct {
	Concurrency int `json:"concurrency" yaml:"concurrency"`
	// SemanticThreshold is used by semantic assertions that do not declare one.
	SemanticThreshold float64 `json:"semantic_threshold" yaml:"semantic_threshold"`
	// KeepOutcome attaches the raw outcome to each verdict.
	KeepOutcome bool `json:"keep_outcome" yaml:"keep_outcome"`
}

// DefaultEvaluatorConfig returns sensible defaults.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		Concurrency:       4,
		SemanticThreshold: 0.6,
		KeepOutcome:       true,
	}
}

// Evaluator runs matchers per assertion kind and aggregates the results.
type Evaluator struct {
	config   EvaluatorConfig
	mu       sync.RWMutex
	matchers map[tasks.AssertionKind]Matcher
	logger   *zap.Logger
}

// NewEvaluator creates an evaluator with the built-in matchers registered.
func NewEvaluator(config EvaluatorConfig, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.SemanticThreshold <= 0 {
		config.SemanticThreshold = DefaultEvaluatorConfig().SemanticThreshold
	}
	e := &Evaluator{
		config:   config,
		matchers: make(map[tasks.AssertionKind]Matcher),
		logger:   logger.With(zap.String("component", "evaluator")),
	}
	e.RegisterMatcher(tasks.AssertNumeric, MatcherFunc(numericMatcher))
	e.RegisterMatcher(tasks.AssertContains, MatcherFunc(containsMatcher))
	e.RegisterMatcher(tasks.AssertEquals, MatcherFunc(equalsMatcher))
	e.RegisterMatcher(tasks.AssertSideEffect, MatcherFunc(sideEffectMatcher))
	e.RegisterMatcher(tasks.AssertSemantic, semanticMatcher(config.SemanticThreshold))
	return e
}

// RegisterMatcher installs or replaces the matcher for an assertion kind.
func (e *Evaluator) RegisterMatcher(kind tasks.AssertionKind, m Matcher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.matchers[kind] = m
}

func (e *Evaluator) matcher(kind tasks.AssertionKind) (Matcher, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.matchers[kind]
	return m, ok
}

// Evaluate judges one outcome. Every assertion is evaluated so the verdict
// lists the complete set of mismatches.
func (e *Evaluator) Evaluate(spec tasks.TaskSpec, outcome *types.Outcome) Verdict {
	v := Verdict{TaskID: spec.ID, AgentID: spec.AgentID}
	if outcome == nil {
		outcome = &types.Outcome{}
	}
	if e.config.KeepOutcome {
		v.Outcome = outcome
	}
	if outcome.HasTimestamps() {
		v.StartedAt, v.EndedAt = outcome.StartedAt, outcome.EndedAt
	}
	v.Duration = outcome.Duration

	if len(spec.Expect) == 0 {
		v.Status = StatusInconclusive
		v.Detail = "no assertions declared"
		return v
	}

	statuses := make([]Status, 0, len(spec.Expect))
	for _, a := range spec.Expect {
		var r AssertionResult
		if m, ok := e.matcher(a.Kind); ok {
			r = m.Match(a, outcome)
		} else {
			r = result(a, StatusInconclusive)
			r.Detail = fmt.Sprintf("no matcher for assertion kind %q", a.Kind)
		}
		v.Assertions = append(v.Assertions, r)
		statuses = append(statuses, r.Status)
	}
	v.Status = Aggregate(statuses...)
	return v
}

// EvaluateRecord judges an execution record. A failed record becomes an
// error verdict carrying the failure; its assertions are not evaluated.
func (e *Evaluator) EvaluateRecord(spec tasks.TaskSpec, rec crews.TaskRecord) Verdict {
	var v Verdict
	if rec.Err != nil {
		v = Verdict{
			TaskID:  spec.ID,
			AgentID: spec.AgentID,
			Status:  StatusError,
			Error: &ErrorDetail{
				Code:      rec.Err.Code,
				Message:   rec.Err.Error(),
				Retryable: rec.Err.Retryable,
			},
		}
	} else {
		v = e.Evaluate(spec, rec.Outcome)
	}
	if rec.Started {
		v.StartedAt, v.EndedAt = rec.StartedAt, rec.EndedAt
	}
	v.Duration = rec.Duration
	v.Attempts = rec.Attempts
	return v
}

// EvaluateExecution judges every record of an execution, with bounded
// concurrency, and returns verdicts in crew order.
func (e *Evaluator) EvaluateExecution(ctx context.Context, crew *crews.Crew, exec *crews.Execution) ([]Verdict, error) {
	specs := make(map[string]tasks.TaskSpec, crew.Len())
	for _, spec := range crew.Tasks() {
		specs[spec.ID] = spec
	}

	ordered := make([]tasks.TaskSpec, len(exec.Records))
	for i, rec := range exec.Records {
		spec, ok := specs[rec.TaskID]
		if !ok {
			return nil, types.Errorf(types.ErrUnknownTask, "execution record for %q is not part of crew %q", rec.TaskID, crew.ID())
		}
		ordered[i] = spec
	}

	verdicts := make([]Verdict, len(exec.Records))
	sem := semaphore.NewWeighted(int64(e.config.Concurrency))
	var wg sync.WaitGroup

	// Verdicts are computed even after ctx ends so a partial report stays complete.
	evalCtx := context.WithoutCancel(ctx)
	for i, rec := range exec.Records {
		if err := sem.Acquire(evalCtx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			verdicts[i] = e.EvaluateRecord(ordered[i], rec)
		}()
	}
	wg.Wait()

	for _, v := range verdicts {
		e.logger.Debug("task evaluated",
			zap.String("crew_id", crew.ID()),
			zap.String("task_id", v.TaskID),
			zap.String("status", string(v.Status)),
			zap.Int("mismatches", len(v.Mismatches())))
	}
	return verdicts, nil
}
