package crews

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/BaSui01/crewcheck/agent/profiles"
	"github.com/BaSui01/crewcheck/agent/tasks"
	"github.com/BaSui01/crewcheck/internal/ctxkeys"
	"github.com/BaSui01/crewcheck/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const instrumentationName = "github.com/BaSui01/crewcheck/agent/crews"

// RetryPolicy controls retries of transient capability failures.
type RetryPolicy struct {
	MaxRetries     int           `json:"max_retries" yaml:"max_retries"`
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `json:"max_backoff" yaml:"max_backoff"`
	Multiplier     float64       `json:"multiplier" yaml:"multiplier"`
}

// Backoff returns the wait before retry number attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 || p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	backoff := float64(p.InitialBackoff) * math.Pow(mult, float64(attempt-1))
	if p.MaxBackoff > 0 && backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	return time.Duration(backoff)
}

// Config tunes the orchestrator.
type Config struct {
	// Process is used when the crew does not declare one.
	Process        ProcessType
	MaxConcurrency int
	// RunTimeout bounds the whole execution; zero means no limit.
	RunTimeout time.Duration
	// TaskTimeout bounds each invocation unless the task declares its own.
	TaskTimeout time.Duration
	Retry       RetryPolicy
	// RateLimit caps invocations per second across the run; zero disables it.
	RateLimit float64
	Burst     int
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		Process:        ProcessSequential,
		MaxConcurrency: 4,
		TaskTimeout:    2 * time.Minute,
		Retry: RetryPolicy{
			MaxRetries:     2,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2,
		},
	}
}

// TaskRecord is the raw execution result of one task. Pass or fail is not
// decided here.
type TaskRecord struct {
	TaskID    string
	AgentID   string
	Outcome   *types.Outcome
	Err       *types.Error
	StartedAt time.Time
	EndedAt   time.Time
	Duration  time.Duration
	Attempts  int
	// Started is false when the task never reached the capability.
	Started bool
}

// Failed reports whether the task ended with an execution error.
func (r TaskRecord) Failed() bool { return r.Err != nil }

// Execution is what the orchestrator hands to evaluation.
type Execution struct {
	RunID   string
	CrewID  string
	Records []TaskRecord
	// Completed lists task ids in the order they finished.
	Completed []string
	StartedAt time.Time
	EndedAt   time.Time
	// Partial is set when the run was cancelled or timed out.
	Partial bool
}

// Record returns the record for a task id.
func (e *Execution) Record(taskID string) (TaskRecord, bool) {
	for _, r := range e.Records {
		if r.TaskID == taskID {
			return r, true
		}
	}
	return TaskRecord{}, false
}

// Observer receives one call per finished task. code is empty on success.
type Observer interface {
	ObserveTask(crewID, agentID, taskID string, code types.ErrorCode, d time.Duration, attempts int)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver attaches an observer, typically the metrics collector.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator drives crews through a Capability.
type Orchestrator struct {
	cfg      Config
	limiter  *rate.Limiter
	observer Observer
	tracer   trace.Tracer
	now      func() time.Time
	logger   *zap.Logger
}

// NewOrchestrator creates an orchestrator. Zero config fields take defaults.
func NewOrchestrator(cfg Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Process == "" {
		cfg.Process = ProcessSequential
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	o := &Orchestrator{
		cfg:    cfg,
		tracer: otel.Tracer(instrumentationName),
		now:    time.Now,
		logger: logger.With(zap.String("component", "crew_orchestrator")),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// recorder is the single accumulation point for task records.
type recorder struct {
	mu        sync.Mutex
	byTask    map[string]TaskRecord
	completed []string
}

func (r *recorder) add(rec TaskRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTask[rec.TaskID] = rec
	r.completed = append(r.completed, rec.TaskID)
}

// Execute runs every task of the crew through capability.
//
// A failing task never aborts the batch. When ctx is cancelled or the run
// timeout fires, in-flight invocations are cancelled and every task that did
// not finish gets an error record, so the returned Execution is always
// complete. The error return is reserved for invalid arguments.
func (o *Orchestrator) Execute(ctx context.Context, crew *Crew, capability Capability) (*Execution, error) {
	if crew == nil {
		return nil, types.NewError(types.ErrInvalidDefinition, "crew is nil")
	}
	if capability == nil {
		return nil, types.NewError(types.ErrInvalidDefinition, "capability is nil")
	}

	runID, _ := ctxkeys.RunID(ctx)
	exec := &Execution{
		RunID:     runID,
		CrewID:    crew.ID(),
		StartedAt: o.now(),
	}
	ctx = ctxkeys.WithCrewID(ctx, crew.ID())

	runCtx := ctx
	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	process := crew.Process()
	if process == "" {
		process = o.cfg.Process
	}

	runCtx, span := o.tracer.Start(runCtx, "crew.execute",
		trace.WithAttributes(
			attribute.String("crew.id", crew.ID()),
			attribute.String("crew.process", string(process)),
			attribute.Int("crew.tasks", crew.Len()),
		))
	defer span.End()

	log := o.logger.With(zap.String("crew_id", crew.ID()), zap.String("run_id", exec.RunID))
	log.Info("starting crew execution", zap.String("process", string(process)), zap.Int("tasks", crew.Len()))

	rec := &recorder{byTask: make(map[string]TaskRecord, crew.Len())}
	switch process {
	case ProcessConcurrent:
		o.executeConcurrent(runCtx, crew, capability, rec)
	default:
		o.executeSequential(runCtx, crew, capability, rec)
	}

	exec.EndedAt = o.now()
	exec.Partial = runCtx.Err() != nil
	exec.Completed = rec.completed
	for _, spec := range crew.tasks {
		exec.Records = append(exec.Records, rec.byTask[spec.ID])
	}

	failed := 0
	for _, r := range exec.Records {
		if r.Failed() {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("crew.failed_tasks", failed), attribute.Bool("crew.partial", exec.Partial))
	if exec.Partial {
		span.SetStatus(codes.Error, "run interrupted")
	}
	log.Info("crew execution completed",
		zap.Duration("duration", exec.EndedAt.Sub(exec.StartedAt)),
		zap.Int("failed", failed),
		zap.Bool("partial", exec.Partial))
	return exec, nil
}

func (o *Orchestrator) executeSequential(ctx context.Context, crew *Crew, capability Capability, rec *recorder) {
	for _, spec := range crew.tasks {
		if ctx.Err() != nil {
			rec.add(o.notStarted(ctx, crew, spec))
			continue
		}
		record, settled := o.runTask(ctx, crew, capability, spec)
		rec.add(record)
		// a timed-out call may still be live; the next task waits for it
		select {
		case <-settled:
		case <-ctx.Done():
		}
	}
}

func (o *Orchestrator) executeConcurrent(ctx context.Context, crew *Crew, capability Capability, rec *recorder) {
	done := make(map[string]chan struct{}, len(crew.tasks))
	for _, spec := range crew.tasks {
		done[spec.ID] = make(chan struct{})
	}
	tokens := make(map[string]*semaphore.Weighted, len(crew.agents))
	for _, spec := range crew.tasks {
		if _, ok := tokens[spec.AgentID]; !ok {
			tokens[spec.AgentID] = semaphore.NewWeighted(1)
		}
	}
	slots := semaphore.NewWeighted(int64(o.cfg.MaxConcurrency))

	var g errgroup.Group
	for _, spec := range crew.tasks {
		g.Go(func() error {
			defer close(done[spec.ID])

			for _, dep := range spec.DependsOn {
				ch, ok := done[dep]
				if !ok {
					continue
				}
				select {
				case <-ch:
				case <-ctx.Done():
				}
			}
			if ctx.Err() != nil {
				rec.add(o.notStarted(ctx, crew, spec))
				return nil
			}

			// one active conversation per agent
			token := tokens[spec.AgentID]
			if err := token.Acquire(ctx, 1); err != nil {
				rec.add(o.notStarted(ctx, crew, spec))
				return nil
			}
			if err := slots.Acquire(ctx, 1); err != nil {
				token.Release(1)
				rec.add(o.notStarted(ctx, crew, spec))
				return nil
			}

			record, settled := o.runTask(ctx, crew, capability, spec)
			rec.add(record)

			// the agent stays busy until its last call has actually returned
			release := func() {
				slots.Release(1)
				token.Release(1)
			}
			select {
			case <-settled:
				release()
			default:
				go func() {
					<-settled
					release()
				}()
			}
			return nil
		})
	}
	_ = g.Wait()
}

// runTask invokes the capability for one task, retrying transient failures.
// The returned channel is closed once the last capability call has returned,
// which can be after the record was produced when that call timed out.
func (o *Orchestrator) runTask(ctx context.Context, crew *Crew, capability Capability, spec tasks.TaskSpec) (TaskRecord, <-chan struct{}) {
	agent, _ := crew.Agent(spec.AgentID)
	record := TaskRecord{
		TaskID:    spec.ID,
		AgentID:   spec.AgentID,
		StartedAt: o.now(),
		Started:   true,
	}

	ctx = ctxkeys.WithTaskID(ctx, spec.ID)
	ctx, span := o.tracer.Start(ctx, "crew.task",
		trace.WithAttributes(
			attribute.String("task.id", spec.ID),
			attribute.String("agent.id", spec.AgentID),
		))
	defer span.End()

	log := o.logger.With(zap.String("crew_id", crew.ID()), zap.String("task_id", spec.ID), zap.String("agent_id", spec.AgentID))

	timeout := o.cfg.TaskTimeout
	if spec.Timeout > 0 {
		timeout = spec.Timeout
	}

	var settled <-chan struct{}
	for attempt := 1; ; attempt++ {
		record.Attempts = attempt
		out, done, err := o.invokeOnce(ctx, capability, agent, spec, timeout)
		settled = done
		if err == nil {
			record.Outcome = out
			record.Err = nil
			break
		}
		record.Err = err
		if !err.Retryable || attempt > o.cfg.Retry.MaxRetries || ctx.Err() != nil {
			break
		}
		wait := o.cfg.Retry.Backoff(attempt)
		log.Warn("transient capability failure, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
		if !sleepCtx(ctx, wait) {
			record.Err = o.contextError(ctx, ctx.Err())
			break
		}
	}

	record.EndedAt = o.now()
	record.Duration = record.EndedAt.Sub(record.StartedAt)
	if record.Outcome != nil && record.Outcome.HasTimestamps() {
		record.StartedAt = record.Outcome.StartedAt
		record.EndedAt = record.Outcome.EndedAt
	}
	if record.Outcome != nil && record.Outcome.Duration > 0 {
		record.Duration = record.Outcome.Duration
	}

	var code types.ErrorCode
	if record.Err != nil {
		code = record.Err.Code
		span.RecordError(record.Err)
		span.SetStatus(codes.Error, string(code))
		log.Warn("task failed",
			zap.String("code", string(code)),
			zap.Int("attempts", record.Attempts),
			zap.Error(record.Err))
	} else {
		log.Debug("task completed", zap.Duration("duration", record.Duration))
	}
	span.SetAttributes(attribute.Int("task.attempts", record.Attempts))

	if o.observer != nil {
		o.observer.ObserveTask(crew.ID(), spec.AgentID, spec.ID, code, record.Duration, record.Attempts)
	}
	return record, settled
}

// settledCh is returned for invocations that never reached the capability.
var settledCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// invokeOnce performs one bounded invocation. It returns as soon as ctx is
// done even if the capability has not returned yet; done is closed when it has.
func (o *Orchestrator) invokeOnce(ctx context.Context, capability Capability, agent profiles.AgentProfile, spec tasks.TaskSpec, timeout time.Duration) (*types.Outcome, <-chan struct{}, *types.Error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, settledCh, o.contextError(ctx, err)
		}
	}

	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	type result struct {
		out *types.Outcome
		err error
	}
	ch := make(chan result, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		out, err := capability.Invoke(callCtx, agent, spec)
		ch <- result{out: out, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, done, o.classify(ctx, callCtx, r.err)
		}
		if r.out == nil {
			return nil, done, types.PermanentFailure("capability returned no outcome", nil)
		}
		return r.out, done, nil
	case <-callCtx.Done():
		return nil, done, o.contextError(ctx, callCtx.Err())
	}
}

// classify maps a capability error to the execution taxonomy.
func (o *Orchestrator) classify(runCtx, callCtx context.Context, err error) *types.Error {
	if callCtx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if runCtx.Err() != nil {
			return o.contextError(runCtx, err)
		}
		if callCtx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return types.NewError(types.ErrTimeout, "task timed out").WithCause(err)
		}
	}
	var e *types.Error
	if errors.As(err, &e) {
		return e
	}
	return types.PermanentFailure("capability failed", err)
}

// contextError converts a context error into TIMEOUT or CANCELLED, looking at
// the run context first so a user abort is not reported as a timeout.
func (o *Orchestrator) contextError(runCtx context.Context, err error) *types.Error {
	if errors.Is(runCtx.Err(), context.Canceled) {
		return types.NewError(types.ErrCancelled, "run cancelled").WithCause(err)
	}
	if runCtx.Err() != nil {
		return types.NewError(types.ErrTimeout, "run timed out").WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return types.NewError(types.ErrCancelled, "task cancelled").WithCause(err)
	}
	return types.NewError(types.ErrTimeout, "task timed out").WithCause(err)
}

func (o *Orchestrator) notStarted(ctx context.Context, crew *Crew, spec tasks.TaskSpec) TaskRecord {
	now := o.now()
	err := o.contextError(ctx, ctx.Err())
	err.Message = "not started: " + err.Message
	if o.observer != nil {
		o.observer.ObserveTask(crew.ID(), spec.AgentID, spec.ID, err.Code, 0, 0)
	}
	return TaskRecord{
		TaskID:    spec.ID,
		AgentID:   spec.AgentID,
		Err:       err,
		StartedAt: now,
		EndedAt:   now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
