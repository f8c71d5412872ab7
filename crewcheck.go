// Package crewcheck runs crews of agent tasks through a capability, judges the
// outcomes and persists one report per run.
//
// Usage:
//
//	h := crewcheck.New(
//	    crewcheck.WithSink(sink),
//	    crewcheck.WithLogger(logger),
//	)
//	report, err := h.Run(ctx, crew, capability)
//
// Run only returns an error for invalid arguments or when the report could not
// be persisted; failing tasks are reported in the RunReport.
package crewcheck

import (
	"context"
	"time"

	"github.com/BaSui01/crewcheck/agent/crews"
	"github.com/BaSui01/crewcheck/agent/evaluation"
	"github.com/BaSui01/crewcheck/agent/persistence"
	"github.com/BaSui01/crewcheck/agent/reporting"
	"github.com/BaSui01/crewcheck/internal/ctxkeys"
	"github.com/BaSui01/crewcheck/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/crewcheck"

// DefaultPersistTimeout bounds report persistence when none is configured.
const DefaultPersistTimeout = 30 * time.Second

// Option configures a Harness.
type Option func(*options)

type options struct {
	orchestrator   crews.Config
	evaluator      evaluation.EvaluatorConfig
	retry          persistence.RetryConfig
	sink           persistence.Sink
	metrics        *metrics.Collector
	persistTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

// WithOrchestratorConfig sets the orchestrator configuration.
func WithOrchestratorConfig(cfg crews.Config) Option {
	return func(o *options) { o.orchestrator = cfg }
}

// WithEvaluatorConfig sets the evaluator configuration.
func WithEvaluatorConfig(cfg evaluation.EvaluatorConfig) Option {
	return func(o *options) { o.evaluator = cfg }
}

// WithPersistRetry sets the report write retry policy.
func WithPersistRetry(cfg persistence.RetryConfig) Option {
	return func(o *options) { o.retry = cfg }
}

// WithSink sets the report destination. The default is an in-memory sink.
func WithSink(sink persistence.Sink) Option {
	return func(o *options) { o.sink = sink }
}

// WithMetrics attaches a Prometheus collector to the orchestrator and reporter.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithPersistTimeout bounds persistence. It applies even after the run context
// was cancelled, so a partial report still gets written.
func WithPersistTimeout(d time.Duration) Option {
	return func(o *options) { o.persistTimeout = d }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Harness wires orchestrator, evaluator, reporter and sink together.
type Harness struct {
	orchestrator   *crews.Orchestrator
	evaluator      *evaluation.Evaluator
	reporter       *reporting.Reporter
	sink           persistence.Sink
	metrics        *metrics.Collector
	persistTimeout time.Duration
	now            func() time.Time
	tracer         trace.Tracer
	logger         *zap.Logger
}

// New creates a harness.
func New(opts ...Option) *Harness {
	o := options{
		orchestrator:   crews.DefaultConfig(),
		evaluator:      evaluation.DefaultEvaluatorConfig(),
		retry:          persistence.DefaultRetryConfig(),
		persistTimeout: DefaultPersistTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.sink == nil {
		o.sink = persistence.NewMemorySink()
	}
	if o.persistTimeout <= 0 {
		o.persistTimeout = DefaultPersistTimeout
	}

	orchestratorOpts := []crews.Option{crews.WithClock(o.now)}
	reporterOpts := []reporting.Option{reporting.WithRetry(o.retry), reporting.WithClock(o.now)}
	if o.metrics != nil {
		orchestratorOpts = append(orchestratorOpts, crews.WithObserver(o.metrics))
		reporterOpts = append(reporterOpts, reporting.WithPersistObserver(o.metrics))
	}

	return &Harness{
		orchestrator:   crews.NewOrchestrator(o.orchestrator, o.logger, orchestratorOpts...),
		evaluator:      evaluation.NewEvaluator(o.evaluator, o.logger),
		reporter:       reporting.NewReporter(o.logger, reporterOpts...),
		sink:           o.sink,
		metrics:        o.metrics,
		persistTimeout: o.persistTimeout,
		now:            o.now,
		tracer:         otel.Tracer(instrumentationName),
		logger:         o.logger.With(zap.String("component", "harness")),
	}
}

// Sink returns the report destination.
func (h *Harness) Sink() persistence.Sink { return h.sink }

// Run executes crew through capability, evaluates every task and persists the
// report under a fresh run id (or the one already carried by ctx).
//
// The report is returned even when persisting it fails; the error is then a
// PERSISTENCE *types.Error. Cancelling ctx yields a partial report.
func (h *Harness) Run(ctx context.Context, crew *crews.Crew, capability crews.Capability) (*reporting.RunReport, error) {
	runID, ok := ctxkeys.RunID(ctx)
	if !ok {
		runID = reporting.NewRunID(h.now())
		ctx = ctxkeys.WithRunID(ctx, runID)
	}

	ctx, span := h.tracer.Start(ctx, "crewcheck.run", trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	exec, err := h.orchestrator.Execute(ctx, crew, capability)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	verdicts, err := h.evaluator.EvaluateExecution(ctx, crew, exec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	report := h.reporter.Summarize(exec, verdicts)
	report.CrewName = crew.Name()
	h.record(report)

	span.SetAttributes(
		attribute.String("crew.id", report.CrewID),
		attribute.Int("run.pass", report.Counts.Pass),
		attribute.Int("run.fail", report.Counts.Fail),
		attribute.Int("run.error", report.Counts.Error),
		attribute.Bool("run.partial", report.Partial),
	)

	// Persistence outlives the run context so interrupted runs are still recorded.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.persistTimeout)
	defer cancel()
	if err := h.reporter.Persist(persistCtx, report, h.sink); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "report not persisted")
		h.logger.Error("run report not persisted", zap.String("run_id", report.RunID), zap.Error(err))
		return report, err
	}

	h.logger.Info("run finished",
		zap.String("run_id", report.RunID),
		zap.String("crew_id", report.CrewID),
		zap.Int("pass", report.Counts.Pass),
		zap.Int("fail", report.Counts.Fail),
		zap.Int("inconclusive", report.Counts.Inconclusive),
		zap.Int("error", report.Counts.Error),
		zap.Bool("partial", report.Partial))
	return report, nil
}

func (h *Harness) record(report *reporting.RunReport) {
	if h.metrics == nil {
		return
	}
	for _, v := range report.Verdicts {
		h.metrics.RecordVerdict(report.CrewID, string(v.Status))
	}
	h.metrics.RecordRun(report.CrewID, report.Partial, report.TotalDuration)
}
