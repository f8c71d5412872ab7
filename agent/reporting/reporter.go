package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/BaSui01/crewcheck/agent/crews"
	"github.com/BaSui01/crewcheck/agent/evaluation"
	"github.com/BaSui01/crewcheck/agent/persistence"
	"github.com/BaSui01/crewcheck/types"
	"go.uber.org/zap"
)

// PersistObserver is told about every persist call. err is nil on success.
type PersistObserver interface {
	ObservePersist(runID string, attempts int, d time.Duration, err error)
}

// Reporter summarizes verdicts and writes reports to a sink.
type Reporter struct {
	retry    persistence.RetryConfig
	observer PersistObserver
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithRetry sets the persist retry policy.
func WithRetry(cfg persistence.RetryConfig) Option {
	return func(r *Reporter) { r.retry = cfg }
}

// WithPersistObserver registers a persist observer.
func WithPersistObserver(obs PersistObserver) Option {
	return func(r *Reporter) { r.observer = obs }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// NewReporter creates a Reporter with the default retry policy.
func NewReporter(logger *zap.Logger, opts ...Option) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reporter{
		retry:  persistence.DefaultRetryConfig(),
		now:    time.Now,
		logger: logger.With(zap.String("component", "run_reporter")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Summarize builds the report for one execution. Verdicts are kept in the
// given order.
func (r *Reporter) Summarize(exec *crews.Execution, verdicts []evaluation.Verdict) *RunReport {
	now := r.now().UTC()
	report := &RunReport{
		Verdicts:  append([]evaluation.Verdict(nil), verdicts...),
		CreatedAt: now,
	}
	if exec != nil {
		report.RunID = exec.RunID
		report.CrewID = exec.CrewID
		report.Partial = exec.Partial
		report.StartedAt = exec.StartedAt
		report.FinishedAt = exec.EndedAt
	}
	if report.RunID == "" {
		report.RunID = NewRunID(now)
	}

	var (
		first, last time.Time
		sum         time.Duration
		stamped     bool
	)
	for _, v := range verdicts {
		report.Counts.Add(v.Status)
		sum += v.Duration
		if !v.HasTimestamps() {
			continue
		}
		if !stamped || v.StartedAt.Before(first) {
			first = v.StartedAt
		}
		if !stamped || v.EndedAt.After(last) {
			last = v.EndedAt
		}
		stamped = true
	}

	if stamped {
		report.TotalDuration = last.Sub(first)
		report.StartedAt = first
		report.FinishedAt = last
	} else {
		report.TotalDuration = sum
	}
	return report
}

// Persist writes the report under its run id. The writer is released on every
// path. Transient sink failures are retried; any final failure is a
// PERSISTENCE error. The report itself is never modified.
func (r *Reporter) Persist(ctx context.Context, report *RunReport, sink persistence.Sink) error {
	if report == nil || sink == nil {
		return types.NewError(types.ErrPersistence, "report and sink are required")
	}
	start := r.now()
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return r.finish(report.RunID, 0, start,
			types.NewError(types.ErrPersistence, "failed to serialize run report").
				WithSubject(report.RunID).WithCause(err))
	}

	log := r.logger.With(zap.String("run_id", report.RunID))
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= r.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.retry.CalculateBackoff(attempt - 1)
			log.Warn("retrying report write", zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(lastErr))
			if err := sleepCtx(ctx, backoff); err != nil {
				lastErr = errors.Join(lastErr, err)
				break
			}
		}
		attempts++

		err := writeOnce(ctx, sink, report.RunID, data)
		if err == nil {
			log.Info("run report persisted", zap.Int("bytes", len(data)), zap.Int("attempts", attempts))
			return r.finish(report.RunID, attempts, start, nil)
		}
		if attempt > 0 && errors.Is(err, persistence.ErrAlreadyExists) && landed(ctx, sink, report.RunID, data) {
			// an earlier attempt reported failure after the write went through
			log.Info("run report persisted by an earlier attempt", zap.Int("attempts", attempts))
			return r.finish(report.RunID, attempts, start, nil)
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}

	return r.finish(report.RunID, attempts, start,
		types.Errorf(types.ErrPersistence, "failed to persist run report after %d attempt(s)", attempts).
			WithSubject(report.RunID).WithCause(lastErr))
}

func (r *Reporter) finish(runID string, attempts int, start time.Time, err error) error {
	if r.observer != nil {
		r.observer.ObservePersist(runID, attempts, r.now().Sub(start), err)
	}
	if err != nil {
		r.logger.Error("failed to persist run report", zap.String("run_id", runID), zap.Error(err))
		return err
	}
	return nil
}

// writeOnce is the scoped write: open, write, close on every path.
func writeOnce(ctx context.Context, sink persistence.Sink, key string, data []byte) (err error) {
	w, err := sink.Open(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close report writer: %w", cerr))
		}
	}()
	return w.Write(ctx, data)
}

// landed reports whether the stored report under key is exactly data.
func landed(ctx context.Context, sink persistence.Sink, key string, data []byte) bool {
	reader, ok := sink.(persistence.ReportReader)
	if !ok {
		return false
	}
	stored, err := reader.Load(ctx, key)
	return err == nil && bytes.Equal(stored, data)
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, persistence.ErrAlreadyExists),
		errors.Is(err, persistence.ErrInvalidInput),
		errors.Is(err, persistence.ErrStoreClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WriteText prints a human summary of the report. verbose adds every
// verdict with its mismatches.
func WriteText(w io.Writer, report *RunReport, verbose bool) error {
	if _, err := fmt.Fprintf(w, "%s [%s]\n", report.Summary(), report.RunID); err != nil {
		return err
	}
	for _, v := range report.Verdicts {
		if !verbose && v.Status == evaluation.StatusPass {
			continue
		}
		if _, err := fmt.Fprintf(w, "  %s\n", indent(v.Explain())); err != nil {
			return err
		}
	}
	return nil
}

func indent(s string) string {
	return string(bytes.ReplaceAll([]byte(s), []byte("\n"), []byte("\n  ")))
}
