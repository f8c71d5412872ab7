package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BaSui01/crewcheck"
	"github.com/BaSui01/crewcheck/agent/persistence"
	"github.com/BaSui01/crewcheck/agent/reporting"
	"github.com/BaSui01/crewcheck/config"
	"github.com/BaSui01/crewcheck/internal/metrics"
	"github.com/BaSui01/crewcheck/internal/server"
	"github.com/BaSui01/crewcheck/internal/telemetry"
	"github.com/BaSui01/crewcheck/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runOptions struct {
	files      []string
	crews      []string
	capability string
	verbose    bool
	watch      bool
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run scenario crews and persist one report per crew run",
		Example: `  crewcheck run -f examples/scenarios/expenses.yaml
  crewcheck run -f examples/scenarios --crew expenses --verbose
  crewcheck run -f examples/scenarios/voice.yaml --capability http --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, opts)
		},
	}
	cmd.Flags().StringSliceVarP(&opts.files, "file", "f", nil, "scenario file or directory (repeatable)")
	cmd.Flags().StringSliceVar(&opts.crews, "crew", nil, "only run these crew ids")
	cmd.Flags().StringVar(&opts.capability, "capability", "", "override capability.mode (replay, http)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print every verdict, not only failures")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "re-run when a scenario file changes")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// =============================================================================
// 🚀 运行流程
// =============================================================================

// runEnv is what outlives a single pass in watch mode.
type runEnv struct {
	store     persistence.ReportStore
	collector *metrics.Collector
	ops       *server.Manager
	otel      *telemetry.Providers
}

func (a *app) run(ctx context.Context, opts *runOptions) error {
	if opts.capability != "" {
		a.cfg.Capability.Mode = opts.capability
		if err := a.cfg.Validate(); err != nil {
			return withExit(exitInvalid, err)
		}
	}

	rt, err := a.startRuntime(ctx)
	if err != nil {
		return err
	}
	defer a.stopRuntime(rt)

	sources, err := a.runOnce(ctx, rt, opts)
	if !opts.watch {
		return err
	}
	if err != nil {
		fmt.Fprintln(a.stderr, "Error:", err)
	}
	return a.watch(ctx, rt, opts, sources)
}

func (a *app) startRuntime(ctx context.Context) (*runEnv, error) {
	rt := &runEnv{}

	providers, err := telemetry.Init(ctx, a.cfg.Telemetry, a.logger,
		telemetry.CapabilityModeKey.String(a.cfg.Capability.Mode),
		telemetry.SinkTypeKey.String(a.cfg.Sink.Type),
	)
	if err != nil {
		a.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	rt.otel = providers

	storeCfg, err := a.cfg.ReportStoreConfig()
	if err != nil {
		a.stopRuntime(rt)
		return nil, withExit(exitInvalid, err)
	}
	store, err := persistence.NewReportStore(ctx, storeCfg, a.logger)
	if err != nil {
		a.stopRuntime(rt)
		return nil, withExit(exitPersistence, fmt.Errorf("open report sink: %w", err))
	}
	rt.store = store

	if a.cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rt.collector = metrics.NewCollectorWith(reg, a.cfg.Metrics.Namespace, a.logger)

		handler := server.Chain(
			server.NewOpsHandler(reg, map[string]server.Pinger{"sink": store}),
			server.Recovery(a.logger),
			server.RequestLogger(a.logger),
			server.SecurityHeaders(),
		)
		srvCfg := server.DefaultConfig()
		srvCfg.Addr = a.cfg.Metrics.Addr
		rt.ops = server.NewManager(handler, srvCfg, a.logger)
		if err := rt.ops.Start(); err != nil {
			a.logger.Warn("ops server not started", zap.Error(err))
			rt.ops = nil
		}
	}
	return rt, nil
}

func (a *app) stopRuntime(rt *runEnv) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if rt.ops != nil {
		if err := rt.ops.Shutdown(ctx); err != nil {
			a.logger.Warn("ops server shutdown", zap.Error(err))
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			a.logger.Warn("close report sink", zap.Error(err))
		}
	}
	if rt.otel != nil {
		if err := rt.otel.Shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}
}

// runOnce loads the scenario, runs the selected crews and prints their
// reports. It returns the scenario source files for watch mode.
func (a *app) runOnce(ctx context.Context, rt *runEnv, opts *runOptions) ([]string, error) {
	def, scenario, err := loadScenario(opts.files, a.logger)
	var sources []string
	if def != nil {
		sources = def.Sources
	}
	if err != nil {
		return sources, a.reportScenarioErrors(err)
	}
	selected, err := selectCrews(scenario, opts.crews)
	if err != nil {
		return sources, err
	}
	capability, err := newCapability(a.cfg, scenario, a.logger)
	if err != nil {
		return sources, err
	}

	harnessOpts := []crewcheck.Option{
		crewcheck.WithOrchestratorConfig(a.cfg.OrchestratorConfig()),
		crewcheck.WithEvaluatorConfig(a.cfg.EvaluatorConfig()),
		crewcheck.WithPersistRetry(a.cfg.SinkRetry()),
		crewcheck.WithPersistTimeout(a.cfg.Run.PersistTimeout),
		crewcheck.WithSink(rt.store),
		crewcheck.WithLogger(a.logger),
	}
	if rt.collector != nil {
		harnessOpts = append(harnessOpts, crewcheck.WithMetrics(rt.collector))
	}
	harness := crewcheck.New(harnessOpts...)

	var (
		failed     bool
		persistErr []error
	)
	for _, crew := range selected {
		report, err := harness.Run(ctx, crew, capability)
		if report != nil {
			if werr := reporting.WriteText(a.stdout, report, opts.verbose); werr != nil {
				a.logger.Warn("failed to print report", zap.Error(werr))
			}
			failed = failed || report.Failed()
		}
		switch {
		case err == nil:
		case types.IsCode(err, types.ErrPersistence):
			persistErr = append(persistErr, err)
		default:
			return sources, withExit(exitInvalid, err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	a.recordPoolStats(rt)

	if len(persistErr) > 0 {
		return sources, withExit(exitPersistence, errors.Join(persistErr...))
	}
	if failed {
		return sources, errTasksFailed
	}
	return sources, nil
}

// recordPoolStats publishes connection pool gauges for the database sink.
func (a *app) recordPoolStats(rt *runEnv) {
	if rt.collector == nil {
		return
	}
	if db, ok := rt.store.(*persistence.DatabaseSink); ok {
		stats := db.Stats()
		rt.collector.RecordDBConnections(a.cfg.Database.Driver, stats.OpenConnections, stats.Idle)
	}
}

// =============================================================================
// 👀 监听模式
// =============================================================================

func (a *app) watch(ctx context.Context, rt *runEnv, opts *runOptions, sources []string) error {
	if len(sources) == 0 {
		return invalidf("nothing to watch: no scenario file was loaded")
	}
	watcher, err := config.NewScenarioWatcher(sources, config.WithWatcherLogger(a.logger))
	if err != nil {
		return withExit(exitInvalid, err)
	}
	defer watcher.Stop()

	changed := make(chan []config.FileEvent, 1)
	watcher.OnChange(func(events []config.FileEvent) {
		select {
		case changed <- events:
		default:
			// a rerun is already queued
		}
	})
	if err := watcher.Start(ctx); err != nil {
		return withExit(exitInvalid, err)
	}
	fmt.Fprintf(a.stderr, "watching %d file(s), press Ctrl+C to stop\n", len(watcher.Paths()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case events := <-changed:
			a.logger.Info("scenario changed, re-running", zap.Int("files", len(events)))
			if _, err := a.runOnce(ctx, rt, opts); err != nil && !errors.Is(err, errTasksFailed) {
				fmt.Fprintln(a.stderr, "Error:", err)
			}
			if err := rt.otel.ForceFlush(ctx); err != nil {
				a.logger.Warn("failed to flush spans", zap.Error(err))
			}
		}
	}
}
