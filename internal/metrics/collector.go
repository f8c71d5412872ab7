// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/crewcheck/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 任务指标
	taskExecutionsTotal *prometheus.CounterVec
	taskDuration        *prometheus.HistogramVec
	taskRetriesTotal    *prometheus.CounterVec

	// 判定指标
	verdictsTotal *prometheus.CounterVec

	// 运行指标
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	// 报告持久化指标
	persistTotal    *prometheus.CounterVec
	persistDuration prometheus.Histogram

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith 创建指标收集器，注册到指定 Registry
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 任务指标
	c.taskExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_executions_total",
			Help:      "Total number of task executions by result",
		},
		[]string{"crew_id", "agent_id", "result"},
	)

	c.taskDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"crew_id", "agent_id"},
	)

	c.taskRetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_retries_total",
			Help:      "Total number of task invocation retries",
		},
		[]string{"crew_id", "agent_id"},
	)

	// 判定指标
	c.verdictsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Total number of task verdicts by status",
		},
		[]string{"crew_id", "status"},
	)

	// 运行指标
	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of crew runs",
		},
		[]string{"crew_id", "partial"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Crew run wall-clock span in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"crew_id"},
	)

	// 报告持久化指标
	c.persistTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_persist_total",
			Help:      "Total number of run report writes by result",
		},
		[]string{"result"},
	)

	c.persistDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_persist_duration_seconds",
			Help:      "Run report write duration in seconds, retries included",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 任务指标记录
// =============================================================================

// ObserveTask 记录一次任务执行，实现 crews.Observer
func (c *Collector) ObserveTask(crewID, agentID, taskID string, code types.ErrorCode, d time.Duration, attempts int) {
	c.taskExecutionsTotal.WithLabelValues(crewID, agentID, result(code)).Inc()
	c.taskDuration.WithLabelValues(crewID, agentID).Observe(d.Seconds())
	if attempts > 1 {
		c.taskRetriesTotal.WithLabelValues(crewID, agentID).Add(float64(attempts - 1))
	}
}

// RecordVerdict 记录一个任务判定
func (c *Collector) RecordVerdict(crewID, status string) {
	c.verdictsTotal.WithLabelValues(crewID, status).Inc()
}

// RecordRun 记录一次 crew 运行
func (c *Collector) RecordRun(crewID string, partial bool, span time.Duration) {
	c.runsTotal.WithLabelValues(crewID, strconv.FormatBool(partial)).Inc()
	c.runDuration.WithLabelValues(crewID).Observe(span.Seconds())
}

// =============================================================================
// 💾 持久化指标记录
// =============================================================================

// ObservePersist 记录一次报告写入，实现 reporting.PersistObserver
func (c *Collector) ObservePersist(runID string, attempts int, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		c.logger.Debug("report persist failed", zap.String("run_id", runID), zap.Int("attempts", attempts))
	}
	c.persistTotal.WithLabelValues(status).Inc()
	c.persistDuration.Observe(d.Seconds())
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// result 将错误码转换为 label，成功为 "ok"
func result(code types.ErrorCode) string {
	if code == "" {
		return "ok"
	}
	return strings.ToLower(string(code))
}
