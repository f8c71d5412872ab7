package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🗄️ 报告库连接池
// =============================================================================

// ErrPoolClosed 连接池已关闭
var ErrPoolClosed = errors.New("pool is closed")

const (
	defaultRetryBackoff = 50 * time.Millisecond
	maxRetryBackoff     = 2 * time.Second
	probeTimeout        = 5 * time.Second
)

// PoolConfig 连接池配置。报告写入是低频短事务，默认值偏小
type PoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`

	// 后台探活间隔，0 表示关闭（单次 CLI 运行通常不需要）
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`

	// 事务重试的首次退避，之后翻倍，上限 2s
	RetryBackoff time.Duration `yaml:"retry_backoff" json:"retry_backoff"`
}

// DefaultPoolConfig 返回默认连接池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:    2,
		MaxOpenConns:    4,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		RetryBackoff:    defaultRetryBackoff,
	}
}

// Validate 校验连接池配置
func (c PoolConfig) Validate() error {
	switch {
	case c.MaxOpenConns <= 0:
		return fmt.Errorf("max_open_conns must be positive, got %d", c.MaxOpenConns)
	case c.MaxIdleConns <= 0:
		return fmt.Errorf("max_idle_conns must be positive, got %d", c.MaxIdleConns)
	case c.MaxIdleConns > c.MaxOpenConns:
		return fmt.Errorf("max_idle_conns (%d) exceeds max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	case c.RetryBackoff < 0:
		return fmt.Errorf("retry_backoff must not be negative, got %v", c.RetryBackoff)
	}
	return nil
}

func (c PoolConfig) backoff(attempt int) time.Duration {
	base := c.RetryBackoff
	if base == 0 {
		base = defaultRetryBackoff
	}
	return min(base<<attempt, maxRetryBackoff)
}

// PoolManager 持有数据库 sink 与迁移共用的 gorm 连接
type PoolManager struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config PoolConfig
	logger *zap.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	cancel    context.CancelFunc
	probes    sync.WaitGroup
}

// NewPoolManager 应用连接池参数，按需启动后台探活
func NewPoolManager(db *gorm.DB, config PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithCancel(context.Background())
	pm := &PoolManager{
		db:     db,
		sqlDB:  sqlDB,
		config: config,
		logger: logger.With(zap.String("component", "db_pool")),
		cancel: cancel,
	}
	if config.HealthCheckInterval > 0 {
		pm.probes.Add(1)
		go pm.probe(ctx)
	}

	pm.logger.Debug("database pool initialized",
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Duration("health_check_interval", config.HealthCheckInterval),
	)
	return pm, nil
}

// DB 返回 GORM 实例
func (pm *PoolManager) DB() *gorm.DB { return pm.db }

// SQL 返回底层 *sql.DB，供 golang-migrate 复用
func (pm *PoolManager) SQL() *sql.DB { return pm.sqlDB }

// Ping 检查数据库连接
func (pm *PoolManager) Ping(ctx context.Context) error {
	if pm.closed.Load() {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

// Stats 返回连接池统计信息
func (pm *PoolManager) Stats() sql.DBStats { return pm.sqlDB.Stats() }

// Close 停止探活并关闭连接，可重复调用
func (pm *PoolManager) Close() error {
	var err error
	pm.closeOnce.Do(func() {
		pm.closed.Store(true)
		pm.cancel()
		pm.probes.Wait()
		pm.logger.Debug("closing database pool")
		err = pm.sqlDB.Close()
	})
	return err
}

func (pm *PoolManager) probe(ctx context.Context) {
	defer pm.probes.Done()
	ticker := time.NewTicker(pm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := pm.Ping(pctx)
		cancel()
		if err != nil {
			pm.logger.Warn("database health check failed", zap.Error(err))
			continue
		}
		stats := pm.Stats()
		pm.logger.Debug("database health check passed",
			zap.Int("open_connections", stats.OpenConnections),
			zap.Int("in_use", stats.InUse),
		)
	}
}

// =============================================================================
// 🔄 事务
// =============================================================================

// TransactionFunc 事务函数类型
type TransactionFunc func(tx *gorm.DB) error

// WithTransaction 在事务中执行 fn
func (pm *PoolManager) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	if pm.closed.Load() {
		return ErrPoolClosed
	}
	return pm.db.WithContext(ctx).Transaction(fn)
}

// WithTransactionRetry 最多执行 attempts 次，仅对锁冲突和断连类错误重试
func (pm *PoolManager) WithTransactionRetry(ctx context.Context, attempts int, fn TransactionFunc) error {
	attempts = max(attempts, 1)
	var err error
	for i := range attempts {
		if i > 0 {
			wait := pm.config.backoff(i - 1)
			pm.logger.Warn("transaction failed, retrying",
				zap.Int("attempt", i+1),
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return errors.Join(err, ctx.Err())
			case <-t.C:
			}
		}
		if err = pm.WithTransaction(ctx, fn); err == nil || !IsRetryableError(err) {
			return err
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", attempts, err)
}

var retryableMarkers = []string{
	"deadlock",
	"serialization failure", "40001",
	"lock timeout", "lock wait timeout",
	"database is locked",
	"connection reset", "connection refused", "broken pipe",
}

// IsRetryableError 判断错误是否为瞬时错误（死锁、锁等待、sqlite BUSY、断连）
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
