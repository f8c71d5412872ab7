package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/crewcheck/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RunRecord is the row layout of the run_reports table. The schema is owned by
// internal/migration; AutoMigrate is only used for tests and throwaway databases.
type RunRecord struct {
	RunID        string    `gorm:"column:run_id;primaryKey;size:128"`
	CrewID       string    `gorm:"column:crew_id;size:128;index:idx_run_reports_crew_id"`
	Total        int       `gorm:"column:total"`
	Passed       int       `gorm:"column:passed"`
	Failed       int       `gorm:"column:failed"`
	Inconclusive int       `gorm:"column:inconclusive"`
	Errored      int       `gorm:"column:errored"`
	Partial      bool      `gorm:"column:partial"`
	Payload      string    `gorm:"column:payload;type:text"`
	CreatedAt    time.Time `gorm:"column:created_at;index:idx_run_reports_created_at"`
}

// TableName implements gorm's tabler.
func (RunRecord) TableName() string { return "run_reports" }

// DatabaseSink stores reports as rows through gorm.
type DatabaseSink struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewDatabaseSink opens the configured database.
func NewDatabaseSink(cfg DatabaseSinkConfig, pool database.PoolConfig, logger *zap.Logger) (*DatabaseSink, error) {
	pm, err := database.Open(cfg.Driver, cfg.DSN, pool, logger)
	if err != nil {
		return nil, err
	}
	sink, err := NewDatabaseSinkFromPool(pm, cfg.AutoMigrate, logger)
	if err != nil {
		_ = pm.Close()
		return nil, err
	}
	return sink, nil
}

// NewDatabaseSinkFromPool wraps an existing pool.
func NewDatabaseSinkFromPool(pm *database.PoolManager, autoMigrate bool, logger *zap.Logger) (*DatabaseSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if autoMigrate {
		if err := pm.DB().AutoMigrate(&RunRecord{}); err != nil {
			return nil, fmt.Errorf("failed to migrate run_reports: %w", err)
		}
	}
	return &DatabaseSink{pool: pm, logger: logger.With(zap.String("component", "database_sink"))}, nil
}

// Open implements Sink.
func (s *DatabaseSink) Open(ctx context.Context, key string) (ReportWriter, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	exists, err := s.exists(ctx, s.pool.DB(), key)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyExists
	}
	return &databaseWriter{sink: s, key: key}, nil
}

func (s *DatabaseSink) exists(ctx context.Context, db *gorm.DB, key string) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&RunRecord{}).Where("run_id = ?", key).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check run report: %w", err)
	}
	return count > 0, nil
}

// Ping implements Sink.
func (s *DatabaseSink) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements Sink.
func (s *DatabaseSink) Close() error {
	return s.pool.Close()
}

// Stats returns connection pool statistics.
func (s *DatabaseSink) Stats() sql.DBStats {
	return s.pool.Stats()
}

// Load implements ReportReader.
func (s *DatabaseSink) Load(ctx context.Context, key string) ([]byte, error) {
	var rec RunRecord
	err := s.pool.DB().WithContext(ctx).Where("run_id = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run report: %w", err)
	}
	return []byte(rec.Payload), nil
}

// List implements ReportReader.
func (s *DatabaseSink) List(ctx context.Context, limit int) ([]Entry, error) {
	var recs []RunRecord
	q := s.pool.DB().WithContext(ctx).
		Select("run_id", "crew_id", "created_at", "payload").
		Order("created_at DESC").Order("run_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list run reports: %w", err)
	}
	entries := make([]Entry, len(recs))
	for i, r := range recs {
		entries[i] = Entry{Key: r.RunID, CrewID: r.CrewID, CreatedAt: r.CreatedAt.UTC(), Size: len(r.Payload)}
	}
	return entries, nil
}

type databaseWriter struct {
	sink *DatabaseSink
	key  string
	done bool
}

func (w *databaseWriter) Write(ctx context.Context, data []byte) error {
	if w.done {
		return ErrAlreadyExists
	}
	h, err := parseHeader(data)
	if err != nil {
		return err
	}
	rec := RunRecord{
		RunID:        w.key,
		CrewID:       h.CrewID,
		Total:        h.Counts.Total,
		Passed:       h.Counts.Pass,
		Failed:       h.Counts.Fail,
		Inconclusive: h.Counts.Inconclusive,
		Errored:      h.Counts.Error,
		Partial:      h.Partial,
		Payload:      string(data),
		CreatedAt:    h.CreatedAt.UTC(),
	}

	err = w.sink.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		exists, err := w.sink.exists(ctx, tx, w.key)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyExists
		}
		return tx.Create(&rec).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	w.done = true
	return nil
}

func (w *databaseWriter) Close() error { return nil }
