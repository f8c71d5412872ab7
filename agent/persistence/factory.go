package persistence

import (
	"context"
	"fmt"

	"github.com/BaSui01/crewcheck/internal/database"
	"go.uber.org/zap"
)

// NewReportStore creates a ReportStore based on the configuration.
func NewReportStore(ctx context.Context, config SinkConfig, logger *zap.Logger) (ReportStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch config.Type {
	case SinkTypeMemory:
		return NewMemorySink(), nil
	case SinkTypeFile, "":
		return NewFileSink(config.BaseDir, logger)
	case SinkTypeRedis:
		return NewRedisSink(ctx, config.Redis, logger)
	case SinkTypeDatabase:
		pool := config.Database.Pool
		if pool.MaxOpenConns == 0 {
			pool = database.DefaultPoolConfig()
		}
		return NewDatabaseSink(config.Database, pool, logger)
	case SinkTypeMongo:
		return NewMongoSink(ctx, config.Mongo, logger)
	default:
		return nil, fmt.Errorf("unsupported sink type: %s", config.Type)
	}
}

// MustNewReportStore creates a ReportStore or panics on error.
//
// WARNING: only use this during initialization (tests, main). Use
// NewReportStore anywhere an error can be returned.
func MustNewReportStore(ctx context.Context, config SinkConfig, logger *zap.Logger) ReportStore {
	store, err := NewReportStore(ctx, config, logger)
	if err != nil {
		panic(fmt.Sprintf("failed to create report store: %v", err))
	}
	return store
}
