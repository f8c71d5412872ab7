package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn: mockDB,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)

	return mockDB, mock, gormDB
}

func testPoolConfig() PoolConfig {
	return PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}
}

func TestNewPoolManager(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	config := PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}

	manager, err := NewPoolManager(gormDB, config, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, gormDB, manager.DB())
	assert.Equal(t, config, manager.config)
	assert.Equal(t, 10, manager.Stats().MaxOpenConnections)
}

func TestNewPoolManager_Invalid(t *testing.T) {
	_, err := NewPoolManager(nil, testPoolConfig(), nil)
	assert.Error(t, err)

	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()
	_, err = NewPoolManager(gormDB, PoolConfig{}, nil)
	assert.Error(t, err)
}

func TestPoolManager_Ping(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, manager.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.Error(t, manager.Ping(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransaction(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return nil
	})
	assert.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		calls++
		if calls == 1 {
			return errors.New("ERROR: deadlock detected")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		calls++
		return errors.New("constraint violation")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "non-retryable errors are returned immediately")
}

func TestPoolManager_Close(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)

	config := testPoolConfig()
	config.HealthCheckInterval = 10 * time.Millisecond
	manager, err := NewPoolManager(gormDB, config, zap.NewNop())
	require.NoError(t, err)

	// health check pings are not expected; they fail and are only logged
	mock.ExpectClose()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, manager.Close())
	assert.NoError(t, manager.Close(), "close is idempotent")

	assert.ErrorIs(t, manager.Ping(context.Background()), ErrPoolClosed)
	_ = mockDB.Close()
}

func TestPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  PoolConfig
		wantErr bool
	}{
		{"valid config", PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Hour}, false},
		{"invalid max open conns", PoolConfig{MaxOpenConns: 0, MaxIdleConns: 5}, true},
		{"invalid max idle conns", PoolConfig{MaxOpenConns: 10, MaxIdleConns: 0}, true},
		{"idle > open", PoolConfig{MaxOpenConns: 5, MaxIdleConns: 10}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.True(t, IsRetryableError(errors.New("Error 1213: Deadlock found")))
	assert.True(t, IsRetryableError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, IsRetryableError(errors.New("syntax error")))
}

func TestOpen_SQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "crewcheck.db")
	manager, err := Open("sqlite3", dsn, DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	defer manager.Close()

	assert.NoError(t, manager.Ping(context.Background()))
	assert.Equal(t, 1, manager.Stats().MaxOpenConnections)
}

func TestParseDriver(t *testing.T) {
	for in, want := range map[string]Driver{"PostgreSQL": DriverPostgres, "mariadb": DriverMySQL, "sqlite3": DriverSQLite} {
		got, err := ParseDriver(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDriver("oracle")
	assert.Error(t, err)
}
