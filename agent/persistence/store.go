package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/BaSui01/crewcheck/internal/database"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrStoreClosed   = errors.New("store is closed")
	ErrInvalidInput  = errors.New("invalid input")
)

// SinkType represents the type of storage backend
type SinkType string

const (
	SinkTypeMemory   SinkType = "memory"
	SinkTypeFile     SinkType = "file"
	SinkTypeRedis    SinkType = "redis"
	SinkTypeDatabase SinkType = "database"
	SinkTypeMongo    SinkType = "mongo"
)

// RetryConfig defines retry behavior for report writes
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// InitialBackoff is the initial backoff duration (default: 500ms)
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration (default: 10s)
	MaxBackoff time.Duration `json:"max_backoff" yaml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff (default: 2.0)
	BackoffMultiplier float64 `json:"backoff_multiplier" yaml:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// CalculateBackoff calculates the backoff duration for a given retry attempt
func (c RetryConfig) CalculateBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return c.InitialBackoff
	}

	backoff := c.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * c.BackoffMultiplier)
		if backoff > c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return backoff
}

// SinkConfig is the configuration for all sink implementations
type SinkConfig struct {
	// Type is the storage backend type
	Type SinkType `json:"type" yaml:"type"`

	// BaseDir is the directory for the file sink
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// Redis configuration (only used when Type is "redis")
	Redis RedisSinkConfig `json:"redis" yaml:"redis"`

	// Database configuration (only used when Type is "database")
	Database DatabaseSinkConfig `json:"database" yaml:"database"`

	// Mongo configuration (only used when Type is "mongo")
	Mongo MongoSinkConfig `json:"mongo" yaml:"mongo"`

	// Retry configuration
	Retry RetryConfig `json:"retry" yaml:"retry"`
}

// RedisSinkConfig contains Redis-specific configuration
type RedisSinkConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
	// TTL expires stored reports; zero keeps them forever.
	TTL time.Duration `json:"ttl" yaml:"ttl"`
}

// DatabaseSinkConfig contains SQL-specific configuration
type DatabaseSinkConfig struct {
	// Driver is postgres, mysql or sqlite
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
	// AutoMigrate creates the table through gorm instead of running migrations.
	AutoMigrate bool `json:"auto_migrate" yaml:"auto_migrate"`
	// Pool falls back to database.DefaultPoolConfig when MaxOpenConns is zero.
	Pool database.PoolConfig `json:"pool" yaml:"pool"`
}

// MongoSinkConfig contains Mongo-specific configuration
type MongoSinkConfig struct {
	URI        string        `json:"uri" yaml:"uri"`
	Database   string        `json:"database" yaml:"database"`
	Collection string        `json:"collection" yaml:"collection"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultSinkConfig returns the default sink configuration
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		Type:    SinkTypeFile,
		BaseDir: "./logs",
		Redis: RedisSinkConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "crewcheck:",
		},
		Database: DatabaseSinkConfig{
			Driver: "sqlite",
			DSN:    "crewcheck.db",
		},
		Mongo: MongoSinkConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "crewcheck",
			Collection: "run_reports",
			Timeout:    10 * time.Second,
		},
		Retry: DefaultRetryConfig(),
	}
}

// ReportWriter writes one serialized report. Write is called at most once;
// Close releases the destination and is safe to call after a failed Write.
type ReportWriter interface {
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Sink is the append-only destination for run reports.
type Sink interface {
	// Open prepares the destination for key. It fails with ErrAlreadyExists
	// when a report was already written under key.
	Open(ctx context.Context, key string) (ReportWriter, error)

	// Ping checks if the sink is healthy
	Ping(ctx context.Context) error

	// Close closes the sink and releases resources
	Close() error
}

// Entry describes one stored report.
type Entry struct {
	Key       string    `json:"key"`
	CrewID    string    `json:"crew_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Size      int       `json:"size"`
}

// ReportReader gives read access to stored reports.
type ReportReader interface {
	Load(ctx context.Context, key string) ([]byte, error)
	// List returns the newest entries first. limit <= 0 means no limit.
	List(ctx context.Context, limit int) ([]Entry, error)
}

// ReportStore is a sink that can also read its reports back.
type ReportStore interface {
	Sink
	ReportReader
}

// reportHeader is the subset of a serialized report that backends index.
type reportHeader struct {
	RunID     string    `json:"run_id"`
	CrewID    string    `json:"crew_id"`
	CreatedAt time.Time `json:"created_at"`
	Partial   bool      `json:"partial"`
	Counts    struct {
		Total        int `json:"total"`
		Pass         int `json:"pass"`
		Fail         int `json:"fail"`
		Inconclusive int `json:"inconclusive"`
		Error        int `json:"error"`
	} `json:"counts"`
}

// parseHeader validates that data is a JSON object and extracts the indexed fields.
func parseHeader(data []byte) (reportHeader, error) {
	var h reportHeader
	if len(data) == 0 {
		return h, ErrInvalidInput
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, errors.Join(ErrInvalidInput, err)
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	return h, nil
}

func validKey(key string) error {
	if key == "" {
		return ErrInvalidInput
	}
	for _, r := range key {
		if r == '/' || r == '\\' || r == 0 {
			return ErrInvalidInput
		}
	}
	if key == "." || key == ".." {
		return ErrInvalidInput
	}
	return nil
}
