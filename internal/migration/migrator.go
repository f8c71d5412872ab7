package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/crewcheck/internal/database"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// =============================================================================
// Embedded Migration Files
// =============================================================================

//go:embed migrations/postgres/*.sql migrations/mysql/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// DefaultTableName is the golang-migrate bookkeeping table.
const DefaultTableName = "schema_migrations"

// =============================================================================
// Types and Interfaces
// =============================================================================

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// MigrationInfo contains information about the current migration state
type MigrationInfo struct {
	CurrentVersion    uint
	Dirty             bool
	TotalMigrations   int
	AppliedMigrations int
	PendingMigrations int
}

// Config holds the configuration for the migrator
type Config struct {
	// Driver selects the embedded SQL dialect.
	Driver database.Driver

	// DB is an open connection, usually taken from the report sink's pool.
	// The migrator closes it on Close.
	DB *sql.DB

	// TableName is the name of the migrations table (default: schema_migrations)
	TableName string

	// LockTimeout bounds waiting for the migration lock (default: 15s)
	LockTimeout time.Duration
}

// Migrator defines the operations `crewcheck migrate` exposes.
type Migrator interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	Steps(ctx context.Context, n int) error
	Force(ctx context.Context, version int) error
	Version(ctx context.Context) (uint, bool, error)
	Status(ctx context.Context) ([]MigrationStatus, error)
	Info(ctx context.Context) (*MigrationInfo, error)
	Close() error
}

// =============================================================================
// Default Migrator Implementation
// =============================================================================

// DefaultMigrator implements Migrator with golang-migrate over the embedded files.
type DefaultMigrator struct {
	config  Config
	migrate *migrate.Migrate
	logger  *zap.Logger
}

// NewMigrator creates a migrator on an open connection.
func NewMigrator(cfg Config, logger *zap.Logger) (*DefaultMigrator, error) {
	if cfg.DB == nil {
		return nil, errors.New("database connection is required")
	}
	if cfg.TableName == "" {
		cfg.TableName = DefaultTableName
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dbDriver, err := databaseDriver(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, migrationsDir(cfg.Driver))
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, string(cfg.Driver), dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.LockTimeout = cfg.LockTimeout

	return &DefaultMigrator{
		config:  cfg,
		migrate: m,
		logger:  logger.With(zap.String("component", "migrator"), zap.String("driver", string(cfg.Driver))),
	}, nil
}

func databaseDriver(cfg Config) (migratedb.Driver, error) {
	switch cfg.Driver {
	case database.DriverPostgres:
		return postgres.WithInstance(cfg.DB, &postgres.Config{MigrationsTable: cfg.TableName})
	case database.DriverMySQL:
		return mysql.WithInstance(cfg.DB, &mysql.Config{MigrationsTable: cfg.TableName})
	case database.DriverSQLite:
		// Works on any *sql.DB speaking SQLite, including the pure-Go driver behind gorm.
		return sqlite3.WithInstance(cfg.DB, &sqlite3.Config{MigrationsTable: cfg.TableName})
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

func migrationsDir(driver database.Driver) string {
	return path.Join("migrations", string(driver))
}

// ignoreNoChange treats "nothing to do" as success.
func ignoreNoChange(op string, err error) error {
	if err == nil || errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return fmt.Errorf("migration %s failed: %w", op, err)
}

// Up applies all pending migrations
func (m *DefaultMigrator) Up(ctx context.Context) error {
	m.logger.Info("applying migrations")
	return ignoreNoChange("up", m.migrate.Up())
}

// Down rolls back the last migration
func (m *DefaultMigrator) Down(ctx context.Context) error {
	m.logger.Info("rolling back last migration")
	return ignoreNoChange("down", m.migrate.Steps(-1))
}

// Steps applies (n > 0) or rolls back (n < 0) n migrations.
func (m *DefaultMigrator) Steps(ctx context.Context, n int) error {
	return ignoreNoChange("steps", m.migrate.Steps(n))
}

// Force sets the migration version without running migrations, clearing the dirty flag.
func (m *DefaultMigrator) Force(ctx context.Context, version int) error {
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	return nil
}

// Version returns the current version; zero means nothing is applied.
func (m *DefaultMigrator) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, nil
}

// Status returns one entry per embedded migration.
func (m *DefaultMigrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	files, err := availableMigrations(m.config.Driver)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(files))
	for _, f := range files {
		statuses = append(statuses, MigrationStatus{
			Version: f.version,
			Name:    f.name,
			Applied: f.version <= current,
			Dirty:   dirty && f.version == current,
		})
	}
	return statuses, nil
}

// Info summarizes the migration state.
func (m *DefaultMigrator) Info(ctx context.Context) (*MigrationInfo, error) {
	statuses, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}

	info := &MigrationInfo{CurrentVersion: current, Dirty: dirty, TotalMigrations: len(statuses)}
	for _, s := range statuses {
		if s.Applied {
			info.AppliedMigrations++
		}
	}
	info.PendingMigrations = info.TotalMigrations - info.AppliedMigrations
	return info, nil
}

// Close releases the migrate instance and the underlying connection.
func (m *DefaultMigrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	return errors.Join(sourceErr, dbErr)
}

type migrationFile struct {
	version uint
	name    string
}

// availableMigrations lists the embedded up files, e.g. 000001_create_run_reports.up.sql.
func availableMigrations(driver database.Driver) ([]migrationFile, error) {
	entries, err := fs.ReadDir(migrationsFS, migrationsDir(driver))
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	seen := make(map[uint]bool)
	var files []migrationFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil || seen[uint(version)] {
			continue
		}
		seen[uint(version)] = true
		files = append(files, migrationFile{version: uint(version), name: strings.TrimSuffix(rest, ".up.sql")})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}
