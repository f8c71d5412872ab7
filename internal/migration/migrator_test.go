package migration

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/BaSui01/crewcheck/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openSQLite(t *testing.T) (*DefaultMigrator, string) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "crewcheck.db")
	m, err := Open("sqlite", dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, dsn
}

func TestAvailableMigrations(t *testing.T) {
	for _, driver := range []database.Driver{database.DriverPostgres, database.DriverMySQL, database.DriverSQLite} {
		t.Run(string(driver), func(t *testing.T) {
			files, err := availableMigrations(driver)
			require.NoError(t, err)
			require.NotEmpty(t, files)
			assert.Equal(t, uint(1), files[0].version)
			assert.Equal(t, "create_run_reports", files[0].name)
		})
	}
}

func TestNewMigrator_RequiresDB(t *testing.T) {
	_, err := NewMigrator(Config{Driver: database.DriverSQLite}, nil)
	require.Error(t, err)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("oracle", "x", nil)
	require.Error(t, err)
}

func TestMigrator_UpDownSQLite(t *testing.T) {
	ctx := context.Background()
	m, _ := openSQLite(t)

	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, info.PendingMigrations)

	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Up(ctx), "second up is a no-op")

	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Applied)

	require.NoError(t, m.Down(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestMigrator_SchemaMatchesDatabaseSink(t *testing.T) {
	ctx := context.Background()
	m, dsn := openSQLite(t)
	require.NoError(t, m.Up(ctx))

	pm, err := database.Open("sqlite", dsn, database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	for _, col := range []string{"run_id", "crew_id", "total", "passed", "failed", "inconclusive", "errored", "partial", "payload", "created_at"} {
		assert.True(t, pm.DB().Migrator().HasColumn("run_reports", col), col)
	}
	assert.True(t, pm.DB().Migrator().HasIndex("run_reports", "idx_run_reports_crew_id"))
}

func TestCLI_Output(t *testing.T) {
	ctx := context.Background()
	m, _ := openSQLite(t)

	var out bytes.Buffer
	cli := NewCLI(m, &out)

	require.NoError(t, cli.Run(ctx, Action{Op: OpStatus}))
	assert.Contains(t, out.String(), "create_run_reports")
	assert.Contains(t, out.String(), "pending")

	out.Reset()
	require.NoError(t, cli.Run(ctx, Action{Op: OpUp}))
	assert.Contains(t, out.String(), "Current version: 1")

	out.Reset()
	require.NoError(t, cli.Run(ctx, Action{Op: OpStatus}))
	assert.Contains(t, out.String(), "Applied: 1, Pending: 0")

	require.Error(t, cli.Run(ctx, Action{Op: OpSteps}))

	out.Reset()
	require.NoError(t, cli.Run(ctx, Action{Op: OpForce, N: 1}))
	assert.Contains(t, out.String(), "Version forced to 1")

	assert.Error(t, cli.Run(ctx, Action{Op: "sideways"}))
}
