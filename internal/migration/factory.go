package migration

import (
	"fmt"

	"github.com/BaSui01/crewcheck/internal/database"
	"go.uber.org/zap"
)

// Open connects through internal/database, the same path the database sink
// uses, and returns a migrator owning that connection.
func Open(driverName, dsn string, logger *zap.Logger) (*DefaultMigrator, error) {
	driver, err := database.ParseDriver(driverName)
	if err != nil {
		return nil, err
	}

	pool := database.DefaultPoolConfig()
	pm, err := database.Open(string(driver), dsn, pool, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	m, err := NewMigrator(Config{Driver: driver, DB: pm.SQL()}, logger)
	if err != nil {
		_ = pm.Close()
		return nil, err
	}
	return m, nil
}
