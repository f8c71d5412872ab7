package main

import (
	"fmt"
	"strconv"

	"github.com/BaSui01/crewcheck/internal/migration"
	"github.com/spf13/cobra"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

func newMigrateCmd(a *app) *cobra.Command {
	var (
		driver string
		dsn    string
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run_reports schema of the database sink",
		Long: `Applies the embedded migrations for the configured database
(database.driver and database.dsn, or the --driver/--dsn flags).`,
	}
	cmd.PersistentFlags().StringVar(&driver, "driver", "", "override database.driver (postgres, mysql, sqlite)")
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "override the database connection string")

	// apply opens a migrator, runs one action and closes the migrator.
	apply := func(cmd *cobra.Command, action migration.Action) error {
		m, err := a.openMigrator(driver, dsn)
		if err != nil {
			return err
		}
		defer m.Close()
		return migration.NewCLI(m, a.stdout).Run(cmd.Context(), action)
	}
	simple := func(op migration.Op, short string) *cobra.Command {
		return &cobra.Command{
			Use:   string(op),
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return apply(cmd, migration.Action{Op: op})
			},
		}
	}
	numeric := func(op migration.Op, use, short, what string) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return invalidf("invalid %s %q", what, args[0])
				}
				return apply(cmd, migration.Action{Op: op, N: n})
			},
		}
	}

	cmd.AddCommand(
		simple(migration.OpUp, "Apply all pending migrations"),
		simple(migration.OpDown, "Roll back the last migration"),
		numeric(migration.OpSteps, "steps <n>", "Apply n migrations, or roll back when n is negative", "step count"),
		numeric(migration.OpForce, "force <version>", "Set the schema version without running migrations (clears the dirty flag)", "version"),
		simple(migration.OpStatus, "Show applied and pending migrations"),
	)
	return cmd
}

func (a *app) openMigrator(driver, dsn string) (*migration.DefaultMigrator, error) {
	db := a.cfg.Database
	if driver != "" {
		db.Driver = driver
	}
	if dsn != "" {
		db.DSN = dsn
	}
	conn, err := db.ConnectionString()
	if err != nil {
		return nil, withExit(exitInvalid, err)
	}
	m, err := migration.Open(db.Driver, conn, a.logger)
	if err != nil {
		return nil, withExit(exitPersistence, fmt.Errorf("open migrator: %w", err))
	}
	return m, nil
}
