package migration

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
)

// Op names one `crewcheck migrate` subcommand.
type Op string

const (
	OpUp     Op = "up"
	OpDown   Op = "down"
	OpSteps  Op = "steps"
	OpForce  Op = "force"
	OpStatus Op = "status"
)

// Action is an Op plus its numeric argument (step count or forced version).
type Action struct {
	Op Op
	N  int
}

// CLI applies actions to a migrator and renders the resulting schema state.
type CLI struct {
	migrator Migrator
	out      io.Writer
}

// NewCLI creates a CLI writing to out.
func NewCLI(migrator Migrator, out io.Writer) *CLI {
	if out == nil {
		out = io.Discard
	}
	return &CLI{migrator: migrator, out: out}
}

// Run performs the action. Schema-changing ops finish by printing the
// resulting version of the run_reports schema.
func (c *CLI) Run(ctx context.Context, a Action) error {
	var done string
	switch a.Op {
	case OpUp:
		if err := c.migrator.Up(ctx); err != nil {
			return err
		}
		done = "Migrations complete."
	case OpDown:
		if err := c.migrator.Down(ctx); err != nil {
			return err
		}
		done = "Rollback complete."
	case OpSteps:
		if a.N == 0 {
			return fmt.Errorf("steps must not be zero")
		}
		if err := c.migrator.Steps(ctx, a.N); err != nil {
			return err
		}
		done = fmt.Sprintf("Moved %+d step(s).", a.N)
	case OpForce:
		if a.N < 0 {
			return fmt.Errorf("version must not be negative, got %d", a.N)
		}
		if err := c.migrator.Force(ctx, a.N); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Version forced to %d\n", a.N)
		return nil
	case OpStatus:
		return c.status(ctx)
	default:
		return fmt.Errorf("unknown migrate op %q", a.Op)
	}

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	dirty := ""
	if info.Dirty {
		dirty = " (dirty)"
	}
	fmt.Fprintf(c.out, "%s Current version: %d%s\n", done, info.CurrentVersion, dirty)
	return nil
}

func (c *CLI) status(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.out, "No migrations found.")
		return nil
	}
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATE")
	for _, s := range statuses {
		fmt.Fprintf(tw, "%06d\t%s\t%s\n", s.Version, s.Name, s.state())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "\nTotal: %d, Applied: %d, Pending: %d\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}

func (s MigrationStatus) state() string {
	switch {
	case s.Dirty:
		return "dirty"
	case s.Applied:
		return "applied"
	}
	return "pending"
}
