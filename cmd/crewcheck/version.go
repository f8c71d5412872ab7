package main

import (
	"fmt"

	"github.com/BaSui01/crewcheck/internal/telemetry"
	"github.com/spf13/cobra"
)

// =============================================================================
// 📋 版本
// =============================================================================

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		// version needs no config
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			v := Version
			if v == "dev" {
				v = telemetry.Version()
			}
			fmt.Fprintf(a.stdout, "crewcheck %s\n", v)
			fmt.Fprintf(a.stdout, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(a.stdout, "  Git Commit: %s\n", GitCommit)
		},
	}
}
