package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newValidateCmd(a *app) *cobra.Command {
	var files []string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check scenario files without running them",
		Long: `Loads and materializes the scenario: registers every agent and task and
builds every crew. All problems are reported in one pass, e.g. every task
assigned to an agent that was never registered.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validate(files)
		},
	}
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "scenario file or directory (repeatable)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) validate(files []string) error {
	def, scenario, err := loadScenario(files, a.logger)
	if err != nil {
		return a.reportScenarioErrors(err)
	}
	fmt.Fprintf(a.stdout, "%s: OK (%d agents, %d tasks, %d crews, %d fixtures, %d files)\n",
		def.Name, scenario.Registry.Len(), scenario.Store.Len(), len(scenario.Crews()),
		len(scenario.Fixtures()), len(def.Sources))
	return nil
}

// reportScenarioErrors prints every problem on its own line and returns a
// short summary error carrying exitInvalid.
func (a *app) reportScenarioErrors(err error) error {
	errs := flattenErrors(err)
	if len(errs) <= 1 {
		return err
	}
	printErrors(a.stderr, errs)
	return invalidf("scenario has %d error(s)", len(errs))
}

func printErrors(w io.Writer, errs []error) {
	for _, e := range errs {
		fmt.Fprintf(w, "  - %v\n", e)
	}
}
