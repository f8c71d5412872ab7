package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/BaSui01/crewcheck/agent/persistence"
	"github.com/BaSui01/crewcheck/agent/reporting"
	"github.com/spf13/cobra"
)

func newReportsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect persisted run reports",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listReports(cmd.Context(), limit)
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of reports (0 for all)")

	var (
		raw     bool
		verbose bool
	)
	show := &cobra.Command{
		Use:   "show <run id>",
		Short: "Print one stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.showReport(cmd.Context(), args[0], raw, verbose)
		},
	}
	show.Flags().BoolVar(&raw, "json", false, "print the stored JSON as is")
	show.Flags().BoolVarP(&verbose, "verbose", "v", true, "print every verdict")

	cmd.AddCommand(list, show)
	return cmd
}

func (a *app) openReportStore(ctx context.Context) (persistence.ReportStore, error) {
	storeCfg, err := a.cfg.ReportStoreConfig()
	if err != nil {
		return nil, withExit(exitInvalid, err)
	}
	store, err := persistence.NewReportStore(ctx, storeCfg, a.logger)
	if err != nil {
		return nil, withExit(exitPersistence, fmt.Errorf("open report sink: %w", err))
	}
	return store, nil
}

func (a *app) listReports(ctx context.Context, limit int) error {
	store, err := a.openReportStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(ctx, limit)
	if err != nil {
		return withExit(exitPersistence, fmt.Errorf("list reports: %w", err))
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.stdout, "No reports.")
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tCREW\tCREATED\tSIZE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", e.Key, e.CrewID, e.CreatedAt.Local().Format(time.DateTime), e.Size)
	}
	return tw.Flush()
}

func (a *app) showReport(ctx context.Context, runID string, raw, verbose bool) error {
	store, err := a.openReportStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	data, err := store.Load(ctx, runID)
	if errors.Is(err, persistence.ErrNotFound) {
		return invalidf("no report %q", runID)
	}
	if err != nil {
		return withExit(exitPersistence, fmt.Errorf("load report: %w", err))
	}
	if raw {
		_, err := a.stdout.Write(append(data, '\n'))
		return err
	}

	var report reporting.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return withExit(exitPersistence, fmt.Errorf("decode report %s: %w", runID, err))
	}
	return reporting.WriteText(a.stdout, &report, verbose)
}
