package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/forest6511/skm/pkg/history"
)

// History command flags
var (
	historyLimit int
	historyID    string
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show (0 for all)")
	historyCmd.Flags().StringVar(&historyID, "id", "", "Show the keys of one run")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past exports and imports",
	Long: `Show the local journal of export and import runs.

The journal records key names and outcomes only, never key material.

Examples:
  skm history
  skm history --id 3f1c2a9e-...`,
	Args: cobra.NoArgs,
	RunE: executeHistory,
}

func executeHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	store, err := history.Open(ctx, cfg.HistoryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if historyID != "" {
		run, err := store.Get(ctx, historyID)
		if err != nil {
			return err
		}
		printRun(cmd, run)
		return nil
	}

	runs, err := store.List(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No history.")
		return nil
	}

	w := newTable(out)
	fmt.Fprintln(w, "ID\tWHEN\tOP\tARCHIVE\tKEYS\tAPPLIED\tSKIPPED\tFAILED\tSTATUS")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, humanize.Time(r.StartedAt), opLabel(r), r.Archive,
			r.KeyCount, r.Applied, r.Skipped, r.Failed, runStatus(r))
	}
	return w.Flush()
}

func opLabel(r *history.Run) string {
	label := string(r.Op)
	if r.Strategy != "" {
		label += " (" + r.Strategy + ")"
	}
	if r.DryRun {
		label += " dry-run"
	}
	return label
}

func runStatus(r *history.Run) string {
	switch {
	case r.Failed > 0:
		return "partial"
	case r.Error != "":
		return "error"
	default:
		return "ok"
	}
}

func printRun(cmd *cobra.Command, r *history.Run) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:       %s\n", r.ID)
	fmt.Fprintf(out, "When:      %s\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Operation: %s\n", opLabel(r))
	fmt.Fprintf(out, "Archive:   %s\n", r.Archive)
	fmt.Fprintf(out, "Archive ID: %s\n", orDash(r.ArchiveID))
	fmt.Fprintf(out, "Status:    %s\n", runStatus(r))
	if r.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", r.Error)
	}
	if len(r.Entries) == 0 {
		return
	}

	fmt.Fprintln(out)
	w := newTable(out)
	fmt.Fprintln(w, "NAME\tDECISION\tTARGET\tOUTCOME\tERROR")
	for _, e := range r.Entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.Decision, e.Target, e.Outcome, orDash(e.Error))
	}
	_ = w.Flush()
}
