// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/disclosure-engine/internal/ledger"
	"github.com/pdiddy/disclosure-engine/internal/report"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List and inspect runs recorded in the ledger",
	Long: `Runs lists past analyze runs recorded in the SQLite ledger, newest first.
Use the show and skipped subcommands to print a run's rows or skip list.`,
	RunE: runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Print the report rows of a run (default: the newest run)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRunsShow,
}

var runsSkippedCmd = &cobra.Command{
	Use:   "skipped [run-id]",
	Short: "Print the skip list of a run (default: the newest run)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRunsSkipped,
}

func init() {
	runsCmd.PersistentFlags().String("ledger", "", "ledger database path")
	runsCmd.Flags().Int("limit", 20, "maximum runs to list (0 = all)")

	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsSkippedCmd)
	rootCmd.AddCommand(runsCmd)
}

// openLedger loads configuration and opens the ledger database.
func openLedger(cmd *cobra.Command) (*ledger.DB, error) {
	cfg, log, err := setup(cmd, map[string]string{"ledger.path": "ledger"})
	if err != nil {
		return nil, err
	}
	defer log.Sync()
	return ledger.Open(cfg.Ledger.Path)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	db, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := db.Runs(cmd.Context(), limit)
	if err != nil {
		return err
	}
	formatRuns(runs, os.Stdout)
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	db, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.Records(cmd.Context(), runArg(args))
	if err != nil {
		return err
	}
	report.FormatTable(records, os.Stdout)
	return nil
}

func runRunsSkipped(cmd *cobra.Command, args []string) error {
	db, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	skips, err := db.Skipped(cmd.Context(), runArg(args))
	if err != nil {
		return err
	}
	report.FormatSkipped(skips, os.Stdout)
	return nil
}

func runArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// formatRuns writes runs as a table to w.
func formatRuns(runs []ledger.Run, w io.Writer) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	fmt.Fprintf(w, "%-36s  %-19s  %-8s  %-9s  %5s  %7s  %7s\n",
		"Run ID", "Started", "Took", "Provider", "Rows", "Flagged", "Skipped")
	fmt.Fprintln(w, strings.Repeat("-", 104))
	for _, r := range runs {
		took := r.FinishedAt.Sub(r.StartedAt).Round(time.Second)
		fmt.Fprintf(w, "%-36s  %-19s  %-8s  %-9s  %5d  %7d  %7d\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), took, r.Provider, r.Rows, r.Flagged, r.Skipped)
	}
	fmt.Fprintf(w, "\n%d runs\n", len(runs))
}
