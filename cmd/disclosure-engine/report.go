// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/disclosure-engine/internal/report"
	"github.com/pdiddy/disclosure-engine/pkg/types"
)

var reportCmd = &cobra.Command{
	Use:   "report [path]",
	Short: "Print a written disclosure report as a table",
	Long: `Report reads a CSV report written by analyze and prints it as a table.
With --skipped it also prints the skip list written next to the report.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().Bool("flagged", false, "show only flagged rows")
	reportCmd.Flags().Bool("skipped", false, "also print the skip list")
	reportCmd.Flags().Bool("json", false, "output rows as JSON")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd, map[string]string{})
	if err != nil {
		return err
	}
	defer log.Sync()

	path := cfg.Report.Output
	if len(args) == 1 {
		path = args[0]
	}
	flaggedOnly, _ := cmd.Flags().GetBool("flagged")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	withSkipped, _ := cmd.Flags().GetBool("skipped")

	return printReport(os.Stdout, path, cfg.Report.Skipped, flaggedOnly, jsonOutput, withSkipped)
}

func printReport(w io.Writer, path, skippedPath string, flaggedOnly, jsonOutput, withSkipped bool) error {
	records, err := report.ReadCSV(path)
	if err != nil {
		return err
	}
	if flaggedOnly {
		records = onlyFlagged(records)
	}

	if jsonOutput {
		return report.FormatJSON(records, w)
	}
	report.FormatTable(records, w)

	if withSkipped {
		skips, err := report.ReadSkipped(skippedPath)
		if err != nil {
			return err
		}
		io.WriteString(w, "\n")
		report.FormatSkipped(skips, w)
	}
	return nil
}

func onlyFlagged(records []types.OutputRecord) []types.OutputRecord {
	out := []types.OutputRecord{}
	for _, r := range records {
		if r.Flagged {
			out = append(out, r)
		}
	}
	return out
}
