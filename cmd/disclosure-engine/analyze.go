// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/disclosure-engine/internal/classify"
	"github.com/pdiddy/disclosure-engine/internal/flagging"
	"github.com/pdiddy/disclosure-engine/internal/ledger"
	"github.com/pdiddy/disclosure-engine/internal/metrics"
	"github.com/pdiddy/disclosure-engine/internal/pipeline"
	"github.com/pdiddy/disclosure-engine/internal/report"
	"github.com/pdiddy/disclosure-engine/internal/roster"
	"github.com/pdiddy/disclosure-engine/internal/search"
	"github.com/pdiddy/disclosure-engine/pkg/types"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the disclosure analysis over a researcher roster",
	Long: `Analyze loads the roster, searches for each researcher's publications,
classifies every publication's country and funding ties, and flags those that
involve a watchlisted country.

The CSV report and the skip list are always written, even when some
researchers or publications fail. Use --fail-on-skip to exit non-zero when
anything was skipped.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().String("roster", "", "roster file, CSV or YAML (default researchers.csv)")
	analyzeCmd.Flags().String("output", "", "CSV report path (default foreign_disclosure_analysis.csv)")
	analyzeCmd.Flags().String("skipped", "", "skip list path (default foreign_disclosure_skipped.yaml)")
	analyzeCmd.Flags().String("provider", "", "search provider: pubmed or openalex")
	analyzeCmd.Flags().String("classifier", "", "classifier backend: azure, openai or gemini")
	analyzeCmd.Flags().String("model", "", "model identifier, or deployment name for Azure")
	analyzeCmd.Flags().Int("max-results", 0, "publications per researcher (1-25)")
	analyzeCmd.Flags().Int("concurrency", 0, "researchers processed at once")
	analyzeCmd.Flags().String("metrics-textfile", "", "write run metrics to this file in Prometheus text format")
	analyzeCmd.Flags().Bool("no-ledger", false, "disable the run ledger and analysis cache")
	analyzeCmd.Flags().Bool("fail-on-skip", false, "exit non-zero when any researcher or publication was skipped")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd, map[string]string{
		"report.roster":           "roster",
		"report.output":           "output",
		"report.skipped":          "skipped",
		"report.metrics_textfile": "metrics-textfile",
		"search.provider":         "provider",
		"search.max_results":      "max-results",
		"classifier.provider":     "classifier",
		"classifier.model":        "model",
		"pipeline.concurrency":    "concurrency",
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	if noLedger, _ := cmd.Flags().GetBool("no-ledger"); noLedger {
		cfg.Ledger.Enabled = false
	}
	failOnSkip, _ := cmd.Flags().GetBool("fail-on-skip")

	researchers, err := roster.Load(cfg.Report.Roster)
	if err != nil {
		return err
	}
	log.Info("roster loaded", zap.String("path", cfg.Report.Roster), zap.Int("researchers", len(researchers)))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, err := newOrchestrator(ctx, cfg, log)
	if err != nil {
		return err
	}

	var db *ledger.DB
	if cfg.Ledger.Enabled {
		db, err = ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		orch.Cache = db
	}

	summary, err := execute(ctx, cfg, orch, researchers, db, log)
	if err != nil {
		return err
	}
	printSummary(os.Stdout, cfg, summary)

	if summary.runErr != nil {
		return fmt.Errorf("run interrupted, partial report written: %w", summary.runErr)
	}
	if failOnSkip && summary.result.Stats.Skipped > 0 {
		return fmt.Errorf("%d item(s) skipped, see %s", summary.result.Stats.Skipped, cfg.Report.Skipped)
	}
	return nil
}

// newOrchestrator builds the search provider, classifier and flagging
// engine described by cfg.
func newOrchestrator(ctx context.Context, cfg types.Config, log *zap.Logger) (*pipeline.Orchestrator, error) {
	provider, err := search.New(cfg.Search, &http.Client{Timeout: cfg.Search.Timeout})
	if err != nil {
		return nil, err
	}

	annotator, err := classify.NewAnnotator(ctx, cfg.Classifier, &http.Client{Timeout: cfg.Classifier.Timeout})
	if err != nil {
		return nil, fmt.Errorf("configuring classifier: %w", err)
	}

	watchlist := cfg.Pipeline.Watchlist
	if len(watchlist) == 0 {
		watchlist = flagging.DefaultWatchlist
	}

	return &pipeline.Orchestrator{
		Provider: provider,
		Classifier: classify.New(annotator, classify.Options{
			Focus:      watchlist,
			MaxRetries: cfg.Classifier.MaxRetries,
		}),
		Engine: flagging.Engine{
			Watchlist:    flagging.NewWatchlist(watchlist),
			Organization: cfg.Pipeline.Organization,
		},
		Metrics:             metrics.New(),
		Log:                 log,
		Search:              cfg.Search,
		Model:               cacheModel(cfg.Classifier, watchlist),
		Concurrency:         cfg.Pipeline.Concurrency,
		ClassifyConcurrency: cfg.Pipeline.ClassifyConcurrency,
		SearchTimeout:       cfg.Search.Timeout,
		ClassifyTimeout:     cfg.Classifier.Timeout,
	}, nil
}

// runSummary is what execute reports back to the command.
type runSummary struct {
	runID  string
	result pipeline.Result
	runErr error
}

// execute runs the pipeline and writes every output: the CSV report, the
// skip list, the ledger entry and the metrics textfile. Outputs are written
// even when the run was interrupted; runErr carries the interruption.
func execute(ctx context.Context, cfg types.Config, orch *pipeline.Orchestrator, researchers []types.Researcher, db *ledger.DB, log *zap.Logger) (runSummary, error) {
	started := time.Now()
	result, runErr := orch.Run(ctx, researchers)
	finished := time.Now()

	if err := report.WriteCSV(cfg.Report.Output, result.Records); err != nil {
		return runSummary{}, err
	}
	if err := report.WriteSkipped(cfg.Report.Skipped, result.Skipped); err != nil {
		return runSummary{}, err
	}

	var runID string
	if db != nil {
		id, err := db.RecordRun(context.WithoutCancel(ctx), ledger.Run{
			StartedAt:   started,
			FinishedAt:  finished,
			Provider:    orch.Provider.Name(),
			Model:       orch.Model,
			Researchers: len(researchers),
		}, result.Records, result.Skipped)
		if err != nil {
			log.Warn("could not record run in ledger", zap.Error(err))
		} else {
			runID = id
			log.Debug("run recorded", zap.String("run_id", id))
		}
	}

	if err := orch.Metrics.WriteTextfile(cfg.Report.MetricsTextfile); err != nil {
		log.Warn("could not write metrics textfile", zap.Error(err))
	}

	return runSummary{runID: runID, result: result, runErr: runErr}, nil
}

func printSummary(w io.Writer, cfg types.Config, s runSummary) {
	st := s.result.Stats
	fmt.Fprintf(w, "Analyzed %d researcher(s), %d publication(s) in %s\n",
		st.Researchers, st.Publications, st.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Report:  %s (%d rows, %d flagged, %d from cache)\n", cfg.Report.Output, st.Rows, st.Flagged, st.Cached)
	if st.Skipped > 0 {
		fmt.Fprintf(w, "Skipped: %d item(s), see %s\n", st.Skipped, cfg.Report.Skipped)
	}
	if s.runID != "" {
		fmt.Fprintf(w, "Run ID:  %s\n", s.runID)
	}
}
