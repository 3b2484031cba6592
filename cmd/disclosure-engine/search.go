// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/disclosure-engine/internal/normalize"
	"github.com/pdiddy/disclosure-engine/internal/report"
	"github.com/pdiddy/disclosure-engine/internal/search"
	"github.com/pdiddy/disclosure-engine/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search <last-name> <first-name>",
	Short: "Search for one researcher's publications without classifying them",
	Long: `Search runs the publication search for a single researcher with the
configured affiliation filter and prints the normalized results. It is useful
for checking a provider and query settings before a full analysis.`,
	Args: cobra.ExactArgs(2),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("provider", "", "search provider: pubmed or openalex")
	searchCmd.Flags().String("affiliation", "", "institutional affiliation filter")
	searchCmd.Flags().Int("max-results", 0, "maximum number of results (1-25)")
	searchCmd.Flags().String("sort", "", "sort order: date or relevance")
	searchCmd.Flags().StringSlice("type", nil, "restrict to publication types (repeatable)")
	searchCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd, map[string]string{
		"search.provider":          "provider",
		"search.affiliation":       "affiliation",
		"search.max_results":       "max-results",
		"search.sort_by":           "sort",
		"search.publication_types": "type",
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	provider, err := search.New(cfg.Search, &http.Client{Timeout: cfg.Search.Timeout})
	if err != nil {
		return err
	}

	r := types.Researcher{LastName: args[0], FirstName: args[1]}
	ctx := cmd.Context()
	if cfg.Search.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Search.Timeout)
		defer cancel()
	}

	raws, err := provider.Search(ctx, search.QueryFromConfig(r, cfg.Search))
	if err != nil {
		return err
	}
	pubs := normalize.All(raws)

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return report.FormatJSON(pubs, os.Stdout)
	}
	report.FormatPublications(pubs, os.Stdout)
	return nil
}
