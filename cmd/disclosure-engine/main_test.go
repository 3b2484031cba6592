// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/disclosure-engine/internal/classify"
	"github.com/pdiddy/disclosure-engine/internal/flagging"
	"github.com/pdiddy/disclosure-engine/internal/ledger"
	"github.com/pdiddy/disclosure-engine/internal/metrics"
	"github.com/pdiddy/disclosure-engine/internal/pipeline"
	"github.com/pdiddy/disclosure-engine/internal/report"
	"github.com/pdiddy/disclosure-engine/internal/search"
	"github.com/pdiddy/disclosure-engine/internal/secrets"
	"github.com/pdiddy/disclosure-engine/pkg/types"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	configureViper(v)
	return v
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(newTestViper())
	require.NoError(t, err)

	assert.Equal(t, types.ProviderPubMed, cfg.Search.Provider)
	assert.Equal(t, 25, cfg.Search.MaxResults)
	assert.Equal(t, "date", cfg.Search.SortBy)
	assert.Equal(t, 30*time.Second, cfg.Search.Timeout)
	assert.Equal(t, 5, cfg.Search.MaxRetries)
	assert.Equal(t, types.ClassifierAzure, cfg.Classifier.Provider)
	assert.InDelta(t, 0.2, cfg.Classifier.Temperature, 1e-9)
	assert.Equal(t, 1000, cfg.Classifier.MaxTokens)
	assert.Equal(t, 3, cfg.Classifier.MaxRetries)
	assert.Equal(t, "Boston Children's Hospital", cfg.Pipeline.Organization)
	assert.Equal(t, []string{"Russia", "China", "Iran", "North Korea"}, cfg.Pipeline.Watchlist)
	assert.Equal(t, "foreign_disclosure_analysis.csv", cfg.Report.Output)
	assert.Equal(t, "researchers.csv", cfg.Report.Roster)
	assert.True(t, cfg.Ledger.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("DISCLOSURE_ENGINE_SEARCH_PROVIDER", "openalex")
	t.Setenv("DISCLOSURE_ENGINE_SEARCH_TIMEOUT", "5s")
	t.Setenv("DISCLOSURE_ENGINE_PIPELINE_WATCHLIST", "Cuba,Syria")
	t.Setenv("DISCLOSURE_ENGINE_PIPELINE_CONCURRENCY", "8")
	t.Setenv("AZURE_OPENAI_API_ENDPOINT", "https://legacy.openai.azure.com")
	t.Setenv("AZURE_OPENAI_DEPLOYMENT", "gpt-4o")
	t.Setenv("AZURE_OPENAI_API_VERSION", "2024-02-15-preview")
	t.Setenv("DISCLOSURE_ENGINE_CLASSIFIER_MODEL", "gpt-4o-mini")

	cfg, err := loadConfig(newTestViper())
	require.NoError(t, err)

	assert.Equal(t, types.ProviderOpenAlex, cfg.Search.Provider)
	assert.Equal(t, 5*time.Second, cfg.Search.Timeout)
	assert.Equal(t, []string{"Cuba", "Syria"}, cfg.Pipeline.Watchlist)
	assert.Equal(t, 8, cfg.Pipeline.Concurrency)
	assert.Equal(t, "https://legacy.openai.azure.com", cfg.Classifier.Endpoint)
	assert.Equal(t, "2024-02-15-preview", cfg.Classifier.APIVersion)
	assert.Equal(t, "gpt-4o-mini", cfg.Classifier.Model, "prefixed name wins over the legacy one")
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disclosure-engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
search:
  provider: openalex
  max_results: 10
  publication_types: [Journal Article, Review]
classifier:
  provider: gemini
  timeout: 90s
pipeline:
  organization: Example Institute
report:
  output: out/report.csv
`), 0o644))

	v := newTestViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.Equal(t, []string{"Journal Article", "Review"}, cfg.Search.PublicationTypes)
	assert.Equal(t, types.ClassifierGemini, cfg.Classifier.Provider)
	assert.Equal(t, 90*time.Second, cfg.Classifier.Timeout)
	assert.Equal(t, "Example Institute", cfg.Pipeline.Organization)
	assert.Equal(t, "out/report.csv", cfg.Report.Output)
	assert.Equal(t, "foreign_disclosure_skipped.yaml", cfg.Report.Skipped)
}

func TestLoadConfigRejectsEmptyOrganization(t *testing.T) {
	v := newTestViper()
	v.Set("pipeline.organization", "")
	_, err := loadConfig(v)
	assert.ErrorContains(t, err, "organization")
}

func TestBindFlags(t *testing.T) {
	v := newTestViper()
	fs := pflag.NewFlagSet("analyze", pflag.ContinueOnError)
	fs.String("provider", "", "")
	fs.Int("max-results", 0, "")
	require.NoError(t, fs.Parse([]string{"--provider", "openalex"}))

	require.NoError(t, bindFlags(v, fs, map[string]string{
		"search.provider":    "provider",
		"search.max_results": "max-results",
	}))
	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, types.ProviderOpenAlex, cfg.Search.Provider)
	assert.Equal(t, 25, cfg.Search.MaxResults, "unset flags fall back to defaults")

	err = bindFlags(v, fs, map[string]string{"report.output": "output"})
	assert.ErrorContains(t, err, "--output")
}

func TestApplySecrets(t *testing.T) {
	s := secrets.Secrets{
		secrets.AzureOpenAIKey: "azure-key",
		secrets.OpenAIKey:      "openai-key",
		secrets.GeminiKey:      "gemini-key",
		secrets.NCBIKey:        "ncbi-key",
		secrets.ContactEmail:   "ops@example.org",
	}
	tests := []struct {
		provider types.ClassifierProviderName
		apiKey   string
		want     string
	}{
		{types.ClassifierAzure, "", "azure-key"},
		{"", "", "azure-key"},
		{types.ClassifierOpenAI, "", "openai-key"},
		{"Gemini", "", "gemini-key"},
		{types.ClassifierOpenAI, "explicit", "explicit"},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider)+"/"+tt.apiKey, func(t *testing.T) {
			var cfg types.Config
			cfg.Classifier.Provider = tt.provider
			cfg.Classifier.APIKey = tt.apiKey
			applySecrets(&cfg, s)
			assert.Equal(t, tt.want, cfg.Classifier.APIKey)
			assert.Equal(t, "ncbi-key", cfg.Search.APIKey)
			assert.Equal(t, "ops@example.org", cfg.Search.Email)
		})
	}
}

func TestCacheModel(t *testing.T) {
	watchlist := flagging.DefaultWatchlist
	fp := classify.PromptFingerprint(watchlist)

	assert.Equal(t, "azure:gpt-4o@"+fp, cacheModel(types.ClassifierConfig{AIConfig: types.AIConfig{Model: "gpt-4o"}}, watchlist))

	explicit := cacheModel(types.ClassifierConfig{
		Provider: "Gemini",
		AIConfig: types.AIConfig{Model: "gemini-2.5-flash"},
	}, watchlist)
	assert.Equal(t, "gemini:gemini-2.5-flash@"+fp, explicit)

	defaulted := cacheModel(types.ClassifierConfig{Provider: types.ClassifierGemini}, watchlist)
	assert.Equal(t, explicit, defaulted, "an empty model resolves to the backend default")

	changed := cacheModel(types.ClassifierConfig{AIConfig: types.AIConfig{Model: "gpt-4o"}}, []string{"Iran"})
	assert.NotEqual(t, "azure:gpt-4o@"+fp, changed, "watchlist change invalidates cached analyses")
}

// --- execute ---

type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Search(_ context.Context, q search.Query) ([]types.RawRecord, error) {
	if q.Researcher.LastName == "Doe" {
		return nil, &search.ProviderError{Provider: "stub", Query: q, Err: errors.New("HTTP 503")}
	}
	return []types.RawRecord{
		{"title": "Joint cohort study", "doi": "10.1000/a", "journal": map[string]any{"name": "Pediatrics"}},
		{"title": "Local registry", "pmid": "42"},
	}, nil
}

type stubClassifier struct{}

func (stubClassifier) Classify(_ context.Context, pub types.Publication) (types.AffiliationAnalysis, error) {
	if pub.Title == "Joint cohort study" {
		return types.AffiliationAnalysis{
			Countries:       types.StringList{"United States", "China"},
			FundingSources:  types.StringList{"NSFC"},
			ConfidenceScore: 9,
		}, nil
	}
	return types.AffiliationAnalysis{Countries: types.StringList{"United States"}, ConfidenceScore: 6}, nil
}

func TestExecuteWritesAllOutputs(t *testing.T) {
	dir := t.TempDir()
	var cfg types.Config
	cfg.Report = types.ReportConfig{
		Output:          filepath.Join(dir, "report.csv"),
		Skipped:         filepath.Join(dir, "skipped.yaml"),
		MetricsTextfile: filepath.Join(dir, "metrics.prom"),
	}

	db, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	defer db.Close()

	orch := &pipeline.Orchestrator{
		Provider:   stubProvider{},
		Classifier: stubClassifier{},
		Engine: flagging.Engine{
			Watchlist:    flagging.NewWatchlist(flagging.DefaultWatchlist),
			Organization: "Boston Children's Hospital",
		},
		Cache:   db,
		Metrics: metrics.New(),
		Log:     zap.NewNop(),
		Model:   "azure:test",
	}
	researchers := []types.Researcher{
		{LastName: "Smith", FirstName: "Jane"},
		{LastName: "Doe", FirstName: "John"},
	}

	summary, err := execute(context.Background(), cfg, orch, researchers, db, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, summary.runErr)
	assert.NotEmpty(t, summary.runID)

	records, err := report.ReadCSV(cfg.Report.Output)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Pediatrics", records[0].PublicationName)
	assert.Equal(t, "Jane Smith", records[0].AuthorName)
	assert.True(t, records[0].Flagged)
	assert.Equal(t, "China", records[0].FlaggedCountries)
	assert.False(t, records[1].Flagged)

	skips, err := report.ReadSkipped(cfg.Report.Skipped)
	require.NoError(t, err)
	require.Len(t, skips, 1)
	assert.Equal(t, types.StageSearch, skips[0].Stage)
	assert.Equal(t, "John Doe", skips[0].Researcher)

	stored, err := db.Records(context.Background(), summary.runID)
	require.NoError(t, err)
	assert.Equal(t, records, stored)

	runs, err := db.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "stub", runs[0].Provider)
	assert.Equal(t, 2, runs[0].Researchers)
	assert.Equal(t, 1, runs[0].Flagged)
	assert.Equal(t, 1, runs[0].Skipped)

	prom, err := os.ReadFile(cfg.Report.MetricsTextfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "disclosure_report_rows_total")

	// A second run is served from the analysis cache.
	summary, err = execute(context.Background(), cfg, orch, researchers[:1], db, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.result.Stats.Cached)

	var buf bytes.Buffer
	printSummary(&buf, cfg, summary)
	assert.Contains(t, buf.String(), "2 rows, 1 flagged, 2 from cache")
	assert.Contains(t, buf.String(), "Run ID:")
}

func TestExecuteCanceledStillWritesReport(t *testing.T) {
	dir := t.TempDir()
	var cfg types.Config
	cfg.Report = types.ReportConfig{
		Output:  filepath.Join(dir, "report.csv"),
		Skipped: filepath.Join(dir, "skipped.yaml"),
	}
	orch := &pipeline.Orchestrator{Provider: stubProvider{}, Classifier: stubClassifier{}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := execute(ctx, cfg, orch, []types.Researcher{{LastName: "Smith", FirstName: "Jane"}}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.ErrorIs(t, summary.runErr, context.Canceled)

	records, err := report.ReadCSV(cfg.Report.Output)
	require.NoError(t, err)
	assert.Empty(t, records)

	skips, err := report.ReadSkipped(cfg.Report.Skipped)
	require.NoError(t, err)
	assert.Len(t, skips, 1)
}

// --- report and runs output ---

func TestPrintReport(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "report.csv")
	skipPath := filepath.Join(dir, "skipped.yaml")
	require.NoError(t, report.WriteCSV(csvPath, []types.OutputRecord{
		{ResearchTitle: "Flagged paper", AuthorName: "Jane Smith", Flagged: true, CountriesOfOrigin: "Iran", ConfidenceScore: 8},
		{ResearchTitle: "Clean paper", AuthorName: "Jane Smith", ConfidenceScore: 5},
	}))
	require.NoError(t, report.WriteSkipped(skipPath, []types.Skip{
		{Stage: types.StageClassify, Researcher: "Jane Smith", Title: "Broken", Reason: "malformed analysis"},
	}))

	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, csvPath, skipPath, false, false, true))
	assert.Contains(t, buf.String(), "Clean paper")
	assert.Contains(t, buf.String(), "2 records, 1 flagged")
	assert.Contains(t, buf.String(), "malformed analysis")

	buf.Reset()
	require.NoError(t, printReport(&buf, csvPath, skipPath, true, false, false))
	assert.NotContains(t, buf.String(), "Clean paper")
	assert.Contains(t, buf.String(), "1 records, 1 flagged")

	buf.Reset()
	require.NoError(t, printReport(&buf, csvPath, skipPath, false, true, false))
	assert.Contains(t, buf.String(), `"research_title": "Flagged paper"`)

	err := printReport(&buf, filepath.Join(dir, "missing.csv"), skipPath, false, false, false)
	assert.Error(t, err)
}

func TestFormatRuns(t *testing.T) {
	var buf bytes.Buffer
	formatRuns(nil, &buf)
	assert.Contains(t, buf.String(), "No runs recorded")

	buf.Reset()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	formatRuns([]ledger.Run{{
		ID:         "4f6c1a52-8a56-4a3c-9d0e-2f1b7c3e9a10",
		StartedAt:  start,
		FinishedAt: start.Add(95 * time.Second),
		Provider:   "pubmed",
		Rows:       12,
		Flagged:    2,
		Skipped:    1,
	}}, &buf)
	s := buf.String()
	assert.Contains(t, s, "4f6c1a52-8a56-4a3c-9d0e-2f1b7c3e9a10")
	assert.Contains(t, s, "1m35s")
	assert.Contains(t, s, "pubmed")
	assert.Contains(t, s, "1 runs")
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "disclosure-engine dev\n", buf.String())
}
