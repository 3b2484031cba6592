// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the per-call timeout for search and classification requests.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "disclosure-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// SearchProviderName identifies the literature database backend.
type SearchProviderName string

const (
	ProviderPubMed   SearchProviderName = "pubmed"
	ProviderOpenAlex SearchProviderName = "openalex"
)

// SearchConfig holds settings for the publication search stage.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Provider selects the literature database: pubmed or openalex.
	Provider SearchProviderName `json:"provider" yaml:"provider" mapstructure:"provider"`

	// MaxResults is the maximum number of publications per researcher (1-25, default 25).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// SortBy orders results: "date" (newest first) or "relevance".
	SortBy string `json:"sort_by" yaml:"sort_by" mapstructure:"sort_by"`

	// PublicationTypes restricts results to the listed publication types.
	PublicationTypes []string `json:"publication_types" yaml:"publication_types" mapstructure:"publication_types"`

	// Affiliation is the institutional filter added to every researcher query.
	Affiliation string `json:"affiliation" yaml:"affiliation" mapstructure:"affiliation"`

	// Email is sent to PubMed (email) and OpenAlex (mailto) for polite access.
	Email string `json:"email,omitempty" yaml:"email,omitempty" mapstructure:"email"`

	// APIKey is the optional NCBI API key for higher PubMed rate limits.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxRetries bounds HTTP 429/503 retries (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// ClassifierProviderName identifies the language-model backend.
type ClassifierProviderName string

const (
	ClassifierAzure  ClassifierProviderName = "azure"
	ClassifierOpenAI ClassifierProviderName = "openai"
	ClassifierGemini ClassifierProviderName = "gemini"
)

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the model identifier, or the deployment name for Azure OpenAI.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// ClassifierConfig holds settings for the affiliation classifier.
type ClassifierConfig struct {
	AIConfig `yaml:",inline" mapstructure:",squash"`

	// Provider selects the backend: azure, openai, or gemini.
	Provider ClassifierProviderName `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Endpoint is the API base URL (the Azure resource endpoint for azure).
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// APIVersion is the Azure OpenAI api-version query parameter.
	APIVersion string `json:"api_version" yaml:"api_version" mapstructure:"api_version"`

	// Temperature is the sampling temperature (default 0.2).
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`

	// MaxTokens caps the response length (default 1000).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Timeout is the per-call classification timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	// Organization is the constant written to every row's organization_affiliation.
	Organization string `json:"organization" yaml:"organization" mapstructure:"organization"`

	// Watchlist lists the country names of concern.
	Watchlist []string `json:"watchlist" yaml:"watchlist" mapstructure:"watchlist"`

	// Concurrency bounds how many researchers are processed at once (default 2).
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// ClassifyConcurrency bounds concurrent classifier calls per researcher (default 4).
	ClassifyConcurrency int `json:"classify_concurrency" yaml:"classify_concurrency" mapstructure:"classify_concurrency"`
}

// ReportConfig holds input and output paths.
type ReportConfig struct {
	// Roster is the researcher roster file (CSV or YAML).
	Roster string `json:"roster" yaml:"roster" mapstructure:"roster"`

	// Output is the CSV report path.
	Output string `json:"output" yaml:"output" mapstructure:"output"`

	// Skipped is the YAML skip list path.
	Skipped string `json:"skipped" yaml:"skipped" mapstructure:"skipped"`

	// MetricsTextfile, if set, receives run metrics in Prometheus text format.
	MetricsTextfile string `json:"metrics_textfile,omitempty" yaml:"metrics_textfile,omitempty" mapstructure:"metrics_textfile"`
}

// LedgerConfig holds settings for the SQLite run ledger and analysis cache.
type LedgerConfig struct {
	// Path is the SQLite database file.
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// Enabled turns the ledger and analysis cache on.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is "console" or "json".
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Config groups all settings. It is built once at startup and passed
// explicitly to every component.
type Config struct {
	Search     SearchConfig     `json:"search" yaml:"search" mapstructure:"search"`
	Classifier ClassifierConfig `json:"classifier" yaml:"classifier" mapstructure:"classifier"`
	Pipeline   PipelineConfig   `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Report     ReportConfig     `json:"report" yaml:"report" mapstructure:"report"`
	Ledger     LedgerConfig     `json:"ledger" yaml:"ledger" mapstructure:"ledger"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
}
