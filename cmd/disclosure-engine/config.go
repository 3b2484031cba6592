// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pdiddy/disclosure-engine/internal/classify"
	"github.com/pdiddy/disclosure-engine/internal/flagging"
	"github.com/pdiddy/disclosure-engine/internal/secrets"
	"github.com/pdiddy/disclosure-engine/pkg/types"
)

const envPrefix = "DISCLOSURE_ENGINE"

// Defaults. Every configuration key has one so that AutomaticEnv can find
// it during Unmarshal.
const (
	defaultOrganization = "Boston Children's Hospital"
	defaultRoster       = "researchers.csv"
	defaultOutput       = "foreign_disclosure_analysis.csv"
	defaultSkipped      = "foreign_disclosure_skipped.yaml"
	defaultLedger       = ".disclosure-engine/ledger.db"
)

// legacyEnv maps configuration keys to the environment names used by
// existing Azure OpenAI deployments.
var legacyEnv = map[string]string{
	"classifier.endpoint":    "AZURE_OPENAI_API_ENDPOINT",
	"classifier.api_key":     "AZURE_OPENAI_API_KEY",
	"classifier.api_version": "AZURE_OPENAI_API_VERSION",
	"classifier.model":       "AZURE_OPENAI_DEPLOYMENT",
}

// configureViper installs defaults and environment bindings on v.
func configureViper(v *viper.Viper) {
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, legacy)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search.provider", string(types.ProviderPubMed))
	v.SetDefault("search.max_results", 25)
	v.SetDefault("search.sort_by", "date")
	v.SetDefault("search.publication_types", []string{})
	v.SetDefault("search.affiliation", defaultOrganization)
	v.SetDefault("search.email", "")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.max_retries", 5)
	v.SetDefault("search.timeout", 30*time.Second)
	v.SetDefault("search.user_agent", "disclosure-engine/"+version)

	v.SetDefault("classifier.provider", string(types.ClassifierAzure))
	v.SetDefault("classifier.endpoint", "")
	v.SetDefault("classifier.api_key", "")
	v.SetDefault("classifier.api_version", "")
	v.SetDefault("classifier.model", "")
	v.SetDefault("classifier.temperature", 0.2)
	v.SetDefault("classifier.max_tokens", 1000)
	v.SetDefault("classifier.max_retries", 3)
	v.SetDefault("classifier.timeout", 60*time.Second)

	v.SetDefault("pipeline.organization", defaultOrganization)
	v.SetDefault("pipeline.watchlist", flagging.DefaultWatchlist)
	v.SetDefault("pipeline.concurrency", 2)
	v.SetDefault("pipeline.classify_concurrency", 4)

	v.SetDefault("report.roster", defaultRoster)
	v.SetDefault("report.output", defaultOutput)
	v.SetDefault("report.skipped", defaultSkipped)
	v.SetDefault("report.metrics_textfile", "")

	v.SetDefault("ledger.path", defaultLedger)
	v.SetDefault("ledger.enabled", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// loadConfig decodes v into a Config.
func loadConfig(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding configuration: %w", err)
	}
	if cfg.Pipeline.Organization == "" {
		return types.Config{}, fmt.Errorf("pipeline.organization must not be empty")
	}
	return cfg, nil
}

// applySecrets fills API keys and the contact email from the secrets
// directory where configuration left them empty.
func applySecrets(cfg *types.Config, s secrets.Secrets) {
	cfg.Search.APIKey = s.Or(cfg.Search.APIKey, secrets.NCBIKey)
	cfg.Search.Email = s.Or(cfg.Search.Email, secrets.ContactEmail)

	switch types.ClassifierProviderName(strings.ToLower(string(cfg.Classifier.Provider))) {
	case types.ClassifierOpenAI:
		cfg.Classifier.APIKey = s.Or(cfg.Classifier.APIKey, secrets.OpenAIKey)
	case types.ClassifierGemini:
		cfg.Classifier.APIKey = s.Or(cfg.Classifier.APIKey, secrets.GeminiKey)
	default:
		cfg.Classifier.APIKey = s.Or(cfg.Classifier.APIKey, secrets.AzureOpenAIKey)
	}
}

// bindFlags binds each configuration key to the named flag in fs. Binding
// happens at run time because several subcommands share keys.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		f := fs.Lookup(name)
		if f == nil {
			return fmt.Errorf("flag --%s is not defined", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}

// cacheModel names the classifier and prompt in analysis cache keys, as
// "provider:model@fingerprint". A watchlist change alters the prompt, so it
// also changes the key.
func cacheModel(cfg types.ClassifierConfig, focus []string) string {
	provider := strings.ToLower(string(cfg.Provider))
	if provider == "" {
		provider = string(types.ClassifierAzure)
	}
	return provider + ":" + classify.ResolvedModel(cfg) + "@" + classify.PromptFingerprint(focus)
}
