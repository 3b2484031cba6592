// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdiddy/disclosure-engine/pkg/types"
)

// NewAnnotator returns the backend selected by cfg.Provider. An empty
// provider means azure. Chat backends retry HTTP 429/503 at most
// cfg.MaxRetries times (default 3) so throttling waits stay well inside one
// classification timeout.
func NewAnnotator(ctx context.Context, cfg types.ClassifierConfig, client *http.Client) (Annotator, error) {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	httpRetries := cfg.MaxRetries
	if httpRetries <= 0 {
		httpRetries = defaultMaxRetries
	}
	switch providerName(cfg) {
	case types.ClassifierAzure, "":
		if cfg.APIKey == "" {
			return nil, errors.New("azure OpenAI API key is not configured")
		}
		return &ChatBackend{
			Azure:       true,
			Endpoint:    cfg.Endpoint,
			APIKey:      cfg.APIKey,
			APIVersion:  cfg.APIVersion,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			MaxRetries:  httpRetries,
			Client:      client,
		}, nil
	case types.ClassifierOpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New("OpenAI API key is not configured")
		}
		return &ChatBackend{
			Endpoint:    cfg.Endpoint,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			MaxRetries:  httpRetries,
			Client:      client,
		}, nil
	case types.ClassifierGemini:
		return NewGeminiBackend(ctx, cfg.APIKey, cfg.Model, cfg.Temperature, cfg.MaxTokens)
	}
	return nil, fmt.Errorf("unknown classifier provider %q (want azure, openai or gemini)", cfg.Provider)
}

// ResolvedModel returns the model a backend built from cfg calls, applying
// the provider default when cfg leaves the model empty.
func ResolvedModel(cfg types.ClassifierConfig) string {
	if cfg.Model == "" && providerName(cfg) == types.ClassifierGemini {
		return defaultGeminiModel
	}
	return cfg.Model
}

func providerName(cfg types.ClassifierConfig) types.ClassifierProviderName {
	return types.ClassifierProviderName(strings.ToLower(string(cfg.Provider)))
}
