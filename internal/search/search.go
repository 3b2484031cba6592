// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search finds a researcher's publications in a literature database
// and returns them as raw, provider-shaped records for normalization.
package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdiddy/disclosure-engine/pkg/types"
)

// Result-count bounds accepted by every provider.
const (
	MinResults = 1
	MaxResults = 25
)

// Sort orders.
const (
	SortDate      = "date"
	SortRelevance = "relevance"
)

// Provider searches a single literature database. PubMed and OpenAlex each
// implement this interface; tests substitute doubles.
type Provider interface {
	Name() string
	Search(ctx context.Context, q Query) ([]types.RawRecord, error)
}

// Query holds the parameters of one researcher lookup.
type Query struct {
	Researcher       types.Researcher
	Affiliation      string
	MaxResults       int
	SortBy           string
	PublicationTypes []string
}

// Limit clamps MaxResults to [MinResults, MaxResults]; zero means MaxResults.
func (q Query) Limit() int {
	switch {
	case q.MaxResults <= 0:
		return MaxResults
	case q.MaxResults > MaxResults:
		return MaxResults
	}
	return q.MaxResults
}

// String renders the query for logs and errors.
func (q Query) String() string {
	s := q.Researcher.FullName()
	if q.Affiliation != "" {
		s += " @ " + q.Affiliation
	}
	return s
}

// ProviderError reports a failed lookup for one researcher. The pipeline
// treats it as recoverable: the researcher's publications are skipped.
type ProviderError struct {
	Provider string
	Query    Query
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s search for %s: %v", e.Provider, e.Query, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// New returns the provider named in cfg.
func New(cfg types.SearchConfig, client *http.Client) (Provider, error) {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	switch types.SearchProviderName(strings.ToLower(string(cfg.Provider))) {
	case types.ProviderPubMed, "":
		return &PubMedProvider{Client: client, Email: cfg.Email, APIKey: cfg.APIKey, UserAgent: cfg.UserAgent, MaxRetries: cfg.MaxRetries}, nil
	case types.ProviderOpenAlex:
		return &OpenAlexProvider{Client: client, Email: cfg.Email, UserAgent: cfg.UserAgent, MaxRetries: cfg.MaxRetries}, nil
	}
	return nil, fmt.Errorf("unknown search provider %q (want pubmed or openalex)", cfg.Provider)
}

// QueryFromConfig builds the query for r using the configured affiliation
// filter, result limit, sort order, and publication types.
func QueryFromConfig(r types.Researcher, cfg types.SearchConfig) Query {
	return Query{
		Researcher:       r,
		Affiliation:      cfg.Affiliation,
		MaxResults:       cfg.MaxResults,
		SortBy:           cfg.SortBy,
		PublicationTypes: cfg.PublicationTypes,
	}
}
