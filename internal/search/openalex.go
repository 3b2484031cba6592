// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/disclosure-engine/internal/httputil"
	"github.com/pdiddy/disclosure-engine/pkg/types"
)

// openAlexWorksBase is the OpenAlex Works endpoint. Declared as a var so
// tests can substitute an httptest server.
var openAlexWorksBase = "https://api.openalex.org/works"

// OpenAlexProvider queries the OpenAlex Works API by raw author name and raw
// affiliation string.
type OpenAlexProvider struct {
	Client *http.Client
	// Email is sent as mailto parameter for polite pool access.
	Email      string
	UserAgent  string
	MaxRetries int
}

// Name returns the provider identifier.
func (p *OpenAlexProvider) Name() string { return string(types.ProviderOpenAlex) }

// Search returns up to q.Limit() works for the researcher.
func (p *OpenAlexProvider) Search(ctx context.Context, q Query) ([]types.RawRecord, error) {
	filter := buildOpenAlexFilter(q)
	if filter == "" {
		return nil, &ProviderError{Provider: p.Name(), Query: q, Err: fmt.Errorf("empty researcher name")}
	}

	params := url.Values{
		"filter":   {filter},
		"per_page": {strconv.Itoa(q.Limit())},
		"page":     {"1"},
	}
	if q.SortBy == SortDate {
		params.Set("sort", "publication_date:desc")
	}
	if p.Email != "" {
		params.Set("mailto", p.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexWorksBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Query: q, Err: fmt.Errorf("creating request: %w", err)}
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, p.Client, req, p.MaxRetries)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Query: q, Err: fmt.Errorf("OpenAlex API request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: p.Name(), Query: q, Err: fmt.Errorf("OpenAlex API returned HTTP %d", resp.StatusCode)}
	}

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Query: q, Err: fmt.Errorf("parsing OpenAlex response: %w", err)}
	}

	records := make([]types.RawRecord, 0, len(oar.Results))
	for _, work := range oar.Results {
		records = append(records, work.rawRecord())
	}
	return records, nil
}

// buildOpenAlexFilter combines the author name, affiliation, and type
// restrictions into an OpenAlex filter expression. Commas separate filters in
// the OpenAlex syntax, so they are stripped from values.
func buildOpenAlexFilter(q Query) string {
	name := filterValue(q.Researcher.FullName())
	if name == "" {
		return ""
	}
	filters := []string{"raw_author_name.search:" + name}
	if aff := filterValue(q.Affiliation); aff != "" {
		filters = append(filters, "raw_affiliation_strings.search:"+aff)
	}
	var workTypes []string
	for _, pt := range q.PublicationTypes {
		if t := filterValue(strings.ToLower(pt)); t != "" {
			workTypes = append(workTypes, strings.ReplaceAll(t, " ", "-"))
		}
	}
	if len(workTypes) > 0 {
		filters = append(filters, "type:"+strings.Join(workTypes, "|"))
	}
	return strings.Join(filters, ",")
}

func filterValue(s string) string {
	return strings.Join(strings.Fields(strings.NewReplacer(",", " ", "|", " ", ":", " ").Replace(s)), " ")
}

// rawRecord converts an OpenAlex work into the loosely typed record shape the
// normalizer consumes.
func (w openAlexWork) rawRecord() types.RawRecord {
	title := w.Title
	if title == "" {
		title = w.DisplayName
	}

	authors := make([]any, 0, len(w.Authorships))
	for _, a := range w.Authorships {
		affs := make([]any, 0, len(a.RawAffiliationStrings))
		for _, s := range a.RawAffiliationStrings {
			affs = append(affs, s)
		}
		if len(affs) == 0 {
			for _, inst := range a.Institutions {
				name := inst.DisplayName
				if inst.CountryCode != "" {
					name += " (" + inst.CountryCode + ")"
				}
				affs = append(affs, name)
			}
		}
		authors = append(authors, map[string]any{
			"name":        a.Author.DisplayName,
			"affiliation": affs,
		})
	}

	grants := make([]any, 0, len(w.Grants))
	for _, g := range w.Grants {
		s := g.FunderDisplayName
		if g.AwardID != "" {
			s += " (" + g.AwardID + ")"
		}
		grants = append(grants, s)
	}

	keywords := make([]any, 0, len(w.Keywords))
	for _, kw := range w.Keywords {
		keywords = append(keywords, kw.DisplayName)
	}

	date := w.PublicationDate
	if date == "" && w.PublicationYear > 0 {
		date = strconv.Itoa(w.PublicationYear)
	}

	doi := strings.TrimPrefix(w.DOI, "https://doi.org/")
	link := w.ID
	if w.DOI != "" {
		link = w.DOI
	}

	raw := types.RawRecord{
		"title":            title,
		"authors":          authors,
		"publication_date": date,
		"abstract":         reconstructAbstract(w.AbstractInvertedIndex),
		"doi":              doi,
		"pmid":             lastPathSegment(w.IDs.PMID),
		"grants":           grants,
		"keywords":         keywords,
		"url":              link,
	}
	if w.PrimaryLocation.Source.DisplayName != "" {
		raw["journal"] = map[string]any{"name": w.PrimaryLocation.Source.DisplayName}
	}
	return raw
}

func lastPathSegment(s string) string {
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to a list of positions
// where that word appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Meta    openAlexMeta   `json:"meta"`
	Results []openAlexWork `json:"results"`
}

type openAlexMeta struct {
	Count   int `json:"count"`
	PerPage int `json:"per_page"`
	Page    int `json:"page"`
}

type openAlexWork struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title"`
	DisplayName           string               `json:"display_name"`
	DOI                   string               `json:"doi"`
	PublicationDate       string               `json:"publication_date"`
	PublicationYear       int                  `json:"publication_year"`
	IDs                   openAlexIDs          `json:"ids"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	PrimaryLocation       openAlexLocation     `json:"primary_location"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	Grants                []openAlexGrant      `json:"grants"`
	Keywords              []openAlexKeyword    `json:"keywords"`
}

type openAlexIDs struct {
	PMID string `json:"pmid"`
}

type openAlexAuthorship struct {
	Author                openAlexAuthor        `json:"author"`
	Institutions          []openAlexInstitution `json:"institutions"`
	RawAffiliationStrings []string              `json:"raw_affiliation_strings"`
}

type openAlexAuthor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type openAlexInstitution struct {
	DisplayName string `json:"display_name"`
	CountryCode string `json:"country_code"`
}

type openAlexLocation struct {
	Source openAlexSource `json:"source"`
}

type openAlexSource struct {
	DisplayName string `json:"display_name"`
}

type openAlexGrant struct {
	FunderDisplayName string `json:"funder_display_name"`
	AwardID           string `json:"award_id"`
}

type openAlexKeyword struct {
	DisplayName string `json:"display_name"`
}
