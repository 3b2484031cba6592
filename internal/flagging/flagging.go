// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package flagging applies the country watchlist to classifier output and builds
// report rows.
package flagging

import (
	"strings"

	"github.com/pdiddy/disclosure-engine/pkg/types"
)

// DefaultWatchlist is used when no watchlist is configured.
var DefaultWatchlist = []string{"Russia", "China", "Iran", "North Korea"}

// listSeparator joins multi-valued report cells.
const listSeparator = ", "

// Watchlist is a read-only set of country names of concern. Matching is
// case-insensitive substring containment, so "Iran" matches
// "Islamic Republic of Iran".
type Watchlist struct {
	entries []string // lowercased, non-empty
}

// NewWatchlist builds a watchlist from entries. Entries are trimmed and blank
// entries dropped: an empty entry would be a substring of every country.
func NewWatchlist(entries []string) Watchlist {
	w := Watchlist{}
	for _, e := range entries {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			w.entries = append(w.entries, e)
		}
	}
	return w
}

// Len returns the number of watchlist entries.
func (w Watchlist) Len() int { return len(w.entries) }

// Matches reports whether country contains any watchlist entry.
func (w Watchlist) Matches(country string) bool {
	c := strings.ToLower(country)
	for _, e := range w.entries {
		if strings.Contains(c, e) {
			return true
		}
	}
	return false
}

// Engine flags analyses against a watchlist and stamps every row with the
// analysing organization.
type Engine struct {
	Watchlist    Watchlist
	Organization string
}

// Flag builds the report row for one (researcher, publication, analysis)
// triple. It returns false, and no row, only when analysis is nil.
// The result depends only on the inputs. Text fields use LF line endings.
func (e Engine) Flag(r types.Researcher, pub types.Publication, analysis *types.AffiliationAnalysis) (types.OutputRecord, bool) {
	if analysis == nil {
		return types.OutputRecord{}, false
	}

	countries := []string(analysis.Countries)
	var flagged []string
	for _, c := range countries {
		if e.Watchlist.Matches(c) {
			flagged = append(flagged, c)
		}
	}

	return types.OutputRecord{
		PublicationName:         pub.JournalName,
		ResearchTitle:           pub.Title,
		AuthorName:              r.FullName(),
		OrganizationAffiliation: e.Organization,
		CountriesOfOrigin:       strings.Join(countries, listSeparator),
		Flagged:                 len(flagged) > 0,
		FlaggedCountries:        strings.Join(flagged, listSeparator),
		ConfidenceScore:         analysis.ConfidenceScore,
		FundingSource:           strings.Join(analysis.FundingSources, listSeparator),
	}.Normalized(), true
}
