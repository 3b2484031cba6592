// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"sort"
	"strings"
	"unicode"

	mapset "github.com/deckarep/golang-set/v2"
)

// RawRecord is a publication record as returned by a search provider. Keys and
// value types vary by provider: fields may be absent, nested, or typed
// inconsistently (string vs list vs object).
type RawRecord map[string]any

// Author is one author of a canonical publication. Affiliation holds all of the
// author's affiliations joined with "; ".
type Author struct {
	Name        string `json:"name" yaml:"name"`
	Affiliation string `json:"affiliation" yaml:"affiliation"`
}

// Publication is the provider-agnostic publication consumed by the classifier
// and flagging stages. No field is ever nil: absent values are empty strings,
// empty slices, or an empty keyword set.
type Publication struct {
	Title           string             `json:"title" yaml:"title"`
	Authors         []Author           `json:"authors" yaml:"authors"`
	JournalName     string             `json:"journal_name" yaml:"journal_name"`
	PublicationDate string             `json:"publication_date" yaml:"publication_date"`
	Abstract        string             `json:"abstract" yaml:"abstract"`
	DOI             string             `json:"doi" yaml:"doi"`
	PMID            string             `json:"pmid" yaml:"pmid"`
	URL             string             `json:"url" yaml:"url"`
	Keywords        mapset.Set[string] `json:"keywords" yaml:"-"`

	// AffiliationsText is every affiliation fragment, "; "-joined, empties removed.
	AffiliationsText string `json:"affiliations_text" yaml:"affiliations_text"`

	// FundingText is every funding fragment, "; "-joined, empties removed.
	FundingText string `json:"funding_text" yaml:"funding_text"`
}

// Identifier returns the most specific identifier available: DOI, then PMID.
// It returns "" when the publication has neither.
func (p Publication) Identifier() string {
	switch {
	case p.DOI != "":
		return p.DOI
	case p.PMID != "":
		return "PMID:" + p.PMID
	}
	return ""
}

// Key returns a stable identity for the publication, used as the analysis
// cache key. DOI wins over PMID, which wins over the normalized title.
func (p Publication) Key() string {
	switch {
	case p.DOI != "":
		return "doi:" + strings.ToLower(p.DOI)
	case p.PMID != "":
		return "pmid:" + p.PMID
	}
	return "title:" + normalizeTitle(p.Title)
}

// SortedKeywords returns the keyword set as a sorted slice.
func (p Publication) SortedKeywords() []string {
	if p.Keywords == nil {
		return []string{}
	}
	kws := p.Keywords.ToSlice()
	sort.Strings(kws)
	return kws
}

// Raw re-emits the publication as a RawRecord. The flattened affiliation and
// funding text are carried under "affiliations" and "funding", and authors
// carry names only, so normalizing the result reproduces the flattened text.
func (p Publication) Raw() RawRecord {
	authors := make([]any, 0, len(p.Authors))
	for _, a := range p.Authors {
		authors = append(authors, map[string]any{"name": a.Name})
	}
	keywords := make([]any, 0)
	for _, kw := range p.SortedKeywords() {
		keywords = append(keywords, kw)
	}
	return RawRecord{
		"title":            p.Title,
		"authors":          authors,
		"journal":          p.JournalName,
		"publication_date": p.PublicationDate,
		"abstract":         p.Abstract,
		"doi":              p.DOI,
		"pmid":             p.PMID,
		"affiliations":     p.AffiliationsText,
		"funding":          p.FundingText,
		"keywords":         keywords,
		"url":              p.URL,
	}
}

// normalizeTitle returns a lowercased, punctuation-stripped version of the title.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
