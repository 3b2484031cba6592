// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize converts heterogeneous search-provider records into the
// canonical publication shape. Normalization never fails: missing or
// malformed fields degrade to empty values.
package normalize

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/pdiddy/disclosure-engine/pkg/types"
)

// Separator joins flattened affiliation and funding fragments.
const Separator = "; "

// fundingFields lists the raw keys scanned for funding information, in order.
var fundingFields = []string{"funding", "funding_info", "grant_info", "grants", "acknowledgments"}

// Normalize converts one raw provider record into a canonical publication.
func Normalize(raw types.RawRecord) types.Publication {
	return types.Publication{
		Title:            text(raw["title"]),
		Authors:          authors(raw["authors"]),
		JournalName:      journalName(raw["journal"]),
		PublicationDate:  text(raw["publication_date"]),
		Abstract:         text(raw["abstract"]),
		DOI:              text(raw["doi"]),
		PMID:             text(raw["pmid"]),
		URL:              text(raw["url"]),
		Keywords:         keywords(raw["keywords"]),
		AffiliationsText: affiliationsText(raw),
		FundingText:      fundingText(raw),
	}
}

// All normalizes a batch of raw records, preserving order.
func All(raws []types.RawRecord) []types.Publication {
	pubs := make([]types.Publication, 0, len(raws))
	for _, raw := range raws {
		pubs = append(pubs, Normalize(raw))
	}
	return pubs
}

// journalName accepts a mapping with a "name" entry or a plain string.
func journalName(v any) string {
	switch j := v.(type) {
	case map[string]any:
		return text(j["name"])
	case types.RawRecord:
		return text(j["name"])
	case string:
		return j
	}
	return ""
}

// authors accepts a list whose items are mappings (name, affiliation) or bare names.
func authors(v any) []types.Author {
	items, ok := v.([]any)
	if !ok {
		return []types.Author{}
	}
	out := make([]types.Author, 0, len(items))
	for _, item := range items {
		if a := asMap(item); a != nil {
			out = append(out, types.Author{
				Name:        text(a["name"]),
				Affiliation: join(fragments(a["affiliation"])),
			})
			continue
		}
		if name := text(item); name != "" {
			out = append(out, types.Author{Name: name})
		}
	}
	return out
}

// affiliationsText collects the record-level "affiliations" field followed by
// every author's "affiliation", in encounter order.
func affiliationsText(raw types.RawRecord) string {
	var frags []string
	if v, ok := raw["affiliations"]; ok {
		switch a := v.(type) {
		case []any, string:
			frags = append(frags, fragments(a)...)
		}
	}
	if items, ok := raw["authors"].([]any); ok {
		for _, item := range items {
			if a := asMap(item); a != nil {
				if v, ok := a["affiliation"]; ok {
					frags = append(frags, fragments(v)...)
				}
			}
		}
	}
	return join(frags)
}

// fundingText scans fundingFields in order. Mappings contribute "key: value"
// fragments with keys sorted, lists contribute each element, strings
// contribute themselves.
func fundingText(raw types.RawRecord) string {
	var frags []string
	for _, field := range fundingFields {
		v, ok := raw[field]
		if !ok {
			continue
		}
		if m := asMap(v); m != nil {
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				frags = append(frags, k+": "+text(m[k]))
			}
			continue
		}
		frags = append(frags, fragments(v)...)
	}
	return join(frags)
}

// keywords accepts a list of strings or a single string.
func keywords(v any) mapset.Set[string] {
	set := mapset.NewSet[string]()
	for _, kw := range fragments(v) {
		if kw = strings.TrimSpace(kw); kw != "" {
			set.Add(kw)
		}
	}
	return set
}

// fragments flattens a string or a list into string fragments. Nested lists
// are flattened; other values are rendered with text.
func fragments(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		var out []string
		for _, item := range x {
			out = append(out, fragments(item)...)
		}
		return out
	case []string:
		return append([]string(nil), x...)
	}
	return []string{text(v)}
}

// join drops empty fragments and joins the rest with Separator.
func join(frags []string) string {
	var kept []string
	for _, f := range frags {
		if strings.TrimSpace(f) != "" {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, Separator)
}

// text renders a scalar as a string. Mappings, lists and nil render empty.
func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	}
	return ""
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case types.RawRecord:
		return m
	}
	return nil
}
