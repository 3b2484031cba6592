// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/disclosure-engine/pkg/types"
)

// FormatTable writes records as a human-readable table to w.
func FormatTable(records []types.OutputRecord, w io.Writer) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No records.")
		return
	}

	fmt.Fprintf(w, "%-20s  %-50s  %-7s  %-4s  %s\n",
		"Author", "Title", "Flagged", "Conf", "Countries")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	flagged := 0
	for _, r := range records {
		mark := No
		if r.Flagged {
			mark = Yes
			flagged++
		}
		fmt.Fprintf(w, "%-20s  %-50s  %-7s  %-4d  %s\n",
			truncate(r.AuthorName, 20), truncate(r.ResearchTitle, 50), mark, r.ConfidenceScore, r.CountriesOfOrigin)
	}

	fmt.Fprintf(w, "\n%d records, %d flagged\n", len(records), flagged)
}

// FormatSkipped writes the skip list as a table to w.
func FormatSkipped(skips []types.Skip, w io.Writer) {
	if len(skips) == 0 {
		fmt.Fprintln(w, "Nothing skipped.")
		return
	}

	fmt.Fprintf(w, "%-8s  %-20s  %-40s  %s\n", "Stage", "Researcher", "Title", "Reason")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, s := range skips {
		fmt.Fprintf(w, "%-8s  %-20s  %-40s  %s\n",
			s.Stage, truncate(s.Researcher, 20), truncate(s.Title, 40), s.Reason)
	}
	fmt.Fprintf(w, "\n%d skipped\n", len(skips))
}

// FormatPublications writes normalized search results as a table to w.
func FormatPublications(pubs []types.Publication, w io.Writer) {
	if len(pubs) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-60s  %-24s  %-12s  %s\n", "Rank", "Title", "Journal", "Date", "Identifier")
	fmt.Fprintln(w, strings.Repeat("-", 120))
	for i, p := range pubs {
		fmt.Fprintf(w, "%-4d  %-60s  %-24s  %-12s  %s\n",
			i+1, truncate(p.Title, 60), truncate(p.JournalName, 24), truncate(p.PublicationDate, 12), p.Identifier())
	}
	fmt.Fprintf(w, "\n%d results\n", len(pubs))
}

// FormatJSON writes v as indented JSON to w.
func FormatJSON(v any, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncate shortens s to at most max runes, ending in "..." when cut.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
