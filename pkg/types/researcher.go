// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the disclosure pipeline:
// roster entries, raw and canonical publications, classifier analyses,
// report rows, skip records, and configuration.
package types

import "strings"

// Researcher is one roster entry. Researchers are read once at startup and
// never modified during a run.
type Researcher struct {
	LastName  string `json:"last_name" yaml:"last_name"`
	FirstName string `json:"first_name" yaml:"first_name"`
}

// FullName returns "First Last", the form used in the report's author_name column.
func (r Researcher) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// String implements fmt.Stringer for log fields.
func (r Researcher) String() string { return r.FullName() }
