// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "strings"

// OutputRecord is one row of the disclosure report: one per (researcher,
// publication) pair that received an analysis.
type OutputRecord struct {
	PublicationName         string `json:"publication_name" yaml:"publication_name"`
	ResearchTitle           string `json:"research_title" yaml:"research_title"`
	AuthorName              string `json:"author_name" yaml:"author_name"`
	OrganizationAffiliation string `json:"organization_affiliation" yaml:"organization_affiliation"`
	CountriesOfOrigin       string `json:"countries_of_origin" yaml:"countries_of_origin"`
	Flagged                 bool   `json:"flagged" yaml:"flagged"`
	FlaggedCountries        string `json:"flagged_countries" yaml:"flagged_countries"`
	ConfidenceScore         int    `json:"confidence_score" yaml:"confidence_score"`
	FundingSource           string `json:"funding_source" yaml:"funding_source"`
}

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Normalized returns r with CRLF and lone CR line endings in its text fields
// replaced by LF. CSV readers fold CRLF into LF, so a normalized record reads
// back from the report exactly as written.
func (r OutputRecord) Normalized() OutputRecord {
	for _, f := range []*string{
		&r.PublicationName,
		&r.ResearchTitle,
		&r.AuthorName,
		&r.OrganizationAffiliation,
		&r.CountriesOfOrigin,
		&r.FlaggedCountries,
		&r.FundingSource,
	} {
		*f = lineEndings.Replace(*f)
	}
	return r
}

// ReportColumns is the fixed column order of the report.
var ReportColumns = []string{
	"publication_name",
	"research_title",
	"author_name",
	"organization_affiliation",
	"countries_of_origin",
	"flagged",
	"flagged_countries",
	"confidence_score",
	"funding_source",
}

// SkipStage names the pipeline stage at which a unit of work was abandoned.
type SkipStage string

const (
	StageSearch   SkipStage = "search"
	StageClassify SkipStage = "classify"
)

// Skip records a unit of work that produced no report row. The skip list is
// written next to the report so coverage gaps are visible.
type Skip struct {
	Stage      SkipStage `json:"stage" yaml:"stage"`
	Researcher string    `json:"researcher" yaml:"researcher"`
	Title      string    `json:"title,omitempty" yaml:"title,omitempty"`
	Identifier string    `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Reason     string    `json:"reason" yaml:"reason"`
}
