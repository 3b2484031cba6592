// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StringList is an ordered list of strings that also accepts a bare JSON
// string, which decodes to a single-element list. JSON null decodes to an
// empty list.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = StringList{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("expected a string or a list of strings: %w", err)
	}
	if items == nil {
		items = []string{}
	}
	*l = items
	return nil
}

// AffiliationAnalysis is the classifier's judgment about one publication.
// ConfidenceScore ranges over 1..10.
type AffiliationAnalysis struct {
	Countries       StringList `json:"countries" yaml:"countries"`
	Institutions    StringList `json:"institutions" yaml:"institutions"`
	FundingSources  StringList `json:"funding_sources" yaml:"funding_sources"`
	ConfidenceScore int        `json:"confidence_score" yaml:"confidence_score"`
	Explanation     string     `json:"explanation" yaml:"explanation"`
}

const (
	MinConfidence = 1
	MaxConfidence = 10
)
