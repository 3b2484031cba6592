// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pdiddy/disclosure-engine/pkg/types"
)

// MalformedAnalysisError reports a model answer that does not have the
// AffiliationAnalysis shape.
type MalformedAnalysisError struct {
	Reason   string
	Response string
}

func (e *MalformedAnalysisError) Error() string {
	return "malformed analysis: " + e.Reason
}

// Required answer keys.
const (
	keyCountries       = "countries"
	keyInstitutions    = "institutions"
	keyFundingSources  = "funding_sources"
	keyConfidenceScore = "confidence_score"
	keyExplanation     = "explanation"
)

// ParseAnalysis strictly parses a model answer. The answer must be one JSON
// object, optionally wrapped in a markdown code fence. countries and
// confidence_score are required; list fields accept a single string; the
// confidence score must be an integer from 1 to 10, given as a number or a
// numeric string.
func ParseAnalysis(text string) (types.AffiliationAnalysis, error) {
	body := stripCodeFence(text)
	malformed := func(format string, args ...any) (types.AffiliationAnalysis, error) {
		return types.AffiliationAnalysis{}, &MalformedAnalysisError{Reason: fmt.Sprintf(format, args...), Response: text}
	}

	if !strings.HasPrefix(body, "{") {
		return malformed("answer is not a JSON object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return malformed("decoding JSON: %v", err)
	}

	var a types.AffiliationAnalysis

	raw, ok := fields[keyCountries]
	if !ok {
		return malformed("missing %q", keyCountries)
	}
	if err := json.Unmarshal(raw, &a.Countries); err != nil {
		return malformed("%s: %v", keyCountries, err)
	}

	for key, dst := range map[string]*types.StringList{
		keyInstitutions:   &a.Institutions,
		keyFundingSources: &a.FundingSources,
	} {
		raw, ok := fields[key]
		if !ok {
			*dst = types.StringList{}
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return malformed("%s: %v", key, err)
		}
	}

	raw, ok = fields[keyConfidenceScore]
	if !ok {
		return malformed("missing %q", keyConfidenceScore)
	}
	score, err := parseConfidence(raw)
	if err != nil {
		return malformed("%s: %v", keyConfidenceScore, err)
	}
	a.ConfidenceScore = score

	if raw, ok := fields[keyExplanation]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &a.Explanation); err != nil {
			return malformed("%s: expected a string", keyExplanation)
		}
	}

	return a, nil
}

// parseConfidence accepts an integral JSON number or a numeric string in
// [MinConfidence, MaxConfidence].
func parseConfidence(raw json.RawMessage) (int, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("expected an integer, got %s", raw)
		}
		if n, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, fmt.Errorf("expected an integer, got %q", s)
		}
	}
	if n != math.Trunc(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("expected an integer, got %v", n)
	}
	if n < types.MinConfidence || n > types.MaxConfidence {
		return 0, fmt.Errorf("%v outside [%d, %d]", n, types.MinConfidence, types.MaxConfidence)
	}
	return int(n), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
