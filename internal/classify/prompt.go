// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"text/template"

	"github.com/pdiddy/disclosure-engine/pkg/types"
)

// systemInstruction establishes the model's role for every request.
const systemInstruction = "You are an expert in analyzing scientific publications for foreign affiliations and collaborations."

// analysisPrompt is the user prompt sent for each publication. It asks for
// exactly one JSON object in the AffiliationAnalysis shape.
const analysisPrompt = `Analyze the following publication metadata for foreign affiliations and collaborations{{if .Focus}}, particularly focusing on {{.Focus}}{{end}}.

Title: {{.Title}}
Authors and Affiliations: {{or .Affiliations "Not available"}}
Abstract: {{or .Abstract "Not available"}}
Funding Information: {{or .Funding "Not available"}}

Identify:
- countries: every foreign country mentioned or implied by the affiliations, institutions, or funding
- institutions: the foreign institutions involved
- funding_sources: any foreign funding sources
- confidence_score: an integer from 1 to 10 rating your confidence in foreign involvement
- explanation: a short justification for the confidence score

Respond with exactly one JSON object with the keys "countries", "institutions", "funding_sources" (arrays of strings), "confidence_score" (integer) and "explanation" (string). Do not include any text outside the JSON object.

Example response:
{"countries": ["Russia"], "institutions": ["National Medical Research Center"], "funding_sources": ["Russian Science Foundation"], "confidence_score": 8, "explanation": "One co-author is affiliated with a Moscow institute and the work acknowledges a Russian grant."}
`

var analysisPromptTmpl = template.Must(template.New("analysis").Parse(analysisPrompt))

type promptData struct {
	Title        string
	Affiliations string
	Abstract     string
	Funding      string
	Focus        string
}

// renderPrompt executes the analysis prompt template for pub.
func renderPrompt(pub types.Publication, focus []string) (string, error) {
	data := promptData{
		Title:        pub.Title,
		Affiliations: pub.AffiliationsText,
		Abstract:     pub.Abstract,
		Funding:      pub.FundingText,
		Focus:        joinFocus(focus),
	}
	var buf bytes.Buffer
	if err := analysisPromptTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// PromptFingerprint returns a short hash of everything in the prompt that is
// not publication text: the system instruction, the template and the focus
// countries. Analyses made under different fingerprints are not comparable.
func PromptFingerprint(focus []string) string {
	h := sha256.New()
	for _, part := range []string{systemInstruction, analysisPrompt, joinFocus(focus)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// joinFocus renders "A, B, and C".
func joinFocus(focus []string) string {
	var names []string
	for _, f := range focus {
		if f = strings.TrimSpace(f); f != "" {
			names = append(names, f)
		}
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	}
	return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
}
