// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package roster loads the list of researchers to analyze.
//
// A CSV roster has a header row followed by one researcher per row, last name
// in the first column and first name in the second. A YAML roster
// (.yaml/.yml) is a list of {last_name, first_name} mappings, optionally
// under a top-level "researchers" key.
package roster

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/disclosure-engine/pkg/types"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// LoadError reports a roster that could not be read or parsed. It is fatal
// for a run.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading roster %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Load reads the roster at path. An empty file yields an empty roster.
func Load(path string) ([]types.Researcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	var researchers []types.Researcher
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		researchers, err = parseYAML(data)
	default:
		researchers, err = ParseCSV(bytes.NewReader(data))
	}
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return researchers, nil
}

// ParseCSV reads a CSV roster. The first row is a header and is discarded.
// Rows with fewer than two columns, or with both names blank, are skipped.
// Cells are trimmed.
func ParseCSV(r io.Reader) ([]types.Researcher, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	researchers := []types.Researcher{}
	header := true
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing CSV: %w", err)
		}
		if header {
			header = false
			continue
		}
		if len(row) < 2 {
			continue
		}
		rec := types.Researcher{
			LastName:  strings.TrimSpace(row[0]),
			FirstName: strings.TrimSpace(row[1]),
		}
		if rec.LastName == "" && rec.FirstName == "" {
			continue
		}
		researchers = append(researchers, rec)
	}
	return researchers, nil
}

func parseYAML(data []byte) ([]types.Researcher, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []types.Researcher{}, nil
	}

	var list []types.Researcher
	if err := yaml.Unmarshal(data, &list); err != nil {
		var doc struct {
			Researchers *[]types.Researcher `yaml:"researchers"`
		}
		if err2 := yaml.Unmarshal(data, &doc); err2 != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
		if doc.Researchers == nil {
			return nil, errors.New(`parsing YAML: expected a list of researchers or a top-level "researchers" key`)
		}
		list = *doc.Researchers
	}

	researchers := make([]types.Researcher, 0, len(list))
	for _, r := range list {
		r.LastName = strings.TrimSpace(r.LastName)
		r.FirstName = strings.TrimSpace(r.FirstName)
		if r.LastName == "" && r.FirstName == "" {
			continue
		}
		researchers = append(researchers, r)
	}
	return researchers, nil
}
