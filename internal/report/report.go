// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report writes and reads the disclosure report (CSV) and the skip
// list (YAML). Files are written atomically: a temporary file in the target
// directory is renamed into place only after a complete write.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/disclosure-engine/pkg/types"
)

// Flagged column values.
const (
	Yes = "Yes"
	No  = "No"
)

// WriteCSV writes records to path with the fixed report header. An empty
// slice produces a header-only file.
func WriteCSV(path string, records []types.OutputRecord) error {
	return writeAtomic(path, func(w io.Writer) error {
		return EncodeCSV(w, records)
	})
}

// EncodeCSV writes the header and one row per record to w. Line endings
// inside cells are written as LF; see types.OutputRecord.Normalized.
func EncodeCSV(w io.Writer, records []types.OutputRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(types.ReportColumns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, r := range records {
		if err := cw.Write(row(r.Normalized())); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(r types.OutputRecord) []string {
	flagged := No
	if r.Flagged {
		flagged = Yes
	}
	return []string{
		r.PublicationName,
		r.ResearchTitle,
		r.AuthorName,
		r.OrganizationAffiliation,
		r.CountriesOfOrigin,
		flagged,
		r.FlaggedCountries,
		strconv.Itoa(r.ConfidenceScore),
		r.FundingSource,
	}
}

// ReadCSV parses a report written by WriteCSV.
func ReadCSV(path string) ([]types.OutputRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening report: %w", err)
	}
	defer f.Close()

	records, err := DecodeCSV(f)
	if err != nil {
		return nil, fmt.Errorf("reading report %s: %w", path, err)
	}
	return records, nil
}

// DecodeCSV parses a report from r. The header must match the report columns
// exactly.
func DecodeCSV(r io.Reader) ([]types.OutputRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(types.ReportColumns)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("missing header")
	}
	if err != nil {
		return nil, err
	}
	if !slices.Equal(header, types.ReportColumns) {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	records := []types.OutputRecord{}
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rec, err := parseRow(fields)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(f []string) (types.OutputRecord, error) {
	var flagged bool
	switch f[5] {
	case Yes:
		flagged = true
	case No:
	default:
		return types.OutputRecord{}, fmt.Errorf("flagged must be %s or %s, got %q", Yes, No, f[5])
	}
	score, err := strconv.Atoi(f[7])
	if err != nil {
		return types.OutputRecord{}, fmt.Errorf("confidence_score: %w", err)
	}
	return types.OutputRecord{
		PublicationName:         f[0],
		ResearchTitle:           f[1],
		AuthorName:              f[2],
		OrganizationAffiliation: f[3],
		CountriesOfOrigin:       f[4],
		Flagged:                 flagged,
		FlaggedCountries:        f[6],
		ConfidenceScore:         score,
		FundingSource:           f[8],
	}, nil
}

// skipFile is the YAML document written by WriteSkipped.
type skipFile struct {
	Count   int          `yaml:"count"`
	Skipped []types.Skip `yaml:"skipped"`
}

// WriteSkipped writes the skip list to path as YAML.
func WriteSkipped(path string, skips []types.Skip) error {
	if skips == nil {
		skips = []types.Skip{}
	}
	data, err := yaml.Marshal(skipFile{Count: len(skips), Skipped: skips})
	if err != nil {
		return fmt.Errorf("marshaling skip list: %w", err)
	}
	return writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// ReadSkipped reads a skip list written by WriteSkipped.
func ReadSkipped(path string) ([]types.Skip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading skip list: %w", err)
	}
	var doc skipFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing skip list %s: %w", path, err)
	}
	if doc.Skipped == nil {
		doc.Skipped = []types.Skip{}
	}
	return doc.Skipped, nil
}

// writeAtomic streams content into a temporary file next to path, then
// renames it over path. On failure the temporary file is removed and any
// existing file at path is left untouched.
func writeAtomic(path string, write func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := write(tmp); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
