// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger persists pipeline runs and caches classifier analyses in a
// local SQLite database. Each run's report rows and skip list are stored
// under a UUID so earlier runs can be listed and their skipped items
// enumerated. Cached analyses are real classifier outputs keyed by
// publication identity and model; they are never synthesized.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/disclosure-engine/pkg/types"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// DB is the ledger database.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger at path and creates the schema if it
// does not exist.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	l := &DB{db: db, now: time.Now}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return l, nil
}

// Close releases the database connection.
func (l *DB) Close() error {
	return l.db.Close()
}

func (l *DB) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			provider TEXT,
			model TEXT,
			researchers INTEGER,
			rows INTEGER,
			flagged INTEGER,
			skipped INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			publication_name TEXT,
			research_title TEXT,
			author_name TEXT,
			organization_affiliation TEXT,
			countries_of_origin TEXT,
			flagged INTEGER NOT NULL,
			flagged_countries TEXT,
			confidence_score INTEGER,
			funding_source TEXT,
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS skips (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			stage TEXT NOT NULL,
			researcher TEXT,
			title TEXT,
			identifier TEXT,
			reason TEXT,
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS analyses (
			pub_key TEXT NOT NULL,
			model TEXT NOT NULL,
			analysis TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (pub_key, model)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}

	for _, stmt := range statements {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// --- analysis cache ---

// Lookup returns the cached analysis for a publication key and model.
func (l *DB) Lookup(ctx context.Context, key, model string) (types.AffiliationAnalysis, bool, error) {
	var raw string
	err := l.db.QueryRowContext(ctx,
		`SELECT analysis FROM analyses WHERE pub_key = ? AND model = ?`, key, model,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AffiliationAnalysis{}, false, nil
	}
	if err != nil {
		return types.AffiliationAnalysis{}, false, fmt.Errorf("looking up analysis %s: %w", key, err)
	}

	var a types.AffiliationAnalysis
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return types.AffiliationAnalysis{}, false, fmt.Errorf("decoding cached analysis %s: %w", key, err)
	}
	return a, true, nil
}

// Store caches an analysis, replacing any earlier one for the same key and
// model.
func (l *DB) Store(ctx context.Context, key, model string, a types.AffiliationAnalysis) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding analysis %s: %w", key, err)
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO analyses (pub_key, model, analysis, created_at) VALUES (?, ?, ?, ?)`,
		key, model, string(data), l.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storing analysis %s: %w", key, err)
	}
	return nil
}

// --- runs ---

// Run summarizes one pipeline run.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Provider    string
	Model       string
	Researchers int
	Rows        int
	Flagged     int
	Skipped     int
}

// RecordRun stores run with its report rows and skips in one transaction and
// returns the run ID. A new UUID is assigned when run.ID is empty. Row,
// flagged and skipped counts are derived from records and skips.
func (l *DB) RecordRun(ctx context.Context, run Run, records []types.OutputRecord, skips []types.Skip) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.Rows = len(records)
	run.Skipped = len(skips)
	run.Flagged = 0
	for _, r := range records {
		if r.Flagged {
			run.Flagged++
		}
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, provider, model, researchers, rows, flagged, skipped)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt), run.Provider, run.Model,
		run.Researchers, run.Rows, run.Flagged, run.Skipped,
	); err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	recStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (run_id, position, publication_name, research_title, author_name,
			organization_affiliation, countries_of_origin, flagged, flagged_countries, confidence_score, funding_source)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("preparing record insert: %w", err)
	}
	defer recStmt.Close()

	for i, r := range records {
		if _, err := recStmt.ExecContext(ctx, run.ID, i,
			r.PublicationName, r.ResearchTitle, r.AuthorName, r.OrganizationAffiliation,
			r.CountriesOfOrigin, r.Flagged, r.FlaggedCountries, r.ConfidenceScore, r.FundingSource,
		); err != nil {
			return "", fmt.Errorf("inserting record %d: %w", i, err)
		}
	}

	skipStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO skips (run_id, position, stage, researcher, title, identifier, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("preparing skip insert: %w", err)
	}
	defer skipStmt.Close()

	for i, s := range skips {
		if _, err := skipStmt.ExecContext(ctx, run.ID, i,
			string(s.Stage), s.Researcher, s.Title, s.Identifier, s.Reason,
		); err != nil {
			return "", fmt.Errorf("inserting skip %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing run: %w", err)
	}
	return run.ID, nil
}

// Runs lists recorded runs, newest first. A limit of 0 or less lists all.
func (l *DB) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, started_at, finished_at, provider, model, researchers, rows, flagged, skipped
		FROM runs ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Provider, &r.Model,
			&r.Researchers, &r.Rows, &r.Flagged, &r.Skipped); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// resolveRun returns runID, or the newest run's ID when runID is empty.
func (l *DB) resolveRun(ctx context.Context, runID string) (string, error) {
	query, args := `SELECT id FROM runs WHERE id = ?`, []any{runID}
	if runID == "" {
		query, args = `SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`, nil
	}
	var id string
	err := l.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		if runID == "" {
			return "", fmt.Errorf("no runs recorded: %w", ErrRunNotFound)
		}
		return "", fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("resolving run: %w", err)
	}
	return id, nil
}

// Records returns the report rows of a run in report order. An empty runID
// selects the newest run.
func (l *DB) Records(ctx context.Context, runID string) ([]types.OutputRecord, error) {
	id, err := l.resolveRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT publication_name, research_title, author_name, organization_affiliation,
			countries_of_origin, flagged, flagged_countries, confidence_score, funding_source
		 FROM records WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	records := []types.OutputRecord{}
	for rows.Next() {
		var r types.OutputRecord
		if err := rows.Scan(&r.PublicationName, &r.ResearchTitle, &r.AuthorName, &r.OrganizationAffiliation,
			&r.CountriesOfOrigin, &r.Flagged, &r.FlaggedCountries, &r.ConfidenceScore, &r.FundingSource); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Skipped enumerates the units of work a run skipped, in encounter order. An
// empty runID selects the newest run.
func (l *DB) Skipped(ctx context.Context, runID string) ([]types.Skip, error) {
	id, err := l.resolveRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT stage, researcher, title, identifier, reason
		 FROM skips WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("querying skips: %w", err)
	}
	defer rows.Close()

	skips := []types.Skip{}
	for rows.Next() {
		var (
			s     types.Skip
			stage string
		)
		if err := rows.Scan(&stage, &s.Researcher, &s.Title, &s.Identifier, &s.Reason); err != nil {
			return nil, fmt.Errorf("scanning skip: %w", err)
		}
		s.Stage = types.SkipStage(stage)
		skips = append(skips, s)
	}
	return skips, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
