// Package tracking persists a manifest of fetch runs in a local sqlite
// database: one row per run and one row per dataset outcome (downloaded,
// failed or skipped). The manifest is advisory; writes to it never fail a
// run.
package tracking

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Outcomes recorded for a dataset within a run.
const (
	OutcomeDownloaded = "downloaded"
	OutcomeFailed     = "failed"
	OutcomeSkipped    = "skipped"
)

// Tracker records run history. A nil Tracker is valid and records nothing,
// so callers don't have to guard every call site.
type Tracker struct {
	db *sql.DB
}

// Open opens (creating if necessary) the manifest database at path.
func Open(path string) (*Tracker, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	runs := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		query TEXT,
		format TEXT,
		failures INTEGER,
		started_at DATETIME,
		finished_at DATETIME
	);
	`
	downloads := `
	CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		dataset_id TEXT,
		name TEXT,
		outcome TEXT,
		dest TEXT,
		detail TEXT,
		created_at DATETIME
	);
	`
	if _, err := db.Exec(runs); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(downloads); err != nil {
		db.Close()
		return nil, err
	}

	return &Tracker{db: db}, nil
}

// StartRun inserts a new run row and returns its id.
func (t *Tracker) StartRun(query, format string) (string, error) {
	if t == nil {
		return "", nil
	}
	id := uuid.NewString()
	_, err := t.db.Exec(`INSERT INTO runs (id, query, format, failures, started_at) VALUES (?, ?, ?, 0, ?)`,
		id, query, format, time.Now().UTC())
	return id, err
}

// FinishRun stamps the run's end time and failure count.
func (t *Tracker) FinishRun(runID string, failures int) error {
	if t == nil {
		return nil
	}
	_, err := t.db.Exec(`UPDATE runs SET finished_at = ?, failures = ? WHERE id = ?`,
		time.Now().UTC(), failures, runID)
	return err
}

// RecordDownload records a successfully materialized dataset.
func (t *Tracker) RecordDownload(runID, datasetID, name, dest string) error {
	return t.record(runID, datasetID, name, OutcomeDownloaded, dest, "")
}

// RecordFailure records a dataset whose export ended in error.
func (t *Tracker) RecordFailure(runID, datasetID, name, detail string) error {
	return t.record(runID, datasetID, name, OutcomeFailed, "", detail)
}

// RecordSkip records a dataset that had no export to download.
func (t *Tracker) RecordSkip(runID, datasetID, name string) error {
	return t.record(runID, datasetID, name, OutcomeSkipped, "", "")
}

func (t *Tracker) record(runID, datasetID, name, outcome, dest, detail string) error {
	if t == nil {
		return nil
	}
	_, err := t.db.Exec(
		`INSERT INTO downloads (run_id, dataset_id, name, outcome, dest, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, datasetID, name, outcome, dest, detail, time.Now().UTC())
	return err
}

// Outcome is one dataset's result within a run.
type Outcome struct {
	DatasetID string
	Name      string
	Outcome   string
	Dest      string
	Detail    string
}

// RunOutcomes returns every recorded outcome for a run, oldest first.
func (t *Tracker) RunOutcomes(runID string) ([]Outcome, error) {
	if t == nil {
		return nil, nil
	}
	rows, err := t.db.Query(
		`SELECT dataset_id, name, outcome, dest, detail FROM downloads WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.DatasetID, &o.Name, &o.Outcome, &o.Dest, &o.Detail); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// Close closes the underlying database.
func (t *Tracker) Close() error {
	if t == nil {
		return nil
	}
	return t.db.Close()
}
