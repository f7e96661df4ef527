// Package statedb persists run summaries and rollback records in a SQLite
// database under the workspace's vigil data directory.
package statedb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a run ID does not exist.
var ErrNotFound = errors.New("statedb: not found")

// DB wraps the SQLite connection.
type DB struct {
	db   *sql.DB
	path string
}

// RunRow is the persisted form of a run summary.
type RunRow struct {
	ID         string `json:"id"`
	Outcome    string `json:"outcome"`
	Iterations int    `json:"iterations"`
	Rollbacks  int    `json:"rollbacks"`
	StartedAt  string `json:"started_at"` // RFC3339
	EndedAt    string `json:"ended_at"`   // RFC3339 or empty
}

// RollbackRow is the persisted form of a rollback record.
type RollbackRow struct {
	RunID        string `json:"run_id"`
	Iteration    int    `json:"iteration"`
	FromRevision string `json:"from_revision"`
	ToCheckpoint string `json:"to_checkpoint"`
	Strategy     string `json:"strategy"`
	BackupRef    string `json:"backup_ref"`
	StashRef     string `json:"stash_ref,omitempty"`
	Verified     bool   `json:"verified"`
}

// Open creates or opens the database at path with WAL mode, a busy timeout,
// and foreign keys enabled, creating the schema if needed.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: ping: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("statedb: %s: %w", p, err)
		}
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id         TEXT PRIMARY KEY,
			outcome    TEXT NOT NULL DEFAULT 'RUNNING',
			iterations INTEGER NOT NULL DEFAULT 0,
			rollbacks  INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			ended_at   TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS rollbacks (
			run_id        TEXT NOT NULL REFERENCES runs(id),
			iteration     INTEGER NOT NULL,
			from_revision TEXT NOT NULL,
			to_checkpoint TEXT NOT NULL,
			strategy      TEXT NOT NULL,
			backup_ref    TEXT NOT NULL,
			stash_ref     TEXT NOT NULL DEFAULT '',
			verified      INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("statedb: create table: %w", err)
		}
	}

	return &DB{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// InsertRun records the start of a run.
func (d *DB) InsertRun(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := d.db.Exec(
		`INSERT INTO runs (id, started_at) VALUES (?, ?)`, id, now,
	)
	if err != nil {
		return fmt.Errorf("statedb: insert run: %w", err)
	}
	return nil
}

// FinishRun finalizes a run with its terminal outcome and counters.
func (d *DB) FinishRun(id, outcome string, iterations, rollbacks int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := d.db.Exec(
		`UPDATE runs SET outcome = ?, iterations = ?, rollbacks = ?, ended_at = ? WHERE id = ?`,
		outcome, iterations, rollbacks, now, id,
	)
	if err != nil {
		return fmt.Errorf("statedb: finish run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("statedb: rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun retrieves a run by ID. Returns ErrNotFound if it does not exist.
func (d *DB) GetRun(id string) (RunRow, error) {
	var r RunRow
	err := d.db.QueryRow(
		`SELECT id, outcome, iterations, rollbacks, started_at, ended_at FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Outcome, &r.Iterations, &r.Rollbacks, &r.StartedAt, &r.EndedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRow{}, ErrNotFound
		}
		return RunRow{}, fmt.Errorf("statedb: get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs ordered by started_at descending.
// If limit is 0, all rows are returned.
func (d *DB) ListRuns(limit int) ([]RunRow, error) {
	query := `SELECT id, outcome, iterations, rollbacks, started_at, ended_at FROM runs ORDER BY started_at DESC`

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = d.db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = d.db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("statedb: list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.ID, &r.Outcome, &r.Iterations, &r.Rollbacks, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, fmt.Errorf("statedb: scan run: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("statedb: rows runs: %w", err)
	}
	return records, nil
}

// InsertRollback records one executed rollback.
func (d *DB) InsertRollback(r RollbackRow) error {
	verified := 0
	if r.Verified {
		verified = 1
	}
	_, err := d.db.Exec(
		`INSERT INTO rollbacks (run_id, iteration, from_revision, to_checkpoint, strategy, backup_ref, stash_ref, verified)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Iteration, r.FromRevision, r.ToCheckpoint, r.Strategy, r.BackupRef, r.StashRef, verified,
	)
	if err != nil {
		return fmt.Errorf("statedb: insert rollback: %w", err)
	}
	return nil
}

// ListRollbacks returns all rollbacks for a run in execution order.
func (d *DB) ListRollbacks(runID string) ([]RollbackRow, error) {
	rows, err := d.db.Query(
		`SELECT run_id, iteration, from_revision, to_checkpoint, strategy, backup_ref, stash_ref, verified
		 FROM rollbacks WHERE run_id = ? ORDER BY iteration`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("statedb: list rollbacks: %w", err)
	}
	defer rows.Close()

	var records []RollbackRow
	for rows.Next() {
		var r RollbackRow
		var verified int
		if err := rows.Scan(&r.RunID, &r.Iteration, &r.FromRevision, &r.ToCheckpoint, &r.Strategy, &r.BackupRef, &r.StashRef, &verified); err != nil {
			return nil, fmt.Errorf("statedb: scan rollback: %w", err)
		}
		r.Verified = verified == 1
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("statedb: rows rollbacks: %w", err)
	}
	return records, nil
}
