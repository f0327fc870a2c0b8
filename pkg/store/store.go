// Package store keeps a history of benchmark runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/srodi/tabmem/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS trial_results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT    NOT NULL,
	browser     TEXT    NOT NULL,
	tabs        INTEGER NOT NULL,
	baseline_mb REAL    NOT NULL,
	total_mb    REAL    NOT NULL,
	per_tab_mb  REAL    NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS trial_results_run ON trial_results(run_id);
`

// Run summarises one stored run.
type Run struct {
	ID        string
	Trials    int
	CreatedAt time.Time
}

// Store appends trial results to an SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the history database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// One connection keeps pragmas and in-memory databases consistent.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", firstLine(stmt), err)
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

// Append stores every result of a run in one transaction.
func (s *Store) Append(ctx context.Context, runID string, results []types.TrialResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO trial_results
		(run_id, browser, tabs, baseline_mb, total_mb, per_tab_mb, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	created := s.now().UnixMilli()
	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, runID, string(r.Browser), r.Tabs,
			r.BaselineMB, r.TotalMB, r.PerTabMB, created); err != nil {
			return fmt.Errorf("store: insert %s/%d: %w", r.Browser, r.Tabs, err)
		}
	}
	return tx.Commit()
}

// Runs lists stored runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, COUNT(*), MIN(created_at)
		FROM trial_results GROUP BY run_id ORDER BY MIN(created_at) DESC, run_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Trials, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(created).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ResultsFor returns the results of one run in insertion order.
func (s *Store) ResultsFor(ctx context.Context, runID string) ([]types.TrialResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT browser, tabs, baseline_mb, total_mb, per_tab_mb
		FROM trial_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: results for %s: %w", runID, err)
	}
	defer rows.Close()

	var results []types.TrialResult
	for rows.Next() {
		var (
			r       types.TrialResult
			browser string
		)
		if err := rows.Scan(&browser, &r.Tabs, &r.BaselineMB, &r.TotalMB, &r.PerTabMB); err != nil {
			return nil, err
		}
		r.Browser = types.BrowserKind(browser)
		results = append(results, r)
	}
	return results, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func firstLine(stmt string) string {
	for i, c := range stmt {
		if c == '\n' && i > 0 {
			return stmt[:i]
		}
	}
	return stmt
}
