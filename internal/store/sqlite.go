package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stockmind/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	symbol      TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	ended_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_workflow_ended ON runs (workflow_id, ended_at DESC);
CREATE INDEX IF NOT EXISTS runs_ended ON runs (ended_at);
`

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// runs table if needed, and returns a ready-to-use SQLiteStore. ":memory:"
// gives a private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serialises writers anyway, and ":memory:" is
	// per-connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating runs table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts or replaces a run.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec domain.RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run_id, workflow_id, symbol, status, error, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.WorkflowID, rec.Symbol, string(rec.Status), rec.Error,
		rec.StartedAt.UnixMilli(), rec.EndedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", rec.RunID, err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (domain.RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, workflow_id, symbol, status, error, started_at, ended_at
		 FROM runs WHERE run_id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RunRecord{}, fmt.Errorf("%s: %w", runID, ErrNotFound)
	}
	return rec, err
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, workflowID string, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	var (
		rows *sql.Rows
		err  error
	)
	if workflowID == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT run_id, workflow_id, symbol, status, error, started_at, ended_at
			 FROM runs ORDER BY ended_at DESC, run_id LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT run_id, workflow_id, symbol, status, error, started_at, ended_at
			 FROM runs WHERE workflow_id = ? ORDER BY ended_at DESC, run_id LIMIT ?`, workflowID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return collectRuns(rows)
}

// RunsBetween returns runs that ended within [start, end), oldest first.
func (s *SQLiteStore) RunsBetween(ctx context.Context, start, end time.Time) ([]domain.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, workflow_id, symbol, status, error, started_at, ended_at
		 FROM runs WHERE ended_at >= ? AND ended_at < ? ORDER BY ended_at, run_id`,
		start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("listing runs between %s and %s: %w", start, end, err)
	}
	return collectRuns(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(r rowScanner) (domain.RunRecord, error) {
	var (
		rec            domain.RunRecord
		status         string
		started, ended int64
	)
	if err := r.Scan(&rec.RunID, &rec.WorkflowID, &rec.Symbol, &status, &rec.Error, &started, &ended); err != nil {
		return domain.RunRecord{}, err
	}
	rec.Status = domain.Status(status)
	rec.StartedAt = time.UnixMilli(started).UTC()
	rec.EndedAt = time.UnixMilli(ended).UTC()
	return rec, nil
}

func collectRuns(rows *sql.Rows) ([]domain.RunRecord, error) {
	defer rows.Close()
	out := []domain.RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
