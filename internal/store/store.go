// Package store defines storage for workflow run history: a SQLite table
// for queries and daily Parquet files for export.
package store

import (
	"context"
	"errors"
	"time"

	"stockmind/internal/domain"
)

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("run not found")

// RunStore persists and retrieves workflow run records.
type RunStore interface {
	// SaveRun inserts or replaces a run by its ID.
	SaveRun(ctx context.Context, rec domain.RunRecord) error

	// GetRun retrieves a single run by its ID.
	GetRun(ctx context.Context, runID string) (domain.RunRecord, error)

	// ListRuns returns the most recent runs, newest first, optionally
	// restricted to one workflow. limit <= 0 means no limit.
	ListRuns(ctx context.Context, workflowID string, limit int) ([]domain.RunRecord, error)

	// RunsBetween returns runs that ended within [start, end), oldest first.
	RunsBetween(ctx context.Context, start, end time.Time) ([]domain.RunRecord, error)
}

// RunArchive writes and reads a day of runs as a unit.
type RunArchive interface {
	WriteRuns(ctx context.Context, runs []domain.RunRecord) error
	ReadRuns(ctx context.Context, day time.Time) ([]domain.RunRecord, error)
}

// ExportDay copies the runs that ended on day (UTC) from src into dst and
// returns how many were written.
func ExportDay(ctx context.Context, src RunStore, dst RunArchive, day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	runs, err := src.RunsBetween(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return 0, err
	}
	if len(runs) == 0 {
		return 0, nil
	}
	if err := dst.WriteRuns(ctx, runs); err != nil {
		return 0, err
	}
	return len(runs), nil
}
