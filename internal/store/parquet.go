package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"stockmind/internal/domain"
)

// Compile-time interface check.
var _ RunArchive = (*ParquetStore)(nil)

// ParquetStore implements RunArchive using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// RunRecord is the Parquet schema for workflow runs.
type RunRecord struct {
	RunID      string `parquet:"run_id"`
	WorkflowID string `parquet:"workflow_id"`
	Symbol     string `parquet:"symbol"`
	Status     string `parquet:"status"`
	Error      string `parquet:"error"`
	StartedAt  int64  `parquet:"started_at,timestamp(millisecond)"` // Unix ms
	EndedAt    int64  `parquet:"ended_at,timestamp(millisecond)"`   // Unix ms
}

// WriteRuns writes runs to Parquet files organized by the UTC day they
// ended, merging with any runs already archived for that day:
//
//	<DataDir>/runs/<YYYY-MM-DD>.parquet
func (s *ParquetStore) WriteRuns(_ context.Context, runs []domain.RunRecord) error {
	groups := make(map[string][]RunRecord)
	for _, r := range runs {
		day := r.EndedAt.UTC().Format("2006-01-02")
		groups[day] = append(groups[day], RunRecord{
			RunID:      r.RunID,
			WorkflowID: r.WorkflowID,
			Symbol:     r.Symbol,
			Status:     string(r.Status),
			Error:      r.Error,
			StartedAt:  r.StartedAt.UnixMilli(),
			EndedAt:    r.EndedAt.UnixMilli(),
		})
	}

	for day, records := range groups {
		path := filepath.Join(s.DataDir, "runs", day+".parquet")

		existing, err := readParquetFile[RunRecord](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading runs for %s: %w", day, err)
		}
		if err := writeParquetFile(path, mergeRunRecords(existing, records)); err != nil {
			return fmt.Errorf("writing runs for %s: %w", day, err)
		}
	}
	return nil
}

// ReadRuns reads the runs archived for the UTC day containing day. A day
// with no file yields an empty slice.
func (s *ParquetStore) ReadRuns(_ context.Context, day time.Time) ([]domain.RunRecord, error) {
	records, err := readParquetFile[RunRecord](s.runPath(day))
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.RunRecord{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.RunRecord, 0, len(records))
	for _, r := range records {
		out = append(out, domain.RunRecord{
			RunID:      r.RunID,
			WorkflowID: r.WorkflowID,
			Symbol:     r.Symbol,
			Status:     domain.Status(r.Status),
			Error:      r.Error,
			StartedAt:  time.UnixMilli(r.StartedAt).UTC(),
			EndedAt:    time.UnixMilli(r.EndedAt).UTC(),
		})
	}
	return out, nil
}

// runPath returns the filesystem path for a day's run file.
func (s *ParquetStore) runPath(day time.Time) string {
	return filepath.Join(s.DataDir, "runs", day.UTC().Format("2006-01-02")+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeRunRecords deduplicates run records by run ID, preferring new records
// over existing ones. Results are sorted by end time.
func mergeRunRecords(existing, incoming []RunRecord) []RunRecord {
	seen := make(map[string]RunRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.RunID] = r
	}
	for _, r := range incoming {
		seen[r.RunID] = r
	}

	merged := make([]RunRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].EndedAt != merged[j].EndedAt {
			return merged[i].EndedAt < merged[j].EndedAt
		}
		return merged[i].RunID < merged[j].RunID
	})
	return merged
}
