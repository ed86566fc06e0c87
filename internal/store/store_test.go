package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"stockmind/internal/domain"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func run(id, workflow string, endOffset time.Duration, status domain.Status) domain.RunRecord {
	end := day.Add(endOffset)
	return domain.RunRecord{
		RunID:      id,
		WorkflowID: workflow,
		Symbol:     "AAPL",
		Status:     status,
		StartedAt:  end.Add(-3 * time.Second),
		EndedAt:    end,
	}
}

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "stockmind.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteSaveGetRun(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	rec := run("r1", "stock-analysis", 10*time.Hour, domain.StatusError)
	rec.Error = "connection refused"
	if err := s.SaveRun(ctx, rec); err != nil {
		t.Fatalf("SaveRun() error: %v", err)
	}

	got, err := s.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if got.WorkflowID != "stock-analysis" || got.Status != domain.StatusError || got.Error != "connection refused" {
		t.Errorf("GetRun() = %+v", got)
	}
	if !got.EndedAt.Equal(rec.EndedAt) || !got.StartedAt.Equal(rec.StartedAt) {
		t.Errorf("times = %v..%v, want %v..%v", got.StartedAt, got.EndedAt, rec.StartedAt, rec.EndedAt)
	}

	if _, err := s.GetRun(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun(nope) err = %v, want ErrNotFound", err)
	}

	// Saving the same ID again replaces the row.
	rec.Status = domain.StatusCompleted
	rec.Error = ""
	if err := s.SaveRun(ctx, rec); err != nil {
		t.Fatalf("SaveRun() error: %v", err)
	}
	if got, _ := s.GetRun(ctx, "r1"); got.Status != domain.StatusCompleted {
		t.Errorf("status after replace = %s, want completed", got.Status)
	}
}

func TestSQLiteListRuns(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	for _, r := range []domain.RunRecord{
		run("a", "stock-analysis", 1*time.Hour, domain.StatusCompleted),
		run("b", "risk-monitor", 2*time.Hour, domain.StatusCompleted),
		run("c", "stock-analysis", 3*time.Hour, domain.StatusError),
	} {
		if err := s.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun(%s) error: %v", r.RunID, err)
		}
	}

	all, err := s.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRuns() error: %v", err)
	}
	if len(all) != 3 || all[0].RunID != "c" || all[2].RunID != "a" {
		t.Errorf("ListRuns() order = %v", ids(all))
	}

	sa, _ := s.ListRuns(ctx, "stock-analysis", 1)
	if len(sa) != 1 || sa[0].RunID != "c" {
		t.Errorf("ListRuns(stock-analysis, 1) = %v, want [c]", ids(sa))
	}

	between, _ := s.RunsBetween(ctx, day.Add(90*time.Minute), day.Add(3*time.Hour))
	if len(between) != 1 || between[0].RunID != "b" {
		t.Errorf("RunsBetween() = %v, want [b]", ids(between))
	}
}

func TestParquetRunsRoundTrip(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	first := []domain.RunRecord{
		run("a", "stock-analysis", 1*time.Hour, domain.StatusCompleted),
		run("b", "risk-monitor", 25*time.Hour, domain.StatusError), // next day
	}
	if err := ps.WriteRuns(ctx, first); err != nil {
		t.Fatalf("WriteRuns() error: %v", err)
	}

	// A second write merges by run ID.
	updated := run("a", "stock-analysis", 1*time.Hour, domain.StatusError)
	updated.Error = "timeout"
	if err := ps.WriteRuns(ctx, []domain.RunRecord{updated, run("c", "sentiment-tracker", 2*time.Hour, domain.StatusCompleted)}); err != nil {
		t.Fatalf("WriteRuns() error: %v", err)
	}

	got, err := ps.ReadRuns(ctx, day)
	if err != nil {
		t.Fatalf("ReadRuns() error: %v", err)
	}
	if len(got) != 2 || got[0].RunID != "a" || got[1].RunID != "c" {
		t.Fatalf("ReadRuns(day) = %v, want [a c]", ids(got))
	}
	if got[0].Status != domain.StatusError || got[0].Error != "timeout" {
		t.Errorf("merged run = %+v", got[0])
	}
	if !got[0].EndedAt.Equal(day.Add(time.Hour)) {
		t.Errorf("EndedAt = %v, want %v", got[0].EndedAt, day.Add(time.Hour))
	}

	next, _ := ps.ReadRuns(ctx, day.AddDate(0, 0, 1))
	if len(next) != 1 || next[0].RunID != "b" {
		t.Errorf("ReadRuns(next day) = %v, want [b]", ids(next))
	}

	empty, err := ps.ReadRuns(ctx, day.AddDate(0, 0, 5))
	if err != nil || len(empty) != 0 {
		t.Errorf("ReadRuns(missing day) = %v, %v", empty, err)
	}
}

func TestExportDay(t *testing.T) {
	s := newSQLite(t)
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	_ = s.SaveRun(ctx, run("a", "stock-analysis", 1*time.Hour, domain.StatusCompleted))
	_ = s.SaveRun(ctx, run("b", "stock-analysis", 30*time.Hour, domain.StatusCompleted))

	n, err := ExportDay(ctx, s, ps, day.Add(12*time.Hour))
	if err != nil {
		t.Fatalf("ExportDay() error: %v", err)
	}
	if n != 1 {
		t.Errorf("ExportDay() = %d, want 1", n)
	}
	got, _ := ps.ReadRuns(ctx, day)
	if len(got) != 1 || got[0].RunID != "a" {
		t.Errorf("archived = %v, want [a]", ids(got))
	}
}

func ids(runs []domain.RunRecord) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.RunID
	}
	return out
}
