package store

import (
	"context"
	"errors"
	"testing"

	"github.com/roach88/upbb/internal/ir"
)

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("ReadRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestReadRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	want := createTestRun("run-1", 4)
	want.Seed = 1<<63 + 5 // does not fit in SQLite INTEGER
	beginTestRun(t, s, want)

	got, err := s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}

	if got.ID != want.ID || got.Name != want.Name || got.Model != want.Model {
		t.Errorf("identity mismatch: got %+v", got)
	}
	if got.Method != want.Method || got.N != want.N || got.Seed != want.Seed {
		t.Errorf("plan mismatch: method=%s n=%d seed=%d", got.Method, got.N, got.Seed)
	}
	if got.PlanHash != want.PlanHash || got.Planned != want.Planned {
		t.Errorf("plan hash/planned mismatch: %s %d", got.PlanHash, got.Planned)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	if got.Status != StatusRunning {
		t.Errorf("Status = %q, want %q", got.Status, StatusRunning)
	}
	if got.EngineVersion != ir.EngineVersion || got.FormatVersion != ir.FormatVersion {
		t.Errorf("versions = %s/%s", got.EngineVersion, got.FormatVersion)
	}
	if len(got.Variables) != len(want.Variables) {
		t.Fatalf("Variables len = %d, want %d", len(got.Variables), len(want.Variables))
	}
	for i := range want.Variables {
		if !got.Variables[i].Equal(want.Variables[i]) {
			t.Errorf("Variables[%d] = %v, want %v", i, got.Variables[i], want.Variables[i])
		}
	}
}

func TestReadRecords_Empty(t *testing.T) {
	s := createTestStore(t)
	beginTestRun(t, s, createTestRun("run-1", 0))

	records, err := s.ReadRecords(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ReadRecords() failed: %v", err)
	}
	if records == nil {
		t.Error("ReadRecords() returned nil, want empty slice")
	}
	if len(records) != 0 {
		t.Errorf("ReadRecords() len = %d, want 0", len(records))
	}
}

func TestReadRecords_OrderedByIndex(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, createTestRun("run-1", 6))

	records := createTestRecords(6, 2)
	// Persist out of order, as parallel batches might.
	shuffled := []ir.EvaluationRecord{records[4], records[1], records[5], records[0], records[3], records[2]}
	if err := s.AppendRecords(ctx, "run-1", shuffled); err != nil {
		t.Fatalf("AppendRecords() failed: %v", err)
	}

	got, err := s.ReadRecords(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRecords() failed: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("len = %d, want %d", len(got), len(records))
	}
	for i, rec := range got {
		if rec.Index != int64(i) {
			t.Errorf("got[%d].Index = %d", i, rec.Index)
		}
		if rec.Outcome.Kind != records[i].Outcome.Kind {
			t.Errorf("got[%d].Kind = %s, want %s", i, rec.Outcome.Kind, records[i].Outcome.Kind)
		}
		if rec.Outcome.IsDefined() && rec.Outcome.Value != records[i].Outcome.Value {
			t.Errorf("got[%d].Value = %g, want %g", i, rec.Outcome.Value, records[i].Outcome.Value)
		}
		for d := range rec.Input {
			if rec.Input[d] != records[i].Input[d] {
				t.Errorf("got[%d].Input = %v, want %v", i, rec.Input, records[i].Input)
				break
			}
		}
	}
}

func TestReadRecords_IsolatedByRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, createTestRun("run-a", 3))
	beginTestRun(t, s, createTestRun("run-b", 2))

	if err := s.AppendRecords(ctx, "run-a", createTestRecords(3)); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendRecords(ctx, "run-b", createTestRecords(2)); err != nil {
		t.Fatal(err)
	}

	a, _ := s.CountRecords(ctx, "run-a")
	b, _ := s.CountRecords(ctx, "run-b")
	if a != 3 || b != 2 {
		t.Errorf("counts = %d, %d; want 3, 2", a, b)
	}
}

func TestScanRecords_StopsOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, createTestRun("run-1", 5))
	if err := s.AppendRecords(ctx, "run-1", createTestRecords(5)); err != nil {
		t.Fatal(err)
	}

	stop := errors.New("stop")
	seen := 0
	err := s.ScanRecords(ctx, "run-1", func(ir.EvaluationRecord) error {
		seen++
		if seen == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Errorf("ScanRecords() error = %v, want stop", err)
	}
	if seen != 2 {
		t.Errorf("visited %d records, want 2", seen)
	}
}

func TestListRuns_Ordered(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	late := createTestRun("b-run", 1)
	early := createTestRun("a-run", 1)
	early.CreatedAt = late.CreatedAt.Add(-1)
	beginTestRun(t, s, late)
	beginTestRun(t, s, early)

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "a-run" || runs[1].ID != "b-run" {
		t.Errorf("ListRuns() order = %v", runIDs(runs))
	}
}

func runIDs(runs []Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}
