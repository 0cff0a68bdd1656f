package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/upbb/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testVariables() []ir.Quantity {
	return []ir.Quantity{
		ir.MustInterval("beam length", "L", "m", 9.95, 10.05),
		ir.MustInterval("vertical force", "F", "kN", 11, 37),
	}
}

// createTestRun creates run metadata with minimal required fields.
func createTestRun(id string, planned int64) Run {
	vars := testVariables()
	hash, err := ir.PlanHash(vars, ir.MethodEndpoint, 1, 0)
	if err != nil {
		panic(err)
	}
	return Run{
		ID:        id,
		Name:      "deflection",
		Model:     "test_model",
		Method:    ir.MethodEndpoint,
		N:         1,
		Seed:      0,
		Variables: vars,
		PlanHash:  hash,
		Planned:   planned,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// createTestRecords returns n records with value = index*10, except
// indices listed in undefined which fail.
func createTestRecords(n int, undefined ...int64) []ir.EvaluationRecord {
	skip := make(map[int64]bool, len(undefined))
	for _, i := range undefined {
		skip[i] = true
	}
	out := make([]ir.EvaluationRecord, n)
	for i := range out {
		idx := int64(i)
		out[i] = ir.EvaluationRecord{
			Index: idx,
			Input: ir.SamplePoint{float64(i), float64(i) + 0.5},
		}
		if skip[idx] {
			out[i].Outcome = ir.Undefined("division by zero")
		} else {
			out[i].Outcome = ir.Defined(float64(i) * 10)
		}
	}
	return out
}

// beginTestRun inserts a run and fails the test on error.
func beginTestRun(t *testing.T, s *Store, run Run) {
	t.Helper()
	if err := s.BeginRun(context.Background(), run); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
}
