package store

import (
	"context"
	"fmt"

	"github.com/roach88/upbb/internal/aggregate"
	"github.com/roach88/upbb/internal/ir"
)

// RunState summarises a persisted run for inspection and replay.
type RunState struct {
	Run          Run
	Records      int64 // Records persisted
	Missing      int64 // Planned samples with no record
	Corrupt      []int64
	IsComplete   bool // Status completed and every planned record present
	Replayed     *ir.Result
	ReplayErr    error
	ResultsMatch bool // Replayed equals the stored result
}

// GetRunState loads a run, re-folds its records and checks each stored
// record hash. It never calls the model.
func (s *Store) GetRunState(ctx context.Context, runID string) (RunState, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}
	state := RunState{Run: run}

	hashes, err := s.readRecordHashes(ctx, runID)
	if err != nil {
		return state, fmt.Errorf("get run state: %w", err)
	}

	agg := aggregate.New()
	err = s.ScanRecords(ctx, runID, func(rec ir.EvaluationRecord) error {
		state.Records++
		want, err := ir.RecordHash(rec)
		if err != nil {
			return err
		}
		if hashes[rec.Index] != want {
			state.Corrupt = append(state.Corrupt, rec.Index)
		}
		agg.Add(rec)
		return nil
	})
	if err != nil {
		return state, fmt.Errorf("get run state: %w", err)
	}

	if run.Planned > state.Records {
		state.Missing = run.Planned - state.Records
	}
	state.IsComplete = run.Status == StatusCompleted && state.Missing == 0

	res, err := agg.Result(aggregate.Meta{
		Method:    run.Method,
		N:         run.N,
		Seed:      run.Seed,
		Variables: run.VariableLabels(),
	})
	if err != nil {
		state.ReplayErr = err
	} else {
		state.Replayed = &res
	}
	state.ResultsMatch = run.Result != nil && state.Replayed != nil && run.Result.Equal(*state.Replayed)
	return state, nil
}

// Replay rebuilds the Result of a run from its raw data.
//
// Returns *aggregate.NoValidResultError if the run has no defined record.
func (s *Store) Replay(ctx context.Context, runID string) (ir.Result, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return ir.Result{}, err
	}
	agg := aggregate.New()
	if err := s.ScanRecords(ctx, runID, func(rec ir.EvaluationRecord) error {
		agg.Add(rec)
		return nil
	}); err != nil {
		return ir.Result{}, fmt.Errorf("replay %s: %w", runID, err)
	}
	return agg.Result(aggregate.Meta{
		Method:    run.Method,
		N:         run.N,
		Seed:      run.Seed,
		Variables: run.VariableLabels(),
	})
}

// FindIncompleteRuns returns runs still marked running, typically left
// behind by a crashed process.
func (s *Store) FindIncompleteRuns(ctx context.Context) ([]Run, error) {
	runs, err := s.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("find incomplete runs: %w", err)
	}
	out := []Run{}
	for _, r := range runs {
		if r.Status == StatusRunning {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) readRecordHashes(ctx context.Context, runID string) (map[int64]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT idx, hash FROM records WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("query record hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[int64]string)
	for rows.Next() {
		var (
			idx  int64
			hash string
		)
		if err := rows.Scan(&idx, &hash); err != nil {
			return nil, fmt.Errorf("scan record hash: %w", err)
		}
		hashes[idx] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record hashes: %w", err)
	}
	return hashes, nil
}
