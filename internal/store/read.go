package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/roach88/upbb/internal/ir"
)

const runColumns = `id, name, model, method, n, seed, variables, plan_hash, planned,
	created_at, status, result, error, engine_version, format_version`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ReadRun returns the metadata row for a run.
// Returns ErrRunNotFound (wrapped) if no such run exists.
func (s *Store) ReadRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns returns every run in the artifact ordered by created_at, id.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRecords returns all records of a run in ascending idx order.
// Returns an empty slice (not nil) if the run has no records.
func (s *Store) ReadRecords(ctx context.Context, runID string) ([]ir.EvaluationRecord, error) {
	records := []ir.EvaluationRecord{}
	err := s.ScanRecords(ctx, runID, func(rec ir.EvaluationRecord) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ScanRecords streams the records of a run to visit in ascending idx order.
// Stops and returns the first error from visit.
func (s *Store) ScanRecords(ctx context.Context, runID string, visit func(ir.EvaluationRecord) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, input, kind, value, reason
		FROM records
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return err
		}
		if err := visit(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate records: %w", err)
	}
	return nil
}

// CountRecords returns the number of persisted records for a run.
func (s *Store) CountRecords(ctx context.Context, runID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run       Run
		method    string
		seed      string
		varsJSON  string
		createdAt string
		result    sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&run.Name,
		&run.Model,
		&method,
		&run.N,
		&seed,
		&varsJSON,
		&run.PlanHash,
		&run.Planned,
		&createdAt,
		&run.Status,
		&result,
		&run.Error,
		&run.EngineVersion,
		&run.FormatVersion,
	)
	if err != nil {
		return Run{}, err
	}

	run.Method = ir.Method(method)
	if run.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return Run{}, fmt.Errorf("parse seed: %w", err)
	}
	if run.Variables, err = unmarshalVariables(varsJSON); err != nil {
		return Run{}, err
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Run{}, fmt.Errorf("parse created_at: %w", err)
	}
	if result.Valid {
		res, err := unmarshalResult(result.String)
		if err != nil {
			return Run{}, err
		}
		run.Result = &res
	}
	return run, nil
}

func scanRecord(rows *sql.Rows) (ir.EvaluationRecord, error) {
	var (
		rec       ir.EvaluationRecord
		inputJSON string
		kind      string
		value     sql.NullFloat64
		reason    string
	)
	if err := rows.Scan(&rec.Index, &inputJSON, &kind, &value, &reason); err != nil {
		return ir.EvaluationRecord{}, fmt.Errorf("scan record: %w", err)
	}

	input, err := unmarshalInput(inputJSON)
	if err != nil {
		return ir.EvaluationRecord{}, fmt.Errorf("record %d: %w", rec.Index, err)
	}
	rec.Input = input

	k, err := ir.ParseOutcomeKind(kind)
	if err != nil {
		return ir.EvaluationRecord{}, fmt.Errorf("record %d: %w", rec.Index, err)
	}
	rec.Outcome = ir.Outcome{Kind: k, Value: math.NaN(), Reason: reason}
	if value.Valid {
		rec.Outcome.Value = value.Float64
	} else if k == ir.OutcomeDefined {
		return ir.EvaluationRecord{}, fmt.Errorf("record %d: defined outcome has no value", rec.Index)
	}
	return rec, nil
}
