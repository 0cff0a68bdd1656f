package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/roach88/upbb/internal/ir"
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// BeginRun inserts the metadata row for a new run with status "running".
// Fails if a run with the same ID already exists.
//
// Inputs are serialized to canonical JSON so the artifact records the
// exact variable order the model was called with.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	varsJSON, err := marshalVariables(run.Variables)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	engineVersion := run.EngineVersion
	if engineVersion == "" {
		engineVersion = ir.EngineVersion
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, name, model, method, n, seed, variables, plan_hash, planned, created_at, status, engine_version, format_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Name,
		run.Model,
		string(run.Method),
		run.N,
		strconv.FormatUint(run.Seed, 10),
		varsJSON,
		run.PlanHash,
		run.Planned,
		createdAt.UTC().Format(timeLayout),
		StatusRunning,
		engineVersion,
		ir.FormatVersion,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// AppendRecords inserts a batch of evaluation records in one transaction.
// Uses ON CONFLICT(run_id, idx) DO NOTHING for idempotency - a record that
// is already persisted is silently skipped.
//
// NaN values are stored as NULL, so undefined outcomes read back with a
// NaN value. Infinite values are kept.
//
// Note: The run referenced by runID must exist (foreign key constraint).
func (s *Store) AppendRecords(ctx context.Context, runID string, records []ir.EvaluationRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append records: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records
		(run_id, idx, input, kind, value, reason, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, idx) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("append records: prepare: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		inputJSON, err := marshalInput(rec.Input)
		if err != nil {
			return fmt.Errorf("append records: record %d: %w", rec.Index, err)
		}
		hash, err := ir.RecordHash(rec)
		if err != nil {
			return fmt.Errorf("append records: record %d: %w", rec.Index, err)
		}

		var value sql.NullFloat64
		if !math.IsNaN(rec.Outcome.Value) {
			value = sql.NullFloat64{Float64: rec.Outcome.Value, Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			runID,
			rec.Index,
			inputJSON,
			string(rec.Outcome.Kind),
			value,
			rec.Outcome.Reason,
			hash,
		); err != nil {
			return fmt.Errorf("append records: record %d: %w", rec.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append records: commit: %w", err)
	}
	return nil
}

// CompleteRun stores the final result and marks the run completed.
func (s *Store) CompleteRun(ctx context.Context, runID string, res ir.Result) error {
	resultJSON, err := marshalResult(res)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return s.finish(ctx, runID, StatusCompleted, sql.NullString{String: resultJSON, Valid: true}, "")
}

// FailRun marks the run failed or cancelled and records the error text.
// Records already appended are kept for inspection.
func (s *Store) FailRun(ctx context.Context, runID, status, errText string) error {
	if status != StatusFailed && status != StatusCancelled {
		return fmt.Errorf("fail run: invalid status %q", status)
	}
	return s.finish(ctx, runID, status, sql.NullString{}, errText)
}

func (s *Store) finish(ctx context.Context, runID, status string, result sql.NullString, errText string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, result = ?, error = ?
		WHERE id = ? AND status = ?
	`, status, result, errText, runID, StatusRunning)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run %s: rows affected: %w", runID, err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: no running run with that id", runID)
	}
	return nil
}
