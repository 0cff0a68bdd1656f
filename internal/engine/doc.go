// Package engine runs uncertainty propagations.
//
// A Run ties the pieces together: the partition plan yields sample points,
// the evaluator turns each point into a record, and records are folded by
// the aggregator and optionally appended to a raw data store.
//
// ARCHITECTURE:
//
// Ordered Record Stream:
// Whatever the number of workers, records reach the aggregator and the
// store in plan index order. With Workers > 1 evaluation runs on an
// errgroup of goroutines and a reorder queue restores order before
// emission. This keeps raw data logs byte-comparable between serial and
// parallel runs and makes tie-breaking on equal bounds deterministic.
//
// Run Lifecycle:
//  1. NewRun validates Config (go-playground/validator) and copies inputs
//  2. Execute: Configured → Partitioning (plan built, budget checked)
//  3. Evaluating: samples evaluated, records emitted in order
//  4. Aggregating: bounds finalised, NoValidResult detected
//  5. Completed, or Failed (*RunError) or Cancelled (*CancelledError)
//
// A Run is single-use. Execute on a used Run returns ErrRunConsumed.
//
// Persistence:
// With Config.SaveRawData each run writes one SQLite artifact named after
// its run ID under Config.BasePath. ReplayArtifact re-folds it.
package engine
