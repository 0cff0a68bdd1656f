// Package aggregate folds evaluation records into an output enclosure.
//
// The fold is streaming: an Aggregator keeps only the running bounds and
// counters, never the records themselves. Records must be added in
// ascending index order so that ties resolve to the earliest sample.
package aggregate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/upbb/internal/ir"
)

// NoValidResultError is returned when every evaluation was undefined or
// non-finite. It is a propagation-level failure: the model failed on the
// whole domain, as opposed to failing at isolated points.
type NoValidResultError struct {
	Method    ir.Method
	Variables []string
	Samples   int64
	Undefined int64
	NonFinite int64
}

func (e *NoValidResultError) Error() string {
	return fmt.Sprintf("no valid result: all %d evaluations failed (undefined=%d, non_finite=%d, method=%s, variables=[%s])",
		e.Samples, e.Undefined, e.NonFinite, e.Method, strings.Join(e.Variables, ", "))
}

// IsNoValidResult reports whether err is a NoValidResultError.
func IsNoValidResult(err error) bool {
	var nv *NoValidResultError
	return errors.As(err, &nv)
}

// Meta carries the run parameters copied into the Result.
type Meta struct {
	Method    ir.Method
	N         int
	Seed      uint64
	Variables []string
}

// Aggregator accumulates running bounds over a record stream.
// Not safe for concurrent use.
type Aggregator struct {
	lo, hi     float64
	argMin     ir.SamplePoint
	argMax     ir.SamplePoint
	minIdx     int64
	maxIdx     int64
	defined    int64
	samples    int64
	undefined  int64
	nonFinite  int64
	lastIndex  int64
	outOfOrder bool
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{lastIndex: -1}
}

// Add folds one record.
func (a *Aggregator) Add(rec ir.EvaluationRecord) {
	if rec.Index <= a.lastIndex {
		a.outOfOrder = true
	}
	a.lastIndex = rec.Index
	a.samples++

	switch rec.Outcome.Kind {
	case ir.OutcomeDefined:
	case ir.OutcomeNonFinite:
		a.nonFinite++
		return
	default:
		a.undefined++
		return
	}

	v := rec.Outcome.Value
	if a.defined == 0 || v < a.lo {
		a.lo, a.minIdx, a.argMin = v, rec.Index, rec.Input.Clone()
	}
	if a.defined == 0 || v > a.hi {
		a.hi, a.maxIdx, a.argMax = v, rec.Index, rec.Input.Clone()
	}
	a.defined++
}

// Samples returns the number of records added so far.
func (a *Aggregator) Samples() int64 { return a.samples }

// Undefined returns the number of undefined records added so far.
func (a *Aggregator) Undefined() int64 { return a.undefined }

// Result finalises the fold.
//
// Returns *NoValidResultError if no defined record was added, and an
// ordering error if records arrived out of index order.
func (a *Aggregator) Result(meta Meta) (ir.Result, error) {
	if a.outOfOrder {
		return ir.Result{}, fmt.Errorf("aggregate: records were not added in ascending index order")
	}
	if a.defined == 0 {
		return ir.Result{}, &NoValidResultError{
			Method:    meta.Method,
			Variables: meta.Variables,
			Samples:   a.samples,
			Undefined: a.undefined,
			NonFinite: a.nonFinite,
		}
	}
	return ir.Result{
		Lo:        a.lo,
		Hi:        a.hi,
		ArgMin:    a.argMin.Clone(),
		ArgMax:    a.argMax.Clone(),
		MinIndex:  a.minIdx,
		MaxIndex:  a.maxIdx,
		Samples:   a.samples,
		Undefined: a.undefined,
		NonFinite: a.nonFinite,
		Method:    meta.Method,
		N:         meta.N,
		Seed:      meta.Seed,
		Variables: append([]string(nil), meta.Variables...),
	}, nil
}

// Replay folds a complete record sequence. Used to rebuild a Result from
// persisted raw data without re-running the model.
func Replay(records []ir.EvaluationRecord, meta Meta) (ir.Result, error) {
	a := New()
	for _, rec := range records {
		a.Add(rec)
	}
	return a.Result(meta)
}
