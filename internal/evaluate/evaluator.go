package evaluate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/roach88/upbb/internal/ir"
)

// Reasons recorded on undefined outcomes that the evaluator itself produces.
const (
	ReasonTimeout   = "timeout"
	ReasonCancelled = "cancelled"
	ReasonArity     = "arity mismatch"
)

// ErrNoFunction is returned by New when the FunctionSpec has no callable.
var ErrNoFunction = errors.New("evaluate: function spec has no callable")

// Evaluator invokes a FunctionSpec on sample points.
//
// Thread-safety: Evaluator holds no mutable state and is safe for
// concurrent use, provided the wrapped model is.
type Evaluator struct {
	spec    ir.FunctionSpec
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithTimeout bounds each evaluation. A model that runs longer yields an
// undefined outcome with ReasonTimeout. Zero disables the timeout.
//
// A timed-out model call cannot be interrupted; its goroutine is abandoned
// and its eventual result discarded.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		e.timeout = d
	}
}

// WithLogger sets the logger used for per-sample debug output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Evaluator for spec.
func New(spec ir.FunctionSpec, opts ...Option) (*Evaluator, error) {
	if spec.Fn == nil {
		return nil, ErrNoFunction
	}
	e := &Evaluator{
		spec:   spec,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Spec returns the wrapped function spec.
func (e *Evaluator) Spec() ir.FunctionSpec {
	return e.spec
}

// Evaluate runs the model on pt and returns the record for sample idx.
// It never returns an error: every failure is an undefined outcome.
//
// The model receives its own copy of pt, so a model that writes to its
// argument cannot corrupt the recorded input.
func (e *Evaluator) Evaluate(ctx context.Context, idx int64, pt ir.SamplePoint) ir.EvaluationRecord {
	rec := ir.EvaluationRecord{Index: idx, Input: pt}

	if arity := e.spec.Arity(); arity > 0 && arity != len(pt) {
		rec.Outcome = ir.Undefined(fmt.Sprintf("%s: got %d values, want %d", ReasonArity, len(pt), arity))
		return rec
	}
	if ctx.Err() != nil {
		rec.Outcome = ir.Undefined(ReasonCancelled)
		return rec
	}

	if e.timeout <= 0 {
		rec.Outcome = e.call(pt.Clone())
	} else {
		rec.Outcome = e.callWithTimeout(ctx, pt.Clone())
	}

	if !rec.Outcome.IsDefined() {
		e.logger.Debug("evaluation not defined",
			"index", idx,
			"kind", rec.Outcome.Kind,
			"reason", rec.Outcome.Reason,
		)
	}
	return rec
}

// call invokes the model, converting errors and panics into outcomes.
func (e *Evaluator) call(x []float64) (out ir.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = ir.Undefined(fmt.Sprintf("panic: %v", r))
			e.logger.Debug("model panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	v, err := e.spec.Fn(x)
	if err != nil {
		return ir.Undefined(err.Error())
	}
	return ir.Defined(v)
}

func (e *Evaluator) callWithTimeout(ctx context.Context, x []float64) ir.Outcome {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan ir.Outcome, 1) // buffered: an abandoned call must not block
	go func() {
		done <- e.call(x)
	}()

	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ir.Undefined(ReasonTimeout)
		}
		return ir.Undefined(ReasonCancelled)
	}
}
