// Package upbb propagates interval uncertainty through black-box functions.
//
// A call partitions the box spanned by the input quantities, evaluates the
// function at every sample point and returns the enclosure of the defined
// outputs as a new interval quantity:
//
//	L := upbb.MustInterval("length", "L", "m", 9.95, 10.05)
//	F := upbb.MustInterval("load", "F", "kN", 11, 37)
//	out, res, err := upbb.Propagate(ctx, []upbb.Quantity{L, F}, moment, upbb.Options{
//		Method: upbb.Endpoint,
//	})
//
// Evaluations that fail, panic or time out are counted in the Result and
// never abort the run. A run with no defined evaluation fails with a
// NO_VALID_RESULT error.
package upbb

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/upbb/internal/engine"
	"github.com/roach88/upbb/internal/ir"
)

type (
	// Quantity is an immutable uncertain quantity.
	Quantity = ir.Quantity
	// Result is the enclosure of one propagation and its tallies.
	Result = ir.Result
	// Func is a black-box model of ordered inputs.
	Func = ir.Func
	// Method selects how the input box is partitioned.
	Method = ir.Method

	// RunError is an unrecoverable run failure with its category code.
	RunError = engine.RunError
	// CancelledError reports a run stopped by its context.
	CancelledError = engine.CancelledError
)

// Partitioning methods.
const (
	Subinterval    = ir.MethodSubinterval
	Endpoint       = ir.MethodEndpoint
	MonteCarlo     = ir.MethodMonteCarlo
	LatinHypercube = ir.MethodLatinHypercube
)

// DefaultOutputName labels the result when Options.Name is empty.
const DefaultOutputName = "output"

// Options configure one propagation. The zero value runs the subinterval
// method with its default n, serially, without persistence.
type Options struct {
	Method     Method
	N          int
	Seed       uint64
	Workers    int
	Timeout    time.Duration
	MaxSamples int64

	// SaveRawData writes every evaluation to BasePath/<run-id>.db.
	SaveRawData bool
	BasePath    string

	// Params names the function's parameters; when set its length must
	// match the number of inputs.
	Params []string

	// Name, Symbol and Units label the output quantity.
	Name   string
	Symbol string
	Units  string

	Logger *slog.Logger
}

// Interval returns an interval quantity [lo, hi].
func Interval(name, symbol, units string, lo, hi float64) (Quantity, error) {
	return ir.NewInterval(name, symbol, units, lo, hi)
}

// MustInterval is like Interval but panics on invalid bounds.
func MustInterval(name, symbol, units string, lo, hi float64) Quantity {
	return ir.MustInterval(name, symbol, units, lo, hi)
}

// Propagate runs one propagation of fn over vars and returns the output
// enclosure as an interval quantity along with the full Result.
//
// On failure no partial result is returned: err is a *RunError, or a
// *CancelledError when ctx ends first.
func Propagate(ctx context.Context, vars []Quantity, fn Func, opts Options) (Quantity, Result, error) {
	out, res, _, err := propagate(ctx, vars, fn, opts)
	return out, res, err
}

// PropagateNamed resolves names against set by symbol, then by name, and
// propagates fn over the resolved quantities in the given order.
func PropagateNamed(ctx context.Context, names []string, set []Quantity, fn Func, opts Options) (Quantity, Result, error) {
	p := ir.Problem{
		Quantities:  set,
		Propagation: ir.PropagationSpec{Inputs: names},
	}
	vars, err := p.Inputs()
	if err != nil {
		return Quantity{}, Result{}, err
	}
	return Propagate(ctx, vars, fn, opts)
}

// PropagateSaved is Propagate with raw data persistence forced on. It
// also returns the artifact path.
func PropagateSaved(ctx context.Context, vars []Quantity, fn Func, basePath string, opts Options) (Quantity, Result, string, error) {
	opts.SaveRawData = true
	opts.BasePath = basePath
	return propagate(ctx, vars, fn, opts)
}

func propagate(ctx context.Context, vars []Quantity, fn Func, opts Options) (Quantity, Result, string, error) {
	name := opts.Name
	if name == "" {
		name = DefaultOutputName
	}

	cfg := engine.Config{
		Method:      opts.Method,
		N:           opts.N,
		Seed:        opts.Seed,
		Workers:     opts.Workers,
		Timeout:     opts.Timeout,
		SaveRawData: opts.SaveRawData,
		BasePath:    opts.BasePath,
		MaxSamples:  opts.MaxSamples,
		OutputName:  name,
	}
	spec := ir.FunctionSpec{Name: name, Params: opts.Params, Fn: fn}

	var runOpts []engine.RunOption
	if opts.Logger != nil {
		runOpts = append(runOpts, engine.WithLogger(opts.Logger))
	}
	run, err := engine.NewRun(vars, spec, cfg, runOpts...)
	if err != nil {
		return Quantity{}, Result{}, "", err
	}

	res, err := run.Execute(ctx)
	if err != nil {
		return Quantity{}, Result{}, run.Artifact(), err
	}
	out, err := res.Quantity(name, opts.Symbol, opts.Units)
	if err != nil {
		return Quantity{}, Result{}, run.Artifact(), err
	}
	return out, res, run.Artifact(), nil
}

// Replay rebuilds the Result of a saved run from its artifact without
// calling the model. runID may be empty when the artifact holds one run.
func Replay(ctx context.Context, path, runID string) (Result, error) {
	state, err := engine.ReplayArtifact(ctx, path, runID)
	if err != nil {
		return Result{}, err
	}
	if state.ReplayErr != nil {
		return Result{}, state.ReplayErr
	}
	return *state.Replayed, nil
}

// ErrorCode returns the category of a Propagate error, such as
// "NO_VALID_RESULT" or "CANCELLED", or "" for other errors.
func ErrorCode(err error) string {
	return engine.ErrorCode(err)
}

// IsNoValidResult reports whether every evaluation was excluded.
func IsNoValidResult(err error) bool { return engine.IsNoValidResult(err) }

// IsUnknownMethod reports whether the method was not recognised.
func IsUnknownMethod(err error) bool { return engine.IsUnknownMethod(err) }

// IsEmptyInput reports whether the run was given no inputs.
func IsEmptyInput(err error) bool { return engine.IsEmptyInput(err) }

// IsCancelled reports whether the run was cancelled.
func IsCancelled(err error) bool { return engine.IsCancelled(err) }
