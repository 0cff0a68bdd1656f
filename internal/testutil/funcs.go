package testutil

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/roach88/upbb/internal/ir"
)

// ErrCanned is the error returned by the failing test functions.
var ErrCanned = errors.New("canned failure")

// Constant returns a function that ignores its input.
func Constant(v float64) ir.Func {
	return func([]float64) (float64, error) {
		return v, nil
	}
}

// Linear returns f(x) = c0 + c1*x[0] + c2*x[1] + ...
//
// Linear functions are monotone in every input, so every partitioning
// method that includes the box vertices yields the exact enclosure.
func Linear(c0 float64, coeffs ...float64) ir.Func {
	cs := append([]float64(nil), coeffs...)
	return func(x []float64) (float64, error) {
		if len(x) != len(cs) {
			return 0, fmt.Errorf("linear: want %d inputs, got %d", len(cs), len(x))
		}
		sum := c0
		for i, c := range cs {
			sum += c * x[i]
		}
		return sum, nil
	}
}

// Product returns f(x) = x[0]*x[1]*...
func Product() ir.Func {
	return func(x []float64) (float64, error) {
		p := 1.0
		for _, v := range x {
			p *= v
		}
		return p, nil
	}
}

// Reciprocal returns f(x) = 1/x[0], failing with ErrCanned at zero.
func Reciprocal() ir.Func {
	return func(x []float64) (float64, error) {
		if x[0] == 0 {
			return 0, ErrCanned
		}
		return 1 / x[0], nil
	}
}

// FailWhen wraps fn so that it fails with ErrCanned whenever pred holds.
func FailWhen(fn ir.Func, pred func(x []float64) bool) ir.Func {
	return func(x []float64) (float64, error) {
		if pred(x) {
			return 0, ErrCanned
		}
		return fn(x)
	}
}

// AlwaysFail returns a function that fails on every input.
func AlwaysFail() ir.Func {
	return func([]float64) (float64, error) {
		return 0, ErrCanned
	}
}

// Panicking returns a function that panics on every input.
func Panicking() ir.Func {
	return func([]float64) (float64, error) {
		panic("canned panic")
	}
}

// NonFinite returns a function that yields +Inf when pred holds and
// delegates to fn otherwise.
func NonFinite(fn ir.Func, pred func(x []float64) bool) ir.Func {
	return func(x []float64) (float64, error) {
		if pred(x) {
			return math.Inf(1), nil
		}
		return fn(x)
	}
}

// Slow wraps fn with a fixed delay before each call.
func Slow(fn ir.Func, d time.Duration) ir.Func {
	return func(x []float64) (float64, error) {
		time.Sleep(d)
		return fn(x)
	}
}

// Spec wraps fn in a FunctionSpec with the given parameter names.
func Spec(name string, fn ir.Func, params ...string) ir.FunctionSpec {
	return ir.FunctionSpec{Name: name, Params: params, Fn: fn}
}
