package partition

import (
	"iter"
	"slices"
	"sort"

	"github.com/roach88/upbb/internal/ir"
)

// Defaults applied when Config.N or Config.MaxSamples is zero.
const (
	DefaultSubintervals          = 3
	DefaultMonteCarloSamples     = 1000
	DefaultLatinHypercubeSamples = 100
	DefaultMaxSamples            = 1_000_000
)

// Config selects a method and its parameters.
type Config struct {
	Method ir.Method

	// N is the method-dependent sample count. 0 selects the method default.
	N int

	// Seed drives the sampled methods. Grid methods ignore it.
	Seed uint64

	// MaxSamples caps the plan size. 0 selects DefaultMaxSamples.
	MaxSamples int64
}

// Plan is a finite, restartable sequence of sample points.
type Plan interface {
	// Method returns the method that produced the plan.
	Method() ir.Method

	// N returns the effective sample-count parameter (after defaults).
	N() int

	// Seed returns the seed used (0 for grid methods).
	Seed() uint64

	// Variables returns the inputs in declared order.
	Variables() []ir.Quantity

	// Len returns the number of points Points will yield.
	Len() int64

	// Points yields (index, point) pairs in deterministic order.
	// Each yielded point is freshly allocated and owned by the consumer.
	Points() iter.Seq2[int64, ir.SamplePoint]
}

// builder constructs a plan for one method. n has already had the method
// default applied.
type builder func(vars []ir.Quantity, n int, seed uint64, limit int64) (Plan, error)

// builders maps each method to its plan constructor.
var builders = map[ir.Method]builder{
	ir.MethodSubinterval:    newSubintervalPlan,
	ir.MethodEndpoint:       newEndpointPlan,
	ir.MethodMonteCarlo:     newMonteCarloPlan,
	ir.MethodLatinHypercube: newLatinHypercubePlan,
}

// Methods returns the registered methods in sorted order.
func Methods() []ir.Method {
	out := make([]ir.Method, 0, len(builders))
	for m := range builders {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultN returns the method's default sample-count parameter.
func DefaultN(m ir.Method) int {
	switch m {
	case ir.MethodSubinterval:
		return DefaultSubintervals
	case ir.MethodMonteCarlo:
		return DefaultMonteCarloSamples
	case ir.MethodLatinHypercube:
		return DefaultLatinHypercubeSamples
	default:
		return 0
	}
}

// New validates the inputs and returns the plan for cfg.Method.
//
// Errors, all detected before any sample is produced:
//   - ErrEmptyInput if vars is empty
//   - *UnknownMethodError if the method is not registered
//   - *UnsupportedEssenceError if an input is not an interval or scalar
//   - *InvalidCountError if N is negative
//   - *SampleBudgetError if the plan would exceed MaxSamples
func New(vars []ir.Quantity, cfg Config) (Plan, error) {
	if len(vars) == 0 {
		return nil, ErrEmptyInput
	}

	method, ok := ir.ParseMethod(string(cfg.Method))
	if !ok {
		return nil, &UnknownMethodError{Method: string(cfg.Method)}
	}
	build, ok := builders[method]
	if !ok {
		return nil, &UnknownMethodError{Method: string(cfg.Method)}
	}

	for _, v := range vars {
		if !v.Essence().Propagatable() {
			return nil, &UnsupportedEssenceError{Variable: v.Label(), Essence: v.Essence()}
		}
	}

	if cfg.N < 0 {
		return nil, &InvalidCountError{Method: method, N: cfg.N}
	}
	n := cfg.N
	if n == 0 {
		n = DefaultN(method)
	}

	limit := cfg.MaxSamples
	if limit <= 0 {
		limit = DefaultMaxSamples
	}

	// Copy inputs so later mutation of the caller's slice can't change the plan.
	return build(slices.Clone(vars), n, cfg.Seed, limit)
}

// Collect materialises every point of a plan. Intended for tests and
// small plans.
func Collect(p Plan) []ir.SamplePoint {
	out := make([]ir.SamplePoint, 0, p.Len())
	for _, pt := range p.Points() {
		out = append(out, pt)
	}
	return out
}

// checkedPow returns base^exp, or false if the result exceeds limit.
func checkedPow(base, exp int, limit int64) (int64, bool) {
	total := int64(1)
	for i := 0; i < exp; i++ {
		if int64(base) != 0 && total > limit/int64(base) {
			return 0, false
		}
		total *= int64(base)
	}
	return total, total <= limit
}
