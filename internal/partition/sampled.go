package partition

import (
	"iter"
	"math/rand/v2"

	"github.com/roach88/upbb/internal/ir"
)

// streamSalt decorrelates the two PCG state words derived from one seed.
const streamSalt = 0x9e3779b97f4a7c15

// newRand returns a fresh generator for seed. Every call with the same seed
// yields the same stream, which is what makes sampled plans restartable.
func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^streamSalt))
}

// sampledPlan draws points from a seeded stream.
type sampledPlan struct {
	method ir.Method
	n      int
	seed   uint64
	vars   []ir.Quantity
	draw   func(r *rand.Rand, n int, vars []ir.Quantity) iter.Seq2[int64, ir.SamplePoint]
}

func (s *sampledPlan) Method() ir.Method        { return s.method }
func (s *sampledPlan) N() int                   { return s.n }
func (s *sampledPlan) Seed() uint64             { return s.seed }
func (s *sampledPlan) Variables() []ir.Quantity { return s.vars }
func (s *sampledPlan) Len() int64               { return int64(s.n) }

func (s *sampledPlan) Points() iter.Seq2[int64, ir.SamplePoint] {
	return func(yield func(int64, ir.SamplePoint) bool) {
		s.draw(newRand(s.seed), s.n, s.vars)(yield)
	}
}

func newMonteCarloPlan(vars []ir.Quantity, n int, seed uint64, limit int64) (Plan, error) {
	if n < 1 {
		return nil, &InvalidCountError{Method: ir.MethodMonteCarlo, N: n}
	}
	if int64(n) > limit {
		return nil, &SampleBudgetError{Method: ir.MethodMonteCarlo, N: n, Variables: len(vars), Limit: limit}
	}
	return &sampledPlan{method: ir.MethodMonteCarlo, n: n, seed: seed, vars: vars, draw: drawUniform}, nil
}

func newLatinHypercubePlan(vars []ir.Quantity, n int, seed uint64, limit int64) (Plan, error) {
	if n < 1 {
		return nil, &InvalidCountError{Method: ir.MethodLatinHypercube, N: n}
	}
	if int64(n) > limit {
		return nil, &SampleBudgetError{Method: ir.MethodLatinHypercube, N: n, Variables: len(vars), Limit: limit}
	}
	return &sampledPlan{method: ir.MethodLatinHypercube, n: n, seed: seed, vars: vars, draw: drawLatinHypercube}, nil
}

// drawUniform yields n independent uniform points. Values are drawn point
// by point, variable by variable.
func drawUniform(r *rand.Rand, n int, vars []ir.Quantity) iter.Seq2[int64, ir.SamplePoint] {
	return func(yield func(int64, ir.SamplePoint) bool) {
		for i := 0; i < n; i++ {
			pt := make(ir.SamplePoint, len(vars))
			for d, v := range vars {
				pt[d] = v.At(r.Float64())
			}
			if !yield(int64(i), pt) {
				return
			}
		}
	}
}

// drawLatinHypercube yields n points such that, for every variable, each of
// the n equal-width strata holds exactly one point.
func drawLatinHypercube(r *rand.Rand, n int, vars []ir.Quantity) iter.Seq2[int64, ir.SamplePoint] {
	return func(yield func(int64, ir.SamplePoint) bool) {
		// Permutations and jitter are drawn up front so the stream order
		// does not depend on how far the consumer iterates.
		strata := make([][]int, len(vars))
		jitter := make([][]float64, len(vars))
		for d := range vars {
			strata[d] = r.Perm(n)
			jitter[d] = make([]float64, n)
			for i := range jitter[d] {
				jitter[d][i] = r.Float64()
			}
		}
		for i := 0; i < n; i++ {
			pt := make(ir.SamplePoint, len(vars))
			for d, v := range vars {
				u := (float64(strata[d][i]) + jitter[d][i]) / float64(n)
				pt[d] = v.At(u)
			}
			if !yield(int64(i), pt) {
				return
			}
		}
	}
}
