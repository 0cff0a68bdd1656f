package partition

import (
	"iter"

	"github.com/roach88/upbb/internal/ir"
)

// gridPlan enumerates the Cartesian product of per-variable value lists.
// Point i is decoded from i in mixed radix with the first axis most
// significant, so the first variable varies slowest.
type gridPlan struct {
	method ir.Method
	n      int
	vars   []ir.Quantity
	axes   [][]float64
	size   int64
}

func (g *gridPlan) Method() ir.Method        { return g.method }
func (g *gridPlan) N() int                   { return g.n }
func (g *gridPlan) Seed() uint64             { return 0 }
func (g *gridPlan) Variables() []ir.Quantity { return g.vars }
func (g *gridPlan) Len() int64               { return g.size }

func (g *gridPlan) Points() iter.Seq2[int64, ir.SamplePoint] {
	return func(yield func(int64, ir.SamplePoint) bool) {
		if g.size == 0 {
			return
		}
				pos := make([]int, len(g.axes))
		for i := int64(0); i < g.size; i++ {
			pt := make(ir.SamplePoint, len(g.axes))
			for d, p := range pos {
				pt[d] = g.axes[d][p]
			}
			if !yield(i, pt) {
				return
			}
			for d := len(pos) - 1; d >= 0; d-- {
				pos[d]++
				if pos[d] < len(g.axes[d]) {
					break
				}
				pos[d] = 0
			}
		}
	}
}

// SubintervalEndpoints returns the 2n edge values of q split into n equal
// sub-intervals: lo_0, hi_0, lo_1, hi_1, ... Interior edges appear twice,
// once as the upper edge of one sub-interval and once as the lower edge of
// the next.
func SubintervalEndpoints(q ir.Quantity, n int) []float64 {
	edge := func(j int) float64 {
		return q.At(float64(j) / float64(n))
	}
	out := make([]float64, 0, 2*n)
	for j := 0; j < n; j++ {
		out = append(out, edge(j), edge(j+1))
	}
	return out
}

func newSubintervalPlan(vars []ir.Quantity, n int, _ uint64, limit int64) (Plan, error) {
	if n < 1 {
		return nil, &InvalidCountError{Method: ir.MethodSubinterval, N: n}
	}
	size, ok := checkedPow(2*n, len(vars), limit)
	if !ok {
		return nil, &SampleBudgetError{Method: ir.MethodSubinterval, N: n, Variables: len(vars), Limit: limit}
	}
	axes := make([][]float64, len(vars))
	for i, v := range vars {
		axes[i] = SubintervalEndpoints(v, n)
	}
	return &gridPlan{method: ir.MethodSubinterval, n: n, vars: vars, axes: axes, size: size}, nil
}

func newEndpointPlan(vars []ir.Quantity, _ int, _ uint64, limit int64) (Plan, error) {
	size, ok := checkedPow(2, len(vars), limit)
	if !ok {
		return nil, &SampleBudgetError{Method: ir.MethodEndpoint, Variables: len(vars), Limit: limit}
	}
	axes := make([][]float64, len(vars))
	for i, v := range vars {
		axes[i] = []float64{v.Lo(), v.Hi()}
	}
	return &gridPlan{method: ir.MethodEndpoint, vars: vars, axes: axes, size: size}, nil
}
