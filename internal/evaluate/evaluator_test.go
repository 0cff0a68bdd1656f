package evaluate

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/upbb/internal/ir"
)

func spec(fn ir.Func, params ...string) ir.FunctionSpec {
	return ir.FunctionSpec{Name: "test", Params: params, Fn: fn}
}

func TestNew_RequiresFunction(t *testing.T) {
	_, err := New(ir.FunctionSpec{Params: []string{"x"}})
	assert.ErrorIs(t, err, ErrNoFunction)
}

func TestEvaluate_Defined(t *testing.T) {
	ev, err := New(spec(func(x []float64) (float64, error) { return x[0] * x[1], nil }, "a", "b"))
	require.NoError(t, err)

	rec := ev.Evaluate(context.Background(), 4, ir.SamplePoint{3, 5})
	assert.Equal(t, int64(4), rec.Index)
	assert.Equal(t, ir.SamplePoint{3, 5}, rec.Input)
	assert.Equal(t, ir.Outcome{Kind: ir.OutcomeDefined, Value: 15}, rec.Outcome)
}

func TestEvaluate_ErrorBecomesUndefined(t *testing.T) {
	ev, err := New(spec(func(x []float64) (float64, error) {
		return 0, errors.New("division by zero")
	}, "x"))
	require.NoError(t, err)

	rec := ev.Evaluate(context.Background(), 0, ir.SamplePoint{0})
	assert.Equal(t, ir.OutcomeUndefined, rec.Outcome.Kind)
	assert.Equal(t, "division by zero", rec.Outcome.Reason)
}

func TestEvaluate_PanicBecomesUndefined(t *testing.T) {
	ev, err := New(spec(func(x []float64) (float64, error) {
		return x[5], nil // index out of range
	}, "x"))
	require.NoError(t, err)

	rec := ev.Evaluate(context.Background(), 0, ir.SamplePoint{1})
	assert.Equal(t, ir.OutcomeUndefined, rec.Outcome.Kind)
	assert.Contains(t, rec.Outcome.Reason, "panic")
}

func TestEvaluate_NaNIsNonFiniteNotUndefined(t *testing.T) {
	ev, err := New(spec(func(x []float64) (float64, error) {
		return math.Sqrt(x[0]), nil
	}, "x"))
	require.NoError(t, err)

	rec := ev.Evaluate(context.Background(), 0, ir.SamplePoint{-1})
	assert.Equal(t, ir.OutcomeNonFinite, rec.Outcome.Kind)
	assert.False(t, rec.Outcome.IsDefined())
}

func TestEvaluate_ArityMismatch(t *testing.T) {
	ev, err := New(spec(func(x []float64) (float64, error) { return 1, nil }, "a", "b"))
	require.NoError(t, err)

	rec := ev.Evaluate(context.Background(), 0, ir.SamplePoint{1})
	assert.Equal(t, ir.OutcomeUndefined, rec.Outcome.Kind)
	assert.Contains(t, rec.Outcome.Reason, ReasonArity)
}

func TestEvaluate_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	ev, err := New(spec(func(x []float64) (float64, error) {
		<-release
		return 1, nil
	}, "x"), WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	rec := ev.Evaluate(context.Background(), 0, ir.SamplePoint{1})
	assert.Equal(t, ir.Undefined(ReasonTimeout).Kind, rec.Outcome.Kind)
	assert.Equal(t, ReasonTimeout, rec.Outcome.Reason)
}

func TestEvaluate_FastWithinTimeout(t *testing.T) {
	ev, err := New(spec(func(x []float64) (float64, error) { return x[0] + 1, nil }, "x"),
		WithTimeout(time.Second))
	require.NoError(t, err)

	rec := ev.Evaluate(context.Background(), 0, ir.SamplePoint{1})
	assert.Equal(t, 2.0, rec.Outcome.Value)
}

func TestEvaluate_CancelledContext(t *testing.T) {
	called := false
	ev, err := New(spec(func(x []float64) (float64, error) {
		called = true
		return 1, nil
	}, "x"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := ev.Evaluate(ctx, 0, ir.SamplePoint{1})
	assert.False(t, called)
	assert.Equal(t, ReasonCancelled, rec.Outcome.Reason)
}

func TestEvaluate_ModelCannotMutateInput(t *testing.T) {
	ev, err := New(spec(func(x []float64) (float64, error) {
		x[0] = 999
		return 0, nil
	}, "x"))
	require.NoError(t, err)

	pt := ir.SamplePoint{1}
	rec := ev.Evaluate(context.Background(), 0, pt)
	assert.Equal(t, ir.SamplePoint{1}, rec.Input)
	assert.Equal(t, ir.SamplePoint{1}, pt)
}
