package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/upbb/internal/aggregate"
	"github.com/roach88/upbb/internal/ir"
	"github.com/roach88/upbb/internal/partition"
	"github.com/roach88/upbb/internal/store"
)

func beamInputs() []ir.Quantity {
	return []ir.Quantity{
		ir.MustInterval("beam length", "L", "m", 9.95, 10.05),
		ir.MustInterval("moment of inertia", "I", "m", 0.0003861591, 0.0005213425),
		ir.MustInterval("vertical force", "F", "kN", 11, 37),
		ir.MustInterval("elastic modulus", "E", "GPa", 200, 220),
	}
}

func deflection(x []float64) float64 {
	L, I, F, E := x[0], x[1], x[2], x[3]
	return F * L * L * L / (3 * E * 1e6 * I)
}

func deflectionSpec() ir.FunctionSpec {
	return ir.FunctionSpec{
		Name:   "deflection",
		Params: []string{"L", "I", "F", "E"},
		Fn: func(x []float64) (float64, error) {
			return deflection(x), nil
		},
	}
}

func constantSpec(c float64) ir.FunctionSpec {
	return ir.FunctionSpec{
		Name: "constant",
		Fn:   func([]float64) (float64, error) { return c, nil },
	}
}

func failingSpec() ir.FunctionSpec {
	return ir.FunctionSpec{
		Name: "failing",
		Fn:   func([]float64) (float64, error) { return 0, errors.New("singular") },
	}
}

func newTestRun(t *testing.T, vars []ir.Quantity, fn ir.FunctionSpec, cfg Config, opts ...RunOption) *Run {
	t.Helper()
	opts = append([]RunOption{WithRunIDGenerator(NewFixedGenerator("run-1"))}, opts...)
	run, err := NewRun(vars, fn, cfg, opts...)
	require.NoError(t, err)
	return run
}

func TestExecute_ConstantFunction(t *testing.T) {
	for _, m := range partition.Methods() {
		t.Run(string(m), func(t *testing.T) {
			run := newTestRun(t, beamInputs(), constantSpec(4.2), Config{Method: m, N: 2, Seed: 9})

			res, err := run.Execute(context.Background())
			require.NoError(t, err)

			assert.Equal(t, 4.2, res.Lo)
			assert.Equal(t, 4.2, res.Hi)
			assert.Equal(t, int64(0), res.Undefined)
			assert.Equal(t, StateCompleted, run.State())
		})
	}
}

func TestExecute_MonotoneBeamIsExact(t *testing.T) {
	vars := beamInputs()
	wantLo := deflection([]float64{vars[0].Lo(), vars[1].Hi(), vars[2].Lo(), vars[3].Hi()})
	wantHi := deflection([]float64{vars[0].Hi(), vars[1].Lo(), vars[2].Hi(), vars[3].Lo()})

	tests := []struct {
		method  ir.Method
		n       int
		samples int64
	}{
		{ir.MethodEndpoint, 0, 16},
		{ir.MethodSubinterval, 1, 16},
		{ir.MethodSubinterval, 3, 1296},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/n=%d", tt.method, tt.n), func(t *testing.T) {
			run := newTestRun(t, vars, deflectionSpec(), Config{Method: tt.method, N: tt.n})

			res, err := run.Execute(context.Background())
			require.NoError(t, err)

			assert.Equal(t, wantLo, res.Lo)
			assert.Equal(t, wantHi, res.Hi)
			assert.Equal(t, tt.samples, res.Samples)
			assert.Equal(t, []string{"L", "I", "F", "E"}, res.Variables)
			assert.Equal(t, ir.SamplePoint{vars[0].Lo(), vars[1].Hi(), vars[2].Lo(), vars[3].Hi()}, res.ArgMin)
		})
	}
}

func TestExecute_SampledWithinExactBounds(t *testing.T) {
	vars := beamInputs()
	exact := newTestRun(t, vars, deflectionSpec(), Config{Method: ir.MethodEndpoint})
	want, err := exact.Execute(context.Background())
	require.NoError(t, err)

	for _, m := range []ir.Method{ir.MethodMonteCarlo, ir.MethodLatinHypercube} {
		run := newTestRun(t, vars, deflectionSpec(), Config{Method: m, N: 200, Seed: 3})
		got, err := run.Execute(context.Background())
		require.NoError(t, err)

		assert.GreaterOrEqual(t, got.Lo, want.Lo, "method %s", m)
		assert.LessOrEqual(t, got.Hi, want.Hi, "method %s", m)
		assert.Equal(t, int64(200), got.Samples)
	}
}

func TestExecute_AllEvaluationsFail(t *testing.T) {
	run := newTestRun(t, beamInputs(), failingSpec(), Config{Method: ir.MethodEndpoint})

	res, err := run.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, ir.Result{}, res)

	assert.True(t, IsNoValidResult(err))
	assert.True(t, IsRunError(err, ErrCodeNoValidResult))

	var nv *aggregate.NoValidResultError
	require.True(t, errors.As(err, &nv))
	assert.Equal(t, int64(16), nv.Samples)
	assert.Equal(t, int64(16), nv.Undefined)
	assert.Equal(t, StateFailed, run.State())
}

func TestExecute_PartialFailures(t *testing.T) {
	spec := deflectionSpec()
	inner := spec.Fn
	spec.Fn = func(x []float64) (float64, error) {
		if x[2] > 30 { // F upper endpoint
			return 0, errors.New("beam yields")
		}
		return inner(x)
	}

	run := newTestRun(t, beamInputs(), spec, Config{Method: ir.MethodEndpoint})
	res, err := run.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(16), res.Samples)
	assert.Equal(t, int64(8), res.Undefined)
	assert.Equal(t, int64(8), res.Defined())

	vars := beamInputs()
	assert.Equal(t, deflection([]float64{vars[0].Hi(), vars[1].Lo(), vars[2].Lo(), vars[3].Lo()}), res.Hi)
}

func TestExecute_NonFiniteExcluded(t *testing.T) {
	spec := ir.FunctionSpec{Fn: func(x []float64) (float64, error) {
		if x[0] == 0 {
			return math.Inf(1), nil
		}
		return x[0], nil
	}}
	vars := []ir.Quantity{ir.MustInterval("x", "x", "", 0, 2)}

	run := newTestRun(t, vars, spec, Config{Method: ir.MethodSubinterval, N: 2})
	res, err := run.Execute(context.Background())
	require.NoError(t, err)

	// endpoints: 0, 1, 1, 2
	assert.Equal(t, 1.0, res.Lo)
	assert.Equal(t, 2.0, res.Hi)
	assert.Equal(t, int64(1), res.NonFinite)
	assert.Equal(t, int64(0), res.Undefined)
}

func TestExecute_Deterministic(t *testing.T) {
	cfg := Config{Method: ir.MethodMonteCarlo, N: 300, Seed: 11}

	a, err := newTestRun(t, beamInputs(), deflectionSpec(), cfg).Execute(context.Background())
	require.NoError(t, err)
	b, err := newTestRun(t, beamInputs(), deflectionSpec(), cfg).Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, a.Equal(b), "a=%v b=%v", a, b)
}

func TestExecute_ParallelMatchesSerial(t *testing.T) {
	spec := deflectionSpec()
	inner := spec.Fn
	spec.Fn = func(x []float64) (float64, error) {
		if x[0] > 10.04 && x[2] < 12 {
			return 0, errors.New("excluded corner")
		}
		return inner(x)
	}

	tests := []struct {
		method ir.Method
		n      int
	}{
		{ir.MethodSubinterval, 3},
		{ir.MethodMonteCarlo, 500},
	}
	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			base := t.TempDir()
			serialCfg := Config{Method: tt.method, N: tt.n, Seed: 5, SaveRawData: true, BasePath: base}
			parallelCfg := serialCfg
			parallelCfg.Workers = 8
			parallelCfg.BatchSize = 7

			serialRun, err := NewRun(beamInputs(), spec, serialCfg, WithRunIDGenerator(NewFixedGenerator("serial")))
			require.NoError(t, err)
			parallelRun, err := NewRun(beamInputs(), spec, parallelCfg, WithRunIDGenerator(NewFixedGenerator("parallel")))
			require.NoError(t, err)

			serial, err := serialRun.Execute(context.Background())
			require.NoError(t, err)
			parallel, err := parallelRun.Execute(context.Background())
			require.NoError(t, err)

			assert.True(t, serial.Equal(parallel), "serial=%v parallel=%v", serial, parallel)
			assert.Equal(t, readArtifact(t, serialRun.Artifact(), "serial"), readArtifact(t, parallelRun.Artifact(), "parallel"))
		})
	}
}

// readArtifact returns the record hashes of a run. Hashes compare
// undefined outcomes by kind and reason, where NaN values would not.
func readArtifact(t *testing.T, path, runID string) []string {
	t.Helper()
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	records, err := st.ReadRecords(context.Background(), runID)
	require.NoError(t, err)

	hashes := make([]string, len(records))
	for i, rec := range records {
		assert.Equal(t, int64(i), rec.Index)
		hashes[i], err = ir.RecordHash(rec)
		require.NoError(t, err)
	}
	return hashes
}

func TestExecute_PersistenceRoundTrip(t *testing.T) {
	base := t.TempDir()
	created := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	run := newTestRun(t, beamInputs(), deflectionSpec(),
		Config{Method: ir.MethodSubinterval, N: 2, SaveRawData: true, BasePath: base, OutputName: "deflection"},
		WithClock(func() time.Time { return created }),
	)

	res, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "run-1.db"), run.Artifact())

	state, err := ReplayArtifact(context.Background(), run.Artifact(), "")
	require.NoError(t, err)

	assert.True(t, state.IsComplete)
	assert.True(t, state.ResultsMatch)
	require.NotNil(t, state.Replayed)
	assert.True(t, state.Replayed.Equal(res))
	assert.Equal(t, int64(256), state.Records)
	assert.Empty(t, state.Corrupt)

	assert.Equal(t, "deflection", state.Run.Name)
	assert.Equal(t, ir.MethodSubinterval, state.Run.Method)
	assert.Equal(t, 2, state.Run.N)
	assert.True(t, created.Equal(state.Run.CreatedAt))
	assert.Equal(t, []string{"L", "I", "F", "E"}, state.Run.VariableLabels())
}

func TestExecute_Cancelled(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var calls atomic.Int64
			spec := ir.FunctionSpec{Fn: func(x []float64) (float64, error) {
				if calls.Add(1) == 10 {
					cancel()
				}
				return x[0], nil
			}}

			base := t.TempDir()
			run := newTestRun(t, beamInputs(), spec,
				Config{Method: ir.MethodSubinterval, N: 3, Workers: workers, SaveRawData: true, BasePath: base})

			res, err := run.Execute(ctx)
			require.Error(t, err)
			assert.Equal(t, ir.Result{}, res)
			assert.True(t, IsCancelled(err))
			assert.True(t, errors.Is(err, context.Canceled))
			assert.False(t, IsRunError(err, ErrCodeNoValidResult))
			assert.Equal(t, StateCancelled, run.State())

			var ce *CancelledError
			require.True(t, errors.As(err, &ce))
			assert.Less(t, ce.Evaluated, ce.Planned)

			st, err := store.Open(run.Artifact())
			require.NoError(t, err)
			defer st.Close()
			stored, err := st.ReadRun(context.Background(), "run-1")
			require.NoError(t, err)
			assert.Equal(t, store.StatusCancelled, stored.Status)
			assert.Nil(t, stored.Result)

			n, err := st.CountRecords(context.Background(), "run-1")
			require.NoError(t, err)
			assert.Equal(t, ce.Evaluated, n)
		})
	}
}

func TestExecute_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64
	spec := ir.FunctionSpec{Fn: func([]float64) (float64, error) {
		calls.Add(1)
		return 1, nil
	}}
	run := newTestRun(t, beamInputs(), spec, Config{})

	_, err := run.Execute(ctx)
	assert.True(t, IsCancelled(err))
	assert.Equal(t, int64(0), calls.Load())
}

func TestExecute_SingleUse(t *testing.T) {
	run := newTestRun(t, beamInputs(), constantSpec(1), Config{Method: ir.MethodEndpoint})

	_, err := run.Execute(context.Background())
	require.NoError(t, err)

	_, err = run.Execute(context.Background())
	assert.ErrorIs(t, err, ErrRunConsumed)
	assert.Equal(t, StateCompleted, run.State())
}

func TestExecute_SingleUseAfterFailure(t *testing.T) {
	run := newTestRun(t, beamInputs(), constantSpec(1), Config{Method: "genetic_opt"})

	_, err := run.Execute(context.Background())
	require.Error(t, err)

	_, err = run.Execute(context.Background())
	assert.ErrorIs(t, err, ErrRunConsumed)
	assert.Equal(t, StateFailed, run.State())
}

func TestExecute_PlanningErrors(t *testing.T) {
	dist, err := ir.New("load", "P", "kN", ir.EssenceDistribution, []float64{10, 2})
	require.NoError(t, err)

	tests := []struct {
		name  string
		vars  []ir.Quantity
		cfg   Config
		code  RunErrorCode
		check func(error) bool
	}{
		{"empty input", nil, Config{}, ErrCodeEmptyInput, IsEmptyInput},
		{"unknown method", beamInputs(), Config{Method: "genetic_opt"}, ErrCodeUnknownMethod, IsUnknownMethod},
		{"distribution input", []ir.Quantity{dist}, Config{}, ErrCodeUnsupportedInput, nil},
		{"sample budget", beamInputs(), Config{N: 20, MaxSamples: 1000}, ErrCodeSampleBudget, partition.IsSampleBudget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int64
			spec := ir.FunctionSpec{Fn: func([]float64) (float64, error) {
				calls.Add(1)
				return 0, nil
			}}
			run := newTestRun(t, tt.vars, spec, tt.cfg)

			_, err := run.Execute(context.Background())
			require.Error(t, err)
			assert.True(t, IsRunError(err, tt.code), "error %v", err)
			if tt.check != nil {
				assert.True(t, tt.check(err))
			}
			assert.Equal(t, StateFailed, run.State())
			assert.Equal(t, int64(0), calls.Load(), "no evaluation on planning failure")
		})
	}
}

func TestExecute_UnknownMethodNamesMethod(t *testing.T) {
	run := newTestRun(t, beamInputs(), constantSpec(1), Config{Method: "genetic_opt"})
	_, err := run.Execute(context.Background())
	assert.Contains(t, err.Error(), "genetic_opt")
	assert.Contains(t, err.Error(), "L, I, F, E")
}

func TestExecute_ArityMismatch(t *testing.T) {
	spec := deflectionSpec()
	run := newTestRun(t, beamInputs()[:3], spec, Config{})

	_, err := run.Execute(context.Background())
	assert.True(t, IsRunError(err, ErrCodeArityMismatch))
}

func TestExecute_Timeout(t *testing.T) {
	spec := ir.FunctionSpec{Fn: func(x []float64) (float64, error) {
		if x[0] > 0.5 {
			time.Sleep(200 * time.Millisecond)
		}
		return x[0], nil
	}}
	vars := []ir.Quantity{ir.MustInterval("x", "x", "", 0, 1)}

	run := newTestRun(t, vars, spec, Config{Method: ir.MethodEndpoint, Timeout: 20 * time.Millisecond})
	res, err := run.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.Hi)
	assert.Equal(t, int64(1), res.Undefined)
}

func TestExecute_StateDuringEvaluation(t *testing.T) {
	var run *Run
	var seen State
	spec := ir.FunctionSpec{Fn: func([]float64) (float64, error) {
		seen = run.State()
		return 1, nil
	}}
	run = newTestRun(t, beamInputs()[:1], spec, Config{Method: ir.MethodEndpoint})
	assert.Equal(t, StateConfigured, run.State())

	_, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateEvaluating, seen)
}

func TestExecute_Progress(t *testing.T) {
	var got []int64
	run := newTestRun(t, beamInputs(), constantSpec(1), Config{Method: ir.MethodEndpoint, Workers: 3},
		WithProgress(func(done, total int64) {
			assert.Equal(t, int64(16), total)
			got = append(got, done)
		}))

	_, err := run.Execute(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 16)
	for i, d := range got {
		assert.Equal(t, int64(i+1), d)
	}
}

type failingRecorder struct {
	appendErr   error
	completeErr error
	appended    int
	failed      string
	failText    string
}

func (r *failingRecorder) BeginRun(context.Context, store.Run) error { return nil }
func (r *failingRecorder) AppendRecords(_ context.Context, _ string, records []ir.EvaluationRecord) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	r.appended += len(records)
	return nil
}
func (r *failingRecorder) CompleteRun(context.Context, string, ir.Result) error { return r.completeErr }
func (r *failingRecorder) FailRun(_ context.Context, _ string, status, errText string) error {
	r.failed = status
	r.failText = errText
	return nil
}

func TestExecute_StorageFailureIsVisible(t *testing.T) {
	rec := &failingRecorder{appendErr: errors.New("disk full")}
	run := newTestRun(t, beamInputs(), constantSpec(1), Config{Method: ir.MethodEndpoint}, WithRecorder(rec))

	_, err := run.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, IsRunError(err, ErrCodeStorage))
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, store.StatusFailed, rec.failed)
	assert.Equal(t, StateFailed, run.State())
}

func TestExecute_CompleteFailureMarksRunFailed(t *testing.T) {
	rec := &failingRecorder{completeErr: errors.New("database is locked")}
	run := newTestRun(t, beamInputs(), constantSpec(1), Config{Method: ir.MethodEndpoint}, WithRecorder(rec))

	_, err := run.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, IsRunError(err, ErrCodeStorage))
	assert.Equal(t, 16, rec.appended, "records are kept")
	assert.Equal(t, store.StatusFailed, rec.failed)
	assert.Contains(t, rec.failText, "database is locked")
	assert.Equal(t, StateFailed, run.State())
}

func TestNewRun_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative workers", Config{Workers: -1}},
		{"too many workers", Config{Workers: MaxWorkers + 1}},
		{"negative n", Config{N: -2}},
		{"negative timeout", Config{Timeout: -time.Second}},
		{"persistence without base path", Config{SaveRawData: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRun(beamInputs(), constantSpec(1), tt.cfg)
			assert.True(t, IsRunError(err, ErrCodeInvalidConfig), "error %v", err)
		})
	}
}

func TestNewRun_NilFunction(t *testing.T) {
	_, err := NewRun(beamInputs(), ir.FunctionSpec{Name: "nothing"}, Config{})
	assert.True(t, IsRunError(err, ErrCodeInvalidConfig))
}

func TestNewRun_CopiesInputs(t *testing.T) {
	vars := beamInputs()
	run := newTestRun(t, vars, constantSpec(1), Config{Method: ir.MethodEndpoint})
	vars[0] = ir.MustInterval("other", "o", "", 0, 1)

	res, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "L", res.Variables[0])
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "configured", StateConfigured.String())
	assert.Equal(t, "cancelled", StateCancelled.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateEvaluating.Terminal())
}
