package harness

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/upbb/internal/ir"
	"github.com/roach88/upbb/internal/models"
)

const sumProblem = "testdata/problems/sum.cue"

func TestRun_TestdataScenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(f)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertion failures:\n%s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRun_FixedRunID(t *testing.T) {
	scenario := &Scenario{
		Name:       "fixed_id",
		Problem:    sumProblem,
		Function:   &FunctionDef{Kind: FuncProduct},
		RunID:      "run-fixed",
		Assertions: []Assertion{{Type: AssertReplay}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, "run-fixed", result.RunID)

	// x·y over the corners of [0,1]×[2,3].
	require.NotNil(t, result.Output)
	assert.Equal(t, 0.0, result.Output.Lo)
	assert.Equal(t, 3.0, result.Output.Hi)
	assert.Equal(t, ir.MethodEndpoint, result.Output.Method)
	assert.Equal(t, []string{"x", "y"}, result.Output.Variables)
}

func TestRun_DefaultRunID(t *testing.T) {
	scenario := &Scenario{
		Name:       "default_id",
		Problem:    sumProblem,
		Function:   &FunctionDef{Kind: FuncConstant, Value: 1},
		Assertions: []Assertion{{Type: AssertReplay}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, "test-run-default", result.RunID)
}

func TestRun_Deterministic(t *testing.T) {
	scenario := &Scenario{
		Name:      "mc",
		Problem:   sumProblem,
		Function:  &FunctionDef{Kind: FuncLinear, Coefficients: []float64{0, 1, 1}},
		Overrides: Overrides{Method: strPtr("monte_carlo"), N: intPtr(64), Seed: u64Ptr(7), Workers: intPtr(3)},
		Assertions: []Assertion{
			{Type: AssertWithin, Lo: f64(2), Hi: f64(4)},
			{Type: AssertCounts, Samples: i64(64)},
			{Type: AssertReplay},
		},
	}

	first, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, first.Pass, first.Errors)

	second, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, first.Output, second.Output)
	assert.Equal(t, first.Trace, second.Trace)
}

func TestRun_RegisteredModel(t *testing.T) {
	_, ok := models.Lookup("cantilever_beam_deflection")
	require.True(t, ok)

	scenario, err := LoadScenario("testdata/scenarios/beam_endpoint.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, "test-run-beam", result.RunID)
	assert.Len(t, result.Trace, 16)
}

func TestRun_UnregisteredModel(t *testing.T) {
	scenario := &Scenario{
		Name:       "no_model",
		Problem:    sumProblem,
		Assertions: []Assertion{{Type: AssertReplay}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUnknownModel))
}

func TestRun_UnknownPropagation(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_name",
		Problem:     sumProblem,
		Propagation: "product",
		Function:    &FunctionDef{Kind: FuncConstant, Value: 1},
		Assertions:  []Assertion{{Type: AssertReplay}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRun_MissingProblem(t *testing.T) {
	scenario := &Scenario{
		Name:       "missing",
		Problem:    filepath.Join(t.TempDir(), "nope.cue"),
		Function:   &FunctionDef{Kind: FuncConstant, Value: 1},
		Assertions: []Assertion{{Type: AssertReplay}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile problem")
}

func TestRun_PlanningFailureNotRecorded(t *testing.T) {
	scenario := &Scenario{
		Name:       "unknown_method",
		Problem:    sumProblem,
		Function:   &FunctionDef{Kind: FuncConstant, Value: 1},
		Overrides:  Overrides{Method: strPtr("bisection")},
		Assertions: []Assertion{{Type: AssertReplay}},
	}

	result, err := Run(scenario)
	require.NoError(t, err, "run failures are reported through the result")
	assert.False(t, result.Pass)
	assert.Equal(t, "UNKNOWN_METHOD", result.ErrorCode)
	assert.Nil(t, result.Output)
	assert.Empty(t, result.Trace)
	assert.Equal(t, "run not recorded", result.Replay.Error)
}

func TestRun_AssertionFailuresCollected(t *testing.T) {
	scenario := &Scenario{
		Name:     "wrong",
		Problem:  sumProblem,
		Function: &FunctionDef{Kind: FuncLinear, Coefficients: []float64{0, 1, 1}},
		Assertions: []Assertion{
			{Type: AssertEnclosure, Lo: f64(0), Hi: f64(1)},
			{Type: AssertCounts, Samples: i64(3)},
			{Type: AssertReplay},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Len(t, result.Errors, 2)
}

func TestResolveFunction_FailBelow(t *testing.T) {
	spec, err := resolveFunction(ir.Problem{}, &FunctionDef{
		Kind:      FuncConstant,
		Value:     5,
		FailBelow: f64(1),
	})
	require.NoError(t, err)

	v, err := spec.Fn([]float64{2, 3})
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)

	_, err = spec.Fn([]float64{2, 0.5})
	assert.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	prop := ir.PropagationSpec{Method: ir.MethodEndpoint, N: 0, Workers: 1}
	applyOverrides(&prop, Overrides{Method: strPtr("montecarlo"), N: intPtr(10), Seed: u64Ptr(3)})

	assert.Equal(t, ir.MethodMonteCarlo, prop.Method, "alias resolved")
	assert.Equal(t, 10, prop.N)
	assert.Equal(t, uint64(3), prop.Seed)
	assert.Equal(t, 1, prop.Workers, "unset override keeps the problem value")

	applyOverrides(&prop, Overrides{Method: strPtr("bisection")})
	assert.Equal(t, ir.Method("bisection"), prop.Method)
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func u64Ptr(u uint64) *uint64 { return &u }
