package harness

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/upbb/internal/ir"
)

func endpointSumScenario() *Scenario {
	return &Scenario{
		Name:        "endpoint_sum",
		Description: "Endpoint enclosure of x + y",
		Problem:     sumProblem,
		Function:    &FunctionDef{Kind: FuncLinear, Coefficients: []float64{0, 1, 1}},
		RunID:       "test-run-golden",
		Assertions: []Assertion{
			{Type: AssertEnclosure, Lo: f64(2), Hi: f64(4)},
		},
	}
}

func TestGolden_EndpointSum(t *testing.T) {
	require.NoError(t, RunWithGolden(t, endpointSumScenario()))
}

func TestSnapshot_Content(t *testing.T) {
	result, err := Run(endpointSumScenario())
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	data, err := Snapshot("endpoint_sum", result.RunID, result)
	require.NoError(t, err)

	var snap map[string]any
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "endpoint_sum", snap["scenario_name"])
	assert.Equal(t, "test-run-golden", snap["run_id"])
	assert.NotContains(t, snap, "error_code")

	output, ok := snap["output"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2.0, output["lo"])
	assert.Equal(t, 4.0, output["hi"])
	assert.Equal(t, "endpoint", output["method"])

	trace, ok := snap["trace"].([]any)
	require.True(t, ok)
	assert.Len(t, trace, 4)
}

func TestSnapshot_Deterministic(t *testing.T) {
	a, err := Run(endpointSumScenario())
	require.NoError(t, err)
	b, err := Run(endpointSumScenario())
	require.NoError(t, err)

	snapA, err := Snapshot("endpoint_sum", a.RunID, a)
	require.NoError(t, err)
	snapB, err := Snapshot("endpoint_sum", b.RunID, b)
	require.NoError(t, err)
	assert.Equal(t, string(snapA), string(snapB))
}

func TestSnapshot_FailedRun(t *testing.T) {
	r := NewResult()
	r.ErrorCode = "NO_VALID_RESULT"
	r.AddRecordTrace(ir.EvaluationRecord{
		Index:   0,
		Input:   ir.SamplePoint{1},
		Outcome: ir.Undefined("boom"),
	})
	r.AddRecordTrace(ir.EvaluationRecord{
		Index:   1,
		Input:   ir.SamplePoint{2},
		Outcome: ir.Defined(math.Inf(1)),
	})

	data, err := Snapshot("failed", "", r)
	require.NoError(t, err, "undefined and non-finite values are omitted")

	s := string(data)
	assert.Contains(t, s, `"error_code":"NO_VALID_RESULT"`)
	assert.Contains(t, s, `"reason":"boom"`)
	assert.NotContains(t, s, `"output"`)
	assert.NotContains(t, s, `"run_id"`)
}
