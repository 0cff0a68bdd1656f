package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/upbb/internal/ir"
	"github.com/roach88/upbb/internal/models"
)

func TestEval_Positional(t *testing.T) {
	cmd := NewEvalCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, "cantilever_beam_deflection", "10", "0.0004", "11", "200")
	require.NoError(t, err)

	var result EvalResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ir.OutcomeDefined, result.Outcome)
	assert.Equal(t, []string{"L", "I", "F", "E"}, result.Params)
	require.NotNil(t, result.Value)
	assert.InDelta(t, 11000.0/240000.0, *result.Value, 1e-12)
}

func TestEval_ArgsObject(t *testing.T) {
	cmd := NewEvalCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, "cantilever_beam_deflection",
		"--args", `{"L": 10, "I": 0.0004, "F": 11, "E": 200}`)
	require.NoError(t, err)
	assert.Contains(t, out, "cantilever_beam_deflection([10 0.0004 11 200])")
	assert.Contains(t, out, "= 0.0458333")
}

func TestEval_UndefinedOutcome(t *testing.T) {
	cmd := NewEvalCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, "cantilever_beam_deflection", "--args", "[10, 0, 11, 200]")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result EvalResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(ir.OutcomeUndefined), resp.Error.Code)
	assert.Equal(t, ir.OutcomeUndefined, result.Outcome)
	assert.Contains(t, result.Reason, "degenerate beam section")
	assert.Nil(t, result.Value)
}

func TestEval_UnknownModel(t *testing.T) {
	cmd := NewEvalCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, "sum", "1", "2")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestParseEvalInput(t *testing.T) {
	spec, err := models.Default.Spec("cantilever_beam_stress")
	require.NoError(t, err)

	tests := []struct {
		name    string
		values  []string
		raw     string
		want    ir.SamplePoint
		wantErr string
	}{
		{name: "positional", values: []string{"1", "2.5"}, want: ir.SamplePoint{1, 2.5}},
		{name: "array", raw: "[1, 2, 3, 4]", want: ir.SamplePoint{1, 2, 3, 4}},
		{name: "object", raw: `{"F": 4, "I": 3, "L": 2, "y": 1}`, want: ir.SamplePoint{1, 2, 3, 4}},
		{name: "both", values: []string{"1"}, raw: "[1]", wantErr: "not both"},
		{name: "bad number", values: []string{"x"}, wantErr: "input 0"},
		{name: "missing param", raw: `{"y": 1, "L": 2, "I": 3}`, wantErr: `missing parameter "F"`},
		{name: "extra param", raw: `{"y": 1, "L": 2, "I": 3, "F": 4, "z": 5}`, wantErr: "names 5 values"},
		{name: "bad json", raw: `{`, wantErr: "invalid --args JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEvalInput(spec, tt.values, tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
