package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/upbb/internal/compiler"
)

func TestValidate_Valid(t *testing.T) {
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, beamProblem)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 2 propagation(s) valid")
}

func TestValidate_ValidJSON(t *testing.T) {
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, problemsDir)
	require.NoError(t, err)

	var result ValidationResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Valid)
	assert.Equal(t, 2, result.Propagations)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		problem string
		code    string
	}{
		{
			name: "unknown model",
			problem: `
quantity: x: bounds: [0, 1]
propagation: p: { model: "nope", vars: ["x"] }
`,
			code: compiler.ErrUnknownModel,
		},
		{
			name: "arity mismatch",
			problem: `
quantity: x: bounds: [0, 1]
propagation: p: { model: "cantilever_beam_deflection", vars: ["x"] }
`,
			code: compiler.ErrModelArity,
		},
		{
			name: "undeclared input",
			problem: `
quantity: x: bounds: [0, 1]
propagation: p: { model: "cantilever_beam_deflection", vars: ["x", "y", "z", "w"] }
`,
			code: compiler.ErrUnknownInput,
		},
		{
			name: "unknown method",
			problem: `
quantity: x: bounds: [0, 1]
propagation: p: { model: "cantilever_beam_deflection", vars: ["x", "x", "x", "x"], method: "bisection" }
`,
			code: compiler.ErrUnknownMethod,
		},
		{
			name: "negative workers",
			problem: `
quantity: x: bounds: [0, 1]
quantity: y: bounds: [0, 1]
quantity: z: bounds: [0, 1]
quantity: w: bounds: [0, 1]
propagation: p: { model: "cantilever_beam_deflection", vars: ["x", "y", "z", "w"], workers: -1 }
`,
			code: compiler.ErrNegativeWorkers,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeProblem(t, tt.problem)
			cmd := NewValidateCommand(&RootOptions{Format: "json"})
			out, err := execute(t, cmd, path)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))

			var result ValidationResult
			resp := decodeResponse(t, out, &result)
			assert.Equal(t, "error", resp.Status)
			assert.False(t, result.Valid)

			var codes []string
			for _, e := range result.Errors {
				codes = append(codes, e.Code)
			}
			assert.Contains(t, codes, tt.code)
		})
	}
}

func TestValidate_FieldPrefixedWithPropagation(t *testing.T) {
	path := writeProblem(t, `
quantity: x: bounds: [0, 1]
propagation: mine: { model: "nope", vars: ["x"] }
`)
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, path)
	require.Error(t, err)

	var result ValidationResult
	decodeResponse(t, out, &result)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "mine.model", result.Errors[0].Field)
}

func TestValidate_CompileErrorsCollected(t *testing.T) {
	path := writeProblem(t, `
quantity: x: bounds: [3, 1]
quantity: y: bounds: [0, 1]
propagation: p: { model: "cantilever_beam_deflection", vars: ["y", "y", "y", "y"] }
`)
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, ErrCodeInvalidBounds)
}

func TestValidate_NotFound(t *testing.T) {
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, "/nonexistent")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}
