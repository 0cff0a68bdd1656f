package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/upbb/internal/ir"
	"github.com/roach88/upbb/internal/partition"
)

func TestRunError_Format(t *testing.T) {
	err := &RunError{
		Code:      ErrCodeUnknownMethod,
		RunID:     "run-1",
		Method:    "bisection",
		N:         4,
		Variables: []string{"L", "F"},
		Err:       errors.New("no such method"),
	}
	assert.Equal(t, "UNKNOWN_METHOD: no such method (method=bisection, n=4, variables=[L, F])", err.Error())

	bare := &RunError{Code: ErrCodeStorage, Err: errors.New("disk full")}
	assert.Equal(t, "STORAGE: disk full", bare.Error())
}

func TestRunError_Unwrap(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &RunError{Code: ErrCodeEmptyInput, Err: partition.ErrEmptyInput})

	assert.True(t, IsEmptyInput(err))
	assert.True(t, IsRunError(err, ErrCodeEmptyInput))
	assert.False(t, IsRunError(err, ErrCodeStorage))
	assert.False(t, IsRunError(errors.New("plain"), ErrCodeEmptyInput))
}

func TestCancelledError(t *testing.T) {
	err := &CancelledError{RunID: "run-1", Evaluated: 3, Planned: 10, Cause: context.Canceled}

	assert.Equal(t, "run run-1 cancelled after 3 of 10 evaluations: context canceled", err.Error())
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, IsCancelled(fmt.Errorf("outer: %w", err)))
	assert.False(t, IsCancelled(context.Canceled))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "NO_VALID_RESULT", ErrorCode(&RunError{Code: ErrCodeNoValidResult}))
	assert.Equal(t, CodeCancelled, ErrorCode(&CancelledError{Cause: context.Canceled}))
	assert.Equal(t, "", ErrorCode(errors.New("plain")))
	assert.Equal(t, "", ErrorCode(nil))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want RunErrorCode
	}{
		{"empty", partition.ErrEmptyInput, ErrCodeEmptyInput},
		{"unknown method", &partition.UnknownMethodError{Method: "x"}, ErrCodeUnknownMethod},
		{"essence", &partition.UnsupportedEssenceError{Variable: "eps", Essence: ir.EssenceDistribution}, ErrCodeUnsupportedInput},
		{"other", errors.New("boom"), ErrCodeInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}
