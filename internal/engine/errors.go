package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/upbb/internal/aggregate"
	"github.com/roach88/upbb/internal/ir"
	"github.com/roach88/upbb/internal/partition"
)

// ErrRunConsumed is returned by Execute on a Run that has already executed.
// Runs are single-use; construct a new one to re-execute.
var ErrRunConsumed = errors.New("engine: run already executed")

// RunError represents an unrecoverable failure of a propagation run.
//
// RunError carries the run parameters for diagnostics and wraps the
// underlying cause, so callers can still match partition or aggregate
// error types with errors.As.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// RunID identifies the failed run.
	RunID string

	// Method, N and Variables describe the run configuration.
	Method    ir.Method
	N         int
	Variables []string

	// Err is the underlying cause.
	Err error
}

// RunErrorCode categorizes run failures.
type RunErrorCode string

const (
	// ErrCodeInvalidConfig indicates the run configuration failed validation.
	ErrCodeInvalidConfig RunErrorCode = "INVALID_CONFIG"

	// ErrCodeEmptyInput indicates the run was given no input variables.
	ErrCodeEmptyInput RunErrorCode = "EMPTY_INPUT"

	// ErrCodeUnknownMethod indicates the method identifier is not registered.
	ErrCodeUnknownMethod RunErrorCode = "UNKNOWN_METHOD"

	// ErrCodeUnsupportedInput indicates an input whose essence cannot be propagated.
	ErrCodeUnsupportedInput RunErrorCode = "UNSUPPORTED_INPUT"

	// ErrCodeSampleBudget indicates the plan exceeds the configured sample budget.
	ErrCodeSampleBudget RunErrorCode = "SAMPLE_BUDGET"

	// ErrCodeArityMismatch indicates the function arity differs from the input count.
	ErrCodeArityMismatch RunErrorCode = "ARITY_MISMATCH"

	// ErrCodeNoValidResult indicates every evaluation was undefined or non-finite.
	ErrCodeNoValidResult RunErrorCode = "NO_VALID_RESULT"

	// ErrCodeStorage indicates raw data could not be persisted.
	ErrCodeStorage RunErrorCode = "STORAGE"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v", e.Code, e.Err)
	if e.Method != "" {
		fmt.Fprintf(&b, " (method=%s", e.Method)
		if e.N > 0 {
			fmt.Fprintf(&b, ", n=%d", e.N)
		}
		if len(e.Variables) > 0 {
			fmt.Fprintf(&b, ", variables=[%s]", strings.Join(e.Variables, ", "))
		}
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Err
}

// CancelledError is returned when a run is aborted through its context.
// It is distinct from RunError: cancellation is neither success nor failure,
// and no partial result accompanies it.
type CancelledError struct {
	RunID     string
	Evaluated int64 // Samples evaluated before cancellation
	Planned   int64
	Cause     error
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	return fmt.Sprintf("run %s cancelled after %d of %d evaluations: %v",
		e.RunID, e.Evaluated, e.Planned, e.Cause)
}

// Unwrap returns the context error that caused the cancellation.
func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// IsCancelled returns true if the error is a CancelledError.
// Uses errors.As to handle wrapped errors.
func IsCancelled(err error) bool {
	var ce *CancelledError
	return errors.As(err, &ce)
}

// CodeCancelled is the code ErrorCode reports for a CancelledError.
const CodeCancelled = "CANCELLED"

// ErrorCode returns the category of err for reporting: the RunError code,
// CodeCancelled, or "" for any other error.
func ErrorCode(err error) string {
	var re *RunError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	if IsCancelled(err) {
		return CodeCancelled
	}
	return ""
}

// IsRunError returns true if err is a RunError with the given code.
func IsRunError(err error, code RunErrorCode) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsNoValidResult returns true if the run failed because no evaluation
// produced a defined value.
func IsNoValidResult(err error) bool {
	return aggregate.IsNoValidResult(err)
}

// IsUnknownMethod returns true if the run failed on an unregistered method.
func IsUnknownMethod(err error) bool {
	return partition.IsUnknownMethod(err)
}

// IsEmptyInput returns true if the run failed because it had no inputs.
func IsEmptyInput(err error) bool {
	return errors.Is(err, partition.ErrEmptyInput)
}

// classify maps a planning error to its RunErrorCode.
func classify(err error) RunErrorCode {
	var (
		unsupported *partition.UnsupportedEssenceError
		count       *partition.InvalidCountError
	)
	switch {
	case errors.Is(err, partition.ErrEmptyInput):
		return ErrCodeEmptyInput
	case partition.IsUnknownMethod(err):
		return ErrCodeUnknownMethod
	case partition.IsSampleBudget(err):
		return ErrCodeSampleBudget
	case errors.As(err, &unsupported):
		return ErrCodeUnsupportedInput
	case errors.As(err, &count):
		return ErrCodeInvalidConfig
	case aggregate.IsNoValidResult(err):
		return ErrCodeNoValidResult
	}
	return ErrCodeInvalidConfig
}
