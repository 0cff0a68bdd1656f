package partition

import (
	"errors"
	"fmt"

	"github.com/roach88/upbb/internal/ir"
)

// ErrEmptyInput is returned when a plan is requested for zero inputs.
var ErrEmptyInput = errors.New("partition: no input quantities")

// UnknownMethodError is returned for an unrecognised method identifier.
type UnknownMethodError struct {
	Method string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("partition: unknown method %q (valid: %v)", e.Method, ir.ValidMethods)
}

// UnsupportedEssenceError is returned when an input cannot be propagated
// by interval-style methods (e.g. a distribution).
type UnsupportedEssenceError struct {
	Variable string
	Essence  ir.Essence
}

func (e *UnsupportedEssenceError) Error() string {
	return fmt.Sprintf("partition: input %q has essence %q; only interval and scalar inputs can be propagated",
		e.Variable, e.Essence)
}

// InvalidCountError is returned for a negative or otherwise unusable n.
type InvalidCountError struct {
	Method ir.Method
	N      int
}

func (e *InvalidCountError) Error() string {
	return fmt.Sprintf("partition: invalid sample count %d for method %s", e.N, e.Method)
}

// SampleBudgetError is returned when a plan would exceed the configured
// maximum number of samples. It is detected before any evaluation.
type SampleBudgetError struct {
	Method    ir.Method
	N         int
	Variables int
	Limit     int64
}

func (e *SampleBudgetError) Error() string {
	return fmt.Sprintf("partition: %s plan with n=%d over %d inputs exceeds sample budget %d",
		e.Method, e.N, e.Variables, e.Limit)
}

// IsUnknownMethod reports whether err is an UnknownMethodError.
// Uses errors.As to handle wrapped errors.
func IsUnknownMethod(err error) bool {
	var ue *UnknownMethodError
	return errors.As(err, &ue)
}

// IsSampleBudget reports whether err is a SampleBudgetError.
func IsSampleBudget(err error) bool {
	var be *SampleBudgetError
	return errors.As(err, &be)
}
