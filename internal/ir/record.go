package ir

import (
	"fmt"
	"math"
)

// Func is a black-box model. It receives one value per input, in the
// declared parameter order, and returns one scalar.
//
// Returning an error is the expected way to report an input combination
// the model cannot handle; it is not a contract violation.
type Func func(x []float64) (float64, error)

// FunctionSpec binds a Func to its ordered parameter names.
type FunctionSpec struct {
	Name   string
	Params []string
	Fn     Func
}

// Arity returns the number of declared parameters.
func (f FunctionSpec) Arity() int {
	return len(f.Params)
}

// SamplePoint is one concrete input vector, one value per input variable.
type SamplePoint []float64

// Clone returns an independent copy of the point.
func (p SamplePoint) Clone() SamplePoint {
	return append(SamplePoint(nil), p...)
}

// OutcomeKind labels the result of one evaluation.
type OutcomeKind string

const (
	// OutcomeDefined is a finite scalar result.
	OutcomeDefined OutcomeKind = "defined"

	// OutcomeNonFinite is a NaN or infinity returned by the model itself.
	OutcomeNonFinite OutcomeKind = "non_finite"

	// OutcomeUndefined marks an evaluation that failed: the model returned
	// an error, panicked, or timed out.
	OutcomeUndefined OutcomeKind = "undefined"
)

// ParseOutcomeKind converts a persisted string back to an OutcomeKind.
func ParseOutcomeKind(s string) (OutcomeKind, error) {
	switch OutcomeKind(s) {
	case OutcomeDefined, OutcomeNonFinite, OutcomeUndefined:
		return OutcomeKind(s), nil
	}
	return "", fmt.Errorf("unknown outcome kind %q", s)
}

// Outcome is the typed result of one evaluation.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Value  float64     `json:"value"`
	Reason string      `json:"reason,omitempty"`
}

// Defined returns a defined outcome, or a non-finite one if v is NaN/Inf.
func Defined(v float64) Outcome {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Outcome{Kind: OutcomeNonFinite, Value: v, Reason: fmt.Sprintf("model returned %v", v)}
	}
	return Outcome{Kind: OutcomeDefined, Value: v}
}

// Undefined returns the failure marker with a diagnostic reason.
func Undefined(reason string) Outcome {
	return Outcome{Kind: OutcomeUndefined, Value: math.NaN(), Reason: reason}
}

// IsDefined reports whether the outcome contributes to aggregation.
func (o Outcome) IsDefined() bool {
	return o.Kind == OutcomeDefined
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeDefined:
		return fmt.Sprintf("%g", o.Value)
	case OutcomeNonFinite:
		return fmt.Sprintf("non-finite(%v)", o.Value)
	default:
		if o.Reason != "" {
			return "undefined(" + o.Reason + ")"
		}
		return "undefined"
	}
}

// EvaluationRecord pairs one sample with its outcome.
// Index is the sample's position in the partition plan; records are
// always consumed in ascending Index order.
type EvaluationRecord struct {
	Index   int64       `json:"index"`
	Input   SamplePoint `json:"input"`
	Outcome Outcome     `json:"outcome"`
}
