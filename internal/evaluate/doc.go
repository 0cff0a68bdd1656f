// Package evaluate runs a black-box model on one sample point and converts
// every failure into a typed ir.Outcome.
//
// The Evaluator is the isolation boundary between untrusted model code and
// the propagation engine. Errors returned by the model, panics, and
// per-evaluation timeouts all become ir.OutcomeUndefined with a reason; a
// NaN or infinity returned by the model becomes ir.OutcomeNonFinite. No
// model failure ever escapes as a Go error or panic.
package evaluate
