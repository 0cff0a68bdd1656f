package harness

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/upbb/internal/ir"
)

// DefaultTolerance is the absolute tolerance used when an assertion gives none.
const DefaultTolerance = 1e-12

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Output   *ir.Result
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	// Header with assertion type
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Output != nil {
		fmt.Fprintf(&buf, "\nOutput: %s\n", e.Output)
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against result.
// Returns a message for each failed assertion (does not fail-fast).
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertEnclosure:
			err = assertEnclosure(result, assertion)
		case AssertContains:
			err = assertContains(result, assertion)
		case AssertWithin:
			err = assertWithin(result, assertion)
		case AssertCounts:
			err = assertCounts(result, assertion)
		case AssertArgMin:
			err = assertArg(result, assertion, true)
		case AssertArgMax:
			err = assertArg(result, assertion, false)
		case AssertRecord:
			err = assertRecord(result, assertion)
		case AssertError:
			err = assertError(result, assertion)
		case AssertReplay:
			err = assertReplay(result)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// requireOutput returns an AssertionError if the run produced no enclosure.
func requireOutput(result *Result, typ string) error {
	if result.Output != nil {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: "a successful run",
		Actual:   fmt.Sprintf("run failed: %s", result.ErrorMessage),
	}
}

func tolerance(a Assertion) float64 {
	if a.Tolerance > 0 {
		return a.Tolerance
	}
	return DefaultTolerance
}

func near(want, got, tol float64) bool {
	return math.Abs(want-got) <= tol
}

func assertEnclosure(result *Result, a Assertion) error {
	if err := requireOutput(result, AssertEnclosure); err != nil {
		return err
	}
	tol := tolerance(a)
	out := result.Output
	if !near(*a.Lo, out.Lo, tol) || !near(*a.Hi, out.Hi, tol) {
		return &AssertionError{
			Type:     AssertEnclosure,
			Expected: fmt.Sprintf("[%g, %g] ± %g", *a.Lo, *a.Hi, tol),
			Actual:   fmt.Sprintf("[%g, %g]", out.Lo, out.Hi),
			Output:   out,
		}
	}
	return nil
}

func assertContains(result *Result, a Assertion) error {
	if err := requireOutput(result, AssertContains); err != nil {
		return err
	}
	tol := tolerance(a)
	out := result.Output
	if out.Lo > *a.Lo+tol || out.Hi < *a.Hi-tol {
		return &AssertionError{
			Type:     AssertContains,
			Expected: fmt.Sprintf("enclosure containing [%g, %g]", *a.Lo, *a.Hi),
			Actual:   fmt.Sprintf("[%g, %g]", out.Lo, out.Hi),
			Output:   out,
		}
	}
	return nil
}

func assertWithin(result *Result, a Assertion) error {
	if err := requireOutput(result, AssertWithin); err != nil {
		return err
	}
	tol := tolerance(a)
	out := result.Output
	if out.Lo < *a.Lo-tol || out.Hi > *a.Hi+tol {
		return &AssertionError{
			Type:     AssertWithin,
			Expected: fmt.Sprintf("enclosure within [%g, %g]", *a.Lo, *a.Hi),
			Actual:   fmt.Sprintf("[%g, %g]", out.Lo, out.Hi),
			Output:   out,
		}
	}
	return nil
}

// assertCounts checks the tallies. They are taken from the trace rather
// than the output so that failed runs can be checked too.
func assertCounts(result *Result, a Assertion) error {
	var samples, undefined, nonFinite int64
	for _, ev := range result.Trace {
		samples++
		switch ev.Outcome {
		case ir.OutcomeUndefined:
			undefined++
		case ir.OutcomeNonFinite:
			nonFinite++
		}
	}

	var mismatches []string
	check := func(name string, want *int64, got int64) {
		if want != nil && *want != got {
			mismatches = append(mismatches, fmt.Sprintf("%s=%d (want %d)", name, got, *want))
		}
	}
	check("samples", a.Samples, samples)
	check("undefined", a.Undefined, undefined)
	check("non_finite", a.NonFinite, nonFinite)

	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertCounts,
			Expected: "matching tallies",
			Actual:   strings.Join(mismatches, ", "),
			Output:   result.Output,
		}
	}
	return nil
}

func assertArg(result *Result, a Assertion, isMin bool) error {
	typ, point := AssertArgMax, []float64(nil)
	if isMin {
		typ = AssertArgMin
	}
	if err := requireOutput(result, typ); err != nil {
		return err
	}
	if isMin {
		point = result.Output.ArgMin
	} else {
		point = result.Output.ArgMax
	}

	tol := tolerance(a)
	match := len(point) == len(a.Point)
	for i := 0; match && i < len(point); i++ {
		match = near(a.Point[i], point[i], tol)
	}
	if !match {
		return &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("%v", a.Point),
			Actual:   fmt.Sprintf("%v", point),
			Output:   result.Output,
		}
	}
	return nil
}

func assertRecord(result *Result, a Assertion) error {
	idx := *a.Index
	if idx < 0 || idx >= int64(len(result.Trace)) {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("record at index %d", idx),
			Actual:   fmt.Sprintf("%d records", len(result.Trace)),
		}
	}
	ev := result.Trace[idx]
	if string(ev.Outcome) != a.Outcome {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("record %d outcome %s", idx, a.Outcome),
			Actual:   fmt.Sprintf("outcome %s (%s)", ev.Outcome, ev.Reason),
		}
	}
	if a.Value != nil && !near(*a.Value, ev.Value, tolerance(a)) {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("record %d value %g", idx, *a.Value),
			Actual:   fmt.Sprintf("value %g", ev.Value),
		}
	}
	return nil
}

func assertError(result *Result, a Assertion) error {
	if result.ErrorCode != a.Code {
		actual := "run succeeded"
		if result.ErrorCode != "" {
			actual = fmt.Sprintf("%s: %s", result.ErrorCode, result.ErrorMessage)
		}
		return &AssertionError{
			Type:     AssertError,
			Expected: fmt.Sprintf("error code %s", a.Code),
			Actual:   actual,
			Output:   result.Output,
		}
	}
	return nil
}

func assertReplay(result *Result) error {
	r := result.Replay
	if r.Complete && r.ResultsMatch && r.Missing == 0 && r.Corrupt == 0 {
		return nil
	}
	actual := fmt.Sprintf("complete=%t results_match=%t missing=%d corrupt=%d",
		r.Complete, r.ResultsMatch, r.Missing, r.Corrupt)
	if r.Error != "" {
		actual += ": " + r.Error
	}
	return &AssertionError{
		Type:     AssertReplay,
		Expected: "complete raw data replaying to the same result",
		Actual:   actual,
		Output:   result.Output,
	}
}
