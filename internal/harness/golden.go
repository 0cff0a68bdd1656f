package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/upbb/internal/ir"
)

// Snapshot renders a scenario result as canonical JSON for golden
// comparison: the enclosure (or error code) and every recorded evaluation.
//
// Non-finite values are not representable in canonical JSON; non-finite
// and undefined records carry their reason instead of a value.
func Snapshot(scenarioName, runID string, result *Result) ([]byte, error) {
	trace := make([]any, len(result.Trace))
	for i, ev := range result.Trace {
		m := map[string]any{
			"index":   ev.Index,
			"input":   ev.Input,
			"outcome": ev.Outcome,
		}
		if ev.Outcome == ir.OutcomeDefined {
			m["value"] = ev.Value
		}
		if ev.Reason != "" {
			m["reason"] = ev.Reason
		}
		trace[i] = m
	}

	snap := map[string]any{
		"scenario_name": scenarioName,
		"trace":         trace,
	}
	if runID != "" {
		snap["run_id"] = runID
	}
	if result.Output != nil {
		snap["output"] = outputMap(result.Output)
	}
	if result.ErrorCode != "" {
		snap["error_code"] = result.ErrorCode
	}
	return ir.MarshalCanonical(snap)
}

func outputMap(r *ir.Result) map[string]any {
	return map[string]any{
		"lo":         r.Lo,
		"hi":         r.Hi,
		"arg_min":    r.ArgMin,
		"arg_max":    r.ArgMax,
		"min_index":  r.MinIndex,
		"max_index":  r.MaxIndex,
		"samples":    r.Samples,
		"undefined":  r.Undefined,
		"non_finite": r.NonFinite,
		"method":     r.Method,
		"n":          r.N,
		"seed":       r.Seed,
		"variables":  r.Variables,
	}
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result.RunID, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
