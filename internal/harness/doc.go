// Package harness provides conformance testing for propagation problems.
//
// The harness loads a CUE problem definition, executes one propagation
// against the engine, and checks the output enclosure and the raw data
// the run recorded.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	problem: problems/beam.cue
//	propagation: deflection
//	function:
//	  kind: linear
//	  coefficients: [0, 1, 1]
//	overrides:
//	  method: endpoint
//	  workers: 4
//	assertions:
//	  - type: enclosure
//	    lo: 0.0145
//	    hi: 0.0160
//	    tolerance: 1e-6
//	  - type: counts
//	    samples: 16
//	    undefined: 0
//	  - type: replay
//
// The function block is optional; without it the propagation's model is
// resolved from the built-in model registry.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - enclosure: output bounds equal lo and hi within tolerance
//   - contains: output enclosure contains [lo, hi]
//   - within: output enclosure lies inside [lo, hi]
//   - counts: sample, undefined and non-finite tallies
//   - arg_min, arg_max: the sample attaining a bound
//   - record: the outcome recorded at one plan index
//   - error: the run failed with the given error code
//   - replay: the recorded raw data re-aggregates to the same result
//
// # Deterministic Testing
//
// All scenarios execute with a deterministic clock and run ID so the
// recorded raw data is reproducible for golden snapshot comparison.
//
// The harness uses:
//   - Fixed run IDs (from scenario.run_id or "test-run-default")
//   - Deterministic wall clock (testutil.DeterministicClock)
//   - In-memory SQLite database (isolated per scenario)
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/beam.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
