package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/upbb/internal/ir"
)

// Scenario defines a conformance test scenario.
// A scenario executes one propagation and asserts on the resulting
// enclosure and the recorded raw data.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Problem is the path to the CUE problem definition.
	// Relative paths are resolved against the scenario file's base path.
	Problem string `yaml:"problem"`

	// Propagation selects one propagation from the problem file.
	// May be empty when the file defines exactly one.
	Propagation string `yaml:"propagation,omitempty"`

	// Function replaces the propagation's registered model with a canned
	// test function.
	Function *FunctionDef `yaml:"function,omitempty"`

	// Overrides replace propagation settings from the problem file.
	Overrides Overrides `yaml:"overrides,omitempty"`

	// Assertions validate the enclosure and the raw data.
	Assertions []Assertion `yaml:"assertions"`

	// RunID is an optional fixed run ID for deterministic tests.
	// If empty, defaults to "test-run-default" for golden file comparison.
	RunID string `yaml:"run_id,omitempty"`
}

// FunctionDef describes a canned test function.
type FunctionDef struct {
	// Kind is one of constant, linear, product, reciprocal, fail.
	Kind string `yaml:"kind"`

	// Value is the output of a constant function.
	Value float64 `yaml:"value,omitempty"`

	// Coefficients of a linear function: intercept first, then one per input.
	Coefficients []float64 `yaml:"coefficients,omitempty"`

	// FailBelow makes the function fail whenever any input is below it.
	FailBelow *float64 `yaml:"fail_below,omitempty"`
}

// Function kinds.
const (
	FuncConstant   = "constant"
	FuncLinear     = "linear"
	FuncProduct    = "product"
	FuncReciprocal = "reciprocal"
	FuncFail       = "fail"
)

// Overrides replace propagation settings. Nil fields keep the problem's value.
type Overrides struct {
	Method  *string `yaml:"method,omitempty"`
	N       *int    `yaml:"n,omitempty"`
	Seed    *uint64 `yaml:"seed,omitempty"`
	Workers *int    `yaml:"workers,omitempty"`
}

// Assertion validates the enclosure, the raw data or the run error.
type Assertion struct {
	// Type specifies the assertion type:
	// - "enclosure": bounds equal Lo and Hi within Tolerance
	// - "contains": enclosure contains [Lo, Hi]
	// - "within": enclosure lies inside [Lo, Hi]
	// - "counts": Samples, Undefined, NonFinite tallies
	// - "arg_min", "arg_max": Point attains the bound
	// - "record": the outcome at Index has kind Outcome (and Value)
	// - "error": the run failed with Code
	// - "replay": raw data re-aggregates to the same result
	Type string `yaml:"type"`

	Lo        *float64 `yaml:"lo,omitempty"`
	Hi        *float64 `yaml:"hi,omitempty"`
	Tolerance float64  `yaml:"tolerance,omitempty"`

	Samples   *int64 `yaml:"samples,omitempty"`
	Undefined *int64 `yaml:"undefined,omitempty"`
	NonFinite *int64 `yaml:"non_finite,omitempty"`

	// Point is the expected sample (used by arg_min, arg_max).
	Point []float64 `yaml:"point,omitempty"`

	// Index, Outcome and Value are used by record.
	Index   *int64   `yaml:"index,omitempty"`
	Outcome string   `yaml:"outcome,omitempty"`
	Value   *float64 `yaml:"value,omitempty"`

	// Code is the expected error code (used by error).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertEnclosure = "enclosure"
	AssertContains  = "contains"
	AssertWithin    = "within"
	AssertCounts    = "counts"
	AssertArgMin    = "arg_min"
	AssertArgMax    = "arg_max"
	AssertRecord    = "record"
	AssertError     = "error"
	AssertReplay    = "replay"
)

// LoadScenario reads and parses a scenario YAML file.
// The problem path is resolved relative to the scenario file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the problem path relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve problem path BEFORE validation
	if scenario.Problem != "" && !filepath.IsAbs(scenario.Problem) && basePath != "" {
		scenario.Problem = filepath.Join(basePath, scenario.Problem)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Problem == "" {
		return fmt.Errorf("problem is required")
	}
	if _, err := os.Stat(s.Problem); os.IsNotExist(err) {
		return fmt.Errorf("problem file not found: %s", s.Problem)
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Function != nil {
		if err := validateFunction(s.Function); err != nil {
			return err
		}
	}

	if s.Overrides.Method != nil && *s.Overrides.Method == "" {
		return fmt.Errorf("overrides.method must be non-empty")
	}
	if s.Overrides.N != nil && *s.Overrides.N < 0 {
		return fmt.Errorf("overrides.n must be non-negative")
	}
	if s.Overrides.Workers != nil && *s.Overrides.Workers < 0 {
		return fmt.Errorf("overrides.workers must be non-negative")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateFunction(f *FunctionDef) error {
	switch f.Kind {
	case FuncConstant, FuncProduct, FuncReciprocal, FuncFail:
	case FuncLinear:
		if len(f.Coefficients) == 0 {
			return fmt.Errorf("function: linear requires coefficients")
		}
	case "":
		return fmt.Errorf("function: kind is required")
	default:
		return fmt.Errorf("function: unknown kind %q", f.Kind)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Tolerance < 0 {
		return fmt.Errorf("assertions[%d]: tolerance must be non-negative", index)
	}

	switch a.Type {
	case AssertEnclosure, AssertContains, AssertWithin:
		if a.Lo == nil || a.Hi == nil {
			return fmt.Errorf("assertions[%d]: lo and hi are required for %s", index, a.Type)
		}
		if *a.Lo > *a.Hi {
			return fmt.Errorf("assertions[%d]: lo must not exceed hi", index)
		}
	case AssertCounts:
		if a.Samples == nil && a.Undefined == nil && a.NonFinite == nil {
			return fmt.Errorf("assertions[%d]: counts requires samples, undefined or non_finite", index)
		}
	case AssertArgMin, AssertArgMax:
		if len(a.Point) == 0 {
			return fmt.Errorf("assertions[%d]: point is required for %s", index, a.Type)
		}
	case AssertRecord:
		if a.Index == nil {
			return fmt.Errorf("assertions[%d]: index is required for record", index)
		}
		if _, err := ir.ParseOutcomeKind(a.Outcome); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error", index)
		}
	case AssertReplay:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
