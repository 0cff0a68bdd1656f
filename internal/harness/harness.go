package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/upbb/internal/compiler"
	"github.com/roach88/upbb/internal/engine"
	"github.com/roach88/upbb/internal/ir"
	"github.com/roach88/upbb/internal/models"
	"github.com/roach88/upbb/internal/store"
	"github.com/roach88/upbb/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and run ID against a fresh
// in-memory store.
type Harness struct {
	store  *store.Store
	clock  *testutil.DeterministicClock
	ids    *testutil.FixedRunIDGenerator
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Compile the problem file and select the propagation
// 2. Apply overrides and resolve the function
// 3. Execute the propagation, recording raw data in the store
// 4. Read back the trace and replay it
// 5. Evaluate assertions
//
// A failed propagation is not an error here: it is captured in
// Result.ErrorCode for the error assertion. The returned error reports
// problems with the scenario itself.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	problems, err := compiler.CompileFile(scenario.Problem)
	if err != nil {
		return nil, fmt.Errorf("failed to compile problem: %w", err)
	}
	problem, err := compiler.Select(problems, scenario.Propagation)
	if err != nil {
		return nil, err
	}
	applyOverrides(&problem.Propagation, scenario.Overrides)

	fn, err := resolveFunction(problem, scenario.Function)
	if err != nil {
		return nil, err
	}
	inputs, err := problem.Inputs()
	if err != nil {
		return nil, err
	}

	// Create fresh in-memory SQLite database
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		clock:  testutil.NewDeterministicClock(),
		ids:    testutil.NewFixedRunIDGenerator(scenario.RunID),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	result := NewResult()
	if err := h.execute(ctx, problem, inputs, fn, result); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, problem ir.Problem, inputs []ir.Quantity, fn ir.FunctionSpec, result *Result) error {
	prop := problem.Propagation
	cfg := engine.Config{
		Method:     prop.Method,
		N:          prop.N,
		Seed:       prop.Seed,
		Workers:    prop.Workers,
		Timeout:    prop.Timeout,
		OutputName: prop.Output.Name,
	}

	run, err := engine.NewRun(inputs, fn, cfg,
		engine.WithRecorder(h.store),
		engine.WithRunIDGenerator(h.ids),
		engine.WithClock(h.clock.Now),
		engine.WithLogger(h.logger),
	)
	if err != nil {
		result.ErrorCode = engine.ErrorCode(err)
		result.ErrorMessage = err.Error()
		return nil
	}
	result.RunID = run.ID()

	out, execErr := run.Execute(ctx)
	if execErr != nil {
		result.ErrorCode = engine.ErrorCode(execErr)
		result.ErrorMessage = execErr.Error()
	} else {
		result.Output = &out
	}

	records, err := h.store.ReadRecords(ctx, run.ID())
	if err != nil {
		return fmt.Errorf("failed to read records: %w", err)
	}
	for _, rec := range records {
		result.AddRecordTrace(rec)
	}

	state, err := h.store.GetRunState(ctx, run.ID())
	switch {
	case errors.Is(err, store.ErrRunNotFound):
		// Planning failed before the run was recorded.
		result.Replay.Error = "run not recorded"
	case err != nil:
		return fmt.Errorf("failed to replay run: %w", err)
	default:
		result.Replay = ReplayCheck{
			Complete:     state.IsComplete,
			ResultsMatch: state.ResultsMatch,
			Missing:      int(state.Missing),
			Corrupt:      len(state.Corrupt),
		}
		if state.ReplayErr != nil {
			result.Replay.Error = state.ReplayErr.Error()
		}
	}
	return nil
}

func applyOverrides(prop *ir.PropagationSpec, o Overrides) {
	if o.Method != nil {
		if m, ok := ir.ParseMethod(*o.Method); ok {
			prop.Method = m
		} else {
			prop.Method = ir.Method(*o.Method)
		}
	}
	if o.N != nil {
		prop.N = *o.N
	}
	if o.Seed != nil {
		prop.Seed = *o.Seed
	}
	if o.Workers != nil {
		prop.Workers = *o.Workers
	}
}

// resolveFunction builds the canned function, or looks the model up in
// the built-in registry when def is nil.
func resolveFunction(problem ir.Problem, def *FunctionDef) (ir.FunctionSpec, error) {
	if def == nil {
		return models.Default.Spec(problem.Propagation.Model)
	}

	var fn ir.Func
	switch def.Kind {
	case FuncConstant:
		fn = testutil.Constant(def.Value)
	case FuncLinear:
		fn = testutil.Linear(def.Coefficients[0], def.Coefficients[1:]...)
	case FuncProduct:
		fn = testutil.Product()
	case FuncReciprocal:
		fn = testutil.Reciprocal()
	case FuncFail:
		fn = testutil.AlwaysFail()
	default:
		return ir.FunctionSpec{}, fmt.Errorf("unknown function kind %q", def.Kind)
	}
	if def.FailBelow != nil {
		limit := *def.FailBelow
		fn = testutil.FailWhen(fn, func(x []float64) bool {
			for _, v := range x {
				if v < limit {
					return true
				}
			}
			return false
		})
	}
	return testutil.Spec(def.Kind, fn), nil
}
