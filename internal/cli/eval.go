package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/upbb/internal/evaluate"
	"github.com/roach88/upbb/internal/ir"
	"github.com/roach88/upbb/internal/models"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Args    string
	Timeout time.Duration
}

// EvalResult is the outcome of a single model evaluation.
type EvalResult struct {
	Model   string         `json:"model"`
	Params  []string       `json:"params"`
	Input   []float64      `json:"input"`
	Outcome ir.OutcomeKind `json:"outcome"`
	Value   *float64       `json:"value,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <model> [values...]",
		Short: "Evaluate a registered model at one point",
		Long: `Evaluate a registered model once, the way a propagation run does.

Inputs are given positionally in the model's parameter order, or with
--args as a JSON array or an object keyed by parameter name. Errors,
panics, timeouts and non-finite values are reported as outcomes.

Examples:
  upbb eval cantilever_beam_deflection 10 0.0004 11 200
  upbb eval cantilever_beam_deflection --args '{"L":10,"I":0.0004,"F":11,"E":200}'`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "", "inputs as a JSON array or object")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "evaluation timeout (0 disables)")

	return cmd
}

func runEval(opts *EvalOptions, name string, values []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	spec, err := models.Default.Spec(name)
	if err != nil {
		return outputRunError(formatter, ErrCodeNotFound, err.Error(), ExitCommandError)
	}

	x, err := parseEvalInput(spec, values, opts.Args)
	if err != nil {
		return outputRunError(formatter, ErrCodeGeneric, err.Error(), ExitCommandError)
	}

	ev, err := evaluate.New(spec, evaluate.WithTimeout(opts.Timeout))
	if err != nil {
		return outputRunError(formatter, ErrCodeGeneric, err.Error(), ExitCommandError)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rec := ev.Evaluate(ctx, 0, x)

	result := EvalResult{
		Model:   spec.Name,
		Params:  spec.Params,
		Input:   rec.Input,
		Outcome: rec.Outcome.Kind,
		Reason:  rec.Outcome.Reason,
	}
	if rec.Outcome.IsDefined() {
		v := rec.Outcome.Value
		result.Value = &v
	}
	return outputEvalResult(formatter, result)
}

// parseEvalInput builds the sample point from positional values or the
// --args JSON. An object must name every parameter.
func parseEvalInput(spec ir.FunctionSpec, values []string, raw string) (ir.SamplePoint, error) {
	if raw != "" && len(values) > 0 {
		return nil, fmt.Errorf("give inputs positionally or with --args, not both")
	}

	if raw == "" {
		x := make(ir.SamplePoint, len(values))
		for i, s := range values {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("input %d: %w", i, err)
			}
			x[i] = v
		}
		return x, nil
	}

	var list []float64
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return ir.SamplePoint(list), nil
	}

	var byName map[string]float64
	if err := json.Unmarshal([]byte(raw), &byName); err != nil {
		return nil, fmt.Errorf("invalid --args JSON: %w", err)
	}
	if len(spec.Params) == 0 {
		return nil, fmt.Errorf("model %q has no named parameters; pass an array", spec.Name)
	}
	x := make(ir.SamplePoint, len(spec.Params))
	for i, p := range spec.Params {
		v, ok := byName[p]
		if !ok {
			return nil, fmt.Errorf("--args is missing parameter %q", p)
		}
		x[i] = v
	}
	if len(byName) != len(spec.Params) {
		return nil, fmt.Errorf("--args names %d values, model takes %v", len(byName), spec.Params)
	}
	return x, nil
}

func outputEvalResult(formatter *OutputFormatter, result EvalResult) error {
	if formatter.JSON() {
		status := "ok"
		var cliErr *CLIError
		if result.Outcome != ir.OutcomeDefined {
			status = "error"
			cliErr = &CLIError{Code: string(result.Outcome), Message: result.Reason}
		}
		if err := formatter.Encode(CLIResponse{Status: status, Data: result, Error: cliErr}); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		fmt.Fprintf(w, "%s(%v)\n", result.Model, result.Input)
		if result.Value != nil {
			fmt.Fprintf(w, "  = %.17g\n", *result.Value)
		} else {
			fmt.Fprintf(w, "  %s: %s\n", result.Outcome, result.Reason)
		}
	}

	if result.Outcome != ir.OutcomeDefined {
		return NewExitError(ExitFailure, fmt.Sprintf("evaluation %s: %s", result.Outcome, result.Reason))
	}
	return nil
}
