package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/upbb/internal/compiler"
	"github.com/roach88/upbb/internal/engine"
	"github.com/roach88/upbb/internal/ir"
	"github.com/roach88/upbb/internal/models"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Propagation string
	Method      string
	N           int
	Seed        uint64
	Workers     int
	Timeout     time.Duration
	Save        bool
	BasePath    string
	MaxSamples  int64

	// RunIDGenerator allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator engine.RunIDGenerator
}

// OutputQuantity is the propagated output as an interval quantity.
type OutputQuantity struct {
	Name   string  `json:"name"`
	Symbol string  `json:"symbol,omitempty"`
	Units  string  `json:"units,omitempty"`
	Lo     float64 `json:"lo"`
	Hi     float64 `json:"hi"`
}

// RunResult is the output of a completed run.
type RunResult struct {
	RunID       string         `json:"run_id"`
	Propagation string         `json:"propagation"`
	Model       string         `json:"model"`
	Output      OutputQuantity `json:"output"`
	Result      ir.Result      `json:"result"`
	Artifact    string         `json:"artifact,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <problem-path>",
		Short: "Propagate uncertainty through a model",
		Long: `Run one propagation from a CUE problem definition.

The input box is partitioned with the propagation's method, the model is
evaluated at every sample point and the enclosure of the defined outputs
is reported. Flags override the settings in the problem file.

With --save every evaluation is written to <base-path>/<run-id>.db and can
be inspected with 'upbb trace' and verified with 'upbb replay'.

Exit codes:
  0 - Run completed
  1 - Run failed (no valid result, unknown method, cancelled, ...)
  2 - Command error (problem not found or invalid, unknown model)

Examples:
  upbb run ./problems/beam.cue
  upbb run ./problems --propagation deflection --method monte_carlo --n 5000 --seed 7
  upbb run ./problems/beam.cue --workers 8 --save --base-path ./runs`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPropagation(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Propagation, "propagation", "p", "", "propagation to run (required if the problem defines several)")
	cmd.Flags().StringVar(&opts.Method, "method", "", "partitioning method (subinterval|endpoint|monte_carlo|latin_hypercube)")
	cmd.Flags().IntVar(&opts.N, "n", 0, "method sample count (0 selects the method default)")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "seed for sampled methods")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent model evaluations")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per-evaluation timeout (0 disables)")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "save raw evaluation data")
	cmd.Flags().StringVar(&opts.BasePath, "base-path", "", "directory for raw data artifacts")
	cmd.Flags().Int64Var(&opts.MaxSamples, "max-samples", 0, "cap on planned evaluations (0 selects the default)")

	return cmd
}

func runPropagation(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(formatter.GetErrWriter(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	problem, err := loadProblem(path, opts.Propagation)
	if err != nil {
		return outputRunError(formatter, ErrCodeGeneric, err.Error(), ExitCommandError)
	}
	applyRunFlags(&problem.Propagation, opts, cmd)

	if verrs := compiler.Validate(&problem, compiler.WithModels(models.Default.Arity)); len(verrs) > 0 {
		// Unknown methods are left to the engine so that the run reports
		// UNKNOWN_METHOD like any other run failure.
		if blocking := blockingErrors(verrs); len(blocking) > 0 {
			return outputValidationErrors(formatter, 1, blocking)
		}
	}

	spec, err := models.Default.Spec(problem.Propagation.Model)
	if err != nil {
		return outputRunError(formatter, compiler.ErrUnknownModel, err.Error(), ExitCommandError)
	}
	inputs, err := problem.Inputs()
	if err != nil {
		return outputRunError(formatter, compiler.ErrUnknownInput, err.Error(), ExitCommandError)
	}

	prop := problem.Propagation
	cfg := engine.Config{
		Method:      prop.Method,
		N:           prop.N,
		Seed:        prop.Seed,
		Workers:     prop.Workers,
		Timeout:     prop.Timeout,
		SaveRawData: prop.SaveRawData,
		BasePath:    prop.BasePath,
		MaxSamples:  opts.MaxSamples,
		OutputName:  prop.Output.Name,
	}

	runOpts := []engine.RunOption{engine.WithLogger(logger)}
	if opts.RunIDGenerator != nil {
		runOpts = append(runOpts, engine.WithRunIDGenerator(opts.RunIDGenerator))
	}
	if opts.Verbose {
		runOpts = append(runOpts, engine.WithProgress(progressLogger(formatter)))
	}

	run, err := engine.NewRun(inputs, spec, cfg, runOpts...)
	if err != nil {
		return outputRunError(formatter, engine.ErrorCode(err), err.Error(), ExitCommandError)
	}
	formatter.VerboseLog("Run %s: %s over %d input(s)", run.ID(), spec.Name, len(inputs))

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	res, err := run.Execute(ctx)
	if err != nil {
		return outputRunError(formatter, engine.ErrorCode(err), err.Error(), ExitFailure)
	}

	return outputRunSuccess(formatter, RunResult{
		RunID:       run.ID(),
		Propagation: problem.Name,
		Model:       spec.Name,
		Output: OutputQuantity{
			Name:   prop.Output.Name,
			Symbol: prop.Output.Symbol,
			Units:  prop.Output.Units,
			Lo:     res.Lo,
			Hi:     res.Hi,
		},
		Result:   res,
		Artifact: run.Artifact(),
	})
}

// loadProblem compiles path and selects one propagation.
func loadProblem(path, name string) (ir.Problem, error) {
	loadResult, loadErrors := LoadProblems(path, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return ir.Problem{}, loadErrors[0]
	}
	return compiler.Select(loadResult.Problems, name)
}

// applyRunFlags overrides problem settings with the flags the user set.
func applyRunFlags(prop *ir.PropagationSpec, opts *RunOptions, cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("method") {
		if m, ok := ir.ParseMethod(opts.Method); ok {
			prop.Method = m
		} else {
			prop.Method = ir.Method(opts.Method)
		}
	}
	if flags.Changed("n") {
		prop.N = opts.N
	}
	if flags.Changed("seed") {
		prop.Seed = opts.Seed
	}
	if flags.Changed("workers") {
		prop.Workers = opts.Workers
	}
	if flags.Changed("timeout") {
		prop.Timeout = opts.Timeout
	}
	if flags.Changed("save") {
		prop.SaveRawData = opts.Save
	}
	if flags.Changed("base-path") {
		prop.BasePath = opts.BasePath
	}
	if prop.SaveRawData && prop.BasePath == "" {
		prop.BasePath = "."
	}
}

// blockingErrors drops the validation errors the engine reports itself.
func blockingErrors(errs []compiler.ValidationError) []compiler.ValidationError {
	var out []compiler.ValidationError
	for _, e := range errs {
		if e.Code == compiler.ErrUnknownMethod || e.Code == compiler.ErrEndpointCount {
			continue
		}
		out = append(out, e)
	}
	return out
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
// Use command's context if available (for testing), otherwise create one.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// progressLogger reports progress at every tenth of the plan.
func progressLogger(formatter *OutputFormatter) func(done, total int64) {
	step := int64(0)
	return func(done, total int64) {
		if step == 0 {
			step = max(total/10, 1)
		}
		if done%step == 0 || done == total {
			formatter.VerboseLog("  %d/%d evaluations", done, total)
		}
	}
}

// outputRunSuccess outputs a completed run.
func outputRunSuccess(formatter *OutputFormatter, result RunResult) error {
	if formatter.JSON() {
		return formatter.Encode(CLIResponse{Status: "ok", Data: result, RunID: result.RunID})
	}

	w := formatter.Writer
	out := result.Output
	label := out.Name
	if out.Symbol != "" {
		label = out.Symbol
	}
	fmt.Fprintf(w, "✓ %s ∈ [%.17g, %.17g] %s\n", label, out.Lo, out.Hi, out.Units)
	fmt.Fprintln(w)
	res := result.Result
	fmt.Fprintf(w, "  run:        %s\n", result.RunID)
	fmt.Fprintf(w, "  model:      %s(%v)\n", result.Model, res.Variables)
	fmt.Fprintf(w, "  method:     %s (n=%d, seed=%d)\n", res.Method, res.N, res.Seed)
	fmt.Fprintf(w, "  samples:    %d (%d undefined, %d non-finite)\n", res.Samples, res.Undefined, res.NonFinite)
	fmt.Fprintf(w, "  arg min:    %v (#%d)\n", res.ArgMin, res.MinIndex)
	fmt.Fprintf(w, "  arg max:    %v (#%d)\n", res.ArgMax, res.MaxIndex)
	if result.Artifact != "" {
		fmt.Fprintf(w, "  raw data:   %s\n", result.Artifact)
	}
	return nil
}

// outputRunError reports a failed run with the given exit code.
func outputRunError(formatter *OutputFormatter, code, message string, exitCode int) error {
	if code == "" {
		code = ErrCodeGeneric
	}
	_ = formatter.Error(code, message, nil)
	return NewExitError(exitCode, fmt.Sprintf("%s: %s", code, message))
}
