package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/upbb/internal/compiler"
	"github.com/roach88/upbb/internal/ir"
	"github.com/roach88/upbb/internal/partition"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledQuantity is the JSON form of an input quantity.
type CompiledQuantity struct {
	Symbol  string     `json:"symbol"`
	Name    string     `json:"name"`
	Units   string     `json:"units,omitempty"`
	Essence ir.Essence `json:"essence"`
	Lo      float64    `json:"lo"`
	Hi      float64    `json:"hi"`
}

// CompiledProblem is the JSON form of one propagation and its plan.
type CompiledProblem struct {
	Name     string             `json:"name"`
	Model    string             `json:"model"`
	Inputs   []CompiledQuantity `json:"inputs"`
	Method   ir.Method          `json:"method"`
	N        int                `json:"n"`
	Seed     uint64             `json:"seed"`
	Workers  int                `json:"workers,omitempty"`
	Timeout  string             `json:"timeout,omitempty"`
	Output   ir.OutputSpec      `json:"output"`
	Planned  int64              `json:"planned"`
	PlanHash string             `json:"plan_hash"`
}

// CompilationResult holds the compiled propagations.
type CompilationResult struct {
	Problems []CompiledProblem `json:"problems"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <problem-path>",
		Short: "Compile CUE problems and resolve their partition plans",
		Long: `Compile CUE quantity and propagation declarations.

Each propagation is resolved to its inputs, its partitioning method with
defaults applied, the number of planned model evaluations and the plan
hash that identifies its raw data. No model is evaluated.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loadResult, loadErrors := LoadProblems(path, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputCompileError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, path)
	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result := &CompilationResult{}
	var planErrors []error
	for _, p := range loadResult.Problems {
		formatter.VerboseLog("Compiling propagation: %s", p.Name)
		compiled, err := compileProblem(p)
		if err != nil {
			planErrors = append(planErrors, &LoadError{
				Code:    ErrCodeGeneric,
				Message: fmt.Sprintf("propagation %s: %v", p.Name, err),
			})
			continue
		}
		result.Problems = append(result.Problems, compiled)
	}
	if len(planErrors) > 0 {
		return outputCompileErrors(formatter, planErrors)
	}

	if opts.Output != "" {
		if err := writeCompiledToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// compileProblem resolves a problem's inputs and partition plan.
func compileProblem(p ir.Problem) (CompiledProblem, error) {
	inputs, err := p.Inputs()
	if err != nil {
		return CompiledProblem{}, err
	}
	prop := p.Propagation

	plan, err := partition.New(inputs, partition.Config{
		Method: prop.Method,
		N:      prop.N,
		Seed:   prop.Seed,
	})
	if err != nil {
		return CompiledProblem{}, err
	}
	hash, err := ir.PlanHash(plan.Variables(), plan.Method(), plan.N(), plan.Seed())
	if err != nil {
		return CompiledProblem{}, err
	}

	out := CompiledProblem{
		Name:     p.Name,
		Model:    prop.Model,
		Inputs:   make([]CompiledQuantity, len(inputs)),
		Method:   plan.Method(),
		N:        plan.N(),
		Seed:     plan.Seed(),
		Workers:  prop.Workers,
		Output:   prop.Output,
		Planned:  plan.Len(),
		PlanHash: hash,
	}
	if prop.Timeout > 0 {
		out.Timeout = prop.Timeout.String()
	}
	for i, q := range inputs {
		out.Inputs[i] = CompiledQuantity{
			Symbol:  q.Symbol(),
			Name:    q.Name(),
			Units:   q.Units(),
			Essence: q.Essence(),
			Lo:      q.Lo(),
			Hi:      q.Hi(),
		}
	}
	return out, nil
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d propagation(s)\n\n", len(result.Problems))
	for _, p := range result.Problems {
		fmt.Fprintf(w, "%s = %s(", p.Name, p.Model)
		for i, in := range p.Inputs {
			if i > 0 {
				fmt.Fprint(w, ", ")
			}
			fmt.Fprint(w, in.Symbol)
		}
		fmt.Fprintln(w, ")")
		for _, in := range p.Inputs {
			fmt.Fprintf(w, "  %s ∈ [%g, %g] %s\n", in.Symbol, in.Lo, in.Hi, in.Units)
		}
		fmt.Fprintf(w, "  method %s, n=%d, %d evaluation(s)\n", p.Method, p.N, p.Planned)
		fmt.Fprintf(w, "  plan %s\n\n", p.PlanHash)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote compiled problems to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.JSON() {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}
		if err := formatter.Encode(CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors,
		}); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return MapFieldToErrorCode(compileErr.Field), compileErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeCompiledToFile writes the compilation result as indented JSON.
func writeCompiledToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling problems: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
