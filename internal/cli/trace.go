package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/upbb/internal/ir"
	"github.com/roach88/upbb/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	RunID   string
	Outcome string // optional - filter to one outcome kind
	Limit   int
}

// TraceRecord is a single evaluation in the trace.
type TraceRecord struct {
	Index   int64          `json:"index"`
	Input   []float64      `json:"input"`
	Outcome ir.OutcomeKind `json:"outcome"`
	Value   *float64       `json:"value,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID     string        `json:"run_id"`
	Model     string        `json:"model"`
	Method    ir.Method     `json:"method"`
	N         int           `json:"n"`
	Seed      uint64        `json:"seed"`
	Variables []string      `json:"variables"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Records   []TraceRecord `json:"records"`
	Stats     TraceStats    `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Planned   int64 `json:"planned"`
	Recorded  int   `json:"recorded"`
	Defined   int   `json:"defined"`
	Undefined int   `json:"undefined"`
	NonFinite int   `json:"non_finite"`
	Shown     int   `json:"shown"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <artifact>",
		Short: "List the recorded evaluations of a run",
		Long: `List the raw data of a saved run: every sample point in plan order
with the model's outcome.

Undefined outcomes carry the failure reason (model error, panic, timeout);
non-finite outcomes carry the value the model returned.

Examples:
  upbb trace ./runs/0193e0c4-....db
  upbb trace ./runs/0193e0c4-....db --outcome undefined
  upbb trace ./runs/shared.db --run 0193e0c4-... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "", "run to trace (required if the artifact holds several)")
	cmd.Flags().StringVar(&opts.Outcome, "outcome", "", "filter to one outcome (defined|undefined|non_finite)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show at most this many records (0 shows all)")

	return cmd
}

func runTrace(opts *TraceOptions, artifact string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	var filter ir.OutcomeKind
	if opts.Outcome != "" {
		k, err := ir.ParseOutcomeKind(opts.Outcome)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --outcome", err)
		}
		filter = k
	}

	if _, err := os.Stat(artifact); err != nil {
		return WrapExitError(ExitCommandError, "artifact not found", err)
	}
	st, err := store.Open(artifact)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open artifact", err)
	}
	defer st.Close()

	run, err := selectRun(ctx, st, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to select run", err)
	}

	records, err := st.ReadRecords(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read records", err)
	}

	result := buildTrace(run, records, filter, opts.Limit)

	if formatter.JSON() {
		return formatter.Encode(CLIResponse{Status: "ok", Data: result, RunID: result.RunID})
	}
	outputTraceText(formatter.Writer, result, formatter.Verbose)
	return nil
}

// selectRun returns the named run, or the only run in the artifact.
func selectRun(ctx context.Context, st *store.Store, runID string) (store.Run, error) {
	if runID != "" {
		return st.ReadRun(ctx, runID)
	}
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return store.Run{}, err
	}
	if len(runs) != 1 {
		return store.Run{}, fmt.Errorf("artifact holds %d runs; select one with --run", len(runs))
	}
	return runs[0], nil
}

// buildTrace tallies all records and keeps those matching filter, up to limit.
func buildTrace(run store.Run, records []ir.EvaluationRecord, filter ir.OutcomeKind, limit int) TraceResult {
	result := TraceResult{
		RunID:     run.ID,
		Model:     run.Model,
		Method:    run.Method,
		N:         run.N,
		Seed:      run.Seed,
		Variables: run.VariableLabels(),
		Status:    run.Status,
		Error:     run.Error,
		Records:   []TraceRecord{},
		Stats: TraceStats{
			Planned:  run.Planned,
			Recorded: len(records),
		},
	}

	for _, rec := range records {
		switch rec.Outcome.Kind {
		case ir.OutcomeDefined:
			result.Stats.Defined++
		case ir.OutcomeUndefined:
			result.Stats.Undefined++
		case ir.OutcomeNonFinite:
			result.Stats.NonFinite++
		}

		if filter != "" && rec.Outcome.Kind != filter {
			continue
		}
		if limit > 0 && len(result.Records) >= limit {
			continue
		}

		tr := TraceRecord{
			Index:   rec.Index,
			Input:   rec.Input,
			Outcome: rec.Outcome.Kind,
			Reason:  rec.Outcome.Reason,
		}
		if rec.Outcome.IsDefined() {
			v := rec.Outcome.Value
			tr.Value = &v
		}
		result.Records = append(result.Records, tr)
	}
	result.Stats.Shown = len(result.Records)
	return result
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for Run: %s\n", result.RunID)
	fmt.Fprintf(w, "Model: %s(%s)\n", result.Model, strings.Join(result.Variables, ", "))
	fmt.Fprintf(w, "Method: %s (n=%d, seed=%d)\n", result.Method, result.N, result.Seed)
	fmt.Fprintf(w, "Status: %s\n", result.Status)
	if result.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", result.Error)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Records ===")
	if len(result.Records) == 0 {
		fmt.Fprintln(w, "  (no records)")
	}
	for _, rec := range result.Records {
		fmt.Fprintf(w, "  [%d] %s -> %s\n", rec.Index, formatPoint(result.Variables, rec.Input, verbose), formatOutcome(rec))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Planned:    %d\n", result.Stats.Planned)
	fmt.Fprintf(w, "  Recorded:   %d\n", result.Stats.Recorded)
	fmt.Fprintf(w, "  Defined:    %d\n", result.Stats.Defined)
	fmt.Fprintf(w, "  Undefined:  %d\n", result.Stats.Undefined)
	fmt.Fprintf(w, "  Non-finite: %d\n", result.Stats.NonFinite)
}

// formatPoint formats a sample point, naming each coordinate in verbose mode.
func formatPoint(vars []string, x []float64, verbose bool) string {
	parts := make([]string, len(x))
	for i, v := range x {
		if verbose && i < len(vars) {
			parts[i] = fmt.Sprintf("%s=%g", vars[i], v)
		} else {
			parts[i] = fmt.Sprintf("%g", v)
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func formatOutcome(rec TraceRecord) string {
	if rec.Value != nil {
		return fmt.Sprintf("%g", *rec.Value)
	}
	return fmt.Sprintf("%s: %s", rec.Outcome, rec.Reason)
}
