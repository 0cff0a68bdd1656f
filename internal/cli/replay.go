package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/upbb/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	RunID string // optional - specific run only
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	Artifact     string  `json:"artifact"`
	RunID        string  `json:"run_id"`
	Status       string  `json:"status"`
	Planned      int64   `json:"planned"`
	Records      int64   `json:"records"`
	Missing      int64   `json:"missing"`
	Corrupt      []int64 `json:"corrupt,omitempty"`
	Interrupted  bool    `json:"interrupted,omitempty"`
	IsComplete   bool    `json:"is_complete"`
	ResultsMatch bool    `json:"results_match"`
	Lo           float64 `json:"lo,omitempty"`
	Hi           float64 `json:"hi,omitempty"`
	ReplayError  string  `json:"replay_error,omitempty"`
	Verified     bool    `json:"verified"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs        []ReplayRunResult `json:"runs"`
	TotalRuns   int               `json:"total_runs"`
	AllVerified bool              `json:"all_verified"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <artifact-or-dir>",
		Short: "Re-aggregate raw data and verify stored results",
		Long: `Rebuild each run's result from its saved raw data without calling
the model, check every record hash, and compare with the stored result.

A completed run is verified when no record is missing or corrupt and the
replayed enclosure equals the stored one. Failed and cancelled runs are
reported with their partial data and are not counted as failures unless
their records are corrupt. Runs still marked running were interrupted
before they could finish and are reported the same way.

Exit codes:
  0 - All runs verified
  1 - Verification failed (corrupt records or mismatched results)
  2 - Command error (artifact not found, etc.)

Examples:
  upbb replay ./runs/0193e0c4-....db
  upbb replay ./runs
  upbb replay ./runs/shared.db --run 0193e0c4-... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay specific run only")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	artifacts, err := findArtifacts(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find artifacts", err)
	}

	result := ReplayResult{
		Runs:        []ReplayRunResult{},
		AllVerified: true,
	}

	for _, artifact := range artifacts {
		formatter.VerboseLog("Replaying %s", artifact)
		runs, err := replayArtifact(ctx, artifact, opts.RunID)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay %s", artifact), err)
		}
		for _, r := range runs {
			result.Runs = append(result.Runs, r)
			if !r.Verified {
				result.AllVerified = false
			}
		}
	}
	result.TotalRuns = len(result.Runs)

	if opts.RunID != "" && result.TotalRuns == 0 {
		return WrapExitError(ExitCommandError, fmt.Sprintf("run %s not found", opts.RunID), store.ErrRunNotFound)
	}

	if formatter.JSON() {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter, result)
}

// findArtifacts returns path itself, or every .db file under a directory.
func findArtifacts(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(p) == ".db" {
			files = append(files, p)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// replayArtifact replays the runs of one artifact. With a run ID, an
// artifact that does not hold that run yields no results.
func replayArtifact(ctx context.Context, artifact, runID string) ([]ReplayRunResult, error) {
	st, err := store.Open(artifact)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx)
	if err != nil {
		return nil, err
	}

	incomplete, err := st.FindIncompleteRuns(ctx)
	if err != nil {
		return nil, err
	}
	interrupted := make(map[string]bool, len(incomplete))
	for _, run := range incomplete {
		interrupted[run.ID] = true
	}

	var out []ReplayRunResult
	for _, run := range runs {
		if runID != "" && run.ID != runID {
			continue
		}
		state, err := st.GetRunState(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		r := replayRunResult(artifact, state)
		r.Interrupted = interrupted[run.ID]
		out = append(out, r)
	}
	return out, nil
}

func replayRunResult(artifact string, state store.RunState) ReplayRunResult {
	r := ReplayRunResult{
		Artifact:     artifact,
		RunID:        state.Run.ID,
		Status:       state.Run.Status,
		Planned:      state.Run.Planned,
		Records:      state.Records,
		Missing:      state.Missing,
		Corrupt:      state.Corrupt,
		IsComplete:   state.IsComplete,
		ResultsMatch: state.ResultsMatch,
	}
	if state.Replayed != nil {
		r.Lo, r.Hi = state.Replayed.Lo, state.Replayed.Hi
	}
	if state.ReplayErr != nil {
		r.ReplayError = state.ReplayErr.Error()
	}

	switch {
	case len(state.Corrupt) > 0:
		r.Verified = false
	case state.Run.Status == store.StatusCompleted:
		r.Verified = state.IsComplete && state.ResultsMatch
	default:
		r.Verified = true
	}
	return r
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if !result.AllVerified {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_REPLAY",
			Message: "replay verification failed",
		}
	}

	if err := formatter.Encode(response); err != nil {
		return err
	}
	if !result.AllVerified {
		return NewExitError(ExitFailure, "replay verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(formatter *OutputFormatter, result ReplayResult) error {
	w := formatter.Writer

	if result.TotalRuns == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d run(s)\n", result.TotalRuns)
	fmt.Fprintln(w)

	for _, run := range result.Runs {
		status := "✓"
		if !run.Verified {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Run: %s (%s)\n", status, run.RunID, run.Status)

		if formatter.Verbose {
			fmt.Fprintf(w, "  Artifact: %s\n", run.Artifact)
			fmt.Fprintf(w, "  Records:  %d of %d planned\n", run.Records, run.Planned)
			fmt.Fprintf(w, "  Complete: %v\n", run.IsComplete)
		} else {
			fmt.Fprintf(w, "  Records: %d/%d\n", run.Records, run.Planned)
		}
		if run.ReplayError == "" {
			fmt.Fprintf(w, "  Replayed: [%g, %g]\n", run.Lo, run.Hi)
		} else {
			fmt.Fprintf(w, "  Replay: %s\n", run.ReplayError)
		}

		if run.Interrupted {
			fmt.Fprintln(w, "  Warning: run was interrupted before it finished")
		}
		if len(run.Corrupt) > 0 {
			fmt.Fprintf(w, "  Warning: %d corrupt record(s): %v\n", len(run.Corrupt), run.Corrupt)
		}
		if run.Status == store.StatusCompleted && !run.ResultsMatch {
			fmt.Fprintln(w, "  Warning: replayed result differs from stored result!")
		}
		fmt.Fprintln(w)
	}

	if result.AllVerified {
		fmt.Fprintln(w, "✓ All runs verified")
		return nil
	}

	fmt.Fprintln(w, "✗ Replay verification failed")
	return NewExitError(ExitFailure, "replay verification failed")
}
