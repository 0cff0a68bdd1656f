package engine

import (
	"context"
	"fmt"

	"github.com/roach88/upbb/internal/store"
)

// ReplayArtifact rebuilds a run's result from a raw data artifact without
// calling the model.
//
// Replay is structural: the stored records are folded through the same
// aggregator Execute uses, in the same index order, so a completed run
// replays to a Result equal to the one stored with it. A mismatch means
// the artifact was altered or written by an incompatible engine.
//
// If runID is empty the artifact must contain exactly one run.
func ReplayArtifact(ctx context.Context, path, runID string) (store.RunState, error) {
	st, err := store.Open(path)
	if err != nil {
		return store.RunState{}, fmt.Errorf("replay: %w", err)
	}
	defer st.Close()

	if runID == "" {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return store.RunState{}, fmt.Errorf("replay: %w", err)
		}
		if len(runs) != 1 {
			return store.RunState{}, fmt.Errorf("replay: artifact %s holds %d runs; specify one", path, len(runs))
		}
		runID = runs[0].ID
	}

	state, err := st.GetRunState(ctx, runID)
	if err != nil {
		return store.RunState{}, fmt.Errorf("replay: %w", err)
	}
	return state, nil
}
