package tasks

import (
	"context"
	"errors"

	"github.com/leapstack-labs/assetpipe/internal/pipeline"
	"github.com/leapstack-labs/assetpipe/internal/state"
)

// StateRecorder stores task outcomes under a run. Until RunID is set it
// records nothing.
type StateRecorder struct {
	Store state.Store
	RunID string
}

// RecordTask implements pipeline.Recorder.
func (r *StateRecorder) RecordTask(ctx context.Context, res pipeline.TaskResult) error {
	if r.Store == nil || r.RunID == "" {
		return nil
	}
	tr := &state.TaskRun{
		RunID:      r.RunID,
		Task:       res.Name,
		Status:     state.TaskStatus(res.Status),
		StartedAt:  res.StartedAt,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		tr.Error = res.Err.Error()
	}
	return r.Store.RecordTaskRun(ctx, tr)
}

// RunStatus maps a run outcome to the stored run status.
func RunStatus(err error) state.RunStatus {
	switch {
	case err == nil:
		return state.RunStatusCompleted
	case errors.Is(err, context.Canceled):
		return state.RunStatusCancelled
	default:
		return state.RunStatusFailed
	}
}
