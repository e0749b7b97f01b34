// Package state persists pipeline run history and the image compression
// cache in a local SQLite database.
package state

import (
	"context"
	"time"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// TaskStatus is the outcome of one task within a run.
type TaskStatus string

// Task statuses.
const (
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailed  TaskStatus = "failed"
	TaskStatusSkipped TaskStatus = "skipped"
)

// Run is one invocation of a pipeline.
type Run struct {
	ID          string
	Pipeline    string
	Mode        string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// TaskRun is the recorded outcome of a task within a run.
type TaskRun struct {
	ID         int64
	RunID      string
	Task       string
	Status     TaskStatus
	StartedAt  time.Time
	DurationMS int64
	Error      string
}

// CachedImage maps the hash of a source image to its compressed copy.
type CachedImage struct {
	SourceHash string
	CacheFile  string
	InputSize  int64
	OutputSize int64
	CreatedAt  time.Time
}

// Store is the persistence interface used by the pipeline and commands.
type Store interface {
	CreateRun(ctx context.Context, pipeline, mode string) (*Run, error)
	CompleteRun(ctx context.Context, id string, status RunStatus, errMsg string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	RecordTaskRun(ctx context.Context, tr *TaskRun) error
	GetTaskRuns(ctx context.Context, runID string) ([]*TaskRun, error)

	GetCachedImage(ctx context.Context, sourceHash string) (*CachedImage, error)
	PutCachedImage(ctx context.Context, img *CachedImage) error

	Close() error
}
