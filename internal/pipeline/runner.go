package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Policy decides what happens to the rest of a run when a task fails.
type Policy int

const (
	// ContinueOnError reports the failure and keeps running every other
	// task, including dependents of the failed one.
	ContinueOnError Policy = iota
	// FailFast cancels the run on the first failure; tasks that have not
	// started are skipped.
	FailFast
)

func (p Policy) String() string {
	if p == FailFast {
		return "fail-fast"
	}
	return "continue-on-error"
}

// Status is the outcome of a task.
type Status string

// Task outcomes.
const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// TaskResult describes one finished task.
type TaskResult struct {
	Name      string
	Status    Status
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// Result is the outcome of a run. Tasks are listed in completion order.
type Result struct {
	Name     string
	Tasks    []TaskResult
	Duration time.Duration
}

// Failed returns the failed tasks.
func (r *Result) Failed() []TaskResult {
	var out []TaskResult
	for _, t := range r.Tasks {
		if t.Status == StatusFailed {
			out = append(out, t)
		}
	}
	return out
}

// Task returns the result of the named task.
func (r *Result) Task(name string) (TaskResult, bool) {
	for _, t := range r.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskResult{}, false
}

// Reporter receives task progress. Methods are called concurrently.
type Reporter interface {
	TaskStarted(name string)
	TaskFinished(res TaskResult)
}

// Recorder persists task outcomes. Errors are logged and do not fail the run.
type Recorder interface {
	RecordTask(ctx context.Context, res TaskResult) error
}

// Runner executes compositions against a registry.
type Runner struct {
	registry  *Registry
	policy    Policy
	reporters []Reporter
	recorder  Recorder
	logger    *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithPolicy sets the failure policy.
func WithPolicy(p Policy) Option {
	return func(r *Runner) { r.policy = p }
}

// WithReporter adds a progress reporter.
func WithReporter(rep Reporter) Option {
	return func(r *Runner) {
		if rep != nil {
			r.reporters = append(r.reporters, rep)
		}
	}
}

// WithRecorder sets the recorder for task outcomes.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a runner over reg.
func NewRunner(reg *Registry, opts ...Option) *Runner {
	r := &Runner{
		registry: reg,
		policy:   ContinueOnError,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the runner's failure policy.
func (r *Runner) Policy() Policy {
	return r.policy
}

// Run executes a pipeline.
func (r *Runner) Run(ctx context.Context, p Pipeline) (*Result, error) {
	return r.RunStep(ctx, p.Name, p.Root)
}

// RunStep plans and executes step. Every task starts once all of its
// predecessors have finished. The returned error is non-nil when a task
// failed or ctx was cancelled before all tasks ran.
func (r *Runner) RunStep(ctx context.Context, name string, step Step) (*Result, error) {
	g, err := Plan(step, r.registry)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &Result{Name: name}
	var mu sync.Mutex
	var failures []error
	status := make(map[string]Status, g.NodeCount())

	done := make(map[string]chan struct{}, g.NodeCount())
	for _, n := range g.Nodes() {
		done[n.ID] = make(chan struct{})
	}

	eg, gctx := errgroup.WithContext(ctx)
	for _, n := range g.Nodes() {
		id := n.ID
		task := n.Data
		parents := g.GetParents(id)

		eg.Go(func() error {
			defer close(done[id])

			for _, p := range parents {
				select {
				case <-done[p]:
				case <-gctx.Done():
				}
			}

			var res TaskResult
			if gctx.Err() != nil || (r.policy == FailFast && r.anyUnsuccessful(&mu, status, parents)) {
				res = TaskResult{Name: id, Status: StatusSkipped, StartedAt: time.Now()}
			} else {
				res = r.execute(gctx, task)
			}

			mu.Lock()
			result.Tasks = append(result.Tasks, res)
			status[id] = res.Status
			if res.Status == StatusFailed {
				failures = append(failures, res.Err)
			}
			mu.Unlock()

			r.finish(ctx, res)

			if res.Status == StatusFailed && r.policy == FailFast {
				return res.Err
			}
			return nil
		})
	}

	runErr := eg.Wait()
	result.Duration = time.Since(start)

	if runErr != nil {
		return result, runErr
	}
	if len(failures) > 0 {
		return result, errors.Join(failures...)
	}
	if err := ctx.Err(); err != nil {
		for _, t := range result.Tasks {
			if t.Status == StatusSkipped {
				return result, err
			}
		}
	}
	return result, nil
}

func (r *Runner) anyUnsuccessful(mu *sync.Mutex, status map[string]Status, names []string) bool {
	mu.Lock()
	defer mu.Unlock()
	for _, n := range names {
		if status[n] != StatusSuccess {
			return true
		}
	}
	return false
}

func (r *Runner) execute(ctx context.Context, task *Task) TaskResult {
	for _, rep := range r.reporters {
		rep.TaskStarted(task.Name)
	}
	r.logger.Debug("task started", slog.String("task", task.Name))

	res := TaskResult{Name: task.Name, StartedAt: time.Now()}
	err := runTask(ctx, task)
	res.Duration = time.Since(res.StartedAt)

	if err != nil {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("%s: %w", task.Name, err)
		r.logger.Debug("task failed", slog.String("task", task.Name), slog.String("error", err.Error()))
	} else {
		res.Status = StatusSuccess
		r.logger.Debug("task finished", slog.String("task", task.Name), slog.Duration("duration", res.Duration))
	}
	return res
}

// runTask turns a panicking task into a failure.
func runTask(ctx context.Context, task *Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return task.Run(ctx)
}

func (r *Runner) finish(ctx context.Context, res TaskResult) {
	for _, rep := range r.reporters {
		rep.TaskFinished(res)
	}
	if r.recorder == nil {
		return
	}
	// Recording happens even when the run was cancelled.
	if err := r.recorder.RecordTask(context.WithoutCancel(ctx), res); err != nil {
		r.logger.Warn("failed to record task", slog.String("task", res.Name), slog.String("error", err.Error()))
	}
}
