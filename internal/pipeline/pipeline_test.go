package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/assetpipe/internal/testutil"
)

// trace records the order in which tasks start and finish.
type trace struct {
	mu     sync.Mutex
	events []string
}

func (tr *trace) add(ev string) {
	tr.mu.Lock()
	tr.events = append(tr.events, ev)
	tr.mu.Unlock()
}

func (tr *trace) index(ev string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for i, e := range tr.events {
		if e == ev {
			return i
		}
	}
	return -1
}

func newRegistry(t *testing.T, tr *trace, names ...string) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, name := range names {
		n := name
		require.NoError(t, reg.Register(&Task{Name: n, Run: func(context.Context) error {
			tr.add("start:" + n)
			time.Sleep(5 * time.Millisecond)
			tr.add("end:" + n)
			return nil
		}}))
	}
	return reg
}

func assetPipeline() Step {
	return Series(
		Ref("clean"),
		Parallel(Ref("html"), Ref("scripts"), Ref("fonts")),
		Ref("fonts-style"),
		Ref("styles"),
	)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	noop := func(context.Context) error { return nil }

	require.NoError(t, reg.Register(&Task{Name: "clean", Run: noop}))
	require.NoError(t, reg.Register(&Task{Name: "html", Run: noop}))

	assert.ErrorContains(t, reg.Register(&Task{Name: "clean", Run: noop}), "already registered")
	assert.ErrorContains(t, reg.Register(&Task{Run: noop}), "name is required")
	assert.ErrorContains(t, reg.Register(&Task{Name: "x"}), "no body")

	_, ok := reg.Get("html")
	assert.True(t, ok)
	_, ok = reg.Get("missing")
	assert.False(t, ok)

	var names []string
	for _, task := range reg.Tasks() {
		names = append(names, task.Name)
	}
	assert.Equal(t, []string{"clean", "html"}, names)
}

func TestPlan(t *testing.T) {
	reg := newRegistry(t, &trace{}, "clean", "html", "scripts", "fonts", "fonts-style", "styles")

	g, err := Plan(assetPipeline(), reg)
	require.NoError(t, err)

	assert.Equal(t, []string{"clean"}, g.GetParents("scripts"))
	assert.ElementsMatch(t, []string{"html", "scripts", "fonts"}, g.GetParents("fonts-style"))
	assert.Equal(t, []string{"fonts-style"}, g.GetParents("styles"))

	levels, err := g.GetExecutionLevels()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"clean"},
		{"html", "scripts", "fonts"},
		{"fonts-style"},
		{"styles"},
	}, levels)
}

func TestPlan_NestedSeriesInParallel(t *testing.T) {
	reg := newRegistry(t, &trace{}, "a", "b", "c", "d")

	levels, err := Levels(Series(Parallel(Series(Ref("a"), Ref("b")), Ref("c")), Ref("d")), reg)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "c"}, {"b"}, {"d"}}, levels)
}

func TestPlan_EmptyGroupsPassThrough(t *testing.T) {
	reg := newRegistry(t, &trace{}, "a", "b")

	g, err := Plan(Series(Ref("a"), Parallel(), Series(), Ref("b")), reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, g.GetParents("b"))
}

func TestPlan_Errors(t *testing.T) {
	reg := newRegistry(t, &trace{}, "a", "b")

	tests := []struct {
		name   string
		step   Step
		errMsg string
	}{
		{"unknown task", Series(Ref("a"), Ref("zzz")), "unknown task: zzz"},
		{"duplicate reference", Series(Ref("a"), Parallel(Ref("b"), Ref("a"))), "referenced more than once"},
		{"nil step", Series(Ref("a"), nil), "empty step"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Plan(tt.step, reg)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestStepString(t *testing.T) {
	assert.Equal(t,
		"series(clean, parallel(html, scripts, fonts), fonts-style, styles)",
		assetPipeline().String())
	assert.Equal(t, "series(a, b)", Refs("a", "b").String())
}

func TestRunner_SeriesAwaitsCompletion(t *testing.T) {
	tr := &trace{}
	reg := newRegistry(t, tr, "clean", "html", "scripts", "fonts", "fonts-style", "styles")
	runner := NewRunner(reg, WithLogger(testutil.NewTestLogger(t)))

	result, err := runner.Run(context.Background(), Pipeline{Name: "default", Root: assetPipeline()})
	require.NoError(t, err)
	assert.Len(t, result.Tasks, 6)
	assert.Empty(t, result.Failed())

	for _, group := range []string{"html", "scripts", "fonts"} {
		assert.Less(t, tr.index("end:clean"), tr.index("start:"+group))
		assert.Less(t, tr.index("end:"+group), tr.index("start:fonts-style"))
	}
	assert.Less(t, tr.index("end:fonts-style"), tr.index("start:styles"))
}

func TestRunner_ParallelTasksOverlap(t *testing.T) {
	reg := NewRegistry()
	var running, maxRunning atomic.Int32
	release := make(chan struct{})
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, reg.Register(&Task{Name: name, Run: func(ctx context.Context) error {
			n := running.Add(1)
			for {
				m := maxRunning.Load()
				if n <= m || maxRunning.CompareAndSwap(m, n) {
					break
				}
			}
			if n == 3 {
				close(release)
			}
			select {
			case <-release:
			case <-time.After(2 * time.Second):
			}
			running.Add(-1)
			return nil
		}}))
	}

	_, err := NewRunner(reg).RunStep(context.Background(), "p", Parallel(Ref("a"), Ref("b"), Ref("c")))
	require.NoError(t, err)
	assert.Equal(t, int32(3), maxRunning.Load())
}

func failingRegistry(t *testing.T, tr *trace) *Registry {
	t.Helper()
	reg := newRegistry(t, tr, "clean", "html", "fonts-style", "styles")
	require.NoError(t, reg.Register(&Task{Name: "scripts", Run: func(context.Context) error {
		tr.add("start:scripts")
		return errors.New("main.js:3:7: unexpected token")
	}}))
	return reg
}

func TestRunner_ContinueOnError(t *testing.T) {
	tr := &trace{}
	reg := failingRegistry(t, tr)
	step := Series(Ref("clean"), Parallel(Ref("html"), Ref("scripts")), Ref("fonts-style"), Ref("styles"))

	result, err := NewRunner(reg, WithPolicy(ContinueOnError)).RunStep(context.Background(), "default", step)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scripts: main.js:3:7: unexpected token")

	failed := result.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "scripts", failed[0].Name)

	styles, ok := result.Task("styles")
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, styles.Status)
	assert.NotEqual(t, -1, tr.index("end:styles"))
}

func TestRunner_FailFast(t *testing.T) {
	tr := &trace{}
	reg := failingRegistry(t, tr)
	step := Series(Ref("clean"), Parallel(Ref("html"), Ref("scripts")), Ref("fonts-style"), Ref("styles"))

	result, err := NewRunner(reg, WithPolicy(FailFast)).RunStep(context.Background(), "build", step)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scripts")

	for _, name := range []string{"fonts-style", "styles"} {
		res, ok := result.Task(name)
		require.True(t, ok, name)
		assert.Equal(t, StatusSkipped, res.Status, name)
		assert.Equal(t, -1, tr.index("start:"+name), name)
	}
}

type recordingReporter struct {
	mu       sync.Mutex
	started  []string
	finished map[string]Status
}

func (r *recordingReporter) TaskStarted(name string) {
	r.mu.Lock()
	r.started = append(r.started, name)
	r.mu.Unlock()
}

func (r *recordingReporter) TaskFinished(res TaskResult) {
	r.mu.Lock()
	r.finished[res.Name] = res.Status
	r.mu.Unlock()
}

type recorderFunc func(ctx context.Context, res TaskResult) error

func (f recorderFunc) RecordTask(ctx context.Context, res TaskResult) error { return f(ctx, res) }

func TestRunner_ReportsAndRecords(t *testing.T) {
	tr := &trace{}
	reg := failingRegistry(t, tr)
	rep := &recordingReporter{finished: map[string]Status{}}

	var mu sync.Mutex
	recorded := map[string]Status{}
	rec := recorderFunc(func(ctx context.Context, res TaskResult) error {
		mu.Lock()
		recorded[res.Name] = res.Status
		mu.Unlock()
		return errors.New("disk full")
	})

	_, err := NewRunner(reg,
		WithPolicy(FailFast),
		WithReporter(rep),
		WithRecorder(rec),
		WithLogger(testutil.NewTestLogger(t)),
	).RunStep(context.Background(), "build", Series(Ref("clean"), Ref("scripts"), Ref("styles")))
	require.Error(t, err)

	assert.Equal(t, []string{"clean", "scripts"}, rep.started)
	assert.Equal(t, map[string]Status{
		"clean":   StatusSuccess,
		"scripts": StatusFailed,
		"styles":  StatusSkipped,
	}, rep.finished)
	assert.Equal(t, rep.finished, recorded)
}

func TestRunner_PanicBecomesFailure(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Task{Name: "boom", Run: func(context.Context) error {
		panic("nil map")
	}}))

	result, err := NewRunner(reg).RunStep(context.Background(), "p", Ref("boom"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: nil map")
	assert.Len(t, result.Failed(), 1)
}

func TestRunner_CancelSkipsWaitingTasks(t *testing.T) {
	reg := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, reg.Register(&Task{Name: "watch", Run: func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return nil
	}}))
	require.NoError(t, reg.Register(&Task{Name: "after", Run: func(context.Context) error {
		t.Error("task after cancellation must not run")
		return nil
	}}))

	result, err := NewRunner(reg).RunStep(ctx, "p", Refs("watch", "after"))
	require.ErrorIs(t, err, context.Canceled)

	watch, _ := result.Task("watch")
	assert.Equal(t, StatusSuccess, watch.Status)
	after, _ := result.Task("after")
	assert.Equal(t, StatusSkipped, after.Status)
}

func TestRunner_PlanErrorReturnsNoResult(t *testing.T) {
	result, err := NewRunner(NewRegistry()).RunStep(context.Background(), "p", Ref("nope"))
	assert.Nil(t, result)
	assert.ErrorContains(t, err, "unknown task")
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "fail-fast", FailFast.String())
	assert.Equal(t, "continue-on-error", ContinueOnError.String())
}
