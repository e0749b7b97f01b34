// Package pipeline composes named tasks into series and parallel groups and
// runs them as a dependency graph.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/leapstack-labs/assetpipe/internal/dag"
)

// Task is a named unit of work.
type Task struct {
	Name        string
	Description string
	Run         func(ctx context.Context) error
}

// Registry holds tasks by name in registration order.
type Registry struct {
	tasks map[string]*Task
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Register adds a task. Names must be unique and non-empty.
func (r *Registry) Register(t *Task) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if t.Run == nil {
		return fmt.Errorf("task %s has no body", t.Name)
	}
	if _, exists := r.tasks[t.Name]; exists {
		return fmt.Errorf("task %s is already registered", t.Name)
	}
	r.tasks[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Get returns the task registered under name.
func (r *Registry) Get(name string) (*Task, bool) {
	t, ok := r.tasks[name]
	return t, ok
}

// Tasks returns all tasks in registration order.
func (r *Registry) Tasks() []*Task {
	out := make([]*Task, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tasks[name])
	}
	return out
}

// Step is a node of a task composition.
type Step interface {
	String() string
}

type refStep string

func (s refStep) String() string { return string(s) }

type seriesStep []Step

func (s seriesStep) String() string { return "series(" + joinSteps(s) + ")" }

type parallelStep []Step

func (s parallelStep) String() string { return "parallel(" + joinSteps(s) + ")" }

func joinSteps(steps []Step) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}

// Ref refers to a registered task by name.
func Ref(name string) Step { return refStep(name) }

// Series runs steps one after another; each step starts only after every
// task of the previous step has finished.
func Series(steps ...Step) Step { return seriesStep(steps) }

// Parallel runs steps concurrently.
func Parallel(steps ...Step) Step { return parallelStep(steps) }

// Refs builds a series of task references.
func Refs(names ...string) Step {
	steps := make([]Step, len(names))
	for i, n := range names {
		steps[i] = Ref(n)
	}
	return Series(steps...)
}

// Pipeline is a named, externally invocable composition.
type Pipeline struct {
	Name        string
	Description string
	Root        Step
}

// Plan compiles a composition into a task graph. Every task may appear at
// most once and must be registered.
func Plan(step Step, reg *Registry) (*dag.Graph[*Task], error) {
	g := dag.NewGraph[*Task]()
	if _, _, err := compile(step, reg, g); err != nil {
		return nil, err
	}
	if hasCycle, cycle := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("task graph has a cycle: %s", strings.Join(cycle, " -> "))
	}
	return g, nil
}

// compile adds step to g and returns its entry and exit tasks.
func compile(step Step, reg *Registry, g *dag.Graph[*Task]) (sources, sinks []string, err error) {
	switch s := step.(type) {
	case refStep:
		name := string(s)
		t, ok := reg.Get(name)
		if !ok {
			return nil, nil, fmt.Errorf("unknown task: %s", name)
		}
		if g.HasNode(name) {
			return nil, nil, fmt.Errorf("task %s is referenced more than once", name)
		}
		g.AddNode(name, t)
		return []string{name}, []string{name}, nil

	case seriesStep:
		for _, child := range s {
			src, snk, err := compile(child, reg, g)
			if err != nil {
				return nil, nil, err
			}
			if len(src) == 0 {
				continue
			}
			for _, from := range sinks {
				for _, to := range src {
					if err := g.AddEdge(from, to); err != nil {
						return nil, nil, err
					}
				}
			}
			if sources == nil {
				sources = src
			}
			sinks = snk
		}
		return sources, sinks, nil

	case parallelStep:
		for _, child := range s {
			src, snk, err := compile(child, reg, g)
			if err != nil {
				return nil, nil, err
			}
			sources = append(sources, src...)
			sinks = append(sinks, snk...)
		}
		return sources, sinks, nil

	case nil:
		return nil, nil, fmt.Errorf("empty step")

	default:
		return nil, nil, fmt.Errorf("unsupported step type %T", step)
	}
}

// Levels returns the groups of tasks that can run concurrently, in order.
func Levels(step Step, reg *Registry) ([][]string, error) {
	g, err := Plan(step, reg)
	if err != nil {
		return nil, err
	}
	return g.GetExecutionLevels()
}
