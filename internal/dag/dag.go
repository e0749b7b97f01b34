// Package dag provides the directed acyclic graph that orders build tasks.
// A node is a task name; an edge parent -> child means the child may only
// start after the parent has finished.
package dag

import (
	"fmt"
	"slices"
)

// Node is a named vertex carrying a payload.
type Node[T any] struct {
	ID   string
	Data T
}

// Graph is a directed graph of named nodes. Iteration follows insertion
// order so plans and listings are stable.
type Graph[T any] struct {
	nodes    map[string]*Node[T]
	order    []string
	children map[string][]string
	parents  map[string][]string
}

// NewGraph creates an empty graph.
func NewGraph[T any]() *Graph[T] {
	return &Graph[T]{
		nodes:    make(map[string]*Node[T]),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// AddNode adds a node. Adding an existing ID replaces its data.
func (g *Graph[T]) AddNode(id string, data T) {
	if n, ok := g.nodes[id]; ok {
		n.Data = data
		return
	}
	g.nodes[id] = &Node[T]{ID: id, Data: data}
	g.order = append(g.order, id)
}

// HasNode reports whether id is part of the graph.
func (g *Graph[T]) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// AddEdge makes child wait for parent. Repeated edges are ignored.
func (g *Graph[T]) AddEdge(parent, child string) error {
	switch {
	case !g.HasNode(parent):
		return fmt.Errorf("parent node %q does not exist", parent)
	case !g.HasNode(child):
		return fmt.Errorf("child node %q does not exist", child)
	case parent == child:
		return fmt.Errorf("self-loop detected: %s", parent)
	}
	if slices.Contains(g.children[parent], child) {
		return nil
	}
	g.children[parent] = append(g.children[parent], child)
	g.parents[child] = append(g.parents[child], parent)
	return nil
}

// GetParents returns the nodes id waits for.
func (g *Graph[T]) GetParents(id string) []string {
	return g.parents[id]
}

// Nodes returns all nodes in insertion order.
func (g *Graph[T]) Nodes() []*Node[T] {
	nodes := make([]*Node[T], len(g.order))
	for i, id := range g.order {
		nodes[i] = g.nodes[id]
	}
	return nodes
}

// NodeCount returns the number of nodes.
func (g *Graph[T]) NodeCount() int {
	return len(g.nodes)
}

// HasCycle reports whether the graph contains a cycle and, if so, the nodes
// along it with the first node repeated at the end.
func (g *Graph[T]) HasCycle() (bool, []string) {
	const (
		unvisited = iota
		onStack
		finished
	)
	state := make(map[string]int, len(g.order))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = onStack
		stack = append(stack, id)
		for _, c := range g.children[id] {
			switch state[c] {
			case onStack:
				start := slices.Index(stack, c)
				return append(slices.Clone(stack[start:]), c)
			case unvisited:
				if cycle := visit(c); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = finished
		return nil
	}

	for _, id := range g.order {
		if state[id] != unvisited {
			continue
		}
		if cycle := visit(id); cycle != nil {
			return true, cycle
		}
	}
	return false, nil
}

// kahn walks the graph in dependency order. Ready nodes are taken in the
// order they became ready, starting with roots in insertion order.
func (g *Graph[T]) kahn(visit func(id string)) error {
	pending := make(map[string]int, len(g.order))
	var queue []string
	for _, id := range g.order {
		pending[id] = len(g.parents[id])
		if pending[id] == 0 {
			queue = append(queue, id)
		}
	}

	seen := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		seen++
		visit(id)
		for _, c := range g.children[id] {
			pending[c]--
			if pending[c] == 0 {
				queue = append(queue, c)
			}
		}
	}

	if seen != len(g.order) {
		_, cycle := g.HasCycle()
		return fmt.Errorf("cycle detected: %v", cycle)
	}
	return nil
}

// GetExecutionLevels groups nodes by the length of the longest dependency
// chain leading to them. Nodes of one level may run in parallel once the
// previous level has completed; level 0 holds the roots. Within a level,
// nodes keep insertion order.
func (g *Graph[T]) GetExecutionLevels() ([][]string, error) {
	level := make(map[string]int, len(g.order))
	depth := 0
	err := g.kahn(func(id string) {
		for _, p := range g.parents[id] {
			level[id] = max(level[id], level[p]+1)
		}
		depth = max(depth, level[id]+1)
	})
	if err != nil {
		return nil, err
	}

	levels := make([][]string, depth)
	for _, id := range g.order {
		levels[level[id]] = append(levels[level[id]], id)
	}
	return levels, nil
}
