// Package pipeline runs a directed acyclic graph of named tasks.
//
// A task runs only when every task it depends on has succeeded. Independent
// ready tasks run concurrently up to a configured bound. When a task fails,
// every descendant that has not started is skipped and the run fails; tasks
// on unrelated branches keep running. Each task hands a Result downstream;
// a task sees the results of all its ancestors.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrDuplicateTask is returned by New when two tasks share a name.
	ErrDuplicateTask = errors.New("duplicate task")

	// ErrUnknownDependency is returned by New when a task depends on a name
	// that is not in the graph.
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrCycle is returned by New when the dependencies contain a cycle.
	ErrCycle = errors.New("dependency cycle")
)

// Resources are per-task hints for the host that schedules the run. The
// coordinator itself does not enforce them.
type Resources struct {
	CPU    string `json:"cpu,omitempty"`
	Memory string `json:"memory,omitempty"`
}

// Counts are the record-level figures a task reports.
type Counts struct {
	Extracted int64 `json:"extracted"`
	Dropped   int64 `json:"dropped"`  // malformed or missing a required value
	Rejected  int64 `json:"rejected"` // failed coercion or derivation
	Gaps      int64 `json:"referential_gaps"`
	Attempted int64 `json:"attempted"`
	Inserted  int64 `json:"inserted"`
}

// Skipped is the number of attempted rows the store already had.
func (c Counts) Skipped() int64 { return c.Attempted - c.Inserted }

// Add accumulates o into c.
func (c *Counts) Add(o Counts) {
	c.Extracted += o.Extracted
	c.Dropped += o.Dropped
	c.Rejected += o.Rejected
	c.Gaps += o.Gaps
	c.Attempted += o.Attempted
	c.Inserted += o.Inserted
}

// Result is what a task hands downstream. Output must be treated as
// read-only by every consumer.
type Result struct {
	Counts Counts
	Output any
}

// Inputs holds the results of a task's ancestors keyed by task name.
type Inputs map[string]Result

// Output returns the output of the named ancestor.
func (in Inputs) Output(name string) (any, bool) {
	r, ok := in[name]
	if !ok {
		return nil, false
	}
	return r.Output, true
}

// Func is the body of a task.
type Func func(ctx context.Context, in Inputs) (Result, error)

// Task is one node of the graph.
type Task struct {
	Name      string
	Deps      []string
	Resources Resources
	Run       Func
}

// Graph is a validated, immutable task graph.
type Graph struct {
	tasks     map[string]Task
	order     []string            // topological, ties broken by name
	ancestors map[string][]string // transitive, sorted
	children  map[string][]string
}

// New validates tasks and builds a Graph. Names must be unique and non-empty,
// every dependency must name a task in the set, and the dependencies must be
// acyclic.
func New(tasks ...Task) (*Graph, error) {
	g := &Graph{
		tasks:     make(map[string]Task, len(tasks)),
		ancestors: make(map[string][]string, len(tasks)),
		children:  make(map[string][]string, len(tasks)),
	}
	for _, t := range tasks {
		if t.Name == "" {
			return nil, fmt.Errorf("pipeline: task with empty name")
		}
		if t.Run == nil {
			return nil, fmt.Errorf("pipeline: task %s has no body", t.Name)
		}
		if _, dup := g.tasks[t.Name]; dup {
			return nil, fmt.Errorf("pipeline: %w: %s", ErrDuplicateTask, t.Name)
		}
		g.tasks[t.Name] = t
	}

	indeg := make(map[string]int, len(tasks))
	for _, t := range tasks {
		seen := make(map[string]bool, len(t.Deps))
		for _, d := range t.Deps {
			if _, ok := g.tasks[d]; !ok {
				return nil, fmt.Errorf("pipeline: %w: %s depends on %q", ErrUnknownDependency, t.Name, d)
			}
			if seen[d] {
				continue
			}
			seen[d] = true
			indeg[t.Name]++
			g.children[d] = append(g.children[d], t.Name)
		}
	}

	// Kahn's algorithm with a sorted ready set for a stable order.
	var ready []string
	for name := range g.tasks {
		if indeg[name] == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		g.order = append(g.order, n)
		for _, c := range g.children[n] {
			indeg[c]--
			if indeg[c] == 0 {
				ready = append(ready, c)
				sort.Strings(ready)
			}
		}
	}
	if len(g.order) != len(g.tasks) {
		var stuck []string
		for name := range g.tasks {
			if indeg[name] > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("pipeline: %w among %v", ErrCycle, stuck)
	}

	for _, name := range g.order {
		set := map[string]bool{}
		for _, d := range g.tasks[name].Deps {
			set[d] = true
			for _, a := range g.ancestors[d] {
				set[a] = true
			}
		}
		anc := make([]string, 0, len(set))
		for a := range set {
			anc = append(anc, a)
		}
		sort.Strings(anc)
		g.ancestors[name] = anc
	}
	return g, nil
}

// Order returns the task names in topological order.
func (g *Graph) Order() []string { return append([]string(nil), g.order...) }

// Task returns the named task.
func (g *Graph) Task(name string) (Task, bool) {
	t, ok := g.tasks[name]
	return t, ok
}

// Ancestors returns every task name name transitively depends on, sorted.
func (g *Graph) Ancestors(name string) []string {
	return append([]string(nil), g.ancestors[name]...)
}

// Descendants returns every task name that transitively depends on name,
// sorted.
func (g *Graph) Descendants(name string) []string {
	set := map[string]bool{}
	stack := append([]string(nil), g.children[name]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if set[n] {
			continue
		}
		set[n] = true
		stack = append(stack, g.children[n]...)
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
