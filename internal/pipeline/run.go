package pipeline

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"shopetl/internal/etlerr"
	"shopetl/internal/metrics"
)

// State is the lifecycle state of a task within a run.
type State int

const (
	Pending State = iota
	Running
	Succeeded
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool { return s == Succeeded || s == Failed || s == Skipped }

// Options configure a run.
type Options struct {
	// Job labels logs and metrics.
	Job string

	// MaxParallel bounds how many tasks run at once. Values below 1 mean 1.
	MaxParallel int
}

// TaskReport is the outcome of one task.
type TaskReport struct {
	Name      string
	State     State
	Counts    Counts
	Resources Resources
	Started   time.Time
	Duration  time.Duration
	Err       error
}

// Report is the outcome of a run.
type Report struct {
	RunID    string
	Job      string
	State    State // Succeeded or Failed
	Started  time.Time
	Duration time.Duration

	// Tasks are in topological order.
	Tasks []TaskReport

	// Err is the first task error observed, nil on success.
	Err error
}

// Task returns the report of the named task.
func (r Report) Task(name string) (TaskReport, bool) {
	for _, t := range r.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskReport{}, false
}

// Totals sums the counts of every task.
func (r Report) Totals() Counts {
	var c Counts
	for _, t := range r.Tasks {
		c.Add(t.Counts)
	}
	return c
}

type completion struct {
	name   string
	result Result
	err    error
	took   time.Duration
}

// Run executes the graph. It never returns early: every task ends in a
// terminal state before Run returns. Canceling ctx fails the tasks that are
// running and skips the ones that have not started.
func (g *Graph) Run(ctx context.Context, opts Options) Report {
	maxPar := opts.MaxParallel
	if maxPar < 1 {
		maxPar = 1
	}
	rep := Report{RunID: uuid.NewString(), Job: opts.Job, Started: time.Now()}
	log.Printf("pipeline: run=%s job=%s tasks=%d max_parallel=%d", rep.RunID, opts.Job, len(g.order), maxPar)

	reports := make(map[string]*TaskReport, len(g.order))
	for _, name := range g.order {
		reports[name] = &TaskReport{Name: name, State: Pending, Resources: g.tasks[name].Resources}
	}
	results := make(map[string]Result, len(g.order))

	var eg errgroup.Group
	eg.SetLimit(maxPar)
	done := make(chan completion, len(g.order))
	running := 0

	skip := func(tr *TaskReport, cause error) {
		tr.State = Skipped
		tr.Err = fmt.Errorf("%w: %w", etlerr.ErrSkipped, cause)
		metrics.RecordTask(opts.Job, tr.Name, tr.State.String(), 0)
		log.Printf("pipeline: task=%s state=skipped reason=%q", tr.Name, cause)
	}

	for {
		for _, name := range g.order {
			tr := reports[name]
			if tr.State != Pending {
				continue
			}
			if err := ctx.Err(); err != nil {
				skip(tr, err)
				continue
			}
			ready, blocked := true, ""
			for _, d := range g.tasks[name].Deps {
				switch reports[d].State {
				case Succeeded:
				case Failed, Skipped:
					blocked = d
				default:
					ready = false
				}
			}
			if blocked != "" {
				skip(tr, fmt.Errorf("upstream %s %s", blocked, reports[blocked].State))
				continue
			}
			if !ready {
				continue
			}

			in := make(Inputs, len(g.ancestors[name]))
			for _, a := range g.ancestors[name] {
				in[a] = results[a]
			}
			tr.State = Running
			tr.Started = time.Now()
			running++
			task := g.tasks[name]
			eg.Go(func() error {
				start := time.Now()
				res, err := invoke(ctx, task, in)
				if err == nil && ctx.Err() != nil {
					err = ctx.Err()
				}
				done <- completion{name: task.Name, result: res, err: err, took: time.Since(start)}
				return nil
			})
		}
		if running == 0 {
			break
		}

		c := <-done
		running--
		tr := reports[c.name]
		tr.Duration = c.took
		tr.Counts = c.result.Counts
		if c.err != nil {
			tr.State = Failed
			tr.Err = c.err
			if rep.Err == nil {
				rep.Err = fmt.Errorf("%s: %w", c.name, c.err)
			}
			log.Printf("pipeline: task=%s state=failed kind=%s duration=%s err=%v",
				c.name, etlerr.Kind(c.err), c.took.Truncate(time.Millisecond), c.err)
		} else {
			tr.State = Succeeded
			results[c.name] = c.result
			log.Printf("pipeline: task=%s state=succeeded duration=%s extracted=%d dropped=%d rejected=%d gaps=%d inserted=%d skipped=%d",
				c.name, c.took.Truncate(time.Millisecond), tr.Counts.Extracted, tr.Counts.Dropped,
				tr.Counts.Rejected, tr.Counts.Gaps, tr.Counts.Inserted, tr.Counts.Skipped())
		}
		metrics.RecordTask(opts.Job, c.name, tr.State.String(), c.took)
	}
	_ = eg.Wait()

	rep.State = Succeeded
	for _, name := range g.order {
		tr := reports[name]
		if tr.State != Succeeded {
			rep.State = Failed
			if rep.Err == nil {
				rep.Err = tr.Err
			}
		}
		rep.Tasks = append(rep.Tasks, *tr)
	}
	rep.Duration = time.Since(rep.Started)
	metrics.RecordRun(opts.Job, rep.State.String(), rep.Duration)
	log.Printf("pipeline: run=%s state=%s duration=%s", rep.RunID, rep.State, rep.Duration.Truncate(time.Millisecond))
	return rep
}

// invoke runs a task body, turning a panic into a task failure.
func invoke(ctx context.Context, t Task, in Inputs) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("pipeline: task=%s panic: %v\n%s", t.Name, r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Run(ctx, in)
}

