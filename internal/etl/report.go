package etl

import (
	"log"
	"sync"
	"time"

	"shopetl/internal/pipeline"
)

// errAgg keeps the first few messages of a kind and counts all of them.
type errAgg struct {
	mu      sync.Mutex
	limit   int
	count   int
	first   []string
	buckets map[string]int
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit, buckets: make(map[string]int)}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	a.buckets[msg]++
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
	a.mu.Unlock()
}

// logRejects prints the aggregated messages of a, if any.
func logRejects(table, what string, a *errAgg) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.count == 0 {
		return
	}
	log.Printf("etl: table=%s %s: %d (showing first %d)", table, what, a.count, len(a.first))
	for i, s := range a.first {
		log.Printf("  #%03d: %s", i+1, s)
	}
}

// LogSummary prints one line per task and a run total.
func LogSummary(rep pipeline.Report) {
	for _, t := range rep.Tasks {
		c := t.Counts
		line := "summary: task=%s state=%s extracted=%d dropped=%d rejected=%d gaps=%d attempted=%d inserted=%d skipped=%d took=%s"
		args := []any{t.Name, t.State, c.Extracted, c.Dropped, c.Rejected, c.Gaps, c.Attempted, c.Inserted, c.Skipped(),
			t.Duration.Truncate(time.Millisecond)}
		if t.Err != nil {
			line += " err=%v"
			args = append(args, t.Err)
		}
		log.Printf(line, args...)
	}
	tot := rep.Totals()
	log.Printf("summary: run=%s job=%s state=%s inserted=%d skipped=%d dropped=%d rejected=%d gaps=%d elapsed=%s",
		rep.RunID, rep.Job, rep.State, tot.Inserted, tot.Skipped(), tot.Dropped, tot.Rejected, tot.Gaps,
		rep.Duration.Truncate(time.Millisecond))
}
