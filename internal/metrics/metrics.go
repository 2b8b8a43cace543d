// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the pipeline.
//
// The package is intentionally minimal:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data (histograms).
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - Concrete metric systems live in subpackages (prompush, datadog), the
//     same way storage backends live under internal/storage.
//
// The coordinator records one task outcome per DAG node and one run outcome
// per pipeline run; load tasks record row counts per relation and kind.
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by every backend.
const (
	TaskTotal           = "etl_task_total"
	TaskDurationSeconds = "etl_task_duration_seconds"
	RunTotal            = "etl_run_total"
	RunDurationSeconds  = "etl_run_duration_seconds"
	RecordsTotal        = "etl_records_total"
	BatchesTotal        = "etl_batches_total"
)

// Row kinds recorded through RecordRows.
const (
	KindExtracted = "extracted"
	KindMalformed = "malformed"
	KindDropped   = "dropped"
	KindRejected  = "rejected"
	KindGap       = "referential_gap"
	KindInserted  = "inserted"
	KindSkipped   = "skipped"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
// It is intentionally generic so we can plug in Prometheus, Datadog, etc.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordTask records the outcome and duration of one DAG task. status is the
// task's terminal state (succeeded, failed, skipped).
func RecordTask(job, task, status string, d time.Duration) {
	lbls := Labels{
		"job":    job,
		"task":   task,
		"status": status,
	}
	b := current()
	b.IncCounter(TaskTotal, 1, lbls)
	b.ObserveHistogram(TaskDurationSeconds, d.Seconds(), lbls)
}

// RecordRun records the outcome and duration of a whole pipeline run.
func RecordRun(job, status string, d time.Duration) {
	lbls := Labels{"job": job, "status": status}
	b := current()
	b.IncCounter(RunTotal, 1, lbls)
	b.ObserveHistogram(RunDurationSeconds, d.Seconds(), lbls)
}

// RecordRows increments a record-level counter for relation and kind (see
// the Kind constants). Non-positive deltas are ignored.
func RecordRows(job, relation, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{
		"job":      job,
		"relation": relation,
		"kind":     kind,
	})
}

// RecordBatches increments the flushed-batch counter for relation.
func RecordBatches(job, relation string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(delta), Labels{
		"job":      job,
		"relation": relation,
	})
}
