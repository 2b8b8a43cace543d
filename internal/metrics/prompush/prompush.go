// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// This package adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang CounterVec and SummaryVec collectors.
//   - Mapping the pipeline labels (task, status, relation, kind) onto
//     Prometheus labels.
//   - Pushing collected metrics to a Prometheus Pushgateway instance instead of
//     exposing an HTTP scrape endpoint.
//
// The job label is not a collector label: it is the Pushgateway grouping key.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"shopetl/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	taskCounter  *prometheus.CounterVec // etl_task_total
	taskDuration *prometheus.SummaryVec // etl_task_duration_seconds
	runCounter   *prometheus.CounterVec // etl_run_total
	runDuration  *prometheus.SummaryVec // etl_run_duration_seconds

	recordCounter *prometheus.CounterVec // etl_records_total
	batchCounter  *prometheus.CounterVec // etl_batches_total
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name (often the pipeline job).
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "shopetl"
	}

	objectives := map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}
	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		taskCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.TaskTotal,
			Help: "Pipeline task executions, partitioned by task and terminal status.",
		}, []string{"task", "status"}),
		taskDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.TaskDurationSeconds,
			Help:       "Duration of pipeline tasks in seconds, partitioned by task and status.",
			Objectives: objectives,
		}, []string{"task", "status"}),
		runCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RunTotal,
			Help: "Pipeline runs, partitioned by overall status.",
		}, []string{"status"}),
		runDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.RunDurationSeconds,
			Help:       "Duration of pipeline runs in seconds.",
			Objectives: objectives,
		}, []string{"status"}),
		recordCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Record-level counts per relation and kind (extracted, dropped, inserted, ...).",
		}, []string{"relation", "kind"}),
		batchCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Batches flushed to the store per relation.",
		}, []string{"relation"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"task counter":   b.taskCounter,
		"task summary":   b.taskDuration,
		"run counter":    b.runCounter,
		"run summary":    b.runDuration,
		"record counter": b.recordCounter,
		"batch counter":  b.batchCounter,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.TaskTotal:
		if b.taskCounter == nil {
			return
		}
		b.taskCounter.WithLabelValues(labels["task"], labels["status"]).Add(delta)

	case metrics.RunTotal:
		if b.runCounter == nil {
			return
		}
		b.runCounter.WithLabelValues(labels["status"]).Add(delta)

	case metrics.RecordsTotal:
		if b.recordCounter == nil {
			return
		}
		b.recordCounter.WithLabelValues(labels["relation"], labels["kind"]).Add(delta)

	case metrics.BatchesTotal:
		if b.batchCounter == nil {
			return
		}
		b.batchCounter.WithLabelValues(labels["relation"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.TaskDurationSeconds:
		if b.taskDuration == nil {
			return
		}
		b.taskDuration.WithLabelValues(labels["task"], labels["status"]).Observe(value)
	case metrics.RunDurationSeconds:
		if b.runDuration == nil {
			return
		}
		b.runDuration.WithLabelValues(labels["status"]).Observe(value)
	}
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
