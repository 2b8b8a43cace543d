package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopetl/internal/metrics"
)

func summary(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, v.WithLabelValues(labels...).(prometheus.Metric).Write(m))
	return m.GetSummary().GetSampleCount(), m.GetSummary().GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	_, err := NewBackend("nightly", "")
	require.Error(t, err)

	b, err := NewBackend("", "http://pushgateway:9091")
	require.NoError(t, err)
	assert.Equal(t, "shopetl", b.jobName)

	b, err = NewBackend("nightly", "http://pushgateway:9091")
	require.NoError(t, err)
	assert.Equal(t, "nightly", b.jobName)
	assert.Equal(t, "http://pushgateway:9091", b.gatewayURL)
}

func TestIncCounter(t *testing.T) {
	b, err := NewBackend("nightly", "http://pushgateway:9091")
	require.NoError(t, err)

	b.IncCounter(metrics.RecordsTotal, 10, metrics.Labels{"relation": "orders", "kind": metrics.KindExtracted})
	b.IncCounter(metrics.RecordsTotal, 2, metrics.Labels{"relation": "orders", "kind": metrics.KindGap})
	b.IncCounter(metrics.RecordsTotal, 3, metrics.Labels{"relation": "orders", "kind": metrics.KindExtracted})
	b.IncCounter(metrics.BatchesTotal, 1, metrics.Labels{"relation": "orders"})
	b.IncCounter(metrics.TaskTotal, 1, metrics.Labels{"task": "load:orders", "status": "succeeded"})
	b.IncCounter(metrics.RunTotal, 1, metrics.Labels{"status": "failed"})
	b.IncCounter("etl_unknown_total", 1, metrics.Labels{"relation": "orders"})

	assert.Equal(t, 13.0, testutil.ToFloat64(b.recordCounter.WithLabelValues("orders", metrics.KindExtracted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(b.recordCounter.WithLabelValues("orders", metrics.KindGap)))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.batchCounter.WithLabelValues("orders")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.taskCounter.WithLabelValues("load:orders", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.runCounter.WithLabelValues("failed")))
}

func TestIncCounter_NilCollectors(t *testing.T) {
	b := &Backend{}
	assert.NotPanics(t, func() {
		b.IncCounter(metrics.TaskTotal, 1, metrics.Labels{"task": "x", "status": "y"})
		b.IncCounter(metrics.RecordsTotal, 1, nil)
		b.ObserveHistogram(metrics.TaskDurationSeconds, 1, nil)
	})
}

func TestObserveHistogram(t *testing.T) {
	b, err := NewBackend("nightly", "http://pushgateway:9091")
	require.NoError(t, err)

	b.ObserveHistogram(metrics.TaskDurationSeconds, 0.5, metrics.Labels{"task": "aggregate:daily_sales", "status": "succeeded"})
	b.ObserveHistogram(metrics.TaskDurationSeconds, 1.5, metrics.Labels{"task": "aggregate:daily_sales", "status": "succeeded"})
	b.ObserveHistogram(metrics.RunDurationSeconds, 4, metrics.Labels{"status": "succeeded"})
	b.ObserveHistogram("etl_unknown_seconds", 9, nil)

	n, sum := summary(t, b.taskDuration, "aggregate:daily_sales", "succeeded")
	assert.EqualValues(t, 2, n)
	assert.InDelta(t, 2.0, sum, 1e-9)

	n, sum = summary(t, b.runDuration, "succeeded")
	assert.EqualValues(t, 1, n)
	assert.InDelta(t, 4.0, sum, 1e-9)
}

func TestFlush(t *testing.T) {
	var method, path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		method, path, body = r.Method, r.URL.Path, string(b)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	b, err := NewBackend("nightly", srv.URL)
	require.NoError(t, err)
	b.IncCounter(metrics.RecordsTotal, 4, metrics.Labels{"relation": "order_items", "kind": metrics.KindInserted})

	require.NoError(t, b.Flush())
	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasSuffix(path, "/job/nightly"), path)
	assert.NotEmpty(t, body)
}
