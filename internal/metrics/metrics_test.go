package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	callsCounters   []counterCall
	callsHistograms []histCall
	flushCount      int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsCounters = append(f.callsCounters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsHistograms = append(f.callsHistograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

func install(t *testing.T) *fakeBackend {
	t.Helper()
	orig := current()
	t.Cleanup(func() {
		mu.Lock()
		backend = orig
		mu.Unlock()
	})
	fb := &fakeBackend{}
	SetBackend(fb)
	return fb
}

func TestRecordTask(t *testing.T) {
	fb := install(t)

	RecordTask("shop", "load:orders", "succeeded", 2*time.Second)
	RecordTask("shop", "load:order_items", "skipped", 0)

	require.Len(t, fb.callsCounters, 2)
	require.Len(t, fb.callsHistograms, 2)

	c0 := fb.callsCounters[0]
	assert.Equal(t, TaskTotal, c0.name)
	assert.Equal(t, 1.0, c0.delta)
	assert.Equal(t, Labels{"job": "shop", "task": "load:orders", "status": "succeeded"}, c0.labels)

	h0 := fb.callsHistograms[0]
	assert.Equal(t, TaskDurationSeconds, h0.name)
	assert.InDelta(t, 2.0, h0.value, 0.001)

	assert.Equal(t, "skipped", fb.callsCounters[1].labels["status"])
}

func TestRecordRun(t *testing.T) {
	fb := install(t)

	RecordRun("shop", "failed", 1500*time.Millisecond)

	require.Len(t, fb.callsCounters, 1)
	assert.Equal(t, RunTotal, fb.callsCounters[0].name)
	assert.Equal(t, "failed", fb.callsCounters[0].labels["status"])
	assert.InDelta(t, 1.5, fb.callsHistograms[0].value, 0.001)
}

func TestRecordRowsAndBatches(t *testing.T) {
	fb := install(t)

	RecordRows("shop", "orders", KindInserted, 3)
	RecordRows("shop", "orders", KindSkipped, 0) // ignored
	RecordRows("shop", "order_items", KindGap, 1)
	RecordBatches("shop", "orders", 2)
	RecordBatches("shop", "orders", -1) // ignored

	require.Len(t, fb.callsCounters, 3)

	assert.Equal(t, counterCall{RecordsTotal, 3, Labels{"job": "shop", "relation": "orders", "kind": "inserted"}}, fb.callsCounters[0])
	assert.Equal(t, counterCall{RecordsTotal, 1, Labels{"job": "shop", "relation": "order_items", "kind": "referential_gap"}}, fb.callsCounters[1])
	assert.Equal(t, counterCall{BatchesTotal, 2, Labels{"job": "shop", "relation": "orders"}}, fb.callsCounters[2])
}

func TestSetBackendAndFlush(t *testing.T) {
	fb := install(t)

	require.NoError(t, Flush())
	assert.Equal(t, 1, fb.flushCount)

	// SetBackend(nil) should not nil out the backend.
	SetBackend(nil)
	assert.Same(t, fb, current())
}
