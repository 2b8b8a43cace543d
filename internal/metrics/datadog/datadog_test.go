package datadog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopetl/internal/metrics"
)

type fakeClient struct {
	counts  map[string]int64
	hists   map[string]float64
	tags    [][]string
	flushed int
	closed  bool
}

func newFake() *fakeClient {
	return &fakeClient{counts: map[string]int64{}, hists: map[string]float64{}}
}

func (f *fakeClient) Count(name string, value int64, tags []string, rate float64) error {
	f.counts[name] += value
	f.tags = append(f.tags, tags)
	return nil
}

func (f *fakeClient) Histogram(name string, value float64, tags []string, rate float64) error {
	f.hists[name] = value
	return nil
}

func (f *fakeClient) Flush() error { f.flushed++; return nil }
func (f *fakeClient) Close() error { f.closed = true; return nil }

func TestNewBackend_RequiresAddr(t *testing.T) {
	_, err := NewBackend(Config{})
	assert.Error(t, err)
}

func TestNewBackend_UDP(t *testing.T) {
	b, err := NewBackend(Config{Addr: "127.0.0.1:8125", Namespace: "shop.", GlobalTags: []string{"env:test"}})
	require.NoError(t, err)
	require.NoError(t, b.Close())
}

func TestBackendForwardsToClient(t *testing.T) {
	fc := newFake()
	b := &Backend{client: fc}

	b.IncCounter(metrics.RecordsTotal, 3, metrics.Labels{"relation": "orders", "kind": "inserted"})
	b.ObserveHistogram(metrics.TaskDurationSeconds, 0.25, metrics.Labels{"task": "load:orders"})
	require.NoError(t, b.Flush())

	assert.Equal(t, int64(3), fc.counts[metrics.RecordsTotal])
	assert.Equal(t, []string{"kind:inserted", "relation:orders"}, fc.tags[0])
	assert.Equal(t, 0.25, fc.hists[metrics.TaskDurationSeconds])
	assert.Equal(t, 1, fc.flushed)
	assert.False(t, fc.closed)
}

func TestZeroBackendIsNoop(t *testing.T) {
	var b Backend
	b.IncCounter("x", 1, nil)
	b.ObserveHistogram("x", 1, nil)
	assert.NoError(t, b.Flush())
	assert.NoError(t, b.Close())
}

func TestLabelsToTags(t *testing.T) {
	assert.Nil(t, labelsToTags(nil))
	assert.Equal(t, []string{"a:1", "b:2"}, labelsToTags(metrics.Labels{"b": "2", "a": "1"}))
}
