package extract

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopetl/internal/config"
	"shopetl/internal/datasource"
	"shopetl/internal/datasource/file"
	"shopetl/internal/etlerr"
)

const products = "\uFEFFProduct ID,Name,Price\n" +
	"1,Lamp,10.00\n" +
	"2,Desk,99.50\n" +
	"3,Chair,45.00\n" +
	"4,Rug,20.00\n" +
	"5,Shelf,70.00\n"

func dataset(data string, chunk int) Dataset {
	return Dataset{
		Source:    datasource.NewStatic("products.csv", data),
		ChunkSize: chunk,
		Options:   OptionsFrom(config.Options{}),
	}
}

func readAll(t *testing.T, d Dataset) []Batch {
	t.Helper()
	var out []Batch
	require.NoError(t, d.Each(context.Background(), func(b Batch) error {
		out = append(out, b)
		return nil
	}))
	return out
}

func TestReader_ChunksInSourceOrder(t *testing.T) {
	batches := readAll(t, dataset(products, 2))

	require.Len(t, batches, 3)
	assert.Equal(t, []int{2, 2, 1}, []int{batches[0].Len(), batches[1].Len(), batches[2].Len()})
	for i, b := range batches {
		assert.Equal(t, i, b.Seq)
	}

	first := batches[0].Records[0]
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, "1", first.Get("product_id"))
	assert.Equal(t, "Lamp", first.Get("name"))
	assert.Equal(t, "5", batches[2].Records[0].Get("product_id"))
}

func TestReader_RestartIsIdentical(t *testing.T) {
	d := dataset(products, 2)
	a := readAll(t, d)
	b := readAll(t, d)

	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Fingerprint, b[i].Fingerprint)
		assert.Equal(t, a[i].Records, b[i].Records)
	}
	assert.NotEqual(t, a[0].Fingerprint, a[1].Fingerprint)
}

func TestReader_EmptySource(t *testing.T) {
	for _, data := range []string{"", "product_id,name\n"} {
		r, err := dataset(data, 10).Open(context.Background())
		require.NoError(t, err)
		_, err = r.Next()
		assert.ErrorIs(t, err, io.EOF)
		require.NoError(t, r.Close())
	}
}

func TestReader_MalformedRecordDoesNotAbort(t *testing.T) {
	data := "id,name\n" +
		"1,ok\n" +
		"2,\"broken\"quote\n" +
		"3,two,extra\n" +
		"4,fine\n"
	batches := readAll(t, dataset(data, 10))
	require.Len(t, batches, 1)
	recs := batches[0].Records
	require.Len(t, recs, 4)

	assert.NoError(t, recs[0].Malformed)
	assert.Error(t, recs[1].Malformed)
	assert.Error(t, recs[2].Malformed)
	assert.NoError(t, recs[3].Malformed)
	assert.Equal(t, "fine", recs[3].Get("name"))
}

func TestReader_OptionsAndNormalization(t *testing.T) {
	d := Dataset{
		Source: datasource.NewStatic("c.csv", "Customer ID;First Name\n 7 ; Café \n"),
		Options: OptionsFrom(config.Options{
			"comma":      ";",
			"header_map": map[string]any{"Customer ID": "customer_id"},
		}),
	}
	batches := readAll(t, d)
	require.Len(t, batches, 1)
	rec := batches[0].Records[0]
	assert.Equal(t, "7", rec.Get("customer_id"))
	assert.Equal(t, "Café", rec.Get("first_name"))
}

func TestReader_Headerless(t *testing.T) {
	d := Dataset{
		Source:  datasource.NewStatic("x.csv", "1,a\n2,b\n"),
		Options: Options{Columns: []string{"id", "name"}},
	}
	batches := readAll(t, d)
	require.Len(t, batches, 1)
	assert.Equal(t, "b", batches[0].Records[1].Get("name"))

	_, err := Dataset{Source: datasource.NewStatic("x.csv", "1,a\n")}.Open(context.Background())
	assert.ErrorIs(t, err, etlerr.ErrSourceUnreadable)
}

func TestOpen_MissingFileIsSourceUnreadable(t *testing.T) {
	d := Dataset{Source: file.NewLocal(filepath.Join(t.TempDir(), "missing.csv")), Options: Options{HasHeader: true}}
	_, err := d.Probe(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, etlerr.ErrSourceUnreadable)
	assert.Equal(t, "source_unreadable", etlerr.Kind(err))
}

func TestReader_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r, err := dataset(products, 2).Open(ctx)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	require.NoError(t, err)
	cancel()
	_, err = r.Next()
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEach_StopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := dataset(products, 1).Each(context.Background(), func(Batch) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
