package file

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "orders.csv")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLocalOpen_Rereadable(t *testing.T) {
	const body = "order_id,status\n1,Delivered\n"
	src := NewLocal(writeFile(t, body))
	assert.Equal(t, filepath.Base(src.Name()), "orders.csv")

	for i := 0; i < 2; i++ {
		rc, err := src.Open(context.Background())
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, body, string(got), "open #%d", i+1)
	}
}

func TestLocalOpen_Errors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.csv")
	rc, err := NewLocal(missing).Open(context.Background())
	assert.Nil(t, rc)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), missing)

	_, err = NewLocal(t.TempDir()).Open(context.Background())
	assert.ErrorContains(t, err, "is a directory")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewLocal(writeFile(t, "x")).Open(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
