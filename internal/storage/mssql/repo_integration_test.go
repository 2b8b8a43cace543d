//go:build integration

package mssql

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopetl/internal/storage"
)

// getTestDSN reads the MSSQL_TEST_DSN environment variable.
// If it is empty, the caller should skip the test.
func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("MSSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MSSQL_TEST_DSN not set; skipping MSSQL integration tests")
	}
	return dsn
}

func TestRepositoryIntegration(t *testing.T) {
	dsn := getTestDSN(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg := storage.Config{Kind: "mssql", DSN: dsn}
	repo, err := storage.New(ctx, cfg)
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, storage.EnsureSchema(ctx, repo, cfg))
	require.NoError(t, storage.EnsureSchema(ctx, repo, cfg))

	cols := []string{"category_id", "name", "description", "parent_id", "created_at"}
	rows := [][]any{
		{"900001", "Books", nil, nil, nil},
		{"900001", "Books again", nil, nil, nil},
	}
	res, err := repo.CopyFrom(ctx, "product_categories", cols, rows)
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Inserted, int64(1))

	keys, err := repo.ExistingKeys(ctx, "product_categories", "category_id", []int64{900001, 900002})
	require.NoError(t, err)
	assert.Contains(t, keys, int64(900001))
	assert.NotContains(t, keys, int64(900002))

	require.NoError(t, repo.Refresh(ctx, "product_sales_summary"))
}
