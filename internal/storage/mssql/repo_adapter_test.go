package mssql

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopetl/internal/storage"
)

// TestMSSQLStorageRegistrationUsesNewRepositoryHook verifies that the "mssql"
// storage backend registered in init() uses the newRepository hook and that
// the wrappedRepo correctly propagates configuration and close behavior.
func TestMSSQLStorageRegistrationUsesNewRepositoryHook(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var (
		called bool
		gotCfg Config
		closed bool
	)
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		called = true
		gotCfg = cfg
		return &Repository{}, func() { closed = true }, nil
	}

	repo, err := storage.New(context.Background(), storage.Config{Kind: "mssql", DSN: "sqlserver://example"})
	require.NoError(t, err)
	require.True(t, called, "newRepository hook was not called")
	assert.Equal(t, "sqlserver://example", gotCfg.DSN)

	repo.Close()
	assert.True(t, closed, "Close did not invoke closeFn")
}

func TestMSSQLSchemaRegistered(t *testing.T) {
	stmts, err := storage.SchemaStatements(storage.Config{Kind: "mssql"})
	require.NoError(t, err)
	require.NotEmpty(t, stmts)
	assert.True(t, strings.HasPrefix(stmts[0], "IF OBJECT_ID(N'[product_categories]', N'U') IS NULL"))
}

func TestNewRepository_RejectsEmptyDSN(t *testing.T) {
	_, _, err := NewRepository(context.Background(), Config{DSN: "  "})
	assert.Error(t, err)
}
