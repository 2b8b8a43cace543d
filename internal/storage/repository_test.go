package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo is a minimal Repository implementation for tests. Rows are
// "inserted" unless their first value was seen before.
type fakeRepo struct {
	seen      map[any]bool
	execs     []string
	refreshed []string
	failCopy  error
	failExec  error
	closed    bool
}

func newFake() *fakeRepo { return &fakeRepo{seen: map[any]bool{}} }

func (f *fakeRepo) CopyFrom(_ context.Context, _ string, _ []string, rows [][]any) (LoadResult, error) {
	if f.failCopy != nil {
		return LoadResult{}, f.failCopy
	}
	res := LoadResult{Attempted: int64(len(rows))}
	for _, r := range rows {
		if !f.seen[r[0]] {
			f.seen[r[0]] = true
			res.Inserted++
		}
	}
	return res, nil
}

func (f *fakeRepo) Replace(ctx context.Context, table, _ string, _ []string, columns []string, rows [][]any) (LoadResult, error) {
	return f.CopyFrom(ctx, table, columns, rows)
}

func (f *fakeRepo) ExistingKeys(_ context.Context, _, _ string, ids []int64) (map[int64]struct{}, error) {
	out := map[int64]struct{}{}
	for _, id := range ids {
		if f.seen[id] {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (f *fakeRepo) Refresh(_ context.Context, view string) error {
	if f.failExec != nil {
		return f.failExec
	}
	f.refreshed = append(f.refreshed, view)
	return nil
}

func (f *fakeRepo) Exec(_ context.Context, sql string) error {
	if f.failExec != nil {
		return f.failExec
	}
	f.execs = append(f.execs, sql)
	return nil
}

func (f *fakeRepo) Close() { f.closed = true }

func TestRegisterAndNew(t *testing.T) {
	Register("fake", func(ctx context.Context, cfg Config) (Repository, error) {
		return newFake(), nil
	})

	repo, err := New(context.Background(), Config{Kind: "fake"})
	require.NoError(t, err)
	require.NotNil(t, repo)
	assert.Contains(t, ListKinds(), "fake")
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(context.Background(), Config{Kind: "does-not-exist"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestNew_FactoryError(t *testing.T) {
	boom := errors.New("dial failed")
	Register("broken", func(ctx context.Context, cfg Config) (Repository, error) { return nil, boom })
	_, err := New(context.Background(), Config{Kind: "broken"})
	assert.ErrorIs(t, err, boom)
}

func TestLoadResult(t *testing.T) {
	r := LoadResult{Attempted: 5, Inserted: 3}
	r.Add(LoadResult{Attempted: 2, Inserted: 2})
	assert.Equal(t, LoadResult{Attempted: 7, Inserted: 5}, r)
	assert.EqualValues(t, 2, r.Skipped())
}

func TestEnsureSchema(t *testing.T) {
	RegisterDDL("fake", func(cfg Config) ([]string, error) {
		return []string{"CREATE A", "CREATE B"}, nil
	})
	repo := newFake()
	require.NoError(t, EnsureSchema(context.Background(), repo, Config{Kind: "fake"}))
	assert.Equal(t, []string{"CREATE A", "CREATE B"}, repo.execs)

	repo.failExec = errors.New("syntax")
	err := EnsureSchema(context.Background(), repo, Config{Kind: "fake"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement 1")

	_, err = SchemaStatements(Config{Kind: "nope"})
	assert.Error(t, err)
}
