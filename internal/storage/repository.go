// Package storage contains the storage-agnostic contracts: the Repository
// every backend implements, a kind-keyed factory that backends register with
// at init time, and the Loader/Refresher wrappers the pipeline calls.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Repository is the backend contract. Every method acquires its own
// connection and releases it before returning; no connection outlives a call.
type Repository interface {
	// CopyFrom inserts rows into table in one transaction. Rows whose primary
	// or unique key already exists are skipped, not an error. The result
	// reports attempted and actually inserted counts.
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (LoadResult, error)

	// Replace deletes every row of table whose keyColumn is in keys and then
	// inserts rows, all in one transaction.
	Replace(ctx context.Context, table, keyColumn string, keys []string, columns []string, rows [][]any) (LoadResult, error)

	// ExistingKeys returns the subset of ids present in table.column.
	ExistingKeys(ctx context.Context, table, column string, ids []int64) (map[int64]struct{}, error)

	// Refresh rebuilds a derived view from the base relations.
	Refresh(ctx context.Context, view string) error

	// Exec runs a statement outside any load, typically DDL.
	Exec(ctx context.Context, sql string) error

	Close()
}

// Config is the backend-neutral open configuration.
type Config struct {
	Kind string
	DSN  string

	// FromYear and ToYear bound the yearly order partitions (Postgres only).
	FromYear int
	ToYear   int
}

// LoadResult counts the outcome of one load call.
type LoadResult struct {
	Attempted int64
	Inserted  int64
}

// Skipped is the number of attempted rows that were not inserted because
// their key already existed.
func (r LoadResult) Skipped() int64 { return r.Attempted - r.Inserted }

// Add accumulates o into r.
func (r *LoadResult) Add(o LoadResult) {
	r.Attempted += o.Attempted
	r.Inserted += o.Inserted
}

// Factory opens a Repository for a backend kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind. Backends call it
// from init; importing internal/storage/all wires every built-in backend.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens a Repository using the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown kind %q (registered: %v)", cfg.Kind, ListKinds())
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered backend kinds, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
