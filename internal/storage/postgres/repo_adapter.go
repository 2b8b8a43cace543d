package postgres

import (
	"context"

	"shopetl/internal/storage"
	pgddl "shopetl/internal/storage/postgres/ddl"
)

// newRepository opens the backend for the registered factory; tests swap it
// for a stub.
var newRepository = NewRepository

// wrappedRepo ties the repository to the cleanup returned by NewRepository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

var _ storage.Repository = (*wrappedRepo)(nil)

func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})

	storage.RegisterDDL("postgres", func(cfg storage.Config) ([]string, error) {
		return pgddl.Script(pgddl.Options{FromYear: cfg.FromYear, ToYear: cfg.ToYear})
	})
}
