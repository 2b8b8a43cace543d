package mssql

import (
	"context"

	"shopetl/internal/storage"
	msddl "shopetl/internal/storage/mssql/ddl"
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
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})

	storage.RegisterDDL("mssql", func(storage.Config) ([]string, error) {
		return msddl.Script()
	})
}
