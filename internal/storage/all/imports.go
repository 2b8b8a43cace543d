// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete storage backend to run,
// which in turn register their factories and schema scripts with the storage
// package.
//
// Importing this package makes the following storage kinds available:
//
//   - "postgres" (shopetl/internal/storage/postgres)
//   - "mssql"    (shopetl/internal/storage/mssql)
//   - "sqlite"   (shopetl/internal/storage/sqlite)
//
// Typical usage (in cmd/etl or a similar wiring layer):
//
//	import _ "shopetl/internal/storage/all" // enable all built-in backends
//
//	repo, err := storage.New(ctx, storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.DSN})
//	if err != nil {
//	    // handle error
//	}
//	defer repo.Close()
//	if p.Storage.AutoMigrate {
//	    err = storage.EnsureSchema(ctx, repo, cfg)
//	}
//
// A binary that supports only a subset of backends can import the backend
// packages it needs directly instead.
package all

import (
	_ "shopetl/internal/storage/mssql"
	_ "shopetl/internal/storage/postgres"
	_ "shopetl/internal/storage/sqlite"
)
