package storage

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// SchemaScript returns the ordered DDL statements that create every relation,
// partition and derived view for a backend. Statements must be idempotent.
type SchemaScript func(cfg Config) ([]string, error)

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]SchemaScript{}
)

// RegisterDDL registers (or replaces) the schema script for kind. It is
// typically called from backend packages' init functions.
func RegisterDDL(kind string, fn SchemaScript) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// SchemaStatements renders the schema script for cfg.Kind without executing
// it.
func SchemaStatements(cfg Config) ([]string, error) {
	ddlMu.RLock()
	fn, ok := ddlFns[cfg.Kind]
	ddlMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no DDL registered for storage kind %q", cfg.Kind)
	}
	return fn(cfg)
}

// EnsureSchema applies the schema script for cfg.Kind through repo.Exec. It
// is safe to run against an already migrated store.
func EnsureSchema(ctx context.Context, repo Repository, cfg Config) error {
	stmts, err := SchemaStatements(cfg)
	if err != nil {
		return err
	}
	for i, s := range stmts {
		if err := repo.Exec(ctx, s); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	log.Printf("storage: schema ensured kind=%s statements=%d", cfg.Kind, len(stmts))
	return nil
}
