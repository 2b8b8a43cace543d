// Package postgres implements a Postgres repository using pgx v5. Loads COPY
// canonical text rows into a transaction-scoped staging table and then insert
// into the target with a cast per column, skipping rows whose key exists.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"shopetl/internal/schema"
	"shopetl/internal/storage"
	pgddl "shopetl/internal/storage/postgres/ddl"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN string // connection string for pgxpool
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Repository{pool: pool}, func() { pool.Close() }, nil
}

// Pool exposes the pool for read paths and tests.
func (r *Repository) Pool() *pgxpool.Pool { return r.pool }

// CopyFrom stages rows with COPY and inserts them into table with ON CONFLICT
// DO NOTHING, all in one transaction.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (storage.LoadResult, error) {
	if len(rows) == 0 {
		return storage.LoadResult{}, nil
	}
	return r.inTx(ctx, len(rows), func(tx pgx.Tx) (int64, error) {
		return stageAndInsert(ctx, tx, table, columns, rows)
	})
}

// Replace deletes the rows of table whose keyColumn is in keys and inserts
// rows, in one transaction.
func (r *Repository) Replace(ctx context.Context, table, keyColumn string, keys []string, columns []string, rows [][]any) (storage.LoadResult, error) {
	kinds, err := kindsOf(table, []string{keyColumn})
	if err != nil {
		return storage.LoadResult{}, err
	}
	return r.inTx(ctx, len(rows), func(tx pgx.Tx) (int64, error) {
		if len(keys) > 0 {
			del := fmt.Sprintf("DELETE FROM %s WHERE %s = ANY($1::%s[])",
				pgddl.QuoteIdent(table), pgddl.QuoteIdent(keyColumn), pgddl.TypeOf(kinds[0]))
			if _, err := tx.Exec(ctx, del, keys); err != nil {
				return 0, fmt.Errorf("postgres: delete %s: %w", table, pgErr(err))
			}
		}
		if len(rows) == 0 {
			return 0, nil
		}
		return stageAndInsert(ctx, tx, table, columns, rows)
	})
}

func (r *Repository) inTx(ctx context.Context, attempted int, fn func(pgx.Tx) (int64, error)) (storage.LoadResult, error) {
	res := storage.LoadResult{Attempted: int64(attempted)}
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return res, fmt.Errorf("postgres: acquire: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("postgres: begin: %w", err)
	}
	n, err := fn(tx)
	if err != nil {
		_ = tx.Rollback(ctx)
		return res, err
	}
	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("postgres: commit: %w", pgErr(err))
	}
	res.Inserted = n
	return res, nil
}

func stageAndInsert(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]any) (int64, error) {
	kinds, err := kindsOf(table, columns)
	if err != nil {
		return 0, err
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("postgres: row %d length %d != columns length %d", i, len(row), len(columns))
		}
	}

	stage := "etl_stage_" + table
	if _, err := tx.Exec(ctx, stageSQL(stage, columns)); err != nil {
		return 0, fmt.Errorf("postgres: create stage: %w", pgErr(err))
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{stage}, columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, fmt.Errorf("postgres: copy into stage: %w", pgErr(err))
	}
	tag, err := tx.Exec(ctx, insertSQL(table, stage, columns, kinds))
	if err != nil {
		return 0, fmt.Errorf("postgres: insert %s: %w", table, pgErr(err))
	}
	return tag.RowsAffected(), nil
}

// stageSQL creates an all-TEXT staging table dropped at commit.
func stageSQL(stage string, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = pgddl.QuoteIdent(c) + " TEXT"
	}
	return fmt.Sprintf("CREATE TEMP TABLE %s (%s) ON COMMIT DROP", pgddl.QuoteIdent(stage), strings.Join(defs, ", "))
}

// insertSQL moves staged text into table, casting each column to its type.
func insertSQL(table, stage string, columns []string, kinds []schema.Kind) string {
	casts := make([]string, len(columns))
	for i, c := range columns {
		casts[i] = fmt.Sprintf("%s::%s", pgddl.QuoteIdent(c), pgddl.TypeOf(kinds[i]))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT DO NOTHING",
		pgddl.QuoteIdent(table), identList(columns), strings.Join(casts, ", "), pgddl.QuoteIdent(stage))
}

// ExistingKeys returns which ids exist in table.column.
func (r *Repository) ExistingKeys(ctx context.Context, table, column string, ids []int64) (map[int64]struct{}, error) {
	out := make(map[int64]struct{}, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: acquire: %w", err)
	}
	defer conn.Release()

	q := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s = ANY($1)",
		pgddl.QuoteIdent(column), pgddl.QuoteIdent(table), pgddl.QuoteIdent(column))
	rows, err := conn.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: existing keys %s.%s: %w", table, column, pgErr(err))
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// Refresh runs REFRESH MATERIALIZED VIEW for view.
func (r *Repository) Refresh(ctx context.Context, view string) error {
	if view != schema.ProductSalesSummary.String() {
		return fmt.Errorf("postgres: unknown view %q", view)
	}
	return r.Exec(ctx, "REFRESH MATERIALIZED VIEW "+pgddl.QuoteIdent(view))
}

// Exec implements storage.Repository.Exec for Postgres.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("postgres: acquire: %w", err)
	}
	defer conn.Release()
	if _, err := conn.Exec(ctx, sql); err != nil {
		return fmt.Errorf("postgres: exec: %w", pgErr(err))
	}
	return nil
}

func kindsOf(table string, columns []string) ([]schema.Kind, error) {
	tbl, ok := schema.Lookup(table)
	if !ok {
		return nil, fmt.Errorf("postgres: unknown table %q", table)
	}
	return tbl.Kinds(columns)
}

// pgErr surfaces the server detail and SQLSTATE when present.
func pgErr(err error) error {
	var pe *pgconn.PgError
	if errors.As(err, &pe) && pe.Detail != "" {
		return fmt.Errorf("%w (%s: %s)", err, pe.SQLState(), pe.Detail)
	}
	return err
}

func identList(cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgddl.QuoteIdent(c)
	}
	return strings.Join(out, ", ")
}
