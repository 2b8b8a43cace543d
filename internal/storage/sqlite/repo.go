// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql and modernc.org/sqlite. Loads are prepared single-row INSERTs
// inside one transaction per call; conflicts are skipped with ON CONFLICT DO
// NOTHING and counted through RowsAffected.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"shopetl/internal/schema"
	"shopetl/internal/storage"
)

// keyChunk bounds the number of bound parameters per IN list.
const keyChunk = 500

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db *sql.DB
}

// Open opens a SQLite database with the settings the repository relies on:
// a single connection (so :memory: databases and per-connection pragmas are
// shared by every call) and foreign keys enforced.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	return db, nil
}

// New wraps an already-open database.
func New(db *sql.DB) *Repository { return &Repository{db: db} }

// NewRepository opens a SQLite connection using the provided DSN and returns
// a Repository plus a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := Open(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return New(db), func() { db.Close() }, nil
}

// CopyFrom inserts rows into table inside one transaction, skipping rows
// whose key already exists.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (storage.LoadResult, error) {
	if len(rows) == 0 {
		return storage.LoadResult{}, nil
	}
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return storage.LoadResult{}, fmt.Errorf("sqlite: conn: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return storage.LoadResult{}, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	res, err := insertRows(ctx, tx, table, columns, rows)
	if err != nil {
		_ = tx.Rollback()
		return storage.LoadResult{Attempted: int64(len(rows))}, err
	}
	if err := tx.Commit(); err != nil {
		return storage.LoadResult{Attempted: int64(len(rows))}, fmt.Errorf("sqlite: commit: %w", err)
	}
	return res, nil
}

// Replace deletes rows of table whose keyColumn is in keys, then inserts
// rows, in one transaction.
func (r *Repository) Replace(ctx context.Context, table, keyColumn string, keys []string, columns []string, rows [][]any) (storage.LoadResult, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return storage.LoadResult{}, fmt.Errorf("sqlite: conn: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return storage.LoadResult{}, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	for start := 0; start < len(keys); start += keyChunk {
		end := min(start+keyChunk, len(keys))
		args := make([]any, 0, end-start)
		for _, k := range keys[start:end] {
			args = append(args, k)
		}
		del := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", quoteIdent(table), quoteIdent(keyColumn), placeholders(len(args)))
		if _, err := tx.ExecContext(ctx, del, args...); err != nil {
			_ = tx.Rollback()
			return storage.LoadResult{}, fmt.Errorf("sqlite: delete %s: %w", table, err)
		}
	}
	res, err := insertRows(ctx, tx, table, columns, rows)
	if err != nil {
		_ = tx.Rollback()
		return storage.LoadResult{Attempted: int64(len(rows))}, err
	}
	if err := tx.Commit(); err != nil {
		return storage.LoadResult{Attempted: int64(len(rows))}, fmt.Errorf("sqlite: commit: %w", err)
	}
	return res, nil
}

func insertRows(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (storage.LoadResult, error) {
	res := storage.LoadResult{Attempted: int64(len(rows))}
	if len(rows) == 0 {
		return res, nil
	}
	if len(columns) == 0 {
		return res, fmt.Errorf("sqlite: CopyFrom: columns must not be empty")
	}
	bools := boolColumns(table, columns)

	stmtSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		quoteIdent(table), identList(columns), placeholders(len(columns)),
	)
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return res, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return res, fmt.Errorf("sqlite: row %d length %d != columns length %d", i, len(row), len(columns))
		}
		for j, v := range row {
			args[j] = v
			if bools[j] {
				args[j] = boolArg(v)
			}
		}
		out, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return res, fmt.Errorf("sqlite: insert row %d: %w", i, err)
		}
		n, err := out.RowsAffected()
		if err != nil {
			return res, fmt.Errorf("sqlite: rows affected: %w", err)
		}
		res.Inserted += n
	}
	return res, nil
}

// ExistingKeys returns which ids exist in table.column.
func (r *Repository) ExistingKeys(ctx context.Context, table, column string, ids []int64) (map[int64]struct{}, error) {
	out := make(map[int64]struct{}, len(ids))
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: conn: %w", err)
	}
	defer conn.Close()

	for start := 0; start < len(ids); start += keyChunk {
		end := min(start+keyChunk, len(ids))
		args := make([]any, 0, end-start)
		for _, id := range ids[start:end] {
			args = append(args, id)
		}
		q := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IN (%s)",
			quoteIdent(column), quoteIdent(table), quoteIdent(column), placeholders(len(args)))
		rows, err := conn.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("sqlite: existing keys %s.%s: %w", table, column, err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			out[id] = struct{}{}
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Refresh rebuilds the product_sales_summary table with a delete followed by
// an INSERT ... SELECT in one transaction.
func (r *Repository) Refresh(ctx context.Context, view string) error {
	if view != schema.ProductSalesSummary.String() {
		return fmt.Errorf("sqlite: unknown view %q", view)
	}
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: conn: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	cols := schema.ProductSalesSummary.Table().LoadColumns()
	stmts := []string{
		"DELETE FROM " + quoteIdent(view),
		fmt.Sprintf("INSERT INTO %s (%s) %s", quoteIdent(view), identList(cols), schema.SummarySelectSQL()),
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite: refresh %s: %w", view, err)
		}
	}
	return tx.Commit()
}

// Exec executes an arbitrary SQL statement (typically DDL).
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for read paths and tests.
func (r *Repository) DB() *sql.DB { return r.db }

func boolColumns(table string, columns []string) []bool {
	out := make([]bool, len(columns))
	tbl, ok := schema.Lookup(table)
	if !ok {
		return out
	}
	for i, c := range columns {
		if col, ok := tbl.Column(c); ok && col.Kind == schema.KindBool {
			out[i] = true
		}
	}
	return out
}

// boolArg converts canonical "true"/"false" into SQLite's 1/0.
func boolArg(v any) any {
	switch v {
	case "true":
		return 1
	case "false":
		return 0
	}
	return v
}

func quoteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func identList(cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = quoteIdent(c)
	}
	return strings.Join(out, ", ")
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
