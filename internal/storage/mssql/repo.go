// Package mssql implements a Microsoft SQL Server repository using the
// go-mssqldb bulk copy API. Rows are bulk-copied into a session temporary
// table (#etl_stage) and then moved into the target with per-column casts,
// skipping rows whose primary or unique key already exists.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"shopetl/internal/schema"
	"shopetl/internal/storage"
	msddl "shopetl/internal/storage/mssql/ddl"
)

const (
	stageTable = "#etl_stage"
	seqColumn  = "__seq"

	// SQL Server allows 2100 parameters per request.
	keyChunk = 500
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN string
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("mssql: DSN must not be empty")
	}
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	return &Repository{db: db}, func() { _ = db.Close() }, nil
}

// CopyFrom bulk-copies rows into the stage and inserts the ones whose keys
// are new, in one transaction.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (storage.LoadResult, error) {
	if len(rows) == 0 {
		return storage.LoadResult{}, nil
	}
	return r.inTx(ctx, len(rows), func(tx *sql.Tx) (int64, error) {
		return stageAndInsert(ctx, tx, table, columns, rows)
	})
}

// Replace deletes rows of table whose keyColumn is in keys and inserts rows,
// in one transaction.
func (r *Repository) Replace(ctx context.Context, table, keyColumn string, keys []string, columns []string, rows [][]any) (storage.LoadResult, error) {
	return r.inTx(ctx, len(rows), func(tx *sql.Tx) (int64, error) {
		for start := 0; start < len(keys); start += keyChunk {
			end := min(start+keyChunk, len(keys))
			args := make([]any, 0, end-start)
			for _, k := range keys[start:end] {
				args = append(args, k)
			}
			del := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)",
				msddl.QuoteFQN(table), msIdent(keyColumn), params(len(args)))
			if _, err := tx.ExecContext(ctx, del, args...); err != nil {
				return 0, fmt.Errorf("mssql: delete %s: %w", table, err)
			}
		}
		if len(rows) == 0 {
			return 0, nil
		}
		return stageAndInsert(ctx, tx, table, columns, rows)
	})
}

// inTx runs fn on a dedicated connection so the session temp table is
// visible to every statement of the transaction.
func (r *Repository) inTx(ctx context.Context, attempted int, fn func(*sql.Tx) (int64, error)) (storage.LoadResult, error) {
	res := storage.LoadResult{Attempted: int64(attempted)}
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return res, fmt.Errorf("mssql: conn: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	n, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	res.Inserted = n
	return res, nil
}

func stageAndInsert(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	tbl, ok := schema.Lookup(table)
	if !ok {
		return 0, fmt.Errorf("mssql: unknown table %q", table)
	}
	kinds, err := tbl.Kinds(columns)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, stageSQL(columns)); err != nil {
		return 0, fmt.Errorf("mssql: create stage: %w", err)
	}

	withSeq := append(append([]string{}, columns...), seqColumn)
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(stageTable, mssql.BulkOptions{}, withSeq...))
	if err != nil {
		return 0, fmt.Errorf("prepare bulk copy: %w", err)
	}
	args := make([]any, len(withSeq))
	for i, row := range rows {
		if len(row) != len(columns) {
			_ = stmt.Close()
			return 0, fmt.Errorf("mssql: row %d length %d != columns length %d", i, len(row), len(columns))
		}
		copy(args, row)
		args[len(columns)] = i
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	_, err = stmt.ExecContext(ctx) // flush
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}

	res, err := tx.ExecContext(ctx, insertSQL(tbl, columns, kinds))
	if err != nil {
		return 0, fmt.Errorf("mssql: insert %s: %w", table, err)
	}
	return res.RowsAffected()
}

// stageSQL (re)creates the session stage with one NVARCHAR column per load
// column plus the source order.
func stageSQL(columns []string) string {
	defs := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		defs = append(defs, msIdent(c)+" NVARCHAR(MAX) NULL")
	}
	defs = append(defs, msIdent(seqColumn)+" INT NOT NULL")
	return fmt.Sprintf("IF OBJECT_ID(N'tempdb..%s') IS NOT NULL DROP TABLE %s;\nCREATE TABLE %s (%s);",
		stageTable, stageTable, stageTable, strings.Join(defs, ", "))
}

// keySets returns the primary and unique keys of tbl fully covered by columns.
func keySets(tbl schema.Table, columns []string) [][]string {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c] = true
	}
	var out [][]string
	for _, set := range append([][]string{tbl.PrimaryKey}, tbl.Unique...) {
		covered := len(set) > 0
		for _, c := range set {
			covered = covered && have[c]
		}
		if covered {
			out = append(out, set)
		}
	}
	return out
}

// insertSQL moves staged rows into the target. Within the batch the first
// occurrence of each key wins; rows whose key already exists are skipped.
func insertSQL(tbl schema.Table, columns []string, kinds []schema.Kind) string {
	idx := make(map[string]int, len(columns))
	casts := make([]string, len(columns))
	for i, c := range columns {
		idx[c] = i
		casts[i] = castExpr("s", c, kinds[i])
	}

	var ranks, where []string
	for n, set := range keySets(tbl, columns) {
		rank := fmt.Sprintf("__k%d", n)
		ranks = append(ranks, fmt.Sprintf("ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS %s",
			identList(set), msIdent(seqColumn), msIdent(rank)))
		where = append(where, fmt.Sprintf("s.%s = 1", msIdent(rank)))

		match := make([]string, len(set))
		for i, c := range set {
			match[i] = fmt.Sprintf("x.%s = %s", msIdent(c), castExpr("s", c, kinds[idx[c]]))
		}
		where = append(where, fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s x WHERE %s)",
			msddl.QuoteFQN(tbl.Name()), strings.Join(match, " AND ")))
	}

	inner := "SELECT *"
	if len(ranks) > 0 {
		inner += ", " + strings.Join(ranks, ", ")
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s)\nSELECT %s\nFROM (%s FROM %s) s",
		msddl.QuoteFQN(tbl.Name()), identList(columns), strings.Join(casts, ", "), inner, stageTable)
	if len(where) > 0 {
		stmt += "\nWHERE " + strings.Join(where, "\n  AND ")
	}
	return stmt + ";"
}

func castExpr(alias, column string, k schema.Kind) string {
	return fmt.Sprintf("CAST(%s.%s AS %s)", alias, msIdent(column), msddl.TypeOf(k))
}

// ExistingKeys returns which ids exist in table.column.
func (r *Repository) ExistingKeys(ctx context.Context, table, column string, ids []int64) (map[int64]struct{}, error) {
	out := make(map[int64]struct{}, len(ids))
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("mssql: conn: %w", err)
	}
	defer conn.Close()

	for start := 0; start < len(ids); start += keyChunk {
		end := min(start+keyChunk, len(ids))
		args := make([]any, 0, end-start)
		for _, id := range ids[start:end] {
			args = append(args, id)
		}
		q := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IN (%s)",
			msIdent(column), msddl.QuoteFQN(table), msIdent(column), params(len(args)))
		rows, err := conn.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("mssql: existing keys %s.%s: %w", table, column, err)
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

// Refresh rebuilds the product_sales_summary table in one transaction.
func (r *Repository) Refresh(ctx context.Context, view string) error {
	if view != schema.ProductSalesSummary.String() {
		return fmt.Errorf("mssql: unknown view %q", view)
	}
	_, err := r.inTx(ctx, 0, func(tx *sql.Tx) (int64, error) {
		cols := schema.ProductSalesSummary.Table().LoadColumns()
		for _, s := range []string{
			"DELETE FROM " + msddl.QuoteFQN(view),
			fmt.Sprintf("INSERT INTO %s (%s) %s", msddl.QuoteFQN(view), identList(cols), schema.SummarySelectSQL()),
		} {
			if _, err := tx.ExecContext(ctx, s); err != nil {
				return 0, fmt.Errorf("mssql: refresh %s: %w", view, err)
			}
		}
		return 0, nil
	})
	return err
}

// Exec executes a SQL statement against the pool.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if strings.TrimSpace(sqlText) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("mssql: exec: %w", err)
	}
	return nil
}

// msIdent safely quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return msddl.QuoteIdent(id) }

func identList(cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = msIdent(c)
	}
	return strings.Join(out, ", ")
}

// params renders @p1, @p2, ... @pn.
func params(n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("@p%d", i+1)
	}
	return strings.Join(out, ", ")
}
