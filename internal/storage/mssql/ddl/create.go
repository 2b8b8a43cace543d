package ddl

import (
	"fmt"
	"strings"

	gddl "shopetl/internal/ddl"
	"shopetl/internal/schema"
)

// T-SQL has no CREATE TABLE IF NOT EXISTS; GuardCreate wraps the statement.
var dialect = gddl.Dialect{Quote: QuoteIdent}

// Script returns the T-SQL statements that create every base relation, the
// product_sales_summary table (rebuilt on refresh) and the secondary indexes.
// Each statement is guarded so the script can be re-run.
func Script() ([]string, error) {
	var out []string
	for _, r := range append(append([]schema.Relation(nil), schema.BaseTables...), schema.ProductSalesSummary) {
		tbl := r.Table()
		sql, err := gddl.BuildCreateTableSQL(gddl.FromTable(tbl, MapperFor(tbl), nil), dialect)
		if err != nil {
			return nil, fmt.Errorf("mssql ddl %s: %w", r, err)
		}
		out = append(out, GuardCreate(tbl.Name(), sql))
	}
	for _, ix := range schema.Indexes {
		out = append(out, indexSQL(ix))
	}
	return out, nil
}

// GuardCreate wraps a CREATE TABLE statement in an IF OBJECT_ID(...) IS NULL
// block:
//
//	IF OBJECT_ID(N'[table]', N'U') IS NULL
//	BEGIN
//	  CREATE TABLE [table] (...);
//	END;
func GuardCreate(table, createSQL string) string {
	fqn := QuoteFQN(table)
	body := strings.ReplaceAll(createSQL, "\n", "\n  ")
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  %s\nEND;", fqn, body)
}

func indexSQL(ix schema.Index) string {
	cols := make([]string, len(ix.Columns))
	for i, c := range ix.Columns {
		cols[i] = QuoteIdent(c)
	}
	table := QuoteFQN(ix.Relation.String())
	return fmt.Sprintf(
		"IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'%s' AND object_id = OBJECT_ID(N'%s'))\n  CREATE INDEX %s ON %s (%s);",
		ix.Name, table, QuoteIdent(ix.Name), table, strings.Join(cols, ", "))
}

// QuoteIdent quotes a single identifier segment for SQL Server using
// bracket syntax, escaping any closing brackets.
//
//	name      -> [name]
//	weird]id  -> [weird]]id]
func QuoteIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// QuoteFQN quotes a possibly schema-qualified table name, e.g.:
//
//	"dbo.Users"   -> [dbo].[Users]
//	"Users"       -> [Users]
func QuoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, QuoteIdent(p))
	}
	return strings.Join(out, ".")
}
