package ddl

import (
	"fmt"
	"strings"

	gddl "shopetl/internal/ddl"
	"shopetl/internal/schema"
)

var dialect = gddl.Dialect{Quote: quoteIdent, IfNotExists: true}

// quoteIdent quotes a single identifier for SQLite, e.g. name => "name".
func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// Script returns the statements that create every base relation, the
// product_sales_summary table (SQLite has no materialized views; the table is
// rebuilt on refresh) and the secondary indexes.
func Script() ([]string, error) {
	var out []string
	for _, r := range append(append([]schema.Relation(nil), schema.BaseTables...), schema.ProductSalesSummary) {
		sql, err := gddl.BuildCreateTableSQL(gddl.FromTable(r.Table(), Mapper{}, nil), dialect)
		if err != nil {
			return nil, fmt.Errorf("sqlite ddl %s: %w", r, err)
		}
		out = append(out, sql)
	}
	for _, ix := range schema.Indexes {
		cols := make([]string, len(ix.Columns))
		for i, c := range ix.Columns {
			cols[i] = quoteIdent(c)
		}
		out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s);",
			quoteIdent(ix.Name), quoteIdent(ix.Relation.String()), strings.Join(cols, ", ")))
	}
	return out, nil
}
