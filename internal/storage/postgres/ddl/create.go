package ddl

import (
	"fmt"
	"strings"

	gddl "shopetl/internal/ddl"
	"shopetl/internal/schema"
)

var dialect = gddl.Dialect{Quote: quoteIdent, IfNotExists: true, Partitioning: true}

// Options parameterizes the script.
type Options struct {
	// FromYear..ToYear (inclusive) get one orders partition each. Rows outside
	// the range land in orders_default.
	FromYear int
	ToYear   int
}

// Script returns the idempotent statements that create the enum types, the
// base relations, the yearly order partitions, the secondary indexes and the
// product_sales_summary materialized view, in dependency order.
func Script(opt Options) ([]string, error) {
	if opt.FromYear > opt.ToYear {
		return nil, fmt.Errorf("postgres ddl: from_year %d after to_year %d", opt.FromYear, opt.ToYear)
	}
	out := []string{
		enumSQL(OrderStatusType, schema.QuotedList(schema.OrderStatuses)),
		enumSQL(PaymentMethodType, schema.QuotedList(schema.PaymentMethods)),
	}
	for _, r := range schema.BaseTables {
		tbl := r.Table()
		sql, err := gddl.BuildCreateTableSQL(gddl.FromTable(tbl, Mapper{}, quoteIdent), dialect)
		if err != nil {
			return nil, fmt.Errorf("postgres ddl %s: %w", r, err)
		}
		out = append(out, sql)
		if tbl.Partition != nil {
			out = append(out, PartitionSQL(tbl.Name(), opt.FromYear, opt.ToYear)...)
		}
	}
	for _, ix := range schema.Indexes {
		out = append(out, indexSQL(ix.Name, ix.Relation.String(), ix.Columns, false))
	}
	view := schema.ProductSalesSummary.String()
	out = append(out,
		fmt.Sprintf("CREATE MATERIALIZED VIEW IF NOT EXISTS %s AS\n%s;", quoteIdent(view), schema.SummarySelectSQL()),
		indexSQL("idx_product_sales_summary_product", view, []string{"product_id"}, true),
	)
	return out, nil
}

// PartitionSQL returns one yearly range partition per year plus the default
// partition for table.
func PartitionSQL(table string, fromYear, toYear int) []string {
	var out []string
	for y := fromYear; y <= toYear; y++ {
		out = append(out, fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%d-01-01') TO ('%d-01-01');",
			quoteIdent(fmt.Sprintf("%s_y%d", table, y)), quoteIdent(table), y, y+1))
	}
	out = append(out, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s PARTITION OF %s DEFAULT;",
		quoteIdent(table+"_default"), quoteIdent(table)))
	return out
}

func enumSQL(name, values string) string {
	return fmt.Sprintf(`DO $$ BEGIN
  CREATE TYPE %s AS ENUM (%s);
EXCEPTION WHEN duplicate_object THEN NULL;
END $$;`, quoteIdent(name), values)
}

func indexSQL(name, table string, cols []string, unique bool) string {
	q := make([]string, len(cols))
	for i, c := range cols {
		q[i] = quoteIdent(c)
	}
	kw := "INDEX"
	if unique {
		kw = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s);", kw, quoteIdent(name), quoteIdent(table), strings.Join(q, ", "))
}
