package ddl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopetl/internal/schema"
)

func dq(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

var pg = Dialect{Quote: dq, IfNotExists: true, Partitioning: true}

type textMapper struct{}

func (textMapper) SQLType(c schema.Column) string {
	if c.Kind == schema.KindInt {
		return "BIGINT"
	}
	return "TEXT"
}
func (textMapper) Default(c schema.Column) string { return c.Default }
func (textMapper) Check(c schema.Column) string {
	if c.Kind == schema.KindOrderStatus {
		return "status <> ''"
	}
	return ""
}

func TestBuildCreateTableSQL_Errors(t *testing.T) {
	cases := []struct {
		name string
		def  TableDef
		msg  string
	}{
		{"empty FQN", TableDef{FQN: " ", Columns: []ColumnDef{{Name: "id", SQLType: "INT"}}}, "FQN must not be empty"},
		{"no columns", TableDef{FQN: "t"}, "at least one column"},
		{"empty name", TableDef{FQN: "t", Columns: []ColumnDef{{Name: " ", SQLType: "INT"}}}, "empty name"},
		{"empty type", TableDef{FQN: "t", Columns: []ColumnDef{{Name: "id"}}}, "missing SQLType"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := BuildCreateTableSQL(c.def, pg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.msg)
		})
	}
}

func TestBuildCreateTableSQL_Constraints(t *testing.T) {
	sql, err := BuildCreateTableSQL(TableDef{
		FQN: "public.items",
		Columns: []ColumnDef{
			{Name: "id", SQLType: "BIGINT", Nullable: true},
			{Name: "sku", SQLType: "TEXT", Default: "'x'"},
			{Name: "parent", SQLType: "BIGINT", Nullable: true, Check: "parent > 0"},
		},
		PrimaryKey:  []string{"id"},
		Unique:      [][]string{{"sku"}},
		ForeignKeys: []ForeignKey{{Column: "parent", RefTable: "items", RefColumn: "id"}},
		PartitionBy: `RANGE ("id")`,
	}, pg)
	require.NoError(t, err)

	want := `CREATE TABLE IF NOT EXISTS "public"."items" (
  "id" BIGINT NOT NULL,
  "sku" TEXT NOT NULL DEFAULT 'x',
  "parent" BIGINT CHECK (parent > 0),
  PRIMARY KEY ("id"),
  UNIQUE ("sku"),
  FOREIGN KEY ("parent") REFERENCES "items" ("id")
) PARTITION BY RANGE ("id");`
	assert.Equal(t, want, sql)

	plain, err := BuildCreateTableSQL(TableDef{FQN: "t", Columns: []ColumnDef{{Name: "a", SQLType: "INT"}}, PartitionBy: "RANGE (a)"}, Dialect{})
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE t (\n  a INT NOT NULL\n);", plain)
}

func TestFromTable(t *testing.T) {
	td := FromTable(schema.OrderItems.Table(), textMapper{}, dq)
	assert.Equal(t, "order_items", td.FQN)
	assert.Equal(t, []string{"order_item_id"}, td.PrimaryKey)
	// The order reference is resolved by the pipeline, not declared.
	require.Len(t, td.ForeignKeys, 1)
	assert.Equal(t, ForeignKey{Column: "product_id", RefTable: "products", RefColumn: "product_id"}, td.ForeignKeys[0])
	assert.Empty(t, td.PartitionBy)

	orders := FromTable(schema.Orders.Table(), textMapper{}, dq)
	assert.Equal(t, `RANGE ("order_date")`, orders.PartitionBy)
	for _, c := range orders.Columns {
		if c.Name == "status" {
			assert.Equal(t, "status <> ''", c.Check)
		}
	}
}

func TestQuoteFQN(t *testing.T) {
	assert.Equal(t, `"a"."b"`, QuoteFQN(".a..b.", dq))
	assert.Equal(t, "", QuoteFQN("", dq))
}
