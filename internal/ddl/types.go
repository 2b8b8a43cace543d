package ddl

// ColumnDef describes a single column in a table definition. It uses simple,
// database-agnostic fields; quoting happens at render time.
//
// Fields:
//   - Name: logical column name (unquoted)
//   - SQLType: target SQL type (e.g., TEXT, BIGINT, NUMERIC(12,2))
//   - Nullable: whether NULL is allowed
//   - Default: raw default expression (e.g., 0, CURRENT_TIMESTAMP)
//   - Check: raw boolean expression rendered as an inline CHECK constraint
type ColumnDef struct {
	Name     string
	SQLType  string
	Nullable bool
	Default  string
	Check    string
}

// ForeignKey is a single-column reference to another table.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// TableDef holds the table name (FQN, dotted when schema-qualified), ordered
// columns and table-level constraints. PrimaryKey keeps declaration order.
type TableDef struct {
	FQN         string
	Columns     []ColumnDef
	PrimaryKey  []string
	Unique      [][]string
	ForeignKeys []ForeignKey

	// PartitionBy is a raw clause appended after the column list, e.g.
	// RANGE ("order_date"). Only dialects that support it render it.
	PartitionBy string
}

// Dialect captures the rendering differences between backends.
type Dialect struct {
	// Quote quotes one identifier segment.
	Quote func(string) string

	// IfNotExists renders CREATE TABLE IF NOT EXISTS. Dialects without it
	// (T-SQL) wrap the statement in their own guard.
	IfNotExists bool

	// Partitioning enables the PARTITION BY clause.
	Partitioning bool
}
