// Package ddl defines a small, backend-agnostic model for SQL DDL and renders
// CREATE TABLE statements from it. The model is derived from the relation
// catalog (FromTable); backends supply a Dialect and a type mapper.
package ddl

import (
	"fmt"
	"strings"

	"shopetl/internal/schema"
)

// BuildCreateTableSQL renders a deterministic CREATE TABLE statement.
//
// Rules:
//   - t.FQN must be non-empty; each dotted segment is quoted.
//   - Each column must have a non-empty Name and SQLType.
//   - Primary-key columns are always NOT NULL.
//   - Constraint order: PRIMARY KEY, UNIQUE (declaration order), FOREIGN KEY.
func BuildCreateTableSQL(t TableDef, d Dialect) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}
	q := d.Quote
	if q == nil {
		q = func(s string) string { return s }
	}

	pk := make(map[string]bool, len(t.PrimaryKey))
	for _, c := range t.PrimaryKey {
		pk[c] = true
	}

	lines := make([]string, 0, len(t.Columns)+len(t.Unique)+len(t.ForeignKeys)+1)
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", name)
		}

		var sb strings.Builder
		sb.WriteString(q(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable || pk[name] {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		if chk := strings.TrimSpace(c.Check); chk != "" {
			sb.WriteString(" CHECK (")
			sb.WriteString(chk)
			sb.WriteByte(')')
		}
		lines = append(lines, sb.String())
	}

	if len(t.PrimaryKey) > 0 {
		lines = append(lines, fmt.Sprintf("PRIMARY KEY (%s)", joinQuoted(t.PrimaryKey, q)))
	}
	for _, u := range t.Unique {
		lines = append(lines, fmt.Sprintf("UNIQUE (%s)", joinQuoted(u, q)))
	}
	for _, fk := range t.ForeignKeys {
		lines = append(lines, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			q(fk.Column), QuoteFQN(fk.RefTable, q), q(fk.RefColumn)))
	}

	head := "CREATE TABLE "
	if d.IfNotExists {
		head += "IF NOT EXISTS "
	}
	stmt := fmt.Sprintf("%s%s (\n  %s\n)", head, QuoteFQN(fqn, q), strings.Join(lines, ",\n  "))
	if d.Partitioning && t.PartitionBy != "" {
		stmt += " PARTITION BY " + t.PartitionBy
	}
	return stmt + ";", nil
}

// QuoteFQN quotes a possibly schema-qualified name segment by segment. Empty
// segments are ignored.
func QuoteFQN(f string, q func(string) string) string {
	parts := strings.Split(f, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, q(p))
	}
	return strings.Join(out, ".")
}

func joinQuoted(cols []string, q func(string) string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = q(c)
	}
	return strings.Join(out, ", ")
}

// TypeMapper maps a catalog column to a backend SQL type, default expression
// and optional CHECK expression.
type TypeMapper interface {
	SQLType(c schema.Column) string
	Default(c schema.Column) string
	Check(c schema.Column) string
}

// FromTable builds a TableDef from a catalog table. Only enforced references
// become foreign keys; partitioning is carried as RANGE on the partition
// column.
func FromTable(t schema.Table, m TypeMapper, q func(string) string) TableDef {
	td := TableDef{
		FQN:        t.Name(),
		PrimaryKey: append([]string(nil), t.PrimaryKey...),
		Unique:     t.Unique,
	}
	for _, c := range t.Columns {
		td.Columns = append(td.Columns, ColumnDef{
			Name:     c.Name,
			SQLType:  m.SQLType(c),
			Nullable: c.Nullable,
			Default:  m.Default(c),
			Check:    m.Check(c),
		})
	}
	for _, r := range t.References {
		if !r.Enforced {
			continue
		}
		td.ForeignKeys = append(td.ForeignKeys, ForeignKey{
			Column:    r.Column,
			RefTable:  r.Parent.String(),
			RefColumn: r.ParentColumn,
		})
	}
	if t.Partition != nil && q != nil {
		td.PartitionBy = fmt.Sprintf("RANGE (%s)", q(t.Partition.Column))
	}
	return td
}
