// Package schema is the relation catalog for the e-commerce store. Every
// stage that needs to know a relation's columns, keys, references or column
// kinds (transformers, DDL generators, storage backends) reads it from here.
package schema

import (
	"fmt"
	"strings"
)

// Kind is the logical type of a column. Backends map kinds to SQL types and
// transformers map kinds to canonical text forms.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindDecimal
	KindTimestamp
	KindDate
	KindBool
	KindOrderStatus
	KindPaymentMethod
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindTimestamp:
		return "timestamp"
	case KindDate:
		return "date"
	case KindBool:
		return "bool"
	case KindOrderStatus:
		return "order_status"
	case KindPaymentMethod:
		return "payment_method"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Column describes one column of a relation.
type Column struct {
	Name     string
	Kind     Kind
	Nullable bool

	// Default is the canonical text value substituted by transformers when the
	// source leaves the column empty. Columns with a Default are not required.
	Default string

	// Derived columns are computed by the pipeline (order item total, customer
	// lifetime value) and never taken from the source record.
	Derived bool

	// Generated columns are filled by the store (audit timestamps) and are
	// never part of a load.
	Generated bool
}

// Reference is a foreign-key-like link from Column to Parent.ParentColumn.
// Enforced=false means the store does not declare the constraint (order items
// to partitioned orders); the pipeline still resolves it before loading.
type Reference struct {
	Column       string
	Parent       Relation
	ParentColumn string
	Enforced     bool
}

// Partition describes range partitioning of a relation on a timestamp column.
type Partition struct {
	Column string
}

// Table is the full definition of a relation.
type Table struct {
	Relation   Relation
	Columns    []Column
	PrimaryKey []string
	Unique     [][]string
	References []Reference
	Partition  *Partition
}

// Name returns the storage name of the table.
func (t Table) Name() string { return t.Relation.String() }

// Column returns the named column.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// LoadColumns returns the ordered column names a load writes, i.e. every
// column except store-generated ones.
func (t Table) LoadColumns() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !c.Generated {
			out = append(out, c.Name)
		}
	}
	return out
}

// Required returns the load columns a source record must supply: not
// nullable, not derived and without a default.
func (t Table) Required() []string {
	var out []string
	for _, c := range t.Columns {
		if c.Generated || c.Derived || c.Nullable || c.Default != "" {
			continue
		}
		out = append(out, c.Name)
	}
	return out
}

// Kinds returns the kind of each named column, in order. Unknown names are an
// error so callers cannot silently load a column the catalog does not know.
func (t Table) Kinds(columns []string) ([]Kind, error) {
	out := make([]Kind, len(columns))
	for i, name := range columns {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("schema: %s has no column %q", t.Name(), name)
		}
		out[i] = c.Kind
	}
	return out, nil
}

// Lookup returns the table for a storage name such as "order_items".
func Lookup(name string) (Table, bool) {
	for _, r := range allRelations {
		if r.String() == name {
			return r.Table(), true
		}
	}
	return Table{}, false
}

// QuotedList renders values as a comma separated list of SQL string literals.
func QuotedList[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = "'" + strings.ReplaceAll(string(v), "'", "''") + "'"
	}
	return strings.Join(parts, ", ")
}

// Index is a secondary index every backend creates.
type Index struct {
	Name     string
	Relation Relation
	Columns  []string
}

// Indexes lists the secondary indexes, covering the reference columns the
// pipeline resolves and the date filters of the query layer.
var Indexes = []Index{
	{Name: "idx_products_category", Relation: Products, Columns: []string{"category_id"}},
	{Name: "idx_orders_customer", Relation: Orders, Columns: []string{"customer_id"}},
	{Name: "idx_orders_order_id", Relation: Orders, Columns: []string{"order_id"}},
	{Name: "idx_order_items_order", Relation: OrderItems, Columns: []string{"order_id"}},
	{Name: "idx_order_items_product", Relation: OrderItems, Columns: []string{"product_id"}},
	{Name: "idx_daily_sales_category", Relation: DailySales, Columns: []string{"category_id", "date"}},
}
