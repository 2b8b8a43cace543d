// Package ddl contains MSSQL-specific helpers for generating DDL.
//
// It maps catalog kinds into SQL Server types. Text columns that take part in
// a primary or unique key get a bounded NVARCHAR so they stay indexable; all
// other text is NVARCHAR(MAX).
package ddl

import (
	"shopetl/internal/schema"
)

// Mapper implements ddl.TypeMapper for SQL Server. Keys holds the columns of
// the table being rendered that participate in a primary or unique key.
type Mapper struct {
	Keys map[string]bool
}

// MapperFor returns a Mapper aware of t's key columns.
func MapperFor(t schema.Table) Mapper {
	keys := make(map[string]bool)
	for _, c := range t.PrimaryKey {
		keys[c] = true
	}
	for _, u := range t.Unique {
		for _, c := range u {
			keys[c] = true
		}
	}
	return Mapper{Keys: keys}
}

func (m Mapper) SQLType(c schema.Column) string {
	if c.Kind == schema.KindText && m.Keys[c.Name] {
		return "NVARCHAR(255)"
	}
	return TypeOf(c.Kind)
}

// TypeOf maps a kind to the SQL Server type used for casts out of staging.
func TypeOf(k schema.Kind) string {
	switch k {
	case schema.KindInt:
		return "BIGINT"
	case schema.KindDecimal:
		return "DECIMAL(12, 2)"
	case schema.KindTimestamp:
		return "DATETIME2"
	case schema.KindDate:
		return "DATE"
	case schema.KindBool:
		return "BIT"
	case schema.KindOrderStatus, schema.KindPaymentMethod:
		return "NVARCHAR(20)"
	default:
		return "NVARCHAR(MAX)"
	}
}

func (Mapper) Default(c schema.Column) string {
	if c.Generated {
		return "CURRENT_TIMESTAMP"
	}
	if c.Kind == schema.KindBool && c.Default != "" {
		if c.Default == "true" {
			return "1"
		}
		return "0"
	}
	return c.Default
}

func (Mapper) Check(c schema.Column) string {
	switch c.Kind {
	case schema.KindOrderStatus:
		return QuoteIdent(c.Name) + " IN (" + schema.QuotedList(schema.OrderStatuses) + ")"
	case schema.KindPaymentMethod:
		return QuoteIdent(c.Name) + " IN (" + schema.QuotedList(schema.PaymentMethods) + ")"
	}
	return ""
}
