// Package ddl contains SQLite-specific helpers for generating DDL.
//
// SQLite types by affinity, so the mapping only needs to pick the affinity
// that keeps canonical values comparable:
//   - int              -> INTEGER
//   - bool             -> BOOLEAN (stored 0/1)
//   - decimal          -> NUMERIC
//   - date/timestamp   -> DATE/TIMESTAMP (ISO-8601 text)
//   - enums            -> TEXT with a CHECK constraint
package ddl

import (
	"shopetl/internal/schema"
)

// Mapper implements ddl.TypeMapper for SQLite.
type Mapper struct{}

func (Mapper) SQLType(c schema.Column) string {
	switch c.Kind {
	case schema.KindInt:
		return "INTEGER"
	case schema.KindDecimal:
		return "NUMERIC(12,2)"
	case schema.KindTimestamp:
		return "TIMESTAMP"
	case schema.KindDate:
		return "DATE"
	case schema.KindBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (Mapper) Default(c schema.Column) string {
	if c.Generated {
		return "CURRENT_TIMESTAMP"
	}
	if c.Default == "" {
		return ""
	}
	if c.Kind == schema.KindBool {
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
		return quoteIdent(c.Name) + " IN (" + schema.QuotedList(schema.OrderStatuses) + ")"
	case schema.KindPaymentMethod:
		return quoteIdent(c.Name) + " IN (" + schema.QuotedList(schema.PaymentMethods) + ")"
	}
	return ""
}
