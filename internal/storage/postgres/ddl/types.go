// Package ddl contains Postgres-specific helpers for generating DDL: type
// mapping, enum types, yearly order partitions and the materialized summary
// view.
package ddl

import (
	"strings"

	"shopetl/internal/schema"
)

// Enum type names.
const (
	OrderStatusType   = "order_status"
	PaymentMethodType = "payment_method"
)

// Mapper implements ddl.TypeMapper for Postgres.
type Mapper struct{}

// SQLType maps a catalog column to a Postgres type:
//   - int       -> BIGINT
//   - decimal   -> NUMERIC(12,2)
//   - timestamp -> TIMESTAMP
//   - date      -> DATE
//   - bool      -> BOOLEAN
//   - enums     -> the order_status / payment_method enum types
//   - text      -> TEXT
func (Mapper) SQLType(c schema.Column) string { return TypeOf(c.Kind) }

// TypeOf is SQLType keyed by kind; the loader uses it for staging casts.
func TypeOf(k schema.Kind) string {
	switch k {
	case schema.KindInt:
		return "BIGINT"
	case schema.KindDecimal:
		return "NUMERIC(12,2)"
	case schema.KindTimestamp:
		return "TIMESTAMP"
	case schema.KindDate:
		return "DATE"
	case schema.KindBool:
		return "BOOLEAN"
	case schema.KindOrderStatus:
		return OrderStatusType
	case schema.KindPaymentMethod:
		return PaymentMethodType
	default:
		return "TEXT"
	}
}

func (Mapper) Default(c schema.Column) string {
	if c.Generated {
		return "CURRENT_TIMESTAMP"
	}
	if c.Kind == schema.KindBool && c.Default != "" {
		return strings.ToUpper(c.Default)
	}
	return c.Default
}

// Check is empty: Postgres enforces enums through the enum types.
func (Mapper) Check(schema.Column) string { return "" }

// quoteIdent quotes a single identifier segment for Postgres, e.g.:
//
//	quoteIdent(`pcv`)        => `"pcv"`
//	quoteIdent(`weird"name`) => `"weird""name"`
func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// QuoteIdent is the exported form of quoteIdent for the repository.
func QuoteIdent(id string) string { return quoteIdent(id) }
