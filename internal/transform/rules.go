package transform

import (
	"fmt"

	"github.com/shopspring/decimal"

	"shopetl/internal/extract"
	"shopetl/internal/schema"
)

// Rule is the per-relation transformation. The set of rules is closed: only
// the variants in this package implement it.
type Rule interface {
	// Relation is the target relation of the rule.
	Relation() schema.Relation

	// derive sets derived columns on vals (a private copy of one record).
	derive(vals map[string]string) error
}

// CategoryRule transforms product_categories records.
type CategoryRule struct{}

// ProductRule transforms products records.
type ProductRule struct{}

// CustomerRule transforms customers records and attaches lifetime_value from
// LifetimeValues. Customers with no revenue-bearing orders get 0.00.
type CustomerRule struct {
	LifetimeValues LifetimeValues
}

// OrderRule transforms orders records.
type OrderRule struct{}

// OrderItemRule transforms order_items records and recomputes total as
// price*quantity - discount. A source total is ignored.
type OrderItemRule struct{}

func (CategoryRule) Relation() schema.Relation  { return schema.Categories }
func (ProductRule) Relation() schema.Relation   { return schema.Products }
func (CustomerRule) Relation() schema.Relation  { return schema.Customers }
func (OrderRule) Relation() schema.Relation     { return schema.Orders }
func (OrderItemRule) Relation() schema.Relation { return schema.OrderItems }

func (CategoryRule) derive(map[string]string) error { return nil }
func (ProductRule) derive(map[string]string) error  { return nil }
func (OrderRule) derive(map[string]string) error    { return nil }

func (r CustomerRule) derive(vals map[string]string) error {
	id, err := ParseInt(vals["customer_id"])
	if err != nil {
		return fmt.Errorf("customer_id: %w", err)
	}
	vals["lifetime_value"] = FormatMoney(r.LifetimeValues[id])
	return nil
}

func (OrderItemRule) derive(vals map[string]string) error {
	q, err := ParseInt(vals["quantity"])
	if err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	price, err := ParseMoney(vals["price"])
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	discount, err := ParseMoney(vals["discount"])
	if err != nil {
		return fmt.Errorf("discount: %w", err)
	}
	vals["total"] = FormatMoney(ItemTotal(q, price, discount))
	return nil
}

// ItemTotal is price*quantity - discount.
func ItemTotal(quantity int64, price, discount decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(quantity)).Sub(discount)
}

// RequiredFor returns the columns a source record must carry for rule. It is
// the catalog's required list; derived columns such as lifetime_value and
// total are never required from the source.
func RequiredFor(rule Rule) []string {
	return rule.Relation().Table().Required()
}

// Output is the result of transforming one batch.
type Output struct {
	Columns []string

	// Rows hold canonical text values (string) or nil for NULL, in Columns
	// order, in source order.
	Rows [][]any

	// Lines is the source line of each row.
	Lines []int

	// Rejected counts records dropped because a value could not be coerced or
	// a required value was missing after derivation.
	Rejected int
	Reasons  []string
}

const maxReasons = 10

// Apply transforms the records of b into rows of the requested columns, in
// that order. Columns must be known to the rule's relation.
func Apply(rule Rule, b extract.Batch, columns []string) (Output, error) {
	tbl := rule.Relation().Table()
	cols := make([]schema.Column, len(columns))
	for i, name := range columns {
		c, ok := tbl.Column(name)
		if !ok {
			return Output{}, fmt.Errorf("transform: %s has no column %q", tbl.Name(), name)
		}
		cols[i] = c
	}

	out := Output{
		Columns: append([]string(nil), columns...),
		Rows:    make([][]any, 0, len(b.Records)),
		Lines:   make([]int, 0, len(b.Records)),
	}
	for _, rec := range b.Records {
		row, err := applyOne(rule, tbl, cols, rec)
		if err != nil {
			out.Rejected++
			if len(out.Reasons) < maxReasons {
				out.Reasons = append(out.Reasons, fmt.Sprintf("line %d: %v", rec.Line, err))
			}
			continue
		}
		out.Rows = append(out.Rows, row)
		out.Lines = append(out.Lines, rec.Line)
	}
	return out, nil
}

func applyOne(rule Rule, tbl schema.Table, cols []schema.Column, rec extract.Record) ([]any, error) {
	if rec.Malformed != nil {
		return nil, rec.Malformed
	}
	vals := make(map[string]string, len(tbl.Columns))
	for _, c := range tbl.Columns {
		if c.Derived || c.Generated {
			continue
		}
		v := rec.Values[c.Name]
		if v == "" {
			v = c.Default
		}
		vals[c.Name] = v
	}
	if err := rule.derive(vals); err != nil {
		return nil, err
	}

	row := make([]any, len(cols))
	for i, c := range cols {
		v, err := Canonical(c.Kind, vals[c.Name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		if v == "" {
			if !c.Nullable {
				return nil, fmt.Errorf("%s: missing value", c.Name)
			}
			row[i] = nil
			continue
		}
		row[i] = v
	}
	return row, nil
}
