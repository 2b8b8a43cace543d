package transform

import (
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"shopetl/internal/extract"
	"shopetl/internal/schema"
)

// LifetimeValues maps customer_id to the sum of total_amount over the
// customer's revenue-bearing orders.
type LifetimeValues map[int64]decimal.Decimal

// ComputeLifetimeValues streams the order dataset once and sums total_amount
// per customer over the orders the order load would write: records pass the
// same cleaning and OrderRule as the load, and a repeated
// (order_id, order_date) counts once. Cancelled and Returned orders add
// nothing. It returns the number of records that would not load alongside
// the values.
func ComputeLifetimeValues(ctx context.Context, orders extract.Dataset) (LifetimeValues, int, error) {
	rule := OrderRule{}
	columns := rule.Relation().Table().LoadColumns()
	required := RequiredFor(rule)
	idx := func(name string) int { return slices.Index(columns, name) }
	iOrder, iDate, iCustomer := idx("order_id"), idx("order_date"), idx("customer_id")
	iStatus, iAmount := idx("status"), idx("total_amount")

	type orderKey struct{ id, date string }
	seen := map[orderKey]struct{}{}
	ltv := LifetimeValues{}
	skipped := 0
	err := orders.Each(ctx, func(b extract.Batch) error {
		clean, cst, err := Clean(b, required, Policy{})
		if err != nil {
			return err
		}
		skipped += cst.Dropped
		out, err := Apply(rule, clean, columns)
		if err != nil {
			return err
		}
		skipped += out.Rejected
		for _, row := range out.Rows {
			k := orderKey{id: row[iOrder].(string), date: row[iDate].(string)}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			if !schema.OrderStatus(row[iStatus].(string)).CountsAsRevenue() {
				continue
			}
			id, err := ParseInt(row[iCustomer].(string))
			if err != nil {
				return err
			}
			amt, err := ParseMoney(row[iAmount].(string))
			if err != nil {
				return err
			}
			ltv[id] = ltv[id].Add(amt)
		}
		return nil
	})
	if err != nil {
		return nil, skipped, err
	}
	return ltv, skipped, nil
}
