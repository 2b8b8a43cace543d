// Package aggregate computes the per-day, per-product sales rollup from the
// order items, products and orders a run accepted for loading.
package aggregate

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"shopetl/internal/schema"
	"shopetl/internal/transform"
)

// DailyRow is one row of daily_sales_aggregate.
type DailyRow struct {
	Date         time.Time
	ProductID    int64
	CategoryID   int64
	UnitsSold    int64
	Revenue      decimal.Decimal
	OrderCount   int64
	AvgUnitPrice decimal.Decimal
}

// Columns is the column order of Values.
var Columns = schema.DailySales.Table().LoadColumns()

// Values renders r as canonical text in Columns order.
func (r DailyRow) Values() []any {
	return []any{
		r.Date.Format(transform.DateLayout),
		strconv.FormatInt(r.ProductID, 10),
		strconv.FormatInt(r.CategoryID, 10),
		strconv.FormatInt(r.UnitsSold, 10),
		transform.FormatMoney(r.Revenue),
		strconv.FormatInt(r.OrderCount, 10),
		transform.FormatMoney(r.AvgUnitPrice),
	}
}

// Products maps product_id to category_id.
type Products map[int64]int64

// Order is what the rollup needs of one order.
type Order struct {
	Day     time.Time
	Revenue bool
}

// Orders maps order_id to its order.
type Orders map[int64]Order

// Item is one order line.
type Item struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int64
	Total     decimal.Decimal
}

// Items is the ordered, de-duplicated list of accepted order lines.
type Items struct {
	list []Item
	seen map[int64]struct{}
}

// Len is the number of distinct items.
func (it *Items) Len() int { return len(it.list) }

// Inputs are the accepted rows the rollup reads.
type Inputs struct {
	Items    *Items
	Products Products
	Orders   Orders
}

// Stats counts what the rollup saw and dropped.
type Stats struct {
	Items int
	Rows  int
	Gaps  int // item's order or product not accepted in this run
}

// AddProducts indexes canonical products rows. The first row of a
// product_id wins, as it does in the store.
func (p Products) AddProducts(columns []string, rows [][]any) error {
	ix, err := indexes(columns, "product_id", "category_id")
	if err != nil {
		return err
	}
	for _, row := range rows {
		id, err := intAt(row, ix[0])
		if err != nil {
			return err
		}
		if _, ok := p[id]; ok {
			continue
		}
		cat, err := intAt(row, ix[1])
		if err != nil {
			return err
		}
		p[id] = cat
	}
	return nil
}

// AddOrders indexes canonical orders rows. The first row of an order_id
// wins.
func (o Orders) AddOrders(columns []string, rows [][]any) error {
	ix, err := indexes(columns, "order_id", "order_date", "status")
	if err != nil {
		return err
	}
	for _, row := range rows {
		id, err := intAt(row, ix[0])
		if err != nil {
			return err
		}
		if _, ok := o[id]; ok {
			continue
		}
		ts, err := transform.ParseTime(textAt(row, ix[1]))
		if err != nil {
			return err
		}
		o[id] = Order{
			Day:     time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
			Revenue: schema.OrderStatus(textAt(row, ix[2])).CountsAsRevenue(),
		}
	}
	return nil
}

// AddItems appends canonical order_items rows. A repeated order_item_id is
// ignored, matching the skip-on-conflict load.
func (it *Items) AddItems(columns []string, rows [][]any) error {
	ix, err := indexes(columns, "order_item_id", "order_id", "product_id", "quantity", "total")
	if err != nil {
		return err
	}
	if it.seen == nil {
		it.seen = map[int64]struct{}{}
	}
	for _, row := range rows {
		var v [4]int64
		for i := range v {
			if v[i], err = intAt(row, ix[i]); err != nil {
				return err
			}
		}
		if _, dup := it.seen[v[0]]; dup {
			continue
		}
		total, err := transform.ParseMoney(textAt(row, ix[4]))
		if err != nil {
			return err
		}
		it.seen[v[0]] = struct{}{}
		it.list = append(it.list, Item{ID: v[0], OrderID: v[1], ProductID: v[2], Quantity: v[3], Total: total})
	}
	return nil
}

type key struct {
	day     time.Time
	product int64
}

type acc struct {
	category int64
	units    int64
	revenue  decimal.Decimal
	orders   map[int64]struct{}
}

// DailySales groups items by (calendar date of the order, product). Items of
// Cancelled or Returned orders still produce their (date, product) row but
// add nothing to it. Rows are sorted by date, then product.
func DailySales(in Inputs) ([]DailyRow, Stats) {
	var st Stats
	groups := map[key]*acc{}
	var items []Item
	if in.Items != nil {
		items = in.Items.list
	}
	for _, item := range items {
		st.Items++
		o, okO := in.Orders[item.OrderID]
		cat, okP := in.Products[item.ProductID]
		if !okO || !okP {
			st.Gaps++
			continue
		}
		k := key{day: o.Day, product: item.ProductID}
		a := groups[k]
		if a == nil {
			a = &acc{category: cat, orders: map[int64]struct{}{}}
			groups[k] = a
		}
		if !o.Revenue {
			continue
		}
		a.units += item.Quantity
		a.revenue = a.revenue.Add(item.Total)
		a.orders[item.OrderID] = struct{}{}
	}

	rows := make([]DailyRow, 0, len(groups))
	for k, a := range groups {
		avg := decimal.Zero
		if a.units != 0 {
			avg = a.revenue.Div(decimal.NewFromInt(a.units)).Round(2)
		}
		rows = append(rows, DailyRow{
			Date:         k.day,
			ProductID:    k.product,
			CategoryID:   a.category,
			UnitsSold:    a.units,
			Revenue:      a.revenue,
			OrderCount:   int64(len(a.orders)),
			AvgUnitPrice: avg,
		})
	}
	slices.SortFunc(rows, func(x, y DailyRow) int {
		if c := x.Date.Compare(y.Date); c != 0 {
			return c
		}
		return cmp.Compare(x.ProductID, y.ProductID)
	})
	st.Rows = len(rows)
	return rows, st
}

// Rows renders rows as load values in Columns order.
func Rows(rows []DailyRow) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = r.Values()
	}
	return out
}

// Dates returns the distinct dates of rows as canonical text, ascending.
func Dates(rows []DailyRow) []string {
	var out []string
	for _, r := range rows {
		d := r.Date.Format(transform.DateLayout)
		if len(out) == 0 || out[len(out)-1] != d {
			out = append(out, d)
		}
	}
	return out
}

func indexes(columns []string, names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		if out[i] = slices.Index(columns, n); out[i] < 0 {
			return nil, fmt.Errorf("aggregate: column %s not in %v", n, columns)
		}
	}
	return out, nil
}

func textAt(row []any, i int) string {
	s, _ := row[i].(string)
	return s
}

func intAt(row []any, i int) (int64, error) {
	return transform.ParseInt(textAt(row, i))
}
