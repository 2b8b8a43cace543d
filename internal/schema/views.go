package schema

import "fmt"

// RevenuePredicate is the SQL filter on an orders alias that keeps only
// revenue-bearing orders. It is the SQL form of OrderStatus.CountsAsRevenue.
func RevenuePredicate(alias string) string {
	return fmt.Sprintf("%s.status NOT IN (%s)", alias, QuotedList(NonRevenueStatuses))
}

// SummarySelectSQL is the portable query that defines product_sales_summary:
// one row per product, summed across all time over revenue-bearing orders.
// Postgres wraps it in a materialized view; the other backends rebuild a
// table from it on refresh.
func SummarySelectSQL() string {
	return `SELECT
    p.product_id AS product_id,
    p.name AS product_name,
    p.category_id AS category_id,
    COALESCE(SUM(s.quantity), 0) AS total_units_sold,
    COALESCE(SUM(s.total), 0) AS total_revenue,
    COUNT(DISTINCT s.order_id) AS order_count,
    MAX(s.order_date) AS last_order_date
FROM products p
LEFT JOIN (
    SELECT oi.product_id, oi.quantity, oi.total, o.order_id, o.order_date
    FROM order_items oi
    JOIN orders o ON o.order_id = oi.order_id
    WHERE ` + RevenuePredicate("o") + `
) s ON s.product_id = p.product_id
GROUP BY p.product_id, p.name, p.category_id`
}
