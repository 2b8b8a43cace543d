package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shopetl/internal/schema"
)

// querier is the subset of *pgxpool.Pool the store uses.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGStore implements Store on a Postgres pool.
type PGStore struct {
	db querier
}

// NewPGStore wraps pool. The pool stays owned by the caller.
func NewPGStore(pool *pgxpool.Pool) *PGStore { return &PGStore{db: pool} }

var _ Store = (*PGStore)(nil)

// statement is a rendered query with its positional arguments.
type statement struct {
	sql  string
	args []any
}

// builder accumulates WHERE conditions with $n placeholders.
type builder struct {
	where []string
	args  []any
}

func (b *builder) add(cond string, arg any) {
	b.args = append(b.args, arg)
	b.where = append(b.where, fmt.Sprintf(cond, len(b.args)))
}

func (b *builder) next(arg any) string {
	b.args = append(b.args, arg)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) clause() string {
	if len(b.where) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(b.where, "\n  AND ")
}

func productSalesSQL(p ProductSalesParams) (statement, error) {
	if err := requireRange(p.Start, p.End); err != nil {
		return statement{}, err
	}
	pg, err := p.Page.normalize()
	if err != nil {
		return statement{}, err
	}
	by, order := p.Sort.resolve([]string{"order_date", "total_amount"}, "order_date", "ASC")

	var b builder
	b.add("o.order_date >= $%d", p.Start)
	b.add("o.order_date <= $%d", p.End)
	b.where = append(b.where, schema.RevenuePredicate("o"))
	if p.ProductID != 0 {
		b.add("oi.product_id = $%d", p.ProductID)
	}
	if p.CategoryID != 0 {
		b.add("p.category_id = $%d", p.CategoryID)
	}
	sql := fmt.Sprintf(`SELECT DISTINCT o.order_id, o.customer_id, o.order_date, o.total_amount
FROM orders o
JOIN order_items oi ON oi.order_id = o.order_id
JOIN products p ON p.product_id = oi.product_id
%s
ORDER BY o.%s %s, o.order_id
LIMIT %s OFFSET %s`, b.clause(), by, order, b.next(pg.Limit), b.next(pg.Offset))
	return statement{sql: sql, args: b.args}, nil
}

func historySQL(p HistoryParams) (statement, error) {
	if p.CustomerID == 0 {
		return statement{}, fmt.Errorf("%w: customer id is required", ErrInvalidArgument)
	}
	pg, err := p.Page.normalize()
	if err != nil {
		return statement{}, err
	}
	by, order := p.Sort.resolve([]string{"order_date", "total_amount"}, "order_date", "DESC")

	var b builder
	b.add("o.customer_id = $%d", p.CustomerID)
	b.where = append(b.where, schema.RevenuePredicate("o"))
	if !p.Start.IsZero() {
		b.add("o.order_date >= $%d", p.Start)
	}
	if !p.End.IsZero() {
		b.add("o.order_date <= $%d", p.End)
	}
	sql := fmt.Sprintf(`SELECT o.order_id, o.customer_id, o.order_date, o.total_amount
FROM orders o
%s
ORDER BY o.%s %s, o.order_id
LIMIT %s OFFSET %s`, b.clause(), by, order, b.next(pg.Limit), b.next(pg.Offset))
	return statement{sql: sql, args: b.args}, nil
}

func topProductsSQL(p TopProductsParams) (statement, error) {
	if p.CategoryID == 0 {
		return statement{}, fmt.Errorf("%w: category id is required", ErrInvalidArgument)
	}
	pg, err := Page{Limit: p.Limit}.normalize()
	if err != nil {
		return statement{}, err
	}
	by, order := p.Sort.resolve([]string{"total_units_sold", "total_revenue", "order_count"}, "total_units_sold", "DESC")

	var b builder
	b.add("pc.category_id = $%d", p.CategoryID)
	b.where = append(b.where, schema.RevenuePredicate("o"))
	if !p.Start.IsZero() {
		b.add("o.order_date >= $%d", p.Start)
	}
	if !p.End.IsZero() {
		b.add("o.order_date <= $%d", p.End)
	}
	sql := fmt.Sprintf(`SELECT
    p.product_id,
    p.name AS product_name,
    pc.name AS category_name,
    SUM(oi.quantity) AS total_units_sold,
    SUM(oi.total) AS total_revenue,
    COUNT(DISTINCT o.order_id) AS order_count
FROM products p
JOIN product_categories pc ON pc.category_id = p.category_id
JOIN order_items oi ON oi.product_id = p.product_id
JOIN orders o ON o.order_id = oi.order_id
%s
GROUP BY p.product_id, p.name, pc.name
ORDER BY %s %s, p.product_id
LIMIT %s`, b.clause(), by, order, b.next(pg.Limit))
	return statement{sql: sql, args: b.args}, nil
}

func trendsSQL(p TrendParams) (statement, error) {
	if err := requireRange(p.Start, p.End); err != nil {
		return statement{}, err
	}
	iv := ParseInterval(string(p.Interval))

	var b builder
	b.add("dt.date >= $%d", p.Start)
	b.add("dt.date <= $%d", p.End)
	b.where = append(b.where, schema.RevenuePredicate("o"))
	bucket := fmt.Sprintf("DATE_TRUNC('%s', dt.date)", iv)
	sql := fmt.Sprintf(`SELECT
    %[1]s AS date,
    SUM(oi.total) AS total_sales
FROM dim_time dt
JOIN orders o ON o.order_date::date = dt.date
JOIN order_items oi ON oi.order_id = o.order_id
%[2]s
GROUP BY %[1]s
ORDER BY %[1]s`, bucket, b.clause())
	return statement{sql: sql, args: b.args}, nil
}

func updateProductSQL(u ProductUpdate) (statement, error) {
	if u.ProductID == 0 {
		return statement{}, fmt.Errorf("%w: product id is required", ErrInvalidArgument)
	}
	var b builder
	var set []string
	if u.Name != "" {
		set = append(set, "name = "+b.next(u.Name))
	}
	if u.Price != nil {
		if u.Price.IsNegative() {
			return statement{}, fmt.Errorf("%w: price must not be negative", ErrInvalidArgument)
		}
		set = append(set, "price = "+b.next(u.Price.StringFixed(2))+"::NUMERIC")
	}
	if len(set) == 0 {
		return statement{}, fmt.Errorf("%w: no fields provided to update", ErrInvalidArgument)
	}
	set = append(set, "updated_at = NOW()")
	sql := fmt.Sprintf(`UPDATE products
SET %s
WHERE product_id = %s
RETURNING product_id, name, price, category_id`, strings.Join(set, ", "), b.next(u.ProductID))
	return statement{sql: sql, args: b.args}, nil
}

// ProductSales lists revenue-bearing orders in the range that contain a
// matching product.
func (s *PGStore) ProductSales(ctx context.Context, p ProductSalesParams) ([]Order, error) {
	st, err := productSalesSQL(p)
	if err != nil {
		return nil, err
	}
	return s.orders(ctx, st)
}

// CustomerPurchaseHistory lists the revenue-bearing orders of a customer.
func (s *PGStore) CustomerPurchaseHistory(ctx context.Context, p HistoryParams) ([]Order, error) {
	st, err := historySQL(p)
	if err != nil {
		return nil, err
	}
	return s.orders(ctx, st)
}

func (s *PGStore) orders(ctx context.Context, st statement) ([]Order, error) {
	rows, err := s.db.Query(ctx, st.sql, st.args...)
	if err != nil {
		return nil, fmt.Errorf("query: orders: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Order, error) {
		var o Order
		err := row.Scan(&o.OrderID, &o.CustomerID, &o.OrderDate, &o.TotalAmount)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("query: orders: %w", err)
	}
	return out, nil
}

// TopSellingProductsByCategory ranks the products of a category.
func (s *PGStore) TopSellingProductsByCategory(ctx context.Context, p TopProductsParams) ([]ProductSales, error) {
	st, err := topProductsSQL(p)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, st.sql, st.args...)
	if err != nil {
		return nil, fmt.Errorf("query: top products: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ProductSales, error) {
		var ps ProductSales
		err := row.Scan(&ps.ProductID, &ps.ProductName, &ps.CategoryName, &ps.TotalUnitsSold, &ps.TotalRevenue, &ps.OrderCount)
		return ps, err
	})
	if err != nil {
		return nil, fmt.Errorf("query: top products: %w", err)
	}
	return out, nil
}

// SalesTrends sums revenue per calendar bucket over dim_time.
func (s *PGStore) SalesTrends(ctx context.Context, p TrendParams) ([]TrendPoint, error) {
	st, err := trendsSQL(p)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, st.sql, st.args...)
	if err != nil {
		return nil, fmt.Errorf("query: sales trends: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TrendPoint, error) {
		var tp TrendPoint
		err := row.Scan(&tp.Date, &tp.TotalSales)
		return tp, err
	})
	if err != nil {
		return nil, fmt.Errorf("query: sales trends: %w", err)
	}
	return out, nil
}

// UpdateProduct applies u, stamps updated_at and returns the product with
// its category.
func (s *PGStore) UpdateProduct(ctx context.Context, u ProductUpdate) (Product, error) {
	st, err := updateProductSQL(u)
	if err != nil {
		return Product{}, err
	}
	var p Product
	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, st.sql, st.args...).Scan(&p.ProductID, &p.Name, &p.Price, &p.Category.CategoryID)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: product %d", ErrNotFound, u.ProductID)
		}
		if err != nil {
			return err
		}
		return tx.QueryRow(ctx,
			`SELECT name FROM product_categories WHERE category_id = $1`,
			p.Category.CategoryID).Scan(&p.Category.Name)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Product{}, err
		}
		return Product{}, fmt.Errorf("query: update product: %w", err)
	}
	return p, nil
}
