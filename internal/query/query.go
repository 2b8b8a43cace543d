// Package query is the read and maintenance surface over the loaded store:
// order listings, top sellers, sales trends and product updates. Every
// revenue figure applies the same status filter as the pipeline.
package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned for requests that cannot be executed,
	// such as an empty date range or an update with no fields.
	ErrInvalidArgument = errors.New("invalid argument")
)

const (
	DefaultLimit = 10
	MaxLimit     = 1000
)

// Store is the query surface. Implementations must be safe for concurrent
// use.
type Store interface {
	ProductSales(ctx context.Context, p ProductSalesParams) ([]Order, error)
	CustomerPurchaseHistory(ctx context.Context, p HistoryParams) ([]Order, error)
	TopSellingProductsByCategory(ctx context.Context, p TopProductsParams) ([]ProductSales, error)
	SalesTrends(ctx context.Context, p TrendParams) ([]TrendPoint, error)
	UpdateProduct(ctx context.Context, u ProductUpdate) (Product, error)
}

// Order is one order row as listed by the query layer.
type Order struct {
	OrderID     int64           `json:"order_id"`
	CustomerID  int64           `json:"customer_id"`
	OrderDate   time.Time       `json:"order_date"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// ProductSales is one product of a top sellers listing.
type ProductSales struct {
	ProductID      int64           `json:"product_id"`
	ProductName    string          `json:"product_name"`
	CategoryName   string          `json:"category_name"`
	TotalUnitsSold int64           `json:"total_units_sold"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	OrderCount     int64           `json:"order_count"`
}

// TrendPoint is the revenue of one interval bucket.
type TrendPoint struct {
	Date       time.Time       `json:"date"`
	TotalSales decimal.Decimal `json:"total_sales"`
}

// Category is a product category reference.
type Category struct {
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
}

// Product is the result of UpdateProduct.
type Product struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Category  Category        `json:"category"`
}

// Page bounds a listing. A zero Limit means DefaultLimit.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() (Page, error) {
	if p.Limit < 0 || p.Offset < 0 {
		return p, fmt.Errorf("%w: limit and offset must not be negative", ErrInvalidArgument)
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	p.Limit = min(p.Limit, MaxLimit)
	return p, nil
}

// Sort selects an ordering column and direction. Unknown columns and
// directions fall back to the listing's default; they never reach SQL.
type Sort struct {
	By    string
	Order string
}

func (s Sort) resolve(allowed []string, defBy, defOrder string) (by, order string) {
	by, order = defBy, defOrder
	if slices.Contains(allowed, s.By) {
		by = s.By
	}
	switch strings.ToUpper(s.Order) {
	case "ASC":
		order = "ASC"
	case "DESC":
		order = "DESC"
	}
	return by, order
}

// ProductSalesParams filters the order listing of ProductSales. Start and
// End are required and inclusive.
type ProductSalesParams struct {
	Start, End time.Time
	ProductID  int64 // 0 means any
	CategoryID int64 // 0 means any
	Page
	Sort // order_date (default ASC) or total_amount
}

// HistoryParams selects the orders of one customer. Zero Start or End means
// unbounded.
type HistoryParams struct {
	CustomerID int64
	Start, End time.Time
	Page
	Sort // order_date (default DESC) or total_amount
}

// TopProductsParams selects the best sellers of one category.
type TopProductsParams struct {
	CategoryID int64
	Start, End time.Time
	Limit      int
	Sort       // total_units_sold (default DESC), total_revenue or order_count
}

// Interval is the bucket width of SalesTrends.
type Interval string

const (
	Day   Interval = "day"
	Week  Interval = "week"
	Month Interval = "month"
)

// ParseInterval maps an interval name to an Interval; unknown names map to
// Day.
func ParseInterval(s string) Interval {
	switch Interval(strings.ToLower(s)) {
	case Week:
		return Week
	case Month:
		return Month
	default:
		return Day
	}
}

// TrendParams selects the calendar range of SalesTrends, inclusive.
type TrendParams struct {
	Start, End time.Time
	Interval   Interval
}

// ProductUpdate changes a product's name and/or price. An empty Name and a
// nil Price leave the field unchanged; a zero price is a valid update.
type ProductUpdate struct {
	ProductID int64
	Name      string
	Price     *decimal.Decimal
}

func requireRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidArgument)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end is before start", ErrInvalidArgument)
	}
	return nil
}
