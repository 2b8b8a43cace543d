package schema

// Relation identifies a relation of the store. The set is closed: every
// switch over Relation in this module handles each value explicitly.
type Relation int

const (
	Categories Relation = iota + 1
	Products
	Customers
	Orders
	OrderItems
	DailySales
	DimTime
	ProductSalesSummary
)

var allRelations = []Relation{
	Categories, Products, Customers, Orders, OrderItems, DailySales, DimTime, ProductSalesSummary,
}

// SourceRelations are the relations extracted from flat files, in load order.
var SourceRelations = []Relation{Categories, Products, Customers, Orders, OrderItems}

// BaseTables are the relations that exist as tables (not views), in creation
// order so that enforced references always point at an existing table.
var BaseTables = []Relation{Categories, Products, Customers, Orders, OrderItems, DailySales, DimTime}

func (r Relation) String() string {
	switch r {
	case Categories:
		return "product_categories"
	case Products:
		return "products"
	case Customers:
		return "customers"
	case Orders:
		return "orders"
	case OrderItems:
		return "order_items"
	case DailySales:
		return "daily_sales_aggregate"
	case DimTime:
		return "dim_time"
	case ProductSalesSummary:
		return "product_sales_summary"
	default:
		return "unknown"
	}
}

// Key is the short name used in configuration files and task names.
func (r Relation) Key() string {
	switch r {
	case Categories:
		return "categories"
	case Products:
		return "products"
	case Customers:
		return "customers"
	case Orders:
		return "orders"
	case OrderItems:
		return "order_items"
	case DailySales:
		return "daily_sales"
	case DimTime:
		return "dim_time"
	case ProductSalesSummary:
		return "product_sales_summary"
	default:
		return "unknown"
	}
}

// Table returns the catalog definition of r.
func (r Relation) Table() Table {
	switch r {
	case Categories:
		return categoriesTable
	case Products:
		return productsTable
	case Customers:
		return customersTable
	case Orders:
		return ordersTable
	case OrderItems:
		return orderItemsTable
	case DailySales:
		return dailySalesTable
	case DimTime:
		return dimTimeTable
	case ProductSalesSummary:
		return productSalesSummaryTable
	default:
		return Table{Relation: r}
	}
}

func audit() []Column {
	return []Column{
		{Name: "updated_at", Kind: KindTimestamp, Nullable: true, Generated: true},
	}
}

var categoriesTable = Table{
	Relation: Categories,
	Columns: append([]Column{
		{Name: "category_id", Kind: KindInt},
		{Name: "name", Kind: KindText},
		{Name: "description", Kind: KindText, Nullable: true},
		{Name: "parent_id", Kind: KindInt, Nullable: true},
		{Name: "created_at", Kind: KindTimestamp, Nullable: true},
	}, audit()...),
	PrimaryKey: []string{"category_id"},
	References: []Reference{
		{Column: "parent_id", Parent: Categories, ParentColumn: "category_id", Enforced: true},
	},
}

var productsTable = Table{
	Relation: Products,
	Columns: append([]Column{
		{Name: "product_id", Kind: KindInt},
		{Name: "name", Kind: KindText},
		{Name: "description", Kind: KindText, Nullable: true},
		{Name: "price", Kind: KindDecimal},
		{Name: "cost", Kind: KindDecimal, Nullable: true},
		{Name: "category_id", Kind: KindInt},
		{Name: "sku", Kind: KindText},
		{Name: "inventory_count", Kind: KindInt, Default: "0"},
		{Name: "weight", Kind: KindDecimal, Nullable: true},
		{Name: "created_at", Kind: KindTimestamp, Nullable: true},
		{Name: "is_active", Kind: KindBool, Default: "true"},
	}, audit()...),
	PrimaryKey: []string{"product_id"},
	Unique:     [][]string{{"sku"}},
	References: []Reference{
		{Column: "category_id", Parent: Categories, ParentColumn: "category_id", Enforced: true},
	},
}

var customersTable = Table{
	Relation: Customers,
	Columns: []Column{
		{Name: "customer_id", Kind: KindInt},
		{Name: "email", Kind: KindText},
		{Name: "first_name", Kind: KindText},
		{Name: "last_name", Kind: KindText},
		{Name: "street_address", Kind: KindText, Nullable: true},
		{Name: "city", Kind: KindText, Nullable: true},
		{Name: "state", Kind: KindText, Nullable: true},
		{Name: "zip_code", Kind: KindText, Nullable: true},
		{Name: "country", Kind: KindText, Nullable: true},
		{Name: "phone", Kind: KindText, Nullable: true},
		{Name: "registration_date", Kind: KindTimestamp},
		{Name: "last_login", Kind: KindTimestamp, Nullable: true},
		{Name: "lifetime_value", Kind: KindDecimal, Derived: true},
	},
	PrimaryKey: []string{"customer_id"},
	Unique:     [][]string{{"email"}},
}

var ordersTable = Table{
	Relation: Orders,
	Columns: []Column{
		{Name: "order_id", Kind: KindInt},
		{Name: "customer_id", Kind: KindInt},
		{Name: "order_date", Kind: KindTimestamp},
		{Name: "status", Kind: KindOrderStatus},
		{Name: "payment_method", Kind: KindPaymentMethod},
		{Name: "shipping_address", Kind: KindText, Nullable: true},
		{Name: "shipping_city", Kind: KindText, Nullable: true},
		{Name: "shipping_state", Kind: KindText, Nullable: true},
		{Name: "shipping_zip", Kind: KindText, Nullable: true},
		{Name: "shipping_country", Kind: KindText, Nullable: true},
		{Name: "processing_date", Kind: KindTimestamp, Nullable: true},
		{Name: "shipping_date", Kind: KindTimestamp, Nullable: true},
		{Name: "delivery_date", Kind: KindTimestamp, Nullable: true},
		{Name: "total_amount", Kind: KindDecimal},
	},
	// The partition key must be part of the primary key.
	PrimaryKey: []string{"order_id", "order_date"},
	References: []Reference{
		{Column: "customer_id", Parent: Customers, ParentColumn: "customer_id", Enforced: true},
	},
	Partition: &Partition{Column: "order_date"},
}

var orderItemsTable = Table{
	Relation: OrderItems,
	Columns: []Column{
		{Name: "order_item_id", Kind: KindInt},
		{Name: "order_id", Kind: KindInt},
		{Name: "product_id", Kind: KindInt},
		{Name: "quantity", Kind: KindInt},
		{Name: "price", Kind: KindDecimal},
		{Name: "discount", Kind: KindDecimal, Default: "0.00"},
		{Name: "total", Kind: KindDecimal, Derived: true},
	},
	PrimaryKey: []string{"order_item_id"},
	References: []Reference{
		{Column: "product_id", Parent: Products, ParentColumn: "product_id", Enforced: true},
		{Column: "order_id", Parent: Orders, ParentColumn: "order_id", Enforced: false},
	},
}

var dailySalesTable = Table{
	Relation: DailySales,
	Columns: []Column{
		{Name: "date", Kind: KindDate},
		{Name: "product_id", Kind: KindInt},
		{Name: "category_id", Kind: KindInt},
		{Name: "units_sold", Kind: KindInt},
		{Name: "revenue", Kind: KindDecimal},
		{Name: "order_count", Kind: KindInt},
		{Name: "avg_unit_price", Kind: KindDecimal},
	},
	PrimaryKey: []string{"date", "product_id"},
}

var dimTimeTable = Table{
	Relation: DimTime,
	Columns: []Column{
		{Name: "date", Kind: KindDate},
		{Name: "day_of_week", Kind: KindInt},
		{Name: "day_of_month", Kind: KindInt},
		{Name: "day_of_year", Kind: KindInt},
		{Name: "week_of_year", Kind: KindInt},
		{Name: "month", Kind: KindInt},
		{Name: "month_name", Kind: KindText},
		{Name: "quarter", Kind: KindInt},
		{Name: "year", Kind: KindInt},
		{Name: "is_weekend", Kind: KindBool},
		{Name: "is_holiday", Kind: KindBool},
	},
	PrimaryKey: []string{"date"},
}

// productSalesSummaryTable is the shape of the derived summary. Backends
// without materialized views store it as a plain table rebuilt on refresh.
var productSalesSummaryTable = Table{
	Relation: ProductSalesSummary,
	Columns: []Column{
		{Name: "product_id", Kind: KindInt},
		{Name: "product_name", Kind: KindText},
		{Name: "category_id", Kind: KindInt},
		{Name: "total_units_sold", Kind: KindInt},
		{Name: "total_revenue", Kind: KindDecimal},
		{Name: "order_count", Kind: KindInt},
		{Name: "last_order_date", Kind: KindTimestamp, Nullable: true},
	},
	PrimaryKey: []string{"product_id"},
}
