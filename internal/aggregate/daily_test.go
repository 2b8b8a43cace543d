package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	productCols = []string{"product_id", "name", "category_id"}
	orderCols   = []string{"order_id", "customer_id", "order_date", "status"}
	itemCols    = []string{"order_item_id", "order_id", "product_id", "quantity", "price", "discount", "total"}
)

func inputs(t *testing.T) Inputs {
	t.Helper()
	in := Inputs{Items: &Items{}, Products: Products{}, Orders: Orders{}}
	require.NoError(t, in.Products.AddProducts(productCols, [][]any{
		{"1", "Lamp", "10"},
		{"2", "Rug", "20"},
		{"1", "Lamp again", "99"}, // first row wins
	}))
	require.NoError(t, in.Orders.AddOrders(orderCols, [][]any{
		{"100", "1", "2024-01-01 09:00:00", "Delivered"},
		{"101", "1", "2024-01-01 18:30:00", "Shipped"},
		{"102", "1", "2024-01-02 10:00:00", "Cancelled"},
		{"103", "1", "2024-01-02 11:00:00", "Delivered"},
	}))
	require.NoError(t, in.Items.AddItems(itemCols, [][]any{
		{"1", "100", "1", "2", "10.00", "1.00", "19.00"},
		{"2", "101", "1", "1", "10.00", "0.00", "10.00"},
		{"3", "101", "2", "3", "5.00", nil, "15.00"},
		{"4", "102", "1", "5", "10.00", "0.00", "50.00"}, // cancelled: row observed, no contribution
		{"5", "999", "1", "1", "1.00", "0.00", "1.00"},   // order not accepted
		{"6", "103", "42", "1", "1.00", "0.00", "1.00"},  // product not accepted
		{"1", "100", "1", "2", "10.00", "1.00", "19.00"}, // repeated item id
	}))
	return in
}

func TestDailySales(t *testing.T) {
	in := inputs(t)
	assert.Equal(t, int64(10), in.Products[1])
	assert.Equal(t, 6, in.Items.Len())

	rows, st := DailySales(in)
	assert.Equal(t, Stats{Items: 6, Rows: 3, Gaps: 2}, st)
	require.Len(t, rows, 3)

	assert.Equal(t, []any{"2024-01-01", "1", "10", "3", "29.00", "2", "9.67"}, rows[0].Values())
	assert.Equal(t, []any{"2024-01-01", "2", "20", "3", "15.00", "1", "5.00"}, rows[1].Values())
	// Zero units: average is 0, not a division error.
	assert.Equal(t, []any{"2024-01-02", "1", "10", "0", "0.00", "0", "0.00"}, rows[2].Values())

	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, Dates(rows))
	assert.Len(t, Rows(rows), 3)
}

func TestDailySales_Deterministic(t *testing.T) {
	a, _ := DailySales(inputs(t))
	for i := 0; i < 5; i++ {
		b, _ := DailySales(inputs(t))
		assert.Equal(t, Rows(a), Rows(b))
	}
}

func TestDailySales_Empty(t *testing.T) {
	rows, st := DailySales(Inputs{})
	assert.Empty(t, rows)
	assert.Equal(t, Stats{}, st)
}

func TestAdd_MissingColumn(t *testing.T) {
	assert.Error(t, Products{}.AddProducts([]string{"product_id"}, nil))
	assert.Error(t, Orders{}.AddOrders([]string{"order_id", "status"}, nil))
	var it Items
	assert.Error(t, it.AddItems([]string{"order_item_id"}, nil))
}

func TestColumnsMatchValues(t *testing.T) {
	assert.Len(t, DailyRow{}.Values(), len(Columns))
	assert.Equal(t, "date", Columns[0])
}
