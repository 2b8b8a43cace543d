package transform

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopetl/internal/datasource"
	"shopetl/internal/etlerr"
	"shopetl/internal/extract"
	"shopetl/internal/schema"
)

func batch(recs ...map[string]string) extract.Batch {
	b := extract.Batch{}
	for i, v := range recs {
		b.Records = append(b.Records, extract.Record{Line: i + 2, Values: v})
	}
	return b
}

func TestClean_DropsMissingAndMalformed(t *testing.T) {
	b := batch(
		map[string]string{"id": "1", "name": "a"},
		map[string]string{"id": "", "name": "b"},
		map[string]string{"id": "3", "name": "c"},
	)
	b.Records = append(b.Records, extract.Record{Line: 9, Malformed: assert.AnError})

	out, st, err := Clean(b, []string{"id"}, Policy{})
	require.NoError(t, err)
	assert.Equal(t, CleanStats{In: 4, Dropped: 2, Malformed: 1}, st)
	require.Len(t, out.Records, 2)
	assert.Equal(t, "3", out.Records[1].Get("id"))
}

func TestClean_EmptyBatchPolicy(t *testing.T) {
	b := batch(map[string]string{"id": ""})

	out, _, err := Clean(b, []string{"id"}, Policy{})
	require.NoError(t, err)
	assert.Empty(t, out.Records)

	_, _, err = Clean(b, []string{"id"}, Policy{FailOnEmptyBatch: true})
	assert.ErrorIs(t, err, etlerr.ErrEmptyBatchAfterValidation)

	// An input batch that was already empty is never an error.
	_, _, err = Clean(extract.Batch{}, []string{"id"}, Policy{FailOnEmptyBatch: true})
	assert.NoError(t, err)
}

func TestOrderItemRule_RecomputesTotal(t *testing.T) {
	b := batch(map[string]string{
		"order_item_id": "1", "order_id": "10", "product_id": "5",
		"quantity": "2", "price": "10.0", "discount": "1.0", "total": "999",
	})
	cols := schema.OrderItems.Table().LoadColumns()

	out, err := Apply(OrderItemRule{}, b, cols)
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, []any{"1", "10", "5", "2", "10.00", "1.00", "19.00"}, out.Rows[0])
}

func TestOrderItemRule_DefaultsDiscount(t *testing.T) {
	b := batch(map[string]string{
		"order_item_id": "1", "order_id": "10", "product_id": "5", "quantity": "3", "price": "0.10",
	})
	out, err := Apply(OrderItemRule{}, b, []string{"order_item_id", "discount", "total"})
	require.NoError(t, err)
	assert.Equal(t, []any{"1", "0.00", "0.30"}, out.Rows[0])
}

func TestOrderItemRule_RejectsUnparsable(t *testing.T) {
	b := batch(
		map[string]string{"order_item_id": "1", "order_id": "10", "product_id": "5", "quantity": "two", "price": "1"},
		map[string]string{"order_item_id": "2", "order_id": "10", "product_id": "5", "quantity": "1", "price": "1"},
	)
	out, err := Apply(OrderItemRule{}, b, schema.OrderItems.Table().LoadColumns())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Rejected)
	require.Len(t, out.Reasons, 1)
	assert.Contains(t, out.Reasons[0], "line 2")
	assert.Equal(t, []int{3}, out.Lines)
}

func TestCustomerRule_LeftJoinsLifetimeValue(t *testing.T) {
	rule := CustomerRule{LifetimeValues: LifetimeValues{1: decimal.RequireFromString("120.5")}}
	b := batch(
		map[string]string{"customer_id": "1", "email": "a@x", "first_name": "A", "last_name": "B", "registration_date": "2023-01-02 03:04:05"},
		map[string]string{"customer_id": "2", "email": "b@x", "first_name": "C", "last_name": "D", "registration_date": "2023-01-02"},
	)
	out, err := Apply(rule, b, []string{"customer_id", "registration_date", "last_login", "lifetime_value"})
	require.NoError(t, err)
	assert.Equal(t, []any{"1", "2023-01-02 03:04:05", nil, "120.50"}, out.Rows[0])
	assert.Equal(t, []any{"2", "2023-01-02 00:00:00", nil, "0.00"}, out.Rows[1])

	assert.NotContains(t, RequiredFor(rule), "lifetime_value")
}

func TestOrderRule_ParsesEnums(t *testing.T) {
	b := batch(
		map[string]string{"order_id": "1", "customer_id": "1", "order_date": "2024-03-01T10:00:00",
			"status": "in transit", "payment_method": "paypal", "total_amount": "5"},
		map[string]string{"order_id": "2", "customer_id": "1", "order_date": "2024-03-01",
			"status": "lost", "payment_method": "paypal", "total_amount": "5"},
	)
	out, err := Apply(OrderRule{}, b, []string{"order_id", "order_date", "status", "payment_method", "total_amount"})
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, []any{"1", "2024-03-01 10:00:00", "In Transit", "PayPal", "5.00"}, out.Rows[0])
	assert.Equal(t, 1, out.Rejected)
}

func TestProductRule_DefaultsAndFloatInts(t *testing.T) {
	b := batch(map[string]string{
		"product_id": "7", "name": "Lamp", "price": "12", "category_id": "3.0", "sku": "SKU-7",
		"is_active": "False",
	})
	out, err := Apply(ProductRule{}, b, []string{"product_id", "category_id", "inventory_count", "is_active", "weight"})
	require.NoError(t, err)
	assert.Equal(t, []any{"7", "3", "0", "false", nil}, out.Rows[0])
}

func TestApply_UnknownColumn(t *testing.T) {
	_, err := Apply(CategoryRule{}, batch(), []string{"nope"})
	assert.Error(t, err)
}

func TestApply_IsPure(t *testing.T) {
	b := batch(map[string]string{"category_id": "1", "name": "Home", "parent_id": ""})
	cols := schema.Categories.Table().LoadColumns()
	a, err := Apply(CategoryRule{}, b, cols)
	require.NoError(t, err)
	c, err := Apply(CategoryRule{}, b, cols)
	require.NoError(t, err)
	assert.Equal(t, a, c)
	assert.Equal(t, "", b.Records[0].Get("parent_id"))
}

func TestCanonical(t *testing.T) {
	cases := []struct {
		kind schema.Kind
		in   string
		want string
	}{
		{schema.KindInt, "42", "42"},
		{schema.KindInt, "42.0", "42"},
		{schema.KindDecimal, "1", "1.00"},
		{schema.KindDecimal, "1.005", "1.01"},
		{schema.KindTimestamp, "2024-01-02T03:04:05Z", "2024-01-02 03:04:05"},
		{schema.KindTimestamp, "2024-01-02 03:04:05.123456", "2024-01-02 03:04:05"},
		{schema.KindDate, "2024-01-02 23:59:59", "2024-01-02"},
		{schema.KindBool, "True", "true"},
		{schema.KindBool, "no", "false"},
		{schema.KindOrderStatus, "RETURNED", "Returned"},
		{schema.KindText, "  kept  ", "  kept  "},
	}
	for _, c := range cases {
		got, err := Canonical(c.kind, c.in)
		require.NoError(t, err, "%s %q", c.kind, c.in)
		assert.Equal(t, c.want, got, "%s %q", c.kind, c.in)
	}

	for _, bad := range []struct {
		kind schema.Kind
		in   string
	}{{schema.KindInt, "4.5"}, {schema.KindDecimal, "x"}, {schema.KindTimestamp, "yesterday"}, {schema.KindBool, "maybe"}} {
		_, err := Canonical(bad.kind, bad.in)
		assert.Error(t, err, "%s %q", bad.kind, bad.in)
	}
}

func TestComputeLifetimeValues_ExcludesNonRevenue(t *testing.T) {
	src := datasource.NewStatic("orders.csv",
		"order_id,customer_id,order_date,status,payment_method,total_amount\n"+
			"1,1,2024-03-01,Delivered,PayPal,10.10\n"+
			"2,1,2024-03-01,Shipped,PayPal,5.05\n"+
			"3,1,2024-03-01,Cancelled,PayPal,100\n"+
			"4,2,2024-03-01,Returned,PayPal,7\n"+
			"5,3,2024-03-01,Delivered,PayPal,abc\n")
	ds := extract.Dataset{Source: src, ChunkSize: 2, Options: extract.Options{HasHeader: true}}

	ltv, skipped, err := ComputeLifetimeValues(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, "15.15", FormatMoney(ltv[1]))
	_, ok := ltv[2]
	assert.False(t, ok)
	assert.Equal(t, 1, skipped)
}

func TestComputeLifetimeValues_OnlyLoadableOrders(t *testing.T) {
	src := datasource.NewStatic("orders.csv",
		"order_id,customer_id,order_date,status,payment_method,total_amount\n"+
			"1,1,2024-03-01 09:00:00,Delivered,PayPal,10.00\n"+
			"1,1,2024-03-01 09:00:00,Delivered,PayPal,10.00\n"+ // repeated key loads once
			"2,1,2024-03-02 09:00:00,Delivered,Bitcoin,1000\n"+ // unknown payment method
			"3,1,yesterday,Delivered,PayPal,500\n"+ // bad timestamp
			"4,1,2024-03-03 09:00:00,Delivered,,70\n") // missing required value
	ds := extract.Dataset{Source: src, ChunkSize: 2, Options: extract.Options{HasHeader: true}}

	ltv, skipped, err := ComputeLifetimeValues(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, "10.00", FormatMoney(ltv[1]))
	assert.Equal(t, 3, skipped)
}
