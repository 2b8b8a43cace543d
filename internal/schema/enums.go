package schema

import (
	"fmt"
	"strings"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "Pending"
	StatusProcessing OrderStatus = "Processing"
	StatusShipped    OrderStatus = "Shipped"
	StatusInTransit  OrderStatus = "In Transit"
	StatusDelivered  OrderStatus = "Delivered"
	StatusCancelled  OrderStatus = "Cancelled"
	StatusReturned   OrderStatus = "Returned"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{
	StatusPending, StatusProcessing, StatusShipped, StatusInTransit,
	StatusDelivered, StatusCancelled, StatusReturned,
}

// NonRevenueStatuses are excluded from every revenue figure: customer
// lifetime value, daily sales, the product summary and the query layer.
var NonRevenueStatuses = []OrderStatus{StatusCancelled, StatusReturned}

// CountsAsRevenue reports whether orders in status s contribute to revenue.
func (s OrderStatus) CountsAsRevenue() bool {
	for _, x := range NonRevenueStatuses {
		if s == x {
			return false
		}
	}
	return true
}

// ParseOrderStatus accepts any casing and surrounding whitespace and returns
// the canonical status.
func ParseOrderStatus(s string) (OrderStatus, error) {
	key := canonKey(s)
	for _, v := range OrderStatuses {
		if canonKey(string(v)) == key {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// PaymentMethod is how an order was paid.
type PaymentMethod string

const (
	PaymentCreditCard PaymentMethod = "Credit Card"
	PaymentPayPal     PaymentMethod = "PayPal"
	PaymentApplePay   PaymentMethod = "Apple Pay"
	PaymentGooglePay  PaymentMethod = "Google Pay"
	PaymentGiftCard   PaymentMethod = "Gift Card"
)

// PaymentMethods lists every accepted payment method.
var PaymentMethods = []PaymentMethod{
	PaymentCreditCard, PaymentPayPal, PaymentApplePay, PaymentGooglePay, PaymentGiftCard,
}

// ParsePaymentMethod accepts any casing and surrounding whitespace and
// returns the canonical payment method.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	key := canonKey(s)
	for _, v := range PaymentMethods {
		if canonKey(string(v)) == key {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// canonKey folds case and collapses inner whitespace, underscores and dashes
// so "in_transit", "IN TRANSIT" and "In  Transit" compare equal.
func canonKey(s string) string {
	f := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '\t'
	})
	return strings.Join(f, " ")
}
