package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"shopetl/internal/schema"
)

// Canonical text layouts shared by every backend.
const (
	TimestampLayout = "2006-01-02 15:04:05"
	DateLayout      = "2006-01-02"
)

var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04",
	DateLayout,
}

// Canonical returns the canonical text form of s for kind. Empty input is
// returned unchanged; callers decide whether empty is allowed.
func Canonical(kind schema.Kind, s string) (string, error) {
	if s == "" {
		return "", nil
	}
	switch kind {
	case schema.KindText:
		return s, nil
	case schema.KindInt:
		n, err := ParseInt(s)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil
	case schema.KindDecimal:
		d, err := ParseMoney(s)
		if err != nil {
			return "", err
		}
		return FormatMoney(d), nil
	case schema.KindTimestamp:
		t, err := ParseTime(s)
		if err != nil {
			return "", err
		}
		return t.Format(TimestampLayout), nil
	case schema.KindDate:
		t, err := ParseTime(s)
		if err != nil {
			return "", err
		}
		return t.Format(DateLayout), nil
	case schema.KindBool:
		b, err := ParseBool(s)
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	case schema.KindOrderStatus:
		st, err := schema.ParseOrderStatus(s)
		return string(st), err
	case schema.KindPaymentMethod:
		pm, err := schema.ParsePaymentMethod(s)
		return string(pm), err
	default:
		return "", fmt.Errorf("unsupported kind %s", kind)
	}
}

// ParseInt accepts base-10 integers and integral decimals such as "3.0",
// which is how float-typed exports write nullable integer columns.
func ParseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return d.IntPart(), nil
}

// ParseMoney parses an exact decimal amount.
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a decimal: %q", s)
	}
	return d, nil
}

// FormatMoney renders d with exactly two fractional digits.
func FormatMoney(d decimal.Decimal) string { return d.StringFixed(2) }

// ParseTime accepts the timestamp and date layouts found in source exports.
// Values without a zone are taken as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range timestampLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("not a timestamp: %q", s)
}

// ParseBool accepts strconv.ParseBool forms plus yes/no and y/n.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("not a bool: %q", s)
	}
	return b, nil
}
