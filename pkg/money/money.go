// Package money holds the decimal helpers shared by carts, orders and invoices.
package money

import (
	"github.com/shopspring/decimal"
)

// Symbol is prefixed to every rendered amount; it is not locale derived.
const Symbol = "$"

// Format renders an amount with exactly two decimal places.
func Format(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-" + Symbol + d.Neg().StringFixed(2)
	}
	return Symbol + d.StringFixed(2)
}

// Plain renders an amount with two decimals and no symbol.
func Plain(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// Parse reads a decimal amount, e.g. "9.99".
func Parse(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// MustParse is for constants and tests.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
