// Package money implements the monetary math used by the document lifecycle:
// currency rounding, line-item totals and document aggregation. All functions
// are pure and operate on decimal values; float arithmetic is never used for
// amounts.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// CurrencyPlaces is the fractional precision for monetary amounts.
const CurrencyPlaces = 2

// QuantityPlaces is the fractional precision for item quantities.
const QuantityPlaces = 3

var (
	// ErrInvalidAmount indicates a malformed or non-finite monetary input.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNegativeInput indicates a negative value where only non-negative is allowed.
	ErrNegativeInput = errors.New("negative input")
)

// RoundCurrency rounds an amount to currency precision using round-half-to-even.
// Ties resolve to the nearest even digit so long sums of line items do not
// drift upward.
func RoundCurrency(amount decimal.Decimal) decimal.Decimal {
	return amount.RoundBank(CurrencyPlaces)
}

// ParseAmount parses a decimal string and rounds it to currency precision.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return RoundCurrency(d), nil
}

// RoundQuantity rounds a quantity to 3 fractional places, half-to-even.
func RoundQuantity(q decimal.Decimal) decimal.Decimal {
	return q.RoundBank(QuantityPlaces)
}
