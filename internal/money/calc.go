package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TaxKind selects how a tax configuration applies to a base amount.
type TaxKind string

const (
	TaxKindPercentage  TaxKind = "percentage"
	TaxKindFixedAmount TaxKind = "fixed_amount"
)

// TaxConfig is the read-only tax input to the calculation engine.
type TaxConfig struct {
	Kind     TaxKind
	Rate     decimal.Decimal // fraction, e.g. 0.16 for 16%
	Amount   decimal.Decimal // fixed amount, used when Kind is fixed_amount
	IsActive bool
}

// LineTotals carries the computed amounts for a single line item.
type LineTotals struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// DocumentTotals carries the aggregated amounts for a document.
type DocumentTotals struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// ItemAmounts is the per-item input to document aggregation.
type ItemAmounts struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// BasePrice computes costPrice * (1 + profitMargin) at currency precision.
func BasePrice(costPrice, profitMargin decimal.Decimal) (decimal.Decimal, error) {
	if costPrice.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: cost price %s", ErrNegativeInput, costPrice)
	}
	if profitMargin.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: profit margin %s", ErrNegativeInput, profitMargin)
	}
	return RoundCurrency(costPrice.Mul(decimal.NewFromInt(1).Add(profitMargin))), nil
}

// TaxAmount applies a tax configuration to a base amount. Percentage taxes
// multiply the base by the rate, fixed-amount taxes ignore the base, and an
// inactive configuration contributes nothing.
func TaxAmount(baseAmount decimal.Decimal, cfg TaxConfig) (decimal.Decimal, error) {
	if baseAmount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: base amount %s", ErrNegativeInput, baseAmount)
	}
	if !cfg.IsActive {
		return decimal.Zero, nil
	}
	switch cfg.Kind {
	case TaxKindPercentage:
		return RoundCurrency(baseAmount.Mul(cfg.Rate)), nil
	case TaxKindFixedAmount:
		return RoundCurrency(cfg.Amount), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown tax kind %q", ErrInvalidAmount, cfg.Kind)
	}
}

// LineItem computes subtotal, tax and total for one line. Each intermediate
// value is rounded before the next step so the stored amounts always satisfy
// total == subtotal + taxAmount exactly.
func LineItem(quantity, unitPrice, taxRate decimal.Decimal) (LineTotals, error) {
	if quantity.IsNegative() {
		return LineTotals{}, fmt.Errorf("%w: quantity %s", ErrNegativeInput, quantity)
	}
	if unitPrice.IsNegative() {
		return LineTotals{}, fmt.Errorf("%w: unit price %s", ErrNegativeInput, unitPrice)
	}
	if taxRate.IsNegative() {
		return LineTotals{}, fmt.Errorf("%w: tax rate %s", ErrNegativeInput, taxRate)
	}
	subtotal := RoundCurrency(quantity.Mul(unitPrice))
	tax := RoundCurrency(subtotal.Mul(taxRate))
	return LineTotals{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     RoundCurrency(subtotal.Add(tax)),
	}, nil
}

// DocumentTotalsOf sums each item field independently and rounds the sums.
// Summing before rounding keeps the document totals free of per-line rounding
// accumulation, and the result is invariant under item reordering.
func DocumentTotalsOf(items []ItemAmounts) DocumentTotals {
	var subtotal, tax, total decimal.Decimal
	for _, it := range items {
		subtotal = subtotal.Add(it.Subtotal)
		tax = tax.Add(it.TaxAmount)
		total = total.Add(it.Total)
	}
	return DocumentTotals{
		Subtotal:  RoundCurrency(subtotal),
		TaxAmount: RoundCurrency(tax),
		Total:     RoundCurrency(total),
	}
}

// ValidateTotals recomputes the document total from subtotal and tax and
// compares it with the stored total. It is an integrity check, not a
// recalculation authority.
func ValidateTotals(t DocumentTotals) bool {
	return RoundCurrency(t.Subtotal.Add(t.TaxAmount)).Equal(RoundCurrency(t.Total))
}
