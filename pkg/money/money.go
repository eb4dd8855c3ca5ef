package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Two-decimal-place rounding, matching the ledger's numeric(14,2) columns.
const ledgerScale = 2

// Split divides an order total into the platform fee and the seller payout.
// The two parts always sum back to the total: the fee is rounded and the
// payout takes the remainder.
func Split(total, feeRate decimal.Decimal) (fee, payout decimal.Decimal) {
	fee = total.Mul(feeRate).Round(ledgerScale)
	payout = total.Sub(fee)
	return fee, payout
}

// GrossUp inflates a requested payout so that after the provider removes a
// proportional fee downstream, the requester still nets the amount they
// asked for: deduction = amount / (1 - feeRate).
func GrossUp(amount, feeRate decimal.Decimal) (decimal.Decimal, error) {
	one := decimal.NewFromInt(1)
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(one) {
		return decimal.Zero, fmt.Errorf("fee rate must be in [0, 1): %s", feeRate)
	}
	if feeRate.IsZero() {
		return amount, nil
	}
	return amount.DivRound(one.Sub(feeRate), ledgerScale), nil
}

// WithinTolerance reports whether two amounts differ by at most tolerance.
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
