package numeric

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Conversions between raw on-chain integer amounts and human decimal amounts.
// Precision outside 0..77 is a caller bug, not defended against.

// ToDecimal divides raw by 10^decimals.
func ToDecimal(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// FromDecimal multiplies by 10^decimals and truncates toward zero.
func FromDecimal(d decimal.Decimal, decimals uint8) *big.Int {
	return d.Shift(int32(decimals)).Truncate(0).BigInt()
}

// SafeDiv returns a/b, or zero when b is zero. Division by zero total-supply
// and friends are expected data conditions, not errors.
func SafeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Div(b)
}

// BasisPoints converts a bps fee (30 = 0.3%) to a multiplier fraction.
func BasisPoints(bps int64) decimal.Decimal {
	return decimal.New(bps, -4)
}
