package numeric

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDecimal(t *testing.T) {
	t.Parallel()

	raw, ok := new(big.Int).SetString("1000000", 10)
	require.True(t, ok)

	d := ToDecimal(raw, 6)
	assert.True(t, d.Equal(decimal.NewFromInt(1)), "1000000 raw @ 6 decimals must be 1, got %s", d)
}

func TestToDecimal_NilRaw(t *testing.T) {
	t.Parallel()

	assert.True(t, ToDecimal(nil, 18).IsZero())
}

func TestToDecimal_ZeroDecimals(t *testing.T) {
	t.Parallel()

	d := ToDecimal(big.NewInt(42), 0)
	assert.True(t, d.Equal(decimal.NewFromInt(42)))
}

func TestFromDecimal_TruncatesTowardZero(t *testing.T) {
	t.Parallel()

	// 1.2345678 @ 6 decimals -> 1234567, the trailing 8 is dropped, not rounded
	d := decimal.RequireFromString("1.2345678")
	raw := FromDecimal(d, 6)
	assert.Equal(t, "1234567", raw.String())
}

func TestFromDecimal_RoundTrip(t *testing.T) {
	t.Parallel()

	raw := big.NewInt(123456789)
	back := FromDecimal(ToDecimal(raw, 8), 8)
	assert.Equal(t, raw.String(), back.String())
}

func TestSafeDiv_ZeroDenominator(t *testing.T) {
	t.Parallel()

	got := SafeDiv(decimal.NewFromInt(10), decimal.Zero)
	assert.True(t, got.IsZero())
}

func TestSafeDiv(t *testing.T) {
	t.Parallel()

	got := SafeDiv(decimal.NewFromInt(10), decimal.NewFromInt(4))
	assert.True(t, got.Equal(decimal.RequireFromString("2.5")))
}

func TestBasisPoints(t *testing.T) {
	t.Parallel()

	assert.True(t, BasisPoints(30).Equal(decimal.RequireFromString("0.003")))
	assert.True(t, BasisPoints(0).IsZero())
}
