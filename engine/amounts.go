package engine

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ToBaseUnits scales a human amount to the token's integer units, truncating
// toward zero.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, ConfigurationError(CodeInvalidAmount, "amount %s must not be negative", amount)
	}
	return amount.Shift(int32(decimals)).Truncate(0).BigInt(), nil
}

// FromBaseUnits scales an integer token amount down to a human amount.
func FromBaseUnits(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// ApplySlippage derives the minimum output (Input) or maximum input (Output)
// from an expected quote. The delta is truncated to the token's decimals in
// both directions.
func ApplySlippage(expected, slippage decimal.Decimal, direction Direction, decimals uint8) decimal.Decimal {
	delta := expected.Mul(slippage).Truncate(int32(decimals))
	if direction == Output {
		return expected.Add(delta).Truncate(int32(decimals))
	}
	return expected.Sub(delta).Truncate(int32(decimals))
}

// PoolShare returns part/whole as a percentage, truncated to 2 decimals and
// capped at 100.
func PoolShare(part, whole decimal.Decimal) decimal.Decimal {
	if whole.Sign() <= 0 {
		return decimal.Zero
	}
	share := part.Mul(hundred).Div(whole).Truncate(2)
	if share.GreaterThan(hundred) {
		return hundred
	}
	return share
}

// Deadline is now plus the given minutes, in unix seconds.
func Deadline(now time.Time, minutes int) int64 {
	return now.Add(time.Duration(minutes) * time.Minute).Unix()
}
