package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// WeiDecimals is the fixed-point scale of on-chain values: every amount
// crossing the contract boundary is an integer scaled by 10^18.
const WeiDecimals = 18

// FromWei converts an 18-decimal fixed-point integer into a decimal in
// natural units. nil maps to zero.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -WeiDecimals)
}

// ToWei converts a decimal in natural units back to the 18-decimal
// fixed-point integer convention, truncating sub-wei precision.
func ToWei(v decimal.Decimal) *big.Int {
	return v.Shift(WeiDecimals).Truncate(0).BigInt()
}
