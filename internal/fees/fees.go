// Package fees implements the AMM fee model: the time-weighted fee
// curve, option-price and spot-price fees, the vega utilization fee,
// and the variance fee.
//
// All functions are pure over a MarketSnapshot's pricing parameters.
// All monetary values use shopspring/decimal, never float64 for money.
package fees

import (
	"github.com/shopspring/decimal"

	"github.com/ovmx/options-engine/internal/model"
)

// TimeWeighted scales a fee coefficient by time to expiry. Flat at the
// coefficient up to pointA, then grows linearly so that fees double at
// pointB:
//
//	t <= pointA: coefficient
//	t >  pointA: coefficient · (1 + (t−pointA)/(pointB−pointA))
func TimeWeighted(coefficient decimal.Decimal, timeToExpiry, pointA, pointB int64) decimal.Decimal {
	if timeToExpiry <= pointA || pointB <= pointA {
		return coefficient
	}
	one := decimal.NewFromInt(1)
	frac := decimal.NewFromInt(timeToExpiry - pointA).Div(decimal.NewFromInt(pointB - pointA))
	return coefficient.Mul(one.Add(frac))
}

// OptionPrice returns the option-price fee for a trade slice:
// timeWeightedFee · size · pricePerOption.
func OptionPrice(m *model.MarketSnapshot, timeToExpiry int64, pricePerOption, size decimal.Decimal) decimal.Decimal {
	fee := TimeWeighted(
		m.Pricing.OptionPriceFeeCoefficient,
		timeToExpiry,
		m.Pricing.OptionPriceFee1xPoint,
		m.Pricing.OptionPriceFee2xPoint,
	)
	return fee.Mul(size).Mul(pricePerOption)
}

// SpotPrice returns the spot-price fee for a trade slice:
// timeWeightedFee · size · spotPrice.
func SpotPrice(m *model.MarketSnapshot, timeToExpiry int64, size decimal.Decimal) decimal.Decimal {
	fee := TimeWeighted(
		m.Pricing.SpotPriceFeeCoefficient,
		timeToExpiry,
		m.Pricing.SpotPriceFee1xPoint,
		m.Pricing.SpotPriceFee2xPoint,
	)
	return fee.Mul(size).Mul(m.SpotPrice)
}

// VegaUtil returns the vega utilization fee and the utilization itself.
// Trades that reduce the AMM's absolute vega exposure pay no fee.
// Otherwise: vegaUtil = volTraded · |postTradeNetStdVega| / NAV (zero
// when NAV is not positive), fee = vegaFeeCoefficient · vegaUtil · size,
// floored at zero.
func VegaUtil(m *model.MarketSnapshot, preTradeNetStdVega, postTradeNetStdVega, volTraded, size decimal.Decimal) (fee, vegaUtil decimal.Decimal) {
	if preTradeNetStdVega.Abs().GreaterThanOrEqual(postTradeNetStdVega.Abs()) {
		return decimal.Zero, decimal.Zero
	}

	if m.NAV.IsPositive() {
		vegaUtil = volTraded.Mul(postTradeNetStdVega.Abs()).Div(m.NAV)
	}

	fee = m.Pricing.VegaFeeCoefficient.Mul(vegaUtil).Mul(size)
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	return fee, vegaUtil
}

// Variance returns the variance fee for a trade slice. The coefficient
// is the force-close variant when forced. Zero coefficient disables
// the fee entirely.
func Variance(m *model.MarketSnapshot, forceCloseGwavIV, vega, newSkew, newBaseIV, size decimal.Decimal, isForceClose bool) decimal.Decimal {
	p := m.Pricing
	coefficient := p.VarianceFeeCoefficient
	if isForceClose {
		coefficient = p.ForceCloseVarianceFeeCoefficient
	}
	if coefficient.IsZero() {
		return decimal.Zero
	}

	vegaCoefficient := p.MinimumStaticVega.Add(vega.Mul(p.VegaCoefficient))
	skewCoefficient := p.MinimumStaticSkewAdjustment.
		Add(newSkew.Sub(p.ReferenceSkew).Abs().Mul(p.SkewAdjustmentCoefficient))
	ivVarianceCoefficient := p.MinimumStaticIVVariance.
		Add(forceCloseGwavIV.Sub(newBaseIV).Abs().Mul(p.IVVarianceCoefficient))

	return coefficient.
		Mul(vegaCoefficient).
		Mul(skewCoefficient).
		Mul(ivVarianceCoefficient).
		Mul(size)
}
