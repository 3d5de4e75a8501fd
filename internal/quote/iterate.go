package quote

import (
	"github.com/shopspring/decimal"

	"github.com/ovmx/options-engine/internal/blackscholes"
	"github.com/ovmx/options-engine/internal/fees"
	"github.com/ovmx/options-engine/internal/model"
)

// ForceClosePricer prices a force-closed slice. It receives the regular
// post-impact price/vol and the GWAV reference vol, and returns the
// price actually charged and the vol considered traded.
type ForceClosePricer func(o *model.Option, isBuy bool, tYears, basePrice, newVol, gwavVol decimal.Decimal) (price, volTraded decimal.Decimal)

// defaultForceClosePricer charges the worse of the post-impact price and
// the GWAV-referenced price for the trader's side: buyers pay the
// higher, sellers receive the lower. The GWAV vol resists manipulation
// of the spot board IV right before a forced close.
func defaultForceClosePricer(o *model.Option, isBuy bool, tYears, basePrice, newVol, gwavVol decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if gwavVol.LessThanOrEqual(decimal.Zero) {
		return basePrice, newVol
	}
	gwavPrice := blackscholes.Price(
		tYears, gwavVol,
		o.Market.SpotPrice, o.Strike.StrikePrice, o.Market.RateAndCarry,
		o.IsCall,
	)
	if isBuy {
		if gwavPrice.GreaterThan(basePrice) {
			return gwavPrice, gwavVol
		}
	} else {
		if gwavPrice.LessThan(basePrice) {
			return gwavPrice, gwavVol
		}
	}
	return basePrice, newVol
}

// iterate prices one slice of size s, applying the AMM's market impact:
//
//  1. orderSizeRatio = s/standardSize; the IV impact is ratio/100,
//     signed by trade direction (buys push baseIv and skew up).
//  2. Price at the post-impact vol; force closes reprice via the
//     pluggable force-close rule.
//  3. Fees per the fee model; the AMM's net std vega moves by the
//     strike's std vega · s.
//  4. Premium = price·s plus fees for buys, minus fees for sells
//     (floored at zero).
//
// Force closes leave the board's base IV unchanged: the original baseIv
// feeds the variance fee and the next slice.
func (qr *Quoter) iterate(
	o *model.Option,
	isBuy bool,
	size decimal.Decimal,
	timeToExpiry int64,
	tYears decimal.Decimal,
	baseIV, skew, preTradeVega decimal.Decimal,
	isForceClose bool,
) Iteration {
	market := o.Market
	strike := o.Strike
	board := o.Board

	orderSizeRatio := size.Div(market.StandardSize)
	impact := orderSizeRatio.Div(decimal.NewFromInt(100))

	var newBaseIV, newSkew decimal.Decimal
	if isBuy {
		newBaseIV = baseIV.Add(impact)
		newSkew = skew.Add(impact.Mul(market.SkewAdjustmentFactor))
	} else {
		newBaseIV = baseIV.Sub(impact)
		newSkew = skew.Sub(impact.Mul(market.SkewAdjustmentFactor))
	}

	newVol := newBaseIV.Mul(newSkew)
	basePrice := decimal.Zero
	if newVol.IsPositive() && market.SpotPrice.IsPositive() {
		basePrice = blackscholes.Price(
			tYears, newVol,
			market.SpotPrice, strike.StrikePrice, market.RateAndCarry,
			o.IsCall,
		)
	}

	price, volTraded := basePrice, newVol
	if isForceClose {
		pricer := qr.forceClosePricer
		if pricer == nil {
			pricer = defaultForceClosePricer
		}
		gwavVol := board.ForceCloseGwavIV.Mul(newSkew)
		price, volTraded = pricer(o, isBuy, tYears, basePrice, newVol, gwavVol)
	}

	penalty := price.Sub(basePrice).Mul(size)
	if !isBuy {
		penalty = penalty.Neg()
	}

	optionPriceFee := fees.OptionPrice(market, timeToExpiry, price, size)
	spotPriceFee := fees.SpotPrice(market, timeToExpiry, size)

	vegaImpact := strike.CachedStdVega.Mul(size)
	var postTradeVega decimal.Decimal
	if isBuy {
		postTradeVega = preTradeVega.Sub(vegaImpact)
	} else {
		postTradeVega = preTradeVega.Add(vegaImpact)
	}
	vegaUtilFee, _ := fees.VegaUtil(market, preTradeVega, postTradeVega, volTraded, size)

	// Force closes never move the board IV.
	if isForceClose {
		newBaseIV = baseIV
	}

	varianceFee := fees.Variance(
		market, board.ForceCloseGwavIV,
		strike.CachedStdVega, newSkew, newBaseIV, size,
		isForceClose,
	)

	totalFees := optionPriceFee.Add(spotPriceFee).Add(vegaUtilFee).Add(varianceFee)

	premium := price.Mul(size)
	if isBuy {
		premium = premium.Add(totalFees)
	} else {
		premium = premium.Sub(totalFees)
		if premium.IsNegative() {
			premium = decimal.Zero
		}
	}

	return Iteration{
		Premium:                premium,
		OptionPriceFee:         optionPriceFee,
		SpotPriceFee:           spotPriceFee,
		VegaUtilFee:            vegaUtilFee,
		VarianceFee:            varianceFee,
		ForceClosePenalty:      penalty,
		VolTraded:              volTraded,
		NewBaseIV:              newBaseIV,
		NewSkew:                newSkew,
		PostTradeAMMNetStdVega: postTradeVega,
	}
}
