package quote

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ovmx/options-engine/internal/blackscholes"
	"github.com/ovmx/options-engine/internal/model"
)

// DisabledContext carries the post-iteration state the disablement
// rules evaluate: final skew/baseIv/iv and the aggregated premium.
type DisabledContext struct {
	Option       *model.Option
	IsBuy        bool
	Size         decimal.Decimal
	Premium      decimal.Decimal
	NewBaseIV    decimal.Decimal
	NewSkew      decimal.Decimal
	NewIV        decimal.Decimal
	IsForceClose bool
	AsOf         time.Time
}

// CheckDisabled evaluates the quote-level disablement rules in fixed
// priority order; the first violated rule wins. An empty result means
// the trade is enabled.
func CheckDisabled(ctx DisabledContext) model.DisabledReason {
	o := ctx.Option
	market := o.Market
	board := o.Board
	strike := o.Strike

	// 1. Zero size.
	if ctx.Size.IsZero() {
		return model.DisabledEmptySize
	}

	// 2. Expired board.
	tYears := board.TimeToExpiryAnnualized(ctx.AsOf)
	if tYears.IsZero() {
		return model.DisabledExpired
	}

	// 3. Trading cutoff: regular trades stop before expiry; force
	// closes are the escape valve.
	if !ctx.IsForceClose && ctx.AsOf.Add(market.TradeLimit.TradingCutoff).After(board.Expiry) {
		return model.DisabledTradingCutoff
	}

	// 4. Liquidity: buys reserve size·max(spot, strike); sells draw the
	// premium from free liquidity.
	if ctx.IsBuy {
		reserved := market.SpotPrice
		if strike.StrikePrice.GreaterThan(reserved) {
			reserved = strike.StrikePrice
		}
		if market.FreeLiquidity.LessThan(ctx.Size.Mul(reserved)) {
			return model.DisabledInsufficientLiquidity
		}
	} else {
		if market.FreeLiquidity.LessThan(ctx.Premium) {
			return model.DisabledInsufficientLiquidity
		}
	}

	// 5. Delta range: the call delta at the post-trade IV must lie
	// strictly between minDelta and 1−minDelta. Force closes skip this.
	if !ctx.IsForceClose && ctx.NewIV.IsPositive() {
		callDelta := blackscholes.CallDelta(
			tYears, ctx.NewIV,
			market.SpotPrice, strike.StrikePrice, market.RateAndCarry,
		)
		minDelta := market.TradeLimit.MinDelta
		one := decimal.NewFromInt(1)
		if callDelta.LessThanOrEqual(minDelta) || callDelta.GreaterThanOrEqual(one.Sub(minDelta)) {
			return model.DisabledDeltaOutOfRange
		}
	}

	// 6. Directional vol bounds: buys check the upper bounds, sells the
	// lower ones.
	limits := market.TradeLimit
	if ctx.IsBuy {
		if ctx.NewBaseIV.GreaterThan(limits.MaxBaseIV) {
			return model.DisabledIVTooHigh
		}
		if ctx.NewSkew.GreaterThan(limits.MaxSkew) {
			return model.DisabledSkewTooHigh
		}
		if ctx.NewIV.GreaterThan(limits.MaxVol) {
			return model.DisabledVolTooHigh
		}
	} else {
		if ctx.NewBaseIV.LessThan(limits.MinBaseIV) {
			return model.DisabledIVTooLow
		}
		if ctx.NewSkew.LessThan(limits.MinSkew) {
			return model.DisabledSkewTooLow
		}
		if ctx.NewIV.LessThan(limits.MinVol) {
			return model.DisabledVolTooLow
		}
	}

	// A priced trade that collapses to a zero premium is untradeable.
	if !ctx.Premium.IsPositive() {
		return model.DisabledEmptyPremium
	}

	return ""
}
