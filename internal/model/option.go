package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ovmx/options-engine/internal/blackscholes"
)

// Option is the derived per-(strike, call/put) view consumed by the
// quote engine. Price and Greeks are computed from the snapshots at
// construction time and are zero-valued once time-to-expiry reaches 0.
type Option struct {
	Market *MarketSnapshot
	Board  *BoardSnapshot
	Strike *StrikeSnapshot
	IsCall bool

	Price      decimal.Decimal
	Delta      decimal.Decimal
	Theta      decimal.Decimal
	Rho        decimal.Decimal
	InTheMoney bool
	LongOI     decimal.Decimal
	ShortOI    decimal.Decimal
}

// NewOption builds the derived option view for one side of a strike.
func NewOption(market *MarketSnapshot, board *BoardSnapshot, strike *StrikeSnapshot, isCall bool, now time.Time) *Option {
	o := &Option{
		Market: market,
		Board:  board,
		Strike: strike,
		IsCall: isCall,
	}

	if isCall {
		o.LongOI = strike.LongCallOI
		o.ShortOI = strike.ShortCallOI
		o.InTheMoney = market.SpotPrice.GreaterThanOrEqual(strike.StrikePrice)
	} else {
		o.LongOI = strike.LongPutOI
		o.ShortOI = strike.ShortPutOI
		o.InTheMoney = market.SpotPrice.LessThanOrEqual(strike.StrikePrice)
	}

	tYears := board.TimeToExpiryAnnualized(now)
	iv := strike.IV(board.BaseIV)
	if tYears.IsZero() || iv.LessThanOrEqual(decimal.Zero) || market.SpotPrice.LessThanOrEqual(decimal.Zero) {
		return o
	}

	o.Price = blackscholes.Price(tYears, iv, market.SpotPrice, strike.StrikePrice, market.RateAndCarry, isCall)
	o.Delta = blackscholes.Delta(tYears, iv, market.SpotPrice, strike.StrikePrice, market.RateAndCarry, isCall)
	o.Theta = blackscholes.Theta(tYears, iv, market.SpotPrice, strike.StrikePrice, market.RateAndCarry, isCall)
	o.Rho = blackscholes.Rho(tYears, iv, market.SpotPrice, strike.StrikePrice, market.RateAndCarry, isCall)
	return o
}

// IV returns the option's current implied vol, baseIv × skew.
func (o *Option) IV() decimal.Decimal {
	return o.Strike.IV(o.Board.BaseIV)
}

// DeltaInRange reports whether the option's call delta lies strictly
// inside (minDelta, 1 − minDelta). Boards flag strikes outside this
// range as untradeable except via force close.
func (o *Option) DeltaInRange(now time.Time) bool {
	tYears := o.Board.TimeToExpiryAnnualized(now)
	iv := o.IV()
	if tYears.IsZero() || iv.LessThanOrEqual(decimal.Zero) {
		return false
	}
	callDelta := blackscholes.CallDelta(tYears, iv, o.Market.SpotPrice, o.Strike.StrikePrice, o.Market.RateAndCarry)
	minDelta := o.Market.TradeLimit.MinDelta
	one := decimal.NewFromInt(1)
	return callDelta.GreaterThan(minDelta) && callDelta.LessThan(one.Sub(minDelta))
}

// SettlementValue returns the option's intrinsic value per contract at
// settlement, using the board's spot price at expiry. Zero when the
// board has not settled. At-the-money counts as in the money.
func (o *Option) SettlementValue() decimal.Decimal {
	if o.Board.SpotPriceAtExpiry == nil {
		return decimal.Zero
	}
	spot := *o.Board.SpotPriceAtExpiry
	if o.IsCall {
		if spot.GreaterThanOrEqual(o.Strike.StrikePrice) {
			return spot.Sub(o.Strike.StrikePrice)
		}
		return decimal.Zero
	}
	if spot.LessThanOrEqual(o.Strike.StrikePrice) {
		return o.Strike.StrikePrice.Sub(spot)
	}
	return decimal.Zero
}
