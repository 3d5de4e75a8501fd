// Package collateral computes the collateral bounds for short options:
// the shocked-scenario minimum, the side-dependent maximum, and the
// liquidation price found by bisection over the spot price.
//
// All monetary values use shopspring/decimal, never float64 for money.
package collateral

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ovmx/options-engine/internal/blackscholes"
	"github.com/ovmx/options-engine/internal/model"
)

// TradeCollateral describes the collateral terms of a short trade.
// Max is nil for cash-secured calls (no upper bound); LiquidationPrice
// is nil when the position cannot be liquidated.
type TradeCollateral struct {
	Amount           decimal.Decimal  `json:"amount"`
	Min              decimal.Decimal  `json:"min"`
	Max              *decimal.Decimal `json:"max,omitempty"`
	Current          decimal.Decimal  `json:"current"`
	IsBase           bool             `json:"is_base"`
	LiquidationPrice *decimal.Decimal `json:"liquidation_price,omitempty"`
}

// ShockVol interpolates the shock volatility by time to expiry: flat at
// shockVolA below pointA, flat at shockVolB above pointB, linear in
// between.
func ShockVol(p model.MinCollateralParams, timeToExpiry int64) decimal.Decimal {
	if timeToExpiry <= p.ShockVolPointA || p.ShockVolPointB <= p.ShockVolPointA {
		return p.ShockVolA
	}
	if timeToExpiry >= p.ShockVolPointB {
		return p.ShockVolB
	}
	span := decimal.NewFromInt(p.ShockVolPointB - p.ShockVolPointA)
	elapsed := decimal.NewFromInt(timeToExpiry - p.ShockVolPointA)
	return p.ShockVolA.Sub(p.ShockVolA.Sub(p.ShockVolB).Mul(elapsed).Div(span))
}

// MinForSpotPrice computes the minimum collateral for a short of the
// given size at a hypothetical spot price. The spot is shocked by the
// side's shock factor and the option repriced at the interpolated shock
// vol; the result is floored at the static minimum and capped at full
// collateralization (no cap for cash-secured calls).
func MinForSpotPrice(o *model.Option, size, spotPrice decimal.Decimal, isBaseCollateral bool, now time.Time) decimal.Decimal {
	p := o.Market.MinCollat
	strike := o.Strike.StrikePrice
	tYears := o.Board.TimeToExpiryAnnualized(now)

	shock := p.PutSpotPriceShock
	if o.IsCall {
		shock = p.CallSpotPriceShock
	}
	shockedSpot := spotPrice.Mul(shock)
	shockedVol := ShockVol(p, o.Board.TimeToExpiry(now))

	var shockedPrice decimal.Decimal
	if tYears.IsPositive() && shockedVol.IsPositive() && shockedSpot.IsPositive() {
		shockedPrice = blackscholes.Price(tYears, shockedVol, shockedSpot, strike, o.Market.RateAndCarry, o.IsCall)
	} else {
		// At expiry the shocked scenario collapses to intrinsic value.
		if o.IsCall {
			shockedPrice = decimal.Max(decimal.Zero, shockedSpot.Sub(strike))
		} else {
			shockedPrice = decimal.Max(decimal.Zero, strike.Sub(shockedSpot))
		}
	}

	var volCollat, staticFloor decimal.Decimal
	if o.IsCall && isBaseCollateral {
		// Base-collateral calls post the underlying: collateral is
		// denominated in base units, so divide out the shocked spot.
		if shockedSpot.IsPositive() {
			volCollat = shockedPrice.Div(shockedSpot).Mul(size)
		}
		staticFloor = p.MinStaticBaseCollateral
	} else {
		volCollat = shockedPrice.Mul(size)
		staticFloor = p.MinStaticQuoteCollateral
	}

	min := decimal.Max(volCollat, staticFloor)
	if full := fullCollateral(o.IsCall, isBaseCollateral, size, strike); full != nil && min.GreaterThan(*full) {
		min = *full
	}
	return min
}

// Min computes the minimum collateral at the market's current spot.
func Min(o *model.Option, size decimal.Decimal, isBaseCollateral bool, now time.Time) decimal.Decimal {
	return MinForSpotPrice(o, size, o.Market.SpotPrice, isBaseCollateral, now)
}

// Max returns the maximum useful collateral: size for base-collateral
// calls (100% backing in the base asset), strike·size for puts, and nil
// for cash-secured calls, whose payoff is unbounded.
func Max(o *model.Option, size decimal.Decimal, isBaseCollateral bool) *decimal.Decimal {
	return fullCollateral(o.IsCall, isBaseCollateral, size, o.Strike.StrikePrice)
}

func fullCollateral(isCall, isBaseCollateral bool, size, strike decimal.Decimal) *decimal.Decimal {
	if isCall {
		if isBaseCollateral {
			return &size
		}
		return nil
	}
	full := strike.Mul(size)
	return &full
}
