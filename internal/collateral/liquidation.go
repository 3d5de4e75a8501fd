package collateral

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ovmx/options-engine/internal/metrics"
	"github.com/ovmx/options-engine/internal/model"
)

const (
	// liquidationMaxIterations caps the bisection search.
	liquidationMaxIterations = 20

	// liquidationSpotBoundFactor sets the upper search bound at
	// 100× the current spot price.
	liquidationSpotBoundFactor = 100
)

// liquidationTolerance is the relative convergence band: a candidate
// spot converges when the min collateral there is within 1% of the
// posted collateral. This band is the intended contract; the result
// is a best-effort approximation, not an exact root.
var liquidationTolerance = decimal.NewFromFloat(0.01)

// LiquidationPrice finds the spot price at which the posted collateral
// equals the minimum collateral, by bisection over [0, 100×spot] with
// at most 20 iterations.
//
// Returns nil when the position cannot be liquidated: expired board,
// zero size, zero collateral, or collateral at/above the maximum for
// anything other than a cash-secured call. Returns the current spot
// immediately when the position is already below the minimum. On
// non-convergence the midpoint of the final bounds is returned with a
// logged warning.
func LiquidationPrice(o *model.Option, size, collateral decimal.Decimal, isBaseCollateral bool, now time.Time) *decimal.Decimal {
	if o.Board.TimeToExpiry(now) <= 0 || size.IsZero() || collateral.IsZero() {
		return nil
	}
	if max := Max(o, size, isBaseCollateral); max != nil && collateral.GreaterThanOrEqual(*max) {
		// Fully collateralized puts and covered calls cannot be
		// liquidated; cash-secured calls (nil max) always can.
		return nil
	}

	spot := o.Market.SpotPrice
	if MinForSpotPrice(o, size, spot, isBaseCollateral, now).GreaterThan(collateral) {
		// Already below the minimum: liquidatable right now.
		return &spot
	}

	// Min collateral is monotonic in spot, increasing for calls and
	// decreasing for puts, which fixes the bisection direction.
	lo := decimal.Zero
	hi := spot.Mul(decimal.NewFromInt(liquidationSpotBoundFactor))
	two := decimal.NewFromInt(2)

	var mid decimal.Decimal
	for i := 0; i < liquidationMaxIterations; i++ {
		mid = lo.Add(hi).Div(two)
		minAtMid := MinForSpotPrice(o, size, mid, isBaseCollateral, now)

		if withinTolerance(minAtMid, collateral) {
			return &mid
		}

		if minAtMid.LessThan(collateral) == o.IsCall {
			// Calls: not enough stress yet, search higher spots.
			// Puts: the same comparison sends the search lower.
			lo = mid
		} else {
			hi = mid
		}
	}

	mid = lo.Add(hi).Div(two)
	metrics.LiquidationSearchNonConverged.Inc()
	slog.Warn("liquidation price search did not converge, returning midpoint",
		"market", o.Market.Name,
		"strike", o.Strike.StrikePrice.String(),
		"size", size.String(),
		"collateral", collateral.String(),
		"midpoint", mid.String(),
	)
	return &mid
}

// withinTolerance compares relatively against the posted collateral,
// falling back to exact comparison when it is zero.
func withinTolerance(got, want decimal.Decimal) bool {
	if want.IsZero() {
		return got.IsZero()
	}
	return got.Sub(want).Abs().Div(want.Abs()).LessThanOrEqual(liquidationTolerance)
}
