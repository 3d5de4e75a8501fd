package trade

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ovmx/options-engine/internal/model"
	"github.com/ovmx/options-engine/internal/position"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func ptr(v decimal.Decimal) *decimal.Decimal { return &v }

const day = int64(24 * 60 * 60)

var asOf = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testOption builds an ATM ETH option 30 days from expiry with an 80%
// base IV, unit skew, and short-collateral shock parameters.
func testOption(isCall bool) *model.Option {
	market := &model.MarketSnapshot{
		Name:                 "ETH",
		SpotPrice:            d(2000),
		RateAndCarry:         decimal.Zero,
		NetStdVega:           d(-10),
		NAV:                  d(10_000_000),
		FreeLiquidity:        d(1_000_000),
		StandardSize:         d(5),
		SkewAdjustmentFactor: d(0.75),
		Pricing: model.PricingParams{
			OptionPriceFeeCoefficient: d(0.01),
			OptionPriceFee1xPoint:     7 * day,
			OptionPriceFee2xPoint:     28 * day,
			SpotPriceFeeCoefficient:   d(0.001),
			SpotPriceFee1xPoint:       7 * day,
			SpotPriceFee2xPoint:       28 * day,
			VegaFeeCoefficient:        d(100),
		},
		MinCollat: model.MinCollateralParams{
			ShockVolA:                d(2.5),
			ShockVolB:                d(1.8),
			ShockVolPointA:           1 * day,
			ShockVolPointB:           30 * day,
			MinStaticBaseCollateral:  d(0.01),
			MinStaticQuoteCollateral: d(50),
			CallSpotPriceShock:       d(1.2),
			PutSpotPriceShock:        d(0.8),
		},
		TradeLimit: model.TradeLimitParams{
			TradingCutoff: 12 * time.Hour,
			MinDelta:      d(0.15),
			MinSkew:       d(0.3),
			MaxSkew:       d(2),
			MinBaseIV:     d(0.2),
			MaxBaseIV:     d(2),
			MinVol:        d(0.25),
			MaxVol:        d(2.5),
		},
	}
	board := &model.BoardSnapshot{
		ID:               "board-1",
		MarketName:       "ETH",
		Expiry:           asOf.Add(30 * 24 * time.Hour),
		BaseIV:           d(0.8),
		ForceCloseGwavIV: d(0.8),
	}
	strike := &model.StrikeSnapshot{
		ID:            "strike-1",
		BoardID:       "board-1",
		StrikePrice:   d(2000),
		Skew:          d(1),
		CachedStdVega: d(1.5),
	}
	return model.NewOption(market, board, strike, isCall, asOf)
}

func slippage(f float64) *decimal.Decimal {
	s := d(f)
	return &s
}

func TestBuild_PremiumBoundValidation(t *testing.T) {
	o := testOption(true)

	_, err := Build(Params{Owner: "0xabc", Option: o, IsBuy: true, Size: d(1), AsOf: asOf})
	if err != ErrPremiumBound {
		t.Errorf("neither bound set: expected ErrPremiumBound, got %v", err)
	}

	_, err = Build(Params{
		Owner: "0xabc", Option: o, IsBuy: true, Size: d(1), AsOf: asOf,
		PremiumSlippage: slippage(0.01),
		MinOrMaxPremium: ptr(d(200)),
	})
	if err != ErrPremiumBound {
		t.Errorf("both bounds set: expected ErrPremiumBound, got %v", err)
	}
}

func TestBuild_OpenLongBuy(t *testing.T) {
	o := testOption(true)
	tr, err := Build(Params{
		Owner: "0xabc", Option: o, IsBuy: true, Size: d(1), AsOf: asOf,
		PremiumSlippage: slippage(0.01),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.IsDisabled {
		t.Fatalf("trade unexpectedly disabled: %s", tr.DisabledReason)
	}
	if !tr.IsOpen || !tr.IsLong {
		t.Errorf("fresh buy should open a long, got isOpen=%v isLong=%v", tr.IsOpen, tr.IsLong)
	}
	if tr.Collateral != nil {
		t.Error("long positions carry no collateral")
	}

	// Committed premium is the slippage-widened quote premium.
	want := tr.Quote.Premium.Mul(d(1.01))
	if !tr.Premium.Equal(want) {
		t.Errorf("expected committed premium %s, got %s", want, tr.Premium)
	}
	if !tr.QuoteTokenTransfer.Equal(tr.Premium) {
		t.Errorf("buyer pays the premium, got transfer %s", tr.QuoteTokenTransfer)
	}
	if !tr.BaseTokenTransfer.IsZero() {
		t.Errorf("no base transfer expected, got %s", tr.BaseTokenTransfer)
	}
}

func TestBuild_ExplicitPremiumOverridesQuote(t *testing.T) {
	o := testOption(true)
	tr, err := Build(Params{
		Owner: "0xabc", Option: o, IsBuy: true, Size: d(1), AsOf: asOf,
		MinOrMaxPremium: ptr(d(250)),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tr.Premium.Equal(d(250)) {
		t.Errorf("explicit bound must be the committed premium, got %s", tr.Premium)
	}
}

func TestBuild_SellOpensShortWithFullCollateral(t *testing.T) {
	o := testOption(false)
	tr, err := Build(Params{
		Owner: "0xabc", Option: o, IsBuy: false, Size: d(1), AsOf: asOf,
		PremiumSlippage: slippage(0.01),
		Collateral:      CollateralOptions{Policy: CollateralFull},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.IsDisabled {
		t.Fatalf("trade unexpectedly disabled: %s", tr.DisabledReason)
	}
	if tr.IsLong {
		t.Error("fresh sell should open a short")
	}
	if tr.Collateral == nil {
		t.Fatal("short trade must carry collateral terms")
	}

	// Full collateral for a put is strike·size.
	if !tr.Collateral.Amount.Equal(d(2000)) {
		t.Errorf("expected full collateral 2000, got %s", tr.Collateral.Amount)
	}
	if tr.Collateral.Min.GreaterThan(tr.Collateral.Amount) {
		t.Errorf("min %s must not exceed the chosen amount", tr.Collateral.Min)
	}
	if tr.Collateral.LiquidationPrice != nil {
		t.Errorf("fully collateralized put is not liquidatable, got %s", tr.Collateral.LiquidationPrice)
	}

	// Seller receives the premium but posts the collateral.
	want := tr.Premium.Neg().Add(d(2000))
	if !tr.QuoteTokenTransfer.Equal(want) {
		t.Errorf("expected net transfer %s, got %s", want, tr.QuoteTokenTransfer)
	}
}

func TestBuild_ShortWithoutCollateralIsDisabled(t *testing.T) {
	o := testOption(false)
	tr, err := Build(Params{
		Owner: "0xabc", Option: o, IsBuy: false, Size: d(1), AsOf: asOf,
		PremiumSlippage: slippage(0.01),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tr.IsDisabled || tr.DisabledReason != model.DisabledNotEnoughCollateral {
		t.Errorf("expected NotEnoughCollateral, got disabled=%v reason=%s", tr.IsDisabled, tr.DisabledReason)
	}
}

func TestBuild_MaintainRatioScalesWithMax(t *testing.T) {
	// Short put at half collateral (1000 of max 2000). Selling one more
	// doubles the max to 4000; maintaining the ratio targets 2000.
	o := testOption(false)
	pos := &model.Position{
		ID: "pos-1", Owner: "0xabc", MarketName: "ETH",
		StrikePrice: d(2000), Size: d(1), IsCall: false, IsLong: false,
		Collateral: ptr(d(1000)), State: model.PositionActive,
	}
	tr, err := Build(Params{
		Owner: "0xabc", Option: o, IsBuy: false, Size: d(1), AsOf: asOf,
		Position:        pos,
		PremiumSlippage: slippage(0.01),
		Collateral:      CollateralOptions{Policy: CollateralMaintainRatio},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Collateral == nil {
		t.Fatal("short trade must carry collateral terms")
	}
	if !tr.Collateral.Amount.Equal(d(2000)) {
		t.Errorf("expected ratio-preserved collateral 2000, got %s", tr.Collateral.Amount)
	}
	if !tr.Collateral.Current.Equal(d(1000)) {
		t.Errorf("expected current collateral 1000, got %s", tr.Collateral.Current)
	}
}

func TestBuild_CloseToZeroReleasesCollateral(t *testing.T) {
	o := testOption(false)
	pos := &model.Position{
		ID: "pos-1", Owner: "0xabc", MarketName: "ETH",
		StrikePrice: d(2000), Size: d(1), IsCall: false, IsLong: false,
		Collateral: ptr(d(1500)), State: model.PositionActive,
	}
	// Buying back the full short size closes to zero.
	tr, err := Build(Params{
		Owner: "0xabc", Option: o, IsBuy: true, Size: d(1), AsOf: asOf,
		Position:        pos,
		PremiumSlippage: slippage(0.01),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.IsOpen {
		t.Error("buying against a short should close")
	}
	if tr.IsDisabled {
		t.Fatalf("trade unexpectedly disabled: %s", tr.DisabledReason)
	}
	if !tr.Collateral.Amount.IsZero() {
		t.Errorf("closing to zero must release all collateral, got %s", tr.Collateral.Amount)
	}

	// Trader pays the close premium and gets 1500 back.
	want := tr.Premium.Sub(d(1500))
	if !tr.QuoteTokenTransfer.Equal(want) {
		t.Errorf("expected net transfer %s, got %s", want, tr.QuoteTokenTransfer)
	}
}

func TestBuild_WrongOwner(t *testing.T) {
	o := testOption(true)
	pos := &model.Position{
		ID: "pos-1", Owner: "0xother", MarketName: "ETH",
		StrikePrice: d(2000), Size: d(1), IsCall: true, IsLong: true,
		State: model.PositionActive,
	}
	tr, err := Build(Params{
		Owner: "0xabc", Option: o, IsBuy: false, Size: d(1), AsOf: asOf,
		Position:        pos,
		PremiumSlippage: slippage(0.01),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.DisabledReason != model.DisabledPositionWrongOwner {
		t.Errorf("expected PositionWrongOwner, got %s", tr.DisabledReason)
	}
}

func TestBuild_CloseMoreThanOpen(t *testing.T) {
	o := testOption(true)
	pos := &model.Position{
		ID: "pos-1", Owner: "0xabc", MarketName: "ETH",
		StrikePrice: d(2000), Size: d(1), IsCall: true, IsLong: true,
		State: model.PositionActive,
	}
	tr, err := Build(Params{
		Owner: "0xabc", Option: o, IsBuy: false, Size: d(2), AsOf: asOf,
		Position:        pos,
		PremiumSlippage: slippage(0.01),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.DisabledReason != model.DisabledPositionNotLargeEnough {
		t.Errorf("expected PositionNotLargeEnough, got %s", tr.DisabledReason)
	}
}

func TestBuild_ClosedPosition(t *testing.T) {
	o := testOption(true)
	pos := &model.Position{
		ID: "pos-1", Owner: "0xabc", MarketName: "ETH",
		StrikePrice: d(2000), Size: decimal.Zero, IsCall: true, IsLong: true,
		State: model.PositionClosed,
	}
	tr, err := Build(Params{
		Owner: "0xabc", Option: o, IsBuy: false, Size: d(1), AsOf: asOf,
		Position:        pos,
		PremiumSlippage: slippage(0.01),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.DisabledReason != model.DisabledPositionClosed {
		t.Errorf("expected PositionClosed, got %s", tr.DisabledReason)
	}
}

func TestBuild_ForceCloseRetryOnCutoffClose(t *testing.T) {
	// Six hours to expiry is inside the 12h cutoff. A close is retried
	// under force-close pricing instead of staying blocked.
	o := testOption(true)
	near := o.Board.Expiry.Add(-6 * time.Hour)
	pos := &model.Position{
		ID: "pos-1", Owner: "0xabc", MarketName: "ETH",
		StrikePrice: d(2000), Size: d(1), IsCall: true, IsLong: true,
		State: model.PositionActive,
	}
	tr, err := Build(Params{
		Owner: "0xabc", Option: o, IsBuy: false, Size: d(1), AsOf: near,
		Position:        pos,
		PremiumSlippage: slippage(0.01),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tr.ForceClosed {
		t.Fatal("close inside the cutoff should retry as force-close")
	}
	if !tr.Quote.IsForceClose {
		t.Error("retried quote should be priced under force-close rules")
	}
	if tr.DisabledReason == model.DisabledTradingCutoff {
		t.Error("force-close must bypass the trading cutoff")
	}
	if !tr.Quote.Premium.IsPositive() {
		t.Errorf("force-closed quote should still carry economics, got premium %s", tr.Quote.Premium)
	}
}

func TestBuild_NoForceCloseRetryOnOpen(t *testing.T) {
	// The same cutoff violation on an opening trade stays blocked:
	// force-close is a closing-only escape valve.
	o := testOption(true)
	near := o.Board.Expiry.Add(-6 * time.Hour)
	tr, err := Build(Params{
		Owner: "0xabc", Option: o, IsBuy: true, Size: d(1), AsOf: near,
		PremiumSlippage: slippage(0.01),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.ForceClosed {
		t.Error("opening trades must not force-close")
	}
	if tr.DisabledReason != model.DisabledTradingCutoff {
		t.Errorf("expected TradingCutoff, got %s", tr.DisabledReason)
	}
}

func TestBuild_CollateralOnlyAdjustmentSuppressesEmptySize(t *testing.T) {
	// Size-zero trade that only moves collateral: the quote's
	// EmptySize verdict is suppressed.
	o := testOption(false)
	pos := &model.Position{
		ID: "pos-1", Owner: "0xabc", MarketName: "ETH",
		StrikePrice: d(2000), Size: d(1), IsCall: false, IsLong: false,
		Collateral: ptr(d(800)), State: model.PositionActive,
	}
	tr, err := Build(Params{
		Owner: "0xabc", Option: o, IsBuy: false, Size: decimal.Zero, AsOf: asOf,
		Position:        pos,
		PremiumSlippage: slippage(0.01),
		Collateral:      CollateralOptions{Policy: CollateralSet, SetCollateralTo: d(1000)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.IsDisabled {
		t.Fatalf("collateral-only adjustment should not be disabled, got %s", tr.DisabledReason)
	}
	if !tr.Collateral.Amount.Equal(d(1000)) {
		t.Errorf("expected collateral target 1000, got %s", tr.Collateral.Amount)
	}
	// Only the collateral delta moves, there is no premium.
	if !tr.QuoteTokenTransfer.Equal(d(200)) {
		t.Errorf("expected net transfer 200, got %s", tr.QuoteTokenTransfer)
	}
}

func TestBuild_ZeroSizeWithoutAdjustmentStaysEmptySize(t *testing.T) {
	o := testOption(false)
	pos := &model.Position{
		ID: "pos-1", Owner: "0xabc", MarketName: "ETH",
		StrikePrice: d(2000), Size: d(1), IsCall: false, IsLong: false,
		Collateral: ptr(d(1000)), State: model.PositionActive,
	}
	tr, err := Build(Params{
		Owner: "0xabc", Option: o, IsBuy: false, Size: decimal.Zero, AsOf: asOf,
		Position:        pos,
		PremiumSlippage: slippage(0.01),
		Collateral:      CollateralOptions{Policy: CollateralSet, SetCollateralTo: d(1000)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.DisabledReason != model.DisabledEmptySize {
		t.Errorf("unchanged collateral keeps EmptySize, got %s", tr.DisabledReason)
	}
}

func TestBuild_RoundTripLosesOnlyFees(t *testing.T) {
	// Open a long and close it at the same snapshot: the realized P&L
	// is approximately the negated total fees across both trades.
	o := testOption(true)

	open, err := Build(Params{
		Owner: "0xabc", Option: o, IsBuy: true, Size: d(1), AsOf: asOf,
		PremiumSlippage: slippage(0),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	pos := &model.Position{
		ID: "pos-1", Owner: "0xabc", MarketName: "ETH",
		StrikePrice: d(2000), Size: d(1), IsCall: true, IsLong: true,
		State: model.PositionActive,
		Trades: []model.TradeEvent{{
			Size: d(1), IsOpen: true, IsBuy: true, IsLong: true,
			Premium:        open.Quote.Premium,
			PricePerOption: open.Quote.PricePerOption,
			BlockNumber:    1,
		}},
	}

	closeTr, err := Build(Params{
		Owner: "0xabc", Option: o, IsBuy: false, Size: d(1), AsOf: asOf,
		Position:        pos,
		PremiumSlippage: slippage(0),
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	pos.Trades = append(pos.Trades, model.TradeEvent{
		Size: d(1), IsOpen: false, IsBuy: false, IsLong: true,
		Premium:        closeTr.Quote.Premium,
		PricePerOption: closeTr.Quote.PricePerOption,
		BlockNumber:    2,
	})
	pos.Size = decimal.Zero
	pos.State = model.PositionClosed

	realized := position.RealizedPnl(pos)
	totalFees := open.Quote.Fee().Add(closeTr.Quote.Fee())

	// The AMM impact moves the two legs' fair prices slightly apart,
	// so only a near-equality holds.
	diff := realized.Add(totalFees).Abs()
	if diff.GreaterThan(d(1)) {
		t.Errorf("round trip should lose ≈ total fees %s, realized %s (diff %s)",
			totalFees.Neg(), realized, diff)
	}
}
