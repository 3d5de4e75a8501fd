package position

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ovmx/options-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func ptr(v decimal.Decimal) *decimal.Decimal { return &v }

// openTrade builds an opening trade of the given size at the given
// price per option (premium = size · price).
func openTrade(block uint64, size, price float64) model.TradeEvent {
	return model.TradeEvent{
		Size:           d(size),
		IsOpen:         true,
		Premium:        d(size * price),
		PricePerOption: d(price),
		BlockNumber:    block,
	}
}

func closeTrade(block uint64, size, price float64) model.TradeEvent {
	return model.TradeEvent{
		Size:           d(size),
		IsOpen:         false,
		Premium:        d(size * price),
		PricePerOption: d(price),
		BlockNumber:    block,
	}
}

func longCall(trades ...model.TradeEvent) *model.Position {
	return &model.Position{
		ID:          "pos-1",
		Owner:       "0xabc",
		MarketName:  "ETH",
		StrikePrice: d(2000),
		Size:        d(1),
		IsCall:      true,
		IsLong:      true,
		State:       model.PositionActive,
		Trades:      trades,
	}
}

// --- Average cost ---

func TestAverageCost_SingleTradeIsItsPrice(t *testing.T) {
	p := longCall(openTrade(1, 2, 150))
	avg := AverageCostPerOption(p)
	if !avg.Equal(d(150)) {
		t.Errorf("single trade average cost should equal its price, got %s", avg)
	}
}

func TestAverageCost_EqualSizesBlendToMidpoint(t *testing.T) {
	// Two equal-size opens at P1 then P2 → exactly (P1+P2)/2.
	p := longCall(openTrade(1, 1, 100), openTrade(2, 1, 200))
	avg := AverageCostPerOption(p)
	if !avg.Equal(d(150)) {
		t.Errorf("expected average cost 150, got %s", avg)
	}
}

func TestAverageCost_WeightedBySize(t *testing.T) {
	// 3 @ 100 plus 1 @ 200 → (300+200)/4 = 125.
	p := longCall(openTrade(1, 3, 100), openTrade(2, 1, 200))
	avg := AverageCostPerOption(p)
	if !avg.Equal(d(125)) {
		t.Errorf("expected weighted average 125, got %s", avg)
	}
}

func TestAverageCost_ClosesDoNotMoveAverage(t *testing.T) {
	// Closing part of the position leaves the cost basis of the
	// remainder unchanged.
	p := longCall(
		openTrade(1, 2, 100),
		closeTrade(2, 1, 180),
		openTrade(3, 1, 100),
	)
	avg := AverageCostPerOption(p)
	if !avg.Equal(d(100)) {
		t.Errorf("closes must not move the average, got %s", avg)
	}
}

func TestAverageCost_UnsortedHistoryIsOrderedFirst(t *testing.T) {
	// Events arriving out of block order are sorted before folding.
	p := longCall(openTrade(5, 1, 200), openTrade(1, 1, 100))
	avg := AverageCostPerOption(p)
	if !avg.Equal(d(150)) {
		t.Errorf("expected 150 after ordering, got %s", avg)
	}
}

func TestAverageCost_LogIndexBreaksTies(t *testing.T) {
	t1 := openTrade(1, 1, 100)
	t1.LogIndex = 2
	t2 := openTrade(1, 1, 300)
	t2.LogIndex = 1
	c := closeTrade(2, 1, 0)

	// Ordered by logIndex: open@300 then open@100 then close 1.
	p := longCall(t1, t2, c)
	avg := AverageCostPerOption(p)
	if !avg.Equal(d(200)) {
		t.Errorf("expected 200, got %s", avg)
	}
}

// --- Realized P&L ---

func TestRealizedPnl_LongRoundTrip(t *testing.T) {
	// Open 1 @ 100, close 1 @ 150 → +50.
	p := longCall(openTrade(1, 1, 100), closeTrade(2, 1, 150))
	pnl := RealizedPnl(p)
	if !pnl.Equal(d(50)) {
		t.Errorf("expected realized pnl 50, got %s", pnl)
	}
}

func TestRealizedPnl_ShortInverted(t *testing.T) {
	// Short: sold at 100, bought back at 150 → −50.
	p := longCall(openTrade(1, 1, 100), closeTrade(2, 1, 150))
	p.IsLong = false
	pnl := RealizedPnl(p)
	if !pnl.Equal(d(-50)) {
		t.Errorf("expected realized pnl −50 for short, got %s", pnl)
	}
}

func TestRealizedPnl_PartialCloseUsesAvgCostAtClose(t *testing.T) {
	// Open 2 @ 100, close 1 @ 180, open 1 @ 300.
	// The close realizes against avgCost=100, later opens don't rewrite it.
	p := longCall(
		openTrade(1, 2, 100),
		closeTrade(2, 1, 180),
		openTrade(3, 1, 300),
	)
	pnl := RealizedPnl(p)
	if !pnl.Equal(d(80)) {
		t.Errorf("expected realized pnl 80, got %s", pnl)
	}
}

// --- Settlement P&L ---

func TestSettlementPnl_LongCallbranches(t *testing.T) {
	tests := []struct {
		name     string
		spot     float64
		expected float64
	}{
		{"ITM", 2300, 2300 - 2000 - 100},
		{"OTM", 1800, -100},
		// At the money counts as ITM: payoff is zero minus cost.
		{"exactly ATM", 2000, -100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := longCall(openTrade(1, 1, 100))
			p.State = model.PositionSettled
			p.SpotPriceAtExpiry = ptr(d(tt.spot))

			pnl := SettlementPnl(p)
			if !pnl.Equal(d(tt.expected)) {
				t.Errorf("expected %v, got %s", tt.expected, pnl)
			}
		})
	}
}

func TestSettlementPnl_ShortPut(t *testing.T) {
	// Short put sold at 100, settled ITM at 1700: (1700−2000)+100 = −200.
	p := longCall(openTrade(1, 1, 100))
	p.IsCall = false
	p.IsLong = false
	p.State = model.PositionSettled
	p.SpotPriceAtExpiry = ptr(d(1700))

	pnl := SettlementPnl(p)
	if !pnl.Equal(d(-200)) {
		t.Errorf("expected −200, got %s", pnl)
	}
}

func TestSettlementPnl_NotSettled(t *testing.T) {
	p := longCall(openTrade(1, 1, 100))
	if pnl := SettlementPnl(p); !pnl.IsZero() {
		t.Errorf("unsettled position should have zero settlement pnl, got %s", pnl)
	}
}

// --- Unrealized P&L / break-even / payoff ---

func TestUnrealizedPnl_MarksToFairPrice(t *testing.T) {
	p := longCall(openTrade(1, 1, 100))
	pnl := UnrealizedPnl(p, d(140))
	if !pnl.Equal(d(40)) {
		t.Errorf("expected unrealized pnl 40, got %s", pnl)
	}

	p.IsLong = false
	pnl = UnrealizedPnl(p, d(140))
	if !pnl.Equal(d(-40)) {
		t.Errorf("expected unrealized pnl −40 for short, got %s", pnl)
	}
}

func TestUnrealizedPnl_ZeroWhenNotOpen(t *testing.T) {
	p := longCall(openTrade(1, 1, 100))
	p.State = model.PositionClosed
	if pnl := UnrealizedPnl(p, d(500)); !pnl.IsZero() {
		t.Errorf("closed position should have zero unrealized pnl, got %s", pnl)
	}
}

func TestBreakEven(t *testing.T) {
	call := longCall(openTrade(1, 1, 100))
	if be := BreakEven(call); !be.Equal(d(2100)) {
		t.Errorf("call break-even should be strike+avgCost, got %s", be)
	}

	put := longCall(openTrade(1, 1, 100))
	put.IsCall = false
	if be := BreakEven(put); !be.Equal(d(1900)) {
		t.Errorf("put break-even should be strike−avgCost, got %s", be)
	}
}

func TestPayoffWithLiquidation_CapsShortLoss(t *testing.T) {
	// Short call liquidatable at 2600: beyond that the projection
	// holds at the liquidation outcome.
	p := longCall(openTrade(1, 1, 100))
	p.IsLong = false
	p.LiquidationPrice = ptr(d(2600))

	capped := PayoffWithLiquidation(p, d(3500))
	atLiq := Payoff(p, d(2600))
	if !capped.Equal(atLiq) {
		t.Errorf("payoff beyond liquidation should cap at %s, got %s", atLiq, capped)
	}

	// Longs are never capped.
	p.IsLong = true
	if got := PayoffWithLiquidation(p, d(3500)); !got.Equal(Payoff(p, d(3500))) {
		t.Errorf("long payoff must not be capped, got %s", got)
	}
}

func TestPnl_PercentVariants(t *testing.T) {
	// Open 1 @ 100, close 1 @ 150: realized 50 on a 100 basis → 50%.
	p := longCall(openTrade(1, 1, 100), closeTrade(2, 1, 150))
	p.State = model.PositionClosed
	p.Size = decimal.Zero

	pnl := Pnl(p, decimal.Zero)
	if !pnl.Realized.Equal(d(50)) {
		t.Errorf("expected realized 50, got %s", pnl.Realized)
	}
	if !pnl.RealizedPercent.Equal(d(0.5)) {
		t.Errorf("expected realized percent 0.5, got %s", pnl.RealizedPercent)
	}
	if !pnl.Unrealized.IsZero() {
		t.Errorf("closed position should carry no unrealized pnl, got %s", pnl.Unrealized)
	}
}
