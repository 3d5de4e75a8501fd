// Package position derives cost basis and P&L from a position's ordered
// trade history: the rolling weighted average cost per option, realized
// and unrealized P&L, settlement outcomes, break-even, and payoff
// projections.
//
// The accounting is a strictly ordered fold over the (blockNumber,
// logIndex)-sorted event sequence: the rolling average is
// order-sensitive, never a parallel reduction.
// All monetary values use shopspring/decimal, never float64 for money.
package position

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ovmx/options-engine/internal/model"
)

// costAccumulator is the fold state for the rolling average.
type costAccumulator struct {
	openSize decimal.Decimal
	avgCost  decimal.Decimal
}

// apply advances the accumulator by one trade. Opening trades blend
// their premium into the average; closing trades only shrink the open
// size, so the average reflects the cost basis of what remains open.
func (acc costAccumulator) apply(t *model.TradeEvent) costAccumulator {
	if t.IsOpen {
		newOpen := acc.openSize.Add(t.Size)
		if newOpen.IsPositive() {
			acc.avgCost = acc.avgCost.Mul(acc.openSize).Add(t.Premium).Div(newOpen)
		}
		acc.openSize = newOpen
		return acc
	}
	acc.openSize = acc.openSize.Sub(t.Size)
	return acc
}

// sortedTrades returns the trade history ordered by (blockNumber,
// logIndex) ascending.
func sortedTrades(p *model.Position) []model.TradeEvent {
	trades := make([]model.TradeEvent, len(p.Trades))
	copy(trades, p.Trades)
	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].BlockNumber != trades[j].BlockNumber {
			return trades[i].BlockNumber < trades[j].BlockNumber
		}
		return trades[i].LogIndex < trades[j].LogIndex
	})
	return trades
}

// AverageCostPerOption returns the weighted rolling average cost of the
// position's open contracts. A single-trade history is that trade's
// price per option directly.
func AverageCostPerOption(p *model.Position) decimal.Decimal {
	trades := sortedTrades(p)
	if len(trades) == 0 {
		return decimal.Zero
	}
	if len(trades) == 1 {
		return trades[0].PricePerOption
	}

	acc := costAccumulator{}
	for i := range trades {
		acc = acc.apply(&trades[i])
	}
	return acc.avgCost
}

// RealizedPnl sums the P&L locked in by closing trades against the
// average cost at the time of each close, plus the settlement P&L once
// the position has settled.
func RealizedPnl(p *model.Position) decimal.Decimal {
	trades := sortedTrades(p)

	pnl := decimal.Zero
	acc := costAccumulator{}
	for i := range trades {
		t := &trades[i]
		if !t.IsOpen {
			if p.IsLong {
				pnl = pnl.Add(t.PricePerOption.Sub(acc.avgCost).Mul(t.Size))
			} else {
				pnl = pnl.Add(acc.avgCost.Sub(t.PricePerOption).Mul(t.Size))
			}
		}
		acc = acc.apply(t)
	}

	return pnl.Add(SettlementPnl(p))
}

// SettlementPnl returns the P&L from expiry settlement, zero unless the
// position has settled. At-the-money counts as in the money.
func SettlementPnl(p *model.Position) decimal.Decimal {
	if p.SpotPriceAtExpiry == nil {
		return decimal.Zero
	}
	spot := *p.SpotPriceAtExpiry
	avgCost := AverageCostPerOption(p)
	return settlementValue(p, spot, avgCost).Mul(p.Size)
}

// settlementValue returns the per-option settlement P&L at the given
// expiry spot, optionally capping short losses at the liquidation price.
func settlementValue(p *model.Position, spot, avgCost decimal.Decimal) decimal.Decimal {
	itm := spot.GreaterThanOrEqual(p.StrikePrice)
	if !p.IsCall {
		itm = spot.LessThanOrEqual(p.StrikePrice)
	}

	switch {
	case p.IsLong && p.IsCall:
		if itm {
			return spot.Sub(p.StrikePrice).Sub(avgCost)
		}
		return avgCost.Neg()
	case p.IsLong && !p.IsCall:
		if itm {
			return p.StrikePrice.Sub(spot).Sub(avgCost)
		}
		return avgCost.Neg()
	case !p.IsLong && p.IsCall:
		if itm {
			return p.StrikePrice.Sub(spot).Add(avgCost)
		}
		return avgCost
	default: // short put
		if itm {
			return spot.Sub(p.StrikePrice).Add(avgCost)
		}
		return avgCost
	}
}

// UnrealizedPnl marks the open size to the current fair price. Zero for
// positions that are no longer open.
func UnrealizedPnl(p *model.Position, currentFairPrice decimal.Decimal) decimal.Decimal {
	if !p.IsOpen() {
		return decimal.Zero
	}
	avgCost := AverageCostPerOption(p)
	if p.IsLong {
		return currentFairPrice.Sub(avgCost).Mul(p.Size)
	}
	return avgCost.Sub(currentFairPrice).Mul(p.Size)
}

// BreakEven returns the expiry spot at which the position's cost basis
// is exactly recovered: strike+avgCost for calls, strike−avgCost for
// puts.
func BreakEven(p *model.Position) decimal.Decimal {
	avgCost := AverageCostPerOption(p)
	if p.IsCall {
		return p.StrikePrice.Add(avgCost)
	}
	return p.StrikePrice.Sub(avgCost)
}

// Payoff projects the position's settlement P&L at a hypothetical spot
// at expiry.
func Payoff(p *model.Position, spotAtExpiry decimal.Decimal) decimal.Decimal {
	avgCost := AverageCostPerOption(p)
	return settlementValue(p, spotAtExpiry, avgCost).Mul(p.Size)
}

// PayoffWithLiquidation projects the settlement P&L with short-side
// losses capped at the liquidation threshold, when one exists.
func PayoffWithLiquidation(p *model.Position, spotAtExpiry decimal.Decimal) decimal.Decimal {
	if !p.IsLong && p.LiquidationPrice != nil {
		liq := *p.LiquidationPrice
		if p.IsCall && spotAtExpiry.GreaterThan(liq) {
			spotAtExpiry = liq
		}
		if !p.IsCall && spotAtExpiry.LessThan(liq) {
			spotAtExpiry = liq
		}
	}
	return Payoff(p, spotAtExpiry)
}

// PNL is the position's P&L breakdown. Percent variants divide by the
// cost basis the P&L was earned against, zero when that basis is zero.
type PNL struct {
	Realized          decimal.Decimal `json:"realized"`
	Unrealized        decimal.Decimal `json:"unrealized"`
	Settlement        decimal.Decimal `json:"settlement"`
	RealizedPercent   decimal.Decimal `json:"realized_percent"`
	UnrealizedPercent decimal.Decimal `json:"unrealized_percent"`
}

// Pnl computes the full P&L breakdown, marking open size to
// currentFairPrice.
func Pnl(p *model.Position, currentFairPrice decimal.Decimal) PNL {
	avgCost := AverageCostPerOption(p)
	realized := RealizedPnl(p)
	unrealized := UnrealizedPnl(p, currentFairPrice)

	closedSize := decimal.Zero
	for i := range p.Trades {
		if !p.Trades[i].IsOpen {
			closedSize = closedSize.Add(p.Trades[i].Size)
		}
	}
	if p.SpotPriceAtExpiry != nil {
		closedSize = closedSize.Add(p.Size)
	}

	out := PNL{
		Realized:   realized,
		Unrealized: unrealized,
		Settlement: SettlementPnl(p),
	}
	if realizedBasis := avgCost.Mul(closedSize); realizedBasis.IsPositive() {
		out.RealizedPercent = realized.Div(realizedBasis)
	}
	if openBasis := avgCost.Mul(p.Size); p.IsOpen() && openBasis.IsPositive() {
		out.UnrealizedPercent = unrealized.Div(openBasis)
	}
	return out
}
