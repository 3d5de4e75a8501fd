// Package trade builds the economic terms of an open, close, or adjust
// action: the quote, the slippage-bounded committed premium, the target
// collateral for shorts, net token transfers, and the combined
// disablement verdict. It stops short of transaction encoding.
//
// All monetary values use shopspring/decimal, never float64 for money.
package trade

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ovmx/options-engine/internal/collateral"
	"github.com/ovmx/options-engine/internal/model"
	"github.com/ovmx/options-engine/internal/quote"
)

var (
	// ErrPremiumBound is returned when neither or both of
	// PremiumSlippage and MinOrMaxPremium are supplied.
	ErrPremiumBound = errors.New("trade: exactly one of premiumSlippage or minOrMaxPremium must be set")

	// ErrNoOption is returned when no option view is supplied.
	ErrNoOption = errors.New("trade: option is required")
)

// CollateralPolicy selects how the post-trade collateral target for a
// short position is chosen.
type CollateralPolicy string

const (
	// CollateralSet uses the explicit SetCollateralTo value. The zero
	// default of 0 will usually trip NotEnoughCollateral downstream
	// unless the caller supplies a real target.
	CollateralSet CollateralPolicy = "set"

	// CollateralFull fully collateralizes the position at the maximum.
	CollateralFull CollateralPolicy = "full"

	// CollateralMaintainRatio scales the previous collateral by the
	// ratio of new max to previous max, clamped to [min, max].
	CollateralMaintainRatio CollateralPolicy = "maintain_ratio"
)

// CollateralOptions configures the short-side collateral target.
// Buffers inflate the min/max bounds multiplicatively before the policy
// is applied; zero buffers mean no adjustment. The max buffer only
// applies to cash-secured (quote-collateral) calls.
type CollateralOptions struct {
	Policy          CollateralPolicy `json:"policy"`
	SetCollateralTo decimal.Decimal  `json:"set_collateral_to"`
	IsBase          bool             `json:"is_base"`
	MinBuffer       decimal.Decimal  `json:"min_buffer"`
	MaxBuffer       decimal.Decimal  `json:"max_buffer"`
}

// Params are the inputs to trade construction. Exactly one of
// PremiumSlippage and MinOrMaxPremium must be set: the committed
// premium is the slippage-bounded one, never the raw quote premium.
type Params struct {
	Owner  string
	Option *model.Option
	IsBuy  bool
	Size   decimal.Decimal

	// Position is the existing position being adjusted, nil when
	// opening fresh.
	Position *model.Position

	PremiumSlippage *decimal.Decimal
	MinOrMaxPremium *decimal.Decimal

	Collateral CollateralOptions

	// Iterations is passed through to the quote engine; defaults to 1.
	Iterations int

	// AsOf overrides the evaluation timestamp (defaults to time.Now).
	AsOf time.Time
}

// Trade is the fully constructed economic outcome of a trade action,
// ready for downstream transaction encoding.
type Trade struct {
	Quote *quote.Quote `json:"quote"`

	IsOpen bool `json:"is_open"`
	IsLong bool `json:"is_long"`

	// Premium is the slippage-bounded committed premium: a maximum for
	// buys, a minimum for sells.
	Premium decimal.Decimal `json:"premium"`

	// Collateral is set for short positions only.
	Collateral *collateral.TradeCollateral `json:"collateral,omitempty"`

	// QuoteTokenTransfer is the net quote-token flow from the trader's
	// perspective: positive means the trader pays.
	QuoteTokenTransfer decimal.Decimal `json:"quote_token_transfer"`

	// BaseTokenTransfer is the net base-token flow, nonzero only for
	// base-collateral adjustments.
	BaseTokenTransfer decimal.Decimal `json:"base_token_transfer"`

	ForceClosed bool `json:"force_closed"`

	IsDisabled     bool                 `json:"is_disabled"`
	DisabledReason model.DisabledReason `json:"disabled_reason,omitempty"`
}

// Build constructs the trade using the default quoter.
func Build(p Params) (*Trade, error) {
	return NewBuilder(nil).Build(p)
}

// Builder constructs trades. The zero value uses the default quoter.
type Builder struct {
	quoter *quote.Quoter
}

// NewBuilder creates a Builder around the given quoter; nil selects the
// default.
func NewBuilder(qr *quote.Quoter) *Builder {
	if qr == nil {
		qr = quote.NewQuoter(nil)
	}
	return &Builder{quoter: qr}
}

// Build quotes the trade, retrying once under force-close rules when a
// closing trade is blocked only by the delta range or the trading
// cutoff, then derives the committed premium, the collateral target and
// the net transfers, and evaluates trade-level disablement.
func (b *Builder) Build(p Params) (*Trade, error) {
	if p.Option == nil {
		return nil, ErrNoOption
	}
	if (p.PremiumSlippage == nil) == (p.MinOrMaxPremium == nil) {
		return nil, ErrPremiumBound
	}

	isLong := p.IsBuy
	isOpen := true
	if p.Position != nil {
		isLong = p.Position.IsLong
		isOpen = p.IsBuy == p.Position.IsLong
	}

	opts := &quote.Options{Iterations: p.Iterations, AsOf: p.AsOf}
	q, err := b.quoter.Quote(p.Option, p.IsBuy, p.Size, opts)
	if err != nil {
		return nil, err
	}

	// Force-close is a closing-only escape valve: a close blocked by
	// the delta range or the trading cutoff is retried under
	// force-close pricing, penalty included.
	forceClosed := false
	if q.IsDisabled && !isOpen &&
		(q.DisabledReason == model.DisabledDeltaOutOfRange || q.DisabledReason == model.DisabledTradingCutoff) {
		opts.IsForceClose = true
		q, err = b.quoter.Quote(p.Option, p.IsBuy, p.Size, opts)
		if err != nil {
			return nil, err
		}
		forceClosed = true
	}

	t := &Trade{
		Quote:       q,
		IsOpen:      isOpen,
		IsLong:      isLong,
		ForceClosed: forceClosed,
		Premium:     boundPremium(q.Premium, p),
	}

	newSize := postTradeSize(p, isOpen)

	if !isLong {
		t.Collateral = b.targetCollateral(p, newSize)
	}

	// Net transfers from the trader's perspective.
	if p.IsBuy {
		t.QuoteTokenTransfer = t.Premium
	} else {
		t.QuoteTokenTransfer = t.Premium.Neg()
	}
	if t.Collateral != nil {
		delta := t.Collateral.Amount.Sub(t.Collateral.Current)
		if t.Collateral.IsBase {
			t.BaseTokenTransfer = delta
		} else {
			t.QuoteTokenTransfer = t.QuoteTokenTransfer.Add(delta)
		}
	}

	if reason := checkDisabled(p, q, t, newSize); reason != "" {
		t.IsDisabled = true
		t.DisabledReason = reason
	}
	return t, nil
}

// boundPremium derives the committed premium: the explicit bound when
// given, otherwise the quote premium widened by slippage against the
// trader (buys pay up to more, sells accept down to less).
func boundPremium(quoted decimal.Decimal, p Params) decimal.Decimal {
	if p.MinOrMaxPremium != nil {
		return *p.MinOrMaxPremium
	}
	one := decimal.NewFromInt(1)
	if p.IsBuy {
		return quoted.Mul(one.Add(*p.PremiumSlippage))
	}
	return quoted.Mul(one.Sub(*p.PremiumSlippage))
}

// postTradeSize returns the position size after the trade executes.
func postTradeSize(p Params, isOpen bool) decimal.Decimal {
	if p.Position == nil {
		return p.Size
	}
	if isOpen {
		return p.Position.Size.Add(p.Size)
	}
	return p.Position.Size.Sub(p.Size)
}

// targetCollateral selects the post-trade collateral per the policy and
// computes the liquidation price at that target.
func (b *Builder) targetCollateral(p Params, newSize decimal.Decimal) *collateral.TradeCollateral {
	now := p.AsOf
	if now.IsZero() {
		now = time.Now().UTC()
	}

	current := decimal.Zero
	isBase := p.Collateral.IsBase
	if p.Position != nil {
		current = p.Position.CollateralAmount()
		isBase = p.Position.IsBaseCollateral
	}

	min := collateral.Min(p.Option, newSize, isBase, now)
	max := collateral.Max(p.Option, newSize, isBase)

	// Buffers widen the band before the policy picks a target. The max
	// buffer only applies to cash-secured calls, which have no max to
	// inflate, so it never binds in practice.
	if p.Collateral.MinBuffer.IsPositive() {
		min = min.Mul(p.Collateral.MinBuffer)
	}
	if max != nil && p.Option.IsCall && !isBase && p.Collateral.MaxBuffer.IsPositive() {
		buffered := max.Mul(p.Collateral.MaxBuffer)
		max = &buffered
	}

	var amount decimal.Decimal
	switch {
	case newSize.IsZero():
		// Closing to zero releases everything.
		amount = decimal.Zero
	case p.Collateral.Policy == CollateralFull && max != nil:
		amount = *max
	case p.Collateral.Policy == CollateralMaintainRatio:
		amount = maintainRatio(p, current, min, max, isBase)
	default:
		amount = p.Collateral.SetCollateralTo
	}

	tc := &collateral.TradeCollateral{
		Amount:  amount,
		Min:     min,
		Max:     max,
		Current: current,
		IsBase:  isBase,
	}
	if !newSize.IsZero() {
		tc.LiquidationPrice = collateral.LiquidationPrice(p.Option, newSize, amount, isBase, now)
	}
	return tc
}

// maintainRatio scales the previous collateral by newMax/prevMax and
// clamps into [min, max]. Cash-secured calls have no max ratio to
// preserve, so the previous amount carries over subject to the min.
func maintainRatio(p Params, current, min decimal.Decimal, max *decimal.Decimal, isBase bool) decimal.Decimal {
	amount := current
	if max != nil && p.Position != nil {
		prevMax := collateral.Max(p.Option, p.Position.Size, isBase)
		if prevMax != nil && prevMax.IsPositive() {
			amount = current.Mul(*max).Div(*prevMax)
		}
	}
	if amount.LessThan(min) {
		amount = min
	}
	if max != nil && amount.GreaterThan(*max) {
		amount = *max
	}
	return amount
}

// checkDisabled layers the trade-level rules over the quote verdict.
func checkDisabled(p Params, q *quote.Quote, t *Trade, newSize decimal.Decimal) model.DisabledReason {
	if p.Position != nil {
		if p.Position.Owner != p.Owner {
			return model.DisabledPositionWrongOwner
		}
		if !p.Position.IsOpen() {
			return model.DisabledPositionClosed
		}
		if !t.IsOpen && p.Size.GreaterThan(p.Position.Size) {
			return model.DisabledPositionNotLargeEnough
		}
	}

	if q.IsDisabled {
		// A pure collateral adjustment is not a zero-size trade
		// failure: EmptySize is suppressed when the size is unchanged
		// and only the collateral moves.
		suppress := q.DisabledReason == model.DisabledEmptySize &&
			p.Size.IsZero() && t.Collateral != nil &&
			!t.Collateral.Amount.Equal(t.Collateral.Current)
		if !suppress {
			return q.DisabledReason
		}
	}

	if t.Collateral != nil {
		if newSize.IsZero() {
			if !t.Collateral.Amount.IsZero() {
				return model.DisabledCollateralRemaining
			}
			return ""
		}
		if t.Collateral.Amount.LessThan(t.Collateral.Min) {
			return model.DisabledNotEnoughCollateral
		}
		if t.Collateral.Max != nil && t.Collateral.Amount.GreaterThan(*t.Collateral.Max) {
			return model.DisabledTooMuchCollateral
		}
	}
	return ""
}
