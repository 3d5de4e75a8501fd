// Package model defines the core domain types shared across the options
// engine: point-in-time market/board/strike snapshots, derived option
// views, positions, and the append-only trade event history.
// All monetary values use shopspring/decimal, never float64 for money.
//
// Snapshots are immutable value objects constructed fresh from a
// point-in-time on-chain fetch. Recomputation means re-fetching and
// reconstructing, never in-place mutation.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SecondsPerYear annualizes time-to-expiry throughout the engine.
const SecondsPerYear = 365 * 24 * 60 * 60

// PricingParams holds the fee curve breakpoints and coefficients for the
// four fee families plus the variance-fee parameter block.
type PricingParams struct {
	OptionPriceFeeCoefficient decimal.Decimal `json:"option_price_fee_coefficient"`
	OptionPriceFee1xPoint     int64           `json:"option_price_fee_1x_point"` // seconds to expiry
	OptionPriceFee2xPoint     int64           `json:"option_price_fee_2x_point"`

	SpotPriceFeeCoefficient decimal.Decimal `json:"spot_price_fee_coefficient"`
	SpotPriceFee1xPoint     int64           `json:"spot_price_fee_1x_point"`
	SpotPriceFee2xPoint     int64           `json:"spot_price_fee_2x_point"`

	VegaFeeCoefficient decimal.Decimal `json:"vega_fee_coefficient"`

	VarianceFeeCoefficient           decimal.Decimal `json:"variance_fee_coefficient"`
	ForceCloseVarianceFeeCoefficient decimal.Decimal `json:"force_close_variance_fee_coefficient"`
	MinimumStaticVega                decimal.Decimal `json:"minimum_static_vega"`
	VegaCoefficient                  decimal.Decimal `json:"vega_coefficient"`
	ReferenceSkew                    decimal.Decimal `json:"reference_skew"`
	MinimumStaticSkewAdjustment      decimal.Decimal `json:"minimum_static_skew_adjustment"`
	SkewAdjustmentCoefficient        decimal.Decimal `json:"skew_adjustment_coefficient"`
	MinimumStaticIVVariance          decimal.Decimal `json:"minimum_static_iv_variance"`
	IVVarianceCoefficient            decimal.Decimal `json:"iv_variance_coefficient"`
}

// MinCollateralParams holds the shock parameters used to size minimum
// collateral for short positions.
type MinCollateralParams struct {
	ShockVolA                decimal.Decimal `json:"shock_vol_a"`
	ShockVolB                decimal.Decimal `json:"shock_vol_b"`
	ShockVolPointA           int64           `json:"shock_vol_point_a"` // seconds to expiry
	ShockVolPointB           int64           `json:"shock_vol_point_b"`
	MinStaticBaseCollateral  decimal.Decimal `json:"min_static_base_collateral"`
	MinStaticQuoteCollateral decimal.Decimal `json:"min_static_quote_collateral"`
	CallSpotPriceShock       decimal.Decimal `json:"call_spot_price_shock"`
	PutSpotPriceShock        decimal.Decimal `json:"put_spot_price_shock"`
}

// TradeLimitParams holds the protocol bounds evaluated by the trade
// disablement rules.
type TradeLimitParams struct {
	TradingCutoff      time.Duration   `json:"trading_cutoff"`
	MinDelta           decimal.Decimal `json:"min_delta"`
	MinForceCloseDelta decimal.Decimal `json:"min_force_close_delta"`
	MinSkew            decimal.Decimal `json:"min_skew"`
	MaxSkew            decimal.Decimal `json:"max_skew"`
	MinBaseIV          decimal.Decimal `json:"min_base_iv"`
	MaxBaseIV          decimal.Decimal `json:"max_base_iv"`
	MinVol             decimal.Decimal `json:"min_vol"`
	MaxVol             decimal.Decimal `json:"max_vol"`
	AbsMinSkew         decimal.Decimal `json:"abs_min_skew"`
	AbsMaxSkew         decimal.Decimal `json:"abs_max_skew"`
}

// MarketSnapshot is the per-market on-chain state at one block.
type MarketSnapshot struct {
	Name                 string              `json:"name"` // e.g. "ETH"
	SpotPrice            decimal.Decimal     `json:"spot_price"`
	RateAndCarry         decimal.Decimal     `json:"rate_and_carry"`
	Pricing              PricingParams       `json:"pricing"`
	MinCollat            MinCollateralParams `json:"min_collat"`
	TradeLimit           TradeLimitParams    `json:"trade_limit"`
	NetStdVega           decimal.Decimal     `json:"net_std_vega"` // AMM-wide
	NAV                  decimal.Decimal     `json:"nav"`
	FreeLiquidity        decimal.Decimal     `json:"free_liquidity"`
	StandardSize         decimal.Decimal     `json:"standard_size"`
	SkewAdjustmentFactor decimal.Decimal     `json:"skew_adjustment_factor"`
	FetchedAt            time.Time           `json:"fetched_at"`
}

// BoardSnapshot is the per-expiry board state at one block.
type BoardSnapshot struct {
	ID                string           `json:"id"`
	MarketName        string           `json:"market_name"`
	Expiry            time.Time        `json:"expiry"`
	BaseIV            decimal.Decimal  `json:"base_iv"`
	ForceCloseGwavIV  decimal.Decimal  `json:"force_close_gwav_iv"`
	IsPaused          bool             `json:"is_paused"`
	IsExpired         bool             `json:"is_expired"`
	SpotPriceAtExpiry *decimal.Decimal `json:"spot_price_at_expiry,omitempty"` // set once expired
}

// TimeToExpiry returns seconds until expiry, floored at zero.
func (b *BoardSnapshot) TimeToExpiry(now time.Time) int64 {
	secs := int64(b.Expiry.Sub(now).Seconds())
	if secs < 0 {
		return 0
	}
	return secs
}

// TimeToExpiryAnnualized returns time-to-expiry in years, floored at zero.
func (b *BoardSnapshot) TimeToExpiryAnnualized(now time.Time) decimal.Decimal {
	secs := b.TimeToExpiry(now)
	if secs == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(secs).Div(decimal.NewFromInt(SecondsPerYear))
}

// StrikeSnapshot is the per-strike state at one block.
type StrikeSnapshot struct {
	ID            string          `json:"id"`
	BoardID       string          `json:"board_id"`
	StrikePrice   decimal.Decimal `json:"strike_price"`
	Skew          decimal.Decimal `json:"skew"`
	CachedStdVega decimal.Decimal `json:"cached_std_vega"`
	LongCallOI    decimal.Decimal `json:"long_call_oi"`
	ShortCallOI   decimal.Decimal `json:"short_call_oi"`
	LongPutOI     decimal.Decimal `json:"long_put_oi"`
	ShortPutOI    decimal.Decimal `json:"short_put_oi"`
}

// IV returns the strike's resulting implied vol, baseIv × skew.
func (s *StrikeSnapshot) IV(baseIV decimal.Decimal) decimal.Decimal {
	return baseIV.Mul(s.Skew)
}

// PositionState is the lifecycle state of a position.
type PositionState string

const (
	PositionActive     PositionState = "active"
	PositionClosed     PositionState = "closed"
	PositionLiquidated PositionState = "liquidated"
	PositionSettled    PositionState = "settled"
)

// TradeEvent is an immutable record of an executed trade. Once created,
// these are never modified or deleted. Ordering key: (BlockNumber,
// LogIndex) ascending = chronological.
type TradeEvent struct {
	PositionID     string          `json:"position_id"`
	Size           decimal.Decimal `json:"size"`
	IsOpen         bool            `json:"is_open"`
	IsBuy          bool            `json:"is_buy"`
	IsLong         bool            `json:"is_long"`
	Premium        decimal.Decimal `json:"premium"`
	OptionPriceFee decimal.Decimal `json:"option_price_fee"`
	SpotPriceFee   decimal.Decimal `json:"spot_price_fee"`
	VegaUtilFee    decimal.Decimal `json:"vega_util_fee"`
	VarianceFee    decimal.Decimal `json:"variance_fee"`
	PricePerOption decimal.Decimal `json:"price_per_option"`
	IV             decimal.Decimal `json:"iv"`
	Skew           decimal.Decimal `json:"skew"`
	BaseIV         decimal.Decimal `json:"base_iv"`
	IsForceClose   bool            `json:"is_force_close"`
	IsLiquidation  bool            `json:"is_liquidation"`
	BlockNumber    uint64          `json:"block_number"`
	LogIndex       uint64          `json:"log_index"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Fee returns the sum of the four fee components.
func (t *TradeEvent) Fee() decimal.Decimal {
	return t.OptionPriceFee.Add(t.SpotPriceFee).Add(t.VegaUtilFee).Add(t.VarianceFee)
}

// CollateralUpdateEvent records a collateral adjustment on a short
// position. Same ordering key as TradeEvent.
type CollateralUpdateEvent struct {
	PositionID  string          `json:"position_id"`
	Amount      decimal.Decimal `json:"amount"`
	IsBase      bool            `json:"is_base"`
	BlockNumber uint64          `json:"block_number"`
	LogIndex    uint64          `json:"log_index"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Position is a trader's holding in one option. Trade and collateral
// history is append-only and ordered by (blockNumber, logIndex).
type Position struct {
	ID                string           `json:"id"`
	Owner             string           `json:"owner"`
	MarketName        string           `json:"market_name"`
	BoardID           string           `json:"board_id"`
	StrikeID          string           `json:"strike_id"`
	StrikePrice       decimal.Decimal  `json:"strike_price"`
	Size              decimal.Decimal  `json:"size"`
	IsCall            bool             `json:"is_call"`
	IsLong            bool             `json:"is_long"`
	Collateral        *decimal.Decimal `json:"collateral,omitempty"` // shorts only
	IsBaseCollateral  bool             `json:"is_base_collateral"`
	State             PositionState    `json:"state"`
	SpotPriceAtExpiry *decimal.Decimal `json:"spot_price_at_expiry,omitempty"`
	LiquidationPrice  *decimal.Decimal `json:"liquidation_price,omitempty"`

	Trades            []TradeEvent            `json:"trades"`
	CollateralUpdates []CollateralUpdateEvent `json:"collateral_updates"`
}

// CollateralAmount returns the posted collateral, zero when none.
func (p *Position) CollateralAmount() decimal.Decimal {
	if p.Collateral == nil {
		return decimal.Zero
	}
	return *p.Collateral
}

// IsOpen reports whether the position is still active on-chain.
func (p *Position) IsOpen() bool {
	return p.State == PositionActive
}

// DisabledReason identifies why a quote or trade cannot execute. These
// are expected business outcomes returned in-band, never errors: a UI
// renders the reason rather than catching exceptions.
type DisabledReason string

const (
	// Quote-level reasons.
	DisabledEmptySize             DisabledReason = "EmptySize"
	DisabledEmptyPremium          DisabledReason = "EmptyPremium"
	DisabledExpired               DisabledReason = "Expired"
	DisabledTradingCutoff         DisabledReason = "TradingCutoff"
	DisabledInsufficientLiquidity DisabledReason = "InsufficientLiquidity"
	DisabledDeltaOutOfRange       DisabledReason = "DeltaOutOfRange"
	DisabledIVTooHigh             DisabledReason = "IVTooHigh"
	DisabledIVTooLow              DisabledReason = "IVTooLow"
	DisabledSkewTooHigh           DisabledReason = "SkewTooHigh"
	DisabledSkewTooLow            DisabledReason = "SkewTooLow"
	DisabledVolTooHigh            DisabledReason = "VolTooHigh"
	DisabledVolTooLow             DisabledReason = "VolTooLow"

	// Trade-level reasons.
	DisabledPositionWrongOwner     DisabledReason = "PositionWrongOwner"
	DisabledPositionClosed         DisabledReason = "PositionClosed"
	DisabledPositionNotLargeEnough DisabledReason = "PositionNotLargeEnough"
	DisabledCollateralRemaining    DisabledReason = "CollateralRemaining"
	DisabledNotEnoughCollateral    DisabledReason = "NotEnoughCollateral"
	DisabledTooMuchCollateral      DisabledReason = "TooMuchCollateral"
)
