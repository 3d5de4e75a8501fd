// Package quote implements the iterative quote construction algorithm:
// it simulates the AMM's skew/IV market impact per trade slice, prices
// each slice (including the force-close variant), applies the four fee
// components, and aggregates the result into a Quote with Greeks, a
// fair IV, and a disablement verdict.
//
// All monetary values use shopspring/decimal, never float64 for money.
package quote

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ovmx/options-engine/internal/blackscholes"
	"github.com/ovmx/options-engine/internal/model"
)

// ErrInvalidIterations is returned when a quote is requested with fewer
// than one iteration.
var ErrInvalidIterations = errors.New("quote: iterations must be >= 1")

// Iteration is one slice's pricing result. Feeding NewBaseIV/NewSkew and
// PostTradeAMMNetStdVega into the next slice reconstructs the full-size
// quote to within rounding.
type Iteration struct {
	Premium                decimal.Decimal `json:"premium"`
	OptionPriceFee         decimal.Decimal `json:"option_price_fee"`
	SpotPriceFee           decimal.Decimal `json:"spot_price_fee"`
	VegaUtilFee            decimal.Decimal `json:"vega_util_fee"`
	VarianceFee            decimal.Decimal `json:"variance_fee"`
	ForceClosePenalty      decimal.Decimal `json:"force_close_penalty"`
	VolTraded              decimal.Decimal `json:"vol_traded"`
	NewBaseIV              decimal.Decimal `json:"new_base_iv"`
	NewSkew                decimal.Decimal `json:"new_skew"`
	PostTradeAMMNetStdVega decimal.Decimal `json:"post_trade_amm_net_std_vega"`
}

// Fee returns the slice's total fee.
func (it *Iteration) Fee() decimal.Decimal {
	return it.OptionPriceFee.Add(it.SpotPriceFee).Add(it.VegaUtilFee).Add(it.VarianceFee)
}

// Quote is the result of pricing a buy or sell of a given size.
// Invariants: Premium = PricePerOption · Size; Fee components sum to
// the total deducted/added to the premium.
type Quote struct {
	IsBuy  bool            `json:"is_buy"`
	Size   decimal.Decimal `json:"size"`
	IsCall bool            `json:"is_call"`

	PricePerOption decimal.Decimal `json:"price_per_option"`
	Premium        decimal.Decimal `json:"premium"`

	OptionPriceFee decimal.Decimal `json:"option_price_fee"`
	SpotPriceFee   decimal.Decimal `json:"spot_price_fee"`
	VegaUtilFee    decimal.Decimal `json:"vega_util_fee"`
	VarianceFee    decimal.Decimal `json:"variance_fee"`

	IV     decimal.Decimal `json:"iv"`      // fairIv adjusted by the fee-implied vol
	FairIV decimal.Decimal `json:"fair_iv"` // final baseIv · final skew

	Delta decimal.Decimal `json:"delta"`
	Vega  decimal.Decimal `json:"vega"`
	Gamma decimal.Decimal `json:"gamma"`
	Rho   decimal.Decimal `json:"rho"`
	Theta decimal.Decimal `json:"theta"`

	ForceClosePenalty decimal.Decimal `json:"force_close_penalty"`
	IsForceClose      bool            `json:"is_force_close"`
	BreakEven         decimal.Decimal `json:"break_even"`

	IsDisabled     bool                 `json:"is_disabled"`
	DisabledReason model.DisabledReason `json:"disabled_reason,omitempty"`

	Iterations []Iteration `json:"iterations"`
}

// Fee returns the quote's total fee.
func (q *Quote) Fee() decimal.Decimal {
	return q.OptionPriceFee.Add(q.SpotPriceFee).Add(q.VegaUtilFee).Add(q.VarianceFee)
}

// Options controls quote construction.
type Options struct {
	// IsForceClose prices the trade under force-close rules: GWAV
	// reference vol, per-side worst-case price, and no base IV impact.
	IsForceClose bool

	// Iterations splits the trade into N equal slices. More iterations
	// model the AMM's incremental market impact at finer granularity.
	// Defaults to 1; must be >= 1.
	Iterations int

	// AsOf overrides the evaluation timestamp (defaults to time.Now).
	AsOf time.Time
}

func (o *Options) asOf() time.Time {
	if o != nil && !o.AsOf.IsZero() {
		return o.AsOf
	}
	return time.Now().UTC()
}

// zeroedReasons is the subset of disablement reasons for which the
// returned quote must not leak economics: premium, fees and Greeks are
// zeroed and iv/fairIv fall back to skew·baseIv. Other reasons (e.g.
// InsufficientLiquidity, TradingCutoff) intentionally keep the computed
// numbers so callers can still surface what the premium would be.
var zeroedReasons = map[model.DisabledReason]bool{
	model.DisabledEmptySize:       true,
	model.DisabledEmptyPremium:    true,
	model.DisabledExpired:         true,
	model.DisabledIVTooHigh:       true,
	model.DisabledIVTooLow:        true,
	model.DisabledSkewTooHigh:     true,
	model.DisabledSkewTooLow:      true,
	model.DisabledVolTooHigh:      true,
	model.DisabledVolTooLow:       true,
	model.DisabledDeltaOutOfRange: true,
}

// Get prices a buy or sell of size contracts on the given option using
// the default Quoter.
func Get(o *model.Option, isBuy bool, size decimal.Decimal, opts *Options) (*Quote, error) {
	return defaultQuoter.Quote(o, isBuy, size, opts)
}

// Quoter runs the quote algorithm. The zero value uses the default
// force-close pricer; construct with NewQuoter to override it.
type Quoter struct {
	forceClosePricer ForceClosePricer
}

var defaultQuoter = &Quoter{}

// NewQuoter creates a Quoter with a custom force-close pricer. Passing
// nil keeps the default GWAV worst-case pricer.
func NewQuoter(fcp ForceClosePricer) *Quoter {
	return &Quoter{forceClosePricer: fcp}
}

// Quote prices a buy or sell of size contracts on the given option.
//
// The trade is split into opts.Iterations equal slices; each slice
// applies the AMM's skew/IV impact and fees, threading the updated
// baseIv/skew/net-std-vega into the next slice. Greeks are computed at
// the final fair IV. Disablement is evaluated against the final state.
func (qr *Quoter) Quote(o *model.Option, isBuy bool, size decimal.Decimal, opts *Options) (*Quote, error) {
	iterations := 1
	isForceClose := false
	if opts != nil {
		if opts.Iterations != 0 {
			iterations = opts.Iterations
		}
		isForceClose = opts.IsForceClose
	}
	if iterations < 1 {
		return nil, ErrInvalidIterations
	}

	now := opts.asOf()
	board := o.Board
	strike := o.Strike
	market := o.Market
	tYears := board.TimeToExpiryAnnualized(now)

	// An expired board quotes nothing: greeks/iv come straight from the
	// option's cached fields.
	if tYears.IsZero() {
		q := disabledQuote(o, isBuy, size, model.DisabledExpired, isForceClose)
		q.Delta = o.Delta
		q.Theta = o.Theta
		q.Rho = o.Rho
		return q, nil
	}

	timeToExpiry := board.TimeToExpiry(now)
	slice := size.Div(decimal.NewFromInt(int64(iterations)))

	baseIV := board.BaseIV
	skew := strike.Skew
	preTradeVega := market.NetStdVega

	q := &Quote{
		IsBuy:        isBuy,
		Size:         size,
		IsCall:       o.IsCall,
		IsForceClose: isForceClose,
		Iterations:   make([]Iteration, 0, iterations),
	}

	for i := 0; i < iterations; i++ {
		it := qr.iterate(o, isBuy, slice, timeToExpiry, tYears, baseIV, skew, preTradeVega, isForceClose)

		q.Premium = q.Premium.Add(it.Premium)
		q.OptionPriceFee = q.OptionPriceFee.Add(it.OptionPriceFee)
		q.SpotPriceFee = q.SpotPriceFee.Add(it.SpotPriceFee)
		q.VegaUtilFee = q.VegaUtilFee.Add(it.VegaUtilFee)
		q.VarianceFee = q.VarianceFee.Add(it.VarianceFee)
		q.ForceClosePenalty = q.ForceClosePenalty.Add(it.ForceClosePenalty)
		q.Iterations = append(q.Iterations, it)

		baseIV = it.NewBaseIV
		skew = it.NewSkew
		preTradeVega = it.PostTradeAMMNetStdVega
	}

	q.FairIV = baseIV.Mul(skew)

	// Greeks at the fair IV, zero-guarded against degenerate vol/spot.
	if q.FairIV.IsPositive() && market.SpotPrice.IsPositive() {
		spot, strikePrice, rate := market.SpotPrice, strike.StrikePrice, market.RateAndCarry
		q.Delta = blackscholes.Delta(tYears, q.FairIV, spot, strikePrice, rate, o.IsCall)
		q.Vega = blackscholes.Vega(tYears, q.FairIV, spot, strikePrice, rate)
		q.Gamma = blackscholes.Gamma(tYears, q.FairIV, spot, strikePrice, rate)
		q.Rho = blackscholes.Rho(tYears, q.FairIV, spot, strikePrice, rate, o.IsCall)
		q.Theta = blackscholes.Theta(tYears, q.FairIV, spot, strikePrice, rate, o.IsCall)
	}

	reason := CheckDisabled(DisabledContext{
		Option:       o,
		IsBuy:        isBuy,
		Size:         size,
		Premium:      q.Premium,
		NewBaseIV:    baseIV,
		NewSkew:      skew,
		NewIV:        q.FairIV,
		IsForceClose: isForceClose,
		AsOf:         now,
	})
	if reason != "" {
		if zeroedReasons[reason] {
			dq := disabledQuote(o, isBuy, size, reason, isForceClose)
			dq.Delta = q.Delta
			dq.Vega = q.Vega
			dq.Gamma = q.Gamma
			dq.Rho = q.Rho
			dq.Theta = q.Theta
			return dq, nil
		}
		q.IsDisabled = true
		q.DisabledReason = reason
	}

	q.PricePerOption = q.Premium.Div(size)
	if o.IsCall {
		q.BreakEven = strike.StrikePrice.Add(q.PricePerOption)
	} else {
		q.BreakEven = strike.StrikePrice.Sub(q.PricePerOption)
	}

	// The fee-implied vol adjustment separates the quoted IV from the
	// fair IV: buys are quoted above fair, sells below.
	feeAdjustment := decimal.Zero
	totalFee := q.Fee()
	if totalFee.IsPositive() && q.Vega.IsPositive() {
		feeAdjustment = totalFee.Div(q.Vega).Div(decimal.NewFromInt(100))
	}
	if isBuy {
		q.IV = q.FairIV.Add(feeAdjustment)
	} else {
		q.IV = q.FairIV.Sub(feeAdjustment)
	}

	return q, nil
}

// disabledQuote builds the zero-economics quote shape: iv and fairIv
// fall back to skew·baseIv, premium and fees are zero.
func disabledQuote(o *model.Option, isBuy bool, size decimal.Decimal, reason model.DisabledReason, isForceClose bool) *Quote {
	fallbackIV := o.Strike.IV(o.Board.BaseIV)
	return &Quote{
		IsBuy:          isBuy,
		Size:           size,
		IsCall:         o.IsCall,
		IV:             fallbackIV,
		FairIV:         fallbackIV,
		IsForceClose:   isForceClose,
		IsDisabled:     true,
		DisabledReason: reason,
	}
}
