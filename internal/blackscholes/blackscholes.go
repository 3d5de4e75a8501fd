// Package blackscholes implements European option pricing and Greeks
// under the Black-Scholes model.
//
// All monetary values use shopspring/decimal, never float64 for money.
// Internal transcendental math (log, exp, erf) runs in float64 with
// results immediately converted back to decimal.
//
// Callers MUST special-case zero time-to-expiry and zero volatility:
// the formulas divide by vol·√t and are undefined there. The quote
// engine and option views return zero price/Greeks in those cases
// rather than calling into this package.
//
// Reference: Black, F. and Scholes, M. (1973) "The Pricing of Options
// and Corporate Liabilities"
package blackscholes

import (
	"math"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places for rounded results.
var Scale int32 = 12

// DaysPerYear is the day-count convention used for theta.
const DaysPerYear = 365

// stdNormalCDF is the standard normal cumulative distribution function,
// implemented via the error function.
func stdNormalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// stdNormalPDF is the standard normal probability density function.
func stdNormalPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// dTerms computes the d1 and d2 terms shared by price and all Greeks:
//
//	d1 = (ln(S/K) + (r + σ²/2)·t) / (σ·√t)
//	d2 = d1 − σ·√t
func dTerms(tYears, vol, spot, strike, rate float64) (d1, d2 float64) {
	sqrtT := math.Sqrt(tYears)
	d1 = (math.Log(spot/strike) + (rate+0.5*vol*vol)*tYears) / (vol * sqrtT)
	d2 = d1 - vol*sqrtT
	return d1, d2
}

// Price returns the Black-Scholes price of a call or put.
//
// Call = N(d1)·S − N(d2)·K·e^(−rt)
// Put  = N(−d2)·K·e^(−rt) − N(−d1)·S
func Price(tYears, vol, spot, strike, rate decimal.Decimal, isCall bool) decimal.Decimal {
	t := tYears.InexactFloat64()
	v := vol.InexactFloat64()
	s := spot.InexactFloat64()
	k := strike.InexactFloat64()
	r := rate.InexactFloat64()

	d1, d2 := dTerms(t, v, s, k, r)
	discount := math.Exp(-r * t)

	var price float64
	if isCall {
		price = stdNormalCDF(d1)*s - stdNormalCDF(d2)*k*discount
	} else {
		price = stdNormalCDF(-d2)*k*discount - stdNormalCDF(-d1)*s
	}
	return decimal.NewFromFloat(price).Round(Scale)
}

// CallPrice returns the Black-Scholes call price.
func CallPrice(tYears, vol, spot, strike, rate decimal.Decimal) decimal.Decimal {
	return Price(tYears, vol, spot, strike, rate, true)
}

// PutPrice returns the Black-Scholes put price.
func PutPrice(tYears, vol, spot, strike, rate decimal.Decimal) decimal.Decimal {
	return Price(tYears, vol, spot, strike, rate, false)
}

// Delta returns the option delta: N(d1) for calls, N(d1) − 1 for puts.
func Delta(tYears, vol, spot, strike, rate decimal.Decimal, isCall bool) decimal.Decimal {
	if isCall {
		return CallDelta(tYears, vol, spot, strike, rate)
	}
	one := decimal.NewFromInt(1)
	return CallDelta(tYears, vol, spot, strike, rate).Sub(one)
}

// CallDelta returns N(d1). The trade disablement rules use the call
// delta for both option types when checking the delta trading range.
func CallDelta(tYears, vol, spot, strike, rate decimal.Decimal) decimal.Decimal {
	d1, _ := dTerms(
		tYears.InexactFloat64(), vol.InexactFloat64(),
		spot.InexactFloat64(), strike.InexactFloat64(), rate.InexactFloat64(),
	)
	return decimal.NewFromFloat(stdNormalCDF(d1)).Round(Scale)
}

// Vega returns S·φ(d1)·√t / 100, the price change per one vol point.
func Vega(tYears, vol, spot, strike, rate decimal.Decimal) decimal.Decimal {
	t := tYears.InexactFloat64()
	d1, _ := dTerms(
		t, vol.InexactFloat64(),
		spot.InexactFloat64(), strike.InexactFloat64(), rate.InexactFloat64(),
	)
	vega := spot.InexactFloat64() * stdNormalPDF(d1) * math.Sqrt(t) / 100
	return decimal.NewFromFloat(vega).Round(Scale)
}

// Gamma returns φ(d1) / (S·σ·√t).
func Gamma(tYears, vol, spot, strike, rate decimal.Decimal) decimal.Decimal {
	t := tYears.InexactFloat64()
	v := vol.InexactFloat64()
	s := spot.InexactFloat64()
	d1, _ := dTerms(t, v, s, strike.InexactFloat64(), rate.InexactFloat64())
	gamma := stdNormalPDF(d1) / (s * v * math.Sqrt(t))
	return decimal.NewFromFloat(gamma).Round(Scale)
}

// Theta returns the annualized theta divided by the 365 day count,
// i.e. price decay per calendar day.
func Theta(tYears, vol, spot, strike, rate decimal.Decimal, isCall bool) decimal.Decimal {
	t := tYears.InexactFloat64()
	v := vol.InexactFloat64()
	s := spot.InexactFloat64()
	k := strike.InexactFloat64()
	r := rate.InexactFloat64()

	d1, d2 := dTerms(t, v, s, k, r)
	discount := math.Exp(-r * t)
	decay := -(s * stdNormalPDF(d1) * v) / (2 * math.Sqrt(t))

	var theta float64
	if isCall {
		theta = (decay - r*k*discount*stdNormalCDF(d2)) / DaysPerYear
	} else {
		theta = (decay + r*k*discount*stdNormalCDF(-d2)) / DaysPerYear
	}
	return decimal.NewFromFloat(theta).Round(Scale)
}

// Rho returns K·t·e^(−rt)·N(d2)/100 for calls and the negated N(−d2)
// variant for puts, the price change per one percentage point of rate.
func Rho(tYears, vol, spot, strike, rate decimal.Decimal, isCall bool) decimal.Decimal {
	t := tYears.InexactFloat64()
	k := strike.InexactFloat64()
	r := rate.InexactFloat64()

	_, d2 := dTerms(
		t, vol.InexactFloat64(),
		spot.InexactFloat64(), k, r,
	)
	discount := math.Exp(-r * t)

	var rho float64
	if isCall {
		rho = k * t * discount * stdNormalCDF(d2) / 100
	} else {
		rho = -k * t * discount * stdNormalCDF(-d2) / 100
	}
	return decimal.NewFromFloat(rho).Round(Scale)
}
