// Package instrument handles option instrument ticker parsing and
// formatting. Tickers follow the exchange convention
// {MARKET}-{DDMMMYY}-{STRIKE}-{C|P}, e.g. ETH-27MAR26-2000-C.
package instrument

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// tickerRegex matches: {MARKET}-{DDMMMYY}-{STRIKE}-{C|P}
// Example: ETH-27MAR26-2000-C
var tickerRegex = regexp.MustCompile(
	`^([A-Z]+)-(\d{1,2}[A-Z]{3}\d{2})-(\d+(?:\.\d+)?)-([CP])$`,
)

var (
	ErrInvalidTicker = errors.New("instrument: invalid ticker format")
	ErrInvalidExpiry = errors.New("instrument: invalid expiry date")
)

// expiryHourUTC is the settlement hour of the daily expiry.
const expiryHourUTC = 8

// Instrument represents a parsed option ticker.
type Instrument struct {
	Ticker      string          `json:"ticker"`
	Market      string          `json:"market"`
	Expiry      time.Time       `json:"expiry"`
	StrikePrice decimal.Decimal `json:"strike_price"`
	IsCall      bool            `json:"is_call"`
}

// Parse parses and validates an instrument ticker string.
// Format: {MARKET}-{DDMMMYY}-{STRIKE}-{C|P}
func Parse(ticker string) (*Instrument, error) {
	matches := tickerRegex.FindStringSubmatch(ticker)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected MARKET-DDMMMYY-STRIKE-C|P)",
			ErrInvalidTicker, ticker)
	}

	market := matches[1]
	dateStr := matches[2]
	strikeStr := matches[3]
	optionType := matches[4]

	expiry, err := time.Parse("2Jan06", titleMonth(dateStr))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidExpiry, dateStr)
	}
	expiry = time.Date(expiry.Year(), expiry.Month(), expiry.Day(),
		expiryHourUTC, 0, 0, 0, time.UTC)

	strike, err := decimal.NewFromString(strikeStr)
	if err != nil || !strike.IsPositive() {
		return nil, fmt.Errorf("%w: invalid strike %s", ErrInvalidTicker, strikeStr)
	}

	return &Instrument{
		Ticker:      ticker,
		Market:      market,
		Expiry:      expiry,
		StrikePrice: strike,
		IsCall:      optionType == "C",
	}, nil
}

// Format builds the canonical ticker for an option.
func Format(market string, expiry time.Time, strike decimal.Decimal, isCall bool) string {
	optionType := "P"
	if isCall {
		optionType = "C"
	}
	date := strings.ToUpper(expiry.UTC().Format("2Jan06"))
	return fmt.Sprintf("%s-%s-%s-%s", strings.ToUpper(market), date, strike.String(), optionType)
}

// titleMonth converts the all-caps month in a ticker date to the mixed
// case time.Parse expects ("27MAR26" -> "27Mar26").
func titleMonth(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		isLetter := r >= 'A' && r <= 'Z'
		if isLetter && prevLetter {
			r += 'a' - 'A'
		}
		prevLetter = isLetter || (r >= 'a' && r <= 'z')
		b.WriteRune(r)
	}
	return b.String()
}
