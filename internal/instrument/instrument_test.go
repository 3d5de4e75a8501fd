package instrument

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseValid(t *testing.T) {
	inst, err := Parse("ETH-27MAR26-2000-C")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if inst.Market != "ETH" {
		t.Errorf("market = %s, want ETH", inst.Market)
	}
	want := time.Date(2026, time.March, 27, 8, 0, 0, 0, time.UTC)
	if !inst.Expiry.Equal(want) {
		t.Errorf("expiry = %v, want %v", inst.Expiry, want)
	}
	if !inst.StrikePrice.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("strike = %s, want 2000", inst.StrikePrice)
	}
	if !inst.IsCall {
		t.Error("expected call")
	}
}

func TestParsePut(t *testing.T) {
	inst, err := Parse("BTC-3JAN27-45000.5-P")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if inst.IsCall {
		t.Error("expected put")
	}
	if !inst.StrikePrice.Equal(decimal.RequireFromString("45000.5")) {
		t.Errorf("strike = %s, want 45000.5", inst.StrikePrice)
	}
	if inst.Expiry.Day() != 3 || inst.Expiry.Month() != time.January {
		t.Errorf("expiry = %v, want 3 Jan", inst.Expiry)
	}
}

func TestParseInvalidFormat(t *testing.T) {
	cases := []string{
		"",
		"ETH",
		"ETH-27MAR26-2000",     // missing type
		"ETH-27MAR26-2000-X",   // bad type
		"eth-27MAR26-2000-C",   // lowercase market
		"ETH-27MARCH26-2000-C", // long month
		"ETH-27MAR26--2000-C",  // negative strike
		"ETH-2000-27MAR26-C",   // swapped fields
	}
	for _, tc := range cases {
		if _, err := Parse(tc); !errors.Is(err, ErrInvalidTicker) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidTicker", tc, err)
		}
	}
}

func TestParseInvalidExpiry(t *testing.T) {
	if _, err := Parse("ETH-32JAN26-2000-C"); !errors.Is(err, ErrInvalidExpiry) {
		t.Errorf("error = %v, want ErrInvalidExpiry", err)
	}
	if _, err := Parse("ETH-29FEB26-2000-C"); !errors.Is(err, ErrInvalidExpiry) {
		t.Errorf("error = %v, want ErrInvalidExpiry", err)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	expiry := time.Date(2026, time.March, 27, 8, 0, 0, 0, time.UTC)
	ticker := Format("ETH", expiry, decimal.NewFromInt(2000), true)
	if ticker != "ETH-27MAR26-2000-C" {
		t.Fatalf("Format = %s", ticker)
	}
	inst, err := Parse(ticker)
	if err != nil {
		t.Fatalf("Parse(Format(...)): %v", err)
	}
	if !inst.Expiry.Equal(expiry) {
		t.Errorf("expiry = %v, want %v", inst.Expiry, expiry)
	}
	if Format(inst.Market, inst.Expiry, inst.StrikePrice, inst.IsCall) != ticker {
		t.Error("round trip changed ticker")
	}
}
