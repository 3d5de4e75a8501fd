package model

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestWeiRoundTrip(t *testing.T) {
	cases := []string{"0", "1", "1234.5", "-3.25", "0.000000000000000001"}
	for _, tc := range cases {
		v := decimal.RequireFromString(tc)
		got := FromWei(ToWei(v))
		if !got.Equal(v) {
			t.Errorf("round trip %s -> %s", tc, got)
		}
	}
}

func TestToWeiTruncatesSubWei(t *testing.T) {
	v := decimal.New(15, -19) // 1.5e-19, below one wei
	if ToWei(v).Sign() != 0 {
		t.Errorf("ToWei(%s) = %s, want 0", v, ToWei(v))
	}
}

func TestFromWeiNil(t *testing.T) {
	if !FromWei(nil).IsZero() {
		t.Error("FromWei(nil) should be zero")
	}
	one := big.NewInt(1)
	if !FromWei(one).Equal(decimal.New(1, -WeiDecimals)) {
		t.Error("FromWei(1) should be 1e-18")
	}
}
