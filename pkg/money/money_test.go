package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSplitSumsBackToTotal(t *testing.T) {
	cases := []struct {
		total   string
		feeRate string
		fee     string
		payout  string
	}{
		{"1500.00", "0.06", "90.00", "1410.00"},
		{"1000.00", "0.10", "100.00", "900.00"},
		{"99.99", "0.06", "6.00", "93.99"},
		{"0.01", "0.06", "0.00", "0.01"},
		{"333.33", "0.10", "33.33", "300.00"},
	}
	for _, tc := range cases {
		fee, payout := Split(d(tc.total), d(tc.feeRate))
		if !fee.Equal(d(tc.fee)) {
			t.Errorf("Split(%s, %s): fee %s, expected %s", tc.total, tc.feeRate, fee, tc.fee)
		}
		if !payout.Equal(d(tc.payout)) {
			t.Errorf("Split(%s, %s): payout %s, expected %s", tc.total, tc.feeRate, payout, tc.payout)
		}
		if !fee.Add(payout).Equal(d(tc.total)) {
			t.Errorf("Split(%s, %s): parts do not sum to total", tc.total, tc.feeRate)
		}
	}
}

func TestGrossUp(t *testing.T) {
	got, err := GrossUp(d("1000.00"), d("0.06"))
	if err != nil {
		t.Fatalf("GrossUp: %v", err)
	}
	if !got.Equal(d("1063.83")) {
		t.Fatalf("expected 1063.83, got %s", got)
	}
}

func TestGrossUpZeroRateIsIdentity(t *testing.T) {
	got, err := GrossUp(d("1000.00"), decimal.Zero)
	if err != nil {
		t.Fatalf("GrossUp: %v", err)
	}
	if !got.Equal(d("1000.00")) {
		t.Fatalf("expected 1000.00, got %s", got)
	}
}

func TestGrossUpRejectsBadRates(t *testing.T) {
	for _, rate := range []string{"-0.01", "1", "1.5"} {
		if _, err := GrossUp(d("100.00"), d(rate)); err == nil {
			t.Errorf("rate %s: expected error", rate)
		}
	}
}

func TestWithinTolerance(t *testing.T) {
	tolerance := d("0.01")
	if !WithinTolerance(d("100.00"), d("100.01"), tolerance) {
		t.Error("0.01 apart must be within a 0.01 tolerance")
	}
	if WithinTolerance(d("100.00"), d("100.02"), tolerance) {
		t.Error("0.02 apart must exceed a 0.01 tolerance")
	}
	if !WithinTolerance(d("100.00"), d("100.00"), decimal.Zero) {
		t.Error("equal amounts must pass a zero tolerance")
	}
}
