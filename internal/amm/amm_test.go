package amm

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// --- Buy quote tests ---

func TestQuoteBuyCost_KnownValue(t *testing.T) {
	// 1000/1000 pools, buy 50 YES: cost = 1000*50/(1000-50) = 52.63157895
	cost, err := QuoteBuyCost(d(1000), d(1000), d(50), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := decimal.RequireFromString("52.63157895")
	if !cost.Equal(want) {
		t.Errorf("expected cost %s, got %s", want, cost)
	}
}

func TestQuoteBuyCost_Positive(t *testing.T) {
	tests := []struct {
		yes, no, shares float64
		isYes           bool
	}{
		{1000, 1000, 1, true},
		{1000, 1000, 999, true},
		{100, 900, 50, false},
		{0.5, 0.5, 0.25, true},
		{1e9, 1e9, 12345, false},
	}
	for _, tt := range tests {
		cost, err := QuoteBuyCost(d(tt.yes), d(tt.no), d(tt.shares), tt.isYes)
		if err != nil {
			t.Fatalf("quote(%v,%v,%v,%v): %v", tt.yes, tt.no, tt.shares, tt.isYes, err)
		}
		if cost.LessThanOrEqual(decimal.Zero) {
			t.Errorf("cost should be positive, got %s", cost)
		}
	}
}

func TestQuoteBuyCost_ZeroShares(t *testing.T) {
	_, err := QuoteBuyCost(d(1000), d(1000), decimal.Zero, true)
	if !errors.Is(err, ErrInvalidShares) {
		t.Errorf("expected ErrInvalidShares, got %v", err)
	}
}

func TestQuoteBuyCost_NegativeShares(t *testing.T) {
	_, err := QuoteBuyCost(d(1000), d(1000), d(-10), true)
	if !errors.Is(err, ErrInvalidShares) {
		t.Errorf("expected ErrInvalidShares, got %v", err)
	}
}

func TestQuoteBuyCost_SharesEqualPool(t *testing.T) {
	// Buying the entire opposing-side pool is invalid (price diverges).
	_, err := QuoteBuyCost(d(100), d(100), d(100), true)
	if !errors.Is(err, ErrExceedsLiquidity) {
		t.Errorf("expected ErrExceedsLiquidity for shares == poolOut, got %v", err)
	}
}

func TestQuoteBuyCost_SharesAbovePool(t *testing.T) {
	_, err := QuoteBuyCost(d(100), d(100), d(150), true)
	if !errors.Is(err, ErrExceedsLiquidity) {
		t.Errorf("expected ErrExceedsLiquidity, got %v", err)
	}
}

func TestQuoteBuyCost_NegativePool(t *testing.T) {
	_, err := QuoteBuyCost(d(-1), d(100), d(10), true)
	if !errors.Is(err, ErrInvalidPool) {
		t.Errorf("expected ErrInvalidPool, got %v", err)
	}
}

func TestQuoteBuyCost_NoSideUsesMirroredPools(t *testing.T) {
	// Asymmetric pools: buying NO must price against yesPool as poolIn.
	costYes, _ := QuoteBuyCost(d(500), d(2000), d(100), true)
	costNo, _ := QuoteBuyCost(d(500), d(2000), d(100), false)
	wantYes := d(2000).Mul(d(100)).Div(d(500).Sub(d(100))).Round(PriceScale)
	wantNo := d(500).Mul(d(100)).Div(d(2000).Sub(d(100))).Round(PriceScale)
	if !costYes.Equal(wantYes) {
		t.Errorf("YES cost: expected %s, got %s", wantYes, costYes)
	}
	if !costNo.Equal(wantNo) {
		t.Errorf("NO cost: expected %s, got %s", wantNo, costNo)
	}
}

// --- Sell quote tests ---

func TestQuoteSellProceeds_KnownValue(t *testing.T) {
	// After buying 50 YES from 1000/1000 the pools are 950/1052.63157895.
	// Selling those 50 back: 1052.63157895*50/(950+50) = 52.63157895.
	proceeds, err := QuoteSellProceeds(d(950), decimal.RequireFromString("1052.63157895"), d(50), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := decimal.RequireFromString("52.63157895")
	if !proceeds.Equal(want) {
		t.Errorf("expected proceeds %s, got %s", want, proceeds)
	}
}

func TestQuoteSellProceeds_ZeroShares(t *testing.T) {
	_, err := QuoteSellProceeds(d(1000), d(1000), decimal.Zero, true)
	if !errors.Is(err, ErrInvalidShares) {
		t.Errorf("expected ErrInvalidShares, got %v", err)
	}
}

// --- Pool transition tests ---

func TestApplyBuy_PoolDirections(t *testing.T) {
	newYes, newNo, cost, err := ApplyBuy(d(1000), d(1000), d(50), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !newYes.Equal(d(950)) {
		t.Errorf("yesPool should drop by shares: expected 950, got %s", newYes)
	}
	if !newNo.Equal(d(1000).Add(cost)) {
		t.Errorf("noPool should grow by cost: expected %s, got %s", d(1000).Add(cost), newNo)
	}
	if cost.LessThanOrEqual(decimal.Zero) {
		t.Errorf("cost should be positive, got %s", cost)
	}
}

func TestApplyBuy_NoSide(t *testing.T) {
	newYes, newNo, cost, err := ApplyBuy(d(1000), d(1000), d(50), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !newNo.Equal(d(950)) {
		t.Errorf("noPool should drop by shares: expected 950, got %s", newNo)
	}
	if !newYes.Equal(d(1000).Add(cost)) {
		t.Errorf("yesPool should grow by cost: got %s", newYes)
	}
}

func TestRoundTrip_BuyThenSellExact(t *testing.T) {
	// Buy 50 YES then sell the same 50 against the updated pools: in the
	// no-drift, no-other-trades case the proceeds match the cost exactly.
	newYes, newNo, cost, err := ApplyBuy(d(1000), d(1000), d(50), true)
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	proceeds, err := QuoteSellProceeds(newYes, newNo, d(50), true)
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	if !proceeds.Equal(cost) {
		t.Errorf("round trip should be neutral: cost=%s proceeds=%s", cost, proceeds)
	}
}

func TestRoundTrip_NeverProfitable(t *testing.T) {
	// Buying then immediately selling the same shares back never yields
	// proceeds above the cost (no risk-free round-trip profit).
	epsilon := decimal.New(1, -PriceScale) // rounding slack, one unit at PriceScale
	tests := []struct {
		yes, no, shares float64
		isYes           bool
	}{
		{1000, 1000, 50, true},
		{1000, 1000, 999, true},
		{300, 700, 100, false},
		{5000, 100, 99, false},
		{123.456, 789.012, 60.5, true},
	}
	for _, tt := range tests {
		newYes, newNo, cost, err := ApplyBuy(d(tt.yes), d(tt.no), d(tt.shares), tt.isYes)
		if err != nil {
			t.Fatalf("buy(%v,%v,%v): %v", tt.yes, tt.no, tt.shares, err)
		}
		proceeds, err := QuoteSellProceeds(newYes, newNo, d(tt.shares), tt.isYes)
		if err != nil {
			t.Fatalf("sell(%v): %v", tt.shares, err)
		}
		if proceeds.GreaterThan(cost.Add(epsilon)) {
			t.Errorf("round-trip profit: pools=(%v,%v) shares=%v cost=%s proceeds=%s",
				tt.yes, tt.no, tt.shares, cost, proceeds)
		}
	}
}

func TestApplySell_PoolDirections(t *testing.T) {
	newYes, newNo, proceeds, err := ApplySell(d(950), d(1052), d(50), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !newYes.Equal(d(1000)) {
		t.Errorf("yesPool should grow by shares: expected 1000, got %s", newYes)
	}
	if !newNo.Equal(d(1052).Sub(proceeds)) {
		t.Errorf("noPool should shrink by proceeds: got %s", newNo)
	}
}

// --- Spot price tests ---

func TestSpotPrice_Balanced(t *testing.T) {
	p := SpotPrice(d(1000), d(1000), true)
	if !p.Equal(d(0.5)) {
		t.Errorf("balanced pools should price at 0.5, got %s", p)
	}
}

func TestSpotPrice_SumsToOne(t *testing.T) {
	one := decimal.NewFromInt(1)
	tests := []struct{ yes, no float64 }{
		{1000, 1000}, {950, 1052.63}, {1, 99}, {123.4, 567.8},
	}
	for _, tt := range tests {
		sum := SpotPrice(d(tt.yes), d(tt.no), true).Add(SpotPrice(d(tt.yes), d(tt.no), false))
		if sum.Sub(one).Abs().GreaterThan(d(0.00000002)) {
			t.Errorf("prices should sum to 1 for pools (%v,%v), got %s", tt.yes, tt.no, sum)
		}
	}
}

func TestSpotPrice_EmptyPools(t *testing.T) {
	p := SpotPrice(decimal.Zero, decimal.Zero, true)
	if !p.Equal(d(0.5)) {
		t.Errorf("empty pools should price at 0.5, got %s", p)
	}
}

func TestSpotPrice_YesDemandRaisesYesPrice(t *testing.T) {
	// After YES buys, yesPool shrinks and noPool grows → YES price rises.
	before := SpotPrice(d(1000), d(1000), true)
	after := SpotPrice(d(950), d(1052.63), true)
	if after.LessThanOrEqual(before) {
		t.Errorf("YES price should rise after YES buys: before=%s after=%s", before, after)
	}
}

// --- MaxBuyShares ---

func TestMaxBuyShares(t *testing.T) {
	max := MaxBuyShares(d(400), d(900), true)
	if !max.Equal(d(400)) {
		t.Errorf("expected YES max 400, got %s", max)
	}
	max = MaxBuyShares(d(400), d(900), false)
	if !max.Equal(d(900)) {
		t.Errorf("expected NO max 900, got %s", max)
	}
}
