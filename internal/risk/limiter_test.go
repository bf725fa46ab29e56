package risk

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestCheckLimit_WithinLimits(t *testing.T) {
	limiter := NewExposureLimiter(d(1000), d(5000))

	err := limiter.CheckLimit("mkt-a", []string{"politics"}, d(100), nil)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_PerMarketExceeded(t *testing.T) {
	limiter := NewExposureLimiter(d(1000), d(5000))

	// Existing position of 950 + new 100 = 1050 > 1000.
	existing := []Exposure{
		{MarketID: "mkt-a", Categories: []string{"politics"}, Amount: d(950)},
	}

	err := limiter.CheckLimit("mkt-a", []string{"politics"}, d(100), existing)
	if err != ErrPerMarketLimitExceeded {
		t.Errorf("expected ErrPerMarketLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_CorrelatedExceeded(t *testing.T) {
	limiter := NewExposureLimiter(d(1000), d(2000))

	existing := []Exposure{
		{MarketID: "mkt-a", Categories: []string{"politics", "us"}, Amount: d(800)},
		{MarketID: "mkt-b", Categories: []string{"politics"}, Amount: d(800)},
		{MarketID: "mkt-c", Categories: []string{"politics"}, Amount: d(300)},
	}

	// New trade of 200 in another politics market:
	// total = 200 + 800 + 800 + 300 = 2100 > 2000.
	err := limiter.CheckLimit("mkt-d", []string{"politics"}, d(200), existing)
	if err != ErrCorrelatedLimitExceeded {
		t.Errorf("expected ErrCorrelatedLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_UnrelatedMarketsIgnored(t *testing.T) {
	limiter := NewExposureLimiter(d(1000), d(2000))

	existing := []Exposure{
		{MarketID: "mkt-a", Categories: []string{"politics"}, Amount: d(800)},
		{MarketID: "mkt-b", Categories: []string{"sports"}, Amount: d(900)},
	}

	// Correlated total = 500 + 800 = 1300 < 2000 (sports market excluded).
	err := limiter.CheckLimit("mkt-c", []string{"politics"}, d(500), existing)
	if err != nil {
		t.Errorf("unrelated markets should be ignored, got %v", err)
	}
}

func TestCheckLimit_SellReducesExposure(t *testing.T) {
	limiter := NewExposureLimiter(d(1000), d(5000))

	existing := []Exposure{
		{MarketID: "mkt-a", Categories: []string{"politics"}, Amount: d(800)},
	}

	// Selling (negative delta) reduces exposure: 800 - 200 = 600 < 1000.
	err := limiter.CheckLimit("mkt-a", []string{"politics"}, d(-200), existing)
	if err != nil {
		t.Errorf("sell should reduce exposure, got %v", err)
	}
}

func TestCheckLimit_ElectionCycleScenario(t *testing.T) {
	// Fifteen markets tagged "election-2026", each with exposure 200.
	// MaxCorrelated = 3000 caps the account's total across the cycle.
	limiter := NewExposureLimiter(d(500), d(3000))

	var existing []Exposure
	for i := 0; i < 15; i++ {
		existing = append(existing, Exposure{
			MarketID:   "mkt-" + string(rune('a'+i)),
			Categories: []string{"election-2026"},
			Amount:     d(200),
		})
	}

	// Total existing = 15 × 200 = 3000. Adding 100 more → 3100 > 3000.
	err := limiter.CheckLimit("mkt-z", []string{"election-2026"}, d(100), existing)
	if err != ErrCorrelatedLimitExceeded {
		t.Errorf("expected correlated limit exceeded across the cycle, got %v", err)
	}
}

func TestCheckLimit_NilExposures(t *testing.T) {
	limiter := NewExposureLimiter(d(1000), d(5000))

	err := limiter.CheckLimit("mkt-a", []string{"politics"}, d(500), nil)
	if err != nil {
		t.Errorf("nil exposures should be treated as empty, got %v", err)
	}
}
