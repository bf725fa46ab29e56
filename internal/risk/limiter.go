// Package risk implements position limits that account for thematic
// correlation between markets.
//
// When an election cycle spawns twenty markets, an account buying YES
// on all of them has correlated risk. This package detects correlation
// through shared category tags and enforces aggregate exposure limits
// on top of the per-market cap.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrPerMarketLimitExceeded is returned when a trade would push a
	// single market's exposure beyond the per-market maximum.
	ErrPerMarketLimitExceeded = errors.New("risk: per-market exposure limit exceeded")

	// ErrCorrelatedLimitExceeded is returned when a trade would push the
	// aggregate exposure across category-correlated markets beyond the
	// correlated maximum.
	ErrCorrelatedLimitExceeded = errors.New("risk: correlated exposure limit exceeded")
)

// Exposure is an account's current cost-basis exposure in one market,
// tagged with the market's categories for correlation grouping.
type Exposure struct {
	MarketID   string
	Categories []string
	Amount     decimal.Decimal
}

// ExposureLimiter enforces exposure limits with correlation awareness.
// Two markets are correlated when they share at least one category tag.
type ExposureLimiter struct {
	// MaxPerMarket is the maximum absolute exposure in any single market.
	MaxPerMarket decimal.Decimal

	// MaxCorrelated is the maximum aggregate absolute exposure across
	// all markets sharing a category with the traded market.
	MaxCorrelated decimal.Decimal
}

// NewExposureLimiter creates a limiter with the given per-market and
// correlated exposure limits.
func NewExposureLimiter(maxPerMarket, maxCorrelated decimal.Decimal) *ExposureLimiter {
	return &ExposureLimiter{
		MaxPerMarket:  maxPerMarket,
		MaxCorrelated: maxCorrelated,
	}
}

// CheckLimit validates whether a trade respects exposure limits.
//
// Parameters:
//   - marketID, categories: the market being traded and its tags
//   - exposureDelta: signed change in exposure (+buy / -sell)
//   - existing: the account's current per-market exposures
//
// Returns nil if the trade is within limits, or an error describing the
// violation.
func (l *ExposureLimiter) CheckLimit(
	marketID string,
	categories []string,
	exposureDelta decimal.Decimal,
	existing []Exposure,
) error {
	// 1. Per-market limit.
	var currentInMarket decimal.Decimal
	for _, e := range existing {
		if e.MarketID == marketID {
			currentInMarket = e.Amount
			break
		}
	}
	newPosition := currentInMarket.Add(exposureDelta)

	if newPosition.Abs().GreaterThan(l.MaxPerMarket) {
		return ErrPerMarketLimitExceeded
	}

	// 2. Correlated exposure: sum |exposure| across markets sharing a tag.
	totalCorrelated := newPosition.Abs()
	for _, e := range existing {
		if e.MarketID == marketID {
			continue // already counted via newPosition above
		}
		if sharesCategory(categories, e.Categories) {
			totalCorrelated = totalCorrelated.Add(e.Amount.Abs())
		}
	}

	if totalCorrelated.GreaterThan(l.MaxCorrelated) {
		return ErrCorrelatedLimitExceeded
	}

	return nil
}

func sharesCategory(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
