// Package model defines the core domain types shared across the engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies which outcome of a binary market a trade targets.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// ParseSide validates and normalizes a side string.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideYes, SideNo:
		return Side(s), nil
	}
	return "", fmt.Errorf("model: side must be YES or NO, got %q", s)
}

// IsYes reports whether the side is the YES outcome.
func (s Side) IsYes() bool { return s == SideYes }

// Opposite returns the other side of the market.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// TradeType distinguishes buys from sells.
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// ParseTradeType validates and normalizes a trade type string.
func ParseTradeType(s string) (TradeType, error) {
	switch TradeType(s) {
	case TradeBuy, TradeSell:
		return TradeType(s), nil
	}
	return "", fmt.Errorf("model: trade type must be BUY or SELL, got %q", s)
}

// Market is the state of one binary prediction market. YesPool and NoPool
// are the constant-product AMM reserves in settlement-asset units; they are
// mutated only by the trade gateway and frozen once Resolved is set.
type Market struct {
	ID         string          `json:"id" db:"id"`
	Creator    string          `json:"creator" db:"creator"`
	Question   string          `json:"question" db:"question"`
	Categories []string        `json:"categories" db:"categories"`
	YesPool    decimal.Decimal `json:"yes_pool" db:"yes_pool"`
	NoPool     decimal.Decimal `json:"no_pool" db:"no_pool"`
	Volume     decimal.Decimal `json:"volume" db:"volume"`
	Resolved   bool            `json:"resolved" db:"resolved"`
	Outcome    *bool           `json:"outcome,omitempty" db:"outcome"` // set exactly once, with Resolved
	EndTime    time.Time       `json:"end_time" db:"end_time"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// Open reports whether the market still accepts trades at the given time.
func (m *Market) Open(at time.Time) bool {
	return !m.Resolved && at.Before(m.EndTime)
}

// HasCategory reports whether the market is tagged with the category.
func (m *Market) HasCategory(category string) bool {
	for _, c := range m.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// TradeRecord is an immutable, append-only record of an executed fill.
// Once written these are never modified or deleted; the position ledger
// can be reconstructed from them alone.
type TradeRecord struct {
	ID        string          `json:"id" db:"id"`
	AccountID string          `json:"account_id" db:"account_id"`
	MarketID  string          `json:"market_id" db:"market_id"`
	Side      Side            `json:"side" db:"side"`
	Type      TradeType       `json:"type" db:"type"`
	Shares    decimal.Decimal `json:"shares" db:"shares"`
	Price     decimal.Decimal `json:"price" db:"price"` // average fill price per share
	Cost      decimal.Decimal `json:"cost" db:"cost"`   // total cost (buys) or proceeds (sells)
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// Fill is the authoritative execution result returned by the trade gateway.
type Fill struct {
	TradeID   string          `json:"trade_id"`
	AccountID string          `json:"account_id"`
	MarketID  string          `json:"market_id"`
	Side      Side            `json:"side"`
	Type      TradeType       `json:"type"`
	Shares    decimal.Decimal `json:"shares"`
	Price     decimal.Decimal `json:"price"` // average execution price per share
	Cost      decimal.Decimal `json:"cost"`  // total paid (buy) or received (sell)
	Timestamp time.Time       `json:"timestamp"`
}

// Record converts a fill into its immutable trade-log form.
func (f Fill) Record() TradeRecord {
	return TradeRecord{
		ID:        f.TradeID,
		AccountID: f.AccountID,
		MarketID:  f.MarketID,
		Side:      f.Side,
		Type:      f.Type,
		Shares:    f.Shares,
		Price:     f.Price,
		Cost:      f.Cost,
		Timestamp: f.Timestamp,
	}
}

// Lot is a discrete acquisition used for FIFO cost-basis accounting.
// Created on every accepted buy fill, consumed oldest-first by sells
// and by resolution settlement.
type Lot struct {
	MarketID  string          `json:"market_id"`
	Side      Side            `json:"side"`
	Shares    decimal.Decimal `json:"shares"` // remaining, always positive
	Price     decimal.Decimal `json:"price"`  // per-share cost at acquisition
	Timestamp time.Time       `json:"timestamp"`
}

// Cost returns the remaining cost basis of the lot.
func (l Lot) Cost() decimal.Decimal {
	return l.Shares.Mul(l.Price)
}

// Position is a derived snapshot of an account's holdings on one side of
// one market. Shares always equals the sum of the remaining lot shares.
type Position struct {
	AccountID    string          `json:"account_id"`
	MarketID     string          `json:"market_id"`
	Side         Side            `json:"side"`
	Shares       decimal.Decimal `json:"shares"`
	AvgCost      decimal.Decimal `json:"avg_cost"`      // cost-weighted average of remaining lots
	CostBasis    decimal.Decimal `json:"cost_basis"`    // Σ lot.shares * lot.price
	CurrentValue decimal.Decimal `json:"current_value"` // shares * latest spot price
	UnrealizedPL decimal.Decimal `json:"unrealized_pl"` // currentValue - costBasis
}

// PortfolioSummary aggregates an account's positions, cash, and P&L.
type PortfolioSummary struct {
	AccountID         string          `json:"account_id"`
	Positions         []Position      `json:"positions"`
	TotalValue        decimal.Decimal `json:"total_value"` // Σ currentValue + availableFunds
	TotalRealizedPL   decimal.Decimal `json:"total_realized_pl"`
	TotalUnrealizedPL decimal.Decimal `json:"total_unrealized_pl"`
	AvailableFunds    decimal.Decimal `json:"available_funds"`
}
