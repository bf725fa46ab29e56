// Package store defines the persistence interface for markets and the
// immutable trade log. Implementations include PostgreSQL (source of
// truth), SQLite (single-node deployments), Redis (read-through cache
// wrapper), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/model"
)

// ErrNotFound is returned when a market does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface.
type Store interface {
	// --- Market operations ---

	// CreateMarket persists a new market.
	CreateMarket(ctx context.Context, market *model.Market) error

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// ListMarkets returns all markets, newest first.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// UpdateMarketPools updates reserves and cumulative volume after a fill.
	UpdateMarketPools(ctx context.Context, id string, yesPool, noPool, volume decimal.Decimal) error

	// ResolveMarket marks a market resolved with its outcome. Pools are
	// frozen from this point on.
	ResolveMarket(ctx context.Context, id string, outcome bool) error

	// --- Immutable trade log ---

	// InsertTradeRecord appends an immutable trade record.
	InsertTradeRecord(ctx context.Context, record *model.TradeRecord) error

	// GetTradesByMarket returns a market's trades in execution order.
	// limit <= 0 means no limit.
	GetTradesByMarket(ctx context.Context, marketID string, limit int) ([]model.TradeRecord, error)

	// GetTradesByAccount returns an account's trades in execution order,
	// used to rebuild the position ledger after local-state loss.
	GetTradesByAccount(ctx context.Context, accountID string) ([]model.TradeRecord, error)

	// ListAccounts returns the distinct account IDs present in the trade
	// log, so the ledger can be rebuilt account by account at startup.
	ListAccounts(ctx context.Context) ([]string, error)
}
