package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) UpdateMarketPools(ctx context.Context, id string, yesPool, noPool, volume decimal.Decimal) error {
	if err := s.primary.UpdateMarketPools(ctx, id, yesPool, noPool, volume); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, marketKey(id))
	return nil
}

func (s *CachedStore) ResolveMarket(ctx context.Context, id string, outcome bool) error {
	if err := s.primary.ResolveMarket(ctx, id, outcome); err != nil {
		return err
	}
	s.rdb.Del(ctx, marketKey(id))
	return nil
}

func (s *CachedStore) InsertTradeRecord(ctx context.Context, record *model.TradeRecord) error {
	// Trade records are immutable; there is nothing stale to invalidate.
	return s.primary.InsertTradeRecord(ctx, record)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	// Cache miss: read from primary.
	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, m)
	return m, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) GetTradesByMarket(ctx context.Context, marketID string, limit int) ([]model.TradeRecord, error) {
	return s.primary.GetTradesByMarket(ctx, marketID, limit)
}

func (s *CachedStore) GetTradesByAccount(ctx context.Context, accountID string) ([]model.TradeRecord, error) {
	return s.primary.GetTradesByAccount(ctx, accountID)
}

func (s *CachedStore) ListAccounts(ctx context.Context) ([]string, error) {
	return s.primary.ListAccounts(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}

func marketKey(id string) string { return fmt.Sprintf("market:%s", id) }
