// Package marketcache provides a read-through cache of market state,
// refreshed by polling. It feeds the order validator and the position
// ledger with possibly-stale market data; staleness is expected and
// bounded by the slippage tolerance, not by cache consistency
// guarantees. A failed refresh keeps the last-known value
// (stale-but-available) rather than blocking dependent reads.
package marketcache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/amm"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/model"
)

// DefaultPollInterval matches the reference UI's ~2s market polling.
const DefaultPollInterval = 2 * time.Second

// DefaultFetchTimeout bounds each upstream fetch so a slow source never
// blocks the poll loop or a read-through miss indefinitely.
const DefaultFetchTimeout = 5 * time.Second

// Source is the upstream, authoritative market reader.
type Source interface {
	GetMarket(ctx context.Context, id string) (*model.Market, error)
}

type entry struct {
	market    model.Market
	fetchedAt time.Time
}

// Cache is a read-through market state cache keyed by market ID.
// Reads may race with refresh; callers get the last completed snapshot.
type Cache struct {
	source   Source
	interval time.Duration
	timeout  time.Duration

	mu      sync.RWMutex
	entries map[string]entry
}

// New creates a cache over the given source. Non-positive durations
// fall back to the defaults.
func New(source Source, interval, timeout time.Duration) *Cache {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Cache{
		source:   source,
		interval: interval,
		timeout:  timeout,
		entries:  make(map[string]entry),
	}
}

// GetMarket returns the cached market, fetching it from the source on a
// miss. The returned value is a copy; callers may not mutate shared
// cache state.
func (c *Cache) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if ok {
		m := e.market
		return &m, nil
	}
	return c.fetch(ctx, id)
}

// SpotPrice returns the latest known spot price for one side of a
// market, for position valuation.
func (c *Cache) SpotPrice(ctx context.Context, marketID string, side model.Side) (decimal.Decimal, error) {
	m, err := c.GetMarket(ctx, marketID)
	if err != nil {
		return decimal.Zero, err
	}
	return amm.SpotPrice(m.YesPool, m.NoPool, side.IsYes()), nil
}

// Invalidate drops the cached entry; the next read fetches fresh state.
// Called after a fill so the next quote sees the post-trade pools.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// Refresh forces a fetch of the market, bypassing the cached entry.
func (c *Cache) Refresh(ctx context.Context, id string) (*model.Market, error) {
	return c.fetch(ctx, id)
}

// FetchedAt returns when the entry was last refreshed, and whether it
// is cached at all.
func (c *Cache) FetchedAt(id string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e.fetchedAt, ok
}

func (c *Cache) fetch(ctx context.Context, id string) (*model.Market, error) {
	fctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	m, err := c.source.GetMarket(fctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[id] = entry{market: *m, fetchedAt: time.Now().UTC()}
	c.mu.Unlock()

	cp := *m
	return &cp, nil
}

// Run polls all tracked markets on the configured interval until the
// context is cancelled. A failed refresh logs a warning and leaves the
// entry at its last-known value.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refreshAll(ctx)
		}
	}
}

func (c *Cache) refreshAll(ctx context.Context) {
	c.mu.RLock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	for _, id := range ids {
		if _, err := c.fetch(ctx, id); err != nil {
			slog.Warn("market refresh failed, keeping stale entry",
				"market", id, "err", err)
		}
	}
}
