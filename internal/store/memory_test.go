package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/model"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/store"
)

func newMarket(id string, createdAt time.Time) *model.Market {
	return &model.Market{
		ID:        id,
		Creator:   "acct-creator",
		Question:  "Will it settle YES?",
		YesPool:   decimal.NewFromInt(1000),
		NoPool:    decimal.NewFromInt(1000),
		Volume:    decimal.Zero,
		EndTime:   createdAt.Add(24 * time.Hour),
		CreatedAt: createdAt,
	}
}

func TestMemoryStore_MarketLifecycle(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	m := newMarket("mkt-1", time.Now().UTC())
	require.NoError(t, s.CreateMarket(ctx, m))
	require.Error(t, s.CreateMarket(ctx, m), "duplicate create must fail")

	got, err := s.GetMarket(ctx, "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, "mkt-1", got.ID)

	// Returned value is a copy; mutating it must not touch the store.
	got.YesPool = decimal.NewFromInt(1)
	again, err := s.GetMarket(ctx, "mkt-1")
	require.NoError(t, err)
	assert.True(t, again.YesPool.Equal(decimal.NewFromInt(1000)))

	_, err = s.GetMarket(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryStore_ListMarkets_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	base := time.Now().UTC()
	require.NoError(t, s.CreateMarket(ctx, newMarket("old", base.Add(-time.Hour))))
	require.NoError(t, s.CreateMarket(ctx, newMarket("new", base)))

	markets, err := s.ListMarkets(ctx)
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, "new", markets[0].ID)
	assert.Equal(t, "old", markets[1].ID)
}

func TestMemoryStore_UpdatePoolsAndResolve(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.CreateMarket(ctx, newMarket("mkt-1", time.Now().UTC())))

	require.NoError(t, s.UpdateMarketPools(ctx, "mkt-1",
		decimal.NewFromInt(950), decimal.NewFromFloat(1052.63), decimal.NewFromInt(52)))

	m, err := s.GetMarket(ctx, "mkt-1")
	require.NoError(t, err)
	assert.True(t, m.YesPool.Equal(decimal.NewFromInt(950)))
	assert.True(t, m.Volume.Equal(decimal.NewFromInt(52)))

	require.NoError(t, s.ResolveMarket(ctx, "mkt-1", true))
	m, err = s.GetMarket(ctx, "mkt-1")
	require.NoError(t, err)
	require.True(t, m.Resolved)
	require.NotNil(t, m.Outcome)
	assert.True(t, *m.Outcome)

	// Resolution is terminal.
	assert.Error(t, s.ResolveMarket(ctx, "mkt-1", false))
	assert.ErrorIs(t, s.UpdateMarketPools(ctx, "missing",
		decimal.Zero, decimal.Zero, decimal.Zero), store.ErrNotFound)
}

func TestMemoryStore_TradeLog(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	mk := func(id, account, market string) *model.TradeRecord {
		return &model.TradeRecord{
			ID:        id,
			AccountID: account,
			MarketID:  market,
			Side:      model.SideYes,
			Type:      model.TradeBuy,
			Shares:    decimal.NewFromInt(10),
			Price:     decimal.NewFromFloat(0.5),
			Cost:      decimal.NewFromInt(5),
			Timestamp: time.Now().UTC(),
		}
	}
	require.NoError(t, s.InsertTradeRecord(ctx, mk("t1", "alice", "mkt-1")))
	require.NoError(t, s.InsertTradeRecord(ctx, mk("t2", "bob", "mkt-1")))
	require.NoError(t, s.InsertTradeRecord(ctx, mk("t3", "alice", "mkt-2")))

	byMarket, err := s.GetTradesByMarket(ctx, "mkt-1", 0)
	require.NoError(t, err)
	assert.Len(t, byMarket, 2)

	limited, err := s.GetTradesByMarket(ctx, "mkt-1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "t2", limited[0].ID, "limit keeps the newest records")

	byAccount, err := s.GetTradesByAccount(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, byAccount, 2)
	assert.Equal(t, "t1", byAccount[0].ID)
	assert.Equal(t, "t3", byAccount[1].ID)
}
