package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/amm"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/model"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/order"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/store"
)

// Simulator is the in-process gateway: it executes fills directly
// against the store's market rows. Execution is serialized per market so
// two concurrent orders cannot both quote against the same reserves.
type Simulator struct {
	store store.Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSimulator creates a gateway over the given store.
func NewSimulator(s store.Store) *Simulator {
	return &Simulator{
		store: s,
		now:   func() time.Time { return time.Now().UTC() },
		locks: make(map[string]*sync.Mutex),
	}
}

func (g *Simulator) marketLock(id string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[id]
	if !ok {
		l = &sync.Mutex{}
		g.locks[id] = l
	}
	return l
}

// Execute re-quotes the order against authoritative reserves, enforces
// its slippage bound, and commits the fill. The validator's quote is an
// estimate; only the amount computed here is real.
func (g *Simulator) Execute(ctx context.Context, vo *order.ValidatedOrder) (*model.Fill, error) {
	lock := g.marketLock(vo.MarketID)
	lock.Lock()
	defer lock.Unlock()

	m, err := g.store.GetMarket(ctx, vo.MarketID)
	if err != nil {
		return nil, fmt.Errorf("gateway: load market %s: %w", vo.MarketID, err)
	}
	if !m.Open(g.now()) {
		return nil, order.ErrMarketClosed
	}

	var newYes, newNo, executed decimal.Decimal
	switch vo.Type {
	case model.TradeBuy:
		newYes, newNo, executed, err = amm.ApplyBuy(m.YesPool, m.NoPool, vo.Shares, vo.Side.IsYes())
		if err != nil {
			return nil, fmt.Errorf("gateway: %w", err)
		}
		if executed.GreaterThan(vo.Bound) {
			slog.Info("rejecting fill over slippage bound",
				"order", vo.ID, "market", vo.MarketID,
				"quote", vo.Quote, "bound", vo.Bound, "executed", executed)
			return nil, fmt.Errorf("%w: cost %s above max %s", order.ErrSlippageExceeded, executed, vo.Bound)
		}

	case model.TradeSell:
		newYes, newNo, executed, err = amm.ApplySell(m.YesPool, m.NoPool, vo.Shares, vo.Side.IsYes())
		if err != nil {
			return nil, fmt.Errorf("gateway: %w", err)
		}
		if executed.LessThan(vo.Bound) {
			slog.Info("rejecting fill under slippage bound",
				"order", vo.ID, "market", vo.MarketID,
				"quote", vo.Quote, "bound", vo.Bound, "executed", executed)
			return nil, fmt.Errorf("%w: proceeds %s below min %s", order.ErrSlippageExceeded, executed, vo.Bound)
		}

	default:
		return nil, fmt.Errorf("gateway: unknown trade type %q", vo.Type)
	}

	// Commit: pools first, then the immutable record. Volume counts the
	// settlement-asset amount moved regardless of direction.
	volume := m.Volume.Add(executed)
	if err := g.store.UpdateMarketPools(ctx, m.ID, newYes, newNo, volume); err != nil {
		return nil, fmt.Errorf("gateway: update pools: %w", err)
	}

	fill := &model.Fill{
		TradeID:   vo.ID,
		AccountID: vo.AccountID,
		MarketID:  vo.MarketID,
		Side:      vo.Side,
		Type:      vo.Type,
		Shares:    vo.Shares,
		Price:     executed.Div(vo.Shares).Round(amm.PriceScale),
		Cost:      executed,
		Timestamp: g.now(),
	}

	record := fill.Record()
	if err := g.store.InsertTradeRecord(ctx, &record); err != nil {
		// The reserves must never drift from the trade log: put the
		// prior pools back before reporting the failure.
		if rbErr := g.store.UpdateMarketPools(ctx, m.ID, m.YesPool, m.NoPool, m.Volume); rbErr != nil {
			slog.Error("pool rollback failed after trade record error",
				"market", m.ID, "record_err", err, "rollback_err", rbErr)
		}
		return nil, fmt.Errorf("gateway: record trade: %w", err)
	}

	return fill, nil
}
