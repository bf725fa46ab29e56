package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/ledger"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// stubPrices returns a fixed spot price for every market/side.
type stubPrices struct {
	price decimal.Decimal
}

func (s *stubPrices) SpotPrice(_ context.Context, _ string, _ model.Side) (decimal.Decimal, error) {
	return s.price, nil
}

func buyFill(account, market string, side model.Side, shares, price float64) model.Fill {
	return model.Fill{
		TradeID:   "t-" + market,
		AccountID: account,
		MarketID:  market,
		Side:      side,
		Type:      model.TradeBuy,
		Shares:    d(shares),
		Price:     d(price),
		Cost:      d(shares * price),
		Timestamp: time.Now().UTC(),
	}
}

func sellFill(account, market string, side model.Side, shares, price float64) model.Fill {
	return model.Fill{
		TradeID:   "t-sell-" + market,
		AccountID: account,
		MarketID:  market,
		Side:      side,
		Type:      model.TradeSell,
		Shares:    d(shares),
		Price:     d(price),
		Cost:      d(shares * price),
		Timestamp: time.Now().UTC(),
	}
}

func TestApplyFill_BuyCreatesLotAndDebitsCash(t *testing.T) {
	l := ledger.New(&stubPrices{price: d(0.5)})
	require.NoError(t, l.Deposit("acct", d(100)))

	require.NoError(t, l.ApplyFill(buyFill("acct", "mkt", model.SideYes, 50, 0.40)))

	assert.True(t, l.HeldShares("acct", "mkt", model.SideYes).Equal(d(50)))
	assert.True(t, l.AvailableFunds("acct").Equal(d(80)), "100 - 50*0.40")
	assert.Len(t, l.TradeLog("acct"), 1)
}

func TestApplyFill_FIFOMatching(t *testing.T) {
	// Lots [(100, $0.40), (50, $0.60)]; sell 120 @ $0.70 matches
	// 100 @ 0.40 (+$30) then 20 @ 0.60 (+$2): realized $32, one
	// 30-share lot at $0.60 remains.
	l := ledger.New(&stubPrices{price: d(0.70)})
	require.NoError(t, l.Deposit("acct", d(1000)))

	require.NoError(t, l.ApplyFill(buyFill("acct", "mkt", model.SideYes, 100, 0.40)))
	require.NoError(t, l.ApplyFill(buyFill("acct", "mkt", model.SideYes, 50, 0.60)))
	require.NoError(t, l.ApplyFill(sellFill("acct", "mkt", model.SideYes, 120, 0.70)))

	assert.True(t, l.RealizedPL("acct").Equal(d(32)),
		"realized should be $32, got %s", l.RealizedPL("acct"))
	assert.True(t, l.HeldShares("acct", "mkt", model.SideYes).Equal(d(30)))

	pos, err := l.PositionOf(context.Background(), "acct", "mkt", model.SideYes)
	require.NoError(t, err)
	assert.True(t, pos.AvgCost.Equal(d(0.60)), "remaining lot is 30 @ 0.60, got avg %s", pos.AvgCost)
	assert.True(t, pos.CostBasis.Equal(d(18)))
}

func TestApplyFill_SellExhaustionHaltsPosition(t *testing.T) {
	l := ledger.New(&stubPrices{price: d(0.5)})
	require.NoError(t, l.Deposit("acct", d(1000)))
	require.NoError(t, l.ApplyFill(buyFill("acct", "mkt", model.SideYes, 50, 0.40)))

	err := l.ApplyFill(sellFill("acct", "mkt", model.SideYes, 80, 0.50))
	require.ErrorIs(t, err, ledger.ErrInsufficientLots)

	// Further mutation of the halted position is rejected.
	err = l.ApplyFill(buyFill("acct", "mkt", model.SideYes, 10, 0.50))
	assert.ErrorIs(t, err, ledger.ErrPositionHalted)

	// Other positions are unaffected.
	assert.NoError(t, l.ApplyFill(buyFill("acct", "other", model.SideNo, 10, 0.50)))
}

func TestPositionOf_Valuation(t *testing.T) {
	l := ledger.New(&stubPrices{price: d(0.55)})
	require.NoError(t, l.Deposit("acct", d(1000)))
	require.NoError(t, l.ApplyFill(buyFill("acct", "mkt", model.SideYes, 100, 0.40)))

	pos, err := l.PositionOf(context.Background(), "acct", "mkt", model.SideYes)
	require.NoError(t, err)

	assert.True(t, pos.Shares.Equal(d(100)))
	assert.True(t, pos.CurrentValue.Equal(d(55)), "100 * 0.55")
	assert.True(t, pos.UnrealizedPL.Equal(d(15)), "55 - 40")
}

func TestPositionOf_EmptyPosition(t *testing.T) {
	l := ledger.New(&stubPrices{price: d(0.5)})
	pos, err := l.PositionOf(context.Background(), "acct", "mkt", model.SideYes)
	require.NoError(t, err)
	assert.True(t, pos.Shares.IsZero())
	assert.True(t, pos.UnrealizedPL.IsZero())
}

func TestPortfolioSummary(t *testing.T) {
	l := ledger.New(&stubPrices{price: d(0.50)})
	require.NoError(t, l.Deposit("acct", d(200)))

	require.NoError(t, l.ApplyFill(buyFill("acct", "mkt-a", model.SideYes, 100, 0.40))) // cost 40
	require.NoError(t, l.ApplyFill(buyFill("acct", "mkt-b", model.SideNo, 50, 0.60)))   // cost 30
	require.NoError(t, l.ApplyFill(sellFill("acct", "mkt-a", model.SideYes, 40, 0.50))) // +20 cash, realized +4

	s, err := l.PortfolioSummary(context.Background(), "acct")
	require.NoError(t, err)

	// cash: 200 - 40 - 30 + 20 = 150
	assert.True(t, s.AvailableFunds.Equal(d(150)), "funds %s", s.AvailableFunds)
	assert.True(t, s.TotalRealizedPL.Equal(d(4)), "realized %s", s.TotalRealizedPL)
	// open: 60 YES @0.40 (value 30, basis 24) + 50 NO @0.60 (value 25, basis 30)
	assert.True(t, s.TotalUnrealizedPL.Equal(d(1)), "unrealized %s", s.TotalUnrealizedPL)
	assert.True(t, s.TotalValue.Equal(d(205)), "150 + 30 + 25, got %s", s.TotalValue)
	assert.Len(t, s.Positions, 2)
}

func TestClaim_WinningAndLosingSides(t *testing.T) {
	l := ledger.New(&stubPrices{price: d(0.5)})
	require.NoError(t, l.Deposit("acct", d(1000)))

	require.NoError(t, l.ApplyFill(buyFill("acct", "mkt", model.SideYes, 100, 0.40))) // cost 40
	require.NoError(t, l.ApplyFill(buyFill("acct", "mkt", model.SideNo, 50, 0.30)))   // cost 15

	payout, err := l.Claim("acct", "mkt", true) // YES wins
	require.NoError(t, err)

	// Winning side: 100 shares at 1.0 → payout 100, realized +100*(1-0.40)=+60.
	// Losing side: realized -15.
	assert.True(t, payout.Equal(d(100)), "payout %s", payout)
	assert.True(t, l.RealizedPL("acct").Equal(d(45)), "realized %s", l.RealizedPL("acct"))
	// cash: 1000 - 40 - 15 + 100 = 1045
	assert.True(t, l.AvailableFunds("acct").Equal(d(1045)))
	// Positions zeroed.
	assert.True(t, l.HeldShares("acct", "mkt", model.SideYes).IsZero())
	assert.True(t, l.HeldShares("acct", "mkt", model.SideNo).IsZero())
}

func TestClaim_Idempotent(t *testing.T) {
	l := ledger.New(&stubPrices{price: d(0.5)})
	require.NoError(t, l.Deposit("acct", d(1000)))
	require.NoError(t, l.ApplyFill(buyFill("acct", "mkt", model.SideYes, 100, 0.40)))

	first, err := l.Claim("acct", "mkt", true)
	require.NoError(t, err)
	realizedAfterFirst := l.RealizedPL("acct")
	fundsAfterFirst := l.AvailableFunds("acct")

	second, err := l.Claim("acct", "mkt", true)
	require.NoError(t, err)

	assert.True(t, first.Equal(d(100)))
	assert.True(t, second.IsZero(), "second claim must be a no-op")
	assert.True(t, l.RealizedPL("acct").Equal(realizedAfterFirst))
	assert.True(t, l.AvailableFunds("acct").Equal(fundsAfterFirst))
	assert.True(t, l.Claimed("acct", "mkt"))
}

func TestClaim_HaltedSideBlocksWholeClaim(t *testing.T) {
	l := ledger.New(&stubPrices{price: d(0.5)})
	require.NoError(t, l.Deposit("acct", d(1000)))

	require.NoError(t, l.ApplyFill(buyFill("acct", "mkt", model.SideYes, 100, 0.40)))
	require.NoError(t, l.ApplyFill(buyFill("acct", "mkt", model.SideNo, 50, 0.30)))
	fundsBefore := l.AvailableFunds("acct")

	// Halt the losing side by overselling it.
	err := l.ApplyFill(sellFill("acct", "mkt", model.SideNo, 80, 0.50))
	require.ErrorIs(t, err, ledger.ErrInsufficientLots)

	// The claim must refuse before touching either side: no payout, no
	// cleared winning lots, no claimed flag.
	payout, err := l.Claim("acct", "mkt", true)
	assert.ErrorIs(t, err, ledger.ErrPositionHalted)
	assert.True(t, payout.IsZero())
	assert.True(t, l.HeldShares("acct", "mkt", model.SideYes).Equal(d(100)),
		"winning lots must remain intact")
	assert.True(t, l.AvailableFunds("acct").Equal(fundsBefore))
	assert.False(t, l.Claimed("acct", "mkt"))
}

func TestRebuild_ReplaysTradeLog(t *testing.T) {
	prices := &stubPrices{price: d(0.70)}
	l := ledger.New(prices)
	require.NoError(t, l.Deposit("acct", d(1000)))

	require.NoError(t, l.ApplyFill(buyFill("acct", "mkt", model.SideYes, 100, 0.40)))
	require.NoError(t, l.ApplyFill(buyFill("acct", "mkt", model.SideYes, 50, 0.60)))
	require.NoError(t, l.ApplyFill(sellFill("acct", "mkt", model.SideYes, 120, 0.70)))
	log := l.TradeLog("acct")
	funds := l.AvailableFunds("acct")

	// Fresh ledger, same deposits: replaying the authoritative log must
	// reproduce lots and realized P&L exactly.
	restored := ledger.New(prices)
	require.NoError(t, restored.Deposit("acct", funds))
	require.NoError(t, restored.Rebuild("acct", log))

	assert.True(t, restored.RealizedPL("acct").Equal(d(32)))
	assert.True(t, restored.HeldShares("acct", "mkt", model.SideYes).Equal(d(30)))
	assert.True(t, restored.AvailableFunds("acct").Equal(funds),
		"rebuild must not re-apply cash movements")

	pos, err := restored.PositionOf(context.Background(), "acct", "mkt", model.SideYes)
	require.NoError(t, err)
	assert.True(t, pos.AvgCost.Equal(d(0.60)))
}

func TestDeposit_RejectsNonPositive(t *testing.T) {
	l := ledger.New(&stubPrices{price: d(0.5)})
	assert.ErrorIs(t, l.Deposit("acct", decimal.Zero), ledger.ErrInvalidAmount)
	assert.ErrorIs(t, l.Deposit("acct", d(-10)), ledger.ErrInvalidAmount)
}
