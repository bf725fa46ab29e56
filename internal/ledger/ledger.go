// Package ledger maintains per-account position accounting: FIFO lot
// queues, realized and unrealized P&L, cash balances, and portfolio
// aggregation.
//
// The ledger is a client-side mirror of the authoritative trade log. It
// never decides whether a trade happens — it applies fills the gateway
// has already executed, and it can be rebuilt from the immutable trade
// records if local state is lost.
//
// Concurrency: fills for one account must be applied in arrival order
// (FIFO lot consumption is order-dependent), so every mutation runs
// under that account's lock. Different accounts do not contend.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/model"
)

var (
	// ErrInsufficientLots means a sell fill exceeded the tracked lots for
	// its position. This is an accounting integrity violation, not a user
	// error: the validator gates sell size, so reaching this state means
	// the ledger and the authoritative log have diverged. The position is
	// halted pending reconciliation and must not be silently corrected.
	ErrInsufficientLots = errors.New("ledger: sell exceeds tracked lots (integrity violation)")

	// ErrPositionHalted rejects further mutation of a position that hit
	// ErrInsufficientLots.
	ErrPositionHalted = errors.New("ledger: position halted pending reconciliation")

	// ErrInvalidAmount rejects non-positive deposits.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
)

// PriceSource supplies the latest known spot price for valuing open
// positions. Implemented by the market state cache; staleness is
// acceptable for display-grade valuation.
type PriceSource interface {
	SpotPrice(ctx context.Context, marketID string, side model.Side) (decimal.Decimal, error)
}

type posKey struct {
	marketID string
	side     model.Side
}

// book is the lot queue and realized-P&L accumulator for one
// (account, market, side).
type book struct {
	lots     []model.Lot // oldest first
	realized decimal.Decimal
	halted   bool
}

func (b *book) shares() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.lots {
		total = total.Add(l.Shares)
	}
	return total
}

func (b *book) costBasis() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.lots {
		total = total.Add(l.Cost())
	}
	return total
}

// account holds one account's books, cash, and local trade log.
// All fields are guarded by mu (single writer per account).
type account struct {
	mu      sync.Mutex
	funds   decimal.Decimal
	books   map[posKey]*book
	claimed map[string]bool // marketID → resolution already claimed
	records []model.TradeRecord
}

// Ledger is the per-account position accountant.
type Ledger struct {
	prices PriceSource

	mu       sync.RWMutex
	accounts map[string]*account
}

// New creates an empty ledger valuing positions through the given
// price source.
func New(prices PriceSource) *Ledger {
	return &Ledger{
		prices:   prices,
		accounts: make(map[string]*account),
	}
}

// acct returns the account record, creating it on first use.
func (l *Ledger) acct(accountID string) *account {
	l.mu.RLock()
	a, ok := l.accounts[accountID]
	l.mu.RUnlock()
	if ok {
		return a
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok = l.accounts[accountID]; ok {
		return a
	}
	a = &account{
		books:   make(map[posKey]*book),
		claimed: make(map[string]bool),
	}
	l.accounts[accountID] = a
	return a
}

// Deposit credits cash to the account.
func (l *Ledger) Deposit(accountID string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	a := l.acct(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.funds = a.funds.Add(amount)
	return nil
}

// AvailableFunds returns the account's uncommitted cash.
func (l *Ledger) AvailableFunds(accountID string) decimal.Decimal {
	a := l.acct(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.funds
}

// HeldShares returns the open position size for (account, market, side):
// the sum of remaining lot shares.
func (l *Ledger) HeldShares(accountID, marketID string, side model.Side) decimal.Decimal {
	a := l.acct(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.books[posKey{marketID, side}]
	if !ok {
		return decimal.Zero
	}
	return b.shares()
}

// ApplyFill applies an authoritative fill to the account's books. Buys
// append a lot and debit cash; sells consume lots FIFO, accumulate
// realized P&L, and credit cash. A trade record is appended either way.
//
// A sell that exhausts the lots before it is fully matched fails with
// ErrInsufficientLots and halts the position.
func (l *Ledger) ApplyFill(fill model.Fill) error {
	a := l.acct(fill.AccountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applyFill(fill)
}

func (a *account) applyFill(fill model.Fill) error {
	key := posKey{fill.MarketID, fill.Side}
	b, ok := a.books[key]
	if !ok {
		b = &book{}
		a.books[key] = b
	}
	if b.halted {
		return ErrPositionHalted
	}

	switch fill.Type {
	case model.TradeBuy:
		b.lots = append(b.lots, model.Lot{
			MarketID:  fill.MarketID,
			Side:      fill.Side,
			Shares:    fill.Shares,
			Price:     fill.Price,
			Timestamp: fill.Timestamp,
		})
		a.funds = a.funds.Sub(fill.Cost)

	case model.TradeSell:
		if err := b.consumeFIFO(fill.Shares, fill.Price); err != nil {
			b.halted = true
			slog.Error("ledger integrity violation, position halted",
				"account", fill.AccountID,
				"market", fill.MarketID,
				"side", string(fill.Side),
				"sell_shares", fill.Shares.String(),
			)
			return err
		}
		a.funds = a.funds.Add(fill.Cost)

	default:
		return fmt.Errorf("ledger: unknown trade type %q", fill.Type)
	}

	a.records = append(a.records, fill.Record())
	return nil
}

// consumeFIFO matches a sell against the oldest lots first, realizing
// matched * (sellPrice - lot.Price) per slice taken.
func (b *book) consumeFIFO(sellShares, sellPrice decimal.Decimal) error {
	remaining := sellShares
	i := 0
	for i < len(b.lots) && remaining.IsPositive() {
		lot := &b.lots[i]
		matched := decimal.Min(remaining, lot.Shares)
		b.realized = b.realized.Add(matched.Mul(sellPrice.Sub(lot.Price)))
		lot.Shares = lot.Shares.Sub(matched)
		remaining = remaining.Sub(matched)
		if lot.Shares.IsZero() {
			i++
		}
	}
	if remaining.IsPositive() {
		return fmt.Errorf("%w: %s shares unmatched", ErrInsufficientLots, remaining)
	}
	b.lots = b.lots[i:]
	return nil
}

// PositionOf derives the current position snapshot for one
// (account, market, side), valued at the latest known spot price.
func (l *Ledger) PositionOf(ctx context.Context, accountID, marketID string, side model.Side) (model.Position, error) {
	a := l.acct(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.books[posKey{marketID, side}]
	if !ok || len(b.lots) == 0 {
		return model.Position{AccountID: accountID, MarketID: marketID, Side: side}, nil
	}
	return l.snapshot(ctx, accountID, marketID, side, b)
}

func (l *Ledger) snapshot(ctx context.Context, accountID, marketID string, side model.Side, b *book) (model.Position, error) {
	shares := b.shares()
	basis := b.costBasis()

	price, err := l.prices.SpotPrice(ctx, marketID, side)
	if err != nil {
		return model.Position{}, fmt.Errorf("ledger: price %s/%s: %w", marketID, side, err)
	}

	avg := decimal.Zero
	if shares.IsPositive() {
		avg = basis.Div(shares)
	}
	value := shares.Mul(price)

	return model.Position{
		AccountID:    accountID,
		MarketID:     marketID,
		Side:         side,
		Shares:       shares,
		AvgCost:      avg,
		CostBasis:    basis,
		CurrentValue: value,
		UnrealizedPL: value.Sub(basis),
	}, nil
}

// Positions returns snapshots of all open positions for the account,
// ordered by market then side for stable output.
func (l *Ledger) Positions(ctx context.Context, accountID string) ([]model.Position, error) {
	a := l.acct(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()

	keys := make([]posKey, 0, len(a.books))
	for k, b := range a.books {
		if len(b.lots) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].marketID != keys[j].marketID {
			return keys[i].marketID < keys[j].marketID
		}
		return keys[i].side < keys[j].side
	})

	positions := make([]model.Position, 0, len(keys))
	for _, k := range keys {
		p, err := l.snapshot(ctx, accountID, k.marketID, k.side, a.books[k])
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, nil
}

// PortfolioSummary aggregates the account's open positions, cash, and
// realized/unrealized P&L.
func (l *Ledger) PortfolioSummary(ctx context.Context, accountID string) (model.PortfolioSummary, error) {
	positions, err := l.Positions(ctx, accountID)
	if err != nil {
		return model.PortfolioSummary{}, err
	}

	a := l.acct(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()

	summary := model.PortfolioSummary{
		AccountID:      accountID,
		Positions:      positions,
		AvailableFunds: a.funds,
		TotalValue:     a.funds,
	}
	for _, p := range positions {
		summary.TotalValue = summary.TotalValue.Add(p.CurrentValue)
		summary.TotalUnrealizedPL = summary.TotalUnrealizedPL.Add(p.UnrealizedPL)
	}
	for _, b := range a.books {
		summary.TotalRealizedPL = summary.TotalRealizedPL.Add(b.realized)
	}
	return summary, nil
}

// RealizedPL returns the account's total realized P&L across all markets.
func (l *Ledger) RealizedPL(accountID string) decimal.Decimal {
	a := l.acct(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()

	total := decimal.Zero
	for _, b := range a.books {
		total = total.Add(b.realized)
	}
	return total
}

// Claim settles the account's position in a resolved market: remaining
// winning-side lots convert to cash at 1.0 per share, losing-side lots
// are realized as a total loss. Idempotent — a second call for the same
// market is a no-op returning a zero payout.
func (l *Ledger) Claim(accountID, marketID string, outcome bool) (decimal.Decimal, error) {
	a := l.acct(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.claimed[marketID] {
		return decimal.Zero, nil
	}

	winSide, loseSide := model.SideYes, model.SideNo
	if !outcome {
		winSide, loseSide = model.SideNo, model.SideYes
	}

	// Both books must be healthy before either is touched: a halted side
	// discovered mid-claim would leave the other side already settled.
	winBook := a.books[posKey{marketID, winSide}]
	loseBook := a.books[posKey{marketID, loseSide}]
	if (winBook != nil && winBook.halted) || (loseBook != nil && loseBook.halted) {
		return decimal.Zero, ErrPositionHalted
	}

	one := decimal.NewFromInt(1)
	payout := decimal.Zero

	if winBook != nil {
		for _, lot := range winBook.lots {
			payout = payout.Add(lot.Shares)
			winBook.realized = winBook.realized.Add(lot.Shares.Mul(one.Sub(lot.Price)))
		}
		winBook.lots = nil
	}
	if loseBook != nil {
		for _, lot := range loseBook.lots {
			loseBook.realized = loseBook.realized.Sub(lot.Cost())
		}
		loseBook.lots = nil
	}

	a.funds = a.funds.Add(payout)
	a.claimed[marketID] = true
	return payout, nil
}

// Claimed reports whether the account already claimed the market's
// resolution.
func (l *Ledger) Claimed(accountID, marketID string) bool {
	a := l.acct(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.claimed[marketID]
}

// TradeLog returns a copy of the account's locally applied trade
// records, in application order.
func (l *Ledger) TradeLog(accountID string) []model.TradeRecord {
	a := l.acct(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.TradeRecord, len(a.records))
	copy(out, a.records)
	return out
}

// Rebuild discards the account's books and reconstructs them by
// replaying the authoritative trade log in order. Cash and claim flags
// are left untouched: funds are tracked by deposits, not derivable from
// the trade log alone.
func (l *Ledger) Rebuild(accountID string, records []model.TradeRecord) error {
	a := l.acct(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()

	a.books = make(map[posKey]*book)
	a.records = nil

	funds := a.funds // preserve cash across the replay's debits/credits
	for _, r := range records {
		fill := model.Fill{
			TradeID:   r.ID,
			AccountID: r.AccountID,
			MarketID:  r.MarketID,
			Side:      r.Side,
			Type:      r.Type,
			Shares:    r.Shares,
			Price:     r.Price,
			Cost:      r.Cost,
			Timestamp: r.Timestamp,
		}
		if err := a.applyFill(fill); err != nil {
			return fmt.Errorf("ledger: rebuild %s at trade %s: %w", accountID, r.ID, err)
		}
	}
	a.funds = funds
	return nil
}
