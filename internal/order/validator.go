// Package order implements pre-submission validation of trade requests.
//
// An order moves through a small state machine:
//
//	Drafted -> Validated -> Submitted -> Filled | Rejected
//
// The validator owns the Drafted -> Validated transition: it checks a
// request against cached market state, quotes it through the pricing
// engine, and attaches a slippage bound. It never mutates pool state;
// the trade gateway re-quotes against authoritative reserves at
// execution time and enforces the bound there. Validation failures are
// rejected before any network call, with zero side effects.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/amm"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/model"
)

// Rejection taxonomy. Matched with errors.Is; some carry wrapped detail.
var (
	// ErrMarketClosed rejects orders against resolved markets or markets
	// past their end time. Caller error, no retry.
	ErrMarketClosed = errors.New("order: market is closed to trading")

	// ErrInvalidAmount rejects non-positive share quantities. Caller
	// error, no retry.
	ErrInvalidAmount = errors.New("order: share quantity must be positive")

	// ErrExceedsLiquidity rejects buys at or above the opposing pool.
	// The wrapped message carries the maximum allowable size.
	ErrExceedsLiquidity = errors.New("order: buy size exceeds pool liquidity")

	// ErrQuoteUnavailable means the pricing engine could not produce a
	// quote for a degenerate pool state. Retryable after cache refresh.
	ErrQuoteUnavailable = errors.New("order: quote unavailable")

	// ErrInsufficientShares rejects sells larger than the account's
	// tracked position. Caller error — distinct from the ledger's fatal
	// InsufficientLots integrity violation.
	ErrInsufficientShares = errors.New("order: sell exceeds held shares")

	// ErrInsufficientFunds rejects buys whose worst-case cost (quote
	// plus slippage allowance) exceeds the account's available cash.
	ErrInsufficientFunds = errors.New("order: insufficient available funds")

	// ErrSlippageExceeded is reported by the gateway when the execution
	// price moved beyond the client's bound between quote and fill.
	// Surfaced as a failed trade; safe to retry with a fresh quote.
	ErrSlippageExceeded = errors.New("order: execution price exceeded slippage bound")
)

// DefaultSlippageTolerance is the policy default: quoted cost may worsen
// by up to 10% between quote and fill before the gateway rejects.
var DefaultSlippageTolerance = decimal.NewFromFloat(0.10)

// State tracks an order through its lifecycle.
type State string

const (
	StateDrafted   State = "DRAFTED"
	StateValidated State = "VALIDATED"
	StateSubmitted State = "SUBMITTED"
	StateFilled    State = "FILLED"
	StateRejected  State = "REJECTED"
)

// Order is a trade request as drafted by the caller.
type Order struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	MarketID  string          `json:"market_id"`
	Side      model.Side      `json:"side"`
	Type      model.TradeType `json:"type"`
	Shares    decimal.Decimal `json:"shares"`
	State     State           `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// New drafts an order with a fresh ID.
func New(accountID, marketID string, side model.Side, typ model.TradeType, shares decimal.Decimal) Order {
	return Order{
		ID:        uuid.New().String(),
		AccountID: accountID,
		MarketID:  marketID,
		Side:      side,
		Type:      typ,
		Shares:    shares,
		State:     StateDrafted,
		CreatedAt: time.Now().UTC(),
	}
}

// ValidatedOrder carries the client-side estimate and the bound the
// gateway will enforce. The estimate is display-only and must never be
// trusted as the execution price.
type ValidatedOrder struct {
	Order
	// Quote is the estimated cost (buys) or proceeds (sells) at the
	// cached pool state.
	Quote decimal.Decimal `json:"quote"`
	// Bound is maxCost for buys and minReturn for sells.
	Bound decimal.Decimal `json:"bound"`
	// QuotedAt records when the estimate was computed.
	QuotedAt time.Time `json:"quoted_at"`
}

// MarketSource supplies (possibly stale) market state. Implemented by
// the market state cache; staleness is tolerated up to the slippage
// tolerance rather than requiring a linearizable snapshot.
type MarketSource interface {
	GetMarket(ctx context.Context, id string) (*model.Market, error)
}

// AccountSource supplies the account's tracked holdings and cash, used
// to gate sell size and buy affordability. Implemented by the position
// ledger.
type AccountSource interface {
	HeldShares(accountID, marketID string, side model.Side) decimal.Decimal
	AvailableFunds(accountID string) decimal.Decimal
}

// Validator checks drafted orders against market and account state.
// Safe for concurrent use; it holds no mutable state of its own.
type Validator struct {
	markets   MarketSource
	accounts  AccountSource
	tolerance decimal.Decimal
	now       func() time.Time
}

// NewValidator creates a validator with the given slippage tolerance.
// A non-positive tolerance falls back to DefaultSlippageTolerance.
func NewValidator(markets MarketSource, accounts AccountSource, tolerance decimal.Decimal) *Validator {
	if tolerance.LessThanOrEqual(decimal.Zero) {
		tolerance = DefaultSlippageTolerance
	}
	return &Validator{
		markets:   markets,
		accounts:  accounts,
		tolerance: tolerance,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Tolerance returns the configured slippage tolerance.
func (v *Validator) Tolerance() decimal.Decimal { return v.tolerance }

// Validate performs the Drafted -> Validated transition, or rejects the
// order with one of the taxonomy errors. It has no side effects.
func (v *Validator) Validate(ctx context.Context, o Order) (*ValidatedOrder, error) {
	if o.Shares.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	market, err := v.markets.GetMarket(ctx, o.MarketID)
	if err != nil {
		return nil, fmt.Errorf("order: load market %s: %w", o.MarketID, err)
	}
	if !market.Open(v.now()) {
		return nil, ErrMarketClosed
	}

	var quote, bound decimal.Decimal
	one := decimal.NewFromInt(1)

	switch o.Type {
	case model.TradeBuy:
		max := amm.MaxBuyShares(market.YesPool, market.NoPool, o.Side.IsYes())
		if o.Shares.GreaterThanOrEqual(max) {
			return nil, fmt.Errorf("%w: size must be below %s shares", ErrExceedsLiquidity, max)
		}
		quote, err = amm.QuoteBuyCost(market.YesPool, market.NoPool, o.Shares, o.Side.IsYes())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrQuoteUnavailable, err)
		}
		bound = quote.Mul(one.Add(v.tolerance)).Round(amm.PriceScale)
		if funds := v.accounts.AvailableFunds(o.AccountID); bound.GreaterThan(funds) {
			return nil, fmt.Errorf("%w: need up to %s, have %s", ErrInsufficientFunds, bound, funds)
		}

	case model.TradeSell:
		held := v.accounts.HeldShares(o.AccountID, o.MarketID, o.Side)
		if o.Shares.GreaterThan(held) {
			return nil, fmt.Errorf("%w: selling %s, holding %s", ErrInsufficientShares, o.Shares, held)
		}
		quote, err = amm.QuoteSellProceeds(market.YesPool, market.NoPool, o.Shares, o.Side.IsYes())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrQuoteUnavailable, err)
		}
		bound = quote.Mul(one.Sub(v.tolerance)).Round(amm.PriceScale)

	default:
		return nil, fmt.Errorf("order: unknown trade type %q", o.Type)
	}

	o.State = StateValidated
	return &ValidatedOrder{
		Order:    o,
		Quote:    quote,
		Bound:    bound,
		QuotedAt: v.now(),
	}, nil
}

// CheckFill verifies an authoritative execution amount against the
// order's bound: buys must not cost more than Bound, sells must not
// return less. The gateway applies the same rule server-side; this is
// the client-side mirror used when consuming remote fills.
func (vo *ValidatedOrder) CheckFill(executed decimal.Decimal) error {
	switch vo.Type {
	case model.TradeBuy:
		if executed.GreaterThan(vo.Bound) {
			return fmt.Errorf("%w: cost %s above max %s", ErrSlippageExceeded, executed, vo.Bound)
		}
	case model.TradeSell:
		if executed.LessThan(vo.Bound) {
			return fmt.Errorf("%w: proceeds %s below min %s", ErrSlippageExceeded, executed, vo.Bound)
		}
	}
	return nil
}
