// Package amm implements the constant-product automated market maker
// pricing used by Chronos binary prediction markets.
//
// Each market holds two share reserves, yesPool and noPool. Buying
// `shares` of one side removes them from that side's pool and pushes the
// cost into the opposite pool; selling is the mirror operation:
//
//	buy cost      = poolIn * shares / (poolOut - shares)
//	sell proceeds = poolOut * shares / (poolIn + shares)
//
// This is the simplified two-pool convention of the Chronos market
// contract, preserved exactly — it is not a textbook two-asset x*y=k
// swap, and must not be "corrected" into one without changing the
// backend contract in lockstep.
//
// All quantities use shopspring/decimal — never float64 for money.
// Every function here is pure and stateless; pool mutation is the trade
// gateway's job, and these helpers only describe it.
package amm

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidShares is returned when the requested share quantity is
	// zero or negative.
	ErrInvalidShares = errors.New("amm: share quantity must be positive")

	// ErrExceedsLiquidity is returned when a buy requests the entire
	// opposing pool or more; the marginal price diverges to infinity
	// before the pool empties.
	ErrExceedsLiquidity = errors.New("amm: buy size at or above available pool liquidity")

	// ErrInvalidPool is returned when a pool reserve is negative.
	ErrInvalidPool = errors.New("amm: pool reserves must be non-negative")
)

// PriceScale is the number of decimal places for cost/price rounding.
var PriceScale int32 = 8

// buyPools selects the constant-product operands for a buy:
// poolOut is the pool of the side being bought, poolIn the opposite.
func buyPools(yesPool, noPool decimal.Decimal, isYes bool) (poolIn, poolOut decimal.Decimal) {
	if isYes {
		return noPool, yesPool
	}
	return yesPool, noPool
}

// sellPools selects the operands for a sell: poolIn is the pool of the
// side being sold, poolOut the opposite.
func sellPools(yesPool, noPool decimal.Decimal, isYes bool) (poolIn, poolOut decimal.Decimal) {
	if isYes {
		return yesPool, noPool
	}
	return noPool, yesPool
}

// QuoteBuyCost returns the cost of buying `shares` of the given side
// against the supplied reserves.
//
// Fails with ErrInvalidShares when shares <= 0 and with
// ErrExceedsLiquidity when shares >= poolOut.
func QuoteBuyCost(yesPool, noPool, shares decimal.Decimal, isYes bool) (decimal.Decimal, error) {
	if yesPool.IsNegative() || noPool.IsNegative() {
		return decimal.Zero, ErrInvalidPool
	}
	if shares.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidShares
	}

	poolIn, poolOut := buyPools(yesPool, noPool, isYes)
	if shares.GreaterThanOrEqual(poolOut) {
		return decimal.Zero, ErrExceedsLiquidity
	}

	cost := poolIn.Mul(shares).Div(poolOut.Sub(shares))
	return cost.Round(PriceScale), nil
}

// QuoteSellProceeds returns the proceeds of selling `shares` of the
// given side back into the supplied reserves.
//
// Fails with ErrInvalidShares when shares <= 0.
func QuoteSellProceeds(yesPool, noPool, shares decimal.Decimal, isYes bool) (decimal.Decimal, error) {
	if yesPool.IsNegative() || noPool.IsNegative() {
		return decimal.Zero, ErrInvalidPool
	}
	if shares.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidShares
	}

	poolIn, poolOut := sellPools(yesPool, noPool, isYes)
	proceeds := poolOut.Mul(shares).Div(poolIn.Add(shares))
	return proceeds.Round(PriceScale), nil
}

// SpotPrice returns the instantaneous display price of one share of the
// given side: noPool/(yesPool+noPool) for YES, the complement for NO.
// Returns 0.5 when both pools are empty (no liquidity, no information).
func SpotPrice(yesPool, noPool decimal.Decimal, isYes bool) decimal.Decimal {
	total := yesPool.Add(noPool)
	if total.LessThanOrEqual(decimal.Zero) {
		return decimal.NewFromFloat(0.5)
	}
	if isYes {
		return noPool.Div(total).Round(PriceScale)
	}
	return yesPool.Div(total).Round(PriceScale)
}

// MaxBuyShares returns the exclusive upper bound on a buy of the given
// side: any request of this size or larger fails with
// ErrExceedsLiquidity. Used to surface the maximum allowable size in
// rejections.
func MaxBuyShares(yesPool, noPool decimal.Decimal, isYes bool) decimal.Decimal {
	_, poolOut := buyPools(yesPool, noPool, isYes)
	return poolOut
}

// ApplyBuy computes the pool state after a buy fill: the bought side's
// pool shrinks by shares, the opposite pool grows by the cost.
func ApplyBuy(yesPool, noPool, shares decimal.Decimal, isYes bool) (newYes, newNo, cost decimal.Decimal, err error) {
	cost, err = QuoteBuyCost(yesPool, noPool, shares, isYes)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	if isYes {
		return yesPool.Sub(shares), noPool.Add(cost), cost, nil
	}
	return yesPool.Add(cost), noPool.Sub(shares), cost, nil
}

// ApplySell computes the pool state after a sell fill: the sold side's
// pool grows by shares, the opposite pool shrinks by the proceeds.
func ApplySell(yesPool, noPool, shares decimal.Decimal, isYes bool) (newYes, newNo, proceeds decimal.Decimal, err error) {
	proceeds, err = QuoteSellProceeds(yesPool, noPool, shares, isYes)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	if isYes {
		return yesPool.Add(shares), noPool.Sub(proceeds), proceeds, nil
	}
	return yesPool.Sub(proceeds), noPool.Add(shares), proceeds, nil
}
