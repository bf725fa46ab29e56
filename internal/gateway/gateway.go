// Package gateway executes validated orders against authoritative market
// state. The gateway owns the Submitted -> Filled | Rejected transition:
// it re-quotes each order against the current pool reserves (never the
// cached snapshot the validator saw) and enforces the order's slippage
// bound at execution time. A rejected order leaves no trace: no pool
// mutation, no trade record, no ledger entry.
package gateway

import (
	"context"

	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/model"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/order"
)

// TradeGateway executes a validated order and returns the authoritative
// fill. Implementations must be atomic per market: either the fill
// happened in full (pools updated, record written) or not at all.
type TradeGateway interface {
	Execute(ctx context.Context, vo *order.ValidatedOrder) (*model.Fill, error)
}
