package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/model"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/order"
)

// submitRequest is the wire form of an order submission.
type submitRequest struct {
	OrderID   string `json:"order_id"`
	AccountID string `json:"account_id"`
	MarketID  string `json:"market_id"`
	Side      string `json:"side"`
	Type      string `json:"type"`
	Shares    string `json:"shares"`
	Bound     string `json:"bound"`
}

// submitResponse is the execution venue's fill report. Amounts are
// decimal strings; parsing to float would lose money precision.
type submitResponse struct {
	TradeID   string    `json:"trade_id"`
	Executed  string    `json:"executed"`
	Price     string    `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Remote submits validated orders to an external execution venue over
// HTTP. The venue owns the pools; this client only enforces the bound on
// the reported fill (the venue enforces it authoritatively too).
type Remote struct {
	http    *resty.Client
	limiter *rate.Limiter
}

// NewRemote creates a remote gateway for the given venue base URL.
// Requests are retried on 5xx and rate-limited to rps requests/second.
func NewRemote(baseURL string, rps float64) *Remote {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	if rps <= 0 {
		rps = 10
	}
	return &Remote{
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)),
	}
}

// Execute submits the order and converts the venue's report into a fill.
// Note: the POST is not idempotent; a timeout after the venue committed
// leaves an executed trade this client never saw. Reconcile from the
// venue's trade log on restart.
func (g *Remote) Execute(ctx context.Context, vo *order.ValidatedOrder) (*model.Fill, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := submitRequest{
		OrderID:   vo.ID,
		AccountID: vo.AccountID,
		MarketID:  vo.MarketID,
		Side:      string(vo.Side),
		Type:      string(vo.Type),
		Shares:    vo.Shares.String(),
		Bound:     vo.Bound.String(),
	}

	var result submitResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&result).
		Post("/v1/orders")
	if err != nil {
		return nil, fmt.Errorf("gateway: submit order: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict:
		return nil, fmt.Errorf("%w: %s", order.ErrSlippageExceeded, result.Error)
	case http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %s", order.ErrMarketClosed, result.Error)
	default:
		return nil, fmt.Errorf("gateway: submit order: status %d: %s", resp.StatusCode(), resp.String())
	}

	executed, err := decimal.NewFromString(result.Executed)
	if err != nil {
		return nil, fmt.Errorf("gateway: bad executed amount %q: %w", result.Executed, err)
	}
	price, err := decimal.NewFromString(result.Price)
	if err != nil {
		return nil, fmt.Errorf("gateway: bad fill price %q: %w", result.Price, err)
	}

	// Client-side mirror of the venue's bound check.
	if err := vo.CheckFill(executed); err != nil {
		return nil, err
	}

	ts := result.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &model.Fill{
		TradeID:   result.TradeID,
		AccountID: vo.AccountID,
		MarketID:  vo.MarketID,
		Side:      vo.Side,
		Type:      vo.Type,
		Shares:    vo.Shares,
		Price:     price,
		Cost:      executed,
		Timestamp: ts,
	}, nil
}
