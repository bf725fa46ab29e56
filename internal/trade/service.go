// Package trade provides the HTTP handlers and business logic for
// creating markets, submitting orders, and querying positions and
// portfolios.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/amm"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/gateway"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/ledger"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/marketcache"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/metrics"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/model"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/order"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/risk"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/store"
)

// Service wires the order pipeline: validator → risk limiter → gateway →
// position ledger. The gateway serializes execution per market; the
// service itself holds no execution lock.
type Service struct {
	store     store.Store
	cache     *marketcache.Cache
	validator *order.Validator
	gateway   gateway.TradeGateway
	ledger    *ledger.Ledger
	limiter   *risk.ExposureLimiter
	wsHub     *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new trade service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(
	st store.Store,
	cache *marketcache.Cache,
	validator *order.Validator,
	gw gateway.TradeGateway,
	led *ledger.Ledger,
	limiter *risk.ExposureLimiter,
	hub *WSHub,
) *Service {
	return &Service{
		store:     st,
		cache:     cache,
		validator: validator,
		gateway:   gw,
		ledger:    led,
		limiter:   limiter,
		wsHub:     hub,
	}
}

// --- Request/Response types ---

// CreateMarketRequest is the JSON body for market creation. Liquidity is
// the seed amount, split evenly between the two pools.
type CreateMarketRequest struct {
	Creator    string          `json:"creator"`
	Question   string          `json:"question"`
	Categories []string        `json:"categories"`
	Liquidity  decimal.Decimal `json:"liquidity"`
	EndTime    time.Time       `json:"end_time"`
}

// OrderRequest is the JSON body for POST /orders and POST /quote.
type OrderRequest struct {
	AccountID string          `json:"account_id"`
	MarketID  string          `json:"market_id"`
	Side      string          `json:"side"`   // "YES" or "NO"
	Type      string          `json:"type"`   // "BUY" or "SELL"
	Shares    decimal.Decimal `json:"shares"` // always positive
}

// OrderResponse is the JSON body returned from POST /orders.
type OrderResponse struct {
	TradeID   string          `json:"trade_id"`
	AccountID string          `json:"account_id"`
	MarketID  string          `json:"market_id"`
	Side      model.Side      `json:"side"`
	Type      model.TradeType `json:"type"`
	Shares    decimal.Decimal `json:"shares"`
	FillPrice decimal.Decimal `json:"fill_price"`
	Cost      decimal.Decimal `json:"cost"`
	Position  model.Position  `json:"position"`
}

// DepositRequest is the JSON body for POST /deposit.
type DepositRequest struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// ResolveRequest is the JSON body for POST /markets/{id}/resolve.
type ResolveRequest struct {
	AccountID string `json:"account_id"`
	Outcome   bool   `json:"outcome"`
}

// ClaimRequest is the JSON body for POST /markets/{id}/claim.
type ClaimRequest struct {
	AccountID string `json:"account_id"`
}

// RestorePositions replays the store's trade log into the position
// ledger, one account at a time. Run at startup: with a durable backend
// the trade records survive a restart but the ledger starts empty, and
// without the replay sells of real holdings would be rejected.
func (s *Service) RestorePositions(ctx context.Context) error {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	for _, id := range accounts {
		records, err := s.store.GetTradesByAccount(ctx, id)
		if err != nil {
			return fmt.Errorf("load trades for %s: %w", id, err)
		}
		if err := s.ledger.Rebuild(id, records); err != nil {
			return err
		}
	}
	if len(accounts) > 0 {
		slog.Info("position ledger restored from trade log", "accounts", len(accounts))
	}
	return nil
}

// --- HTTP Handlers ---

// CreateMarket handles POST /api/v1/markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Creator == "" {
		writeError(w, "creator is required", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		writeError(w, "question is required", http.StatusBadRequest)
		return
	}
	if req.Liquidity.LessThanOrEqual(decimal.Zero) {
		writeError(w, "liquidity must be positive", http.StatusBadRequest)
		return
	}
	now := time.Now().UTC()
	if !req.EndTime.After(now) {
		writeError(w, "end_time must be in the future", http.StatusBadRequest)
		return
	}

	// Seed liquidity splits evenly: both sides open at 0.50.
	half := req.Liquidity.Div(decimal.NewFromInt(2))
	market := &model.Market{
		ID:         uuid.New().String(),
		Creator:    req.Creator,
		Question:   req.Question,
		Categories: req.Categories,
		YesPool:    half,
		NoPool:     half,
		Volume:     decimal.Zero,
		EndTime:    req.EndTime.UTC(),
		CreatedAt:  now,
	}

	if err := s.store.CreateMarket(r.Context(), market); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	metrics.ActiveMarkets.Inc()

	slog.Info("market created",
		"id", market.ID,
		"creator", market.Creator,
		"liquidity", req.Liquidity.String(),
		"end_time", market.EndTime,
	)

	writeJSON(w, http.StatusCreated, market)
}

// ListMarkets handles GET /api/v1/markets
// Returns all markets, optionally filtered by ?category=<tag>.
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListMarkets(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}

	if cat := r.URL.Query().Get("category"); cat != "" {
		filtered := []model.Market{}
		for _, m := range markets {
			if m.HasCategory(cat) {
				filtered = append(filtered, m)
			}
		}
		markets = filtered
	}

	writeJSON(w, http.StatusOK, markets)
}

// GetMarket handles GET /api/v1/markets/{marketID}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	market, err := s.cache.GetMarket(r.Context(), marketID)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// GetPrice handles GET /api/v1/markets/{marketID}/price
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	market, err := s.cache.GetMarket(r.Context(), marketID)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	resp := map[string]decimal.Decimal{
		"yes": amm.SpotPrice(market.YesPool, market.NoPool, true),
		"no":  amm.SpotPrice(market.YesPool, market.NoPool, false),
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetHistory handles GET /api/v1/markets/{marketID}/history
// Returns the market's trade records to reconstruct price history.
// ?limit=N keeps only the newest N records (still in execution order).
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	trades, err := s.store.GetTradesByMarket(r.Context(), marketID, limit)
	if err != nil {
		writeError(w, "failed to get market history", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.TradeRecord{}
	}

	writeJSON(w, http.StatusOK, trades)
}

// Quote handles POST /api/v1/quote
// Validates an order and returns its estimate and bound without
// executing anything.
func (s *Service) Quote(w http.ResponseWriter, r *http.Request) {
	o, ok := s.draftOrder(w, r)
	if !ok {
		return
	}

	vo, err := s.validator.Validate(r.Context(), o)
	if err != nil {
		writeError(w, err.Error(), rejectionStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, vo)
}

// SubmitOrder handles POST /api/v1/orders
// Runs the full pipeline: validate, risk check, execute, settle into the
// position ledger, broadcast the new price.
func (s *Service) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	o, ok := s.draftOrder(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	vo, err := s.validator.Validate(ctx, o)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(string(o.Side), string(o.Type), "rejected").Inc()
		writeError(w, err.Error(), rejectionStatus(err))
		return
	}

	if err := s.checkExposure(ctx, vo); err != nil {
		metrics.OrdersTotal.WithLabelValues(string(o.Side), string(o.Type), "rejected").Inc()
		metrics.RiskRejections.Inc()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	vo.State = order.StateSubmitted
	fill, err := s.gateway.Execute(ctx, vo)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(string(o.Side), string(o.Type), "rejected").Inc()
		if errors.Is(err, order.ErrSlippageExceeded) {
			metrics.SlippageRejections.Inc()
		}
		writeError(w, err.Error(), rejectionStatus(err))
		return
	}

	// The fill is committed upstream; a ledger failure here is an
	// integrity fault, not a trade rejection.
	if err := s.ledger.ApplyFill(*fill); err != nil {
		slog.Error("fill committed but ledger rejected it",
			"trade_id", fill.TradeID, "account", fill.AccountID, "err", err)
		writeError(w, "trade executed but position update failed", http.StatusInternalServerError)
		return
	}

	// Next quote must see the post-trade pools.
	s.cache.Invalidate(fill.MarketID)

	metrics.OrdersTotal.WithLabelValues(string(o.Side), string(o.Type), "filled").Inc()
	metrics.OrderLatency.WithLabelValues(string(o.Type)).Observe(time.Since(start).Seconds())
	metrics.MarketVolume.WithLabelValues(fill.MarketID, string(fill.Side)).Add(toFloat(fill.Cost))

	slog.Info("order filled",
		"trade_id", fill.TradeID,
		"account", fill.AccountID,
		"market", fill.MarketID,
		"side", fill.Side,
		"type", fill.Type,
		"shares", fill.Shares.String(),
		"cost", fill.Cost.String(),
		"fill_price", fill.Price.String(),
	)

	s.broadcastPrice(r, fill)

	pos, err := s.ledger.PositionOf(ctx, fill.AccountID, fill.MarketID, fill.Side)
	if err != nil {
		slog.Warn("position snapshot unavailable", "account", fill.AccountID, "err", err)
	}

	writeJSON(w, http.StatusOK, OrderResponse{
		TradeID:   fill.TradeID,
		AccountID: fill.AccountID,
		MarketID:  fill.MarketID,
		Side:      fill.Side,
		Type:      fill.Type,
		Shares:    fill.Shares,
		FillPrice: fill.Price,
		Cost:      fill.Cost,
		Position:  pos,
	})
}

// GetPortfolio handles GET /api/v1/portfolio/{accountID}
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	summary, err := s.ledger.PortfolioSummary(r.Context(), accountID)
	if err != nil {
		writeError(w, "failed to load portfolio", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// Deposit handles POST /api/v1/deposit
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AccountID == "" {
		writeError(w, "account_id is required", http.StatusBadRequest)
		return
	}
	if err := s.ledger.Deposit(req.AccountID, req.Amount); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"available_funds": s.ledger.AvailableFunds(req.AccountID),
	})
}

// Resolve handles POST /api/v1/markets/{marketID}/resolve
// Only the market's creator may resolve it, exactly once.
func (s *Service) Resolve(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	market, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}
	if req.AccountID != market.Creator {
		writeError(w, "only the market creator can resolve", http.StatusForbidden)
		return
	}
	if market.Resolved {
		writeError(w, "market already resolved", http.StatusConflict)
		return
	}

	if err := s.store.ResolveMarket(ctx, marketID, req.Outcome); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	s.cache.Invalidate(marketID)
	metrics.ActiveMarkets.Dec()

	slog.Info("market resolved", "market", marketID, "outcome", req.Outcome)

	if s.wsHub != nil {
		outcome := req.Outcome
		s.wsHub.Broadcast(WSMessage{
			Type:     "market_resolved",
			MarketID: marketID,
			Outcome:  &outcome,
		})
	}

	w.WriteHeader(http.StatusNoContent)
}

// Claim handles POST /api/v1/markets/{marketID}/claim
// Settles the account's positions in a resolved market: winning shares
// pay out 1.0 each, losing shares are written off. Idempotent.
func (s *Service) Claim(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AccountID == "" {
		writeError(w, "account_id is required", http.StatusBadRequest)
		return
	}

	market, err := s.store.GetMarket(r.Context(), marketID)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}
	if !market.Resolved || market.Outcome == nil {
		writeError(w, "market is not resolved", http.StatusConflict)
		return
	}

	payout, err := s.ledger.Claim(req.AccountID, marketID, *market.Outcome)
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("winnings claimed",
		"account", req.AccountID, "market", marketID, "payout", payout.String())

	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"payout":          payout,
		"available_funds": s.ledger.AvailableFunds(req.AccountID),
	})
}

// --- helpers ---

// draftOrder decodes and drafts an order request, writing the error
// response itself on failure.
func (s *Service) draftOrder(w http.ResponseWriter, r *http.Request) (order.Order, bool) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return order.Order{}, false
	}
	if req.AccountID == "" {
		writeError(w, "account_id is required", http.StatusBadRequest)
		return order.Order{}, false
	}
	side, err := model.ParseSide(req.Side)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return order.Order{}, false
	}
	typ, err := model.ParseTradeType(req.Type)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return order.Order{}, false
	}
	return order.New(req.AccountID, req.MarketID, side, typ, req.Shares), true
}

// checkExposure runs the correlation-aware limiter against the account's
// current cost-basis exposures. Buys add their worst-case cost; sells
// reduce exposure by the quoted proceeds.
func (s *Service) checkExposure(ctx context.Context, vo *order.ValidatedOrder) error {
	if s.limiter == nil {
		return nil
	}

	positions, err := s.ledger.Positions(ctx, vo.AccountID)
	if err != nil {
		return err
	}

	byMarket := make(map[string]*risk.Exposure)
	for _, p := range positions {
		e, ok := byMarket[p.MarketID]
		if !ok {
			e = &risk.Exposure{MarketID: p.MarketID}
			if m, err := s.cache.GetMarket(ctx, p.MarketID); err == nil {
				e.Categories = m.Categories
			}
			byMarket[p.MarketID] = e
		}
		e.Amount = e.Amount.Add(p.CostBasis)
	}
	existing := make([]risk.Exposure, 0, len(byMarket))
	for _, e := range byMarket {
		existing = append(existing, *e)
	}

	delta := vo.Bound
	if vo.Type == model.TradeSell {
		delta = vo.Quote.Neg()
	}

	var categories []string
	if m, err := s.cache.GetMarket(ctx, vo.MarketID); err == nil {
		categories = m.Categories
	}

	return s.limiter.CheckLimit(vo.MarketID, categories, delta, existing)
}

// broadcastPrice pushes the post-trade spot prices to WebSocket clients.
func (s *Service) broadcastPrice(r *http.Request, fill *model.Fill) {
	if s.wsHub == nil {
		return
	}
	market, err := s.store.GetMarket(r.Context(), fill.MarketID)
	if err != nil {
		return
	}
	s.wsHub.Broadcast(WSMessage{
		Type:     "trade_executed",
		MarketID: market.ID,
		PriceYes: amm.SpotPrice(market.YesPool, market.NoPool, true).String(),
		PriceNo:  amm.SpotPrice(market.YesPool, market.NoPool, false).String(),
		Side:     string(fill.Side),
		Shares:   fill.Shares.String(),
	})
}

// rejectionStatus maps the order error taxonomy onto HTTP status codes.
func rejectionStatus(err error) int {
	switch {
	case errors.Is(err, order.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrMarketClosed),
		errors.Is(err, order.ErrExceedsLiquidity),
		errors.Is(err, order.ErrInsufficientShares),
		errors.Is(err, order.ErrInsufficientFunds),
		errors.Is(err, order.ErrSlippageExceeded):
		return http.StatusConflict
	case errors.Is(err, order.ErrQuoteUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
