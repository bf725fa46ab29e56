package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/config"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/gateway"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/ledger"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/marketcache"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/metrics"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/order"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/risk"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/store"
	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/trade"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	// --- Store ---
	st, cleanup, err := buildStore(cfg.Store)
	if err != nil {
		slog.Error("store init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Pipeline ---
	cache := marketcache.New(st, cfg.Cache.PollInterval, cfg.Cache.FetchTimeout)
	led := ledger.New(cache)
	validator := order.NewValidator(cache, led, decimal.NewFromFloat(cfg.Trading.SlippageTolerance))
	limiter := risk.NewExposureLimiter(
		decimal.NewFromFloat(cfg.Risk.MaxPerMarket),
		decimal.NewFromFloat(cfg.Risk.MaxCorrelated),
	)

	var gw gateway.TradeGateway
	if cfg.Gateway.Mode == "remote" {
		gw = gateway.NewRemote(cfg.Gateway.VenueURL, cfg.Gateway.VenueRPS)
		slog.Info("using remote execution venue", "url", cfg.Gateway.VenueURL)
	} else {
		gw = gateway.NewSimulator(st)
	}

	wsHub := trade.NewWSHub()
	go wsHub.Run()

	tradeSvc := trade.NewService(st, cache, validator, gw, led, limiter, wsHub)

	// Replay the durable trade log so positions survive a restart.
	if err := tradeSvc.RestorePositions(context.Background()); err != nil {
		slog.Error("position restore failed", "err", err)
		os.Exit(1)
	}

	// Background market state poller.
	pollCtx, stopPoll := context.WithCancel(context.Background())
	defer stopPoll()
	go cache.Run(pollCtx)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"chronos-markets"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time price updates.
		r.Get("/ws", wsHub.HandleWS)

		// Market management.
		r.Get("/markets", tradeSvc.ListMarkets)
		r.Post("/markets", tradeSvc.CreateMarket)
		r.Get("/markets/{marketID}", tradeSvc.GetMarket)
		r.Get("/markets/{marketID}/price", tradeSvc.GetPrice)
		r.Get("/markets/{marketID}/history", tradeSvc.GetHistory)
		r.Post("/markets/{marketID}/resolve", tradeSvc.Resolve)
		r.Post("/markets/{marketID}/claim", tradeSvc.Claim)

		// Order pipeline.
		r.Post("/quote", tradeSvc.Quote)
		r.Post("/orders", tradeSvc.SubmitOrder)

		// Accounts.
		r.Post("/deposit", tradeSvc.Deposit)
		r.Get("/portfolio/{accountID}", tradeSvc.GetPortfolio)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("chronos-markets listening", "port", cfg.Server.Port, "backend", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down chronos-markets...")
	stopPoll()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("chronos-markets stopped")
}

// buildStore wires the configured persistence backend and returns the
// cleanup functions to run on exit.
func buildStore(cfg config.StoreConfig) (store.Store, []func(), error) {
	var cleanup []func()

	switch cfg.Backend {
	case "postgres":
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		var st store.Store = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return nil, cleanup, fmt.Errorf("invalid redis url: %w", err)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.RedisTTL)
			slog.Info("Redis cache enabled")
		}
		return st, cleanup, nil

	case "sqlite":
		st, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		cleanup = append(cleanup, func() { st.Close() })
		slog.Info("using SQLite store", "path", cfg.SQLitePath)
		return st, cleanup, nil

	default:
		slog.Warn("using in-memory store (data will not persist)")
		return store.NewMemoryStore(), nil, nil
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
