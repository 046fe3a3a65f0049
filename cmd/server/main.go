package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/Kian-Abdalkhani/economy-engine/internal/config"
	"github.com/Kian-Abdalkhani/economy-engine/internal/dividend"
	"github.com/Kian-Abdalkhani/economy-engine/internal/httpserver"
	"github.com/Kian-Abdalkhani/economy-engine/internal/ledger"
	"github.com/Kian-Abdalkhani/economy-engine/internal/marketdata"
	"github.com/Kian-Abdalkhani/economy-engine/internal/model"
	"github.com/Kian-Abdalkhani/economy-engine/internal/portfolio"
	"github.com/Kian-Abdalkhani/economy-engine/internal/store"
	"github.com/Kian-Abdalkhani/economy-engine/internal/stream"
	"github.com/Kian-Abdalkhani/economy-engine/internal/trading"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg, err := store.NewPostgresStore(context.Background(), pool)
		if err != nil {
			slog.Error("database schema setup failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")
	} else {
		sq, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			slog.Error("sqlite open failed", "path", cfg.SQLitePath, "err", err)
			os.Exit(1)
		}
		st = sq
		slog.Info("using sqlite store", "path", cfg.SQLitePath)
	}
	cleanup = append(cleanup, func() { st.Close() })

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// Load persisted state. A corrupt or unreadable snapshot is logged and
	// the engine starts empty rather than refusing to boot.
	snap, err := st.Load(context.Background())
	if err != nil {
		slog.Warn("state load failed, starting empty", "err", err)
		snap = &model.Snapshot{}
	}
	slog.Info("state loaded",
		"accounts", len(snap.Accounts),
		"positions", len(snap.Positions),
		"paid_dividends", len(snap.Paid),
	)

	// --- Market data ---
	var provider marketdata.Provider = marketdata.NewYahooProvider(cfg.MarketDataURL, cfg.MarketDataTimeout)

	// Optional shared Redis layer between the in-process cache and the
	// provider, for multi-instance deployments.
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		provider = marketdata.NewRedisCache(provider, rdb, cfg.QuoteTTL, cfg.DividendTTL)
		slog.Info("redis quote cache enabled")
	}
	quotes := marketdata.NewCache(provider, cfg.QuoteTTL, cfg.DividendTTL)

	// --- Engines ---
	ldg := ledger.New(st, *snap, cfg.DailyReward, cfg.DailyCooldown)
	book := portfolio.NewBook(*snap)
	policy := trading.NewOrderPolicy(cfg.MaxOrderShares, decimal.NewFromInt(cfg.MaxLeverage))

	hub := stream.NewHub()
	go hub.Run()
	ldg.SetPublisher(hub)

	engine := trading.NewEngine(ldg, book, quotes, st, policy, hub)
	dividends := dividend.NewEngine(ldg, book, quotes, st, hub, *snap)

	// --- HTTP router ---
	r := httpserver.New(httpserver.Handlers{
		Ledger:   ledger.NewHandler(ldg, cfg.LeaderboardLimit),
		Trading:  trading.NewHandler(engine, quotes, cfg.LeaderboardLimit),
		Dividend: dividend.NewHandler(dividends),
		Hub:      hub,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("economy-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down economy-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("economy-engine stopped")
}
