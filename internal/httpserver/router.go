// Package httpserver assembles the HTTP API from the handler packages.
package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Kian-Abdalkhani/economy-engine/internal/dividend"
	"github.com/Kian-Abdalkhani/economy-engine/internal/ledger"
	"github.com/Kian-Abdalkhani/economy-engine/internal/metrics"
	"github.com/Kian-Abdalkhani/economy-engine/internal/stream"
	"github.com/Kian-Abdalkhani/economy-engine/internal/trading"
)

// Handlers bundles the API surface for the router.
type Handlers struct {
	Ledger   *ledger.Handler
	Trading  *trading.Handler
	Dividend *dividend.Handler
	Hub      *stream.Hub
}

// New builds the router with the standard middleware stack.
func New(h Handlers) chi.Router {
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
		w.Write([]byte(`{"status":"ok","service":"economy-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time economy events.
		r.Get("/ws", h.Hub.HandleWS)

		// Currency ledger.
		r.Get("/balance/{userID}", h.Ledger.GetBalance)
		r.Post("/credit", h.Ledger.Credit)
		r.Post("/debit", h.Ledger.Debit)
		r.Post("/transfer", h.Ledger.Transfer)
		r.Post("/daily/{userID}", h.Ledger.ClaimDaily)
		r.Get("/leaderboard", h.Ledger.Leaderboard)
		r.Get("/history/{userID}", h.Ledger.History)

		// Trading and valuation.
		r.Post("/trade/buy", h.Trading.Buy)
		r.Post("/trade/sell", h.Trading.Sell)
		r.Get("/portfolio/{userID}", h.Trading.GetPortfolio)
		r.Get("/quote/{symbol}", h.Trading.GetQuote)
		r.Get("/leaderboard/networth", h.Trading.NetWorthLeaderboard)

		// Dividends.
		r.Get("/dividends/projected/{userID}", h.Dividend.Projected)
		r.Get("/dividends/upcoming/{userID}", h.Dividend.Upcoming)
		r.Get("/dividends/yield/{symbol}", h.Dividend.Yield)
		r.Post("/dividends/pay", h.Dividend.Pay)
	})

	return r
}
