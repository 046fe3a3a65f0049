package trading

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Kian-Abdalkhani/economy-engine/internal/httpapi"
	"github.com/Kian-Abdalkhani/economy-engine/internal/ledger"
	"github.com/Kian-Abdalkhani/economy-engine/internal/marketdata"
	"github.com/Kian-Abdalkhani/economy-engine/internal/symbol"
)

// Handler exposes trading and portfolio valuation over HTTP.
type Handler struct {
	engine           *Engine
	quotes           QuoteSource
	leaderboardLimit int
}

func NewHandler(e *Engine, quotes QuoteSource, leaderboardLimit int) *Handler {
	return &Handler{engine: e, quotes: quotes, leaderboardLimit: leaderboardLimit}
}

// BuyRequest is the JSON body for POST /trade/buy.
type BuyRequest struct {
	UserID   string          `json:"user_id"`
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity"`
	Leverage decimal.Decimal `json:"leverage"` // defaults to 1
}

// SellRequest is the JSON body for POST /trade/sell. SellAll closes the
// whole position and ignores Quantity.
type SellRequest struct {
	UserID   string `json:"user_id"`
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity,omitempty"`
	SellAll  bool   `json:"sell_all,omitempty"`
}

// Buy handles POST /api/v1/trade/buy
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		httpapi.WriteError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.Leverage.IsZero() {
		req.Leverage = decimal.NewFromInt(1)
	}
	result, err := h.engine.Buy(r.Context(), req.UserID, req.Symbol, req.Quantity, req.Leverage)
	if err != nil {
		writeTradeError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, result)
}

// Sell handles POST /api/v1/trade/sell
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		httpapi.WriteError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	var result *TradeResult
	var err error
	if req.SellAll {
		result, err = h.engine.SellAll(r.Context(), req.UserID, req.Symbol)
	} else {
		result, err = h.engine.Sell(r.Context(), req.UserID, req.Symbol, req.Quantity)
	}
	if err != nil {
		writeTradeError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, result)
}

// GetPortfolio handles GET /api/v1/portfolio/{userID}
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	p, err := h.engine.Portfolio(r.Context(), userID)
	if err != nil {
		writeTradeError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, p)
}

// GetQuote handles GET /api/v1/quote/{symbol}
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	sym, err := symbol.Normalize(chi.URLParam(r, "symbol"))
	if err != nil {
		httpapi.WriteError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	quote, err := h.quotes.Price(r.Context(), sym)
	if err != nil {
		writeTradeError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, quote)
}

// NetWorthLeaderboard handles GET /api/v1/leaderboard/networth?limit=N
func (h *Handler) NetWorthLeaderboard(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, h.engine.NetWorthLeaderboard(r.Context(), httpapi.Limit(r, h.leaderboardLimit)))
}

func writeTradeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		httpapi.WriteError(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, ErrNoPosition):
		httpapi.WriteError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrLeverageMismatch), errors.Is(err, ErrInsufficientShares):
		httpapi.WriteError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrOrderTooLarge),
		errors.Is(err, ErrLeverageOutOfRange), errors.Is(err, symbol.ErrInvalidSymbol):
		httpapi.WriteError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, marketdata.ErrUnavailable):
		httpapi.WriteError(w, err.Error(), http.StatusBadGateway)
	default:
		httpapi.WriteError(w, err.Error(), http.StatusInternalServerError)
	}
}
