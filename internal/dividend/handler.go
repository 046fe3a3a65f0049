package dividend

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Kian-Abdalkhani/economy-engine/internal/httpapi"
	"github.com/Kian-Abdalkhani/economy-engine/internal/marketdata"
	"github.com/Kian-Abdalkhani/economy-engine/internal/symbol"
)

// Handler exposes dividend accounting over HTTP.
type Handler struct {
	engine *Engine
}

func NewHandler(e *Engine) *Handler {
	return &Handler{engine: e}
}

// ProjectedResponse is the body for GET /dividends/projected/{userID}.
type ProjectedResponse struct {
	UserID    string       `json:"user_id"`
	Positions []Projection `json:"positions"`
	Total     int64        `json:"total"` // cents
}

// Projected handles GET /api/v1/dividends/projected/{userID}
func (h *Handler) Projected(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	positions, total, err := h.engine.ProjectedIncome(r.Context(), userID)
	if err != nil {
		writeDividendError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, ProjectedResponse{
		UserID:    userID,
		Positions: positions,
		Total:     total,
	})
}

// Upcoming handles GET /api/v1/dividends/upcoming/{userID}
func (h *Handler) Upcoming(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	payouts, err := h.engine.Upcoming(r.Context(), userID)
	if err != nil {
		writeDividendError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, payouts)
}

// Yield handles GET /api/v1/dividends/yield/{symbol}
func (h *Handler) Yield(w http.ResponseWriter, r *http.Request) {
	info, err := h.engine.Yield(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeDividendError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, info)
}

// PayRequest is the JSON body for POST /dividends/pay. An empty symbol
// runs the payout pass over every held symbol; a user id restricts the
// pass to one holder.
type PayRequest struct {
	UserID string `json:"user_id,omitempty"`
	Symbol string `json:"symbol,omitempty"`
}

// PayResponse reports the credits made by one payout run.
type PayResponse struct {
	Payouts []Payout `json:"payouts"`
	Total   int64    `json:"total"` // cents
}

// Pay handles POST /api/v1/dividends/pay
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	var req PayRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpapi.WriteError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	var payouts []Payout
	var err error
	switch {
	case req.Symbol == "":
		payouts, err = h.engine.PayAll(r.Context())
	case req.UserID != "":
		payouts, err = h.engine.PayUser(r.Context(), req.UserID, req.Symbol)
	default:
		payouts, err = h.engine.PaySymbol(r.Context(), req.Symbol)
	}
	if err != nil {
		writeDividendError(w, err)
		return
	}
	resp := PayResponse{Payouts: payouts}
	for _, p := range payouts {
		resp.Total += p.Amount
	}
	httpapi.WriteJSON(w, http.StatusOK, resp)
}

func writeDividendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, symbol.ErrInvalidSymbol):
		httpapi.WriteError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, marketdata.ErrUnavailable):
		httpapi.WriteError(w, err.Error(), http.StatusBadGateway)
	default:
		httpapi.WriteError(w, err.Error(), http.StatusInternalServerError)
	}
}
