package ledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Kian-Abdalkhani/economy-engine/internal/httpapi"
)

// Handler exposes the ledger over HTTP.
type Handler struct {
	ledger           *Ledger
	leaderboardLimit int
}

func NewHandler(l *Ledger, leaderboardLimit int) *Handler {
	return &Handler{ledger: l, leaderboardLimit: leaderboardLimit}
}

// MutationRequest is the JSON body for POST /balance/credit and
// /balance/debit.
type MutationRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"` // cents
	Reason string `json:"reason,omitempty"`
}

// TransferRequest is the JSON body for POST /balance/transfer.
type TransferRequest struct {
	FromID string `json:"from_id"`
	ToID   string `json:"to_id"`
	Amount int64  `json:"amount"` // cents
}

// BalanceResponse is returned from every balance mutation.
type BalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// GetBalance handles GET /api/v1/balance/{userID}
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	httpapi.WriteJSON(w, http.StatusOK, BalanceResponse{
		UserID:  userID,
		Balance: h.ledger.Balance(userID),
	})
}

// Credit handles POST /api/v1/balance/credit
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	var req MutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		httpapi.WriteError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	balance, err := h.ledger.Credit(r.Context(), req.UserID, req.Amount, req.Reason)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, BalanceResponse{UserID: req.UserID, Balance: balance})
}

// Debit handles POST /api/v1/balance/debit
func (h *Handler) Debit(w http.ResponseWriter, r *http.Request) {
	var req MutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		httpapi.WriteError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	balance, err := h.ledger.Debit(r.Context(), req.UserID, req.Amount, req.Reason)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, BalanceResponse{UserID: req.UserID, Balance: balance})
}

// Transfer handles POST /api/v1/balance/transfer
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.FromID == "" {
		httpapi.WriteError(w, "from_id is required", http.StatusBadRequest)
		return
	}
	balance, err := h.ledger.Transfer(r.Context(), req.FromID, req.ToID, req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, BalanceResponse{UserID: req.FromID, Balance: balance})
}

// DailyResponse is returned from POST /api/v1/daily/{userID}.
type DailyResponse struct {
	UserID    string     `json:"user_id"`
	Balance   int64      `json:"balance"`
	NextClaim *time.Time `json:"next_claim,omitempty"`
}

// ClaimDaily handles POST /api/v1/daily/{userID}
func (h *Handler) ClaimDaily(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	balance, err := h.ledger.ClaimDaily(r.Context(), userID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	resp := DailyResponse{UserID: userID, Balance: balance}
	if next := h.ledger.NextDailyClaim(userID); !next.IsZero() {
		resp.NextClaim = &next
	}
	httpapi.WriteJSON(w, http.StatusOK, resp)
}

// Leaderboard handles GET /api/v1/leaderboard?limit=N
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, h.ledger.Leaderboard(httpapi.Limit(r, h.leaderboardLimit)))
}

// History handles GET /api/v1/history/{userID}?limit=N
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	entries, err := h.ledger.History(r.Context(), userID, httpapi.Limit(r, 100))
	if err != nil {
		httpapi.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, entries)
}

func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		httpapi.WriteError(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, ErrCooldownActive):
		httpapi.WriteError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidTarget):
		httpapi.WriteError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		httpapi.WriteError(w, err.Error(), http.StatusInternalServerError)
	}
}
