package ledger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Kian-Abdalkhani/economy-engine/internal/ledger"
	"github.com/Kian-Abdalkhani/economy-engine/internal/model"
	"github.com/Kian-Abdalkhani/economy-engine/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(store.NewMemoryStore(), model.Snapshot{}, 1_000_000, 24*time.Hour)
	h := ledger.NewHandler(l, 10)
	r := chi.NewRouter()
	r.Get("/balance/{userID}", h.GetBalance)
	r.Post("/credit", h.Credit)
	r.Post("/debit", h.Debit)
	r.Post("/transfer", h.Transfer)
	r.Post("/daily/{userID}", h.ClaimDaily)
	r.Get("/leaderboard", h.Leaderboard)
	r.Get("/history/{userID}", h.History)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, l
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandlerBalanceUnknownUser(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/balance/nobody")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body ledger.BalanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Balance != 0 {
		t.Errorf("balance = %d, want 0", body.Balance)
	}
}

func TestHandlerDebitInsufficientFunds(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := postJSON(t, srv, "/debit", ledger.MutationRequest{UserID: "alice", Amount: 500})
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", resp.StatusCode)
	}
}

func TestHandlerCreditInvalidAmount(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := postJSON(t, srv, "/credit", ledger.MutationRequest{UserID: "alice", Amount: 0})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestHandlerTransferToSelf(t *testing.T) {
	srv, l := newTestServer(t)
	if _, err := l.Credit(context.Background(), "alice", 1000, "seed"); err != nil {
		t.Fatal(err)
	}
	resp := postJSON(t, srv, "/transfer", ledger.TransferRequest{FromID: "alice", ToID: "alice", Amount: 100})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestHandlerDailyCooldown(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := postJSON(t, srv, "/daily/alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first claim status = %d, want 200", resp.StatusCode)
	}
	resp = postJSON(t, srv, "/daily/alice", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second claim status = %d, want 409", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["error"] == "" {
		t.Error("error body missing")
	}
}
