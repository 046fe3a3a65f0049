package trading_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Kian-Abdalkhani/economy-engine/internal/ledger"
	"github.com/Kian-Abdalkhani/economy-engine/internal/marketdata"
	"github.com/Kian-Abdalkhani/economy-engine/internal/model"
	"github.com/Kian-Abdalkhani/economy-engine/internal/portfolio"
	"github.com/Kian-Abdalkhani/economy-engine/internal/store"
	"github.com/Kian-Abdalkhani/economy-engine/internal/trading"
)

type stubQuotes struct {
	prices map[string]decimal.Decimal
	down   bool
}

func (s *stubQuotes) Price(_ context.Context, sym string) (model.Quote, error) {
	if s.down {
		return model.Quote{}, fmt.Errorf("%w: quote %s", marketdata.ErrUnavailable, sym)
	}
	return model.Quote{Symbol: sym, Price: s.prices[sym], FetchedAt: time.Now()}, nil
}

type tradeServer struct {
	srv    *httptest.Server
	ledger *ledger.Ledger
	quotes *stubQuotes
}

func newTradeServer(t *testing.T) *tradeServer {
	t.Helper()
	st := store.NewMemoryStore()
	l := ledger.New(st, model.Snapshot{}, 1_000_000, 24*time.Hour)
	book := portfolio.NewBook(model.Snapshot{})
	quotes := &stubQuotes{prices: map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(100),
	}}
	policy := trading.NewOrderPolicy(1_000_000, decimal.NewFromInt(20))
	engine := trading.NewEngine(l, book, quotes, st, policy, nil)
	h := trading.NewHandler(engine, quotes, 10)

	r := chi.NewRouter()
	r.Post("/trade/buy", h.Buy)
	r.Post("/trade/sell", h.Sell)
	r.Get("/portfolio/{userID}", h.GetPortfolio)
	r.Get("/quote/{symbol}", h.GetQuote)
	r.Get("/leaderboard/networth", h.NetWorthLeaderboard)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &tradeServer{srv: srv, ledger: l, quotes: quotes}
}

func (ts *tradeServer) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(ts.srv.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *tradeServer) fund(t *testing.T, user string, amount int64) {
	t.Helper()
	if _, err := ts.ledger.Credit(context.Background(), user, amount, "seed"); err != nil {
		t.Fatal(err)
	}
}

func TestHandlerBuyInsufficientFunds(t *testing.T) {
	ts := newTradeServer(t)
	ts.fund(t, "alice", 5_000)
	resp := ts.post(t, "/trade/buy", trading.BuyRequest{UserID: "alice", Symbol: "AAPL", Quantity: 10})
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", resp.StatusCode)
	}
}

func TestHandlerSellWithoutPosition(t *testing.T) {
	ts := newTradeServer(t)
	resp := ts.post(t, "/trade/sell", trading.SellRequest{UserID: "alice", Symbol: "AAPL", Quantity: 1})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandlerSellMoreThanHeld(t *testing.T) {
	ts := newTradeServer(t)
	ts.fund(t, "alice", 100_000)
	resp := ts.post(t, "/trade/buy", trading.BuyRequest{UserID: "alice", Symbol: "AAPL", Quantity: 5})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("buy status = %d, want 200", resp.StatusCode)
	}
	resp = ts.post(t, "/trade/sell", trading.SellRequest{UserID: "alice", Symbol: "AAPL", Quantity: 6})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestHandlerBuyLeverageOutOfRange(t *testing.T) {
	ts := newTradeServer(t)
	ts.fund(t, "alice", 100_000)
	resp := ts.post(t, "/trade/buy", trading.BuyRequest{
		UserID: "alice", Symbol: "AAPL", Quantity: 1, Leverage: decimal.NewFromInt(50),
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestHandlerBuyInvalidSymbol(t *testing.T) {
	ts := newTradeServer(t)
	ts.fund(t, "alice", 100_000)
	resp := ts.post(t, "/trade/buy", trading.BuyRequest{UserID: "alice", Symbol: "no$good", Quantity: 1})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestHandlerQuoteUnavailable(t *testing.T) {
	ts := newTradeServer(t)
	ts.quotes.down = true
	resp, err := http.Get(ts.srv.URL + "/quote/AAPL")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestHandlerBuyMarketDataDown(t *testing.T) {
	ts := newTradeServer(t)
	ts.fund(t, "alice", 100_000)
	ts.quotes.down = true
	resp := ts.post(t, "/trade/buy", trading.BuyRequest{UserID: "alice", Symbol: "AAPL", Quantity: 1})
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}
