package dividend_test

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

	"github.com/Kian-Abdalkhani/economy-engine/internal/dividend"
	"github.com/Kian-Abdalkhani/economy-engine/internal/ledger"
	"github.com/Kian-Abdalkhani/economy-engine/internal/marketdata"
	"github.com/Kian-Abdalkhani/economy-engine/internal/model"
	"github.com/Kian-Abdalkhani/economy-engine/internal/portfolio"
	"github.com/Kian-Abdalkhani/economy-engine/internal/store"
)

type stubSource struct {
	records map[string][]model.DividendRecord
	down    bool
}

func (s *stubSource) Dividends(_ context.Context, sym string) ([]model.DividendRecord, error) {
	if s.down {
		return nil, fmt.Errorf("%w: dividends %s", marketdata.ErrUnavailable, sym)
	}
	return s.records[sym], nil
}

func (s *stubSource) Price(_ context.Context, sym string) (model.Quote, error) {
	if s.down {
		return model.Quote{}, fmt.Errorf("%w: quote %s", marketdata.ErrUnavailable, sym)
	}
	return model.Quote{Symbol: sym, Price: decimal.NewFromInt(60), FetchedAt: time.Now()}, nil
}

type dividendServer struct {
	srv    *httptest.Server
	source *stubSource
	book   *portfolio.Book
}

func newDividendServer(t *testing.T) *dividendServer {
	t.Helper()
	st := store.NewMemoryStore()
	l := ledger.New(st, model.Snapshot{}, 1_000_000, 24*time.Hour)
	book := portfolio.NewBook(model.Snapshot{})
	src := &stubSource{records: make(map[string][]model.DividendRecord)}
	engine := dividend.NewEngine(l, book, src, st, nil, model.Snapshot{})
	h := dividend.NewHandler(engine)

	r := chi.NewRouter()
	r.Get("/dividends/projected/{userID}", h.Projected)
	r.Get("/dividends/upcoming/{userID}", h.Upcoming)
	r.Get("/dividends/yield/{symbol}", h.Yield)
	r.Post("/dividends/pay", h.Pay)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &dividendServer{srv: srv, source: src, book: book}
}

func TestHandlerPayInvalidSymbol(t *testing.T) {
	ds := newDividendServer(t)
	body, err := json.Marshal(dividend.PayRequest{Symbol: "no$good"})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(ds.srv.URL+"/dividends/pay", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestHandlerYieldMarketDataDown(t *testing.T) {
	ds := newDividendServer(t)
	ds.source.down = true
	resp, err := http.Get(ds.srv.URL + "/dividends/yield/KO")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestHandlerProjected(t *testing.T) {
	ds := newDividendServer(t)
	ds.book.Set(model.Position{
		UserID:   "alice",
		Symbol:   "KO",
		Quantity: 100,
		AvgCost:  decimal.NewFromInt(60),
		Leverage: decimal.NewFromInt(1),
	})
	ds.source.records["KO"] = []model.DividendRecord{{
		Symbol:         "KO",
		ExDate:         time.Now().AddDate(0, 0, 7),
		AmountPerShare: decimal.NewFromFloat(0.50),
	}}

	resp, err := http.Get(ds.srv.URL + "/dividends/projected/alice")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body dividend.ProjectedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 5000 {
		t.Errorf("total = %d, want 5000", body.Total)
	}
}
