package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func chartBody(price float64, dividends string) string {
	return fmt.Sprintf(`{
		"chart": {
			"result": [{
				"meta": {
					"currency": "USD",
					"symbol": "TEST",
					"regularMarketPrice": %f,
					"previousClose": 99.5
				},
				"events": {"dividends": {%s}}
			}],
			"error": null
		}
	}`, price, dividends)
}

func calendarBody(ex, pay int64) string {
	return fmt.Sprintf(`{
		"quoteSummary": {
			"result": [{
				"calendarEvents": {
					"exDividendDate": {"raw": %d},
					"dividendDate": {"raw": %d}
				}
			}],
			"error": null
		}
	}`, ex, pay)
}

func TestYahooQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v8/finance/chart/AAPL" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, chartBody(187.44, ""))
	}))
	defer srv.Close()

	p := NewYahooProvider(srv.URL, 2*time.Second)
	q, err := p.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !q.Price.Equal(decimal.NewFromFloat(187.44)) {
		t.Errorf("price = %s, want 187.44", q.Price)
	}
	if q.Symbol != "AAPL" {
		t.Errorf("symbol = %s", q.Symbol)
	}
}

func TestYahooQuoteFallsBackToPreviousClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartBody(0, ""))
	}))
	defer srv.Close()

	p := NewYahooProvider(srv.URL, 2*time.Second)
	q, err := p.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !q.Price.Equal(decimal.NewFromFloat(99.5)) {
		t.Errorf("price = %s, want previousClose 99.5", q.Price)
	}
}

func TestYahooDividendsSortedOldestFirst(t *testing.T) {
	later := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC).Unix()
	earlier := time.Date(2024, 12, 13, 0, 0, 0, 0, time.UTC).Unix()
	divs := fmt.Sprintf(`"%d": {"amount": 0.50, "date": %d}, "%d": {"amount": 0.485, "date": %d}`,
		later, later, earlier, earlier)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v10/finance/quoteSummary/") {
			fmt.Fprint(w, calendarBody(0, 0))
			return
		}
		if r.URL.Query().Get("events") != "div" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, chartBody(64.2, divs))
	}))
	defer srv.Close()

	p := NewYahooProvider(srv.URL, 2*time.Second)
	records, err := p.Dividends(context.Background(), "KO")
	if err != nil {
		t.Fatalf("Dividends: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %+v", records)
	}
	if !records[0].ExDate.Before(records[1].ExDate) {
		t.Error("records not sorted oldest first")
	}
	if !records[0].AmountPerShare.Equal(decimal.NewFromFloat(0.485)) {
		t.Errorf("records[0].Amount = %s", records[0].AmountPerShare)
	}
}

func TestYahooDividendsAppendsAnnouncedRecord(t *testing.T) {
	past := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	nextEx := time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)
	nextPay := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	divs := fmt.Sprintf(`"%d": {"amount": 0.51, "date": %d}`, past.Unix(), past.Unix())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v10/finance/quoteSummary/") {
			if r.URL.Query().Get("modules") != "calendarEvents" {
				t.Errorf("query = %s", r.URL.RawQuery)
			}
			fmt.Fprint(w, calendarBody(nextEx.Unix(), nextPay.Unix()))
			return
		}
		fmt.Fprint(w, chartBody(64.2, divs))
	}))
	defer srv.Close()

	p := NewYahooProvider(srv.URL, 2*time.Second)
	p.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	records, err := p.Dividends(context.Background(), "KO")
	if err != nil {
		t.Fatalf("Dividends: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %+v, want history plus announced", records)
	}
	next := records[1]
	if !next.ExDate.Equal(nextEx) {
		t.Errorf("ExDate = %s, want %s", next.ExDate, nextEx)
	}
	if !next.PayDate.Equal(nextPay) {
		t.Errorf("PayDate = %s, want %s", next.PayDate, nextPay)
	}
	// Amount is estimated from the latest paid record.
	if !next.AmountPerShare.Equal(decimal.NewFromFloat(0.51)) {
		t.Errorf("AmountPerShare = %s, want 0.51", next.AmountPerShare)
	}
}

func TestYahooDividendsPastCalendarDateIgnored(t *testing.T) {
	past := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	divs := fmt.Sprintf(`"%d": {"amount": 0.51, "date": %d}`, past.Unix(), past.Unix())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v10/finance/quoteSummary/") {
			fmt.Fprint(w, calendarBody(past.Unix(), 0))
			return
		}
		fmt.Fprint(w, chartBody(64.2, divs))
	}))
	defer srv.Close()

	p := NewYahooProvider(srv.URL, 2*time.Second)
	p.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	records, err := p.Dividends(context.Background(), "KO")
	if err != nil {
		t.Fatalf("Dividends: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %+v, want history only", records)
	}
}

func TestYahooDividendsCalendarFailureDegrades(t *testing.T) {
	past := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	divs := fmt.Sprintf(`"%d": {"amount": 0.51, "date": %d}`, past.Unix(), past.Unix())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v10/finance/quoteSummary/") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, chartBody(64.2, divs))
	}))
	defer srv.Close()

	p := NewYahooProvider(srv.URL, 2*time.Second)
	records, err := p.Dividends(context.Background(), "KO")
	if err != nil {
		t.Fatalf("Dividends: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %+v, want history despite calendar failure", records)
	}
}

func TestYahooErrorResponses(t *testing.T) {
	t.Run("http error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()
		p := NewYahooProvider(srv.URL, 2*time.Second)
		if _, err := p.Quote(context.Background(), "AAPL"); err == nil {
			t.Error("expected error on 429")
		}
	})

	t.Run("api error payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
		}))
		defer srv.Close()
		p := NewYahooProvider(srv.URL, 2*time.Second)
		if _, err := p.Quote(context.Background(), "NOPE"); err == nil {
			t.Error("expected error on api error payload")
		}
	})
}
