package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Kian-Abdalkhani/economy-engine/internal/model"
)

// yahooChartResponse is the subset of the Yahoo Finance chart API response
// the engine consumes.
type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"previousClose"`
			} `json:"meta"`
			Events struct {
				Dividends map[string]struct {
					Amount float64 `json:"amount"`
					Date   int64   `json:"date"`
				} `json:"dividends"`
			} `json:"events"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// yahooCalendarResponse is the subset of the quoteSummary calendarEvents
// module the engine consumes. The chart API only reports past ex-dates;
// the next announced dividend lives here.
type yahooCalendarResponse struct {
	QuoteSummary struct {
		Result []struct {
			CalendarEvents struct {
				ExDividendDate struct {
					Raw int64 `json:"raw"`
				} `json:"exDividendDate"`
				DividendDate struct {
					Raw int64 `json:"raw"`
				} `json:"dividendDate"`
			} `json:"calendarEvents"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

// YahooProvider fetches quotes and dividend events from the Yahoo Finance
// chart API. All requests carry a bounded timeout via the http.Client.
type YahooProvider struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewYahooProvider creates a provider against baseURL (the query host,
// e.g. https://query1.finance.yahoo.com) with the given request timeout.
func NewYahooProvider(baseURL string, timeout time.Duration) *YahooProvider {
	return &YahooProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

func (p *YahooProvider) Quote(ctx context.Context, sym string) (model.Quote, error) {
	res, err := p.fetchChart(ctx, sym, nil)
	if err != nil {
		return model.Quote{}, err
	}
	price := res.Chart.Result[0].Meta.RegularMarketPrice
	if price <= 0 {
		price = res.Chart.Result[0].Meta.PreviousClose
	}
	if price <= 0 {
		return model.Quote{}, fmt.Errorf("no price for %s in provider response", sym)
	}
	return model.Quote{
		Symbol:    sym,
		Price:     decimal.NewFromFloat(price),
		FetchedAt: p.now().UTC(),
	}, nil
}

func (p *YahooProvider) Dividends(ctx context.Context, sym string) ([]model.DividendRecord, error) {
	res, err := p.fetchChart(ctx, sym, url.Values{
		"range":    {"2y"},
		"interval": {"1mo"},
		"events":   {"div"},
	})
	if err != nil {
		return nil, err
	}

	var records []model.DividendRecord
	for _, ev := range res.Chart.Result[0].Events.Dividends {
		if ev.Amount <= 0 || ev.Date <= 0 {
			continue
		}
		records = append(records, model.DividendRecord{
			Symbol:         sym,
			ExDate:         time.Unix(ev.Date, 0).UTC(),
			AmountPerShare: decimal.NewFromFloat(ev.Amount),
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ExDate.Before(records[j].ExDate)
	})
	return p.appendAnnounced(ctx, sym, records), nil
}

// appendAnnounced adds the next announced dividend from the calendar to
// the historical records. Yahoo does not publish the upcoming amount, so
// it is estimated from the latest paid record; with no history there is
// nothing to estimate from. Calendar failures degrade to history only.
func (p *YahooProvider) appendAnnounced(ctx context.Context, sym string, records []model.DividendRecord) []model.DividendRecord {
	if len(records) == 0 {
		return records
	}
	cal, err := p.fetchCalendar(ctx, sym)
	if err != nil {
		slog.Warn("dividend calendar unavailable", "symbol", sym, "err", err)
		return records
	}
	ev := cal.QuoteSummary.Result[0].CalendarEvents
	if ev.ExDividendDate.Raw <= 0 {
		return records
	}
	ex := time.Unix(ev.ExDividendDate.Raw, 0).UTC()
	latest := records[len(records)-1]
	if !ex.After(p.now()) || !ex.After(latest.ExDate) {
		return records
	}
	next := model.DividendRecord{
		Symbol:         sym,
		ExDate:         ex,
		AmountPerShare: latest.AmountPerShare,
	}
	if ev.DividendDate.Raw > 0 {
		next.PayDate = time.Unix(ev.DividendDate.Raw, 0).UTC()
	}
	return append(records, next)
}

func (p *YahooProvider) fetchCalendar(ctx context.Context, sym string) (*yahooCalendarResponse, error) {
	u := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=calendarEvents", p.baseURL, url.PathEscape(sym))
	var cal yahooCalendarResponse
	if err := p.fetchJSON(ctx, sym, u, &cal); err != nil {
		return nil, err
	}
	if cal.QuoteSummary.Error != nil {
		return nil, fmt.Errorf("provider error for %s: %s", sym, cal.QuoteSummary.Error.Description)
	}
	if len(cal.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("empty calendar response for %s", sym)
	}
	return &cal, nil
}

func (p *YahooProvider) fetchChart(ctx context.Context, sym string, query url.Values) (*yahooChartResponse, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s", p.baseURL, url.PathEscape(sym))
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var chart yahooChartResponse
	if err := p.fetchJSON(ctx, sym, u, &chart); err != nil {
		return nil, err
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("provider error for %s: %s", sym, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("empty provider response for %s", sym)
	}
	return &chart, nil
}

func (p *YahooProvider) fetchJSON(ctx context.Context, sym, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "economy-engine/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request for %s: %w", sym, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read provider response for %s: %w", sym, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned %d for %s", resp.StatusCode, sym)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode provider response for %s: %w", sym, err)
	}
	return nil
}
