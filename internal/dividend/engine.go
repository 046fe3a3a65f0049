// Package dividend computes dividend income for held positions and pays
// due dividends into the ledger, exactly once per (user, symbol, ex-date).
package dividend

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Kian-Abdalkhani/economy-engine/internal/ledger"
	"github.com/Kian-Abdalkhani/economy-engine/internal/metrics"
	"github.com/Kian-Abdalkhani/economy-engine/internal/model"
	"github.com/Kian-Abdalkhani/economy-engine/internal/portfolio"
	"github.com/Kian-Abdalkhani/economy-engine/internal/pricing"
	"github.com/Kian-Abdalkhani/economy-engine/internal/store"
	"github.com/Kian-Abdalkhani/economy-engine/internal/symbol"
)

// payoutsPerYear is assumed when the trailing year of records is too
// sparse to infer a schedule. Quarterly is the common case for US stocks.
const payoutsPerYear = 4

// Source yields dividend records and prices. Satisfied by the market data
// cache.
type Source interface {
	Dividends(ctx context.Context, symbol string) ([]model.DividendRecord, error)
	Price(ctx context.Context, symbol string) (model.Quote, error)
}

// Publisher receives payout events for streaming clients. May be nil.
type Publisher interface {
	Publish(eventType string, data map[string]any)
}

// Engine pays and projects dividends. The paid set makes payouts
// idempotent: replaying a payout run after a restart credits nobody twice.
type Engine struct {
	ledger *ledger.Ledger
	book   *portfolio.Book
	source Source
	store  store.Store
	hub    Publisher

	now func() time.Time

	mu   sync.Mutex
	paid map[string]struct{} // user|symbol|exdate
}

func NewEngine(l *ledger.Ledger, book *portfolio.Book, src Source, st store.Store, hub Publisher, snap model.Snapshot) *Engine {
	e := &Engine{
		ledger: l,
		book:   book,
		source: src,
		store:  st,
		hub:    hub,
		now:    time.Now,
		paid:   make(map[string]struct{}),
	}
	for _, p := range snap.Paid {
		e.paid[paidKey(p.UserID, p.Symbol, p.ExDate)] = struct{}{}
	}
	return e
}

func paidKey(userID, sym string, exDate time.Time) string {
	return userID + "|" + sym + "|" + exDate.UTC().Format("2006-01-02")
}

// Payout is one dividend credit made by a payout run.
type Payout struct {
	UserID string `json:"user_id"`
	Symbol string `json:"symbol"`
	ExDate string `json:"ex_date"`
	Amount int64  `json:"amount"` // cents
}

// PayAll runs a payout pass over every held symbol. Symbols whose dividend
// data cannot be fetched are skipped with a warning; the rest still pay.
func (e *Engine) PayAll(ctx context.Context) ([]Payout, error) {
	var out []Payout
	for _, sym := range e.book.Symbols() {
		payouts, err := e.PaySymbol(ctx, sym)
		if err != nil {
			slog.Warn("dividend run skipping symbol", "symbol", sym, "err", err)
			continue
		}
		out = append(out, payouts...)
	}
	return out, nil
}

// PaySymbol pays every due, unpaid dividend of sym to the holders who
// owned a position on or before the ex-date. A dividend is due once its
// ex-date has passed. Repeating the call is a no-op for already-paid
// (user, ex-date) pairs.
func (e *Engine) PaySymbol(ctx context.Context, sym string) ([]Payout, error) {
	return e.pay(ctx, "", sym)
}

// PayUser pays the due, unpaid dividends of sym to a single holder.
func (e *Engine) PayUser(ctx context.Context, userID, sym string) ([]Payout, error) {
	return e.pay(ctx, userID, sym)
}

// pay runs a payout pass for sym, restricted to userID when non-empty.
func (e *Engine) pay(ctx context.Context, userID, sym string) ([]Payout, error) {
	sym, err := symbol.Normalize(sym)
	if err != nil {
		return nil, err
	}
	records, err := e.source.Dividends(ctx, sym)
	if err != nil {
		return nil, err
	}
	now := e.now()
	var due []model.DividendRecord
	for _, rec := range records {
		if !rec.ExDate.After(now) {
			due = append(due, rec)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}

	var out []Payout
	for _, pos := range e.book.Holders(sym) {
		if userID != "" && pos.UserID != userID {
			continue
		}
		for _, rec := range due {
			payout, err := e.payOne(ctx, pos, rec)
			if err != nil {
				return out, err
			}
			if payout != nil {
				out = append(out, *payout)
			}
		}
	}
	return out, nil
}

// payOne credits one holder for one dividend record, once.
func (e *Engine) payOne(ctx context.Context, pos model.Position, rec model.DividendRecord) (*Payout, error) {
	key := paidKey(pos.UserID, rec.Symbol, rec.ExDate)

	mu := e.ledger.Lock(pos.UserID)
	mu.Lock()
	defer mu.Unlock()

	e.mu.Lock()
	_, already := e.paid[key]
	e.mu.Unlock()
	if already {
		return nil, nil
	}

	// The position may have shrunk since Holders was read.
	current, has := e.book.Get(pos.UserID, rec.Symbol)
	if !has || current.Quantity <= 0 {
		return nil, nil
	}
	// Only holders who owned the position on or before the ex-date
	// qualify; a buyer after the ex-date earns nothing from that record.
	if rec.ExDate.Before(current.OpenedAt) {
		return nil, nil
	}
	amount := pricing.Cents(rec.AmountPerShare.Mul(decimal.NewFromInt(current.Quantity)))
	if amount <= 0 {
		return nil, nil
	}

	paid := model.PaidDividend{UserID: pos.UserID, Symbol: rec.Symbol, ExDate: rec.ExDate}
	err := e.ledger.Apply(ctx, pos.UserID,
		func(acct model.Account) (model.Account, error) {
			acct.Balance += amount
			return acct, nil
		},
		func(ctx context.Context, next model.Account) error {
			entry := e.ledger.Entry(pos.UserID, model.EntryDividend, amount, next.Balance)
			entry.Symbol = rec.Symbol
			entry.Quantity = current.Quantity
			entry.Price = rec.AmountPerShare
			if err := e.store.SavePayout(ctx, &next, paid, &entry); err != nil {
				return fmt.Errorf("persist payout: %w", err)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.paid[key] = struct{}{}
	e.mu.Unlock()

	metrics.DividendPayouts.Inc()
	slog.Info("dividend paid",
		"user", pos.UserID,
		"symbol", rec.Symbol,
		"ex_date", rec.ExDate.Format("2006-01-02"),
		"per_share", rec.AmountPerShare.String(),
		"amount", amount,
	)
	if e.hub != nil {
		e.hub.Publish("dividend_paid", map[string]any{
			"user_id": pos.UserID,
			"symbol":  rec.Symbol,
			"amount":  amount,
		})
	}
	p := Payout{
		UserID: pos.UserID,
		Symbol: rec.Symbol,
		ExDate: rec.ExDate.UTC().Format("2006-01-02"),
		Amount: amount,
	}
	return &p, nil
}

// Projection is the income expected from the next announced dividend of
// one held symbol.
type Projection struct {
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity"`
	ExDate   time.Time       `json:"ex_date"`
	PerShare decimal.Decimal `json:"per_share"`
	Amount   int64           `json:"amount"` // cents
}

// ProjectedIncome sums quantity times per-share amount over the next known
// dividend record of each held symbol. Symbols with no upcoming record
// contribute zero and are omitted.
func (e *Engine) ProjectedIncome(ctx context.Context, userID string) ([]Projection, int64, error) {
	now := e.now()
	var out []Projection
	var total int64
	for _, pos := range e.book.List(userID) {
		records, err := e.source.Dividends(ctx, pos.Symbol)
		if err != nil {
			slog.Warn("projected income skipping symbol", "symbol", pos.Symbol, "err", err)
			continue
		}
		// Records are sorted oldest first; the first future ex-date is the
		// next payout.
		var next *model.DividendRecord
		for i := range records {
			if records[i].ExDate.After(now) {
				next = &records[i]
				break
			}
		}
		if next == nil {
			continue
		}
		amount := pricing.Cents(next.AmountPerShare.Mul(decimal.NewFromInt(pos.Quantity)))
		out = append(out, Projection{
			Symbol:   pos.Symbol,
			Quantity: pos.Quantity,
			ExDate:   next.ExDate,
			PerShare: next.AmountPerShare,
			Amount:   amount,
		})
		total += amount
	}
	return out, total, nil
}

// UpcomingPayout is a dividend whose ex-date has not yet passed for a
// symbol the user holds.
type UpcomingPayout struct {
	Symbol   string          `json:"symbol"`
	ExDate   time.Time       `json:"ex_date"`
	PayDate  time.Time       `json:"pay_date,omitempty"`
	PerShare decimal.Decimal `json:"per_share"`
	Estimate int64           `json:"estimate"` // cents at current quantity
}

// Upcoming lists announced future dividends across the user's holdings,
// soonest first.
func (e *Engine) Upcoming(ctx context.Context, userID string) ([]UpcomingPayout, error) {
	now := e.now()
	var out []UpcomingPayout
	for _, pos := range e.book.List(userID) {
		records, err := e.source.Dividends(ctx, pos.Symbol)
		if err != nil {
			slog.Warn("upcoming dividends unavailable", "symbol", pos.Symbol, "err", err)
			continue
		}
		for _, rec := range records {
			if rec.ExDate.After(now) {
				out = append(out, UpcomingPayout{
					Symbol:   pos.Symbol,
					ExDate:   rec.ExDate,
					PayDate:  rec.PayDate,
					PerShare: rec.AmountPerShare,
					Estimate: pricing.Cents(rec.AmountPerShare.Mul(decimal.NewFromInt(pos.Quantity))),
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExDate.Before(out[j].ExDate) })
	return out, nil
}

// YieldInfo is a symbol's trailing dividend yield at the current price.
type YieldInfo struct {
	Symbol       string          `json:"symbol"`
	Price        decimal.Decimal `json:"price"`
	AnnualAmount decimal.Decimal `json:"annual_amount"` // per share
	YieldPercent decimal.Decimal `json:"yield_percent"`
}

// Yield computes the annualized dividend yield for sym: latest payout
// times the inferred schedule, over the current price.
func (e *Engine) Yield(ctx context.Context, sym string) (*YieldInfo, error) {
	sym, err := symbol.Normalize(sym)
	if err != nil {
		return nil, err
	}
	records, err := e.source.Dividends(ctx, sym)
	if err != nil {
		return nil, err
	}
	quote, err := e.source.Price(ctx, sym)
	if err != nil {
		return nil, err
	}
	info := &YieldInfo{Symbol: sym, Price: quote.Price}
	if len(records) == 0 || quote.Price.IsZero() {
		return info, nil
	}
	latest := records[len(records)-1]
	freq := e.payoutFrequency(records)
	info.AnnualAmount = latest.AmountPerShare.Mul(decimal.NewFromInt(int64(freq)))
	info.YieldPercent = info.AnnualAmount.Div(quote.Price).Mul(decimal.NewFromInt(100)).Round(4)
	return info, nil
}

// payoutFrequency infers payouts per year from the trailing twelve months
// of records, falling back to quarterly when history is too thin.
func (e *Engine) payoutFrequency(records []model.DividendRecord) int {
	cutoff := e.now().AddDate(-1, 0, 0)
	n := 0
	for _, rec := range records {
		if rec.ExDate.After(cutoff) && !rec.ExDate.After(e.now()) {
			n++
		}
	}
	if n == 0 {
		return payoutsPerYear
	}
	return n
}
