// Package trading executes simulated stock orders against the currency
// ledger and the position book.
package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
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

var (
	ErrNoPosition = errors.New("trading: no open position")

	// ErrLeverageMismatch is returned when a buy would add to an existing
	// position at a different leverage. One position per (user, symbol);
	// close it first to change leverage.
	ErrLeverageMismatch = errors.New("trading: leverage differs from open position")

	// ErrInsufficientShares is returned when a sell asks for more shares
	// than the position holds.
	ErrInsufficientShares = errors.New("trading: sell exceeds held quantity")
)

// QuoteSource yields current prices. Satisfied by the market data cache.
type QuoteSource interface {
	Price(ctx context.Context, symbol string) (model.Quote, error)
}

// Publisher receives engine events for fan-out to streaming clients. May
// be nil.
type Publisher interface {
	Publish(eventType string, data map[string]any)
}

// Engine executes buys and sells. Execution is serialized per user via the
// ledger's lock table, so a user's cash and positions always move
// together. Prices are fetched before the lock is taken: a quote fetch can
// block on the network and must not stall other users' orders.
type Engine struct {
	ledger *ledger.Ledger
	book   *portfolio.Book
	quotes QuoteSource
	store  store.Store
	policy *OrderPolicy
	hub    Publisher

	now func() time.Time
}

func NewEngine(l *ledger.Ledger, book *portfolio.Book, quotes QuoteSource, st store.Store, policy *OrderPolicy, hub Publisher) *Engine {
	return &Engine{
		ledger: l,
		book:   book,
		quotes: quotes,
		store:  st,
		policy: policy,
		hub:    hub,
		now:    time.Now,
	}
}

// TradeResult reports a fill back to the caller.
type TradeResult struct {
	TradeID  string          `json:"trade_id"`
	UserID   string          `json:"user_id"`
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Amount   int64           `json:"amount"`  // cents moved, negative on buys
	Balance  int64           `json:"balance"` // cash after the fill
	Position *model.Position `json:"position,omitempty"`
}

// Buy opens or extends a position in sym at the current market price.
// The debit is the full notional cost; leverage changes the payout profile
// at sale time, never the entry price.
func (e *Engine) Buy(ctx context.Context, userID, sym string, quantity int64, leverage decimal.Decimal) (*TradeResult, error) {
	started := e.now()
	sym, err := symbol.Normalize(sym)
	if err != nil {
		return nil, err
	}
	if err := e.policy.CheckOrder(quantity); err != nil {
		metrics.TradeRejections.WithLabelValues("policy").Inc()
		return nil, err
	}
	if err := e.policy.CheckLeverage(leverage); err != nil {
		metrics.TradeRejections.WithLabelValues("policy").Inc()
		return nil, err
	}

	quote, err := e.quotes.Price(ctx, sym)
	if err != nil {
		metrics.TradeRejections.WithLabelValues("market_data").Inc()
		return nil, err
	}
	cost := pricing.Cents(pricing.Cost(quantity, quote.Price))

	mu := e.ledger.Lock(userID)
	mu.Lock()
	defer mu.Unlock()

	existing, has := e.book.Get(userID, sym)
	if has && !existing.Leverage.Equal(leverage) {
		metrics.TradeRejections.WithLabelValues("leverage_mismatch").Inc()
		return nil, fmt.Errorf("%w: open position at %sx", ErrLeverageMismatch, existing.Leverage)
	}

	pos := model.Position{
		UserID:   userID,
		Symbol:   sym,
		Quantity: quantity,
		AvgCost:  quote.Price,
		Leverage: leverage,
		OpenedAt: e.now().UTC(),
	}
	if has {
		pos.Quantity = existing.Quantity + quantity
		pos.AvgCost = pricing.WeightedAverageCost(existing.Quantity, existing.AvgCost, quantity, quote.Price)
		pos.OpenedAt = existing.OpenedAt
	}

	var result *TradeResult
	err = e.ledger.Apply(ctx, userID,
		func(acct model.Account) (model.Account, error) {
			if acct.Balance < cost {
				metrics.TradeRejections.WithLabelValues("insufficient_funds").Inc()
				return acct, fmt.Errorf("%w: have %d, need %d", ledger.ErrInsufficientFunds, acct.Balance, cost)
			}
			acct.Balance -= cost
			return acct, nil
		},
		func(ctx context.Context, next model.Account) error {
			entry := e.ledger.Entry(userID, model.EntryBuy, -cost, next.Balance)
			entry.Symbol = sym
			entry.Quantity = quantity
			entry.Price = quote.Price
			if err := e.store.SaveTrade(ctx, &next, &pos, false, &entry); err != nil {
				return fmt.Errorf("persist buy: %w", err)
			}
			result = &TradeResult{
				TradeID:  entry.ID,
				UserID:   userID,
				Symbol:   sym,
				Side:     "buy",
				Quantity: quantity,
				Price:    quote.Price,
				Amount:   -cost,
				Balance:  next.Balance,
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	e.book.Set(pos)
	result.Position = &pos

	metrics.TradesTotal.WithLabelValues("buy").Inc()
	metrics.TradeLatency.WithLabelValues("buy").Observe(e.now().Sub(started).Seconds())
	slog.Info("buy executed",
		"user", userID,
		"symbol", sym,
		"qty", quantity,
		"price", quote.Price.String(),
		"leverage", leverage.String(),
		"cost", cost,
	)
	e.publish("trade_executed", map[string]any{
		"user_id": userID,
		"symbol":  sym,
		"side":    "buy",
		"qty":     quantity,
		"price":   quote.Price.String(),
	})
	return result, nil
}

// Sell closes part of a position at the current market price. Proceeds
// apply the position's leverage to the price move exactly once:
// qty * (avgCost + leverage*(price-avgCost)), floored to cents and clamped
// at zero — a leveraged loss can wipe the stake but never goes negative.
func (e *Engine) Sell(ctx context.Context, userID, sym string, quantity int64) (*TradeResult, error) {
	if err := e.policy.CheckOrder(quantity); err != nil {
		metrics.TradeRejections.WithLabelValues("policy").Inc()
		return nil, err
	}
	return e.sell(ctx, userID, sym, quantity)
}

// SellAll closes the user's whole position in sym, whatever its size.
func (e *Engine) SellAll(ctx context.Context, userID, sym string) (*TradeResult, error) {
	return e.sell(ctx, userID, sym, 0)
}

// sell executes a sale. quantity 0 means the full position.
func (e *Engine) sell(ctx context.Context, userID, sym string, quantity int64) (*TradeResult, error) {
	started := e.now()
	sym, err := symbol.Normalize(sym)
	if err != nil {
		return nil, err
	}

	quote, err := e.quotes.Price(ctx, sym)
	if err != nil {
		metrics.TradeRejections.WithLabelValues("market_data").Inc()
		return nil, err
	}

	mu := e.ledger.Lock(userID)
	mu.Lock()
	defer mu.Unlock()

	pos, has := e.book.Get(userID, sym)
	if !has {
		metrics.TradeRejections.WithLabelValues("no_position").Inc()
		return nil, fmt.Errorf("%w: %s holds no %s", ErrNoPosition, userID, sym)
	}
	if quantity == 0 {
		quantity = pos.Quantity
	}
	if quantity > pos.Quantity {
		metrics.TradeRejections.WithLabelValues("insufficient_shares").Inc()
		return nil, fmt.Errorf("%w: have %d, asked %d", ErrInsufficientShares, pos.Quantity, quantity)
	}

	proceeds := pricing.Cents(pricing.Proceeds(quantity, pos.AvgCost, quote.Price, pos.Leverage))
	if proceeds < 0 {
		proceeds = 0
	}

	remaining := pos
	remaining.Quantity -= quantity
	closed := remaining.Quantity == 0

	var result *TradeResult
	err = e.ledger.Apply(ctx, userID,
		func(acct model.Account) (model.Account, error) {
			acct.Balance += proceeds
			return acct, nil
		},
		func(ctx context.Context, next model.Account) error {
			entry := e.ledger.Entry(userID, model.EntrySell, proceeds, next.Balance)
			entry.Symbol = sym
			entry.Quantity = quantity
			entry.Price = quote.Price
			if err := e.store.SaveTrade(ctx, &next, &remaining, closed, &entry); err != nil {
				return fmt.Errorf("persist sell: %w", err)
			}
			result = &TradeResult{
				TradeID:  entry.ID,
				UserID:   userID,
				Symbol:   sym,
				Side:     "sell",
				Quantity: quantity,
				Price:    quote.Price,
				Amount:   proceeds,
				Balance:  next.Balance,
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	if closed {
		e.book.Remove(userID, sym)
	} else {
		e.book.Set(remaining)
		result.Position = &remaining
	}

	metrics.TradesTotal.WithLabelValues("sell").Inc()
	metrics.TradeLatency.WithLabelValues("sell").Observe(e.now().Sub(started).Seconds())
	slog.Info("sell executed",
		"user", userID,
		"symbol", sym,
		"qty", quantity,
		"price", quote.Price.String(),
		"proceeds", proceeds,
		"closed", closed,
	)
	e.publish("trade_executed", map[string]any{
		"user_id": userID,
		"symbol":  sym,
		"side":    "sell",
		"qty":     quantity,
		"price":   quote.Price.String(),
	})
	return result, nil
}

// Portfolio values the user's open positions at current prices. Positions
// whose price fetch fails entirely are reported with their stored cost
// basis and PriceStale set, so one dead symbol does not sink the whole
// valuation.
func (e *Engine) Portfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	positions := e.book.List(userID)
	out := &model.Portfolio{
		UserID:      userID,
		Positions:   make([]model.PositionView, 0, len(positions)),
		CashBalance: e.ledger.Balance(userID),
	}

	for _, p := range positions {
		view := model.PositionView{Position: p}
		quote, err := e.quotes.Price(ctx, p.Symbol)
		if err != nil {
			slog.Warn("portfolio valuation using cost basis", "symbol", p.Symbol, "err", err)
			view.CurrentPrice = p.AvgCost
			view.PriceStale = true
		} else {
			view.CurrentPrice = quote.Price
			view.PriceStale = quote.Stale
		}
		qty := decimal.NewFromInt(p.Quantity)
		view.CurrentValue = view.CurrentPrice.Mul(qty)
		view.UnrealizedPnL = pricing.UnrealizedPnL(p.Quantity, p.AvgCost, view.CurrentPrice, p.Leverage)

		out.Positions = append(out.Positions, view)
		out.TotalValue = out.TotalValue.Add(view.CurrentValue)
		out.TotalPnL = out.TotalPnL.Add(view.UnrealizedPnL)
	}
	return out, nil
}

// NetWorthEntry is one row of the net worth leaderboard.
type NetWorthEntry struct {
	UserID   string `json:"user_id"`
	NetWorth int64  `json:"net_worth"` // cents: cash + liquidation value
}

// NetWorthLeaderboard ranks users by cash plus the leveraged liquidation
// value of their positions. Ties break by user id.
func (e *Engine) NetWorthLeaderboard(ctx context.Context, limit int) []NetWorthEntry {
	out := make([]NetWorthEntry, 0)
	for _, userID := range e.ledger.UserIDs() {
		worth := e.ledger.Balance(userID)
		for _, p := range e.book.List(userID) {
			price := p.AvgCost
			if quote, err := e.quotes.Price(ctx, p.Symbol); err == nil {
				price = quote.Price
			}
			value := pricing.Cents(pricing.Proceeds(p.Quantity, p.AvgCost, price, p.Leverage))
			if value > 0 {
				worth += value
			}
		}
		out = append(out, NetWorthEntry{UserID: userID, NetWorth: worth})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NetWorth != out[j].NetWorth {
			return out[i].NetWorth > out[j].NetWorth
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (e *Engine) publish(eventType string, data map[string]any) {
	if e.hub != nil {
		e.hub.Publish(eventType, data)
	}
}
