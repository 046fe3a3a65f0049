// Package ledger holds the authoritative per-user currency balances and
// the audit trail behind them. All amounts are int64 minor units (cents).
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kian-Abdalkhani/economy-engine/internal/metrics"
	"github.com/Kian-Abdalkhani/economy-engine/internal/model"
	"github.com/Kian-Abdalkhani/economy-engine/internal/store"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidTarget     = errors.New("invalid transfer target")
	ErrCooldownActive    = errors.New("daily reward already claimed")
)

// Publisher receives ledger events for fan-out to streaming clients.
type Publisher interface {
	Publish(eventType string, data map[string]any)
}

// Ledger owns account balances. Mutations are serialized per account: the
// lock table hands out one mutex per user id, and multi-account operations
// always acquire locks in lexicographic id order.
//
// Every mutation is written to the store before the in-memory state is
// updated, inside the account's critical section. A store failure aborts
// the mutation and leaves the balance untouched.
type Ledger struct {
	store store.Store
	hub   Publisher

	dailyReward   int64
	dailyCooldown time.Duration
	now           func() time.Time

	mu       sync.RWMutex
	accounts map[string]*model.Account

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func New(st store.Store, snap model.Snapshot, dailyReward int64, dailyCooldown time.Duration) *Ledger {
	accounts := make(map[string]*model.Account, len(snap.Accounts))
	for i := range snap.Accounts {
		a := snap.Accounts[i]
		accounts[a.UserID] = &a
	}
	return &Ledger{
		store:         st,
		dailyReward:   dailyReward,
		dailyCooldown: dailyCooldown,
		now:           time.Now,
		accounts:      accounts,
		locks:         make(map[string]*sync.Mutex),
	}
}

// SetPublisher attaches the event stream. Optional; nil means no events.
func (l *Ledger) SetPublisher(p Publisher) {
	l.hub = p
}

// Lock returns the mutex serializing mutations for userID, creating it on
// first use. Trading and dividend payouts share this table so a user's
// balance and positions move under one lock.
func (l *Ledger) Lock(userID string) *sync.Mutex {
	l.lockMu.Lock()
	defer l.lockMu.Unlock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	return m
}

// account returns the live account for userID, creating a zero-balance one
// if the user has never been seen. Caller must hold the user's lock for
// mutations.
func (l *Ledger) account(userID string) *model.Account {
	l.mu.RLock()
	a, ok := l.accounts[userID]
	l.mu.RUnlock()
	if ok {
		return a
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok = l.accounts[userID]; ok {
		return a
	}
	a = &model.Account{UserID: userID}
	l.accounts[userID] = a
	return a
}

// Balance returns the current balance for userID. Unknown users report a
// zero balance without creating an account.
func (l *Ledger) Balance(userID string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if a, ok := l.accounts[userID]; ok {
		return a.Balance
	}
	return 0
}

// Credit adds amount cents to userID's balance.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	mu := l.Lock(userID)
	mu.Lock()
	defer mu.Unlock()

	a := l.account(userID)
	next := *a
	next.Balance += amount
	entry := l.entry(userID, model.EntryCredit, amount, next.Balance)
	if err := l.store.SaveAccount(ctx, &next, &entry); err != nil {
		return 0, fmt.Errorf("persist credit: %w", err)
	}
	l.commit(a, next)
	slog.Info("balance credited", "user", userID, "amount", amount, "reason", reason)
	return next.Balance, nil
}

// Debit removes amount cents from userID's balance, failing if the balance
// would go negative.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	mu := l.Lock(userID)
	mu.Lock()
	defer mu.Unlock()

	a := l.account(userID)
	if a.Balance < amount {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, a.Balance, amount)
	}
	next := *a
	next.Balance -= amount
	entry := l.entry(userID, model.EntryDebit, -amount, next.Balance)
	if err := l.store.SaveAccount(ctx, &next, &entry); err != nil {
		return 0, fmt.Errorf("persist debit: %w", err)
	}
	l.commit(a, next)
	slog.Info("balance debited", "user", userID, "amount", amount, "reason", reason)
	return next.Balance, nil
}

// Transfer atomically moves amount cents from one user to another. Both
// balances change or neither does.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if fromID == toID || toID == "" {
		return 0, ErrInvalidTarget
	}

	// Lock both accounts in id order so opposite-direction transfers
	// cannot deadlock.
	first, second := fromID, toID
	if second < first {
		first, second = second, first
	}
	mu1, mu2 := l.Lock(first), l.Lock(second)
	mu1.Lock()
	defer mu1.Unlock()
	mu2.Lock()
	defer mu2.Unlock()

	from := l.account(fromID)
	to := l.account(toID)
	if from.Balance < amount {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, from.Balance, amount)
	}
	nextFrom := *from
	nextTo := *to
	nextFrom.Balance -= amount
	nextTo.Balance += amount

	entry := l.entry(fromID, model.EntryTransfer, -amount, nextFrom.Balance)
	entry.Counterparty = toID
	if err := l.store.SaveAccountPair(ctx, &nextFrom, &nextTo, &entry); err != nil {
		return 0, fmt.Errorf("persist transfer: %w", err)
	}
	l.mu.Lock()
	*from = nextFrom
	*to = nextTo
	l.mu.Unlock()
	return nextFrom.Balance, nil
}

// ClaimDaily grants the daily reward if the cooldown has elapsed. The check
// and the timestamp update happen under the account lock, so concurrent
// claims cannot both succeed.
func (l *Ledger) ClaimDaily(ctx context.Context, userID string) (int64, error) {
	mu := l.Lock(userID)
	mu.Lock()
	defer mu.Unlock()

	a := l.account(userID)
	now := l.now()
	if a.LastDailyClaim != nil {
		if remaining := l.dailyCooldown - now.Sub(*a.LastDailyClaim); remaining > 0 {
			return 0, fmt.Errorf("%w: %s remaining", ErrCooldownActive, remaining.Round(time.Second))
		}
	}
	next := *a
	next.Balance += l.dailyReward
	next.LastDailyClaim = &now
	entry := l.entry(userID, model.EntryDaily, l.dailyReward, next.Balance)
	if err := l.store.SaveAccount(ctx, &next, &entry); err != nil {
		return 0, fmt.Errorf("persist daily claim: %w", err)
	}
	l.commit(a, next)
	metrics.DailyClaims.Inc()
	slog.Info("daily reward claimed", "user", userID, "amount", l.dailyReward)
	if l.hub != nil {
		l.hub.Publish("daily_claimed", map[string]any{
			"user_id": userID,
			"amount":  l.dailyReward,
		})
	}
	return next.Balance, nil
}

// NextDailyClaim reports when userID may next claim the daily reward. The
// zero time means the reward is claimable now.
func (l *Ledger) NextDailyClaim(userID string) time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.accounts[userID]
	if !ok || a.LastDailyClaim == nil {
		return time.Time{}
	}
	next := a.LastDailyClaim.Add(l.dailyCooldown)
	if !next.After(l.now()) {
		return time.Time{}
	}
	return next
}

// Leaderboard returns the top accounts by balance, ties broken by user id,
// so repeated calls over the same state always agree.
func (l *Ledger) Leaderboard(limit int) []model.BalanceEntry {
	l.mu.RLock()
	out := make([]model.BalanceEntry, 0, len(l.accounts))
	for _, a := range l.accounts {
		out = append(out, model.BalanceEntry{UserID: a.UserID, Balance: a.Balance})
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// UserIDs returns every known account id.
func (l *Ledger) UserIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.accounts))
	for id := range l.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Apply mutates userID's account through fn while holding the account's
// data lock (not the serialization lock — the caller holds that). It is the
// persistence hook used by the trading and dividend engines: fn receives a
// copy, and the returned account is persisted via save before the copy is
// committed.
func (l *Ledger) Apply(ctx context.Context, userID string, fn func(model.Account) (model.Account, error), save func(ctx context.Context, next model.Account) error) error {
	a := l.account(userID)
	next, err := fn(*a)
	if err != nil {
		return err
	}
	if err := save(ctx, next); err != nil {
		return err
	}
	l.commit(a, next)
	return nil
}

// commit publishes next into the live account under the data lock so
// readers never observe a torn write.
func (l *Ledger) commit(a *model.Account, next model.Account) {
	l.mu.Lock()
	*a = next
	l.mu.Unlock()
}

// History returns userID's most recent ledger entries, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error) {
	return l.store.EntriesByUser(ctx, userID, limit)
}

// Entry builds an audit record stamped with a fresh id and the current
// time. Exported for the trading and dividend engines, which persist their
// own entries through store transactions.
func (l *Ledger) Entry(userID, kind string, amount, balance int64) model.LedgerEntry {
	return l.entry(userID, kind, amount, balance)
}

func (l *Ledger) entry(userID, kind string, amount, balance int64) model.LedgerEntry {
	return model.LedgerEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Amount:    amount,
		Balance:   balance,
		Timestamp: l.now().UTC(),
	}
}
