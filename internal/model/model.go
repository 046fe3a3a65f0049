// Package model defines the core domain types shared across the economy engine.
// Ledger balances are int64 minor units (cents); prices, cost basis, leverage,
// and P/L use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is one user's currency balance. Accounts are created lazily on
// first ledger access with a zero balance and are never deleted.
type Account struct {
	UserID         string     `json:"user_id" db:"user_id"`
	Balance        int64      `json:"balance" db:"balance"` // minor units, never negative
	LastDailyClaim *time.Time `json:"last_daily_claim,omitempty" db:"last_daily_claim"`
}

// Position is one user's holding in one stock symbol. A position whose
// quantity reaches zero is removed, never retained as a zero row.
type Position struct {
	UserID   string          `json:"user_id" db:"user_id"`
	Symbol   string          `json:"symbol" db:"symbol"`
	Quantity int64           `json:"quantity" db:"quantity"` // whole shares
	AvgCost  decimal.Decimal `json:"avg_cost" db:"avg_cost"` // weighted average per share
	Leverage decimal.Decimal `json:"leverage" db:"leverage"` // fixed at open, >= 1
	OpenedAt time.Time       `json:"opened_at" db:"opened_at"`
}

// Quote is a cached price for one symbol. Ephemeral: quotes are never
// persisted and are re-fetched from the provider when stale.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	FetchedAt time.Time       `json:"fetched_at"`
	Stale     bool            `json:"stale,omitempty"` // provider failed, stale cached value served
}

// DividendRecord is external reference data for one (symbol, ex-date) pair.
// Consumed read-only by the dividend engine.
type DividendRecord struct {
	Symbol         string          `json:"symbol"`
	ExDate         time.Time       `json:"ex_date"`
	PayDate        time.Time       `json:"pay_date,omitempty"`
	AmountPerShare decimal.Decimal `json:"amount_per_share"`
}

// PaidDividend marks a (user, symbol, ex-date) payout as already made so a
// dividend is never credited twice.
type PaidDividend struct {
	UserID string    `json:"user_id" db:"user_id"`
	Symbol string    `json:"symbol" db:"symbol"`
	ExDate time.Time `json:"ex_date" db:"ex_date"`
}

// Ledger entry kinds. One entry records one economic event.
const (
	EntryCredit   = "credit"
	EntryDebit    = "debit"
	EntryTransfer = "transfer"
	EntryDaily    = "daily"
	EntryBuy      = "buy"
	EntrySell     = "sell"
	EntryDividend = "dividend"
)

// LedgerEntry is an immutable audit record of one balance mutation.
// Once written, entries are never modified or deleted.
type LedgerEntry struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	Kind         string          `json:"kind" db:"kind"`
	Symbol       string          `json:"symbol,omitempty" db:"symbol"`
	Quantity     int64           `json:"quantity,omitempty" db:"quantity"`
	Price        decimal.Decimal `json:"price" db:"price"`     // quote at execution, zero for pure cash events
	Amount       int64           `json:"amount" db:"amount"`   // signed balance delta in minor units
	Balance      int64           `json:"balance" db:"balance"` // balance after the event
	Counterparty string          `json:"counterparty,omitempty" db:"counterparty"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}

// Snapshot is the full durable state loaded at startup.
type Snapshot struct {
	Accounts  []Account
	Positions []Position
	Paid      []PaidDividend
}

// BalanceEntry is one leaderboard row.
type BalanceEntry struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// PositionView is one position valued at the current price.
type PositionView struct {
	Position
	CurrentPrice  decimal.Decimal `json:"current_price"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	PriceStale    bool            `json:"price_stale,omitempty"`
}

// Portfolio aggregates all of a user's positions with P/L.
type Portfolio struct {
	UserID      string          `json:"user_id"`
	Positions   []PositionView  `json:"positions"`
	TotalValue  decimal.Decimal `json:"total_value"`
	TotalPnL    decimal.Decimal `json:"total_pnl"`
	CashBalance int64           `json:"cash_balance"`
}
