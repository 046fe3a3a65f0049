// Package store defines the persistence interface for the economy engine.
// Implementations include SQLite (default on-disk store), PostgreSQL
// (selected by DATABASE_URL), and in-memory (for testing).
//
// The engine holds authoritative state in memory and writes through: every
// mutating operation is persisted here before it is reported successful.
// Each Save* call is one atomic durable unit — a crash between the pieces
// of a trade or transfer must not be observable after restart.
package store

import (
	"context"

	"github.com/Kian-Abdalkhani/economy-engine/internal/model"
)

// Store is the durable write-through layer beneath the ledger, portfolio
// store, and dividend engine.
type Store interface {
	// Load returns the full persisted state. Called once at startup.
	Load(ctx context.Context) (*model.Snapshot, error)

	// SaveAccount persists one account mutation with its audit entry.
	SaveAccount(ctx context.Context, acct *model.Account, entry *model.LedgerEntry) error

	// SaveAccountPair persists both sides of a transfer as one unit.
	SaveAccountPair(ctx context.Context, from, to *model.Account, entry *model.LedgerEntry) error

	// SaveTrade persists the ledger debit/credit and the position update of
	// a buy or sell as one unit. removePos deletes the position row (a sell
	// that closes the position) instead of upserting it.
	SaveTrade(ctx context.Context, acct *model.Account, pos *model.Position, removePos bool, entry *model.LedgerEntry) error

	// SavePayout persists a dividend credit together with the paid-marker
	// that makes the payout idempotent.
	SavePayout(ctx context.Context, acct *model.Account, paid model.PaidDividend, entry *model.LedgerEntry) error

	// EntriesByUser returns a user's audit trail, newest first.
	EntriesByUser(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error)

	Close() error
}
