package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Kian-Abdalkhani/economy-engine/internal/model"
	"github.com/Kian-Abdalkhani/economy-engine/internal/store"
)

// Both implementations that can run without external services must agree
// on round-trip behavior.
func openStores(t *testing.T) map[string]store.Store {
	t.Helper()
	sq, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "economy.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]store.Store{
		"memory": store.NewMemoryStore(),
		"sqlite": sq,
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			acct := &model.Account{UserID: "alice", Balance: 123_456, LastDailyClaim: &now}
			entry := &model.LedgerEntry{
				ID: "e1", UserID: "alice", Kind: model.EntryCredit,
				Price: decimal.Zero, Amount: 123_456, Balance: 123_456, Timestamp: now,
			}
			if err := st.SaveAccount(ctx, acct, entry); err != nil {
				t.Fatalf("SaveAccount: %v", err)
			}

			pos := &model.Position{
				UserID: "alice", Symbol: "AAPL", Quantity: 10,
				AvgCost: decimal.NewFromFloat(187.25), Leverage: decimal.NewFromInt(2),
				OpenedAt: now,
			}
			tradeEntry := &model.LedgerEntry{
				ID: "e2", UserID: "alice", Kind: model.EntryBuy, Symbol: "AAPL",
				Quantity: 10, Price: decimal.NewFromFloat(187.25),
				Amount: -187_250, Balance: -63_794, Timestamp: now,
			}
			acct.Balance -= 187_250
			if err := st.SaveTrade(ctx, acct, pos, false, tradeEntry); err != nil {
				t.Fatalf("SaveTrade: %v", err)
			}

			paid := model.PaidDividend{UserID: "alice", Symbol: "AAPL", ExDate: now}
			if err := st.SavePayout(ctx, acct, paid, nil); err != nil {
				t.Fatalf("SavePayout: %v", err)
			}

			snap, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(snap.Accounts) != 1 {
				t.Fatalf("expected 1 account, got %d", len(snap.Accounts))
			}
			got := snap.Accounts[0]
			if got.UserID != "alice" || got.Balance != acct.Balance {
				t.Errorf("account = %+v, want user alice balance %d", got, acct.Balance)
			}
			if got.LastDailyClaim == nil || !got.LastDailyClaim.Equal(now) {
				t.Errorf("last daily claim = %v, want %v", got.LastDailyClaim, now)
			}
			if len(snap.Positions) != 1 {
				t.Fatalf("expected 1 position, got %d", len(snap.Positions))
			}
			p := snap.Positions[0]
			if p.Symbol != "AAPL" || p.Quantity != 10 {
				t.Errorf("position = %+v", p)
			}
			if !p.AvgCost.Equal(decimal.NewFromFloat(187.25)) {
				t.Errorf("avg cost = %s, want 187.25", p.AvgCost)
			}
			if !p.Leverage.Equal(decimal.NewFromInt(2)) {
				t.Errorf("leverage = %s, want 2", p.Leverage)
			}
			if len(snap.Paid) != 1 || snap.Paid[0].Symbol != "AAPL" {
				t.Errorf("paid dividends = %+v", snap.Paid)
			}
		})
	}
}

func TestSaveTradeRemovesPosition(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			acct := &model.Account{UserID: "bob", Balance: 1000}
			pos := &model.Position{
				UserID: "bob", Symbol: "MSFT", Quantity: 5,
				AvgCost: decimal.NewFromInt(100), Leverage: decimal.NewFromInt(1),
				OpenedAt: time.Now().UTC(),
			}
			if err := st.SaveTrade(ctx, acct, pos, false, nil); err != nil {
				t.Fatalf("SaveTrade open: %v", err)
			}
			if err := st.SaveTrade(ctx, acct, pos, true, nil); err != nil {
				t.Fatalf("SaveTrade close: %v", err)
			}
			snap, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(snap.Positions) != 0 {
				t.Errorf("expected closed position removed, got %+v", snap.Positions)
			}
		})
	}
}

func TestEntriesByUser(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
			from := &model.Account{UserID: "alice", Balance: 500}
			to := &model.Account{UserID: "bob", Balance: 500}
			entry := &model.LedgerEntry{
				ID: "t1", UserID: "alice", Kind: model.EntryTransfer,
				Counterparty: "bob", Price: decimal.Zero,
				Amount: -500, Balance: 500, Timestamp: base,
			}
			if err := st.SaveAccountPair(ctx, from, to, entry); err != nil {
				t.Fatalf("SaveAccountPair: %v", err)
			}
			if err := st.SaveAccount(ctx, from, &model.LedgerEntry{
				ID: "t2", UserID: "alice", Kind: model.EntryDaily,
				Price: decimal.Zero, Amount: 1000, Balance: 1500,
				Timestamp: base.Add(time.Minute),
			}); err != nil {
				t.Fatalf("SaveAccount: %v", err)
			}

			// The transfer shows up for both parties.
			for _, user := range []string{"alice", "bob"} {
				entries, err := st.EntriesByUser(ctx, user, 10)
				if err != nil {
					t.Fatalf("EntriesByUser(%s): %v", user, err)
				}
				found := false
				for _, e := range entries {
					if e.ID == "t1" {
						found = true
					}
				}
				if !found {
					t.Errorf("transfer entry missing from %s's trail: %+v", user, entries)
				}
			}

			// Newest first.
			entries, err := st.EntriesByUser(ctx, "alice", 10)
			if err != nil {
				t.Fatalf("EntriesByUser: %v", err)
			}
			if len(entries) != 2 || entries[0].ID != "t2" {
				t.Errorf("expected newest-first [t2 t1], got %+v", entries)
			}
		})
	}
}
