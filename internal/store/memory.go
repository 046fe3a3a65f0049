package store

import (
	"context"
	"sync"

	"github.com/Kian-Abdalkhani/economy-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]model.Account
	// positions keyed by userID then symbol
	positions map[string]map[string]model.Position
	paid      map[model.PaidDividend]bool
	entries   []model.LedgerEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]model.Account),
		positions: make(map[string]map[string]model.Position),
		paid:      make(map[model.PaidDividend]bool),
	}
}

func (s *MemoryStore) Load(_ context.Context) (*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &model.Snapshot{}
	for _, a := range s.accounts {
		snap.Accounts = append(snap.Accounts, a)
	}
	for _, bySymbol := range s.positions {
		for _, p := range bySymbol {
			snap.Positions = append(snap.Positions, p)
		}
	}
	for pd := range s.paid {
		snap.Paid = append(snap.Paid, pd)
	}
	return snap, nil
}

func (s *MemoryStore) SaveAccount(_ context.Context, acct *model.Account, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[acct.UserID] = *acct
	s.appendEntry(entry)
	return nil
}

func (s *MemoryStore) SaveAccountPair(_ context.Context, from, to *model.Account, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[from.UserID] = *from
	s.accounts[to.UserID] = *to
	s.appendEntry(entry)
	return nil
}

func (s *MemoryStore) SaveTrade(_ context.Context, acct *model.Account, pos *model.Position, removePos bool, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[acct.UserID] = *acct
	if removePos {
		delete(s.positions[pos.UserID], pos.Symbol)
	} else {
		bySymbol := s.positions[pos.UserID]
		if bySymbol == nil {
			bySymbol = make(map[string]model.Position)
			s.positions[pos.UserID] = bySymbol
		}
		bySymbol[pos.Symbol] = *pos
	}
	s.appendEntry(entry)
	return nil
}

func (s *MemoryStore) SavePayout(_ context.Context, acct *model.Account, paid model.PaidDividend, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[acct.UserID] = *acct
	s.paid[paid] = true
	s.appendEntry(entry)
	return nil
}

func (s *MemoryStore) EntriesByUser(_ context.Context, userID string, limit int) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.LedgerEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].UserID == userID || s.entries[i].Counterparty == userID {
			out = append(out, s.entries[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) appendEntry(entry *model.LedgerEntry) {
	if entry != nil {
		s.entries = append(s.entries, *entry)
	}
}
