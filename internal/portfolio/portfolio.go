// Package portfolio holds the in-memory position book. Positions are keyed
// by user and symbol; mutation ordering is the trading engine's job (it
// serializes per user through the ledger's lock table), this package only
// guards the maps.
package portfolio

import (
	"sort"
	"sync"

	"github.com/Kian-Abdalkhani/economy-engine/internal/model"
)

type Book struct {
	mu        sync.RWMutex
	positions map[string]map[string]model.Position // userID -> symbol -> position
}

func NewBook(snap model.Snapshot) *Book {
	b := &Book{positions: make(map[string]map[string]model.Position)}
	for _, p := range snap.Positions {
		b.set(p)
	}
	return b
}

// Get returns the user's position in symbol, if any.
func (b *Book) Get(userID, symbol string) (model.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.positions[userID][symbol]
	return p, ok
}

// List returns all of the user's open positions, sorted by symbol.
func (b *Book) List(userID string) []model.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bysym := b.positions[userID]
	out := make([]model.Position, 0, len(bysym))
	for _, p := range bysym {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Holders returns every user holding symbol.
func (b *Book) Holders(symbol string) []model.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []model.Position
	for _, bysym := range b.positions {
		if p, ok := bysym[symbol]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Set stores or replaces the position for (p.UserID, p.Symbol).
func (b *Book) Set(p model.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set(p)
}

func (b *Book) set(p model.Position) {
	bysym, ok := b.positions[p.UserID]
	if !ok {
		bysym = make(map[string]model.Position)
		b.positions[p.UserID] = bysym
	}
	bysym[p.Symbol] = p
}

// Remove deletes the user's position in symbol.
func (b *Book) Remove(userID, symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bysym, ok := b.positions[userID]
	if !ok {
		return
	}
	delete(bysym, symbol)
	if len(bysym) == 0 {
		delete(b.positions, userID)
	}
}

// Symbols returns the distinct symbols held across all users, sorted.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, bysym := range b.positions {
		for sym := range bysym {
			seen[sym] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for sym := range seen {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
