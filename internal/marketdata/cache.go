package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Kian-Abdalkhani/economy-engine/internal/metrics"
	"github.com/Kian-Abdalkhani/economy-engine/internal/model"
)

// Cache is the in-process TTL cache in front of a Provider.
//
// Rate-limit discipline: at most one outstanding fetch per symbol at a
// time. Concurrent callers for the same stale symbol share the result of a
// single in-flight fetch via singleflight.
//
// Graceful degradation: if a refresh fails and a cached value exists, the
// stale value is returned with its Stale flag set instead of failing.
type Cache struct {
	provider Provider
	ttl      time.Duration
	divTTL   time.Duration
	now      func() time.Time

	sf singleflight.Group

	mu     sync.RWMutex
	quotes map[string]model.Quote
	divs   map[string]dividendEntry
}

type dividendEntry struct {
	records   []model.DividendRecord
	fetchedAt time.Time
}

// NewCache creates a cache with separate TTLs for quotes and dividend
// records (dividend data changes far less often).
func NewCache(p Provider, quoteTTL, dividendTTL time.Duration) *Cache {
	return &Cache{
		provider: p,
		ttl:      quoteTTL,
		divTTL:   dividendTTL,
		now:      time.Now,
		quotes:   make(map[string]model.Quote),
		divs:     make(map[string]dividendEntry),
	}
}

// Price returns the current price for sym, fetching from the provider only
// when the cached value is older than the TTL. Returns ErrUnavailable only
// when the provider fails and nothing is cached.
func (c *Cache) Price(ctx context.Context, sym string) (model.Quote, error) {
	c.mu.RLock()
	q, ok := c.quotes[sym]
	c.mu.RUnlock()
	if ok && c.now().Sub(q.FetchedAt) < c.ttl {
		metrics.MarketDataRequests.WithLabelValues("cache").Inc()
		return q, nil
	}

	v, err, _ := c.sf.Do("quote:"+sym, func() (any, error) {
		fresh, err := c.provider.Quote(ctx, sym)
		if err != nil {
			return model.Quote{}, err
		}
		// Counted here so the provider label tracks actual upstream
		// fetches, not the callers coalesced onto one.
		metrics.MarketDataRequests.WithLabelValues("provider").Inc()
		c.mu.Lock()
		c.quotes[sym] = fresh
		c.mu.Unlock()
		return fresh, nil
	})
	if err == nil {
		return v.(model.Quote), nil
	}

	// Provider failed: degrade to the stale value if one exists.
	if ok {
		metrics.MarketDataRequests.WithLabelValues("stale").Inc()
		slog.Warn("serving stale quote", "symbol", sym, "age", c.now().Sub(q.FetchedAt), "err", err)
		q.Stale = true
		return q, nil
	}
	metrics.MarketDataRequests.WithLabelValues("error").Inc()
	return model.Quote{}, fmt.Errorf("%w: quote %s: %v", ErrUnavailable, sym, err)
}

// Dividends returns the dividend records for sym under the same caching
// discipline as Price.
func (c *Cache) Dividends(ctx context.Context, sym string) ([]model.DividendRecord, error) {
	c.mu.RLock()
	entry, ok := c.divs[sym]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.fetchedAt) < c.divTTL {
		return entry.records, nil
	}

	v, err, _ := c.sf.Do("div:"+sym, func() (any, error) {
		records, err := c.provider.Dividends(ctx, sym)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.divs[sym] = dividendEntry{records: records, fetchedAt: c.now()}
		c.mu.Unlock()
		return records, nil
	})
	if err == nil {
		return v.([]model.DividendRecord), nil
	}

	if ok {
		slog.Warn("serving stale dividend records", "symbol", sym, "err", err)
		return entry.records, nil
	}
	return nil, fmt.Errorf("%w: dividends %s: %v", ErrUnavailable, sym, err)
}
