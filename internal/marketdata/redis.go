package marketdata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Kian-Abdalkhani/economy-engine/internal/model"
)

// RedisCache wraps a Provider with a Redis read-through layer so multiple
// engine instances share one provider quota. It sits beneath the
// in-process Cache: reads check Redis first and fall back to the wrapped
// provider, populating Redis on the way out.
type RedisCache struct {
	next   Provider
	rdb    *redis.Client
	ttl    time.Duration
	divTTL time.Duration
}

// NewRedisCache creates the shared cache layer.
func NewRedisCache(next Provider, rdb *redis.Client, quoteTTL, dividendTTL time.Duration) *RedisCache {
	return &RedisCache{next: next, rdb: rdb, ttl: quoteTTL, divTTL: dividendTTL}
}

func (c *RedisCache) Quote(ctx context.Context, sym string) (model.Quote, error) {
	data, err := c.rdb.Get(ctx, quoteKey(sym)).Bytes()
	if err == nil {
		var q model.Quote
		if json.Unmarshal(data, &q) == nil {
			return q, nil
		}
	}

	q, err := c.next.Quote(ctx, sym)
	if err != nil {
		return model.Quote{}, err
	}
	if data, err := json.Marshal(q); err == nil {
		// Best effort: a Redis outage must not fail the lookup.
		c.rdb.Set(ctx, quoteKey(sym), data, c.ttl)
	}
	return q, nil
}

func (c *RedisCache) Dividends(ctx context.Context, sym string) ([]model.DividendRecord, error) {
	data, err := c.rdb.Get(ctx, dividendKey(sym)).Bytes()
	if err == nil {
		var records []model.DividendRecord
		if json.Unmarshal(data, &records) == nil {
			return records, nil
		}
	}

	records, err := c.next.Dividends(ctx, sym)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(records); err == nil {
		c.rdb.Set(ctx, dividendKey(sym), data, c.divTTL)
	}
	return records, nil
}

func quoteKey(sym string) string    { return "md:quote:" + sym }
func dividendKey(sym string) string { return "md:div:" + sym }
