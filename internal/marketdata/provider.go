// Package marketdata fetches and caches third-party price and dividend
// data, isolating the rest of the engine from external-service latency,
// failures, and rate limits.
package marketdata

import (
	"context"
	"errors"

	"github.com/Kian-Abdalkhani/economy-engine/internal/model"
)

// ErrUnavailable is returned when a price or dividend lookup fails and no
// cached value exists. Provider errors and missing-symbol responses are
// recoverable failures, never crashes.
var ErrUnavailable = errors.New("marketdata: market data unavailable")

// Provider is the external price/dividend data source.
type Provider interface {
	// Quote returns the current price for one symbol.
	Quote(ctx context.Context, symbol string) (model.Quote, error)

	// Dividends returns the known dividend records for one symbol,
	// oldest first.
	Dividends(ctx context.Context, symbol string) ([]model.DividendRecord, error)
}
