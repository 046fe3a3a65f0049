// Package symbol handles stock ticker symbol normalization and validation.
package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidSymbol is returned for ticker strings the engine will not
// forward to the market data provider.
var ErrInvalidSymbol = errors.New("symbol: invalid ticker symbol")

// symbolRegex matches normalized tickers: 1-10 characters, letters and
// digits with the separators real exchanges use (BRK.B, BF-B, ^GSPC).
var symbolRegex = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9.\-]{0,9}$`)

// Normalize upper-cases and validates a ticker symbol.
// Returns ErrInvalidSymbol for anything that is not a plausible ticker.
func Normalize(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if !symbolRegex.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	return s, nil
}
