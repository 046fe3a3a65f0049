package trading

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidQuantity is returned when an order's share count is zero
	// or negative.
	ErrInvalidQuantity = errors.New("trading: quantity must be positive")

	// ErrOrderTooLarge is returned when an order exceeds the per-order
	// share cap.
	ErrOrderTooLarge = errors.New("trading: order exceeds share limit")

	// ErrLeverageOutOfRange is returned when the requested leverage sits
	// outside the allowed bounds.
	ErrLeverageOutOfRange = errors.New("trading: leverage out of range")
)

// OrderPolicy validates orders before they reach execution. Limits are
// fixed at construction; the zero value rejects everything.
type OrderPolicy struct {
	// MaxShares is the maximum share count for a single order.
	MaxShares int64

	// MinLeverage and MaxLeverage bound the leverage multiplier a buy may
	// request. Leverage 1 is an unleveraged position.
	MinLeverage decimal.Decimal
	MaxLeverage decimal.Decimal
}

func NewOrderPolicy(maxShares int64, maxLeverage decimal.Decimal) *OrderPolicy {
	return &OrderPolicy{
		MaxShares:   maxShares,
		MinLeverage: decimal.NewFromInt(1),
		MaxLeverage: maxLeverage,
	}
}

// CheckOrder validates the share count for any order.
func (p *OrderPolicy) CheckOrder(quantity int64) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > p.MaxShares {
		return ErrOrderTooLarge
	}
	return nil
}

// CheckLeverage validates the leverage multiplier on a buy.
func (p *OrderPolicy) CheckLeverage(leverage decimal.Decimal) error {
	if leverage.LessThan(p.MinLeverage) || leverage.GreaterThan(p.MaxLeverage) {
		return ErrLeverageOutOfRange
	}
	return nil
}
