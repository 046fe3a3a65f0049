// Package pricing implements the money math for the trading engine.
//
// Leverage scales the price-change-driven profit or loss at close, never
// the entry debit and never the full proceeds. Proceeds is the only place
// in the engine where a leverage multiplier is applied; callers must not
// scale its result again.
//
// All monetary values use shopspring/decimal — never float64 for money.
package pricing

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Cost returns the cash required to open qty shares at price. The user
// posts full notional margin: leverage does not reduce or scale the entry
// debit.
func Cost(qty int64, price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(qty))
}

// Proceeds returns the cash returned by closing qty shares bought at
// avgCost with the given leverage, at the current price:
//
//	qty * (avgCost + leverage * (price - avgCost))
//
// With leverage 1 this reduces to qty * price. Proceeds can be negative
// when a leveraged loss exceeds the posted margin; callers clamp.
func Proceeds(qty int64, avgCost, price, leverage decimal.Decimal) decimal.Decimal {
	perShare := avgCost.Add(leverage.Mul(price.Sub(avgCost)))
	return perShare.Mul(decimal.NewFromInt(qty))
}

// UnrealizedPnL returns the leveraged mark-to-market gain or loss on an
// open position of qty shares: qty * leverage * (price - avgCost).
func UnrealizedPnL(qty int64, avgCost, price, leverage decimal.Decimal) decimal.Decimal {
	return leverage.Mul(price.Sub(avgCost)).Mul(decimal.NewFromInt(qty))
}

// WeightedAverageCost re-averages a position's cost basis after buying
// addQty more shares at price on top of oldQty shares at oldAvg.
func WeightedAverageCost(oldQty int64, oldAvg decimal.Decimal, addQty int64, price decimal.Decimal) decimal.Decimal {
	oldTotal := oldAvg.Mul(decimal.NewFromInt(oldQty))
	addTotal := price.Mul(decimal.NewFromInt(addQty))
	return oldTotal.Add(addTotal).Div(decimal.NewFromInt(oldQty + addQty))
}

// Cents floors a currency amount to whole minor units. The fractional
// remainder is discarded, never credited elsewhere. Callers clamp negative
// amounts before converting; Cents itself floors toward negative infinity.
func Cents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Floor().IntPart()
}

// FromCents converts minor units back to a decimal currency amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(hundred)
}
