// Package util provides tick-size price rounding, used by the validator
// when it derives SL/TP prices, so the exit prices later quoted to the
// broker land on a valid exchange increment.
package util

import "github.com/shopspring/decimal"

// RoundToTick rounds x to the nearest multiple of tick. A non-positive
// tick is treated as "no rounding" and x is returned unchanged.
func RoundToTick(x, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return x
	}
	return x.DivRound(tick, 0).Mul(tick)
}

// FloorToTick rounds down to the nearest tick, used for a stop-loss price
// so the protective trigger is never rounded past the intended level.
func FloorToTick(x, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return x
	}
	return x.Div(tick).Floor().Mul(tick)
}

// CeilToTick rounds up to the nearest tick, used for a take-profit price
// so the target is never rounded below the intended level.
func CeilToTick(x, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return x
	}
	return x.Div(tick).Ceil().Mul(tick)
}
