package txn

import (
	"github.com/shopspring/decimal"

	"taostats/internal/sdkerr"
	"taostats/internal/slippage"
	"taostats/internal/units"
)

var hundred = decimal.NewFromInt(100)

// StakeLimitPrice is the least Alpha per TAO a stake accepts,
// (1/price)(1-tolerance), scaled to raw units and floored.
func StakeLimitPrice(price, tolerance decimal.Decimal) (uint64, error) {
	if !price.IsPositive() {
		return 0, sdkerr.New(sdkerr.KindPoolUnavailable, "stake limit price", "spot price %s cannot bound a stake", price)
	}
	limit := one.DivRound(price, slippage.Precision).Mul(one.Sub(tolerance))
	return units.TaoToRao(limit)
}

// UnstakeLimitPrice is the least TAO per Alpha an unstake accepts,
// price(1-tolerance), scaled to raw units and floored.
func UnstakeLimitPrice(price, tolerance decimal.Decimal) (uint64, error) {
	if !price.IsPositive() {
		return 0, sdkerr.New(sdkerr.KindPoolUnavailable, "unstake limit price", "spot price %s cannot bound an unstake", price)
	}
	return units.TaoToRao(price.Mul(one.Sub(tolerance)))
}

// tolerancePercent converts a tolerance fraction to the percent scale of quotes.
func tolerancePercent(tolerance decimal.Decimal) decimal.Decimal {
	return tolerance.Mul(hundred)
}
