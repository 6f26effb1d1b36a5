// Package slippage quotes stake, unstake and stake transfer conversions on
// the constant-product subnet pools and derives their slippage.
package slippage

import (
	"github.com/shopspring/decimal"

	"taostats/internal/sdkerr"
)

// Precision is the number of decimal places kept by quote divisions.
const Precision = 18

var hundred = decimal.NewFromInt(100)

// ConstantProduct returns the output of swapping in against reserves rin/rout
// holding rin*rout constant.
func ConstantProduct(in, rin, rout decimal.Decimal) (decimal.Decimal, error) {
	if !rin.IsPositive() || !rout.IsPositive() {
		return decimal.Zero, sdkerr.New(sdkerr.KindPoolUnavailable, "quote",
			"pool reserves must be positive (input reserve %s, output reserve %s)", rin, rout)
	}
	k := rin.Mul(rout)
	routNew := k.DivRound(rin.Add(in), Precision)
	return rout.Sub(routNew), nil
}

// AlphaFromTao quotes the Alpha received for taoIn.
func AlphaFromTao(taoIn, taoReserve, alphaReserve decimal.Decimal) (decimal.Decimal, error) {
	return ConstantProduct(taoIn, taoReserve, alphaReserve)
}

// TaoFromAlpha quotes the TAO received for alphaIn.
func TaoFromAlpha(alphaIn, alphaReserve, taoReserve decimal.Decimal) (decimal.Decimal, error) {
	return ConstantProduct(alphaIn, alphaReserve, taoReserve)
}

// Percent is the shortfall of actual against ideal in percent, floored at zero.
func Percent(ideal, actual decimal.Decimal) decimal.Decimal {
	if !ideal.IsPositive() {
		return decimal.Zero
	}
	p := ideal.Sub(actual).DivRound(ideal, Precision).Mul(hundred)
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}
