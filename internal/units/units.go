// Package units converts between human-denominated TAO/Alpha amounts and the
// integer raw units the chain stores.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits of TAO and Alpha.
const Decimals = 9

const (
	// StakeFeeRao is the fallback staking fee used when estimation fails.
	StakeFeeRao uint64 = 50000
	// MinLiquidityRao is the smallest pool reserve considered tradable.
	MinLiquidityRao uint64 = 5000000
)

var (
	raoPerTao = decimal.New(1, Decimals)
	maxRaw    = decimal.NewFromBigInt(new(big.Int).SetUint64(^uint64(0)), 0)

	// ExistentialDeposit is the minimum free balance an account keeps alive, in TAO.
	ExistentialDeposit = decimal.RequireFromString("0.0000005")
	// MaxAmount caps every user supplied amount.
	MaxAmount = decimal.NewFromInt(1_000_000)
	// OneRao is the smallest representable amount in TAO.
	OneRao = decimal.New(1, -Decimals)
)

// ParseAmount parses a decimal string such as "1.25".
func ParseAmount(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return d, nil
}

// TaoToRao scales a human amount to raw units, truncating below 1e-9.
func TaoToRao(amount decimal.Decimal) (uint64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("negative amount %s", amount)
	}
	raw := amount.Mul(raoPerTao).Truncate(0)
	if raw.GreaterThan(maxRaw) {
		return 0, fmt.Errorf("amount %s overflows u64 raw units", amount)
	}
	return raw.BigInt().Uint64(), nil
}

// RaoToTao scales raw units to the human amount.
func RaoToTao(raw uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -Decimals)
}

// BigRaoToTao scales a raw u128 value to the human amount.
func BigRaoToTao(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -Decimals)
}

// StakeFee is StakeFeeRao in TAO.
func StakeFee() decimal.Decimal {
	return RaoToTao(StakeFeeRao)
}
