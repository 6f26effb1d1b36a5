package txn

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"taostats/internal/keyring"
	"taostats/internal/sdkerr"
	"taostats/internal/units"
)

// DefaultTolerance is the slippage tolerance used when none is given, as a fraction.
var DefaultTolerance = decimal.RequireFromString("0.05")

var one = decimal.NewFromInt(1)

// ValidateAddress decodes an SS58 address into its account id.
func ValidateAddress(op, field, value string) ([32]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return [32]byte{}, sdkerr.Invalid(op, field, value, "address is empty")
	}
	id, err := keyring.DecodeAddress(value)
	if err != nil {
		return [32]byte{}, sdkerr.Invalid(op, field, value, "not a valid ss58 address")
	}
	return id, nil
}

// ValidateAmount parses a human amount and bounds it to (0, units.MaxAmount].
func ValidateAmount(op, value string) (decimal.Decimal, error) {
	amount, err := units.ParseAmount(value)
	if err != nil {
		return decimal.Zero, sdkerr.Invalid(op, "amount", value, "amount must be a valid number")
	}
	if !amount.IsPositive() {
		return decimal.Zero, sdkerr.Invalid(op, "amount", value, "amount must be greater than 0")
	}
	if amount.GreaterThan(units.MaxAmount) {
		return decimal.Zero, sdkerr.Invalid(op, "amount", value, "amount exceeds maximum of "+units.MaxAmount.String())
	}
	return amount, nil
}

// ValidateNetuid checks that netuid fits the chain's u16 subnet id.
func ValidateNetuid(op, field string, netuid int) (uint16, error) {
	if netuid < 0 {
		return 0, sdkerr.Invalid(op, field, strconv.Itoa(netuid), "subnet id must be non-negative")
	}
	if netuid > math.MaxUint16 {
		return 0, sdkerr.Invalid(op, field, strconv.Itoa(netuid), "subnet id exceeds 65535")
	}
	return uint16(netuid), nil
}

// ValidateTolerance parses a slippage tolerance fraction in [0, 1]. Empty
// means DefaultTolerance.
func ValidateTolerance(op, value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultTolerance, nil
	}
	tol, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, sdkerr.Invalid(op, "slippage tolerance", value, "must be a number")
	}
	if tol.IsNegative() {
		return decimal.Zero, sdkerr.Invalid(op, "slippage tolerance", value, "cannot be negative")
	}
	if tol.GreaterThan(one) {
		return decimal.Zero, sdkerr.Invalid(op, "slippage tolerance", value, "cannot exceed 1.0 (100%)")
	}
	return tol, nil
}

// validateFrom accepts an empty source address.
func validateFrom(op, from string) error {
	if strings.TrimSpace(from) == "" {
		return nil
	}
	_, err := ValidateAddress(op, "from", from)
	return err
}
