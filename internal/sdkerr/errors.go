// Package sdkerr defines the failure kinds surfaced by the transaction layer.
package sdkerr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind classifies a failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindConfiguration
	KindAccountMismatch
	KindAccountNotFound
	KindInsufficientBalance
	KindInsufficientStake
	KindExistentialDeposit
	KindInsufficientAmount
	KindSlippageExceeded
	KindPoolUnavailable
	KindTransaction
	KindConnection
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindValidation:          "validation",
	KindConfiguration:       "configuration",
	KindAccountMismatch:     "account_mismatch",
	KindAccountNotFound:     "account_not_found",
	KindInsufficientBalance: "insufficient_balance",
	KindInsufficientStake:   "insufficient_stake",
	KindExistentialDeposit:  "existential_deposit",
	KindInsufficientAmount:  "insufficient_amount",
	KindSlippageExceeded:    "slippage_exceeded",
	KindPoolUnavailable:     "pool_unavailable",
	KindTransaction:         "transaction",
	KindConnection:          "connection",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Sentinels for errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrConfiguration       = &Error{Kind: KindConfiguration}
	ErrAccountMismatch     = &Error{Kind: KindAccountMismatch}
	ErrAccountNotFound     = &Error{Kind: KindAccountNotFound}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrInsufficientStake   = &Error{Kind: KindInsufficientStake}
	ErrExistentialDeposit  = &Error{Kind: KindExistentialDeposit}
	ErrInsufficientAmount  = &Error{Kind: KindInsufficientAmount}
	ErrSlippageExceeded    = &Error{Kind: KindSlippageExceeded}
	ErrPoolUnavailable     = &Error{Kind: KindPoolUnavailable}
	ErrTransaction         = &Error{Kind: KindTransaction}
	ErrConnection          = &Error{Kind: KindConnection}
)

// Error is a classified failure. Numeric fields are set when the kind carries them.
type Error struct {
	Kind Kind
	// Op names the operation, e.g. "stake" or "transfer tao".
	Op  string
	Msg string
	// Field and Value identify the offending input of a validation error.
	Field string
	Value string

	Required  *decimal.Decimal
	Available *decimal.Decimal
	// Max is the largest amount that would have succeeded.
	Max *decimal.Decimal

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(e.Kind.String())
	}
	if e.Required != nil && e.Available != nil {
		fmt.Fprintf(&b, " (required %s, available %s)", e.Required, e.Available)
	}
	if e.Max != nil {
		fmt.Fprintf(&b, " (max %s)", e.Max)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == ""
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// New builds an error of kind.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an error of kind around cause.
func Wrap(kind Kind, op string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// Invalid reports a malformed input value.
func Invalid(op, field, value, reason string) *Error {
	return &Error{
		Kind:  KindValidation,
		Op:    op,
		Field: field,
		Value: value,
		Msg:   fmt.Sprintf("invalid %s %q: %s", field, value, reason),
	}
}

// Shortfall reports that required exceeds available.
func Shortfall(kind Kind, op, msg string, required, available decimal.Decimal) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Required: &required, Available: &available}
}
