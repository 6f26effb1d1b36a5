// Package fee estimates transaction fees by asking the runtime for the
// payment info of the exact call a transaction would submit.
package fee

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"taostats/internal/chain"
	"taostats/internal/keyring"
	"taostats/internal/sdkerr"
	"taostats/internal/units"
)

// PaymentInfo returns the raw partial fee of call signed by signer.
type PaymentInfo interface {
	PaymentInfo(ctx context.Context, call chain.Call, signer chain.Signer) (*big.Int, error)
}

// Estimator prices calls. Calls are signed for estimation only and never submitted.
type Estimator struct {
	payments PaymentInfo
	calls    *chain.Calls
	logger   *zap.Logger
}

func NewEstimator(payments PaymentInfo, calls *chain.Calls, logger *zap.Logger) *Estimator {
	if calls == nil {
		calls = chain.NewCalls(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{payments: payments, calls: calls, logger: logger}
}

// StakeFee prices add_stake of amount TAO to hotkey on netuid.
func (e *Estimator) StakeFee(ctx context.Context, signer chain.Signer, hotkey string, netuid uint16, amount decimal.Decimal) (decimal.Decimal, error) {
	const op = "estimate stake fee"
	hk, raw, err := keyAndAmount(op, hotkey, amount)
	if err != nil {
		return decimal.Zero, err
	}
	call, err := e.calls.AddStake(hk, netuid, raw)
	if err != nil {
		return decimal.Zero, err
	}
	return e.estimate(ctx, op, call, signer)
}

// UnstakeFee prices remove_stake of amount Alpha from hotkey on netuid.
func (e *Estimator) UnstakeFee(ctx context.Context, signer chain.Signer, hotkey string, netuid uint16, amount decimal.Decimal) (decimal.Decimal, error) {
	const op = "estimate unstake fee"
	hk, raw, err := keyAndAmount(op, hotkey, amount)
	if err != nil {
		return decimal.Zero, err
	}
	call, err := e.calls.RemoveStake(hk, netuid, raw)
	if err != nil {
		return decimal.Zero, err
	}
	return e.estimate(ctx, op, call, signer)
}

// TransferFee prices transfer_keep_alive of amount TAO to the address to.
func (e *Estimator) TransferFee(ctx context.Context, signer chain.Signer, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	const op = "estimate transfer fee"
	dest, raw, err := keyAndAmount(op, to, amount)
	if err != nil {
		return decimal.Zero, err
	}
	call, err := e.calls.TransferKeepAlive(dest, raw)
	if err != nil {
		return decimal.Zero, err
	}
	return e.estimate(ctx, op, call, signer)
}

// AlphaTransfer describes a transfer_stake call.
type AlphaTransfer struct {
	To                string
	Hotkey            string
	OriginNetuid      uint16
	DestinationNetuid uint16
	Amount            decimal.Decimal
}

// AlphaTransferFee prices transfer_stake. Any failure falls back to
// units.StakeFee so an alpha transfer can always be quoted.
func (e *Estimator) AlphaTransferFee(ctx context.Context, signer chain.Signer, p AlphaTransfer) decimal.Decimal {
	fee, err := e.alphaTransferFee(ctx, signer, p)
	if err != nil {
		fallback := units.StakeFee()
		e.logger.Warn("alpha transfer fee estimation failed, using fallback",
			zap.Uint16("origin_netuid", p.OriginNetuid),
			zap.Uint16("destination_netuid", p.DestinationNetuid),
			zap.String("fallback", fallback.String()),
			zap.Error(err),
		)
		return fallback
	}
	return fee
}

func (e *Estimator) alphaTransferFee(ctx context.Context, signer chain.Signer, p AlphaTransfer) (decimal.Decimal, error) {
	const op = "estimate alpha transfer fee"
	dest, raw, err := keyAndAmount(op, p.To, p.Amount)
	if err != nil {
		return decimal.Zero, err
	}
	hk, err := keyring.DecodeAddress(p.Hotkey)
	if err != nil {
		return decimal.Zero, sdkerr.Invalid(op, "hotkey", p.Hotkey, err.Error())
	}
	call, err := e.calls.TransferStake(dest, hk, p.OriginNetuid, p.DestinationNetuid, raw)
	if err != nil {
		return decimal.Zero, err
	}
	return e.estimate(ctx, op, call, signer)
}

// Move describes a move_stake call.
type Move struct {
	OriginHotkey      string
	DestinationHotkey string
	OriginNetuid      uint16
	DestinationNetuid uint16
	Amount            decimal.Decimal
}

// MoveFee prices move_stake.
func (e *Estimator) MoveFee(ctx context.Context, signer chain.Signer, p Move) (decimal.Decimal, error) {
	const op = "estimate move fee"
	origin, raw, err := keyAndAmount(op, p.OriginHotkey, p.Amount)
	if err != nil {
		return decimal.Zero, err
	}
	dest, err := keyring.DecodeAddress(p.DestinationHotkey)
	if err != nil {
		return decimal.Zero, sdkerr.Invalid(op, "destination hotkey", p.DestinationHotkey, err.Error())
	}
	call, err := e.calls.MoveStake(origin, dest, p.OriginNetuid, p.DestinationNetuid, raw)
	if err != nil {
		return decimal.Zero, err
	}
	return e.estimate(ctx, op, call, signer)
}

func (e *Estimator) estimate(ctx context.Context, op string, call chain.Call, signer chain.Signer) (decimal.Decimal, error) {
	raw, err := e.payments.PaymentInfo(ctx, call, signer)
	if err != nil {
		return decimal.Zero, sdkerr.Wrap(sdkerr.KindTransaction, op, err, "payment info for %s", call)
	}
	fee := units.BigRaoToTao(raw)
	e.logger.Debug("estimated fee", zap.Stringer("call", call), zap.String("fee", fee.String()))
	return fee, nil
}

func keyAndAmount(op, address string, amount decimal.Decimal) ([32]byte, uint64, error) {
	id, err := keyring.DecodeAddress(address)
	if err != nil {
		return id, 0, sdkerr.Invalid(op, "address", address, err.Error())
	}
	raw, err := units.TaoToRao(amount)
	if err != nil {
		return id, 0, sdkerr.Invalid(op, "amount", amount.String(), fmt.Sprint(err))
	}
	return id, raw, nil
}
