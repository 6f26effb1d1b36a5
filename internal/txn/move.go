package txn

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"taostats/internal/fee"
	"taostats/internal/sdkerr"
	"taostats/internal/slippage"
	"taostats/internal/units"
)

// MoveParams describes a move_stake: the caller's stake moves between
// hotkeys and subnets while the coldkey stays the same.
type MoveParams struct {
	OriginHotkey              string
	DestinationHotkey         string
	OriginNetuid              int
	DestinationNetuid         int
	Amount                    string
	Tolerance                 string
	DisableSlippageProtection bool
	From                      string
	Nonce                     *uint32
}

// Move moves stake. Cross-subnet moves convert through both pools and are
// slippage protected like alpha transfers.
func (p *Pipeline) Move(ctx context.Context, params MoveParams) (Outcome, error) {
	const op = OpMove
	originHotkey, err := ValidateAddress(op, "origin hotkey", params.OriginHotkey)
	if err != nil {
		return Outcome{}, err
	}
	destHotkey, err := ValidateAddress(op, "destination hotkey", params.DestinationHotkey)
	if err != nil {
		return Outcome{}, err
	}
	origin, err := ValidateNetuid(op, "origin netuid", params.OriginNetuid)
	if err != nil {
		return Outcome{}, err
	}
	destination, err := ValidateNetuid(op, "destination netuid", params.DestinationNetuid)
	if err != nil {
		return Outcome{}, err
	}
	amount, err := ValidateAmount(op, params.Amount)
	if err != nil {
		return Outcome{}, err
	}
	tolerance, err := ValidateTolerance(op, params.Tolerance)
	if err != nil {
		return Outcome{}, err
	}
	if err := validateFrom(op, params.From); err != nil {
		return Outcome{}, err
	}
	signer, err := p.signer(params.From)
	if err != nil {
		return Outcome{}, err
	}
	coldkey := signer.Address()

	if err := p.requireSubnets(ctx, op, origin, destination); err != nil {
		return Outcome{}, err
	}

	var originStake, destStake decimal.Decimal
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		originStake, err = p.balances.Stake(gctx, params.OriginHotkey, coldkey, origin)
		return err
	})
	g.Go(func() error {
		var err error
		destStake, err = p.balances.Stake(gctx, params.DestinationHotkey, coldkey, destination)
		return err
	})
	if err := g.Wait(); err != nil {
		return Outcome{}, fmt.Errorf("move stake: %w", err)
	}
	if originStake.LessThan(amount) {
		return Outcome{}, sdkerr.Shortfall(sdkerr.KindInsufficientStake, op,
			fmt.Sprintf("insufficient stake on hotkey %s in subnet %d", params.OriginHotkey, origin), amount, originStake)
	}

	moveFee, err := p.fees.MoveFee(ctx, signer, fee.Move{
		OriginHotkey:      params.OriginHotkey,
		DestinationHotkey: params.DestinationHotkey,
		OriginNetuid:      origin,
		DestinationNetuid: destination,
		Amount:            amount,
	})
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Operation:              op,
		From:                   coldkey,
		Hotkey:                 params.OriginHotkey,
		DestinationHotkey:      params.DestinationHotkey,
		OriginNetuid:           u16(origin),
		DestinationNetuid:      u16(destination),
		Amount:                 amount,
		Fee:                    moveFee,
		Received:               decPtr(amount),
		OriginStakeBefore:      decPtr(originStake),
		DestinationStakeBefore: decPtr(destStake),
	}

	if origin != destination {
		quote, err := p.quotes.AlphaTransfer(ctx, slippage.AlphaTransferParams{
			OriginNetuid:      origin,
			DestinationNetuid: destination,
			Amount:            amount,
		}, moveFee)
		if err != nil {
			return Outcome{}, err
		}
		p.observe(op, quote)
		out.Slippage = &quote
		out.Received = decPtr(quote.Received)
		if !params.DisableSlippageProtection && quote.Exceeds(tolerancePercent(tolerance)) {
			return p.blocked(ctx, out, slippageReason(quote, tolerance)), nil
		}
	}

	raw, err := units.TaoToRao(amount)
	if err != nil {
		return Outcome{}, sdkerr.Invalid(op, "amount", params.Amount, err.Error())
	}
	call, err := p.calls.MoveStake(originHotkey, destHotkey, origin, destination, raw)
	if err != nil {
		return Outcome{}, err
	}
	out = p.submit(ctx, out, call, signer, params.Nonce)
	if out.Success {
		out.OriginStakeAfter = p.stakeAfter(ctx, params.OriginHotkey, coldkey, origin)
		out.DestinationStakeAfter = p.stakeAfter(ctx, params.DestinationHotkey, coldkey, destination)
	}
	return out, nil
}
