package taostats

import (
	"context"

	"taostats/internal/sdkerr"
	"taostats/internal/txn"
)

// StakeModule stakes TAO.
type StakeModule struct{ p *txn.Pipeline }

// ToRoot stakes to the root network; params.Netuid is ignored.
func (m StakeModule) ToRoot(ctx context.Context, params StakeParams) (Outcome, error) {
	params.Netuid = 0
	return m.p.Stake(ctx, params)
}

// Alpha stakes into a subnet pool with slippage protection.
func (m StakeModule) Alpha(ctx context.Context, params StakeParams) (Outcome, error) {
	if err := requireSubnet(txn.OpStake, params.Netuid); err != nil {
		return Outcome{}, err
	}
	return m.p.Stake(ctx, params)
}

func (m StakeModule) Estimate(ctx context.Context, params StakeParams) (Estimate, error) {
	return m.p.EstimateStake(ctx, params)
}

// UnstakeModule unstakes Alpha or root stake.
type UnstakeModule struct{ p *txn.Pipeline }

func (m UnstakeModule) FromRoot(ctx context.Context, params StakeParams) (Outcome, error) {
	params.Netuid = 0
	return m.p.Unstake(ctx, params)
}

func (m UnstakeModule) Alpha(ctx context.Context, params StakeParams) (Outcome, error) {
	if err := requireSubnet(txn.OpUnstake, params.Netuid); err != nil {
		return Outcome{}, err
	}
	return m.p.Unstake(ctx, params)
}

func (m UnstakeModule) Estimate(ctx context.Context, params StakeParams) (Estimate, error) {
	return m.p.EstimateUnstake(ctx, params)
}

// TransferModule moves TAO and Alpha between accounts.
type TransferModule struct{ p *txn.Pipeline }

func (m TransferModule) TAO(ctx context.Context, params TransferParams) (Outcome, error) {
	return m.p.TransferTAO(ctx, params)
}

func (m TransferModule) Alpha(ctx context.Context, params AlphaTransferParams) (Outcome, error) {
	return m.p.TransferAlpha(ctx, params)
}

func (m TransferModule) EstimateCost(ctx context.Context, params TransferParams) (TransferCost, error) {
	return m.p.EstimateTransferCost(ctx, params)
}

// MaxTransferable is the largest TAO amount that keeps the sender alive.
func (m TransferModule) MaxTransferable(ctx context.Context, to, from string) (MaxTransfer, error) {
	return m.p.MaxTransferable(ctx, to, from)
}

// MoveModule moves stake between hotkeys and subnets.
type MoveModule struct{ p *txn.Pipeline }

func (m MoveModule) Stake(ctx context.Context, params MoveParams) (Outcome, error) {
	return m.p.Move(ctx, params)
}

func requireSubnet(op string, netuid int) error {
	if netuid == 0 {
		return sdkerr.Invalid(op, "netuid", "0", "alpha operations need a subnet netuid; use the root methods for netuid 0")
	}
	return nil
}
