package txn

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"taostats/internal/sdkerr"
	"taostats/internal/slippage"
	"taostats/internal/units"
)

// StakeParams describes a stake or unstake. Amount is TAO for stakes and
// Alpha for unstakes. Tolerance is a fraction; empty means DefaultTolerance.
type StakeParams struct {
	Hotkey                    string
	Netuid                    int
	Amount                    string
	Tolerance                 string
	AllowPartial              bool
	DisableSlippageProtection bool
	From                      string
	Nonce                     *uint32
}

type stakeRequest struct {
	hotkey    [32]byte
	netuid    uint16
	amount    decimal.Decimal
	raw       uint64
	tolerance decimal.Decimal
}

func (p StakeParams) validate(op string) (stakeRequest, error) {
	var req stakeRequest
	var err error
	if req.hotkey, err = ValidateAddress(op, "hotkey", p.Hotkey); err != nil {
		return req, err
	}
	if req.netuid, err = ValidateNetuid(op, "netuid", p.Netuid); err != nil {
		return req, err
	}
	if req.amount, err = ValidateAmount(op, p.Amount); err != nil {
		return req, err
	}
	if req.tolerance, err = ValidateTolerance(op, p.Tolerance); err != nil {
		return req, err
	}
	if err = validateFrom(op, p.From); err != nil {
		return req, err
	}
	if req.raw, err = units.TaoToRao(req.amount); err != nil {
		return req, sdkerr.Invalid(op, "amount", p.Amount, err.Error())
	}
	return req, nil
}

// Stake stakes TAO to a hotkey. Root stakes use add_stake; subnet stakes are
// quoted against the pool and submitted as add_stake_limit.
func (p *Pipeline) Stake(ctx context.Context, params StakeParams) (Outcome, error) {
	const op = OpStake
	req, err := params.validate(op)
	if err != nil {
		return Outcome{}, err
	}
	signer, err := p.signer(params.From)
	if err != nil {
		return Outcome{}, err
	}

	stakeFee, err := p.fees.StakeFee(ctx, signer, params.Hotkey, req.netuid, req.amount)
	if err != nil {
		return Outcome{}, err
	}
	free, err := p.balances.FreeBalance(ctx, signer.Address())
	if err != nil {
		return Outcome{}, fmt.Errorf("stake: %w", err)
	}
	if required := req.amount.Add(stakeFee); free.LessThan(required) {
		return Outcome{}, sdkerr.Shortfall(sdkerr.KindInsufficientBalance, op,
			"insufficient free balance for "+signer.Address(), required, free)
	}

	out := Outcome{
		Operation: op,
		From:      signer.Address(),
		Hotkey:    params.Hotkey,
		Netuid:    u16(req.netuid),
		Amount:    req.amount,
		Fee:       stakeFee,
		Received:  decPtr(req.amount.Sub(stakeFee)),
	}

	if req.netuid == 0 {
		call, err := p.calls.AddStake(req.hotkey, 0, req.raw)
		if err != nil {
			return Outcome{}, err
		}
		return p.submit(ctx, out, call, signer, params.Nonce), nil
	}

	quote, err := p.quotes.Stake(ctx, req.amount, req.netuid, stakeFee)
	if err != nil {
		return Outcome{}, err
	}
	p.observe(op, quote)
	out.Slippage = &quote
	if !params.DisableSlippageProtection && quote.Exceeds(tolerancePercent(req.tolerance)) {
		return p.blocked(ctx, out, slippageReason(quote, req.tolerance)), nil
	}

	limit, err := StakeLimitPrice(quote.Pool.Price, req.tolerance)
	if err != nil {
		return Outcome{}, err
	}
	call, err := p.calls.AddStakeLimit(req.hotkey, req.netuid, req.raw, limit, params.AllowPartial)
	if err != nil {
		return Outcome{}, err
	}
	return p.submit(ctx, out, call, signer, params.Nonce), nil
}

// Unstake removes Alpha from a hotkey. Root unstakes use remove_stake; subnet
// unstakes are submitted as remove_stake_limit.
func (p *Pipeline) Unstake(ctx context.Context, params StakeParams) (Outcome, error) {
	const op = OpUnstake
	req, err := params.validate(op)
	if err != nil {
		return Outcome{}, err
	}
	signer, err := p.signer(params.From)
	if err != nil {
		return Outcome{}, err
	}

	staked, err := p.balances.Stake(ctx, params.Hotkey, signer.Address(), req.netuid)
	if err != nil {
		return Outcome{}, fmt.Errorf("unstake: %w", err)
	}
	if staked.LessThan(req.amount) {
		return Outcome{}, sdkerr.Shortfall(sdkerr.KindInsufficientStake, op,
			fmt.Sprintf("insufficient stake on hotkey %s in subnet %d", params.Hotkey, req.netuid), req.amount, staked)
	}

	unstakeFee, err := p.fees.UnstakeFee(ctx, signer, params.Hotkey, req.netuid, req.amount)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Operation:         op,
		From:              signer.Address(),
		Hotkey:            params.Hotkey,
		Netuid:            u16(req.netuid),
		Amount:            req.amount,
		Fee:               unstakeFee,
		OriginStakeBefore: decPtr(staked),
	}

	if req.netuid == 0 {
		out.Received = decPtr(req.amount)
		call, err := p.calls.RemoveStake(req.hotkey, 0, req.raw)
		if err != nil {
			return Outcome{}, err
		}
		return p.submit(ctx, out, call, signer, params.Nonce), nil
	}

	quote, err := p.quotes.Unstake(ctx, req.amount, req.netuid, unstakeFee)
	if err != nil {
		return Outcome{}, err
	}
	p.observe(op, quote)
	out.Slippage = &quote
	out.Received = decPtr(quote.Received)
	if !params.DisableSlippageProtection && quote.Exceeds(tolerancePercent(req.tolerance)) {
		return p.blocked(ctx, out, slippageReason(quote, req.tolerance)), nil
	}

	limit, err := UnstakeLimitPrice(quote.Pool.Price, req.tolerance)
	if err != nil {
		return Outcome{}, err
	}
	call, err := p.calls.RemoveStakeLimit(req.hotkey, req.netuid, req.raw, limit, params.AllowPartial)
	if err != nil {
		return Outcome{}, err
	}
	return p.submit(ctx, out, call, signer, params.Nonce), nil
}

// Estimate is the expected cost of a stake or unstake.
type Estimate struct {
	TotalCost        decimal.Decimal `json:"total_cost"`
	ExpectedReceived decimal.Decimal `json:"expected_received"`
	Fee              decimal.Decimal `json:"fee"`
	Slippage         *slippage.Quote `json:"slippage,omitempty"`
}

// EstimateStake prices a stake without submitting it. Subnet costs include
// the slippage on the ideal amount.
func (p *Pipeline) EstimateStake(ctx context.Context, params StakeParams) (Estimate, error) {
	const op = "estimate stake"
	req, err := params.validate(op)
	if err != nil {
		return Estimate{}, err
	}
	signer, err := p.signer(params.From)
	if err != nil {
		return Estimate{}, err
	}
	stakeFee, err := p.fees.StakeFee(ctx, signer, params.Hotkey, req.netuid, req.amount)
	if err != nil {
		return Estimate{}, err
	}

	if req.netuid == 0 {
		return Estimate{TotalCost: req.amount.Add(stakeFee), ExpectedReceived: req.amount, Fee: stakeFee}, nil
	}
	quote, err := p.quotes.Stake(ctx, req.amount, req.netuid, stakeFee)
	if err != nil {
		return Estimate{}, fmt.Errorf("cannot estimate subnet stake: %w", err)
	}
	return Estimate{
		TotalCost:        req.amount.Add(stakeFee).Add(slippageCost(quote)),
		ExpectedReceived: quote.Received,
		Fee:              stakeFee,
		Slippage:         &quote,
	}, nil
}

// EstimateUnstake prices an unstake without submitting it. TotalCost is in
// TAO: the ideal value of the alpha at spot price less what is received,
// which covers both slippage and the fee.
func (p *Pipeline) EstimateUnstake(ctx context.Context, params StakeParams) (Estimate, error) {
	const op = "estimate unstake"
	req, err := params.validate(op)
	if err != nil {
		return Estimate{}, err
	}
	signer, err := p.signer(params.From)
	if err != nil {
		return Estimate{}, err
	}
	unstakeFee, err := p.fees.UnstakeFee(ctx, signer, params.Hotkey, req.netuid, req.amount)
	if err != nil {
		return Estimate{}, err
	}

	if req.netuid == 0 {
		return Estimate{TotalCost: unstakeFee, ExpectedReceived: req.amount, Fee: unstakeFee}, nil
	}
	quote, err := p.quotes.Unstake(ctx, req.amount, req.netuid, unstakeFee)
	if err != nil {
		return Estimate{}, fmt.Errorf("cannot estimate subnet unstake: %w", err)
	}
	return Estimate{
		TotalCost:        quote.Ideal.Sub(quote.Received),
		ExpectedReceived: quote.Received,
		Fee:              unstakeFee,
		Slippage:         &quote,
	}, nil
}

func slippageCost(q slippage.Quote) decimal.Decimal {
	return q.Ideal.Mul(q.SlippagePercent).Div(hundred)
}

func slippageReason(q slippage.Quote, tolerance decimal.Decimal) string {
	return fmt.Sprintf("Slippage too high: %s%% exceeds tolerance %s%%",
		q.SlippagePercent.StringFixed(4), tolerancePercent(tolerance).StringFixed(2))
}
