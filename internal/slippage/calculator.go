package slippage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"taostats/internal/pool"
	"taostats/internal/sdkerr"
)

// SameSubnetPercent is the nominal slippage reported for transfers that stay in one subnet.
var SameSubnetPercent = decimal.RequireFromString("0.01")

// Quote is the result of one slippage calculation.
type Quote struct {
	SlippagePercent decimal.Decimal `json:"slippage_percent"`
	Received        decimal.Decimal `json:"received"`
	Ideal           decimal.Decimal `json:"ideal"`

	Pool            *pool.Snapshot `json:"pool,omitempty"`
	OriginPool      *pool.Snapshot `json:"origin_pool,omitempty"`
	DestinationPool *pool.Snapshot `json:"destination_pool,omitempty"`
}

// Exceeds reports whether the slippage is above maxPercent.
func (q Quote) Exceeds(maxPercent decimal.Decimal) bool {
	return q.SlippagePercent.GreaterThan(maxPercent)
}

func identity(amount decimal.Decimal) Quote {
	return Quote{SlippagePercent: decimal.Zero, Received: amount, Ideal: amount}
}

// SnapshotSource supplies pool snapshots; *pool.Reader implements it.
type SnapshotSource interface {
	Snapshot(ctx context.Context, netuid uint16) (pool.Snapshot, error)
}

// Calculator quotes conversions against live pool snapshots.
type Calculator struct {
	pools SnapshotSource
}

func NewCalculator(pools SnapshotSource) *Calculator {
	return &Calculator{pools: pools}
}

func (c *Calculator) snapshot(ctx context.Context, op string, netuid uint16) (pool.Snapshot, error) {
	snap, err := c.pools.Snapshot(ctx, netuid)
	if err != nil {
		return pool.Snapshot{}, sdkerr.Wrap(sdkerr.KindPoolUnavailable, op, err, "pool data unavailable for subnet %d", netuid)
	}
	return snap, nil
}

// Stake quotes staking taoAmount into netuid. The fee is taken before the
// swap, reserves include pending emissions and the ideal is a 1:1 conversion.
func (c *Calculator) Stake(ctx context.Context, taoAmount decimal.Decimal, netuid uint16, stakeFee decimal.Decimal) (Quote, error) {
	if netuid == 0 {
		return identity(taoAmount), nil
	}
	snap, err := c.snapshot(ctx, "stake slippage", netuid)
	if err != nil {
		return Quote{}, err
	}

	net := taoAmount.Sub(stakeFee)
	if !net.IsPositive() {
		return Quote{}, sdkerr.Shortfall(sdkerr.KindInsufficientAmount, "stake slippage",
			fmt.Sprintf("amount %s does not cover the stake fee", taoAmount), stakeFee, taoAmount)
	}

	alphaOut, err := AlphaFromTao(net, snap.TaoReserve.Add(snap.TaoEmission), snap.AlphaReserve.Add(snap.AlphaEmission))
	if err != nil {
		return Quote{}, wrapPool(err, "stake slippage", netuid)
	}

	return Quote{
		SlippagePercent: Percent(taoAmount, alphaOut),
		Received:        alphaOut,
		Ideal:           taoAmount,
		Pool:            &snap,
	}, nil
}

// Unstake quotes unstaking alphaAmount from netuid. Raw reserves are used,
// the ideal is the spot value and the fee is taken after slippage is measured.
func (c *Calculator) Unstake(ctx context.Context, alphaAmount decimal.Decimal, netuid uint16, unstakeFee decimal.Decimal) (Quote, error) {
	if netuid == 0 {
		return identity(alphaAmount), nil
	}
	snap, err := c.snapshot(ctx, "unstake slippage", netuid)
	if err != nil {
		return Quote{}, err
	}

	taoOut, err := TaoFromAlpha(alphaAmount, snap.AlphaReserve, snap.TaoReserve)
	if err != nil {
		return Quote{}, wrapPool(err, "unstake slippage", netuid)
	}
	ideal := alphaAmount.Mul(snap.Price)
	percent := Percent(ideal, taoOut)

	received := taoOut.Sub(unstakeFee)
	if !received.IsPositive() {
		return Quote{}, sdkerr.Shortfall(sdkerr.KindInsufficientAmount, "unstake slippage",
			fmt.Sprintf("unstaking %s alpha yields %s TAO, not enough to cover the fee", alphaAmount, taoOut), unstakeFee, taoOut)
	}

	return Quote{
		SlippagePercent: percent,
		Received:        received,
		Ideal:           ideal,
		Pool:            &snap,
	}, nil
}

// AlphaTransferParams describes a stake transfer between subnets.
type AlphaTransferParams struct {
	OriginNetuid      uint16
	DestinationNetuid uint16
	Amount            decimal.Decimal
}

// AlphaTransfer quotes moving Amount alpha from the origin to the destination
// subnet: alpha to TAO in the origin pool, minus the fee, then TAO to alpha in
// the destination pool. Both legs use raw reserves.
func (c *Calculator) AlphaTransfer(ctx context.Context, p AlphaTransferParams, stakeFee decimal.Decimal) (Quote, error) {
	const op = "alpha transfer slippage"
	if p.OriginNetuid == p.DestinationNetuid {
		return Quote{SlippagePercent: SameSubnetPercent, Received: p.Amount, Ideal: p.Amount}, nil
	}

	quote := Quote{Ideal: p.Amount}

	tao := p.Amount
	if p.OriginNetuid != 0 {
		origin, err := c.snapshot(ctx, op, p.OriginNetuid)
		if err != nil {
			return Quote{}, err
		}
		quote.OriginPool = &origin
		if tao, err = TaoFromAlpha(p.Amount, origin.AlphaReserve, origin.TaoReserve); err != nil {
			return Quote{}, wrapPool(err, op, p.OriginNetuid)
		}
	}

	tao = tao.Sub(stakeFee)
	if !tao.IsPositive() {
		return Quote{}, sdkerr.Shortfall(sdkerr.KindInsufficientAmount, op,
			fmt.Sprintf("transferring %s alpha does not cover the fee", p.Amount), stakeFee, tao.Add(stakeFee))
	}

	alpha := tao
	if p.DestinationNetuid != 0 {
		dest, err := c.snapshot(ctx, op, p.DestinationNetuid)
		if err != nil {
			return Quote{}, err
		}
		quote.DestinationPool = &dest
		if alpha, err = AlphaFromTao(tao, dest.TaoReserve, dest.AlphaReserve); err != nil {
			return Quote{}, wrapPool(err, op, p.DestinationNetuid)
		}
	}

	quote.Received = alpha
	quote.SlippagePercent = Percent(p.Amount, alpha)
	return quote, nil
}

// Validation is the result of checking a quote against a tolerance.
type Validation struct {
	Valid  bool
	Quote  Quote
	Reason string
}

// ValidateStake quotes a stake and checks it against maxTolerancePercent.
// Exceeding the tolerance is reported in the Validation, not as an error.
func (c *Calculator) ValidateStake(ctx context.Context, amount decimal.Decimal, netuid uint16, fee, maxTolerancePercent decimal.Decimal) (Validation, error) {
	quote, err := c.Stake(ctx, amount, netuid, fee)
	if err != nil {
		return Validation{}, err
	}
	return validate(quote, maxTolerancePercent), nil
}

// ValidateUnstake is ValidateStake for unstaking.
func (c *Calculator) ValidateUnstake(ctx context.Context, amount decimal.Decimal, netuid uint16, fee, maxTolerancePercent decimal.Decimal) (Validation, error) {
	quote, err := c.Unstake(ctx, amount, netuid, fee)
	if err != nil {
		return Validation{}, err
	}
	return validate(quote, maxTolerancePercent), nil
}

func validate(quote Quote, maxPercent decimal.Decimal) Validation {
	if quote.Exceeds(maxPercent) {
		return Validation{
			Quote:  quote,
			Reason: fmt.Sprintf("Slippage too high: %s%% exceeds tolerance of %s%%", quote.SlippagePercent.StringFixed(2), maxPercent.StringFixed(2)),
		}
	}
	return Validation{Valid: true, Quote: quote}
}

func wrapPool(err error, op string, netuid uint16) error {
	return sdkerr.Wrap(sdkerr.KindPoolUnavailable, op, err, "subnet %d", netuid)
}
