package txn

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"taostats/internal/fee"
	"taostats/internal/sdkerr"
	"taostats/internal/slippage"
	"taostats/internal/units"
)

// baseFeeAmount is the amount whose transfer fee stands in for the fee of
// any transfer when computing the maximum transferable balance.
var baseFeeAmount = decimal.RequireFromString("0.001")

// TransferParams describes a TAO transfer.
type TransferParams struct {
	To     string
	Amount string
	From   string
	Nonce  *uint32
}

// TransferTAO sends TAO with transfer_keep_alive after checking the sender
// keeps more than the existential deposit.
func (p *Pipeline) TransferTAO(ctx context.Context, params TransferParams) (Outcome, error) {
	const op = OpTransferTAO
	dest, err := ValidateAddress(op, "to", params.To)
	if err != nil {
		return Outcome{}, err
	}
	amount, err := ValidateAmount(op, params.Amount)
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

	transferFee, err := p.fees.TransferFee(ctx, signer, params.To, amount)
	if err != nil {
		return Outcome{}, err
	}
	free, err := p.balances.FreeBalance(ctx, signer.Address())
	if err != nil {
		return Outcome{}, fmt.Errorf("transfer tao: %w", err)
	}
	if err := checkTransferable(op, signer.Address(), free, amount, transferFee); err != nil {
		return Outcome{}, err
	}

	raw, err := units.TaoToRao(amount)
	if err != nil {
		return Outcome{}, sdkerr.Invalid(op, "amount", params.Amount, err.Error())
	}
	call, err := p.calls.TransferKeepAlive(dest, raw)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Operation: op,
		From:      signer.Address(),
		To:        params.To,
		Amount:    amount,
		Fee:       transferFee,
		Received:  decPtr(amount),
	}
	return p.submit(ctx, out, call, signer, params.Nonce), nil
}

// checkTransferable enforces free >= amount+fee and a remainder strictly
// above the existential deposit.
func checkTransferable(op, address string, free, amount, transferFee decimal.Decimal) error {
	required := amount.Add(transferFee)
	if free.LessThan(required) {
		return sdkerr.Shortfall(sdkerr.KindInsufficientBalance, op,
			"insufficient free balance for "+address, required, free)
	}
	remaining := free.Sub(required)
	if remaining.LessThanOrEqual(units.ExistentialDeposit) {
		maxAmount := free.Sub(transferFee).Sub(units.ExistentialDeposit).Sub(units.OneRao)
		if maxAmount.IsNegative() {
			maxAmount = decimal.Zero
		}
		e := sdkerr.Shortfall(sdkerr.KindExistentialDeposit, op,
			fmt.Sprintf("transfer of %s would leave %s, at or below the existential deposit %s", amount, remaining, units.ExistentialDeposit),
			required.Add(units.ExistentialDeposit), free)
		e.Max = &maxAmount
		return e
	}
	return nil
}

// TransferCost is the amount, fee and total of a TAO transfer.
type TransferCost struct {
	Amount decimal.Decimal `json:"amount"`
	Fee    decimal.Decimal `json:"fee"`
	Total  decimal.Decimal `json:"total"`
}

// EstimateTransferCost prices a TAO transfer without submitting it.
func (p *Pipeline) EstimateTransferCost(ctx context.Context, params TransferParams) (TransferCost, error) {
	const op = "estimate transfer"
	if _, err := ValidateAddress(op, "to", params.To); err != nil {
		return TransferCost{}, err
	}
	amount, err := ValidateAmount(op, params.Amount)
	if err != nil {
		return TransferCost{}, err
	}
	signer, err := p.signer(params.From)
	if err != nil {
		return TransferCost{}, err
	}
	transferFee, err := p.fees.TransferFee(ctx, signer, params.To, amount)
	if err != nil {
		return TransferCost{}, err
	}
	return TransferCost{Amount: amount, Fee: transferFee, Total: amount.Add(transferFee)}, nil
}

// MaxTransfer is the largest TAO amount the account can send.
type MaxTransfer struct {
	MaxAmount          decimal.Decimal `json:"max_amount"`
	CurrentBalance     decimal.Decimal `json:"current_balance"`
	EstimatedFee       decimal.Decimal `json:"estimated_fee"`
	ExistentialDeposit decimal.Decimal `json:"existential_deposit"`
}

// MaxTransferable is free - fee - existential deposit, floored at zero. The
// fee is estimated on a small base amount.
func (p *Pipeline) MaxTransferable(ctx context.Context, to, from string) (MaxTransfer, error) {
	const op = "max transferable"
	if _, err := ValidateAddress(op, "to", to); err != nil {
		return MaxTransfer{}, err
	}
	if err := validateFrom(op, from); err != nil {
		return MaxTransfer{}, err
	}
	signer, err := p.signer(from)
	if err != nil {
		return MaxTransfer{}, err
	}
	free, err := p.balances.FreeBalance(ctx, signer.Address())
	if err != nil {
		return MaxTransfer{}, fmt.Errorf("max transferable: %w", err)
	}
	transferFee, err := p.fees.TransferFee(ctx, signer, to, baseFeeAmount)
	if err != nil {
		return MaxTransfer{}, err
	}
	maxAmount := free.Sub(transferFee).Sub(units.ExistentialDeposit)
	if maxAmount.IsNegative() {
		maxAmount = decimal.Zero
	}
	return MaxTransfer{
		MaxAmount:          maxAmount,
		CurrentBalance:     free,
		EstimatedFee:       transferFee,
		ExistentialDeposit: units.ExistentialDeposit,
	}, nil
}

// AlphaTransferParams describes a transfer_stake: Amount alpha staked to
// Hotkey moves to the coldkey To, possibly into another subnet.
type AlphaTransferParams struct {
	To                        string
	Hotkey                    string
	OriginNetuid              int
	DestinationNetuid         int
	Amount                    string
	Tolerance                 string
	DisableSlippageProtection bool
	From                      string
	Nonce                     *uint32
}

// TransferAlpha transfers stake ownership. Cross-subnet transfers are quoted
// through both pools; same-subnet transfers skip slippage protection.
func (p *Pipeline) TransferAlpha(ctx context.Context, params AlphaTransferParams) (Outcome, error) {
	const op = OpTransferAlpha
	dest, err := ValidateAddress(op, "to", params.To)
	if err != nil {
		return Outcome{}, err
	}
	hotkey, err := ValidateAddress(op, "hotkey", params.Hotkey)
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

	if err := p.requireSubnets(ctx, op, origin, destination); err != nil {
		return Outcome{}, err
	}

	var originStake, destStake decimal.Decimal
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		originStake, err = p.balances.Stake(gctx, params.Hotkey, signer.Address(), origin)
		return err
	})
	g.Go(func() error {
		var err error
		destStake, err = p.balances.Stake(gctx, params.Hotkey, params.To, destination)
		return err
	})
	if err := g.Wait(); err != nil {
		return Outcome{}, fmt.Errorf("transfer alpha: %w", err)
	}
	if originStake.LessThan(amount) {
		return Outcome{}, sdkerr.Shortfall(sdkerr.KindInsufficientStake, op,
			fmt.Sprintf("insufficient stake on hotkey %s in subnet %d", params.Hotkey, origin), amount, originStake)
	}

	transferFee := p.fees.AlphaTransferFee(ctx, signer, fee.AlphaTransfer{
		To:                params.To,
		Hotkey:            params.Hotkey,
		OriginNetuid:      origin,
		DestinationNetuid: destination,
		Amount:            amount,
	})

	out := Outcome{
		Operation:              op,
		From:                   signer.Address(),
		To:                     params.To,
		Hotkey:                 params.Hotkey,
		OriginNetuid:           u16(origin),
		DestinationNetuid:      u16(destination),
		Amount:                 amount,
		Fee:                    transferFee,
		OriginStakeBefore:      decPtr(originStake),
		DestinationStakeBefore: decPtr(destStake),
	}

	quote, err := p.quotes.AlphaTransfer(ctx, slippage.AlphaTransferParams{
		OriginNetuid:      origin,
		DestinationNetuid: destination,
		Amount:            amount,
	}, transferFee)
	if err != nil {
		return Outcome{}, err
	}
	out.Slippage = &quote
	out.Received = decPtr(quote.Received)
	if origin != destination {
		p.observe(op, quote)
		if !params.DisableSlippageProtection && quote.Exceeds(tolerancePercent(tolerance)) {
			return p.blocked(ctx, out, slippageReason(quote, tolerance)), nil
		}
	}

	raw, err := units.TaoToRao(amount)
	if err != nil {
		return Outcome{}, sdkerr.Invalid(op, "amount", params.Amount, err.Error())
	}
	call, err := p.calls.TransferStake(dest, hotkey, origin, destination, raw)
	if err != nil {
		return Outcome{}, err
	}
	out = p.submit(ctx, out, call, signer, params.Nonce)
	if out.Success {
		out.OriginStakeAfter = p.stakeAfter(ctx, params.Hotkey, signer.Address(), origin)
		out.DestinationStakeAfter = p.stakeAfter(ctx, params.Hotkey, params.To, destination)
	}
	return out, nil
}

func (p *Pipeline) requireSubnets(ctx context.Context, op string, netuids ...uint16) error {
	labels := []string{"origin netuid", "destination netuid"}
	for i, netuid := range netuids {
		ok, err := p.balances.SubnetExists(ctx, netuid)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if !ok {
			return sdkerr.Invalid(op, labels[i%len(labels)], strconv.Itoa(int(netuid)), "subnet does not exist")
		}
	}
	return nil
}

// stakeAfter reads a post-transaction stake echo; failures only log.
func (p *Pipeline) stakeAfter(ctx context.Context, hotkey, coldkey string, netuid uint16) *decimal.Decimal {
	stake, err := p.balances.Stake(ctx, hotkey, coldkey, netuid)
	if err != nil {
		p.logger.Warn("read stake after transaction",
			zap.String("hotkey", hotkey),
			zap.Uint16("netuid", netuid),
			zap.Error(err),
		)
		return nil
	}
	return &stake
}
