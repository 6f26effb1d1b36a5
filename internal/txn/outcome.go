package txn

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"taostats/internal/chain"
	"taostats/internal/model"
	"taostats/internal/slippage"
)

// Operation names used in outcomes, logs and metrics.
const (
	OpStake         = "stake"
	OpUnstake       = "unstake"
	OpTransferTAO   = "transfer_tao"
	OpTransferAlpha = "transfer_alpha"
	OpMove          = "move_stake"
)

// Outcome is the result of an operation that reached transaction
// construction. It is never retried.
type Outcome struct {
	Operation   string `json:"operation"`
	Success     bool   `json:"success"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockHash   string `json:"block_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	Error       string `json:"error,omitempty"`

	From              string  `json:"from,omitempty"`
	To                string  `json:"to,omitempty"`
	Hotkey            string  `json:"hotkey,omitempty"`
	DestinationHotkey string  `json:"destination_hotkey,omitempty"`
	Netuid            *uint16 `json:"netuid,omitempty"`
	OriginNetuid      *uint16 `json:"origin_netuid,omitempty"`
	DestinationNetuid *uint16 `json:"destination_netuid,omitempty"`

	Amount decimal.Decimal `json:"amount"`
	Fee    decimal.Decimal `json:"fee"`
	// Received is the amount expected on the other side: staked TAO net of
	// the fee, or the quoted conversion.
	Received *decimal.Decimal `json:"received,omitempty"`
	Slippage *slippage.Quote  `json:"slippage,omitempty"`

	// Stake echoes for alpha transfers and moves.
	OriginStakeBefore      *decimal.Decimal `json:"origin_stake_before,omitempty"`
	OriginStakeAfter       *decimal.Decimal `json:"origin_stake_after,omitempty"`
	DestinationStakeBefore *decimal.Decimal `json:"destination_stake_before,omitempty"`
	DestinationStakeAfter  *decimal.Decimal `json:"destination_stake_after,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

func (o *Outcome) apply(res chain.Result) {
	o.Success = res.Success
	o.Error = res.Error
	if res.TxHash != (common.Hash{}) {
		o.TxHash = res.TxHash.Hex()
	}
	if res.BlockHash != (common.Hash{}) {
		o.BlockHash = res.BlockHash.Hex()
	}
	o.BlockNumber = res.BlockNumber
}

// Record flattens the outcome for the journal.
func (o Outcome) Record() model.OutcomeRecord {
	rec := model.OutcomeRecord{
		Operation:         o.Operation,
		Success:           o.Success,
		TxHash:            o.TxHash,
		BlockHash:         o.BlockHash,
		BlockNumber:       o.BlockNumber,
		Error:             o.Error,
		From:              o.From,
		To:                o.To,
		Hotkey:            o.Hotkey,
		DestinationHotkey: o.DestinationHotkey,
		Netuid:            o.Netuid,
		OriginNetuid:      o.OriginNetuid,
		DestinationNetuid: o.DestinationNetuid,
		Amount:            o.Amount.String(),
		Fee:               o.Fee.String(),
		RecordedAt:        o.Timestamp.UTC().Format(time.RFC3339),
	}
	if o.Received != nil {
		rec.Received = o.Received.String()
	}
	if o.Slippage != nil {
		rec.SlippagePercent = o.Slippage.SlippagePercent.String()
	}
	return rec
}

func u16(v uint16) *uint16 {
	return &v
}

func decPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
