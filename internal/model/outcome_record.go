package model

import (
	"encoding/json"
)

// OutcomeRecord is the normalized representation of a transaction outcome for storage.
// Amounts are decimal strings in TAO/Alpha units.
type OutcomeRecord struct {
	Operation         string  `json:"operation"`
	Success           bool    `json:"success"`
	TxHash            string  `json:"tx_hash,omitempty"`
	BlockHash         string  `json:"block_hash,omitempty"`
	BlockNumber       uint64  `json:"block_number,omitempty"`
	Error             string  `json:"error,omitempty"`
	From              string  `json:"from,omitempty"`
	To                string  `json:"to,omitempty"`
	Hotkey            string  `json:"hotkey,omitempty"`
	DestinationHotkey string  `json:"destination_hotkey,omitempty"`
	Netuid            *uint16 `json:"netuid,omitempty"`
	OriginNetuid      *uint16 `json:"origin_netuid,omitempty"`
	DestinationNetuid *uint16 `json:"destination_netuid,omitempty"`
	Amount            string  `json:"amount"`
	Fee               string  `json:"fee,omitempty"`
	Received          string  `json:"received,omitempty"`
	SlippagePercent   string  `json:"slippage_percent,omitempty"`
	RecordedAt        string  `json:"recorded_at"`
}

// MarshalJSON ensures OutcomeRecord is encoded with stable field names.
func (r OutcomeRecord) MarshalJSON() ([]byte, error) {
	type Alias OutcomeRecord
	return json.Marshal(Alias(r))
}

// UnmarshalJSON decodes an OutcomeRecord from JSON.
func (r *OutcomeRecord) UnmarshalJSON(data []byte) error {
	type Alias OutcomeRecord
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = OutcomeRecord(a)
	return nil
}
