package api

import (
	"encoding/json"
	"strconv"
)

// Pagination is the paging block of list responses.
type Pagination struct {
	CurrentPage int  `json:"current_page"`
	PerPage     int  `json:"per_page"`
	TotalItems  int  `json:"total_items"`
	TotalPages  int  `json:"total_pages"`
	NextPage    *int `json:"next_page"`
	PrevPage    *int `json:"prev_page"`
}

// Page is a list response. Rows are kept raw; callers decode what they need.
type Page struct {
	Pagination Pagination        `json:"pagination"`
	Data       []json.RawMessage `json:"data"`
}

// HasNext reports whether another page follows.
func (p *Page) HasNext() bool {
	return p.Pagination.NextPage != nil
}

// Decode unmarshals every row into a fresh T.
func Decode[T any](p *Page) ([]T, error) {
	out := make([]T, 0, len(p.Data))
	for _, raw := range p.Data {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ListParams are the filters shared by most list endpoints.
type ListParams struct {
	Netuid    *int
	Address   string
	Hotkey    string
	Coldkey   string
	BlockFrom *int
	BlockTo   *int
	TimeFrom  *int64
	TimeTo    *int64
	Page      int
	Limit     int
	Order     string
	Extra     Params
}

func (lp ListParams) params() Params {
	p := Params{}
	for k, v := range lp.Extra {
		p[k] = v
	}
	if lp.Netuid != nil {
		p["netuid"] = strconv.Itoa(*lp.Netuid)
	}
	p["address"] = lp.Address
	p["hotkey"] = lp.Hotkey
	p["coldkey"] = lp.Coldkey
	if lp.BlockFrom != nil {
		p["block_start"] = strconv.Itoa(*lp.BlockFrom)
	}
	if lp.BlockTo != nil {
		p["block_end"] = strconv.Itoa(*lp.BlockTo)
	}
	if lp.TimeFrom != nil {
		p["timestamp_start"] = strconv.FormatInt(*lp.TimeFrom, 10)
	}
	if lp.TimeTo != nil {
		p["timestamp_end"] = strconv.FormatInt(*lp.TimeTo, 10)
	}
	if lp.Page > 0 {
		p["page"] = strconv.Itoa(lp.Page)
	}
	if lp.Limit > 0 {
		p["limit"] = strconv.Itoa(lp.Limit)
	}
	p["order"] = lp.Order
	return p
}
