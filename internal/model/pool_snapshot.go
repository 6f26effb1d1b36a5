package model

// PoolSnapshotRecord is one subnet pool reading for storage.
type PoolSnapshotRecord struct {
	Netuid        uint16 `json:"netuid"`
	TaoReserve    string `json:"tao_reserve"`
	AlphaReserve  string `json:"alpha_reserve"`
	TaoEmission   string `json:"tao_emission"`
	AlphaEmission string `json:"alpha_emission"`
	Price         string `json:"price"`
	CapturedAt    string `json:"captured_at"`
}
