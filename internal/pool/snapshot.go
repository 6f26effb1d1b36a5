// Package pool reads subnet AMM reserves and derives spot prices.
package pool

import (
	"time"

	"github.com/shopspring/decimal"

	"taostats/internal/model"
)

// PricePrecision is the number of decimal places kept by price divisions.
const PricePrecision = 18

// Snapshot is the reserve state of one subnet pool, in TAO/Alpha units.
type Snapshot struct {
	Netuid        uint16          `json:"netuid"`
	TaoReserve    decimal.Decimal `json:"tao_reserve"`
	AlphaReserve  decimal.Decimal `json:"alpha_reserve"`
	TaoEmission   decimal.Decimal `json:"tao_emission"`
	AlphaEmission decimal.Decimal `json:"alpha_emission"`
	// Price is TAO per Alpha.
	Price decimal.Decimal `json:"price"`
}

// NewSnapshot fills in Price from the reserves.
func NewSnapshot(netuid uint16, tao, alpha, taoEmission, alphaEmission decimal.Decimal) Snapshot {
	s := Snapshot{
		Netuid:        netuid,
		TaoReserve:    tao,
		AlphaReserve:  alpha,
		TaoEmission:   taoEmission,
		AlphaEmission: alphaEmission,
	}
	s.Price = SpotPrice(s)
	return s
}

// SpotPrice is (tao+taoEmission)/(alpha+alphaEmission). The root network is
// always priced at 1 and an empty Alpha side prices at 0.
func SpotPrice(s Snapshot) decimal.Decimal {
	if s.Netuid == 0 {
		return decimal.NewFromInt(1)
	}
	alpha := s.AlphaReserve.Add(s.AlphaEmission)
	if alpha.IsZero() {
		return decimal.Zero
	}
	return s.TaoReserve.Add(s.TaoEmission).DivRound(alpha, PricePrecision)
}

// Record converts s for storage, stamped with at.
func (s Snapshot) Record(at time.Time) model.PoolSnapshotRecord {
	return model.PoolSnapshotRecord{
		Netuid:        s.Netuid,
		TaoReserve:    s.TaoReserve.String(),
		AlphaReserve:  s.AlphaReserve.String(),
		TaoEmission:   s.TaoEmission.String(),
		AlphaEmission: s.AlphaEmission.String(),
		Price:         s.Price.String(),
		CapturedAt:    at.UTC().Format(time.RFC3339),
	}
}
