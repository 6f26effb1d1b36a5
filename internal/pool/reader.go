package pool

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"taostats/internal/chain"
	"taostats/internal/scale"
	"taostats/internal/units"
)

var reserveItems = [4]chain.StorageItem{
	chain.SubnetTAO,
	chain.SubnetAlphaIn,
	chain.SubnetTaoInEmission,
	chain.SubnetAlphaInEmission,
}

const (
	idxTao = iota
	idxAlpha
	idxTaoEmission
	idxAlphaEmission
)

// Reader loads pool snapshots.
type Reader struct {
	state  chain.StateReader
	logger *zap.Logger
}

func NewReader(state chain.StateReader, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{state: state, logger: logger}
}

// Snapshot reads the four reserve values of netuid concurrently. Unset values are zero.
func (r *Reader) Snapshot(ctx context.Context, netuid uint16) (Snapshot, error) {
	var values [4]decimal.Decimal
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range reserveItems {
		i, item := i, item
		g.Go(func() error {
			raw, ok, err := r.state.QueryStorage(gctx, item.Module, item.Name, scale.EncodeU16(netuid))
			if err != nil {
				return fmt.Errorf("read %s for subnet %d: %w", item.Name, netuid, err)
			}
			values[i] = decimal.Zero
			if !ok {
				return nil
			}
			v, err := decodeAmount(raw)
			if err != nil {
				return fmt.Errorf("decode %s for subnet %d: %w", item.Name, netuid, err)
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	return NewSnapshot(netuid, values[idxTao], values[idxAlpha], values[idxTaoEmission], values[idxAlphaEmission]), nil
}

// AllSnapshots reads every pool. Subnets without a SubnetTAO entry are skipped.
func (r *Reader) AllSnapshots(ctx context.Context) (map[uint16]Snapshot, error) {
	var sets [4]map[uint16]decimal.Decimal
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range reserveItems {
		i, item := i, item
		g.Go(func() error {
			entries, err := r.state.QueryStorageEntriesPaged(gctx, item.Module, item.Name)
			if err != nil {
				return fmt.Errorf("read %s entries: %w", item.Name, err)
			}
			set := make(map[uint16]decimal.Decimal, len(entries))
			for _, entry := range entries {
				netuid, ok := entry.TrailingU16()
				if !ok {
					continue
				}
				v, err := decodeAmount(entry.Value)
				if err != nil {
					return fmt.Errorf("decode %s for subnet %d: %w", item.Name, netuid, err)
				}
				set[netuid] = v
			}
			sets[i] = set
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[uint16]Snapshot, len(sets[idxTao]))
	for netuid, tao := range sets[idxTao] {
		out[netuid] = NewSnapshot(netuid, tao,
			valueOrZero(sets[idxAlpha], netuid),
			valueOrZero(sets[idxTaoEmission], netuid),
			valueOrZero(sets[idxAlphaEmission], netuid),
		)
	}
	r.logger.Debug("loaded pool snapshots", zap.Int("subnets", len(out)))
	return out, nil
}

func valueOrZero(set map[uint16]decimal.Decimal, netuid uint16) decimal.Decimal {
	if v, ok := set[netuid]; ok {
		return v
	}
	return decimal.Zero
}

func decodeAmount(raw []byte) (decimal.Decimal, error) {
	v, err := scale.DecodeU64(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return units.RaoToTao(v), nil
}
