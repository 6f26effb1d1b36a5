// Package balance reads account balances, stake positions and subnet
// registration from chain storage.
package balance

import (
	"context"
	"fmt"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/shopspring/decimal"

	"taostats/internal/chain"
	"taostats/internal/keyring"
	"taostats/internal/scale"
	"taostats/internal/units"
)

// AccountBalance is the balance part of System.Account, in TAO.
type AccountBalance struct {
	Free     decimal.Decimal `json:"free"`
	Reserved decimal.Decimal `json:"reserved"`
	Frozen   decimal.Decimal `json:"frozen"`
	Nonce    uint32          `json:"nonce"`
}

// Reader answers balance and stake queries.
type Reader struct {
	state chain.StateReader
}

func NewReader(state chain.StateReader) *Reader {
	return &Reader{state: state}
}

// Account reads the AccountInfo of address. Unknown accounts have a zero balance.
func (r *Reader) Account(ctx context.Context, address string) (AccountBalance, error) {
	id, err := keyring.DecodeAddress(address)
	if err != nil {
		return AccountBalance{}, err
	}
	item := chain.SystemAccount
	raw, ok, err := r.state.QueryStorage(ctx, item.Module, item.Name, id[:])
	if err != nil {
		return AccountBalance{}, fmt.Errorf("read account %s: %w", address, err)
	}
	if !ok {
		return AccountBalance{}, nil
	}
	bal, err := decodeAccountInfo(raw)
	if err != nil {
		return AccountBalance{}, fmt.Errorf("decode account %s: %w", address, err)
	}
	return bal, nil
}

// FreeBalance is the transferable balance of address.
func (r *Reader) FreeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	bal, err := r.Account(ctx, address)
	if err != nil {
		return decimal.Zero, err
	}
	return bal.Free, nil
}

// Stake is the alpha coldkey holds through hotkey on netuid:
// totalAlpha * shares / totalShares, rounded down to a rao.
func (r *Reader) Stake(ctx context.Context, hotkey, coldkey string, netuid uint16) (decimal.Decimal, error) {
	hk, err := keyring.DecodeAddress(hotkey)
	if err != nil {
		return decimal.Zero, err
	}
	ck, err := keyring.DecodeAddress(coldkey)
	if err != nil {
		return decimal.Zero, err
	}
	id := scale.EncodeU16(netuid)

	shares, err := r.u128(ctx, chain.Alpha, hk[:], ck[:], id)
	if err != nil || shares.Sign() == 0 {
		return decimal.Zero, err
	}
	totalShares, err := r.u128(ctx, chain.TotalHotkeyShares, hk[:], id)
	if err != nil || totalShares.Sign() == 0 {
		return decimal.Zero, err
	}
	totalAlpha, err := r.u64(ctx, chain.TotalHotkeyAlpha, hk[:], id)
	if err != nil {
		return decimal.Zero, err
	}

	// both share values are U64F64 bits, so the fixed-point scale cancels
	raw := new(big.Int).Mul(new(big.Int).SetUint64(totalAlpha), shares)
	raw.Quo(raw, totalShares)
	return units.BigRaoToTao(raw), nil
}

// SubnetExists reports whether netuid is registered. The root network always exists.
func (r *Reader) SubnetExists(ctx context.Context, netuid uint16) (bool, error) {
	if netuid == 0 {
		return true, nil
	}
	item := chain.NetworksAdded
	raw, ok, err := r.state.QueryStorage(ctx, item.Module, item.Name, scale.EncodeU16(netuid))
	if err != nil {
		return false, fmt.Errorf("read subnet %d: %w", netuid, err)
	}
	if !ok {
		return false, nil
	}
	return scale.DecodeBool(raw)
}

func (r *Reader) u128(ctx context.Context, item chain.StorageItem, args ...[]byte) (*big.Int, error) {
	raw, ok, err := r.state.QueryStorage(ctx, item.Module, item.Name, args...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", item.Name, err)
	}
	if !ok {
		return new(big.Int), nil
	}
	v, err := scale.DecodeU128(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", item.Name, err)
	}
	return v, nil
}

func (r *Reader) u64(ctx context.Context, item chain.StorageItem, args ...[]byte) (uint64, error) {
	raw, ok, err := r.state.QueryStorage(ctx, item.Module, item.Name, args...)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", item.Name, err)
	}
	if !ok {
		return 0, nil
	}
	v, err := scale.DecodeU64(raw)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", item.Name, err)
	}
	return v, nil
}

// accountInfo mirrors frame_system::AccountInfo with subtensor's u64 Balance.
type accountInfo struct {
	Nonce       types.U32
	Consumers   types.U32
	Providers   types.U32
	Sufficients types.U32
	Data        struct {
		Free     types.U64
		Reserved types.U64
		Frozen   types.U64
		Flags    types.U128
	}
}

// accountInfoSize is the encoded length of accountInfo.
const accountInfoSize = 4*4 + 3*8 + 16

func decodeAccountInfo(raw []byte) (AccountBalance, error) {
	if len(raw) < accountInfoSize {
		return AccountBalance{}, fmt.Errorf("account info is %d bytes, want %d: %w", len(raw), accountInfoSize, scale.ErrShortBuffer)
	}
	var info accountInfo
	if err := codec.Decode(raw, &info); err != nil {
		return AccountBalance{}, err
	}
	return AccountBalance{
		Free:     units.RaoToTao(uint64(info.Data.Free)),
		Reserved: units.RaoToTao(uint64(info.Data.Reserved)),
		Frozen:   units.RaoToTao(uint64(info.Data.Frozen)),
		Nonce:    uint32(info.Nonce),
	}, nil
}
