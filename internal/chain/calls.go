package chain

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"taostats/internal/scale"
)

// Call is an encoded runtime call ready to be wrapped in an extrinsic.
type Call struct {
	Module string
	Name   string
	Index  [2]byte
	Args   []byte
	// Pinned keeps Index even when the runtime metadata declares another.
	Pinned bool
}

// Encode returns pallet index ++ call index ++ args.
func (c Call) Encode() []byte {
	out := make([]byte, 0, 2+len(c.Args))
	out = append(out, c.Index[0], c.Index[1])
	return append(out, c.Args...)
}

func (c Call) String() string {
	return c.Module + "." + c.Name
}

// Default call indexes of the Bittensor finney runtime. A Node replaces them
// with the indexes from the live runtime metadata before signing.
var DefaultCallIndexes = map[string][2]byte{
	"Balances.transfer_keep_alive":       {5, 3},
	"SubtensorModule.add_stake":          {7, 2},
	"SubtensorModule.remove_stake":       {7, 3},
	"SubtensorModule.move_stake":         {7, 85},
	"SubtensorModule.transfer_stake":     {7, 86},
	"SubtensorModule.add_stake_limit":    {7, 88},
	"SubtensorModule.remove_stake_limit": {7, 89},
}

// Calls builds the calls the SDK submits.
type Calls struct {
	indexes map[string][2]byte
	pinned  map[string]bool
}

// NewCalls returns a builder using DefaultCallIndexes with overrides applied.
func NewCalls(overrides map[string][2]byte) *Calls {
	indexes := make(map[string][2]byte, len(DefaultCallIndexes)+len(overrides))
	for k, v := range DefaultCallIndexes {
		indexes[k] = v
	}
	pinned := make(map[string]bool, len(overrides))
	for k, v := range overrides {
		indexes[k] = v
		pinned[k] = true
	}
	return &Calls{indexes: indexes, pinned: pinned}
}

// ParseCallIndexes reads overrides written as "Module.call" -> "pallet,call" or "pallet:call".
func ParseCallIndexes(raw map[string]string) (map[string][2]byte, error) {
	out := make(map[string][2]byte, len(raw))
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		parts := strings.FieldsFunc(raw[key], func(r rune) bool { return r == ',' || r == ':' })
		if len(parts) != 2 {
			return nil, fmt.Errorf("call index %s: want \"pallet,call\", got %q", key, raw[key])
		}
		var idx [2]byte
		for i, part := range parts {
			n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
			if err != nil {
				return nil, fmt.Errorf("call index %s: %w", key, err)
			}
			idx[i] = byte(n)
		}
		out[key] = idx
	}
	return out, nil
}

func (c *Calls) build(module, name string, args []byte) (Call, error) {
	key := module + "." + name
	idx, ok := c.indexes[key]
	if !ok {
		return Call{}, fmt.Errorf("unknown call %s", key)
	}
	return Call{Module: module, Name: name, Index: idx, Args: args, Pinned: c.pinned[key]}, nil
}

// AddStake stakes amount raw TAO to hotkey on netuid without a price limit.
func (c *Calls) AddStake(hotkey [32]byte, netuid uint16, amount uint64) (Call, error) {
	args := scale.NewEncoder().Raw(hotkey[:]).U16(netuid).U64(amount).Bytes()
	return c.build("SubtensorModule", "add_stake", args)
}

// AddStakeLimit stakes with a raw limit price.
func (c *Calls) AddStakeLimit(hotkey [32]byte, netuid uint16, amount, limitPrice uint64, allowPartial bool) (Call, error) {
	args := scale.NewEncoder().Raw(hotkey[:]).U16(netuid).U64(amount).U64(limitPrice).Bool(allowPartial).Bytes()
	return c.build("SubtensorModule", "add_stake_limit", args)
}

// RemoveStake unstakes amount raw Alpha from hotkey on netuid without a price limit.
func (c *Calls) RemoveStake(hotkey [32]byte, netuid uint16, amount uint64) (Call, error) {
	args := scale.NewEncoder().Raw(hotkey[:]).U16(netuid).U64(amount).Bytes()
	return c.build("SubtensorModule", "remove_stake", args)
}

// RemoveStakeLimit unstakes with a raw limit price.
func (c *Calls) RemoveStakeLimit(hotkey [32]byte, netuid uint16, amount, limitPrice uint64, allowPartial bool) (Call, error) {
	args := scale.NewEncoder().Raw(hotkey[:]).U16(netuid).U64(amount).U64(limitPrice).Bool(allowPartial).Bytes()
	return c.build("SubtensorModule", "remove_stake_limit", args)
}

// TransferStake moves stake ownership to destColdkey, optionally across subnets.
func (c *Calls) TransferStake(destColdkey, hotkey [32]byte, originNetuid, destNetuid uint16, amount uint64) (Call, error) {
	args := scale.NewEncoder().Raw(destColdkey[:]).Raw(hotkey[:]).U16(originNetuid).U16(destNetuid).U64(amount).Bytes()
	return c.build("SubtensorModule", "transfer_stake", args)
}

// MoveStake moves the caller's stake between hotkeys and subnets.
func (c *Calls) MoveStake(originHotkey, destHotkey [32]byte, originNetuid, destNetuid uint16, amount uint64) (Call, error) {
	args := scale.NewEncoder().Raw(originHotkey[:]).Raw(destHotkey[:]).U16(originNetuid).U16(destNetuid).U64(amount).Bytes()
	return c.build("SubtensorModule", "move_stake", args)
}

// TransferKeepAlive sends amount raw TAO to dest, refusing to reap the sender.
func (c *Calls) TransferKeepAlive(dest [32]byte, amount uint64) (Call, error) {
	args := scale.NewEncoder().
		U8(0). // MultiAddress::Id
		Raw(dest[:]).
		CompactBig(new(big.Int).SetUint64(amount)).
		Bytes()
	return c.build("Balances", "transfer_keep_alive", args)
}
