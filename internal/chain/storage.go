package chain

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

// Hasher is a storage map key hashing strategy.
type Hasher int

const (
	Identity Hasher = iota
	Twox64Concat
	Blake2_128Concat
)

// Hash applies the hasher to an encoded key argument.
func (h Hasher) Hash(arg []byte) []byte {
	switch h {
	case Twox64Concat:
		out := binary.LittleEndian.AppendUint64(nil, xxhash.Sum64(arg))
		return append(out, arg...)
	case Blake2_128Concat:
		d, _ := blake2b.New(16, nil)
		d.Write(arg)
		return append(d.Sum(nil), arg...)
	default:
		return append([]byte(nil), arg...)
	}
}

// Twox128 is the hash used for pallet and item prefixes.
func Twox128(data []byte) []byte {
	out := make([]byte, 0, 16)
	for seed := uint64(0); seed < 2; seed++ {
		d := xxhash.NewWithSeed(seed)
		d.Write(data)
		out = binary.LittleEndian.AppendUint64(out, d.Sum64())
	}
	return out
}

// StorageItem describes how keys of one storage value or map are built.
type StorageItem struct {
	Module  string
	Name    string
	Hashers []Hasher
}

// Prefix is twox128(module) ++ twox128(name).
func (s StorageItem) Prefix() []byte {
	return append(Twox128([]byte(s.Module)), Twox128([]byte(s.Name))...)
}

// Key builds the storage key for args. Fewer args than hashers yields a
// partial key usable as an iteration prefix.
func (s StorageItem) Key(args ...[]byte) ([]byte, error) {
	if len(args) > len(s.Hashers) {
		return nil, fmt.Errorf("%s.%s takes %d key args, got %d", s.Module, s.Name, len(s.Hashers), len(args))
	}
	key := s.Prefix()
	for i, arg := range args {
		key = append(key, s.Hashers[i].Hash(arg)...)
	}
	return key, nil
}

// Registry resolves (module, item) names to storage layouts.
type Registry struct {
	items map[string]StorageItem
}

func NewRegistry(items ...StorageItem) *Registry {
	r := &Registry{items: make(map[string]StorageItem, len(items))}
	for _, item := range items {
		r.Register(item)
	}
	return r
}

// Register adds or replaces an item.
func (r *Registry) Register(item StorageItem) {
	r.items[item.Module+"."+item.Name] = item
}

func (r *Registry) Lookup(module, name string) (StorageItem, bool) {
	item, ok := r.items[module+"."+name]
	return item, ok
}

// Storage items read by the SDK.
var (
	SystemAccount         = StorageItem{Module: "System", Name: "Account", Hashers: []Hasher{Blake2_128Concat}}
	SubnetTAO             = StorageItem{Module: "SubtensorModule", Name: "SubnetTAO", Hashers: []Hasher{Identity}}
	SubnetAlphaIn         = StorageItem{Module: "SubtensorModule", Name: "SubnetAlphaIn", Hashers: []Hasher{Identity}}
	SubnetTaoInEmission   = StorageItem{Module: "SubtensorModule", Name: "SubnetTaoInEmission", Hashers: []Hasher{Identity}}
	SubnetAlphaInEmission = StorageItem{Module: "SubtensorModule", Name: "SubnetAlphaInEmission", Hashers: []Hasher{Identity}}
	NetworksAdded         = StorageItem{Module: "SubtensorModule", Name: "NetworksAdded", Hashers: []Hasher{Identity}}
	Alpha                 = StorageItem{Module: "SubtensorModule", Name: "Alpha", Hashers: []Hasher{Blake2_128Concat, Blake2_128Concat, Identity}}
	TotalHotkeyAlpha      = StorageItem{Module: "SubtensorModule", Name: "TotalHotkeyAlpha", Hashers: []Hasher{Blake2_128Concat, Identity}}
	TotalHotkeyShares     = StorageItem{Module: "SubtensorModule", Name: "TotalHotkeyShares", Hashers: []Hasher{Blake2_128Concat, Identity}}
)

// DefaultRegistry knows every item the SDK queries.
func DefaultRegistry() *Registry {
	return NewRegistry(
		SystemAccount,
		SubnetTAO,
		SubnetAlphaIn,
		SubnetTaoInEmission,
		SubnetAlphaInEmission,
		NetworksAdded,
		Alpha,
		TotalHotkeyAlpha,
		TotalHotkeyShares,
	)
}

// Entry is one key/value pair of a storage map.
type Entry struct {
	Key   []byte
	Value []byte
}

// TrailingU16 decodes the last two key bytes, the Identity-hashed netuid of
// single-key subnet maps.
func (e Entry) TrailingU16() (uint16, bool) {
	if len(e.Key) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(e.Key[len(e.Key)-2:]), true
}
