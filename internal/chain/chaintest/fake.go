// Package chaintest provides an in-memory chain for tests of code built on
// the chain manager.
package chaintest

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"taostats/internal/chain"
	"taostats/internal/scale"
)

// Submission records one SubmitAndConfirm call.
type Submission struct {
	Call   chain.Call
	Signer string
	Nonce  *uint32
}

// Fake implements the storage, fee and submission methods of chain.Manager.
type Fake struct {
	registry *chain.Registry

	mu          sync.Mutex
	values      map[string][]byte
	fee         *big.Int
	feeErr      error
	queryErr    error
	result      chain.Result
	submissions []Submission
	feeCalls    []chain.Call
}

func New() *Fake {
	return &Fake{
		registry: chain.DefaultRegistry(),
		values:   make(map[string][]byte),
		fee:      big.NewInt(0),
		result: chain.Result{
			Success:     true,
			TxHash:      common.HexToHash("0x5eed"),
			BlockHash:   common.HexToHash("0xb10c"),
			BlockNumber: 100,
		},
	}
}

// Set stores value under item and its full key args.
func (f *Fake) Set(item chain.StorageItem, value []byte, args ...[]byte) {
	key, err := item.Key(args...)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	f.values[string(key)] = value
	f.mu.Unlock()
}

// SetPool stores raw reserves for netuid.
func (f *Fake) SetPool(netuid uint16, tao, alpha, taoEmission, alphaEmission uint64) {
	id := scale.EncodeU16(netuid)
	f.Set(chain.SubnetTAO, scale.EncodeU64(tao), id)
	f.Set(chain.SubnetAlphaIn, scale.EncodeU64(alpha), id)
	f.Set(chain.SubnetTaoInEmission, scale.EncodeU64(taoEmission), id)
	f.Set(chain.SubnetAlphaInEmission, scale.EncodeU64(alphaEmission), id)
}

// SetSubnet marks netuid as registered.
func (f *Fake) SetSubnet(netuid uint16) {
	f.Set(chain.NetworksAdded, scale.EncodeBool(true), scale.EncodeU16(netuid))
}

// SetFreeBalance stores an AccountInfo with the given raw free balance.
func (f *Fake) SetFreeBalance(account [32]byte, free uint64) {
	info := scale.NewEncoder().
		U32(0).U32(0).U32(1).U32(0).
		U64(free).U64(0).U64(0).
		U128(new(big.Int).Lsh(big.NewInt(1), 127)).
		Bytes()
	f.Set(chain.SystemAccount, info, account[:])
}

// SetStake makes coldkey the only staker of hotkey on netuid with raw alpha.
func (f *Fake) SetStake(hotkey, coldkey [32]byte, netuid uint16, alpha uint64) {
	bits := new(big.Int).Lsh(new(big.Int).SetUint64(alpha), 64)
	id := scale.EncodeU16(netuid)
	f.Set(chain.Alpha, scale.EncodeU128(bits), hotkey[:], coldkey[:], id)
	f.Set(chain.TotalHotkeyAlpha, scale.EncodeU64(alpha), hotkey[:], id)
	f.Set(chain.TotalHotkeyShares, scale.EncodeU128(bits), hotkey[:], id)
}

// SetFee sets the raw partial fee returned by PaymentInfo, or its error.
func (f *Fake) SetFee(raw uint64, err error) {
	f.mu.Lock()
	f.fee = new(big.Int).SetUint64(raw)
	f.feeErr = err
	f.mu.Unlock()
}

// SetQueryError makes every storage read fail.
func (f *Fake) SetQueryError(err error) {
	f.mu.Lock()
	f.queryErr = err
	f.mu.Unlock()
}

// SetResult sets what SubmitAndConfirm returns.
func (f *Fake) SetResult(res chain.Result) {
	f.mu.Lock()
	f.result = res
	f.mu.Unlock()
}

// Submissions returns the recorded submissions.
func (f *Fake) Submissions() []Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Submission(nil), f.submissions...)
}

// FeeCalls returns the calls fees were estimated for.
func (f *Fake) FeeCalls() []chain.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chain.Call(nil), f.feeCalls...)
}

func (f *Fake) QueryStorage(_ context.Context, module, item string, args ...[]byte) ([]byte, bool, error) {
	storage, ok := f.registry.Lookup(module, item)
	if !ok {
		return nil, false, nil
	}
	key, err := storage.Key(args...)
	if err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, false, f.queryErr
	}
	v, ok := f.values[string(key)]
	return v, ok, nil
}

func (f *Fake) QueryStorageEntriesPaged(_ context.Context, module, item string, args ...[]byte) ([]chain.Entry, error) {
	storage, ok := f.registry.Lookup(module, item)
	if !ok {
		return nil, nil
	}
	prefix, err := storage.Key(args...)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var keys []string
	for k := range f.values {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]chain.Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, chain.Entry{Key: []byte(k), Value: f.values[k]})
	}
	return out, nil
}

func (f *Fake) PaymentInfo(_ context.Context, call chain.Call, _ chain.Signer) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeCalls = append(f.feeCalls, call)
	if f.feeErr != nil {
		return nil, f.feeErr
	}
	return new(big.Int).Set(f.fee), nil
}

func (f *Fake) SubmitAndConfirm(_ context.Context, call chain.Call, signer chain.Signer, nonce *uint32) chain.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, Submission{Call: call, Signer: signer.Address(), Nonce: nonce})
	return f.result
}

// LastSubmission returns the most recent submission.
func (f *Fake) LastSubmission() (Submission, error) {
	subs := f.Submissions()
	if len(subs) == 0 {
		return Submission{}, fmt.Errorf("nothing submitted")
	}
	return subs[len(subs)-1], nil
}
