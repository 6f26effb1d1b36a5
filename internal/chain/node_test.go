package chain

import (
	"bytes"
	"context"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"taostats/internal/scale"
)

// fakeChain serves the Substrate RPC methods Node uses. Each submitted
// extrinsic is sealed into a new block that is finalized immediately, with
// System.Events recording outcome for it.
type fakeChain struct {
	mu        sync.Mutex
	storage   map[string][]byte
	events    map[common.Hash][]byte
	metadata  hexutil.Bytes
	blocks    []fakeBlock
	finalized int
	fee       uint64
	// outcome is the encoded DispatchError of the next submission, nil for success.
	outcome []byte
}

type fakeBlock struct {
	hash       common.Hash
	extrinsics []hexutil.Bytes
}

func newFakeChain(height int) *fakeChain {
	c := &fakeChain{
		storage:  make(map[string][]byte),
		events:   make(map[common.Hash][]byte),
		metadata: testMetadata(),
		fee:      12345,
	}
	for i := 0; i <= height; i++ {
		c.blocks = append(c.blocks, fakeBlock{hash: common.BigToHash(big.NewInt(int64(1000 + i)))})
	}
	c.finalized = height
	return c
}

func (c *fakeChain) number(hash common.Hash) (int, bool) {
	for i, b := range c.blocks {
		if b.hash == hash {
			return i, true
		}
	}
	return 0, false
}

type stateAPI struct{ c *fakeChain }

func (s *stateAPI) GetStorage(key hexutil.Bytes, at *common.Hash) (*hexutil.Bytes, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if at != nil && bytes.Equal(key, SystemEvents.Prefix()) {
		v, ok := s.c.events[*at]
		if !ok {
			return nil, nil
		}
		out := hexutil.Bytes(v)
		return &out, nil
	}
	v, ok := s.c.storage[string(key)]
	if !ok {
		return nil, nil
	}
	out := hexutil.Bytes(v)
	return &out, nil
}

func (s *stateAPI) GetKeysPaged(prefix hexutil.Bytes, count uint32, start *hexutil.Bytes, _ *common.Hash) ([]hexutil.Bytes, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	var keys []string
	for k := range s.c.storage {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if start != nil && k <= string(*start) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > int(count) {
		keys = keys[:count]
	}
	out := make([]hexutil.Bytes, 0, len(keys))
	for _, k := range keys {
		out = append(out, hexutil.Bytes(k))
	}
	return out, nil
}

func (s *stateAPI) QueryStorageAt(keys []hexutil.Bytes, _ *common.Hash) ([]storageChangeSet, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	set := storageChangeSet{Block: s.c.blocks[len(s.c.blocks)-1].hash}
	for _, k := range keys {
		key := append(hexutil.Bytes(nil), k...)
		var value *hexutil.Bytes
		if v, ok := s.c.storage[string(k)]; ok {
			b := hexutil.Bytes(v)
			value = &b
		}
		set.Changes = append(set.Changes, [2]*hexutil.Bytes{&key, value})
	}
	return []storageChangeSet{set}, nil
}

func (s *stateAPI) GetRuntimeVersion(_ *common.Hash) (runtimeVersion, error) {
	return runtimeVersion{SpecVersion: 300, TransactionVersion: 1}, nil
}

func (s *stateAPI) GetMetadata(_ *common.Hash) (hexutil.Bytes, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.c.metadata, nil
}

func (s *stateAPI) Call(method string, _ hexutil.Bytes) (hexutil.Bytes, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	info := scale.NewEncoder().Compact(1000).Compact(0).U8(0).U64(s.c.fee).Bytes()
	return info, nil
}

type chainAPI struct{ c *fakeChain }

func (a *chainAPI) GetBlockHash(number uint64) (*common.Hash, error) {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	if number >= uint64(len(a.c.blocks)) {
		return nil, nil
	}
	h := a.c.blocks[number].hash
	return &h, nil
}

func (a *chainAPI) GetHeader(hash *common.Hash) (*header, error) {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	n := len(a.c.blocks) - 1
	if hash != nil {
		var ok bool
		if n, ok = a.c.number(*hash); !ok {
			return nil, nil
		}
	}
	h := &header{Number: hexutil.Uint64(n)}
	if n > 0 {
		h.ParentHash = a.c.blocks[n-1].hash
	}
	return h, nil
}

func (a *chainAPI) GetBlock(hash common.Hash) (*signedBlock, error) {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	n, ok := a.c.number(hash)
	if !ok {
		return nil, nil
	}
	res := &signedBlock{}
	res.Block.Header.Number = hexutil.Uint64(n)
	res.Block.Extrinsics = a.c.blocks[n].extrinsics
	return res, nil
}

func (a *chainAPI) GetFinalizedHead() (common.Hash, error) {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	return a.c.blocks[a.c.finalized].hash, nil
}

type authorAPI struct{ c *fakeChain }

func (a *authorAPI) SubmitExtrinsic(ext hexutil.Bytes) (common.Hash, error) {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	n := len(a.c.blocks)
	hash := common.BigToHash(big.NewInt(int64(1000 + n)))
	a.c.blocks = append(a.c.blocks, fakeBlock{
		hash:       hash,
		extrinsics: []hexutil.Bytes{{0x01}, ext},
	})
	outcome := successEvent(1)
	if a.c.outcome != nil {
		outcome = failedEvent(1, a.c.outcome)
	}
	a.c.events[hash] = eventsBytes(successEvent(0), outcome)
	a.c.finalized = n
	return ExtrinsicHash(ext), nil
}

type systemAPI struct{}

func (systemAPI) AccountNextIndex(string) (uint32, error) {
	return 5, nil
}

func newTestNode(t *testing.T, c *fakeChain) *Node {
	t.Helper()
	server := rpc.NewServer()
	for name, svc := range map[string]interface{}{
		"state":  &stateAPI{c: c},
		"chain":  &chainAPI{c: c},
		"author": &authorAPI{c: c},
		"system": systemAPI{},
	} {
		if err := server.RegisterName(name, svc); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	node := NewNode(rpc.DialInProc(server), NodeOptions{PollInterval: 5 * time.Millisecond})
	t.Cleanup(func() {
		node.Close()
		server.Stop()
	})
	return node
}

func TestNodeStorageRoundTrip(t *testing.T) {
	c := newFakeChain(3)
	key, _ := SubnetTAO.Key(scale.EncodeU16(1))
	c.storage[string(key)] = scale.EncodeU64(77)
	node := newTestNode(t, c)

	raw, ok, err := node.Storage(context.Background(), key, nil)
	if err != nil || !ok {
		t.Fatalf("unexpected read: ok=%v err=%v", ok, err)
	}
	if v, _ := scale.DecodeU64(raw); v != 77 {
		t.Fatalf("decoded %d", v)
	}

	missing, _ := SubnetTAO.Key(scale.EncodeU16(9))
	if _, ok, err := node.Storage(context.Background(), missing, nil); ok || err != nil {
		t.Fatalf("expected absent value, ok=%v err=%v", ok, err)
	}
}

func TestNodeStoragePagesThroughManager(t *testing.T) {
	c := newFakeChain(1)
	for i := 0; i < 5; i++ {
		key, _ := SubnetTAO.Key(scale.EncodeU16(uint16(i)))
		c.storage[string(key)] = scale.EncodeU64(uint64(i))
	}
	node := newTestNode(t, c)
	m := NewManager("inproc", func(context.Context, string) (Backend, error) { return node, nil }, ManagerOptions{})

	entries, err := m.QueryStorageEntriesPaged(context.Background(), "SubtensorModule", "SubnetTAO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	for _, e := range entries {
		netuid, _ := e.TrailingU16()
		v, _ := scale.DecodeU64(e.Value)
		if uint64(netuid) != v {
			t.Fatalf("entry mismatch: netuid %d value %d", netuid, v)
		}
	}
}

func TestNodeBlockLookups(t *testing.T) {
	c := newFakeChain(4)
	node := newTestNode(t, c)

	hash, err := node.BlockHash(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, err := node.BlockNumber(context.Background(), hash)
	if err != nil || n != 2 {
		t.Fatalf("block number = %d, %v", n, err)
	}
	if _, err := node.BlockHash(context.Background(), 99); err == nil {
		t.Fatalf("expected error for unknown block")
	}
}

func TestNodePaymentInfo(t *testing.T) {
	c := newFakeChain(2)
	node := newTestNode(t, c)

	call, _ := NewCalls(nil).AddStake([32]byte{}, 0, 1)
	fee, err := node.PaymentInfo(context.Background(), call, testSigner(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fee.Int64() != 12345 {
		t.Fatalf("fee = %s", fee)
	}
}

func TestNodeSubmitAndConfirm(t *testing.T) {
	c := newFakeChain(10)
	node := newTestNode(t, c)
	m := NewManager("inproc", func(context.Context, string) (Backend, error) { return node, nil }, ManagerOptions{})

	call, _ := NewCalls(nil).AddStake([32]byte{}, 0, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := m.SubmitAndConfirm(ctx, call, testSigner(t), nil)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.BlockNumber != 11 {
		t.Fatalf("block number = %d", res.BlockNumber)
	}
	if res.TxHash == (common.Hash{}) {
		t.Fatalf("missing tx hash")
	}
}

func TestNodeSubmitAndConfirmReportsDispatchFailure(t *testing.T) {
	c := newFakeChain(4)
	c.outcome = moduleDispatchError(testSubtensorIndex, 1)
	node := newTestNode(t, c)
	m := NewManager("inproc", func(context.Context, string) (Backend, error) { return node, nil }, ManagerOptions{})

	call, _ := NewCalls(nil).RemoveStake([32]byte{}, 1, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := m.SubmitAndConfirm(ctx, call, testSigner(t), nil)
	if res.Success {
		t.Fatalf("failed extrinsic reported as success: %+v", res)
	}
	if res.BlockNumber != 5 {
		t.Fatalf("block number = %d", res.BlockNumber)
	}
	if want := "SubtensorModule.NotEnoughStakeToWithdraw: " + testErrNotEnoughDocs; res.Error != want {
		t.Fatalf("error = %q, want %q", res.Error, want)
	}
}

// finneyQueryInfo is a TransactionPaymentApi_query_info response: weight
// (ref_time 204763000, proof_size 4734), Normal class, partial fee 124559 rao.
const finneyQueryInfo = "0xe2bdd130f949008fe6010000000000"

func TestDecodePartialFeeFinneyLayout(t *testing.T) {
	fee, err := decodePartialFee(hexutil.MustDecode(finneyQueryInfo))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fee.Uint64() != 124559 {
		t.Fatalf("fee = %s", fee)
	}
	if _, err := decodePartialFee(hexutil.MustDecode("0xe2bdd130f949008fe601")); err == nil {
		t.Fatalf("expected error for truncated fee")
	}
}

func TestNodeCloseSignalsDone(t *testing.T) {
	node := newTestNode(t, newFakeChain(1))
	node.Close()
	select {
	case <-node.Done():
	case <-time.After(time.Second):
		t.Fatalf("Done not closed after Close")
	}
}
