package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"taostats/internal/metrics"
	"taostats/internal/scale"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPeriod       = 64
)

// NodeOptions tunes signing and confirmation behaviour of a Node.
type NodeOptions struct {
	// PollInterval is how often the confirmation watcher checks new heads.
	PollInterval time.Duration
	// Period is the extrinsic mortality window in blocks.
	Period uint64
	// DisableMetadataHash drops the CheckMetadataHash extension for runtimes without it.
	DisableMetadataHash bool
	Tip                 uint64
	// Inspector resolves dispatch outcomes; an EventInspector on this node when nil.
	Inspector DispatchInspector
	Logger              *zap.Logger
	Metrics             *metrics.Metrics
}

// Node is a Backend speaking Substrate JSON-RPC over a go-ethereum rpc.Client.
type Node struct {
	client *rpc.Client
	opts   NodeOptions
	logger *zap.Logger

	mu       sync.RWMutex
	genesis  *common.Hash
	metadata *runtimeMetadata

	done      chan struct{}
	closeOnce sync.Once
	lostOnce  sync.Once
}

// Dial connects to a ws, wss, http or https endpoint.
func Dial(ctx context.Context, url string, opts NodeOptions) (*Node, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewNode(client, opts), nil
}

// NewNode wraps an already connected client.
func NewNode(client *rpc.Client, opts NodeOptions) *Node {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Period == 0 {
		opts.Period = defaultPeriod
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Node{
		client: client,
		opts:   opts,
		logger: logger,
		done:   make(chan struct{}),
	}
	if n.opts.Inspector == nil {
		n.opts.Inspector = NewEventInspector(n)
	}
	return n
}

// Close closes the underlying RPC client.
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		if n.client != nil {
			n.client.Close()
		}
		n.markLost(nil)
	})
	return nil
}

func (n *Node) Done() <-chan struct{} {
	return n.done
}

func (n *Node) markLost(cause error) {
	n.lostOnce.Do(func() {
		if cause != nil {
			n.logger.Warn("rpc connection lost", zap.Error(cause))
		}
		close(n.done)
	})
}

func (n *Node) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	start := time.Now()
	err := n.client.CallContext(ctx, result, method, args...)
	n.opts.Metrics.ObserveRPC(method, start, err)
	if err != nil {
		if ctx.Err() == nil && isTransportError(err) {
			n.markLost(err)
		}
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func isTransportError(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	var netErr net.Error
	return errors.Is(err, rpc.ErrClientQuit) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &netErr)
}

func hashParam(at *common.Hash) []interface{} {
	if at == nil {
		return nil
	}
	return []interface{}{*at}
}

func (n *Node) Storage(ctx context.Context, key []byte, at *common.Hash) ([]byte, bool, error) {
	var res *hexutil.Bytes
	args := append([]interface{}{hexutil.Bytes(key)}, hashParam(at)...)
	if err := n.call(ctx, &res, "state_getStorage", args...); err != nil {
		return nil, false, err
	}
	if res == nil {
		return nil, false, nil
	}
	return *res, true, nil
}

type storageChangeSet struct {
	Block   common.Hash        `json:"block"`
	Changes [][2]*hexutil.Bytes `json:"changes"`
}

func (n *Node) StoragePage(ctx context.Context, prefix []byte, count uint32, startKey []byte, at *common.Hash) ([]Entry, error) {
	var start interface{}
	if len(startKey) > 0 {
		start = hexutil.Bytes(startKey)
	}
	args := append([]interface{}{hexutil.Bytes(prefix), count, start}, hashParam(at)...)

	var keys []hexutil.Bytes
	if err := n.call(ctx, &keys, "state_getKeysPaged", args...); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	var sets []storageChangeSet
	if err := n.call(ctx, &sets, "state_queryStorageAt", append([]interface{}{keys}, hashParam(at)...)...); err != nil {
		return nil, err
	}

	values := make(map[string][]byte, len(keys))
	for _, set := range sets {
		for _, change := range set.Changes {
			if change[0] == nil || change[1] == nil {
				continue
			}
			values[string(*change[0])] = *change[1]
		}
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		value, ok := values[string(key)]
		if !ok {
			continue
		}
		entries = append(entries, Entry{Key: key, Value: value})
	}
	return entries, nil
}

func (n *Node) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	var res *common.Hash
	if err := n.call(ctx, &res, "chain_getBlockHash", number); err != nil {
		return common.Hash{}, err
	}
	if res == nil {
		return common.Hash{}, fmt.Errorf("block %d not found", number)
	}
	return *res, nil
}

type header struct {
	ParentHash common.Hash    `json:"parentHash"`
	Number     hexutil.Uint64 `json:"number"`
}

func (n *Node) header(ctx context.Context, hash *common.Hash) (header, error) {
	var res *header
	if err := n.call(ctx, &res, "chain_getHeader", hashParam(hash)...); err != nil {
		return header{}, err
	}
	if res == nil {
		return header{}, fmt.Errorf("header %v not found", hash)
	}
	return *res, nil
}

func (n *Node) BlockNumber(ctx context.Context, hash common.Hash) (uint64, error) {
	h, err := n.header(ctx, &hash)
	if err != nil {
		return 0, err
	}
	return uint64(h.Number), nil
}

func (n *Node) finalizedHead(ctx context.Context) (common.Hash, error) {
	var res common.Hash
	err := n.call(ctx, &res, "chain_getFinalizedHead")
	return res, err
}

type signedBlock struct {
	Block struct {
		Header     header          `json:"header"`
		Extrinsics []hexutil.Bytes `json:"extrinsics"`
	} `json:"block"`
}

func (n *Node) blockExtrinsics(ctx context.Context, hash common.Hash) ([]hexutil.Bytes, error) {
	var res *signedBlock
	if err := n.call(ctx, &res, "chain_getBlock", hash); err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("block %s not found", hash)
	}
	return res.Block.Extrinsics, nil
}

func (n *Node) AccountNextIndex(ctx context.Context, address string) (uint32, error) {
	var nonce uint32
	err := n.call(ctx, &nonce, "system_accountNextIndex", address)
	return nonce, err
}

func (n *Node) genesisHash(ctx context.Context) (common.Hash, error) {
	n.mu.RLock()
	cached := n.genesis
	n.mu.RUnlock()
	if cached != nil {
		return *cached, nil
	}

	hash, err := n.BlockHash(ctx, 0)
	if err != nil {
		return common.Hash{}, err
	}
	n.mu.Lock()
	n.genesis = &hash
	n.mu.Unlock()
	return hash, nil
}

type runtimeVersion struct {
	SpecVersion        uint32 `json:"specVersion"`
	TransactionVersion uint32 `json:"transactionVersion"`
}

func (n *Node) runtimeVersion(ctx context.Context, at *common.Hash) (runtimeVersion, error) {
	var version runtimeVersion
	err := n.call(ctx, &version, "state_getRuntimeVersion", hashParam(at)...)
	return version, err
}

// runtime returns the metadata of the runtime active at block at, refetching
// it only when the spec version changes.
func (n *Node) runtime(ctx context.Context, at *common.Hash) (*runtimeMetadata, error) {
	version, err := n.runtimeVersion(ctx, at)
	if err != nil {
		return nil, err
	}
	n.mu.RLock()
	cached := n.metadata
	n.mu.RUnlock()
	if cached != nil && cached.specVersion == version.SpecVersion {
		return cached, nil
	}

	var raw hexutil.Bytes
	if err := n.call(ctx, &raw, "state_getMetadata", hashParam(at)...); err != nil {
		return nil, err
	}
	var meta types.Metadata
	if err := codec.Decode(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if meta.Version != 14 {
		return nil, fmt.Errorf("unsupported metadata version %d", meta.Version)
	}
	rt, err := newRuntimeMetadata(version.SpecVersion, &meta)
	if err != nil {
		return nil, err
	}
	n.logger.Debug("loaded runtime metadata", zap.Uint32("spec_version", version.SpecVersion), zap.Int("pallets", len(meta.AsMetadataV14.Pallets)))

	n.mu.Lock()
	n.metadata = rt
	n.mu.Unlock()
	return rt, nil
}

// resolveCall replaces the call index with the one the live runtime declares
// for call, unless the index was pinned by configuration.
func (n *Node) resolveCall(ctx context.Context, call Call) (Call, error) {
	if call.Pinned {
		return call, nil
	}
	rt, err := n.runtime(ctx, nil)
	if err != nil {
		return Call{}, err
	}
	idx, ok := rt.callIndex(call.String())
	if !ok {
		n.logger.Debug("call not in runtime metadata, keeping default index", zap.String("call", call.String()))
		return call, nil
	}
	if idx != call.Index {
		n.logger.Debug("call index resolved from metadata",
			zap.String("call", call.String()),
			zap.Uint8s("default", call.Index[:]),
			zap.Uint8s("runtime", idx[:]))
		call.Index = idx
	}
	return call, nil
}

func (n *Node) signOptions(ctx context.Context, nonce uint32) (SignOptions, error) {
	genesis, err := n.genesisHash(ctx)
	if err != nil {
		return SignOptions{}, err
	}
	version, err := n.runtimeVersion(ctx, nil)
	if err != nil {
		return SignOptions{}, err
	}
	best, err := n.header(ctx, nil)
	if err != nil {
		return SignOptions{}, err
	}
	birthHash, err := n.BlockHash(ctx, uint64(best.Number))
	if err != nil {
		return SignOptions{}, err
	}

	return SignOptions{
		Genesis:      genesis,
		SpecVersion:  version.SpecVersion,
		TxVersion:    version.TransactionVersion,
		Nonce:        nonce,
		Tip:          n.opts.Tip,
		Period:       n.opts.Period,
		BirthNumber:  uint64(best.Number),
		BirthHash:    birthHash,
		MetadataHash: !n.opts.DisableMetadataHash,
	}, nil
}

// PaymentInfo signs call without submitting it and asks
// TransactionPaymentApi_query_info for the partial fee.
func (n *Node) PaymentInfo(ctx context.Context, call Call, signer Signer) (*big.Int, error) {
	call, err := n.resolveCall(ctx, call)
	if err != nil {
		return nil, err
	}
	nonce, err := n.AccountNextIndex(ctx, signer.Address())
	if err != nil {
		return nil, err
	}
	opts, err := n.signOptions(ctx, nonce)
	if err != nil {
		return nil, err
	}
	ext, err := BuildSigned(call, signer, opts)
	if err != nil {
		return nil, err
	}

	input := scale.NewEncoder().Raw(ext).U32(uint32(len(ext))).Bytes()
	var res hexutil.Bytes
	if err := n.call(ctx, &res, "state_call", "TransactionPaymentApi_query_info", hexutil.Bytes(input)); err != nil {
		return nil, err
	}
	return decodePartialFee(res)
}

// dispatchInfo is RuntimeDispatchInfo with subtensor's u64 Balance.
type dispatchInfo struct {
	Weight struct {
		RefTime   types.UCompact
		ProofSize types.UCompact
	}
	Class      types.U8
	PartialFee types.U64
}

func decodePartialFee(raw []byte) (*big.Int, error) {
	var info dispatchInfo
	if err := codec.Decode(raw, &info); err != nil {
		return nil, fmt.Errorf("decode dispatch info: %w", err)
	}
	return new(big.Int).SetUint64(uint64(info.PartialFee)), nil
}

// SignAndSubmit submits call and starts a watcher that reports inclusion and finality.
func (n *Node) SignAndSubmit(ctx context.Context, call Call, signer Signer, nonce uint32) (*Subscription, error) {
	call, err := n.resolveCall(ctx, call)
	if err != nil {
		return nil, err
	}
	opts, err := n.signOptions(ctx, nonce)
	if err != nil {
		return nil, err
	}
	ext, err := BuildSigned(call, signer, opts)
	if err != nil {
		return nil, err
	}

	var txHash common.Hash
	if err := n.call(ctx, &txHash, "author_submitExtrinsic", hexutil.Bytes(ext)); err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	sub, statuses, errc := NewSubscription(txHash, cancel)
	w := &watcher{
		node:     n,
		ext:      ext,
		birth:    opts.BirthNumber,
		deadline: opts.BirthNumber + opts.Period,
		statuses: statuses,
		errc:     errc,
		logger:   n.logger.With(zap.String("tx_hash", txHash.Hex()), zap.String("call", call.String())),
	}
	go w.run(watchCtx)

	return sub, nil
}
