package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"taostats/internal/metrics"
	"taostats/internal/sdkerr"
)

// PageSize is the number of keys requested per state_getKeysPaged call.
const PageSize = 1000

// Dialer opens a Backend for an RPC URL.
type Dialer func(ctx context.Context, url string) (Backend, error)

// NodeDialer returns a Dialer producing *Node backends.
func NodeDialer(opts NodeOptions) Dialer {
	return func(ctx context.Context, url string) (Backend, error) {
		return Dial(ctx, url, opts)
	}
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// BlockViewCapacity bounds AtBlock views; DefaultBlockViewCapacity when zero.
	BlockViewCapacity int
	// ConfirmTimeout bounds SubmitAndConfirm; zero waits for finality indefinitely.
	ConfirmTimeout time.Duration
	Registry       *Registry
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
}

// Manager owns the single live chain connection. It reopens the connection
// when the configured URL changes or the backend reports it was lost.
type Manager struct {
	dial           Dialer
	registry       *Registry
	confirmTimeout time.Duration
	logger         *zap.Logger
	metrics        *metrics.Metrics

	mu      sync.Mutex
	url     string
	openURL string
	backend Backend
	dialing singleflight.Group

	views *viewCache
}

func NewManager(url string, dial Dialer, opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Manager{
		dial:           dial,
		registry:       registry,
		confirmTimeout: opts.ConfirmTimeout,
		logger:         logger,
		metrics:        opts.Metrics,
		url:            url,
		views:          newViewCache(opts.BlockViewCapacity),
	}
}

// SetURL changes the endpoint; the next Connection call reconnects.
func (m *Manager) SetURL(url string) {
	m.mu.Lock()
	m.url = url
	m.mu.Unlock()
}

func (m *Manager) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url
}

// Connection returns the live backend, opening one if needed. Concurrent
// callers share a single dial, which runs without holding the manager lock.
func (m *Manager) Connection(ctx context.Context) (Backend, error) {
	if backend := m.current(); backend != nil {
		return backend, nil
	}
	v, err, _ := m.dialing.Do("connect", func() (interface{}, error) {
		return m.connect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(Backend), nil
}

// current returns the open backend, closing it first when it was lost or
// the URL changed.
func (m *Manager) current() Backend {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend != nil {
		select {
		case <-m.backend.Done():
			m.logger.Warn("chain connection lost, reconnecting", zap.String("rpc", m.openURL))
			m.closeLocked()
		default:
		}
	}
	if m.backend != nil && m.openURL != m.url {
		m.logger.Info("rpc url changed, reconnecting", zap.String("from", m.openURL), zap.String("to", m.url))
		m.closeLocked()
	}
	return m.backend
}

func (m *Manager) connect(ctx context.Context) (Backend, error) {
	if backend := m.current(); backend != nil {
		return backend, nil
	}
	url := m.URL()
	if url == "" {
		return nil, sdkerr.New(sdkerr.KindConfiguration, "connect", "rpc url is not configured")
	}

	backend, err := m.dial(ctx, url)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindConnection, "connect", err, "open %s", url)
	}

	m.mu.Lock()
	m.backend = backend
	m.openURL = url
	m.mu.Unlock()
	m.metrics.ConnectionOpened()
	m.logger.Debug("chain connection opened", zap.String("rpc", url))
	return backend, nil
}

func (m *Manager) closeLocked() {
	if m.backend == nil {
		return
	}
	if err := m.backend.Close(); err != nil {
		m.logger.Warn("close chain connection", zap.Error(err))
	}
	m.backend = nil
	m.openURL = ""
}

// Close closes the connection and drops all block views.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closeLocked()
	m.mu.Unlock()
	m.ClearAll()
}

// BlockView reads state as of one block.
type BlockView struct {
	Number uint64
	Hash   common.Hash
	m      *Manager
}

// AtBlock returns the view for block number, waiting for a free cache slot
// when the cache is full.
func (m *Manager) AtBlock(ctx context.Context, number uint64) (*BlockView, error) {
	hash, err := m.BlockHash(ctx, number)
	if err != nil {
		return nil, err
	}
	view, err := m.views.admit(ctx, hash, func() *BlockView {
		return &BlockView{Number: number, Hash: hash, m: m}
	})
	if err != nil {
		return nil, fmt.Errorf("admit block view %d: %w", number, err)
	}
	m.metrics.SetBlockViews(m.views.len())
	return view, nil
}

// ClearAtBlock drops the view of block number and frees its slot.
func (m *Manager) ClearAtBlock(number uint64) {
	m.views.removeIf(func(v *BlockView) bool { return v.Number == number })
	m.metrics.SetBlockViews(m.views.len())
}

// ClearAll drops every cached view.
func (m *Manager) ClearAll() {
	m.views.removeIf(func(*BlockView) bool { return true })
	m.metrics.SetBlockViews(0)
}

// CachedViews reports the number of admitted views.
func (m *Manager) CachedViews() int {
	return m.views.len()
}

func (v *BlockView) QueryStorage(ctx context.Context, module, item string, args ...[]byte) ([]byte, bool, error) {
	return v.m.queryStorage(ctx, &v.Hash, module, item, args)
}

func (v *BlockView) QueryStorageEntriesPaged(ctx context.Context, module, item string, args ...[]byte) ([]Entry, error) {
	return v.m.queryEntries(ctx, &v.Hash, module, item, args)
}

// QueryStorage reads one storage value at the best block. An item unknown to
// the registry, or an unset key, reads as absent.
func (m *Manager) QueryStorage(ctx context.Context, module, item string, args ...[]byte) ([]byte, bool, error) {
	return m.queryStorage(ctx, nil, module, item, args)
}

// QueryStorageEntriesPaged reads every entry under the (partial) key.
func (m *Manager) QueryStorageEntriesPaged(ctx context.Context, module, item string, args ...[]byte) ([]Entry, error) {
	return m.queryEntries(ctx, nil, module, item, args)
}

func (m *Manager) queryStorage(ctx context.Context, at *common.Hash, module, item string, args [][]byte) ([]byte, bool, error) {
	storage, ok := m.registry.Lookup(module, item)
	if !ok {
		m.logger.Debug("unknown storage item", zap.String("module", module), zap.String("item", item))
		return nil, false, nil
	}
	key, err := storage.Key(args...)
	if err != nil {
		return nil, false, err
	}
	backend, err := m.Connection(ctx)
	if err != nil {
		return nil, false, err
	}
	return backend.Storage(ctx, key, at)
}

func (m *Manager) queryEntries(ctx context.Context, at *common.Hash, module, item string, args [][]byte) ([]Entry, error) {
	storage, ok := m.registry.Lookup(module, item)
	if !ok {
		return nil, nil
	}
	prefix, err := storage.Key(args...)
	if err != nil {
		return nil, err
	}
	backend, err := m.Connection(ctx)
	if err != nil {
		return nil, err
	}

	var (
		all    []Entry
		cursor []byte
	)
	for {
		page, err := backend.StoragePage(ctx, prefix, PageSize, cursor, at)
		if err != nil {
			return nil, fmt.Errorf("page %s.%s: %w", module, item, err)
		}
		if len(page) == 0 {
			return all, nil
		}
		all = append(all, page...)
		cursor = page[len(page)-1].Key
	}
}

func (m *Manager) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	backend, err := m.Connection(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	return backend.BlockHash(ctx, number)
}

func (m *Manager) BlockNumber(ctx context.Context, hash common.Hash) (uint64, error) {
	backend, err := m.Connection(ctx)
	if err != nil {
		return 0, err
	}
	return backend.BlockNumber(ctx, hash)
}

func (m *Manager) AccountNextIndex(ctx context.Context, address string) (uint32, error) {
	backend, err := m.Connection(ctx)
	if err != nil {
		return 0, err
	}
	return backend.AccountNextIndex(ctx, address)
}

func (m *Manager) PaymentInfo(ctx context.Context, call Call, signer Signer) (*big.Int, error) {
	backend, err := m.Connection(ctx)
	if err != nil {
		return nil, err
	}
	return backend.PaymentInfo(ctx, call, signer)
}

// SubmitAndConfirm signs and submits call and waits until it is finalized or
// fails. Failures are reported in the Result, never as an error.
func (m *Manager) SubmitAndConfirm(ctx context.Context, call Call, signer Signer, nonce *uint32) Result {
	if m.confirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.confirmTimeout)
		defer cancel()
	}

	backend, err := m.Connection(ctx)
	if err != nil {
		return Result{Error: err.Error()}
	}

	var n uint32
	if nonce != nil {
		n = *nonce
	} else {
		n, err = backend.AccountNextIndex(ctx, signer.Address())
		if err != nil {
			return Result{Error: fmt.Sprintf("fetch nonce: %v", err)}
		}
	}

	logger := m.logger.With(zap.String("call", call.String()), zap.String("signer", signer.Address()), zap.Uint32("nonce", n))
	sub, err := backend.SignAndSubmit(ctx, call, signer, n)
	if err != nil {
		logger.Warn("submit failed", zap.Error(err))
		return Result{Error: err.Error()}
	}
	defer sub.Unsubscribe()

	res := Result{TxHash: sub.TxHash}
	logger = logger.With(zap.String("tx_hash", sub.TxHash.Hex()))
	for {
		select {
		case <-ctx.Done():
			res.Error = fmt.Sprintf("stopped waiting for finalization: %v", ctx.Err())
			return res
		case err := <-sub.Err():
			res.Error = err.Error()
			return res
		case status := <-sub.Statuses():
			switch status.Kind {
			case StatusInBlock:
				logger.Info("transaction in block", zap.Uint64("block", status.BlockNumber))
			case StatusRetracted:
				logger.Warn("transaction block retracted", zap.Uint64("block", status.BlockNumber))
			case StatusFinalized:
				res.BlockHash = status.BlockHash
				res.BlockNumber = status.BlockNumber
				if status.DispatchError != nil {
					res.Error = status.DispatchError.Error()
					logger.Warn("transaction failed", zap.String("error", res.Error))
					return res
				}
				res.Success = true
				logger.Info("transaction finalized", zap.Uint64("block", status.BlockNumber))
				return res
			case StatusDropped, StatusInvalid:
				res.Error = fmt.Sprintf("transaction %s: %s", status.Kind, status.Reason)
				return res
			}
		}
	}
}
