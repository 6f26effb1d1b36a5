package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Backend is one live connection to a chain node.
type Backend interface {
	// Storage returns the raw value at key, or false when it is unset.
	Storage(ctx context.Context, key []byte, at *common.Hash) ([]byte, bool, error)
	// StoragePage returns up to count entries under prefix, starting after startKey.
	StoragePage(ctx context.Context, prefix []byte, count uint32, startKey []byte, at *common.Hash) ([]Entry, error)
	BlockHash(ctx context.Context, number uint64) (common.Hash, error)
	BlockNumber(ctx context.Context, hash common.Hash) (uint64, error)
	AccountNextIndex(ctx context.Context, address string) (uint32, error)
	// PaymentInfo returns the raw partial fee the runtime would charge for call.
	PaymentInfo(ctx context.Context, call Call, signer Signer) (*big.Int, error)
	SignAndSubmit(ctx context.Context, call Call, signer Signer, nonce uint32) (*Subscription, error)
	// Done is closed once the connection is known to be lost.
	Done() <-chan struct{}
	Close() error
}

// StatusKind is a stage of a submitted extrinsic.
type StatusKind int

const (
	StatusSubmitted StatusKind = iota
	StatusInBlock
	StatusRetracted
	StatusFinalized
	StatusDropped
	StatusInvalid
)

func (k StatusKind) String() string {
	switch k {
	case StatusSubmitted:
		return "submitted"
	case StatusInBlock:
		return "in_block"
	case StatusRetracted:
		return "retracted"
	case StatusFinalized:
		return "finalized"
	case StatusDropped:
		return "dropped"
	case StatusInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("status(%d)", int(k))
	}
}

// Terminal reports whether no further status follows.
func (k StatusKind) Terminal() bool {
	return k == StatusFinalized || k == StatusDropped || k == StatusInvalid
}

// Status is one notification of a submission subscription.
type Status struct {
	Kind           StatusKind
	BlockHash      common.Hash
	BlockNumber    uint64
	ExtrinsicIndex int
	DispatchError  *DispatchError
	Reason         string
}

// DispatchError is the failure reported by the runtime for an included extrinsic.
type DispatchError struct {
	Module  bool
	Section string
	Name    string
	Docs    []string
	// Raw describes non-module errors such as BadOrigin.
	Raw string
}

func (e *DispatchError) Error() string {
	if e.Module {
		return fmt.Sprintf("%s.%s: %s", e.Section, e.Name, strings.Join(e.Docs, " "))
	}
	return e.Raw
}

// DispatchInspector resolves the dispatch outcome of an included extrinsic.
// Implementations decode System.Events with the runtime metadata.
type DispatchInspector interface {
	DispatchResult(ctx context.Context, blockHash common.Hash, extrinsicIndex int) (*DispatchError, error)
}

// Subscription streams statuses of one submitted extrinsic.
type Subscription struct {
	TxHash common.Hash

	statuses chan Status
	errc     chan error
	cancel   context.CancelFunc
	once     sync.Once
}

// NewSubscription returns a subscription and the channels its producer writes to.
func NewSubscription(txHash common.Hash, cancel context.CancelFunc) (*Subscription, chan<- Status, chan<- error) {
	s := &Subscription{
		TxHash:   txHash,
		statuses: make(chan Status, 4),
		errc:     make(chan error, 1),
		cancel:   cancel,
	}
	return s, s.statuses, s.errc
}

// Statuses delivers status notifications until a terminal one.
func (s *Subscription) Statuses() <-chan Status {
	return s.statuses
}

// Err delivers at most one error, after which no statuses follow.
func (s *Subscription) Err() <-chan error {
	return s.errc
}

// Unsubscribe stops the producer. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Result is the terminal outcome of SubmitAndConfirm.
type Result struct {
	Success     bool
	TxHash      common.Hash
	BlockHash   common.Hash
	BlockNumber uint64
	Error       string
}

// StateReader reads storage by module and item name.
type StateReader interface {
	QueryStorage(ctx context.Context, module, item string, args ...[]byte) ([]byte, bool, error)
	QueryStorageEntriesPaged(ctx context.Context, module, item string, args ...[]byte) ([]Entry, error)
}
