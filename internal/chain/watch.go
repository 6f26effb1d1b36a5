package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// watcher follows one submitted extrinsic by polling heads. It scans new best
// blocks for the extrinsic bytes, then waits for the finalized head to pass
// the inclusion block and checks the block is still canonical.
type watcher struct {
	node     *Node
	ext      []byte
	birth    uint64
	deadline uint64
	statuses chan<- Status
	errc     chan<- error
	logger   *zap.Logger

	next     uint64
	included *Status
}

func (w *watcher) run(ctx context.Context) {
	w.next = w.birth + 1
	if !w.emit(ctx, Status{Kind: StatusSubmitted}) {
		return
	}

	ticker := time.NewTicker(w.node.opts.PollInterval)
	defer ticker.Stop()

	for {
		done, err := w.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case w.errc <- err:
			default:
			}
			return
		}
		if done {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-w.node.Done():
			select {
			case w.errc <- errors.New("connection closed while awaiting finalization"):
			default:
			}
			return
		case <-ticker.C:
		}
	}
}

func (w *watcher) emit(ctx context.Context, status Status) bool {
	select {
	case w.statuses <- status:
		return true
	case <-ctx.Done():
		return false
	}
}

// poll advances the state machine once; it reports true after a terminal status.
func (w *watcher) poll(ctx context.Context) (bool, error) {
	if w.included != nil {
		return w.checkFinality(ctx)
	}

	best, err := w.node.header(ctx, nil)
	if err != nil {
		return false, err
	}
	head := uint64(best.Number)

	for ; w.next <= head; w.next++ {
		hash, err := w.node.BlockHash(ctx, w.next)
		if err != nil {
			return false, err
		}
		extrinsics, err := w.node.blockExtrinsics(ctx, hash)
		if err != nil {
			return false, err
		}
		for idx, candidate := range extrinsics {
			if !bytes.Equal(candidate, w.ext) {
				continue
			}
			status := Status{Kind: StatusInBlock, BlockHash: hash, BlockNumber: w.next, ExtrinsicIndex: idx}
			w.included = &status
			w.logger.Debug("extrinsic in block", zap.Uint64("block", w.next), zap.String("block_hash", hash.Hex()))
			w.next++
			if !w.emit(ctx, status) {
				return true, nil
			}
			return w.checkFinality(ctx)
		}
	}

	if head > w.deadline {
		w.emit(ctx, Status{Kind: StatusDropped, Reason: fmt.Sprintf("not included before mortality end at block %d", w.deadline)})
		return true, nil
	}
	return false, nil
}

func (w *watcher) checkFinality(ctx context.Context) (bool, error) {
	inc := *w.included

	canonical, err := w.node.BlockHash(ctx, inc.BlockNumber)
	if err != nil {
		return false, err
	}
	if canonical != inc.BlockHash {
		w.logger.Info("inclusion block retracted", zap.Uint64("block", inc.BlockNumber))
		w.included = nil
		w.next = inc.BlockNumber
		return !w.emit(ctx, Status{Kind: StatusRetracted, BlockHash: inc.BlockHash, BlockNumber: inc.BlockNumber}), nil
	}

	finalized, err := w.node.finalizedHead(ctx)
	if err != nil {
		return false, err
	}
	finalizedNumber, err := w.node.BlockNumber(ctx, finalized)
	if err != nil {
		return false, err
	}
	if finalizedNumber < inc.BlockNumber {
		return false, nil
	}

	final := inc
	final.Kind = StatusFinalized
	final.DispatchError, err = w.dispatchResult(ctx, inc.BlockHash, inc.ExtrinsicIndex)
	if err != nil {
		return false, err
	}
	w.emit(ctx, final)
	return true, nil
}

func (w *watcher) dispatchResult(ctx context.Context, block common.Hash, index int) (*DispatchError, error) {
	derr, err := w.node.opts.Inspector.DispatchResult(ctx, block, index)
	if err != nil {
		return nil, fmt.Errorf("inspect dispatch result: %w", err)
	}
	return derr, nil
}
