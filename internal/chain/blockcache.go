package chain

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/semaphore"
)

// DefaultBlockViewCapacity bounds the per-block view cache.
const DefaultBlockViewCapacity = 32

// viewCache holds at most capacity views. Admission takes a semaphore slot;
// a caller finding the cache full blocks until a slot is released.
type viewCache struct {
	sem *semaphore.Weighted

	mu    sync.Mutex
	views map[common.Hash]*BlockView
}

func newViewCache(capacity int) *viewCache {
	if capacity <= 0 {
		capacity = DefaultBlockViewCapacity
	}
	return &viewCache{
		sem:   semaphore.NewWeighted(int64(capacity)),
		views: make(map[common.Hash]*BlockView),
	}
}

func (c *viewCache) get(hash common.Hash) (*BlockView, bool) {
	c.mu.Lock()
	view, ok := c.views[hash]
	c.mu.Unlock()
	return view, ok
}

// admit returns the cached view for hash or inserts a new one once a slot is free.
func (c *viewCache) admit(ctx context.Context, hash common.Hash, create func() *BlockView) (*BlockView, error) {
	if view, ok := c.get(hash); ok {
		return view, nil
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if view, ok := c.views[hash]; ok {
		c.sem.Release(1)
		return view, nil
	}
	view := create()
	c.views[hash] = view
	return view, nil
}

// removeIf drops matching views and frees their slots.
func (c *viewCache) removeIf(match func(*BlockView) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for hash, view := range c.views {
		if match(view) {
			delete(c.views, hash)
			removed++
		}
	}
	if removed > 0 {
		c.sem.Release(int64(removed))
	}
	return removed
}

func (c *viewCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.views)
}
