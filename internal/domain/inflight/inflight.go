// Package inflight guards keys (counter ids) against overlapping work.
package inflight

import (
	"context"
	"sync"
	"sync/atomic"
)

// Guard marks keys as busy so a looped caller never starts a second
// operation for a key while the first one is still running.
type Guard interface {
	// TryAcquire atomically marks key busy. It returns false when key is
	// already held or the guard is full.
	TryAcquire(ctx context.Context, key string) bool

	// Release frees key. Releasing a key that is not held is a no-op.
	Release(ctx context.Context, key string)

	Size() int64
}

// inMemoryGuard keeps held keys in a map.
// With maxKeys > 0 new keys are refused once maxKeys are held; held keys are
// never evicted since that would let two operations overlap.
type inMemoryGuard struct {
	mu      sync.Mutex
	held    map[string]struct{}
	maxKeys int
	size    atomic.Int64
}

// NewGuard creates a new in-memory guard with configuration options.
func NewGuard(opts ...Option) Guard {
	g := &inMemoryGuard{}

	for _, opt := range opts {
		opt(g)
	}

	g.held = make(map[string]struct{})
	return g
}

func (g *inMemoryGuard) TryAcquire(_ context.Context, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[key]; busy {
		return false
	}
	if g.maxKeys > 0 && len(g.held) >= g.maxKeys {
		return false
	}
	g.held[key] = struct{}{}
	g.size.Add(1)
	return true
}

func (g *inMemoryGuard) Release(_ context.Context, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[key]; busy {
		delete(g.held, key)
		g.size.Add(-1)
	}
}

// Size returns the number of keys currently held.
func (g *inMemoryGuard) Size() int64 {
	return g.size.Load()
}
