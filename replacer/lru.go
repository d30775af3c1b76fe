// Package replacer implements the buffer pool's eviction policy: which
// resident, unpinned frame gets kicked out to make room for a new one.
package replacer

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// Replacer tracks frame-ids currently eligible for eviction and picks a
// victim among them. All four operations are internally atomic.
type Replacer interface {
	// Victim removes and returns the least-recently-unpinned frame-id, or
	// reports false if no frame is evictable.
	Victim() (frameID int, ok bool)

	// Pin removes frameID from the evictable set. Idempotent.
	Pin(frameID int)

	// Unpin makes frameID evictable again. A no-op if it already is —
	// this preserves its position instead of bumping it to most-recent.
	Unpin(frameID int)

	// Size reports how many frames are currently evictable.
	Size() int
}

// LRU is an eviction policy that victimizes the least-recently-unpinned
// frame first. It wraps github.com/hashicorp/golang-lru, which already
// gives Unpin-without-reorder-on-repeat (ContainsOrAdd) and
// victim-is-oldest (RemoveOldest) for free; the mutex below exists because
// this component is also used standalone, outside the buffer pool's own
// locking, and the spec's component boundary calls for the replacer to be
// self-synchronizing regardless of what its caller does.
type LRU struct {
	mu       sync.Mutex
	internal *lru.Cache
}

// NewLRU returns an LRU replacer with capacity frames of room; inserting
// beyond capacity silently drops the least-recent entry.
func NewLRU(capacity int) *LRU {
	c, err := lru.New(capacity)
	if err != nil {
		// lru.New only errors when capacity <= 0, which is a programmer
		// error (a buffer pool of size 0 makes no sense) and not
		// something a caller can recover from.
		panic(err)
	}
	return &LRU{internal: c}
}

func (r *LRU) Pin(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.internal.Remove(frameID)
}

func (r *LRU) Victim() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, _, ok := r.internal.RemoveOldest()
	if !ok {
		return 0, false
	}
	return key.(int), true
}

func (r *LRU) Unpin(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.internal.ContainsOrAdd(frameID, struct{}{})
}

func (r *LRU) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.internal.Len()
}

var _ Replacer = (*LRU)(nil)
