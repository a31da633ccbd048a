// Package pathfind implements the asynchronous pathfinding service: a
// lock-free request ring, a four-band priority scheduler, grid A* with
// caching, and a spatial priority overlay.
package pathfind

import (
	"sync/atomic"
	"time"

	"github.com/pthm-cable/forge/components"
)

// Priority bands for path requests.
type Priority uint8

const (
	PriorityCritical Priority = iota // player, combat
	PriorityHigh                     // close NPCs, important behaviors
	PriorityNormal                   // regular navigation
	PriorityLow                      // background and distant NPCs
	numPriorities
)

// Callback delivers a computed path. An empty path means unreachable or
// iteration limit.
type Callback func(entity components.Handle, path []components.Vec2)

// Request is one queued pathfinding request.
type Request struct {
	Entity    components.Handle
	Start     components.Vec2
	Goal      components.Vec2
	Priority  Priority
	Callback  Callback
	Timestamp time.Time
	ID        uint64
}

// pad keeps the producer and consumer indices on separate cache lines.
type pad [56]byte

// Ring is a lock-free single-producer single-consumer circular buffer.
// Capacity is rounded up to a power of two so wrapping is a mask. If more
// than one producer is ever needed, replace the structure rather than
// widening its invariants.
type Ring struct {
	buf  []Request
	mask uint64

	head atomic.Uint64 // next slot to read (consumer-owned)
	_    pad
	tail atomic.Uint64 // next slot to write (producer-owned)
	_    pad
}

// NewRing creates a ring with at least the given capacity.
func NewRing(capacity int) *Ring {
	n := uint64(1)
	for n < uint64(capacity) {
		n <<= 1
	}
	return &Ring{
		buf:  make([]Request, n),
		mask: n - 1,
	}
}

// Enqueue attempts to push a request. Returns false when full; the caller
// backs off and retries next frame. Single producer only.
func (r *Ring) Enqueue(req Request) bool {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail-head >= uint64(len(r.buf)) {
		return false
	}
	r.buf[tail&r.mask] = req
	// Release publishes the slot write before the index becomes visible.
	r.tail.Store(tail + 1)
	return true
}

// Dequeue attempts to pop a request. Returns false when empty. Single
// consumer only.
func (r *Ring) Dequeue(out *Request) bool {
	head := r.head.Load()
	if head == r.tail.Load() {
		return false
	}
	*out = r.buf[head&r.mask]
	r.buf[head&r.mask] = Request{} // drop the callback reference
	r.head.Store(head + 1)
	return true
}

// Len reports the approximate queue depth.
func (r *Ring) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }
