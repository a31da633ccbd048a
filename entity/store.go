// Package entity implements the entity data store: structure-of-arrays hot
// and cold state, stable generation-checked handles, and simulation tiers.
package entity

import (
	"sync"

	"github.com/pthm-cable/forge/components"
)

// NoIndex is the sentinel returned for handles that do not resolve.
const NoIndex = -1

// Store owns the hot/cold parallel arrays. External components hold handles
// only; pointers returned by Hot/Cold must not outlive the caller's lock
// scope.
type Store struct {
	mu sync.RWMutex

	hot   []components.HotData
	cold  []components.ColdData
	ids   []components.Handle
	tiers []components.Tier

	toIndex   map[uint32]int // slot -> dense index
	gens      []uint32       // slot -> current generation
	freeSlots []uint32
}

// NewStore creates an empty store with the given initial capacity.
func NewStore(capacity int) *Store {
	if capacity < 0 {
		capacity = 0
	}
	return &Store{
		hot:     make([]components.HotData, 0, capacity),
		cold:    make([]components.ColdData, 0, capacity),
		ids:     make([]components.Handle, 0, capacity),
		tiers:   make([]components.Tier, 0, capacity),
		toIndex: make(map[uint32]int, capacity),
	}
}

// Lock acquires the storage lock exclusively.
func (s *Store) Lock() { s.mu.Lock() }

// Unlock releases the exclusive storage lock.
func (s *Store) Unlock() { s.mu.Unlock() }

// RLock acquires the storage lock shared.
func (s *Store) RLock() { s.mu.RLock() }

// RUnlock releases the shared storage lock.
func (s *Store) RUnlock() { s.mu.RUnlock() }

// ReserveHandle allocates a handle whose dense slot is assigned later by
// CommitCreate. A reserved handle does not resolve until committed, which
// is what makes deferred creation commands safe to hand out immediately.
func (s *Store) ReserveHandle() components.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	var slot uint32
	if n := len(s.freeSlots); n > 0 {
		slot = s.freeSlots[n-1]
		s.freeSlots = s.freeSlots[:n-1]
	} else {
		slot = uint32(len(s.gens))
		s.gens = append(s.gens, 0)
	}
	s.gens[slot]++
	return components.MakeHandle(slot, s.gens[slot])
}

// CommitCreate materializes a reserved handle: appends the dense entry and
// initializes the cached AABB, coarse cell and full AABB. Returns false if
// the handle was destroyed or never reserved.
func (s *Store) CommitCreate(h components.Handle, hot components.HotData, cold components.ColdData) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := h.Slot()
	if !h.Valid() || int(slot) >= len(s.gens) || s.gens[slot] != h.Gen() {
		return false
	}
	if _, exists := s.toIndex[slot]; exists {
		return false
	}

	hot.CachedAABB = components.AABBFromCenter(hot.Pos, hot.HalfSize)
	hot.CoarseX, hot.CoarseY = CoarseCell(hot.Pos)
	hot.AABBDirty = false
	cold.FullAABB = hot.CachedAABB
	cold.LastPos = hot.Pos
	cold.Owner = h

	idx := len(s.hot)
	s.hot = append(s.hot, hot)
	s.cold = append(s.cold, cold)
	s.ids = append(s.ids, h)
	s.tiers = append(s.tiers, components.TierActive)
	s.toIndex[slot] = idx
	return true
}

// Create reserves and commits in one step, for callers outside the deferred
// command path (tests, world loading on the main thread).
func (s *Store) Create(hot components.HotData, cold components.ColdData) components.Handle {
	h := s.ReserveHandle()
	s.CommitCreate(h, hot, cold)
	return h
}

// Destroy removes an entity by handle using swap-with-last. Destroying a
// stale or already-destroyed handle is a no-op.
func (s *Store) Destroy(h components.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexLocked(h)
	if !ok {
		return false
	}

	last := len(s.hot) - 1
	if idx != last {
		s.hot[idx] = s.hot[last]
		s.cold[idx] = s.cold[last]
		s.ids[idx] = s.ids[last]
		s.tiers[idx] = s.tiers[last]
		s.toIndex[s.ids[idx].Slot()] = idx
	}
	s.hot = s.hot[:last]
	s.cold = s.cold[:last]
	s.ids = s.ids[:last]
	s.tiers = s.tiers[:last]

	slot := h.Slot()
	delete(s.toIndex, slot)
	s.gens[slot]++ // stale handles stop resolving immediately
	s.freeSlots = append(s.freeSlots, slot)
	return true
}

// Index resolves a handle to its dense index, with a generation check.
// Returns (NoIndex, false) for stale or unknown handles.
func (s *Store) Index(h components.Handle) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(h)
}

// IndexLocked is Index for callers that already hold the storage lock.
func (s *Store) IndexLocked(h components.Handle) (int, bool) {
	return s.indexLocked(h)
}

func (s *Store) indexLocked(h components.Handle) (int, bool) {
	if !h.Valid() {
		return NoIndex, false
	}
	slot := h.Slot()
	if int(slot) >= len(s.gens) || s.gens[slot] != h.Gen() {
		return NoIndex, false
	}
	idx, ok := s.toIndex[slot]
	if !ok {
		return NoIndex, false
	}
	return idx, true
}

// Alive reports whether the handle still resolves. This is the weak
// back-reference promotion test.
func (s *Store) Alive(h components.Handle) bool {
	_, ok := s.Index(h)
	return ok
}

// Hot returns the hot data at a dense index. The caller holds the storage
// lock in the appropriate mode; the pointer must not outlive it.
func (s *Store) Hot(i int) *components.HotData { return &s.hot[i] }

// Cold returns the cold data at a dense index, under the same contract as Hot.
func (s *Store) Cold(i int) *components.ColdData { return &s.cold[i] }

// Handle returns the handle stored at a dense index.
func (s *Store) Handle(i int) components.Handle { return s.ids[i] }

// Tier returns the simulation tier at a dense index.
func (s *Store) Tier(i int) components.Tier { return s.tiers[i] }

// Len returns the entity count. Caller holds the lock if racing writers.
func (s *Store) Len() int { return len(s.hot) }

// RefreshAABB recomputes the cached AABB at index i if dirty. Caller holds
// the lock; shared mode is fine when index sets are disjoint.
func (s *Store) RefreshAABB(i int) {
	h := &s.hot[i]
	if !h.AABBDirty {
		return
	}
	h.CachedAABB = components.AABBFromCenter(h.Pos, h.HalfSize)
	s.cold[i].FullAABB = h.CachedAABB
	h.AABBDirty = false
}
