package collision

import (
	"github.com/pthm-cable/forge/spatial"
)

// coarseKey identifies one 128x128 px coarse cell.
type coarseKey struct {
	cx, cy int16
}

// regionEntry caches the static bodies reachable from one coarse cell.
// Movable bodies staying inside a cell reuse the entry instead of querying
// the static hash every frame.
type regionEntry struct {
	statics    []int32
	valid      bool
	lastAccess uint64 // frame number
	staleCount int
}

// staleEvictThreshold removes an entry after this many consecutive stale
// sweeps outside the retention area.
const staleEvictThreshold = 3

// regionFor returns the cached static indices for a coarse cell, refreshing
// the entry from the static hash when missing or invalid. The refresh
// queries the full coarse cell, not merely a body's AABB, so every body in
// the cell shares one result.
func (e *Engine) regionFor(cx, cy int16) *regionEntry {
	key := coarseKey{cx, cy}
	entry, ok := e.regionCache[key]
	if !ok {
		entry = &regionEntry{}
		e.regionCache[key] = entry
	}
	if !entry.valid {
		bounds := spatial.CoarseBounds(cx, cy)
		entry.statics = e.staticHash.QueryRegion(bounds, entry.statics[:0])
		entry.statics = dedupeIndices(entry.statics)
		entry.valid = true
		entry.staleCount = 0
	}
	entry.lastAccess = e.frame
	return entry
}

// invalidateRegionCache marks every entry invalid. Used after a full static
// rebuild; entries refresh lazily on next access.
func (e *Engine) invalidateRegionCache() {
	for _, entry := range e.regionCache {
		entry.valid = false
	}
}

// invalidateRegionCell invalidates exactly one coarse cell, for incremental
// tile changes.
func (e *Engine) invalidateRegionCell(cx, cy int16) {
	if entry, ok := e.regionCache[coarseKey{cx, cy}]; ok {
		entry.valid = false
	}
}

// evictStaleRegions walks the cache every eviction interval. Cells whose
// center sits outside three culling buffers from the player accumulate a
// stale count and drop out once it crosses the threshold.
func (e *Engine) evictStaleRegions() {
	if e.evictionInterval <= 0 || e.frame%uint64(e.evictionInterval) != 0 {
		return
	}

	keep := 3 * e.cullingBuffer
	keepSq := keep * keep
	for key, entry := range e.regionCache {
		center := spatial.CoarseBounds(key.cx, key.cy).Center()
		d := center.Sub(e.playerPos)
		if d.LenSq() <= keepSq {
			entry.staleCount = 0
			continue
		}
		entry.staleCount++
		if entry.staleCount > staleEvictThreshold {
			delete(e.regionCache, key)
		}
	}
}

// dedupeIndices removes duplicates in place, preserving first occurrence.
func dedupeIndices(in []int32) []int32 {
	if len(in) < 2 {
		return in
	}
	seen := make(map[int32]struct{}, len(in))
	out := in[:0]
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
