package collision

import (
	"log/slog"
	"time"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/entity"
	"github.com/pthm-cable/forge/spatial"
)

// Options configures the engine.
type Options struct {
	CullingBuffer      float32 // px around the player kept in the active area
	CacheEvictInterval int     // frames between stale region sweeps
	MaxResolvedSpeed   float32 // velocity magnitude ceiling after resolution
	TriggerCooldown    time.Duration
}

// DefaultOptions mirror the shipped configuration defaults.
func DefaultOptions() Options {
	return Options{
		CullingBuffer:      2000,
		CacheEvictInterval: 120,
		MaxResolvedSpeed:   300,
		TriggerCooldown:    0,
	}
}

// Engine owns the collision body subset of the entity store and runs the
// per-frame detection and resolution pipeline.
type Engine struct {
	store  *entity.Store
	logger *slog.Logger

	staticHash   *spatial.Hash
	coarseStatic *spatial.Hash
	dynamicHash  *spatial.Hash
	regionCache  map[coarseKey]*regionEntry

	commands   commandQueue
	cmdScratch []command

	callbacks      []Callback
	triggerHandler TriggerHandler
	activeTriggers map[triggerKey]time.Time
	lastFired      map[triggerKey]time.Time
	lastTags       map[triggerKey]components.TriggerTag

	staticDirty bool
	frame       uint64

	playerHandle components.Handle
	playerPos    components.Vec2

	cullingBuffer    float32
	evictionInterval int
	maxSpeed         float32
	triggerCooldown  time.Duration

	// Per-frame scratch, reused to keep the hot path allocation-free.
	staticActive  []int32
	movableActive []int32
	queryBuf      []int32
	maskBuf       []uint32
	filteredBuf   []int32
	pairs         []pair
	pairSet       map[pair]struct{}
	infos         []Info
	resolved      map[int]resolvedBody
	seenTriggers  map[triggerKey]components.Vec2

	// Metrics for the frame's cull pass.
	TotalStatic  int
	TotalMovable int
	CacheHits    int
	CacheMisses  int
}

// resolvedBody carries the post-resolution state written back through the
// weak back-reference in the sync phase.
type resolvedBody struct {
	pos components.Vec2
	vel components.Vec2
}

// New creates a collision engine over the shared entity store.
func New(store *entity.Store, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:            store,
		logger:           logger,
		staticHash:       spatial.NewHash(spatial.FineCellSize),
		coarseStatic:     spatial.NewHash(spatial.CoarseCellSize),
		dynamicHash:      spatial.NewHash(spatial.FineCellSize),
		regionCache:      make(map[coarseKey]*regionEntry, 64),
		activeTriggers:   make(map[triggerKey]time.Time),
		lastFired:        make(map[triggerKey]time.Time),
		lastTags:         make(map[triggerKey]components.TriggerTag),
		pairSet:          make(map[pair]struct{}, 256),
		resolved:         make(map[int]resolvedBody, 64),
		seenTriggers:     make(map[triggerKey]components.Vec2, 16),
		cullingBuffer:    opts.CullingBuffer,
		evictionInterval: opts.CacheEvictInterval,
		maxSpeed:         opts.MaxResolvedSpeed,
		triggerCooldown:  opts.TriggerCooldown,
	}
}

// RegisterCallback adds a collision callback; dispatch preserves
// registration order.
func (e *Engine) RegisterCallback(cb Callback) {
	e.callbacks = append(e.callbacks, cb)
}

// SetTriggerHandler installs the trigger event sink.
func (e *Engine) SetTriggerHandler(h TriggerHandler) {
	e.triggerHandler = h
}

// SetPlayer sets the reference body for culling and trigger tracking.
func (e *Engine) SetPlayer(h components.Handle) {
	e.playerHandle = h
}

// MarkStaticDirty forces a static structure rebuild next frame. World load
// and tile-change signals route through this.
func (e *Engine) MarkStaticDirty() {
	e.staticDirty = true
}

// InvalidateCoarseCell invalidates one coarse region cache cell, for
// incremental tile changes.
func (e *Engine) InvalidateCoarseCell(cx, cy int16) {
	e.invalidateRegionCell(cx, cy)
}

// Update runs the full per-frame pipeline: commands then detection and
// resolution. Orchestrators that need AI to run between the two call
// ProcessCommands and Step separately.
func (e *Engine) Update(now time.Time) []Info {
	e.ProcessCommands()
	return e.Step(now)
}

// ProcessCommands drains and applies the deferred command queue. This is
// the frame's first phase, before AI reads positions.
func (e *Engine) ProcessCommands() {
	e.processCommands()
}

// Step runs detection and resolution: rebuild-if-dirty, cull, hash sync,
// cache update, broadphase, narrowphase, resolve, callbacks, entity sync
// and trigger tracking. Every failure inside is non-fatal.
func (e *Engine) Step(now time.Time) []Info {
	e.frame++

	e.refreshPlayerPos()
	e.rebuildStaticIfDirty()
	e.buildActiveIndices()
	e.syncDynamicHash()
	e.updateStaticCache()
	e.evictStaleRegions()
	e.broadphase()
	e.narrowphase()
	e.resolve()
	e.dispatchCallbacks()
	e.syncEntities()
	e.updateTriggers(now)

	return e.infos
}

func (e *Engine) refreshPlayerPos() {
	idx, ok := e.store.Index(e.playerHandle)
	if !ok {
		return
	}
	e.store.RLock()
	e.playerPos = e.store.Hot(idx).Pos
	e.store.RUnlock()
}

// rebuildStaticIfDirty rebuilds the static spatial hash and coarse static
// grid from all static bodies, then invalidates the region cache.
func (e *Engine) rebuildStaticIfDirty() {
	if !e.staticDirty {
		return
	}
	e.staticDirty = false

	e.staticHash.Clear()
	e.coarseStatic.Clear()

	e.store.RLock()
	n := e.store.Len()
	for i := 0; i < n; i++ {
		hot := e.store.Hot(i)
		if hot.Body != components.BodyStatic || !hot.Active {
			continue
		}
		e.store.RefreshAABB(i)
		e.staticHash.Insert(int32(i), hot.CachedAABB)
		e.coarseStatic.Insert(int32(i), hot.CachedAABB)
	}
	e.store.RUnlock()

	e.invalidateRegionCache()
}

// RebuildStatic forces an immediate rebuild; idempotent for a given world.
func (e *Engine) RebuildStatic() {
	e.staticDirty = true
	e.rebuildStaticIfDirty()
}

// buildActiveIndices computes the frame's culling area and fills the static
// and movable index lists. Static candidates come from the coarse static
// grid refined by an exact area test; movables come from a full sweep.
func (e *Engine) buildActiveIndices() {
	area := components.AABB{
		MinX: e.playerPos.X - e.cullingBuffer,
		MinY: e.playerPos.Y - e.cullingBuffer,
		MaxX: e.playerPos.X + e.cullingBuffer,
		MaxY: e.playerPos.Y + e.cullingBuffer,
	}

	e.staticActive = e.staticActive[:0]
	e.movableActive = e.movableActive[:0]
	e.TotalStatic = 0
	e.TotalMovable = 0

	e.store.RLock()
	defer e.store.RUnlock()

	e.queryBuf = e.coarseStatic.QueryRegion(area, e.queryBuf[:0])
	e.queryBuf = dedupeIndices(e.queryBuf)
	n := e.store.Len()
	for _, idx := range e.queryBuf {
		if int(idx) >= n {
			continue
		}
		hot := e.store.Hot(int(idx))
		if hot.Body != components.BodyStatic || !hot.Active {
			continue
		}
		if area.Overlaps(hot.CachedAABB) {
			e.staticActive = append(e.staticActive, idx)
		}
	}

	for i := 0; i < n; i++ {
		hot := e.store.Hot(i)
		if !hot.Active {
			continue
		}
		if hot.Body == components.BodyStatic {
			e.TotalStatic++
			continue
		}
		e.TotalMovable++
		if e.store.Tier(i) != components.TierActive {
			continue
		}
		e.store.RefreshAABB(i)
		if area.Overlaps(hot.CachedAABB) {
			e.movableActive = append(e.movableActive, int32(i))
		}
	}
}

// syncDynamicHash clears and reinserts every active movable body with its
// refreshed AABB.
func (e *Engine) syncDynamicHash() {
	e.dynamicHash.Clear()

	e.store.RLock()
	for _, idx := range e.movableActive {
		hot := e.store.Hot(int(idx))
		e.dynamicHash.Insert(idx, hot.CachedAABB)
	}
	e.store.RUnlock()
}

// updateStaticCache refreshes the region cache entry for every movable body
// whose coarse cell changed or whose entry was invalidated, and records the
// body's current coarse cell.
func (e *Engine) updateStaticCache() {
	e.store.RLock()
	defer e.store.RUnlock()

	for _, idx := range e.movableActive {
		hot := e.store.Hot(int(idx))
		cx, cy := spatial.CoarseCoord(hot.CachedAABB)

		entry, cached := e.regionCache[coarseKey{cx, cy}]
		if cached && entry.valid && hot.CoarseX == cx && hot.CoarseY == cy {
			entry.lastAccess = e.frame
			e.CacheHits++
			continue
		}
		e.CacheMisses++
		e.regionFor(cx, cy)
		hot.CoarseX = cx
		hot.CoarseY = cy
	}
}

// ApplyBatchedKinematicUpdates merges the AI batches' kinematic buffers into
// hot data under a single shared-lock acquisition. Index sets are disjoint
// per batch, so in-place shared writes are race-free. Only kinematic bodies
// accept the write.
func (e *Engine) ApplyBatchedKinematicUpdates(batches [][]KinematicUpdate) {
	e.store.RLock()
	defer e.store.RUnlock()

	n := e.store.Len()
	for _, batch := range batches {
		for _, u := range batch {
			if u.Index < 0 || u.Index >= n {
				continue
			}
			hot := e.store.Hot(u.Index)
			if hot.Body != components.BodyKinematic {
				continue
			}
			e.store.Cold(u.Index).LastPos = hot.Pos
			hot.Pos = u.Pos
			hot.Vel = u.Vel
			hot.Active = u.Active
			hot.AABBDirty = true
		}
	}
}

// Frame returns the current frame counter.
func (e *Engine) Frame() uint64 { return e.frame }

// RegionCacheLen reports the live region cache entry count.
func (e *Engine) RegionCacheLen() int { return len(e.regionCache) }
