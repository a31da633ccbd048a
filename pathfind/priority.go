package pathfind

import (
	"github.com/pthm-cable/forge/components"
)

// Zone classifies a requesting entity by distance from the player.
type Zone uint8

const (
	ZoneNear   Zone = iota // processed every frame
	ZoneMedium             // every 2-3 frames
	ZoneFar                // every 5-10 frames
	ZoneCulled             // Low priority only
)

// Zone distance thresholds in pixels.
const (
	nearRadius   float32 = 512
	mediumRadius float32 = 1536
	farRadius    float32 = 4096
)

// Eviction thresholds for the last-processed map.
const (
	lastProcessedCap       = 10000
	aggressiveEvictAt      = 8000
	aggressiveEvictAge     = 600 // frames
	emergencyEvictFraction = 4   // drop 1/4 of entries at the cap
)

// SpatialPriority throttles per-entity request processing by distance from
// the player, and tracks when each entity was last served.
type SpatialPriority struct {
	playerPos     components.Vec2
	hasPlayer     bool
	lastProcessed map[components.Handle]uint64
}

// NewSpatialPriority creates an empty overlay.
func NewSpatialPriority() *SpatialPriority {
	return &SpatialPriority{
		lastProcessed: make(map[components.Handle]uint64, 256),
	}
}

// SetPlayerPos updates the reference point.
func (sp *SpatialPriority) SetPlayerPos(pos components.Vec2) {
	sp.playerPos = pos
	sp.hasPlayer = true
}

// ZoneFor classifies a position. Without a player everything is Near.
func (sp *SpatialPriority) ZoneFor(pos components.Vec2) Zone {
	if !sp.hasPlayer {
		return ZoneNear
	}
	distSq := pos.Sub(sp.playerPos).LenSq()
	switch {
	case distSq < nearRadius*nearRadius:
		return ZoneNear
	case distSq < mediumRadius*mediumRadius:
		return ZoneMedium
	case distSq < farRadius*farRadius:
		return ZoneFar
	}
	return ZoneCulled
}

// ShouldProcess decides whether an entity's request may run this frame, by
// zone cadence. Culled entities only run when their request is Low band,
// keeping distant NPCs from consuming higher-band slots.
func (sp *SpatialPriority) ShouldProcess(entity components.Handle, pos components.Vec2, pri Priority, frame uint64) bool {
	zone := sp.ZoneFor(pos)

	var interval uint64
	switch zone {
	case ZoneNear:
		interval = 1
	case ZoneMedium:
		interval = 2 + frame%2 // alternates 2 and 3
	case ZoneFar:
		interval = 5 + frame%6 // spreads 5..10
	case ZoneCulled:
		if pri != PriorityLow {
			return false
		}
		interval = 10
	}

	last, seen := sp.lastProcessed[entity]
	if seen && frame-last < interval {
		return false
	}
	sp.markProcessed(entity, frame)
	return true
}

func (sp *SpatialPriority) markProcessed(entity components.Handle, frame uint64) {
	if len(sp.lastProcessed) >= lastProcessedCap {
		sp.emergencyEvict()
	} else if len(sp.lastProcessed) >= aggressiveEvictAt {
		sp.evictOlderThan(frame, aggressiveEvictAge)
	}
	sp.lastProcessed[entity] = frame
}

// evictOlderThan drops entries not touched within maxAge frames.
func (sp *SpatialPriority) evictOlderThan(frame uint64, maxAge uint64) {
	for h, last := range sp.lastProcessed {
		if frame-last > maxAge {
			delete(sp.lastProcessed, h)
		}
	}
}

// emergencyEvict unconditionally drops a fraction of the map when the hard
// cap is hit.
func (sp *SpatialPriority) emergencyEvict() {
	drop := len(sp.lastProcessed) / emergencyEvictFraction
	for h := range sp.lastProcessed {
		if drop == 0 {
			break
		}
		delete(sp.lastProcessed, h)
		drop--
	}
}

// Forget removes an entity's tracking entry.
func (sp *SpatialPriority) Forget(entity components.Handle) {
	delete(sp.lastProcessed, entity)
}

// TrackedCount reports the live entry count.
func (sp *SpatialPriority) TrackedCount() int { return len(sp.lastProcessed) }
