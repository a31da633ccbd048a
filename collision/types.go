// Package collision implements the collision detection and resolution
// engine: deferred commands, tier-aware culling, hierarchical broadphase
// with a coarse-region static cache, AABB narrowphase and MTV resolution,
// and trigger enter/exit tracking.
package collision

import (
	"github.com/pthm-cable/forge/components"
)

// Info describes one detected collision. It is an immutable snapshot handed
// to callbacks.
type Info struct {
	EntityA     components.Handle
	EntityB     components.Handle
	IndexA      int
	IndexB      int
	Normal      components.Vec2 // push direction for A
	Penetration float32
	IsTrigger   bool
}

// Callback receives collision infos after resolution, in registration order.
type Callback func(Info)

// TriggerPhase distinguishes trigger enter and exit events.
type TriggerPhase uint8

const (
	TriggerEnter TriggerPhase = iota
	TriggerExit
)

// TriggerEvent is queued for the event bus when a player/trigger pair
// changes phase.
type TriggerEvent struct {
	Player    components.Handle
	Trigger   components.Handle
	Tag       components.TriggerTag
	PlayerPos components.Vec2
	Phase     TriggerPhase
}

// TriggerHandler receives trigger events; the game-state layer forwards
// them onto its event bus.
type TriggerHandler func(TriggerEvent)

// KinematicUpdate is one entry of the AI merge phase's batched write.
type KinematicUpdate struct {
	Index  int
	Pos    components.Vec2
	Vel    components.Vec2
	Active bool
}

// pair is a canonicalized broadphase candidate, a < b.
type pair struct {
	a, b int32
}

func makePair(a, b int32) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a, b}
}

// triggerKey identifies an active (player, trigger) contact.
type triggerKey struct {
	player  components.Handle
	trigger components.Handle
}
