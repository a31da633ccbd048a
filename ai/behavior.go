// Package ai implements the behavior scheduler: a behavior registry,
// per-entity assignment, and the per-tick batched execution of Active-tier
// entities through the worker pool.
package ai

import (
	"math/rand/v2"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/pathfind"
)

// Message is a behavior control message, e.g. "follow_close", "panic".
type Message string

// Context is the per-entity execution context for one tick. Behaviors read
// Pos and write Vel; the scheduler integrates the final position into the
// batch's kinematic buffer. All fields are snapshots: batches never touch
// live storage.
type Context struct {
	Handle components.Handle
	Index  int

	Pos components.Vec2 // read-only snapshot
	Vel components.Vec2 // behavior output

	DT float32

	PlayerPos components.Vec2
	HasPlayer bool

	Data *Data

	// Paths requests paths asynchronously; nil when no pathfinder is wired.
	Paths pathfind.Requester
}

// Data is the per-entity behavior state slice: timers, current path, modes.
// Behaviors own its interpretation; the scheduler owns its lifetime.
type Data struct {
	Timer     float32
	Mode      int
	Home      components.Vec2
	Target    components.Vec2
	LastGoal  components.Vec2
	Path      []components.Vec2
	PathIndex int
	PathWait  bool
	Rng       *rand.Rand
	Errored   bool
}

// ResetPath clears path-following state.
func (d *Data) ResetPath() {
	d.Path = d.Path[:0]
	d.PathIndex = 0
	d.PathWait = false
}

// Behavior is the polymorphic operation set every behavior variant
// implements. Configuration is immutable, so one instance is shared across
// all assigned entities; per-entity state lives in Data. Clone exists for
// callers that need a private instance.
type Behavior interface {
	Name() string
	Init(h components.Handle, d *Data)
	ExecuteLogic(ctx *Context)
	Clean(h components.Handle, d *Data)
	OnMessage(h components.Handle, d *Data, msg Message)
	Clone() Behavior
}

// waypointArrival is the squared distance at which a path waypoint counts
// as reached.
const waypointArrival float32 = 12 * 12

// followPath steers toward the next waypoint of the entity's current path.
// Returns false when no path remains.
func followPath(ctx *Context, speed float32) bool {
	d := ctx.Data
	for d.PathIndex < len(d.Path) {
		wp := d.Path[d.PathIndex]
		delta := wp.Sub(ctx.Pos)
		if delta.LenSq() < waypointArrival {
			d.PathIndex++
			continue
		}
		ctx.Vel = steerToward(ctx.Pos, wp, speed)
		return true
	}
	return false
}

// steerToward returns a velocity of the given speed pointing at the target.
func steerToward(from, to components.Vec2, speed float32) components.Vec2 {
	delta := to.Sub(from)
	sq := delta.LenSq()
	if sq < 1e-6 {
		return components.Vec2{}
	}
	inv := speed / sqrt32(sq)
	return delta.Scale(inv)
}

// requestPathOnce submits a path request unless one is already pending for
// roughly the same goal. The callback runs on a pool worker; it only stores
// the result into Data, which the next tick's batch consumes. Priority
// scales with behavior importance and proximity to the player.
func requestPathOnce(ctx *Context, goal components.Vec2, importance int) {
	d := ctx.Data
	if ctx.Paths == nil || d.PathWait {
		return
	}
	moved := goal.Sub(d.LastGoal)
	if len(d.Path) > 0 && moved.LenSq() < 32*32 {
		return
	}

	d.PathWait = true
	d.LastGoal = goal
	data := d
	_, ok := ctx.Paths.RequestPath(ctx.Handle, ctx.Pos, goal, priorityFor(ctx, importance),
		func(_ components.Handle, path []components.Vec2) {
			data.Path = append(data.Path[:0], path...)
			data.PathIndex = 0
			data.PathWait = false
		})
	if !ok {
		d.PathWait = false // ring full, retry next frame
	}
}

// priorityFor maps behavior importance and distance-to-player onto a
// request band.
func priorityFor(ctx *Context, importance int) pathfind.Priority {
	score := importance
	if ctx.HasPlayer {
		distSq := ctx.Pos.Sub(ctx.PlayerPos).LenSq()
		switch {
		case distSq < 500*500:
			score += 2
		case distSq < 1500*1500:
			score++
		}
	}
	switch {
	case score >= 4:
		return pathfind.PriorityCritical
	case score == 3:
		return pathfind.PriorityHigh
	case score == 2:
		return pathfind.PriorityNormal
	}
	return pathfind.PriorityLow
}
