package collision

import (
	"math"

	"github.com/pthm-cable/forge/components"
)

// slideImpulse is the tangential nudge applied to NPC-vs-NPC contacts so
// clumps shear apart instead of locking.
const slideImpulse float32 = 8

// resolve applies position correction and velocity damping for every
// non-trigger collision. Results accumulate in e.resolved keyed by index;
// the sync phase writes them back through the weak back-references.
func (e *Engine) resolve() {
	for k := range e.resolved {
		delete(e.resolved, k)
	}

	e.store.RLock()
	defer e.store.RUnlock()

	for _, info := range e.infos {
		if info.IsTrigger {
			continue
		}

		a := e.store.Hot(info.IndexA)
		b := e.store.Hot(info.IndexB)
		aStatic := a.Body == components.BodyStatic
		bStatic := b.Body == components.BodyStatic
		if aStatic && bStatic {
			continue
		}

		stateA := e.bodyState(info.IndexA)
		stateB := e.bodyState(info.IndexB)

		// Position correction: split the MTV when both can move,
		// otherwise the movable body absorbs it all.
		mtv := info.Normal.Scale(info.Penetration)
		switch {
		case !aStatic && !bStatic:
			stateA.pos = stateA.pos.Add(mtv.Scale(0.5))
			stateB.pos = stateB.pos.Sub(mtv.Scale(0.5))
		case !aStatic:
			stateA.pos = stateA.pos.Add(mtv)
		default:
			stateB.pos = stateB.pos.Sub(mtv)
		}

		// Velocity damping for dynamic bodies moving into the contact.
		bothDynamic := a.Body == components.BodyDynamic && b.Body == components.BodyDynamic
		if a.Body == components.BodyDynamic {
			into := info.Normal.Scale(-1) // direction from a toward the contact
			if closing := stateA.vel.Dot(into); closing > 0 {
				factor := float32(1)
				if bothDynamic {
					factor = 1 + e.store.Cold(info.IndexA).Restitution
				}
				stateA.vel = stateA.vel.Sub(into.Scale(closing * factor))
			}
		}
		if b.Body == components.BodyDynamic {
			into := info.Normal // direction from b toward the contact
			if closing := stateB.vel.Dot(into); closing > 0 {
				factor := float32(1)
				if bothDynamic {
					factor = 1 + e.store.Cold(info.IndexB).Restitution
				}
				stateB.vel = stateB.vel.Sub(into.Scale(closing * factor))
			}
		}

		// Tangential slide for NPC-vs-NPC, deterministically split by
		// handle order so both sides agree on direction.
		npcOnly := a.Layers&components.LayerPlayer == 0 && b.Layers&components.LayerPlayer == 0
		if npcOnly && !aStatic && !bStatic {
			tangent := components.Vec2{X: -info.Normal.Y, Y: info.Normal.X}
			if info.EntityA < info.EntityB {
				stateA.vel = stateA.vel.Add(tangent.Scale(slideImpulse))
				stateB.vel = stateB.vel.Sub(tangent.Scale(slideImpulse))
			} else {
				stateA.vel = stateA.vel.Sub(tangent.Scale(slideImpulse))
				stateB.vel = stateB.vel.Add(tangent.Scale(slideImpulse))
			}
		}

		stateA.vel = clampSpeed(stateA.vel, e.maxSpeed)
		stateB.vel = clampSpeed(stateB.vel, e.maxSpeed)

		if !aStatic {
			e.resolved[info.IndexA] = stateA
		}
		if !bStatic {
			e.resolved[info.IndexB] = stateB
		}
	}
}

// bodyState returns the working state for an index: the already-resolved
// state when earlier pairs touched the body, otherwise the current hot data.
func (e *Engine) bodyState(idx int) resolvedBody {
	if st, ok := e.resolved[idx]; ok {
		return st
	}
	hot := e.store.Hot(idx)
	return resolvedBody{pos: hot.Pos, vel: hot.Vel}
}

func clampSpeed(v components.Vec2, maxSpeed float32) components.Vec2 {
	if maxSpeed <= 0 {
		return v
	}
	sq := v.LenSq()
	if sq <= maxSpeed*maxSpeed {
		return v
	}
	scale := maxSpeed / float32(math.Sqrt(float64(sq)))
	return v.Scale(scale)
}

// dispatchCallbacks invokes registered callbacks for every collision info in
// registration order. A panicking callback is logged and suppressed for the
// frame.
func (e *Engine) dispatchCallbacks() {
	for _, info := range e.infos {
		for _, cb := range e.callbacks {
			e.safeCallback(cb, info)
		}
	}
}

func (e *Engine) safeCallback(cb Callback, info Info) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("collision callback panicked", "panic", r)
		}
	}()
	cb(info)
}

// syncEntities writes resolved positions and velocities back into hot data
// through the weak back-reference. Bodies untouched by any collision keep
// the positions the AI merge wrote.
func (e *Engine) syncEntities() {
	if len(e.resolved) == 0 {
		return
	}

	e.store.RLock()
	defer e.store.RUnlock()

	for idx, st := range e.resolved {
		if idx >= e.store.Len() {
			continue
		}
		owner := e.store.Cold(idx).Owner
		if i, ok := e.store.IndexLocked(owner); !ok || i != idx {
			continue // entity died mid-frame; promotion failed
		}
		hot := e.store.Hot(idx)
		hot.Pos = st.pos
		hot.Vel = st.vel
		hot.AABBDirty = true
	}
}
