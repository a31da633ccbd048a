package collision

import (
	"github.com/pthm-cable/forge/components"
)

const (
	// axisPreferenceEpsilon: overlaps closer than this prefer the Y axis,
	// avoiding corner ambiguity.
	axisPreferenceEpsilon float32 = 0.01

	// deepPenetration and fastSpeed gate the velocity-based normal
	// selection for bodies likely to have tunneled past the center line.
	deepPenetration float32 = 10
	fastSpeed       float32 = 250
)

// narrowphase computes exact overlap and MTV for every broadphase pair.
func (e *Engine) narrowphase() {
	e.infos = e.infos[:0]

	e.store.RLock()
	defer e.store.RUnlock()

	for _, p := range e.pairs {
		a := e.store.Hot(int(p.a))
		b := e.store.Hot(int(p.b))

		overlapX := minf(a.CachedAABB.MaxX, b.CachedAABB.MaxX) - maxf(a.CachedAABB.MinX, b.CachedAABB.MinX)
		if overlapX < 0 {
			continue
		}
		overlapY := minf(a.CachedAABB.MaxY, b.CachedAABB.MaxY) - maxf(a.CachedAABB.MinY, b.CachedAABB.MinY)
		if overlapY < 0 {
			continue
		}

		// Smaller overlap wins; Y preferred inside the epsilon band.
		var normal components.Vec2
		var penetration float32
		useY := overlapY < overlapX || absf(overlapX-overlapY) < axisPreferenceEpsilon

		aC := a.CachedAABB.Center()
		bC := b.CachedAABB.Center()
		relVel := a.Vel.Sub(b.Vel)

		if useY {
			penetration = overlapY
			normal.Y = axisSign(aC.Y, bC.Y, relVel.Y, penetration)
		} else {
			penetration = overlapX
			normal.X = axisSign(aC.X, bC.X, relVel.X, penetration)
		}

		e.infos = append(e.infos, Info{
			EntityA:     e.store.Handle(int(p.a)),
			EntityB:     e.store.Handle(int(p.b)),
			IndexA:      int(p.a),
			IndexB:      int(p.b),
			Normal:      normal,
			Penetration: penetration,
			IsTrigger:   a.IsTrigger || b.IsTrigger,
		})
	}
}

// axisSign picks the push direction for body a on one axis. Centers decide
// normally; deep penetrations on fast bodies trust the approach velocity
// instead, since the center may already be past the contact.
func axisSign(aCenter, bCenter, relVel, penetration float32) float32 {
	if penetration > deepPenetration && absf(relVel) > fastSpeed {
		if relVel > 0 {
			return -1
		}
		return 1
	}
	if aCenter <= bCenter {
		return -1
	}
	return 1
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
