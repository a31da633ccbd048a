package entity

import (
	"github.com/pthm-cable/forge/components"
)

// CoarseCellSize is the coarse grid cell size in pixels. Coarse cells key
// the static-region cache.
const CoarseCellSize float32 = 128

// CoarseCell returns the coarse cell coordinates for a world position.
func CoarseCell(p components.Vec2) (int16, int16) {
	return int16(floorDiv(p.X, CoarseCellSize)), int16(floorDiv(p.Y, CoarseCellSize))
}

func floorDiv(v, cell float32) int32 {
	q := v / cell
	i := int32(q)
	if q < 0 && float32(i) != q {
		i--
	}
	return i
}

// TierCounts reports how many entities ended up in each tier after a sweep.
type TierCounts struct {
	Active     int
	Background int
	Hibernated int
	Changed    int
}

// UpdateSimulationTiers reclassifies every entity by distance from the
// reference point. Strictly-less admits a tier, so an entity exactly on the
// active radius lands in Background and one exactly on the background
// radius hibernates.
func (s *Store) UpdateSimulationTiers(ref components.Vec2, activeRadius, backgroundRadius float32) TierCounts {
	s.mu.Lock()
	defer s.mu.Unlock()

	activeSq := activeRadius * activeRadius
	bgSq := backgroundRadius * backgroundRadius

	var counts TierCounts
	for i := range s.hot {
		d := s.hot[i].Pos.Sub(ref)
		distSq := d.LenSq()

		var tier components.Tier
		switch {
		case distSq < activeSq:
			tier = components.TierActive
		case distSq < bgSq:
			tier = components.TierBackground
		default:
			tier = components.TierHibernated
		}

		if s.tiers[i] != tier {
			s.tiers[i] = tier
			counts.Changed++
		}
		switch tier {
		case components.TierActive:
			counts.Active++
		case components.TierBackground:
			counts.Background++
		default:
			counts.Hibernated++
		}
	}
	return counts
}

// CollectTier appends the dense indices currently in the given tier to dst
// and returns it. Caller holds the shared lock while using the result.
func (s *Store) CollectTier(dst []int, tier components.Tier) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.tiers {
		if s.tiers[i] == tier && s.hot[i].Active {
			dst = append(dst, i)
		}
	}
	return dst
}
