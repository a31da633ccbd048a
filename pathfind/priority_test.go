package pathfind

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/forge/components"
)

func TestZoneClassification(t *testing.T) {
	sp := NewSpatialPriority()

	// Without a player everything processes at full rate.
	require.Equal(t, ZoneNear, sp.ZoneFor(components.Vec2{X: 99999}))

	sp.SetPlayerPos(components.Vec2{})
	tests := []struct {
		x    float32
		want Zone
	}{
		{100, ZoneNear},
		{511, ZoneNear},
		{1000, ZoneMedium},
		{2000, ZoneFar},
		{5000, ZoneCulled},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, sp.ZoneFor(components.Vec2{X: tt.x}), "x=%g", tt.x)
	}
}

func TestNearZoneEveryFrame(t *testing.T) {
	sp := NewSpatialPriority()
	sp.SetPlayerPos(components.Vec2{})

	pos := components.Vec2{X: 100}
	for frame := uint64(1); frame <= 5; frame++ {
		require.True(t, sp.ShouldProcess(1, pos, PriorityNormal, frame), "frame %d", frame)
	}
}

func TestMediumZoneThrottled(t *testing.T) {
	sp := NewSpatialPriority()
	sp.SetPlayerPos(components.Vec2{})

	pos := components.Vec2{X: 1000}
	require.True(t, sp.ShouldProcess(1, pos, PriorityNormal, 10))
	// The immediately following frame is inside the 2-3 frame interval.
	require.False(t, sp.ShouldProcess(1, pos, PriorityNormal, 11))
	require.True(t, sp.ShouldProcess(1, pos, PriorityNormal, 14))
}

func TestCulledZoneLowOnly(t *testing.T) {
	sp := NewSpatialPriority()
	sp.SetPlayerPos(components.Vec2{})

	pos := components.Vec2{X: 9000}
	require.False(t, sp.ShouldProcess(1, pos, PriorityCritical, 1))
	require.False(t, sp.ShouldProcess(1, pos, PriorityNormal, 1))
	require.True(t, sp.ShouldProcess(1, pos, PriorityLow, 1))
}

func TestLastProcessedEviction(t *testing.T) {
	sp := NewSpatialPriority()
	sp.SetPlayerPos(components.Vec2{})

	// Fill beyond the aggressive threshold with old entries; the next
	// mark evicts the stale ones.
	for i := 0; i < aggressiveEvictAt; i++ {
		sp.lastProcessed[components.Handle(i+1)] = 1
	}
	sp.markProcessed(components.Handle(900000), 10000)
	require.Less(t, sp.TrackedCount(), aggressiveEvictAt, "aggressive eviction did not run")

	// At the hard cap the emergency eviction unconditionally sheds load.
	sp2 := NewSpatialPriority()
	for i := 0; i < lastProcessedCap; i++ {
		sp2.lastProcessed[components.Handle(i+1)] = 9999
	}
	sp2.markProcessed(components.Handle(900000), 10000)
	require.Less(t, sp2.TrackedCount(), lastProcessedCap)
}

func TestForget(t *testing.T) {
	sp := NewSpatialPriority()
	sp.SetPlayerPos(components.Vec2{})
	sp.ShouldProcess(5, components.Vec2{X: 10}, PriorityNormal, 1)
	require.Equal(t, 1, sp.TrackedCount())
	sp.Forget(5)
	require.Zero(t, sp.TrackedCount())
}
