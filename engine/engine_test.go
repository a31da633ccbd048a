package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/config"
	"github.com/pthm-cable/forge/world"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Derived.ThreadCount = 2
	cfg.Telemetry.LogInterval = 0

	eng, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(eng.Shutdown)
	return eng
}

func testWorld() *world.Grid {
	g := world.NewGrid(64, 64, world.DefaultTileSize)
	for x := 10; x < 14; x++ {
		for y := 10; y < 12; y++ {
			g.Set(x, y, world.TileBuilding)
		}
	}
	g.Set(30, 30, world.TileWater)
	return g
}

func TestEngineFrameLoop(t *testing.T) {
	eng := newTestEngine(t)
	eng.LoadWorld("test", testWorld())

	player := eng.Collision().CreatePlayer(components.Vec2{X: 500, Y: 500}, components.Vec2{X: 16, Y: 16})
	eng.SetPlayerHandle(player)

	for i := 0; i < 30; i++ {
		npc := eng.Collision().CreateNPC(components.Vec2{X: float32(300 + i*20), Y: 400}, components.Vec2{X: 12, Y: 12})
		eng.AI().RegisterEntity(npc, "wander")
	}

	const dt = float32(1.0 / 60.0)
	for f := 0; f < 30; f++ {
		eng.Update(dt)
	}

	// 31 bodies plus the water trigger and the merged building block.
	require.GreaterOrEqual(t, eng.Store().Len(), 33)
	require.EqualValues(t, 30, eng.Frame())
}

func TestRenderSnapshotInterpolates(t *testing.T) {
	eng := newTestEngine(t)

	player := eng.Collision().CreatePlayer(components.Vec2{X: 100, Y: 100}, components.Vec2{X: 16, Y: 16})
	eng.SetPlayerHandle(player)
	eng.Update(1.0 / 60)

	items := eng.RenderSnapshot(1.0, nil)
	require.NotEmpty(t, items)

	found := false
	for _, it := range items {
		if it.Handle == player {
			found = true
			require.Equal(t, float32(100), it.Pos.X)
		}
	}
	require.True(t, found, "player missing from snapshot")
}

func TestWorldLoadBuildsStatics(t *testing.T) {
	eng := newTestEngine(t)
	eng.LoadWorld("w1", testWorld())
	eng.Update(1.0 / 60)

	// One merged building rectangle plus one water trigger.
	require.Equal(t, 2, eng.Store().Len())

	// The pathfinding grid lands asynchronously.
	require.Eventually(t, func() bool { return eng.Pathfinder().GridReady() },
		time.Second, time.Millisecond)
}

func TestTileChangeInvalidatesIncrementally(t *testing.T) {
	eng := newTestEngine(t)
	eng.LoadWorld("w1", testWorld())
	eng.Update(1.0 / 60)

	eng.ApplyTileChange(40, 40, world.TileBuilding)
	eng.Update(1.0 / 60) // rebuild happens inside the frame, no panic
}

func TestPrepareForStateTransitionLeavesEngineUsable(t *testing.T) {
	eng := newTestEngine(t)
	eng.LoadWorld("w1", testWorld())

	npc := eng.Collision().CreateNPC(components.Vec2{X: 200, Y: 200}, components.Vec2{X: 12, Y: 12})
	eng.AI().RegisterEntity(npc, "chase")
	eng.Update(1.0 / 60)

	eng.PrepareForStateTransition()
	require.Zero(t, eng.AI().AssignedCount())

	eng.AI().RegisterEntity(npc, "idle")
	eng.Update(1.0 / 60)
	require.Equal(t, 1, eng.AI().AssignedCount())
}

func TestSubsystemsListMatchesPhases(t *testing.T) {
	ids := map[string]bool{}
	for _, s := range Subsystems() {
		ids[s.ID] = true
	}
	for _, want := range []string{"commands", "ai", "collision", "background", "pathfinding"} {
		require.True(t, ids[want], "missing subsystem %s", want)
	}
}
