package collision

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/entity"
)

func newTestEngine() (*Engine, *entity.Store) {
	store := entity.NewStore(32)
	eng := New(store, DefaultOptions(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return eng, store
}

func dynBody(x, y, hx, hy float32, layers, collidesWith uint32) components.HotData {
	return components.HotData{
		Pos:          components.Vec2{X: x, Y: y},
		HalfSize:     components.Vec2{X: hx, Y: hy},
		Layers:       layers,
		CollidesWith: collidesWith,
		Body:         components.BodyDynamic,
		Active:       true,
	}
}

func TestBasicBroadphase(t *testing.T) {
	eng, _ := newTestEngine()

	eng.CreateBody(dynBody(0, 0, 10, 10, 1, 1), components.ColdData{})
	eng.CreateBody(dynBody(5, 0, 10, 10, 1, 1), components.ColdData{})

	infos := eng.Update(time.Now())
	if len(infos) != 1 {
		t.Fatalf("got %d collisions, want 1", len(infos))
	}
	info := infos[0]
	if info.Normal.X != -1 || info.Normal.Y != 0 {
		t.Fatalf("normal = %+v, want (-1,0)", info.Normal)
	}
	if info.Penetration != 15 {
		t.Fatalf("penetration = %g, want 15", info.Penetration)
	}
	if info.IsTrigger {
		t.Fatal("solid pair flagged as trigger")
	}
}

func TestLayerMaskFilter(t *testing.T) {
	eng, _ := newTestEngine()

	eng.CreateBody(dynBody(0, 0, 10, 10, 1, 1), components.ColdData{})
	// Same overlap but on a non-colliding layer.
	eng.CreateBody(dynBody(5, 0, 10, 10, 2, 0), components.ColdData{})

	called := false
	eng.RegisterCallback(func(Info) { called = true })

	infos := eng.Update(time.Now())
	if len(infos) != 0 {
		t.Fatalf("got %d collisions, want 0", len(infos))
	}
	if called {
		t.Fatal("callback fired for filtered pair")
	}
}

func TestMTVPrefersYOnTie(t *testing.T) {
	eng, _ := newTestEngine()

	eng.CreateBody(dynBody(100, 100, 10, 10, 1, 1), components.ColdData{})
	eng.CreateBody(dynBody(100, 100, 10, 10, 1, 1), components.ColdData{})

	infos := eng.Update(time.Now())
	if len(infos) != 1 {
		t.Fatalf("got %d collisions, want 1", len(infos))
	}
	if infos[0].Normal.X != 0 || infos[0].Normal.Y == 0 {
		t.Fatalf("tie should resolve on Y axis, normal = %+v", infos[0].Normal)
	}
}

func TestResolveSeparatesBodies(t *testing.T) {
	eng, store := newTestEngine()

	a := eng.CreateBody(dynBody(0, 0, 10, 10, 1, 1), components.ColdData{})
	b := eng.CreateBody(dynBody(5, 0, 10, 10, 1, 1), components.ColdData{})

	eng.Update(time.Now())
	// Resolution lands in the sync phase of the same frame; check overlap
	// on the next frame's refreshed AABBs.
	eng.Update(time.Now())

	ai, _ := store.Index(a)
	bi, _ := store.Index(b)
	store.RLock()
	defer store.RUnlock()
	aBox := store.Hot(ai).CachedAABB
	bBox := store.Hot(bi).CachedAABB

	overlapX := aBox.MaxX - bBox.MinX
	if bBox.MaxX-aBox.MinX < overlapX {
		overlapX = bBox.MaxX - aBox.MinX
	}
	const epsilon = 0.5
	if overlapX > epsilon && aBox.MaxY-bBox.MinY > epsilon && bBox.MaxY-aBox.MinY > epsilon {
		t.Fatalf("bodies still overlap after resolve: %+v vs %+v", aBox, bBox)
	}
}

func TestTriggerEnterExit(t *testing.T) {
	eng, _ := newTestEngine()

	player := eng.CreatePlayer(components.Vec2{X: 0, Y: 0}, components.Vec2{X: 16, Y: 16})
	trigger := eng.CreateTrigger(components.Vec2{X: 100, Y: 100}, components.Vec2{X: 50, Y: 50}, components.TriggerWater)
	eng.SetPlayer(player)

	var events []TriggerEvent
	eng.SetTriggerHandler(func(ev TriggerEvent) { events = append(events, ev) })

	eng.Update(time.Now()) // apart: nothing
	if len(events) != 0 {
		t.Fatalf("premature events: %+v", events)
	}

	eng.Modify(player, func(h *components.HotData, _ *components.ColdData) {
		h.Pos = components.Vec2{X: 100, Y: 100}
	})
	eng.Update(time.Now())

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 enter", len(events))
	}
	ev := events[0]
	if ev.Phase != TriggerEnter || ev.Tag != components.TriggerWater {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Player != player || ev.Trigger != trigger {
		t.Fatalf("event handles = %+v", ev)
	}

	eng.Modify(player, func(h *components.HotData, _ *components.ColdData) {
		h.Pos = components.Vec2{X: 1000, Y: 1000}
	})
	eng.Update(time.Now())

	if len(events) != 2 {
		t.Fatalf("got %d events, want enter+exit", len(events))
	}
	if events[1].Phase != TriggerExit {
		t.Fatalf("second event = %+v", events[1])
	}
}

func TestBroadphaseIdempotent(t *testing.T) {
	// Two engines over identical state produce the same pair multiset.
	runPairs := func() []Info {
		eng, _ := newTestEngine()
		eng.CreateBody(dynBody(0, 0, 10, 10, 1, 1), components.ColdData{})
		eng.CreateBody(dynBody(5, 0, 10, 10, 1, 1), components.ColdData{})
		eng.CreateBody(dynBody(200, 200, 10, 10, 1, 1), components.ColdData{})
		eng.ProcessCommands()
		infos := eng.Step(time.Now())
		out := make([]Info, len(infos))
		copy(out, infos)
		return out
	}

	first := runPairs()
	second := runPairs()
	if len(first) != len(second) {
		t.Fatalf("pair counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].IndexA != second[i].IndexA || first[i].IndexB != second[i].IndexB {
			t.Fatalf("pair %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestNarrowphaseEmptyInput(t *testing.T) {
	eng, _ := newTestEngine()
	infos := eng.Update(time.Now())
	if len(infos) != 0 {
		t.Fatalf("empty world produced %d collisions", len(infos))
	}
}

func TestStaticRebuildIdempotent(t *testing.T) {
	eng, _ := newTestEngine()
	eng.CreateStaticBody(components.Vec2{X: 100, Y: 100}, components.Vec2{X: 50, Y: 50})
	eng.ProcessCommands()

	eng.RebuildStatic()
	eng.RebuildStatic()

	// A movable near the static body collides identically after either
	// rebuild.
	eng.CreateBody(dynBody(100, 40, 10, 10, 1, components.LayerStatic), components.ColdData{})
	infos := eng.Update(time.Now())
	if len(infos) != 1 {
		t.Fatalf("got %d collisions against static, want 1", len(infos))
	}
}

func TestKinematicMergeRespectsBodyType(t *testing.T) {
	eng, store := newTestEngine()

	kin := store.Create(components.HotData{
		Pos: components.Vec2{X: 10, Y: 10}, HalfSize: components.Vec2{X: 5, Y: 5},
		Body: components.BodyKinematic, Active: true,
	}, components.ColdData{})
	dyn := store.Create(components.HotData{
		Pos: components.Vec2{X: 50, Y: 50}, HalfSize: components.Vec2{X: 5, Y: 5},
		Body: components.BodyDynamic, Active: true,
	}, components.ColdData{})

	ki, _ := store.Index(kin)
	di, _ := store.Index(dyn)

	eng.ApplyBatchedKinematicUpdates([][]KinematicUpdate{{
		{Index: ki, Pos: components.Vec2{X: 99, Y: 99}, Vel: components.Vec2{X: 1}, Active: true},
		{Index: di, Pos: components.Vec2{X: 99, Y: 99}, Vel: components.Vec2{X: 1}, Active: true},
	}})

	store.RLock()
	defer store.RUnlock()
	if store.Hot(ki).Pos.X != 99 {
		t.Fatal("kinematic update not applied")
	}
	if store.Hot(di).Pos.X == 99 {
		t.Fatal("dynamic body accepted a kinematic update")
	}
}

func TestDestroyedEntityCommandIsNoOp(t *testing.T) {
	eng, store := newTestEngine()

	h := eng.CreateBody(dynBody(0, 0, 10, 10, 1, 1), components.ColdData{})
	eng.ProcessCommands()
	eng.Destroy(h)
	eng.Destroy(h) // duplicate destroy
	eng.Modify(h, func(hot *components.HotData, _ *components.ColdData) {
		hot.Pos.X = 12345
	})
	eng.Update(time.Now())

	if store.Len() != 0 {
		t.Fatalf("store len = %d after destroy", store.Len())
	}
}

func TestVelocityDampingOnStaticContact(t *testing.T) {
	eng, store := newTestEngine()

	eng.CreateStaticBody(components.Vec2{X: 100, Y: 0}, components.Vec2{X: 10, Y: 100})
	body := eng.CreateBody(components.HotData{
		Pos: components.Vec2{X: 85, Y: 0}, HalfSize: components.Vec2{X: 10, Y: 10},
		Vel:    components.Vec2{X: 120, Y: 0},
		Layers: components.LayerNPC, CollidesWith: components.LayerStatic,
		Body: components.BodyDynamic, Active: true,
	}, components.ColdData{})

	eng.Update(time.Now())

	idx, _ := store.Index(body)
	store.RLock()
	defer store.RUnlock()
	if vx := store.Hot(idx).Vel.X; vx > 0 {
		t.Fatalf("velocity into static wall survived: %g", vx)
	}
}
