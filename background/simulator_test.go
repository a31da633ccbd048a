package background

import (
	"io"
	"log/slog"
	"testing"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/entity"
	"github.com/pthm-cable/forge/pool"
)

func newSim(t *testing.T, opts Options) (*Simulator, *entity.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	workers, err := pool.New(2, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(workers.Shutdown)

	store := entity.NewStore(64)
	return New(store, workers, pool.NewBudget(2), opts, logger), store
}

func drifting(x float32) components.HotData {
	return components.HotData{
		Pos:      components.Vec2{X: x},
		Vel:      components.Vec2{X: 60},
		HalfSize: components.Vec2{X: 10, Y: 10},
		Body:     components.BodyKinematic,
		Active:   true,
	}
}

func TestBackgroundEntitiesAdvance(t *testing.T) {
	opts := DefaultOptions()
	opts.TierInterval = 1
	opts.UpdateDivisor = 1
	sim, store := newSim(t, opts)

	h := store.Create(drifting(3000), components.ColdData{}) // background band
	sim.Update(components.Vec2{}, 1.0/60)

	idx, _ := store.Index(h)
	store.RLock()
	defer store.RUnlock()
	if store.Hot(idx).Pos.X <= 3000 {
		t.Fatalf("background entity did not advance: %g", store.Hot(idx).Pos.X)
	}
}

func TestActiveAndHibernatedUntouched(t *testing.T) {
	opts := DefaultOptions()
	opts.TierInterval = 1
	opts.UpdateDivisor = 1
	sim, store := newSim(t, opts)

	active := store.Create(drifting(100), components.ColdData{})
	hibernated := store.Create(drifting(50000), components.ColdData{})

	sim.Update(components.Vec2{}, 1.0/60)

	store.RLock()
	defer store.RUnlock()
	ai, _ := store.IndexLocked(active)
	hi, _ := store.IndexLocked(hibernated)
	if store.Hot(ai).Pos.X != 100 {
		t.Fatalf("active entity moved by background sim: %g", store.Hot(ai).Pos.X)
	}
	if store.Hot(hi).Pos.X != 50000 {
		t.Fatalf("hibernated entity moved: %g", store.Hot(hi).Pos.X)
	}
}

func TestReducedCadence(t *testing.T) {
	opts := DefaultOptions()
	opts.TierInterval = 1
	opts.UpdateDivisor = 4
	sim, store := newSim(t, opts)

	h := store.Create(drifting(3000), components.ColdData{})

	// Frames 1-3 skip integration; frame 4 runs it with scaled dt.
	for i := 0; i < 3; i++ {
		sim.Update(components.Vec2{}, 1.0/60)
	}
	idx, _ := store.Index(h)
	store.RLock()
	x := store.Hot(idx).Pos.X
	store.RUnlock()
	if x != 3000 {
		t.Fatalf("moved on a skipped frame: %g", x)
	}

	sim.Update(components.Vec2{}, 1.0/60)
	store.RLock()
	x = store.Hot(idx).Pos.X
	store.RUnlock()
	scaled := float32(1.0/60.0) * 4
	want := 3000 + 60*scaled
	if x != want {
		t.Fatalf("x = %g, want %g (scaled dt)", x, want)
	}
}

func TestThreadedPathAboveThreshold(t *testing.T) {
	opts := DefaultOptions()
	opts.TierInterval = 1
	opts.UpdateDivisor = 1
	opts.MinForThreading = 10
	sim, store := newSim(t, opts)

	handles := make([]components.Handle, 50)
	for i := range handles {
		handles[i] = store.Create(drifting(3000+float32(i)*20), components.ColdData{})
	}

	sim.Update(components.Vec2{}, 1.0/60)

	store.RLock()
	defer store.RUnlock()
	for _, h := range handles {
		idx, _ := store.IndexLocked(h)
		if store.Hot(idx).Pos.X <= 3000 {
			t.Fatalf("entity at index %d did not advance under threading", idx)
		}
	}
}

func TestInvalidateForcesRetier(t *testing.T) {
	opts := DefaultOptions()
	opts.TierInterval = 1000 // cadence alone would not sweep
	opts.UpdateDivisor = 1
	sim, store := newSim(t, opts)

	store.Create(drifting(3000), components.ColdData{})
	sim.Invalidate()
	sim.Update(components.Vec2{}, 1.0/60)

	if sim.LastCounts.Background != 1 {
		t.Fatalf("tier counts = %+v, want one background entity", sim.LastCounts)
	}
}
