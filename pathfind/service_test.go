package pathfind

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/pool"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	workers, err := pool.New(2, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(workers.Shutdown)

	opts := DefaultOptions()
	opts.RequestCapacity = 64
	return NewService(workers, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// collectPath registers a callback that records results thread-safely.
type collectPath struct {
	mu    sync.Mutex
	paths [][]components.Vec2
}

func (c *collectPath) cb(_ components.Handle, path []components.Vec2) {
	c.mu.Lock()
	c.paths = append(c.paths, path)
	c.mu.Unlock()
}

func (c *collectPath) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.paths)
}

func (c *collectPath) at(i int) []components.Vec2 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paths[i]
}

func TestCacheHitOnIdenticalRequest(t *testing.T) {
	s := newTestService(t)
	s.SetGrid(NewGrid(64, 64))

	var got collectPath
	start := components.Vec2{X: 50, Y: 50}
	goal := components.Vec2{X: 500, Y: 500}

	_, ok := s.RequestPath(1, start, goal, PriorityNormal, got.cb)
	require.True(t, ok)
	s.ProcessFrame(time.Now())

	require.Eventually(t, func() bool { return got.count() == 1 }, time.Second, time.Millisecond)
	require.NotEmpty(t, got.at(0))
	require.EqualValues(t, 0, s.CacheHits.Load())
	require.EqualValues(t, 1, s.CacheMisses.Load())

	// The identical request next frame is served from cache with the
	// identical point list.
	_, ok = s.RequestPath(2, start, goal, PriorityNormal, got.cb)
	require.True(t, ok)
	s.ProcessFrame(time.Now())

	require.Eventually(t, func() bool { return got.count() == 2 }, time.Second, time.Millisecond)
	require.EqualValues(t, 1, s.CacheHits.Load())
	require.EqualValues(t, 1, s.CacheMisses.Load())
	require.Equal(t, got.at(0), got.at(1))
}

func TestCacheExpires(t *testing.T) {
	workers, err := pool.New(1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(workers.Shutdown)

	opts := DefaultOptions()
	opts.CacheTTL = time.Millisecond
	s := NewService(workers, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.SetGrid(NewGrid(32, 32))

	var got collectPath
	s.RequestPath(1, components.Vec2{X: 20, Y: 20}, components.Vec2{X: 300, Y: 300}, PriorityNormal, got.cb)
	s.ProcessFrame(time.Now())
	require.Eventually(t, func() bool { return got.count() == 1 }, time.Second, time.Millisecond)

	s.RequestPath(1, components.Vec2{X: 20, Y: 20}, components.Vec2{X: 300, Y: 300}, PriorityNormal, got.cb)
	s.ProcessFrame(time.Now().Add(time.Second)) // well past the TTL
	require.Eventually(t, func() bool { return got.count() == 2 }, time.Second, time.Millisecond)
	require.EqualValues(t, 2, s.CacheMisses.Load())
}

func TestCancelledRequestDroppedSilently(t *testing.T) {
	s := newTestService(t)
	s.SetGrid(NewGrid(32, 32))

	var got collectPath
	id, ok := s.RequestPath(1, components.Vec2{X: 20, Y: 20}, components.Vec2{X: 300, Y: 300}, PriorityNormal, got.cb)
	require.True(t, ok)
	s.CancelRequest(id)
	s.ProcessFrame(time.Now())

	time.Sleep(20 * time.Millisecond)
	require.Zero(t, got.count())
	require.EqualValues(t, 0, s.Processed.Load())
}

func TestCancelByEntity(t *testing.T) {
	s := newTestService(t)
	s.SetGrid(NewGrid(32, 32))

	var got collectPath
	s.RequestPath(7, components.Vec2{X: 20, Y: 20}, components.Vec2{X: 300, Y: 300}, PriorityNormal, got.cb)
	s.RequestPath(7, components.Vec2{X: 20, Y: 20}, components.Vec2{X: 100, Y: 100}, PriorityHigh, got.cb)
	s.CancelEntity(7)
	s.ProcessFrame(time.Now())

	time.Sleep(20 * time.Millisecond)
	require.Zero(t, got.count())
}

func TestRequestsWaitForGrid(t *testing.T) {
	s := newTestService(t)
	require.False(t, s.GridReady())

	var got collectPath
	s.RequestPath(1, components.Vec2{X: 20, Y: 20}, components.Vec2{X: 300, Y: 300}, PriorityNormal, got.cb)
	s.ProcessFrame(time.Now())
	require.Zero(t, got.count(), "served without a grid")
	require.Equal(t, 1, s.QueueDepth())

	s.SetGrid(NewGrid(32, 32))
	require.True(t, s.GridReady())
	s.ProcessFrame(time.Now())
	require.Eventually(t, func() bool { return got.count() == 1 }, time.Second, time.Millisecond)
}

func TestPriorityOrderAndFairness(t *testing.T) {
	// Single worker so posted callbacks execute in submission order.
	workers, err := pool.New(1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(workers.Shutdown)
	s := NewService(workers, DefaultOptions(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.SetGrid(NewGrid(64, 64))

	var mu sync.Mutex
	var served []uint64
	mark := func(id uint64) Callback {
		return func(components.Handle, []components.Vec2) {
			mu.Lock()
			served = append(served, id)
			mu.Unlock()
		}
	}

	// Distinct goals defeat the cache; low-band request competes with
	// critical ones.
	s.RequestPath(1, components.Vec2{X: 20, Y: 20}, components.Vec2{X: 100, Y: 100}, PriorityLow, mark(1))
	s.RequestPath(2, components.Vec2{X: 20, Y: 20}, components.Vec2{X: 200, Y: 200}, PriorityCritical, mark(2))
	s.RequestPath(3, components.Vec2{X: 20, Y: 20}, components.Vec2{X: 300, Y: 300}, PriorityCritical, mark(3))
	s.RequestPath(4, components.Vec2{X: 20, Y: 20}, components.Vec2{X: 400, Y: 400}, PriorityCritical, mark(4))
	s.RequestPath(5, components.Vec2{X: 20, Y: 20}, components.Vec2{X: 500, Y: 500}, PriorityCritical, mark(5))

	s.ProcessFrame(time.Now())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(served) == 5
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	// Critical requests lead, but the fairness quota slots the Low
	// request in before the last critical one.
	require.Contains(t, served[:4], uint64(1), "low band starved: %v", served)
	require.Equal(t, uint64(2), served[0], "first served must be critical")
}

func TestOverflowReportsFailure(t *testing.T) {
	workers, err := pool.New(1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(workers.Shutdown)

	opts := DefaultOptions()
	opts.RequestCapacity = 4
	s := NewService(workers, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for i := 0; i < 4; i++ {
		_, ok := s.RequestPath(components.Handle(i+1), components.Vec2{}, components.Vec2{X: 100}, PriorityNormal, nil)
		require.True(t, ok)
	}
	_, ok := s.RequestPath(99, components.Vec2{}, components.Vec2{X: 100}, PriorityNormal, nil)
	require.False(t, ok)
	require.EqualValues(t, 1, s.Overflows.Load())
}
