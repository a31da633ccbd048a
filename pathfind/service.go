package pathfind

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/pool"
	"github.com/pthm-cable/forge/world"
)

// Requester is the submission surface behaviors and managers use.
type Requester interface {
	RequestPath(h components.Handle, start, goal components.Vec2, pri Priority, cb Callback) (uint64, bool)
	CancelEntity(h components.Handle)
}

// Options configures the service.
type Options struct {
	MaxPathsPerFrame int
	CacheTTL         time.Duration
	AllowDiagonal    bool
	MaxIterations    int
	RequestCapacity  int
}

// DefaultOptions mirror the shipped configuration defaults.
func DefaultOptions() Options {
	return Options{
		MaxPathsPerFrame: 5,
		CacheTTL:         5 * time.Second,
		AllowDiagonal:    true,
		MaxIterations:    20000,
		RequestCapacity:  1024,
	}
}

// cacheKey quantizes a (start, goal) pair to grid cells.
type cacheKey struct {
	sx, sy int32
	gx, gy int32
}

type cacheEntry struct {
	path    []components.Vec2
	expires time.Time
}

// lowBandFairness pulls one Low request per this many processed slots so
// the Low band is never starved.
const lowBandFairness = 4

// Service is the asynchronous pathfinding service. The producer side
// (RequestPath) is wait-free through the SPSC ring; ProcessFrame is the
// consumer pass, run once per frame as a worker-pool task.
type Service struct {
	opts    Options
	logger  *slog.Logger
	workers *pool.Pool

	ring   *Ring
	nextID atomic.Uint64

	grid    atomic.Pointer[Grid]
	planner *Planner
	overlay *SpatialPriority

	bands    [numPriorities][]Request
	skipped  []Request
	frame    uint64
	slots    int
	fairness int

	cancelMu          sync.Mutex
	cancelledIDs      map[uint64]struct{}
	cancelledEntities map[components.Handle]struct{}

	cacheMu sync.Mutex
	cache   map[cacheKey]cacheEntry

	running atomic.Bool

	// Metrics.
	CacheHits   atomic.Uint64
	CacheMisses atomic.Uint64
	Processed   atomic.Uint64
	Overflows   atomic.Uint64
}

// NewService creates a pathfinding service over the worker pool.
func NewService(workers *pool.Pool, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		opts:              opts,
		logger:            logger,
		workers:           workers,
		ring:              NewRing(opts.RequestCapacity),
		planner:           NewPlanner(opts.MaxIterations, opts.AllowDiagonal),
		overlay:           NewSpatialPriority(),
		cancelledIDs:      make(map[uint64]struct{}),
		cancelledEntities: make(map[components.Handle]struct{}),
		cache:             make(map[cacheKey]cacheEntry, 128),
	}
}

// RequestPath enqueues a request. Returns the request id and false when the
// ring is full; the caller retries next frame. Strictly single-producer.
func (s *Service) RequestPath(h components.Handle, start, goal components.Vec2, pri Priority, cb Callback) (uint64, bool) {
	id := s.nextID.Add(1)
	ok := s.ring.Enqueue(Request{
		Entity:    h,
		Start:     start,
		Goal:      goal,
		Priority:  pri,
		Callback:  cb,
		Timestamp: time.Now(),
		ID:        id,
	})
	if !ok {
		s.Overflows.Add(1)
		return id, false
	}
	return id, true
}

// CancelRequest drops a request by id. A late callback is suppressed.
func (s *Service) CancelRequest(id uint64) {
	s.cancelMu.Lock()
	s.cancelledIDs[id] = struct{}{}
	s.cancelMu.Unlock()
}

// CancelEntity drops all requests from one entity.
func (s *Service) CancelEntity(h components.Handle) {
	s.cancelMu.Lock()
	s.cancelledEntities[h] = struct{}{}
	s.cancelMu.Unlock()
	s.overlay.Forget(h)
}

func (s *Service) isCancelled(req *Request) bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if _, ok := s.cancelledIDs[req.ID]; ok {
		delete(s.cancelledIDs, req.ID)
		return true
	}
	_, ok := s.cancelledEntities[req.Entity]
	return ok
}

// GridReady reports whether a walkability grid is installed. Requests
// submitted before readiness stay queued.
func (s *Service) GridReady() bool { return s.grid.Load() != nil }

// SetPlayerPos feeds the spatial priority overlay.
func (s *Service) SetPlayerPos(pos components.Vec2) { s.overlay.SetPlayerPos(pos) }

// RebuildGridAsync rebuilds the walkability grid on a pool worker and swaps
// it in when done. The path cache flushes on swap; queued requests simply
// run against the new grid.
func (s *Service) RebuildGridAsync(tiles *world.Grid, staticBodies []components.AABB) *pool.Handle {
	return s.workers.Submit(pool.High, func() error {
		grid := BuildGrid(tiles, staticBodies)
		s.grid.Store(grid)
		s.flushCache()
		s.logger.Info("pathfinding grid rebuilt",
			"width", grid.width, "height", grid.height)
		return nil
	})
}

// SetGrid installs a grid synchronously (tests, initial load).
func (s *Service) SetGrid(g *Grid) {
	s.grid.Store(g)
	s.flushCache()
}

func (s *Service) flushCache() {
	s.cacheMu.Lock()
	clear(s.cache)
	s.cacheMu.Unlock()
}

// AddAvoidanceField installs a temporary weight field on the current grid.
func (s *Service) AddAvoidanceField(f WeightField) {
	if g := s.grid.Load(); g != nil {
		g.AddWeightField(f)
	}
}

// SubmitFrame schedules one consumer pass on the pool. Passes never
// overlap: if the previous pass is still running this frame is skipped.
func (s *Service) SubmitFrame() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.workers.Submit(pool.Normal, func() error {
		defer s.running.Store(false)
		s.ProcessFrame(time.Now())
		return nil
	})
}

// ProcessFrame drains the ring into the band queues and serves up to
// MaxPathsPerFrame requests: cache hit or A*, then callback posted to the
// pool. Single consumer.
func (s *Service) ProcessFrame(now time.Time) {
	s.frame++

	var req Request
	for s.ring.Dequeue(&req) {
		s.bands[req.Priority] = append(s.bands[req.Priority], req)
	}

	grid := s.grid.Load()
	if grid == nil {
		return // requests wait for the world to load
	}
	grid.PruneFields(now)

	s.skipped = s.skipped[:0]
	served := 0
	for served < s.opts.MaxPathsPerFrame {
		req, ok := s.nextRequest()
		if !ok {
			break
		}
		if s.isCancelled(&req) {
			continue // dropped silently, does not consume a slot
		}
		if !s.overlay.ShouldProcess(req.Entity, req.Start, req.Priority, s.frame) {
			s.skipped = append(s.skipped, req)
			continue
		}
		s.serve(grid, &req, now)
		served++
	}

	// Throttled requests return to their bands for a later frame.
	for _, r := range s.skipped {
		s.bands[r.Priority] = append(s.bands[r.Priority], r)
	}
}

// nextRequest pulls from the highest non-empty band, yielding one slot per
// fairness window to the Low band.
func (s *Service) nextRequest() (Request, bool) {
	s.fairness++
	if s.fairness%lowBandFairness == 0 && len(s.bands[PriorityLow]) > 0 {
		return s.popBand(PriorityLow), true
	}
	for pri := PriorityCritical; pri < numPriorities; pri++ {
		if len(s.bands[pri]) > 0 {
			return s.popBand(pri), true
		}
	}
	return Request{}, false
}

func (s *Service) popBand(pri Priority) Request {
	req := s.bands[pri][0]
	s.bands[pri] = s.bands[pri][1:]
	return req
}

func (s *Service) serve(grid *Grid, req *Request, now time.Time) {
	key := s.keyFor(grid, req)

	s.cacheMu.Lock()
	entry, hit := s.cache[key]
	if hit && now.Before(entry.expires) {
		s.cacheMu.Unlock()
		s.CacheHits.Add(1)
		s.postCallback(req, entry.path)
		s.Processed.Add(1)
		return
	}
	s.cacheMu.Unlock()

	s.CacheMisses.Add(1)
	path := s.planner.FindPath(grid, req.Start, req.Goal, now)

	s.cacheMu.Lock()
	s.cache[key] = cacheEntry{path: path, expires: now.Add(s.opts.CacheTTL)}
	s.cacheMu.Unlock()

	s.postCallback(req, path)
	s.Processed.Add(1)
}

func (s *Service) keyFor(grid *Grid, req *Request) cacheKey {
	sx, sy := grid.WorldToGrid(req.Start.X, req.Start.Y)
	gx, gy := grid.WorldToGrid(req.Goal.X, req.Goal.Y)
	return cacheKey{sx: int32(sx), sy: int32(sy), gx: int32(gx), gy: int32(gy)}
}

// postCallback delivers the result on a pool worker. A cancellation racing
// the delivery suppresses the callback.
func (s *Service) postCallback(req *Request, path []components.Vec2) {
	entity := req.Entity
	cb := req.Callback
	if cb == nil {
		return
	}
	r := *req
	s.workers.Submit(pool.Normal, func() error {
		if s.isCancelled(&r) {
			return nil
		}
		cb(entity, path)
		return nil
	})
}

// QueueDepth reports how many requests are waiting across ring and bands.
func (s *Service) QueueDepth() int {
	n := s.ring.Len()
	for i := range s.bands {
		n += len(s.bands[i])
	}
	return n
}

// PrepareForStateTransition drops queued work and cancellation state. The
// grid survives so the next state can path immediately.
func (s *Service) PrepareForStateTransition() {
	var req Request
	for s.ring.Dequeue(&req) {
	}
	for i := range s.bands {
		s.bands[i] = s.bands[i][:0]
	}
	s.cancelMu.Lock()
	clear(s.cancelledIDs)
	clear(s.cancelledEntities)
	s.cancelMu.Unlock()
	s.flushCache()
}
