package ai

import (
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/pthm-cable/forge/collision"
	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/entity"
	"github.com/pthm-cable/forge/pathfind"
	"github.com/pthm-cable/forge/pool"
)

// cmdKind discriminates queued scheduler commands. Assignments, removals
// and non-immediate messages apply at the next frame boundary so no
// mid-tick assignment races exist.
type cmdKind uint8

const (
	cmdAssign cmdKind = iota
	cmdUnassign
	cmdMessage
	cmdBroadcast
)

type schedCommand struct {
	kind   cmdKind
	handle components.Handle
	name   string
	msg    Message
}

// entityRec is one assigned entity's behavior binding and state.
type entityRec struct {
	behavior Behavior
	data     *Data
}

// workItem is the read-only snapshot a batch executes against.
type workItem struct {
	handle   components.Handle
	index    int
	pos      components.Vec2
	vel      components.Vec2
	behavior Behavior
	data     *Data
}

// pathResult defers a pathfinder callback onto the scheduler thread so
// behavior data is only ever touched between batches.
type pathResult struct {
	cb   pathfind.Callback
	h    components.Handle
	path []components.Vec2
}

// pendingRequest is a path request captured during batch execution, flushed
// to the single-producer ring after the join.
type pendingRequest struct {
	h     components.Handle
	start components.Vec2
	goal  components.Vec2
	pri   pathfind.Priority
	cb    pathfind.Callback
}

// Scheduler runs assigned behaviors on Active-tier entities each tick.
type Scheduler struct {
	store   *entity.Store
	coll    *collision.Engine
	workers *pool.Pool
	budget  *pool.Budget
	paths   pathfind.Requester
	logger  *slog.Logger
	seed    uint64

	behaviors map[string]Behavior
	assigned  map[components.Handle]*entityRec
	player    components.Handle

	cmdMu sync.Mutex
	cmds  []schedCommand

	resMu   sync.Mutex
	results []pathResult

	reqMu       sync.Mutex
	pendingReqs []pendingRequest

	working []workItem
	buffers [][]collision.KinematicUpdate

	// LastObserved and LastThreaded expose the previous tick's timing for
	// perf reporting.
	LastObserved time.Duration
	LastThreaded bool
	LastCount    int
}

// NewScheduler wires the scheduler to its collaborators. paths may be nil.
func NewScheduler(store *entity.Store, coll *collision.Engine, workers *pool.Pool, budget *pool.Budget, paths pathfind.Requester, seed uint64, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:     store,
		coll:      coll,
		workers:   workers,
		budget:    budget,
		paths:     paths,
		logger:    logger,
		seed:      seed,
		behaviors: make(map[string]Behavior),
		assigned:  make(map[components.Handle]*entityRec),
	}
}

// RegisterBehavior installs a prototype under a name.
func (s *Scheduler) RegisterBehavior(name string, proto Behavior) {
	s.behaviors[name] = proto
}

// RegisterEntity queues a behavior assignment for the next frame boundary.
func (s *Scheduler) RegisterEntity(h components.Handle, behaviorName string) {
	s.queue(schedCommand{kind: cmdAssign, handle: h, name: behaviorName})
}

// UnregisterEntity queues removal of an entity's behavior.
func (s *Scheduler) UnregisterEntity(h components.Handle) {
	s.queue(schedCommand{kind: cmdUnassign, handle: h})
}

// SendMessage delivers a message to one entity's behavior. Immediate
// messages dispatch now; otherwise at the next frame boundary.
func (s *Scheduler) SendMessage(h components.Handle, msg Message, immediate bool) {
	if immediate {
		if rec, ok := s.assigned[h]; ok {
			rec.behavior.OnMessage(h, rec.data, msg)
		}
		return
	}
	s.queue(schedCommand{kind: cmdMessage, handle: h, msg: msg})
}

// BroadcastMessage delivers a message to every assigned entity.
func (s *Scheduler) BroadcastMessage(msg Message, immediate bool) {
	if immediate {
		for h, rec := range s.assigned {
			rec.behavior.OnMessage(h, rec.data, msg)
		}
		return
	}
	s.queue(schedCommand{kind: cmdBroadcast, msg: msg})
}

// SetPlayerHandle sets the reference entity behaviors target.
func (s *Scheduler) SetPlayerHandle(h components.Handle) { s.player = h }

// AssignedCount returns the number of entities with behaviors.
func (s *Scheduler) AssignedCount() int { return len(s.assigned) }

// HasBehavior reports whether the entity currently has a behavior bound.
func (s *Scheduler) HasBehavior(h components.Handle) bool {
	_, ok := s.assigned[h]
	return ok
}

func (s *Scheduler) queue(c schedCommand) {
	s.cmdMu.Lock()
	s.cmds = append(s.cmds, c)
	s.cmdMu.Unlock()
}

// RequestPath collects a path request for submission after the batch join.
// The ring buffer is strictly single-producer, so batches never touch it
// directly: requests buffer here and flush from the scheduler thread, and
// callbacks reroute through the result queue so behavior data is only
// written between batches. Scheduler satisfies pathfind.Requester so
// behaviors use it directly as their Context.Paths.
func (s *Scheduler) RequestPath(h components.Handle, start, goal components.Vec2, pri pathfind.Priority, cb pathfind.Callback) (uint64, bool) {
	if s.paths == nil {
		return 0, false
	}
	s.reqMu.Lock()
	s.pendingReqs = append(s.pendingReqs, pendingRequest{h: h, start: start, goal: goal, pri: pri, cb: cb})
	s.reqMu.Unlock()
	return 0, true
}

// flushPathRequests submits buffered requests from the scheduler thread. A
// full ring delivers an empty path so the behavior falls back and retries.
func (s *Scheduler) flushPathRequests() {
	s.reqMu.Lock()
	reqs := s.pendingReqs
	s.pendingReqs = nil
	s.reqMu.Unlock()

	for _, r := range reqs {
		r := r
		_, ok := s.paths.RequestPath(r.h, r.start, r.goal, r.pri, func(rh components.Handle, path []components.Vec2) {
			s.resMu.Lock()
			s.results = append(s.results, pathResult{cb: r.cb, h: rh, path: path})
			s.resMu.Unlock()
		})
		if !ok {
			s.resMu.Lock()
			s.results = append(s.results, pathResult{cb: r.cb, h: r.h, path: nil})
			s.resMu.Unlock()
		}
	}
}

// CancelEntity forwards path cancellation.
func (s *Scheduler) CancelEntity(h components.Handle) {
	if s.paths != nil {
		s.paths.CancelEntity(h)
	}
}

// Update is the per-tick entry point.
func (s *Scheduler) Update(dt float32) {
	start := time.Now()

	s.drainResults()
	s.drainCommands()
	s.collectWork()

	n := len(s.working)
	s.LastCount = n
	if n == 0 {
		s.LastObserved = time.Since(start)
		return
	}

	playerPos, hasPlayer := s.playerSnapshot()

	threaded, _ := s.budget.ShouldUseThreading(pool.SystemAI, n)
	s.LastThreaded = threaded

	if !threaded {
		s.buffers = resizeBuffers(s.buffers, 1)
		s.runRange(0, n, dt, playerPos, hasPlayer, &s.buffers[0])
	} else {
		workers := s.budget.AllocatedWorkers(pool.SystemAI)
		batchCount, batchSize := s.budget.BatchStrategy(pool.SystemAI, n, workers)
		s.buffers = resizeBuffers(s.buffers, batchCount)

		handle := s.workers.SubmitBatch(pool.High, batchCount, func(b int) error {
			lo := b * batchSize
			hi := lo + batchSize
			if hi > n {
				hi = n
			}
			if lo >= hi {
				return nil
			}
			s.runRange(lo, hi, dt, playerPos, hasPlayer, &s.buffers[b])
			return nil
		})
		if err := handle.Wait(); err != nil {
			s.logger.Warn("behavior batch failed", "err", err)
		}
	}

	// Single shared-lock merge regardless of batch count.
	s.coll.ApplyBatchedKinematicUpdates(s.buffers)
	if s.paths != nil {
		s.flushPathRequests()
	}

	observed := time.Since(start)
	s.LastObserved = observed
	if threaded {
		s.budget.ReportBatchTime(pool.SystemAI, observed)
	} else {
		s.budget.ReportSingleThreadedTime(pool.SystemAI, n, observed)
	}
}

// drainResults delivers completed path requests to their behaviors.
func (s *Scheduler) drainResults() {
	s.resMu.Lock()
	results := s.results
	s.results = nil
	s.resMu.Unlock()
	for _, r := range results {
		if _, ok := s.assigned[r.h]; !ok {
			continue // behavior unassigned while the request was in flight
		}
		r.cb(r.h, r.path)
	}
}

func (s *Scheduler) drainCommands() {
	s.cmdMu.Lock()
	cmds := s.cmds
	s.cmds = nil
	s.cmdMu.Unlock()

	for _, c := range cmds {
		switch c.kind {
		case cmdAssign:
			proto, ok := s.behaviors[c.name]
			if !ok {
				s.logger.Warn("unknown behavior", "name", c.name)
				continue
			}
			if old, ok := s.assigned[c.handle]; ok {
				old.behavior.Clean(c.handle, old.data)
			}
			data := &Data{Rng: rand.New(rand.NewPCG(s.seed, uint64(c.handle)))}
			proto.Init(c.handle, data)
			s.assigned[c.handle] = &entityRec{behavior: proto, data: data}
		case cmdUnassign:
			if rec, ok := s.assigned[c.handle]; ok {
				rec.behavior.Clean(c.handle, rec.data)
				delete(s.assigned, c.handle)
			}
		case cmdMessage:
			if rec, ok := s.assigned[c.handle]; ok {
				rec.behavior.OnMessage(c.handle, rec.data, c.msg)
			}
		case cmdBroadcast:
			for h, rec := range s.assigned {
				rec.behavior.OnMessage(h, rec.data, c.msg)
			}
		}
	}
}

// collectWork snapshots every Active-tier assigned entity. Sorted by handle
// so batch contents are stable across runs regardless of map order.
func (s *Scheduler) collectWork() {
	s.working = s.working[:0]

	s.store.RLock()
	for h, rec := range s.assigned {
		idx, ok := s.store.IndexLocked(h)
		if !ok {
			continue
		}
		if s.store.Tier(idx) != components.TierActive {
			continue
		}
		hot := s.store.Hot(idx)
		if !hot.Active {
			continue
		}
		s.working = append(s.working, workItem{
			handle:   h,
			index:    idx,
			pos:      hot.Pos,
			vel:      hot.Vel,
			behavior: rec.behavior,
			data:     rec.data,
		})
	}
	s.store.RUnlock()

	sort.Slice(s.working, func(i, j int) bool { return s.working[i].handle < s.working[j].handle })
}

func (s *Scheduler) playerSnapshot() (components.Vec2, bool) {
	idx, ok := s.store.Index(s.player)
	if !ok {
		return components.Vec2{}, false
	}
	s.store.RLock()
	pos := s.store.Hot(idx).Pos
	s.store.RUnlock()
	return pos, true
}

// runRange executes behaviors for working[lo:hi) into one batch buffer.
// Batches are isolated: no batch touches another batch's entities, so a
// behavior can never observe a same-tick write from another behavior.
func (s *Scheduler) runRange(lo, hi int, dt float32, playerPos components.Vec2, hasPlayer bool, buf *[]collision.KinematicUpdate) {
	*buf = (*buf)[:0]
	for i := lo; i < hi; i++ {
		w := &s.working[i]
		if w.data.Errored {
			continue
		}
		ctx := Context{
			Handle:    w.handle,
			Index:     w.index,
			Pos:       w.pos,
			Vel:       w.vel,
			DT:        dt,
			PlayerPos: playerPos,
			HasPlayer: hasPlayer,
			Data:      w.data,
			Paths:     s,
		}
		if !s.runBehavior(w, &ctx) {
			continue
		}
		*buf = append(*buf, collision.KinematicUpdate{
			Index:  w.index,
			Pos:    ctx.Pos.Add(ctx.Vel.Scale(dt)),
			Vel:    ctx.Vel,
			Active: true,
		})
	}
}

// runBehavior executes one behavior with a panic boundary. A panicking
// behavior marks the entity errored and contributes no update this tick.
func (s *Scheduler) runBehavior(w *workItem, ctx *Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			w.data.Errored = true
			s.logger.Warn("behavior panicked", "behavior", w.behavior.Name(), "entity", uint64(w.handle), "panic", r)
			ok = false
		}
	}()
	w.behavior.ExecuteLogic(ctx)
	return true
}

// PrepareForStateTransition drains pending work, cancels outstanding path
// requests and clears behavior data, leaving the scheduler reusable without
// a re-init.
func (s *Scheduler) PrepareForStateTransition() {
	s.cmdMu.Lock()
	s.cmds = nil
	s.cmdMu.Unlock()
	s.resMu.Lock()
	s.results = nil
	s.resMu.Unlock()
	s.reqMu.Lock()
	s.pendingReqs = nil
	s.reqMu.Unlock()

	for h, rec := range s.assigned {
		s.CancelEntity(h)
		rec.behavior.Clean(h, rec.data)
		delete(s.assigned, h)
	}
}

func resizeBuffers(bufs [][]collision.KinematicUpdate, n int) [][]collision.KinematicUpdate {
	for len(bufs) < n {
		bufs = append(bufs, nil)
	}
	bufs = bufs[:n]
	for i := range bufs {
		bufs[i] = bufs[i][:0]
	}
	return bufs
}
