// Package background advances off-screen entities: it re-tiers the entity
// population on a fixed cadence and runs a simplified position-only update
// for Background-tier entities at a reduced rate.
package background

import (
	"log/slog"
	"time"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/entity"
	"github.com/pthm-cable/forge/pool"
)

// Options configures the simulator.
type Options struct {
	ActiveRadius     float32
	BackgroundRadius float32
	TierInterval     int // frames between re-tier sweeps
	UpdateDivisor    int // background entities update every Nth frame
	MinForThreading  int
}

// DefaultOptions mirror the shipped configuration defaults.
func DefaultOptions() Options {
	return Options{
		ActiveRadius:     1500,
		BackgroundRadius: 10000,
		TierInterval:     60,
		UpdateDivisor:    4,
		MinForThreading:  500,
	}
}

// Simulator owns tier reclassification and the background-tier update.
type Simulator struct {
	store   *entity.Store
	workers *pool.Pool
	budget  *pool.Budget
	logger  *slog.Logger
	opts    Options

	frame       uint64
	invalidated bool
	indices     []int

	// LastCounts exposes the most recent tier sweep for perf reporting.
	LastCounts   entity.TierCounts
	LastObserved time.Duration
}

// New creates a background simulator.
func New(store *entity.Store, workers *pool.Pool, budget *pool.Budget, opts Options, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{store: store, workers: workers, budget: budget, logger: logger, opts: opts}
}

// Invalidate forces a tier sweep on the next update.
func (s *Simulator) Invalidate() { s.invalidated = true }

// Update runs the per-frame background step against the reference point.
func (s *Simulator) Update(ref components.Vec2, dt float32) {
	s.frame++

	if s.invalidated || (s.opts.TierInterval > 0 && s.frame%uint64(s.opts.TierInterval) == 0) {
		s.invalidated = false
		s.LastCounts = s.store.UpdateSimulationTiers(ref, s.opts.ActiveRadius, s.opts.BackgroundRadius)
	}

	// Reduced cadence: background entities integrate every Nth frame with
	// a scaled dt so average velocity is preserved.
	divisor := s.opts.UpdateDivisor
	if divisor < 1 {
		divisor = 1
	}
	if s.frame%uint64(divisor) != 0 {
		return
	}
	scaledDT := dt * float32(divisor)

	start := time.Now()
	s.indices = s.store.CollectTier(s.indices[:0], components.TierBackground)
	n := len(s.indices)
	if n == 0 {
		s.LastObserved = time.Since(start)
		return
	}

	if n < s.opts.MinForThreading {
		s.store.RLock()
		s.integrateRange(0, n, scaledDT)
		s.store.RUnlock()
		s.LastObserved = time.Since(start)
		s.budget.ReportSingleThreadedTime(pool.SystemParticle, n, s.LastObserved)
		return
	}

	workers := s.budget.AllocatedWorkers(pool.SystemParticle)
	batchCount, batchSize := s.budget.BatchStrategy(pool.SystemParticle, n, workers)

	s.store.RLock()
	handle := s.workers.SubmitBatch(pool.Low, batchCount, func(b int) error {
		lo := b * batchSize
		hi := lo + batchSize
		if hi > n {
			hi = n
		}
		if lo < hi {
			s.integrateRange(lo, hi, scaledDT)
		}
		return nil
	})
	err := handle.Wait()
	s.store.RUnlock()
	if err != nil {
		s.logger.Warn("background batch failed", "err", err)
	}

	s.LastObserved = time.Since(start)
	s.budget.ReportBatchTime(pool.SystemParticle, s.LastObserved)
}

// integrateRange advances positions for indices[lo:hi). No collision, no
// behavior logic; these entities have no bodies in the active hash. Caller
// holds the shared lock; batches write disjoint index ranges.
func (s *Simulator) integrateRange(lo, hi int, dt float32) {
	for i := lo; i < hi; i++ {
		idx := s.indices[i]
		hot := s.store.Hot(idx)
		s.store.Cold(idx).LastPos = hot.Pos
		hot.Pos = hot.Pos.Add(hot.Vel.Scale(dt))
		hot.AABBDirty = true
	}
}
