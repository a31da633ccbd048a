// Package engine assembles the simulation core: worker pool, budget
// arbitrator, entity store, collision engine, AI scheduler, pathfinder
// service and background simulator, orchestrated by a single per-frame
// Update. The engine value is the composition root; subsystems receive
// plain references and no global state exists.
package engine

import (
	"log/slog"
	"time"

	"github.com/pthm-cable/forge/ai"
	"github.com/pthm-cable/forge/background"
	"github.com/pthm-cable/forge/collision"
	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/config"
	"github.com/pthm-cable/forge/entity"
	"github.com/pthm-cable/forge/pathfind"
	"github.com/pthm-cable/forge/pool"
	"github.com/pthm-cable/forge/telemetry"
	"github.com/pthm-cable/forge/world"
)

// Engine owns every core subsystem and drives the per-frame pipeline.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	workers *pool.Pool
	budget  *pool.Budget
	store   *entity.Store
	coll    *collision.Engine
	paths   *pathfind.Service
	sched   *ai.Scheduler
	bg      *background.Simulator

	perf *telemetry.PerfCollector
	csv  *telemetry.CSVWriter
	live *telemetry.LiveServer

	player  components.Handle
	worldID string
	tiles   *world.Grid

	frame     uint64
	lastInfos []collision.Info
}

// New builds the engine from configuration. Worker pool failure is the only
// fatal condition.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	workers, err := pool.New(cfg.Derived.ThreadCount, logger)
	if err != nil {
		return nil, err
	}

	budget := pool.NewBudget(workers.Workers())
	store := entity.NewStore(1024)

	coll := collision.New(store, collision.Options{
		CullingBuffer:      cfg.Derived.CullingBuffer32,
		CacheEvictInterval: cfg.Collision.CacheEvictionInterval,
		MaxResolvedSpeed:   cfg.Derived.MaxSpeed32,
		TriggerCooldown:    time.Duration(cfg.Collision.TriggerCooldownSec * float64(time.Second)),
	}, logger)

	paths := pathfind.NewService(workers, pathfind.Options{
		MaxPathsPerFrame: cfg.Pathfinding.MaxPathsPerFrame,
		CacheTTL:         time.Duration(cfg.Pathfinding.PathCacheTTLSec * float64(time.Second)),
		AllowDiagonal:    cfg.Pathfinding.AllowDiagonal,
		MaxIterations:    cfg.Pathfinding.MaxPathIterations,
		RequestCapacity:  cfg.Pathfinding.RequestCapacity,
	}, logger)

	sched := ai.NewScheduler(store, coll, workers, budget, paths, 1, logger)

	bg := background.New(store, workers, budget, background.Options{
		ActiveRadius:     cfg.Derived.ActiveRadius32,
		BackgroundRadius: cfg.Derived.BackgroundRadius,
		TierInterval:     cfg.Tiers.TierUpdateInterval,
		UpdateDivisor:    cfg.Background.UpdateDivisor,
		MinForThreading:  cfg.Background.MinEntitiesForThreading,
	}, logger)

	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		workers: workers,
		budget:  budget,
		store:   store,
		coll:    coll,
		paths:   paths,
		sched:   sched,
		bg:      bg,
		perf:    telemetry.NewPerfCollector(cfg.Telemetry.WindowSize),
	}

	if cfg.Telemetry.CSVPath != "" {
		e.csv = telemetry.NewCSVWriter(cfg.Telemetry.CSVPath)
	}
	if cfg.Telemetry.LiveAddr != "" {
		e.live = telemetry.NewLiveServer(cfg.Telemetry.LiveAddr, logger)
		e.live.Start()
	}

	e.registerDefaultBehaviors()
	return e, nil
}

// registerDefaultBehaviors installs the stock behavior library.
func (e *Engine) registerDefaultBehaviors() {
	e.sched.RegisterBehavior("idle", ai.NewIdle(ai.IdleStationary))
	e.sched.RegisterBehavior("idle_fidget", ai.NewIdle(ai.IdleFidget))
	e.sched.RegisterBehavior("idle_sway", ai.NewIdle(ai.IdleSway))
	e.sched.RegisterBehavior("wander", ai.NewWander(60, 300))
	e.sched.RegisterBehavior("patrol", ai.NewPatrol(70, nil))
	e.sched.RegisterBehavior("chase", ai.NewChase(90, 800))
	e.sched.RegisterBehavior("flee", ai.NewFlee(110, 400))
	e.sched.RegisterBehavior("follow", ai.NewFollow(85))
	e.sched.RegisterBehavior("guard", ai.NewGuard(80, 350, 500))
	e.sched.RegisterBehavior("attack", ai.NewAttack(95))
}

// Update advances the simulation one frame. Phases run in strict order;
// parallelism exists only inside the AI, background and pathfinding steps,
// each of which joins before the next phase begins.
func (e *Engine) Update(dt float32) {
	e.frame++
	now := time.Now()

	e.perf.StartFrame()

	e.perf.StartPhase(telemetry.PhaseCommands)
	e.coll.ProcessCommands()

	e.perf.StartPhase(telemetry.PhaseAI)
	e.sched.Update(dt)

	e.perf.StartPhase(telemetry.PhaseCollision)
	e.lastInfos = e.coll.Step(now)

	e.perf.StartPhase(telemetry.PhaseBackground)
	playerPos := e.playerPos()
	e.bg.Update(playerPos, dt)

	e.perf.StartPhase(telemetry.PhasePathfinding)
	e.paths.SetPlayerPos(playerPos)
	e.paths.SubmitFrame()

	e.perf.StartPhase(telemetry.PhaseTelemetry)
	e.perf.EndFrame()
	e.reportPerf()
}

func (e *Engine) playerPos() components.Vec2 {
	idx, ok := e.store.Index(e.player)
	if !ok {
		return components.Vec2{}
	}
	e.store.RLock()
	pos := e.store.Hot(idx).Pos
	e.store.RUnlock()
	return pos
}

func (e *Engine) reportPerf() {
	interval := e.cfg.Telemetry.LogInterval
	if interval <= 0 || e.frame%uint64(interval) != 0 {
		return
	}
	stats := e.perf.Stats()
	stats.LogStats(e.logger)

	if e.csv != nil {
		e.csv.Append(stats.ToCSV(e.frame))
	}
	if e.live != nil {
		e.live.Publish(telemetry.LiveSnapshot{
			Frame:       e.frame,
			AvgFrameUS:  stats.AvgFrame.Microseconds(),
			P99US:       stats.P99.Microseconds(),
			FPS:         stats.FramesPerSecond,
			Entities:    e.store.Len(),
			Collisions:  len(e.lastInfos),
			PathQueue:   e.paths.QueueDepth(),
			CacheHits:   int(e.paths.CacheHits.Load()),
			CacheMisses: int(e.paths.CacheMisses.Load()),
		})
	}
}

// SetPlayerHandle installs the reference entity used by culling, trigger
// tracking, AI targeting and pathfinding priority.
func (e *Engine) SetPlayerHandle(h components.Handle) {
	e.player = h
	e.coll.SetPlayer(h)
	e.sched.SetPlayerHandle(h)
}

// LoadWorld rebuilds static collision bodies and the pathfinding grid from
// a tile grid. Buildings become merged static rectangles, water becomes
// trigger regions, and other impassables contribute to path cost only. The
// grid rebuild is asynchronous; pathfinding resumes when it lands.
func (e *Engine) LoadWorld(worldID string, tiles *world.Grid) {
	e.worldID = worldID
	e.tiles = tiles

	buildings := tiles.BuildingRects()
	for _, r := range buildings {
		e.coll.CreateStaticBody(r.Center(), halfOf(r))
	}
	for _, r := range tiles.WaterRects() {
		e.coll.CreateTrigger(r.Center(), halfOf(r), components.TriggerWater)
	}

	e.coll.MarkStaticDirty()
	e.bg.Invalidate()
	e.paths.RebuildGridAsync(tiles, buildings)

	e.logger.Info("world loaded", "world", worldID,
		"buildings", len(buildings), "width", tiles.Width, "height", tiles.Height)
}

// ApplyTileChange updates one tile, dirtying exactly the affected coarse
// cells and kicking an async pathfinding grid rebuild.
func (e *Engine) ApplyTileChange(x, y int, tile world.Tile) {
	if e.tiles == nil {
		return
	}
	e.tiles.Set(x, y, tile)

	bounds := e.tiles.TileBounds(x, y)
	cx0 := int16(bounds.MinX / spatialCoarse)
	cy0 := int16(bounds.MinY / spatialCoarse)
	cx1 := int16(bounds.MaxX / spatialCoarse)
	cy1 := int16(bounds.MaxY / spatialCoarse)
	for cy := cy0; cy <= cy1; cy++ {
		for cx := cx0; cx <= cx1; cx++ {
			e.coll.InvalidateCoarseCell(cx, cy)
		}
	}

	e.coll.MarkStaticDirty()
	e.paths.RebuildGridAsync(e.tiles, e.tiles.BuildingRects())
}

const spatialCoarse = 128

// RenderItem is one entry of the read-only render snapshot.
type RenderItem struct {
	Handle   components.Handle
	Pos      components.Vec2
	HalfSize components.Vec2
	Layers   uint32
}

// RenderSnapshot fills dst with Active-tier entities at positions
// interpolated between the previous and current frame by alpha in [0, 1].
func (e *Engine) RenderSnapshot(alpha float32, dst []RenderItem) []RenderItem {
	e.store.RLock()
	defer e.store.RUnlock()

	n := e.store.Len()
	for i := 0; i < n; i++ {
		if e.store.Tier(i) != components.TierActive {
			continue
		}
		hot := e.store.Hot(i)
		if !hot.Active {
			continue
		}
		last := e.store.Cold(i).LastPos
		dst = append(dst, RenderItem{
			Handle:   e.store.Handle(i),
			Pos:      last.Add(hot.Pos.Sub(last).Scale(alpha)),
			HalfSize: hot.HalfSize,
			Layers:   hot.Layers,
		})
	}
	return dst
}

// PrepareForStateTransition cooperatively cancels in-flight work across the
// subsystems and leaves each in a consistent post-init state.
func (e *Engine) PrepareForStateTransition() {
	e.sched.PrepareForStateTransition()
	e.paths.PrepareForStateTransition()
}

// Shutdown flushes telemetry and joins the worker pool.
func (e *Engine) Shutdown() {
	if e.live != nil {
		e.live.Close()
	}
	if e.csv != nil {
		if err := e.csv.Close(); err != nil {
			e.logger.Warn("perf csv close failed", "err", err)
		}
	}
	e.workers.Shutdown()
}

// Subsystem accessors for the game-state layer.

func (e *Engine) Store() *entity.Store          { return e.store }
func (e *Engine) Collision() *collision.Engine  { return e.coll }
func (e *Engine) AI() *ai.Scheduler             { return e.sched }
func (e *Engine) Pathfinder() *pathfind.Service { return e.paths }
func (e *Engine) Background() *background.Simulator {
	return e.bg
}
func (e *Engine) Pool() *pool.Pool     { return e.workers }
func (e *Engine) Budget() *pool.Budget { return e.budget }
func (e *Engine) Frame() uint64        { return e.frame }

// PerfStats returns aggregated frame statistics for the current window.
func (e *Engine) PerfStats() telemetry.PerfStats { return e.perf.Stats() }

// LastCollisions returns the previous frame's collision infos.
func (e *Engine) LastCollisions() []collision.Info { return e.lastInfos }

func halfOf(a components.AABB) components.Vec2 {
	return components.Vec2{X: (a.MaxX - a.MinX) * 0.5, Y: (a.MaxY - a.MinY) * 0.5}
}
