// Command simbench runs the simulation core headless: it loads a world,
// spawns a population of behavior-driven NPCs around a scripted player and
// reports frame statistics. Used for perf regression checks.
package main

import (
	"flag"
	"fmt"
	"log"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/config"
	"github.com/pthm-cable/forge/engine"
	"github.com/pthm-cable/forge/world"
)

func main() {
	configPath := flag.String("config", "", "Config YAML file (empty = defaults)")
	entities := flag.Int("entities", 5000, "NPC count to spawn")
	frames := flag.Int("frames", 3600, "Frames to simulate")
	csvPath := flag.String("csv", "", "Perf CSV output path")
	quiet := flag.Bool("quiet", false, "Suppress periodic perf logs")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *csvPath != "" {
		cfg.Telemetry.CSVPath = *csvPath
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if *quiet {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	eng, err := engine.New(cfg, logger)
	if err != nil {
		log.Fatalf("engine init: %v", err)
	}
	defer eng.Shutdown()

	eng.LoadWorld("bench", benchWorld())

	coll := eng.Collision()
	player := coll.CreatePlayer(components.Vec2{X: 2048, Y: 2048}, components.Vec2{X: 16, Y: 16})
	eng.SetPlayerHandle(player)

	behaviors := []string{"wander", "idle_fidget", "guard", "chase", "follow"}
	for i := 0; i < *entities; i++ {
		angle := float64(i) * 2.399963 // golden angle scatter
		dist := 100 + float32(i%40)*90
		pos := components.Vec2{
			X: 2048 + float32(math.Cos(angle))*dist,
			Y: 2048 + float32(math.Sin(angle))*dist,
		}
		npc := coll.CreateNPC(pos, components.Vec2{X: 12, Y: 12})
		eng.AI().RegisterEntity(npc, behaviors[i%len(behaviors)])
	}

	const dt = float32(1.0 / 60.0)
	start := time.Now()
	for f := 0; f < *frames; f++ {
		eng.Update(dt)
	}
	elapsed := time.Since(start)

	stats := eng.PerfStats()
	fmt.Printf("frames=%d entities=%d wall=%s\n", *frames, *entities, elapsed.Round(time.Millisecond))
	fmt.Printf("avg=%s p50=%s p95=%s p99=%s fps=%.1f\n",
		stats.AvgFrame.Round(time.Microsecond),
		stats.P50.Round(time.Microsecond),
		stats.P95.Round(time.Microsecond),
		stats.P99.Round(time.Microsecond),
		stats.FramesPerSecond)
	for _, sub := range engine.Subsystems() {
		if pct, ok := stats.PhasePct[sub.ID]; ok {
			fmt.Printf("  %-12s %5.1f%%\n", sub.ID, pct)
		}
	}
}

// benchWorld builds a 256x256 tile world with scattered building blocks
// and a water channel.
func benchWorld() *world.Grid {
	g := world.NewGrid(256, 256, world.DefaultTileSize)
	for by := 16; by < 240; by += 32 {
		for bx := 16; bx < 240; bx += 32 {
			for dy := 0; dy < 4; dy++ {
				for dx := 0; dx < 6; dx++ {
					g.Set(bx+dx, by+dy, world.TileBuilding)
				}
			}
		}
	}
	for x := 0; x < 256; x++ {
		g.Set(x, 128, world.TileWater)
		g.Set(x, 129, world.TileWater)
	}
	return g
}
