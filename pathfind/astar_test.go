package pathfind

import (
	"testing"
	"time"

	"github.com/pthm-cable/forge/components"
)

func openGrid(w, h int) *Grid {
	return NewGrid(w, h)
}

// wallGrid builds a grid with a vertical wall at column wallX, open at
// row gapY.
func wallGrid(w, h, wallX, gapY int) *Grid {
	g := NewGrid(w, h)
	for y := 0; y < h; y++ {
		if y == gapY {
			continue
		}
		g.blocked[y*w+wallX] = true
	}
	return g
}

func TestFindPathStraightLine(t *testing.T) {
	p := NewPlanner(20000, true)
	g := openGrid(32, 32)

	path := p.FindPath(g, components.Vec2{X: 24, Y: 24}, components.Vec2{X: 400, Y: 24}, time.Now())
	if len(path) == 0 {
		t.Fatal("no path on open grid")
	}
	last := path[len(path)-1]
	if last.Sub(components.Vec2{X: 400, Y: 24}).LenSq() > GridCellSize*GridCellSize {
		t.Fatalf("path ends at %+v, want near (400,24)", last)
	}
}

func TestFindPathDetoursAroundWall(t *testing.T) {
	p := NewPlanner(20000, true)
	g := wallGrid(32, 32, 16, 20)

	start := components.Vec2{X: 24, Y: 24}
	goal := components.Vec2{X: 31 * 16, Y: 24}
	path := p.FindPath(g, start, goal, time.Now())
	if len(path) == 0 {
		t.Fatal("no path through gap")
	}

	// The path must pass near the gap row to cross the wall.
	gapY := (float32(20) + 0.5) * GridCellSize
	crossed := false
	for _, wp := range path {
		if wp.X > 15*GridCellSize && wp.X < 18*GridCellSize && absf32(wp.Y-gapY) < 3*GridCellSize {
			crossed = true
		}
	}
	if !crossed {
		t.Fatalf("path did not use the gap: %+v", path)
	}
}

func TestFindPathUnreachable(t *testing.T) {
	p := NewPlanner(20000, true)
	g := wallGrid(32, 32, 16, -1) // no gap

	path := p.FindPath(g, components.Vec2{X: 24, Y: 24}, components.Vec2{X: 31 * 16, Y: 24}, time.Now())
	if path != nil {
		t.Fatalf("found path through solid wall: %+v", path)
	}
}

func TestFindPathIterationLimit(t *testing.T) {
	p := NewPlanner(3, true) // absurdly small budget
	g := openGrid(64, 64)

	path := p.FindPath(g, components.Vec2{X: 8, Y: 8}, components.Vec2{X: 1000, Y: 1000}, time.Now())
	if path != nil {
		t.Fatalf("path found under iteration limit: %+v", path)
	}
}

func TestFindPathSameCell(t *testing.T) {
	p := NewPlanner(20000, true)
	g := openGrid(8, 8)

	path := p.FindPath(g, components.Vec2{X: 10, Y: 10}, components.Vec2{X: 12, Y: 12}, time.Now())
	if len(path) != 1 {
		t.Fatalf("same-cell path = %+v, want single waypoint", path)
	}
}

func TestNoDiagonalStaysCardinal(t *testing.T) {
	p := NewPlanner(20000, false)
	g := openGrid(16, 16)

	path := p.FindPath(g, components.Vec2{X: 8, Y: 8}, components.Vec2{X: 200, Y: 200}, time.Now())
	if len(path) == 0 {
		t.Fatal("no cardinal-only path")
	}
}

func TestWeightFieldSteersPath(t *testing.T) {
	p := NewPlanner(20000, true)

	now := time.Now()
	costly := openGrid(32, 32)
	costly.AddWeightField(WeightField{
		Center:  components.Vec2{X: 256, Y: 24},
		Radius:  60,
		Weight:  50,
		Expires: now.Add(time.Minute),
	})

	path := p.FindPath(costly, components.Vec2{X: 24, Y: 24}, components.Vec2{X: 480, Y: 24}, now)
	if len(path) == 0 {
		t.Fatal("no path with weight field")
	}
	for _, wp := range path {
		d := wp.Sub(components.Vec2{X: 256, Y: 24})
		if d.LenSq() < 40*40 {
			t.Fatalf("path entered the avoidance field at %+v", wp)
		}
	}
}

func TestExpiredFieldIgnored(t *testing.T) {
	now := time.Now()
	g := openGrid(8, 8)
	g.AddWeightField(WeightField{
		Center:  components.Vec2{X: 50, Y: 50},
		Radius:  100,
		Weight:  99,
		Expires: now.Add(-time.Second),
	})
	if c := g.CellCost(3, 3, now); c != 0 {
		t.Fatalf("expired field still costs %g", c)
	}
	g.PruneFields(now)
	if len(g.fields) != 0 {
		t.Fatal("expired field survived prune")
	}
}

func absf32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
