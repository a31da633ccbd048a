// Package world defines the tile grid types the core consumes from the
// world module, plus the footprint merging used to build static collision
// bodies on world load.
package world

import (
	"github.com/pthm-cable/forge/components"
)

// Tile is a single world tile kind.
type Tile uint8

const (
	TileEmpty Tile = iota
	TileGrass
	TileBuilding
	TileWater
	TileRock
	TileSwamp
)

// DefaultTileSize is the world tile edge length in pixels.
const DefaultTileSize float32 = 32

// Impassable reports whether the tile blocks movement for pathfinding.
func (t Tile) Impassable() bool {
	switch t {
	case TileBuilding, TileWater, TileRock:
		return true
	}
	return false
}

// Solid reports whether the tile becomes a solid static collision body.
// Water is impassable for pathfinding but becomes a trigger, not a solid.
func (t Tile) Solid() bool { return t == TileBuilding }

// ExtraCost returns the pathfinding weight added by the tile. Swamp slows
// movement without blocking it.
func (t Tile) ExtraCost() float32 {
	if t == TileSwamp {
		return 4
	}
	return 0
}

// Grid is a dense tile grid with a fixed tile size.
type Grid struct {
	Width    int
	Height   int
	TileSize float32
	tiles    []Tile
}

// NewGrid creates an empty (all TileEmpty) grid.
func NewGrid(width, height int, tileSize float32) *Grid {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	return &Grid{
		Width:    width,
		Height:   height,
		TileSize: tileSize,
		tiles:    make([]Tile, width*height),
	}
}

// At returns the tile at grid coordinates. Out of bounds reads TileEmpty.
func (g *Grid) At(x, y int) Tile {
	if x < 0 || x >= g.Width || y < 0 || y >= g.Height {
		return TileEmpty
	}
	return g.tiles[y*g.Width+x]
}

// Set writes a tile. Out of bounds writes are dropped.
func (g *Grid) Set(x, y int, t Tile) {
	if x < 0 || x >= g.Width || y < 0 || y >= g.Height {
		return
	}
	g.tiles[y*g.Width+x] = t
}

// TileBounds returns the world-space AABB of a tile.
func (g *Grid) TileBounds(x, y int) components.AABB {
	return components.AABB{
		MinX: float32(x) * g.TileSize,
		MinY: float32(y) * g.TileSize,
		MaxX: float32(x+1) * g.TileSize,
		MaxY: float32(y+1) * g.TileSize,
	}
}

// TileAtWorld returns the tile containing a world position.
func (g *Grid) TileAtWorld(p components.Vec2) Tile {
	return g.At(int(p.X/g.TileSize), int(p.Y/g.TileSize))
}

// rect is a tile-space rectangle, inclusive of min, exclusive of max.
type rect struct {
	x0, y0, x1, y1 int
}

// MergedRects merges tiles matching the predicate into maximal rectangles:
// horizontal runs first, then runs with identical spans merged downward.
// One static body per rectangle keeps the static hash small for towns built
// from hundreds of building tiles.
func (g *Grid) MergedRects(match func(Tile) bool) []components.AABB {
	type run struct {
		x0, x1 int // tile span, x1 exclusive
	}

	var rects []rect
	open := make(map[run]int) // run span -> index into rects still growing

	for y := 0; y < g.Height; y++ {
		rowRuns := make(map[run]struct{})
		x := 0
		for x < g.Width {
			if !match(g.At(x, y)) {
				x++
				continue
			}
			start := x
			for x < g.Width && match(g.At(x, y)) {
				x++
			}
			r := run{start, x}
			rowRuns[r] = struct{}{}
			if i, ok := open[r]; ok && rects[i].y1 == y {
				rects[i].y1 = y + 1
			} else {
				open[r] = len(rects)
				rects = append(rects, rect{start, y, x, y + 1})
			}
		}
		// Runs absent from this row stop growing.
		for r, i := range open {
			if _, ok := rowRuns[r]; !ok || rects[i].y1 <= y {
				delete(open, r)
			}
		}
	}

	out := make([]components.AABB, len(rects))
	for i, r := range rects {
		out[i] = components.AABB{
			MinX: float32(r.x0) * g.TileSize,
			MinY: float32(r.y0) * g.TileSize,
			MaxX: float32(r.x1) * g.TileSize,
			MaxY: float32(r.y1) * g.TileSize,
		}
	}
	return out
}

// BuildingRects returns merged solid building footprints.
func (g *Grid) BuildingRects() []components.AABB {
	return g.MergedRects(Tile.Solid)
}

// WaterRects returns merged water footprints; these become triggers.
func (g *Grid) WaterRects() []components.AABB {
	return g.MergedRects(func(t Tile) bool { return t == TileWater })
}
