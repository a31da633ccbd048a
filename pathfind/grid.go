package pathfind

import (
	"time"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/world"
)

// GridCellSize is the pathfinding grid cell size in pixels.
const GridCellSize float32 = 16

// Grid is a 2D walkability map derived from world tiles and static
// collision body footprints, with per-cell weight overlays for temporary
// avoidance fields. A grid is immutable once built; rebuilds swap in a new
// instance.
type Grid struct {
	blocked  []bool
	cost     []float32
	cellSize float32
	width    int
	height   int

	fields []WeightField
}

// WeightField is a temporary circular avoidance overlay.
type WeightField struct {
	Center  components.Vec2
	Radius  float32
	Weight  float32
	Expires time.Time
}

// NewGrid creates an empty, fully walkable grid.
func NewGrid(width, height int) *Grid {
	return &Grid{
		blocked:  make([]bool, width*height),
		cost:     make([]float32, width*height),
		cellSize: GridCellSize,
		width:    width,
		height:   height,
	}
}

// BuildGrid rasterizes walkability from the tile grid and static body
// AABBs. Water and buildings block; swamp adds traversal cost only.
func BuildGrid(tiles *world.Grid, staticBodies []components.AABB) *Grid {
	w := int(float32(tiles.Width) * tiles.TileSize / GridCellSize)
	h := int(float32(tiles.Height) * tiles.TileSize / GridCellSize)
	g := NewGrid(w, h)

	for gy := 0; gy < h; gy++ {
		for gx := 0; gx < w; gx++ {
			cx := (float32(gx) + 0.5) * GridCellSize
			cy := (float32(gy) + 0.5) * GridCellSize
			tile := tiles.TileAtWorld(components.Vec2{X: cx, Y: cy})
			if tile.Impassable() {
				g.blocked[gy*w+gx] = true
				continue
			}
			g.cost[gy*w+gx] = tile.ExtraCost()
		}
	}

	for _, body := range staticBodies {
		g.blockAABB(body)
	}
	return g
}

func (g *Grid) blockAABB(aabb components.AABB) {
	x0 := int(aabb.MinX / g.cellSize)
	y0 := int(aabb.MinY / g.cellSize)
	x1 := int(aabb.MaxX / g.cellSize)
	y1 := int(aabb.MaxY / g.cellSize)
	for gy := y0; gy <= y1; gy++ {
		if gy < 0 || gy >= g.height {
			continue
		}
		for gx := x0; gx <= x1; gx++ {
			if gx < 0 || gx >= g.width {
				continue
			}
			g.blocked[gy*g.width+gx] = true
		}
	}
}

// IsBlocked returns true for blocked or out-of-bounds cells.
func (g *Grid) IsBlocked(gx, gy int) bool {
	if gx < 0 || gx >= g.width || gy < 0 || gy >= g.height {
		return true
	}
	return g.blocked[gy*g.width+gx]
}

// IsBlockedWorld tests the cell containing a world position.
func (g *Grid) IsBlockedWorld(x, y float32) bool {
	return g.IsBlocked(int(x/g.cellSize), int(y/g.cellSize))
}

// CellCost returns the extra traversal cost at a cell, including any live
// weight fields.
func (g *Grid) CellCost(gx, gy int, now time.Time) float32 {
	if gx < 0 || gx >= g.width || gy < 0 || gy >= g.height {
		return 0
	}
	c := g.cost[gy*g.width+gx]
	if len(g.fields) > 0 {
		wx := (float32(gx) + 0.5) * g.cellSize
		wy := (float32(gy) + 0.5) * g.cellSize
		for i := range g.fields {
			f := &g.fields[i]
			if now.After(f.Expires) {
				continue
			}
			d := components.Vec2{X: wx - f.Center.X, Y: wy - f.Center.Y}
			if d.LenSq() <= f.Radius*f.Radius {
				c += f.Weight
			}
		}
	}
	return c
}

// AddWeightField installs a temporary avoidance field.
func (g *Grid) AddWeightField(f WeightField) {
	g.fields = append(g.fields, f)
}

// PruneFields drops expired weight fields.
func (g *Grid) PruneFields(now time.Time) {
	live := g.fields[:0]
	for _, f := range g.fields {
		if now.Before(f.Expires) {
			live = append(live, f)
		}
	}
	g.fields = live
}

// WorldToGrid converts world coordinates to grid coordinates.
func (g *Grid) WorldToGrid(x, y float32) (int, int) {
	return int(x / g.cellSize), int(y / g.cellSize)
}

// GridToWorld converts grid coordinates to the cell center in world space.
func (g *Grid) GridToWorld(gx, gy int) (float32, float32) {
	return (float32(gx) + 0.5) * g.cellSize, (float32(gy) + 0.5) * g.cellSize
}

// Size returns the grid dimensions in cells.
func (g *Grid) Size() (int, int) { return g.width, g.height }
