// Package spatial provides the hierarchical spatial hash used by collision
// broadphase and the static-region cache.
package spatial

import (
	"github.com/pthm-cable/forge/components"
)

const (
	// FineCellSize is roughly twice the typical entity radius.
	FineCellSize float32 = 64
	// CoarseCellSize keys the static-region cache; one coarse cell spans
	// 2x2 fine cells.
	CoarseCellSize float32 = 128
)

// Hash is a single-level spatial hash over fine cells. The engine keeps two
// instances: one for static bodies (rebuilt on world change) and one for
// movable bodies (rebuilt every tick).
type Hash struct {
	cellSize float32
	cells    map[uint64][]int32
}

// NewHash creates a spatial hash with the given fine cell size.
func NewHash(cellSize float32) *Hash {
	if cellSize <= 0 {
		cellSize = FineCellSize
	}
	return &Hash{
		cellSize: cellSize,
		cells:    make(map[uint64][]int32, 256),
	}
}

// Clear empties all cells, retaining their capacity for the rebuild pattern.
func (h *Hash) Clear() {
	for k := range h.cells {
		h.cells[k] = h.cells[k][:0]
	}
}

// Insert registers an index in every fine cell its AABB overlaps.
func (h *Hash) Insert(idx int32, aabb components.AABB) {
	minCX, minCY := h.cellCoord(aabb.MinX, aabb.MinY)
	maxCX, maxCY := h.cellCoord(aabb.MaxX, aabb.MaxY)

	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			key := cellKey(cx, cy)
			h.cells[key] = append(h.cells[key], idx)
		}
	}
}

// QueryRegion appends every index whose fine cells overlap the AABB to dst
// and returns it. Results may contain duplicates and false positives; the
// caller dedupes and narrowphase filters.
func (h *Hash) QueryRegion(aabb components.AABB, dst []int32) []int32 {
	return h.QueryRegionBounds(aabb.MinX, aabb.MinY, aabb.MaxX, aabb.MaxY, dst)
}

// QueryRegionBounds is QueryRegion on raw bounds.
func (h *Hash) QueryRegionBounds(minX, minY, maxX, maxY float32, dst []int32) []int32 {
	minCX, minCY := h.cellCoord(minX, minY)
	maxCX, maxCY := h.cellCoord(maxX, maxY)

	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			dst = append(dst, h.cells[cellKey(cx, cy)]...)
		}
	}
	return dst
}

// CoarseCoord derives the coarse cell coordinate of the AABB's center.
func CoarseCoord(aabb components.AABB) (int16, int16) {
	c := aabb.Center()
	return int16(floorDiv(c.X, CoarseCellSize)), int16(floorDiv(c.Y, CoarseCellSize))
}

// CoarseBounds returns the world-space AABB of a coarse cell.
func CoarseBounds(cx, cy int16) components.AABB {
	return components.AABB{
		MinX: float32(cx) * CoarseCellSize,
		MinY: float32(cy) * CoarseCellSize,
		MaxX: float32(cx+1) * CoarseCellSize,
		MaxY: float32(cy+1) * CoarseCellSize,
	}
}

func (h *Hash) cellCoord(x, y float32) (int32, int32) {
	return floorDiv(x, h.cellSize), floorDiv(y, h.cellSize)
}

func floorDiv(v, cell float32) int32 {
	q := v / cell
	i := int32(q)
	if q < 0 && float32(i) != q {
		i--
	}
	return i
}

func cellKey(cx, cy int32) uint64 {
	return uint64(uint32(cx))<<32 | uint64(uint32(cy))
}
