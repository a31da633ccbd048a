package spatial

import (
	"testing"

	"github.com/pthm-cable/forge/components"
)

func box(cx, cy, half float32) components.AABB {
	return components.AABBFromCenter(components.Vec2{X: cx, Y: cy}, components.Vec2{X: half, Y: half})
}

func contains(s []int32, v int32) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func TestInsertAndQuery(t *testing.T) {
	h := NewHash(FineCellSize)
	h.Insert(1, box(32, 32, 10))
	h.Insert(2, box(500, 500, 10))

	got := h.QueryRegion(box(32, 32, 40), nil)
	if !contains(got, 1) {
		t.Fatalf("query missed nearby index: %v", got)
	}
	if contains(got, 2) {
		t.Fatalf("query returned distant index: %v", got)
	}
}

func TestQueryMayReturnDuplicates(t *testing.T) {
	h := NewHash(FineCellSize)
	// Spans four fine cells; a query over all of them sees it repeatedly.
	h.Insert(7, box(64, 64, 40))

	got := h.QueryRegion(box(64, 64, 100), nil)
	count := 0
	for _, v := range got {
		if v == 7 {
			count++
		}
	}
	if count < 2 {
		t.Fatalf("expected duplicates for multi-cell body, got %d hit(s)", count)
	}
}

func TestClearKeepsNothing(t *testing.T) {
	h := NewHash(FineCellSize)
	h.Insert(1, box(0, 0, 10))
	h.Clear()
	if got := h.QueryRegion(box(0, 0, 100), nil); len(got) != 0 {
		t.Fatalf("query after clear = %v", got)
	}
}

func TestNegativeCoordinates(t *testing.T) {
	h := NewHash(FineCellSize)
	h.Insert(3, box(-100, -100, 10))

	got := h.QueryRegion(box(-100, -100, 20), nil)
	if !contains(got, 3) {
		t.Fatalf("negative-space body not found: %v", got)
	}
	// A query on the positive side of the origin must not see it.
	if got := h.QueryRegion(box(100, 100, 20), nil); contains(got, 3) {
		t.Fatalf("body leaked across origin: %v", got)
	}
}

func TestQueryReusesDst(t *testing.T) {
	h := NewHash(FineCellSize)
	h.Insert(1, box(0, 0, 10))

	buf := make([]int32, 0, 16)
	got := h.QueryRegion(box(0, 0, 20), buf[:0])
	if len(got) == 0 {
		t.Fatal("empty result with reused buffer")
	}
}

func TestCoarseCoord(t *testing.T) {
	tests := []struct {
		aabb   components.AABB
		cx, cy int16
	}{
		{box(64, 64, 10), 0, 0},
		{box(129, 0, 1), 1, 0},
		{box(-64, -64, 10), -1, -1},
	}
	for _, tt := range tests {
		cx, cy := CoarseCoord(tt.aabb)
		if cx != tt.cx || cy != tt.cy {
			t.Errorf("CoarseCoord(%v) = (%d,%d), want (%d,%d)", tt.aabb, cx, cy, tt.cx, tt.cy)
		}
	}
}

func TestCoarseBoundsRoundTrip(t *testing.T) {
	b := CoarseBounds(2, -1)
	if b.MinX != 256 || b.MaxX != 384 || b.MinY != -128 || b.MaxY != 0 {
		t.Fatalf("CoarseBounds(2,-1) = %+v", b)
	}
	cx, cy := CoarseCoord(b)
	if cx != 2 || cy != -1 {
		t.Fatalf("round trip = (%d,%d)", cx, cy)
	}
}
