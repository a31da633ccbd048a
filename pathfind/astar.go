package pathfind

import (
	"container/heap"
	"math"
	"time"

	"github.com/pthm-cable/forge/components"
)

// Planner runs A* over a walkability grid. Scratch structures are reused
// between searches; a Planner is not safe for concurrent use.
type Planner struct {
	maxIterations int
	allowDiagonal bool

	openHeap  *nodeHeap
	closedSet map[int]struct{}
	cameFrom  map[int]int
	gScore    map[int]float32
}

// astarNode is a node in the open set.
type astarNode struct {
	gx, gy int
	f      float32
	index  int
}

type nodeHeap []*astarNode

func (h nodeHeap) Len() int           { return len(h) }
func (h nodeHeap) Less(i, j int) bool { return h[i].f < h[j].f }
func (h nodeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *nodeHeap) Push(x any) {
	n := x.(*astarNode)
	n.index = len(*h)
	*h = append(*h, n)
}

func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.index = -1
	*h = old[:n-1]
	return node
}

// NewPlanner creates a planner with the given search limits.
func NewPlanner(maxIterations int, allowDiagonal bool) *Planner {
	return &Planner{
		maxIterations: maxIterations,
		allowDiagonal: allowDiagonal,
		openHeap:      &nodeHeap{},
		closedSet:     make(map[int]struct{}, 256),
		cameFrom:      make(map[int]int, 256),
		gScore:        make(map[int]float32, 256),
	}
}

// FindPath computes a path in world coordinates. Returns nil when no path
// exists within the iteration limit.
func (p *Planner) FindPath(grid *Grid, start, goal components.Vec2, now time.Time) []components.Vec2 {
	startGX, startGY := grid.WorldToGrid(start.X, start.Y)
	goalGX, goalGY := grid.WorldToGrid(goal.X, goal.Y)

	if grid.IsBlocked(startGX, startGY) {
		startGX, startGY = findNearestOpen(grid, startGX, startGY)
		if startGX < 0 {
			return nil
		}
	}
	if grid.IsBlocked(goalGX, goalGY) {
		goalGX, goalGY = findNearestOpen(grid, goalGX, goalGY)
		if goalGX < 0 {
			return nil
		}
	}

	if startGX == goalGX && startGY == goalGY {
		x, y := grid.GridToWorld(goalGX, goalGY)
		return []components.Vec2{{X: x, Y: y}}
	}

	*p.openHeap = (*p.openHeap)[:0]
	clear(p.closedSet)
	clear(p.cameFrom)
	clear(p.gScore)

	width, _ := grid.Size()
	startID := startGY*width + startGX
	goalID := goalGY*width + goalGX

	p.gScore[startID] = 0
	heap.Push(p.openHeap, &astarNode{gx: startGX, gy: startGY, f: heuristic(startGX, startGY, goalGX, goalGY)})

	iterations := 0
	for p.openHeap.Len() > 0 && iterations < p.maxIterations {
		iterations++

		current := heap.Pop(p.openHeap).(*astarNode)
		currentID := current.gy*width + current.gx

		if currentID == goalID {
			return p.reconstruct(grid, startID, goalID)
		}
		p.closedSet[currentID] = struct{}{}

		neighborCount := 4
		if p.allowDiagonal {
			neighborCount = 8
		}
		neighbors := [8][2]int{
			{current.gx - 1, current.gy},
			{current.gx + 1, current.gy},
			{current.gx, current.gy - 1},
			{current.gx, current.gy + 1},
			{current.gx - 1, current.gy - 1},
			{current.gx + 1, current.gy - 1},
			{current.gx - 1, current.gy + 1},
			{current.gx + 1, current.gy + 1},
		}

		for i := 0; i < neighborCount; i++ {
			ngx, ngy := neighbors[i][0], neighbors[i][1]
			if grid.IsBlocked(ngx, ngy) {
				continue
			}
			// Diagonal moves need both adjacent cells open so corners
			// are never cut.
			if i >= 4 {
				dx := ngx - current.gx
				dy := ngy - current.gy
				if grid.IsBlocked(current.gx+dx, current.gy) || grid.IsBlocked(current.gx, current.gy+dy) {
					continue
				}
			}

			neighborID := ngy*width + ngx
			if _, ok := p.closedSet[neighborID]; ok {
				continue
			}

			moveCost := float32(1.0)
			if i >= 4 {
				moveCost = 1.414
			}
			moveCost += grid.CellCost(ngx, ngy, now)

			tentativeG := p.gScore[currentID] + moveCost
			existingG, exists := p.gScore[neighborID]
			if exists && tentativeG >= existingG {
				continue
			}

			p.cameFrom[neighborID] = currentID
			p.gScore[neighborID] = tentativeG
			f := tentativeG + heuristic(ngx, ngy, goalGX, goalGY)
			if !exists {
				heap.Push(p.openHeap, &astarNode{gx: ngx, gy: ngy, f: f})
			}
		}
	}

	// Iteration cap or exhausted frontier: no path.
	return nil
}

func heuristic(gx1, gy1, gx2, gy2 int) float32 {
	dx := float32(gx2 - gx1)
	dy := float32(gy2 - gy1)
	return float32(math.Sqrt(float64(dx*dx + dy*dy)))
}

func (p *Planner) reconstruct(grid *Grid, startID, goalID int) []components.Vec2 {
	width, _ := grid.Size()

	var pathIDs []int
	current := goalID
	for current != startID {
		pathIDs = append(pathIDs, current)
		var ok bool
		current, ok = p.cameFrom[current]
		if !ok {
			break
		}
	}
	pathIDs = append(pathIDs, startID)

	path := make([]components.Vec2, len(pathIDs))
	for i := 0; i < len(pathIDs); i++ {
		id := pathIDs[len(pathIDs)-1-i]
		x, y := grid.GridToWorld(id%width, id/width)
		path[i] = components.Vec2{X: x, Y: y}
	}
	return simplifyPath(grid, path)
}

// simplifyPath drops waypoints the previous and next waypoint can see each
// other around.
func simplifyPath(grid *Grid, path []components.Vec2) []components.Vec2 {
	if len(path) <= 2 {
		return path
	}
	simplified := make([]components.Vec2, 0, len(path))
	simplified = append(simplified, path[0])
	for i := 1; i < len(path)-1; i++ {
		if !hasLineOfSight(grid, path[i-1], path[i+1]) {
			simplified = append(simplified, path[i])
		}
	}
	simplified = append(simplified, path[len(path)-1])
	return simplified
}

func hasLineOfSight(grid *Grid, from, to components.Vec2) bool {
	delta := to.Sub(from)
	dist := float32(math.Sqrt(float64(delta.LenSq())))
	if dist < 0.01 {
		return true
	}
	stepSize := grid.cellSize * 0.5
	steps := int(dist/stepSize) + 1
	dir := delta.Scale(1 / dist)

	for i := 0; i <= steps; i++ {
		at := from.Add(dir.Scale(float32(i) * stepSize))
		if grid.IsBlockedWorld(at.X, at.Y) {
			return false
		}
	}
	return true
}

// findNearestOpen spirals outward for an unblocked cell. Returns (-1, -1)
// when none exists within the search radius.
func findNearestOpen(grid *Grid, gx, gy int) (int, int) {
	for radius := 1; radius < 10; radius++ {
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				if absi(dx) != radius && absi(dy) != radius {
					continue
				}
				if !grid.IsBlocked(gx+dx, gy+dy) {
					return gx + dx, gy + dy
				}
			}
		}
	}
	return -1, -1
}

func absi(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
