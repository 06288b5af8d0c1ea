package impulse

import (
	"math"
	"sort"
	"sync"

	"github.com/akmonengine/impulse/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// ============================================================================
// Types
// ============================================================================

// CellKey is the integer coordinate of a grid cell
type CellKey struct {
	X, Y, Z int
}

// Cell holds the indices of the bodies overlapping it
type Cell struct {
	bodyIndices []int
}

// Pair is two bodies whose bounds overlap. A is always lower than B in the
// world's body order.
type Pair struct {
	A, B  int
	BodyA *actor.RigidBody
	BodyB *actor.RigidBody
}

// SpatialGrid is a hashed uniform grid over the bodies' AABBs.
// Planes are unbounded and are kept apart from the cells: they pair with
// every bounded dynamic body.
type SpatialGrid struct {
	cellSize float64
	cells    []Cell
	cellMask int
	planes   []int
}

// ============================================================================
// Constructor
// ============================================================================

// NewSpatialGrid creates a grid of numCells buckets, rounded up to a power of two
func NewSpatialGrid(cellSize float64, numCells int) *SpatialGrid {
	numCells = nextPowerOfTwo(numCells)

	cells := make([]Cell, numCells)
	for i := range cells {
		cells[i].bodyIndices = make([]int, 0, 8)
	}

	return &SpatialGrid{
		cellSize: cellSize,
		cells:    cells,
		cellMask: numCells - 1,
	}
}

func nextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n
}

// Insert adds a body to every cell its AABB touches. Bodies without a
// shape never collide.
func (sg *SpatialGrid) Insert(bodyIndex int, body *actor.RigidBody) {
	if body.Shape == nil {
		return
	}
	if body.Shape.Type() == actor.ShapeTypePlane {
		sg.planes = append(sg.planes, bodyIndex)
		return
	}

	sg.forEachCell(body.Shape.GetAABB(), func(cellIdx int) {
		sg.cells[cellIdx].bodyIndices = append(sg.cells[cellIdx].bodyIndices, bodyIndex)
	})
}

func (sg *SpatialGrid) Clear() {
	for i := range sg.cells {
		sg.cells[i].bodyIndices = sg.cells[i].bodyIndices[:0]
	}
	sg.planes = sg.planes[:0]
}

func (sg *SpatialGrid) SortCells() {
	for i := range sg.cells {
		if len(sg.cells[i].bodyIndices) > 1 {
			sort.Ints(sg.cells[i].bodyIndices)
		}
	}
}

// FindPairs returns the overlapping pairs grouped by their first body
func (sg *SpatialGrid) FindPairs(bodies []*actor.RigidBody) []Pair {
	pairs := make([]Pair, 0, len(bodies)/2)
	seen := make([]bool, len(bodies))

	for bodyIdx := range bodies {
		pairs = sg.appendPairs(pairs, bodies, bodyIdx, seen)
	}

	return pairs
}

// FindPairsParallel splits the bodies between numWorkers goroutines and
// streams the pairs they find. The order of the stream is not deterministic.
func (sg *SpatialGrid) FindPairsParallel(bodies []*actor.RigidBody, numWorkers int) <-chan Pair {
	var wg sync.WaitGroup
	numWorkers = min(max(1, numWorkers), max(1, len(bodies)))
	pairsChan := make(chan Pair, numWorkers*10)

	bodiesPerWorker := (len(bodies) + numWorkers - 1) / numWorkers
	for w := 0; w < numWorkers; w++ {
		startIdx := w * bodiesPerWorker
		endIdx := min(startIdx+bodiesPerWorker, len(bodies))
		if startIdx >= endIdx {
			continue
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()

			seen := make([]bool, len(bodies))
			var found []Pair
			for bodyIdx := start; bodyIdx < end; bodyIdx++ {
				found = sg.appendPairs(found[:0], bodies, bodyIdx, seen)
				for _, p := range found {
					pairsChan <- p
				}
			}
		}(startIdx, endIdx)
	}

	go func() {
		wg.Wait()
		close(pairsChan)
	}()

	return pairsChan
}

// appendPairs appends the pairs of bodyIdx with every higher body it may
// touch. seen is scratch sized like bodies and is left cleared.
func (sg *SpatialGrid) appendPairs(pairs []Pair, bodies []*actor.RigidBody, bodyIdx int, seen []bool) []Pair {
	bodyA := bodies[bodyIdx]

	if bodyA.Shape == nil || bodyA.Shape.Type() == actor.ShapeTypePlane {
		return pairs
	}

	for _, planeIdx := range sg.planes {
		plane := bodies[planeIdx]
		if bodyA.IsStatic() && plane.IsStatic() {
			continue
		}
		pairs = append(pairs, orderedPair(bodyIdx, planeIdx, bodyA, plane))
	}

	sg.forEachCell(bodyA.Shape.GetAABB(), func(cellIdx int) {
		for _, otherIdx := range sg.cells[cellIdx].bodyIndices {
			if otherIdx <= bodyIdx || seen[otherIdx] {
				continue
			}
			seen[otherIdx] = true

			bodyB := bodies[otherIdx]
			if bodyA.IsStatic() && bodyB.IsStatic() {
				continue
			}
			if bodyA.Shape.GetAABB().Overlaps(bodyB.Shape.GetAABB()) {
				pairs = append(pairs, Pair{A: bodyIdx, B: otherIdx, BodyA: bodyA, BodyB: bodyB})
			}
		}
	})

	sg.forEachCell(bodyA.Shape.GetAABB(), func(cellIdx int) {
		for _, otherIdx := range sg.cells[cellIdx].bodyIndices {
			seen[otherIdx] = false
		}
	})

	return pairs
}

func orderedPair(i, j int, bi, bj *actor.RigidBody) Pair {
	if j < i {
		return Pair{A: j, B: i, BodyA: bj, BodyB: bi}
	}
	return Pair{A: i, B: j, BodyA: bi, BodyB: bj}
}

func (sg *SpatialGrid) forEachCell(aabb actor.AABB, fn func(cellIdx int)) {
	minCell := sg.worldToCell(aabb.Min)
	maxCell := sg.worldToCell(aabb.Max)

	for x := minCell.X; x <= maxCell.X; x++ {
		for y := minCell.Y; y <= maxCell.Y; y++ {
			for z := minCell.Z; z <= maxCell.Z; z++ {
				fn(sg.hashCell(CellKey{x, y, z}))
			}
		}
	}
}

func (sg *SpatialGrid) worldToCell(pos mgl64.Vec3) CellKey {
	return CellKey{
		X: int(math.Floor(pos.X() / sg.cellSize)),
		Y: int(math.Floor(pos.Y() / sg.cellSize)),
		Z: int(math.Floor(pos.Z() / sg.cellSize)),
	}
}

func (sg *SpatialGrid) hashCell(key CellKey) int {
	h := (key.X * 73856093) ^ (key.Y * 19349663) ^ (key.Z * 83492791)
	return h & sg.cellMask
}
