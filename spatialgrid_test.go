package impulse

import (
	"sort"
	"testing"

	"github.com/akmonengine/impulse/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// ============================================================================
// Cells
// ============================================================================

func TestWorldToCell(t *testing.T) {
	grid := NewSpatialGrid(1.0, 16)

	tests := []struct {
		name     string
		position mgl64.Vec3
		expected CellKey
	}{
		{"origin", mgl64.Vec3{0, 0, 0}, CellKey{0, 0, 0}},
		{"positive", mgl64.Vec3{1.5, 2.3, 3.7}, CellKey{1, 2, 3}},
		{"negative", mgl64.Vec3{-1.5, -2.3, -3.7}, CellKey{-2, -3, -4}},
		{"fractional", mgl64.Vec3{0.5, 0.5, 0.5}, CellKey{0, 0, 0}},
		{"large", mgl64.Vec3{100.7, -200.3, 50.1}, CellKey{100, -201, 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := grid.worldToCell(tt.position)
			if result != tt.expected {
				t.Errorf("worldToCell(%v) = %v, want %v", tt.position, result, tt.expected)
			}
		})
	}
}

func TestHashCellInRange(t *testing.T) {
	grid := NewSpatialGrid(1.0, 16)

	for x := -20; x <= 20; x++ {
		for y := -20; y <= 20; y++ {
			for z := -20; z <= 20; z++ {
				idx := grid.hashCell(CellKey{x, y, z})
				if idx < 0 || idx >= len(grid.cells) {
					t.Fatalf("hashCell(%d,%d,%d) = %d, out of range [0, %d)", x, y, z, idx, len(grid.cells))
				}
			}
		}
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-3, 1},
		{0, 1},
		{1, 1},
		{3, 4},
		{16, 16},
		{1000, 1024},
	}

	for _, tt := range tests {
		if got := nextPowerOfTwo(tt.in); got != tt.want {
			t.Errorf("nextPowerOfTwo(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// ============================================================================
// Insert / Clear
// ============================================================================

func cellsHolding(grid *SpatialGrid, bodyIndex int) int {
	n := 0
	for _, cell := range grid.cells {
		for _, idx := range cell.bodyIndices {
			if idx == bodyIndex {
				n++
			}
		}
	}
	return n
}

func TestInsert(t *testing.T) {
	grid := NewSpatialGrid(1.0, 1024)

	inside := createBox(mgl64.Vec3{1.5, 1.5, 1.5}, mgl64.Vec3{0.4, 0.4, 0.4}, actor.BodyTypeDynamic)
	straddling := createSphere(mgl64.Vec3{0, 0, 0}, 0.5, actor.BodyTypeDynamic)

	grid.Insert(0, inside)
	grid.Insert(1, straddling)

	if n := cellsHolding(grid, 0); n != 1 {
		t.Errorf("box inside one cell found in %d cells", n)
	}
	// a sphere centred on a cell corner touches its 8 neighbours
	if n := cellsHolding(grid, 1); n != 8 {
		t.Errorf("sphere on a corner found in %d cells, want 8", n)
	}
}

func TestInsertPlane(t *testing.T) {
	grid := NewSpatialGrid(1.0, 16)

	grid.Insert(3, createPlane(mgl64.Vec3{0, 0, 1}, 0))

	if len(grid.planes) != 1 || grid.planes[0] != 3 {
		t.Errorf("planes = %v, want [3]", grid.planes)
	}
	for _, cell := range grid.cells {
		if len(cell.bodyIndices) > 0 {
			t.Fatal("a plane should not be stored in the cells")
		}
	}
}

func TestInsertWithoutShape(t *testing.T) {
	grid := NewSpatialGrid(1.0, 16)
	body := actor.Create(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}, mgl64.QuatIdent(), 1, 1)

	grid.Insert(0, body)

	if n := cellsHolding(grid, 0); n != 0 {
		t.Errorf("shapeless body found in %d cells", n)
	}
}

func TestClear(t *testing.T) {
	grid := NewSpatialGrid(1.0, 16)
	grid.Insert(0, createBox(mgl64.Vec3{1, 1, 1}, mgl64.Vec3{0.4, 0.4, 0.4}, actor.BodyTypeDynamic))
	grid.Insert(1, createPlane(mgl64.Vec3{0, 0, 1}, 0))

	grid.Clear()

	if len(grid.planes) != 0 {
		t.Error("planes should be empty after clear")
	}
	for _, cell := range grid.cells {
		if len(cell.bodyIndices) != 0 {
			t.Fatal("cells should be empty after clear")
		}
	}
}

func TestSortCells(t *testing.T) {
	grid := NewSpatialGrid(1.0, 16)
	grid.cells[0].bodyIndices = append(grid.cells[0].bodyIndices, 5, 2, 8, 1, 9, 3)

	grid.SortCells()

	if !sort.IntsAreSorted(grid.cells[0].bodyIndices) {
		t.Errorf("cell not sorted: %v", grid.cells[0].bodyIndices)
	}
}

// ============================================================================
// FindPairs
// ============================================================================

func findPairs(bodies []*actor.RigidBody) []Pair {
	grid := NewSpatialGrid(1.0, 64)
	for i, body := range bodies {
		grid.Insert(i, body)
	}
	grid.SortCells()

	return grid.FindPairs(bodies)
}

func TestFindPairs(t *testing.T) {
	tests := []struct {
		name   string
		bodies []*actor.RigidBody
		want   [][2]int
	}{
		{
			name: "far apart",
			bodies: []*actor.RigidBody{
				createBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0.4, 0.4, 0.4}, actor.BodyTypeDynamic),
				createBox(mgl64.Vec3{10, 10, 10}, mgl64.Vec3{0.4, 0.4, 0.4}, actor.BodyTypeDynamic),
			},
		},
		{
			name: "overlapping",
			bodies: []*actor.RigidBody{
				createBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0.4, 0.4, 0.4}, actor.BodyTypeDynamic),
				createBox(mgl64.Vec3{0.5, 0.5, 0.5}, mgl64.Vec3{0.4, 0.4, 0.4}, actor.BodyTypeDynamic),
			},
			want: [][2]int{{0, 1}},
		},
		{
			name: "both static",
			bodies: []*actor.RigidBody{
				createBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0.4, 0.4, 0.4}, actor.BodyTypeStatic),
				createBox(mgl64.Vec3{0.5, 0.5, 0.5}, mgl64.Vec3{0.4, 0.4, 0.4}, actor.BodyTypeStatic),
			},
		},
		{
			name: "plane pairs with every dynamic body",
			bodies: []*actor.RigidBody{
				createSphere(mgl64.Vec3{0, 0, 5}, 0.5, actor.BodyTypeDynamic),
				createPlane(mgl64.Vec3{0, 0, 1}, 0),
				createSphere(mgl64.Vec3{20, 0, 5}, 0.5, actor.BodyTypeDynamic),
				createBox(mgl64.Vec3{-20, 0, 5}, mgl64.Vec3{0.4, 0.4, 0.4}, actor.BodyTypeStatic),
			},
			want: [][2]int{{0, 1}, {1, 2}},
		},
		{
			name: "two planes never pair",
			bodies: []*actor.RigidBody{
				createPlane(mgl64.Vec3{0, 0, 1}, 0),
				createPlane(mgl64.Vec3{0, 0, -1}, 1),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs := findPairs(tt.bodies)

			if len(pairs) != len(tt.want) {
				t.Fatalf("got %d pairs, want %d", len(pairs), len(tt.want))
			}
			for i, p := range pairs {
				if [2]int{p.A, p.B} != tt.want[i] {
					t.Errorf("pair %d = (%d,%d), want %v", i, p.A, p.B, tt.want[i])
				}
				if p.BodyA != tt.bodies[p.A] || p.BodyB != tt.bodies[p.B] {
					t.Errorf("pair %d bodies do not match its indices", i)
				}
			}
		})
	}
}

func TestFindPairs_NoDuplicatesAcrossCells(t *testing.T) {
	// two large spheres sharing many cells
	bodies := []*actor.RigidBody{
		createSphere(mgl64.Vec3{0, 0, 0}, 3, actor.BodyTypeDynamic),
		createSphere(mgl64.Vec3{1, 1, 1}, 3, actor.BodyTypeDynamic),
	}

	if pairs := findPairs(bodies); len(pairs) != 1 {
		t.Errorf("got %d pairs, want 1", len(pairs))
	}
}

func TestBroadPhase_ParallelMatchesSequential(t *testing.T) {
	var bodies []*actor.RigidBody
	bodies = append(bodies, createPlane(mgl64.Vec3{0, 0, 1}, 0))
	for i := 0; i < 40; i++ {
		x := float64(i%8) * 0.9
		z := 0.5 + float64(i/8)*0.9
		bodies = append(bodies, createSphere(mgl64.Vec3{x, 0, z}, 0.5, actor.BodyTypeDynamic))
	}

	sequential := BroadPhase(NewSpatialGrid(1.0, 256), bodies, 1)
	parallel := BroadPhase(NewSpatialGrid(1.0, 256), bodies, 4)

	if len(sequential) != len(parallel) {
		t.Fatalf("sequential %d pairs, parallel %d", len(sequential), len(parallel))
	}
	for i := range sequential {
		if sequential[i].A != parallel[i].A || sequential[i].B != parallel[i].B {
			t.Fatalf("pair %d differs: (%d,%d) vs (%d,%d)", i,
				sequential[i].A, sequential[i].B, parallel[i].A, parallel[i].B)
		}
	}
}

func TestFindPairsParallel_WorkerCounts(t *testing.T) {
	tests := []struct {
		name    string
		bodies  []*actor.RigidBody
		workers int
		want    int
	}{
		{"no bodies", nil, 4, 0},
		{"plane and sphere, 4 workers", []*actor.RigidBody{
			createPlane(mgl64.Vec3{0, 0, 1}, 0),
			createSphere(mgl64.Vec3{0, 0, 0.5}, 0.5, actor.BodyTypeDynamic),
		}, 4, 1},
		{"plane and sphere, 16 workers", []*actor.RigidBody{
			createPlane(mgl64.Vec3{0, 0, 1}, 0),
			createSphere(mgl64.Vec3{0, 0, 0.5}, 0.5, actor.BodyTypeDynamic),
		}, 16, 1},
		{"three bodies, zero workers", []*actor.RigidBody{
			createPlane(mgl64.Vec3{0, 0, 1}, 0),
			createSphere(mgl64.Vec3{0, 0, 0.5}, 0.5, actor.BodyTypeDynamic),
			createSphere(mgl64.Vec3{0, 0, 1.4}, 0.5, actor.BodyTypeDynamic),
		}, 0, 3},
		{"five bodies, four workers", []*actor.RigidBody{
			createPlane(mgl64.Vec3{0, 0, 1}, 0),
			createSphere(mgl64.Vec3{0, 0, 0.5}, 0.5, actor.BodyTypeDynamic),
			createSphere(mgl64.Vec3{0, 0, 1.4}, 0.5, actor.BodyTypeDynamic),
			createSphere(mgl64.Vec3{5, 0, 0.5}, 0.5, actor.BodyTypeDynamic),
			createSphere(mgl64.Vec3{10, 0, 0.5}, 0.5, actor.BodyTypeDynamic),
		}, 4, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grid := NewSpatialGrid(1.0, 64)
			for i, body := range tt.bodies {
				grid.Insert(i, body)
			}
			grid.SortCells()

			var pairs []Pair
			for p := range grid.FindPairsParallel(tt.bodies, tt.workers) {
				pairs = append(pairs, p)
			}

			if len(pairs) != tt.want {
				t.Errorf("got %d pairs, want %d", len(pairs), tt.want)
			}
			if sequential := grid.FindPairs(tt.bodies); len(sequential) != len(pairs) {
				t.Errorf("parallel %d pairs, sequential %d", len(pairs), len(sequential))
			}
		})
	}
}
