package impulse

import (
	"math"
	"sort"

	"github.com/akmonengine/impulse/actor"
	"github.com/akmonengine/impulse/constraint"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// ContactMargin is the gap below which two shapes are considered touching
	ContactMargin = 0.01
	// ERP is the fraction of a penetration resolved per step
	ERP = 0.2
)

// Collision is one contact point found by the narrow phase.
// Depth is positive when the shapes overlap.
type Collision struct {
	Pair
	Contact *constraint.Contact
	Depth   float64
}

// BroadPhase fills the grid and returns the candidate pairs sorted by body order
func BroadPhase(spatialGrid *SpatialGrid, bodies []*actor.RigidBody, workersCount int) []Pair {
	spatialGrid.Clear()
	for i, body := range bodies {
		spatialGrid.Insert(i, body)
	}
	spatialGrid.SortCells()

	var pairs []Pair
	if workersCount <= 1 {
		pairs = spatialGrid.FindPairs(bodies)
	} else {
		for p := range spatialGrid.FindPairsParallel(bodies, workersCount) {
			pairs = append(pairs, p)
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})

	return pairs
}

// NarrowPhase generates the contacts of every pair. The output order only
// depends on the pair order.
func NarrowPhase(pairs []Pair, workersCount int) []Collision {
	perPair := gather(workersCount, pairs, collide)

	var collisions []Collision
	for _, c := range perPair {
		collisions = append(collisions, c...)
	}

	return collisions
}

// collide dispatches a pair to its analytic test. Box-box and box-sphere
// pairs produce no contact.
func collide(pair Pair) []Collision {
	a, b := pair.BodyA.Shape, pair.BodyB.Shape

	switch {
	case a.Type() == actor.ShapeTypePlane:
		return collidePlane(pair, pair.BodyB, pair.BodyA)
	case b.Type() == actor.ShapeTypePlane:
		return collidePlane(pair, pair.BodyA, pair.BodyB)
	case a.Type() == actor.ShapeTypeSphere && b.Type() == actor.ShapeTypeSphere:
		return collideSpheres(pair)
	}

	return nil
}

// collidePlane tests object against planeBody. The contact normal is the
// plane normal; body 0 is the object.
func collidePlane(pair Pair, object, planeBody *actor.RigidBody) []Collision {
	plane := planeBody.Shape.(*actor.Plane)
	friction := constraint.ComputeFriction(object.Material, planeBody.Material)

	var points []mgl64.Vec3
	switch shape := object.Shape.(type) {
	case *actor.Sphere:
		points = append(points, object.Transform.Position.Sub(plane.Normal.Mul(shape.Radius)))
	case *actor.Box:
		corners := shape.Corners(object.Transform)
		points = corners[:]
	default:
		return nil
	}

	var collisions []Collision
	for _, point := range points {
		distance := plane.SignedDistance(point.Sub(planeBody.Transform.Position))
		if distance >= ContactMargin {
			continue
		}

		onPlane := point.Sub(plane.Normal.Mul(distance))
		collisions = append(collisions, Collision{
			Pair:    pair,
			Contact: constraint.NewContact(object, planeBody, point, onPlane, plane.Normal, friction),
			Depth:   -distance,
		})
	}

	return collisions
}

// collideSpheres tests two spheres; the normal points from B toward A
func collideSpheres(pair Pair) []Collision {
	sa := pair.BodyA.Shape.(*actor.Sphere)
	sb := pair.BodyB.Shape.(*actor.Sphere)

	delta := pair.BodyA.Transform.Position.Sub(pair.BodyB.Transform.Position)
	distance := delta.Len()
	gap := distance - sa.Radius - sb.Radius
	if gap >= ContactMargin {
		return nil
	}

	normal := mgl64.Vec3{0, 0, 1}
	if distance > 1e-9 {
		normal = delta.Mul(1 / distance)
	}

	ptA := pair.BodyA.Transform.Position.Sub(normal.Mul(sa.Radius))
	ptB := pair.BodyB.Transform.Position.Add(normal.Mul(sb.Radius))
	friction := constraint.ComputeFriction(pair.BodyA.Material, pair.BodyB.Material)

	return []Collision{{
		Pair:    pair,
		Contact: constraint.NewContact(pair.BodyA, pair.BodyB, ptA, ptB, normal, friction),
		Depth:   -gap,
	}}
}

// SeparationSpeed converts a penetration depth into the speed that removes
// ERP of it over dt, capped by maxSpeed
func SeparationSpeed(depth, dt, maxSpeed float64) float64 {
	if depth <= 0 || dt <= 0 {
		return 0
	}

	return math.Min(depth*ERP/dt, maxSpeed)
}
