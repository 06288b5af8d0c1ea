package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ShapeType represents the type of collision shape
type ShapeType int

const (
	ShapeTypeSphere ShapeType = iota
	ShapeTypeBox
	ShapeTypePlane
)

// Shape is the interface that all collision shapes must implement
type Shape interface {
	Type() ShapeType
	// ComputeAABB calculates the axis-aligned bounding box for the shape
	// at the given transform
	ComputeAABB(transform Transform)
	GetAABB() AABB
	ComputeVolume() float64
	// ComputeInertia returns the body-frame inertia tensor for a given mass
	ComputeInertia(mass float64) mgl64.Mat3
}

// ComputeMass returns density·volume, or 0 for unbounded shapes
func ComputeMass(shape Shape, density float64) float64 {
	volume := shape.ComputeVolume()
	if math.IsInf(volume, 1) {
		return 0
	}

	return density * volume
}

// Box represents an oriented box collision shape
// The box is defined by its half-extents (half-width, half-height, half-depth)
type Box struct {
	HalfExtents mgl64.Vec3
	aabb        AABB
}

func (b *Box) Type() ShapeType {
	return ShapeTypeBox
}

// Corners returns the 8 corners of the box in world space
func (b *Box) Corners(transform Transform) [8]mgl64.Vec3 {
	var corners [8]mgl64.Vec3
	for i := range corners {
		local := b.HalfExtents
		if i&1 == 0 {
			local[0] = -local[0]
		}
		if i&2 == 0 {
			local[1] = -local[1]
		}
		if i&4 == 0 {
			local[2] = -local[2]
		}
		corners[i] = transform.Rotation.Rotate(local).Add(transform.Position)
	}

	return corners
}

func (b *Box) ComputeAABB(transform Transform) {
	corners := b.Corners(transform)
	min, max := corners[0], corners[0]

	for _, corner := range corners[1:] {
		for axis := 0; axis < 3; axis++ {
			min[axis] = math.Min(min[axis], corner[axis])
			max[axis] = math.Max(max[axis], corner[axis])
		}
	}

	b.aabb = AABB{Min: min, Max: max}
}

func (b *Box) GetAABB() AABB {
	return b.aabb
}

// ComputeVolume: full dimensions are 2*halfExtents
func (b *Box) ComputeVolume() float64 {
	return 8.0 * b.HalfExtents.X() * b.HalfExtents.Y() * b.HalfExtents.Z()
}

func (b *Box) ComputeInertia(mass float64) mgl64.Mat3 {
	x := b.HalfExtents.X() * 2
	y := b.HalfExtents.Y() * 2
	z := b.HalfExtents.Z() * 2

	// I = (m/12) * (dimension1² + dimension2²)
	factor := mass / 12.0

	return mgl64.Diag3(mgl64.Vec3{
		factor * (y*y + z*z),
		factor * (x*x + z*z),
		factor * (x*x + y*y),
	})
}

// Sphere represents a spherical collision shape
type Sphere struct {
	Radius float64
	aabb   AABB
}

func (s *Sphere) Type() ShapeType {
	return ShapeTypeSphere
}

// ComputeAABB: a sphere's box is not affected by rotation
func (s *Sphere) ComputeAABB(transform Transform) {
	radiusVec := mgl64.Vec3{s.Radius, s.Radius, s.Radius}

	s.aabb = AABB{
		Min: transform.Position.Sub(radiusVec),
		Max: transform.Position.Add(radiusVec),
	}
}

func (s *Sphere) GetAABB() AABB {
	return s.aabb
}

func (s *Sphere) ComputeVolume() float64 {
	return (4.0 / 3.0) * math.Pi * s.Radius * s.Radius * s.Radius
}

func (s *Sphere) ComputeInertia(mass float64) mgl64.Mat3 {
	i := (2.0 / 5.0) * mass * s.Radius * s.Radius

	return mgl64.Diag3(mgl64.Vec3{i, i, i})
}

// Plane represents an infinite plane collision shape
// The plane is defined by the equation: Normal · p + Distance = 0
// where Normal is the plane's normal vector (must be normalized)
type Plane struct {
	Normal   mgl64.Vec3
	Distance float64
	aabb     AABB
}

func (p *Plane) Type() ShapeType {
	return ShapeTypePlane
}

// SignedDistance returns the distance of point above the plane
func (p *Plane) SignedDistance(point mgl64.Vec3) float64 {
	return p.Normal.Dot(point) + p.Distance
}

func (p *Plane) ComputeAABB(transform Transform) {
	const thickness = 1.0
	const infinity = 1e10

	planePoint := p.Normal.Mul(-p.Distance)
	min := planePoint.Sub(p.Normal.Mul(thickness)).Add(transform.Position)
	max := planePoint.Add(transform.Position)

	// only an axis aligned normal bounds the plane on that axis
	for axis := 0; axis < 3; axis++ {
		if math.Abs(p.Normal[axis]) < 1.0 {
			min[axis] = -infinity
			max[axis] = infinity
		}
	}

	p.aabb = AABB{Min: min, Max: max}
}

func (p *Plane) GetAABB() AABB {
	return p.aabb
}

func (p *Plane) ComputeVolume() float64 {
	return math.Inf(1)
}

func (p *Plane) ComputeInertia(mass float64) mgl64.Mat3 {
	return mgl64.Mat3{}
}
