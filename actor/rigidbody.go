package actor

import (
	"github.com/go-gl/mathgl/mgl64"
)

// BodyType represents the type of rigid body
type BodyType int

const (
	// BodyTypeDynamic bodies are moved by impulses and gravity
	BodyTypeDynamic BodyType = iota

	// BodyTypeStatic bodies have zero inverse mass and never move (ground, walls)
	BodyTypeStatic
)

const (
	// SoftnessPositional is the default positional error tolerance of a body
	SoftnessPositional = 0.00015
	// SoftnessAngular is the default angular error tolerance of a body
	SoftnessAngular = 0.001
)

type Material struct {
	Density  float64
	Friction float64
}

// ContactOwner is notified when a contact touching one of its bodies is
// registered with a solver. Returning false vetoes the contact.
type ContactOwner interface {
	OnRegisterContact(body, peer *RigidBody, point mgl64.Vec3, side int) bool
}

// RigidBody represents a rigid body in the physics simulation.
// P and L are the source of truth; Velocity and AngularVelocity are derived.
type RigidBody struct {
	Transform Transform

	M      float64
	Minv   float64
	Volume float64

	// Ibody is the body-frame inertia, Iinv the world-frame inverse
	Ibody    mgl64.Mat3
	IbodyInv mgl64.Mat3
	Iinv     mgl64.Mat3

	P               mgl64.Vec3 // linear momentum
	L               mgl64.Vec3 // angular momentum
	Velocity        mgl64.Vec3 // Linear velocity (m/s)
	AngularVelocity mgl64.Vec3 // rad/s

	// Fcollision and Tcollision are the average contact force and torque of the last solve
	Fcollision mgl64.Vec3
	Tcollision mgl64.Vec3

	// Softness holds the positional and angular error tolerances
	Softness [2]float64

	// position correction of the last solve, applied to the transform only
	VUnproj mgl64.Vec3
	WUnproj mgl64.Vec3
	Eunproj float64

	Material Material
	BodyType BodyType
	Shape    Shape
	Owner    ContactOwner
}

// NewRigidBody creates a new rigid body with the given properties
// density is used to calculate mass for dynamic bodies (ignored for static)
func NewRigidBody(transform Transform, shape Shape, bodyType BodyType, density float64) *RigidBody {
	rb := &RigidBody{
		Transform: transform,
		Shape:     shape,
		BodyType:  bodyType,
		Softness:  [2]float64{SoftnessPositional, SoftnessAngular},
		Material:  Material{Density: density},
	}
	rb.Volume = shape.ComputeVolume()

	if bodyType == BodyTypeDynamic {
		rb.setMass(ComputeMass(shape, density), shape.ComputeInertia(ComputeMass(shape, density)))
	}

	rb.UpdateState()
	shape.ComputeAABB(rb.Transform)

	return rb
}

// Create sets up a body from explicit data: center, diagonal body inertia per
// unit density, orientation, volume and mass. mass 0 makes the body static.
func Create(center, ibody mgl64.Vec3, q mgl64.Quat, volume, mass float64) *RigidBody {
	rb := &RigidBody{
		Transform: NewTransformAt(center, q),
		Volume:    volume,
		Softness:  [2]float64{SoftnessPositional, SoftnessAngular},
		BodyType:  BodyTypeStatic,
	}

	if mass > 0 {
		density := 1.0
		if volume > 0 {
			density = mass / volume
		}
		rb.BodyType = BodyTypeDynamic
		rb.Material.Density = density
		rb.setMass(mass, mgl64.Diag3(ibody.Mul(density)))
	}

	rb.UpdateState()

	return rb
}

func (rb *RigidBody) setMass(mass float64, inertia mgl64.Mat3) {
	if mass <= 0 {
		rb.M, rb.Minv = 0, 0
		rb.Ibody, rb.IbodyInv = mgl64.Mat3{}, mgl64.Mat3{}
		return
	}

	rb.M = mass
	rb.Minv = 1 / mass
	rb.Ibody = inertia
	rb.IbodyInv = inertia.Inv()
}

// IsStatic reports whether the body has zero inverse mass
func (rb *RigidBody) IsStatic() bool {
	return rb.Minv == 0
}

// UpdateState recomputes the world inverse inertia and, for dynamic bodies,
// the velocities from the momenta.
func (rb *RigidBody) UpdateState() {
	rb.Iinv = worldTensor(rb.Transform.Matrix(), rb.IbodyInv)

	if rb.Minv > 0 {
		rb.Velocity = rb.P.Mul(rb.Minv)
		rb.AngularVelocity = rb.Iinv.Mul3x1(rb.L)
	}
}

// Step integrates position and orientation over dt
func (rb *RigidBody) Step(dt float64) {
	rb.UpdateState()
	rb.Transform.Advance(rb.Velocity, rb.AngularVelocity, dt)

	rb.Iinv = worldTensor(rb.Transform.Matrix(), rb.IbodyInv)
	if rb.Minv > 0 {
		rb.AngularVelocity = rb.Iinv.Mul3x1(rb.L)
	}

	if rb.Shape != nil {
		rb.Shape.ComputeAABB(rb.Transform)
	}
}

// InertiaWorld returns R·Ibody·Rᵀ
func (rb *RigidBody) InertiaWorld() mgl64.Mat3 {
	return worldTensor(rb.Transform.Matrix(), rb.Ibody)
}

// SetVelocity sets v and w and the matching momenta
func (rb *RigidBody) SetVelocity(v, w mgl64.Vec3) {
	rb.Velocity = v
	rb.AngularVelocity = w
	rb.P = v.Mul(rb.M)
	rb.L = rb.InertiaWorld().Mul3x1(w)
}

// ApplyGravity adds g·M·dt to the momentum of a dynamic body
func (rb *RigidBody) ApplyGravity(gravity mgl64.Vec3, dt float64) {
	if rb.Minv == 0 {
		return
	}

	rb.P = rb.P.Add(gravity.Mul(rb.M * dt))
	rb.Velocity = rb.P.Mul(rb.Minv)
}

// ContactMatrix adds the body's response at lever arm r to K:
// K += Minv·I − [r]x·Iinv·[r]x
func (rb *RigidBody) ContactMatrix(r mgl64.Vec3, K mgl64.Mat3) mgl64.Mat3 {
	rx := CrossMatrix(r)
	K = K.Add(mgl64.Ident3().Mul(rb.Minv))

	return K.Sub(rx.Mul3(rb.Iinv).Mul3(rx))
}

// VelocityAtContact returns v + w × (point - position)
func (rb *RigidBody) VelocityAtContact(point mgl64.Vec3) mgl64.Vec3 {
	r := point.Sub(rb.Transform.Position)

	return rb.Velocity.Add(rb.AngularVelocity.Cross(r))
}

// AddImpulseAtContact applies impulse dP at a world point
func (rb *RigidBody) AddImpulseAtContact(point, impulse mgl64.Vec3) {
	r := point.Sub(rb.Transform.Position)
	rb.P = rb.P.Add(impulse)
	rb.L = rb.L.Add(r.Cross(impulse))

	if rb.Minv > 0 {
		rb.Velocity = rb.P.Mul(rb.Minv)
		rb.AngularVelocity = rb.Iinv.Mul3x1(rb.L)
	}
}

// Energy returns P·v + L·w, twice the kinetic energy
func (rb *RigidBody) Energy() float64 {
	return rb.P.Dot(rb.Velocity) + rb.L.Dot(rb.AngularVelocity)
}

// AcceptContact asks the owner, if any, whether a contact may be registered
func (rb *RigidBody) AcceptContact(peer *RigidBody, point mgl64.Vec3, side int) bool {
	if rb.Owner == nil {
		return true
	}

	return rb.Owner.OnRegisterContact(rb, peer, point, side)
}
