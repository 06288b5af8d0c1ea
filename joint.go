package impulse

import (
	"github.com/akmonengine/impulse/actor"
	"github.com/akmonengine/impulse/constraint"
	"github.com/go-gl/mathgl/mgl64"
)

// Joint is a ball joint: it pins an anchor fixed in BodyA to an anchor fixed
// in BodyB. Anchors are expressed in each body's local frame.
type Joint struct {
	BodyA   *actor.RigidBody
	BodyB   *actor.RigidBody
	AnchorA mgl64.Vec3
	AnchorB mgl64.Vec3
}

// NewJoint creates a ball joint between a and b at the world point pivot
func NewJoint(a, b *actor.RigidBody, pivot mgl64.Vec3) *Joint {
	return &Joint{
		BodyA:   a,
		BodyB:   b,
		AnchorA: toLocal(a.Transform, pivot),
		AnchorB: toLocal(b.Transform, pivot),
	}
}

func toLocal(t actor.Transform, point mgl64.Vec3) mgl64.Vec3 {
	return t.InverseRotation.Rotate(point.Sub(t.Position))
}

func toWorld(t actor.Transform, local mgl64.Vec3) mgl64.Vec3 {
	return t.Rotation.Rotate(local).Add(t.Position)
}

// Drift returns the world offset of anchor B from anchor A
func (j *Joint) Drift() mgl64.Vec3 {
	return toWorld(j.BodyB.Transform, j.AnchorB).Sub(toWorld(j.BodyA.Transform, j.AnchorA))
}

// contact builds the 3-dof constraint holding the anchors together. Its
// required relative velocity closes ERP of the drift per step.
func (j *Joint) contact(dt, maxSpeed float64) *constraint.Contact {
	ptA := toWorld(j.BodyA.Transform, j.AnchorA)
	ptB := toWorld(j.BodyB.Transform, j.AnchorB)

	c := constraint.NewContact(j.BodyA, j.BodyB, ptA, ptB, mgl64.Vec3{0, 0, 1}, 0)
	c.Flags |= constraint.FlagConstraint3DOF

	drift := ptB.Sub(ptA)
	if d := drift.Len(); d > 0 && dt > 0 {
		c.N = drift.Mul(-1 / d)
		c.Vreq = c.N.Mul(-min(d*ERP/dt, maxSpeed))
	}

	return c
}
