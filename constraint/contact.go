package constraint

import (
	"github.com/akmonengine/impulse/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// Flags select how a contact is solved
type Flags uint32

const (
	// FlagConstraint3DOF locks the full relative velocity to Vreq
	FlagConstraint3DOF Flags = 1 << iota
	// FlagConstraint1DOF locks the tangent-plane relative velocity
	FlagConstraint1DOF
	// FlagConstraint2DOF locks the normal component of the relative velocity
	FlagConstraint2DOF
	// FlagAngular makes the contact act on angular velocities only
	FlagAngular
	// FlagWheel marks a traction contact with a Pspare budget
	FlagWheel
	// FlagUseC projects velocities and impulses through the contact's C
	FlagUseC
	// FlagMaintainCount routes bounce counts to SharedCounter
	FlagMaintainCount
)

// FlagConstraint is any equality constraint class
const FlagConstraint = FlagConstraint3DOF | FlagConstraint1DOF | FlagConstraint2DOF

func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

// Contact is one contact or equality constraint between two bodies.
// The normal N points from Body[1] toward Body[0]; impulses are applied to
// Body[0] and their opposite to Body[1].
type Contact struct {
	Body [2]*actor.RigidBody
	Pt   [2]mgl64.Vec3
	N    mgl64.Vec3

	// K maps an impulse at the contact to a relative velocity change
	K mgl64.Mat3
	// C is a projector, only read with FlagUseC
	C mgl64.Mat3

	// Vreq is the required relative velocity (separation or constraint target)
	Vreq     mgl64.Vec3
	Friction float64
	Flags    Flags

	// Threshold is the bounce count the contact needs before it is active; 0 is always active
	Threshold int
	// SharedCounter receives this contact's bounce counts when FlagMaintainCount is set
	SharedCounter *Contact

	// Pspare is the traction budget of a wheel on input, the stickiness flag on output
	Pspare float64

	// Outputs of the last solve
	P        mgl64.Vec3
	Vrel     mgl64.Vec3
	Bounced  bool
	Resolved Flags
}

// NewContact creates a contact between two bodies and computes its K
func NewContact(body0, body1 *actor.RigidBody, pt0, pt1, normal mgl64.Vec3, friction float64) *Contact {
	c := &Contact{
		Body:     [2]*actor.RigidBody{body0, body1},
		Pt:       [2]mgl64.Vec3{pt0, pt1},
		N:        normal,
		Friction: friction,
		C:        mgl64.Ident3(),
	}
	c.BuildK()

	return c
}

// NewAngularContact creates a contact acting on the bodies' relative rotation
func NewAngularContact(body0, body1 *actor.RigidBody, axis mgl64.Vec3, flags Flags) *Contact {
	c := &Contact{
		Body:  [2]*actor.RigidBody{body0, body1},
		Pt:    [2]mgl64.Vec3{body0.Transform.Position, body1.Transform.Position},
		N:     axis,
		Flags: flags | FlagAngular,
		C:     mgl64.Ident3(),
	}
	c.BuildK()

	return c
}

// BuildK recomputes K from the bodies' current inertia and lever arms
func (c *Contact) BuildK() {
	if c.Flags.Has(FlagAngular) {
		c.K = c.Body[0].Iinv.Add(c.Body[1].Iinv)
		return
	}

	var K mgl64.Mat3
	K = c.Body[0].ContactMatrix(c.Arm(0), K)
	c.K = c.Body[1].ContactMatrix(c.Arm(1), K)
}

// Arm returns the lever arm of the contact on body side
func (c *Contact) Arm(side int) mgl64.Vec3 {
	return c.Pt[side].Sub(c.Body[side].Transform.Position)
}

// RelativeVelocity returns v0 at Pt[0] minus v1 at Pt[1], or w0 − w1 for angular contacts
func (c *Contact) RelativeVelocity() mgl64.Vec3 {
	if c.Flags.Has(FlagAngular) {
		return c.Body[0].AngularVelocity.Sub(c.Body[1].AngularVelocity)
	}

	return c.Body[0].VelocityAtContact(c.Pt[0]).Sub(c.Body[1].VelocityAtContact(c.Pt[1]))
}

// IsConstraint reports whether the contact is an equality constraint
func (c *Contact) IsConstraint() bool {
	return c.Flags.Has(FlagConstraint)
}
