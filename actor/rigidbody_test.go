package actor

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}

func vec3AlmostEqual(a, b mgl64.Vec3, tolerance float64) bool {
	return almostEqual(a.X(), b.X(), tolerance) &&
		almostEqual(a.Y(), b.Y(), tolerance) &&
		almostEqual(a.Z(), b.Z(), tolerance)
}

func mat3AlmostEqual(a, b mgl64.Mat3, tolerance float64) bool {
	for i := range a {
		if !almostEqual(a[i], b[i], tolerance) {
			return false
		}
	}
	return true
}

func unitBody(position mgl64.Vec3) *RigidBody {
	return Create(position, mgl64.Vec3{1, 1, 1}, mgl64.QuatIdent(), 1, 1)
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNewRigidBody_Dynamic(t *testing.T) {
	transform := NewTransform()
	transform.Position = mgl64.Vec3{1, 2, 3}
	sphere := &Sphere{Radius: 1.0}
	density := 2.0

	rb := NewRigidBody(transform, sphere, BodyTypeDynamic, density)

	expectedMass := density * sphere.ComputeVolume()
	if !almostEqual(rb.M, expectedMass, 1e-10) {
		t.Errorf("M = %v, want %v", rb.M, expectedMass)
	}
	if !almostEqual(rb.Minv, 1/expectedMass, 1e-10) {
		t.Errorf("Minv = %v, want %v", rb.Minv, 1/expectedMass)
	}
	if !mat3AlmostEqual(rb.Ibody, sphere.ComputeInertia(expectedMass), 1e-10) {
		t.Errorf("Ibody = %v, want %v", rb.Ibody, sphere.ComputeInertia(expectedMass))
	}
	if !mat3AlmostEqual(rb.Ibody.Mul3(rb.IbodyInv), mgl64.Ident3(), 1e-10) {
		t.Errorf("Ibody·IbodyInv = %v, want identity", rb.Ibody.Mul3(rb.IbodyInv))
	}
	if rb.Softness != [2]float64{SoftnessPositional, SoftnessAngular} {
		t.Errorf("Softness = %v, want defaults", rb.Softness)
	}
	if rb.IsStatic() {
		t.Error("dynamic body reported as static")
	}
}

func TestNewRigidBody_Static(t *testing.T) {
	rb := NewRigidBody(NewTransform(), &Box{HalfExtents: mgl64.Vec3{1, 1, 1}}, BodyTypeStatic, 5)

	if rb.M != 0 || rb.Minv != 0 {
		t.Errorf("static body M=%v Minv=%v, want 0", rb.M, rb.Minv)
	}
	if rb.Iinv != (mgl64.Mat3{}) {
		t.Errorf("static body Iinv = %v, want zero", rb.Iinv)
	}
	if !rb.IsStatic() {
		t.Error("static body not reported as static")
	}
}

func TestNewRigidBody_PlaneIsMassless(t *testing.T) {
	rb := NewRigidBody(NewTransform(), &Plane{Normal: mgl64.Vec3{0, 1, 0}}, BodyTypeDynamic, 1)

	if rb.Minv != 0 {
		t.Errorf("plane Minv = %v, want 0", rb.Minv)
	}
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name     string
		volume   float64
		mass     float64
		ibody    mgl64.Vec3
		wantDiag mgl64.Vec3
		static   bool
	}{
		{"unit", 1, 1, mgl64.Vec3{1, 2, 3}, mgl64.Vec3{1, 2, 3}, false},
		{"density scales inertia", 2, 4, mgl64.Vec3{1, 1, 1}, mgl64.Vec3{2, 2, 2}, false},
		{"zero mass is static", 1, 0, mgl64.Vec3{1, 1, 1}, mgl64.Vec3{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := Create(mgl64.Vec3{0, 1, 0}, tt.ibody, mgl64.QuatIdent(), tt.volume, tt.mass)

			if rb.IsStatic() != tt.static {
				t.Errorf("IsStatic() = %v, want %v", rb.IsStatic(), tt.static)
			}
			if !vec3AlmostEqual(rb.Ibody.Diag(), tt.wantDiag, 1e-10) {
				t.Errorf("Ibody diag = %v, want %v", rb.Ibody.Diag(), tt.wantDiag)
			}
		})
	}
}

// =============================================================================
// State Tests
// =============================================================================

func TestUpdateState_DerivesVelocities(t *testing.T) {
	rb := Create(mgl64.Vec3{}, mgl64.Vec3{1, 2, 4}, mgl64.QuatRotate(0.7, mgl64.Vec3{0, 0, 1}), 1, 2)
	rb.P = mgl64.Vec3{2, 4, 6}
	rb.L = mgl64.Vec3{1, 1, 1}

	rb.UpdateState()

	if !vec3AlmostEqual(rb.Velocity, mgl64.Vec3{1, 2, 3}, 1e-10) {
		t.Errorf("Velocity = %v, want (1, 2, 3)", rb.Velocity)
	}
	// w = Iinv·L must be the inverse of L = I·w
	if !vec3AlmostEqual(rb.InertiaWorld().Mul3x1(rb.AngularVelocity), rb.L, 1e-9) {
		t.Errorf("I·w = %v, want L = %v", rb.InertiaWorld().Mul3x1(rb.AngularVelocity), rb.L)
	}
}

func TestUpdateState_StaticKeepsVelocity(t *testing.T) {
	rb := Create(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}, mgl64.QuatIdent(), 1, 0)
	rb.Velocity = mgl64.Vec3{1, 0, 0}
	rb.P = mgl64.Vec3{5, 5, 5}

	rb.UpdateState()

	if !vec3AlmostEqual(rb.Velocity, mgl64.Vec3{1, 0, 0}, 1e-10) {
		t.Errorf("static Velocity = %v, want unchanged", rb.Velocity)
	}
}

func TestSetVelocity_ConsistentMomenta(t *testing.T) {
	rb := Create(mgl64.Vec3{}, mgl64.Vec3{1, 2, 3}, mgl64.QuatIdent(), 1, 3)

	rb.SetVelocity(mgl64.Vec3{1, 0, 0}, mgl64.Vec3{0, 1, 0})

	if !vec3AlmostEqual(rb.P, mgl64.Vec3{3, 0, 0}, 1e-10) {
		t.Errorf("P = %v, want (3, 0, 0)", rb.P)
	}

	v, w := rb.Velocity, rb.AngularVelocity
	rb.UpdateState()
	if !vec3AlmostEqual(rb.Velocity, v, 1e-10) || !vec3AlmostEqual(rb.AngularVelocity, w, 1e-10) {
		t.Errorf("UpdateState changed velocities: v=%v w=%v", rb.Velocity, rb.AngularVelocity)
	}
}

func TestApplyGravity(t *testing.T) {
	dynamic := unitBody(mgl64.Vec3{})
	static := Create(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}, mgl64.QuatIdent(), 1, 0)
	gravity := mgl64.Vec3{0, -9.81, 0}

	dynamic.ApplyGravity(gravity, 0.5)
	static.ApplyGravity(gravity, 0.5)

	if !vec3AlmostEqual(dynamic.Velocity, mgl64.Vec3{0, -4.905, 0}, 1e-10) {
		t.Errorf("dynamic Velocity = %v, want (0, -4.905, 0)", dynamic.Velocity)
	}
	if static.P != (mgl64.Vec3{}) {
		t.Errorf("static P = %v, want zero", static.P)
	}
}

// =============================================================================
// Step Tests
// =============================================================================

func TestStep_Linear(t *testing.T) {
	rb := unitBody(mgl64.Vec3{1, 2, 3})
	rb.SetVelocity(mgl64.Vec3{1, -1, 2}, mgl64.Vec3{})

	rb.Step(0.1)

	if !vec3AlmostEqual(rb.Transform.Position, mgl64.Vec3{1.1, 1.9, 3.2}, 1e-10) {
		t.Errorf("Position = %v, want (1.1, 1.9, 3.2)", rb.Transform.Position)
	}
}

func TestStep_SmallAngle(t *testing.T) {
	rb := unitBody(mgl64.Vec3{})
	rb.SetVelocity(mgl64.Vec3{}, mgl64.Vec3{0, 0, 0.01})

	rb.Step(0.1) // |w|·dt = 0.001 < 0.003

	want := mgl64.QuatRotate(0.001, mgl64.Vec3{0, 0, 1})
	if !want.ApproxEqualThreshold(rb.Transform.Rotation, 1e-6) {
		t.Errorf("Rotation = %v, want %v", rb.Transform.Rotation, want)
	}
	if !almostEqual(rb.Transform.Rotation.Len(), 1, 1e-12) {
		t.Errorf("|q| = %v, want 1", rb.Transform.Rotation.Len())
	}
}

func TestStep_LargeAngle(t *testing.T) {
	rb := unitBody(mgl64.Vec3{})
	rb.SetVelocity(mgl64.Vec3{}, mgl64.Vec3{math.Pi, 0, 0})

	rb.Step(0.5) // quarter turn around x

	want := mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{1, 0, 0})
	if !want.ApproxEqualThreshold(rb.Transform.Rotation, 1e-10) {
		t.Errorf("Rotation = %v, want %v", rb.Transform.Rotation, want)
	}
	if !vec3AlmostEqual(rb.Transform.InverseRotation.Rotate(mgl64.Vec3{0, 0, 1}), mgl64.Vec3{0, 1, 0}, 1e-10) {
		t.Errorf("InverseRotation not updated: %v", rb.Transform.InverseRotation)
	}
}

func TestStep_AngularMomentumConserved(t *testing.T) {
	rb := Create(mgl64.Vec3{}, mgl64.Vec3{1, 2, 3}, mgl64.QuatIdent(), 1, 1)
	rb.SetVelocity(mgl64.Vec3{}, mgl64.Vec3{1, 1, 0})
	L := rb.L

	for range 100 {
		rb.Step(0.01)
	}

	if !vec3AlmostEqual(rb.L, L, 1e-12) {
		t.Errorf("L = %v, want %v", rb.L, L)
	}
	if !vec3AlmostEqual(rb.InertiaWorld().Mul3x1(rb.AngularVelocity), L, 1e-9) {
		t.Errorf("w not rederived from L after Step: I·w = %v", rb.InertiaWorld().Mul3x1(rb.AngularVelocity))
	}
}

func TestStep_StaticDoesNotMove(t *testing.T) {
	rb := NewRigidBody(NewTransform(), &Sphere{Radius: 1}, BodyTypeStatic, 1)
	rb.P = mgl64.Vec3{10, 0, 0}

	rb.Step(1)

	if rb.Transform.Position != (mgl64.Vec3{}) {
		t.Errorf("static Position = %v, want origin", rb.Transform.Position)
	}
}

// =============================================================================
// Contact Response Tests
// =============================================================================

func TestContactMatrix_SymmetricPositive(t *testing.T) {
	rb := Create(mgl64.Vec3{}, mgl64.Vec3{1, 2, 3}, mgl64.QuatRotate(0.3, mgl64.Vec3{1, 1, 0}.Normalize()), 1, 2)
	r := mgl64.Vec3{0.3, -0.5, 0.2}

	K := rb.ContactMatrix(r, mgl64.Mat3{})

	if !mat3AlmostEqual(K, K.Transpose(), 1e-12) {
		t.Errorf("K not symmetric: %v", K)
	}
	for _, d := range []mgl64.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, -1, 2}} {
		if d.Dot(K.Mul3x1(d)) <= 0 {
			t.Errorf("dᵀKd = %v for d=%v, want > 0", d.Dot(K.Mul3x1(d)), d)
		}
	}
}

func TestContactMatrix_MatchesImpulseResponse(t *testing.T) {
	rb := Create(mgl64.Vec3{1, 0, 0}, mgl64.Vec3{1, 2, 3}, mgl64.QuatIdent(), 1, 2)
	point := mgl64.Vec3{1.5, 0.5, -0.25}
	impulse := mgl64.Vec3{0.2, -1, 0.4}

	K := rb.ContactMatrix(point.Sub(rb.Transform.Position), mgl64.Mat3{})
	before := rb.VelocityAtContact(point)
	rb.AddImpulseAtContact(point, impulse)
	after := rb.VelocityAtContact(point)

	if !vec3AlmostEqual(after.Sub(before), K.Mul3x1(impulse), 1e-10) {
		t.Errorf("Δv = %v, want K·dP = %v", after.Sub(before), K.Mul3x1(impulse))
	}
}

func TestCrossMatrix(t *testing.T) {
	r := mgl64.Vec3{1, 2, 3}
	v := mgl64.Vec3{-2, 0.5, 4}

	if !vec3AlmostEqual(CrossMatrix(r).Mul3x1(v), r.Cross(v), 1e-12) {
		t.Errorf("[r]x·v = %v, want %v", CrossMatrix(r).Mul3x1(v), r.Cross(v))
	}
}

func TestEnergy(t *testing.T) {
	rb := Create(mgl64.Vec3{}, mgl64.Vec3{2, 2, 2}, mgl64.QuatIdent(), 1, 2)
	rb.SetVelocity(mgl64.Vec3{1, 0, 0}, mgl64.Vec3{0, 0, 1})

	// P·v + L·w = 2·1 + 4·1
	if !almostEqual(rb.Energy(), 6, 1e-10) {
		t.Errorf("Energy() = %v, want 6", rb.Energy())
	}
}

type vetoOwner struct {
	calls int
}

func (o *vetoOwner) OnRegisterContact(body, peer *RigidBody, point mgl64.Vec3, side int) bool {
	o.calls++
	return side == 0
}

func TestAcceptContact(t *testing.T) {
	owner := &vetoOwner{}
	rb := unitBody(mgl64.Vec3{})
	peer := unitBody(mgl64.Vec3{1, 0, 0})

	if !peer.AcceptContact(rb, mgl64.Vec3{}, 1) {
		t.Error("body without owner should accept contacts")
	}

	rb.Owner = owner
	if !rb.AcceptContact(peer, mgl64.Vec3{}, 0) {
		t.Error("owner accepted side 0, got veto")
	}
	if rb.AcceptContact(peer, mgl64.Vec3{}, 1) {
		t.Error("owner vetoed side 1, got accept")
	}
	if owner.calls != 2 {
		t.Errorf("owner calls = %d, want 2", owner.calls)
	}
}
