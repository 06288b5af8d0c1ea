package actor

import "github.com/go-gl/mathgl/mgl64"

// smallAngle is the |w|·dt below which orientation is integrated with the
// first order quaternion derivative instead of an exact axis-angle rotation.
const smallAngle = 0.003

// Transform represents a position and orientation in 3D space
type Transform struct {
	Position        mgl64.Vec3
	Rotation        mgl64.Quat
	InverseRotation mgl64.Quat
}

// NewTransform creates an identity transform
func NewTransform() Transform {
	return Transform{
		Position:        mgl64.Vec3{0, 0, 0},
		Rotation:        mgl64.QuatIdent(),
		InverseRotation: mgl64.QuatIdent(),
	}
}

// NewTransformAt creates a transform at position with the given orientation
func NewTransformAt(position mgl64.Vec3, rotation mgl64.Quat) Transform {
	rotation = rotation.Normalize()

	return Transform{
		Position:        position,
		Rotation:        rotation,
		InverseRotation: rotation.Inverse(),
	}
}

// Matrix returns the rotation matrix R of the transform
func (t Transform) Matrix() mgl64.Mat3 {
	return t.Rotation.Mat4().Mat3()
}

// Advance moves the transform by a linear velocity v and an angular velocity w over dt
func (t *Transform) Advance(v, w mgl64.Vec3, dt float64) {
	t.Position = t.Position.Add(v.Mul(dt))
	t.Rotation = IntegrateRotation(t.Rotation, w, dt)
	t.InverseRotation = t.Rotation.Inverse()
}

// IntegrateRotation rotates q by the angular velocity w for dt and renormalizes.
func IntegrateRotation(q mgl64.Quat, w mgl64.Vec3, dt float64) mgl64.Quat {
	wlen := w.Len()

	if wlen*dt < smallAngle {
		// q' = q + ½·(0,w)·q·dt
		omegaQuat := mgl64.Quat{V: w, W: 0}
		qDot := omegaQuat.Mul(q).Scale(0.5)
		return q.Add(qDot.Scale(dt)).Normalize()
	}

	axis := w.Mul(1 / wlen)
	return mgl64.QuatRotate(wlen*dt, axis).Mul(q).Normalize()
}

// worldTensor returns R·M·Rᵀ
func worldTensor(R, m mgl64.Mat3) mgl64.Mat3 {
	return R.Mul3(m).Mul3(R.Transpose())
}

// CrossMatrix returns the skew matrix [r]x such that [r]x·v = r × v
func CrossMatrix(r mgl64.Vec3) mgl64.Mat3 {
	// column-major
	return mgl64.Mat3{
		0, r.Z(), -r.Y(),
		-r.Z(), 0, r.X(),
		r.Y(), -r.X(), 0,
	}
}
