package constraint

import (
	"math"

	"github.com/akmonengine/impulse/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// FrictionlessThreshold is the friction below which a contact only resists along its normal
const FrictionlessThreshold = 0.01

// ComputeFriction combines two materials with the geometric mean
func ComputeFriction(matA, matB actor.Material) float64 {
	return math.Sqrt(matA.Friction * matB.Friction)
}

// TangentBasis returns two unit vectors orthogonal to normal and to each other
func TangentBasis(normal mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	var tangent1 mgl64.Vec3
	if math.Abs(normal.X()) > 0.9 {
		tangent1 = mgl64.Vec3{0, 1, 0}
	} else {
		tangent1 = mgl64.Vec3{1, 0, 0}
	}

	tangent1 = tangent1.Sub(normal.Mul(tangent1.Dot(normal))).Normalize()
	tangent2 := normal.Cross(tangent1)

	return tangent1, tangent2
}
