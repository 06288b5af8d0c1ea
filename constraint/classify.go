package constraint

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Class is the solver treatment a contact gets
type Class int

const (
	Class3DOF Class = iota
	Class1DOF
	Class2DOF
	ClassFrictionless
	ClassFrictional
	ClassWheel
)

func (c Class) String() string {
	switch c {
	case Class3DOF:
		return "3dof"
	case Class1DOF:
		return "1dof"
	case Class2DOF:
		return "2dof"
	case ClassFrictionless:
		return "frictionless"
	case ClassFrictional:
		return "frictional"
	case ClassWheel:
		return "wheel"
	}
	return "unknown"
}

// Classify picks the class of a contact. Constraint bits take precedence
// in the order 3-dof, 1-dof, 2-dof.
func Classify(flags Flags, friction float64) Class {
	switch {
	case flags.Has(FlagConstraint3DOF):
		return Class3DOF
	case flags.Has(FlagConstraint1DOF):
		return Class1DOF
	case flags.Has(FlagConstraint2DOF):
		return Class2DOF
	case flags.Has(FlagWheel):
		return ClassWheel
	case friction < FrictionlessThreshold:
		return ClassFrictionless
	}
	return ClassFrictional
}

// Setup is the per-step preparation of one contact
type Setup struct {
	Class Class
	Kinv  mgl64.Mat3
	C     mgl64.Mat3
}

// Prepare classifies c and derives its inverse contact matrix and projector.
// c is not modified.
func Prepare(c *Contact) Setup {
	s := Setup{
		Class: Classify(c.Flags, c.Friction),
		C:     c.C,
	}
	if !c.Flags.Has(FlagUseC) {
		s.C = mgl64.Ident3()
	}

	n := c.N
	nn := n.OuterProd3(n)

	switch s.Class {
	case Class3DOF:
		s.Kinv = c.K.Inv()
	case Class1DOF:
		s.Kinv = tangentInverse(c.K, n)
		s.C = mgl64.Ident3().Sub(nn)
	case Class2DOF:
		s.C = nn
		s.Kinv = nn.Mul(InverseNormalMass(c.K, n))
	default:
		if c.Friction < FrictionlessThreshold {
			s.C = nn
		}
	}

	return s
}

// InverseNormalMass returns 1/(nᵀ·K·n), or 0 when K has no response along n
func InverseNormalMass(K mgl64.Mat3, n mgl64.Vec3) float64 {
	t := n.Dot(K.Mul3x1(n))
	if t <= 1e-20 {
		return 0
	}

	return 1 / t
}

// tangentInverse inverts K restricted to the plane orthogonal to n
func tangentInverse(K mgl64.Mat3, n mgl64.Vec3) mgl64.Mat3 {
	axes := [2]mgl64.Vec3{}
	axes[0], axes[1] = TangentBasis(n)

	var m [2][2]float64
	for j := range axes {
		for k := range axes {
			m[j][k] = axes[j].Dot(K.Mul3x1(axes[k]))
		}
	}

	det := m[0][0]*m[1][1] - m[0][1]*m[1][0]
	if math.Abs(det) < 1e-20 {
		return mgl64.Mat3{}
	}
	inv := [2][2]float64{
		{m[1][1] / det, -m[0][1] / det},
		{-m[1][0] / det, m[0][0] / det},
	}

	var Kinv mgl64.Mat3
	for j := range axes {
		for k := range axes {
			Kinv = Kinv.Add(axes[j].OuterProd3(axes[k]).Mul(inv[j][k]))
		}
	}

	return Kinv
}
