package solver

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Acceptance bounds of a pre-CG result: the largest pulling normal velocity,
// the friction cone slack, the tolerated approach speed (positional and
// angular), the residual to reach and the allowed energy growth.
const (
	preCGMaxPull        = -0.05
	preCGConeSlack      = 0.001
	preCGMinVrel        = -0.004
	preCGMinVrelAngular = -0.015
	preCGMaxResidual    = 0.01
	preCGEnergyGrowth   = 1.5
)

// preCG solves all contacts at once as a linear system with conjugate
// gradients. It commits only a result that pulls no contact together, stays in
// the friction cone and keeps the energy bounded; on failure the bodies are
// left untouched.
func (a *arena) preCG(settings *Settings, Ebefore float64) bool {
	e := settings.AccuracyMC
	var r2, vmax float64

	for i := range a.contacts {
		cw := &a.contacts[i]
		vrel := a.relativeVelocity(cw)
		cw.separating = vrel.Dot(cw.n) >= 0
		cw.r = cw.vreq.Sub(cw.C.Mul3x1(vrel))
		cw.dP = cw.r
		cw.P = mgl64.Vec3{}
		r2 += cw.r.LenSqr()
		vmax = math.Max(vmax, cw.r.LenSqr())
	}

	for iter := len(a.contacts) * 6; ; {
		a.clearForces()
		for i := range a.contacts {
			a.accumulate(&a.contacts[i], a.contacts[i].dP)
		}

		var pAp float64
		for i := range a.contacts {
			cw := &a.contacts[i]
			cw.vrel = cw.C.Mul3x1(a.response(cw))
			pAp += cw.vrel.Dot(cw.dP)
		}
		if pAp*pAp < 1e-30 {
			break
		}

		alpha := r2 / pAp
		var r2new float64
		for i := range a.contacts {
			cw := &a.contacts[i]
			cw.r = cw.r.Sub(cw.vrel.Mul(alpha))
			r2new += cw.r.LenSqr()
			cw.P = cw.P.Add(cw.dP.Mul(alpha))
		}
		if r2new > r2*500 {
			break
		}

		beta := r2new / r2
		r2 = r2new
		vmax = 0
		for i := range a.contacts {
			cw := &a.contacts[i]
			cw.dP = cw.dP.Mul(beta).Add(cw.r)
			vmax = math.Max(vmax, cw.r.LenSqr())
		}

		iter--
		if iter <= 0 || vmax <= e*e {
			break
		}
	}

	a.clearForces()
	for i := range a.contacts {
		a.accumulate(&a.contacts[i], a.contacts[i].P)
	}

	var Eafter float64
	for i := range a.bodies {
		bw := &a.bodies[i]
		Eafter += bw.P.Add(bw.F).Dot(bw.v.Add(bw.F.Mul(bw.Minv))) +
			bw.L.Add(bw.T).Dot(bw.w.Add(bw.Iinv.Mul3x1(bw.T)))
	}

	for i := range a.contacts {
		if !a.acceptablePreCG(&a.contacts[i]) {
			return false
		}
	}
	if Eafter >= Ebefore*preCGEnergyGrowth || vmax >= preCGMaxResidual*preCGMaxResidual {
		return false
	}

	for i := range a.bodies {
		bw := &a.bodies[i]
		bw.P = bw.P.Add(bw.F)
		bw.L = bw.L.Add(bw.T)
		bw.refresh()
	}
	for i := range a.contacts {
		a.contacts[i].applied = a.contacts[i].P
		a.contacts[i].pspare = 1
	}

	return true
}

func (a *arena) acceptablePreCG(cw *contactWork) bool {
	if cw.isConstraint() {
		return true
	}

	b0, b1 := &a.bodies[cw.body[0]], &a.bodies[cw.body[1]]
	n := cw.n
	dPn := cw.P.Dot(n)
	if cw.separating && dPn < 0 {
		return false
	}
	dPtang2 := cw.P.Sub(n.Mul(dPn)).LenSqr()

	var dp mgl64.Vec3
	vdiff := preCGMinVrel
	if cw.isAngular() {
		dp = b0.Iinv.Mul3x1(cw.P).Add(b1.Iinv.Mul3x1(cw.P))
		vdiff = preCGMinVrelAngular
	} else {
		dp = cw.P.Mul(b0.Minv + b1.Minv)
	}

	friction := dPn * cw.friction
	return dp.Dot(n) >= preCGMaxPull &&
		dPtang2 <= friction*friction+preCGConeSlack &&
		cw.r.Add(cw.vreq).Dot(n) >= vdiff
}
