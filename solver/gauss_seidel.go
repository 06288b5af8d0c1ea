package solver

import (
	"math"

	"github.com/akmonengine/impulse/constraint"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// wheels need a traction budget above this fraction of the body mass
	wheelMinPspare = 0.01
	// a wheel slips when its tangential impulse exceeds the normal share by this factor
	wheelSlip = 1.01
	// sticky contacts keep resolving tangential drift while Pspare is above this
	stickyMinPspare = 0.0001
	// steep tangential drift falls back to a normal impulse below this cos²
	steepDrift = 0.04
	// the bouncer stops when the energy grows past this factor
	gsEnergyGrowth = 3
)

type gsResult struct {
	iterations int
	bounces    int
	bounced    int
	energy     float64
}

// gaussSeidel bounces contacts one at a time, applying each impulse to the
// body working copies immediately, until a pass bounces nothing, the bounce
// budget is spent or the energy grows too much. The result is written back
// to the body momenta.
func (a *arena) gaussSeidel(settings *Settings, Ebefore float64) gsResult {
	var res gsResult
	e := settings.AccuracyMC
	minSep2 := settings.MinSeparationSpeed * settings.MinSeparationSpeed

	for {
		bounced := 0

		for i := range a.contacts {
			cw := &a.contacts[i]

			if cw.count >= cw.threshold {
				if dP, ok := a.bounce(cw, e, minSep2); ok {
					if cw.usesC() {
						dP = cw.C.Mul3x1(dP)
					}
					a.push(cw, dP)
					cw.applied = cw.applied.Add(dP)
					a.contacts[cw.countDst].count++
					bounced++
					res.bounces++
				}
			}
			cw.count = 0
		}

		res.energy = 0
		for i := range a.bodies {
			bw := &a.bodies[i]
			res.energy += bw.v.LenSqr()*bw.M + bw.L.Dot(bw.w)
		}
		res.bounces += (len(a.contacts) - bounced) >> 4
		res.iterations++
		res.bounced = bounced

		if bounced == 0 || res.bounces >= settings.MaxMCIters || res.energy >= Ebefore*gsEnergyGrowth {
			break
		}
	}

	for i := range a.bodies {
		bw := &a.bodies[i]
		if bw.M > 0 {
			bw.P = bw.v.Mul(bw.M)
			bw.L = bw.I.Mul3x1(bw.w)
		}
	}

	return res
}

// bounce computes the impulse that resolves cw, if it needs one
func (a *arena) bounce(cw *contactWork, e, minSep2 float64) (mgl64.Vec3, bool) {
	n := cw.n
	dp := a.relativeVelocity(cw).Sub(cw.vreq)
	if cw.usesC() {
		dp = cw.C.Mul3x1(dp)
	}

	switch {
	case cw.isConstraint():
		if cw.C.Mul3x1(dp).LenSqr() > e*e {
			return cw.Kinv.Mul3x1(dp.Mul(-1)), true
		}

	case !cw.flags.Has(constraint.FlagWheel):
		vrel := dp.Dot(n)
		drift2 := dp.Sub(n.Mul(vrel)).LenSqr()
		if vrel >= 0 || (math.Abs(vrel) <= e && (cw.pspare <= stickyMinPspare || drift2 <= minSep2)) {
			break
		}

		if cw.friction <= constraint.FrictionlessThreshold {
			return normalStop(cw.K, n, vrel)
		}
		return a.frictionalStop(cw, dp, vrel)

	default:
		if dp.LenSqr() <= minSep2 || cw.pspare <= a.bodies[cw.body[0]].M*wheelMinPspare {
			break
		}

		dP, ok := fullStop(cw.K, dp)
		if !ok {
			break
		}
		dPn := dP.Dot(n) * cw.friction
		dPtang := tangential(dP, n)
		if dPtang > dPn*wheelSlip {
			if cw.pspare*0.5 < dPtang-dPn {
				dP = dP.Mul(cw.pspare * 0.5 / (dPtang - dPn))
				cw.pspare *= 0.5
			} else {
				cw.pspare -= dPtang - dPn
			}
			dP = dP.Sub(n.Mul(math.Min(0, dP.Dot(n))))
		}
		return dP, true
	}

	return mgl64.Vec3{}, false
}

// frictionalStop stops the contact fully while the friction budget lasts,
// then lets it slide along its tangential drift
func (a *arena) frictionalStop(cw *contactWork, dp mgl64.Vec3, vrel float64) (mgl64.Vec3, bool) {
	n := cw.n

	dP, ok := fullStop(cw.K, dp)
	if !ok {
		return normalStop(cw.K, n, vrel)
	}
	cw.pspare += dP.Dot(n) * cw.friction
	dPtang := tangential(dP, n)
	cw.pspare -= dPtang

	if cw.pspare >= 0 {
		return dP, true
	}

	if dPtang > 0 {
		dp = dp.Add(dp.Sub(n.Mul(vrel)).Mul(cw.pspare / dPtang))
	}
	cw.pspare = 0

	Kdp := cw.K.Mul3x1(dp)
	kn := Kdp.Dot(n)
	if kn*kn < Kdp.LenSqr()*steepDrift {
		return normalStop(cw.K, n, vrel)
	}
	return dp.Mul(-vrel / kn), true
}

// fullStop returns the impulse along -dp that minimizes the energy of the
// relative velocity dp
func fullStop(K mgl64.Mat3, dp mgl64.Vec3) (mgl64.Vec3, bool) {
	dpKdp := dp.Dot(K.Mul3x1(dp))
	if dpKdp <= 1e-20 {
		return mgl64.Vec3{}, false
	}

	return dp.Mul(-dp.LenSqr() / dpKdp), true
}

// normalStop returns the impulse along n cancelling the normal velocity vrel
func normalStop(K mgl64.Mat3, n mgl64.Vec3, vrel float64) (mgl64.Vec3, bool) {
	inv := constraint.InverseNormalMass(K, n)
	if inv == 0 {
		return mgl64.Vec3{}, false
	}

	return n.Mul(-vrel * inv), true
}

func tangential(dP, n mgl64.Vec3) float64 {
	dPn := dP.Dot(n)
	return math.Sqrt(math.Max(0, dP.LenSqr()-dPn*dPn))
}

// push applies dP to the body working copies of cw
func (a *arena) push(cw *contactWork, dP mgl64.Vec3) {
	b0, b1 := &a.bodies[cw.body[0]], &a.bodies[cw.body[1]]

	if cw.isAngular() {
		b0.w = b0.w.Add(b0.Iinv.Mul3x1(dP))
		b0.L = b0.L.Add(dP)
		b1.w = b1.w.Sub(b1.Iinv.Mul3x1(dP))
		b1.L = b1.L.Sub(dP)
		return
	}

	t0 := cw.r0.Cross(dP)
	b0.v = b0.v.Add(dP.Mul(b0.Minv))
	b0.w = b0.w.Add(b0.Iinv.Mul3x1(t0))
	b0.L = b0.L.Add(t0)

	t1 := cw.r1.Cross(dP)
	b1.v = b1.v.Sub(dP.Mul(b1.Minv))
	b1.w = b1.w.Sub(b1.Iinv.Mul3x1(t1))
	b1.L = b1.L.Sub(t1)
}
