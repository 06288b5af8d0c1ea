package solver

import (
	"math"

	"github.com/akmonengine/impulse/constraint"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	lcpMaxAlpha     = 50
	lcpMinPAp       = 1e-10
	lcpMinIters     = 5
	lcpMinItersLast = 10
	// separating contacts are pushed back in by this multiple of the accuracy
	lcpReentry = 3
)

type lcpResult struct {
	ran        bool
	iterations int
	committed  bool
	rejected   bool
	vmax       float64
	angular    bool
}

// reclassify settles the class of every contact once the bouncer is done:
// gated contacts leave the active set, and wheels become 3-dof constraints
// while they keep traction.
func (a *arena) reclassify() {
	for i := range a.contacts {
		cw := &a.contacts[i]
		cw.excluded = cw.threshold != 0
		cw.bounced = false
		if !cw.flags.Has(constraint.FlagWheel) {
			continue
		}
		if cw.pspare > a.bodies[cw.body[0]].M*wheelMinPspare {
			cw.flags = cw.flags&constraint.FlagUseC | constraint.FlagConstraint3DOF
			cw.Kinv = cw.K.Inv()
		} else {
			cw.excluded = true
		}
	}
}

// prepareLCP computes the initial residuals of the reclassified contacts. It
// returns the number of contacts whose remaining error exceeds what the
// bodies' softness absorbs over dt.
func (a *arena) prepareLCP(dt float64) int {
	bounced := 0

	for i := range a.contacts {
		cw := &a.contacts[i]
		b0, b1 := &a.bodies[cw.body[0]], &a.bodies[cw.body[1]]
		n := cw.n

		cw.vrel = a.relativeVelocity(cw)
		if cw.usesC() {
			cw.vrel = cw.C.Mul3x1(cw.vrel)
		}
		vreq := cw.vreq

		cw.kinv00 = constraint.InverseNormalMass(cw.K, n)
		cw.solveFor = false
		if cw.excluded {
			continue
		}

		switch {
		case cw.flags.Has(constraint.FlagConstraint1DOF):
			cw.vrel = cw.vrel.Sub(n.Mul(cw.vrel.Dot(n)))
			cw.rinit = cw.vrel
			cw.scalar = false
		case cw.flags.Has(constraint.FlagConstraint2DOF) || !(cw.flags.Has(constraint.FlagConstraint3DOF) || cw.pspare > 0):
			vn := n.Dot(cw.vrel)
			cw.rinit = mgl64.Vec3{vn, 0, 0}
			vreq = mgl64.Vec3{n.Dot(vreq), 0, 0}
			cw.vrel = n.Mul(vn)
			cw.scalar = true
		default:
			cw.rinit = cw.vrel
			if !cw.isConstraint() {
				cw.Kinv = cw.K.Inv()
			}
			cw.scalar = false
		}
		cw.rinit = cw.rinit.Mul(-1)

		if cw.isConstraint() || cw.vrel.Dot(n) < 0 {
			side := 0
			if cw.isAngular() {
				side = 1
			}
			soft := b0.rb.Softness[side] + b1.rb.Softness[side]
			if soft*soft*0.25 < cw.rinit.Add(vreq).LenSqr()*dt*dt {
				cw.bounced = true
				bounced++
			}
		}
	}

	return bounced
}

// classify sorts the contacts that need solving into the LCP classes and
// reports whether any contact entered or left the active set
func (a *arena) classify() (counts [lcpClassCount]int, stateChanged bool) {
	for i := range a.contacts {
		cw := &a.contacts[i]
		if cw.excluded {
			continue
		}

		was := cw.solveFor
		cw.solveFor = true
		switch {
		case cw.flags.Has(constraint.FlagConstraint1DOF):
			cw.class = lcp1DOF
		case cw.flags.Has(constraint.FlagConstraint2DOF):
			cw.class = lcp2DOF
		case cw.flags.Has(constraint.FlagConstraint3DOF):
			cw.class = lcp3DOF
		default:
			if cw.vrel.Dot(cw.n) < 0 {
				switch {
				case cw.isAngular():
					cw.class = lcpAngular
				case cw.pspare > 0:
					cw.class = lcpSticky
				default:
					cw.class = lcpFrictionless
				}
			} else {
				cw.solveFor = false
			}
			if was != cw.solveFor {
				stateChanged = true
			}
		}

		if cw.solveFor {
			counts[cw.class]++
		}
	}

	return counts, stateChanged
}

// scalarClass reports whether a class resists along the normal only
func scalarClass(class lcpClass) bool {
	return class >= lcp2DOF && class <= lcpFrictionless
}

// refineLCP runs the segmented conjugate gradient over the bounced contacts.
// Each outer iteration re-evaluates which contacts approach and re-solves
// until the active set settles. The impulses are committed only when the
// resulting velocity changes stay within the configured bounds.
func (a *arena) refineLCP(settings *Settings) lcpResult {
	res := lcpResult{ran: true}
	e := settings.AccuracyLCPCG
	var vmax float64

	cgiter := settings.MaxLCPCGIters
	for {
		counts, stateChanged := a.classify()
		if !stateChanged && vmax < e*e {
			break
		}

		iter := counts[lcp1DOF]*2 + counts[lcp2DOF] + counts[lcpAngular] + counts[lcpFrictionless] +
			(counts[lcpSticky]+counts[lcp3DOF])*3

		var bounds [lcpClassCount]int
		n := 0
		for class := range counts {
			n += counts[class]
			bounds[class] = n
		}
		n1dof, nFric0 := bounds[lcp1DOF], bounds[lcpFrictionless]

		if cap(a.sorted) < n {
			a.sorted = make([]int, n)
		}
		a.sorted = a.sorted[:n]
		slots := bounds
		var r2 float64
		for i := range a.contacts {
			cw := &a.contacts[i]
			if cw.excluded || !cw.solveFor {
				continue
			}
			slots[cw.class]--
			a.sorted[slots[cw.class]] = i

			if scalarClass(cw.class) {
				s := cw.scalarResidual()
				cw.r = mgl64.Vec3{s, 0, 0}
				cw.dPn = cw.kinv00 * s
				cw.vrel = mgl64.Vec3{cw.dPn, 0, 0}
				r2 += cw.dPn * s
				cw.dP = cw.n.Mul(cw.dPn)
			} else {
				cw.r = cw.rinit
				cw.vrel = cw.Kinv.Mul3x1(cw.r)
				if cw.usesC() {
					cw.vrel = cw.C.Mul3x1(cw.vrel)
				}
				r2 += cw.vrel.Dot(cw.rinit)
				cw.dP = cw.vrel
			}
			cw.P = mgl64.Vec3{}
		}

		if cgiter == 1 || !stateChanged {
			iter = min(iter*2, settings.MaxLCPCGSubitersFinal)
			if iter*n > settings.MaxLCPCGMicroitersFinal {
				iter = max(lcpMinItersLast, settings.MaxLCPCGMicroitersFinal/n)
			}
		} else {
			iter = min(iter, settings.MaxLCPCGSubiters)
			if iter*n > settings.MaxLCPCGMicroiters {
				iter = max(lcpMinIters, settings.MaxLCPCGMicroiters/n)
			}
		}

		noImprovement := 0
		for iter > 0 {
			a.clearForces()
			for _, i := range a.sorted {
				a.accumulate(&a.contacts[i], a.contacts[i].dP)
			}

			var pAp float64
			for k, i := range a.sorted {
				cw := &a.contacts[i]
				cw.vrel = a.response(cw)
				switch {
				case k < n1dof:
					cw.vrel = cw.vrel.Sub(cw.n.Mul(cw.vrel.Dot(cw.n)))
					pAp += cw.vrel.Dot(cw.dP)
				case k < nFric0:
					cw.vrel[0] = cw.n.Dot(cw.vrel)
					pAp += cw.vrel[0] * cw.dPn
				default:
					pAp += cw.vrel.Dot(cw.dP)
				}
			}

			alpha := math.Min(lcpMaxAlpha, r2/math.Max(lcpMinPAp, pAp))
			var r2new float64
			for _, i := range a.vectorContacts(n1dof, nFric0) {
				cw := &a.contacts[i]
				cw.r = cw.r.Sub(cw.vrel.Mul(alpha))
				cw.vrel = cw.Kinv.Mul3x1(cw.r)
				if cw.usesC() {
					cw.vrel = cw.C.Mul3x1(cw.vrel)
				}
				r2new += cw.vrel.Dot(cw.r)
				cw.P = cw.P.Add(cw.dP.Mul(alpha))
			}
			for _, i := range a.sorted[n1dof:nFric0] {
				cw := &a.contacts[i]
				cw.r[0] -= cw.vrel[0] * alpha
				cw.vrel[0] = cw.kinv00 * cw.r[0]
				r2new += cw.vrel[0] * cw.r[0]
				cw.P[0] += cw.dPn * alpha
			}

			noImprovement = max(0, noImprovement-sgnnz(r2-r2new-r2*settings.MinLCPCGImprovement))
			beta := 0.0
			if r2 != 0 {
				beta = r2new / r2
			}
			r2 = r2new
			vmax = 0
			for _, i := range a.vectorContacts(n1dof, nFric0) {
				cw := &a.contacts[i]
				cw.dP = cw.dP.Mul(beta).Add(cw.vrel)
				vmax = math.Max(vmax, cw.r.LenSqr())
			}
			for _, i := range a.sorted[n1dof:nFric0] {
				cw := &a.contacts[i]
				cw.dPn = cw.dPn*beta + cw.vrel[0]
				cw.dP = cw.n.Mul(cw.dPn)
				vmax = math.Max(vmax, cw.r[0]*cw.r[0])
			}

			res.iterations++
			iter--
			if vmax <= e*e || (noImprovement > settings.MaxLCPCGFruitlessIters &&
				vmax < settings.AccuracyLCPCGNoImprovement*settings.AccuracyLCPCGNoImprovement) {
				break
			}
		}

		for _, i := range a.sorted[n1dof:nFric0] {
			a.contacts[i].P = a.contacts[i].n.Mul(a.contacts[i].P[0])
		}
		if !stateChanged {
			break
		}

		a.clearForces()
		for _, i := range a.sorted {
			a.accumulate(&a.contacts[i], a.contacts[i].P)
		}
		for i := range a.contacts {
			cw := &a.contacts[i]
			if cw.solveFor || cw.excluded {
				continue
			}
			cw.vrel = a.trialVelocity(cw)
			if cw.usesC() {
				cw.vrel = cw.C.Mul3x1(cw.vrel)
			}
		}
		for _, i := range a.sorted[bounds[lcp2DOF]:bounds[lcpSticky]] {
			cw := &a.contacts[i]
			if cgiter > 2 {
				b0, b1 := &a.bodies[cw.body[0]], &a.bodies[cw.body[1]]
				cw.vrel = cw.P.Mul(-math.Max(b0.Minv, b1.Minv)).Sub(cw.n.Mul(e * lcpReentry))
			} else {
				cw.vrel = cw.n.Mul(-1)
			}
		}

		cgiter--
		if cgiter <= 0 {
			break
		}
	}

	if cgiter >= settings.MaxLCPCGIters {
		return res
	}

	var wmax, vlin float64
	for _, i := range a.sorted {
		cw := &a.contacts[i]
		b0, b1 := &a.bodies[cw.body[0]], &a.bodies[cw.body[1]]
		if cw.isAngular() {
			wmax = math.Max(wmax, b0.Iinv.Mul3x1(cw.P).LenSqr())
			wmax = math.Max(wmax, b1.Iinv.Mul3x1(cw.P).LenSqr())
		} else {
			P2 := cw.P.LenSqr()
			vlin = math.Max(vlin, b0.Minv*b0.Minv*P2)
			vlin = math.Max(vlin, b1.Minv*b1.Minv*P2)
		}
	}

	switch {
	case math.IsNaN(wmax) || wmax > settings.MaxWCG*settings.MaxWCG:
		res.rejected, res.angular, res.vmax = true, true, math.Sqrt(wmax)
	case math.IsNaN(vlin) || vlin > settings.MaxVCG*settings.MaxVCG:
		res.rejected, res.vmax = true, math.Sqrt(vlin)
	default:
		for _, i := range a.sorted {
			cw := &a.contacts[i]
			a.applyImpulse(cw, cw.P)
			cw.applied = cw.applied.Add(cw.P)
		}
		res.committed, res.vmax = true, math.Sqrt(math.Max(wmax, vlin))
	}

	return res
}

// scalarResidual is the normal component of the initial residual
func (cw *contactWork) scalarResidual() float64 {
	if cw.scalar {
		return cw.rinit[0]
	}
	return cw.n.Dot(cw.rinit)
}

// vectorContacts returns the sorted contacts solved on all three axes, in
// solve order
func (a *arena) vectorContacts(n1dof, nFric0 int) []int {
	a.vector = append(a.vector[:0], a.sorted[nFric0:]...)
	a.vector = append(a.vector, a.sorted[:n1dof]...)
	return a.vector
}

func sgnnz(x float64) int {
	if x < 0 {
		return -1
	}
	return 1
}
