package solver

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// contacts below this required separation are not unprojected
	unprojMinVreq = 0.01
	// positional contacts whose effective inverse mass falls below this
	// fraction of the body's are skipped
	unprojMinResponse = 0.1
	unprojMaxAlpha    = 20
)

type unprojResult struct {
	bodies   int
	maxLevel int
	loops    int
}

// unproject computes per-body correction velocities resolving the required
// separations the velocity stages left over. Bodies are visited by level and
// each one is solved against the already corrected bodies below it.
func (a *arena) unproject(settings *Settings) unprojResult {
	a.buildGraph()
	res := unprojResult{maxLevel: a.assignLevels()}

	a.bodyOrder = a.bodyOrder[:0]
	for i := range a.bodies {
		a.bodyOrder = append(a.bodyOrder, i)
	}
	quickSort(a.bodyOrder, func(i, j int) bool {
		return a.infos[i].level < a.infos[j].level
	})
	for idx, i := range a.bodyOrder {
		a.infos[i].idx = idx
	}
	quickSort(a.order, func(i, j int) bool {
		return a.infos[a.pulled(i)].idx < a.infos[a.pulled(j)].idx
	})

	for start := 0; start < len(a.order); {
		body := a.pulled(a.order[start])
		end := start + 1
		for end < len(a.order) && a.pulled(a.order[end]) == body {
			end++
		}
		a.unprojectBody(body, a.order[start:end], settings)
		start = end
	}

	for i := range a.infos {
		if a.infos[i].vUnproj.LenSqr() > 0 || a.infos[i].wUnproj.LenSqr() > 0 {
			res.bodies++
		}
	}
	res.loops = a.loops

	return res
}

// pulled returns the body of contact i on the higher level, the one its
// unprojection moves
func (a *arena) pulled(i int) int {
	cw := &a.contacts[i]
	return cw.body[a.pulledSide(cw)]
}

func (a *arena) pulledSide(cw *contactWork) int {
	if a.infos[cw.body[0]].level < a.infos[cw.body[1]].level {
		return 1
	}
	return 0
}

// arm returns the lever arm of cw on the given side
func (cw *contactWork) arm(side int) mgl64.Vec3 {
	if side == 1 {
		return cw.r1
	}
	return cw.r0
}

// unprojectBody solves the correction of one body against its contacts with
// a minimal residual iteration, then clamps it
func (a *arena) unprojectBody(body int, contacts []int, settings *Settings) {
	bw := &a.bodies[body]
	info := &a.infos[body]

	nAng := 0
	a.group = a.group[:0]
	for _, i := range contacts {
		cw := &a.contacts[i]
		if !cw.solveFor || cw.vreq.LenSqr() <= unprojMinVreq*unprojMinVreq {
			cw.solveFor = false
			continue
		}

		side := a.pulledSide(cw)
		cw.side = side
		cw.vrel = cw.vreq.Mul(float64(side*2 - 1))

		vreq2 := cw.vreq.LenSqr()
		vn := cw.vreq.Dot(cw.n)
		if math.Abs(vn*vn-vreq2) < vreq2*0.01 {
			cw.dP = cw.n
		} else {
			cw.dP = cw.vreq.Normalize()
		}

		other := &a.bodies[cw.body[side^1]]
		otherInfo := &a.infos[cw.body[side^1]]
		if cw.isAngular() {
			cw.kinv00 = cw.dP.Dot(bw.Iinv.Mul3x1(cw.dP))
			if cw.kinv00 <= 1e-20 {
				cw.solveFor = false
				continue
			}
			cw.vrel = cw.vrel.Add(bw.w.Add(info.wUnproj)).Sub(other.w.Add(otherInfo.wUnproj))
			nAng++
		} else {
			rA, rB := cw.arm(side), cw.arm(side^1)
			cw.kinv00 = bw.Minv + cw.dP.Dot(bw.Iinv.Mul3x1(cw.dP.Cross(rA)).Cross(rA))
			if cw.kinv00 < bw.Minv*unprojMinResponse {
				cw.solveFor = false
				continue
			}
			cw.vrel = cw.vrel.
				Add(bw.v.Add(info.vUnproj).Add(bw.w.Add(info.wUnproj).Cross(rA))).
				Sub(other.v.Add(otherInfo.vUnproj).Add(other.w.Add(otherInfo.wUnproj).Cross(rB)))
		}
	}
	if bw.Minv == 0 {
		return
	}

	for _, angular := range [2]bool{true, false} {
		for _, i := range contacts {
			cw := &a.contacts[i]
			if !cw.solveFor || cw.isAngular() != angular {
				continue
			}
			cw.kinv00 = 1 / cw.kinv00
			cw.r[0] = -cw.vrel.Dot(cw.dP)
			cw.rinit[0] = cw.r[0]
			cw.dPn = cw.r[0] * cw.kinv00
			cw.P[0] = 0
			a.group = append(a.group, i)
		}
	}
	if len(a.group) == 0 {
		return
	}

	r2 := a.residualProduct(bw, nAng)
	for iter := len(a.group); iter > 0; {
		F, T := a.groupLoad(nAng, func(cw *contactWork) float64 { return cw.dPn })
		var pAp float64
		for k, i := range a.group {
			cw := &a.contacts[i]
			cw.vrel[0] = cw.dP.Dot(a.groupResponse(bw, cw, k < nAng, F, T))
			pAp += cw.vrel[0] * cw.vrel[0] * cw.kinv00
		}

		alpha := math.Min(unprojMaxAlpha, r2/math.Max(lcpMinPAp, pAp))
		for _, i := range a.group {
			cw := &a.contacts[i]
			cw.r[0] -= cw.vrel[0] * alpha
			cw.P[0] += cw.dPn * alpha
		}

		r2new := a.residualProduct(bw, nAng)
		beta := 0.0
		if r2 != 0 {
			beta = r2new / r2
		}
		r2 = r2new
		for _, i := range a.group {
			cw := &a.contacts[i]
			cw.dPn = cw.dPn*beta + cw.r[0]*cw.kinv00
		}

		iter--
		if r2 <= settings.MinSeparationSpeed*settings.MinSeparationSpeed {
			break
		}
	}

	F, T := a.groupLoad(nAng, func(cw *contactWork) float64 { return cw.P[0] })
	info.wUnproj = bw.Iinv.Mul3x1(T)
	info.vUnproj = F.Mul(bw.Minv)

	a.clampUnprojection(info, nAng, settings)
}

// groupLoad sums the impulses dP·scale(cw) of the current group on its body
func (a *arena) groupLoad(nAng int, scale func(cw *contactWork) float64) (F, T mgl64.Vec3) {
	for k, i := range a.group {
		cw := &a.contacts[i]
		dP := cw.dP.Mul(scale(cw))
		if k < nAng {
			T = T.Add(dP)
			continue
		}
		F = F.Add(dP)
		T = T.Add(cw.arm(cw.side).Cross(dP))
	}
	return F, T
}

func (a *arena) groupResponse(bw *bodyWork, cw *contactWork, angular bool, F, T mgl64.Vec3) mgl64.Vec3 {
	w := bw.Iinv.Mul3x1(T)
	if angular {
		return w
	}
	return F.Mul(bw.Minv).Add(w.Cross(cw.arm(cw.side)))
}

// residualProduct returns rᵀ·A·r for the group's preconditioned residual
func (a *arena) residualProduct(bw *bodyWork, nAng int) float64 {
	F, T := a.groupLoad(nAng, func(cw *contactWork) float64 { return cw.r[0] * cw.kinv00 })

	var rc float64
	for k, i := range a.group {
		cw := &a.contacts[i]
		v := a.groupResponse(bw, cw, k < nAng, F, T)
		rc += cw.dP.Dot(v) * cw.r[0] * cw.kinv00
	}
	return rc
}

// clampUnprojection bounds the correction by the largest required
// separation, itself capped by the configured maximum
func (a *arena) clampUnprojection(info *graphInfo, nAng int, settings *Settings) {
	vscale, r2max := 2.0, 1.0
	if nAng < len(a.group) {
		vscale, r2max = 1, 0
		for _, i := range a.group[nAng:] {
			cw := &a.contacts[i]
			r2max = math.Max(r2max, cw.arm(cw.side).LenSqr())
		}
	}

	var v2max float64
	for k, i := range a.group {
		r0 := a.contacts[i].rinit[0]
		if k < nAng {
			v2max = math.Max(v2max, r0*r0*r2max)
		} else {
			v2max = math.Max(v2max, r0*r0)
		}
	}
	v2max = math.Min(v2max, settings.MaxVUnproj*settings.MaxVUnproj)

	v2 := math.Max(info.vUnproj.LenSqr(), info.wUnproj.LenSqr()*r2max)
	if v2 > v2max*vscale {
		scale := math.Sqrt(v2max / v2)
		info.vUnproj = info.vUnproj.Mul(scale)
		info.wUnproj = info.wUnproj.Mul(scale)
	}
}
