package solver

import (
	"github.com/akmonengine/impulse/constraint"
	"github.com/go-gl/mathgl/mgl64"
)

// setup builds the working arrays from the registered contacts and returns
// the energy before the solve, floored at nBodies·minSeparationSpeed².
func (a *arena) setup(registered []*constraint.Contact, settings *Settings) float64 {
	a.reset()

	for i, c := range registered {
		if _, ok := a.contactIndex[c]; !ok {
			a.contactIndex[c] = i
		}
	}

	for i, c := range registered {
		cw := contactWork{
			c:         c,
			body:      [2]int{a.addBody(c.Body[0]), a.addBody(c.Body[1])},
			n:         c.N,
			vreq:      c.Vreq,
			K:         c.K,
			flags:     c.Flags,
			friction:  c.Friction,
			threshold: c.Threshold,
			countDst:  i,
		}
		cw.r0 = c.Pt[0].Sub(a.bodies[cw.body[0]].pos)
		cw.r1 = c.Pt[1].Sub(a.bodies[cw.body[1]].pos)

		if c.Flags.Has(constraint.FlagWheel) {
			cw.pspare = c.Pspare
		}
		if c.Flags.Has(constraint.FlagMaintainCount) && c.SharedCounter != nil {
			if j, ok := a.contactIndex[c.SharedCounter]; ok {
				cw.countDst = j
			}
		}

		prepared := constraint.Prepare(c)
		cw.Kinv = prepared.Kinv
		cw.C = prepared.C

		a.contacts = append(a.contacts, cw)
	}

	for i := range a.bodies {
		rb := a.bodies[i].rb
		rb.VUnproj = mgl64.Vec3{}
		rb.WUnproj = mgl64.Vec3{}
		rb.Eunproj = 0
	}

	floor := float64(len(a.bodies)) * settings.MinSeparationSpeed * settings.MinSeparationSpeed

	return max(a.energy(), floor)
}

// finish writes the working state back to the bodies and contacts
func (a *arena) finish(dt float64, unprojected bool) {
	for i := range a.bodies {
		bw := &a.bodies[i]
		rb := bw.rb

		rb.Fcollision = bw.P.Sub(bw.P0).Mul(1 / dt)
		rb.Tcollision = bw.L.Sub(bw.L0).Mul(1 / dt)

		if bw.M > 0 {
			rb.P, rb.L = bw.P, bw.L
			rb.Velocity, rb.AngularVelocity = bw.v, bw.w
		}

		if !unprojected {
			continue
		}
		info := &a.infos[i]
		rb.VUnproj = info.vUnproj
		rb.WUnproj = info.wUnproj
		L := bw.I.Mul3x1(info.wUnproj)
		rb.Eunproj = (info.vUnproj.LenSqr() + info.wUnproj.Dot(L)*bw.Minv) * 0.5
		if rb.Eunproj > 0 {
			rb.Transform.Advance(info.vUnproj, info.wUnproj, dt)
		}
	}

	for i := range a.contacts {
		cw := &a.contacts[i]
		c := cw.c

		c.P = cw.applied
		c.Pspare = cw.pspare
		c.Vrel = a.relativeVelocity(cw)
		c.Bounced = cw.bounced
		c.Resolved = cw.flags
		if cw.excluded {
			c.Resolved = 0
		}
	}
}
