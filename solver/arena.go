package solver

import (
	"github.com/akmonengine/impulse/actor"
	"github.com/akmonengine/impulse/constraint"
	"github.com/go-gl/mathgl/mgl64"
)

// lcpClass is the treatment of a contact inside the LCP refinement
type lcpClass int

const (
	lcp1DOF lcpClass = iota
	lcp2DOF
	lcpAngular
	lcpFrictionless
	lcpSticky
	lcp3DOF
	lcpClassCount
)

// contactWork is the per-step working copy of a registered contact
type contactWork struct {
	c    *constraint.Contact
	body [2]int

	r0, r1 mgl64.Vec3 // lever arms on body 0 and 1
	n      mgl64.Vec3
	vreq   mgl64.Vec3
	K      mgl64.Mat3
	Kinv   mgl64.Mat3
	C      mgl64.Mat3

	flags     constraint.Flags
	friction  float64
	pspare    float64
	threshold int
	count     int
	countDst  int

	// applied is the impulse committed to the bodies this step
	applied mgl64.Vec3

	// CG scratch
	vrel  mgl64.Vec3
	r     mgl64.Vec3
	rinit mgl64.Vec3
	dP    mgl64.Vec3
	dPn   float64
	P     mgl64.Vec3

	// separating is set when the contact opened before pre-CG ran
	separating bool

	// LCP state
	excluded bool
	scalar   bool
	solveFor bool
	bounced  bool
	class    lcpClass
	kinv00   float64

	// unprojection side: the body pulled by this contact
	side int
}

func (cw *contactWork) isConstraint() bool {
	return cw.flags.Has(constraint.FlagConstraint)
}

func (cw *contactWork) isAngular() bool {
	return cw.flags.Has(constraint.FlagAngular)
}

func (cw *contactWork) usesC() bool {
	return cw.flags.Has(constraint.FlagUseC)
}

// bodyWork is the per-step working copy of a body
type bodyWork struct {
	rb *actor.RigidBody

	pos  mgl64.Vec3
	v, w mgl64.Vec3
	P, L mgl64.Vec3
	M    float64
	Minv float64
	Iinv mgl64.Mat3
	I    mgl64.Mat3 // world inertia

	// force and torque accumulators of the CG stages
	F, T mgl64.Vec3

	P0, L0 mgl64.Vec3
}

// refresh rederives v and w from the momenta of a dynamic body
func (bw *bodyWork) refresh() {
	if bw.M > 0 {
		bw.v = bw.P.Mul(bw.Minv)
		bw.w = bw.Iinv.Mul3x1(bw.L)
	}
}

type buddy struct {
	body  int
	vreq  mgl64.Vec3
	flags constraint.Flags
}

type sandwich struct {
	middle    int
	bread     [2]int
	processed bool
}

// graphInfo is the per-body state of the unprojection graph
type graphInfo struct {
	buddies    []buddy
	sandwiches []int
	followers  []int
	minv       float64
	level      int
	stamp      int
	idx        int
	vUnproj    mgl64.Vec3
	wUnproj    mgl64.Vec3
}

// arena holds every working array of one solver; slices are reused between steps
type arena struct {
	contacts []contactWork
	bodies   []bodyWork
	infos    []graphInfo

	sandwiches []sandwich
	order      []int
	bodyOrder  []int
	sorted     []int
	vector     []int
	group      []int
	pending    []int

	bodyIndex    map[*actor.RigidBody]int
	contactIndex map[*constraint.Contact]int

	followerCap int
	nFollowers  int
	lastStamp   int
	loops       int
}

func newArena(capacity int) *arena {
	return &arena{
		contacts:     make([]contactWork, 0, capacity),
		bodies:       make([]bodyWork, 0, capacity*2),
		bodyIndex:    make(map[*actor.RigidBody]int, capacity*2),
		contactIndex: make(map[*constraint.Contact]int, capacity),
		followerCap:  capacity * 4,
	}
}

func (a *arena) reset() {
	a.contacts = a.contacts[:0]
	a.bodies = a.bodies[:0]
	a.sandwiches = a.sandwiches[:0]
	clear(a.bodyIndex)
	clear(a.contactIndex)
	a.nFollowers = 0
	a.lastStamp = 0
	a.loops = 0
}

// addBody returns the index of rb, appending it in first-seen order
func (a *arena) addBody(rb *actor.RigidBody) int {
	if i, ok := a.bodyIndex[rb]; ok {
		return i
	}

	i := len(a.bodies)
	a.bodyIndex[rb] = i
	a.bodies = append(a.bodies, bodyWork{
		rb:   rb,
		pos:  rb.Transform.Position,
		v:    rb.Velocity,
		w:    rb.AngularVelocity,
		P:    rb.P,
		L:    rb.L,
		M:    rb.M,
		Minv: rb.Minv,
		Iinv: rb.Iinv,
		I:    rb.InertiaWorld(),
		P0:   rb.P,
		L0:   rb.L,
	})

	return i
}

func (a *arena) clearForces() {
	for i := range a.bodies {
		a.bodies[i].F = mgl64.Vec3{}
		a.bodies[i].T = mgl64.Vec3{}
	}
}

// accumulate adds impulse dP of cw into the force and torque accumulators
func (a *arena) accumulate(cw *contactWork, dP mgl64.Vec3) {
	b0, b1 := &a.bodies[cw.body[0]], &a.bodies[cw.body[1]]

	if cw.isAngular() {
		b0.T = b0.T.Add(dP)
		b1.T = b1.T.Sub(dP)
		return
	}

	b0.F = b0.F.Add(dP)
	b0.T = b0.T.Add(cw.r0.Cross(dP))
	b1.F = b1.F.Sub(dP)
	b1.T = b1.T.Sub(cw.r1.Cross(dP))
}

// response returns the relative velocity change produced by the accumulators
func (a *arena) response(cw *contactWork) mgl64.Vec3 {
	b0, b1 := &a.bodies[cw.body[0]], &a.bodies[cw.body[1]]

	if cw.isAngular() {
		return b0.Iinv.Mul3x1(b0.T).Sub(b1.Iinv.Mul3x1(b1.T))
	}

	v0 := b0.F.Mul(b0.Minv).Add(b0.Iinv.Mul3x1(b0.T).Cross(cw.r0))
	v1 := b1.F.Mul(b1.Minv).Add(b1.Iinv.Mul3x1(b1.T).Cross(cw.r1))

	return v0.Sub(v1)
}

// relativeVelocity returns the current relative velocity of cw's bodies
func (a *arena) relativeVelocity(cw *contactWork) mgl64.Vec3 {
	b0, b1 := &a.bodies[cw.body[0]], &a.bodies[cw.body[1]]

	if cw.isAngular() {
		return b0.w.Sub(b1.w)
	}

	return b0.v.Add(b0.w.Cross(cw.r0)).Sub(b1.v.Add(b1.w.Cross(cw.r1)))
}

// trialVelocity is relativeVelocity with the accumulators applied on top
func (a *arena) trialVelocity(cw *contactWork) mgl64.Vec3 {
	b0, b1 := &a.bodies[cw.body[0]], &a.bodies[cw.body[1]]
	w0 := b0.w.Add(b0.Iinv.Mul3x1(b0.T))
	w1 := b1.w.Add(b1.Iinv.Mul3x1(b1.T))

	if cw.isAngular() {
		return w0.Sub(w1)
	}

	v0 := b0.v.Add(b0.F.Mul(b0.Minv)).Add(w0.Cross(cw.r0))
	v1 := b1.v.Add(b1.F.Mul(b1.Minv)).Add(w1.Cross(cw.r1))

	return v0.Sub(v1)
}

// applyImpulse adds dP to the momenta of cw's bodies and rederives velocities
func (a *arena) applyImpulse(cw *contactWork, dP mgl64.Vec3) {
	b0, b1 := &a.bodies[cw.body[0]], &a.bodies[cw.body[1]]

	if cw.isAngular() {
		b0.L = b0.L.Add(dP)
		b1.L = b1.L.Sub(dP)
	} else {
		b0.P = b0.P.Add(dP)
		b0.L = b0.L.Add(cw.r0.Cross(dP))
		b1.P = b1.P.Sub(dP)
		b1.L = b1.L.Sub(cw.r1.Cross(dP))
	}

	b0.refresh()
	b1.refresh()
}

func (a *arena) energy() float64 {
	var e float64
	for i := range a.bodies {
		e += a.bodies[i].P.Dot(a.bodies[i].v) + a.bodies[i].L.Dot(a.bodies[i].w)
	}
	return e
}
