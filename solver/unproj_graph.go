package solver

import (
	"math"

	"github.com/akmonengine/impulse/constraint"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	levelMask = 0xFFFF
	unleveled = -1
)

// buildGraph links every pair of bodies sharing a solved contact with a
// required separation as buddies, and records each body squeezed between
// two buddies pulling it in opposite directions as a sandwich.
func (a *arena) buildGraph() {
	if cap(a.infos) < len(a.bodies) {
		a.infos = make([]graphInfo, len(a.bodies))
	}
	a.infos = a.infos[:len(a.bodies)]
	for i := range a.infos {
		info := &a.infos[i]
		info.buddies = info.buddies[:0]
		info.sandwiches = info.sandwiches[:0]
		info.followers = info.followers[:0]
		info.minv = a.bodies[i].Minv
		info.level = unleveled
		info.stamp = 0
		info.vUnproj = mgl64.Vec3{}
		info.wUnproj = mgl64.Vec3{}
	}
	a.sandwiches = a.sandwiches[:0]
	a.nFollowers = 0
	a.lastStamp = 0
	a.loops = 0

	a.order = a.order[:0]
	for i := range a.contacts {
		a.order = append(a.order, i)
	}

	for start := 0; start < len(a.order); {
		body0 := a.contacts[a.order[start]].body[0]
		end := start + 1
		for end < len(a.order) && a.contacts[a.order[end]].body[0] == body0 {
			end++
		}
		quickSort(a.order[start:end], func(i, j int) bool {
			return a.contacts[i].body[1] < a.contacts[j].body[1]
		})

		for i := start; i < end; {
			body1 := a.contacts[a.order[i]].body[1]
			var vreq mgl64.Vec3
			var flags constraint.Flags
			found := false

			j := i
			for ; j < end && a.contacts[a.order[j]].body[1] == body1; j++ {
				cw := &a.contacts[a.order[j]]
				if cw.solveFor && cw.vreq.LenSqr() > 0 {
					vreq = vreq.Add(cw.vreq)
					flags |= cw.flags
					found = true
				}
			}
			if found {
				a.infos[body0].buddies = append(a.infos[body0].buddies, buddy{body: body1, vreq: vreq, flags: flags})
				a.infos[body1].buddies = append(a.infos[body1].buddies, buddy{body: body0, vreq: vreq.Mul(-1), flags: flags})
			}
			i = j
		}
		start = end
	}

	// buddies are walked newest first
	for i := range a.infos {
		buddies := a.infos[i].buddies
		for k0 := len(buddies) - 1; k0 >= 0; k0-- {
			for k1 := k0 - 1; k1 >= 0; k1-- {
				b0, b1 := buddies[k0], buddies[k1]
				if b0.vreq.Dot(b1.vreq) < 0 && (b0.flags^b1.flags)&constraint.FlagAngular == 0 {
					a.infos[i].sandwiches = append(a.infos[i].sandwiches, len(a.sandwiches))
					a.sandwiches = append(a.sandwiches, sandwich{middle: i, bread: [2]int{b0.body, b1.body}})
				}
			}
		}
	}
}

// lightestBread returns the bread with the smallest graph inverse mass
func (a *arena) lightestBread() (int, float64) {
	j, minMinv := 0, 1e10
	for _, s := range a.sandwiches {
		for _, b := range s.bread {
			if a.infos[b].minv < minMinv {
				j, minMinv = b, a.infos[b].minv
			}
		}
	}
	return j, minMinv
}

// assignLevels orders the bodies for unprojection. Anchors start at level
// 0 and every body pushed by a lower-level body sits at least one level
// above it. Bodies the graph never reaches end above all others; static
// bodies are always at level 0.
func (a *arena) assignLevels() int {
	j, minMinv := a.lightestBread()
	if minMinv > 0 {
		// no sandwich rests on a static body: bodies touching one act as anchors
		for i := range a.contacts {
			b0, b1 := &a.bodies[a.contacts[i].body[0]], &a.bodies[a.contacts[i].body[1]]
			if b0.Minv*b1.Minv != 0 {
				continue
			}
			if b0.Minv == 0 {
				a.infos[a.contacts[i].body[1]].minv = 0
			} else {
				a.infos[a.contacts[i].body[0]].minv = 0
			}
		}
		j, _ = a.lightestBread()
	}

	for i := range a.sandwiches {
		s := &a.sandwiches[i]
		var side int
		switch {
		case j == s.bread[0] || a.infos[s.bread[0]].minv == 0:
			side = 0
		case j == s.bread[1] || a.infos[s.bread[1]].minv == 0:
			side = 1
		default:
			continue
		}
		a.infos[s.bread[side]].level = 0
		a.infos[s.middle].level = max(1, a.infos[s.middle].level)
		a.traceRoute(s.middle, s.bread[side])
	}

	for pass := 0; ; pass++ {
		a.relaxSandwiches()
		if pass > 0 {
			break
		}

		for i := range a.sandwiches {
			s := &a.sandwiches[i]
			if a.infos[s.middle].level&a.infos[s.bread[0]].level&a.infos[s.bread[1]].level != unleveled {
				continue
			}
			s.processed = true
			a.infos[s.middle].level = 0
			a.infos[s.bread[0]].level = 1
			a.infos[s.bread[1]].level = 1
			a.addRouteFollower(s.middle, s.bread[0])
			a.addRouteFollower(s.middle, s.bread[1])
		}
	}

	maxLevel := 0
	for i := range a.infos {
		maxLevel = max(maxLevel, a.infos[i].level)
	}
	maxLevel++
	for i := range a.infos {
		if a.infos[i].level == unleveled {
			a.infos[i].level = maxLevel
		}
		if a.bodies[i].Minv == 0 {
			a.infos[i].level = 0
		}
	}

	top := 0
	for i := range a.infos {
		top = max(top, a.infos[i].level)
	}
	return top
}

// relaxSandwiches processes the pending sandwiches lowest level first,
// leveling their unleveled members from the leveled ones
func (a *arena) relaxSandwiches() {
	for {
		j, minLevel := -1, math.MaxInt
		for i := range a.sandwiches {
			s := &a.sandwiches[i]
			if s.processed {
				continue
			}
			level := min(a.infos[s.middle].level&levelMask, a.infos[s.bread[0]].level&levelMask, a.infos[s.bread[1]].level&levelMask)
			if level < minLevel {
				j, minLevel = i, level
			}
		}
		if j < 0 {
			return
		}

		s := &a.sandwiches[j]
		s.processed = true
		middle, bread := s.middle, s.bread

		var unset int
		if a.infos[bread[0]].level < 0 {
			unset |= 1
		}
		if a.infos[bread[1]].level < 0 {
			unset |= 2
		}
		if a.infos[middle].level < 0 {
			unset |= 4
		}

		switch leveled := unset ^ 7; leveled {
		case 7:
			side := a.lowerBread(bread)
			if a.infos[middle].level >= a.infos[bread[side]].level {
				a.addRouteFollower(bread[side], middle)
			}
		case 3:
			a.infos[middle].level = 1
			if minLevel > 1 {
				a.addRouteFollower(middle, bread[0])
				a.addRouteFollower(middle, bread[1])
			} else {
				side := a.lowerBread(bread)
				a.addRouteFollower(bread[side], middle)
			}
		case 4:
			a.infos[bread[0]].level = a.infos[middle].level + 1
			a.infos[bread[1]].level = a.infos[middle].level + 1
			a.addRouteFollower(middle, bread[0])
			a.addRouteFollower(middle, bread[1])
		case 0:
		default:
			side := leveled >> 1 & 1
			a.infos[middle].level = min(a.infos[middle].level&levelMask, minLevel+1)
			if leveled&2 != 0 {
				a.addRouteFollower(middle, bread[side^1])
			} else {
				a.addRouteFollower(bread[side], middle)
			}
		}
	}
}

// lowerBread returns 1 when bread 1 sits strictly below bread 0
func (a *arena) lowerBread(bread [2]int) int {
	if a.infos[bread[1]].level < a.infos[bread[0]].level {
		return 1
	}
	return 0
}

// traceRoute levels the far bread of every sandwich around middle that
// contains bread, and makes it follow middle
func (a *arena) traceRoute(middle, bread int) {
	sandwiches := a.infos[middle].sandwiches
	for k := len(sandwiches) - 1; k >= 0; k-- {
		s := &a.sandwiches[sandwiches[k]]
		if s.middle != middle {
			continue
		}

		var far int
		switch bread {
		case s.bread[0]:
			far = s.bread[1]
		case s.bread[1]:
			far = s.bread[0]
		default:
			continue
		}
		s.processed = true
		a.updateLevel(far, a.infos[middle].level+1)
		a.addRouteFollower(middle, far)
	}
}

// addRouteFollower makes follower stay above body and traces the route on
// from follower
func (a *arena) addRouteFollower(body, follower int) {
	for _, f := range a.infos[body].followers {
		if f == follower {
			return
		}
	}
	if a.nFollowers >= a.followerCap {
		return
	}

	a.infos[body].followers = append(a.infos[body].followers, follower)
	a.nFollowers++
	a.traceRoute(follower, body)
}

// updateLevel raises body to level, dragging its followers along
func (a *arena) updateLevel(body, level int) {
	info := &a.infos[body]
	switch {
	case info.level == unleveled:
		info.level = level
	case info.level >= level:
	default:
		info.level = level
		a.lastStamp++
		a.updateFollowers(body, a.lastStamp)
	}
}

// updateFollowers lifts every follower of body above it, walking the
// follower graph depth first. A body reached twice under one stamp closes a
// loop and is not walked again.
func (a *arena) updateFollowers(body, stamp int) {
	a.pending = append(a.pending[:0], body)
	for len(a.pending) > 0 {
		b := a.pending[len(a.pending)-1]
		a.pending = a.pending[:len(a.pending)-1]

		info := &a.infos[b]
		if info.stamp == stamp {
			a.loops++
			continue
		}
		info.stamp = stamp

		for _, f := range info.followers {
			if a.infos[f].level <= info.level {
				a.infos[f].level = info.level + 1
				a.pending = append(a.pending, f)
			}
		}
	}
}
