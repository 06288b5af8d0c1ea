// Package scene builds the named demo worlds used by the command line and
// the engine tests.
package scene

import (
	"errors"
	"fmt"
	"sort"

	"github.com/akmonengine/impulse"
	"github.com/akmonengine/impulse/actor"
	"github.com/akmonengine/impulse/constraint"
	"github.com/go-gl/mathgl/mgl64"
)

var ErrUnknownScene = errors.New("unknown scene")

// Scene is a named recipe populating a world
type Scene struct {
	Name        string
	Description string
	build       func(w *impulse.World)
}

var scenes = map[string]Scene{
	"stack": {
		Name:        "stack",
		Description: "a column of spheres and a box resting on the ground",
		build:       buildStack,
	},
	"sandwich": {
		Name:        "sandwich",
		Description: "a sphere squeezed between a floor and a ceiling",
		build:       buildSandwich,
	},
	"pendulum": {
		Name:        "pendulum",
		Description: "a double pendulum hanging from ball joints",
		build:       buildPendulum,
	},
	"wheel": {
		Name:        "wheel",
		Description: "a spinning wheel with a limited traction budget",
		build:       buildWheel,
	},
}

// Names returns the scene names in alphabetical order
func Names() []string {
	names := make([]string, 0, len(scenes))
	for name := range scenes {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Lookup returns the scene called name
func Lookup(name string) (Scene, error) {
	s, ok := scenes[name]
	if !ok {
		return Scene{}, fmt.Errorf("%w: %q", ErrUnknownScene, name)
	}

	return s, nil
}

// Build creates a world with opts and populates it with the scene called name
func Build(name string, opts ...impulse.Option) (*impulse.World, error) {
	s, err := Lookup(name)
	if err != nil {
		return nil, err
	}

	w := impulse.NewWorld(opts...)
	s.build(w)

	return w, nil
}

func ground(friction float64) *actor.RigidBody {
	body := actor.NewRigidBody(
		actor.NewTransform(),
		&actor.Plane{Normal: mgl64.Vec3{0, 0, 1}, Distance: 0},
		actor.BodyTypeStatic,
		0,
	)
	body.Material.Friction = friction

	return body
}

func sphere(position mgl64.Vec3, radius, density, friction float64) *actor.RigidBody {
	body := actor.NewRigidBody(
		actor.NewTransformAt(position, mgl64.QuatIdent()),
		&actor.Sphere{Radius: radius},
		actor.BodyTypeDynamic,
		density,
	)
	body.Material.Friction = friction

	return body
}

func buildStack(w *impulse.World) {
	w.AddBody(ground(0.6))
	for i := range 3 {
		w.AddBody(sphere(mgl64.Vec3{0, 0, 0.5 + float64(i)}, 0.5, 1, 0.6))
	}

	box := actor.NewRigidBody(
		actor.NewTransformAt(mgl64.Vec3{2, 0, 0.5}, mgl64.QuatIdent()),
		&actor.Box{HalfExtents: mgl64.Vec3{0.5, 0.5, 0.5}},
		actor.BodyTypeDynamic,
		1,
	)
	box.Material.Friction = 0.6
	w.AddBody(box)
}

func buildSandwich(w *impulse.World) {
	w.AddBody(ground(0.3))

	ceiling := actor.NewRigidBody(
		actor.NewTransform(),
		&actor.Plane{Normal: mgl64.Vec3{0, 0, -1}, Distance: 1},
		actor.BodyTypeStatic,
		0,
	)
	w.AddBody(ceiling)

	// 0.05 deeper than the gap on each side
	w.AddBody(sphere(mgl64.Vec3{0, 0, 0.5}, 0.55, 1, 0.3))
	w.AddBody(sphere(mgl64.Vec3{3, 0, 0.45}, 0.45, 1, 0.3))
}

func buildPendulum(w *impulse.World) {
	anchor := actor.Create(mgl64.Vec3{0, 0, 3}, mgl64.Vec3{}, mgl64.QuatIdent(), 0, 0)
	first := sphere(mgl64.Vec3{1, 0, 3}, 0.15, 1, 0)
	second := sphere(mgl64.Vec3{2, 0, 3}, 0.15, 1, 0)

	w.AddBody(anchor)
	w.AddBody(first)
	w.AddBody(second)
	w.AddJoint(impulse.NewJoint(anchor, first, anchor.Transform.Position))
	w.AddJoint(impulse.NewJoint(first, second, first.Transform.Position))
}

// wheelTraction is the traction budget of the wheel per unit mass
const wheelTraction = 0.2

func buildWheel(w *impulse.World) {
	floor := ground(1)
	wheel := sphere(mgl64.Vec3{0, 0, 0.5}, 0.5, 1, 1)
	wheel.SetVelocity(mgl64.Vec3{}, mgl64.Vec3{0, 20, 0})

	w.AddBody(floor)
	w.AddBody(wheel)

	w.ContactModifier = func(c *constraint.Contact) {
		if c.Body[0] != wheel {
			return
		}
		c.Flags |= constraint.FlagWheel
		c.Pspare = wheel.M * wheelTraction
	}
}
