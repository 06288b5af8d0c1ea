package main

import (
	"fmt"

	"github.com/akmonengine/impulse"
	"github.com/akmonengine/impulse/actor"
	"github.com/akmonengine/impulse/constraint"
	"github.com/go-gl/mathgl/mgl64"
)

// ContactDebugger is given every contact before the solver sees it
type ContactDebugger interface {
	DebugContact(c *constraint.Contact)
}

// SimpleDebugger prints the contacts of the current step
type SimpleDebugger struct {
	count int
}

func (d *SimpleDebugger) DebugContact(c *constraint.Contact) {
	d.count++
	rA := c.Arm(0)
	fmt.Printf("   contact %d: point=%v normal=%v vreq=%.4f\n", d.count, c.Pt[0], c.N, c.Vreq.Dot(c.N))
	fmt.Printf("      arm on cube: %v (len=%.3f)\n", rA, rA.Len())
}

// SetupScene creates a ground plane and a tilted cube above it
func SetupScene(debugger ContactDebugger) (*impulse.World, *actor.RigidBody) {
	world := impulse.NewWorld()
	world.ContactModifier = debugger.DebugContact

	planeBody := actor.NewRigidBody(
		actor.NewTransform(),
		&actor.Plane{Normal: mgl64.Vec3{0, 0, 1}, Distance: 0},
		actor.BodyTypeStatic,
		0,
	)
	planeBody.Material.Friction = 0.5
	world.AddBody(planeBody)

	cubeBody := actor.NewRigidBody(
		actor.NewTransformAt(mgl64.Vec3{0, 0, 3}, mgl64.QuatRotate(0.4, mgl64.Vec3{1, 1, 0}.Normalize())),
		&actor.Box{HalfExtents: mgl64.Vec3{0.5, 0.5, 0.5}},
		actor.BodyTypeDynamic,
		1.0,
	)
	cubeBody.Material.Friction = 0.5
	world.AddBody(cubeBody)

	return world, cubeBody
}

func main() {
	fmt.Println("Tilted cube dropped on the ground")
	fmt.Println("=================================")

	debugger := &SimpleDebugger{}
	world, cubeBody := SetupScene(debugger)

	const dt float64 = 1.0 / 60.0
	const maxSteps int = 200

	for step := 0; step < maxSteps; step++ {
		debugger.count = 0
		fmt.Printf("--- step %d ---\n", step+1)

		report := world.Step(dt)

		fmt.Printf("   stage: %s, bounces: %d, unprojected: %d\n", report.Stage, report.GSBounces, report.Unprojected)
		fmt.Printf("   position: %v\n", cubeBody.Transform.Position)
		fmt.Printf("   velocity: %v\n", cubeBody.Velocity)
		fmt.Printf("   angular velocity: %v (len=%.3f)\n", cubeBody.AngularVelocity, cubeBody.AngularVelocity.Len())
		fmt.Printf("   energy: %.6f\n", world.Energy())
	}
}
