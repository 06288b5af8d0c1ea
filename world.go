// Package impulse is a small rigid-body engine built around the contact
// solver: it owns the bodies, generates their contacts and ball joints, and
// integrates them once the solver has resolved a step.
package impulse

import (
	"log/slog"
	"sync"

	"github.com/akmonengine/impulse/actor"
	"github.com/akmonengine/impulse/constraint"
	"github.com/akmonengine/impulse/jobs"
	"github.com/akmonengine/impulse/solver"
	"github.com/go-gl/mathgl/mgl64"
)

const DEFAULT_WORKERS = 1

const (
	defaultCellSize = 2.0
	defaultNumCells = 1024
)

type World struct {
	// List of all rigid bodies in the world
	Bodies []*actor.RigidBody
	Joints []*Joint
	// Gravity acceleration (m/s², or N/kg)
	Gravity     mgl64.Vec3
	Workers     int
	Settings    *solver.Settings
	Solver      *solver.Solver
	SpatialGrid *SpatialGrid
	// Jobs runs StepAsync; nil until the first call
	Jobs   *jobs.Queue
	Logger *slog.Logger

	// ContactModifier, when set, may adjust every generated contact before
	// it is registered (wheel traction, bounce thresholds)
	ContactModifier func(c *constraint.Contact)

	capacity   int
	stepMu     sync.Mutex
	mu         sync.Mutex
	pending    []float64
	lastReport solver.Report
}

// Option configures a World
type Option func(*World)

func WithGravity(g mgl64.Vec3) Option {
	return func(w *World) { w.Gravity = g }
}

func WithWorkers(n int) Option {
	return func(w *World) { w.Workers = n }
}

func WithSettings(s *solver.Settings) Option {
	return func(w *World) { w.Settings = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *World) {
		if l != nil {
			w.Logger = l
		}
	}
}

// WithCapacity sets the number of contacts the solver accepts per step
func WithCapacity(capacity int) Option {
	return func(w *World) { w.capacity = capacity }
}

// WithJobs runs StepAsync on q instead of a private single worker queue
func WithJobs(q *jobs.Queue) Option {
	return func(w *World) { w.Jobs = q }
}

// NewWorld creates an empty world with earth gravity along -z
func NewWorld(opts ...Option) *World {
	w := &World{
		Gravity:     mgl64.Vec3{0, 0, -9.81},
		Workers:     DEFAULT_WORKERS,
		Settings:    solver.DefaultSettings(),
		SpatialGrid: NewSpatialGrid(defaultCellSize, defaultNumCells),
		Logger:      slog.Default(),
		capacity:    solver.DefaultCapacity,
	}
	for _, opt := range opts {
		opt(w)
	}

	w.Solver = solver.New(w.capacity, w.Logger)
	w.Logger = w.Logger.With(slog.String("component", "world"))

	return w
}

// AddBody adds a rigid body to the world
func (w *World) AddBody(body *actor.RigidBody) {
	w.Bodies = append(w.Bodies, body)
}

// RemoveBody removes a rigid body and the joints attached to it
func (w *World) RemoveBody(body *actor.RigidBody) {
	k := -1
	for i, b := range w.Bodies {
		if b == body {
			k = i
			break
		}
	}

	if k != -1 {
		w.Bodies = append(w.Bodies[:k], w.Bodies[k+1:]...)
	}

	joints := w.Joints[:0]
	for _, j := range w.Joints {
		if j.BodyA != body && j.BodyB != body {
			joints = append(joints, j)
		}
	}
	clear(w.Joints[len(joints):])
	w.Joints = joints
}

// AddJoint adds a ball joint, solved as a 3-dof constraint every step
func (w *World) AddJoint(j *Joint) {
	w.Joints = append(w.Joints, j)
}

// Step advances the world by dt: gravity, contact generation, the solver,
// then integration of every dynamic body.
func (w *World) Step(dt float64) solver.Report {
	w.Workers = max(DEFAULT_WORKERS, w.Workers)

	w.applyGravity(dt)

	collisions := w.detectCollision()
	w.registerContacts(dt, collisions)

	report := w.Solver.Invoke(dt, w.Settings)

	w.integrate(dt)

	w.Logger.Debug("step",
		slog.Int("contacts", report.Contacts),
		slog.String("stage", report.Stage.String()),
		slog.Float64("energy", w.Energy()))

	w.mu.Lock()
	w.lastReport = report
	w.mu.Unlock()

	return report
}

func (w *World) applyGravity(dt float64) {
	task(w.Workers, w.Bodies, func(body *actor.RigidBody) {
		body.ApplyGravity(w.Gravity, dt)
	})
}

func (w *World) detectCollision() []Collision {
	return NarrowPhase(BroadPhase(w.SpatialGrid, w.Bodies, w.Workers), w.Workers)
}

func (w *World) registerContacts(dt float64, collisions []Collision) {
	for _, col := range collisions {
		c := col.Contact
		c.Vreq = c.N.Mul(SeparationSpeed(col.Depth, dt, w.Settings.MaxVUnproj))
		if w.ContactModifier != nil {
			w.ContactModifier(c)
		}
		w.Solver.RegisterContact(c)
	}

	for _, j := range w.Joints {
		w.Solver.RegisterContact(j.contact(dt, w.Settings.MaxVUnproj))
	}
}

func (w *World) integrate(dt float64) {
	task(w.Workers, w.Bodies, func(body *actor.RigidBody) {
		if !body.IsStatic() {
			body.Step(dt)
		}
	})
}

// StepAsync schedules one Step as a job. Steps run one at a time in the
// order they were scheduled; the world must not be touched until Wait
// returns.
func (w *World) StepAsync(dt float64) error {
	if w.Jobs == nil {
		w.Jobs = jobs.New(1)
	}

	w.mu.Lock()
	w.pending = append(w.pending, dt)
	w.mu.Unlock()

	if err := w.Jobs.AddJob(w.runPending, nil); err != nil {
		w.mu.Lock()
		w.pending = w.pending[:len(w.pending)-1]
		w.mu.Unlock()
		return err
	}

	return nil
}

// runPending runs the oldest scheduled step. Any job may pick it, so the
// time step is taken from the world's own FIFO.
func (w *World) runPending(any) {
	w.stepMu.Lock()
	defer w.stepMu.Unlock()

	w.mu.Lock()
	dt := w.pending[0]
	w.pending = w.pending[1:]
	w.mu.Unlock()

	w.Step(dt)
}

// Wait blocks until the scheduled steps are done and returns the last report
func (w *World) Wait() solver.Report {
	if w.Jobs != nil {
		w.Jobs.WaitForAllJobs()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastReport
}

// LastReport returns the report of the most recent Step
func (w *World) LastReport() solver.Report {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastReport
}

// Close stops the job queue, if any
func (w *World) Close() {
	if w.Jobs != nil {
		w.Jobs.Close()
	}
}

// Energy returns the total kinetic and rotational energy of the bodies
func (w *World) Energy() float64 {
	var e float64
	for _, body := range w.Bodies {
		if !body.IsStatic() {
			e += body.Energy()
		}
	}

	return e * 0.5
}
