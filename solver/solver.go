// Package solver resolves a step's contacts and equality constraints between
// rigid bodies. One Invoke runs a fixed pipeline of stages: a preconditioned
// CG attempt for small sets, a Gauss-Seidel bouncer, an LCP conjugate
// gradient refinement and a position unprojection pass.
package solver

import (
	"log/slog"

	"github.com/akmonengine/impulse/constraint"
)

// DefaultCapacity is the number of contacts a solver accepts per step
const DefaultCapacity = 4096

// Stage is the last stage that changed the bodies in an Invoke
type Stage int

const (
	StageNone Stage = iota
	StagePreCG
	StageGaussSeidel
	StageLCPCG
	StageUnprojection
)

func (s Stage) String() string {
	switch s {
	case StagePreCG:
		return "precg"
	case StageGaussSeidel:
		return "gauss-seidel"
	case StageLCPCG:
		return "lcpcg"
	case StageUnprojection:
		return "unprojection"
	}
	return "none"
}

// Report describes what one Invoke did. It is diagnostic only.
type Report struct {
	Contacts       int
	Bodies         int
	Dropped        int
	Stage          Stage
	PreCGCommitted bool
	GSIterations   int
	GSBounces      int
	Ebefore        float64
	Eafter         float64
	Bounced        int
	LCPRan         bool
	LCPIterations  int
	LCPRejected    bool
	Unprojected    int
	MaxLevel       int
	Loops          int
}

// Solver accumulates the contacts of one step and resolves them on Invoke.
// A Solver is not safe for concurrent use; run one per goroutine.
type Solver struct {
	capacity   int
	registered []*constraint.Contact
	dropped    int
	arena      *arena
	logger     *slog.Logger
}

// New creates a solver accepting up to capacity contacts per step
func New(capacity int, logger *slog.Logger) *Solver {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Solver{
		capacity:   capacity,
		registered: make([]*constraint.Contact, 0, capacity),
		arena:      newArena(capacity),
		logger:     logger.With(slog.String("component", "solver")),
	}
}

// RegisterContact queues c for the next Invoke. Owners of either body may
// veto it; contacts past the capacity are dropped.
func (s *Solver) RegisterContact(c *constraint.Contact) {
	if !c.Body[0].AcceptContact(c.Body[1], c.Pt[0], 0) || !c.Body[1].AcceptContact(c.Body[0], c.Pt[1], 1) {
		return
	}
	if len(s.registered) >= s.capacity {
		s.dropped++
		return
	}

	s.registered = append(s.registered, c)
}

// ContactCount returns the number of contacts queued for the next Invoke
func (s *Solver) ContactCount() int {
	return len(s.registered)
}

// BodyCount returns the number of distinct bodies of the last Invoke
func (s *Solver) BodyCount() int {
	return len(s.arena.bodies)
}

// Reset discards the queued contacts
func (s *Solver) Reset() {
	clear(s.registered)
	s.registered = s.registered[:0]
	s.dropped = 0
}

// Invoke resolves every queued contact over the time step dt, updating the
// bodies' momenta and unprojecting their positions, then clears the queue.
// Bodies are not integrated; call RigidBody.Step afterwards.
func (s *Solver) Invoke(dt float64, settings *Settings) Report {
	report := Report{Contacts: len(s.registered), Dropped: s.dropped}
	if s.dropped > 0 {
		s.logger.Warn("contact capacity exceeded", slog.Int("capacity", s.capacity), slog.Int("dropped", s.dropped))
	}
	defer s.Reset()

	if len(s.registered) == 0 || dt <= 0 {
		return report
	}
	if settings == nil {
		settings = DefaultSettings()
	}

	a := s.arena
	report.Ebefore = a.setup(s.registered, settings)
	report.Bodies = len(a.bodies)

	if settings.UsePreCG && len(a.contacts) < settings.PreCGMaxContacts && a.preCG(settings, report.Ebefore) {
		report.PreCGCommitted = true
		report.Stage = StagePreCG
		s.logger.Debug("precg committed", slog.Int("contacts", len(a.contacts)))
		a.finish(dt, false)
		report.Eafter = a.energy()
		return report
	}

	gs := a.gaussSeidel(settings, report.Ebefore)
	report.GSIterations = gs.iterations
	report.GSBounces = gs.bounces
	report.Stage = StageGaussSeidel
	s.logger.Debug("gauss-seidel",
		slog.Int("iterations", gs.iterations),
		slog.Int("bounces", gs.bounces),
		slog.Int("unsettled", gs.bounced),
		slog.Float64("energy", gs.energy))

	a.reclassify()
	unprojected := false
	if settings.MaxLCPCGIters > 0 && gs.bounced > 0 {
		report.Bounced = a.prepareLCP(dt)

		if report.Bounced > 0 {
			lcp := a.refineLCP(settings)
			report.LCPRan = lcp.ran
			report.LCPIterations = lcp.iterations
			report.LCPRejected = lcp.rejected
			if lcp.committed {
				report.Stage = StageLCPCG
			}
			if lcp.rejected {
				s.logger.Debug("lcpcg rejected", slog.Float64("vmax", lcp.vmax), slog.Bool("angular", lcp.angular))
			}

			un := a.unproject(settings)
			report.Unprojected = un.bodies
			report.MaxLevel = un.maxLevel
			report.Loops = un.loops
			if un.bodies > 0 {
				report.Stage = StageUnprojection
			}
			unprojected = true
			s.logger.Debug("unprojection",
				slog.Int("bodies", un.bodies),
				slog.Int("levels", un.maxLevel),
				slog.Int("loops", un.loops))
		}
	}

	a.finish(dt, unprojected)
	report.Eafter = a.energy()

	return report
}
