// Package gait turns a desired body velocity into one foot target per leg
// per tick, by sequencing the legs through stance and swing phases.
package gait

import (
	"fmt"
	"math"
	"time"

	"github.com/kevintmckay/hexapod"
	"github.com/kevintmckay/hexapod/ik"
)

const NumLegs = 6

// Mode names a leg-grouping pattern. The grouping is the core design
// decision; it's what guarantees static stability while walking.
type Mode string

const (
	// Tripod: two groups of three legs, half a cycle apart. One group
	// swings while the other three stay planted. Fastest.
	Tripod Mode = "tripod"

	// Wave: one leg swings at a time, back to front. Slowest, and the most
	// stable, with five feet always on the ground.
	Wave Mode = "wave"

	// Ripple: two groups of three, staggered internally, half a cycle
	// between groups. A balance between tripod and wave.
	Ripple Mode = "ripple"
)

// ParseMode returns the Mode named by s, defaulting to Tripod for anything
// unrecognised.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case Wave:
		return Wave
	case Ripple:
		return Ripple
	default:
		return Tripod
	}
}

// Offsets returns each leg's phase offset as a fraction of the cycle. Legs
// are indexed L1, L2, L3, R1, R2, R3 (front to back, left then right).
func Offsets(m Mode) [NumLegs]float64 {
	switch m {

	// Group A: L1, L3, R2. Group B: R1, R3, L2.
	case Tripod:
		return [NumLegs]float64{0, 0.5, 0, 0.5, 0, 0.5}

	// One at a time, alternating sides front to back.
	case Wave:
		return [NumLegs]float64{0, 2.0 / 6, 4.0 / 6, 1.0 / 6, 3.0 / 6, 5.0 / 6}

	// Two groups of three, staggered internally by a sixth.
	case Ripple:
		return [NumLegs]float64{0, 1.0 / 6, 2.0 / 6, 0.5, 0.5 + 1.0/6, 0.5 + 2.0/6}

	default:
		panic(fmt.Sprintf("invalid gait mode: %q", m))
	}
}

// StanceFraction returns the fraction of the cycle which each leg spends on
// the ground in the given mode.
func StanceFraction(m Mode) float64 {
	switch m {
	case Wave:
		return 5.0 / 6
	default:
		return 0.5
	}
}

// Placement is the fixed mounting of one leg: the coxa pivot's position in
// the body frame (mm, +X forward, +Y left) and the heading of the leg's
// outward axis (degrees counter-clockwise from forward).
type Placement struct {
	MountX float64 `json:"mount_x"`
	MountY float64 `json:"mount_y"`
	Yaw    float64 `json:"yaw"`
}

// Params are the tunable gait dimensions, in mm and seconds.
type Params struct {

	// Seconds for one full cycle of the gait.
	CycleTime float64 `json:"cycle_time"`

	// The furthest a foot travels (on the ground) per cycle.
	StrideLength float64 `json:"stride_length"`

	// How high a foot is lifted at mid-swing.
	StepHeight float64 `json:"step_height"`

	// Distance from the coxa pivot to the neutral foot position.
	StanceRadius float64 `json:"stance_radius"`

	// Height of the body above the ground when standing.
	BodyHeight float64 `json:"body_height"`

	// How much further than ground height a planted-but-unloaded foot may
	// descend looking for contact, and how fast it descends per tick.
	ContactSearchDepth float64 `json:"contact_search_depth"`
	ContactSearchRate  float64 `json:"contact_search_rate"`
}

func DefaultParams() Params {
	return Params{
		CycleTime:          1.2,
		StrideLength:       60,
		StepHeight:         40,
		StanceRadius:       100,
		BodyHeight:         80,
		ContactSearchDepth: 15,
		ContactSearchRate:  2,
	}
}

// Sequencer holds the phase accumulator and produces foot targets. Apart
// from the accumulator (and the advisory contact-search state) it has no
// hidden state: Targets is a pure function of phase, velocity, and mode.
type Sequencer struct {
	mode       Mode
	params     Params
	placements [NumLegs]Placement
	offsets    [NumLegs]float64
	stance     float64

	// Continuous phase in [0, 1), advanced by dt/cycle each tick.
	phase float64

	// Per-leg extra descent while searching for ground contact, and the
	// per-leg count of searches which hit the depth bound.
	search   [NumLegs]float64
	timeouts [NumLegs]int
	searched [NumLegs]bool
}

func New(mode Mode, params Params, placements [NumLegs]Placement) *Sequencer {
	return &Sequencer{
		mode:       mode,
		params:     params,
		placements: placements,
		offsets:    Offsets(mode),
		stance:     StanceFraction(mode),
	}
}

// SetMode switches the grouping pattern. The phase accumulator carries
// over, so the switch is continuous rather than a restart.
func (s *Sequencer) SetMode(m Mode) {
	if m == s.mode {
		return
	}

	s.mode = m
	s.offsets = Offsets(m)
	s.stance = StanceFraction(m)
}

func (s *Sequencer) Mode() Mode {
	return s.mode
}

func (s *Sequencer) Params() Params {
	return s.params
}

// Home returns the neutral foot position, shared by every leg in its own
// local frame: straight out at the stance radius, down at body height.
func (s *Sequencer) Home() ik.FootTarget {
	return ik.FootTarget{X: s.params.StanceRadius, Y: 0, Z: -s.params.BodyHeight}
}

// Phase returns the current cycle phase, in [0, 1).
func (s *Sequencer) Phase() float64 {
	return s.phase
}

// LegPhase returns the given leg's own phase, in [0, 1).
func (s *Sequencer) LegPhase(leg int) float64 {
	return wrap(s.phase + s.offsets[leg])
}

// InSwing returns true if the given leg is in its swing (lifted) phase.
func (s *Sequencer) InSwing(leg int) bool {
	return s.LegPhase(leg) >= s.stance
}

// Advance moves the phase accumulator forward by the elapsed time, scaled
// by the supervisor's speed factor. A zero commanded velocity does not
// advance the phase at all; standing still must not drift.
func (s *Sequencer) Advance(dt time.Duration, vel hexapod.Velocity, scale float64) {
	if vel.Zero() || s.params.CycleTime <= 0 {
		return
	}

	s.phase = wrap(s.phase + scale*dt.Seconds()/s.params.CycleTime)
}

// ObserveContacts updates the advisory contact-search state from the foot
// switches. A leg which should be planted (per its phase) but reports no
// contact descends a little further each tick, up to a bound; hitting the
// bound counts one timeout for that leg. This tolerates uneven terrain
// without ever halting the gait.
func (s *Sequencer) ObserveContacts(contacts [NumLegs]bool) {
	for i := 0; i < NumLegs; i++ {
		if s.InSwing(i) || contacts[i] {
			s.search[i] = 0
			s.searched[i] = false
			continue
		}

		if s.search[i] < s.params.ContactSearchDepth {
			s.search[i] += s.params.ContactSearchRate
			continue
		}

		if !s.searched[i] {
			s.searched[i] = true
			s.timeouts[i]++
		}
	}
}

// ContactTimeouts returns the per-leg count of contact searches which ran
// out of descent. Operator-visible; never escalates to a safety verdict.
func (s *Sequencer) ContactTimeouts() [NumLegs]int {
	return s.timeouts
}

// Targets returns one foot target per leg for the current phase and the
// given velocity, in each leg's local coxa frame. A zero velocity returns
// the neutral standing pose.
func (s *Sequencer) Targets(vel hexapod.Velocity) [NumLegs]ik.FootTarget {
	var out [NumLegs]ik.FootTarget

	for i := 0; i < NumLegs; i++ {
		out[i] = s.legTarget(i, vel)
	}

	return out
}

func (s *Sequencer) legTarget(leg int, vel hexapod.Velocity) ik.FootTarget {
	home := s.Home()

	if vel.Zero() {
		return home
	}

	// The stride vector: how far the ground moves, in this leg's local
	// frame, during one stance period. Yaw rate contributes the tangential
	// velocity at the mount radius.
	sx, sy := s.stride(leg, vel)

	phase := s.LegPhase(leg)

	if phase < s.stance {
		// Stance: the foot tracks the ground in a straight line, from half
		// a stride ahead of home to half a stride behind, pushing the body
		// forwards. An unloaded foot gets the advisory extra descent.
		p := phase / s.stance
		return ik.FootTarget{
			X: home.X + sx*(p-0.5),
			Y: home.Y + sy*(p-0.5),
			Z: home.Z - s.search[leg],
		}
	}

	// Swing: half-sine vertical arc carrying the foot back to the stance
	// start, landing forward of where it lifted.
	q := (phase - s.stance) / (1 - s.stance)
	return ik.FootTarget{
		X: home.X + sx*(0.5-q),
		Y: home.Y + sy*(0.5-q),
		Z: home.Z + s.params.StepHeight*math.Sin(math.Pi*q),
	}
}

// stride returns the leg's stride vector in its local frame: the ground's
// displacement relative to the body over one stance period, capped at the
// configured stride length.
func (s *Sequencer) stride(leg int, vel hexapod.Velocity) (float64, float64) {
	p := s.placements[leg]

	// Ground velocity relative to the body at the mount point, body frame.
	w := rad(vel.YawRate)
	gx := -(vel.Forward - w*p.MountY)
	gy := -(vel.Strafe + w*p.MountX)

	// Rotate into the leg's local frame.
	yaw := rad(p.Yaw)
	lx := gx*math.Cos(yaw) + gy*math.Sin(yaw)
	ly := -gx*math.Sin(yaw) + gy*math.Cos(yaw)

	// Scale by the stance period, and cap.
	t := s.params.CycleTime * s.stance
	lx *= t
	ly *= t

	mag := math.Hypot(lx, ly)
	if mag > s.params.StrideLength {
		lx *= s.params.StrideLength / mag
		ly *= s.params.StrideLength / mag
	}

	return lx, ly
}

func wrap(phase float64) float64 {
	phase = math.Mod(phase, 1)
	if phase < 0 {
		phase += 1
	}
	return phase
}

func rad(degrees float64) float64 {
	return (math.Pi / 180) * degrees
}
