// Package safety fuses the per-tick sensor snapshot into a single verdict
// governing whether and how the gait may proceed. The supervisor never
// touches actuators; it only decides, and the control loop applies.
package safety

import (
	"fmt"
	"math"
	"time"
)

// RangeIndex names the three time-of-flight rangers. Center faces forward;
// Left and Right are angled downward and outward, watching the ground
// ahead of each side's legs.
type RangeIndex int

const (
	RangeCenter RangeIndex = iota
	RangeLeft
	RangeRight
	NumRangers
)

// Reading is one distance measurement in mm. Valid is false when the
// sensor got no return (surface too far, too dark, or missing entirely).
type Reading struct {
	Millimeters float64
	Valid       bool
}

// Snapshot is the immutable per-tick aggregate of every sensor. It's
// produced once per tick by the sensor collaborators and consumed
// read-only here.
type Snapshot struct {
	Time time.Time

	// Attitude in degrees, and body angular rates in degrees/sec.
	Pitch     float64
	Roll      float64
	PitchRate float64
	RollRate  float64

	Ranges   [NumRangers]Reading
	Contacts [6]bool

	// Battery voltage and instantaneous current draw.
	Volts float64
	Amps  float64

	// AmpsValid is false when no current monitor is fitted (voltage came
	// from a servo register instead).
	AmpsValid bool

	// Stale is set when one or more devices missed this tick and their
	// previous values were carried over.
	Stale bool
}

// Kind is the category of a verdict.
type Kind int

const (
	Nominal Kind = iota
	ReduceSpeed
	Halt
	Recover
)

func (k Kind) String() string {
	switch k {
	case Nominal:
		return "nominal"
	case ReduceSpeed:
		return "reduce-speed"
	case Halt:
		return "halt"
	case Recover:
		return "recover"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Reason explains a Recover verdict.
type Reason string

const (
	CliffDetected   Reason = "cliff-detected"
	TippingOrFallen Reason = "tipping-or-fallen"
)

// Verdict is the supervisor's per-tick decision. Factor scales the whole
// gait (phase advance); ForwardFactor scales only the forward velocity
// component, so an obstacle dead ahead still permits turning in place.
// Side identifies the triggering ranger for a cliff recovery.
type Verdict struct {
	Kind          Kind
	Factor        float64
	ForwardFactor float64
	Reason        Reason
	Side          RangeIndex
}

func nominal() Verdict {
	return Verdict{Kind: Nominal, Factor: 1, ForwardFactor: 1}
}

func (v Verdict) String() string {
	switch v.Kind {
	case ReduceSpeed:
		return fmt.Sprintf("%s(%.2f,fwd=%.2f)", v.Kind, v.Factor, v.ForwardFactor)
	case Recover:
		return fmt.Sprintf("%s(%s)", v.Kind, v.Reason)
	default:
		return v.Kind.String()
	}
}

// Config is every threshold the supervisor compares against. None of these
// are derivable; they're tuned on the machine and overridable from the
// config file.
type Config struct {

	// Attitude beyond which the hex is considered tipping or fallen.
	TiltLimitDeg float64 `json:"tilt_limit_deg"`

	// Battery voltage below which the session is over. 2S LiPo cutoff.
	CriticalVolts float64 `json:"critical_volts"`

	// Current draw considered a stall, and how many consecutive ticks it
	// must persist before (and quiet ticks before clearing) the verdict
	// changes. The two-sided window is what prevents verdict flapping.
	StallAmps          float64 `json:"stall_amps"`
	StallDebounceTicks int     `json:"stall_debounce_ticks"`

	// Forward range at which to start slowing, and at which forward
	// motion stops entirely.
	ObstacleMM float64 `json:"obstacle_mm"`
	StopMM     float64 `json:"stop_mm"`

	// Speed factor applied when the snapshot is stale and nothing worse
	// is going on.
	StaleFactor float64 `json:"stale_factor"`

	// Floor for the overcurrent speed factor.
	MinFactor float64 `json:"min_factor"`
}

func DefaultConfig() Config {
	return Config{
		TiltLimitDeg:       35,
		CriticalVolts:      6.6,
		StallAmps:          2.5,
		StallDebounceTicks: 5,
		ObstacleMM:         300,
		StopMM:             120,
		StaleFactor:        0.5,
		MinFactor:          0.2,
	}
}

// Supervisor derives a verdict from each snapshot, with just enough memory
// for hysteresis: the previous snapshot (cliff edge detection), the stall
// debounce counters, and the halt latch.
type Supervisor struct {
	cfg Config

	prev     Snapshot
	havePrev bool

	overTicks  int
	quietTicks int
	reducing   bool

	halted bool
}

func New(cfg Config) *Supervisor {
	return &Supervisor{cfg: cfg}
}

// Halted returns true once a terminal Halt has latched.
func (s *Supervisor) Halted() bool {
	return s.halted
}

// Reset clears the halt latch. Only an external operator action should
// call this; Halt never auto-clears.
func (s *Supervisor) Reset() {
	s.halted = false
	s.overTicks = 0
	s.quietTicks = 0
	s.reducing = false
}

// Evaluate derives this tick's verdict from the snapshot. Rules are
// checked in priority order; the first match wins.
func (s *Supervisor) Evaluate(snap Snapshot) Verdict {
	prev, havePrev := s.prev, s.havePrev
	s.prev, s.havePrev = snap, true

	s.updateStall(snap)

	// A latched halt is terminal until an external reset, regardless of
	// anything else the sensors say.
	if s.halted {
		return Verdict{Kind: Halt}
	}

	// 1. A downward ranger dropping from a valid ground return to no
	// return means the ground ahead of that side is gone.
	if havePrev {
		for _, i := range []RangeIndex{RangeLeft, RangeRight} {
			if prev.Ranges[i].Valid && !snap.Ranges[i].Valid {
				return Verdict{Kind: Recover, Factor: 1, ForwardFactor: 1, Reason: CliffDetected, Side: i}
			}
		}
	}

	// 2. Tipping or fallen.
	if math.Abs(snap.Pitch) > s.cfg.TiltLimitDeg || math.Abs(snap.Roll) > s.cfg.TiltLimitDeg {
		return Verdict{Kind: Recover, Factor: 1, ForwardFactor: 1, Reason: TippingOrFallen}
	}

	// 3. Battery critical. Terminal for the session.
	if snap.Volts > 0 && snap.Volts < s.cfg.CriticalVolts {
		s.halted = true
		return Verdict{Kind: Halt}
	}

	// 4. Sustained overcurrent. The factor shrinks proportionally to the
	// overload, floored so the hex never quite freezes.
	if s.reducing {
		f := 1.0
		if snap.AmpsValid && snap.Amps > 0 {
			f = s.cfg.StallAmps / snap.Amps
		}
		if f > 1 {
			f = 1
		}
		if f < s.cfg.MinFactor {
			f = s.cfg.MinFactor
		}
		return Verdict{Kind: ReduceSpeed, Factor: f, ForwardFactor: 1}
	}

	// 5. Obstacle ahead: scale the forward component by proximity, down
	// to zero at the stop distance. Lateral and turning motion continue.
	if c := snap.Ranges[RangeCenter]; c.Valid && c.Millimeters < s.cfg.ObstacleMM {
		f := (c.Millimeters - s.cfg.StopMM) / (s.cfg.ObstacleMM - s.cfg.StopMM)
		if f < 0 {
			f = 0
		}
		return Verdict{Kind: ReduceSpeed, Factor: 1, ForwardFactor: f}
	}

	// 6. Nothing wrong. A stale snapshot still biases conservative.
	if snap.Stale {
		return Verdict{Kind: ReduceSpeed, Factor: s.cfg.StaleFactor, ForwardFactor: 1}
	}

	return nominal()
}

// updateStall runs the two-sided debounce window for the overcurrent
// condition. Entering ReduceSpeed requires the full window over threshold;
// leaving requires the full window under it, so a momentary dip below the
// threshold does not clear the verdict.
func (s *Supervisor) updateStall(snap Snapshot) {
	if !snap.AmpsValid {
		return
	}

	if snap.Amps > s.cfg.StallAmps {
		s.quietTicks = 0
		s.overTicks++
		if s.overTicks > s.cfg.StallDebounceTicks {
			s.reducing = true
		}
		return
	}

	s.overTicks = 0
	if s.reducing {
		s.quietTicks++
		if s.quietTicks > s.cfg.StallDebounceTicks {
			s.reducing = false
			s.quietTicks = 0
		}
	}
}
