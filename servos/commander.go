package servos

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithFields(logrus.Fields{
	"pkg": "servos",
})

// ErrOutOfRange means a mapped angle exceeded a joint's mechanical limits.
// It is reported rather than clamped; a silent clamp would desync the
// kinematic model from the physical pose.
var ErrOutOfRange = errors.New("angle out of mechanical range")

// ErrBus means the bus did not acknowledge a write within its timeout,
// after one immediate retry. The joint is degraded for this tick only.
var ErrBus = errors.New("bus write failed")

// Joint indexes the three joints of a leg, body outwards.
type Joint int

const (
	Coxa Joint = iota
	Femur
	Tibia
	NumJoints
)

func (j Joint) String() string {
	switch j {
	case Coxa:
		return "coxa"
	case Femur:
		return "femur"
	case Tibia:
		return "tibia"
	default:
		return fmt.Sprintf("joint(%d)", int(j))
	}
}

// JointCommand is one target angle (leg-local kinematic degrees) for one
// joint. Seq increases monotonically across every command ever issued.
type JointCommand struct {
	Seq   uint64
	Leg   int
	Joint Joint
	Angle float64
}

// Calibration maps a kinematic angle onto a physical servo: mechanical
// zero rarely coincides with kinematic zero, and the right-side legs are
// mirrored. Limits are in mapped (servo) degrees.
type Calibration struct {
	Offset float64 `json:"offset"`
	Sign   float64 `json:"sign"`
	MinDeg float64 `json:"min_deg"`
	MaxDeg float64 `json:"max_deg"`
}

func DefaultCalibration() Calibration {
	return Calibration{Sign: 1, MinDeg: -120, MaxDeg: 120}
}

// Actuator is the slice of the servo driver the commander needs. The
// dynamixel servo type satisfies it; tests substitute a fake.
type Actuator interface {
	MoveTo(angle float64) error
}

// Syncer buffers writes and fires them all at once, so the eighteen joint
// moves of one tick start together.
type Syncer interface {
	SetBuffered(buffered bool)
	Action() error
}

// Fault reports one degraded joint from a batch. The rest of the batch is
// unaffected.
type Fault struct {
	Cmd JointCommand
	Err error
}

func (f Fault) String() string {
	return fmt.Sprintf("leg %d %s (seq %d): %s", f.Cmd.Leg, f.Cmd.Joint, f.Cmd.Seq, f.Err)
}

// Commander owns the translation from joint commands into servo moves.
type Commander struct {
	bus  Syncer
	acts [6][NumJoints]Actuator
	cal  [6][NumJoints]Calibration

	// Maximum mapped-angle change per tick, bounding peak current draw.
	maxDelta float64

	last     [6][NumJoints]float64
	haveLast [6][NumJoints]bool
}

func NewCommander(bus Syncer, acts [6][NumJoints]Actuator, cal [6][NumJoints]Calibration, maxDeltaDeg float64) *Commander {
	return &Commander{
		bus:      bus,
		acts:     acts,
		cal:      cal,
		maxDelta: maxDeltaDeg,
	}
}

// Apply maps, validates, rate-limits, and dispatches a batch of joint
// commands as one buffered bus transaction. Per-joint failures come back
// as faults and never abort the rest of the batch; the returned error is
// only for the final flush, which affects the whole batch.
func (c *Commander) Apply(cmds []JointCommand) ([]Fault, error) {
	var faults []Fault

	c.bus.SetBuffered(true)

	for _, cmd := range cmds {
		if err := c.apply(cmd); err != nil {
			faults = append(faults, Fault{Cmd: cmd, Err: err})
		}
	}

	c.bus.SetBuffered(false)
	if err := c.bus.Action(); err != nil {
		return faults, fmt.Errorf("%w: action: %s", ErrBus, err)
	}

	return faults, nil
}

func (c *Commander) apply(cmd JointCommand) error {
	if cmd.Leg < 0 || cmd.Leg >= 6 || cmd.Joint < 0 || cmd.Joint >= NumJoints {
		return fmt.Errorf("no such joint: leg %d %s", cmd.Leg, cmd.Joint)
	}

	cal := c.cal[cmd.Leg][cmd.Joint]
	mapped := cal.Sign*cmd.Angle + cal.Offset

	// Hard mechanical limits. An error, never a clamp.
	if mapped < cal.MinDeg || mapped > cal.MaxDeg {
		return fmt.Errorf("%w: %.1f not in [%.1f, %.1f]", ErrOutOfRange, mapped, cal.MinDeg, cal.MaxDeg)
	}

	// Bound the per-tick excursion against the last commanded angle.
	if c.haveLast[cmd.Leg][cmd.Joint] {
		prev := c.last[cmd.Leg][cmd.Joint]
		if mapped > prev+c.maxDelta {
			mapped = prev + c.maxDelta
		} else if mapped < prev-c.maxDelta {
			mapped = prev - c.maxDelta
		}
	}

	act := c.acts[cmd.Leg][cmd.Joint]
	if act == nil {
		return fmt.Errorf("no actuator for leg %d %s", cmd.Leg, cmd.Joint)
	}

	// One immediate retry, then degrade this joint for this tick only.
	err := act.MoveTo(mapped)
	if err != nil {
		log.WithFields(logrus.Fields{
			"leg":   cmd.Leg,
			"joint": cmd.Joint.String(),
		}).Warnf("retrying write: %s", err)

		err = act.MoveTo(mapped)
	}
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBus, err)
	}

	c.last[cmd.Leg][cmd.Joint] = mapped
	c.haveLast[cmd.Leg][cmd.Joint] = true
	return nil
}
