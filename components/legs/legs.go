// Package legs is the control loop: once per tick it pulls the latest
// sensor snapshot, asks the supervisor for a verdict, asks the sequencer
// for foot targets (or substitutes recovery targets), solves each leg's
// kinematics, and dispatches the whole batch to the servo layer. Data
// flows one direction per tick, and bus access is always sensors first,
// actuators second.
package legs

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kevintmckay/hexapod"
	"github.com/kevintmckay/hexapod/gait"
	"github.com/kevintmckay/hexapod/ik"
	"github.com/kevintmckay/hexapod/safety"
	"github.com/kevintmckay/hexapod/servos"
)

var log = logrus.WithFields(logrus.Fields{
	"pkg": "legs",
})

type State string

const (
	sDefault State = ""
	sStandUp State = "sStandUp"
	sWalking State = "sWalking"
	sSitDown State = "sSitDown"
	sHalt    State = "sHalt"

	// Fallback tick length when the wall clock misbehaves (first tick,
	// clock step, or a dropped tick); also the cap, so one overrun never
	// advances the gait by more than two periods.
	nominalTick = 20 * time.Millisecond
	maxTick     = 2 * nominalTick

	// Body height ramp rate during stand-up and sit-down, mm per tick.
	standRate = 1.0
)

// SnapshotSource produces the per-tick sensor snapshot. The sensors suite
// satisfies it; tests substitute their own.
type SnapshotSource interface {
	Read(now time.Time, prev safety.Snapshot) safety.Snapshot
}

// Dispatcher applies one batch of joint commands. The servo commander
// satisfies it.
type Dispatcher interface {
	Apply(cmds []servos.JointCommand) ([]servos.Fault, error)
}

// Config holds the recovery tunables. Gait and safety tunables live with
// their own packages.
type Config struct {

	// Ticks to keep retracting swing targets after a cliff trips.
	CliffHoldTicks int `json:"cliff_hold_ticks"`

	// Horizontal swing-reach multiplier for legs on the cliff side.
	CliffRetract float64 `json:"cliff_retract"`

	// Stance-radius multiplier and body-height drop (mm) while recovering
	// from a tipping verdict.
	RecoverWiden float64 `json:"recover_widen"`
	RecoverDrop  float64 `json:"recover_drop"`
}

func DefaultConfig() Config {
	return Config{
		CliffHoldTicks: 25,
		CliffRetract:   0.4,
		RecoverWiden:   1.3,
		RecoverDrop:    25,
	}
}

type Legs struct {
	State        State
	stateCounter int

	legs [6]*Leg
	seq  *gait.Sequencer
	sup  *safety.Supervisor
	disp Dispatcher
	src  SnapshotSource
	cfg  Config

	lastSnap     safety.Snapshot
	lastVerdict  safety.Verdict
	lastTick     time.Time
	lastTimeouts [6]int

	// Current body height, ramped during stand-up and sit-down.
	bodyY float64

	// Cliff recovery latch: which side, and how many ticks remain.
	cliffSide  safety.RangeIndex
	cliffTicks int

	cmdSeq uint64
}

func New(geom ik.Geometry, seq *gait.Sequencer, sup *safety.Supervisor, disp Dispatcher, src SnapshotSource, cfg Config) *Legs {
	l := &Legs{
		State: sDefault,
		seq:   seq,
		sup:   sup,
		disp:  disp,
		src:   src,
		cfg:   cfg,
	}

	placements := DefaultPlacements()
	for i := range l.legs {
		l.legs[i] = &Leg{
			Name:      legNames[i],
			Geometry:  geom,
			Placement: placements[i],
		}
	}

	return l
}

func (l *Legs) Boot() error {
	log.Info("legs ready")
	return nil
}

func (l *Legs) Leg(i int) *Leg {
	return l.legs[i]
}

func (l *Legs) Verdict() safety.Verdict {
	return l.lastVerdict
}

// Halted returns true once the sit-down ramp has finished and the legs
// are parked; it's safe to power off.
func (l *Legs) Halted() bool {
	return l.State == sHalt
}

func (l *Legs) setState(s State) {
	log.Infof("state=%v", s)
	l.stateCounter = 0
	l.State = s
}

func (l *Legs) Tick(now time.Time, state *hexapod.State) error {
	dt := now.Sub(l.lastTick)
	if l.lastTick.IsZero() || dt <= 0 || dt > maxTick {
		dt = nominalTick
	}
	l.lastTick = now
	l.stateCounter++

	// Sensors before actuators, always. The snapshot this tick's verdict
	// is based on is the snapshot this tick's commands are based on.
	snap := l.src.Read(now, l.lastSnap)
	l.lastSnap = snap
	for i := range l.legs {
		l.legs[i].Contact = snap.Contacts[i]
	}

	verdict := l.sup.Evaluate(snap)
	if verdict != l.lastVerdict {
		log.WithFields(logrus.Fields{
			"from": l.lastVerdict.String(),
			"to":   verdict.String(),
		}).Info("verdict changed")
	}
	l.lastVerdict = verdict
	state.Verdict = verdict

	if verdict.Kind == safety.Recover && verdict.Reason == safety.CliffDetected {
		l.cliffSide = verdict.Side
		l.cliffTicks = l.cfg.CliffHoldTicks
	} else if l.cliffTicks > 0 {
		l.cliffTicks--
	}

	l.seq.SetMode(gait.ParseMode(state.GaitMode))

	// A halt is terminal for the session, whatever the state machine was
	// doing: hold the last commanded pose and park, mid-ramp included.
	if verdict.Kind == safety.Halt && l.State != sHalt {
		l.setState(sHalt)
		return nil
	}

	switch l.State {
	case sDefault:
		l.setState(sStandUp)
		return nil

	case sStandUp:
		if state.Shutdown {
			l.setState(sSitDown)
			return nil
		}

		l.bodyY += standRate
		if l.bodyY >= l.seq.Params().BodyHeight {
			l.bodyY = l.seq.Params().BodyHeight
			l.setState(sWalking)
		}
		return l.dispatch(l.poseTargets(1.0, l.bodyY))

	case sSitDown:
		l.bodyY -= standRate
		if l.bodyY <= 0 {
			l.bodyY = 0
			l.setState(sHalt)
		}
		return l.dispatch(l.poseTargets(1.0, l.bodyY))

	case sHalt:
		// Terminal. Hold pose by sending nothing; main powers the servos
		// off on exit.
		return nil

	case sWalking:
		if state.Shutdown {
			l.setState(sSitDown)
			return nil
		}
		return l.walk(dt, state, verdict)
	}

	return nil
}

// walk runs one tick of normal locomotion, under the supervisor's verdict.
func (l *Legs) walk(dt time.Duration, state *hexapod.State, verdict safety.Verdict) error {

	// Tipping recovery overrides the gait entirely: wide stance, low
	// body, no phase advance, until the attitude comes back.
	if verdict.Kind == safety.Recover && verdict.Reason == safety.TippingOrFallen {
		return l.dispatch(l.poseTargets(l.cfg.RecoverWiden, l.seq.Params().BodyHeight-l.cfg.RecoverDrop))
	}

	// ForwardFactor gates the forward component only; the overall speed
	// factor is applied once, to the phase advance, so the gait slows
	// down without shortening its stride.
	vel := state.Velocity()
	vel.Forward *= verdict.ForwardFactor

	l.seq.ObserveContacts(l.lastSnap.Contacts)
	l.warnTimeouts()

	l.seq.Advance(dt, vel, verdict.Factor)
	targets := l.seq.Targets(vel)

	// Cliff recovery: legs on the triggered side swing retracted rather
	// than extended, for as long as the latch holds. Unaffected legs
	// continue normal gait.
	if l.cliffTicks > 0 {
		for i := range targets {
			if !l.cliffLeg(i) || !l.seq.InSwing(i) {
				continue
			}
			home := l.seq.Home()
			targets[i].X = home.X + (targets[i].X-home.X)*l.cfg.CliffRetract
			targets[i].Y = home.Y + (targets[i].Y-home.Y)*l.cfg.CliffRetract
		}
	}

	return l.dispatch(targets)
}

// poseTargets returns a static pose: all feet at the (possibly widened)
// stance radius, body at the given height.
func (l *Legs) poseTargets(widen, height float64) [6]ik.FootTarget {
	var out [6]ik.FootTarget
	home := l.seq.Home()

	for i := range out {
		out[i] = ik.FootTarget{X: home.X * widen, Y: 0, Z: -height}
	}

	return out
}

// cliffLeg returns whether the given leg is on the side which tripped the
// cliff detector.
func (l *Legs) cliffLeg(i int) bool {
	switch l.cliffSide {
	case safety.RangeLeft:
		return i < 3
	case safety.RangeRight:
		return i >= 3
	default:
		return false
	}
}

// dispatch solves every leg and applies the whole batch at once. An
// unreachable target holds that leg's previous angles for this tick and
// logs a warning; it never aborts the tick for the other legs.
func (l *Legs) dispatch(targets [6]ik.FootTarget) error {
	batch := make([]servos.JointCommand, 0, 18)

	for i, leg := range l.legs {
		angles, err := ik.Solve(targets[i], leg.Geometry)
		if err != nil {
			log.WithFields(logrus.Fields{
				"leg": leg.Name,
			}).Warnf("holding pose: %s", err)
			angles = leg.Angles
		} else {
			leg.Angles = angles
		}

		for j, a := range []float64{angles.Coxa, angles.Femur, angles.Tibia} {
			l.cmdSeq++
			batch = append(batch, servos.JointCommand{
				Seq:   l.cmdSeq,
				Leg:   i,
				Joint: servos.Joint(j),
				Angle: a,
			})
		}
	}

	faults, err := l.disp.Apply(batch)
	for _, f := range faults {
		log.Warnf("degraded joint: %s", f)
	}
	if err != nil {
		// The whole batch may not have fired. Degraded for this tick;
		// the next tick re-commands everything anyway.
		log.Warnf("dispatch: %s", err)
	}

	return nil
}

// warnTimeouts logs once per new contact-search timeout, with the running
// per-leg counter. Operator-visible, never fatal.
func (l *Legs) warnTimeouts() {
	t := l.seq.ContactTimeouts()
	for i := range t {
		if t[i] > l.lastTimeouts[i] {
			log.WithFields(logrus.Fields{
				"leg":   l.legs[i].Name,
				"count": t[i],
			}).Warn("contact search timed out")
		}
	}
	l.lastTimeouts = t
}
