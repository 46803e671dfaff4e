package hexapod

import (
	"sync/atomic"
	"time"

	"github.com/kevintmckay/hexapod/safety"
)

// Velocity is the desired body velocity, as supplied by whatever is driving
// the robot. Forward and Strafe are in mm/sec in the body frame (strafe is
// positive to the left), YawRate is in degrees/sec (positive is counter-
// clockwise, viewed from above).
type Velocity struct {
	Forward float64
	Strafe  float64
	YawRate float64
}

// Zero returns true if the velocity is close enough to zero that the hex
// should stand still rather than walk.
func (v Velocity) Zero() bool {
	const eps = 1e-6
	return v.Forward < eps && v.Forward > -eps &&
		v.Strafe < eps && v.Strafe > -eps &&
		v.YawRate < eps && v.YawRate > -eps
}

// State is shared by every component, and is passed to each at every tick.
// The fields here are the narrow interface between the teleop side and the
// locomotion side; everything else (legs, gait, sensors) is owned by the
// component which mutates it.
type State struct {

	// The desired velocity mailbox. Written by the controller (possibly
	// from another goroutine), read non-destructively by the control loop
	// at the start of each tick.
	vel atomic.Pointer[Velocity]

	// The gait to walk with. One of the gait.Mode constants. Read by the
	// legs component once per tick; changes take effect at the next tick.
	GaitMode string

	// Components can set this to true to indicate that the hex should sit
	// down, power off its servos, and exit.
	Shutdown bool

	// The most recent safety verdict, written by the legs component after
	// each evaluation, for anything else which wants to observe it.
	Verdict safety.Verdict
}

func NewState() *State {
	s := &State{}
	s.vel.Store(&Velocity{})
	return s
}

// SetVelocity publishes a new desired velocity. Safe to call from any
// goroutine.
func (s *State) SetVelocity(v Velocity) {
	s.vel.Store(&v)
}

// Velocity returns the most recently published desired velocity. Reading it
// does not consume it.
func (s *State) Velocity() Velocity {
	return *s.vel.Load()
}

// Component is anything which can be attached to the hexapod to receive
// ticks every frame.
type Component interface {
	Boot() error
	Tick(now time.Time, state *State) error
}

type Hexapod struct {
	State      *State
	Components []Component
}

func New() *Hexapod {
	return &Hexapod{
		State:      NewState(),
		Components: []Component{},
	}
}

// Add registers a component to receive ticks every frame. Components are
// ticked in the order they were added.
func (h *Hexapod) Add(c Component) {
	h.Components = append(h.Components, c)
}

// Boot calls Boot on each component.
func (h *Hexapod) Boot() error {
	for _, c := range h.Components {
		err := c.Boot()
		if err != nil {
			return err
		}
	}

	return nil
}

// Tick calls Tick on each component, in the order they were added.
func (h *Hexapod) Tick(now time.Time) error {
	for _, c := range h.Components {
		err := c.Tick(now, h.State)
		if err != nil {
			return err
		}
	}

	return nil
}
