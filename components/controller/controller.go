// Package controller maps the sixaxis pad onto the desired-velocity
// mailbox. It's deliberately dumb: it publishes a velocity and a gait
// mode, and the control loop does whatever the supervisor allows with
// them.
package controller

import (
	"io"
	"time"

	"github.com/adammck/sixaxis"
	"github.com/sirupsen/logrus"

	"github.com/kevintmckay/hexapod"
	"github.com/kevintmckay/hexapod/gait"
)

var log = logrus.WithFields(logrus.Fields{
	"pkg": "controller",
})

const (

	// Full stick deflection, in mm/sec.
	maxForward = 120.0
	maxStrafe  = 80.0

	// Full stick deflection, in degrees/sec.
	maxYawRate = 40.0

	// Stick values this close to center are noise, not intent.
	deadzone = 8
)

type Controller struct {
	sa *sixaxis.SA

	selectMode Latch
	start      Latch
}

func New(r io.Reader) *Controller {
	return &Controller{
		sa: sixaxis.New(r),
	}
}

func (c *Controller) Boot() error {
	go c.sa.Run()
	return nil
}

func (c *Controller) Tick(now time.Time, state *hexapod.State) error {
	state.SetVelocity(hexapod.Velocity{
		Forward: axis(float64(-c.sa.LeftStick.Y)) * maxForward,
		Strafe:  axis(float64(-c.sa.LeftStick.X)) * maxStrafe,
		YawRate: axis(float64(-c.sa.RightStick.X)) * maxYawRate,
	})

	// SELECT cycles through the gaits.
	if c.selectMode.Run(c.sa.Select) {
		next := nextMode(gait.ParseMode(state.GaitMode))
		log.Infof("gait=%s", next)
		state.GaitMode = string(next)
	}

	// START shuts the hex down, at any time.
	if c.start.Run(c.sa.Start) {
		log.Info("pressed START, shutting down")
		state.Shutdown = true
	}

	return nil
}

func nextMode(m gait.Mode) gait.Mode {
	switch m {
	case gait.Tripod:
		return gait.Wave
	case gait.Wave:
		return gait.Ripple
	default:
		return gait.Tripod
	}
}

// axis scales a raw stick value (-128..127) to -1..1, with a deadzone
// around center.
func axis(v float64) float64 {
	if v > -deadzone && v < deadzone {
		return 0
	}

	return v / 127.0
}
