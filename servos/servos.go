// Package servos is the boundary between joint angles and the physical
// actuators: per-joint calibration, rate limiting, channel routing, and
// batched dispatch over the shared bus.
package servos

import (
	"fmt"

	"github.com/adammck/dynamixel/network"
	"github.com/adammck/dynamixel/servo"
	"github.com/adammck/dynamixel/servo/ax"
)

// Pool tracks every servo we've brought up, so they can all be powered
// down at shutdown even if later bring-up steps failed.
type Pool []*servo.Servo

var pool Pool

// New brings up the servo with the given bus ID and adds it to the pool.
// Writes are unacknowledged (return level 1) and buffered; buffered
// instructions execute together when the bus ACTION fires at the end of
// each tick.
func New(n *network.Network, id int) (*servo.Servo, error) {
	s, err := ax.New(n, id)
	if err != nil {
		return nil, err
	}

	// Must be first, so the servo is in a known state before we send
	// anything else.
	if err := s.SetReturnLevel(1); err != nil {
		return nil, fmt.Errorf("servo #%d: set return level: %w", id, err)
	}

	if err := s.Ping(); err != nil {
		return nil, fmt.Errorf("servo #%d: ping: %w", id, err)
	}

	// In the pool from here on, so a failure below still powers it down
	// at shutdown.
	pool = append(pool, s)

	if err := s.SetReturnDelayTime(0); err != nil {
		return nil, fmt.Errorf("servo #%d: set return delay: %w", id, err)
	}

	if err := s.SetTorqueEnable(true); err != nil {
		return nil, fmt.Errorf("servo #%d: enable torque: %w", id, err)
	}

	if err := s.SetMovingSpeed(1023); err != nil {
		return nil, fmt.Errorf("servo #%d: set moving speed: %w", id, err)
	}

	s.SetBuffered(true)

	return s, nil
}

// Shutdown powers off every servo in the pool. Call before exiting, so
// nothing stays torqued up indefinitely.
func Shutdown() {
	for _, s := range pool {
		s.SetTorqueEnable(false)
		s.SetLED(false)
	}
}
