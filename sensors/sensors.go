// Package sensors owns everything on the far side of the I2C bus: the
// inertial sensor, the time-of-flight rangers, the foot-contact switches,
// and the power monitor. Each collaborator does its own addressing and
// unit conversion, so the rest of the program only ever sees a Snapshot.
package sensors

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kevintmckay/hexapod/safety"
)

var log = logrus.WithFields(logrus.Fields{
	"pkg": "sensors",
})

// ErrNoReturn means a ranger fired and got nothing back: the surface is
// beyond its range, or isn't there at all. This is a measurement, not a
// failure; it's what a cliff looks like.
var ErrNoReturn = errors.New("no return")

// Attitude is the body's orientation and angular rates, in degrees and
// degrees/sec.
type Attitude struct {
	Pitch     float64
	Roll      float64
	PitchRate float64
	RollRate  float64
}

type IMU interface {
	Attitude() (Attitude, error)
}

// Ranger returns a distance in mm, or ErrNoReturn for an over-range
// measurement.
type Ranger interface {
	Range() (float64, error)
}

type ContactArray interface {
	Contacts() ([6]bool, error)
}

// Power is a power monitor sample. AmpsValid is false when the source can
// only report voltage (e.g. a servo register).
type Power struct {
	Volts     float64
	Amps      float64
	AmpsValid bool
}

type PowerMonitor interface {
	Power() (Power, error)
}

// Suite aggregates one of each collaborator into per-tick snapshots. Any
// device may be nil (not fitted); a fitted device which errors contributes
// its previous value and marks the snapshot stale, so a single flaky
// device degrades the verdict rather than stalling the loop. Every
// underlying transfer is bounded by the bus's own timeout, which must be
// shorter than the tick period.
type Suite struct {
	IMU      IMU
	Rangers  [safety.NumRangers]Ranger
	Contacts ContactArray
	Power    PowerMonitor
}

// Read assembles this tick's snapshot, carrying values over from prev for
// any device which missed.
func (s *Suite) Read(now time.Time, prev safety.Snapshot) safety.Snapshot {
	snap := safety.Snapshot{Time: now}

	if s.IMU != nil {
		att, err := s.IMU.Attitude()
		if err != nil {
			log.Warnf("imu: %s", err)
			snap.Pitch, snap.Roll = prev.Pitch, prev.Roll
			snap.PitchRate, snap.RollRate = prev.PitchRate, prev.RollRate
			snap.Stale = true
		} else {
			snap.Pitch, snap.Roll = att.Pitch, att.Roll
			snap.PitchRate, snap.RollRate = att.PitchRate, att.RollRate
		}
	}

	for i, r := range s.Rangers {
		if r == nil {
			continue
		}

		mm, err := r.Range()
		switch {
		case err == nil:
			snap.Ranges[i] = safety.Reading{Millimeters: mm, Valid: true}

		case errors.Is(err, ErrNoReturn):
			// A real measurement of nothing. Not stale.
			snap.Ranges[i] = safety.Reading{}

		default:
			log.Warnf("ranger %d: %s", i, err)
			snap.Ranges[i] = prev.Ranges[i]
			snap.Stale = true
		}
	}

	if s.Contacts != nil {
		c, err := s.Contacts.Contacts()
		if err != nil {
			log.Warnf("contacts: %s", err)
			snap.Contacts = prev.Contacts
			snap.Stale = true
		} else {
			snap.Contacts = c
		}
	}

	if s.Power != nil {
		p, err := s.Power.Power()
		if err != nil {
			log.Warnf("power: %s", err)
			snap.Volts, snap.Amps, snap.AmpsValid = prev.Volts, prev.Amps, prev.AmpsValid
			snap.Stale = true
		} else {
			snap.Volts, snap.Amps, snap.AmpsValid = p.Volts, p.Amps, p.AmpsValid
		}
	}

	return snap
}
