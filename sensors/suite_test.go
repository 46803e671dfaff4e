package sensors_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	fake "github.com/kevintmckay/hexapod/fake/sensors"
	"github.com/kevintmckay/hexapod/safety"
	"github.com/kevintmckay/hexapod/sensors"
)

func testSuite() (*sensors.Suite, *fake.IMU, *fake.Ranger, *fake.Contacts, *fake.Power) {
	imu := &fake.IMU{Att: sensors.Attitude{Pitch: 1, Roll: -2}}
	center := &fake.Ranger{MM: 800}
	contacts := fake.Planted()
	power := &fake.Power{P: sensors.Power{Volts: 7.9, Amps: 1.1, AmpsValid: true}}

	s := &sensors.Suite{
		IMU:      imu,
		Contacts: contacts,
		Power:    power,
	}
	s.Rangers[safety.RangeCenter] = center
	s.Rangers[safety.RangeLeft] = &fake.Ranger{MM: 130}
	s.Rangers[safety.RangeRight] = &fake.Ranger{MM: 135}

	return s, imu, center, contacts, power
}

func TestReadHealthy(t *testing.T) {
	s, _, _, _, _ := testSuite()

	now := time.Now()
	snap := s.Read(now, safety.Snapshot{})

	assert.Equal(t, now, snap.Time)
	assert.False(t, snap.Stale)
	assert.Equal(t, 1.0, snap.Pitch)
	assert.Equal(t, safety.Reading{Millimeters: 800, Valid: true}, snap.Ranges[safety.RangeCenter])
	assert.True(t, snap.Contacts[3])
	assert.Equal(t, 7.9, snap.Volts)
	assert.True(t, snap.AmpsValid)
}

// A no-return from a ranger is a measurement, not a failure: the reading
// is invalid, but the snapshot is not stale.
func TestReadNoReturn(t *testing.T) {
	s, _, center, _, _ := testSuite()
	center.Err = sensors.ErrNoReturn

	snap := s.Read(time.Now(), safety.Snapshot{})
	assert.False(t, snap.Stale)
	assert.False(t, snap.Ranges[safety.RangeCenter].Valid)
}

// A device erroring carries its previous value over and marks the
// snapshot stale.
func TestReadStale(t *testing.T) {
	s, imu, _, _, _ := testSuite()

	prev := s.Read(time.Now(), safety.Snapshot{})
	imu.Err = errors.New("bus wedged")

	snap := s.Read(time.Now(), prev)
	assert.True(t, snap.Stale)
	assert.Equal(t, prev.Pitch, snap.Pitch)
	assert.Equal(t, prev.Roll, snap.Roll)

	// Other devices are unaffected.
	assert.True(t, snap.Ranges[safety.RangeCenter].Valid)
}

func TestReadMissingDevices(t *testing.T) {
	s := &sensors.Suite{}

	snap := s.Read(time.Now(), safety.Snapshot{})
	assert.False(t, snap.Stale)
	assert.False(t, snap.AmpsValid)
}
