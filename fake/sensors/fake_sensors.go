// Fake sensor collaborators, for testing the suite and the control loop
// without a live bus. Each returns whatever its fields say, so tests can
// script a scenario tick by tick.
package sensors

import (
	"github.com/kevintmckay/hexapod/sensors"
)

type IMU struct {
	Att sensors.Attitude
	Err error
}

func (f *IMU) Attitude() (sensors.Attitude, error) {
	return f.Att, f.Err
}

type Ranger struct {
	MM  float64
	Err error
}

func (f *Ranger) Range() (float64, error) {
	if f.Err != nil {
		return 0, f.Err
	}
	return f.MM, nil
}

type Contacts struct {
	C   [6]bool
	Err error
}

func (f *Contacts) Contacts() ([6]bool, error) {
	return f.C, f.Err
}

type Power struct {
	P   sensors.Power
	Err error
}

func (f *Power) Power() (sensors.Power, error) {
	if f.Err != nil {
		return sensors.Power{}, f.Err
	}
	return f.P, nil
}

// Planted returns a contact array with all six feet loaded.
func Planted() *Contacts {
	return &Contacts{C: [6]bool{true, true, true, true, true, true}}
}
