package sensors

import (
	"fmt"
	"time"

	"golang.org/x/exp/io/i2c"
)

const (
	vlModelID      = 0xC0
	vlExpectedID   = 0xEE
	vlSysrange     = 0x00
	vlIntStatus    = 0x13
	vlIntClear     = 0x0B
	vlResultRange  = 0x1E
	vlStartSingle  = 0x01
	vlPollInterval = time.Millisecond
	vlPollTimeout  = 30 * time.Millisecond

	// The sensor reports 8190/8191 mm when it gets no return.
	vlOverRange = 8190
)

// VL53L0X is one time-of-flight ranger, in single-shot mode. Three of them
// share the bus behind distinct addresses (re-addressed at power-up by the
// XSHUT lines, outside this program).
type VL53L0X struct {
	dev *i2c.Device
}

func OpenVL53L0X(devfs string, addr int) (*VL53L0X, error) {
	dev, err := i2c.Open(&i2c.Devfs{Dev: devfs}, addr)
	if err != nil {
		return nil, fmt.Errorf("vl53l0x 0x%02x: open: %w", addr, err)
	}

	id := make([]byte, 1)
	if err := dev.ReadReg(vlModelID, id); err != nil {
		dev.Close()
		return nil, fmt.Errorf("vl53l0x 0x%02x: model id: %w", addr, err)
	}
	if id[0] != vlExpectedID {
		dev.Close()
		return nil, fmt.Errorf("vl53l0x 0x%02x: unexpected model id 0x%02x", addr, id[0])
	}

	return &VL53L0X{dev: dev}, nil
}

// Range fires one measurement and returns the distance in mm, ErrNoReturn
// for an over-range result, or an error if the sensor doesn't finish
// within the poll timeout. The timeout keeps a wedged sensor from stalling
// the control loop; the caller treats it as a stale reading.
func (v *VL53L0X) Range() (float64, error) {
	if err := v.dev.WriteReg(vlSysrange, []byte{vlStartSingle}); err != nil {
		return 0, fmt.Errorf("vl53l0x: start: %w", err)
	}

	status := make([]byte, 1)
	deadline := time.Now().Add(vlPollTimeout)
	for {
		if err := v.dev.ReadReg(vlIntStatus, status); err != nil {
			return 0, fmt.Errorf("vl53l0x: poll: %w", err)
		}
		if status[0]&0x07 != 0 {
			break
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("vl53l0x: measurement timed out")
		}
		time.Sleep(vlPollInterval)
	}

	buf := make([]byte, 2)
	if err := v.dev.ReadReg(vlResultRange, buf); err != nil {
		return 0, fmt.Errorf("vl53l0x: read: %w", err)
	}

	if err := v.dev.WriteReg(vlIntClear, []byte{0x01}); err != nil {
		return 0, fmt.Errorf("vl53l0x: clear: %w", err)
	}

	mm := float64(uint16(buf[0])<<8 | uint16(buf[1]))
	if mm >= vlOverRange {
		return 0, ErrNoReturn
	}

	return mm, nil
}

func (v *VL53L0X) Close() error {
	return v.dev.Close()
}
