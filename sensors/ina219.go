package sensors

import (
	"fmt"

	"golang.org/x/exp/io/i2c"
)

const (
	inaRegConfig = 0x00
	inaRegShunt  = 0x01
	inaRegBus    = 0x02

	// 32V range, /8 gain, 12-bit samples, continuous shunt+bus.
	inaConfig = 0x399F

	// Bus voltage LSB is 4mV after the 3-bit status shift; shunt voltage
	// LSB is 10uV.
	inaBusLSB   = 0.004
	inaShuntLSB = 0.00001
)

// INA219 monitors the battery rail: pack voltage and instantaneous current
// through the shunt resistor.
type INA219 struct {
	dev   *i2c.Device
	shunt float64 // ohms
}

func OpenINA219(devfs string, addr int, shuntOhms float64) (*INA219, error) {
	if shuntOhms <= 0 {
		return nil, fmt.Errorf("ina219: shunt resistance must be positive")
	}

	dev, err := i2c.Open(&i2c.Devfs{Dev: devfs}, addr)
	if err != nil {
		return nil, fmt.Errorf("ina219: open: %w", err)
	}

	if err := dev.WriteReg(inaRegConfig, []byte{inaConfig >> 8, inaConfig & 0xFF}); err != nil {
		dev.Close()
		return nil, fmt.Errorf("ina219: configure: %w", err)
	}

	return &INA219{dev: dev, shunt: shuntOhms}, nil
}

func (n *INA219) Power() (Power, error) {
	buf := make([]byte, 2)

	if err := n.dev.ReadReg(inaRegBus, buf); err != nil {
		return Power{}, fmt.Errorf("ina219: bus voltage: %w", err)
	}
	raw := uint16(buf[0])<<8 | uint16(buf[1])
	volts := float64(raw>>3) * inaBusLSB

	if err := n.dev.ReadReg(inaRegShunt, buf); err != nil {
		return Power{}, fmt.Errorf("ina219: shunt voltage: %w", err)
	}
	shunt := float64(be16(buf[0], buf[1])) * inaShuntLSB

	return Power{
		Volts:     volts,
		Amps:      shunt / n.shunt,
		AmpsValid: true,
	}, nil
}

func (n *INA219) Close() error {
	return n.dev.Close()
}
