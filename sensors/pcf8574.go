package sensors

import (
	"fmt"

	"golang.org/x/exp/io/i2c"
)

// PCF8574 is the I2C expander carrying the six foot-contact switches, one
// per bit 0-5, active low (switch closes to ground when the foot loads).
type PCF8574 struct {
	dev *i2c.Device
}

func OpenPCF8574(devfs string, addr int) (*PCF8574, error) {
	dev, err := i2c.Open(&i2c.Devfs{Dev: devfs}, addr)
	if err != nil {
		return nil, fmt.Errorf("pcf8574: open: %w", err)
	}

	// All pins high: inputs with weak pull-ups.
	if err := dev.Write([]byte{0xFF}); err != nil {
		dev.Close()
		return nil, fmt.Errorf("pcf8574: init: %w", err)
	}

	return &PCF8574{dev: dev}, nil
}

func (p *PCF8574) Contacts() ([6]bool, error) {
	var out [6]bool

	buf := make([]byte, 1)
	if err := p.dev.Read(buf); err != nil {
		return out, fmt.Errorf("pcf8574: read: %w", err)
	}

	for i := 0; i < 6; i++ {
		out[i] = buf[0]&(1<<uint(i)) == 0
	}

	return out, nil
}

func (p *PCF8574) Close() error {
	return p.dev.Close()
}
