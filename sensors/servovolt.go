package sensors

import (
	"fmt"
)

// HasVoltage is anything which can report a supply voltage. The dynamixel
// servo type satisfies it; every servo sees the battery rail.
type HasVoltage interface {
	Voltage() (float64, error)
}

// ServoVoltage is the fallback power monitor for machines without an
// INA219: the pack voltage comes from an arbitrary servo's register, and
// current is unavailable, so the stall rule never fires.
type ServoVoltage struct {
	src HasVoltage
}

func NewServoVoltage(src HasVoltage) *ServoVoltage {
	return &ServoVoltage{src: src}
}

func (s *ServoVoltage) Power() (Power, error) {
	v, err := s.src.Voltage()
	if err != nil {
		return Power{}, fmt.Errorf("servo voltage: %w", err)
	}

	return Power{Volts: v}, nil
}
