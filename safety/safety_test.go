package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// healthy returns a snapshot with everything in the green.
func healthy() Snapshot {
	return Snapshot{
		Pitch: 2, Roll: -1,
		Ranges: [NumRangers]Reading{
			RangeCenter: {Millimeters: 900, Valid: true},
			RangeLeft:   {Millimeters: 140, Valid: true},
			RangeRight:  {Millimeters: 140, Valid: true},
		},
		Contacts:  [6]bool{true, true, true, true, true, true},
		Volts:     7.8,
		Amps:      0.9,
		AmpsValid: true,
	}
}

func TestNominal(t *testing.T) {
	s := New(DefaultConfig())

	v := s.Evaluate(healthy())
	assert.Equal(t, Nominal, v.Kind)
	assert.Equal(t, 1.0, v.Factor)
	assert.Equal(t, 1.0, v.ForwardFactor)
}

// A downward ranger going from a valid ground return to no return on the
// next tick is a cliff, and names the side which triggered.
func TestCliff(t *testing.T) {
	s := New(DefaultConfig())
	s.Evaluate(healthy())

	snap := healthy()
	snap.Ranges[RangeLeft].Valid = false

	v := s.Evaluate(snap)
	assert.Equal(t, Recover, v.Kind)
	assert.Equal(t, CliffDetected, v.Reason)
	assert.Equal(t, RangeLeft, v.Side)
}

// A ranger which has never returned anything is not a cliff; only the
// valid-to-invalid transition is.
func TestNoCliffWithoutTransition(t *testing.T) {
	s := New(DefaultConfig())

	snap := healthy()
	snap.Ranges[RangeRight].Valid = false

	s.Evaluate(snap)
	v := s.Evaluate(snap)
	assert.Equal(t, Nominal, v.Kind)
}

func TestTilt(t *testing.T) {
	s := New(DefaultConfig())

	snap := healthy()
	snap.Roll = -40

	v := s.Evaluate(snap)
	assert.Equal(t, Recover, v.Kind)
	assert.Equal(t, TippingOrFallen, v.Reason)
}

// Cliff outranks tilt: rules are evaluated in priority order.
func TestPriority(t *testing.T) {
	s := New(DefaultConfig())
	s.Evaluate(healthy())

	snap := healthy()
	snap.Ranges[RangeRight].Valid = false
	snap.Pitch = 50

	v := s.Evaluate(snap)
	assert.Equal(t, CliffDetected, v.Reason)
}

// Battery under the critical threshold halts, and the halt is latched:
// every subsequent verdict is Halt no matter what the sensors say, until
// an external reset.
func TestBatteryHaltLatch(t *testing.T) {
	s := New(DefaultConfig())

	snap := healthy()
	snap.Volts = 6.4

	v := s.Evaluate(snap)
	assert.Equal(t, Halt, v.Kind)
	assert.True(t, s.Halted())

	// Voltage recovers (sag under load ended); still halted.
	for i := 0; i < 10; i++ {
		v = s.Evaluate(healthy())
		assert.Equal(t, Halt, v.Kind)
	}

	s.Reset()
	v = s.Evaluate(healthy())
	assert.Equal(t, Nominal, v.Kind)
}

// Overcurrent must persist for the full debounce window before the verdict
// changes, and must stay quiet for the full window before it clears. A
// momentary dip below the threshold must not clear it.
func TestOvercurrentHysteresis(t *testing.T) {
	cfg := DefaultConfig()
	s := New(cfg)

	hot := healthy()
	hot.Amps = 5.0

	// Not yet: under the debounce window.
	for i := 0; i < cfg.StallDebounceTicks; i++ {
		v := s.Evaluate(hot)
		assert.Equal(t, Nominal, v.Kind, "tick %d", i)
	}

	// One more and it trips, with a factor proportional to the overload.
	v := s.Evaluate(hot)
	assert.Equal(t, ReduceSpeed, v.Kind)
	assert.InDelta(t, cfg.StallAmps/5.0, v.Factor, 0.0001)

	// A single quiet tick does not clear it.
	v = s.Evaluate(healthy())
	assert.Equal(t, ReduceSpeed, v.Kind)

	// Nor does dipping below and spiking again.
	v = s.Evaluate(hot)
	assert.Equal(t, ReduceSpeed, v.Kind)

	// A full quiet window does.
	for i := 0; i <= cfg.StallDebounceTicks; i++ {
		s.Evaluate(healthy())
	}
	v = s.Evaluate(healthy())
	assert.Equal(t, Nominal, v.Kind)
}

func TestOvercurrentFactorFloor(t *testing.T) {
	cfg := DefaultConfig()
	s := New(cfg)

	hot := healthy()
	hot.Amps = 100

	for i := 0; i < cfg.StallDebounceTicks+2; i++ {
		s.Evaluate(hot)
	}

	v := s.Evaluate(hot)
	assert.Equal(t, ReduceSpeed, v.Kind)
	assert.Equal(t, cfg.MinFactor, v.Factor)
}

// An obstacle ahead scales only the forward component, reaching zero at
// the stop distance. Lateral and turning motion remain permitted.
func TestObstacle(t *testing.T) {
	cfg := DefaultConfig()
	s := New(cfg)

	snap := healthy()
	snap.Ranges[RangeCenter].Millimeters = (cfg.ObstacleMM + cfg.StopMM) / 2

	v := s.Evaluate(snap)
	assert.Equal(t, ReduceSpeed, v.Kind)
	assert.Equal(t, 1.0, v.Factor)
	assert.InDelta(t, 0.5, v.ForwardFactor, 0.0001)

	snap.Ranges[RangeCenter].Millimeters = cfg.StopMM - 10
	v = s.Evaluate(snap)
	assert.Equal(t, ReduceSpeed, v.Kind)
	assert.Equal(t, 0.0, v.ForwardFactor)
}

// A stale snapshot with nothing else wrong biases conservative.
func TestStale(t *testing.T) {
	cfg := DefaultConfig()
	s := New(cfg)

	snap := healthy()
	snap.Stale = true

	v := s.Evaluate(snap)
	assert.Equal(t, ReduceSpeed, v.Kind)
	assert.Equal(t, cfg.StaleFactor, v.Factor)
}

// Without a current monitor the stall rule never fires.
func TestNoCurrentMonitor(t *testing.T) {
	s := New(DefaultConfig())

	snap := healthy()
	snap.AmpsValid = false
	snap.Amps = 50

	for i := 0; i < 20; i++ {
		v := s.Evaluate(snap)
		assert.Equal(t, Nominal, v.Kind)
	}
}
