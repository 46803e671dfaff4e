// Package config is the single file of tunables: leg geometry, the servo
// map with per-joint calibration, gait dimensions, and every safety
// threshold. Defaults match the machine as built; a JSON file overrides
// whatever it mentions.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	legscomp "github.com/kevintmckay/hexapod/components/legs"
	"github.com/kevintmckay/hexapod/gait"
	"github.com/kevintmckay/hexapod/ik"
	"github.com/kevintmckay/hexapod/safety"
	"github.com/kevintmckay/hexapod/servos"
)

// Servo is one joint's bus ID and calibration.
type Servo struct {
	ID          int                `json:"id"`
	Calibration servos.Calibration `json:"calibration"`
}

type Config struct {
	Geometry ik.Geometry     `json:"geometry"`
	Gait     gait.Params     `json:"gait"`
	GaitMode string          `json:"gait_mode"`
	Safety   safety.Config   `json:"safety"`
	Legs     legscomp.Config `json:"legs"`

	// Maximum mapped-angle change per tick, degrees.
	MaxDegPerTick float64 `json:"max_deg_per_tick"`

	// [leg][joint], legs ordered L1 L2 L3 R1 R2 R3, joints coxa femur
	// tibia. IDs are assigned so each driver board owns a contiguous,
	// disjoint range.
	Servos [6][servos.NumJoints]Servo `json:"servos"`
}

// Default returns the configuration of the machine as built: CAD link
// lengths, servo IDs 1-18 in leg order, right side mirrored.
func Default() Config {
	c := Config{
		Geometry: ik.Geometry{
			CoxaLength:  50,
			FemurLength: 80,
			TibiaLength: 120,
		},
		Gait:          gait.DefaultParams(),
		GaitMode:      string(gait.Tripod),
		Safety:        safety.DefaultConfig(),
		Legs:          legscomp.DefaultConfig(),
		MaxDegPerTick: 9,
	}

	for leg := 0; leg < 6; leg++ {
		for j := 0; j < int(servos.NumJoints); j++ {
			cal := servos.DefaultCalibration()
			if leg >= 3 {
				cal.Sign = -1
			}

			c.Servos[leg][j] = Servo{
				ID:          leg*int(servos.NumJoints) + j + 1,
				Calibration: cal,
			}
		}
	}

	return c
}

// Load returns the defaults overlaid with the given JSON file. A missing
// file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	c := Default()

	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("config: %w", err)
	}

	if err := json.Unmarshal(buf, &c); err != nil {
		return c, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := c.Geometry.Validate(); err != nil {
		return c, fmt.Errorf("config: %w", err)
	}

	return c, nil
}

// Save writes the configuration back out, for the calibration tool.
func (c Config) Save(path string) error {
	buf, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	return os.WriteFile(path, append(buf, '\n'), 0644)
}

// Calibrations returns the [leg][joint] calibration table for the servo
// commander.
func (c Config) Calibrations() [6][servos.NumJoints]servos.Calibration {
	var out [6][servos.NumJoints]servos.Calibration
	for leg := 0; leg < 6; leg++ {
		for j := 0; j < int(servos.NumJoints); j++ {
			out[leg][j] = c.Servos[leg][j].Calibration
		}
	}
	return out
}
