// Calibration helper: centers every servo so the mechanical zero can be
// checked against the kinematic zero, reads back present angles, and
// records per-joint offsets into the config file.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/adammck/dynamixel/network"
	"github.com/jacobsa/go-serial/serial"

	"github.com/kevintmckay/hexapod/config"
	"github.com/kevintmckay/hexapod/servos"
)

var (
	portName   = flag.String("port", "/dev/ttyACM0", "the servo bus serial port")
	configPath = flag.String("config", "config.json", "the config file path")

	read   = flag.Bool("read", false, "read present angles instead of centering")
	leg    = flag.Int("leg", -1, "leg index (0-5) to set an offset for")
	joint  = flag.Int("joint", -1, "joint index (0=coxa 1=femur 2=tibia)")
	offset = flag.Float64("offset", 0, "calibration offset in degrees")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("loading config: %s", err)
	}

	// Just recording an offset doesn't need the bus.
	if *leg >= 0 {
		if *leg > 5 || *joint < 0 || *joint >= int(servos.NumJoints) {
			fatal("bad -leg/-joint")
		}

		cfg.Servos[*leg][*joint].Calibration.Offset = *offset
		if err := cfg.Save(*configPath); err != nil {
			fatal("saving config: %s", err)
		}

		fmt.Printf("leg %d joint %d offset=%.1f saved to %s\n", *leg, *joint, *offset, *configPath)
		return
	}

	port, err := serial.Open(serial.OpenOptions{
		PortName:              *portName,
		BaudRate:              1000000,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: 5,
	})
	if err != nil {
		fatal("opening serial port: %s", err)
	}
	defer port.Close()

	n := network.New(port)
	n.Flush()

	for l := 0; l < 6; l++ {
		for j := 0; j < int(servos.NumJoints); j++ {
			id := cfg.Servos[l][j].ID
			s, err := servos.New(n, id)
			if err != nil {
				fatal("servo #%d: %s", id, err)
			}
			s.SetBuffered(false)

			if *read {
				// Torque off, so the joints can be posed by hand while
				// reading them back.
				if err := s.SetTorqueEnable(false); err != nil {
					fatal("servo #%d: %s", id, err)
				}

				a, err := s.Angle()
				if err != nil {
					fatal("servo #%d: %s", id, err)
				}
				fmt.Printf("leg %d joint %d (#%d): %.1f\n", l, j, id, a)
				continue
			}

			// Mapped center: where the kinematic zero should land.
			if err := s.MoveTo(cfg.Servos[l][j].Calibration.Offset); err != nil {
				fatal("servo #%d: %s", id, err)
			}
		}
	}

	// Torque stays on after centering, so the pose holds while the offsets
	// are measured against it.
	if !*read {
		fmt.Println("centered; torque left on")
	}
}

func fatal(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(1)
}
