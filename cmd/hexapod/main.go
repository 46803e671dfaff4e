package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adammck/dynamixel/network"
	"github.com/jacobsa/go-serial/serial"
	"github.com/sirupsen/logrus"

	"github.com/kevintmckay/hexapod"
	"github.com/kevintmckay/hexapod/components/controller"
	"github.com/kevintmckay/hexapod/components/legs"
	"github.com/kevintmckay/hexapod/config"
	"github.com/kevintmckay/hexapod/gait"
	"github.com/kevintmckay/hexapod/safety"
	"github.com/kevintmckay/hexapod/sensors"
	"github.com/kevintmckay/hexapod/servos"
)

var (
	portName   = flag.String("port", "/dev/ttyACM0", "the servo bus serial port")
	i2cName    = flag.String("i2c", "/dev/i2c-1", "the sensor bus device")
	inputName  = flag.String("input", "/dev/input/event0", "the sixaxis event device")
	configPath = flag.String("config", "config.json", "the config file path")
	debug      = flag.Bool("debug", false, "show debug logging")

	// Addresses of the three rangers on the sensor bus, re-addressed at
	// power-up by their XSHUT lines.
	rangerAddrs = [safety.NumRangers]int{0x29, 0x2A, 0x2B}
)

const (
	// 50Hz: comfortably above the 20Hz floor for a smooth gait, and slow
	// enough that the full sensors-then-actuators bus walk fits in one
	// period.
	tickRate = 20 * time.Millisecond
)

func main() {
	flag.Parse()

	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	log := logrus.WithFields(logrus.Fields{
		"pkg": "main",
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %s", err)
	}

	log.Infof("opening servo bus on %s", *portName)
	port, err := serial.Open(serial.OpenOptions{
		PortName:        *portName,
		BaudRate:        1000000,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 0,

		// Bounds every bus read, so one dead servo can't stall a tick.
		InterCharacterTimeout: 5,
	})
	if err != nil {
		log.Fatalf("opening serial port: %s", err)
	}
	defer port.Close()

	n := network.New(port)
	n.Flush()

	// Bring up all eighteen servos. Any one failing to answer is fatal;
	// walking on seventeen legs' worth of joints bends things.
	var acts [6][servos.NumJoints]servos.Actuator
	var volt sensors.HasVoltage
	for leg := 0; leg < 6; leg++ {
		for j := 0; j < int(servos.NumJoints); j++ {
			s, err := servos.New(n, cfg.Servos[leg][j].ID)
			if err != nil {
				log.Fatalf("booting servos: %s", err)
			}

			acts[leg][j] = s
			if volt == nil {
				volt = s
			}
		}
	}
	defer servos.Shutdown()

	commander := servos.NewCommander(n, acts, cfg.Calibrations(), cfg.MaxDegPerTick)

	suite := buildSuite(log, volt)
	supervisor := safety.New(cfg.Safety)
	sequencer := gait.New(gait.ParseMode(cfg.GaitMode), cfg.Gait, legs.DefaultPlacements())

	h := hexapod.New()
	h.State.GaitMode = cfg.GaitMode

	l := legs.New(cfg.Geometry, sequencer, supervisor, commander, suite, cfg.Legs)

	log.Infof("opening controller on %s", *inputName)
	f, err := os.Open(*inputName)
	if err != nil {
		log.Warnf("no controller: %s (walking nowhere)", err)
	} else {
		defer f.Close()
		h.Add(controller.New(f))
	}

	h.Add(l)

	if err := h.Boot(); err != nil {
		log.Fatalf("booting: %s", err)
	}

	// Catch SIGINT and SIGTERM, so the hex sits down and powers off its
	// servos before exiting.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info("caught signal, shutting down")
		h.State.Shutdown = true
	}()

	// The ticker drops ticks rather than queueing them: if one tick
	// overruns its period, the next fires a full period later, so lag
	// never accumulates.
	log.Info("starting loop")
	t := time.NewTicker(tickRate)
	defer t.Stop()

	for now := range t.C {
		if err := h.Tick(now); err != nil {
			log.Errorf("tick: %s", err)
		}

		if h.State.Shutdown && l.Halted() {
			break
		}
	}

	log.Info("parked, exiting")
}

// buildSuite opens whichever sensors are fitted. A missing sensor is a
// warning, not an error; the supervisor treats absent readings
// conservatively.
func buildSuite(log *logrus.Entry, volt sensors.HasVoltage) *sensors.Suite {
	suite := &sensors.Suite{}

	imu, err := sensors.OpenMPU6050(*i2cName)
	if err != nil {
		log.Warnf("no imu: %s", err)
	} else {
		suite.IMU = imu
	}

	for i, addr := range rangerAddrs {
		r, err := sensors.OpenVL53L0X(*i2cName, addr)
		if err != nil {
			log.Warnf("no ranger %d: %s", i, err)
			continue
		}
		suite.Rangers[i] = r
	}

	contacts, err := sensors.OpenPCF8574(*i2cName, 0x20)
	if err != nil {
		log.Warnf("no contact switches: %s", err)
	} else {
		suite.Contacts = contacts
	}

	power, err := sensors.OpenINA219(*i2cName, 0x40, 0.1)
	if err != nil {
		log.Warnf("no power monitor: %s, falling back to servo voltage", err)
		suite.Power = sensors.NewServoVoltage(volt)
	} else {
		suite.Power = power
	}

	return suite
}
