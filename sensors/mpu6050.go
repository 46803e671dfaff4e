package sensors

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/io/i2c"
)

// MPU-6050 register map (the handful we use).
const (
	mpuAddr       = 0x68
	mpuWhoAmI     = 0x75
	mpuPwrMgmt1   = 0x6B
	mpuAccelXoutH = 0x3B

	// LSB per g at +/-2g, and LSB per deg/s at +/-250 deg/s.
	mpuAccelScale = 16384.0
	mpuGyroScale  = 131.0

	// Complementary filter weight on the integrated gyro term.
	mpuFilterAlpha = 0.98
)

// MPU6050 is the inertial sensor: accelerometer plus gyro, fused with a
// complementary filter into pitch and roll.
type MPU6050 struct {
	dev *i2c.Device

	pitch float64
	roll  float64
	last  time.Time
}

func OpenMPU6050(devfs string) (*MPU6050, error) {
	dev, err := i2c.Open(&i2c.Devfs{Dev: devfs}, mpuAddr)
	if err != nil {
		return nil, fmt.Errorf("mpu6050: open: %w", err)
	}

	id := make([]byte, 1)
	if err := dev.ReadReg(mpuWhoAmI, id); err != nil {
		dev.Close()
		return nil, fmt.Errorf("mpu6050: whoami: %w", err)
	}
	if id[0] != 0x68 {
		dev.Close()
		return nil, fmt.Errorf("mpu6050: unexpected id 0x%02x", id[0])
	}

	// Wake it up; it boots asleep.
	if err := dev.WriteReg(mpuPwrMgmt1, []byte{0x00}); err != nil {
		dev.Close()
		return nil, fmt.Errorf("mpu6050: wake: %w", err)
	}

	return &MPU6050{dev: dev}, nil
}

func (m *MPU6050) Attitude() (Attitude, error) {

	// Accel XYZ, temperature, gyro XYZ: seven big-endian int16s in one
	// burst read.
	buf := make([]byte, 14)
	if err := m.dev.ReadReg(mpuAccelXoutH, buf); err != nil {
		return Attitude{}, fmt.Errorf("mpu6050: read: %w", err)
	}

	ax := float64(be16(buf[0], buf[1])) / mpuAccelScale
	ay := float64(be16(buf[2], buf[3])) / mpuAccelScale
	az := float64(be16(buf[4], buf[5])) / mpuAccelScale
	gx := float64(be16(buf[8], buf[9])) / mpuGyroScale
	gy := float64(be16(buf[10], buf[11])) / mpuGyroScale

	// Attitude from gravity alone. Noisy but drift-free.
	accPitch := deg(math.Atan2(-ax, math.Hypot(ay, az)))
	accRoll := deg(math.Atan2(ay, az))

	now := time.Now()
	if m.last.IsZero() {
		// First sample: trust gravity outright.
		m.pitch, m.roll = accPitch, accRoll
	} else {
		// Integrate the gyro, then pull towards the accelerometer. The
		// gyro term tracks fast motion; the accel term kills the drift.
		dt := now.Sub(m.last).Seconds()
		m.pitch = mpuFilterAlpha*(m.pitch+gy*dt) + (1-mpuFilterAlpha)*accPitch
		m.roll = mpuFilterAlpha*(m.roll+gx*dt) + (1-mpuFilterAlpha)*accRoll
	}
	m.last = now

	return Attitude{
		Pitch:     m.pitch,
		Roll:      m.roll,
		PitchRate: gy,
		RollRate:  gx,
	}, nil
}

func (m *MPU6050) Close() error {
	return m.dev.Close()
}

func be16(hi, lo byte) int16 {
	return int16(uint16(hi)<<8 | uint16(lo))
}

func deg(rads float64) float64 {
	return rads / (math.Pi / 180)
}
