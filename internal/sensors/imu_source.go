// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/activity_classifier/internal/imu"
	"github.com/relabs-tech/activity_classifier/internal/timeutil"
)

// accelRangeG is the full scale of each ACCEL_FS_SEL code.
var accelRangeG = [...]int{2, 4, 8, 16}

// MPU9250Config selects the SPI device and accelerometer scale.
type MPU9250Config struct {
	Name       string // used in log lines and IMURaw.Source
	SPIDevice  string // e.g. /dev/spidev0.0
	CSPin      string // GPIO name for chip select
	AccelRange byte   // 0=±2g .. 3=±16g
	SelfTest   bool
}

type mpuReader struct {
	name string
	dev  *mpu9250.MPU9250
}

// NewMPU9250Reader initializes an MPU9250 over SPI and returns a reader for
// its accelerometer.
func NewMPU9250Reader(cfg MPU9250Config) (imu.IMURawReader, error) {
	if int(cfg.AccelRange) >= len(accelRangeG) {
		return nil, fmt.Errorf("%s IMU: accel range code %d out of range 0-3", cfg.Name, cfg.AccelRange)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: periph host init: %w", cfg.Name, err)
	}

	cs := gpioreg.ByName(cfg.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("%s IMU: CS pin %q not found", cfg.Name, cfg.CSPin)
	}

	tr, err := mpu9250.NewSpiTransport(cfg.SPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: SPI transport (%s): %w", cfg.Name, cfg.SPIDevice, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: device creation: %w", cfg.Name, err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: initialization: %w", cfg.Name, err)
	}

	if err := dev.SetAccelRange(cfg.AccelRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set accel range: %w", cfg.Name, err)
	}
	log.Printf("%s IMU: accelerometer range set to %d (±%dg)", cfg.Name, cfg.AccelRange, accelRangeG[cfg.AccelRange])

	if cfg.SelfTest {
		if _, err := dev.SelfTest(); err != nil {
			log.Printf("Warning: %s IMU self-test failed: %v", cfg.Name, err)
		} else {
			log.Printf("%s IMU self-test passed", cfg.Name)
		}
	}
	if err := dev.Calibrate(); err != nil {
		log.Printf("Warning: %s IMU calibration failed: %v", cfg.Name, err)
	} else {
		log.Printf("%s IMU calibration complete", cfg.Name)
	}

	return &mpuReader{name: cfg.Name, dev: dev}, nil
}

// ReadRaw reads one accelerometer sample.
func (r *mpuReader) ReadRaw() (imu.IMURaw, error) {
	ax, err := r.dev.GetAccelerationX()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel X: %w", r.name, err)
	}
	ay, err := r.dev.GetAccelerationY()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel Y: %w", r.name, err)
	}
	az, err := r.dev.GetAccelerationZ()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel Z: %w", r.name, err)
	}
	return imu.IMURaw{Source: r.name, Ax: ax, Ay: ay, Az: az}, nil
}

// NewMPU9250Source initializes the device and wraps it in a PollingSource.
func NewMPU9250Source(cfg MPU9250Config, clock timeutil.Clock) (*PollingSource, error) {
	reader, err := NewMPU9250Reader(cfg)
	if err != nil {
		return nil, err
	}
	return NewPollingSource(reader, cfg.AccelRange, clock), nil
}
