// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"fmt"
	"time"
)

// IMURaw is one raw accelerometer reading in sensor counts.
type IMURaw struct {
	Source string `json:"source"`

	Ax int16 `json:"ax"`
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`
}

// IMURawReader reads one raw accelerometer sample from a device.
type IMURawReader interface {
	ReadRaw() (IMURaw, error)
}

// countsPerG maps the MPU9250 ACCEL_FS_SEL code (0=±2g .. 3=±16g) to LSB/g.
var countsPerG = [...]float64{16384, 8192, 4096, 2048}

// FromRaw converts a raw reading into a Sample in g, stamped with ts.
func FromRaw(raw IMURaw, accelRange byte, ts time.Time) (Sample, error) {
	if int(accelRange) >= len(countsPerG) {
		return Sample{}, fmt.Errorf("accel range code %d out of range 0-3", accelRange)
	}
	scale := countsPerG[accelRange]
	return Sample{
		Timestamp: ts,
		X:         float64(raw.Ax) / scale,
		Y:         float64(raw.Ay) / scale,
		Z:         float64(raw.Az) / scale,
	}, nil
}
