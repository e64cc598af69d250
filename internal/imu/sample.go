// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrOutOfOrderSample is returned when a sample is older than the last one
// already held by a Buffer.
var ErrOutOfOrderSample = errors.New("out of order sample")

// Sample is a single accelerometer reading in g.
type Sample struct {
	Timestamp time.Time `json:"ts"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
}

// Magnitude returns the Euclidean norm of the acceleration vector.
func (s Sample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// Buffer holds the samples captured during one sampling window, in
// non-decreasing timestamp order.
type Buffer struct {
	samples []Sample
	start   time.Time
}

// NewBuffer returns an empty buffer with room for capacity samples.
func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{samples: make([]Sample, 0, capacity)}
}

// Append adds s to the end of the buffer. The buffer is left unchanged when
// s is older than the last sample.
func (b *Buffer) Append(s Sample) error {
	if n := len(b.samples); n > 0 {
		last := b.samples[n-1].Timestamp
		if s.Timestamp.Before(last) {
			return fmt.Errorf("%w: %s precedes %s by %s", ErrOutOfOrderSample,
				s.Timestamp.Format(time.RFC3339Nano), last.Format(time.RFC3339Nano), last.Sub(s.Timestamp))
		}
	} else {
		b.start = s.Timestamp
	}
	b.samples = append(b.samples, s)
	return nil
}

func (b *Buffer) IsEmpty() bool { return len(b.samples) == 0 }

func (b *Buffer) Len() int { return len(b.samples) }

// ReferenceStart is the timestamp of the first sample, or the zero time for
// an empty buffer.
func (b *Buffer) ReferenceStart() time.Time { return b.start }

// DurationCovered is the span between the first and last sample.
func (b *Buffer) DurationCovered() time.Duration {
	if len(b.samples) < 2 {
		return 0
	}
	return b.samples[len(b.samples)-1].Timestamp.Sub(b.start)
}

// Samples returns a copy of the buffered samples.
func (b *Buffer) Samples() []Sample {
	out := make([]Sample, len(b.samples))
	copy(out, b.samples)
	return out
}

// Offsets returns each sample's offset from ReferenceStart.
func (b *Buffer) Offsets() []time.Duration {
	out := make([]time.Duration, len(b.samples))
	for i, s := range b.samples {
		out[i] = s.Timestamp.Sub(b.start)
	}
	return out
}
