// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/relabs-tech/activity_classifier/internal/activity"
	"github.com/relabs-tech/activity_classifier/internal/imu"
	"github.com/relabs-tech/activity_classifier/internal/timeutil"
)

// Profile describes the synthetic vertical acceleration of one activity:
// a sinusoid on top of 1g plus uniform noise, all in g.
type Profile struct {
	Frequency float64 // Hz
	Amplitude float64
	Noise     float64
}

// Profiles holds the synthetic motion used by the mock reader.
var Profiles = map[activity.Type]Profile{
	activity.Unknown:    {Frequency: 0.7, Amplitude: 0.9, Noise: 0.6},
	activity.Walking:    {Frequency: 2.0, Amplitude: 0.35, Noise: 0.03},
	activity.Running:    {Frequency: 2.8, Amplitude: 0.9, Noise: 0.05},
	activity.Cycling:    {Frequency: 1.4, Amplitude: 0.14, Noise: 0.02},
	activity.Automotive: {Frequency: 0.3, Amplitude: 0.03, Noise: 0.02},
	activity.Bus:        {Frequency: 0.2, Amplitude: 0.05, Noise: 0.025},
	activity.Rail:       {Frequency: 0.1, Amplitude: 0.02, Noise: 0.01},
	activity.Stationary: {Frequency: 0, Amplitude: 0, Noise: 0.004},
	activity.Aviation:   {Frequency: 0.05, Amplitude: 0.02, Noise: 0.015},
}

type mockReader struct {
	clock      timeutil.Clock
	start      time.Time
	accelRange byte

	mu      sync.Mutex
	profile Profile
	rng     *rand.Rand
}

// NewMockReader returns a reader that synthesizes accelerometer counts for
// the given activity. The noise sequence is fixed by seed.
func NewMockReader(kind activity.Type, accelRange byte, clock timeutil.Clock, seed uint64) imu.IMURawReader {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &mockReader{
		clock:      clock,
		start:      clock.Now(),
		accelRange: accelRange,
		profile:    Profiles[kind],
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (m *mockReader) ReadRaw() (imu.IMURaw, error) {
	elapsed := m.clock.Since(m.start).Seconds()

	m.mu.Lock()
	p := m.profile
	noise := func() float64 { return p.Noise * (2*m.rng.Float64() - 1) }
	x := noise()
	y := noise()
	z := 1 + p.Amplitude*math.Sin(2*math.Pi*p.Frequency*elapsed) + noise()
	m.mu.Unlock()

	scale := float64(32768 / accelRangeG[m.accelRange&3])
	return imu.IMURaw{
		Source: "mock",
		Ax:     clampCounts(x * scale),
		Ay:     clampCounts(y * scale),
		Az:     clampCounts(z * scale),
	}, nil
}

func clampCounts(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(math.Round(v))
}

// NewMockSource is a PollingSource over a mock reader.
func NewMockSource(kind activity.Type, clock timeutil.Clock) *PollingSource {
	const accelRange = 1 // ±4g leaves headroom for running
	return NewPollingSource(NewMockReader(kind, accelRange, clock, 1), accelRange, clock)
}
