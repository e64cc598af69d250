// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package classifier provides a reference activity classifier built on
// simple acceleration-magnitude statistics.
package classifier

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/activity_classifier/internal/activity"
	"github.com/relabs-tech/activity_classifier/internal/imu"
)

// ErrInsufficientSamples is returned when a window holds too few samples to
// score after decimation.
var ErrInsufficientSamples = errors.New("classifier: insufficient samples")

// SpeedProvider supplies the latest ground speed in m/s, if fresh.
type SpeedProvider interface {
	Speed() (float64, bool)
}

// Config tunes the Heuristic classifier.
type Config struct {
	SampleRate float64       // Hz expected after decimation
	Window     time.Duration // span of one classification window
}

// DefaultConfig is 25 Hz over a 2 s window.
func DefaultConfig() Config {
	return Config{SampleRate: 25, Window: 2 * time.Second}
}

// band is a Gaussian membership over one feature.
type band struct {
	center, width float64
}

func (b band) weight(v float64) float64 {
	d := (v - b.center) / b.width
	return math.Exp(-d * d / 2)
}

// signature is what each activity looks like in feature space. A zero
// band width means the feature does not discriminate that activity.
type signature struct {
	stddev  band // g, of the magnitude
	cadence band // Hz, from mean crossings
	speed   band // m/s, from GPS
}

var signatures = map[activity.Type]signature{
	activity.Stationary: {stddev: band{0.003, 0.004}, speed: band{0, 0.7}},
	activity.Walking:    {stddev: band{0.25, 0.08}, cadence: band{2.0, 0.4}, speed: band{1.4, 0.6}},
	activity.Running:    {stddev: band{0.62, 0.15}, cadence: band{2.8, 0.4}, speed: band{3.2, 1.0}},
	activity.Cycling:    {stddev: band{0.1, 0.04}, cadence: band{1.4, 0.4}, speed: band{5.5, 2.0}},
	activity.Automotive: {stddev: band{0.03, 0.015}, speed: band{15, 8}},
	activity.Bus:        {stddev: band{0.045, 0.015}, speed: band{9, 4}},
	activity.Rail:       {stddev: band{0.02, 0.01}, speed: band{30, 12}},
	activity.Aviation:   {stddev: band{0.025, 0.012}, speed: band{200, 60}},
}

// unknownFloor keeps some mass on Unknown when nothing matches well.
const unknownFloor = 0.05

// Heuristic scores windows by the standard deviation and cadence of the
// acceleration magnitude, optionally sharpened by GPS speed.
type Heuristic struct {
	cfg   Config
	speed SpeedProvider
}

// NewHeuristic returns a classifier. speed may be nil.
func NewHeuristic(cfg Config, speed SpeedProvider) *Heuristic {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	return &Heuristic{cfg: cfg, speed: speed}
}

func (h *Heuristic) SampleRate() float64 { return h.cfg.SampleRate }

func (h *Heuristic) WindowDuration() time.Duration { return h.cfg.Window }

// Classify returns a confidence per activity summing to 1.
func (h *Heuristic) Classify(buf *imu.Buffer) (map[activity.Type]float64, error) {
	mags := decimate(buf, h.cfg.SampleRate)
	need := int(h.cfg.SampleRate * h.cfg.Window.Seconds() / 2)
	if need < 4 {
		need = 4
	}
	if len(mags) < need {
		return nil, fmt.Errorf("%w: %d after decimation, need %d", ErrInsufficientSamples, len(mags), need)
	}

	mean, std := stat.MeanStdDev(mags, nil)
	cadence := crossingRate(mags, mean, h.cfg.SampleRate)

	speed, haveSpeed := 0.0, false
	if h.speed != nil {
		speed, haveSpeed = h.speed.Speed()
	}

	weights := make([]float64, len(activity.All))
	for i, typ := range activity.All {
		sig, ok := signatures[typ]
		if !ok {
			continue
		}
		w := sig.stddev.weight(std)
		if sig.cadence.width > 0 {
			w *= sig.cadence.weight(cadence)
		}
		if haveSpeed && sig.speed.width > 0 {
			w *= sig.speed.weight(speed)
		}
		weights[i] = w
	}
	weights[activity.Unknown] = unknownFloor

	floats.Scale(1/floats.Sum(weights), weights)

	out := make(map[activity.Type]float64, len(weights))
	for i, w := range weights {
		if w > 0 {
			out[activity.All[i]] = w
		}
	}
	return out, nil
}

// decimate returns the magnitudes of buf's samples thinned to roughly rate Hz.
func decimate(buf *imu.Buffer, rate float64) []float64 {
	samples := buf.Samples()
	if len(samples) == 0 {
		return nil
	}
	step := 1
	if covered := buf.DurationCovered().Seconds(); covered > 0 && len(samples) > 1 {
		observed := float64(len(samples)-1) / covered
		step = int(math.Round(observed / rate))
		if step < 1 {
			step = 1
		}
	}

	mags := make([]float64, 0, len(samples)/step+1)
	for i := 0; i < len(samples); i += step {
		mags = append(mags, samples[i].Magnitude())
	}
	return mags
}

// crossingRate estimates the dominant frequency as half the rate at which
// xs crosses its mean.
func crossingRate(xs []float64, mean, rate float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(xs); i++ {
		if (xs[i-1] < mean) != (xs[i] < mean) {
			crossings++
		}
	}
	seconds := float64(len(xs)-1) / rate
	return float64(crossings) / 2 / seconds
}
