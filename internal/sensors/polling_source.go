// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors turns accelerometer readers into timestamped sample feeds.
package sensors

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/activity_classifier/internal/imu"
	"github.com/relabs-tech/activity_classifier/internal/timeutil"
)

// ErrAlreadyStarted is returned by Start on a running source.
var ErrAlreadyStarted = errors.New("sensors: source already started")

// PollingSource reads an IMURawReader on a ticker and pushes converted
// samples to its Samples channel.
type PollingSource struct {
	reader     imu.IMURawReader
	accelRange byte
	clock      timeutil.Clock

	samples chan imu.Sample
	errs    chan error

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewPollingSource wraps reader. accelRange is the ACCEL_FS_SEL code the
// reader's device was configured with.
func NewPollingSource(reader imu.IMURawReader, accelRange byte, clock timeutil.Clock) *PollingSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &PollingSource{
		reader:     reader,
		accelRange: accelRange,
		clock:      clock,
		samples:    make(chan imu.Sample, 64),
		errs:       make(chan error, 1),
	}
}

func (p *PollingSource) Samples() <-chan imu.Sample { return p.samples }

func (p *PollingSource) Errors() <-chan error { return p.errs }

// Start begins polling at rate Hz.
func (p *PollingSource) Start(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("sensors: invalid sample rate %.2f Hz", rate)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return ErrAlreadyStarted
	}

	p.drain()
	stop := make(chan struct{})
	p.stop = stop
	ticker := p.clock.NewTicker(time.Duration(float64(time.Second) / rate))

	p.wg.Add(1)
	go p.poll(ticker, stop)
	return nil
}

// Stop halts polling and waits for the poller to exit. Stopping an idle
// source is a no-op.
func (p *PollingSource) Stop() error {
	p.mu.Lock()
	stop := p.stop
	p.stop = nil
	p.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	p.wg.Wait()
	return nil
}

func (p *PollingSource) poll(ticker timeutil.Ticker, stop <-chan struct{}) {
	defer p.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
		}

		raw, err := p.reader.ReadRaw()
		if err == nil {
			var s imu.Sample
			s, err = imu.FromRaw(raw, p.accelRange, p.clock.Now())
			if err == nil {
				select {
				case p.samples <- s:
				case <-stop:
					return
				}
				continue
			}
		}

		select {
		case p.errs <- err:
		default:
			log.Printf("sensors: dropping read error, one already pending: %v", err)
		}
	}
}

// drain discards anything left over from a previous run. Caller holds p.mu.
func (p *PollingSource) drain() {
	for {
		select {
		case <-p.samples:
		case <-p.errs:
		default:
			return
		}
	}
}
