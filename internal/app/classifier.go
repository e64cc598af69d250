// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/activity_classifier/internal/budget"
	"github.com/relabs-tech/activity_classifier/internal/classifier"
	"github.com/relabs-tech/activity_classifier/internal/config"
	"github.com/relabs-tech/activity_classifier/internal/gps"
	"github.com/relabs-tech/activity_classifier/internal/prediction"
	"github.com/relabs-tech/activity_classifier/internal/report"
	"github.com/relabs-tech/activity_classifier/internal/sampling"
	"github.com/relabs-tech/activity_classifier/internal/sensors"
	"github.com/relabs-tech/activity_classifier/internal/store"
	"github.com/relabs-tech/activity_classifier/internal/timeutil"
)

// cycleRunner repeats classification cycles with a pause between them.
type cycleRunner struct {
	ctrl     *sampling.Controller
	report   sampling.ReportFunc
	interval time.Duration
	clock    timeutil.Clock
}

// run starts cycles until ctx is done, or until limit cycles have finished
// when limit > 0.
func (r *cycleRunner) run(ctx context.Context, limit int) error {
	for n := 0; limit <= 0 || n < limit; n++ {
		cy, err := r.ctrl.Start(ctx, r.report)
		if err != nil {
			return fmt.Errorf("start cycle: %w", err)
		}
		select {
		case <-cy.Done():
		case <-ctx.Done():
			<-cy.Done()
			return nil
		}

		if limit > 0 && n+1 == limit {
			break
		}
		if err := r.pause(ctx); err != nil {
			return nil
		}
	}
	return nil
}

func (r *cycleRunner) pause(ctx context.Context) error {
	if r.interval <= 0 {
		return ctx.Err()
	}
	wake := make(chan struct{})
	timer := r.clock.AfterFunc(r.interval, func() { close(wake) })
	defer timer.Stop()
	select {
	case <-wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pipeline holds everything one classifier daemon owns.
type pipeline struct {
	host       *budget.Host
	source     *sensors.PollingSource
	dispatcher *report.Dispatcher
	runner     *cycleRunner
}

func (p *pipeline) close() {
	p.dispatcher.Close()
	if err := p.source.Stop(); err != nil {
		log.Printf("classifier: stopping source: %v", err)
	}
}

// newPipeline wires the sampling controller to its collaborators. speed and
// sinks may be nil/empty.
func newPipeline(cfg *config.Config, source *sensors.PollingSource, speed classifier.SpeedProvider, sinks ...sampling.ReportFunc) *pipeline {
	clock := timeutil.RealClock{}
	host := budget.NewHost(budget.Config{
		GrantDuration: cfg.BudgetGrant(),
		ExpiryWarning: cfg.BudgetExpiryWarning(),
		MaxExtensions: cfg.BudgetMaxExtensions,
	}, clock)

	heuristic := classifier.NewHeuristic(classifier.Config{
		SampleRate: cfg.ClassifierSampleRateHz,
		Window:     cfg.ClassifierWindow(),
	}, speed)

	dispatcher := report.NewDispatcher(8)
	ctrl := sampling.NewController(sampling.Config{
		Thresholds: prediction.Thresholds{
			HighConfidence: cfg.HighConfidenceThreshold,
			MinPredictions: cfg.MinPredictions,
			MaxPredictions: cfg.MaxPredictions,
		},
		RoundTimeout: cfg.RoundTimeout(),
	}, heuristic, host, source, sampling.WithClock(clock), sampling.WithExecutor(dispatcher))

	return &pipeline{
		host:       host,
		source:     source,
		dispatcher: dispatcher,
		runner: &cycleRunner{
			ctrl:     ctrl,
			report:   report.Fanout(sinks...),
			interval: cfg.CycleInterval(),
			clock:    clock,
		},
	}
}

func openSource(cfg *config.Config) (*sensors.PollingSource, error) {
	if cfg.UseMockIMU {
		log.Printf("classifier: using mock IMU (%s profile)", cfg.MockActivity)
		return sensors.NewMockSource(cfg.MockActivity, timeutil.RealClock{}), nil
	}
	return sensors.NewMPU9250Source(sensors.MPU9250Config{
		Name:       "activity",
		SPIDevice:  cfg.IMUSPIDevice,
		CSPin:      cfg.IMUCSPin,
		AccelRange: cfg.IMUAccelRange,
		SelfTest:   cfg.IMUSelfTest,
	}, timeutil.RealClock{})
}

func storeSink(st *store.Store) sampling.ReportFunc {
	return func(out sampling.Outcome) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.RecordOutcome(ctx, out); err != nil {
			log.Printf("classifier: audit store: %v", err)
		}
	}
}

func logSink(out sampling.Outcome) {
	log.Println(report.NewDecision(out).Line())
}

// RunClassifier runs classification cycles until SIGINT/SIGTERM. SIGUSR1
// revokes the active execution budget grant.
func RunClassifier(cfg *config.Config) error {
	source, err := openSource(cfg)
	if err != nil {
		return err
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDClassifier)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	speed := gps.NewSpeedHint(cfg.GPSSpeedMaxAge(), nil)
	if cfg.TopicGPS != "" {
		err := subscribe(client, cfg.TopicGPS, func(_ mqtt.Client, msg mqtt.Message) {
			var fix gps.Fix
			if err := json.Unmarshal(msg.Payload(), &fix); err != nil {
				log.Printf("classifier: gps unmarshal error: %v", err)
				return
			}
			speed.Update(fix)
		})
		if err != nil {
			return err
		}
	}

	sinks := []sampling.ReportFunc{logSink, report.NewMQTTPublisher(client, cfg.TopicActivityDecision).Report}
	if cfg.DBPath != "" {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()
		sinks = append(sinks, storeSink(st))
	}

	p := newPipeline(cfg, source, speed, sinks...)
	defer p.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(sigCh)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGUSR1 {
				p.host.Revoke()
				continue
			}
			log.Println("classifier: shutting down")
			cancel()
			return
		}
	}()

	log.Printf("classifier: running cycles every %s", cfg.CycleInterval())
	if err := p.runner.run(ctx, 0); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
