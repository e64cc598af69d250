// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/activity_classifier/internal/config"
	"github.com/relabs-tech/activity_classifier/internal/report"
	"github.com/relabs-tech/activity_classifier/internal/sampling"
)

// RunMockConsole classifies the synthetic IMU profile and prints each
// decision, without MQTT or the audit store. cycles <= 0 runs until Ctrl+C.
func RunMockConsole(cfg *config.Config, cycles int) error {
	bench := *cfg
	bench.UseMockIMU = true
	source, err := openSource(&bench)
	if err != nil {
		return err
	}

	p := newPipeline(&bench, source, nil, func(out sampling.Outcome) {
		fmt.Println(report.NewDecision(out).Line())
	})
	defer p.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("console: classifying mock %s profile", bench.MockActivity)
	return p.runner.run(ctx, cycles)
}
