// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/activity_classifier/internal/activity"
	"github.com/relabs-tech/activity_classifier/internal/app"
	"github.com/relabs-tech/activity_classifier/internal/config"
)

func main() {
	configPath := flag.String("config", "./activity_config.txt", "path to configuration file")
	profile := flag.String("activity", "", "mock activity profile (overrides MOCK_ACTIVITY)")
	cycles := flag.Int("cycles", 0, "stop after this many cycles (0 = until Ctrl+C)")
	flag.Parse()

	log.Println("starting activity classifier (mock console)")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *profile != "" {
		if cfg.MockActivity, err = activity.Parse(*profile); err != nil {
			log.Fatalf("invalid -activity: %v", err)
		}
	}

	if err := app.RunMockConsole(cfg, *cycles); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
