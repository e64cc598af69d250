package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/activity_classifier/internal/app"
	"github.com/relabs-tech/activity_classifier/internal/config"
)

func main() {
	configPath := flag.String("config", "./activity_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting activity classifier console (MQTT subscriber)")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsoleMQTT(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
