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

	log.Println("starting activity classifier GPS producer (NMEA → MQTT)")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunGPSProducer(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
