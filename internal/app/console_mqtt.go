package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/activity_classifier/internal/config"
	"github.com/relabs-tech/activity_classifier/internal/gps"
	"github.com/relabs-tech/activity_classifier/internal/report"
)

// gpsLine formats a fix for the console.
func gpsLine(f gps.Fix) string {
	return fmt.Sprintf(
		"[GPS ] time=%s date=%s lat=%.6f lon=%.6f speed=%.1fkn (%.1f m/s) course=%.1f° validity=%s",
		f.Time, f.Date, f.Latitude, f.Longitude, f.SpeedKnots, f.SpeedMPS(), f.CourseDeg, f.Validity,
	)
}

// RunConsoleMQTT prints activity decisions and GPS fixes until Ctrl+C.
func RunConsoleMQTT(cfg *config.Config) error {
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}

	err = subscribe(client, cfg.TopicActivityDecision, func(_ mqtt.Client, msg mqtt.Message) {
		var d report.Decision
		if err := json.Unmarshal(msg.Payload(), &d); err != nil {
			log.Printf("console: decision unmarshal error: %v", err)
			return
		}
		fmt.Println(d.Line())
	})
	if err != nil {
		return err
	}

	if cfg.TopicGPS != "" {
		err = subscribe(client, cfg.TopicGPS, func(_ mqtt.Client, msg mqtt.Message) {
			var f gps.Fix
			if err := json.Unmarshal(msg.Payload(), &f); err != nil {
				log.Printf("console: gps unmarshal error: %v", err)
				return
			}
			fmt.Println(gpsLine(f))
		})
		if err != nil {
			return err
		}
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
