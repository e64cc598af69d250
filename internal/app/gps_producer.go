package app

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/activity_classifier/internal/config"
	"github.com/relabs-tech/activity_classifier/internal/gps"
	"github.com/relabs-tech/activity_classifier/internal/report"
)

// fixPublisher publishes each fix as retained JSON on topic.
func fixPublisher(client report.Publisher, topic string) func(gps.Fix) {
	return func(fix gps.Fix) {
		payload, err := json.Marshal(fix)
		if err != nil {
			log.Printf("GPS JSON marshal error: %v", err)
			return
		}
		token := client.Publish(topic, 0, true, payload)
		token.Wait()
		if token.Error() != nil {
			log.Printf("GPS publish error: %v", token.Error())
		}
	}
}

// RunGPSProducer opens the GPS serial port, parses NMEA sentences, and
// publishes RMC fixes as JSON to the GPS topic.
func RunGPSProducer(cfg *config.Config) error {
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDGPS)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	port, err := gps.OpenSerial(gps.SerialConfig{PortName: cfg.GPSSerialPort, BaudRate: uint(cfg.GPSBaudRate)})
	if err != nil {
		return err
	}
	defer port.Close()
	log.Printf("GPS serial port opened on %s at %d baud", cfg.GPSSerialPort, cfg.GPSBaudRate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// Unblocks the pending serial read.
		<-ctx.Done()
		port.Close()
	}()

	err = gps.Scan(ctx, port, nil, fixPublisher(client, cfg.TopicGPS))
	if ctx.Err() != nil {
		log.Println("GPS producer shutting down")
		return nil
	}
	return err
}
