package report

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/activity_classifier/internal/sampling"
)

// Publisher is the subset of mqtt.Client used to publish decisions.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher publishes each decision as retained JSON on one topic.
type MQTTPublisher struct {
	client  Publisher
	topic   string
	timeout time.Duration
}

// NewMQTTPublisher returns a publisher for topic.
func NewMQTTPublisher(client Publisher, topic string) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, timeout: 5 * time.Second}
}

// Publish sends out's decision and waits for the broker.
func (p *MQTTPublisher) Publish(out sampling.Outcome) error {
	payload, err := json.Marshal(NewDecision(out))
	if err != nil {
		return fmt.Errorf("report: marshal decision: %w", err)
	}
	token := p.client.Publish(p.topic, 0, true, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("report: publish to %s timed out after %s", p.topic, p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("report: publish to %s: %w", p.topic, err)
	}
	return nil
}

// Report is a sampling.ReportFunc that logs publish failures.
func (p *MQTTPublisher) Report(out sampling.Outcome) {
	if err := p.Publish(out); err != nil {
		log.Printf("report: %v", err)
	}
}
