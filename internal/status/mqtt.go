package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the status mirror. An empty Broker disables it.
type MQTTConfig struct {
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Topic    string        `yaml:"topic"`
	Interval time.Duration `yaml:"interval"`
	QoS      byte          `yaml:"qos"`
	Retained bool          `yaml:"retained"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultMQTTConfig returns the default mirror settings.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		ClientID: "vtrack-status",
		Topic:    "vtrack/status",
		Interval: time.Second,
		Timeout:  2 * time.Second,
	}
}

const connectRetryInterval = 5 * time.Second

// publisher is the part of mqtt.Client the sink uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink mirrors the latest status snapshot to an MQTT topic at a fixed interval.
type MQTTSink struct {
	cfg    MQTTConfig
	source *Publisher
	client publisher
	close  func()
	last   uint64
}

// DialMQTT connects to the configured broker.
func DialMQTT(cfg MQTTConfig, source *Publisher) (*MQTTSink, error) {
	client := mqtt.NewClient(clientOptions(cfg))
	if token := client.Connect(); token.WaitTimeout(cfg.Timeout) && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", cfg.Broker, token.Error())
	} else if !client.IsConnectionOpen() {
		log.Printf("MQTT broker %s not reachable yet, retrying in background", cfg.Broker)
	} else {
		log.Printf("Status mirror connected to MQTT broker at %s", cfg.Broker)
	}

	sink := NewMQTTSink(cfg, source, client)
	sink.close = func() { client.Disconnect(250) }
	return sink, nil
}

// clientOptions keeps retrying the first connect as well as reconnecting after a drop.
func clientOptions(cfg MQTTConfig) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval).
		SetConnectTimeout(cfg.Timeout)
}

// NewMQTTSink creates a sink over an existing client.
func NewMQTTSink(cfg MQTTConfig, source *Publisher, client publisher) *MQTTSink {
	def := DefaultMQTTConfig()
	if cfg.Topic == "" {
		cfg.Topic = def.Topic
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &MQTTSink{cfg: cfg, source: source, client: client}
}

// Run publishes until ctx is cancelled, then disconnects.
func (s *MQTTSink) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	defer func() {
		if s.close != nil {
			s.close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.publishLatest(); err != nil {
				log.Printf("MQTT status publish error: %v", err)
			}
		}
	}
}

// publishLatest sends the newest snapshot if it changed since the last publish.
func (s *MQTTSink) publishLatest() error {
	snap := s.source.Latest()
	if snap == nil || (s.last != 0 && snap.Seq == s.last) {
		return nil
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	token := s.client.Publish(s.cfg.Topic, s.cfg.QoS, s.cfg.Retained, payload)
	if !token.WaitTimeout(s.cfg.Timeout) {
		return fmt.Errorf("publish to %s timed out", s.cfg.Topic)
	}
	if err := token.Error(); err != nil {
		return err
	}
	s.last = snap.Seq
	return nil
}
