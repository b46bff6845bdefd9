// Package emitter forwards session telemetry to an MQTT broker so other
// systems (clinic dashboards, loggers) can follow reps without holding a
// WebSocket open.
package emitter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/large-farva/rehab-engine/internal/config"
	"github.com/large-farva/rehab-engine/internal/telemetry"
)

// ErrNotConnected is returned by Connect when the broker did not answer in
// time. The client keeps retrying in the background.
var ErrNotConnected = errors.New("mqtt not connected")

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// MQTT publishes rep and session events under a topic prefix.
type MQTT struct {
	cfg    config.MQTTConfig
	log    *log.Logger
	Client mqtt.Client

	mu        sync.Mutex
	published map[string]uint64
	errors    uint64
	connected bool
}

// Stats is a snapshot of emitter counters.
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

// NewMQTT creates an emitter; call Connect before publishing.
func NewMQTT(cfg config.MQTTConfig, logger *log.Logger) *MQTT {
	return &MQTT{cfg: cfg, log: logger, published: make(map[string]uint64)}
}

// Connect dials the broker with auto-reconnect enabled.
func (e *MQTT) Connect() error {
	broker := e.cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		e.setConnected(true)
		e.logf("mqtt: connected to %s as %s", broker, e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.setConnected(false)
		e.logf("mqtt: connection lost, reconnecting: %v", err)
	}

	e.Client = mqtt.NewClient(opts)
	e.logf("mqtt: connecting to %s", broker)

	token := e.Client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("%w: %s did not answer within %s", ErrNotConnected, broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	e.setConnected(true)
	return nil
}

// Topic returns the topic an event is published on, or "" for events this
// emitter does not forward.
func (e *MQTT) Topic(v any) string {
	switch v.(type) {
	case telemetry.RepScored:
		return e.cfg.TopicPrefix + "/reps"
	case telemetry.SessionReset:
		return e.cfg.TopicPrefix + "/session"
	case telemetry.Heartbeat:
		return e.cfg.TopicPrefix + "/heartbeat"
	default:
		return ""
	}
}

// Publish implements telemetry.Sink. It never blocks on the broker; delivery
// failures are counted and logged from a background goroutine.
func (e *MQTT) Publish(v any) {
	topic := e.Topic(v)
	if topic == "" || e.Client == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		e.fail(topic, err)
		return
	}

	token := e.Client.Publish(topic, e.cfg.QoS, false, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			e.fail(topic, errors.New("publish timeout"))
			return
		}
		if err := token.Error(); err != nil {
			e.fail(topic, err)
			return
		}
		e.mu.Lock()
		e.published[topic]++
		e.mu.Unlock()
	}()
}

// Stats returns a copy of the counters.
func (e *MQTT) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{Connected: e.connected, Published: published, Errors: e.errors}
}

// Disconnect closes the broker connection with a short grace period.
func (e *MQTT) Disconnect() {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250)
		e.logf("mqtt: disconnected")
	}
	e.setConnected(false)
}

func (e *MQTT) fail(topic string, err error) {
	e.mu.Lock()
	e.errors++
	n := e.errors
	e.mu.Unlock()
	if n <= 5 || n%100 == 0 {
		e.logf("mqtt: publish %s failed (%d errors): %v", topic, n, err)
	}
}

func (e *MQTT) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTT) logf(format string, args ...any) {
	if e.log != nil {
		e.log.Printf(format, args...)
	}
}
