package emitter

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/large-farva/rehab-engine/internal/config"
	"github.com/large-farva/rehab-engine/internal/telemetry"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient implements the publish side of mqtt.Client; anything else
// panics through the nil embedded interface.
type fakeClient struct {
	mqtt.Client

	mu   sync.Mutex
	sent []message
	err  error
}

func (c *fakeClient) IsConnected() bool { return true }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, message{topic: topic, qos: qos, payload: payload.([]byte)})
	return doneToken{err: c.err}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishRoutesByEventType(t *testing.T) {
	cfg := config.Default().MQTT
	e := NewMQTT(cfg, nil)
	fc := &fakeClient{}
	e.Client = fc

	e.Publish(telemetry.RepScored{Event: telemetry.NewEvent(telemetry.EventRepScored, "runner"), Score: 72, Reps: 3})
	e.Publish(telemetry.SessionReset{Event: telemetry.NewEvent(telemetry.EventSessionReset, "app"), Reason: "reset"})
	e.Publish(telemetry.LogLine{Message: "ignored"})

	waitFor(t, func() bool {
		st := e.Stats()
		return st.Published["rehab/reps"] == 1 && st.Published["rehab/session"] == 1
	})

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(fc.sent))
	}
	if fc.sent[0].topic != "rehab/reps" || fc.sent[0].qos != cfg.QoS {
		t.Fatalf("unexpected first message %+v", fc.sent[0])
	}
	var body map[string]any
	if err := json.Unmarshal(fc.sent[0].payload, &body); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if body["score"] != float64(72) || body["reps"] != float64(3) || body["type"] != "rep_scored" {
		t.Fatalf("unexpected payload %v", body)
	}
}

func TestPublishFailuresAreCounted(t *testing.T) {
	e := NewMQTT(config.Default().MQTT, nil)
	e.Client = &fakeClient{err: errors.New("broker gone")}
	e.Publish(telemetry.RepScored{})
	waitFor(t, func() bool { return e.Stats().Errors == 1 })
}

func TestPublishWithoutClientIsNoOp(t *testing.T) {
	e := NewMQTT(config.Default().MQTT, nil)
	e.Publish(telemetry.RepScored{})
	if st := e.Stats(); st.Errors != 0 || len(st.Published) != 0 {
		t.Fatalf("expected no activity, got %+v", st)
	}
}
