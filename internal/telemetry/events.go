// Package telemetry defines the typed event structs that flow from rehabd to
// its clients over the WebSocket hub and, when enabled, the MQTT broker.
package telemetry

import "time"

// EventType identifies the kind of event.
type EventType string

const (
	EventHeartbeat    EventType = "heartbeat"
	EventState        EventType = "state"
	EventLog          EventType = "log"
	EventRepScored    EventType = "rep_scored"
	EventSessionReset EventType = "session_reset"
)

// Event is the base envelope shared by every event type.
type Event struct {
	Type      EventType `json:"type"`
	TS        string    `json:"ts"`
	Component string    `json:"component,omitempty"`
}

// NewEvent stamps an envelope with the current time.
func NewEvent(t EventType, component string) Event {
	return Event{Type: t, TS: NowTS(), Component: component}
}

// NowTS returns the current UTC time as an RFC 3339 nano string, matching the
// timestamp format used across all events.
func NowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Sink receives events. Implementations must not block the caller for long;
// the frame loop publishes inline.
type Sink interface {
	Publish(v any)
}

// Fanout publishes to every non-nil sink in order.
type Fanout []Sink

// Publish implements Sink.
func (f Fanout) Publish(v any) {
	for _, s := range f {
		if s != nil {
			s.Publish(v)
		}
	}
}

// Discard drops every event.
type Discard struct{}

// Publish implements Sink.
func (Discard) Publish(any) {}

// Heartbeat is sent periodically so clients can detect connectivity and
// follow the session without polling.
type Heartbeat struct {
	Event
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	SessionID     string `json:"session_id"`
	Exercise      string `json:"exercise"`
	Phase         string `json:"phase"`
	Reps          int    `json:"reps"`
	Clients       int    `json:"clients"`
}

// StateTransition is emitted when the daemon or the rep phase changes
// state (e.g. idle -> active).
type StateTransition struct {
	Event
	Scope string `json:"scope"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// LogLine carries a human-readable log message at a severity level.
type LogLine struct {
	Event
	Level   string `json:"level"`
	Message string `json:"message"`
}

// RepScored is the status update published once per finished rep. Score,
// Feedback, AI and Reps are the fields presentation layers rely on.
type RepScored struct {
	Event
	SessionID       string  `json:"session_id"`
	Exercise        string  `json:"exercise"`
	Rep             int     `json:"rep"`
	Score           int     `json:"score"`
	Feedback        string  `json:"feedback"`
	AI              string  `json:"ai"`
	Reps            int     `json:"reps"`
	ROM             float64 `json:"rom"`
	Smoothness      float64 `json:"smoothness"`
	Consistency     float64 `json:"consistency"`
	DurationSeconds float64 `json:"duration_s"`
}

// SessionReset announces a new session, either from an exercise switch, an
// explicit reset, or a config reload.
type SessionReset struct {
	Event
	SessionID  string `json:"session_id"`
	PreviousID string `json:"previous_id,omitempty"`
	Exercise   string `json:"exercise"`
	Reason     string `json:"reason"`
}
