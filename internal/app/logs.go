package app

import (
	"sync"

	"github.com/large-farva/rehab-engine/internal/telemetry"
)

const logRingSize = 200

type logEntry struct {
	TS        string `json:"ts"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
}

// logRing keeps the most recent log lines for /api/logs. It is a
// telemetry.Sink that only looks at LogLine events.
type logRing struct {
	mu      sync.Mutex
	entries []logEntry
	next    int
	full    bool
}

func newLogRing(size int) *logRing {
	return &logRing{entries: make([]logEntry, size)}
}

func (r *logRing) Publish(v any) {
	ll, ok := v.(telemetry.LogLine)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = logEntry{TS: ll.TS, Level: ll.Level, Component: ll.Component, Message: ll.Message}
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// snapshot returns the retained lines, oldest first.
func (r *logRing) snapshot() []logEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]logEntry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]logEntry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}
