package signal

import "time"

// Phase is the repetition state.
type Phase string

const (
	Idle   Phase = "idle"
	Active Phase = "active"
)

// EventKind says what, if anything, a sample triggered.
type EventKind int

const (
	NoEvent EventKind = iota
	RepStarted
	RepCompleted
)

// Event is the result of feeding one sample to a PhaseDetector.
// Trace, Start and End are set only for RepCompleted.
type Event struct {
	Kind  EventKind
	Trace []float64
	Start time.Time
	End   time.Time
}

// PhaseDetector segments a smoothed signal with two thresholds. Idle goes
// Active when a sample rises above up; Active goes Idle when a sample falls
// below down. The sample that opens a rep is the first entry of its trace;
// the sample that closes it is not recorded, since at that point the
// movement has already left the active band.
type PhaseDetector struct {
	up, down float64

	phase Phase
	trace []float64
	start time.Time
}

// NewPhaseDetector returns a detector in the Idle state. Callers are
// expected to have checked up > down.
func NewPhaseDetector(up, down float64) *PhaseDetector {
	return &PhaseDetector{up: up, down: down, phase: Idle}
}

// Observe feeds one smoothed sample taken at time at.
func (d *PhaseDetector) Observe(v float64, at time.Time) Event {
	switch d.phase {
	case Idle:
		if v > d.up {
			d.phase = Active
			d.start = at
			d.trace = []float64{v}
			return Event{Kind: RepStarted, Start: at}
		}
	case Active:
		if v < d.down {
			ev := Event{Kind: RepCompleted, Trace: d.trace, Start: d.start, End: at}
			d.phase = Idle
			d.trace = nil
			d.start = time.Time{}
			return ev
		}
		d.trace = append(d.trace, v)
	}
	return Event{}
}

// Phase reports the current state.
func (d *PhaseDetector) Phase() Phase {
	return d.phase
}

// TraceLen is the number of samples buffered for the rep in progress.
func (d *PhaseDetector) TraceLen() int {
	return len(d.trace)
}

// Reset abandons any rep in progress and returns to Idle.
func (d *PhaseDetector) Reset() {
	d.phase = Idle
	d.trace = nil
	d.start = time.Time{}
}
