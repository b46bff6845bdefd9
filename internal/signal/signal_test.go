package signal

import (
	"math"
	"testing"
	"time"
)

func TestSmootherSeedsWithFirstSample(t *testing.T) {
	s := NewSmoother(0.2)
	if _, ok := s.Value(); ok {
		t.Fatalf("expected no value before the first sample")
	}
	if got := s.Update(50); got != 50 {
		t.Fatalf("expected 50, got %g", got)
	}
	if got := s.Update(100); math.Abs(got-60) > 1e-12 {
		t.Fatalf("expected 60, got %g", got)
	}
}

func TestSmootherDeterministic(t *testing.T) {
	raw := []float64{3, 90, 12.5, -4, 77, 77, 0.001, 180}
	run := func() []float64 {
		s := NewSmoother(0.2)
		out := make([]float64, len(raw))
		for i, v := range raw {
			out[i] = s.Update(v)
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			t.Fatalf("sample %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestSmootherReset(t *testing.T) {
	s := NewSmoother(0.5)
	s.Update(10)
	s.Update(20)
	s.Reset()
	if got := s.Update(7); got != 7 {
		t.Fatalf("expected reseed to 7, got %g", got)
	}
}

func feed(d *PhaseDetector, samples []float64) []Event {
	base := time.Unix(0, 0)
	var out []Event
	for i, v := range samples {
		ev := d.Observe(v, base.Add(time.Duration(i)*100*time.Millisecond))
		if ev.Kind != NoEvent {
			out = append(out, ev)
		}
	}
	return out
}

func TestPhaseDetectorSingleRep(t *testing.T) {
	d := NewPhaseDetector(85, 45)
	events := feed(d, []float64{0, 50, 90, 95, 60, 40})

	if len(events) != 2 || events[0].Kind != RepStarted || events[1].Kind != RepCompleted {
		t.Fatalf("expected start then completion, got %+v", events)
	}
	rep := events[1]
	want := []float64{90, 95, 60}
	if len(rep.Trace) != len(want) {
		t.Fatalf("expected trace %v, got %v", want, rep.Trace)
	}
	for i := range want {
		if rep.Trace[i] != want[i] {
			t.Fatalf("expected trace %v, got %v", want, rep.Trace)
		}
	}
	if got := rep.End.Sub(rep.Start); got != 300*time.Millisecond {
		t.Fatalf("expected 300ms rep, got %s", got)
	}
	if d.Phase() != Idle {
		t.Fatalf("expected idle after completion, got %s", d.Phase())
	}
}

func TestPhaseDetectorTraceLengthMatchesActiveSamples(t *testing.T) {
	d := NewPhaseDetector(10, 0)
	samples := []float64{-5, 11, 20, 30, 5, 1, 0.5, -1, -2}
	active := 0
	var rep Event
	base := time.Unix(0, 0)
	for i, v := range samples {
		ev := d.Observe(v, base.Add(time.Duration(i)*time.Second))
		if d.Phase() == Active {
			active++
		}
		if ev.Kind == RepCompleted {
			rep = ev
		}
	}
	if rep.Kind != RepCompleted {
		t.Fatalf("expected a completed rep")
	}
	if len(rep.Trace) != active {
		t.Fatalf("expected trace length %d, got %d", active, len(rep.Trace))
	}
}

func TestPhaseDetectorWrongDirectionIsNoop(t *testing.T) {
	d := NewPhaseDetector(85, 45)
	// Falling below down while idle does nothing.
	if ev := d.Observe(10, time.Time{}); ev.Kind != NoEvent || d.Phase() != Idle {
		t.Fatalf("expected no transition while idle below down")
	}
	d.Observe(90, time.Time{})
	// Exceeding up while active only extends the trace.
	if ev := d.Observe(120, time.Time{}); ev.Kind != NoEvent {
		t.Fatalf("expected no event, got %v", ev.Kind)
	}
	if d.TraceLen() != 2 {
		t.Fatalf("expected 2 buffered samples, got %d", d.TraceLen())
	}
}

func TestPhaseDetectorHysteresisBand(t *testing.T) {
	d := NewPhaseDetector(85, 45)
	// Oscillating inside the band after entry never completes a rep.
	events := feed(d, []float64{90, 60, 80, 50, 70, 46})
	if len(events) != 1 || events[0].Kind != RepStarted {
		t.Fatalf("expected only the start event, got %+v", events)
	}
}

func TestPhaseDetectorReset(t *testing.T) {
	d := NewPhaseDetector(85, 45)
	d.Observe(90, time.Time{})
	d.Reset()
	if d.Phase() != Idle || d.TraceLen() != 0 {
		t.Fatalf("expected idle with empty trace after reset")
	}
	if ev := d.Observe(40, time.Time{}); ev.Kind != NoEvent {
		t.Fatalf("expected no completion after reset")
	}
}
