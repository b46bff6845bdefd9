package runner

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/large-farva/rehab-engine/internal/config"
	"github.com/large-farva/rehab-engine/internal/pose"
	"github.com/large-farva/rehab-engine/internal/session"
	"github.com/large-farva/rehab-engine/internal/source"
	"github.com/large-farva/rehab-engine/internal/telemetry"
)

// scripted hands out a fixed list of results, then ErrClosed.
type scripted struct {
	frames []pose.Frame
	errs   []error
	i      int
}

func (s *scripted) Next(ctx context.Context) (pose.Frame, error) {
	if s.i >= len(s.frames) {
		return pose.Frame{}, source.ErrClosed
	}
	f, err := s.frames[s.i], s.errs[s.i]
	s.i++
	return f, err
}

type recorder struct {
	mu     sync.Mutex
	events []any
}

func (r *recorder) Publish(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, v)
}

func (r *recorder) reps() []telemetry.RepScored {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []telemetry.RepScored
	for _, e := range r.events {
		if ev, ok := e.(telemetry.RepScored); ok {
			out = append(out, ev)
		}
	}
	return out
}

func headFrame(seq int, v float64) pose.Frame {
	var s pose.Set
	s[pose.Nose] = pose.Keypoint{X: v, Confidence: 0.9}
	s[pose.LeftShoulder].Confidence = 0.9
	s[pose.RightShoulder].Confidence = 0.9
	return pose.Frame{
		Seq:       uint64(seq),
		At:        time.Unix(0, 0).Add(time.Duration(seq) * time.Second),
		Width:     1,
		Height:    1,
		Keypoints: &s,
	}
}

func newPipeline(t *testing.T) *session.Pipeline {
	t.Helper()
	cfg := config.Default()
	cfg.Session.Exercise = config.HeadMovement
	cfg.Session.Alpha = 1
	cfg.Exercises[config.HeadMovement] = config.ThresholdPair{Up: 85, Down: 45}
	p, err := session.New(session.Options{Cfg: cfg})
	if err != nil {
		t.Fatalf("session.New failed: %v", err)
	}
	return p
}

// panicky panics on one chosen frame and delegates the rest.
type panicky struct {
	inner Processor
	at    uint64
}

func (p panicky) Process(f pose.Frame) (session.Outcome, error) {
	if f.Seq == p.at {
		panic("detector exploded")
	}
	return p.inner.Process(f)
}

func TestRunSurvivesFaultsAndPublishesOncePerRep(t *testing.T) {
	bad := headFrame(3, 0)
	bad.Keypoints[pose.Nose].X = math.NaN()

	src := &scripted{}
	add := func(f pose.Frame, err error) {
		src.frames = append(src.frames, f)
		src.errs = append(src.errs, err)
	}
	add(headFrame(0, 0), nil)
	add(headFrame(1, 50), nil)
	add(headFrame(2, 90), nil)
	add(bad, nil)
	add(headFrame(4, 95), nil) // panics
	add(headFrame(5, 60), nil)
	add(headFrame(6, 40), nil)
	add(pose.Frame{}, errors.New("camera hiccup"))
	// Opens a rep the source never finishes.
	add(headFrame(8, 90), nil)

	sink := &recorder{}
	r := New(src, panicky{inner: newPipeline(t), at: 4}, sink, nil)
	r.SourceBackoff = time.Millisecond

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run returned %v", err)
	}

	reps := sink.reps()
	if len(reps) != 1 {
		t.Fatalf("expected 1 published rep, got %d", len(reps))
	}
	// The panicking frame (95) was skipped, so the trace is [90, 60].
	if reps[0].ROM != 90 || reps[0].Reps != 1 {
		t.Fatalf("unexpected rep %+v", reps[0])
	}
	st := r.Stats()
	if st.Recovered != 1 || st.Skipped != 2 || st.SourceErrors != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	d := source.NewDemo(640, 480, 1000, 1)
	ctx, cancel := context.WithCancel(context.Background())
	r := New(d, newPipeline(t), nil, nil)

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
	if r.Stats().Frames == 0 {
		t.Fatalf("expected some frames before cancel")
	}
}

func TestPhaseTransitionsArePublished(t *testing.T) {
	src := &scripted{}
	for i, v := range []float64{0, 90, 95, 40} {
		src.frames = append(src.frames, headFrame(i, v))
		src.errs = append(src.errs, nil)
	}
	sink := &recorder{}
	r := New(src, newPipeline(t), sink, nil)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run returned %v", err)
	}

	var got []string
	for _, e := range sink.events {
		if st, ok := e.(telemetry.StateTransition); ok {
			got = append(got, st.From+"->"+st.To)
		}
	}
	if len(got) != 2 || got[0] != "idle->active" || got[1] != "active->idle" {
		t.Fatalf("unexpected transitions %v", got)
	}
}

// resetting switches to a new session after a few frames, the way a reset
// from the HTTP API does between two frames.
type resetting struct {
	inner *session.Pipeline
	after uint64
}

func (p resetting) Process(f pose.Frame) (session.Outcome, error) {
	if f.Seq == p.after {
		p.inner.Reset()
	}
	return p.inner.Process(f)
}

func TestResetDoesNotPublishStalePhaseTransition(t *testing.T) {
	src := &scripted{}
	for i, v := range []float64{0, 90, 95, 10, 90} {
		src.frames = append(src.frames, headFrame(i, v))
		src.errs = append(src.errs, nil)
	}
	sink := &recorder{}
	r := New(src, resetting{inner: newPipeline(t), after: 3}, sink, nil)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run returned %v", err)
	}

	var got []string
	for _, e := range sink.events {
		if st, ok := e.(telemetry.StateTransition); ok {
			got = append(got, st.From+"->"+st.To)
		}
	}
	// Frame 3 lands in a fresh idle session, so only the two entries show.
	if len(got) != 2 || got[0] != "idle->active" || got[1] != "idle->active" {
		t.Fatalf("unexpected transitions %v", got)
	}
	if len(sink.reps()) != 0 {
		t.Fatalf("the abandoned rep must not be scored")
	}
}
