// Package runner drives the frame loop: pull a frame from the source, push
// it through the session pipeline, and publish what came out. It is the
// only place a per-frame fault is recovered; inner stages report errors as
// values.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/large-farva/rehab-engine/internal/pose"
	"github.com/large-farva/rehab-engine/internal/session"
	"github.com/large-farva/rehab-engine/internal/signal"
	"github.com/large-farva/rehab-engine/internal/source"
	"github.com/large-farva/rehab-engine/internal/telemetry"
)

const component = "runner"

// Processor is the part of session.Pipeline the loop needs.
type Processor interface {
	Process(f pose.Frame) (session.Outcome, error)
}

// Stats is a snapshot of loop counters.
type Stats struct {
	Frames       uint64 `json:"frames"`
	Reps         uint64 `json:"reps"`
	Skipped      uint64 `json:"skipped"`
	Recovered    uint64 `json:"recovered"`
	SourceErrors uint64 `json:"source_errors"`
}

// Runner owns the frame loop.
type Runner struct {
	Source   source.Source
	Pipeline Processor
	Sink     telemetry.Sink
	Log      *log.Logger
	// Debug logs every skipped frame instead of only the first few.
	Debug bool
	// SourceBackoff is the pause after a transient source error.
	SourceBackoff time.Duration

	frames       atomic.Uint64
	reps         atomic.Uint64
	skipped      atomic.Uint64
	recovered    atomic.Uint64
	sourceErrors atomic.Uint64

	session string
	phase   signal.Phase
}

// New creates a runner with default backoff.
func New(src source.Source, p Processor, sink telemetry.Sink, logger *log.Logger) *Runner {
	if sink == nil {
		sink = telemetry.Discard{}
	}
	return &Runner{
		Source:        src,
		Pipeline:      p,
		Sink:          sink,
		Log:           logger,
		SourceBackoff: 250 * time.Millisecond,
		phase:         signal.Idle,
	}
}

// Run loops until the source closes or ctx is cancelled. Neither is an
// error; Run returns nil in both cases.
func (r *Runner) Run(ctx context.Context) error {
	r.logf("info", "frame loop started")
	defer r.logf("info", "frame loop stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		f, err := r.Source.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, source.ErrClosed):
			if err == source.ErrClosed {
				r.logf("info", "source closed")
			} else {
				r.logf("warn", "source closed: %v", err)
			}
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			n := r.sourceErrors.Add(1)
			if r.Debug || n <= 5 {
				r.logf("warn", "source error: %v", err)
			}
			if !sleepOrCancel(ctx, r.SourceBackoff) {
				return nil
			}
			continue
		}

		r.frames.Add(1)
		if err := r.step(f); err != nil {
			n := r.skipped.Add(1)
			if r.Debug || n <= 5 || n%1000 == 0 {
				r.logf("warn", "frame %d skipped (%d total): %v", f.Seq, n, err)
			}
		}
	}
}

// step processes one frame. A panic anywhere below is turned into an error
// so the loop can skip the frame and carry on.
func (r *Runner) step(f pose.Frame) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.recovered.Add(1)
			err = fmt.Errorf("recovered: %v", p)
		}
	}()

	out, err := r.Pipeline.Process(f)
	if err != nil {
		return err
	}

	// A new session starts idle; its first phase is compared against that.
	if out.SessionID != r.session {
		r.session = out.SessionID
		r.phase = signal.Idle
	}
	if out.Detected && out.Phase != r.phase {
		r.Sink.Publish(telemetry.StateTransition{
			Event: telemetry.NewEvent(telemetry.EventState, component),
			Scope: "phase",
			From:  string(r.phase),
			To:    string(out.Phase),
		})
		r.phase = out.Phase
	}

	if out.Scored != nil {
		r.reps.Add(1)
		ev := RepEvent(out.Scored)
		r.logf("info", "rep %d (%s): score %d, %s, ai %s", ev.Rep, ev.Exercise, ev.Score, ev.Feedback, ev.AI)
		r.Sink.Publish(ev)
	}
	return nil
}

// RepEvent converts a scored rep into its telemetry form.
func RepEvent(s *session.RepScored) telemetry.RepScored {
	return telemetry.RepScored{
		Event:           telemetry.NewEvent(telemetry.EventRepScored, component),
		SessionID:       s.SessionID,
		Exercise:        s.Exercise.String(),
		Rep:             s.Rep.Number,
		Score:           s.Result.Score,
		Feedback:        s.Result.Feedback.String(),
		AI:              string(s.Result.Quality),
		Reps:            s.Reps,
		ROM:             s.Rep.ROM,
		Smoothness:      s.Rep.Smoothness,
		Consistency:     s.Result.Consistency,
		DurationSeconds: s.Rep.Duration().Seconds(),
	}
}

// Stats returns the loop counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Frames:       r.frames.Load(),
		Reps:         r.reps.Load(),
		Skipped:      r.skipped.Load(),
		Recovered:    r.recovered.Load(),
		SourceErrors: r.sourceErrors.Load(),
	}
}

func (r *Runner) logf(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if r.Log != nil {
		r.Log.Printf("%s: %s", component, msg)
	}
	r.Sink.Publish(telemetry.LogLine{
		Event:   telemetry.NewEvent(telemetry.EventLog, component),
		Level:   level,
		Message: msg,
	})
}

// sleepOrCancel blocks for d or until ctx is cancelled. It reports whether
// the full sleep completed.
func sleepOrCancel(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
