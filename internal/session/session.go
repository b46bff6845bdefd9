// Package session owns the per-session scoring state and the pipeline that
// advances it one frame at a time. All access goes through a single mutex so
// a status read, an exercise switch, or a reset never interleaves with a
// frame being processed.
package session

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/large-farva/rehab-engine/internal/config"
	"github.com/large-farva/rehab-engine/internal/exercise"
	"github.com/large-farva/rehab-engine/internal/pose"
	"github.com/large-farva/rehab-engine/internal/quality"
	"github.com/large-farva/rehab-engine/internal/scoring"
	"github.com/large-farva/rehab-engine/internal/signal"
)

// ErrBadFrame is returned for frames the pipeline cannot measure.
var ErrBadFrame = errors.New("bad frame")

// RepRecord is one finished repetition. It is never modified after it is
// appended to the history.
type RepRecord struct {
	Number     int       `json:"number"`
	ROM        float64   `json:"rom"`
	Smoothness float64   `json:"smoothness"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// Duration is the time between the samples that opened and closed the rep.
func (r RepRecord) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Result is the scored outcome of the most recent rep.
type Result struct {
	Score       int              `json:"score"`
	Feedback    scoring.Feedback `json:"feedback"`
	Quality     quality.Label    `json:"ai"`
	Consistency float64          `json:"consistency"`
}

// RepScored is emitted exactly once per finalized rep.
type RepScored struct {
	SessionID string        `json:"session_id"`
	Exercise  exercise.Kind `json:"exercise"`
	Rep       RepRecord     `json:"rep"`
	Result    Result        `json:"result"`
	Reps      int           `json:"reps"`
	Features  [5]float64    `json:"features"`
}

// Outcome describes what one frame did to the session.
type Outcome struct {
	// SessionID is the session the frame was applied to.
	SessionID string
	Detected  bool
	Raw      float64
	Smoothed float64
	Side     exercise.Side
	Phase    signal.Phase
	Scored   *RepScored
}

// Options configures a Pipeline.
type Options struct {
	Cfg        config.Config
	Classifier quality.Classifier
	Logger     *log.Logger
}

// Pipeline drives angle extraction, smoothing, phase detection and scoring
// for one session at a time.
type Pipeline struct {
	mu sync.Mutex

	log        *log.Logger
	alpha      float64
	minConf    float64
	catalog    *exercise.Catalog
	extractor  exercise.Extractor
	engine     scoring.Engine
	hook       *quality.Hook
	classifier quality.Classifier

	st state
}

// state is everything a reset clears.
type state struct {
	id        string
	startedAt time.Time
	exercise  exercise.Kind
	smoother  *signal.Smoother
	detector  *signal.PhaseDetector
	history   []RepRecord
	roms      []float64
	baseline  *float64
	latest    *Result
	lastSide  exercise.Side

	framesSeen        uint64
	framesNoDetection uint64
	framesSkipped     uint64
}

// New builds a pipeline from config. It fails if any exercise band is
// invalid or the initial exercise is unknown.
func New(opts Options) (*Pipeline, error) {
	p := &Pipeline{log: opts.Logger, classifier: opts.Classifier}
	if p.log == nil {
		p.log = log.New(io.Discard, "", 0)
	}
	kind, err := exercise.ParseKind(opts.Cfg.Session.Exercise)
	if err != nil {
		return nil, err
	}
	if err := p.apply(opts.Cfg); err != nil {
		return nil, err
	}
	p.reset(kind)
	return p, nil
}

func (p *Pipeline) apply(cfg config.Config) error {
	catalog, err := exercise.NewCatalog(cfg.Exercises)
	if err != nil {
		return err
	}
	p.install(cfg, catalog)
	return nil
}

func (p *Pipeline) install(cfg config.Config, catalog *exercise.Catalog) {
	p.catalog = catalog
	p.alpha = cfg.Session.Alpha
	p.minConf = cfg.Angle.HeadMinShoulderConfidence
	p.extractor = exercise.Extractor{HeadMinShoulderConfidence: cfg.Angle.HeadMinShoulderConfidence}
	p.engine = scoring.NewEngine(cfg.Scoring)
	p.hook = quality.NewHook(p.classifier, cfg.Scoring, p.log)
}

// reset must be called with mu held (or before the pipeline is shared).
func (p *Pipeline) reset(kind exercise.Kind) {
	spec := p.catalog.Spec(kind)
	p.st = state{
		id:        uuid.NewString(),
		startedAt: time.Now().UTC(),
		exercise:  kind,
		smoother:  signal.NewSmoother(p.alpha),
		detector:  signal.NewPhaseDetector(spec.Up, spec.Down),
	}
}

// Process advances the session by one frame. A frame without keypoints is
// a no-op apart from counters. An error means the frame was skipped and the
// session state is unchanged.
func (p *Pipeline) Process(f pose.Frame) (Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.st.framesSeen++
	if !f.Detected() {
		p.st.framesNoDetection++
		return Outcome{SessionID: p.st.id, Phase: p.st.detector.Phase()}, nil
	}
	if f.Width <= 0 || f.Height <= 0 {
		p.st.framesSkipped++
		return Outcome{}, fmt.Errorf("%w: frame %d has size %dx%d", ErrBadFrame, f.Seq, f.Width, f.Height)
	}

	spec := p.catalog.Spec(p.st.exercise)
	sample, err := p.extractor.Extract(spec, f.Keypoints, f.Width, f.Height)
	if err != nil {
		p.st.framesSkipped++
		return Outcome{}, fmt.Errorf("frame %d: %w", f.Seq, err)
	}

	if p.st.baseline == nil {
		if w, ok := exercise.ShoulderWidth(f.Keypoints, f.Width, f.Height, p.minConf); ok {
			p.st.baseline = &w
		}
	}

	at := f.At
	if at.IsZero() {
		at = time.Now()
	}

	smoothed := p.st.smoother.Update(sample.Value)
	p.st.lastSide = sample.Side
	ev := p.st.detector.Observe(smoothed, at)

	out := Outcome{
		SessionID: p.st.id,
		Detected:  true,
		Raw:       sample.Value,
		Smoothed:  smoothed,
		Side:      sample.Side,
		Phase:     p.st.detector.Phase(),
	}
	if ev.Kind == signal.RepCompleted {
		out.Scored = p.finalize(spec, ev)
	}
	return out, nil
}

// finalize scores a completed rep. Nothing is written to the session until
// every value has been computed.
func (p *Pipeline) finalize(spec exercise.Spec, ev signal.Event) *RepScored {
	rec := RepRecord{
		Number:     len(p.st.history) + 1,
		ROM:        scoring.ROM(ev.Trace),
		Smoothness: scoring.Smoothness(ev.Trace),
		Start:      ev.Start,
		End:        ev.End,
	}
	roms := append(p.st.roms[:len(p.st.roms):len(p.st.roms)], rec.ROM)

	consistency := scoring.Consistency(roms)
	score := p.engine.Score(rec.ROM, rec.Smoothness, consistency)
	features := quality.NewFeatures(rec.ROM, rec.Smoothness, consistency, rec.Duration().Seconds(), spec.Kind.ID())

	res := Result{
		Score:       score,
		Feedback:    p.engine.Feedback(score),
		Quality:     p.hook.Label(features, score),
		Consistency: consistency,
	}

	p.st.history = append(p.st.history, rec)
	p.st.roms = roms
	p.st.latest = &res

	return &RepScored{
		SessionID: p.st.id,
		Exercise:  spec.Kind,
		Rep:       rec,
		Result:    res,
		Reps:      len(p.st.history),
		Features:  features,
	}
}

// Select switches exercise. The whole session is reset, even when the same
// exercise is selected again. It returns the ended and the new session IDs.
func (p *Pipeline) Select(kind exercise.Kind) (prev, next string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev = p.st.id
	p.reset(kind)
	return prev, p.st.id
}

// Reset clears reps and signal state but keeps the current exercise.
func (p *Pipeline) Reset() (prev, next string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev = p.st.id
	p.reset(p.st.exercise)
	return prev, p.st.id
}

// Reconfigure swaps thresholds, smoothing and scoring constants, then
// resets the session. On error nothing changes.
func (p *Pipeline) Reconfigure(cfg config.Config, classifier quality.Classifier) (prev, next string, err error) {
	catalog, err := exercise.NewCatalog(cfg.Exercises)
	if err != nil {
		return "", "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	prev = p.st.id
	p.classifier = classifier
	p.install(cfg, catalog)
	p.reset(p.st.exercise)
	return prev, p.st.id, nil
}

// Exercise returns the current selection.
func (p *Pipeline) Exercise() exercise.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st.exercise
}

// Catalog returns the exercise catalog in use.
func (p *Pipeline) Catalog() *exercise.Catalog {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.catalog
}

// History returns a copy of the finished reps.
func (p *Pipeline) History() []RepRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RepRecord, len(p.st.history))
	copy(out, p.st.history)
	return out
}

// Status is a point-in-time view of the session.
type Status struct {
	SessionID string        `json:"session_id"`
	StartedAt time.Time     `json:"started_at"`
	Exercise  exercise.Kind `json:"exercise"`
	Label     string        `json:"label"`
	Phase     signal.Phase  `json:"phase"`
	Side      exercise.Side `json:"side,omitempty"`
	Reps      int           `json:"reps"`

	// Latest scored rep; zero values until the first rep completes.
	Score    int           `json:"score"`
	Feedback string        `json:"feedback"`
	AI       quality.Label `json:"ai"`

	Smoothed         *float64 `json:"smoothed,omitempty"`
	TraceLen         int      `json:"trace_len"`
	BaselineDistance *float64 `json:"baseline_distance,omitempty"`

	FramesSeen        uint64 `json:"frames_seen"`
	FramesNoDetection uint64 `json:"frames_no_detection"`
	FramesSkipped     uint64 `json:"frames_skipped"`
}

// Snapshot returns the current status.
func (p *Pipeline) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		SessionID:         p.st.id,
		StartedAt:         p.st.startedAt,
		Exercise:          p.st.exercise,
		Label:             p.st.exercise.Label(),
		Phase:             p.st.detector.Phase(),
		Side:              p.st.lastSide,
		Reps:              len(p.st.history),
		TraceLen:          p.st.detector.TraceLen(),
		FramesSeen:        p.st.framesSeen,
		FramesNoDetection: p.st.framesNoDetection,
		FramesSkipped:     p.st.framesSkipped,
	}
	if p.st.latest != nil {
		st.Score = p.st.latest.Score
		st.Feedback = p.st.latest.Feedback.String()
		st.AI = p.st.latest.Quality
	}
	if v, ok := p.st.smoother.Value(); ok {
		st.Smoothed = &v
	}
	if p.st.baseline != nil {
		b := *p.st.baseline
		st.BaselineDistance = &b
	}
	return st
}
