package scoring

import (
	"math"

	"github.com/large-farva/rehab-engine/internal/config"
)

// Feedback is the coarse coaching band a score falls into.
type Feedback int

const (
	LowEffort Feedback = iota
	Moderate
	Excellent
)

// String is the message shown to the user.
func (f Feedback) String() string {
	switch f {
	case LowEffort:
		return "Increase range / slow movement"
	case Moderate:
		return "Good effort, smoother control"
	case Excellent:
		return "Excellent form"
	default:
		return "unknown"
	}
}

// MarshalText renders the message so JSON payloads carry the text.
func (f Feedback) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Engine scores a rep from its three metrics.
type Engine struct {
	cfg config.ScoringConfig
}

// NewEngine returns an engine using the calibration constants in cfg.
func NewEngine(cfg config.ScoringConfig) Engine {
	return Engine{cfg: cfg}
}

// Score normalizes each metric to [0,1], takes the weighted sum, and
// floors it into [0,100].
func (e Engine) Score(rom, smoothness, consistency float64) int {
	romScore := clamp01(rom / e.cfg.ROMNorm)
	smoothScore := clamp01(smoothness / e.cfg.SmoothnessNorm)
	consistencyScore := clamp01(consistency)

	sum := e.cfg.ROMWeight*romScore +
		e.cfg.SmoothnessWeight*smoothScore +
		e.cfg.ConsistencyWeight*consistencyScore

	// The nudge absorbs representation error in the weights (0.4+0.3+0.3
	// is not exactly 1 in binary).
	score := int(math.Floor(100*sum + 1e-9))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Feedback bands a score. Bands are [0,moderate), [moderate,excellent) and
// [excellent,100].
func (e Engine) Feedback(score int) Feedback {
	switch {
	case score < e.cfg.ModerateCut:
		return LowEffort
	case score < e.cfg.ExcellentCut:
		return Moderate
	default:
		return Excellent
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
