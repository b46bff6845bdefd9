// Package quality hands a finished repetition to an optional learned
// classifier and reconciles its answer with the heuristic score.
package quality

import (
	"fmt"
	"log"

	"github.com/large-farva/rehab-engine/internal/config"
)

// Label is the classifier verdict for one rep.
type Label string

const (
	Correct    Label = "Correct"
	Incorrect  Label = "Incorrect"
	Uncertain  Label = "Uncertain"
	NotTrained Label = "AI not trained"
)

// Features is the fixed-order vector fed to the classifier:
// rom, smoothness, consistency, rep duration in seconds, exercise id.
type Features [5]float64

// NewFeatures assembles a feature vector.
func NewFeatures(rom, smoothness, consistency, durationSeconds float64, exerciseID int) Features {
	return Features{rom, smoothness, consistency, durationSeconds, float64(exerciseID)}
}

// Classifier labels a rep from its features.
type Classifier interface {
	Classify(f Features) (Label, error)
}

// Untrained is the null classifier used when no model is available.
type Untrained struct{}

// Classify always answers NotTrained.
func (Untrained) Classify(Features) (Label, error) {
	return NotTrained, nil
}

// Hook calls the classifier and applies the low-score override.
type Hook struct {
	classifier Classifier
	cutoff     int
	log        *log.Logger
}

// NewHook wires c (nil means Untrained) with the override cutoff from cfg.
func NewHook(c Classifier, cfg config.ScoringConfig, logger *log.Logger) *Hook {
	if c == nil {
		c = Untrained{}
	}
	return &Hook{classifier: c, cutoff: cfg.OverrideCutoff, log: logger}
}

// Label classifies f. A classifier error or panic degrades to NotTrained.
// Any score below the override cutoff is reported Incorrect regardless of
// the model.
func (h *Hook) Label(f Features, score int) Label {
	label, err := h.classify(f)
	if err != nil {
		if h.log != nil {
			h.log.Printf("quality: classifier failed, falling back: %v", err)
		}
		label = NotTrained
	}
	if score < h.cutoff {
		return Incorrect
	}
	return label
}

func (h *Hook) classify(f Features) (label Label, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("classifier panicked: %v", p)
		}
	}()
	return h.classifier.Classify(f)
}
