package quality

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/large-farva/rehab-engine/internal/config"
)

// Model is the on-disk form of a trained logistic regression. Training
// happens elsewhere; this engine only evaluates it.
type Model struct {
	Name      string    `yaml:"name"`
	Weights   []float64 `yaml:"weights"`
	Intercept float64   `yaml:"intercept"`
	TrainedAt string    `yaml:"trained_at,omitempty"`
}

// Logistic evaluates a Model and bands its probability.
type Logistic struct {
	model          Model
	correctAbove   float64
	incorrectBelow float64
}

// NewLogistic validates m and returns a classifier for it.
func NewLogistic(m Model, cfg config.ClassifierConfig) (*Logistic, error) {
	if len(m.Weights) != len(Features{}) {
		return nil, fmt.Errorf("model has %d weights, want %d", len(m.Weights), len(Features{}))
	}
	for i, w := range m.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("model weight %d is not finite", i)
		}
	}
	return &Logistic{model: m, correctAbove: cfg.CorrectAbove, incorrectBelow: cfg.IncorrectBelow}, nil
}

// LoadLogistic reads a YAML model file.
func LoadLogistic(path string, cfg config.ClassifierConfig) (*Logistic, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Model
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	return NewLogistic(m, cfg)
}

// Probability is the model's estimate that the rep is correct.
func (l *Logistic) Probability(f Features) float64 {
	z := l.model.Intercept
	for i, w := range l.model.Weights {
		z += w * f[i]
	}
	return 1 / (1 + math.Exp(-z))
}

// Classify bands the probability: above correctAbove is Correct, below
// incorrectBelow is Incorrect, anything in between is Uncertain.
func (l *Logistic) Classify(f Features) (Label, error) {
	p := l.Probability(f)
	if math.IsNaN(p) {
		return "", errors.New("model produced NaN probability")
	}
	switch {
	case p > l.correctAbove:
		return Correct, nil
	case p < l.incorrectBelow:
		return Incorrect, nil
	default:
		return Uncertain, nil
	}
}

// Load returns the classifier configured in cfg. An empty or missing model
// path is not an error: the engine runs with Untrained and says so.
func Load(cfg config.ClassifierConfig) (Classifier, error) {
	if cfg.ModelPath == "" {
		return Untrained{}, nil
	}
	l, err := LoadLogistic(cfg.ModelPath, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Untrained{}, nil
		}
		return Untrained{}, err
	}
	return l, nil
}
