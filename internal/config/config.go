// Package config handles loading, defaulting, and validation of the rehab
// engine TOML configuration file. Every tunable of the scoring pipeline lives
// here so the rest of the codebase reads typed values instead of constants.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Server     ServerConfig             `toml:"server"     json:"server"`
	Logging    LoggingConfig            `toml:"logging"    json:"logging"`
	Source     SourceConfig             `toml:"source"     json:"source"`
	Session    SessionConfig            `toml:"session"    json:"session"`
	Exercises  map[string]ThresholdPair `toml:"exercises"  json:"exercises"`
	Angle      AngleConfig              `toml:"angle"      json:"angle"`
	Scoring    ScoringConfig            `toml:"scoring"    json:"scoring"`
	Classifier ClassifierConfig         `toml:"classifier" json:"classifier"`
	MQTT       MQTTConfig               `toml:"mqtt"       json:"mqtt"`
}

type ServerConfig struct {
	Bind string `toml:"bind" json:"bind"`
}

type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
}

// SourceConfig selects where keypoint frames come from.
type SourceConfig struct {
	Kind        string   `toml:"kind"         json:"kind"` // demo, replay, worker
	Path        string   `toml:"path"         json:"path"`
	Command     string   `toml:"command"      json:"command"`
	Args        []string `toml:"args"         json:"args"`
	FrameWidth  int      `toml:"frame_width"  json:"frame_width"`
	FrameHeight int      `toml:"frame_height" json:"frame_height"`
	FPS         float64  `toml:"fps"          json:"fps"`
	Loop        bool     `toml:"loop"         json:"loop"`
}

type SessionConfig struct {
	Exercise string  `toml:"exercise" json:"exercise"`
	Alpha    float64 `toml:"alpha"    json:"alpha"`
}

// ThresholdPair is the hysteresis band for one exercise.
type ThresholdPair struct {
	Up   float64 `toml:"up"   json:"up"`
	Down float64 `toml:"down" json:"down"`
}

type AngleConfig struct {
	HeadMinShoulderConfidence float64 `toml:"head_min_shoulder_confidence" json:"head_min_shoulder_confidence"`
}

// ScoringConfig holds the heuristic calibration constants. None of these are
// derived; they are tuned by eye against recorded sessions.
type ScoringConfig struct {
	ROMNorm           float64 `toml:"rom_norm"           json:"rom_norm"`
	SmoothnessNorm    float64 `toml:"smoothness_norm"    json:"smoothness_norm"`
	ROMWeight         float64 `toml:"rom_weight"         json:"rom_weight"`
	SmoothnessWeight  float64 `toml:"smoothness_weight"  json:"smoothness_weight"`
	ConsistencyWeight float64 `toml:"consistency_weight" json:"consistency_weight"`
	ModerateCut       int     `toml:"moderate_cut"       json:"moderate_cut"`
	ExcellentCut      int     `toml:"excellent_cut"      json:"excellent_cut"`
	OverrideCutoff    int     `toml:"override_cutoff"    json:"override_cutoff"`
}

type ClassifierConfig struct {
	ModelPath      string  `toml:"model_path"      json:"model_path"`
	CorrectAbove   float64 `toml:"correct_above"   json:"correct_above"`
	IncorrectBelow float64 `toml:"incorrect_below" json:"incorrect_below"`
}

type MQTTConfig struct {
	Enabled     bool   `toml:"enabled"      json:"enabled"`
	Broker      string `toml:"broker"       json:"broker"`
	ClientID    string `toml:"client_id"    json:"client_id"`
	TopicPrefix string `toml:"topic_prefix" json:"topic_prefix"`
	QoS         byte   `toml:"qos"          json:"qos"`
}

// Exercise keys used under [exercises.<name>].
const (
	ArmRaise      = "arm_raise"
	SitToStand    = "sit_to_stand"
	KneeExtension = "knee_extension"
	HeadMovement  = "head_movement"
)

// Default returns a Config populated with sane defaults. Values here are
// used whenever the TOML file omits a field.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "0.0.0.0:8080",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Source: SourceConfig{
			Kind:        "demo",
			FrameWidth:  640,
			FrameHeight: 480,
			FPS:         15,
		},
		Session: SessionConfig{
			Exercise: ArmRaise,
			Alpha:    0.2,
		},
		Exercises: map[string]ThresholdPair{
			ArmRaise:      {Up: 85, Down: 45},
			SitToStand:    {Up: 160, Down: 100},
			KneeExtension: {Up: 160, Down: 110},
			HeadMovement:  {Up: 40, Down: -40},
		},
		Angle: AngleConfig{
			HeadMinShoulderConfidence: 0.4,
		},
		Scoring: ScoringConfig{
			ROMNorm:           120,
			SmoothnessNorm:    5,
			ROMWeight:         0.4,
			SmoothnessWeight:  0.3,
			ConsistencyWeight: 0.3,
			ModerateCut:       40,
			ExcellentCut:      70,
			OverrideCutoff:    45,
		},
		Classifier: ClassifierConfig{
			CorrectAbove:   0.7,
			IncorrectBelow: 0.3,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Broker:      "localhost:1883",
			ClientID:    "rehabd",
			TopicPrefix: "rehab",
			QoS:         1,
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. An error is returned if the file can't be read,
// parsed, or if any constraint is violated.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := Parse(b, &cfg); err != nil {
		return cfg, err
	}

	if cfg.Classifier.ModelPath != "" && !filepath.IsAbs(cfg.Classifier.ModelPath) {
		cfg.Classifier.ModelPath = filepath.Join(filepath.Dir(path), cfg.Classifier.ModelPath)
	}

	return cfg, nil
}

// Parse decodes TOML bytes into cfg (which should already hold defaults) and
// validates the result. Exercise tables present in the file replace the
// defaults for that exercise only.
func Parse(b []byte, cfg *Config) error {
	defaults := cfg.Exercises
	cfg.Exercises = nil

	if err := toml.Unmarshal(b, cfg); err != nil {
		return err
	}

	merged := make(map[string]ThresholdPair, len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range cfg.Exercises {
		merged[k] = v
	}
	cfg.Exercises = merged

	return Validate(*cfg)
}

// Validate checks every constraint the pipeline depends on. The hysteresis
// check is the important one: a band with up <= down would let a single
// sample both open and close a rep.
func Validate(cfg Config) error {
	switch cfg.Source.Kind {
	case "demo":
	case "replay":
		if cfg.Source.Path == "" {
			return errors.New("source.path is required for replay sources")
		}
	case "worker":
		if cfg.Source.Command == "" {
			return errors.New("source.command is required for worker sources")
		}
	default:
		return fmt.Errorf("source.kind %q must be one of demo, replay, worker", cfg.Source.Kind)
	}
	if cfg.Source.FrameWidth <= 0 || cfg.Source.FrameHeight <= 0 {
		return errors.New("source.frame_width and source.frame_height must be > 0")
	}
	if cfg.Source.FPS < 0 {
		return errors.New("source.fps must be >= 0")
	}

	if cfg.Session.Alpha <= 0 || cfg.Session.Alpha > 1 {
		return errors.New("session.alpha must be in (0, 1]")
	}
	if _, ok := cfg.Exercises[cfg.Session.Exercise]; !ok {
		return fmt.Errorf("session.exercise %q has no thresholds", cfg.Session.Exercise)
	}

	for _, name := range []string{ArmRaise, SitToStand, KneeExtension, HeadMovement} {
		th, ok := cfg.Exercises[name]
		if !ok {
			return fmt.Errorf("exercises.%s is missing", name)
		}
		if math.IsNaN(th.Up) || math.IsNaN(th.Down) {
			return fmt.Errorf("exercises.%s thresholds must be numbers", name)
		}
		if th.Up <= th.Down {
			return fmt.Errorf("exercises.%s: up (%g) must be greater than down (%g)", name, th.Up, th.Down)
		}
	}
	for name := range cfg.Exercises {
		switch name {
		case ArmRaise, SitToStand, KneeExtension, HeadMovement:
		default:
			return fmt.Errorf("exercises.%s is not a known exercise", name)
		}
	}

	if cfg.Angle.HeadMinShoulderConfidence < 0 || cfg.Angle.HeadMinShoulderConfidence > 1 {
		return errors.New("angle.head_min_shoulder_confidence must be between 0 and 1")
	}

	s := cfg.Scoring
	if s.ROMNorm <= 0 || s.SmoothnessNorm <= 0 {
		return errors.New("scoring.rom_norm and scoring.smoothness_norm must be > 0")
	}
	if s.ROMWeight < 0 || s.SmoothnessWeight < 0 || s.ConsistencyWeight < 0 {
		return errors.New("scoring weights must be >= 0")
	}
	if sum := s.ROMWeight + s.SmoothnessWeight + s.ConsistencyWeight; sum > 1+1e-9 {
		return fmt.Errorf("scoring weights sum to %g, must be <= 1", sum)
	}
	if s.ModerateCut < 0 || s.ModerateCut >= s.ExcellentCut || s.ExcellentCut > 100 {
		return errors.New("scoring cuts must satisfy 0 <= moderate_cut < excellent_cut <= 100")
	}
	if s.OverrideCutoff < 0 || s.OverrideCutoff > 100 {
		return errors.New("scoring.override_cutoff must be between 0 and 100")
	}

	c := cfg.Classifier
	if c.IncorrectBelow < 0 || c.CorrectAbove > 1 || c.IncorrectBelow > c.CorrectAbove {
		return errors.New("classifier cut points must satisfy 0 <= incorrect_below <= correct_above <= 1")
	}

	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return errors.New("mqtt.broker must not be empty when mqtt is enabled")
	}
	if cfg.MQTT.QoS > 2 {
		return errors.New("mqtt.qos must be 0, 1 or 2")
	}
	return nil
}
