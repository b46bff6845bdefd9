package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestParseMergesExerciseTables(t *testing.T) {
	cfg := Default()
	in := `
[session]
exercise = "knee_extension"
alpha = 0.5

[exercises.knee_extension]
up = 150
down = 100
`
	if err := Parse([]byte(in), &cfg); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Session.Exercise != KneeExtension || cfg.Session.Alpha != 0.5 {
		t.Fatalf("unexpected session %+v", cfg.Session)
	}
	if got := cfg.Exercises[KneeExtension]; got.Up != 150 || got.Down != 100 {
		t.Fatalf("unexpected knee thresholds %+v", got)
	}
	if got := cfg.Exercises[ArmRaise]; got.Up != 85 || got.Down != 45 {
		t.Fatalf("arm raise defaults should survive, got %+v", got)
	}
	if cfg.Scoring.ROMNorm != 120 {
		t.Fatalf("untouched sections keep their defaults, got rom_norm=%g", cfg.Scoring.ROMNorm)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"inverted band":    "[exercises.arm_raise]\nup = 40\ndown = 45\n",
		"equal band":       "[exercises.sit_to_stand]\nup = 100\ndown = 100\n",
		"unknown exercise": "[exercises.jumping_jacks]\nup = 10\ndown = 5\n",
		"unknown session":  "[session]\nexercise = \"plank\"\n",
		"zero alpha":       "[session]\nalpha = 0\n",
		"bad source kind":  "[source]\nkind = \"camera\"\n",
		"replay no path":   "[source]\nkind = \"replay\"\n",
		"worker no cmd":    "[source]\nkind = \"worker\"\n",
		"heavy weights":    "[scoring]\nrom_weight = 0.9\n",
		"bad confidence":   "[angle]\nhead_min_shoulder_confidence = 1.5\n",
		"not toml":         "[session\n",
	}
	for name, in := range cases {
		cfg := Default()
		if err := Parse([]byte(in), &cfg); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}

func TestInvertedBandErrorNamesTheExercise(t *testing.T) {
	cfg := Default()
	err := Parse([]byte("[exercises.head_movement]\nup = -50\ndown = 10\n"), &cfg)
	if err == nil || !strings.Contains(err.Error(), "head_movement") {
		t.Fatalf("expected an error naming head_movement, got %v", err)
	}
}

func TestLoadResolvesModelPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rehabd.toml")
	body := "[classifier]\nmodel_path = \"models/quality.yaml\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := filepath.Join(dir, "models", "quality.yaml")
	if cfg.Classifier.ModelPath != want {
		t.Fatalf("expected %s, got %s", want, cfg.Classifier.ModelPath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !os.IsNotExist(err) {
		t.Fatalf("expected a not-exist error, got %v", err)
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "rehabd.example.toml"))
	if err != nil {
		t.Fatalf("example config should load: %v", err)
	}
	if cfg.Exercises[HeadMovement].Down != -40 || cfg.MQTT.Enabled {
		t.Fatalf("unexpected example config %+v", cfg)
	}
}
