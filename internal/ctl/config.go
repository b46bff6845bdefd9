package ctl

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Config fetches and displays the daemon's running configuration.
func Config(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	// Decode into a generic map to preserve all fields for both display modes.
	var raw json.RawMessage
	if err := getJSON(baseURL, "/api/config", &raw); err != nil {
		return err
	}

	if jsonOutput {
		var v any
		_ = json.Unmarshal(raw, &v)
		return printJSON(v)
	}

	var cfg struct {
		Server struct {
			Bind string `json:"bind"`
		} `json:"server"`
		Logging struct {
			Level string `json:"level"`
		} `json:"logging"`
		Source struct {
			Kind        string   `json:"kind"`
			Path        string   `json:"path"`
			Command     string   `json:"command"`
			Args        []string `json:"args"`
			FrameWidth  int      `json:"frame_width"`
			FrameHeight int      `json:"frame_height"`
			FPS         float64  `json:"fps"`
			Loop        bool     `json:"loop"`
		} `json:"source"`
		Session struct {
			Exercise string  `json:"exercise"`
			Alpha    float64 `json:"alpha"`
		} `json:"session"`
		Exercises map[string]struct {
			Up   float64 `json:"up"`
			Down float64 `json:"down"`
		} `json:"exercises"`
		Angle struct {
			HeadMinShoulderConfidence float64 `json:"head_min_shoulder_confidence"`
		} `json:"angle"`
		Scoring struct {
			ROMNorm           float64 `json:"rom_norm"`
			SmoothnessNorm    float64 `json:"smoothness_norm"`
			ROMWeight         float64 `json:"rom_weight"`
			SmoothnessWeight  float64 `json:"smoothness_weight"`
			ConsistencyWeight float64 `json:"consistency_weight"`
			ModerateCut       int     `json:"moderate_cut"`
			ExcellentCut      int     `json:"excellent_cut"`
			OverrideCutoff    int     `json:"override_cutoff"`
		} `json:"scoring"`
		Classifier struct {
			ModelPath      string  `json:"model_path"`
			CorrectAbove   float64 `json:"correct_above"`
			IncorrectBelow float64 `json:"incorrect_below"`
		} `json:"classifier"`
		MQTT struct {
			Enabled     bool   `json:"enabled"`
			Broker      string `json:"broker"`
			ClientID    string `json:"client_id"`
			TopicPrefix string `json:"topic_prefix"`
			QoS         int    `json:"qos"`
		} `json:"mqtt"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(header("  DAEMON CONFIGURATION"))
	fmt.Println(divider(50))

	section := func(name string) {
		fmt.Printf("\n  %s\n", colorize(bold, "["+name+"]"))
	}
	field := func(key string, val any) {
		fmt.Printf("    %-30s %v\n", colorize(dim, key+":"), val)
	}

	section("server")
	field("bind", cfg.Server.Bind)

	section("logging")
	field("level", cfg.Logging.Level)

	section("source")
	field("kind", cfg.Source.Kind)
	switch cfg.Source.Kind {
	case "replay":
		field("path", cfg.Source.Path)
		field("loop", cfg.Source.Loop)
	case "worker":
		field("command", strings.TrimSpace(cfg.Source.Command+" "+strings.Join(cfg.Source.Args, " ")))
	}
	field("frame", fmt.Sprintf("%dx%d", cfg.Source.FrameWidth, cfg.Source.FrameHeight))
	field("fps", cfg.Source.FPS)

	section("session")
	field("exercise", cfg.Session.Exercise)
	field("alpha", cfg.Session.Alpha)

	names := make([]string, 0, len(cfg.Exercises))
	for name := range cfg.Exercises {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		th := cfg.Exercises[name]
		section("exercises." + name)
		field("up", th.Up)
		field("down", th.Down)
	}

	section("angle")
	field("head_min_shoulder_confidence", cfg.Angle.HeadMinShoulderConfidence)

	section("scoring")
	field("rom_norm", cfg.Scoring.ROMNorm)
	field("smoothness_norm", cfg.Scoring.SmoothnessNorm)
	field("weights (rom/smooth/consist)", fmt.Sprintf("%g / %g / %g",
		cfg.Scoring.ROMWeight, cfg.Scoring.SmoothnessWeight, cfg.Scoring.ConsistencyWeight))
	field("moderate_cut", cfg.Scoring.ModerateCut)
	field("excellent_cut", cfg.Scoring.ExcellentCut)
	field("override_cutoff", cfg.Scoring.OverrideCutoff)

	section("classifier")
	model := cfg.Classifier.ModelPath
	if model == "" {
		model = "(none, untrained)"
	}
	field("model_path", model)
	field("correct_above", cfg.Classifier.CorrectAbove)
	field("incorrect_below", cfg.Classifier.IncorrectBelow)

	section("mqtt")
	field("enabled", cfg.MQTT.Enabled)
	if cfg.MQTT.Enabled {
		field("broker", cfg.MQTT.Broker)
		field("client_id", cfg.MQTT.ClientID)
		field("topic_prefix", cfg.MQTT.TopicPrefix)
		field("qos", cfg.MQTT.QoS)
	}

	fmt.Println()

	return nil
}
