package ctl

import (
	"fmt"
	"strings"
	"time"
)

// StatusResponse mirrors the JSON returned by GET /api/status.
type StatusResponse struct {
	Name          string `json:"name"`
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Source        string `json:"source"`
	Clients       int    `json:"clients"`

	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	Exercise  string    `json:"exercise"`
	Label     string    `json:"label"`
	Phase     string    `json:"phase"`
	Side      string    `json:"side"`
	Reps      int       `json:"reps"`
	Score     int       `json:"score"`
	Feedback  string    `json:"feedback"`
	AI        string    `json:"ai"`

	Smoothed         *float64 `json:"smoothed"`
	TraceLen         int      `json:"trace_len"`
	BaselineDistance *float64 `json:"baseline_distance"`

	FramesSeen        uint64 `json:"frames_seen"`
	FramesNoDetection uint64 `json:"frames_no_detection"`
	FramesSkipped     uint64 `json:"frames_skipped"`

	Loop *LoopStats `json:"loop"`
}

// LoopStats mirrors the frame loop counters.
type LoopStats struct {
	Frames       uint64 `json:"frames"`
	Reps         uint64 `json:"reps"`
	Skipped      uint64 `json:"skipped"`
	Recovered    uint64 `json:"recovered"`
	SourceErrors uint64 `json:"source_errors"`
}

// Status fetches the daemon status and prints a formatted summary.
func Status(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var s StatusResponse
	if err := getJSON(baseURL, "/api/status", &s); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(s)
	}

	uptime := formatDuration(time.Duration(s.UptimeSeconds) * time.Second)

	fmt.Println()
	fmt.Println(header("  REHAB ENGINE STATUS"))
	fmt.Println(divider(42))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Daemon:"), s.Name)
	fmt.Printf("  %-12s %s\n", colorize(dim, "State:"), colorize(stateColor(s.State), s.State))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Uptime:"), uptime)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Source:"), s.Source)
	fmt.Printf("  %-12s %d\n", colorize(dim, "Clients:"), s.Clients)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Host:"), baseURL)

	fmt.Println()
	fmt.Println(header("  SESSION"))
	fmt.Println(divider(42))
	fmt.Printf("  %-12s %s\n", colorize(dim, "ID:"), s.SessionID)
	if !s.StartedAt.IsZero() {
		fmt.Printf("  %-12s %s ago\n", colorize(dim, "Started:"), formatDuration(time.Since(s.StartedAt)))
	}
	fmt.Printf("  %-12s %s\n", colorize(dim, "Exercise:"), colorize(bold, s.Label))
	phase := colorize(stateColor(s.Phase), s.Phase)
	if s.Side != "" {
		phase += colorize(dim, " ("+s.Side+" side)")
	}
	fmt.Printf("  %-12s %s\n", colorize(dim, "Phase:"), phase)
	if s.Smoothed != nil {
		fmt.Printf("  %-12s %.1f\n", colorize(dim, "Signal:"), *s.Smoothed)
	}
	fmt.Printf("  %-12s %d\n", colorize(dim, "Reps:"), s.Reps)

	if s.Reps > 0 {
		fmt.Printf("  %-12s [%s] %d\n", colorize(dim, "Score:"), progressBar(s.Score, 20, scoreColor(s.Score)), s.Score)
		fmt.Printf("  %-12s %s\n", colorize(dim, "Feedback:"), s.Feedback)
		fmt.Printf("  %-12s %s\n", colorize(dim, "AI:"), colorize(qualityColor(s.AI), s.AI))
	}
	fmt.Println()

	return nil
}

// Stats prints the frame loop and pipeline counters.
func Stats(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var s StatusResponse
	if err := getJSON(baseURL, "/api/status", &s); err != nil {
		return err
	}

	counters := map[string]uint64{
		"frames_seen":         s.FramesSeen,
		"frames_no_detection": s.FramesNoDetection,
		"frames_skipped":      s.FramesSkipped,
	}
	if s.Loop != nil {
		counters["loop_frames"] = s.Loop.Frames
		counters["loop_reps"] = s.Loop.Reps
		counters["loop_skipped"] = s.Loop.Skipped
		counters["loop_recovered"] = s.Loop.Recovered
		counters["source_errors"] = s.Loop.SourceErrors
	}
	if jsonOutput {
		return printJSON(counters)
	}

	fmt.Println()
	fmt.Println(header("  PIPELINE STATISTICS"))
	t := newTable("  ", "Counter", "Value")
	t.alignRight(1)
	t.row("Frames seen (session)", fmt.Sprint(s.FramesSeen))
	t.row("No detection (session)", fmt.Sprint(s.FramesNoDetection))
	t.row("Skipped (session)", fmt.Sprint(s.FramesSkipped))
	if s.Loop != nil {
		t.row("Frames read", fmt.Sprint(s.Loop.Frames))
		t.row("Reps scored", fmt.Sprint(s.Loop.Reps))
		t.row("Frames skipped", fmt.Sprint(s.Loop.Skipped))
		t.row("Panics recovered", fmt.Sprint(s.Loop.Recovered))
		t.row("Source errors", fmt.Sprint(s.Loop.SourceErrors))
	}
	t.flush()
	fmt.Println()
	return nil
}
