package ctl

import (
	"fmt"
	"strings"
	"time"
)

// RepsOptions controls the reps command output.
type RepsOptions struct {
	Last int
	JSON bool
}

// Reps lists the reps completed in the current session.
func Reps(baseURL string, opts RepsOptions) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var resp struct {
		SessionID string `json:"session_id"`
		Exercise  string `json:"exercise"`
		Reps      []struct {
			Number     int       `json:"number"`
			ROM        float64   `json:"rom"`
			Smoothness float64   `json:"smoothness"`
			Start      time.Time `json:"start"`
			End        time.Time `json:"end"`
		} `json:"reps"`
	}
	if err := getJSON(baseURL, "/api/reps", &resp); err != nil {
		return err
	}
	if opts.Last > 0 && opts.Last < len(resp.Reps) {
		resp.Reps = resp.Reps[len(resp.Reps)-opts.Last:]
	}

	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  REPS"))
	fmt.Printf("  %s %s  %s %s\n",
		colorize(dim, "Session:"), resp.SessionID,
		colorize(dim, "Exercise:"), resp.Exercise,
	)

	t := newTable("  ", "#", "Start", "Duration", "ROM", "Smoothness")
	t.alignRight(0, 2, 3, 4)
	for _, r := range resp.Reps {
		t.row(
			fmt.Sprint(r.Number),
			r.Start.Local().Format("15:04:05.000"),
			fmt.Sprintf("%.2fs", r.End.Sub(r.Start).Seconds()),
			fmt.Sprintf("%.1f", r.ROM),
			fmt.Sprintf("%.3g", r.Smoothness),
		)
	}
	t.flush()
	fmt.Println()

	return nil
}
