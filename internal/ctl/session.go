package ctl

import (
	"fmt"
	"strings"
)

// SelectOptions controls the select command.
type SelectOptions struct {
	Exercise string
	JSON     bool
}

// Select switches the daemon to another exercise. The daemon starts a new
// session even when the exercise is already selected.
func Select(baseURL string, opts SelectOptions) error {
	baseURL = strings.TrimRight(baseURL, "/")

	if opts.Exercise == "" {
		return fmt.Errorf("exercise name required (see: rehabctl exercises)")
	}

	var resp struct {
		OK        bool   `json:"ok"`
		Exercise  string `json:"exercise"`
		Label     string `json:"label"`
		SessionID string `json:"session_id"`
		Error     string `json:"error"`
	}
	if err := postJSON(baseURL, "/api/exercise", map[string]string{"exercise": opts.Exercise}, &resp); err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Println()
	if resp.OK {
		fmt.Printf("  %s  %s\n", colorize(green, "SELECTED"), colorize(bold, resp.Label))
		fmt.Printf("  %s  %s\n", colorize(dim, "session "), resp.SessionID)
	} else {
		fmt.Printf("  %s  %s\n", colorize(red, "FAILED"), resp.Error)
	}
	fmt.Println()

	return nil
}

// Reset clears the rep history and starts a new session for the current
// exercise.
func Reset(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var result struct {
		OK        bool   `json:"ok"`
		SessionID string `json:"session_id"`
		Error     string `json:"error"`
	}
	if err := postJSON(baseURL, "/api/reset", nil, &result); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}

	if result.OK {
		fmt.Printf("\n  %s  new session %s\n\n", colorize(green, "RESET"), result.SessionID)
	} else {
		fmt.Printf("\n  %s  %s\n\n", colorize(red, "ERROR"), result.Error)
	}
	return nil
}
