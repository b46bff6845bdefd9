package ctl

import (
	"fmt"
	"strings"
)

// Reload tells the daemon to re-read its config file from disk. The
// daemon starts a new session when the reload succeeds.
func Reload(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var result struct {
		OK        bool   `json:"ok"`
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
		Error     string `json:"error"`
	}
	if err := postJSON(baseURL, "/api/reload", nil, &result); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}

	if result.OK {
		fmt.Printf("\n  %s  %s\n", colorize(green, "RELOADED"), result.Message)
		fmt.Printf("  %s  %s\n\n", colorize(dim, "session"), result.SessionID)
	} else {
		fmt.Printf("\n  %s  %s\n\n", colorize(red, "ERROR"), result.Error)
	}
	return nil
}
