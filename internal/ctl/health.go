package ctl

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Health checks daemon liveness via GET /healthz, asking for the
// component-level JSON report.
func Health(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	status, body, err := getRaw(baseURL, "/healthz", "application/json")
	if err != nil {
		if jsonOutput {
			return printJSON(map[string]any{"healthy": false, "url": baseURL, "error": err.Error()})
		}
		return err
	}

	var report struct {
		Healthy bool                      `json:"healthy"`
		Checks  map[string]map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(body, &report); err != nil {
		report.Healthy = status == 200
	}

	if jsonOutput {
		return printJSON(map[string]any{"healthy": report.Healthy, "url": baseURL, "checks": report.Checks})
	}

	fmt.Println()
	if report.Healthy {
		fmt.Printf("  %s  rehabd is reachable at %s\n", colorize(green, "HEALTHY"), colorize(dim, baseURL))
	} else {
		fmt.Printf("  %s  rehabd returned HTTP %d at %s\n", colorize(red, "UNHEALTHY"), status, colorize(dim, baseURL))
	}

	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := report.Checks[name]
		mark := colorize(green, "ok  ")
		if ok, _ := check["ok"].(bool); !ok {
			mark = colorize(red, "FAIL")
		}
		var detail []string
		for k, v := range check {
			if k != "ok" {
				detail = append(detail, fmt.Sprintf("%s=%v", k, v))
			}
		}
		sort.Strings(detail)
		fmt.Printf("    %s %-12s %s\n", mark, name, colorize(dim, strings.Join(detail, " ")))
	}
	fmt.Println()

	return nil
}
