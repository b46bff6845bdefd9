package ctl

import (
	"fmt"
	"strings"
)

// Exercises lists the exercise catalog with its active thresholds.
func Exercises(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var resp struct {
		Exercises []struct {
			Key      string  `json:"key"`
			Label    string  `json:"label"`
			ID       int     `json:"id"`
			Measure  string  `json:"measure"`
			Up       float64 `json:"up"`
			Down     float64 `json:"down"`
			Selected bool    `json:"selected"`
		} `json:"exercises"`
	}
	if err := getJSON(baseURL, "/api/exercises", &resp); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  EXERCISES"))

	t := newTable("  ", " ", "ID", "Key", "Label", "Measure", "Up", "Down")
	t.alignRight(1, 5, 6)
	t.color(0, func(s string) string { return colorize(green, s) })
	for _, e := range resp.Exercises {
		mark := ""
		if e.Selected {
			mark = "*"
		}
		t.row(mark, fmt.Sprint(e.ID), e.Key, e.Label, e.Measure, fmt.Sprintf("%g", e.Up), fmt.Sprintf("%g", e.Down))
	}
	t.flush()
	fmt.Println()

	return nil
}
