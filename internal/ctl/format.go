// Package ctl implements the client-side commands for rehabctl.
// It talks to a running rehabd over HTTP and WebSocket and renders the results to the terminal.
package ctl

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"
)

// ANSI escape codes for terminal formatting.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	blue   = "\033[34m"
	cyan   = "\033[36m"
	white  = "\033[37m"
)

const rule = "─"

// colorEnabled reports whether stdout is a terminal. When output is piped
// or redirected, ANSI escape codes are suppressed.
func colorEnabled() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// stateColor returns the ANSI color code for a daemon state or rep phase.
func stateColor(state string) string {
	switch state {
	case "RUNNING", "idle":
		return green
	case "active":
		return blue
	case "SOURCE_CLOSED":
		return yellow
	case "STOPPING":
		return red
	case "BOOTING":
		return dim
	default:
		return white
	}
}

// scoreColor colors a rep score by feedback band.
func scoreColor(score int) string {
	switch {
	case score >= 70:
		return green
	case score >= 40:
		return yellow
	default:
		return red
	}
}

// qualityColor colors a classifier label.
func qualityColor(label string) string {
	switch label {
	case "Correct":
		return green
	case "Incorrect":
		return red
	case "Uncertain":
		return yellow
	default:
		return dim
	}
}

// colorize wraps text with an ANSI color sequence.
// Returns the text unchanged when color output is disabled.
func colorize(color, text string) string {
	if !colorEnabled() || color == "" {
		return text
	}
	return color + text + reset
}

// header returns a bold section header, or plain text when color is off.
func header(title string) string {
	if colorEnabled() {
		return bold + title + reset
	}
	return title
}

// divider returns a dimmed horizontal rule of the given width.
func divider(width int) string {
	return colorize(dim, "  "+strings.Repeat(rule, width))
}

// padRight pads s with spaces to reach the given width.
func padRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

func padLeft(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return strings.Repeat(" ", width-n) + s
}

// formatDuration renders a time.Duration as a compact human string like
// "2h 14m 8s" or "45s".
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// progressBar builds a simple ASCII bar of the given width.
// The filled portion is colored when color output is enabled.
func progressBar(pct, width int, color string) string {
	if pct < 0 {
		pct = 0
	}
	filled := (pct * width) / 100
	if filled > width {
		filled = width
	}
	empty := width - filled
	return colorize(color, strings.Repeat("=", filled)) + strings.Repeat(" ", empty)
}

// table collects rows and prints them with aligned columns. Cells are
// plain text; color is applied per column after padding so escape codes
// don't skew the widths.
type table struct {
	indent  string
	headers []string
	rows    [][]string
	right   map[int]bool
	colors  map[int]func(string) string
}

func newTable(indent string, headers ...string) *table {
	return &table{
		indent:  indent,
		headers: headers,
		right:   map[int]bool{},
		colors:  map[int]func(string) string{},
	}
}

func (t *table) alignRight(cols ...int) {
	for _, c := range cols {
		t.right[c] = true
	}
}

// color sets a per-cell color function for a column.
func (t *table) color(col int, fn func(cell string) string) {
	t.colors[col] = fn
}

func (t *table) row(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) flush() {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, r := range t.rows {
		for i, c := range r {
			if i < len(widths) && utf8.RuneCountInString(c) > widths[i] {
				widths[i] = utf8.RuneCountInString(c)
			}
		}
	}

	total := 0
	for _, w := range widths {
		total += w + 2
	}

	cells := make([]string, len(t.headers))
	for i, h := range t.headers {
		cells[i] = colorize(dim, t.pad(i, h, widths[i]))
	}
	fmt.Println(t.indent + strings.TrimRight(strings.Join(cells, "  "), " "))
	fmt.Println(colorize(dim, t.indent+strings.Repeat(rule, max(total-2, 0))))

	if len(t.rows) == 0 {
		fmt.Println(t.indent + colorize(dim, "(none)"))
		return
	}
	for _, r := range t.rows {
		cells := make([]string, len(widths))
		for i := range widths {
			c := ""
			if i < len(r) {
				c = r[i]
			}
			padded := t.pad(i, c, widths[i])
			if fn, ok := t.colors[i]; ok {
				padded = fn(padded)
			}
			cells[i] = padded
		}
		fmt.Println(t.indent + strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

func (t *table) pad(col int, s string, width int) string {
	if t.right[col] {
		return padLeft(s, width)
	}
	return padRight(s, width)
}
