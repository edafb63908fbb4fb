package main

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.Und)

// stateLabel renders a task or dependency state for tables.
func stateLabel(state string) string {
	state = strings.TrimSpace(strings.ReplaceAll(state, "_", " "))
	if state == "" {
		return "-"
	}
	return titleCaser.String(state)
}

func formatSize(size int64) string {
	if size < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(size))
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatDuration(start, end time.Time) string {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return "-"
	}
	return end.Sub(start).Round(time.Millisecond).String()
}

func truncate(value string, width int) string {
	value = strings.TrimSpace(value)
	if width <= 0 || len([]rune(value)) <= width {
		return value
	}
	runes := []rune(value)
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
