// Package timeutil formats timestamps and durations for CLI output.
package timeutil

import (
	"fmt"
	"time"
)

// LocalTimeFormat is the format used for full local times.
const LocalTimeFormat = "Mon Jan 2 15:04:05 2006"

// recent is how old a timestamp may be before FormatListing shows the year.
const recent = 182 * 24 * time.Hour

// FormatTime returns t in local time, or "-" when t is unknown.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(LocalTimeFormat)
}

// FormatListing formats t the way ls -l does: the time of day for recent
// timestamps, the year for old or future ones.
func FormatListing(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	t = t.Local()
	if age := now.Sub(t); age < 0 || age > recent {
		return t.Format("Jan _2  2006")
	}
	return t.Format("Jan _2 15:04")
}

// FormatDuration converts d to a compact form like "3d 0h 30m 15s".
func FormatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
