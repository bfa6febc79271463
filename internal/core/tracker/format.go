package tracker

import (
	"strconv"
	"strings"
)

// FormatDuration renders seconds compactly, e.g. "1 day 1 hour 1 min" or
// "1 min 1 sec". Leading zero units are dropped down to minutes, and seconds
// are omitted once days or hours are shown.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	days := seconds / 86400
	hours := seconds / 3600 % 24
	minutes := seconds / 60 % 60

	parts := make([]string, 0, 4)
	if days != 0 {
		parts = append(parts, plural(days, "day"))
	}
	if len(parts) > 0 || hours != 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	parts = append(parts, strconv.FormatInt(minutes, 10)+" min")
	if days == 0 && hours == 0 {
		parts = append(parts, strconv.FormatInt(seconds%60, 10)+" sec")
	}
	return strings.Join(parts, " ")
}

func plural(value int64, unit string) string {
	text := strconv.FormatInt(value, 10) + " " + unit
	if value != 1 {
		text += "s"
	}
	return text
}

// String renders "<subject>: <duration> (<status>)", noting when inactivity
// is not detected.
func (display DisplayState) String() string {
	status := string(display.Status)
	if display.IdleDetectionOff {
		status += ", no idle detection"
	}
	return display.Subject + ": " + FormatDuration(display.TotalSeconds) + " (" + status + ")"
}
