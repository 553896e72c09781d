// Package display formats job and timestamp data for human consumption.
// It exists only for cmd/queuectl to import: spec.md §1 explicitly scopes
// human-readable status formatting out of the core, so nothing under
// internal/ besides the CLI depends on this package.
package display

import (
	"fmt"
	"time"
)

// Timestamp renders t for display, or "N/A" for the zero value, mirroring
// original_source/utils.py's format_timestamp.
func Timestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "N/A"
	}
	return t.UTC().Format(time.RFC3339)
}

// Duration renders the elapsed time between start and end, mirroring
// original_source/utils.py's format_duration.
func Duration(start, end *time.Time) string {
	if start == nil || end == nil {
		return "N/A"
	}
	d := end.Sub(*start)
	total := int(d.Seconds())

	switch {
	case total < 60:
		return fmt.Sprintf("%ds", total)
	case total < 3600:
		return fmt.Sprintf("%dm %ds", total/60, total%60)
	default:
		return fmt.Sprintf("%dh %dm", total/3600, (total%3600)/60)
	}
}
