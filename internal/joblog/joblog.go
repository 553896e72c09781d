// Package joblog manages the per-job append-only stdout/stderr log files.
// Each job writes to the same stable pair of files across every attempt,
// so operators can tail a job the way original_source/worker.py's
// _save_output does, prefixed with an attempt header.
package joblog

import (
	"fmt"
	"os"
	"time"
)

// AppendHeader opens path for appending (creating the file if necessary;
// its parent directory must already exist), writes an attempt header line,
// and returns the open file for the executor to stream command output into.
func AppendHeader(path string, attempt int, startedAt time.Time) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	header := fmt.Sprintf("\n=== attempt %d at %s ===\n", attempt, startedAt.Format(time.RFC3339))
	if _, err := f.WriteString(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing header to %s: %w", path, err)
	}

	return f, nil
}
