package jobrepo

import (
	"database/sql"
	"fmt"
	"time"
)

const selectColumns = `
SELECT id, command, state, attempts, max_retries, priority, timeout_seconds,
	next_run_at, locked_by, locked_at, processing_started_at, processing_finished_at,
	exit_code, last_error, stdout_path, stderr_path, created_at, updated_at
FROM jobs`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		j                                                        Job
		state                                                    string
		timeoutSecs, exitCode                                    sql.NullInt64
		lockedBy, lockedAt, procStart, procFinish, lastErr        sql.NullString
		nextRunAt, createdAt, updatedAt                           string
	)

	err := row.Scan(
		&j.ID, &j.Command, &state, &j.Attempts, &j.MaxRetries, &j.Priority, &timeoutSecs,
		&nextRunAt, &lockedBy, &lockedAt, &procStart, &procFinish,
		&exitCode, &lastErr, &j.StdoutPath, &j.StderrPath, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.State = State(state)

	if j.NextRunAt, err = parseTime(nextRunAt); err != nil {
		return nil, fmt.Errorf("parsing next_run_at: %w", err)
	}
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if j.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	if timeoutSecs.Valid {
		v := int(timeoutSecs.Int64)
		j.TimeoutSecs = &v
	}
	if exitCode.Valid {
		v := int(exitCode.Int64)
		j.ExitCode = &v
	}
	if lockedBy.Valid {
		v := lockedBy.String
		j.LockedBy = &v
	}
	if lastErr.Valid {
		v := lastErr.String
		j.LastError = &v
	}
	if lockedAt.Valid {
		t, err := parseTime(lockedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing locked_at: %w", err)
		}
		j.LockedAt = &t
	}
	if procStart.Valid {
		t, err := parseTime(procStart.String)
		if err != nil {
			return nil, fmt.Errorf("parsing processing_started_at: %w", err)
		}
		j.ProcessingStartedAt = &t
	}
	if procFinish.Valid {
		t, err := parseTime(procFinish.String)
		if err != nil {
			return nil, fmt.Errorf("parsing processing_finished_at: %w", err)
		}
		j.ProcessingFinishedAt = &t
	}

	return &j, nil
}

const timeLayout = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
