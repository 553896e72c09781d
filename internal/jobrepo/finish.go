package jobrepo

import (
	"context"
	"database/sql"
	"time"

	"github.com/tidwall/sjson"
)

// maxBackoffSeconds is the ceiling applied to the computed retry delay,
// per spec.md §4.5 and §9's overflow guidance.
const maxBackoffSeconds = 86400

// backoffDelay computes backoff_base^attempts seconds, clamped to
// maxBackoffSeconds. attempts is the post-increment attempt count, so the
// first retry waits base^1 seconds.
func backoffDelay(attempts, base int) int {
	if base <= 0 {
		return 0
	}
	delay := 1
	for i := 0; i < attempts; i++ {
		delay *= base
		if delay >= maxBackoffSeconds {
			return maxBackoffSeconds
		}
	}
	return delay
}

// FinishSuccess records a successful attempt: state -> completed, lock
// cleared, last_error cleared.
func (r *Repo) FinishSuccess(ctx context.Context, job *Job, exitCode int) error {
	now := r.clock.Now()

	return r.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE jobs SET state = ?, attempts = attempts + 1, exit_code = ?,
				last_error = NULL, locked_by = NULL, locked_at = NULL,
				processing_finished_at = ?, updated_at = ?
			WHERE id = ?`,
			string(StateCompleted), exitCode, formatTime(now), formatTime(now), job.ID)
		return err
	})
}

// FinishFailure records a failed attempt and applies the retry/terminal
// transition rule from spec.md §4.5: if the post-increment attempt count
// is at most max_retries, the job is rescheduled as pending with an
// exponentially backed-off next_run_at; otherwise it becomes dead, so a
// job runs at most max_retries+1 times.
func (r *Repo) FinishFailure(ctx context.Context, job *Job, exitCode *int, errMsg string, backoffBase int) error {
	now := r.clock.Now()
	newAttempts := job.Attempts + 1
	lastError := buildLastErrorJSON(errMsg, newAttempts, exitCode)

	if newAttempts <= job.MaxRetries {
		delay := backoffDelay(newAttempts, backoffBase)
		nextRunAt := now.Add(time.Duration(delay) * time.Second)

		return r.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				UPDATE jobs SET state = ?, attempts = ?, exit_code = ?, last_error = ?,
					next_run_at = ?, locked_by = NULL, locked_at = NULL,
					processing_finished_at = ?, updated_at = ?
				WHERE id = ?`,
				string(StatePending), newAttempts, nullableInt(exitCode), lastError,
				formatTime(nextRunAt), formatTime(now), formatTime(now), job.ID)
			return err
		})
	}

	return r.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE jobs SET state = ?, attempts = ?, exit_code = ?, last_error = ?,
				locked_by = NULL, locked_at = NULL, processing_finished_at = ?, updated_at = ?
			WHERE id = ?`,
			string(StateDead), newAttempts, nullableInt(exitCode), lastError,
			formatTime(now), formatTime(now), job.ID)
		return err
	})
}

// buildLastErrorJSON assembles the last_error diagnostic blob persisted
// alongside a failed attempt: the raw error message plus the attempt
// number and exit code it occurred on, so `dlq list` can surface
// structured detail instead of a bare string. Built field-by-field with
// sjson rather than a struct + json.Marshal so a missing exit code is
// simply an absent key, not a null.
func buildLastErrorJSON(message string, attempt int, exitCode *int) string {
	doc, _ := sjson.Set("{}", "message", message)
	doc, _ = sjson.Set(doc, "attempt", attempt)
	if exitCode != nil {
		doc, _ = sjson.Set(doc, "exit_code", *exitCode)
	}
	return doc
}
