package jobrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/queuectl/queuectl/internal/clock"
	"github.com/queuectl/queuectl/internal/qerr"
	"github.com/queuectl/queuectl/internal/store"
)

// ErrEmpty is returned by Claim when no job is currently eligible for
// dispatch. It is not a qerr.* type because it's an expected, frequent
// outcome of polling rather than a caller-facing failure.
var ErrEmpty = errors.New("jobrepo: no claimable job")

// maxClaimContention bounds the claim protocol's select-then-update retry
// loop under heavy contention, per spec.md §4.4 step 4, to avoid livelock.
const maxClaimContention = 3

// Repo is the job repository.
type Repo struct {
	store *store.Store
	clock clock.Clock
	logDir string
}

// New returns a job repository backed by st, using clk for all
// timestamps it writes, and logDir as the directory job log files live
// under.
func New(st *store.Store, clk clock.Clock, logDir string) *Repo {
	return &Repo{store: st, clock: clk, logDir: logDir}
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// LogPaths returns the stable stdout/stderr log file paths for a job id,
// sanitising the id to a filesystem-safe form per spec.md §6.2.
func (r *Repo) LogPaths(id string) (stdout, stderr string) {
	safe := unsafePathChars.ReplaceAllString(id, "_")
	return filepath.Join(r.logDir, safe+"_out.txt"), filepath.Join(r.logDir, safe+"_err.txt")
}

// Enqueue inserts a new pending job row.
func (r *Repo) Enqueue(ctx context.Context, spec Spec) (*Job, error) {
	if spec.ID == "" {
		return nil, &qerr.InvalidArgError{Message: "job id is required"}
	}
	if spec.Command == "" {
		return nil, &qerr.InvalidArgError{Message: "job command is required"}
	}

	if err := os.MkdirAll(r.logDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	now := r.clock.Now()

	maxRetries := 3
	if spec.MaxRetries != nil {
		if *spec.MaxRetries < 0 {
			return nil, &qerr.InvalidArgError{Message: "max_retries must be non-negative"}
		}
		maxRetries = *spec.MaxRetries
	} else if n, err := r.store.ConfigInt(ctx, store.KeyMaxRetries); err == nil {
		maxRetries = n
	}

	if spec.TimeoutSeconds != nil && *spec.TimeoutSeconds <= 0 {
		return nil, &qerr.InvalidArgError{Message: "timeout_seconds must be positive"}
	}

	nextRunAt := now
	if spec.RunAt != nil {
		nextRunAt = spec.RunAt.UTC()
	}

	stdoutPath, stderrPath := r.LogPaths(spec.ID)

	job := &Job{
		ID:          spec.ID,
		Command:     spec.Command,
		State:       StatePending,
		Priority:    spec.Priority,
		Attempts:    0,
		MaxRetries:  maxRetries,
		TimeoutSecs: spec.TimeoutSeconds,
		NextRunAt:   nextRunAt,
		StdoutPath:  stdoutPath,
		StderrPath:  stderrPath,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := r.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO jobs (
				id, command, state, attempts, max_retries, priority,
				timeout_seconds, next_run_at, stdout_path, stderr_path,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID, job.Command, string(job.State), job.Attempts, job.MaxRetries, job.Priority,
			nullableInt(job.TimeoutSecs), formatTime(job.NextRunAt), job.StdoutPath, job.StderrPath,
			formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &qerr.DuplicateIDError{ID: spec.ID}
		}
		return nil, err
	}

	return job, nil
}

// Get fetches a single job by id.
func (r *Repo) Get(ctx context.Context, id string) (*Job, error) {
	row := r.store.DB().QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &qerr.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// List returns jobs matching filter, ordered priority ASC, next_run_at
// ASC, id ASC for determinism, per spec.md §4.3.
func (r *Repo) List(ctx context.Context, filter Filter) ([]*Job, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := selectColumns
	args := []any{}
	if filter.State != nil {
		query += ` WHERE state = ?`
		args = append(args, string(*filter.State))
	}
	query += ` ORDER BY priority ASC, next_run_at ASC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// DLQList returns dead jobs, most recently updated first.
func (r *Repo) DLQList(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.store.DB().QueryContext(ctx,
		selectColumns+` WHERE state = ? ORDER BY updated_at DESC LIMIT ?`, string(StateDead), limit)
	if err != nil {
		return nil, fmt.Errorf("listing dlq: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// CountByState returns a snapshot of job counts by state.
func (r *Repo) CountByState(ctx context.Context) (Counts, error) {
	rows, err := r.store.DB().QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return Counts{}, fmt.Errorf("counting jobs: %w", err)
	}
	defer rows.Close()

	var c Counts
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return Counts{}, err
		}
		c.Total += n
		switch State(state) {
		case StatePending:
			c.Pending = n
		case StateProcessing:
			c.Processing = n
		case StateCompleted:
			c.Completed = n
		case StateDead:
			c.Dead = n
		}
	}
	return c, rows.Err()
}

// RetryFromDLQ resets a dead job back to pending, clearing attempts and
// last_error, per spec.md §4.3.
func (r *Repo) RetryFromDLQ(ctx context.Context, id string) error {
	now := formatTime(r.clock.Now())

	return r.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var state string
		err := tx.QueryRowContext(ctx, `SELECT state FROM jobs WHERE id = ?`, id).Scan(&state)
		if errors.Is(err, sql.ErrNoRows) {
			return &qerr.NotFoundError{ID: id}
		}
		if err != nil {
			return err
		}
		if State(state) != StateDead {
			return &qerr.InvalidStateError{ID: id, State: state, Message: "job is not in the DLQ"}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET state = ?, attempts = 0, next_run_at = ?, updated_at = ?,
				locked_by = NULL, locked_at = NULL, last_error = NULL
			WHERE id = ?`,
			string(StatePending), now, now, id)
		return err
	})
}

// RetryAllFromDLQ resets every dead job back to pending and returns the
// count affected.
func (r *Repo) RetryAllFromDLQ(ctx context.Context) (int, error) {
	now := formatTime(r.clock.Now())
	var affected int64

	err := r.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs SET state = ?, attempts = 0, next_run_at = ?, updated_at = ?,
				locked_by = NULL, locked_at = NULL, last_error = NULL
			WHERE state = ?`,
			string(StatePending), now, now, string(StateDead))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return int(affected), err
}

// RecoverStaleLocks moves every processing row whose locked_at predates
// threshold back to pending, clearing lock fields. Returns the count
// affected. Idempotent: a second call with the same threshold affects 0
// rows once the first has run.
func (r *Repo) RecoverStaleLocks(ctx context.Context, threshold time.Time) (int, error) {
	now := formatTime(r.clock.Now())
	var affected int64

	err := r.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs SET state = ?, locked_by = NULL, locked_at = NULL, updated_at = ?
			WHERE state = ? AND locked_at < ?`,
			string(StatePending), now, string(StateProcessing), formatTime(threshold))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return int(affected), err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
