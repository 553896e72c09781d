package jobrepo

import (
	"context"
	"database/sql"
	"errors"
)

// Claim implements the atomic claim protocol from spec.md §4.4: find the
// highest-priority eligible pending job and transition it to processing
// in one committed transaction, using "UPDATE ... WHERE state='pending'"
// as the compare-and-set that guarantees at most one worker's claim
// succeeds for a given row.
//
// Under contention the select can observe a row that another worker
// claims before our update commits; that update then affects zero rows,
// and we retry the whole select-then-update up to maxClaimContention
// times before giving up and returning ErrEmpty, so a busy queue can't
// livelock a worker indefinitely.
func (r *Repo) Claim(ctx context.Context, workerID string) (*Job, error) {
	for attempt := 0; attempt < maxClaimContention; attempt++ {
		job, contended, err := r.tryClaim(ctx, workerID)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
		if !contended {
			return nil, ErrEmpty
		}
	}
	return nil, ErrEmpty
}

// tryClaim runs one select-then-update attempt. It returns
// (job, false, nil) on a successful claim, (nil, false, nil) when there
// was simply nothing pending, and (nil, true, nil) when a race was lost
// and the caller should retry.
func (r *Repo) tryClaim(ctx context.Context, workerID string) (job *Job, contended bool, err error) {
	now := formatTime(r.clock.Now())

	err = r.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM jobs
			WHERE state = ? AND next_run_at <= ?
			ORDER BY priority ASC, next_run_at ASC, id ASC
			LIMIT 1`, string(StatePending), now).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE jobs SET state = ?, locked_by = ?, locked_at = ?,
				processing_started_at = ?, updated_at = ?
			WHERE id = ? AND state = ?`,
			string(StateProcessing), workerID, now, now, now, id, string(StatePending))
		if err != nil {
			return err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			contended = true
			return nil
		}

		row := tx.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
		job, err = scanJob(row)
		return err
	})

	return job, contended, err
}
