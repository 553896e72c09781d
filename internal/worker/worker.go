// Package worker implements the long-running poll/claim/execute/finalise
// loop described in spec.md §4.7. A Worker knows nothing about its
// siblings; workers share only the store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/queuectl/queuectl/internal/executor"
	"github.com/queuectl/queuectl/internal/jobrepo"
	"github.com/queuectl/queuectl/internal/store"
)

// Worker polls for claimable jobs and drives them through execution and
// the retry/terminal transition.
type Worker struct {
	ID   string
	repo *jobrepo.Repo
	st   *store.Store
	log  *slog.Logger

	// Drain, when true, makes an Empty claim result an exit condition
	// instead of a sleep, once the whole queue is quiescent (§4.7).
	Drain bool
}

// New constructs a Worker with the given identity.
func New(id string, repo *jobrepo.Repo, st *store.Store, logger *slog.Logger, drain bool) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{ID: id, repo: repo, st: st, log: logger.With("worker", id), Drain: drain}
}

// Run executes the worker loop until pollCtx is cancelled (soft stop: no
// new claims, current attempt runs to completion) or, in drain mode,
// until the queue is observed quiescent. jobCtx is threaded into the
// executor for each attempt; cancelling it (a "hard stop") kills any
// in-flight subprocess.
func (w *Worker) Run(pollCtx, jobCtx context.Context) error {
	for {
		select {
		case <-pollCtx.Done():
			return nil
		default:
		}

		pollInterval := w.pollInterval(pollCtx)

		job, err := w.repo.Claim(pollCtx, w.ID)
		switch {
		case errors.Is(err, jobrepo.ErrEmpty):
			if w.Drain {
				quiescent, qerr := w.queueQuiescent(pollCtx)
				if qerr != nil {
					w.log.ErrorContext(pollCtx, "checking queue quiescence", "error", qerr)
				} else if quiescent {
					return nil
				}
			}
			if w.sleepInterruptible(pollCtx, pollInterval) {
				return nil
			}
			continue

		case err != nil:
			w.log.ErrorContext(pollCtx, "claim failed", "error", err)
			if w.sleepInterruptible(pollCtx, pollInterval) {
				return nil
			}
			continue
		}

		w.runAttempt(jobCtx, job)
	}
}

// pollInterval re-reads the config value on every loop head so a
// ConfigSet takes effect within one poll interval, per spec.md §9.
func (w *Worker) pollInterval(ctx context.Context) time.Duration {
	seconds, err := w.st.ConfigInt(ctx, store.KeyPollInterval)
	if err != nil || seconds <= 0 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

// sleepInterruptible sleeps for d or until pollCtx is done, whichever
// comes first, returning true if it was interrupted by cancellation.
func (w *Worker) sleepInterruptible(pollCtx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-pollCtx.Done():
		return true
	}
}

// queueQuiescent takes a snapshot count of pending+processing jobs; a
// zero count is the drain exit condition from spec.md §4.7, chosen over a
// naive "N consecutive empty polls" rule because it can't be fooled by a
// job that's about to reschedule itself after a failure.
func (w *Worker) queueQuiescent(ctx context.Context) (bool, error) {
	counts, err := w.repo.CountByState(ctx)
	if err != nil {
		return false, err
	}
	return counts.Pending+counts.Processing == 0, nil
}

// runAttempt executes one job attempt and applies the resulting
// transition. Final bookkeeping writes use context.Background so that a
// soft-stop signal (which cancels pollCtx) doesn't prevent the in-flight
// attempt's outcome from being persisted.
func (w *Worker) runAttempt(jobCtx context.Context, job *jobrepo.Job) {
	log := w.log.With("job_id", job.ID, "attempt", job.Attempts+1)
	log.Info("running job", "command", job.Command)

	res := executor.Run(jobCtx, executor.Job{
		ID:             job.ID,
		Command:        job.Command,
		Attempt:        job.Attempts + 1,
		TimeoutSeconds: job.TimeoutSecs,
		StdoutPath:     job.StdoutPath,
		StderrPath:     job.StderrPath,
	})

	finishCtx := context.Background()

	if res.Outcome == executor.OutcomeOK {
		if err := w.repo.FinishSuccess(finishCtx, job, res.ExitCode); err != nil {
			log.Error("recording success failed; leaving row for stale-lock recovery", "error", err)
		} else {
			log.Info("job completed")
		}
		return
	}

	backoffBase, err := w.st.ConfigInt(finishCtx, store.KeyBackoffBase)
	if err != nil || backoffBase < 1 {
		backoffBase = 2
	}

	diagnostic := res.Diagnostic
	if diagnostic == "" {
		diagnostic = fmt.Sprintf("attempt failed with outcome %s", res.Outcome)
	}

	var exitCode *int
	if res.Outcome == executor.OutcomeNonzero {
		exitCode = &res.ExitCode
	}

	if err := w.repo.FinishFailure(finishCtx, job, exitCode, diagnostic, backoffBase); err != nil {
		log.Error("recording failure failed; leaving row for stale-lock recovery", "error", err)
		return
	}
	log.Warn("job attempt failed", "outcome", res.Outcome, "diagnostic", diagnostic)
}
