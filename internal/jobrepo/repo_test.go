package jobrepo_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/queuectl/queuectl/internal/clock"
	"github.com/queuectl/queuectl/internal/jobrepo"
	"github.com/queuectl/queuectl/internal/qerr"
	"github.com/queuectl/queuectl/internal/store"
)

func newTestRepo(t *testing.T) (*jobrepo.Repo, *clock.Fake) {
	t.Helper()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queuectl.db")

	st, err := store.Open(ctx, path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.SeedDefaults(ctx))

	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	repo := jobrepo.New(st, fc, t.TempDir())

	return repo, fc
}

func TestEnqueueRejectsEmptyFields(t *testing.T) {
	t.Parallel()
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, jobrepo.Spec{ID: "", Command: "echo hi"})
	require.Error(t, err)

	_, err = repo.Enqueue(ctx, jobrepo.Spec{ID: "a", Command: ""})
	require.Error(t, err)
}

func TestEnqueueRejectsDuplicateID(t *testing.T) {
	t.Parallel()
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, jobrepo.Spec{ID: "dup", Command: "echo hi"})
	require.NoError(t, err)

	_, err = repo.Enqueue(ctx, jobrepo.Spec{ID: "dup", Command: "echo hi"})
	require.Error(t, err)

	var dupErr *qerr.DuplicateIDError
	require.ErrorAs(t, err, &dupErr)
	require.Equal(t, "dup", dupErr.ID)
}

func TestClaimReturnsEmptyWhenNothingPending(t *testing.T) {
	t.Parallel()
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Claim(ctx, "worker-1")
	require.ErrorIs(t, err, jobrepo.ErrEmpty)
}

func TestClaimIsCompareAndSet(t *testing.T) {
	t.Parallel()
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, jobrepo.Spec{ID: "job-1", Command: "echo hi"})
	require.NoError(t, err)

	job, err := repo.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.Equal(t, "job-1", job.ID)
	require.Equal(t, jobrepo.StateProcessing, job.State)

	_, err = repo.Claim(ctx, "worker-2")
	require.ErrorIs(t, err, jobrepo.ErrEmpty)
}

func TestClaimNoDuplicateExecutionUnderConcurrency(t *testing.T) {
	t.Parallel()
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	const numJobs = 50
	for i := 0; i < numJobs; i++ {
		_, err := repo.Enqueue(ctx, jobrepo.Spec{ID: idFor(i), Command: "echo hi"})
		require.NoError(t, err)
	}

	var (
		mu      sync.Mutex
		claimed = map[string]int{}
		wg      sync.WaitGroup
	)

	const numWorkers = 8
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		workerID := idFor(w)
		go func() {
			defer wg.Done()
			for {
				job, err := repo.Claim(ctx, "worker-"+workerID)
				if err != nil {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
				require.NoError(t, repo.FinishSuccess(ctx, job, 0))
			}
		}()
	}
	wg.Wait()

	require.Len(t, claimed, numJobs)
	for id, count := range claimed {
		require.Equalf(t, 1, count, "job %s claimed %d times", id, count)
	}
}

func TestPriorityOrdering(t *testing.T) {
	t.Parallel()
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, jobrepo.Spec{ID: "low", Command: "echo low", Priority: 10})
	require.NoError(t, err)
	_, err = repo.Enqueue(ctx, jobrepo.Spec{ID: "high", Command: "echo high", Priority: 1})
	require.NoError(t, err)

	job, err := repo.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.Equal(t, "high", job.ID)
}

func TestRetryThenTerminal(t *testing.T) {
	t.Parallel()
	repo, fc := newTestRepo(t)
	ctx := context.Background()

	maxRetries := 2
	_, err := repo.Enqueue(ctx, jobrepo.Spec{ID: "flaky", Command: "false", MaxRetries: &maxRetries})
	require.NoError(t, err)

	// Attempt 1: fails, retriable (attempts=1 <= max_retries=2).
	job, err := repo.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.NoError(t, repo.FinishFailure(ctx, job, intPtr(1), "boom", 2))

	job, err = repo.Get(ctx, "flaky")
	require.NoError(t, err)
	require.Equal(t, jobrepo.StatePending, job.State)
	require.Equal(t, 1, job.Attempts)
	require.Nil(t, job.LockedBy)

	fc.Advance(10 * time.Second)

	// Attempt 2: fails, retriable (attempts=2 <= max_retries=2).
	job, err = repo.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.NoError(t, repo.FinishFailure(ctx, job, intPtr(1), "boom again", 2))

	fc.Advance(10 * time.Second)

	// Attempt 3: fails, exceeds max_retries -> dead.
	job, err = repo.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.NoError(t, repo.FinishFailure(ctx, job, intPtr(1), "final boom", 2))

	job, err = repo.Get(ctx, "flaky")
	require.NoError(t, err)
	require.Equal(t, jobrepo.StateDead, job.State)
	require.Equal(t, 3, job.Attempts)
	require.NotNil(t, job.LastError)
	require.Contains(t, *job.LastError, `"message":"final boom"`)
	require.Contains(t, *job.LastError, `"attempt":3`)
}

func TestDLQRetryRequiresDeadState(t *testing.T) {
	t.Parallel()
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, jobrepo.Spec{ID: "alive", Command: "echo hi"})
	require.NoError(t, err)

	err = repo.RetryFromDLQ(ctx, "alive")
	require.Error(t, err)

	err = repo.RetryFromDLQ(ctx, "does-not-exist")
	require.Error(t, err)
}

func TestDLQRetryResetsAttempts(t *testing.T) {
	t.Parallel()
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	zero := 0
	_, err := repo.Enqueue(ctx, jobrepo.Spec{ID: "dead-job", Command: "false", MaxRetries: &zero})
	require.NoError(t, err)

	job, err := repo.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.NoError(t, repo.FinishFailure(ctx, job, intPtr(1), "boom", 2))

	job, err = repo.Get(ctx, "dead-job")
	require.NoError(t, err)
	require.Equal(t, jobrepo.StateDead, job.State)

	require.NoError(t, repo.RetryFromDLQ(ctx, "dead-job"))

	job, err = repo.Get(ctx, "dead-job")
	require.NoError(t, err)
	require.Equal(t, jobrepo.StatePending, job.State)
	require.Equal(t, 0, job.Attempts)
	require.Nil(t, job.LastError)

	job, err = repo.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.NoError(t, repo.FinishSuccess(ctx, job, 0))

	job, err = repo.Get(ctx, "dead-job")
	require.NoError(t, err)
	require.Equal(t, jobrepo.StateCompleted, job.State)
	require.Equal(t, 1, job.Attempts)
}

func TestRecoverStaleLocksIsIdempotent(t *testing.T) {
	t.Parallel()
	repo, fc := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, jobrepo.Spec{ID: "stuck", Command: "sleep 100"})
	require.NoError(t, err)

	_, err = repo.Claim(ctx, "worker-1")
	require.NoError(t, err)

	fc.Advance(10 * time.Minute)

	threshold := fc.Now().Add(-5 * time.Minute)
	n, err := repo.RecoverStaleLocks(ctx, threshold)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = repo.RecoverStaleLocks(ctx, threshold)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	job, err := repo.Get(ctx, "stuck")
	require.NoError(t, err)
	require.Equal(t, jobrepo.StatePending, job.State)
	require.Nil(t, job.LockedBy)
}

func intPtr(v int) *int { return &v }

func idFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	if i < len(letters) {
		return string(letters[i]) + string(letters[i])
	}
	return string(rune('a'+i%26)) + string(rune('a'+(i/26)%26))
}
