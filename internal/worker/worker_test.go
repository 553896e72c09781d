package worker_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/queuectl/queuectl/internal/clock"
	"github.com/queuectl/queuectl/internal/jobrepo"
	"github.com/queuectl/queuectl/internal/store"
	"github.com/queuectl/queuectl/internal/worker"
)

func newTestSetup(t *testing.T) (*store.Store, *jobrepo.Repo) {
	t.Helper()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queuectl.db")

	st, err := store.Open(ctx, path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.SeedDefaults(ctx))
	require.NoError(t, st.ConfigSet(ctx, "poll_interval", "1"))

	repo := jobrepo.New(st, clock.Real(), t.TempDir())
	return st, repo
}

func TestWorkerDrainsThenExitsOnEmptyQueue(t *testing.T) {
	t.Parallel()

	st, repo := newTestSetup(t)
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, jobrepo.Spec{ID: "j1", Command: "true"})
	require.NoError(t, err)

	w := worker.New("worker-drain", repo, st, nil, true)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not exit drain mode in time")
	}

	job, err := repo.Get(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, jobrepo.StateCompleted, job.State)
}

func TestWorkerStopsOnSoftStop(t *testing.T) {
	t.Parallel()

	st, repo := newTestSetup(t)

	w := worker.New("worker-soft-stop", repo, st, nil, false)

	pollCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(pollCtx, context.Background()) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not honour soft stop in time")
	}
}

func TestWorkerRetriesFailingJob(t *testing.T) {
	t.Parallel()

	st, repo := newTestSetup(t)
	ctx := context.Background()

	maxRetries := 1
	_, err := repo.Enqueue(ctx, jobrepo.Spec{ID: "flaky", Command: "false", MaxRetries: &maxRetries})
	require.NoError(t, err)

	w := worker.New("worker-retry", repo, st, nil, true)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("worker did not drain in time")
	}

	job, err := repo.Get(ctx, "flaky")
	require.NoError(t, err)
	require.Equal(t, jobrepo.StateDead, job.State)
	require.Equal(t, 2, job.Attempts)
}
