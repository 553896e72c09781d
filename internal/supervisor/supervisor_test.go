package supervisor_test

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/queuectl/queuectl/internal/clock"
	"github.com/queuectl/queuectl/internal/jobrepo"
	"github.com/queuectl/queuectl/internal/store"
	"github.com/queuectl/queuectl/internal/supervisor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// robfig/cron parks a goroutine in its scheduler loop until Stop's
		// context is done; short-lived tests can race the leak checker
		// past that teardown.
		goleak.IgnoreTopFunction("github.com/robfig/cron/v3.(*Cron).run"),
	)
}

func newTestSupervisor(t *testing.T, workers int, drain bool) (*supervisor.Supervisor, *jobrepo.Repo) {
	t.Helper()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queuectl.db")

	st, err := store.Open(ctx, path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	repo := jobrepo.New(st, clock.Real(), t.TempDir())

	s := &supervisor.Supervisor{
		Store:       st,
		Repo:        repo,
		Clock:       clock.Real(),
		WorkerCount: workers,
		Drain:       drain,
	}
	return s, repo
}

func TestSupervisorDrainsQueueThenReturns(t *testing.T) {
	t.Parallel()

	s, repo := newTestSupervisor(t, 2, true)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := repo.Enqueue(ctx, jobrepo.Spec{ID: idFor(i), Command: "true"})
		require.NoError(t, err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("supervisor did not drain in time")
	}

	counts, err := repo.CountByState(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, counts.Completed)
}

func TestSupervisorRecoversStaleLockAtStartup(t *testing.T) {
	t.Parallel()

	s, repo := newTestSupervisor(t, 1, true)
	ctx := context.Background()

	require.NoError(t, s.Store.InitSchema(ctx))
	require.NoError(t, s.Store.SeedDefaults(ctx))
	require.NoError(t, s.Store.ConfigSet(ctx, "stale_lock_seconds", "1"))

	_, err := repo.Enqueue(ctx, jobrepo.Spec{ID: "abandoned", Command: "true"})
	require.NoError(t, err)

	_, err = repo.Claim(ctx, "crashed-worker")
	require.NoError(t, err)

	time.Sleep(2 * time.Second)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("supervisor did not drain in time")
	}

	job, err := repo.Get(ctx, "abandoned")
	require.NoError(t, err)
	require.Equal(t, jobrepo.StateCompleted, job.State)
	require.Equal(t, 1, job.Attempts)
}

func TestSupervisorTracksActiveWorkers(t *testing.T) {
	t.Parallel()

	s, repo := newTestSupervisor(t, 3, false)
	ctx, cancel := context.WithCancel(context.Background())

	var active atomic.Int32
	s.ActiveWorkers = &active

	_, err := repo.Enqueue(ctx, jobrepo.Spec{ID: "long-lived", Command: "sleep 5"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return active.Load() == 3
	}, 5*time.Second, 50*time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not shut down in time")
	}

	require.Equal(t, int32(0), active.Load())
}

func idFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return string(letters[i%26]) + string(letters[(i/26)%26]) + string(letters[(i/676)%26])
}
