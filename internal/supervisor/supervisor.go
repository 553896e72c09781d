// Package supervisor launches and joins a pool of workers, performs
// startup lock recovery, runs a periodic in-process stale-lock sweep, and
// orchestrates graceful shutdown on interrupt signals, per spec.md §4.8.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/queuectl/queuectl/internal/clock"
	"github.com/queuectl/queuectl/internal/jobrepo"
	"github.com/queuectl/queuectl/internal/store"
	"github.com/queuectl/queuectl/internal/worker"
)

// Supervisor owns the worker pool's lifecycle.
type Supervisor struct {
	Store  *store.Store
	Repo   *jobrepo.Repo
	Clock  clock.Clock
	Logger *slog.Logger

	// WorkerCount is the size of the pool.
	WorkerCount int

	// Drain, when true, makes workers exit once the queue is observed
	// quiescent instead of running until a signal arrives.
	Drain bool

	// ActiveWorkers, if non-nil, is kept up to date with the number of
	// workers currently running, for Client.Status's workers_active field.
	ActiveWorkers *atomic.Int32
}

// Run performs startup recovery, launches the pool, and blocks until
// every worker has exited — either because the pool drained, or because
// a shutdown signal was received and honored. A worker crashing
// (panicking) does not bring the supervisor down; it's logged and the
// pool continues, and the abandoned claim is left for the next stale-lock
// sweep to reclaim.
func (s *Supervisor) Run(ctx context.Context) error {
	logger := s.logger()

	if err := s.Store.InitSchema(ctx); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	if err := s.Store.SeedDefaults(ctx); err != nil {
		return fmt.Errorf("seeding config: %w", err)
	}

	staleAfter, err := s.staleLockDuration(ctx)
	if err != nil {
		return err
	}

	reclaimed, err := s.Repo.RecoverStaleLocks(ctx, s.Clock.Now().Add(-staleAfter))
	if err != nil {
		return fmt.Errorf("recovering stale locks at startup: %w", err)
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale locks at startup", "count", reclaimed)
	}

	sweepStop := s.startStaleLockSweep(ctx, staleAfter, logger)
	defer sweepStop()

	pollCtx, cancelPoll := context.WithCancel(ctx)
	jobCtx, cancelJob := context.WithCancel(ctx)
	defer cancelPoll()
	defer cancelJob()

	stopSignals := s.installSignalHandlers(cancelPoll, cancelJob, logger)
	defer stopSignals()

	var wg sync.WaitGroup
	for i := 0; i < s.WorkerCount; i++ {
		id := clock.GenerateWorkerID(i)
		w := worker.New(id, s.Repo, s.Store, logger, s.Drain)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.ActiveWorkers != nil {
				s.ActiveWorkers.Add(1)
				defer s.ActiveWorkers.Add(-1)
			}
			defer func() {
				if r := recover(); r != nil {
					logger.Error("worker panicked; abandoned claim will be reclaimed by the next stale-lock sweep",
						"worker", id, "panic", r)
				}
			}()
			if err := w.Run(pollCtx, jobCtx); err != nil {
				logger.Error("worker exited with error", "worker", id, "error", err)
			}
		}()
	}

	wg.Wait()
	return nil
}

func (s *Supervisor) staleLockDuration(ctx context.Context) (time.Duration, error) {
	seconds, err := s.Store.ConfigInt(ctx, store.KeyStaleLockSecond)
	if err != nil {
		return 0, fmt.Errorf("reading stale_lock_seconds: %w", err)
	}
	if seconds <= 0 {
		seconds = 300
	}
	return time.Duration(seconds) * time.Second, nil
}

// startStaleLockSweep runs a periodic in-process reclaim every
// staleAfter/2, as recommended by spec.md §4.8, using robfig/cron's
// interval scheduler rather than a hand-rolled ticker.
func (s *Supervisor) startStaleLockSweep(ctx context.Context, staleAfter time.Duration, logger *slog.Logger) (stop func()) {
	interval := staleAfter / 2
	if interval < time.Second {
		interval = time.Second
	}

	c := cron.New()
	c.Schedule(cron.Every(interval), cron.FuncJob(func() {
		n, err := s.Repo.RecoverStaleLocks(ctx, s.Clock.Now().Add(-staleAfter))
		if err != nil {
			logger.Error("periodic stale-lock sweep failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("periodic sweep reclaimed stale locks", "count", n)
		}
	}))

	c.Start()
	return func() { <-c.Stop().Done() }
}

// installSignalHandlers wires SIGINT/SIGTERM to a two-stage shutdown: the
// first signal cancels pollCtx (refuse new claims, let the in-flight
// attempt finish or time out); a second signal cancels jobCtx too,
// force-killing any in-flight subprocess.
func (s *Supervisor) installSignalHandlers(cancelPoll, cancelJob context.CancelFunc, logger *slog.Logger) (stop func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
		case <-done:
			return
		}
		logger.Info("received shutdown signal; draining in-flight attempts")
		cancelPoll()

		select {
		case <-sigCh:
			logger.Warn("received second shutdown signal; force-stopping in-flight attempts")
			cancelJob()
		case <-done:
		}
	}()

	return func() {
		close(done)
		signal.Stop(sigCh)
	}
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
