package queuectl

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/queuectl/queuectl/internal/clock"
	"github.com/queuectl/queuectl/internal/jobrepo"
	"github.com/queuectl/queuectl/internal/store"
	"github.com/queuectl/queuectl/internal/supervisor"
)

// Config controls where a Client persists its state.
type Config struct {
	// DatabasePath is the SQLite file path. Defaults to "./queuectl.db".
	DatabasePath string

	// LogDir is the directory job stdout/stderr files live under.
	// Defaults to "./logs".
	LogDir string

	// Logger receives structured log output from the store, workers, and
	// supervisor. Defaults to slog.Default().
	Logger *slog.Logger

	// Clock is the time source used for all timestamps the store writes.
	// Defaults to the real system clock; tests may inject a fake one.
	Clock clock.Clock
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.DatabasePath == "" {
		out.DatabasePath = "./queuectl.db"
	}
	if out.LogDir == "" {
		out.LogDir = "./logs"
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.Clock == nil {
		out.Clock = clock.Real()
	}
	return &out
}

// Client is the operational API described in spec.md §6.1: it wraps a
// store and job repository and exposes enqueue, query, DLQ, config, and
// worker-pool operations. The command-line surface (out of scope per
// spec.md §1) is a thin cobra shell over this type; see cmd/queuectl.
type Client struct {
	config        *Config
	store         *store.Store
	repo          *jobrepo.Repo
	activeWorkers atomic.Int32
}

// NewClient opens (creating if necessary) the database at config's path
// and returns a ready-to-use Client. NewClient opens the connection and
// creates the schema; call InitStore before first use in a fresh
// environment to also seed the default config values.
func NewClient(ctx context.Context, config *Config) (*Client, error) {
	if config == nil {
		config = &Config{}
	}
	config = config.withDefaults()

	st, err := store.Open(ctx, config.DatabasePath, config.Logger)
	if err != nil {
		return nil, err
	}

	repo := jobrepo.New(st, config.Clock, config.LogDir)

	return &Client{config: config, store: st, repo: repo}, nil
}

// Close releases the underlying database handle.
func (c *Client) Close() error { return c.store.Close() }

// InitStore idempotently creates the schema and seeds default config
// values, per spec.md §6.1.
func (c *Client) InitStore(ctx context.Context) error {
	if err := c.store.InitSchema(ctx); err != nil {
		return err
	}
	return c.store.SeedDefaults(ctx)
}

// Enqueue inserts a new pending job.
func (c *Client) Enqueue(ctx context.Context, spec JobSpec) (*Job, error) {
	job, err := c.repo.Enqueue(ctx, specToRepo(spec))
	if err != nil {
		return nil, err
	}
	return jobFromRepo(job), nil
}

// List returns jobs, optionally filtered by state, ordered per spec.md
// §4.3. A nil state matches every state. limit <= 0 uses a default of 100.
func (c *Client) List(ctx context.Context, state *State, limit int) ([]*Job, error) {
	var f jobrepo.Filter
	if state != nil {
		s := jobrepo.State(*state)
		f.State = &s
	}
	f.Limit = limit

	jobs, err := c.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return jobsFromRepo(jobs), nil
}

// Status is a point-in-time snapshot of queue health, per spec.md §6.1.
type Status struct {
	Total         int
	Pending       int
	Processing    int
	Completed     int
	Dead          int
	WorkersActive int
}

// Status returns a snapshot of job counts by state. WorkersActive counts
// only workers running in this process via this Client's
// WorkerPoolStart; a separate CLI invocation of `status` sees 0 even
// while a `work` process is running, since the two are independent
// processes sharing only the database file.
func (c *Client) Status(ctx context.Context) (Status, error) {
	counts, err := c.repo.CountByState(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Total:         counts.Total,
		Pending:       counts.Pending,
		Processing:    counts.Processing,
		Completed:     counts.Completed,
		Dead:          counts.Dead,
		WorkersActive: int(c.activeWorkers.Load()),
	}, nil
}

// DLQList returns dead jobs, most recently updated first.
func (c *Client) DLQList(ctx context.Context, limit int) ([]*Job, error) {
	jobs, err := c.repo.DLQList(ctx, limit)
	if err != nil {
		return nil, err
	}
	return jobsFromRepo(jobs), nil
}

// DLQRetry resets a dead job back to pending. Returns NotFoundError if
// id doesn't exist, InvalidStateError if it isn't dead.
func (c *Client) DLQRetry(ctx context.Context, id string) error {
	return c.repo.RetryFromDLQ(ctx, id)
}

// DLQRetryAll resets every dead job back to pending and returns the count
// affected.
func (c *Client) DLQRetryAll(ctx context.Context) (int, error) {
	return c.repo.RetryAllFromDLQ(ctx)
}

// ConfigGet returns the stored value for key, or a NotFoundError if the
// key has no stored value. InitStore seeds every recognized key.
func (c *Client) ConfigGet(ctx context.Context, key string) (string, error) {
	key = store.NormalizeConfigKey(key)
	value, ok, err := c.store.ConfigGet(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &NotFoundError{ID: key}
	}
	return value, nil
}

// ConfigGetAll returns every config entry.
func (c *Client) ConfigGetAll(ctx context.Context) (map[string]string, error) {
	return c.store.ConfigGetAll(ctx)
}

// ConfigSet validates and upserts a config value. Keys are limited to the
// set in spec.md §3; integer-typed values are validated as such.
func (c *Client) ConfigSet(ctx context.Context, key, value string) error {
	return c.store.ConfigSet(ctx, key, value)
}

// WorkerPoolStart launches count workers and blocks until they've all
// exited: either because drain is true and the queue emptied, or because
// a shutdown signal was received and honored, per spec.md §6.1 and §4.8.
func (c *Client) WorkerPoolStart(ctx context.Context, count int, drain bool) error {
	if count <= 0 {
		return &InvalidArgError{Message: "worker count must be positive"}
	}

	sup := &supervisor.Supervisor{
		Store:         c.store,
		Repo:          c.repo,
		Clock:         c.config.Clock,
		Logger:        c.config.Logger,
		WorkerCount:   count,
		Drain:         drain,
		ActiveWorkers: &c.activeWorkers,
	}
	return sup.Run(ctx)
}
