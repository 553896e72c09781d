// Package store provides the durable, on-disk persistence layer: a single
// SQLite file opened in write-ahead-log mode so that status reads never
// block a worker's claim, plus a small compare-and-set-friendly exec
// helper used by jobrepo's claim protocol.
//
// Grounded on riverdriver/riversqlite, which documents the same
// single-writer discipline: SQLite serializes writers regardless of
// isolation level requested, so the driver caps the pool at one
// connection and leans on WAL mode to let readers proceed concurrently.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/queuectl/queuectl/internal/qerr"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id                      TEXT PRIMARY KEY,
	command                 TEXT NOT NULL,
	state                   TEXT NOT NULL,
	attempts                INTEGER NOT NULL DEFAULT 0,
	max_retries             INTEGER NOT NULL DEFAULT 3,
	priority                INTEGER NOT NULL DEFAULT 0,
	timeout_seconds         INTEGER,
	next_run_at             TEXT NOT NULL,
	locked_by               TEXT,
	locked_at               TEXT,
	processing_started_at   TEXT,
	processing_finished_at  TEXT,
	exit_code               INTEGER,
	last_error              TEXT,
	stdout_path             TEXT,
	stderr_path             TEXT,
	created_at              TEXT NOT NULL,
	updated_at              TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS jobs_dispatch_idx ON jobs (state, next_run_at, priority);

CREATE TABLE IF NOT EXISTS config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store owns the database connection lifecycle and schema.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the SQLite file at path, applies
// pragmas for a concurrent-writer-safe journaling mode, and idempotently
// creates the schema. The returned Store is safe for concurrent use by
// multiple workers.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single writer connection avoids SQLITE_BUSY under WAL for the
	// claim transaction. Queries made through this Store share that one
	// connection and run one at a time; readers in other processes (a
	// separate status/list invocation) still proceed concurrently because
	// WAL doesn't block readers behind a writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: logger}

	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// InitSchema idempotently creates the jobs and config tables and their
// indexes. Safe to call on every process startup.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for packages (jobrepo, config) that live
// alongside store and need direct query access without re-deriving the
// busy-retry policy.
func (s *Store) DB() *sql.DB { return s.db }

// maxBusyRetries bounds the internal retry loop for transient write
// conflicts before a StoreBusyError is surfaced, per the store's
// obligation to absorb short-lived contention rather than fail a caller.
const maxBusyRetries = 5

// WithTx runs fn inside a transaction, retrying the whole transaction a
// bounded number of times if SQLite reports the database as busy/locked.
// This is the store's compare-and-set primitive: fn should be a small,
// idempotent-on-retry unit of work (a single claim, a single state
// transition).
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	var lastErr error

	for attempt := 0; attempt < maxBusyRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 20 * time.Millisecond
			backoff += time.Duration(rand.Intn(20)) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if isFatalErr(err) {
			return &qerr.StoreFatalError{Cause: err}
		}
		if !isBusyErr(err) {
			return err
		}
		lastErr = err
		s.logger.DebugContext(ctx, "store: retrying after transient busy error", "attempt", attempt, "error", err)
	}

	return &qerr.StoreBusyError{Cause: lastErr}
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusyErr(err) {
			return err
		}
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		if isBusyErr(err) {
			return err
		}
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// isBusyErr reports whether err looks like SQLite's SQLITE_BUSY /
// SQLITE_LOCKED family, which the store treats as transient.
func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "busy")
}

// isFatalErr reports whether err indicates the on-disk file itself is
// unusable (corruption, disk full, I/O failure) rather than a transient
// write conflict. These are surfaced as StoreFatalError instead of being
// retried, since retrying a corrupt file can't succeed.
func isFatalErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") ||
		strings.Contains(msg, "disk image is malformed") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "not a database") ||
		strings.Contains(msg, "i/o error")
}
