package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/queuectl/queuectl/internal/qerr"
)

// Recognized config keys and their defaults, per the data model's Config
// entry table. Keys are stored underscored; the CLI accepts either
// underscored or hyphenated spellings and normalizes on the way in.
const (
	KeyMaxRetries      = "max_retries"
	KeyBackoffBase     = "backoff_base"
	KeyPollInterval    = "poll_interval"
	KeyStaleLockSecond = "stale_lock_seconds"
)

var defaults = map[string]string{
	KeyMaxRetries:      "3",
	KeyBackoffBase:     "2",
	KeyPollInterval:    "1",
	KeyStaleLockSecond: "300",
}

// NormalizeConfigKey rewrites CLI-style hyphenated keys ("max-retries")
// to the storage form ("max_retries"), per original_source/config_manager.py.
func NormalizeConfigKey(key string) string {
	return strings.ReplaceAll(key, "-", "_")
}

// SeedDefaults inserts the default config rows if absent. Called during
// InitStore; idempotent.
func (s *Store) SeedDefaults(ctx context.Context) error {
	return s.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for key, value := range defaults {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO config (key, value) VALUES (?, ?)`, key, value); err != nil {
				return fmt.Errorf("seeding config %q: %w", key, err)
			}
		}
		return nil
	})
}

// ConfigGet returns the raw string value for key, or ("", false) if unset.
func (s *Store) ConfigGet(ctx context.Context, key string) (string, bool, error) {
	key = NormalizeConfigKey(key)

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("reading config %q: %w", key, err)
	}
	return value, true, nil
}

// ConfigGetAll returns every stored config entry, keyed by its
// underscored storage name.
func (s *Store) ConfigGetAll(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM config ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("listing config: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// ConfigSet upserts a config value. Values for the integer-typed keys must
// parse as integers, and backoff_base must be >= 1 per the backoff
// formula's documented edge cases (a base below 1 produces zero or
// negative delay and tight looping).
func (s *Store) ConfigSet(ctx context.Context, key, value string) error {
	key = NormalizeConfigKey(key)

	if _, known := defaults[key]; !known {
		return &qerr.InvalidArgError{Message: fmt.Sprintf("unknown config key %q", key)}
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return &qerr.InvalidArgError{Message: fmt.Sprintf("config %q must be an integer, got %q", key, value)}
	}
	if key == KeyBackoffBase && n < 1 {
		return &qerr.InvalidArgError{Message: "backoff_base must be >= 1"}
	}
	if n < 0 {
		return &qerr.InvalidArgError{Message: fmt.Sprintf("config %q must be non-negative", key)}
	}

	return s.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE config SET value = ? WHERE key = ?`, value, key)
		if err != nil {
			return fmt.Errorf("updating config %q: %w", key, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if _, err := tx.ExecContext(ctx, `INSERT INTO config (key, value) VALUES (?, ?)`, key, value); err != nil {
				return fmt.Errorf("inserting config %q: %w", key, err)
			}
		}
		return nil
	})
}

// ConfigInt returns the integer value of key, falling back to the
// package default if unset or unparseable, mirroring
// original_source/config_manager.py's get_config_int permissiveness.
func (s *Store) ConfigInt(ctx context.Context, key string) (int, error) {
	value, ok, err := s.ConfigGet(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		value = defaults[key]
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		if def, ok := defaults[key]; ok {
			n, _ = strconv.Atoi(def)
			return n, nil
		}
		return 0, fmt.Errorf("config %q has non-integer value %q", key, value)
	}
	return n, nil
}
