package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/queuectl/queuectl/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queuectl.db")

	st, err := store.Open(ctx, path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.SeedDefaults(ctx))

	return st
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queuectl.db")

	st1, err := store.Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, st1.Close())

	st2, err := store.Open(ctx, path, nil)
	require.NoError(t, err)
	defer st2.Close()

	require.NoError(t, st2.InitSchema(ctx))
}

func TestConfigRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := openTestStore(t)

	require.NoError(t, st.ConfigSet(ctx, "max_retries", "7"))

	value, ok, err := st.ConfigGet(ctx, "max_retries")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "7", value)

	n, err := st.ConfigInt(ctx, "max_retries")
	require.NoError(t, err)
	require.Equal(t, 7, n)
}

func TestConfigSetAcceptsHyphenatedKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := openTestStore(t)

	require.NoError(t, st.ConfigSet(ctx, "poll-interval", "5"))

	n, err := st.ConfigInt(ctx, "poll_interval")
	require.NoError(t, err)
	require.Equal(t, 5, n)
}

func TestConfigSetRejectsUnknownKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := openTestStore(t)

	err := st.ConfigSet(ctx, "not_a_real_key", "1")
	require.Error(t, err)
}

func TestConfigSetRejectsNonInteger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := openTestStore(t)

	require.Error(t, st.ConfigSet(ctx, "max_retries", "not-a-number"))
}

func TestConfigSetRejectsBackoffBaseBelowOne(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := openTestStore(t)

	require.Error(t, st.ConfigSet(ctx, "backoff_base", "0"))
}

func TestConfigDefaultsSeeded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := openTestStore(t)

	all, err := st.ConfigGetAll(ctx)
	require.NoError(t, err)
	require.Equal(t, "3", all["max_retries"])
	require.Equal(t, "2", all["backoff_base"])
	require.Equal(t, "1", all["poll_interval"])
	require.Equal(t, "300", all["stale_lock_seconds"])
}
