package platform

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/mahina/internal/config"
	"github.com/aretw0/mahina/pkg/core"
	"github.com/aretw0/mahina/pkg/retention"
	"github.com/aretw0/mahina/pkg/tools/toolstest"
	"github.com/aretw0/mahina/pkg/workspace"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.WorkDir = filepath.Join(t.TempDir(), "work")
	cfg.Assets.Watch = false
	for _, name := range workspace.DefaultRequired {
		require.NoError(t, os.WriteFile(filepath.Join(cfg.DataDir, name), []byte(name), 0o644))
	}
	return cfg
}

func TestNew(t *testing.T) {
	t.Run("Renders With Fake Tools", func(t *testing.T) {
		rt, err := New(testConfig(t), WithRunner(&toolstest.Fake{}))
		require.NoError(t, err)
		defer rt.Close()

		res, err := rt.Pipeline.Run(context.Background(), core.Request{Month: 6, Year: 2024})
		require.NoError(t, err)
		assert.Equal(t, core.StateDone, res.State)

		state := rt.State().(RuntimeState)
		assert.Contains(t, state.Components, "pipeline")
		assert.Contains(t, state.Components, "retention-store")
		assert.Contains(t, state.Components, "asset-catalog")
	})

	t.Run("SQLite Store", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store = config.StoreConfig{Backend: config.StoreSQLite, Path: filepath.Join(t.TempDir(), "x.db")}

		rt, err := New(cfg, WithRunner(&toolstest.Fake{}))
		require.NoError(t, err)
		defer rt.Close()
		_, ok := rt.Store.(*retention.SQLiteStore)
		assert.True(t, ok)
	})

	t.Run("Invalid Config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store.Backend = "redis"
		_, err := New(cfg)
		assert.Error(t, err)
	})

	t.Run("Empty Store Backend", func(t *testing.T) {
		_, err := openStore(config.StoreConfig{})
		assert.Error(t, err)

		cfg := testConfig(t)
		cfg.Store.Backend = ""
		_, err = New(cfg)
		assert.Error(t, err)
	})
}

func TestRuntime_PruneOrphans(t *testing.T) {
	ctx := context.Background()
	store := retention.NewMemoryStore()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	rt, err := New(testConfig(t),
		WithRunner(&toolstest.Fake{}),
		WithStore(store),
		WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	orphan, err := rt.Workspaces.Acquire(ctx)
	require.NoError(t, err)
	live, err := rt.Workspaces.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, retention.Entry{ID: live.ID, Path: live.Path, ExpiresAt: now.Add(time.Minute)}))

	require.NoError(t, rt.PruneOrphans(ctx))
	assert.NoDirExists(t, orphan.Path)
	assert.DirExists(t, live.Path)
}

func TestRuntime_SweepsEntriesFromPreviousWorkDir(t *testing.T) {
	ctx := context.Background()
	store := retention.NewMemoryStore()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	rt, err := New(testConfig(t),
		WithRunner(&toolstest.Fake{}),
		WithStore(store),
		WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	id := uuid.NewString()
	old := filepath.Join(t.TempDir(), "old-work", id)
	require.NoError(t, os.MkdirAll(old, 0o700))
	require.NoError(t, store.Put(ctx, retention.Entry{ID: id, Path: old, ExpiresAt: now.Add(-time.Second)}))

	assert.Equal(t, 1, rt.Sweeper.SweepOnce(ctx, now))
	assert.NoDirExists(t, old)
	_, err = store.Get(ctx, id, now)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
