package retention

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/mahina/pkg/core"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "retention.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"Memory": NewMemoryStore(),
		"SQLite": sqlite,
	}
}

func TestStore(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			live := Entry{ID: "live", Path: "/w/live", ExpiresAt: epoch.Add(10 * time.Minute)}
			old := Entry{ID: "old", Path: "/w/old", ExpiresAt: epoch.Add(-time.Second)}
			edge := Entry{ID: "edge", Path: "/w/edge", ExpiresAt: epoch}

			for _, e := range []Entry{live, old, edge} {
				require.NoError(t, s.Put(ctx, e))
			}

			got, err := s.Get(ctx, "live", epoch)
			require.NoError(t, err)
			assert.Equal(t, live.Path, got.Path)
			assert.True(t, live.ExpiresAt.Equal(got.ExpiresAt))

			_, err = s.Get(ctx, "old", epoch)
			assert.ErrorIs(t, err, core.ErrExpired)
			_, err = s.Get(ctx, "edge", epoch)
			assert.ErrorIs(t, err, core.ErrExpired, "an entry expires exactly at its deadline")
			_, err = s.Get(ctx, "nope", epoch)
			assert.ErrorIs(t, err, core.ErrNotFound)

			expired, err := s.Expired(ctx, epoch)
			require.NoError(t, err)
			require.Len(t, expired, 2)
			assert.Equal(t, "old", expired[0].ID)
			assert.Equal(t, "edge", expired[1].ID)

			require.NoError(t, s.Delete(ctx, "old"))
			require.NoError(t, s.Delete(ctx, "old"))
			n, err := s.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			assert.Error(t, s.Put(ctx, Entry{}))
		})
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retention.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, Entry{ID: "a", Path: "/w/a", ExpiresAt: epoch}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	expired, err := s.Expired(ctx, epoch.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "/w/a", expired[0].Path)

	state := s.State().(StoreState)
	assert.Equal(t, "sqlite", state.Backend)
	assert.Equal(t, 1, state.Entries)
}
