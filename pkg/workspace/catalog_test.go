package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aretw0/mahina/pkg/core"
)

// writeAssets creates every default required asset in dir.
func writeAssets(t *testing.T, dir string) {
	t.Helper()
	for _, name := range DefaultRequired {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
}

func TestCatalog_Refresh(t *testing.T) {
	t.Run("Complete Directory", func(t *testing.T) {
		dir := t.TempDir()
		writeAssets(t, dir)

		c, err := NewCatalog(dir, nil, nil, nil)
		require.NoError(t, err)

		files, err := c.Files()
		require.NoError(t, err)
		assert.ElementsMatch(t, DefaultRequired, files)
	})

	t.Run("Missing Asset Is Reported", func(t *testing.T) {
		dir := t.TempDir()
		writeAssets(t, dir)
		require.NoError(t, os.Remove(filepath.Join(dir, "mask.png")))

		c, err := NewCatalog(dir, nil, nil, nil)
		require.NoError(t, err, "a missing asset must not fail construction")

		_, err = c.Files()
		require.Error(t, err)
		assert.True(t, core.IsMissingAsset(err))
		assert.Contains(t, err.Error(), "mask.png")
	})

	t.Run("Extra Patterns", func(t *testing.T) {
		dir := t.TempDir()
		writeAssets(t, dir)
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "fonts", "latin"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "fonts", "latin", "a.pfb"), []byte("x"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

		c, err := NewCatalog(dir, nil, []string{"fonts/**/*.pfb"}, nil)
		require.NoError(t, err)

		files, err := c.Files()
		require.NoError(t, err)
		assert.Contains(t, files, filepath.Join("fonts", "latin", "a.pfb"))
		assert.NotContains(t, files, "notes.txt")
	})

	t.Run("Invalid Pattern", func(t *testing.T) {
		_, err := NewCatalog(t.TempDir(), nil, []string{"fonts/[a"}, nil)
		assert.Error(t, err)
	})
}

func TestCatalog_Watch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	writeAssets(t, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, "mask.png")))

	c, err := NewCatalog(dir, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Watch(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "mask.png"), []byte("png"), 0o644))
	require.Eventually(t, func() bool {
		_, err := c.Files()
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "catalog did not pick up the restored asset")

	state := c.State().(CatalogState)
	assert.True(t, state.Watching)
	assert.Empty(t, state.Missing)

	cancel()
	require.Eventually(t, func() bool {
		return !c.State().(CatalogState).Watching
	}, 2*time.Second, 10*time.Millisecond, "watcher did not stop")
}
