package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/introspection"
	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/mahina/pkg/core"
)

// DefaultRequired are the static template assets every workspace needs.
var DefaultRequired = []string{
	"calendar.dat",
	"mahina.dat",
	"mahina.def",
	"calendar_us.txt",
	"mask.png",
}

// Catalog tracks the static assets seeded into each workspace. It can watch
// its directory and rescan on change, so a missing asset is reported before
// a request gets as far as the typesetter.
type Catalog struct {
	Dir      string
	Required []string
	// Patterns are extra doublestar globs, relative to Dir, e.g. "fonts/**".
	Patterns []string
	Logger   *slog.Logger

	mu        sync.RWMutex
	files     []string
	missing   []string
	scannedAt time.Time
	watching  bool
}

// NewCatalog creates a catalog and performs the first scan. A scan that
// finds missing assets is not an error here; Files reports it.
func NewCatalog(dir string, required, patterns []string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid asset pattern %q", p)
		}
	}
	if required == nil {
		required = DefaultRequired
	}
	c := &Catalog{Dir: dir, Required: required, Patterns: patterns, Logger: logger}
	if err := c.Refresh(); err != nil && !core.IsMissingAsset(err) {
		return nil, err
	}
	return c, nil
}

// Refresh rescans the asset directory.
func (c *Catalog) Refresh() error {
	var files, missing []string
	for _, name := range c.Required {
		info, err := os.Stat(filepath.Join(c.Dir, name))
		if err != nil || info.IsDir() {
			missing = append(missing, name)
			continue
		}
		files = append(files, name)
	}

	fsys := os.DirFS(c.Dir)
	for _, p := range c.Patterns {
		matches, err := doublestar.Glob(fsys, p)
		if err != nil {
			return fmt.Errorf("glob %q: %w", p, err)
		}
		for _, m := range matches {
			if info, err := os.Stat(filepath.Join(c.Dir, m)); err == nil && !info.IsDir() {
				files = append(files, filepath.FromSlash(m))
			}
		}
	}
	slices.Sort(files)
	files = slices.Compact(files)

	c.mu.Lock()
	c.files = files
	c.missing = missing
	c.scannedAt = time.Now()
	c.mu.Unlock()

	if len(missing) > 0 {
		return &core.AssetError{Dir: c.Dir, Missing: missing}
	}
	return nil
}

// Files returns the asset paths relative to Dir, or an AssetError when a
// required asset is absent.
func (c *Catalog) Files() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.missing) > 0 {
		return nil, &core.AssetError{Dir: c.Dir, Missing: slices.Clone(c.missing)}
	}
	return slices.Clone(c.files), nil
}

// Watch rescans the directory whenever it changes, until ctx is done.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(c.Dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", c.Dir, err)
	}
	c.setWatching(true)

	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer func() {
			_ = watcher.Close()
			c.setWatching(false)
		}()
		for {
			select {
			case <-ctx.Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
					continue
				}
				c.Logger.Debug("asset change", "name", event.Name, "op", event.Op.String())
				if err := c.Refresh(); err != nil {
					c.Logger.Warn("asset catalog incomplete", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				c.Logger.Error("asset watcher error", "error", err)
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		c.Logger.Error("asset watcher panic", "error", err)
	}))
	return nil
}

func (c *Catalog) setWatching(v bool) {
	c.mu.Lock()
	c.watching = v
	c.mu.Unlock()
}

// CatalogState exposes the catalog for observability.
type CatalogState struct {
	Dir       string    `json:"dir"`
	Files     int       `json:"files"`
	Missing   []string  `json:"missing,omitempty"`
	ScannedAt time.Time `json:"scanned_at"`
	Watching  bool      `json:"watching"`
}

// State implements introspection.Introspectable.
func (c *Catalog) State() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CatalogState{
		Dir:       c.Dir,
		Files:     len(c.files),
		Missing:   slices.Clone(c.missing),
		ScannedAt: c.scannedAt,
		Watching:  c.watching,
	}
}

// ComponentType implements introspection.Component.
func (c *Catalog) ComponentType() string { return "asset-catalog" }

var _ introspection.Introspectable = (*Catalog)(nil)
var _ introspection.Component = (*Catalog)(nil)
