// Package workspace manages the per-request directories the pipeline reads
// and writes: allocation, seeding with static template assets, atomic file
// writes, and idempotent release.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/aretw0/introspection"
	"github.com/google/uuid"

	"github.com/aretw0/mahina/pkg/core"
)

// Manager allocates workspaces under Root.
type Manager struct {
	Root    string
	Catalog *Catalog
	Logger  *slog.Logger

	acquired atomic.Int64
	released atomic.Int64
}

// NewManager creates a Manager. An empty root uses the OS temp directory.
func NewManager(root string, catalog *Catalog, logger *slog.Logger) *Manager {
	if root == "" {
		root = filepath.Join(os.TempDir(), "mahina")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{Root: root, Catalog: catalog, Logger: logger}
}

// Acquire creates a new, exclusively owned workspace directory.
func (m *Manager) Acquire(ctx context.Context) (*Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(m.Root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create root %s: %w", core.ErrWorkspace, m.Root, err)
	}

	id := uuid.NewString()
	path := filepath.Join(m.Root, id)
	// Mkdir fails on an existing directory, which keeps ownership exclusive.
	if err := os.Mkdir(path, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", core.ErrWorkspace, path, err)
	}
	m.acquired.Add(1)
	m.Logger.Debug("workspace acquired", "id", id, "path", path)
	return &Workspace{ID: id, Path: path, manager: m}, nil
}

// Remove deletes the workspace with the given id. Removing an unknown or
// already removed workspace is not an error.
func (m *Manager) Remove(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: invalid workspace id %q", core.ErrWorkspace, id)
	}
	path := filepath.Join(m.Root, id)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("%w: remove %s: %w", core.ErrWorkspace, path, err)
	}
	m.Logger.Debug("workspace removed", "id", id)
	return nil
}

// RemovePath deletes a workspace by its recorded path, which may lie under
// a Root from an earlier configuration. Only absolute paths whose last
// element is a workspace id are accepted.
func (m *Manager) RemovePath(path string) error {
	path = filepath.Clean(path)
	if _, err := uuid.Parse(filepath.Base(path)); err != nil || !filepath.IsAbs(path) {
		return fmt.Errorf("%w: invalid workspace path %q", core.ErrWorkspace, path)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("%w: remove %s: %w", core.ErrWorkspace, path, err)
	}
	m.Logger.Debug("workspace removed", "path", path)
	return nil
}

// List returns the ids of all workspace directories currently under Root.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.Root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if _, err := uuid.Parse(e.Name()); e.IsDir() && err == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// ManagerState exposes the manager for observability.
type ManagerState struct {
	Root     string `json:"root"`
	Acquired int64  `json:"acquired"`
	Released int64  `json:"released"`
}

// State implements introspection.Introspectable.
func (m *Manager) State() any {
	return ManagerState{Root: m.Root, Acquired: m.acquired.Load(), Released: m.released.Load()}
}

// ComponentType implements introspection.Component.
func (m *Manager) ComponentType() string { return "workspace-manager" }

var _ introspection.Introspectable = (*Manager)(nil)

// Workspace is one request's private directory.
type Workspace struct {
	ID   string
	Path string

	manager *Manager
	once    sync.Once
	err     error
}

// Join returns the absolute path of name inside the workspace.
func (w *Workspace) Join(name string) string { return filepath.Join(w.Path, name) }

// Seed copies every catalog asset into the workspace.
func (w *Workspace) Seed() error {
	if w.manager.Catalog == nil {
		return nil
	}
	files, err := w.manager.Catalog.Files()
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := copyFile(filepath.Join(w.manager.Catalog.Dir, f), w.Join(f)); err != nil {
			return fmt.Errorf("%w: seed %s: %w", core.ErrWorkspace, f, err)
		}
	}
	return nil
}

// WriteFile atomically writes a generated file into the workspace.
func (w *Workspace) WriteFile(name string, data []byte) error {
	if err := writeFileAtomic(w.Join(name), data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", core.ErrWorkspace, name, err)
	}
	return nil
}

// Exists reports whether name is a regular, non-empty file.
func (w *Workspace) Exists(name string) bool {
	info, err := os.Stat(w.Join(name))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Release removes the workspace. It is safe to call more than once and
// from any path; only the first call does the work.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		w.err = w.manager.Remove(w.ID)
		if w.err == nil {
			w.manager.released.Add(1)
		}
	})
	return w.err
}
