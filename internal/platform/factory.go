package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/introspection"

	"github.com/aretw0/mahina/internal/config"
	"github.com/aretw0/mahina/pkg/core"
	"github.com/aretw0/mahina/pkg/pipeline"
	"github.com/aretw0/mahina/pkg/retention"
	"github.com/aretw0/mahina/pkg/tools"
	"github.com/aretw0/mahina/pkg/workspace"
)

// Runtime is the fully wired service: asset catalog, workspaces, exposure
// store, sweeper and pipeline.
type Runtime struct {
	Config     *config.Config
	Logger     *slog.Logger
	Catalog    *workspace.Catalog
	Workspaces *workspace.Manager
	Store      retention.Store
	Sweeper    *retention.Sweeper
	Pipeline   *pipeline.Pipeline
	// Version is reported by State when set.
	Version string

	ownsStore bool
}

// New wires a Runtime from cfg. Call Start to launch background tasks and
// Close to release the store.
func New(cfg *config.Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	catalog, err := workspace.NewCatalog(cfg.DataDir, cfg.Assets.Required, cfg.Assets.Patterns, logger)
	if err != nil {
		return nil, err
	}
	if _, err := catalog.Files(); err != nil {
		// Reported, not fatal: the watcher may see the assets arrive later.
		logger.Warn("asset catalog incomplete", "error", err)
	}

	workDir := cfg.WorkDir
	if workDir != "" {
		if workDir, err = filepath.Abs(workDir); err != nil {
			return nil, err
		}
	}
	workspaces := workspace.NewManager(workDir, catalog, logger)

	store, owns := o.store, false
	if store == nil {
		if store, err = openStore(cfg.Store); err != nil {
			return nil, err
		}
		owns = true
	}

	runner := o.runner
	if runner == nil {
		runner = tools.NewExecRunner(logger)
	}
	tc := tools.NewToolchain(runner, cfg.Tools, cfg.Raster)

	p := pipeline.New(tc, workspaces, store,
		pipeline.WithLogger(logger),
		pipeline.WithRetention(cfg.Retention),
		pipeline.WithPublicPrefix(cfg.Server.PublicPrefix),
		pipeline.WithTimeouts(cfg.Timeouts),
		pipeline.WithClock(o.clock),
	)

	// Entries carry the path they were created under, which may predate a
	// work_dir change.
	sweeper := retention.NewSweeper(store, func(e retention.Entry) error {
		if e.Path == "" {
			return workspaces.Remove(e.ID)
		}
		return workspaces.RemovePath(e.Path)
	}, cfg.SweepInterval, logger)
	sweeper.Now = o.clock

	return &Runtime{
		Config:     cfg,
		Logger:     logger,
		Catalog:    catalog,
		Workspaces: workspaces,
		Store:      store,
		Sweeper:    sweeper,
		Pipeline:   p,
		ownsStore:  owns,
	}, nil
}

func openStore(cfg config.StoreConfig) (retention.Store, error) {
	switch cfg.Backend {
	case config.StoreSQLite:
		return retention.OpenSQLite(cfg.Path)
	case config.StoreMemory:
		return retention.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// Start removes orphaned workspaces, then launches the sweeper and, when
// configured, the asset watcher. Both stop with ctx.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.PruneOrphans(ctx); err != nil {
		r.Logger.Warn("orphan pruning failed", "error", err)
	}
	r.Sweeper.Start(ctx)
	if r.Config.Assets.Watch {
		if err := r.Catalog.Watch(ctx); err != nil {
			return err
		}
	}
	return nil
}

// PruneOrphans removes workspace directories that no exposure refers to,
// such as leftovers of a previous process. Must run before any render.
func (r *Runtime) PruneOrphans(ctx context.Context) error {
	ids, err := r.Workspaces.List()
	if err != nil {
		return err
	}
	now := r.Sweeper.Now()
	var errs []error
	for _, id := range ids {
		_, err := r.Store.Get(ctx, id, now)
		if !errors.Is(err, core.ErrNotFound) {
			// Live and expired exposures belong to the sweeper.
			continue
		}
		if err := r.Workspaces.Remove(id); err != nil {
			errs = append(errs, err)
			continue
		}
		r.Logger.Info("removed orphaned workspace", "request_id", id)
	}
	return errors.Join(errs...)
}

// Close releases the store if the Runtime opened it.
func (r *Runtime) Close() error {
	if r.ownsStore {
		return r.Store.Close()
	}
	return nil
}

// RuntimeState aggregates the state of every component.
type RuntimeState struct {
	Version    string         `json:"version,omitempty"`
	Components map[string]any `json:"components"`
}

// State implements introspection.Introspectable.
func (r *Runtime) State() any {
	components := make(map[string]any)
	for _, c := range []any{r.Pipeline, r.Workspaces, r.Catalog, r.Store, r.Sweeper} {
		intro, ok := c.(introspection.Introspectable)
		if !ok {
			continue
		}
		name := "component"
		if comp, ok := c.(introspection.Component); ok {
			name = comp.ComponentType()
		}
		components[name] = intro.State()
	}
	return RuntimeState{Version: r.Version, Components: components}
}

// ComponentType implements introspection.Component.
func (r *Runtime) ComponentType() string { return "runtime" }

var _ introspection.Introspectable = (*Runtime)(nil)
var _ introspection.Component = (*Runtime)(nil)
