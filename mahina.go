package mahina

import (
	"log/slog"
	"time"

	"github.com/aretw0/mahina/internal/config"
	"github.com/aretw0/mahina/internal/platform"
	"github.com/aretw0/mahina/pkg/retention"
	"github.com/aretw0/mahina/pkg/tools"
)

// --- Types ---

// Config is the service configuration.
type Config = config.Config

// Runtime is a wired service: pipeline, workspaces, exposure store and
// retention sweeper.
type Runtime = platform.Runtime

// --- Configuration ---

// Option defines a functional option for configuring the Runtime.
type Option = platform.Option

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig reads a YAML configuration file and applies environment
// overrides. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithRunner replaces the external tool runner.
func WithRunner(r tools.Runner) Option {
	return platform.WithRunner(r)
}

// WithStore injects an exposure store instead of the configured backend.
func WithStore(s retention.Store) Option {
	return platform.WithStore(s)
}

// WithClock replaces time.Now for retention bookkeeping.
func WithClock(now func() time.Time) Option {
	return platform.WithClock(now)
}

// --- Factory ---

// New wires a Runtime from cfg.
func New(cfg *Config, opts ...Option) (*Runtime, error) {
	rt, err := platform.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	rt.Version = Version
	return rt, nil
}
