// Package config loads the service configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/mahina/pkg/pipeline"
	"github.com/aretw0/mahina/pkg/retention"
	"github.com/aretw0/mahina/pkg/tools"
	"github.com/aretw0/mahina/pkg/workspace"
)

// Config is the complete service configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	// DataDir holds the static template assets.
	DataDir string `yaml:"data_dir"`
	// WorkDir is the root of per-request workspaces. Empty means the OS
	// temp directory.
	WorkDir       string            `yaml:"work_dir"`
	Retention     time.Duration     `yaml:"retention"`
	SweepInterval time.Duration     `yaml:"sweep_interval"`
	Store         StoreConfig       `yaml:"store"`
	Tools         tools.Binaries    `yaml:"tools"`
	Timeouts      pipeline.Timeouts `yaml:"timeouts"`
	Raster        tools.Raster      `yaml:"raster"`
	Assets        AssetsConfig      `yaml:"assets"`
	Logging       LoggingConfig     `yaml:"logging"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	PublicPrefix   string `yaml:"public_prefix"`
}

// StoreConfig selects the exposure store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// AssetsConfig lists the static assets seeded into every workspace.
type AssetsConfig struct {
	Required []string `yaml:"required"`
	Patterns []string `yaml:"patterns"`
	Watch    bool     `yaml:"watch"`
}

// LoggingConfig configures the default slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":3000",
			MaxUploadBytes: 15 << 20,
			PublicPrefix:   "/tmp",
		},
		DataDir:       "data",
		Retention:     retention.DefaultWindow,
		SweepInterval: retention.DefaultSweepInterval,
		Store:         StoreConfig{Backend: StoreMemory, Path: "mahina.db"},
		Tools:         tools.DefaultBinaries(),
		Timeouts:      pipeline.DefaultTimeouts(),
		Raster:        tools.DefaultRaster(),
		Assets:        AssetsConfig{Required: slices.Clone(workspace.DefaultRequired), Watch: true},
		Logging:       LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path over the defaults and applies
// environment overrides. A missing file yields the defaults. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	if addr := os.Getenv("MAHINA_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if dir := os.Getenv("MAHINA_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if dir := os.Getenv("MAHINA_WORK_DIR"); dir != "" {
		c.WorkDir = dir
	}
	if backend := os.Getenv("MAHINA_STORE"); backend != "" {
		c.Store.Backend = strings.ToLower(backend)
	}
	if path := os.Getenv("MAHINA_STORE_PATH"); path != "" {
		c.Store.Path = path
	}
	if v := os.Getenv("MAHINA_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid MAHINA_RETENTION %q: %w", v, err)
		}
		c.Retention = d
	}
	if v := os.Getenv("MAHINA_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAHINA_MAX_UPLOAD_BYTES %q: %w", v, err)
		}
		c.Server.MaxUploadBytes = n
	}
	if level := os.Getenv("MAHINA_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("MAHINA_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}

	for name, bin := range map[string]*string{
		"TIDE":      &c.Tools.Tide,
		"PCAL":      &c.Tools.Pcal,
		"CONVERT":   &c.Tools.Convert,
		"COMPOSITE": &c.Tools.Composite,
		"GS":        &c.Tools.Ghostscript,
	} {
		if v := os.Getenv("MAHINA_TOOL_" + name); v != "" {
			*bin = v
		}
	}
	return nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	if !strings.HasPrefix(c.Server.PublicPrefix, "/") {
		return fmt.Errorf("server.public_prefix must start with /: %q", c.Server.PublicPrefix)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Retention <= 0 {
		return fmt.Errorf("retention must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}
	switch c.Store.Backend {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid store backend: %s (valid: %s, %s)", c.Store.Backend, StoreMemory, StoreSQLite)
	}
	for name, bin := range map[string]string{
		"tide": c.Tools.Tide, "pcal": c.Tools.Pcal, "convert": c.Tools.Convert,
		"composite": c.Tools.Composite, "gs": c.Tools.Ghostscript,
	} {
		if bin == "" {
			return fmt.Errorf("tools.%s is required", name)
		}
	}
	if r := c.Raster; r.Density <= 0 || r.Width <= 0 || r.Height <= 0 || r.Quality <= 0 || r.Quality > 100 {
		return fmt.Errorf("invalid raster settings: %+v", r)
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	if f := c.Logging.Format; f != "text" && f != "json" {
		return fmt.Errorf("invalid logging.format: %s (valid: text, json)", f)
	}
	return nil
}

// NewLogger builds a logger writing to w as configured.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid logging.level: %s", s)
	}
	return level, nil
}
