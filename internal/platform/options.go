package platform

import (
	"log/slog"
	"time"

	"github.com/aretw0/mahina/pkg/retention"
	"github.com/aretw0/mahina/pkg/tools"
)

// options holds the wiring overrides for a Runtime.
type options struct {
	logger *slog.Logger
	runner tools.Runner
	store  retention.Store
	clock  func() time.Time
}

// Option defines a functional option for configuring the Runtime.
type Option func(*options)

func defaultOptions() *options {
	return &options{clock: time.Now}
}

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRunner replaces the subprocess runner, e.g. with a scripted fake.
func WithRunner(r tools.Runner) Option {
	return func(o *options) {
		o.runner = r
	}
}

// WithStore injects an exposure store. When provided, the configured
// backend is not opened and the caller keeps ownership of the store.
func WithStore(s retention.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithClock replaces time.Now for retention bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}
