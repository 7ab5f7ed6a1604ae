package pipeline

import (
	"log/slog"
	"time"
)

// Timeouts bounds each kind of external invocation. Zero disables a bound.
type Timeouts struct {
	Fetch     time.Duration `yaml:"fetch"`
	Discovery time.Duration `yaml:"discovery"`
	Typeset   time.Duration `yaml:"typeset"`
	Rasterize time.Duration `yaml:"rasterize"`
	Composite time.Duration `yaml:"composite"`
}

// DefaultTimeouts returns the stage bounds used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Fetch:     20 * time.Second,
		Discovery: 30 * time.Second,
		Typeset:   2 * time.Minute,
		Rasterize: 5 * time.Minute,
		Composite: 5 * time.Minute,
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRetention sets how long finished artifacts stay exposed.
func WithRetention(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.retention = d
		}
	}
}

// WithPublicPrefix sets the URL path under which artifacts are exposed.
func WithPublicPrefix(prefix string) Option {
	return func(p *Pipeline) { p.publicPrefix = prefix }
}

// WithTimeouts sets the per-stage timeouts.
func WithTimeouts(t Timeouts) Option {
	return func(p *Pipeline) { p.timeouts = t }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}
