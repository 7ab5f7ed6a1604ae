package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/introspection"
	"github.com/aretw0/lifecycle"
)

// DefaultSweepInterval is how often expired exposures are collected.
const DefaultSweepInterval = time.Minute

// RemoveFunc deletes the workspace behind an expired entry.
type RemoveFunc func(Entry) error

// Sweeper is the single background task that deletes expired workspaces.
// Nothing else schedules cleanup of exposed workspaces.
type Sweeper struct {
	Store    Store
	Remove   RemoveFunc
	Interval time.Duration
	Logger   *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time

	mu        sync.Mutex
	running   bool
	sweeps    int
	removed   int
	lastSweep time.Time
	lastErr   string
}

// NewSweeper creates a Sweeper.
func NewSweeper(store Store, remove RemoveFunc, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{Store: store, Remove: remove, Interval: interval, Logger: logger, Now: time.Now}
}

// Start runs an immediate sweep, to collect anything left over from a
// previous process, then sweeps every Interval until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	s.setRunning(true)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer s.setRunning(false)

		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		s.SweepOnce(ctx, s.Now())
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.SweepOnce(ctx, s.Now())
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		s.Logger.Error("retention sweeper panic", "error", err)
	}))
}

// SweepOnce removes every exposure expired at now and returns how many
// were removed. An entry whose workspace cannot be removed stays in the
// store and is retried on the next sweep.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) int {
	expired, err := s.Store.Expired(ctx, now)
	if err != nil {
		s.record(now, 0, err)
		s.Logger.Error("retention sweep failed", "error", err)
		return 0
	}

	removed := 0
	var lastErr error
	for _, e := range expired {
		if s.Remove != nil {
			if err := s.Remove(e); err != nil {
				lastErr = err
				s.Logger.Warn("failed to remove expired workspace", "request_id", e.ID, "error", err)
				continue
			}
		}
		if err := s.Store.Delete(ctx, e.ID); err != nil {
			lastErr = err
			s.Logger.Warn("failed to forget expired exposure", "request_id", e.ID, "error", err)
			continue
		}
		removed++
		s.Logger.Debug("exposure expired", "request_id", e.ID, "expired_at", e.ExpiresAt)
	}
	s.record(now, removed, lastErr)
	if removed > 0 {
		s.Logger.Info("retention sweep", "removed", removed)
	}
	return removed
}

func (s *Sweeper) record(now time.Time, removed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeps++
	s.removed += removed
	s.lastSweep = now
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
}

func (s *Sweeper) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

// SweeperState exposes the sweeper for observability.
type SweeperState struct {
	Running   bool          `json:"running"`
	Interval  time.Duration `json:"interval"`
	Sweeps    int           `json:"sweeps"`
	Removed   int           `json:"removed"`
	LastSweep time.Time     `json:"last_sweep"`
	LastError string        `json:"last_error,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Sweeper) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SweeperState{
		Running:   s.running,
		Interval:  s.Interval,
		Sweeps:    s.sweeps,
		Removed:   s.removed,
		LastSweep: s.lastSweep,
		LastError: s.lastErr,
	}
}

// ComponentType implements introspection.Component.
func (s *Sweeper) ComponentType() string { return "retention-sweeper" }

var _ introspection.Introspectable = (*Sweeper)(nil)
var _ introspection.Component = (*Sweeper)(nil)
