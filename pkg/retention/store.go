// Package retention tracks which workspaces are publicly exposed and until
// when, and owns their deletion once the retention window has passed.
package retention

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/introspection"

	"github.com/aretw0/mahina/pkg/core"
)

// DefaultWindow is how long a finished calendar stays reachable.
const DefaultWindow = 10 * time.Minute

// Entry maps an exposed request id to its workspace.
type Entry struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its window at now.
func (e Entry) Expired(now time.Time) bool { return !now.Before(e.ExpiresAt) }

// Store is the process-wide exposure table.
type Store interface {
	// Put records or replaces an exposure.
	Put(ctx context.Context, e Entry) error
	// Get returns a live exposure, ErrNotFound, or ErrExpired.
	Get(ctx context.Context, id string, now time.Time) (Entry, error)
	// Delete forgets an exposure. Unknown ids are not an error.
	Delete(ctx context.Context, id string) error
	// Expired lists every exposure whose window ended at or before now.
	Expired(ctx context.Context, now time.Time) ([]Entry, error)
	// Len is the number of recorded exposures, live or not.
	Len(ctx context.Context) (int, error)
	Close() error
}

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Put(_ context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("retention: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string, now time.Time) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, core.ErrNotFound
	}
	if e.Expired(now) {
		return Entry{}, core.ErrExpired
	}
	return e, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) Expired(_ context.Context, now time.Time) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.Expired(now) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b Entry) int { return a.ExpiresAt.Compare(b.ExpiresAt) })
	return out, nil
}

func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) Close() error { return nil }

// State implements introspection.Introspectable.
func (s *MemoryStore) State() any {
	n, _ := s.Len(context.Background())
	return StoreState{Backend: "memory", Entries: n}
}

// ComponentType implements introspection.Component.
func (s *MemoryStore) ComponentType() string { return "retention-store" }

// StoreState exposes a store for observability.
type StoreState struct {
	Backend string `json:"backend"`
	Path    string `json:"path,omitempty"`
	Entries int    `json:"entries"`
}

var _ Store = (*MemoryStore)(nil)
var _ introspection.Introspectable = (*MemoryStore)(nil)
