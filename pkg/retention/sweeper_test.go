package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aretw0/mahina/pkg/core"
)

type removals struct {
	mu   sync.Mutex
	ids  []string
	fail map[string]bool
}

func (r *removals) remove(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[e.ID] {
		return errors.New("busy")
	}
	r.ids = append(r.ids, e.ID)
	return nil
}

func (r *removals) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestSweeper_SweepOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, Entry{ID: "a", ExpiresAt: epoch.Add(-time.Minute)}))
	require.NoError(t, store.Put(ctx, Entry{ID: "b", ExpiresAt: epoch.Add(time.Minute)}))
	require.NoError(t, store.Put(ctx, Entry{ID: "c", ExpiresAt: epoch.Add(-time.Second)}))

	r := &removals{fail: map[string]bool{"c": true}}
	s := NewSweeper(store, r.remove, time.Minute, nil)

	assert.Equal(t, 1, s.SweepOnce(ctx, epoch))
	assert.Equal(t, []string{"a"}, r.list())

	_, err := store.Get(ctx, "c", epoch.Add(-time.Hour))
	assert.NoError(t, err, "entry whose removal failed must be retried later")

	r.fail = nil
	assert.Equal(t, 1, s.SweepOnce(ctx, epoch))
	_, err = store.Get(ctx, "c", epoch.Add(-time.Hour))
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Equal(t, 1, s.SweepOnce(ctx, epoch.Add(time.Hour)), "window end forces cleanup")

	state := s.State().(SweeperState)
	assert.Equal(t, 3, state.Sweeps)
	assert.Equal(t, 3, state.Removed)
	assert.Empty(t, state.LastError)
}

func TestSweeper_Start(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, Entry{ID: "orphan", ExpiresAt: epoch}))

	r := &removals{}
	s := NewSweeper(store, r.remove, 10*time.Millisecond, nil)
	s.Now = func() time.Time { return epoch.Add(time.Minute) }
	s.Start(ctx)

	require.Eventually(t, func() bool {
		return len(r.list()) == 1
	}, 2*time.Second, 5*time.Millisecond, "startup sweep did not remove the orphan")

	require.NoError(t, store.Put(ctx, Entry{ID: "later", ExpiresAt: epoch}))
	require.Eventually(t, func() bool {
		return len(r.list()) == 2
	}, 2*time.Second, 5*time.Millisecond, "periodic sweep did not run")

	cancel()
	require.Eventually(t, func() bool {
		return !s.State().(SweeperState).Running
	}, 2*time.Second, 5*time.Millisecond)
}
