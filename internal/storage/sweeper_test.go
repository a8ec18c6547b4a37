package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auriga-id/casd/internal/session"
)

func TestSweep_RemovesExpiredTrees(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }
	f := session.NewFactory(nil, nil, session.HardTimeoutPolicy{TTL: time.Hour}, 0, session.WithClock(clock))
	store := NewMemoryStorage()

	stale := newTree(t, f, "alice")
	require.NoError(t, store.AddSession(ctx, stale))

	now = now.Add(2 * time.Hour)
	fresh := newTree(t, f, "bob")
	require.NoError(t, store.AddSession(ctx, fresh))

	NewSweeper(store, time.Minute, nil).Sweep(ctx)

	_, err := store.GetSession(ctx, stale.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, stale.IsInvalidated())

	_, err = store.GetSession(ctx, fresh.ID())
	assert.NoError(t, err)
	assert.False(t, fresh.IsInvalidated())
}

func TestSweeper_StartStop(t *testing.T) {
	store := NewMemoryStorage()
	sw := NewSweeper(store, 10*time.Millisecond, nil)
	sw.Start()
	time.Sleep(30 * time.Millisecond)
	sw.Stop()
}
