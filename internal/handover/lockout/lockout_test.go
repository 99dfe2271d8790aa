package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "petregistry/pkg/domain-errors"
	"petregistry/pkg/requestcontext"
)

func TestGuardLocksAfterMaxAttempts(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	g := NewGuard(NewInMemoryStore(), Config{MaxAttempts: 3, Window: time.Minute, Duration: 10 * time.Minute})

	for i := range 2 {
		locked, err := g.RecordFailure(ctx, "res-1")
		require.NoError(t, err)
		assert.False(t, locked, "attempt %d", i+1)
		require.NoError(t, g.Check(ctx, "res-1"))
	}
	locked, err := g.RecordFailure(ctx, "res-1")
	require.NoError(t, err)
	assert.True(t, locked)

	err = g.Check(ctx, "res-1")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeLocked))

	assert.NoError(t, g.Check(ctx, "res-2"), "other keys are unaffected")

	later := requestcontext.WithTime(context.Background(), now.Add(11*time.Minute))
	assert.NoError(t, g.Check(later, "res-1"))
}

func TestGuardWindowRestartsCount(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	g := NewGuard(NewInMemoryStore(), Config{MaxAttempts: 2, Window: time.Minute, Duration: time.Hour})

	locked, err := g.RecordFailure(requestcontext.WithTime(context.Background(), now), "res-1")
	require.NoError(t, err)
	assert.False(t, locked)

	locked, err = g.RecordFailure(requestcontext.WithTime(context.Background(), now.Add(2*time.Minute)), "res-1")
	require.NoError(t, err)
	assert.False(t, locked, "first failure aged out of the window")
}

func TestGuardClear(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	g := NewGuard(store, Config{MaxAttempts: 1})

	locked, err := g.RecordFailure(ctx, "res-1")
	require.NoError(t, err)
	require.True(t, locked)
	require.Error(t, g.Check(ctx, "res-1"))

	require.NoError(t, g.Clear(ctx, "res-1"))
	assert.NoError(t, g.Check(ctx, "res-1"))
	rec, err := store.Get(ctx, "res-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, DefaultWindow, cfg.Window)
	assert.Equal(t, DefaultDuration, cfg.Duration)
}
