// Package lockout bounds OTP verification attempts per reservation. Failures
// are counted in a fixed window; reaching the limit locks verification for
// the lockout duration. A successful verification clears the record.
package lockout

import (
	"context"
	"time"

	dErrors "petregistry/pkg/domain-errors"
	"petregistry/pkg/requestcontext"
)

const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 15 * time.Minute
	DefaultDuration    = 30 * time.Minute
)

// Record is the failure state of one key.
type Record struct {
	Key         string
	Failures    int
	WindowStart time.Time
	LockedUntil *time.Time
}

func (r *Record) IsLockedAt(now time.Time) bool {
	return r != nil && r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// Store is pure I/O; the Guard owns the thresholds.
type Store interface {
	// Get returns nil when the key has no record.
	Get(ctx context.Context, key string) (*Record, error)
	// RecordFailure increments the counter, restarting it when the window
	// that began at WindowStart has passed.
	RecordFailure(ctx context.Context, key string, now time.Time, window time.Duration) (*Record, error)
	// Lock sets LockedUntil and resets the counter.
	Lock(ctx context.Context, key string, until, now time.Time) error
	Clear(ctx context.Context, key string) error
}

type Config struct {
	MaxAttempts int
	Window      time.Duration
	Duration    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Duration <= 0 {
		c.Duration = DefaultDuration
	}
	return c
}

type Guard struct {
	store Store
	cfg   Config
}

func NewGuard(store Store, cfg Config) *Guard {
	return &Guard{store: store, cfg: cfg.withDefaults()}
}

// Check returns a Locked error while key is locked.
func (g *Guard) Check(ctx context.Context, key string) error {
	rec, err := g.store.Get(ctx, key)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read otp lockout")
	}
	if rec.IsLockedAt(requestcontext.Now(ctx)) {
		return dErrors.New(dErrors.CodeLocked, "too many failed attempts; try again after "+rec.LockedUntil.UTC().Format(time.RFC3339))
	}
	return nil
}

// RecordFailure counts one failed attempt and reports whether it triggered
// the lock.
func (g *Guard) RecordFailure(ctx context.Context, key string) (bool, error) {
	now := requestcontext.Now(ctx)
	rec, err := g.store.RecordFailure(ctx, key, now, g.cfg.Window)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record otp failure")
	}
	if rec.Failures < g.cfg.MaxAttempts {
		return false, nil
	}
	if err := g.store.Lock(ctx, key, now.Add(g.cfg.Duration), now); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock otp verification")
	}
	return true, nil
}

func (g *Guard) Clear(ctx context.Context, key string) error {
	if err := g.store.Clear(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear otp lockout")
	}
	return nil
}
