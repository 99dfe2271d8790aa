// Package ops records routine registry activity with sampling and a circuit
// breaker so a struggling audit store never slows the request path.
package ops

import (
	"context"
	"log/slog"
	"time"

	audit "petregistry/pkg/platform/audit"
	"petregistry/pkg/platform/circuit"
)

// Tracker emits ops events best-effort. Call it after the business
// transaction commits; errors are swallowed.
type Tracker struct {
	store   audit.Store
	sampler *Sampler
	breaker *circuit.Breaker
	metrics *Metrics
	logger  *slog.Logger
}

type Option func(*Tracker)

func WithSampler(s *Sampler) Option {
	return func(t *Tracker) { t.sampler = s }
}

func WithMetrics(m *Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(t *Tracker) { t.breaker = b }
}

func New(store audit.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:   store,
		sampler: NewSampler(1),
		breaker: circuit.New("audit-ops", circuit.WithCooldown(time.Minute)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track records event if sampled and the breaker allows it.
func (t *Tracker) Track(ctx context.Context, event audit.OpsEvent) {
	if !t.sampler.ShouldSample(string(event.Action)) {
		if t.metrics != nil {
			t.metrics.IncSampled()
		}
		return
	}
	if !t.breaker.ShouldAttempt() {
		if t.metrics != nil {
			t.metrics.IncCircuitBreakerDropped()
		}
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := t.store.Append(ctx, event.ToEvent()); err != nil {
		_, change := t.breaker.RecordFailure()
		if t.metrics != nil {
			t.metrics.IncPersistFailures()
			t.metrics.SetCircuitBreakerState(t.breaker.IsOpen())
		}
		if change.Opened {
			t.logger.WarnContext(ctx, "ops audit circuit opened", "error", err)
		}
		return
	}

	_, change := t.breaker.RecordSuccess()
	if t.metrics != nil {
		t.metrics.IncTracked()
		if change.Closed {
			t.metrics.SetCircuitBreakerState(false)
		}
	}
}
