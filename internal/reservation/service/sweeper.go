package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	resmodels "petregistry/internal/reservation/models"
	dErrors "petregistry/pkg/domain-errors"
	audit "petregistry/pkg/platform/audit"
	"petregistry/pkg/requestcontext"
)

const defaultSweepBatch = 100

// ExpirePending cancels up to limit pending reservations past their
// deadline through the normal pending -> cancelled transition. Reservations
// that moved on since the scan are skipped.
func (s *Service) ExpirePending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultSweepBatch
	}
	expired, err := s.store.ListExpired(ctx, requestcontext.Now(ctx), limit)
	if err != nil {
		return 0, s.translate(err, "failed to scan expired reservations")
	}
	cancelled := 0
	for _, r := range expired {
		_, err := s.transition(ctx, r.ID, resmodels.StatusCancelled, SystemActor, "expired while pending", true)
		if dErrors.HasCode(err, dErrors.CodeInvalidTransition) {
			continue
		}
		if err != nil {
			return cancelled, err
		}
		cancelled++
		if s.metrics != nil {
			s.metrics.IncExpired()
		}
		s.track(ctx, audit.OpsEvent{
			Subject: string(r.Code),
			Action:  audit.EventReservationExpired,
			ActorID: SystemActor,
			Detail:  string(r.PetCode),
		})
	}
	return cancelled, nil
}

// Sweeper runs ExpirePending on an interval until its context ends.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

func NewSweeper(svc *Service, interval time.Duration, batch int, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{svc: svc, interval: interval, batch: batch, logger: logger}
}

func (w *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := w.svc.ExpirePending(ctx, w.batch)
			if err != nil && !errors.Is(err, context.Canceled) {
				w.logger.ErrorContext(ctx, "reservation sweep failed", "error", err, "cancelled", n)
				continue
			}
			if n > 0 {
				w.logger.InfoContext(ctx, "expired reservations cancelled", "count", n)
			}
		}
	}
}
