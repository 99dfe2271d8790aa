// Package service runs the reservation state machine. Every write that
// touches a pet (create, transition, expiry) runs in a transaction keyed on
// the pet code, so it serializes with registry writes for the same animal.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"petregistry/internal/registry/models"
	regservice "petregistry/internal/registry/service"
	"petregistry/internal/reservation/metrics"
	resmodels "petregistry/internal/reservation/models"
	"petregistry/pkg/domain"
	dErrors "petregistry/pkg/domain-errors"
	audit "petregistry/pkg/platform/audit"
	"petregistry/pkg/platform/sentinel"
	"petregistry/pkg/platform/tx"
	"petregistry/pkg/requestcontext"
)

// DefaultPendingTTL bounds how long a reservation may wait in pending.
const DefaultPendingTTL = 24 * time.Hour

// SystemActor is recorded on transitions made by background workers.
const SystemActor = "system"

type Store interface {
	Create(ctx context.Context, r *resmodels.Reservation) error
	Get(ctx context.Context, id domain.ReservationID) (*resmodels.Reservation, error)
	GetForUpdate(ctx context.Context, id domain.ReservationID) (*resmodels.Reservation, error)
	GetByCode(ctx context.Context, code domain.ReservationCode) (*resmodels.Reservation, error)
	ActiveForPet(ctx context.Context, pet domain.PetCode) (*resmodels.Reservation, error)
	Update(ctx context.Context, r *resmodels.Reservation) error
	AppendTimeline(ctx context.Context, id domain.ReservationID, entry resmodels.TimelineEntry) error
	List(ctx context.Context, f resmodels.Filter) ([]*resmodels.Reservation, int, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*resmodels.Reservation, error)
}

// Registry is the slice of the registry the state machine writes through.
type Registry interface {
	GetByPetCode(ctx context.Context, code domain.PetCode) (*models.Entry, error)
	ApplyState(ctx context.Context, code domain.PetCode, state models.State, actor string) (*regservice.UpdateResult, error)
}

type CodeGenerator interface {
	Generate(ctx context.Context) (string, error)
}

type OpsTracker interface {
	Track(ctx context.Context, event audit.OpsEvent)
}

type Service struct {
	store      Store
	registry   Registry
	codes      CodeGenerator
	tx         tx.Runner
	pendingTTL time.Duration
	ops        OpsTracker
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithOpsTracker(t OpsTracker) Option {
	return func(s *Service) { s.ops = t }
}

func WithPendingTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pendingTTL = d
		}
	}
}

func New(store Store, registry Registry, codes CodeGenerator, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		store:      store,
		registry:   registry,
		codes:      codes,
		tx:         runner,
		pendingTTL: DefaultPendingTTL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest identifies what is being reserved and by whom.
type CreateRequest struct {
	PetCode     domain.PetCode
	ItemID      string
	RequesterID domain.OwnerID
}

// Create opens a pending reservation and marks the pet reserved.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*resmodels.Reservation, error) {
	if req.RequesterID.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "requester is required")
	}
	if req.PetCode == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "pet code is required")
	}

	var (
		created *resmodels.Reservation
		err     error
	)
	// A code taken between generation and insert gets one fresh draw.
	for attempt := 0; attempt < 2; attempt++ {
		created, err = s.create(ctx, req)
		if !errors.Is(err, resmodels.ErrCodeTaken) {
			break
		}
		s.logger.WarnContext(ctx, "reservation code collision",
			"pet_code", req.PetCode,
			"attempt", attempt+1,
		)
	}
	if err != nil {
		return nil, s.translate(err, "failed to create reservation")
	}

	if s.metrics != nil {
		s.metrics.IncCreated()
	}
	s.logger.InfoContext(ctx, "reservation created",
		"reservation_code", created.Code,
		"pet_code", created.PetCode,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.track(ctx, audit.OpsEvent{
		Subject: string(created.Code),
		Action:  audit.EventReservationCreated,
		ActorID: string(req.RequesterID),
		Detail:  string(created.PetCode),
	})
	return created, nil
}

// create draws a code and inserts the reservation under the pet's key.
func (s *Service) create(ctx context.Context, req CreateRequest) (*resmodels.Reservation, error) {
	raw, err := s.codes.Generate(ctx)
	if err != nil {
		return nil, err
	}
	code, err := domain.ParseReservationCode(raw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generated reservation code is malformed")
	}

	var created *resmodels.Reservation
	err = s.tx.RunInTx(ctx, string(req.PetCode), func(ctx context.Context) error {
		entry, err := s.registry.GetByPetCode(ctx, req.PetCode)
		if err != nil {
			return err
		}
		if !entry.CanBeReserved() {
			return dErrors.New(dErrors.CodeConflict, "pet is recorded as deceased")
		}
		if entry.IsOwnedBy(req.RequesterID) {
			return dErrors.New(dErrors.CodeConflict, "requester already owns this pet")
		}
		if _, err := s.store.ActiveForPet(ctx, req.PetCode); err == nil {
			return dErrors.New(dErrors.CodeConflict, "pet already has an active reservation")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}

		now := requestcontext.Now(ctx)
		r := resmodels.NewReservation(code, req.PetCode, req.ItemID, req.RequesterID, s.pendingTTL, now)
		r.PriorPetStatus = entry.CurrentStatus
		if err := s.store.Create(ctx, r); err != nil {
			return err
		}
		if err := s.setPetStatus(ctx, req.PetCode, models.StatusReserved, string(req.RequesterID)); err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Transition moves a reservation along the table. Targets owned by the
// handover protocol are rejected here.
func (s *Service) Transition(ctx context.Context, id domain.ReservationID, target resmodels.Status, actor, note string) (*resmodels.Reservation, error) {
	if target.IsGated() {
		return nil, dErrors.New(dErrors.CodeInvalidTransition,
			string(target)+" is reached only through the handover protocol")
	}
	if actor == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	r, err := s.transition(ctx, id, target, actor, note, false)
	if err != nil {
		return nil, err
	}
	s.track(ctx, audit.OpsEvent{
		Subject: string(r.Code),
		Action:  audit.EventReservationTransitioned,
		ActorID: actor,
		Detail:  string(target),
	})
	return r, nil
}

// transition locks the reservation under its pet key, validates and applies
// the move, then runs the registry side effect.
func (s *Service) transition(ctx context.Context, id domain.ReservationID, target resmodels.Status, actor, note string, sweep bool) (*resmodels.Reservation, error) {
	// Pet code never changes, so an unlocked read is enough to pick the key.
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.translate(err, "failed to load reservation")
	}

	var updated *resmodels.Reservation
	err = s.tx.RunInTx(ctx, string(current.PetCode), func(ctx context.Context) error {
		r, err := s.store.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		if sweep && !r.IsExpired(now) {
			return sentinel.ErrInvalidState
		}
		if err := r.CanTransition(target, now); err != nil {
			return err
		}
		entry := r.ApplyTransition(target, actor, note, now)
		if err := s.store.Update(ctx, r); err != nil {
			return err
		}
		if err := s.store.AppendTimeline(ctx, r.ID, entry); err != nil {
			return err
		}
		if target == resmodels.StatusCancelled || target == resmodels.StatusRejected {
			if err := s.releasePet(ctx, r, actor); err != nil {
				return err
			}
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, s.translate(err, "failed to transition reservation")
	}

	if s.metrics != nil {
		s.metrics.IncTransition(string(target), target.IsTerminal())
	}
	s.logger.InfoContext(ctx, "reservation transitioned",
		"reservation_code", updated.Code,
		"to", target,
		"actor", actor,
		"request_id", requestcontext.RequestID(ctx),
	)
	return updated, nil
}

// setPetStatus mirrors the reservation onto the registry status. A pet that
// died while reserved keeps its deceased status.
func (s *Service) setPetStatus(ctx context.Context, code domain.PetCode, status, actor string) error {
	entry, err := s.registry.GetByPetCode(ctx, code)
	if err != nil {
		return err
	}
	if entry.IsDeceased {
		return nil
	}
	_, err = s.registry.ApplyState(ctx, code, models.State{Status: &status}, actor)
	return err
}

// releasePet restores the status the pet had before r reserved it. A status
// changed by someone else in the meantime is left alone.
func (s *Service) releasePet(ctx context.Context, r *resmodels.Reservation, actor string) error {
	entry, err := s.registry.GetByPetCode(ctx, r.PetCode)
	if err != nil {
		return err
	}
	if entry.IsDeceased || entry.CurrentStatus != models.StatusReserved {
		return nil
	}
	prior := r.PriorPetStatus
	if prior == "" || prior == models.StatusReserved {
		prior = models.StatusAvailable
	}
	_, err = s.registry.ApplyState(ctx, r.PetCode, models.State{Status: &prior}, actor)
	return err
}

func (s *Service) Get(ctx context.Context, id domain.ReservationID) (*resmodels.Reservation, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.translate(err, "failed to load reservation")
	}
	return r, nil
}

func (s *Service) GetByCode(ctx context.Context, code domain.ReservationCode) (*resmodels.Reservation, error) {
	r, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, s.translate(err, "failed to load reservation")
	}
	return r, nil
}

// List returns reservations matching f, oldest first, plus the total match
// count before paging.
func (s *Service) List(ctx context.Context, f resmodels.Filter) ([]*resmodels.Reservation, int, error) {
	out, total, err := s.store.List(ctx, f.Normalize())
	if err != nil {
		return nil, 0, s.translate(err, "failed to list reservations")
	}
	return out, total, nil
}

func (s *Service) translate(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "reservation not found")
	case errors.Is(err, resmodels.ErrCodeTaken):
		return dErrors.Wrap(err, dErrors.CodeConflict, "reservation code already in use, retry")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "pet already has an active reservation")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvalidTransition, msg)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) track(ctx context.Context, event audit.OpsEvent) {
	if s.ops == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	s.ops.Track(ctx, event)
}
