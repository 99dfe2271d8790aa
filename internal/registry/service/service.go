// Package service owns the registry: pet identity, current ownership and the
// append-only ownership history. All writes for one pet code serialize
// through the tx runner keyed on that code.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"petregistry/internal/registry/metrics"
	"petregistry/internal/registry/models"
	"petregistry/pkg/domain"
	dErrors "petregistry/pkg/domain-errors"
	audit "petregistry/pkg/platform/audit"
	"petregistry/pkg/platform/sentinel"
	"petregistry/pkg/platform/tx"
	"petregistry/pkg/requestcontext"
)

type Store interface {
	Get(ctx context.Context, code domain.PetCode) (*models.Entry, error)
	GetForUpdate(ctx context.Context, code domain.PetCode) (*models.Entry, error)
	FindByOriginRef(ctx context.Context, refs models.OriginRefs) (*models.Entry, error)
	Insert(ctx context.Context, entry *models.Entry) error
	Update(ctx context.Context, entry *models.Entry) error
	AppendHistory(ctx context.Context, rec *models.HistoryRecord) error
	History(ctx context.Context, code domain.PetCode) ([]models.HistoryRecord, error)
	FindHistoryByKey(ctx context.Context, code domain.PetCode, key string) (*models.HistoryRecord, error)
	Search(ctx context.Context, f models.Filters) (*models.SearchResult, error)
}

type CodeGenerator interface {
	Generate(ctx context.Context) (string, error)
	GenerateBatch(ctx context.Context, n int) ([]string, error)
}

// DescriptiveSource reads name/species/breed/images from origin records.
type DescriptiveSource interface {
	FetchAll(ctx context.Context, refs models.OriginRefs) (map[domain.OriginSource]*models.Descriptive, error)
}

type OpsTracker interface {
	Track(ctx context.Context, event audit.OpsEvent)
}

// Service orchestrates registration, state changes and registry queries.
type Service struct {
	store   Store
	codes   CodeGenerator
	tx      tx.Runner
	sources DescriptiveSource
	ops     OpsTracker
	metrics *metrics.Metrics
	logger  *slog.Logger
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

func WithDescriptiveSource(src DescriptiveSource) Option {
	return func(s *Service) { s.sources = src }
}

func New(store Store, codes CodeGenerator, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		store:  store,
		codes:  codes,
		tx:     runner,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterOrRefresh upserts the entry for identity. A new entry is created
// with initial applied on top of the origin's default placement; an existing
// entry has its descriptive fields and origin refs merged and is only moved
// when initial supplies state. The bool reports whether the entry was created.
func (s *Service) RegisterOrRefresh(ctx context.Context, id models.Identity, initial *models.State) (*models.Entry, bool, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveRegister(start)
		}
	}()

	if !id.OriginSource.IsValid() {
		return nil, false, dErrors.New(dErrors.CodeValidation, "origin must be one of direct, shop, adoption")
	}
	if id.PetCode != "" {
		code, err := domain.ParsePetCode(string(id.PetCode))
		if err != nil {
			return nil, false, err
		}
		id.PetCode = code
	}

	var (
		entry   *models.Entry
		created bool
		err     error
	)
	// A concurrent registration of the same origin ref under a fresh code
	// loses on the unique index; the retry finds the winner and merges.
	for attempt := 0; attempt < 2; attempt++ {
		entry, created, err = s.registerOnce(ctx, id, initial)
		if err == nil || !errors.Is(err, sentinel.ErrConflict) || attempt == 1 {
			break
		}
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, false, dErrors.Wrap(err, dErrors.CodeConflict, "origin reference already registered to another pet")
		}
		return nil, false, s.translate(err, "failed to register pet")
	}

	action := audit.EventPetRefreshed
	if created {
		action = audit.EventPetRegistered
		s.incRegistered()
		s.logger.InfoContext(ctx, "pet registered",
			"pet_code", entry.PetCode,
			"origin", entry.OriginSource,
			"request_id", requestcontext.RequestID(ctx),
		)
	} else if s.metrics != nil {
		s.metrics.IncRefreshed()
	}
	s.track(ctx, audit.OpsEvent{
		Subject: string(entry.PetCode),
		Action:  action,
		ActorID: id.AddedBy,
		Detail:  string(entry.OriginSource),
	})
	return entry, created, nil
}

func (s *Service) registerOnce(ctx context.Context, id models.Identity, initial *models.State) (*models.Entry, bool, error) {
	code := id.PetCode
	if code == "" && id.OriginRefs.Count() > 0 {
		existing, err := s.store.FindByOriginRef(ctx, id.OriginRefs)
		switch {
		case err == nil:
			code = existing.PetCode
		case !errors.Is(err, sentinel.ErrNotFound):
			return nil, false, err
		}
	}
	if code == "" {
		if err := validateNewIdentity(id); err != nil {
			return nil, false, err
		}
		minted, err := s.codes.Generate(ctx)
		if err != nil {
			return nil, false, err
		}
		code = domain.PetCode(minted)
	}

	var (
		entry   *models.Entry
		created bool
	)
	err := s.tx.RunInTx(ctx, string(code), func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		current, err := s.store.GetForUpdate(ctx, code)
		if errors.Is(err, sentinel.ErrNotFound) {
			if err := validateNewIdentity(id); err != nil {
				return err
			}
			entry, err = s.create(ctx, code, id, initial, now)
			created = err == nil
			return err
		}
		if err != nil {
			return err
		}

		current.Descriptive = current.Descriptive.Merge(id.Descriptive)
		current.OriginRefs = current.OriginRefs.Merge(id.OriginRefs)
		current.LastSeenAt = now
		current.UpdatedAt = now
		var rec *models.HistoryRecord
		if !initial.IsEmpty() {
			if rec, err = apply(current, *initial, id.AddedBy, now); err != nil {
				return err
			}
		}
		if err := s.persist(ctx, current, rec); err != nil {
			return err
		}
		entry = current
		return nil
	})
	return entry, created, err
}

func (s *Service) create(ctx context.Context, code domain.PetCode, id models.Identity, initial *models.State, now time.Time) (*models.Entry, error) {
	placement := models.DefaultPlacement(id.OriginSource)
	entry := &models.Entry{
		PetCode:         code,
		OriginSource:    id.OriginSource,
		OriginRefs:      id.OriginRefs,
		Descriptive:     id.Descriptive,
		CurrentLocation: placement.Location,
		CurrentStatus:   placement.Status,
		FirstAddedBy:    id.AddedBy,
		FirstAddedAt:    now,
		LastSeenAt:      now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if initial != nil {
		// The owner at registration is a starting point, not a transfer.
		if initial.OwnerID != nil {
			entry.CurrentOwnerID = *initial.OwnerID
		}
		if initial.Location != nil {
			entry.CurrentLocation = *initial.Location
		}
		if initial.Status != nil {
			entry.CurrentStatus = *initial.Status
		}
		if initial.LastTransferAt != nil {
			t := *initial.LastTransferAt
			entry.LastTransferAt = &t
		}
	}
	settleOwner(entry, id.AddedBy)
	if err := s.store.Insert(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// settleOwner keeps a new entry's owner and at_owner location in step. A
// directly entered pet belongs to whoever added it; any other pet placed
// at_owner without an owner falls back to an unknown location.
func settleOwner(entry *models.Entry, addedBy string) {
	if entry.CurrentLocation != models.LocationAtOwner || !entry.CurrentOwnerID.IsZero() {
		return
	}
	if entry.OriginSource == domain.OriginDirect {
		if owner, err := domain.ParseOwnerID(addedBy); err == nil {
			entry.CurrentOwnerID = owner
			return
		}
	}
	entry.CurrentLocation = models.LocationUnknown
}

// validateNewIdentity enforces that an entry is created from exactly one
// origin ref, the one belonging to its origin.
func validateNewIdentity(id models.Identity) error {
	if id.OriginRefs.Count() != 1 || id.OriginRefs.For(id.OriginSource) == "" {
		return dErrors.New(dErrors.CodeValidation, "a new pet needs exactly one origin reference matching its origin")
	}
	return nil
}

// GenerateCodes mints n unused pet codes without registering them.
func (s *Service) GenerateCodes(ctx context.Context, n int) ([]string, error) {
	if n <= 0 || n > models.MaxSearchLimit {
		return nil, dErrors.New(dErrors.CodeValidation, "count must be between 1 and 200")
	}
	codes, err := s.codes.GenerateBatch(ctx, n)
	if err != nil {
		return nil, s.translate(err, "failed to generate pet codes")
	}
	return codes, nil
}

// translate keeps coded errors and maps store sentinels onto domain codes.
func (s *Service) translate(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "pet not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
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

func (s *Service) incRegistered() {
	if s.metrics != nil {
		s.metrics.IncRegistered()
	}
}
