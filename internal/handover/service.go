// Package handover runs the passcode protocol that closes a reservation.
// Scheduling issues a one-time passcode; verifying it moves the reservation
// to handed_over and transfers the pet in the same transaction, so the
// reservation and the registry either both change or neither does.
package handover

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"petregistry/internal/notify"
	"petregistry/internal/registry/models"
	resmodels "petregistry/internal/reservation/models"
	"petregistry/internal/transfer"
	"petregistry/pkg/domain"
	dErrors "petregistry/pkg/domain-errors"
	audit "petregistry/pkg/platform/audit"
	"petregistry/pkg/platform/sentinel"
	"petregistry/pkg/platform/tx"
	"petregistry/pkg/requestcontext"
)

type Store interface {
	Get(ctx context.Context, id domain.ReservationID) (*resmodels.Reservation, error)
	GetForUpdate(ctx context.Context, id domain.ReservationID) (*resmodels.Reservation, error)
	Update(ctx context.Context, r *resmodels.Reservation) error
	AppendTimeline(ctx context.Context, id domain.ReservationID, entry resmodels.TimelineEntry) error
	AppendOTP(ctx context.Context, rec *resmodels.OTPRecord) error
	LatestUnusedOTP(ctx context.Context, id domain.ReservationID) (*resmodels.OTPRecord, error)
	MarkOTPUsed(ctx context.Context, otpID string, at time.Time) error
}

type Registry interface {
	GetByPetCode(ctx context.Context, code domain.PetCode) (*models.Entry, error)
}

type Transferer interface {
	Transfer(ctx context.Context, req transfer.Request) (*transfer.Result, error)
}

// Lockout counts failed verifications per reservation.
type Lockout interface {
	Check(ctx context.Context, key string) error
	RecordFailure(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context, key string) error
}

type CompliancePublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

type SecurityPublisher interface {
	Emit(ctx context.Context, event audit.SecurityEvent)
}

type OpsTracker interface {
	Track(ctx context.Context, event audit.OpsEvent)
}

type Service struct {
	store      Store
	registry   Registry
	transfers  Transferer
	lockout    Lockout
	tx         tx.Runner
	compliance CompliancePublisher
	security   SecurityPublisher
	ops        OpsTracker
	sender     notify.Sender
	generate   OTPGenerator
	hashCost   int
	tracer     trace.Tracer
	metrics    *Metrics
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithSender(sender notify.Sender) Option {
	return func(s *Service) { s.sender = sender }
}

func WithSecurityPublisher(p SecurityPublisher) Option {
	return func(s *Service) { s.security = p }
}

func WithOpsTracker(t OpsTracker) Option {
	return func(s *Service) { s.ops = t }
}

// WithOTPGenerator replaces the random passcode source.
func WithOTPGenerator(g OTPGenerator) Option {
	return func(s *Service) { s.generate = g }
}

// WithOTPHashCost sets the bcrypt cost. Values outside bcrypt's range are
// ignored.
func WithOTPHashCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.hashCost = cost
		}
	}
}

func New(
	store Store,
	registry Registry,
	transfers Transferer,
	lockout Lockout,
	runner tx.Runner,
	compliance CompliancePublisher,
	opts ...Option,
) *Service {
	s := &Service{
		store:      store,
		registry:   registry,
		transfers:  transfers,
		lockout:    lockout,
		tx:         runner,
		compliance: compliance,
		generate:   RandomOTP,
		hashCost:   bcrypt.DefaultCost,
		tracer:     otel.Tracer("petregistry/handover"),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule is when and where the pet changes hands.
type Schedule struct {
	At       time.Time
	Location string
}

// Completion is the handed-over reservation and the transfer it produced.
type Completion struct {
	Reservation *resmodels.Reservation
	Transfer    *transfer.Result
}

// ScheduleHandover moves a paid reservation to ready_for_handover and
// issues its first passcode.
func (s *Service) ScheduleHandover(ctx context.Context, id domain.ReservationID, sched Schedule, actor string) (*resmodels.Reservation, error) {
	if actor == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	if sched.At.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "scheduled_at is required")
	}
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translate(err, "failed to load reservation")
	}
	otp, hash, err := s.issue()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue otp")
	}

	var scheduled *resmodels.Reservation
	var issuedAt time.Time
	err = s.tx.RunInTx(ctx, string(current.PetCode), func(ctx context.Context) error {
		r, err := s.store.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if r.Status == resmodels.StatusHandedOver {
			return dErrors.New(dErrors.CodeAlreadyCompleted, "handover already completed")
		}
		now := requestcontext.Now(ctx)
		if err := r.CanTransition(resmodels.StatusReadyForHandover, now); err != nil {
			return err
		}
		at := sched.At.UTC()
		r.ScheduledAt = &at
		r.HandoverLocation = sched.Location
		entry := r.ApplyTransition(resmodels.StatusReadyForHandover, actor, sched.Location, now)
		if err := s.store.Update(ctx, r); err != nil {
			return err
		}
		if err := s.store.AppendTimeline(ctx, r.ID, entry); err != nil {
			return err
		}
		if err := s.store.AppendOTP(ctx, &resmodels.OTPRecord{ReservationID: r.ID, Hash: hash, IssuedAt: now}); err != nil {
			return err
		}
		scheduled = r
		issuedAt = now
		return nil
	})
	if err != nil {
		return nil, translate(err, "failed to schedule handover")
	}

	s.logger.InfoContext(ctx, "handover scheduled",
		"reservation_code", scheduled.Code,
		"pet_code", scheduled.PetCode,
		"scheduled_at", scheduled.ScheduledAt,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.track(ctx, audit.OpsEvent{
		Subject: string(scheduled.Code),
		Action:  audit.EventHandoverScheduled,
		ActorID: actor,
		Detail:  scheduled.HandoverLocation,
	})
	s.deliver(ctx, scheduled, otp, issuedAt, actor)
	return scheduled, nil
}

// RegenerateOTP issues a fresh passcode; earlier ones stop verifying. The
// failure counter is left as is.
func (s *Service) RegenerateOTP(ctx context.Context, id domain.ReservationID, actor string) (*resmodels.Reservation, error) {
	if actor == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translate(err, "failed to load reservation")
	}
	if err := requireReady(current); err != nil {
		return nil, err
	}
	otp, hash, err := s.issue()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue otp")
	}

	var r *resmodels.Reservation
	var issuedAt time.Time
	err = s.tx.RunInTx(ctx, string(current.PetCode), func(ctx context.Context) error {
		locked, err := s.store.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := requireReady(locked); err != nil {
			return err
		}
		issuedAt = requestcontext.Now(ctx)
		if err := s.store.AppendOTP(ctx, &resmodels.OTPRecord{ReservationID: locked.ID, Hash: hash, IssuedAt: issuedAt}); err != nil {
			return err
		}
		r = locked
		return nil
	})
	if err != nil {
		return nil, translate(err, "failed to regenerate otp")
	}
	s.deliver(ctx, r, otp, issuedAt, actor)
	return r, nil
}

// VerifyAndComplete checks otp against the latest unused passcode. On a
// match the passcode is consumed, the pet is transferred to the requester
// and the reservation becomes handed_over, all in one transaction. Any
// failure, including the transfer, leaves the reservation ready_for_handover.
func (s *Service) VerifyAndComplete(ctx context.Context, id domain.ReservationID, otp, actor string) (*Completion, error) {
	ctx, span := s.tracer.Start(ctx, "handover.VerifyAndComplete", trace.WithAttributes(
		attribute.String("reservation_id", id.String()),
	))
	defer span.End()
	start := time.Now()

	if actor == "" {
		return nil, spanError(span, dErrors.New(dErrors.CodeValidation, "actor is required"))
	}
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, spanError(span, translate(err, "failed to load reservation"))
	}
	span.SetAttributes(attribute.String("pet_code", string(current.PetCode)))
	if err := requireReady(current); err != nil {
		return nil, spanError(span, err)
	}
	key := id.String()
	if err := s.lockout.Check(ctx, key); err != nil {
		s.verification("locked")
		return nil, spanError(span, err)
	}

	var done *Completion
	err = s.tx.RunInTx(ctx, string(current.PetCode), func(ctx context.Context) error {
		r, err := s.store.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := requireReady(r); err != nil {
			return err
		}
		rec, err := s.store.LatestUnusedOTP(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeInvalidOTP, "invalid otp")
		} else if err != nil {
			return err
		}
		if err := verifyOTP(otp, rec.Hash); err != nil {
			return err
		}

		entry, err := s.registry.GetByPetCode(ctx, r.PetCode)
		if err != nil {
			return err
		}
		// The transfer is the step most likely to fail, so it runs first.
		result, err := s.transfers.Transfer(ctx, transfer.Request{
			PetCode:        r.PetCode,
			NewOwnerID:     r.RequesterID,
			Type:           transferTypeFor(entry.OriginSource),
			Reason:         "handover " + string(r.Code),
			PerformedBy:    actor,
			IdempotencyKey: r.ID.String(),
		})
		if err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		if err := s.store.MarkOTPUsed(ctx, rec.ID, now); err != nil {
			return err
		}
		timeline := r.ApplyTransition(resmodels.StatusHandedOver, actor, "", now)
		if err := s.store.Update(ctx, r); err != nil {
			return err
		}
		if err := s.store.AppendTimeline(ctx, r.ID, timeline); err != nil {
			return err
		}
		if err := s.compliance.Emit(ctx, audit.ComplianceEvent{
			Timestamp: now,
			PetCode:   string(r.PetCode),
			Action:    audit.EventHandoverCompleted,
			ActorID:   actor,
			OwnerID:   string(r.RequesterID),
			Detail:    string(r.Code),
			RequestID: requestcontext.RequestID(ctx),
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record handover audit")
		}
		done = &Completion{Reservation: r, Transfer: result}
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidOTP) {
			s.recordFailure(ctx, current, actor)
		} else {
			s.verification("error")
		}
		return nil, spanError(span, translate(err, "failed to complete handover"))
	}

	if err := s.lockout.Clear(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "failed to clear otp lockout",
			"reservation_code", current.Code,
			"error", err,
		)
	}
	s.verification("success")
	if s.metrics != nil {
		s.metrics.ObserveComplete(start)
	}
	s.logger.InfoContext(ctx, "handover completed",
		"reservation_code", done.Reservation.Code,
		"pet_code", done.Reservation.PetCode,
		"new_owner", done.Reservation.RequesterID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.track(ctx, audit.OpsEvent{
		Subject: string(done.Reservation.Code),
		Action:  audit.EventHandoverCompleted,
		ActorID: actor,
		Detail:  string(done.Reservation.PetCode),
	})
	return done, nil
}

func (s *Service) issue() (otp, hash string, err error) {
	otp, err = s.generate()
	if err != nil {
		return "", "", err
	}
	hash, err = hashOTP(otp, s.hashCost)
	if err != nil {
		return "", "", err
	}
	return otp, hash, nil
}

// recordFailure counts a wrong passcode. Counting runs outside the
// verification transaction so a rollback cannot undo it.
func (s *Service) recordFailure(ctx context.Context, r *resmodels.Reservation, actor string) {
	s.verification("invalid_otp")
	lockedNow, err := s.lockout.RecordFailure(ctx, r.ID.String())
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record otp failure",
			"reservation_code", r.Code,
			"error", err,
		)
	}
	event := audit.SecurityEvent{
		Subject:  string(r.Code),
		Action:   audit.EventOTPFailed,
		Reason:   "otp mismatch",
		Severity: audit.SeverityWarning,
	}
	if lockedNow {
		event.Action = audit.EventHandoverLocked
		event.Reason = "too many failed attempts"
		event.Severity = audit.SeverityCritical
		if s.metrics != nil {
			s.metrics.IncLockout()
		}
		s.logger.WarnContext(ctx, "handover verification locked",
			"reservation_code", r.Code,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	s.emitSecurity(ctx, event, actor)
}

// deliver sends the passcode. A failed send is logged; the passcode stays
// valid and can be regenerated.
func (s *Service) deliver(ctx context.Context, r *resmodels.Reservation, otp string, issuedAt time.Time, actor string) {
	if s.metrics != nil {
		s.metrics.IncIssued()
	}
	s.track(ctx, audit.OpsEvent{
		Subject: string(r.Code),
		Action:  audit.EventOTPIssued,
		ActorID: actor,
	})
	if s.sender == nil {
		return
	}
	err := s.sender.SendOTP(ctx, notify.OTPMessage{
		Recipient:       string(r.RequesterID),
		ReservationCode: string(r.Code),
		PetCode:         string(r.PetCode),
		OTP:             otp,
		ScheduledAt:     r.ScheduledAt,
		Location:        r.HandoverLocation,
		IssuedAt:        issuedAt,
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncNotifyFailure()
		}
		s.logger.WarnContext(ctx, "failed to send handover otp",
			"reservation_code", r.Code,
			"error", err,
		)
	}
}

func (s *Service) verification(outcome string) {
	if s.metrics != nil {
		s.metrics.IncVerification(outcome)
	}
}

func (s *Service) emitSecurity(ctx context.Context, event audit.SecurityEvent, actor string) {
	if s.security == nil {
		return
	}
	event.Timestamp = requestcontext.Now(ctx)
	event.ActorID = actor
	event.IP = requestcontext.ClientIP(ctx)
	event.UserAgent = requestcontext.UserAgent(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	s.security.Emit(ctx, event)
}

func (s *Service) track(ctx context.Context, event audit.OpsEvent) {
	if s.ops == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	s.ops.Track(ctx, event)
}

func requireReady(r *resmodels.Reservation) error {
	switch r.Status {
	case resmodels.StatusReadyForHandover:
		return nil
	case resmodels.StatusHandedOver:
		return dErrors.New(dErrors.CodeAlreadyCompleted, "handover already completed")
	}
	return dErrors.New(dErrors.CodeInvalidTransition, "reservation is "+string(r.Status)+", not ready_for_handover")
}

func transferTypeFor(origin domain.OriginSource) models.TransferType {
	if origin == domain.OriginAdoption {
		return models.TransferAdoption
	}
	return models.TransferPurchase
}

func translate(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "reservation not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeAlreadyCompleted, "handover already completed")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
