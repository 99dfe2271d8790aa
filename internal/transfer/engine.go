// Package transfer applies ownership changes. Every change goes through the
// registry's state path inside one transaction together with its compliance
// audit record, so a pet never changes hands without history and audit.
package transfer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"petregistry/internal/registry/models"
	regservice "petregistry/internal/registry/service"
	"petregistry/pkg/domain"
	dErrors "petregistry/pkg/domain-errors"
	audit "petregistry/pkg/platform/audit"
	"petregistry/pkg/platform/tx"
	"petregistry/pkg/requestcontext"
)

type Registry interface {
	GetByPetCode(ctx context.Context, code domain.PetCode) (*models.Entry, error)
	ApplyState(ctx context.Context, code domain.PetCode, state models.State, actor string) (*regservice.UpdateResult, error)
}

type CompliancePublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// Request describes one ownership change.
type Request struct {
	PetCode     domain.PetCode
	NewOwnerID  domain.OwnerID
	Type        models.TransferType
	Price       string
	Reason      string
	PerformedBy string
	// IdempotencyKey makes retries safe; handovers pass the reservation id.
	IdempotencyKey string
}

// Result is the entry after the transfer and the history record it produced.
type Result struct {
	Entry    *models.Entry
	Record   *models.HistoryRecord
	Replayed bool
}

type Engine struct {
	registry   Registry
	tx         tx.Runner
	compliance CompliancePublisher
	tracer     trace.Tracer
	metrics    *Metrics
	logger     *slog.Logger
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func New(registry Registry, runner tx.Runner, compliance CompliancePublisher, opts ...Option) *Engine {
	e := &Engine{
		registry:   registry,
		tx:         runner,
		compliance: compliance,
		tracer:     otel.Tracer("petregistry/transfer"),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transfer hands the pet to req.NewOwnerID, placing it at_owner with the
// status its origin implies. It joins the caller's transaction when one is
// open for the same pet, which is how handover completion stays atomic.
// A repeated idempotency key returns the current entry without writing.
func (e *Engine) Transfer(ctx context.Context, req Request) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "transfer.Transfer", trace.WithAttributes(
		attribute.String("pet_code", string(req.PetCode)),
		attribute.String("transfer_type", string(req.Type)),
	))
	defer span.End()
	start := time.Now()

	if err := validate(req); err != nil {
		return nil, spanError(span, err)
	}

	var res *Result
	err := e.tx.RunInTx(ctx, string(req.PetCode), func(ctx context.Context) error {
		entry, err := e.registry.GetByPetCode(ctx, req.PetCode)
		if err != nil {
			return err
		}
		owner := req.NewOwnerID
		details := &models.TransferDetails{
			Type:           req.Type,
			Price:          req.Price,
			Reason:         req.Reason,
			IdempotencyKey: req.IdempotencyKey,
		}
		state := models.State{OwnerID: &owner, Transfer: details}
		// Only a replay may target the current owner.
		sameOwner := entry.CurrentOwnerID == owner
		if !sameOwner {
			location := models.LocationAtOwner
			status := models.StatusAfterTransfer(entry.OriginSource, req.Type)
			state.Location = &location
			state.Status = &status
		} else if req.IdempotencyKey == "" {
			return alreadyOwned(owner)
		}
		update, err := e.registry.ApplyState(ctx, req.PetCode, state, req.PerformedBy)
		if err != nil {
			return err
		}
		res = &Result{Entry: update.Entry, Record: update.History, Replayed: update.Replayed}
		if update.Replayed {
			return nil
		}
		if update.History == nil {
			return alreadyOwned(owner)
		}
		return e.compliance.Emit(ctx, audit.ComplianceEvent{
			PetCode:   string(req.PetCode),
			Action:    audit.EventOwnershipTransferred,
			ActorID:   req.PerformedBy,
			OwnerID:   string(owner),
			Reason:    req.Reason,
			Detail:    string(req.Type),
			RequestID: requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		return nil, spanError(span, err)
	}

	span.SetAttributes(attribute.Bool("replayed", res.Replayed))
	if !res.Replayed {
		if e.metrics != nil {
			e.metrics.IncTransfer(string(req.Type))
			e.metrics.ObserveTransfer(start)
		}
		e.logger.InfoContext(ctx, "ownership transferred",
			"pet_code", req.PetCode,
			"transfer_type", req.Type,
			"performed_by", req.PerformedBy,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return res, nil
}

// RecordManualTransfer moves a pet between owners outside the reservation
// flow, e.g. a private sale reported at the counter.
func (e *Engine) RecordManualTransfer(ctx context.Context, code domain.PetCode, newOwner domain.OwnerID, reason, performedBy, idempotencyKey string) (*Result, error) {
	return e.Transfer(ctx, Request{
		PetCode:        code,
		NewOwnerID:     newOwner,
		Type:           models.TransferManual,
		Reason:         reason,
		PerformedBy:    performedBy,
		IdempotencyKey: idempotencyKey,
	})
}

// MarkDeceased records a death. A pet with an owner gets a death transfer to
// nobody so the last ownership period is closed.
func (e *Engine) MarkDeceased(ctx context.Context, code domain.PetCode, reason, performedBy string) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "transfer.MarkDeceased", trace.WithAttributes(
		attribute.String("pet_code", string(code)),
	))
	defer span.End()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, spanError(span, dErrors.New(dErrors.CodeValidation, "reason is required"))
	}
	if performedBy == "" {
		return nil, spanError(span, dErrors.New(dErrors.CodeValidation, "performed_by is required"))
	}

	var res *Result
	err := e.tx.RunInTx(ctx, string(code), func(ctx context.Context) error {
		var (
			nobody   domain.OwnerID
			location = models.LocationDeceased
			status   = models.StatusDeceased
		)
		update, err := e.registry.ApplyState(ctx, code, models.State{
			OwnerID:  &nobody,
			Location: &location,
			Status:   &status,
			Deceased: &models.Deceased{At: requestcontext.Now(ctx), Reason: reason},
			Transfer: &models.TransferDetails{Type: models.TransferDeath, Reason: reason},
		}, performedBy)
		if err != nil {
			return err
		}
		res = &Result{Entry: update.Entry, Record: update.History}
		return e.compliance.Emit(ctx, audit.ComplianceEvent{
			PetCode:   string(code),
			Action:    audit.EventPetDeceased,
			ActorID:   performedBy,
			Reason:    reason,
			RequestID: requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		return nil, spanError(span, err)
	}
	e.logger.InfoContext(ctx, "pet marked deceased",
		"pet_code", code,
		"performed_by", performedBy,
		"request_id", requestcontext.RequestID(ctx),
	)
	return res, nil
}

func validate(req Request) error {
	switch req.Type {
	case models.TransferPurchase, models.TransferAdoption, models.TransferManual:
	case models.TransferDeath:
		return dErrors.New(dErrors.CodeValidation, "use MarkDeceased to record a death")
	default:
		return dErrors.New(dErrors.CodeValidation, "unknown transfer type: "+string(req.Type))
	}
	if req.NewOwnerID.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "new owner is required")
	}
	if req.PerformedBy == "" {
		return dErrors.New(dErrors.CodeValidation, "performed_by is required")
	}
	return nil
}

func alreadyOwned(owner domain.OwnerID) error {
	return dErrors.New(dErrors.CodeConflict, "pet is already owned by "+string(owner))
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}
