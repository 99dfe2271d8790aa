package service

import (
	"context"
	"errors"
	"time"

	"petregistry/internal/registry/models"
	"petregistry/pkg/domain"
	dErrors "petregistry/pkg/domain-errors"
	audit "petregistry/pkg/platform/audit"
	"petregistry/pkg/platform/sentinel"
	"petregistry/pkg/requestcontext"
)

func (s *Service) GetByPetCode(ctx context.Context, code domain.PetCode) (*models.Entry, error) {
	entry, err := s.store.Get(ctx, code)
	if err != nil {
		return nil, s.translate(err, "failed to load pet")
	}
	return entry, nil
}

// GetByOwner lists the pets currently held by owner.
func (s *Service) GetByOwner(ctx context.Context, owner domain.OwnerID) ([]*models.Entry, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "owner id is required")
	}
	res, err := s.Search(ctx, models.Filters{OwnerID: owner, Limit: models.MaxSearchLimit})
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

func (s *Service) Search(ctx context.Context, f models.Filters) (*models.SearchResult, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveSearch(start)
		}
	}()
	res, err := s.store.Search(ctx, f.Normalize())
	if err != nil {
		return nil, s.translate(err, "failed to search registry")
	}
	return res, nil
}

// GetHistory returns the ownership history oldest first.
func (s *Service) GetHistory(ctx context.Context, code domain.PetCode) ([]models.HistoryRecord, error) {
	if _, err := s.GetByPetCode(ctx, code); err != nil {
		return nil, err
	}
	history, err := s.store.History(ctx, code)
	if err != nil {
		return nil, s.translate(err, "failed to load ownership history")
	}
	return history, nil
}

func (s *Service) Summary(ctx context.Context, code domain.PetCode) (*models.OwnershipSummary, error) {
	entry, err := s.GetByPetCode(ctx, code)
	if err != nil {
		return nil, err
	}
	history, err := s.store.History(ctx, code)
	if err != nil {
		return nil, s.translate(err, "failed to load ownership history")
	}
	summary := models.Summarize(code, entry.CurrentOwnerID, history)
	return &summary, nil
}

// CodeStatus is the answer to a code lookup from a scanner or form.
type CodeStatus struct {
	Code      string
	Valid     bool
	Canonical bool
	Exists    bool
}

// ValidateCode checks the format of raw and whether it is registered.
func (s *Service) ValidateCode(ctx context.Context, raw string) (*CodeStatus, error) {
	code, err := domain.ParsePetCode(raw)
	if err != nil {
		return &CodeStatus{Code: raw}, nil
	}
	status := &CodeStatus{Code: string(code), Valid: true, Canonical: code.IsCanonical()}
	_, err = s.store.Get(ctx, code)
	switch {
	case err == nil:
		status.Exists = true
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, s.translate(err, "failed to look up pet code")
	}
	return status, nil
}

// RefreshDescriptive re-reads the descriptive cache from every attached
// origin record. The pet's own origin is applied last so it wins per field.
// It never touches owner, location or status.
func (s *Service) RefreshDescriptive(ctx context.Context, code domain.PetCode, actor string) (*models.Entry, error) {
	if s.sources == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "no source adapter configured")
	}
	entry, err := s.GetByPetCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if entry.OriginRefs.For(entry.OriginSource) == "" {
		return nil, dErrors.New(dErrors.CodeConflict, "pet has no reference to its origin record")
	}

	// Fetch outside the transaction; sources may be slow.
	fetched, err := s.sources.FetchAll(ctx, entry.OriginRefs)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncRefreshFailure()
		}
		s.logger.WarnContext(ctx, "descriptive refresh failed",
			"pet_code", code,
			"origin", entry.OriginSource,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, s.translate(err, "source record unavailable")
	}
	var merged models.Descriptive
	for _, origin := range []domain.OriginSource{domain.OriginDirect, domain.OriginShop, domain.OriginAdoption} {
		if desc := fetched[origin]; origin != entry.OriginSource && desc != nil {
			merged = merged.Merge(*desc)
		}
	}
	if own := fetched[entry.OriginSource]; own != nil {
		merged = merged.Merge(*own)
	}

	err = s.tx.RunInTx(ctx, string(code), func(ctx context.Context) error {
		current, err := s.store.GetForUpdate(ctx, code)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		current.Descriptive = current.Descriptive.Merge(merged)
		current.LastSeenAt = now
		current.UpdatedAt = now
		if err := s.store.Update(ctx, current); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return nil, s.translate(err, "failed to refresh pet")
	}
	s.track(ctx, audit.OpsEvent{
		Subject: string(code),
		Action:  audit.EventPetRefreshed,
		ActorID: actor,
		Detail:  "descriptive",
	})
	return entry, nil
}
