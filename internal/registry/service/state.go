package service

import (
	"context"
	"errors"
	"time"

	"petregistry/internal/registry/models"
	"petregistry/pkg/domain"
	dErrors "petregistry/pkg/domain-errors"
	"petregistry/pkg/platform/sentinel"
	"petregistry/pkg/requestcontext"
)

// UpdateResult is the outcome of a state change.
type UpdateResult struct {
	Entry *models.Entry
	// History is the appended record, or the earlier record on a replay.
	// Nil when the owner did not change.
	History  *models.HistoryRecord
	Replayed bool
}

// UpdateState applies the supplied fields of state in its own transaction.
func (s *Service) UpdateState(ctx context.Context, code domain.PetCode, state models.State, actor string) (*UpdateResult, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveUpdate(start)
		}
	}()
	if state.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "no state fields supplied")
	}

	var res *UpdateResult
	err := s.tx.RunInTx(ctx, string(code), func(ctx context.Context) error {
		var err error
		res, err = s.ApplyState(ctx, code, state, actor)
		return err
	})
	if err != nil {
		return nil, s.translate(err, "failed to update pet state")
	}
	return res, nil
}

// ApplyState is UpdateState for callers already inside RunInTx keyed on
// code. It is the only path that appends ownership history. A transfer
// whose idempotency key was already recorded for the pet is a no-op.
func (s *Service) ApplyState(ctx context.Context, code domain.PetCode, state models.State, actor string) (*UpdateResult, error) {
	entry, err := s.store.GetForUpdate(ctx, code)
	if err != nil {
		return nil, s.translate(err, "failed to load pet")
	}

	if state.Transfer != nil && state.Transfer.IdempotencyKey != "" {
		prior, err := s.store.FindHistoryByKey(ctx, code, state.Transfer.IdempotencyKey)
		switch {
		case err == nil:
			return &UpdateResult{Entry: entry, History: prior, Replayed: true}, nil
		case !errors.Is(err, sentinel.ErrNotFound):
			return nil, s.translate(err, "failed to check transfer idempotency")
		}
	}

	now := requestcontext.Now(ctx)
	rec, err := apply(entry, state, actor, now)
	if err != nil {
		return nil, err
	}
	entry.LastSeenAt = now
	entry.UpdatedAt = now
	if err := s.persist(ctx, entry, rec); err != nil {
		return nil, s.translate(err, "failed to persist pet state")
	}
	if rec != nil && s.metrics != nil {
		s.metrics.IncOwnershipChange()
	}
	return &UpdateResult{Entry: entry, History: rec}, nil
}

func (s *Service) persist(ctx context.Context, entry *models.Entry, rec *models.HistoryRecord) error {
	if err := s.store.Update(ctx, entry); err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	return s.store.AppendHistory(ctx, rec)
}

// apply mutates entry with the supplied fields and returns the history
// record to append when the owner changes.
func apply(entry *models.Entry, st models.State, actor string, now time.Time) (*models.HistoryRecord, error) {
	if entry.IsDeceased {
		return nil, dErrors.New(dErrors.CodeConflict, "pet is recorded as deceased")
	}

	var rec *models.HistoryRecord
	if st.OwnerID != nil && *st.OwnerID != entry.CurrentOwnerID {
		if st.Transfer == nil {
			return nil, dErrors.New(dErrors.CodeValidation, "an ownership change requires transfer details")
		}
		rec = &models.HistoryRecord{
			PetCode:         entry.PetCode,
			PreviousOwnerID: entry.CurrentOwnerID,
			NewOwnerID:      *st.OwnerID,
			TransferType:    st.Transfer.Type,
			TransferDate:    now,
			TransferPrice:   st.Transfer.Price,
			Reason:          st.Transfer.Reason,
			PerformedBy:     actor,
			IdempotencyKey:  st.Transfer.IdempotencyKey,
		}
		entry.CurrentOwnerID = *st.OwnerID
		entry.LastTransferAt = &now
	}
	if st.Location != nil {
		entry.CurrentLocation = *st.Location
	}
	if st.Status != nil {
		entry.CurrentStatus = *st.Status
	}
	if st.LastTransferAt != nil {
		t := *st.LastTransferAt
		entry.LastTransferAt = &t
	}
	if st.Deceased != nil {
		at := st.Deceased.At
		if at.IsZero() {
			at = now
		}
		entry.IsDeceased = true
		entry.DeceasedAt = &at
		entry.DeceasedReason = st.Deceased.Reason
	}
	return rec, nil
}
