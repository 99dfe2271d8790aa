package models

import (
	"time"

	"petregistry/pkg/domain"
	dErrors "petregistry/pkg/domain-errors"
)

type TransferType string

const (
	TransferPurchase TransferType = "purchase"
	TransferAdoption TransferType = "adoption"
	TransferManual   TransferType = "manual"
	TransferDeath    TransferType = "death"
)

func ParseTransferType(s string) (TransferType, error) {
	switch t := TransferType(s); t {
	case TransferPurchase, TransferAdoption, TransferManual, TransferDeath:
		return t, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown transfer type: "+s)
}

// HistoryRecord is one ownership change. Records are append-only; the only
// permitted mutation is closing EndDate when the next record is appended.
type HistoryRecord struct {
	ID              string
	PetCode         domain.PetCode
	Seq             int
	PreviousOwnerID domain.OwnerID
	NewOwnerID      domain.OwnerID
	TransferType    TransferType
	TransferDate    time.Time
	TransferPrice   string
	Reason          string
	PerformedBy     string
	EndDate         *time.Time
	IdempotencyKey  string
}

// OwnershipSummary condenses a pet's history.
type OwnershipSummary struct {
	PetCode           domain.PetCode
	TotalTransfers    int
	FirstOwnerID      domain.OwnerID
	CurrentOwnerID    domain.OwnerID
	CurrentOwnerSince *time.Time
	DistinctOwners    int
}

// Summarize builds the summary from chronologically ordered history. An owner
// set at registration appears only as the first record's previous owner.
func Summarize(code domain.PetCode, current domain.OwnerID, history []HistoryRecord) OwnershipSummary {
	s := OwnershipSummary{
		PetCode:        code,
		TotalTransfers: len(history),
		CurrentOwnerID: current,
	}
	owners := map[domain.OwnerID]bool{}
	if len(history) > 0 && !history[0].PreviousOwnerID.IsZero() {
		s.FirstOwnerID = history[0].PreviousOwnerID
		owners[s.FirstOwnerID] = true
	}
	for i := range history {
		rec := history[i]
		if rec.NewOwnerID.IsZero() {
			continue
		}
		if s.FirstOwnerID.IsZero() {
			s.FirstOwnerID = rec.NewOwnerID
		}
		owners[rec.NewOwnerID] = true
	}
	if len(history) == 0 && !current.IsZero() {
		s.FirstOwnerID = current
		owners[current] = true
	}
	s.DistinctOwners = len(owners)
	if n := len(history); n > 0 && history[n-1].NewOwnerID == current && !current.IsZero() {
		since := history[n-1].TransferDate
		s.CurrentOwnerSince = &since
	}
	return s
}
