package handler

import (
	"time"

	"petregistry/internal/registry/models"
	"petregistry/internal/registry/service"
)

type EntryResponse struct {
	PetCode         string     `json:"pet_code"`
	OriginSource    string     `json:"origin_source"`
	SourceLabel     string     `json:"source_label"`
	DirectPetID     string     `json:"direct_pet_id,omitempty"`
	ShopItemID      string     `json:"shop_item_id,omitempty"`
	AdoptionPetID   string     `json:"adoption_pet_id,omitempty"`
	Name            string     `json:"name"`
	SpeciesRef      string     `json:"species_ref"`
	BreedRef        string     `json:"breed_ref"`
	ImageRefs       []string   `json:"image_refs"`
	CurrentOwnerID  string     `json:"current_owner_id,omitempty"`
	CurrentLocation string     `json:"current_location"`
	CurrentStatus   string     `json:"current_status"`
	LastTransferAt  *time.Time `json:"last_transfer_at,omitempty"`
	IsDeceased      bool       `json:"is_deceased"`
	DeceasedAt      *time.Time `json:"deceased_at,omitempty"`
	DeceasedReason  string     `json:"deceased_reason,omitempty"`
	FirstAddedBy    string     `json:"first_added_by"`
	FirstAddedAt    time.Time  `json:"first_added_at"`
	LastSeenAt      time.Time  `json:"last_seen_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func FromEntry(e *models.Entry) *EntryResponse {
	images := e.Descriptive.ImageRefs
	if images == nil {
		images = []string{}
	}
	return &EntryResponse{
		PetCode:         string(e.PetCode),
		OriginSource:    string(e.OriginSource),
		SourceLabel:     e.SourceLabel(),
		DirectPetID:     e.OriginRefs.DirectPetID,
		ShopItemID:      e.OriginRefs.ShopItemID,
		AdoptionPetID:   e.OriginRefs.AdoptionPetID,
		Name:            e.Descriptive.Name,
		SpeciesRef:      e.Descriptive.SpeciesRef,
		BreedRef:        e.Descriptive.BreedRef,
		ImageRefs:       images,
		CurrentOwnerID:  string(e.CurrentOwnerID),
		CurrentLocation: string(e.CurrentLocation),
		CurrentStatus:   e.CurrentStatus,
		LastTransferAt:  e.LastTransferAt,
		IsDeceased:      e.IsDeceased,
		DeceasedAt:      e.DeceasedAt,
		DeceasedReason:  e.DeceasedReason,
		FirstAddedBy:    e.FirstAddedBy,
		FirstAddedAt:    e.FirstAddedAt,
		LastSeenAt:      e.LastSeenAt,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func fromEntries(entries []*models.Entry) []*EntryResponse {
	out := make([]*EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, FromEntry(e))
	}
	return out
}

type SearchResponse struct {
	Pets   []*EntryResponse `json:"pets"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

type HistoryRecordResponse struct {
	Seq             int        `json:"seq"`
	PreviousOwnerID string     `json:"previous_owner_id,omitempty"`
	NewOwnerID      string     `json:"new_owner_id,omitempty"`
	TransferType    string     `json:"transfer_type"`
	TransferDate    time.Time  `json:"transfer_date"`
	TransferPrice   string     `json:"transfer_price,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	PerformedBy     string     `json:"performed_by"`
	EndDate         *time.Time `json:"end_date,omitempty"`
}

func FromHistoryRecord(r models.HistoryRecord) HistoryRecordResponse {
	return HistoryRecordResponse{
		Seq:             r.Seq,
		PreviousOwnerID: string(r.PreviousOwnerID),
		NewOwnerID:      string(r.NewOwnerID),
		TransferType:    string(r.TransferType),
		TransferDate:    r.TransferDate,
		TransferPrice:   r.TransferPrice,
		Reason:          r.Reason,
		PerformedBy:     r.PerformedBy,
		EndDate:         r.EndDate,
	}
}

type HistoryResponse struct {
	PetCode string                  `json:"pet_code"`
	History []HistoryRecordResponse `json:"history"`
}

type SummaryResponse struct {
	PetCode           string     `json:"pet_code"`
	TotalTransfers    int        `json:"total_transfers"`
	FirstOwnerID      string     `json:"first_owner_id,omitempty"`
	CurrentOwnerID    string     `json:"current_owner_id,omitempty"`
	CurrentOwnerSince *time.Time `json:"current_owner_since,omitempty"`
	DistinctOwners    int        `json:"distinct_owners"`
}

func fromSummary(s *models.OwnershipSummary) *SummaryResponse {
	return &SummaryResponse{
		PetCode:           string(s.PetCode),
		TotalTransfers:    s.TotalTransfers,
		FirstOwnerID:      string(s.FirstOwnerID),
		CurrentOwnerID:    string(s.CurrentOwnerID),
		CurrentOwnerSince: s.CurrentOwnerSince,
		DistinctOwners:    s.DistinctOwners,
	}
}

type CodeStatusResponse struct {
	Code      string `json:"code"`
	Valid     bool   `json:"valid"`
	Canonical bool   `json:"canonical"`
	Exists    bool   `json:"exists"`
}

func fromCodeStatus(s *service.CodeStatus) *CodeStatusResponse {
	return &CodeStatusResponse{Code: s.Code, Valid: s.Valid, Canonical: s.Canonical, Exists: s.Exists}
}

type GenerateCodesResponse struct {
	Codes []string `json:"codes"`
}
