package models

import (
	"slices"
	"strings"
	"time"

	"petregistry/pkg/domain"
)

// Entry is the registry row for one animal, keyed by PetCode.
type Entry struct {
	PetCode         domain.PetCode
	OriginSource    domain.OriginSource
	OriginRefs      OriginRefs
	Descriptive     Descriptive
	CurrentOwnerID  domain.OwnerID
	CurrentLocation Location
	CurrentStatus   string
	LastTransferAt  *time.Time
	IsDeceased      bool
	DeceasedAt      *time.Time
	DeceasedReason  string
	FirstAddedBy    string
	FirstAddedAt    time.Time
	LastSeenAt      time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SourceLabel is the staff-facing name of the origin subsystem.
func (e *Entry) SourceLabel() string {
	return e.OriginSource.Label()
}

// IsOwnedBy reports whether owner currently holds the pet.
func (e *Entry) IsOwnedBy(owner domain.OwnerID) bool {
	return !owner.IsZero() && e.CurrentOwnerID == owner
}

// CanBeReserved reports whether a reservation may be opened for this pet.
func (e *Entry) CanBeReserved() bool {
	return !e.IsDeceased
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Descriptive.ImageRefs = slices.Clone(e.Descriptive.ImageRefs)
	if e.LastTransferAt != nil {
		t := *e.LastTransferAt
		c.LastTransferAt = &t
	}
	if e.DeceasedAt != nil {
		t := *e.DeceasedAt
		c.DeceasedAt = &t
	}
	return &c
}

// OriginRefs points back at the source records. Sparse: only the refs the
// registry has seen are set.
type OriginRefs struct {
	DirectPetID   string
	ShopItemID    string
	AdoptionPetID string
}

// For returns the ref belonging to origin.
func (r OriginRefs) For(origin domain.OriginSource) string {
	switch origin {
	case domain.OriginDirect:
		return r.DirectPetID
	case domain.OriginShop:
		return r.ShopItemID
	case domain.OriginAdoption:
		return r.AdoptionPetID
	}
	return ""
}

// Count returns how many refs are set.
func (r OriginRefs) Count() int {
	n := 0
	for _, v := range []string{r.DirectPetID, r.ShopItemID, r.AdoptionPetID} {
		if v != "" {
			n++
		}
	}
	return n
}

// Merge attaches refs present in other. Refs already set are kept.
func (r OriginRefs) Merge(other OriginRefs) OriginRefs {
	if r.DirectPetID == "" {
		r.DirectPetID = other.DirectPetID
	}
	if r.ShopItemID == "" {
		r.ShopItemID = other.ShopItemID
	}
	if r.AdoptionPetID == "" {
		r.AdoptionPetID = other.AdoptionPetID
	}
	return r
}

// Descriptive is a cache of source data, never the source of truth.
type Descriptive struct {
	Name       string
	SpeciesRef string
	BreedRef   string
	ImageRefs  []string
}

// Merge overlays the non-empty fields of other (last write wins per field).
func (d Descriptive) Merge(other Descriptive) Descriptive {
	if other.Name != "" {
		d.Name = other.Name
	}
	if other.SpeciesRef != "" {
		d.SpeciesRef = other.SpeciesRef
	}
	if other.BreedRef != "" {
		d.BreedRef = other.BreedRef
	}
	if other.ImageRefs != nil {
		d.ImageRefs = slices.Clone(other.ImageRefs)
	}
	return d
}

// Matches reports whether term occurs in any searchable descriptive field.
func (d Descriptive) Matches(term string) bool {
	term = strings.ToLower(term)
	for _, v := range []string{d.Name, d.SpeciesRef, d.BreedRef} {
		if strings.Contains(strings.ToLower(v), term) {
			return true
		}
	}
	return false
}

// Identity is the input to registration: who the animal is and where it came from.
type Identity struct {
	PetCode      domain.PetCode // empty: look up by origin ref, else mint
	OriginSource domain.OriginSource
	OriginRefs   OriginRefs
	Descriptive  Descriptive
	AddedBy      string
}

// State is a partial update to owner/location/status. Nil fields are left
// untouched. A non-nil OwnerID that differs from the current owner is an
// ownership change and requires Transfer.
type State struct {
	OwnerID        *domain.OwnerID
	Location       *Location
	Status         *string
	LastTransferAt *time.Time
	Deceased       *Deceased
	Transfer       *TransferDetails
}

// IsEmpty reports whether the update touches nothing.
func (s *State) IsEmpty() bool {
	return s == nil || (s.OwnerID == nil && s.Location == nil && s.Status == nil &&
		s.LastTransferAt == nil && s.Deceased == nil)
}

// Deceased records a death.
type Deceased struct {
	At     time.Time
	Reason string
}

// TransferDetails describes an ownership change for the history record.
type TransferDetails struct {
	Type           TransferType
	Price          string
	Reason         string
	IdempotencyKey string
}

// Filters narrows Search. Zero values mean "any".
type Filters struct {
	Term            string
	Location        Location
	Status          string
	Origin          domain.OriginSource
	OwnerID         domain.OwnerID
	IncludeDeceased bool
	Limit           int
	Offset          int
}

const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 200
)

// Normalize clamps paging.
func (f Filters) Normalize() Filters {
	if f.Limit <= 0 {
		f.Limit = DefaultSearchLimit
	}
	f.Limit = min(f.Limit, MaxSearchLimit)
	f.Offset = max(f.Offset, 0)
	f.Term = strings.TrimSpace(f.Term)
	return f
}

// Match applies the filters to one entry; used by the in-memory store.
func (f Filters) Match(e *Entry) bool {
	if !f.IncludeDeceased && e.IsDeceased {
		return false
	}
	if f.Location != "" && e.CurrentLocation != f.Location {
		return false
	}
	if f.Status != "" && e.CurrentStatus != f.Status {
		return false
	}
	if f.Origin != "" && e.OriginSource != f.Origin {
		return false
	}
	if !f.OwnerID.IsZero() && e.CurrentOwnerID != f.OwnerID {
		return false
	}
	if f.Term != "" {
		code := strings.Contains(string(e.PetCode), strings.ToUpper(f.Term))
		if !code && !e.Descriptive.Matches(f.Term) {
			return false
		}
	}
	return true
}

// SearchResult is one page of entries.
type SearchResult struct {
	Entries []*Entry
	Total   int
}
