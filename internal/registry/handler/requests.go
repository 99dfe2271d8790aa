package handler

import (
	"net/url"
	"strconv"
	"strings"

	"petregistry/internal/registry/models"
	"petregistry/pkg/domain"
	dErrors "petregistry/pkg/domain-errors"
)

// RegisterRequest is the body of POST /registry/pets.
type RegisterRequest struct {
	PetCode       string        `json:"pet_code" validate:"omitempty,max=20"`
	OriginSource  string        `json:"origin_source" validate:"required,oneof=direct shop adoption"`
	DirectPetID   string        `json:"direct_pet_id" validate:"max=64"`
	ShopItemID    string        `json:"shop_item_id" validate:"max=64"`
	AdoptionPetID string        `json:"adoption_pet_id" validate:"max=64"`
	Name          string        `json:"name" validate:"max=120"`
	SpeciesRef    string        `json:"species_ref" validate:"max=64"`
	BreedRef      string        `json:"breed_ref" validate:"max=64"`
	ImageRefs     []string      `json:"image_refs" validate:"max=20,dive,max=512"`
	InitialState  *StateRequest `json:"initial_state"`

	identity models.Identity
	state    *models.State
}

func (r *RegisterRequest) Validate() error {
	origin, err := domain.ParseOriginSource(r.OriginSource)
	if err != nil {
		return err
	}
	r.identity = models.Identity{
		PetCode:      domain.PetCode(strings.TrimSpace(r.PetCode)),
		OriginSource: origin,
		OriginRefs: models.OriginRefs{
			DirectPetID:   strings.TrimSpace(r.DirectPetID),
			ShopItemID:    strings.TrimSpace(r.ShopItemID),
			AdoptionPetID: strings.TrimSpace(r.AdoptionPetID),
		},
		Descriptive: models.Descriptive{
			Name:       strings.TrimSpace(r.Name),
			SpeciesRef: strings.TrimSpace(r.SpeciesRef),
			BreedRef:   strings.TrimSpace(r.BreedRef),
			ImageRefs:  r.ImageRefs,
		},
	}
	if r.identity.PetCode == "" && r.identity.OriginRefs.Count() == 0 {
		return dErrors.New(dErrors.CodeValidation, "pet_code or an origin reference is required")
	}
	if r.InitialState != nil {
		st, err := r.InitialState.toState(origin, true)
		if err != nil {
			return err
		}
		r.state = st
	}
	return nil
}

// StateRequest moves a pet. NativeStatus is the origin's own status word and
// is mapped to a registry location and status; it cannot be combined with
// explicit location or status.
type StateRequest struct {
	OwnerID      *string `json:"owner_id" validate:"omitempty,max=64"`
	Location     *string `json:"location" validate:"omitempty,max=32"`
	Status       *string `json:"status" validate:"omitempty,max=40"`
	NativeStatus *string `json:"native_status" validate:"omitempty,max=40"`
}

func (r *StateRequest) toState(origin domain.OriginSource, allowOwner bool) (*models.State, error) {
	st := &models.State{}
	if r.OwnerID != nil {
		if !allowOwner {
			return nil, dErrors.New(dErrors.CodeValidation, "owner changes go through the transfer endpoints")
		}
		owner, err := domain.ParseOwnerID(*r.OwnerID)
		if err != nil {
			return nil, err
		}
		st.OwnerID = &owner
	}
	if r.NativeStatus != nil {
		if r.Location != nil || r.Status != nil {
			return nil, dErrors.New(dErrors.CodeValidation, "native_status cannot be combined with location or status")
		}
		p := models.PlacementFor(origin, *r.NativeStatus)
		st.Location = &p.Location
		st.Status = &p.Status
		return st, nil
	}
	if r.Location != nil {
		loc, err := models.ParseLocation(*r.Location)
		if err != nil {
			return nil, err
		}
		st.Location = &loc
	}
	if r.Status != nil {
		status := strings.TrimSpace(*r.Status)
		if status == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "status must not be blank")
		}
		st.Status = &status
	}
	return st, nil
}

// GenerateCodesRequest is the body of POST /admin/codes.
type GenerateCodesRequest struct {
	Count int `json:"count" validate:"required,min=1,max=200"`
}

// parseFilters reads search filters from the query string.
func parseFilters(q url.Values) (models.Filters, error) {
	f := models.Filters{Term: q.Get("q"), Status: q.Get("status")}
	if v := q.Get("location"); v != "" {
		loc, err := models.ParseLocation(v)
		if err != nil {
			return f, err
		}
		f.Location = loc
	}
	if v := q.Get("origin"); v != "" {
		origin, err := domain.ParseOriginSource(v)
		if err != nil {
			return f, err
		}
		f.Origin = origin
	}
	if v := q.Get("owner_id"); v != "" {
		f.OwnerID = domain.OwnerID(v)
	}
	if v := q.Get("include_deceased"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, dErrors.New(dErrors.CodeBadRequest, "include_deceased must be a boolean")
		}
		f.IncludeDeceased = b
	}
	var err error
	if f.Limit, err = intParam(q, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(q, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, name+" must be a non-negative integer")
	}
	return n, nil
}
