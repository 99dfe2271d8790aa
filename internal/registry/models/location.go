package models

import (
	"strings"

	"petregistry/pkg/domain"
	dErrors "petregistry/pkg/domain-errors"
)

// Location is where the animal physically is.
type Location string

const (
	LocationAtShop           Location = "at_shop"
	LocationAtAdoptionCenter Location = "at_adoption_center"
	LocationInTransit        Location = "in_transit"
	LocationAtOwner          Location = "at_owner"
	LocationUnknown          Location = "unknown"
	LocationDeceased         Location = "deceased"
)

var validLocations = map[Location]bool{
	LocationAtShop:           true,
	LocationAtAdoptionCenter: true,
	LocationInTransit:        true,
	LocationAtOwner:          true,
	LocationUnknown:          true,
	LocationDeceased:         true,
}

func ParseLocation(s string) (Location, error) {
	l := Location(strings.ToLower(strings.TrimSpace(s)))
	if !validLocations[l] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown location: "+s)
	}
	return l, nil
}

func (l Location) String() string { return string(l) }

// Registry statuses written by the reservation and transfer flows.
const (
	StatusAvailable = "available"
	StatusReserved  = "reserved"
	StatusSold      = "sold"
	StatusAdopted   = "adopted"
	StatusOwned     = "owned"
	StatusDeceased  = "deceased"
)

// Placement is the registry view of a source record's native status.
type Placement struct {
	Location Location
	Status   string
}

type nativeKey struct {
	origin domain.OriginSource
	status string
}

// nativeStatuses maps each origin's own status vocabulary onto registry
// location and status. Keys are lowercase.
var nativeStatuses = map[nativeKey]Placement{
	{domain.OriginShop, "in_petshop"}:         {LocationAtShop, "in_petshop"},
	{domain.OriginShop, "available_for_sale"}: {LocationAtShop, StatusAvailable},
	{domain.OriginShop, "reserved"}:           {LocationAtShop, StatusReserved},
	{domain.OriginShop, "sold"}:               {LocationAtOwner, StatusSold},

	{domain.OriginAdoption, "available"}:       {LocationAtAdoptionCenter, StatusAvailable},
	{domain.OriginAdoption, "reserved"}:        {LocationAtAdoptionCenter, StatusReserved},
	{domain.OriginAdoption, "under treatment"}: {LocationAtAdoptionCenter, "under_treatment"},
	{domain.OriginAdoption, "fostered"}:        {LocationInTransit, "fostered"},
	{domain.OriginAdoption, "adopted"}:         {LocationAtOwner, StatusAdopted},
	{domain.OriginAdoption, "deceased"}:        {LocationDeceased, StatusDeceased},

	{domain.OriginDirect, "owned"}:  {LocationAtOwner, StatusOwned},
	{domain.OriginDirect, "active"}: {LocationAtOwner, StatusOwned},
}

// PlacementFor maps an origin's native status. Unmapped statuses keep their
// normalized text with an unknown location.
func PlacementFor(origin domain.OriginSource, native string) Placement {
	key := nativeKey{origin, strings.ToLower(strings.TrimSpace(native))}
	if p, ok := nativeStatuses[key]; ok {
		return p
	}
	return Placement{Location: LocationUnknown, Status: strings.ReplaceAll(key.status, " ", "_")}
}

// DefaultPlacement is where a freshly registered animal sits when the caller
// supplies no state.
func DefaultPlacement(origin domain.OriginSource) Placement {
	switch origin {
	case domain.OriginShop:
		return Placement{LocationAtShop, StatusAvailable}
	case domain.OriginAdoption:
		return Placement{LocationAtAdoptionCenter, StatusAvailable}
	case domain.OriginDirect:
		return Placement{LocationAtOwner, StatusOwned}
	}
	return Placement{LocationUnknown, ""}
}

// StatusAfterTransfer is the registry status an animal takes when it reaches
// a new owner. Manual transfers between owners always read "owned".
func StatusAfterTransfer(origin domain.OriginSource, t TransferType) string {
	if t == TransferManual {
		return StatusOwned
	}
	switch origin {
	case domain.OriginShop:
		return StatusSold
	case domain.OriginAdoption:
		return StatusAdopted
	}
	return StatusOwned
}
