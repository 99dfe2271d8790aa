package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	dErrors "petregistry/pkg/domain-errors"
)

// PetCode is the durable identity of one animal.
//
// Canonical form is three uppercase letters followed by five digits. Codes
// minted by the collision fallback keep the three-letter prefix followed by
// a base36 timestamp fragment and a random numeric suffix.
type PetCode string

var (
	canonicalPetCode = regexp.MustCompile(`^[A-Z]{3}[0-9]{5}$`)
	fallbackPetCode  = regexp.MustCompile(`^[A-Z]{3}[0-9A-Z]{6,12}[0-9]{3}$`)
)

// ParsePetCode normalizes and validates a pet code from external input.
func ParsePetCode(s string) (PetCode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "pet code is required")
	}
	if !canonicalPetCode.MatchString(s) && !fallbackPetCode.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "pet code must be 3 uppercase letters followed by 5 digits")
	}
	return PetCode(s), nil
}

// IsCanonical reports whether the code uses the short human-legible form.
func (c PetCode) IsCanonical() bool {
	return canonicalPetCode.MatchString(string(c))
}

func (c PetCode) String() string { return string(c) }

// ReservationCode is the human-legible handle printed on reservation
// paperwork: "R", two letters and five digits, or the fallback form.
type ReservationCode string

var (
	canonicalReservationCode = regexp.MustCompile(`^R[A-Z]{2}[0-9]{5}$`)
	fallbackReservationCode  = regexp.MustCompile(`^R[A-Z]{2}[0-9A-Z]{6,12}[0-9]{3}$`)
)

func ParseReservationCode(s string) (ReservationCode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !canonicalReservationCode.MatchString(s) && !fallbackReservationCode.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid reservation code format")
	}
	return ReservationCode(s), nil
}

func (c ReservationCode) String() string { return string(c) }

// ReservationID identifies one reservation.
type ReservationID uuid.UUID

// NewReservationID returns a random reservation id.
func NewReservationID() ReservationID {
	return ReservationID(uuid.New())
}

// ParseReservationID validates a reservation id at a trust boundary.
func ParseReservationID(s string) (ReservationID, error) {
	if s == "" {
		return ReservationID{}, dErrors.New(dErrors.CodeInvalidInput, "reservation id is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return ReservationID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid reservation id format")
	}
	if parsed == uuid.Nil {
		return ReservationID{}, dErrors.New(dErrors.CodeInvalidInput, "reservation id cannot be nil")
	}
	return ReservationID(parsed), nil
}

func (id ReservationID) String() string { return uuid.UUID(id).String() }

func (id ReservationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// OwnerID references a party in the surrounding platform. The registry treats
// it as opaque; the empty value means unowned.
type OwnerID string

// ParseOwnerID rejects blank owner references.
func ParseOwnerID(s string) (OwnerID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "owner id is required")
	}
	if len(s) > 64 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "owner id must be 64 characters or less")
	}
	return OwnerID(s), nil
}

func (o OwnerID) IsZero() bool { return o == "" }

func (o OwnerID) String() string { return string(o) }
