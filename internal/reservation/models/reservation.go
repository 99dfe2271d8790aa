package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"petregistry/pkg/domain"
	dErrors "petregistry/pkg/domain-errors"
	"petregistry/pkg/platform/sentinel"
)

// ErrCodeTaken reports a new reservation whose code is already stored. It
// matches sentinel.ErrConflict.
var ErrCodeTaken = fmt.Errorf("reservation code taken: %w", sentinel.ErrConflict)

// Status is a reservation lifecycle state.
type Status string

const (
	StatusPending          Status = "pending"
	StatusManagerReview    Status = "manager_review"
	StatusApproved         Status = "approved"
	StatusPaymentPending   Status = "payment_pending"
	StatusPaid             Status = "paid"
	StatusReadyForHandover Status = "ready_for_handover"
	StatusHandedOver       Status = "handed_over"
	StatusRejected         Status = "rejected"
	StatusCancelled        Status = "cancelled"
)

// transitions lists the allowed targets per state. rejected and cancelled
// are reachable from every non-terminal state.
var transitions = map[Status][]Status{
	StatusPending:          {StatusManagerReview, StatusApproved},
	StatusManagerReview:    {StatusApproved},
	StatusApproved:         {StatusPaymentPending},
	StatusPaymentPending:   {StatusPaid},
	StatusPaid:             {StatusReadyForHandover},
	StatusReadyForHandover: {StatusHandedOver},
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := transitions[st]; ok || st.IsTerminal() {
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown reservation status: "+s)
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusHandedOver || s == StatusRejected || s == StatusCancelled
}

// CanTransitionTo reports whether (s, to) is in the transition table.
func (s Status) CanTransitionTo(to Status) bool {
	if s.IsTerminal() {
		return false
	}
	if to == StatusRejected || to == StatusCancelled {
		return true
	}
	return slices.Contains(transitions[s], to)
}

// IsGated reports whether to is only reachable through the handover
// protocol and never through a plain transition.
func (s Status) IsGated() bool {
	return s == StatusReadyForHandover || s == StatusHandedOver
}

// TimelineEntry is one append-only record of a status change.
type TimelineEntry struct {
	Status Status
	At     time.Time
	Actor  string
	Note   string
}

// Reservation is a customer's claim on one pet.
//
// Invariants:
//   - Code is unique and never changes
//   - at most one non-terminal reservation exists per PetCode
//   - ExpiresAt is set only while Status is pending
//   - Timeline grows by exactly one entry per transition, starting with pending
type Reservation struct {
	ID               domain.ReservationID
	Code             domain.ReservationCode
	PetCode          domain.PetCode
	ItemID           string
	RequesterID      domain.OwnerID
	Status           Status
	ExpiresAt        *time.Time
	ScheduledAt      *time.Time
	HandoverLocation string
	// PriorPetStatus is the registry status the pet had before it was
	// reserved; rejecting or cancelling puts it back.
	PriorPetStatus string
	Timeline       []TimelineEntry
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewReservation(code domain.ReservationCode, pet domain.PetCode, itemID string, requester domain.OwnerID, ttl time.Duration, now time.Time) *Reservation {
	expires := now.Add(ttl)
	return &Reservation{
		ID:          domain.NewReservationID(),
		Code:        code,
		PetCode:     pet,
		ItemID:      itemID,
		RequesterID: requester,
		Status:      StatusPending,
		ExpiresAt:   &expires,
		Timeline:    []TimelineEntry{{Status: StatusPending, At: now, Actor: string(requester)}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsExpired reports whether a pending reservation has passed its deadline.
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.Status == StatusPending && r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// CanTransition validates a move to target. An expired pending reservation
// may only be cancelled.
func (r *Reservation) CanTransition(target Status, now time.Time) error {
	if !r.Status.CanTransitionTo(target) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			"cannot move reservation from "+string(r.Status)+" to "+string(target))
	}
	if target != StatusCancelled && r.IsExpired(now) {
		return dErrors.New(dErrors.CodeExpired, "reservation expired while pending")
	}
	return nil
}

// ApplyTransition moves to target and returns the timeline entry to append.
// Call CanTransition first.
func (r *Reservation) ApplyTransition(target Status, actor, note string, now time.Time) TimelineEntry {
	entry := TimelineEntry{Status: target, At: now, Actor: actor, Note: note}
	r.Status = target
	r.ExpiresAt = nil
	r.UpdatedAt = now
	r.Timeline = append(r.Timeline, entry)
	return entry
}

func (r *Reservation) Clone() *Reservation {
	if r == nil {
		return nil
	}
	c := *r
	c.Timeline = slices.Clone(r.Timeline)
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	if r.ScheduledAt != nil {
		t := *r.ScheduledAt
		c.ScheduledAt = &t
	}
	return &c
}

// Filter narrows ListReservations. Zero values mean "any".
type Filter struct {
	RequesterID domain.OwnerID
	PetCode     domain.PetCode
	Status      Status
	Limit       int
	Offset      int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func (f Filter) Match(r *Reservation) bool {
	if f.RequesterID != "" && r.RequesterID != f.RequesterID {
		return false
	}
	if f.PetCode != "" && r.PetCode != f.PetCode {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}
