package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// Categories route to separate topics and retention policies.
type EventCategory string

const (
	// CategoryCompliance covers ownership facts that must never be lost:
	// transfers, deaths, completed handovers.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers OTP abuse signals for monitoring and forensics.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity; can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is the transport-agnostic audit record stores persist.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	// Subject is the pet code or reservation code the event is about.
	Subject   string
	Action    string
	ActorID   string
	OwnerID   string
	Reason    string
	Detail    string
	Severity  Severity
	RequestID string
	ClientIP  string
	UserAgent string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

type AuditEvent string

const (
	// Registry events
	EventPetRegistered        AuditEvent = "pet_registered"
	EventPetRefreshed         AuditEvent = "pet_refreshed"
	EventOwnershipTransferred AuditEvent = "ownership_transferred"
	EventPetDeceased          AuditEvent = "pet_deceased"

	// Reservation events
	EventReservationCreated      AuditEvent = "reservation_created"
	EventReservationTransitioned AuditEvent = "reservation_transitioned"
	EventReservationExpired      AuditEvent = "reservation_expired"

	// Handover events
	EventHandoverScheduled AuditEvent = "handover_scheduled"
	EventHandoverCompleted AuditEvent = "handover_completed"
	EventOTPIssued         AuditEvent = "otp_issued"
	EventOTPFailed         AuditEvent = "otp_failed"
	EventHandoverLocked    AuditEvent = "handover_locked"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventOwnershipTransferred: CategoryCompliance,
	EventPetDeceased:          CategoryCompliance,
	EventHandoverCompleted:    CategoryCompliance,

	EventOTPFailed:      CategorySecurity,
	EventHandoverLocked: CategorySecurity,

	EventPetRegistered:           CategoryOperations,
	EventPetRefreshed:            CategoryOperations,
	EventReservationCreated:      CategoryOperations,
	EventReservationTransitioned: CategoryOperations,
	EventReservationExpired:      CategoryOperations,
	EventHandoverScheduled:       CategoryOperations,
	EventOTPIssued:               CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// ComplianceEvent captures ownership facts requiring guaranteed persistence.
// Use with the compliance publisher for fail-closed semantics.
type ComplianceEvent struct {
	Timestamp time.Time
	PetCode   string // required
	Action    AuditEvent
	ActorID   string // required
	OwnerID   string // new owner, empty for death
	Reason    string
	Detail    string // transfer type, reservation code
	RequestID string
}

// ToEvent converts to the stored Event shape.
func (e ComplianceEvent) ToEvent() Event {
	return Event{
		Category:  CategoryCompliance,
		Timestamp: e.Timestamp,
		Subject:   e.PetCode,
		Action:    string(e.Action),
		ActorID:   e.ActorID,
		OwnerID:   e.OwnerID,
		Reason:    e.Reason,
		Detail:    e.Detail,
		RequestID: e.RequestID,
	}
}

// SecurityEvent captures OTP abuse signals.
// Events are buffered and flushed asynchronously.
type SecurityEvent struct {
	Timestamp time.Time
	Subject   string // reservation code
	Action    AuditEvent
	Reason    string
	ActorID   string
	IP        string
	UserAgent string
	RequestID string
	Severity  Severity
}

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ToEvent converts to the stored Event shape.
func (e SecurityEvent) ToEvent() Event {
	return Event{
		Category:  CategorySecurity,
		Timestamp: e.Timestamp,
		Subject:   e.Subject,
		Action:    string(e.Action),
		ActorID:   e.ActorID,
		Reason:    e.Reason,
		Severity:  e.Severity,
		RequestID: e.RequestID,
		ClientIP:  e.IP,
		UserAgent: e.UserAgent,
	}
}

// OpsEvent captures routine activity with minimal overhead.
type OpsEvent struct {
	Timestamp time.Time
	Subject   string
	Action    AuditEvent
	ActorID   string
	Detail    string
	RequestID string
}

// ToEvent converts to the stored Event shape.
func (e OpsEvent) ToEvent() Event {
	return Event{
		Category:  CategoryOperations,
		Timestamp: e.Timestamp,
		Subject:   e.Subject,
		Action:    string(e.Action),
		ActorID:   e.ActorID,
		Detail:    e.Detail,
		RequestID: e.RequestID,
	}
}
