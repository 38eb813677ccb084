// Package domain holds the matching engine's entities, the algorithm config
// value object and the lifecycle transition tables. It has no I/O.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Urgency is the requester-declared urgency of a lead.
type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

// Contact is the requester's contact block, revealed to a provider once the
// assignment has been viewed.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Lead is a service request awaiting distribution.
type Lead struct {
	ID          uuid.UUID
	Specialty   string
	City        string
	PostalCode  string
	Department  string
	Latitude    *float64
	Longitude   *float64
	Description string
	Urgency     Urgency
	Status      LeadStatus
	RequesterID uuid.UUID
	Contact     Contact
	CreatedAt   time.Time
}

// HasCoordinates reports whether both latitude and longitude are known.
func (l Lead) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Provider is a tradesperson ("artisan") from the directory. The engine
// only ever writes LastAssignedAt.
type Provider struct {
	ID             uuid.UUID
	Name           string
	Specialty      string
	Category       string
	Department     string
	Latitude       *float64
	Longitude      *float64
	Verified       bool
	Active         bool
	Claimed        bool
	Rating         float64
	ReviewCount    int
	DataQuality    int
	LastActiveAt   *time.Time
	LastAssignedAt *time.Time
}

// HasCoordinates reports whether both latitude and longitude are known.
func (p Provider) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// Assignment links one lead to one provider. Rows are never deleted.
type Assignment struct {
	ID            uuid.UUID
	LeadID        uuid.UUID
	ProviderID    uuid.UUID
	Status        AssignmentStatus
	Score         float64
	DistanceKm    *float64
	Position      int
	DeclineReason *string
	AssignedAt    time.Time
	ViewedAt      *time.Time
	QuotedAt      *time.Time
	TerminalAt    *time.Time
}

// LastActivity is the latest provider-side touch on the assignment.
func (a Assignment) LastActivity() time.Time {
	if a.ViewedAt != nil && a.ViewedAt.After(a.AssignedAt) {
		return *a.ViewedAt
	}
	return a.AssignedAt
}

// Quote is a provider's priced offer on a lead. At most one per (lead, provider).
type Quote struct {
	ID           uuid.UUID
	LeadID       uuid.UUID
	AssignmentID uuid.UUID
	ProviderID   uuid.UUID
	AmountCents  int64
	Description  string
	ValidUntil   time.Time
	Status       QuoteStatus
	CreatedAt    time.Time
	RespondedAt  *time.Time
}

// EventType enumerates the append-only lead event log entries.
type EventType string

const (
	EventCreated    EventType = "created"
	EventDispatched EventType = "dispatched"
	EventViewed     EventType = "viewed"
	EventQuoted     EventType = "quoted"
	EventAccepted   EventType = "accepted"
	EventDeclined   EventType = "declined"
	EventExpired    EventType = "expired"
	EventRefused    EventType = "refused"
	EventCompleted  EventType = "completed"
)

// LeadEvent is one row of the event log.
type LeadEvent struct {
	ID         uuid.UUID
	LeadID     uuid.UUID
	ProviderID *uuid.UUID
	ActorID    *uuid.UUID
	Type       EventType
	Metadata   map[string]any
	CreatedAt  time.Time
}

// NewLeadEvent builds an event with a fresh id.
func NewLeadEvent(leadID uuid.UUID, eventType EventType, at time.Time) LeadEvent {
	return LeadEvent{
		ID:        uuid.New(),
		LeadID:    leadID,
		Type:      eventType,
		Metadata:  map[string]any{},
		CreatedAt: at,
	}
}

// WithProvider sets the provider the event concerns.
func (e LeadEvent) WithProvider(id uuid.UUID) LeadEvent {
	e.ProviderID = &id
	return e
}

// WithActor sets the user who triggered the event.
func (e LeadEvent) WithActor(id uuid.UUID) LeadEvent {
	e.ActorID = &id
	return e
}

// With adds one metadata entry.
func (e LeadEvent) With(key string, value any) LeadEvent {
	meta := make(map[string]any, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta[key] = value
	e.Metadata = meta
	return e
}
