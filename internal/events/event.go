// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"lead_distribution_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Dispatch Events
// =============================================================================

// LeadDispatched is published after a dispatch run committed at least one assignment.
type LeadDispatched struct {
	BaseEvent
	LeadID        uuid.UUID   `json:"leadId"`
	Strategy      string      `json:"strategy"`
	AssignmentIDs []uuid.UUID `json:"assignmentIds"`
	ProviderIDs   []uuid.UUID `json:"providerIds"`
}

func (e LeadDispatched) EventName() string { return "matching.lead.dispatched" }

// LeadUnserved is published when the sweeper closes a lead nobody can take.
type LeadUnserved struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	Status string    `json:"status"`
}

func (e LeadUnserved) EventName() string { return "matching.lead.unserved" }

// AssignmentsExpired is published once per sweep that expired assignments or quotes.
type AssignmentsExpired struct {
	BaseEvent
	Assignments int `json:"assignments"`
	Quotes      int `json:"quotes"`
}

func (e AssignmentsExpired) EventName() string { return "matching.assignments.expired" }

// =============================================================================
// Lifecycle Events
// =============================================================================

// AssignmentViewed is published when a provider opens an assignment for the first time.
type AssignmentViewed struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	AssignmentID uuid.UUID `json:"assignmentId"`
	ProviderID   uuid.UUID `json:"providerId"`
}

func (e AssignmentViewed) EventName() string { return "matching.assignment.viewed" }

// QuoteSubmitted is published when a provider quotes a lead.
type QuoteSubmitted struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	AssignmentID uuid.UUID `json:"assignmentId"`
	QuoteID      uuid.UUID `json:"quoteId"`
	ProviderID   uuid.UUID `json:"providerId"`
	AmountCents  int64     `json:"amountCents"`
}

func (e QuoteSubmitted) EventName() string { return "matching.quote.submitted" }

// AssignmentDeclined is published when a provider turns a lead down.
type AssignmentDeclined struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	AssignmentID uuid.UUID `json:"assignmentId"`
	ProviderID   uuid.UUID `json:"providerId"`
	Reason       string    `json:"reason,omitempty"`
}

func (e AssignmentDeclined) EventName() string { return "matching.assignment.declined" }

// QuoteAccepted is published after the accept cascade committed.
type QuoteAccepted struct {
	BaseEvent
	LeadID            uuid.UUID `json:"leadId"`
	QuoteID           uuid.UUID `json:"quoteId"`
	ProviderID        uuid.UUID `json:"providerId"`
	RequesterID       uuid.UUID `json:"requesterId"`
	ClosedAssignments int       `json:"closedAssignments"`
	RefusedQuotes     int       `json:"refusedQuotes"`
}

func (e QuoteAccepted) EventName() string { return "matching.quote.accepted" }

// QuoteRefused is published when the requester refuses one quote.
type QuoteRefused struct {
	BaseEvent
	LeadID      uuid.UUID `json:"leadId"`
	QuoteID     uuid.UUID `json:"quoteId"`
	ProviderID  uuid.UUID `json:"providerId"`
	RequesterID uuid.UUID `json:"requesterId"`
}

func (e QuoteRefused) EventName() string { return "matching.quote.refused" }

// LeadCompleted is published when the requester marks the job done.
type LeadCompleted struct {
	BaseEvent
	LeadID      uuid.UUID `json:"leadId"`
	RequesterID uuid.UUID `json:"requesterId"`
}

func (e LeadCompleted) EventName() string { return "matching.lead.completed" }

// =============================================================================
// Config Events
// =============================================================================

// AlgorithmConfigUpdated is published after an admin saved a new config version.
type AlgorithmConfigUpdated struct {
	BaseEvent
	Version   int64     `json:"version"`
	UpdatedBy uuid.UUID `json:"updatedBy"`
}

func (e AlgorithmConfigUpdated) EventName() string { return "matching.config.updated" }

// Names lists every event this package defines, for subscribers that log them all.
var Names = []string{
	LeadDispatched{}.EventName(),
	LeadUnserved{}.EventName(),
	AssignmentsExpired{}.EventName(),
	AssignmentViewed{}.EventName(),
	QuoteSubmitted{}.EventName(),
	AssignmentDeclined{}.EventName(),
	QuoteAccepted{}.EventName(),
	QuoteRefused{}.EventName(),
	LeadCompleted{}.EventName(),
	AlgorithmConfigUpdated{}.EventName(),
}
