// Package transport holds the request and response bodies of the matching API.
package transport

import (
	"time"

	"lead_distribution_backend/internal/matching/domain"

	"github.com/google/uuid"
)

// ListAssignmentsQuery filters the artisan console listing.
// Status is a comma-separated list of assignment statuses. Limit is
// clamped by the service.
type ListAssignmentsQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit" validate:"min=0"`
}

// SubmitQuoteRequest is the body of POST /artisan/assignments/:id/quote.
type SubmitQuoteRequest struct {
	AmountCents int64  `json:"amountCents" validate:"required,gt=0"`
	Description string `json:"description" validate:"max=2000"`
	ValidDays   int    `json:"validDays" validate:"omitempty,min=1,max=365"`
}

// DeclineRequest is the body of POST /artisan/assignments/:id/decline.
type DeclineRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// FunnelQuery filters GET /admin/funnel. Timestamps are RFC 3339; to is exclusive.
type FunnelQuery struct {
	From       string `form:"from" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To         string `form:"to" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	ProviderID string `form:"providerId" validate:"omitempty,uuid"`
	Specialty  string `form:"specialty" validate:"max=100"`
}

// UpdateAlgorithmConfigRequest is a partial config update guarded by the
// version the admin last read.
type UpdateAlgorithmConfigRequest struct {
	ExpectedVersion int64 `json:"expectedVersion" validate:"required,min=1"`
	domain.AlgorithmConfigPatch
}

// ContactResponse is the requester contact block.
type ContactResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// LeadSummary is the lead as shown to an assigned artisan.
type LeadSummary struct {
	ID          uuid.UUID        `json:"id"`
	Specialty   string           `json:"specialty"`
	City        string           `json:"city"`
	PostalCode  string           `json:"postalCode"`
	Department  string           `json:"department"`
	Description string           `json:"description"`
	Urgency     string           `json:"urgency"`
	Status      string           `json:"status"`
	CreatedAt   time.Time        `json:"createdAt"`
	Contact     *ContactResponse `json:"contact,omitempty"`
}

// QuoteResponse is a quote as returned to artisans and requesters.
type QuoteResponse struct {
	ID           uuid.UUID  `json:"id"`
	LeadID       uuid.UUID  `json:"leadId"`
	AssignmentID uuid.UUID  `json:"assignmentId"`
	ProviderID   uuid.UUID  `json:"providerId"`
	AmountCents  int64      `json:"amountCents"`
	Description  string     `json:"description"`
	ValidUntil   time.Time  `json:"validUntil"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	RespondedAt  *time.Time `json:"respondedAt,omitempty"`
}

// AssignmentResponse is one assignment in the artisan console.
type AssignmentResponse struct {
	ID            uuid.UUID      `json:"id"`
	LeadID        uuid.UUID      `json:"leadId"`
	Status        string         `json:"status"`
	Score         float64        `json:"score"`
	DistanceKm    *float64       `json:"distanceKm,omitempty"`
	Position      int            `json:"position"`
	DeclineReason *string        `json:"declineReason,omitempty"`
	AssignedAt    time.Time      `json:"assignedAt"`
	ViewedAt      *time.Time     `json:"viewedAt,omitempty"`
	QuotedAt      *time.Time     `json:"quotedAt,omitempty"`
	TerminalAt    *time.Time     `json:"terminalAt,omitempty"`
	Lead          *LeadSummary   `json:"lead,omitempty"`
	Quote         *QuoteResponse `json:"quote,omitempty"`
}

// ActionResponse wraps the result of an artisan action.
type ActionResponse struct {
	Assignment AssignmentResponse `json:"assignment"`
	Quote      *QuoteResponse     `json:"quote,omitempty"`
	NoOp       bool               `json:"noop"`
}

// ListAssignmentsResponse is the artisan console listing.
type ListAssignmentsResponse struct {
	Items []AssignmentResponse `json:"items"`
}

// QuoteDecisionResponse is returned by accept and refuse.
type QuoteDecisionResponse struct {
	Quote             QuoteResponse `json:"quote"`
	ClosedAssignments int           `json:"closedAssignments"`
	RefusedQuotes     int           `json:"refusedQuotes"`
	NoOp              bool          `json:"noop"`
}

// LeadStatusResponse is returned by lead-level requester actions.
type LeadStatusResponse struct {
	LeadID uuid.UUID `json:"leadId"`
	Status string    `json:"status"`
	NoOp   bool      `json:"noop"`
}

// JobAcceptedResponse reports that background work was enqueued.
type JobAcceptedResponse struct {
	Job    string     `json:"job"`
	LeadID *uuid.UUID `json:"leadId,omitempty"`
}

// ToQuoteResponse maps a domain quote.
func ToQuoteResponse(q domain.Quote) QuoteResponse {
	return QuoteResponse{
		ID:           q.ID,
		LeadID:       q.LeadID,
		AssignmentID: q.AssignmentID,
		ProviderID:   q.ProviderID,
		AmountCents:  q.AmountCents,
		Description:  q.Description,
		ValidUntil:   q.ValidUntil,
		Status:       string(q.Status),
		CreatedAt:    q.CreatedAt,
		RespondedAt:  q.RespondedAt,
	}
}

func toQuotePtr(q *domain.Quote) *QuoteResponse {
	if q == nil {
		return nil
	}
	resp := ToQuoteResponse(*q)
	return &resp
}

// ToAssignmentResponse maps a bare assignment.
func ToAssignmentResponse(a domain.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:            a.ID,
		LeadID:        a.LeadID,
		Status:        string(a.Status),
		Score:         a.Score,
		DistanceKm:    a.DistanceKm,
		Position:      a.Position,
		DeclineReason: a.DeclineReason,
		AssignedAt:    a.AssignedAt,
		ViewedAt:      a.ViewedAt,
		QuotedAt:      a.QuotedAt,
		TerminalAt:    a.TerminalAt,
	}
}

// ToProviderAssignmentResponse maps a console row. The contact block is
// included only when the service left it populated.
func ToProviderAssignmentResponse(pa domain.ProviderAssignment) AssignmentResponse {
	resp := ToAssignmentResponse(pa.Assignment)
	lead := LeadSummary{
		ID:          pa.Lead.ID,
		Specialty:   pa.Lead.Specialty,
		City:        pa.Lead.City,
		PostalCode:  pa.Lead.PostalCode,
		Department:  pa.Lead.Department,
		Description: pa.Lead.Description,
		Urgency:     string(pa.Lead.Urgency),
		Status:      string(pa.Lead.Status),
		CreatedAt:   pa.Lead.CreatedAt,
	}
	if c := pa.Lead.Contact; c != (domain.Contact{}) {
		lead.Contact = &ContactResponse{Name: c.Name, Email: c.Email, Phone: c.Phone}
	}
	resp.Lead = &lead
	resp.Quote = toQuotePtr(pa.Quote)
	return resp
}

// ToActionResponse maps the result of a provider action.
func ToActionResponse(a domain.Assignment, q *domain.Quote, noop bool) ActionResponse {
	return ActionResponse{
		Assignment: ToAssignmentResponse(a),
		Quote:      toQuotePtr(q),
		NoOp:       noop,
	}
}
