package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProviderFilter is the coarse directory pre-filter. The full eligibility
// predicate runs in the selector.
type ProviderFilter struct {
	MinRating float64
}

// ProviderAssignment is an assignment with the lead and quote a provider
// console needs to render it.
type ProviderAssignment struct {
	Assignment Assignment
	Lead       Lead
	Quote      *Quote
}

// AssignmentListFilter narrows a provider's assignment listing.
type AssignmentListFilter struct {
	Statuses []AssignmentStatus
	Limit    int
}

// FunnelFilter narrows the event log for funnel reporting. Zero values
// disable a criterion; To is exclusive.
type FunnelFilter struct {
	From       *time.Time
	To         *time.Time
	ProviderID *uuid.UUID
	Specialty  string
}

// Tx is the unit-of-work the dispatch and lifecycle code runs inside.
// Lock* methods take row locks held until the transaction ends. Callers
// lock the lead before any provider, assignment or quote of that lead.
type Tx interface {
	LockLead(ctx context.Context, leadID uuid.UUID) (Lead, error)
	LockProvider(ctx context.Context, providerID uuid.UUID) (Provider, error)
	LockAssignment(ctx context.Context, assignmentID uuid.UUID) (Assignment, error)
	LockQuote(ctx context.Context, quoteID uuid.UUID) (Quote, error)

	ListLeadAssignments(ctx context.Context, leadID uuid.UUID) ([]Assignment, error)
	ListLeadQuotes(ctx context.Context, leadID uuid.UUID) ([]Quote, error)
	FindQuoteByAssignment(ctx context.Context, assignmentID uuid.UUID) (*Quote, error)
	CountProviderAssignmentsSince(ctx context.Context, providerID uuid.UUID, since time.Time) (int, error)

	// InsertAssignment returns false when (lead, provider) already exists.
	InsertAssignment(ctx context.Context, a Assignment) (bool, error)
	UpdateAssignment(ctx context.Context, a Assignment) error
	// InsertQuote returns an apperr conflict when the provider already quoted the lead.
	InsertQuote(ctx context.Context, q Quote) error
	UpdateQuote(ctx context.Context, q Quote) error
	UpdateLeadStatus(ctx context.Context, leadID uuid.UUID, status LeadStatus, at time.Time) error
	TouchProviderAssigned(ctx context.Context, providerID uuid.UUID, at time.Time) error
	AppendEvent(ctx context.Context, e LeadEvent) error

	// ExpireAssignments moves pending/viewed assignments assigned before
	// cutoff to expired and returns the rows it changed.
	ExpireAssignments(ctx context.Context, cutoff, at time.Time, limit int) ([]Assignment, error)
	// ExpireQuotes moves pending quotes created before cutoff to expired.
	ExpireQuotes(ctx context.Context, cutoff, at time.Time, limit int) ([]Quote, error)
}

// Store is the persistence port shared by the Postgres repository and the
// in-memory store.
type Store interface {
	// InTx runs fn in one atomic unit. A non-nil error from fn rolls back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetLead(ctx context.Context, leadID uuid.UUID) (Lead, error)
	GetAssignment(ctx context.Context, assignmentID uuid.UUID) (Assignment, error)
	GetQuote(ctx context.Context, quoteID uuid.UUID) (Quote, error)
	ListLeadAssignments(ctx context.Context, leadID uuid.UUID) ([]Assignment, error)
	ListProviders(ctx context.Context, filter ProviderFilter) ([]Provider, error)
	ListProviderAssignments(ctx context.Context, providerID uuid.UUID, filter AssignmentListFilter) ([]ProviderAssignment, error)

	// ListStaleLeads returns open leads not past viewed whose latest
	// assignment activity is before cutoff, plus created leads without any
	// assignment.
	ListStaleLeads(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)

	// CountFunnel returns distinct lead counts per event type.
	CountFunnel(ctx context.Context, filter FunnelFilter) (map[EventType]int, error)
}

// ConfigRepository persists the singleton algorithm config.
type ConfigRepository interface {
	// LoadAlgorithmConfig returns found=false when no row exists yet.
	LoadAlgorithmConfig(ctx context.Context) (cfg AlgorithmConfig, found bool, err error)
	// SeedAlgorithmConfig inserts cfg unless a row already exists and returns the stored row.
	SeedAlgorithmConfig(ctx context.Context, cfg AlgorithmConfig) (AlgorithmConfig, error)
	// SaveAlgorithmConfig replaces the row when its version equals
	// expectedVersion, bumping the version. Mismatch is an apperr conflict.
	SaveAlgorithmConfig(ctx context.Context, cfg AlgorithmConfig, expectedVersion int64) (AlgorithmConfig, error)
}
