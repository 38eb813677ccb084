package memstore

import (
	"context"
	"sort"
	"time"

	"lead_distribution_backend/internal/matching/domain"
	"lead_distribution_backend/platform/apperr"

	"github.com/google/uuid"
)

// tx operates on the working copy owned by one InTx call. Locks are
// implicit: the store mutex is held for the whole callback.
type tx struct {
	st *state
}

func (t *tx) LockLead(_ context.Context, leadID uuid.UUID) (domain.Lead, error) {
	lead, ok := t.st.leads[leadID]
	if !ok {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, nil
}

func (t *tx) LockProvider(_ context.Context, providerID uuid.UUID) (domain.Provider, error) {
	p, ok := t.st.providers[providerID]
	if !ok {
		return domain.Provider{}, apperr.NotFound("provider not found")
	}
	return p, nil
}

func (t *tx) LockAssignment(_ context.Context, assignmentID uuid.UUID) (domain.Assignment, error) {
	a, ok := t.st.assignments[assignmentID]
	if !ok {
		return domain.Assignment{}, apperr.NotFound("assignment not found")
	}
	return a, nil
}

func (t *tx) LockQuote(_ context.Context, quoteID uuid.UUID) (domain.Quote, error) {
	q, ok := t.st.quotes[quoteID]
	if !ok {
		return domain.Quote{}, apperr.NotFound("quote not found")
	}
	return q, nil
}

func (t *tx) ListLeadAssignments(_ context.Context, leadID uuid.UUID) ([]domain.Assignment, error) {
	return assignmentsForLead(t.st, leadID), nil
}

func (t *tx) ListLeadQuotes(_ context.Context, leadID uuid.UUID) ([]domain.Quote, error) {
	return quotesForLead(t.st, leadID), nil
}

func (t *tx) FindQuoteByAssignment(_ context.Context, assignmentID uuid.UUID) (*domain.Quote, error) {
	for _, q := range t.st.quotes {
		if q.AssignmentID == assignmentID {
			quote := q
			return &quote, nil
		}
	}
	return nil, nil
}

func (t *tx) CountProviderAssignmentsSince(_ context.Context, providerID uuid.UUID, since time.Time) (int, error) {
	n := 0
	for _, a := range t.st.assignments {
		if a.ProviderID == providerID && !a.AssignedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (t *tx) InsertAssignment(_ context.Context, a domain.Assignment) (bool, error) {
	for _, existing := range t.st.assignments {
		if existing.LeadID == a.LeadID && existing.ProviderID == a.ProviderID {
			return false, nil
		}
	}
	t.st.assignments[a.ID] = a
	return true, nil
}

func (t *tx) UpdateAssignment(_ context.Context, a domain.Assignment) error {
	if _, ok := t.st.assignments[a.ID]; !ok {
		return apperr.NotFound("assignment not found")
	}
	t.st.assignments[a.ID] = a
	return nil
}

func (t *tx) InsertQuote(_ context.Context, q domain.Quote) error {
	for _, existing := range t.st.quotes {
		if existing.LeadID == q.LeadID && existing.ProviderID == q.ProviderID {
			return apperr.Conflict("a quote was already submitted for this lead")
		}
	}
	t.st.quotes[q.ID] = q
	return nil
}

func (t *tx) UpdateQuote(_ context.Context, q domain.Quote) error {
	if _, ok := t.st.quotes[q.ID]; !ok {
		return apperr.NotFound("quote not found")
	}
	t.st.quotes[q.ID] = q
	return nil
}

func (t *tx) UpdateLeadStatus(_ context.Context, leadID uuid.UUID, status domain.LeadStatus, _ time.Time) error {
	lead, ok := t.st.leads[leadID]
	if !ok {
		return apperr.NotFound("lead not found")
	}
	lead.Status = status
	t.st.leads[leadID] = lead
	return nil
}

func (t *tx) TouchProviderAssigned(_ context.Context, providerID uuid.UUID, at time.Time) error {
	p, ok := t.st.providers[providerID]
	if !ok {
		return apperr.NotFound("provider not found")
	}
	p.LastAssignedAt = &at
	t.st.providers[providerID] = p
	return nil
}

func (t *tx) AppendEvent(_ context.Context, e domain.LeadEvent) error {
	t.st.events = append(t.st.events, e)
	return nil
}

func (t *tx) ExpireAssignments(_ context.Context, cutoff, at time.Time, limit int) ([]domain.Assignment, error) {
	stale := make([]domain.Assignment, 0)
	for _, a := range t.st.assignments {
		if a.Status.AwaitingResponse() && a.AssignedAt.Before(cutoff) {
			stale = append(stale, a)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].AssignedAt.Before(stale[j].AssignedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	for i := range stale {
		stale[i].Status = domain.AssignmentExpired
		stale[i].TerminalAt = &at
		t.st.assignments[stale[i].ID] = stale[i]
	}
	return stale, nil
}

func (t *tx) ExpireQuotes(_ context.Context, cutoff, at time.Time, limit int) ([]domain.Quote, error) {
	stale := make([]domain.Quote, 0)
	for _, q := range t.st.quotes {
		if q.Status == domain.QuotePending && q.CreatedAt.Before(cutoff) {
			stale = append(stale, q)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	for i := range stale {
		stale[i].Status = domain.QuoteExpired
		stale[i].RespondedAt = &at
		t.st.quotes[stale[i].ID] = stale[i]
	}
	return stale, nil
}

var _ domain.Tx = (*tx)(nil)
