// Package memstore is an in-process implementation of the matching store.
// Transactions run serialised under one mutex on a copy of the state that
// replaces the live state only when the callback succeeds, so it honours
// the same all-or-nothing contract as the Postgres repository. It backs the
// engine's tests.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"lead_distribution_backend/internal/matching/domain"
	"lead_distribution_backend/platform/apperr"

	"github.com/google/uuid"
)

type state struct {
	leads       map[uuid.UUID]domain.Lead
	providers   map[uuid.UUID]domain.Provider
	assignments map[uuid.UUID]domain.Assignment
	quotes      map[uuid.UUID]domain.Quote
	events      []domain.LeadEvent
	config      *domain.AlgorithmConfig
}

func (s *state) clone() *state {
	next := &state{
		leads:       maps.Clone(s.leads),
		providers:   maps.Clone(s.providers),
		assignments: maps.Clone(s.assignments),
		quotes:      maps.Clone(s.quotes),
		events:      slices.Clone(s.events),
	}
	if s.config != nil {
		cfg := *s.config
		next.config = &cfg
	}
	return next
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	state *state
}

// New returns an empty store.
func New() *Store {
	return &Store{state: &state{
		leads:       map[uuid.UUID]domain.Lead{},
		providers:   map[uuid.UUID]domain.Provider{},
		assignments: map[uuid.UUID]domain.Assignment{},
		quotes:      map[uuid.UUID]domain.Quote{},
	}}
}

// PutLead inserts or replaces a lead, standing in for the intake collaborator.
func (s *Store) PutLead(lead domain.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lead.Status == "" {
		lead.Status = domain.LeadCreated
	}
	s.state.leads[lead.ID] = lead
}

// PutProvider inserts or replaces a directory entry.
func (s *Store) PutProvider(p domain.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.providers[p.ID] = p
}

// PutAssignment inserts a historical assignment, bypassing the assigner.
func (s *Store) PutAssignment(a domain.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.assignments[a.ID] = a
}

// PutQuote inserts a quote, bypassing the lifecycle manager.
func (s *Store) PutQuote(q domain.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.quotes[q.ID] = q
}

// AppendEvent appends directly to the log.
func (s *Store) AppendEvent(e domain.LeadEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.events = append(s.state.events, e)
}

// Events returns a copy of the event log, optionally only for one lead.
func (s *Store) Events(leadID *uuid.UUID) []domain.LeadEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LeadEvent, 0, len(s.state.events))
	for _, e := range s.state.events {
		if leadID == nil || e.LeadID == *leadID {
			out = append(out, e)
		}
	}
	return out
}

// Provider returns the stored provider.
func (s *Store) Provider(id uuid.UUID) (domain.Provider, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.providers[id]
	return p, ok
}

// QuotesForLead returns all quotes of a lead sorted by creation.
func (s *Store) QuotesForLead(leadID uuid.UUID) []domain.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return quotesForLead(s.state, leadID)
}

// InTx implements domain.Store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return apperr.Unavailable("transaction aborted", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// GetLead implements domain.Store.
func (s *Store) GetLead(_ context.Context, leadID uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.state.leads[leadID]
	if !ok {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, nil
}

// GetAssignment implements domain.Store.
func (s *Store) GetAssignment(_ context.Context, assignmentID uuid.UUID) (domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.assignments[assignmentID]
	if !ok {
		return domain.Assignment{}, apperr.NotFound("assignment not found")
	}
	return a, nil
}

// GetQuote implements domain.Store.
func (s *Store) GetQuote(_ context.Context, quoteID uuid.UUID) (domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.state.quotes[quoteID]
	if !ok {
		return domain.Quote{}, apperr.NotFound("quote not found")
	}
	return q, nil
}

// ListLeadAssignments implements domain.Store.
func (s *Store) ListLeadAssignments(_ context.Context, leadID uuid.UUID) ([]domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return assignmentsForLead(s.state, leadID), nil
}

// ListProviders implements domain.Store.
func (s *Store) ListProviders(_ context.Context, filter domain.ProviderFilter) ([]domain.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Provider, 0, len(s.state.providers))
	for _, p := range s.state.providers {
		if p.Active && p.Rating >= filter.MinRating {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// ListProviderAssignments implements domain.Store.
func (s *Store) ListProviderAssignments(_ context.Context, providerID uuid.UUID, filter domain.AssignmentListFilter) ([]domain.ProviderAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ProviderAssignment, 0)
	for _, a := range s.state.assignments {
		if a.ProviderID != providerID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, a.Status) {
			continue
		}
		item := domain.ProviderAssignment{Assignment: a, Lead: s.state.leads[a.LeadID]}
		for _, q := range s.state.quotes {
			if q.AssignmentID == a.ID {
				quote := q
				item.Quote = &quote
				break
			}
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Assignment.AssignedAt.After(out[j].Assignment.AssignedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListStaleLeads implements domain.Store.
func (s *Store) ListStaleLeads(_ context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type candidate struct {
		id      uuid.UUID
		created time.Time
	}
	var found []candidate
	for _, lead := range s.state.leads {
		switch lead.Status {
		case domain.LeadCreated, domain.LeadDispatched, domain.LeadViewed:
		default:
			continue
		}
		assignments := assignmentsForLead(s.state, lead.ID)
		if len(assignments) == 0 {
			if lead.Status == domain.LeadCreated {
				found = append(found, candidate{id: lead.ID, created: lead.CreatedAt})
			}
			continue
		}
		var latest time.Time
		for _, a := range assignments {
			if at := a.LastActivity(); at.After(latest) {
				latest = at
			}
		}
		if latest.Before(cutoff) {
			found = append(found, candidate{id: lead.ID, created: lead.CreatedAt})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].created.Before(found[j].created) })

	ids := make([]uuid.UUID, 0, len(found))
	for _, c := range found {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, c.id)
	}
	return ids, nil
}

// CountFunnel implements domain.Store. With a provider filter, only leads
// dispatched to that provider count, and only lead-level events or events
// concerning that provider.
func (s *Store) CountFunnel(_ context.Context, filter domain.FunnelFilter) (map[domain.EventType]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var providerLeads map[uuid.UUID]bool
	if filter.ProviderID != nil {
		providerLeads = map[uuid.UUID]bool{}
		for _, e := range s.state.events {
			if e.Type == domain.EventDispatched && e.ProviderID != nil && *e.ProviderID == *filter.ProviderID {
				providerLeads[e.LeadID] = true
			}
		}
	}

	seen := map[domain.EventType]map[uuid.UUID]bool{}
	for _, e := range s.state.events {
		if filter.From != nil && e.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !e.CreatedAt.Before(*filter.To) {
			continue
		}
		if filter.Specialty != "" {
			lead, ok := s.state.leads[e.LeadID]
			if !ok || !strings.EqualFold(lead.Specialty, filter.Specialty) {
				continue
			}
		}
		if providerLeads != nil {
			if !providerLeads[e.LeadID] {
				continue
			}
			if e.ProviderID != nil && *e.ProviderID != *filter.ProviderID {
				continue
			}
		}
		if seen[e.Type] == nil {
			seen[e.Type] = map[uuid.UUID]bool{}
		}
		seen[e.Type][e.LeadID] = true
	}

	counts := make(map[domain.EventType]int, len(seen))
	for t, leads := range seen {
		counts[t] = len(leads)
	}
	return counts, nil
}

// LoadAlgorithmConfig implements domain.ConfigRepository.
func (s *Store) LoadAlgorithmConfig(_ context.Context) (domain.AlgorithmConfig, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.config == nil {
		return domain.AlgorithmConfig{}, false, nil
	}
	return *s.state.config, true, nil
}

// SeedAlgorithmConfig implements domain.ConfigRepository.
func (s *Store) SeedAlgorithmConfig(_ context.Context, cfg domain.AlgorithmConfig) (domain.AlgorithmConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.config != nil {
		return *s.state.config, nil
	}
	cfg.Version = 1
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	s.state.config = &cfg
	return cfg, nil
}

// SaveAlgorithmConfig implements domain.ConfigRepository.
func (s *Store) SaveAlgorithmConfig(_ context.Context, cfg domain.AlgorithmConfig, expectedVersion int64) (domain.AlgorithmConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.config == nil || s.state.config.Version != expectedVersion {
		return domain.AlgorithmConfig{}, apperr.Conflict("algorithm config was modified concurrently")
	}
	cfg.Version = expectedVersion + 1
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	s.state.config = &cfg
	return cfg, nil
}

func assignmentsForLead(st *state, leadID uuid.UUID) []domain.Assignment {
	out := make([]domain.Assignment, 0)
	for _, a := range st.assignments {
		if a.LeadID == leadID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].AssignedAt.Before(out[j].AssignedAt)
	})
	return out
}

func quotesForLead(st *state, leadID uuid.UUID) []domain.Quote {
	out := make([]domain.Quote, 0)
	for _, q := range st.quotes {
		if q.LeadID == leadID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

var (
	_ domain.Store            = (*Store)(nil)
	_ domain.ConfigRepository = (*Store)(nil)
)
