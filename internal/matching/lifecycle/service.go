// Package lifecycle applies provider and requester actions to assignments,
// quotes and leads. Every action runs in one transaction with the lead row
// locked first; bus events are published only after commit.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"lead_distribution_backend/internal/events"
	"lead_distribution_backend/internal/matching/domain"
	"lead_distribution_backend/platform/apperr"
	"lead_distribution_backend/platform/logger"
	"lead_distribution_backend/platform/phone"
	"lead_distribution_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	defaultQuoteValidDays = 30
	maxQuoteValidDays     = 365
	maxDescriptionRunes   = 2000
	maxDeclineReasonRunes = 500
	defaultListLimit      = 50
	maxListLimit          = 200
)

// ProviderActor identifies the user acting for a provider.
type ProviderActor struct {
	UserID     uuid.UUID
	ProviderID uuid.UUID
}

// QuoteInput is a provider's offer.
type QuoteInput struct {
	AmountCents int64
	Description string
	ValidDays   int
}

// AssignmentResult is returned by provider actions. NoOp is set when the
// action was a replay and nothing was written.
type AssignmentResult struct {
	Assignment domain.Assignment
	Quote      *domain.Quote
	NoOp       bool
}

// Service implements the lifecycle operations.
type Service struct {
	store domain.Store
	bus   events.Bus
	log   *logger.Logger
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates the lifecycle service. bus may be nil.
func New(store domain.Store, bus events.Bus, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store: store,
		bus:   bus,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// View marks the assignment as opened by its provider.
func (s *Service) View(ctx context.Context, actor ProviderActor, assignmentID uuid.UUID) (AssignmentResult, error) {
	res, err := s.act(ctx, actor, assignmentID, domain.ActionView, func(_ context.Context, _ domain.Tx, a *domain.Assignment, now time.Time) (domain.LeadEvent, error) {
		a.ViewedAt = &now
		return domain.NewLeadEvent(a.LeadID, domain.EventViewed, now), nil
	})
	if err != nil || res.NoOp {
		return res, err
	}
	s.publish(ctx, events.AssignmentViewed{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       res.Assignment.LeadID,
		AssignmentID: res.Assignment.ID,
		ProviderID:   res.Assignment.ProviderID,
	})
	return res, nil
}

// SubmitQuote moves the assignment to quoted and creates the quote in the
// same transaction. A provider gets one quote per lead.
func (s *Service) SubmitQuote(ctx context.Context, actor ProviderActor, assignmentID uuid.UUID, in QuoteInput) (AssignmentResult, error) {
	if in.AmountCents <= 0 {
		return AssignmentResult{}, apperr.Validation("amount must be positive").
			WithDetails(map[string]string{"amountCents": "gt=0"})
	}
	validDays := in.ValidDays
	if validDays == 0 {
		validDays = defaultQuoteValidDays
	}
	if validDays < 1 || validDays > maxQuoteValidDays {
		return AssignmentResult{}, apperr.Validation("invalid quote validity").
			WithDetails(map[string]string{"validDays": fmt.Sprintf("between 1 and %d", maxQuoteValidDays)})
	}
	description := sanitize.Truncate(in.Description, maxDescriptionRunes)

	var quote domain.Quote
	res, err := s.act(ctx, actor, assignmentID, domain.ActionQuote, func(ctx context.Context, tx domain.Tx, a *domain.Assignment, now time.Time) (domain.LeadEvent, error) {
		if a.ViewedAt == nil {
			a.ViewedAt = &now
		}
		a.QuotedAt = &now
		quote = domain.Quote{
			ID:           uuid.New(),
			LeadID:       a.LeadID,
			AssignmentID: a.ID,
			ProviderID:   a.ProviderID,
			AmountCents:  in.AmountCents,
			Description:  description,
			ValidUntil:   now.Add(time.Duration(validDays) * 24 * time.Hour),
			Status:       domain.QuotePending,
			CreatedAt:    now,
		}
		if err := tx.InsertQuote(ctx, quote); err != nil {
			return domain.LeadEvent{}, err
		}
		return domain.NewLeadEvent(a.LeadID, domain.EventQuoted, now).
			With("quote_id", quote.ID.String()).
			With("amount_cents", quote.AmountCents).
			With("valid_days", validDays), nil
	})
	if err != nil || res.NoOp {
		return res, err
	}
	res.Quote = &quote
	s.publish(ctx, events.QuoteSubmitted{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       quote.LeadID,
		AssignmentID: quote.AssignmentID,
		QuoteID:      quote.ID,
		ProviderID:   quote.ProviderID,
		AmountCents:  quote.AmountCents,
	})
	return res, nil
}

// Decline records the provider turning the lead down.
func (s *Service) Decline(ctx context.Context, actor ProviderActor, assignmentID uuid.UUID, reason string) (AssignmentResult, error) {
	cleaned := sanitize.Truncate(reason, maxDeclineReasonRunes)

	res, err := s.act(ctx, actor, assignmentID, domain.ActionDecline, func(_ context.Context, _ domain.Tx, a *domain.Assignment, now time.Time) (domain.LeadEvent, error) {
		a.TerminalAt = &now
		event := domain.NewLeadEvent(a.LeadID, domain.EventDeclined, now)
		if cleaned != "" {
			a.DeclineReason = &cleaned
			event = event.With("reason", cleaned)
		}
		return event, nil
	})
	if err != nil || res.NoOp {
		return res, err
	}
	s.publish(ctx, events.AssignmentDeclined{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       res.Assignment.LeadID,
		AssignmentID: res.Assignment.ID,
		ProviderID:   res.Assignment.ProviderID,
		Reason:       cleaned,
	})
	return res, nil
}

// applyFunc mutates the locked assignment for an advancing transition and
// returns the event to append. Status and lead stage are handled by act.
type applyFunc func(ctx context.Context, tx domain.Tx, a *domain.Assignment, now time.Time) (domain.LeadEvent, error)

func (s *Service) act(ctx context.Context, actor ProviderActor, assignmentID uuid.UUID, action domain.Action, apply applyFunc) (AssignmentResult, error) {
	// The lead id is immutable, so reading it before locking is safe and
	// keeps the lead-first lock order.
	snapshot, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return AssignmentResult{}, err
	}
	if snapshot.ProviderID != actor.ProviderID {
		return AssignmentResult{}, apperr.Conflict("assignment belongs to another provider")
	}

	var res AssignmentResult
	err = s.store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		lead, err := tx.LockLead(ctx, snapshot.LeadID)
		if err != nil {
			return err
		}
		a, err := tx.LockAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}

		t := domain.NextAssignment(a.Status, action)
		switch t.Outcome {
		case domain.OutcomeConflict:
			return apperr.Conflict(fmt.Sprintf("cannot %s an assignment that is %s", action, a.Status))
		case domain.OutcomeNoOp:
			res = AssignmentResult{Assignment: a, NoOp: true}
			if action == domain.ActionQuote {
				q, err := tx.FindQuoteByAssignment(ctx, a.ID)
				if err != nil {
					return err
				}
				res.Quote = q
			}
			return nil
		}

		if action == domain.ActionQuote && !lead.Status.IsOpen() {
			return apperr.Conflict(fmt.Sprintf("lead is %s", lead.Status))
		}

		now := s.now()
		event, err := apply(ctx, tx, &a, now)
		if err != nil {
			return err
		}
		a.Status = t.Next
		if err := tx.UpdateAssignment(ctx, a); err != nil {
			return err
		}
		if stage, ok := domain.LeadStageFor(a.Status); ok {
			if next, changed := domain.AdvanceLead(lead.Status, stage); changed {
				if err := tx.UpdateLeadStatus(ctx, lead.ID, next, now); err != nil {
					return err
				}
			}
		}

		event = event.WithProvider(a.ProviderID).WithActor(actor.UserID).With("assignment_id", a.ID.String())
		if err := tx.AppendEvent(ctx, event); err != nil {
			return err
		}
		res = AssignmentResult{Assignment: a}
		return nil
	})
	if err != nil {
		return AssignmentResult{}, err
	}
	return res, nil
}

// ListAssignments returns the provider's assignments, newest first. The
// requester contact is only revealed once the assignment has been viewed.
func (s *Service) ListAssignments(ctx context.Context, providerID uuid.UUID, filter domain.AssignmentListFilter) ([]domain.ProviderAssignment, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	items, err := s.store.ListProviderAssignments(ctx, providerID, filter)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].Assignment.ViewedAt == nil {
			items[i].Lead.Contact = domain.Contact{}
			continue
		}
		items[i].Lead.Contact.Phone = phone.National(items[i].Lead.Contact.Phone)
	}
	return items, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, event)
}
