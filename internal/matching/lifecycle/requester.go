package lifecycle

import (
	"context"
	"fmt"

	"lead_distribution_backend/internal/events"
	"lead_distribution_backend/internal/matching/domain"
	"lead_distribution_backend/platform/apperr"

	"github.com/google/uuid"
)

// QuoteResult is returned by requester actions on a quote.
type QuoteResult struct {
	Quote             domain.Quote
	ClosedAssignments int
	RefusedQuotes     int
	NoOp              bool
}

// LeadResult is returned by requester actions on a lead.
type LeadResult struct {
	Lead domain.Lead
	NoOp bool
}

// AcceptQuote accepts one quote and winds down every competing offer in the
// same transaction: sibling active assignments are closed and sibling
// pending quotes refused.
func (s *Service) AcceptQuote(ctx context.Context, requesterID, quoteID uuid.UUID) (QuoteResult, error) {
	snapshot, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return QuoteResult{}, err
	}

	var res QuoteResult
	err = s.store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		lead, err := s.lockOwnedLead(ctx, tx, snapshot.LeadID, requesterID)
		if err != nil {
			return err
		}
		q, err := tx.LockQuote(ctx, quoteID)
		if err != nil {
			return err
		}

		if q.Status == domain.QuoteAccepted {
			res = QuoteResult{Quote: q, NoOp: true}
			return nil
		}
		if lead.Status == domain.LeadAccepted || lead.Status == domain.LeadCompleted {
			return apperr.Conflict("another quote was already accepted for this lead")
		}
		if q.Status != domain.QuotePending {
			return apperr.Conflict(fmt.Sprintf("quote is %s", q.Status))
		}
		if !lead.Status.IsOpen() {
			return apperr.Conflict(fmt.Sprintf("lead is %s", lead.Status))
		}
		now := s.now()
		if now.After(q.ValidUntil) {
			return apperr.Conflict("quote is no longer valid")
		}

		q.Status = domain.QuoteAccepted
		q.RespondedAt = &now
		if err := tx.UpdateQuote(ctx, q); err != nil {
			return err
		}

		assignments, err := tx.ListLeadAssignments(ctx, lead.ID)
		if err != nil {
			return err
		}
		closed := 0
		for _, a := range assignments {
			switch {
			case a.ID == q.AssignmentID:
				a.Status = domain.AssignmentAccepted
			case a.Status.OccupiesSlot():
				a.Status = domain.AssignmentClosed
				closed++
			default:
				continue
			}
			a.TerminalAt = &now
			if err := tx.UpdateAssignment(ctx, a); err != nil {
				return err
			}
		}

		quotes, err := tx.ListLeadQuotes(ctx, lead.ID)
		if err != nil {
			return err
		}
		refused := 0
		for _, sibling := range quotes {
			if sibling.ID == q.ID || sibling.Status != domain.QuotePending {
				continue
			}
			sibling.Status = domain.QuoteRefused
			sibling.RespondedAt = &now
			if err := tx.UpdateQuote(ctx, sibling); err != nil {
				return err
			}
			refused++
		}

		if err := tx.UpdateLeadStatus(ctx, lead.ID, domain.LeadAccepted, now); err != nil {
			return err
		}
		event := domain.NewLeadEvent(lead.ID, domain.EventAccepted, now).
			WithProvider(q.ProviderID).
			WithActor(requesterID).
			With("quote_id", q.ID.String()).
			With("assignment_id", q.AssignmentID.String()).
			With("amount_cents", q.AmountCents).
			With("closed_assignments", closed).
			With("refused_quotes", refused)
		if err := tx.AppendEvent(ctx, event); err != nil {
			return err
		}

		res = QuoteResult{Quote: q, ClosedAssignments: closed, RefusedQuotes: refused}
		return nil
	})
	if err != nil {
		return QuoteResult{}, err
	}
	if !res.NoOp {
		s.publish(ctx, events.QuoteAccepted{
			BaseEvent:         events.NewBaseEvent(),
			LeadID:            res.Quote.LeadID,
			QuoteID:           res.Quote.ID,
			ProviderID:        res.Quote.ProviderID,
			RequesterID:       requesterID,
			ClosedAssignments: res.ClosedAssignments,
			RefusedQuotes:     res.RefusedQuotes,
		})
	}
	return res, nil
}

// RefuseQuote refuses one pending quote. The lead stays open for the others.
func (s *Service) RefuseQuote(ctx context.Context, requesterID, quoteID uuid.UUID) (QuoteResult, error) {
	snapshot, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return QuoteResult{}, err
	}

	var res QuoteResult
	err = s.store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := s.lockOwnedLead(ctx, tx, snapshot.LeadID, requesterID); err != nil {
			return err
		}
		q, err := tx.LockQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		switch q.Status {
		case domain.QuoteRefused:
			res = QuoteResult{Quote: q, NoOp: true}
			return nil
		case domain.QuotePending:
		default:
			return apperr.Conflict(fmt.Sprintf("quote is %s", q.Status))
		}

		now := s.now()
		q.Status = domain.QuoteRefused
		q.RespondedAt = &now
		if err := tx.UpdateQuote(ctx, q); err != nil {
			return err
		}
		event := domain.NewLeadEvent(q.LeadID, domain.EventRefused, now).
			WithProvider(q.ProviderID).
			WithActor(requesterID).
			With("quote_id", q.ID.String())
		if err := tx.AppendEvent(ctx, event); err != nil {
			return err
		}
		res = QuoteResult{Quote: q}
		return nil
	})
	if err != nil {
		return QuoteResult{}, err
	}
	if !res.NoOp {
		s.publish(ctx, events.QuoteRefused{
			BaseEvent:   events.NewBaseEvent(),
			LeadID:      res.Quote.LeadID,
			QuoteID:     res.Quote.ID,
			ProviderID:  res.Quote.ProviderID,
			RequesterID: requesterID,
		})
	}
	return res, nil
}

// CompleteLead marks an accepted lead as done.
func (s *Service) CompleteLead(ctx context.Context, requesterID, leadID uuid.UUID) (LeadResult, error) {
	var res LeadResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		lead, err := s.lockOwnedLead(ctx, tx, leadID, requesterID)
		if err != nil {
			return err
		}
		switch lead.Status {
		case domain.LeadCompleted:
			res = LeadResult{Lead: lead, NoOp: true}
			return nil
		case domain.LeadAccepted:
		default:
			return apperr.Conflict(fmt.Sprintf("lead is %s", lead.Status))
		}

		now := s.now()
		if err := tx.UpdateLeadStatus(ctx, lead.ID, domain.LeadCompleted, now); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, domain.NewLeadEvent(lead.ID, domain.EventCompleted, now).WithActor(requesterID)); err != nil {
			return err
		}
		lead.Status = domain.LeadCompleted
		res = LeadResult{Lead: lead}
		return nil
	})
	if err != nil {
		return LeadResult{}, err
	}
	if !res.NoOp {
		s.publish(ctx, events.LeadCompleted{
			BaseEvent:   events.NewBaseEvent(),
			LeadID:      leadID,
			RequesterID: requesterID,
		})
	}
	return res, nil
}

func (s *Service) lockOwnedLead(ctx context.Context, tx domain.Tx, leadID, requesterID uuid.UUID) (domain.Lead, error) {
	lead, err := tx.LockLead(ctx, leadID)
	if err != nil {
		return domain.Lead{}, err
	}
	if lead.RequesterID != requesterID {
		return domain.Lead{}, apperr.Conflict("lead belongs to another requester")
	}
	return lead, nil
}
