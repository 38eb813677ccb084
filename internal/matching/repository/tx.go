package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lead_distribution_backend/internal/matching/domain"
	"lead_distribution_backend/platform/apperr"
	"lead_distribution_backend/platform/db"

	"github.com/google/uuid"
)

type tx struct {
	q DBTX
}

func (t *tx) LockLead(ctx context.Context, leadID uuid.UUID) (domain.Lead, error) {
	return getLead(ctx, t.q, leadID, lockSuffix)
}

func (t *tx) LockProvider(ctx context.Context, providerID uuid.UUID) (domain.Provider, error) {
	p, err := scanProvider(t.q.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`+lockSuffix, providerID))
	if err != nil {
		return domain.Provider{}, rowErr("lock provider", "provider not found", err)
	}
	return p, nil
}

func (t *tx) LockAssignment(ctx context.Context, assignmentID uuid.UUID) (domain.Assignment, error) {
	return getAssignment(ctx, t.q, assignmentID, lockSuffix)
}

func (t *tx) LockQuote(ctx context.Context, quoteID uuid.UUID) (domain.Quote, error) {
	return getQuote(ctx, t.q, quoteID, lockSuffix)
}

func (t *tx) ListLeadAssignments(ctx context.Context, leadID uuid.UUID) ([]domain.Assignment, error) {
	return listLeadAssignments(ctx, t.q, leadID)
}

func (t *tx) ListLeadQuotes(ctx context.Context, leadID uuid.UUID) ([]domain.Quote, error) {
	rows, err := t.q.Query(ctx, `
		SELECT `+quoteColumns+`
		FROM quotes
		WHERE lead_id = $1
		ORDER BY created_at
		FOR UPDATE
	`, leadID)
	if err != nil {
		return nil, storeErr("list lead quotes", err)
	}
	return collectQuotes(rows)
}

func (t *tx) FindQuoteByAssignment(ctx context.Context, assignmentID uuid.UUID) (*domain.Quote, error) {
	rows, err := t.q.Query(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE assignment_id = $1 LIMIT 1`, assignmentID)
	if err != nil {
		return nil, storeErr("find quote", err)
	}
	quotes, err := collectQuotes(rows)
	if err != nil || len(quotes) == 0 {
		return nil, err
	}
	return &quotes[0], nil
}

func (t *tx) CountProviderAssignmentsSince(ctx context.Context, providerID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM lead_assignments
		WHERE provider_id = $1 AND assigned_at >= $2
	`, providerID, since).Scan(&n)
	if err != nil {
		return 0, storeErr("count provider assignments", err)
	}
	return n, nil
}

func (t *tx) InsertAssignment(ctx context.Context, a domain.Assignment) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		INSERT INTO lead_assignments (id, lead_id, provider_id, status, score, distance_km, position, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (lead_id, provider_id) DO NOTHING
	`, a.ID, a.LeadID, a.ProviderID, string(a.Status), a.Score, a.DistanceKm, a.Position, a.AssignedAt)
	if err != nil {
		return false, storeErr("insert assignment", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *tx) UpdateAssignment(ctx context.Context, a domain.Assignment) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE lead_assignments
		SET status = $2, viewed_at = $3, quoted_at = $4, terminal_at = $5, decline_reason = $6
		WHERE id = $1
	`, a.ID, string(a.Status), a.ViewedAt, a.QuotedAt, a.TerminalAt, a.DeclineReason)
	if err != nil {
		return storeErr("update assignment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("assignment not found")
	}
	return nil
}

func (t *tx) InsertQuote(ctx context.Context, q domain.Quote) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO quotes (id, lead_id, assignment_id, provider_id, amount_cents, description, valid_until, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, q.ID, q.LeadID, q.AssignmentID, q.ProviderID, q.AmountCents, q.Description, q.ValidUntil, string(q.Status), q.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.Conflict("a quote was already submitted for this lead")
		}
		return storeErr("insert quote", err)
	}
	return nil
}

func (t *tx) UpdateQuote(ctx context.Context, q domain.Quote) error {
	tag, err := t.q.Exec(ctx, `UPDATE quotes SET status = $2, responded_at = $3 WHERE id = $1`,
		q.ID, string(q.Status), q.RespondedAt)
	if err != nil {
		return storeErr("update quote", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("quote not found")
	}
	return nil
}

func (t *tx) UpdateLeadStatus(ctx context.Context, leadID uuid.UUID, status domain.LeadStatus, at time.Time) error {
	tag, err := t.q.Exec(ctx, `UPDATE leads SET status = $2, updated_at = $3 WHERE id = $1`,
		leadID, string(status), at)
	if err != nil {
		return storeErr("update lead status", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lead not found")
	}
	return nil
}

func (t *tx) TouchProviderAssigned(ctx context.Context, providerID uuid.UUID, at time.Time) error {
	_, err := t.q.Exec(ctx, `
		UPDATE providers
		SET last_assigned_at = GREATEST(COALESCE(last_assigned_at, $2), $2)
		WHERE id = $1
	`, providerID, at)
	if err != nil {
		return storeErr("touch provider", err)
	}
	return nil
}

func (t *tx) AppendEvent(ctx context.Context, e domain.LeadEvent) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO lead_events (id, lead_id, provider_id, actor_id, event_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.LeadID, e.ProviderID, e.ActorID, string(e.Type), metadata, e.CreatedAt)
	if err != nil {
		return storeErr("append event", err)
	}
	return nil
}

// ExpireAssignments skips rows another transaction holds, so a sweep never
// waits on, or deadlocks with, a provider acting on the same assignment.
func (t *tx) ExpireAssignments(ctx context.Context, cutoff, at time.Time, limit int) ([]domain.Assignment, error) {
	rows, err := t.q.Query(ctx, `
		UPDATE lead_assignments
		SET status = 'expired', terminal_at = $2
		WHERE id IN (
			SELECT id FROM lead_assignments
			WHERE status IN ('pending', 'viewed') AND assigned_at < $1
			ORDER BY assigned_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		AND status IN ('pending', 'viewed')
		RETURNING `+assignmentColumns, cutoff, at, limitArg(limit))
	if err != nil {
		return nil, storeErr("expire assignments", err)
	}
	return collectAssignments(rows)
}

func (t *tx) ExpireQuotes(ctx context.Context, cutoff, at time.Time, limit int) ([]domain.Quote, error) {
	rows, err := t.q.Query(ctx, `
		UPDATE quotes
		SET status = 'expired', responded_at = $2
		WHERE id IN (
			SELECT id FROM quotes
			WHERE status = 'pending' AND created_at < $1
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		AND status = 'pending'
		RETURNING `+quoteColumns, cutoff, at, limitArg(limit))
	if err != nil {
		return nil, storeErr("expire quotes", err)
	}
	return collectQuotes(rows)
}

var _ domain.Tx = (*tx)(nil)
