package repository

import (
	"strings"

	"lead_distribution_backend/internal/matching/domain"
)

const (
	leadColumns = "id, specialty, city, postal_code, department, latitude, longitude, description, urgency, status, " +
		"requester_id, contact_name, contact_email, contact_phone, created_at"
	providerColumns = "id, name, specialty, category, department, latitude, longitude, is_verified, is_active, is_claimed, " +
		"rating, review_count, data_quality, last_active_at, last_assigned_at"
	assignmentColumns = "id, lead_id, provider_id, status, score, distance_km, position, decline_reason, " +
		"assigned_at, viewed_at, quoted_at, terminal_at"
	quoteColumns = "id, lead_id, assignment_id, provider_id, amount_cents, description, valid_until, status, " +
		"created_at, responded_at"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// prefixed qualifies every column of a list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

func leadDest(l *domain.Lead, urgency, status *string) []any {
	return []any{
		&l.ID, &l.Specialty, &l.City, &l.PostalCode, &l.Department, &l.Latitude, &l.Longitude,
		&l.Description, urgency, status, &l.RequesterID,
		&l.Contact.Name, &l.Contact.Email, &l.Contact.Phone, &l.CreatedAt,
	}
}

func scanLead(row rowScanner) (domain.Lead, error) {
	var l domain.Lead
	var urgency, status string
	if err := row.Scan(leadDest(&l, &urgency, &status)...); err != nil {
		return domain.Lead{}, err
	}
	l.Urgency = domain.Urgency(urgency)
	l.Status = domain.LeadStatus(status)
	return l, nil
}

func scanProvider(row rowScanner) (domain.Provider, error) {
	var p domain.Provider
	err := row.Scan(
		&p.ID, &p.Name, &p.Specialty, &p.Category, &p.Department, &p.Latitude, &p.Longitude,
		&p.Verified, &p.Active, &p.Claimed, &p.Rating, &p.ReviewCount, &p.DataQuality,
		&p.LastActiveAt, &p.LastAssignedAt,
	)
	return p, err
}

func assignmentDest(a *domain.Assignment, status *string) []any {
	return []any{
		&a.ID, &a.LeadID, &a.ProviderID, status, &a.Score, &a.DistanceKm, &a.Position, &a.DeclineReason,
		&a.AssignedAt, &a.ViewedAt, &a.QuotedAt, &a.TerminalAt,
	}
}

func scanAssignment(row rowScanner) (domain.Assignment, error) {
	var a domain.Assignment
	var status string
	if err := row.Scan(assignmentDest(&a, &status)...); err != nil {
		return domain.Assignment{}, err
	}
	a.Status = domain.AssignmentStatus(status)
	return a, nil
}

func scanQuote(row rowScanner) (domain.Quote, error) {
	var q domain.Quote
	var status string
	err := row.Scan(
		&q.ID, &q.LeadID, &q.AssignmentID, &q.ProviderID, &q.AmountCents, &q.Description,
		&q.ValidUntil, &status, &q.CreatedAt, &q.RespondedAt,
	)
	if err != nil {
		return domain.Quote{}, err
	}
	q.Status = domain.QuoteStatus(status)
	return q, nil
}

// limitArg maps a non-positive limit to NULL, which Postgres reads as no limit.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
