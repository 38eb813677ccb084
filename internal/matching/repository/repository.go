// Package repository is the Postgres implementation of the matching store.
// Transactions take row locks with SELECT ... FOR UPDATE in the order the
// domain.Tx contract prescribes: lead first, then provider, assignment or quote.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lead_distribution_backend/internal/matching/domain"
	"lead_distribution_backend/platform/apperr"
	"lead_distribution_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the query surface shared by the pool and an open transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is satisfied by *pgxpool.Pool.
type Pool interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Repository struct {
	pool Pool
}

func New(pool Pool) *Repository {
	return &Repository{pool: pool}
}

// InTx implements domain.Store.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	pgxTx, err := r.pool.Begin(ctx)
	if err != nil {
		return storeErr("begin transaction", err)
	}
	defer func() { _ = pgxTx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, &tx{q: pgxTx}); err != nil {
		return err
	}
	if err := pgxTx.Commit(ctx); err != nil {
		return storeErr("commit transaction", err)
	}
	return nil
}

func (r *Repository) GetLead(ctx context.Context, leadID uuid.UUID) (domain.Lead, error) {
	return getLead(ctx, r.pool, leadID, "")
}

func (r *Repository) GetAssignment(ctx context.Context, assignmentID uuid.UUID) (domain.Assignment, error) {
	return getAssignment(ctx, r.pool, assignmentID, "")
}

func (r *Repository) GetQuote(ctx context.Context, quoteID uuid.UUID) (domain.Quote, error) {
	return getQuote(ctx, r.pool, quoteID, "")
}

func (r *Repository) ListLeadAssignments(ctx context.Context, leadID uuid.UUID) ([]domain.Assignment, error) {
	return listLeadAssignments(ctx, r.pool, leadID)
}

// ListProviders pre-filters on the indexed columns; the selector applies
// the full eligibility predicate.
func (r *Repository) ListProviders(ctx context.Context, filter domain.ProviderFilter) ([]domain.Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE is_active = true AND rating >= $1
		ORDER BY id
	`, filter.MinRating)
	if err != nil {
		return nil, storeErr("list providers", err)
	}
	defer rows.Close()

	items := make([]domain.Provider, 0)
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, storeErr("scan provider", err)
		}
		items = append(items, p)
	}
	if rows.Err() != nil {
		return nil, storeErr("list providers", rows.Err())
	}
	return items, nil
}

func (r *Repository) ListProviderAssignments(ctx context.Context, providerID uuid.UUID, filter domain.AssignmentListFilter) ([]domain.ProviderAssignment, error) {
	var statuses []string
	for _, s := range filter.Statuses {
		statuses = append(statuses, string(s))
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+prefixed("a", assignmentColumns)+`, `+prefixed("l", leadColumns)+`
		FROM lead_assignments a
		JOIN leads l ON l.id = a.lead_id
		WHERE a.provider_id = $1
		  AND ($2::text[] IS NULL OR a.status = ANY($2))
		ORDER BY a.assigned_at DESC
		LIMIT $3
	`, providerID, statuses, limitArg(filter.Limit))
	if err != nil {
		return nil, storeErr("list provider assignments", err)
	}
	defer rows.Close()

	items := make([]domain.ProviderAssignment, 0)
	byAssignment := map[uuid.UUID]int{}
	for rows.Next() {
		var item domain.ProviderAssignment
		var aStatus, urgency, lStatus string
		dest := append(assignmentDest(&item.Assignment, &aStatus), leadDest(&item.Lead, &urgency, &lStatus)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, storeErr("scan provider assignment", err)
		}
		item.Assignment.Status = domain.AssignmentStatus(aStatus)
		item.Lead.Urgency = domain.Urgency(urgency)
		item.Lead.Status = domain.LeadStatus(lStatus)
		byAssignment[item.Assignment.ID] = len(items)
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, storeErr("list provider assignments", rows.Err())
	}
	if len(items) == 0 {
		return items, nil
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.Assignment.ID)
	}
	quoteRows, err := r.pool.Query(ctx, `
		SELECT `+quoteColumns+`
		FROM quotes
		WHERE assignment_id = ANY($1)
	`, ids)
	if err != nil {
		return nil, storeErr("list assignment quotes", err)
	}
	defer quoteRows.Close()
	for quoteRows.Next() {
		q, err := scanQuote(quoteRows)
		if err != nil {
			return nil, storeErr("scan quote", err)
		}
		if i, ok := byAssignment[q.AssignmentID]; ok {
			items[i].Quote = &q
		}
	}
	if quoteRows.Err() != nil {
		return nil, storeErr("list assignment quotes", quoteRows.Err())
	}
	return items, nil
}

func (r *Repository) ListStaleLeads(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.id
		FROM leads l
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS n,
			       MAX(GREATEST(a.assigned_at, COALESCE(a.viewed_at, a.assigned_at))) AS last_activity
			FROM lead_assignments a
			WHERE a.lead_id = l.id
		) act ON true
		WHERE l.status IN ('created', 'dispatched', 'viewed')
		  AND ((act.n = 0 AND l.status = 'created') OR (act.n > 0 AND act.last_activity < $1))
		ORDER BY l.created_at
		LIMIT $2
	`, cutoff, limitArg(limit))
	if err != nil {
		return nil, storeErr("list stale leads", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scan stale lead", err)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, storeErr("list stale leads", rows.Err())
	}
	return ids, nil
}

// CountFunnel counts distinct leads per event type. With a provider filter,
// only leads dispatched to that provider count, and only lead-level events
// or events concerning that provider.
func (r *Repository) CountFunnel(ctx context.Context, filter domain.FunnelFilter) (map[domain.EventType]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.event_type, COUNT(DISTINCT e.lead_id)
		FROM lead_events e
		JOIN leads l ON l.id = e.lead_id
		WHERE ($1::timestamptz IS NULL OR e.created_at >= $1)
		  AND ($2::timestamptz IS NULL OR e.created_at < $2)
		  AND ($3::text = '' OR lower(l.specialty) = lower($3))
		  AND ($4::uuid IS NULL OR (
		        (e.provider_id IS NULL OR e.provider_id = $4)
		        AND EXISTS (
		          SELECT 1 FROM lead_events d
		          WHERE d.lead_id = e.lead_id AND d.event_type = 'dispatched' AND d.provider_id = $4
		        )))
		GROUP BY e.event_type
	`, filter.From, filter.To, filter.Specialty, filter.ProviderID)
	if err != nil {
		return nil, storeErr("count funnel", err)
	}
	defer rows.Close()

	counts := map[domain.EventType]int{}
	for rows.Next() {
		var eventType string
		var n int
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, storeErr("scan funnel count", err)
		}
		counts[domain.EventType(eventType)] = n
	}
	if rows.Err() != nil {
		return nil, storeErr("count funnel", rows.Err())
	}
	return counts, nil
}

// lockSuffix is appended to single-row reads inside a transaction.
const lockSuffix = " FOR UPDATE"

func getLead(ctx context.Context, q DBTX, id uuid.UUID, suffix string) (domain.Lead, error) {
	lead, err := scanLead(q.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`+suffix, id))
	if err != nil {
		return domain.Lead{}, rowErr("get lead", "lead not found", err)
	}
	return lead, nil
}

func getAssignment(ctx context.Context, q DBTX, id uuid.UUID, suffix string) (domain.Assignment, error) {
	a, err := scanAssignment(q.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM lead_assignments WHERE id = $1`+suffix, id))
	if err != nil {
		return domain.Assignment{}, rowErr("get assignment", "assignment not found", err)
	}
	return a, nil
}

func getQuote(ctx context.Context, q DBTX, id uuid.UUID, suffix string) (domain.Quote, error) {
	quote, err := scanQuote(q.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`+suffix, id))
	if err != nil {
		return domain.Quote{}, rowErr("get quote", "quote not found", err)
	}
	return quote, nil
}

func listLeadAssignments(ctx context.Context, q DBTX, leadID uuid.UUID) ([]domain.Assignment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM lead_assignments
		WHERE lead_id = $1
		ORDER BY position, assigned_at
	`, leadID)
	if err != nil {
		return nil, storeErr("list lead assignments", err)
	}
	return collectAssignments(rows)
}

func collectAssignments(rows pgx.Rows) ([]domain.Assignment, error) {
	defer rows.Close()
	items := make([]domain.Assignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, storeErr("scan assignment", err)
		}
		items = append(items, a)
	}
	if rows.Err() != nil {
		return nil, storeErr("list assignments", rows.Err())
	}
	return items, nil
}

func collectQuotes(rows pgx.Rows) ([]domain.Quote, error) {
	defer rows.Close()
	items := make([]domain.Quote, 0)
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, storeErr("scan quote", err)
		}
		items = append(items, q)
	}
	if rows.Err() != nil {
		return nil, storeErr("list quotes", rows.Err())
	}
	return items, nil
}

// rowErr maps a single-row read failure, turning a missing row into NotFound.
func rowErr(op, notFound string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(notFound)
	}
	return storeErr(op, err)
}

// storeErr classifies connectivity and contention failures as retryable.
func storeErr(op string, err error) error {
	if db.IsTransient(err) {
		return apperr.Unavailable("store unavailable", err).WithOp(op)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var (
	_ domain.Store            = (*Repository)(nil)
	_ domain.ConfigRepository = (*Repository)(nil)
)
