package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"lead_distribution_backend/internal/matching/domain"
	"lead_distribution_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func leadRows(mock pgxmock.PgxPoolIface, id uuid.UUID, status string) *pgxmock.Rows {
	return mock.NewRows([]string{
		"id", "specialty", "city", "postal_code", "department", "latitude", "longitude", "description",
		"urgency", "status", "requester_id", "contact_name", "contact_email", "contact_phone", "created_at",
	}).AddRow(
		id, "plombier", "Lyon", "69003", "69", (*float64)(nil), (*float64)(nil), "Fuite sous évier",
		"high", status, uuid.New(), "Claire", "claire@example.fr", "+33612345678", testNow,
	)
}

func assignmentRows(mock pgxmock.PgxPoolIface) *pgxmock.Rows {
	return mock.NewRows([]string{
		"id", "lead_id", "provider_id", "status", "score", "distance_km", "position", "decline_reason",
		"assigned_at", "viewed_at", "quoted_at", "terminal_at",
	})
}

func TestGetLeadScansRow(t *testing.T) {
	mock := newMock(t)
	id := uuid.New()
	mock.ExpectQuery(`SELECT .+ FROM leads WHERE id = \$1$`).
		WithArgs(id).
		WillReturnRows(leadRows(mock, id, "dispatched"))

	lead, err := New(mock).GetLead(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, lead.ID)
	assert.Equal(t, domain.LeadDispatched, lead.Status)
	assert.Equal(t, domain.UrgencyHigh, lead.Urgency)
	assert.False(t, lead.HasCoordinates())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLeadMissingIsNotFound(t *testing.T) {
	mock := newMock(t)
	id := uuid.New()
	mock.ExpectQuery(`FROM leads WHERE id`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := New(mock).GetLead(context.Background(), id)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransientErrorsAreRetryable(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin().WillReturnError(&pgconn.PgError{Code: "57P01"})

	err := New(mock).InTx(context.Background(), func(context.Context, domain.Tx) error { return nil })
	require.Error(t, err)
	assert.True(t, apperr.IsRetryable(err))
}

func TestInTxLocksLeadAndCommits(t *testing.T) {
	mock := newMock(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM leads WHERE id = \$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(leadRows(mock, id, "created"))
	mock.ExpectExec(`UPDATE leads SET status = \$2`).
		WithArgs(id, "dispatched", testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := New(mock).InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		lead, err := tx.LockLead(ctx, id)
		if err != nil {
			return err
		}
		next, _ := domain.AdvanceLead(lead.Status, domain.LeadDispatched)
		return tx.UpdateLeadStatus(ctx, id, next, testNow)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxRollsBackOnCallbackError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := New(mock).InTx(context.Background(), func(context.Context, domain.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAssignmentConflictReturnsFalse(t *testing.T) {
	mock := newMock(t)
	a := domain.Assignment{
		ID: uuid.New(), LeadID: uuid.New(), ProviderID: uuid.New(),
		Status: domain.AssignmentPending, Score: 71.5, Position: 1, AssignedAt: testNow,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)INSERT INTO lead_assignments .+ON CONFLICT \(lead_id, provider_id\) DO NOTHING`).
		WithArgs(a.ID, a.LeadID, a.ProviderID, "pending", a.Score, a.DistanceKm, a.Position, a.AssignedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	var inserted bool
	err := New(mock).InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		inserted, err = tx.InsertAssignment(ctx, a)
		return err
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertQuoteUniqueViolationIsConflict(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO quotes`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := New(mock).InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.InsertQuote(ctx, domain.Quote{ID: uuid.New(), AmountCents: 100, Status: domain.QuotePending})
	})
	assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireAssignmentsIsGuardedAndSkipsLocked(t *testing.T) {
	mock := newMock(t)
	cutoff := testNow.Add(-48 * time.Hour)
	id, leadID, providerID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)UPDATE lead_assignments\s+SET status = 'expired'.+FOR UPDATE SKIP LOCKED.+AND status IN \('pending', 'viewed'\)\s+RETURNING`).
		WithArgs(cutoff, testNow, 100).
		WillReturnRows(assignmentRows(mock).AddRow(
			id, leadID, providerID, "expired", 64.0, (*float64)(nil), 2, (*string)(nil),
			cutoff.Add(-time.Hour), (*time.Time)(nil), (*time.Time)(nil), &testNow,
		))
	mock.ExpectCommit()

	var expired []domain.Assignment
	err := New(mock).InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		expired, err = tx.ExpireAssignments(ctx, cutoff, testNow, 100)
		return err
	})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, domain.AssignmentExpired, expired[0].Status)
	assert.Equal(t, leadID, expired[0].LeadID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountFunnelAggregatesRows(t *testing.T) {
	mock := newMock(t)
	from := testNow.Add(-30 * 24 * time.Hour)
	filter := domain.FunnelFilter{From: &from, Specialty: "plombier"}

	mock.ExpectQuery(`SELECT e.event_type, COUNT\(DISTINCT e.lead_id\)`).
		WithArgs(filter.From, filter.To, "plombier", filter.ProviderID).
		WillReturnRows(mock.NewRows([]string{"event_type", "count"}).
			AddRow("created", 12).
			AddRow("dispatched", 10))

	counts, err := New(mock).CountFunnel(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, map[domain.EventType]int{domain.EventCreated: 12, domain.EventDispatched: 10}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadAlgorithmConfigNotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM algorithm_config`).WillReturnError(pgx.ErrNoRows)

	_, found, err := New(mock).LoadAlgorithmConfig(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLoadAlgorithmConfigDecodesSettings(t *testing.T) {
	mock := newMock(t)
	settings := []byte(`{"matching_strategy":"geographic","max_artisans_per_lead":4,"weights":{"rating":20,"reviews":20,"verified":20,"proximity":30,"data_quality":10}}`)
	mock.ExpectQuery(`SELECT settings, version, updated_at, updated_by`).
		WillReturnRows(mock.NewRows([]string{"settings", "version", "updated_at", "updated_by"}).
			AddRow(settings, int64(7), testNow, (*uuid.UUID)(nil)))

	cfg, found, err := New(mock).LoadAlgorithmConfig(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.StrategyGeographic, cfg.MatchingStrategy)
	assert.Equal(t, 4, cfg.MaxArtisansPerLead)
	assert.Equal(t, int64(7), cfg.Version)
	assert.Equal(t, testNow, cfg.UpdatedAt)
}

func TestSaveAlgorithmConfigVersionMismatchConflicts(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`(?s)UPDATE algorithm_config .+WHERE id = 1 AND version = \$4`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), int64(3)).
		WillReturnError(pgx.ErrNoRows)

	_, err := New(mock).SaveAlgorithmConfig(context.Background(), domain.DefaultAlgorithmConfig(), 3)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
