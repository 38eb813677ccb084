// Package sweeper expires unanswered assignments and quotes and tops up or
// closes leads whose providers went quiet. A run is idempotent: repeating it
// with nothing newly stale writes nothing.
package sweeper

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"lead_distribution_backend/internal/events"
	"lead_distribution_backend/internal/matching/dispatch"
	"lead_distribution_backend/internal/matching/domain"
	"lead_distribution_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize   = 200
	defaultConcurrency = 4

	scopeAssignment = "assignment"
	scopeQuote      = "quote"
	scopeLead       = "lead"
)

// Dispatcher re-runs distribution for one lead.
type Dispatcher interface {
	Dispatch(ctx context.Context, leadID uuid.UUID) (dispatch.Result, error)
}

// Result counts what one run changed.
type Result struct {
	ExpiredAssignments int `json:"expiredAssignments"`
	ExpiredQuotes      int `json:"expiredQuotes"`
	ReassignedLeads    int `json:"reassignedLeads"`
	ClosedLeads        int `json:"closedLeads"`
	Failures           int `json:"failures"`
}

// Sweeper is safe to run from several processes at once; guarded updates
// make overlapping runs converge.
type Sweeper struct {
	store       domain.Store
	configs     dispatch.ConfigSource
	dispatcher  Dispatcher
	bus         events.Bus
	log         *logger.Logger
	batchSize   int
	concurrency int
	now         func() time.Time
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithBatchSize bounds the rows touched per transaction and the leads
// reassigned per run.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithConcurrency bounds the leads reassigned in parallel.
func WithConcurrency(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// New creates a sweeper. bus may be nil.
func New(store domain.Store, configs dispatch.ConfigSource, dispatcher Dispatcher, bus events.Bus, log *logger.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:       store,
		configs:     configs,
		dispatcher:  dispatcher,
		bus:         bus,
		log:         log,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one sweep. Per-lead reassignment failures are counted and
// logged; only a failure of the expiry steps is returned.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	cfg := s.configs.Current()
	now := s.now()
	var res Result

	n, err := s.expireAssignments(ctx, now.Add(-cfg.LeadExpiry()), now)
	res.ExpiredAssignments = n
	if err != nil {
		s.log.WithContext(ctx).DatabaseError("expire assignments", err)
		return res, fmt.Errorf("expire assignments: %w", err)
	}

	n, err = s.expireQuotes(ctx, now.Add(-cfg.QuoteExpiry()), now)
	res.ExpiredQuotes = n
	if err != nil {
		s.log.WithContext(ctx).DatabaseError("expire quotes", err)
		return res, fmt.Errorf("expire quotes: %w", err)
	}

	if err := s.reassign(ctx, cfg, now, &res); err != nil {
		return res, fmt.Errorf("reassign leads: %w", err)
	}

	if res.ExpiredAssignments > 0 || res.ExpiredQuotes > 0 {
		s.publish(ctx, events.AssignmentsExpired{
			BaseEvent:   events.NewBaseEvent(),
			Assignments: res.ExpiredAssignments,
			Quotes:      res.ExpiredQuotes,
		})
	}
	s.log.WithContext(ctx).SweepSummary(res.ExpiredAssignments, res.ExpiredQuotes, res.ReassignedLeads, res.ClosedLeads, res.Failures, time.Since(started))
	return res, nil
}

func (s *Sweeper) expireAssignments(ctx context.Context, cutoff, now time.Time) (int, error) {
	total := 0
	for {
		var batch int
		err := s.store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			rows, err := tx.ExpireAssignments(ctx, cutoff, now, s.batchSize)
			if err != nil {
				return err
			}
			for _, a := range rows {
				event := domain.NewLeadEvent(a.LeadID, domain.EventExpired, now).
					WithProvider(a.ProviderID).
					With("scope", scopeAssignment).
					With("assignment_id", a.ID.String())
				if err := tx.AppendEvent(ctx, event); err != nil {
					return err
				}
			}
			batch = len(rows)
			return nil
		})
		if err != nil {
			return total, err
		}
		total += batch
		if batch < s.batchSize {
			return total, nil
		}
	}
}

func (s *Sweeper) expireQuotes(ctx context.Context, cutoff, now time.Time) (int, error) {
	total := 0
	for {
		var batch int
		err := s.store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			rows, err := tx.ExpireQuotes(ctx, cutoff, now, s.batchSize)
			if err != nil {
				return err
			}
			for _, q := range rows {
				event := domain.NewLeadEvent(q.LeadID, domain.EventExpired, now).
					WithProvider(q.ProviderID).
					With("scope", scopeQuote).
					With("quote_id", q.ID.String())
				if err := tx.AppendEvent(ctx, event); err != nil {
					return err
				}
			}
			batch = len(rows)
			return nil
		})
		if err != nil {
			return total, err
		}
		total += batch
		if batch < s.batchSize {
			return total, nil
		}
	}
}

func (s *Sweeper) reassign(ctx context.Context, cfg domain.AlgorithmConfig, now time.Time, res *Result) error {
	ids, err := s.store.ListStaleLeads(ctx, now.Add(-cfg.AutoReassign()), s.batchSize)
	if err != nil {
		return err
	}

	var reassigned, closed, failures atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			log := s.log.WithContext(gctx)
			out, err := s.dispatcher.Dispatch(gctx, id)
			if err != nil {
				failures.Add(1)
				log.Warn("lead reassignment failed", "lead_id", id, "error", err)
				return nil
			}
			if out.AssignedCount() > 0 {
				reassigned.Add(1)
				return nil
			}
			// Cooldown and quota skips clear with time; only an empty
			// candidate pool ends the lead.
			if !out.NotEligible {
				return nil
			}
			didClose, err := s.closeIfUnserved(gctx, cfg, id, now)
			if err != nil {
				failures.Add(1)
				log.Warn("closing unserved lead failed", "lead_id", id, "error", err)
				return nil
			}
			if didClose {
				closed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res.ReassignedLeads = int(reassigned.Load())
	res.ClosedLeads = int(closed.Load())
	res.Failures = int(failures.Load())
	return ctx.Err()
}

// closeIfUnserved ends a lead that has no active assignment left after a
// reassignment attempt found no eligible provider. Leads that never got an assignment are
// retried until they are older than the lead expiry window.
func (s *Sweeper) closeIfUnserved(ctx context.Context, cfg domain.AlgorithmConfig, leadID uuid.UUID, now time.Time) (bool, error) {
	var final domain.LeadStatus
	err := s.store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		lead, err := tx.LockLead(ctx, leadID)
		if err != nil {
			return err
		}
		if lead.Status.Rank() > domain.LeadViewed.Rank() || !lead.Status.IsOpen() {
			return nil
		}

		assignments, err := tx.ListLeadAssignments(ctx, leadID)
		if err != nil {
			return err
		}
		target, ok := unservedStatus(assignments)
		if !ok {
			return nil
		}
		if len(assignments) == 0 && !lead.CreatedAt.Before(now.Add(-cfg.LeadExpiry())) {
			return nil
		}

		next, changed := domain.AdvanceLead(lead.Status, target)
		if !changed {
			return nil
		}
		if err := tx.UpdateLeadStatus(ctx, leadID, next, now); err != nil {
			return err
		}
		event := domain.NewLeadEvent(leadID, domain.EventType(next), now).
			With("scope", scopeLead).
			With("assignments", len(assignments))
		if err := tx.AppendEvent(ctx, event); err != nil {
			return err
		}
		final = next
		return nil
	})
	if err != nil || final == "" {
		return false, err
	}
	s.publish(ctx, events.LeadUnserved{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		Status:    string(final),
	})
	return true, nil
}

// unservedStatus returns the off-ramp for a lead whose assignments are all
// terminal: declined when every provider declined, expired otherwise.
func unservedStatus(assignments []domain.Assignment) (domain.LeadStatus, bool) {
	allDeclined := len(assignments) > 0
	for _, a := range assignments {
		if a.Status.OccupiesSlot() {
			return "", false
		}
		if a.Status != domain.AssignmentDeclined {
			allDeclined = false
		}
	}
	if allDeclined {
		return domain.LeadDeclined, true
	}
	return domain.LeadExpired, true
}

func (s *Sweeper) publish(ctx context.Context, event events.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, event)
}
