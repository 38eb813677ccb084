// Package dispatch selects, scores and assigns providers to a lead.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"lead_distribution_backend/internal/events"
	"lead_distribution_backend/internal/matching/domain"
	"lead_distribution_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	quotaDayWindow   = 24 * time.Hour
	quotaMonthWindow = 30 * 24 * time.Hour
)

// ConfigSource hands out the current algorithm config snapshot.
type ConfigSource interface {
	Current() domain.AlgorithmConfig
}

// Result summarises one dispatch run.
type Result struct {
	LeadID      uuid.UUID           `json:"leadId"`
	Strategy    domain.Strategy     `json:"strategy"`
	Slots       int                 `json:"slots"`
	Eligible    int                 `json:"eligible"`
	NotEligible bool                `json:"notEligible"`
	Assigned    []domain.Assignment `json:"-"`
	Skipped     map[string]int      `json:"skipped"`
}

// AssignedCount returns how many assignments were committed.
func (r Result) AssignedCount() int { return len(r.Assigned) }

func (r Result) skippedTotal() int {
	n := 0
	for _, v := range r.Skipped {
		n += v
	}
	return n
}

// Service runs the selector, scorer and strategy, then commits candidates.
type Service struct {
	store    domain.Store
	configs  ConfigSource
	selector *Selector
	bus      events.Bus
	log      *logger.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates the dispatch service.
func New(store domain.Store, configs ConfigSource, catalog *Catalog, bus events.Bus, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		configs:  configs,
		selector: NewSelector(catalog),
		bus:      bus,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch tops the lead up to max_artisans_per_lead active assignments.
// Providers already assigned to the lead in any status are never picked
// again. It is safe to re-run: an already-served lead yields no new rows.
func (s *Service) Dispatch(ctx context.Context, leadID uuid.UUID) (Result, error) {
	cfg := s.configs.Current()
	now := s.now()
	res := Result{LeadID: leadID, Strategy: cfg.MatchingStrategy, Skipped: map[string]int{}}

	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return res, err
	}
	if !lead.Status.IsOpen() {
		res.Skipped[domain.SkipReason(domain.ErrLeadClosed)]++
		return res, nil
	}

	existing, err := s.store.ListLeadAssignments(ctx, leadID)
	if err != nil {
		return res, err
	}
	exclude := make(map[uuid.UUID]bool, len(existing))
	active := 0
	for _, a := range existing {
		exclude[a.ProviderID] = true
		if a.Status.OccupiesSlot() {
			active++
		}
	}
	res.Slots = cfg.MaxArtisansPerLead - active
	if res.Slots <= 0 {
		res.Slots = 0
		return res, nil
	}

	providers, err := s.store.ListProviders(ctx, domain.ProviderFilter{MinRating: cfg.MinRating})
	if err != nil {
		return res, err
	}

	candidates := s.selector.Select(cfg, lead, providers, exclude, now)
	res.Eligible = len(candidates)
	if len(candidates) == 0 {
		res.NotEligible = true
		s.log.WithContext(ctx).Info("no eligible provider", "lead_id", leadID, "error", domain.ErrNotEligible)
		return res, nil
	}

	ordered := Order(cfg.MatchingStrategy, ScoreAll(cfg, lead, candidates))
	if err := s.commitInBatches(ctx, cfg, lead, ordered, len(existing), now, &res); err != nil {
		return res, err
	}

	s.log.WithContext(ctx).DispatchSummary(leadID.String(), string(cfg.MatchingStrategy), res.Eligible, len(res.Assigned), res.skippedTotal())
	s.publish(ctx, res)
	return res, nil
}

type commitOutcome struct {
	assignment *domain.Assignment
	skip       error
}

// commitInBatches walks the ordered list committing up to "remaining slots"
// candidates in parallel per round until the slots are filled or the list
// runs out. Skips never abort; a store failure does.
func (s *Service) commitInBatches(ctx context.Context, cfg domain.AlgorithmConfig, lead domain.Lead, ordered []Scored, offset int, now time.Time, res *Result) error {
	next := 0
	for len(res.Assigned) < res.Slots && next < len(ordered) {
		size := min(res.Slots-len(res.Assigned), len(ordered)-next)
		batch := ordered[next : next+size]
		outcomes := make([]commitOutcome, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		for i, cand := range batch {
			i, cand := i, cand
			position := offset + next + i + 1
			g.Go(func() error {
				a, err := s.commit(gctx, cfg, lead, cand, position, now)
				if err != nil {
					if domain.IsCandidateSkip(err) {
						outcomes[i] = commitOutcome{skip: err}
						return nil
					}
					return fmt.Errorf("commit provider %s: %w", cand.Provider.ID, err)
				}
				outcomes[i] = commitOutcome{assignment: &a}
				return nil
			})
		}
		next += size

		err := g.Wait()
		stop := false
		for _, o := range outcomes {
			switch {
			case o.assignment != nil:
				res.Assigned = append(res.Assigned, *o.assignment)
			case o.skip != nil:
				res.Skipped[domain.SkipReason(o.skip)]++
				if errors.Is(o.skip, domain.ErrLeadFull) || errors.Is(o.skip, domain.ErrLeadClosed) {
					stop = true
				}
			}
		}
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

// commit is the atomic read-check-write for one candidate. The lead row is
// locked first and serialises slot counting; the provider row lock makes the
// cooldown and quota counts consistent with the insert.
func (s *Service) commit(ctx context.Context, cfg domain.AlgorithmConfig, lead domain.Lead, cand Scored, position int, now time.Time) (domain.Assignment, error) {
	var created domain.Assignment
	err := s.store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		locked, err := tx.LockLead(ctx, lead.ID)
		if err != nil {
			return err
		}
		if !locked.Status.IsOpen() {
			return domain.ErrLeadClosed
		}

		assignments, err := tx.ListLeadAssignments(ctx, lead.ID)
		if err != nil {
			return err
		}
		active := 0
		for _, a := range assignments {
			if a.ProviderID == cand.Provider.ID {
				return domain.ErrAlreadyAssigned
			}
			if a.Status.OccupiesSlot() {
				active++
			}
		}
		if active >= cfg.MaxArtisansPerLead {
			return domain.ErrLeadFull
		}

		provider, err := tx.LockProvider(ctx, cand.Provider.ID)
		if err != nil {
			return err
		}
		if err := checkAvailability(ctx, tx, cfg, provider, now); err != nil {
			return err
		}

		created = domain.Assignment{
			ID:         uuid.New(),
			LeadID:     lead.ID,
			ProviderID: provider.ID,
			Status:     domain.AssignmentPending,
			Score:      round2(cand.Score),
			DistanceKm: cand.DistanceKm,
			Position:   position,
			AssignedAt: now,
		}
		inserted, err := tx.InsertAssignment(ctx, created)
		if err != nil {
			return err
		}
		if !inserted {
			return domain.ErrAlreadyAssigned
		}
		if err := tx.TouchProviderAssigned(ctx, provider.ID, now); err != nil {
			return err
		}
		if next, changed := domain.AdvanceLead(locked.Status, domain.LeadDispatched); changed {
			if err := tx.UpdateLeadStatus(ctx, lead.ID, next, now); err != nil {
				return err
			}
		}

		event := domain.NewLeadEvent(lead.ID, domain.EventDispatched, now).
			WithProvider(provider.ID).
			With("assignment_id", created.ID.String()).
			With("score", created.Score).
			With("position", position).
			With("strategy", string(cfg.MatchingStrategy))
		if cand.DistanceKm != nil {
			event = event.With("distance_km", round2(*cand.DistanceKm))
		}
		return tx.AppendEvent(ctx, event)
	})
	if err != nil {
		return domain.Assignment{}, err
	}
	return created, nil
}

func checkAvailability(ctx context.Context, tx domain.Tx, cfg domain.AlgorithmConfig, p domain.Provider, now time.Time) error {
	if cooldown := cfg.Cooldown(); cooldown > 0 && p.LastAssignedAt != nil && now.Sub(*p.LastAssignedAt) < cooldown {
		return domain.ErrCooldownActive
	}
	if cfg.DailyLeadQuota > 0 {
		n, err := tx.CountProviderAssignmentsSince(ctx, p.ID, now.Add(-quotaDayWindow))
		if err != nil {
			return err
		}
		if n >= cfg.DailyLeadQuota {
			return domain.ErrQuotaExceeded
		}
	}
	if cfg.MonthlyLeadQuota > 0 {
		n, err := tx.CountProviderAssignmentsSince(ctx, p.ID, now.Add(-quotaMonthWindow))
		if err != nil {
			return err
		}
		if n >= cfg.MonthlyLeadQuota {
			return domain.ErrQuotaExceeded
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, res Result) {
	if s.bus == nil || len(res.Assigned) == 0 {
		return
	}
	evt := events.LeadDispatched{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    res.LeadID,
		Strategy:  string(res.Strategy),
	}
	for _, a := range res.Assigned {
		evt.AssignmentIDs = append(evt.AssignmentIDs, a.ID)
		evt.ProviderIDs = append(evt.ProviderIDs, a.ProviderID)
	}
	s.bus.Publish(ctx, evt)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
