// Package funnel aggregates the lead event log into conversion stages.
package funnel

import (
	"context"
	"math"

	"lead_distribution_backend/internal/matching/domain"
	"lead_distribution_backend/platform/apperr"
)

// Stages are the forward funnel steps in order.
var Stages = []domain.EventType{
	domain.EventCreated,
	domain.EventDispatched,
	domain.EventViewed,
	domain.EventQuoted,
	domain.EventAccepted,
	domain.EventCompleted,
}

// OffRamps are the exits measured against dispatched leads.
var OffRamps = []domain.EventType{
	domain.EventDeclined,
	domain.EventExpired,
}

// Counter is the read side the funnel needs.
type Counter interface {
	CountFunnel(ctx context.Context, filter domain.FunnelFilter) (map[domain.EventType]int, error)
}

// Step is one row of the report.
type Step struct {
	Stage domain.EventType `json:"stage"`
	Count int              `json:"count"`
	Rate  float64          `json:"rate"`
}

// Report is the funnel for one filter.
type Report struct {
	Stages   []Step `json:"stages"`
	OffRamps []Step `json:"offRamps"`
}

// Service builds funnel reports.
type Service struct {
	counter Counter
}

// New creates a funnel service.
func New(counter Counter) *Service {
	return &Service{counter: counter}
}

// Report counts distinct leads per stage. Each stage's rate is relative to
// the previous stage, and the created stage has rate 1 when non-empty.
// Off-ramp rates are relative to dispatched. A zero denominator gives 0.
func (s *Service) Report(ctx context.Context, filter domain.FunnelFilter) (Report, error) {
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return Report{}, apperr.Validation("from must be before to").
			WithDetails(map[string]string{"from": "before to"})
	}

	counts, err := s.counter.CountFunnel(ctx, filter)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Stages:   make([]Step, 0, len(Stages)),
		OffRamps: make([]Step, 0, len(OffRamps)),
	}
	prev := counts[domain.EventCreated]
	for _, stage := range Stages {
		n := counts[stage]
		report.Stages = append(report.Stages, Step{Stage: stage, Count: n, Rate: rate(n, prev)})
		prev = n
	}

	dispatched := counts[domain.EventDispatched]
	for _, stage := range OffRamps {
		n := counts[stage]
		report.OffRamps = append(report.OffRamps, Step{Stage: stage, Count: n, Rate: rate(n, dispatched)})
	}
	return report, nil
}

func rate(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(of)*10000) / 10000
}
