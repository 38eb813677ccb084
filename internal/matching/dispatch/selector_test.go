package dispatch

import (
	"testing"
	"time"

	"lead_distribution_backend/internal/matching/domain"

	"github.com/google/uuid"
)

func TestSelectorEligibility(t *testing.T) {
	sel := NewSelector(DefaultCatalog())
	lead := parisLead()

	cases := []struct {
		name   string
		mutate func(cfg *domain.AlgorithmConfig, lead *domain.Lead, p *domain.Provider)
		want   bool
	}{
		{name: "baseline", mutate: func(*domain.AlgorithmConfig, *domain.Lead, *domain.Provider) {}, want: true},
		{name: "inactive", mutate: func(_ *domain.AlgorithmConfig, _ *domain.Lead, p *domain.Provider) { p.Active = false }, want: false},
		{name: "stale activity", mutate: func(cfg *domain.AlgorithmConfig, _ *domain.Lead, p *domain.Provider) {
			p.LastActiveAt = ptr(testNow.AddDate(0, 0, -120))
		}, want: false},
		{name: "stale activity ignored when disabled", mutate: func(cfg *domain.AlgorithmConfig, _ *domain.Lead, p *domain.Provider) {
			cfg.ExcludeInactiveDays = 0
			p.LastActiveAt = ptr(testNow.AddDate(0, 0, -120))
		}, want: true},
		{name: "unknown activity eligible", mutate: func(_ *domain.AlgorithmConfig, _ *domain.Lead, p *domain.Provider) { p.LastActiveAt = nil }, want: true},
		{name: "rating below minimum", mutate: func(cfg *domain.AlgorithmConfig, _ *domain.Lead, p *domain.Provider) {
			cfg.MinRating = 4.8
		}, want: false},
		{name: "other specialty", mutate: func(_ *domain.AlgorithmConfig, _ *domain.Lead, p *domain.Provider) { p.Specialty = "couvreur" }, want: false},
		{name: "out of radius", mutate: func(_ *domain.AlgorithmConfig, _ *domain.Lead, p *domain.Provider) {
			p.Latitude, p.Longitude = ptr(45.7640), ptr(4.8357) // Lyon
		}, want: false},
		{name: "unknown distance eligible", mutate: func(_ *domain.AlgorithmConfig, l *domain.Lead, _ *domain.Provider) { l.Latitude = nil }, want: true},
		{name: "same department replaces radius", mutate: func(cfg *domain.AlgorithmConfig, _ *domain.Lead, p *domain.Provider) {
			cfg.RequireSameDepartment = true
			cfg.GeoRadiusKm = 1
		}, want: true},
		{name: "different department", mutate: func(cfg *domain.AlgorithmConfig, _ *domain.Lead, p *domain.Provider) {
			cfg.RequireSameDepartment = true
			p.Department = "92"
		}, want: false},
		{name: "emergency requires verified", mutate: func(cfg *domain.AlgorithmConfig, l *domain.Lead, p *domain.Provider) {
			cfg.RequireVerifiedUrgent = true
			l.Urgency = domain.UrgencyEmergency
			p.Verified = false
		}, want: false},
		{name: "emergency without rule", mutate: func(cfg *domain.AlgorithmConfig, l *domain.Lead, p *domain.Provider) {
			l.Urgency = domain.UrgencyEmergency
			p.Verified = false
		}, want: true},
		{name: "high urgency ignores verified rule", mutate: func(cfg *domain.AlgorithmConfig, l *domain.Lead, p *domain.Provider) {
			cfg.RequireVerifiedUrgent = true
			l.Urgency = domain.UrgencyHigh
			p.Verified = false
		}, want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := noLimitsConfig()
			l := lead
			p := plumber(1)
			tc.mutate(&cfg, &l, &p)

			got := sel.Select(cfg, l, []domain.Provider{p}, nil, testNow)
			if (len(got) == 1) != tc.want {
				t.Fatalf("eligible = %v, want %v", len(got) == 1, tc.want)
			}
		})
	}
}

func TestSelectorSkipsExcluded(t *testing.T) {
	sel := NewSelector(DefaultCatalog())
	a, b := plumber(1), plumber(2)
	got := sel.Select(noLimitsConfig(), parisLead(), []domain.Provider{a, b}, map[uuid.UUID]bool{a.ID: true}, testNow)
	if len(got) != 1 || got[0].Provider.ID != b.ID {
		t.Fatalf("expected only provider 2, got %+v", got)
	}
}

func TestSelectorReportsDistance(t *testing.T) {
	sel := NewSelector(DefaultCatalog())
	got := sel.Select(noLimitsConfig(), parisLead(), []domain.Provider{plumber(1)}, nil, time.Now())
	if len(got) != 1 || got[0].DistanceKm == nil || *got[0].DistanceKm > 5 {
		t.Fatalf("unexpected distance: %+v", got)
	}
}
