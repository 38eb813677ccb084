package dispatch

import (
	"strings"
	"time"

	"lead_distribution_backend/internal/matching/domain"

	"github.com/google/uuid"
)

// Candidate is an eligible provider with its distance to the lead.
type Candidate struct {
	Provider   domain.Provider
	DistanceKm *float64
}

// Selector filters the directory down to eligible providers.
type Selector struct {
	catalog *Catalog
}

// NewSelector builds a selector over a specialty catalog.
func NewSelector(catalog *Catalog) *Selector {
	return &Selector{catalog: catalog}
}

// Select returns every provider satisfying all eligibility rules, skipping
// the ids in exclude. An empty result is a valid outcome.
func (s *Selector) Select(cfg domain.AlgorithmConfig, lead domain.Lead, providers []domain.Provider, exclude map[uuid.UUID]bool, now time.Time) []Candidate {
	out := make([]Candidate, 0, len(providers))
	leadDept := LeadDepartment(lead)
	for _, p := range providers {
		if exclude[p.ID] {
			continue
		}
		if c, ok := s.eligible(cfg, lead, leadDept, p, now); ok {
			out = append(out, c)
		}
	}
	return out
}

func (s *Selector) eligible(cfg domain.AlgorithmConfig, lead domain.Lead, leadDept string, p domain.Provider, now time.Time) (Candidate, bool) {
	if !p.Active {
		return Candidate{}, false
	}
	if cfg.ExcludeInactiveDays > 0 && p.LastActiveAt != nil {
		cutoff := now.AddDate(0, 0, -cfg.ExcludeInactiveDays)
		if p.LastActiveAt.Before(cutoff) {
			return Candidate{}, false
		}
	}
	if p.Rating < cfg.MinRating {
		return Candidate{}, false
	}
	if lead.Urgency == domain.UrgencyEmergency && cfg.RequireVerifiedUrgent && !p.Verified {
		return Candidate{}, false
	}
	if !s.catalog.Matches(cfg.SpecialtyMatchMode, lead.Specialty, p) {
		return Candidate{}, false
	}

	distance := Distance(lead, p)
	if cfg.RequireSameDepartment {
		provDept := strings.ToUpper(strings.TrimSpace(p.Department))
		if leadDept == "" || provDept != leadDept {
			return Candidate{}, false
		}
	} else if distance != nil && *distance > cfg.GeoRadiusKm {
		return Candidate{}, false
	}

	return Candidate{Provider: p, DistanceKm: distance}, true
}
