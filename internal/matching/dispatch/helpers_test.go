package dispatch

import (
	"fmt"
	"time"

	"lead_distribution_backend/internal/matching/domain"

	"github.com/google/uuid"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type staticConfig struct{ cfg domain.AlgorithmConfig }

func (s staticConfig) Current() domain.AlgorithmConfig { return s.cfg }

func ptr[T any](v T) *T { return &v }

// providerID returns deterministic ids so id tie-breaks are predictable:
// providerID(1) < providerID(2) < ...
func providerID(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}

func parisLead() domain.Lead {
	return domain.Lead{
		ID:          uuid.New(),
		Specialty:   "plombier",
		City:        "Paris",
		PostalCode:  "75011",
		Latitude:    ptr(48.8590),
		Longitude:   ptr(2.3800),
		Urgency:     domain.UrgencyMedium,
		Status:      domain.LeadCreated,
		RequesterID: uuid.New(),
		CreatedAt:   testNow.Add(-time.Hour),
	}
}

func plumber(n int) domain.Provider {
	return domain.Provider{
		ID:          providerID(n),
		Name:        fmt.Sprintf("Plomberie %d", n),
		Specialty:   "plombier",
		Department:  "75",
		Latitude:    ptr(48.8566),
		Longitude:   ptr(2.3522),
		Active:      true,
		Verified:    true,
		Rating:      4.5,
		ReviewCount: 40,
		DataQuality: 80,
	}
}

func noLimitsConfig() domain.AlgorithmConfig {
	cfg := domain.DefaultAlgorithmConfig()
	cfg.CooldownMinutes = 0
	cfg.PreferClaimed = false
	return cfg
}
