package domain

import (
	"time"

	"github.com/google/uuid"
)

// Strategy selects how eligible candidates are ordered before commit.
type Strategy string

const (
	StrategyRoundRobin Strategy = "round_robin"
	StrategyScored     Strategy = "scored"
	StrategyGeographic Strategy = "geographic"
)

// SpecialtyMatchMode controls how lead and provider specialties are compared.
type SpecialtyMatchMode string

const (
	MatchExact    SpecialtyMatchMode = "exact"
	MatchFuzzy    SpecialtyMatchMode = "fuzzy"
	MatchCategory SpecialtyMatchMode = "category"
)

// WeightSum is the required total of the scoring weights.
const WeightSum = 100

// Weights are the scoring weights, each 0..100, summing to WeightSum.
type Weights struct {
	Rating      int `json:"rating" yaml:"rating" validate:"min=0,max=100"`
	Reviews     int `json:"reviews" yaml:"reviews" validate:"min=0,max=100"`
	Verified    int `json:"verified" yaml:"verified" validate:"min=0,max=100"`
	Proximity   int `json:"proximity" yaml:"proximity" validate:"min=0,max=100"`
	DataQuality int `json:"data_quality" yaml:"data_quality" validate:"min=0,max=100"`
}

// Total returns the sum of all five weights.
func (w Weights) Total() int {
	return w.Rating + w.Reviews + w.Verified + w.Proximity + w.DataQuality
}

// UrgencyMultipliers scale the final score per lead urgency.
type UrgencyMultipliers struct {
	Low       float64 `json:"low" yaml:"low" validate:"gte=0,lte=10"`
	Medium    float64 `json:"medium" yaml:"medium" validate:"gte=0,lte=10"`
	High      float64 `json:"high" yaml:"high" validate:"gte=0,lte=10"`
	Emergency float64 `json:"emergency" yaml:"emergency" validate:"gte=0,lte=10"`
}

// AlgorithmConfig is the immutable tuning snapshot consulted by every
// dispatch and sweep. Copies are swapped atomically, never mutated in place.
type AlgorithmConfig struct {
	MatchingStrategy      Strategy           `json:"matching_strategy" yaml:"matching_strategy" validate:"oneof=round_robin scored geographic"`
	MaxArtisansPerLead    int                `json:"max_artisans_per_lead" yaml:"max_artisans_per_lead" validate:"min=1,max=20"`
	GeoRadiusKm           float64            `json:"geo_radius_km" yaml:"geo_radius_km" validate:"gte=1,lte=500"`
	RequireSameDepartment bool               `json:"require_same_department" yaml:"require_same_department"`
	SpecialtyMatchMode    SpecialtyMatchMode `json:"specialty_match_mode" yaml:"specialty_match_mode" validate:"oneof=exact fuzzy category"`
	Weights               Weights            `json:"weights" yaml:"weights"`
	DailyLeadQuota        int                `json:"daily_lead_quota" yaml:"daily_lead_quota" validate:"min=0"`
	MonthlyLeadQuota      int                `json:"monthly_lead_quota" yaml:"monthly_lead_quota" validate:"min=0"`
	CooldownMinutes       int                `json:"cooldown_minutes" yaml:"cooldown_minutes" validate:"min=0"`
	LeadExpiryHours       int                `json:"lead_expiry_hours" yaml:"lead_expiry_hours" validate:"gt=0"`
	QuoteExpiryHours      int                `json:"quote_expiry_hours" yaml:"quote_expiry_hours" validate:"gt=0"`
	AutoReassignHours     int                `json:"auto_reassign_hours" yaml:"auto_reassign_hours" validate:"gt=0"`
	MinRating             float64            `json:"min_rating" yaml:"min_rating" validate:"gte=0,lte=5"`
	RequireVerifiedUrgent bool               `json:"require_verified_urgent" yaml:"require_verified_urgent"`
	ExcludeInactiveDays   int                `json:"exclude_inactive_days" yaml:"exclude_inactive_days" validate:"min=0"`
	PreferClaimed         bool               `json:"prefer_claimed" yaml:"prefer_claimed"`
	UrgencyMultipliers    UrgencyMultipliers `json:"urgency_multipliers" yaml:"urgency_multipliers"`

	Version   int64      `json:"version" yaml:"-"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"-"`
	UpdatedBy *uuid.UUID `json:"updated_by,omitempty" yaml:"-"`
}

// DefaultAlgorithmConfig returns the factory settings used when no row has
// been persisted yet.
func DefaultAlgorithmConfig() AlgorithmConfig {
	return AlgorithmConfig{
		MatchingStrategy:   StrategyScored,
		MaxArtisansPerLead: 3,
		GeoRadiusKm:        50,
		SpecialtyMatchMode: MatchCategory,
		Weights: Weights{
			Rating:      30,
			Reviews:     15,
			Verified:    20,
			Proximity:   25,
			DataQuality: 10,
		},
		CooldownMinutes:     30,
		LeadExpiryHours:     48,
		QuoteExpiryHours:    72,
		AutoReassignHours:   24,
		ExcludeInactiveDays: 90,
		PreferClaimed:       true,
		UrgencyMultipliers: UrgencyMultipliers{
			Low:       1.0,
			Medium:    1.0,
			High:      1.5,
			Emergency: 2.0,
		},
	}
}

// Multiplier returns the score multiplier for u. Unknown urgencies use medium.
func (c AlgorithmConfig) Multiplier(u Urgency) float64 {
	switch u {
	case UrgencyLow:
		return c.UrgencyMultipliers.Low
	case UrgencyHigh:
		return c.UrgencyMultipliers.High
	case UrgencyEmergency:
		return c.UrgencyMultipliers.Emergency
	default:
		return c.UrgencyMultipliers.Medium
	}
}

// Cooldown returns the minimum gap between two assignments to one provider.
func (c AlgorithmConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// LeadExpiry returns how long an unanswered assignment stays open.
func (c AlgorithmConfig) LeadExpiry() time.Duration {
	return time.Duration(c.LeadExpiryHours) * time.Hour
}

// QuoteExpiry returns how long a pending quote waits for the requester.
func (c AlgorithmConfig) QuoteExpiry() time.Duration {
	return time.Duration(c.QuoteExpiryHours) * time.Hour
}

// AutoReassign returns the inactivity window after which a lead is topped up.
func (c AlgorithmConfig) AutoReassign() time.Duration {
	return time.Duration(c.AutoReassignHours) * time.Hour
}

// AlgorithmConfigPatch is a partial update. Nil fields keep their value.
// Weights, when present, must carry all five values.
type AlgorithmConfigPatch struct {
	MatchingStrategy      *Strategy                `json:"matching_strategy"`
	MaxArtisansPerLead    *int                     `json:"max_artisans_per_lead"`
	GeoRadiusKm           *float64                 `json:"geo_radius_km"`
	RequireSameDepartment *bool                    `json:"require_same_department"`
	SpecialtyMatchMode    *SpecialtyMatchMode      `json:"specialty_match_mode"`
	Weights               *WeightsPatch            `json:"weights"`
	DailyLeadQuota        *int                     `json:"daily_lead_quota"`
	MonthlyLeadQuota      *int                     `json:"monthly_lead_quota"`
	CooldownMinutes       *int                     `json:"cooldown_minutes"`
	LeadExpiryHours       *int                     `json:"lead_expiry_hours"`
	QuoteExpiryHours      *int                     `json:"quote_expiry_hours"`
	AutoReassignHours     *int                     `json:"auto_reassign_hours"`
	MinRating             *float64                 `json:"min_rating"`
	RequireVerifiedUrgent *bool                    `json:"require_verified_urgent"`
	ExcludeInactiveDays   *int                     `json:"exclude_inactive_days"`
	PreferClaimed         *bool                    `json:"prefer_claimed"`
	UrgencyMultipliers    *UrgencyMultipliersPatch `json:"urgency_multipliers"`
}

// WeightsPatch carries a full replacement weight set.
type WeightsPatch struct {
	Rating      *int `json:"rating"`
	Reviews     *int `json:"reviews"`
	Verified    *int `json:"verified"`
	Proximity   *int `json:"proximity"`
	DataQuality *int `json:"data_quality"`
}

// Complete reports whether all five weights are present.
func (w WeightsPatch) Complete() bool {
	return w.Rating != nil && w.Reviews != nil && w.Verified != nil && w.Proximity != nil && w.DataQuality != nil
}

// UrgencyMultipliersPatch updates individual multipliers.
type UrgencyMultipliersPatch struct {
	Low       *float64 `json:"low"`
	Medium    *float64 `json:"medium"`
	High      *float64 `json:"high"`
	Emergency *float64 `json:"emergency"`
}

// Apply returns a copy of c with the patch applied. It does not validate;
// incomplete weights are left for the caller to reject.
func (c AlgorithmConfig) Apply(p AlgorithmConfigPatch) AlgorithmConfig {
	next := c
	setIf(&next.MatchingStrategy, p.MatchingStrategy)
	setIf(&next.MaxArtisansPerLead, p.MaxArtisansPerLead)
	setIf(&next.GeoRadiusKm, p.GeoRadiusKm)
	setIf(&next.RequireSameDepartment, p.RequireSameDepartment)
	setIf(&next.SpecialtyMatchMode, p.SpecialtyMatchMode)
	setIf(&next.DailyLeadQuota, p.DailyLeadQuota)
	setIf(&next.MonthlyLeadQuota, p.MonthlyLeadQuota)
	setIf(&next.CooldownMinutes, p.CooldownMinutes)
	setIf(&next.LeadExpiryHours, p.LeadExpiryHours)
	setIf(&next.QuoteExpiryHours, p.QuoteExpiryHours)
	setIf(&next.AutoReassignHours, p.AutoReassignHours)
	setIf(&next.MinRating, p.MinRating)
	setIf(&next.RequireVerifiedUrgent, p.RequireVerifiedUrgent)
	setIf(&next.ExcludeInactiveDays, p.ExcludeInactiveDays)
	setIf(&next.PreferClaimed, p.PreferClaimed)

	if w := p.Weights; w != nil {
		setIf(&next.Weights.Rating, w.Rating)
		setIf(&next.Weights.Reviews, w.Reviews)
		setIf(&next.Weights.Verified, w.Verified)
		setIf(&next.Weights.Proximity, w.Proximity)
		setIf(&next.Weights.DataQuality, w.DataQuality)
	}
	if m := p.UrgencyMultipliers; m != nil {
		setIf(&next.UrgencyMultipliers.Low, m.Low)
		setIf(&next.UrgencyMultipliers.Medium, m.Medium)
		setIf(&next.UrgencyMultipliers.High, m.High)
		setIf(&next.UrgencyMultipliers.Emergency, m.Emergency)
	}
	return next
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
