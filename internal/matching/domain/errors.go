package domain

import "errors"

// Candidate-level outcomes. The assigner treats these as skips and moves on
// to the next candidate; they never fail a dispatch.
var (
	ErrQuotaExceeded   = errors.New("provider lead quota exceeded")
	ErrCooldownActive  = errors.New("provider cooldown active")
	ErrAlreadyAssigned = errors.New("provider already assigned to lead")
	ErrLeadFull        = errors.New("lead has no free assignment slot")
	ErrLeadClosed      = errors.New("lead no longer accepts assignments")
)

// ErrNotEligible marks an empty selector result. It is reported in dispatch
// results, never returned as a failure.
var ErrNotEligible = errors.New("no eligible provider")

// IsCandidateSkip reports whether err is a per-candidate skip.
func IsCandidateSkip(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrCooldownActive) ||
		errors.Is(err, ErrAlreadyAssigned) ||
		errors.Is(err, ErrLeadFull) ||
		errors.Is(err, ErrLeadClosed)
}

// SkipReason is the stable label used in logs and dispatch results.
func SkipReason(err error) string {
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrCooldownActive):
		return "cooldown_active"
	case errors.Is(err, ErrAlreadyAssigned):
		return "already_assigned"
	case errors.Is(err, ErrLeadFull):
		return "lead_full"
	case errors.Is(err, ErrLeadClosed):
		return "lead_closed"
	}
	return "error"
}
