package dispatch

import (
	"bytes"
	"slices"

	"lead_distribution_backend/internal/matching/domain"
)

// Order returns the candidates sorted for the given strategy. The input is
// not modified. Every ordering ends on provider id so results are stable.
func Order(strategy domain.Strategy, scored []Scored) []Scored {
	out := slices.Clone(scored)
	switch strategy {
	case domain.StrategyRoundRobin:
		slices.SortFunc(out, compareRoundRobin)
	case domain.StrategyGeographic:
		slices.SortFunc(out, compareGeographic)
	default:
		slices.SortFunc(out, compareScored)
	}
	return out
}

func compareScored(a, b Scored) int {
	if a.Score != b.Score {
		if a.Score > b.Score {
			return -1
		}
		return 1
	}
	return compareID(a, b)
}

// compareRoundRobin favours providers that waited longest since their last
// assignment; never-assigned providers come first.
func compareRoundRobin(a, b Scored) int {
	la, lb := a.Provider.LastAssignedAt, b.Provider.LastAssignedAt
	switch {
	case la == nil && lb != nil:
		return -1
	case la != nil && lb == nil:
		return 1
	case la != nil && lb != nil && !la.Equal(*lb):
		return la.Compare(*lb)
	}
	return compareScored(a, b)
}

// compareGeographic sorts nearest first with unknown distances last. Quality
// signals are ignored.
func compareGeographic(a, b Scored) int {
	da, db := a.DistanceKm, b.DistanceKm
	switch {
	case da == nil && db != nil:
		return 1
	case da != nil && db == nil:
		return -1
	case da != nil && db != nil && *da != *db:
		if *da < *db {
			return -1
		}
		return 1
	}
	return compareID(a, b)
}

func compareID(a, b Scored) int {
	return bytes.Compare(a.Provider.ID[:], b.Provider.ID[:])
}
