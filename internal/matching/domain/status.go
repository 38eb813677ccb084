package domain

// LeadStatus is the lead-level stage. Forward stages are ordered; declined
// and expired are terminal off-ramps.
type LeadStatus string

const (
	LeadCreated    LeadStatus = "created"
	LeadDispatched LeadStatus = "dispatched"
	LeadViewed     LeadStatus = "viewed"
	LeadQuoted     LeadStatus = "quoted"
	LeadAccepted   LeadStatus = "accepted"
	LeadCompleted  LeadStatus = "completed"
	LeadDeclined   LeadStatus = "declined"
	LeadExpired    LeadStatus = "expired"
)

var leadStageRank = map[LeadStatus]int{
	LeadCreated:    0,
	LeadDispatched: 1,
	LeadViewed:     2,
	LeadQuoted:     3,
	LeadAccepted:   4,
	LeadCompleted:  5,
}

// Rank returns the stage order, or -1 for off-ramps and unknown values.
func (s LeadStatus) Rank() int {
	if r, ok := leadStageRank[s]; ok {
		return r
	}
	return -1
}

// IsTerminal reports whether no further distribution can happen.
func (s LeadStatus) IsTerminal() bool {
	switch s {
	case LeadCompleted, LeadDeclined, LeadExpired:
		return true
	}
	return false
}

// IsOpen reports whether the lead may still receive assignments.
func (s LeadStatus) IsOpen() bool {
	switch s {
	case LeadCreated, LeadDispatched, LeadViewed, LeadQuoted:
		return true
	}
	return false
}

// AdvanceLead moves current forward to target when target is a later stage.
// Terminal leads and backwards moves are left untouched, so concurrent
// writers converge on the furthest stage reached.
func AdvanceLead(current, target LeadStatus) (LeadStatus, bool) {
	if current.IsTerminal() {
		return current, false
	}
	if target == LeadDeclined || target == LeadExpired {
		if current.Rank() >= LeadAccepted.Rank() {
			return current, false
		}
		return target, true
	}
	if target.Rank() > current.Rank() {
		return target, true
	}
	return current, false
}

// AssignmentStatus is the per-assignment lifecycle state.
type AssignmentStatus string

const (
	AssignmentPending  AssignmentStatus = "pending"
	AssignmentViewed   AssignmentStatus = "viewed"
	AssignmentQuoted   AssignmentStatus = "quoted"
	AssignmentAccepted AssignmentStatus = "accepted"
	AssignmentDeclined AssignmentStatus = "declined"
	AssignmentExpired  AssignmentStatus = "expired"
	AssignmentClosed   AssignmentStatus = "closed"
)

// IsTerminal reports whether the assignment can no longer change.
func (s AssignmentStatus) IsTerminal() bool {
	switch s {
	case AssignmentAccepted, AssignmentDeclined, AssignmentExpired, AssignmentClosed:
		return true
	}
	return false
}

// OccupiesSlot reports whether the assignment counts toward max_artisans_per_lead.
func (s AssignmentStatus) OccupiesSlot() bool {
	switch s {
	case AssignmentPending, AssignmentViewed, AssignmentQuoted, AssignmentAccepted:
		return true
	}
	return false
}

// AwaitingResponse reports whether the provider has not answered yet.
func (s AssignmentStatus) AwaitingResponse() bool {
	return s == AssignmentPending || s == AssignmentViewed
}

// QuoteStatus is the requester-side state of a quote.
type QuoteStatus string

const (
	QuotePending  QuoteStatus = "pending"
	QuoteAccepted QuoteStatus = "accepted"
	QuoteRefused  QuoteStatus = "refused"
	QuoteExpired  QuoteStatus = "expired"
)
