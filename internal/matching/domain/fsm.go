package domain

// Action is a provider-side lifecycle action on an assignment.
type Action string

const (
	ActionView    Action = "view"
	ActionQuote   Action = "quote"
	ActionDecline Action = "decline"
)

// Outcome classifies a lookup in the transition table.
type Outcome int

const (
	// OutcomeConflict rejects the action.
	OutcomeConflict Outcome = iota
	// OutcomeAdvance applies the transition.
	OutcomeAdvance
	// OutcomeNoOp reports success without writing anything.
	OutcomeNoOp
)

// Transition is one cell of the assignment transition table.
type Transition struct {
	Outcome Outcome
	Next    AssignmentStatus
}

func advance(next AssignmentStatus) Transition { return Transition{Outcome: OutcomeAdvance, Next: next} }

var noop = Transition{Outcome: OutcomeNoOp}

// assignmentTransitions lists every allowed (status, action) pair. Missing
// cells are conflicts: the assignment reached a terminal state some other way.
var assignmentTransitions = map[AssignmentStatus]map[Action]Transition{
	AssignmentPending: {
		ActionView:    advance(AssignmentViewed),
		ActionQuote:   advance(AssignmentQuoted),
		ActionDecline: advance(AssignmentDeclined),
	},
	AssignmentViewed: {
		ActionView:    noop,
		ActionQuote:   advance(AssignmentQuoted),
		ActionDecline: advance(AssignmentDeclined),
	},
	AssignmentQuoted: {
		ActionView:  noop,
		ActionQuote: noop,
	},
	AssignmentAccepted: {
		ActionView:  noop,
		ActionQuote: noop,
	},
	AssignmentDeclined: {
		ActionDecline: noop,
	},
}

// NextAssignment looks up the transition for action on an assignment in current.
func NextAssignment(current AssignmentStatus, action Action) Transition {
	if row, ok := assignmentTransitions[current]; ok {
		if t, ok := row[action]; ok {
			return t
		}
	}
	return Transition{Outcome: OutcomeConflict}
}

// LeadStageFor maps an assignment status reached by a provider action to
// the lead stage it implies.
func LeadStageFor(status AssignmentStatus) (LeadStatus, bool) {
	switch status {
	case AssignmentPending:
		return LeadDispatched, true
	case AssignmentViewed:
		return LeadViewed, true
	case AssignmentQuoted:
		return LeadQuoted, true
	case AssignmentAccepted:
		return LeadAccepted, true
	}
	return "", false
}

// EventFor maps an applied assignment transition to its event type.
func EventFor(action Action) EventType {
	switch action {
	case ActionView:
		return EventViewed
	case ActionQuote:
		return EventQuoted
	default:
		return EventDeclined
	}
}
