package models

import "slices"

// Role is an actor's relationship to one acceptance record.
type Role string

const (
	RoleProposer Role = "proposer"
	RoleReviewer Role = "reviewer"
	RoleApprover Role = "approver"
	RoleSystem   Role = "system"
)

// Edge is one row of the transition table.
//
// Sources listing more than one status is how PROPOSED and CCRO_REVIEW are
// collapsed: both are legal starting points for the same edge. When the record
// sits in a status named in Via, the edge first traverses the named action so
// the ledger still records the implicit step.
type Edge struct {
	Action  Action
	Sources []Status
	Target  Status
	Roles   []Role
	Via     map[Status]Action
}

func (e Edge) legalFrom(s Status) bool {
	return slices.Contains(e.Sources, s)
}

var edges = map[Action]Edge{
	ActionSubmitForReview: {
		Action:  ActionSubmitForReview,
		Sources: []Status{StatusProposed},
		Target:  StatusCCROReview,
		Roles:   []Role{RoleProposer, RoleReviewer},
	},
	ActionRouteToApprover: {
		Action:  ActionRouteToApprover,
		Sources: []Status{StatusProposed, StatusCCROReview},
		Target:  StatusAwaitingApproval,
		Roles:   []Role{RoleReviewer},
		Via:     map[Status]Action{StatusProposed: ActionSubmitForReview},
	},
	ActionReturn: {
		Action:  ActionReturn,
		Sources: []Status{StatusProposed, StatusCCROReview},
		Target:  StatusReturned,
		Roles:   []Role{RoleReviewer},
	},
	ActionResubmit: {
		Action:  ActionResubmit,
		Sources: []Status{StatusReturned, StatusExpired},
		Target:  StatusCCROReview,
		Roles:   []Role{RoleProposer, RoleReviewer},
	},
	ActionApprove: {
		Action:  ActionApprove,
		Sources: []Status{StatusAwaitingApproval},
		Target:  StatusApproved,
		Roles:   []Role{RoleApprover, RoleReviewer},
	},
	ActionReject: {
		Action:  ActionReject,
		Sources: []Status{StatusAwaitingApproval},
		Target:  StatusRejected,
		Roles:   []Role{RoleApprover, RoleReviewer},
	},
	ActionExpire: {
		Action:  ActionExpire,
		Sources: []Status{StatusApproved},
		Target:  StatusExpired,
		Roles:   []Role{RoleSystem},
	},
}

// EdgeFor returns the table row for action.
func EdgeFor(action Action) (Edge, bool) {
	e, ok := edges[action]
	return e, ok
}

// TransitionActions lists every action a caller may request, in table order.
func TransitionActions() []Action {
	return []Action{
		ActionSubmitForReview,
		ActionRouteToApprover,
		ActionReturn,
		ActionResubmit,
		ActionApprove,
		ActionReject,
		ActionExpire,
	}
}

// CanPerform is the single capability check for lifecycle actions.
func CanPerform(role Role, action Action) bool {
	e, ok := edges[action]
	if !ok {
		return false
	}
	return slices.Contains(e.Roles, role)
}

// IsLegal reports whether the table has an edge for action starting at from.
func IsLegal(from Status, action Action) bool {
	e, ok := edges[action]
	return ok && e.legalFrom(from)
}

// IsLegalStep reports whether from→to is a single edge of the table, or a
// CREATED entry (""→PROPOSED). Used to validate a ledger path.
func IsLegalStep(action Action, from, to Status) bool {
	if action == ActionCreated {
		return from == "" && to == StatusProposed
	}
	e, ok := edges[action]
	if !ok {
		return false
	}
	return e.legalFrom(from) && e.Target == to
}
