package models

import (
	"fmt"

	dErrors "riskaccept/pkg/domain-errors"
)

// Status is the workflow position of an acceptance.
type Status string

const (
	StatusProposed         Status = "PROPOSED"
	StatusCCROReview       Status = "CCRO_REVIEW"
	StatusAwaitingApproval Status = "AWAITING_APPROVAL"
	StatusApproved         Status = "APPROVED"
	StatusRejected         Status = "REJECTED"
	StatusReturned         Status = "RETURNED"
	StatusExpired          Status = "EXPIRED"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{
	StatusProposed,
	StatusCCROReview,
	StatusAwaitingApproval,
	StatusApproved,
	StatusRejected,
	StatusReturned,
	StatusExpired,
}

func (s Status) IsValid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown status %q", s))
	}
	return st, nil
}

// Source is where the need for an acceptance originated.
type Source string

const (
	SourceRiskRegister   Source = "RISK_REGISTER"
	SourceControlTesting Source = "CONTROL_TESTING"
	SourceIncident       Source = "INCIDENT"
	SourceAdHoc          Source = "AD_HOC"
)

var sourceLabels = map[Source]string{
	SourceRiskRegister:   "Risk Register",
	SourceControlTesting: "Control Testing",
	SourceIncident:       "Incident",
	SourceAdHoc:          "Ad-hoc",
}

func (s Source) IsValid() bool {
	_, ok := sourceLabels[s]
	return ok
}

func (s Source) Label() string {
	if l, ok := sourceLabels[s]; ok {
		return l
	}
	return string(s)
}

func ParseSource(s string) (Source, error) {
	src := Source(s)
	if !src.IsValid() {
		return "", dErrors.NewField(dErrors.CodeValidation, "source", fmt.Sprintf("unknown source %q", s))
	}
	return src, nil
}

// Action is a lifecycle event code. Every action except CREATED and
// COMMENT_ADDED is a transition in the edge table.
type Action string

const (
	ActionCreated         Action = "CREATED"
	ActionSubmitForReview Action = "SUBMIT_FOR_REVIEW"
	ActionRouteToApprover Action = "ROUTE_TO_APPROVER"
	ActionReturn          Action = "RETURN"
	ActionResubmit        Action = "RESUBMIT"
	ActionApprove         Action = "APPROVE"
	ActionReject          Action = "REJECT"
	ActionExpire          Action = "EXPIRE"
	ActionCommentAdded    Action = "COMMENT_ADDED"
)

func (a Action) String() string { return string(a) }

// ParseTransitionAction accepts only actions a caller may request.
func ParseTransitionAction(s string) (Action, error) {
	a := Action(s)
	if _, ok := edges[a]; !ok {
		return "", dErrors.NewField(dErrors.CodeValidation, "action", fmt.Sprintf("unknown transition %q", s))
	}
	return a, nil
}
