package models

import (
	"fmt"
	"strings"
	"time"

	id "riskaccept/pkg/domain"
	dErrors "riskaccept/pkg/domain-errors"
)

// Actor is the party requesting a transition, resolved from the user directory.
// The zero Actor is the system.
type Actor struct {
	ID       id.UserID
	Reviewer bool
	Active   bool
}

// SystemActor is used by the expiry sweep.
func SystemActor() Actor { return Actor{} }

func (a Actor) IsSystem() bool { return a.ID.IsNil() }

// TransitionInput carries the payload fields a transition may require.
type TransitionInput struct {
	Action            Action
	ApproverID        *id.UserID
	ReviewerNote      string
	ReviewDate        *time.Time
	Comment           string
	ApproverRationale string
	Conditions        string
	Details           string
}

func (in *TransitionInput) normalize() {
	in.ReviewerNote = strings.TrimSpace(in.ReviewerNote)
	in.Comment = strings.TrimSpace(in.Comment)
	in.ApproverRationale = strings.TrimSpace(in.ApproverRationale)
	in.Conditions = strings.TrimSpace(in.Conditions)
	in.Details = strings.TrimSpace(in.Details)
	in.ReviewDate = civilPtr(in.ReviewDate)
}

// Step is one applied edge, ready to be written to the ledger.
type Step struct {
	Action  Action
	From    Status
	To      Status
	Details string
}

// CanTransition validates in against the record without changing it.
// Checks run in a fixed order: actor authorization, source state, required fields.
func (a *Acceptance) CanTransition(actor Actor, in TransitionInput, now time.Time) error {
	in.normalize()
	edge, ok := edges[in.Action]
	if !ok {
		return dErrors.NewField(dErrors.CodeValidation, "action", fmt.Sprintf("unknown transition %q", in.Action))
	}
	if err := a.authorize(actor, edge); err != nil {
		return err
	}
	if !edge.legalFrom(a.Status) {
		return dErrors.New(dErrors.CodeIllegalTransition,
			fmt.Sprintf("%s is not allowed from %s", in.Action, a.Status))
	}
	return a.checkFields(in, now)
}

// Transition validates and applies in. On error the record is untouched.
// The returned steps are in application order; ROUTE_TO_APPROVER from
// PROPOSED yields the implicit SUBMIT_FOR_REVIEW step first.
func (a *Acceptance) Transition(actor Actor, in TransitionInput, now time.Time) ([]Step, error) {
	if err := a.CanTransition(actor, in, now); err != nil {
		return nil, err
	}
	in.normalize()
	edge := edges[in.Action]

	next := a.Clone()
	var steps []Step
	if via, ok := edge.Via[next.Status]; ok {
		steps = append(steps, next.apply(via, TransitionInput{Action: via}, now))
	}
	steps = append(steps, next.apply(in.Action, in, now))

	if err := next.CheckInvariants(); err != nil {
		return nil, err
	}
	*a = *next
	return steps, nil
}

func (a *Acceptance) authorize(actor Actor, edge Edge) error {
	if !actor.IsSystem() && !actor.Active {
		return dErrors.New(dErrors.CodeIllegalTransition, "actor is not an active user")
	}
	for _, role := range a.RolesOf(actor) {
		if CanPerform(role, edge.Action) {
			return nil
		}
	}
	if actor.IsSystem() {
		return dErrors.New(dErrors.CodeIllegalTransition,
			fmt.Sprintf("%s cannot be performed by the system", edge.Action))
	}
	return dErrors.New(dErrors.CodeIllegalTransition,
		fmt.Sprintf("actor is not permitted to perform %s on %s", edge.Action, a.Reference))
}

func (a *Acceptance) checkFields(in TransitionInput, now time.Time) error {
	switch in.Action {
	case ActionRouteToApprover:
		if in.ApproverID == nil || in.ApproverID.IsNil() {
			return dErrors.NewField(dErrors.CodeValidation, "approver_id", "approver is required to route")
		}
	case ActionReturn:
		if in.Comment == "" {
			return dErrors.NewField(dErrors.CodeValidation, "comment", "a comment is required to return")
		}
	case ActionResubmit:
		if in.Comment == "" {
			return dErrors.NewField(dErrors.CodeValidation, "comment", "a comment is required to resubmit")
		}
	case ActionApprove:
		if in.ApproverRationale == "" {
			return dErrors.NewField(dErrors.CodeValidation, "approver_rationale", "approver rationale is required")
		}
		if in.ReviewDate == nil && a.ProposedReviewDate == nil {
			return dErrors.NewField(dErrors.CodeValidation, "review_date", "a review date is required to approve")
		}
	case ActionReject:
		if in.ApproverRationale == "" {
			return dErrors.NewField(dErrors.CodeValidation, "approver_rationale", "approver rationale is required")
		}
	case ActionExpire:
		if !a.IsDueForExpiry(now) {
			return dErrors.New(dErrors.CodeIllegalTransition, "review date has not passed")
		}
	}
	return nil
}

// apply mutates the record for one edge and describes it for the ledger.
func (a *Acceptance) apply(action Action, in TransitionInput, now time.Time) Step {
	edge := edges[action]
	step := Step{Action: action, From: a.Status, To: edge.Target}

	switch action {
	case ActionSubmitForReview:
		step.Details = "Submitted for CCRO review"
	case ActionRouteToApprover:
		approver := *in.ApproverID
		a.ApproverID = &approver
		a.ReviewerNote = in.ReviewerNote
		if in.ReviewDate != nil {
			a.ProposedReviewDate = civilPtr(in.ReviewDate)
		}
		a.RoutedAt = &now
		step.Details = withNote("Routed for approval", in.ReviewerNote)
	case ActionReturn:
		a.ApproverID = nil
		a.RoutedAt = nil
		step.Details = withNote("Returned to proposer", in.Comment)
	case ActionResubmit:
		a.ApproverID = nil
		a.ApproverRationale = ""
		a.ReviewDate = nil
		a.DecidedAt = nil
		a.RoutedAt = nil
		a.ExpiredAt = nil
		step.Details = withNote("Resubmitted for CCRO review", in.Comment)
	case ActionApprove:
		a.ApproverRationale = in.ApproverRationale
		if in.ReviewDate != nil {
			a.ReviewDate = civilPtr(in.ReviewDate)
		} else {
			a.ReviewDate = civilPtr(a.ProposedReviewDate)
		}
		if in.Conditions != "" {
			a.Conditions = in.Conditions
		}
		a.DecidedAt = &now
		step.Details = fmt.Sprintf("Approved until %s: %s", FormatDate(a.ReviewDate), in.ApproverRationale)
	case ActionReject:
		a.ApproverRationale = in.ApproverRationale
		a.ReviewDate = nil
		a.DecidedAt = &now
		step.Details = withNote("Rejected", in.ApproverRationale)
	case ActionExpire:
		a.ExpiredAt = &now
		step.Details = in.Details
		if step.Details == "" {
			step.Details = fmt.Sprintf("Automatically expired: review date %s passed", FormatDate(a.ReviewDate))
		}
	}

	a.Status = edge.Target
	a.UpdatedAt = now
	return step
}

func withNote(summary, note string) string {
	if note == "" {
		return summary
	}
	return summary + ": " + note
}
