package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"riskaccept/internal/acceptance/scoring"
	id "riskaccept/pkg/domain"
	dErrors "riskaccept/pkg/domain-errors"
)

const (
	MaxTitleLength  = 200
	referencePrefix = "RA-"
	dateLayout      = "2006-01-02"
)

// Acceptance is the aggregate root of the lifecycle.
//
// Invariants:
//   - Reference is assigned once at proposal and never changes
//   - Rationale is non-empty
//   - ApproverID is set iff Status is AWAITING_APPROVAL, APPROVED, REJECTED or EXPIRED
//   - ApproverRationale is set iff Status is APPROVED, REJECTED or EXPIRED
//   - ReviewDate is set only when Status is APPROVED or EXPIRED
//
// EXPIRED keeps the lapsed decision (approver, rationale, review date) so the
// record still shows what expired; RESUBMIT clears it.
type Acceptance struct {
	ID          id.AcceptanceID `json:"id"`
	Reference   string          `json:"reference"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Source      Source          `json:"source"`
	Status      Status          `json:"status"`

	ProposerID        id.UserID  `json:"proposer_id"`
	ApproverID        *id.UserID `json:"approver_id,omitempty"`
	ReviewerNote      string     `json:"reviewer_note,omitempty"`
	Rationale         string     `json:"rationale"`
	Conditions        string     `json:"conditions,omitempty"`
	ApproverRationale string     `json:"approver_rationale,omitempty"`

	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	RoutedAt           *time.Time `json:"routed_at,omitempty"`
	DecidedAt          *time.Time `json:"decided_at,omitempty"`
	ExpiredAt          *time.Time `json:"expired_at,omitempty"`
	ReviewDate         *time.Time `json:"review_date,omitempty"`
	ProposedReviewDate *time.Time `json:"proposed_review_date,omitempty"`

	RiskID          *id.RiskID    `json:"risk_id,omitempty"`
	ControlID       *id.ControlID `json:"control_id,omitempty"`
	OutcomeName     string        `json:"outcome_name,omitempty"`
	LinkedActionIDs []id.ActionID `json:"linked_action_ids,omitempty"`

	Breach *BreachSnapshot `json:"breach,omitempty"`
}

// BreachSnapshot is the last computed appetite verdict for the linked risk.
type BreachSnapshot struct {
	Likelihood  int              `json:"likelihood"`
	Impact      int              `json:"impact"`
	Score       int              `json:"score"`
	Appetite    scoring.Appetite `json:"appetite"`
	AppetiteMax int              `json:"appetite_max"`
	Breached    bool             `json:"breached"`
	Difference  int              `json:"difference"`
	ComputedAt  time.Time        `json:"computed_at"`
	Stale       bool             `json:"stale"`
}

// NewBreachSnapshot scores a risk's residual ratings against its appetite.
func NewBreachSnapshot(likelihood, impact int, appetite scoring.Appetite, now time.Time) (*BreachSnapshot, error) {
	score, verdict, err := scoring.Assess(likelihood, impact, appetite)
	if err != nil {
		return nil, err
	}
	limit, err := scoring.AppetiteMax(appetite)
	if err != nil {
		return nil, err
	}
	return &BreachSnapshot{
		Likelihood:  likelihood,
		Impact:      impact,
		Score:       score,
		Appetite:    appetite,
		AppetiteMax: limit,
		Breached:    verdict.Breached,
		Difference:  verdict.Difference,
		ComputedAt:  now,
	}, nil
}

// Draft is the proposer's input to a new acceptance.
type Draft struct {
	Title              string
	Description        string
	Source             Source
	ProposerID         id.UserID
	Rationale          string
	Conditions         string
	ProposedReviewDate *time.Time
	RiskID             *id.RiskID
	ControlID          *id.ControlID
	OutcomeName        string
	LinkedActionIDs    []id.ActionID
}

// Validate normalizes whitespace and checks required draft fields.
func (d *Draft) Validate() error {
	d.Title = strings.TrimSpace(d.Title)
	d.Rationale = strings.TrimSpace(d.Rationale)
	d.Conditions = strings.TrimSpace(d.Conditions)
	d.Description = strings.TrimSpace(d.Description)
	d.OutcomeName = strings.TrimSpace(d.OutcomeName)

	if d.Title == "" {
		return dErrors.NewField(dErrors.CodeValidation, "title", "title is required")
	}
	if utf8.RuneCountInString(d.Title) > MaxTitleLength {
		return dErrors.NewField(dErrors.CodeValidation, "title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if d.Rationale == "" {
		return dErrors.NewField(dErrors.CodeValidation, "rationale", "rationale is required")
	}
	if !d.Source.IsValid() {
		return dErrors.NewField(dErrors.CodeValidation, "source", fmt.Sprintf("unknown source %q", d.Source))
	}
	if d.ProposerID.IsNil() {
		return dErrors.NewField(dErrors.CodeValidation, "proposer_id", "proposer is required")
	}
	return nil
}

// NewAcceptance builds a PROPOSED record from a validated draft.
func NewAcceptance(acceptanceID id.AcceptanceID, reference string, d Draft, now time.Time) (*Acceptance, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(reference, referencePrefix) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "reference must be assigned before creation")
	}
	return &Acceptance{
		ID:                 acceptanceID,
		Reference:          reference,
		Title:              d.Title,
		Description:        d.Description,
		Source:             d.Source,
		Status:             StatusProposed,
		ProposerID:         d.ProposerID,
		Rationale:          d.Rationale,
		Conditions:         d.Conditions,
		CreatedAt:          now,
		UpdatedAt:          now,
		ProposedReviewDate: civilPtr(d.ProposedReviewDate),
		RiskID:             d.RiskID,
		ControlID:          d.ControlID,
		OutcomeName:        d.OutcomeName,
		LinkedActionIDs:    slices.Clone(d.LinkedActionIDs),
	}, nil
}

// FormatReference renders the human-readable code for a sequence number.
func FormatReference(seq int64) string {
	return fmt.Sprintf("%s%03d", referencePrefix, seq)
}

// Clone returns a deep copy so callers can mutate without sharing pointers.
func (a *Acceptance) Clone() *Acceptance {
	if a == nil {
		return nil
	}
	c := *a
	c.ApproverID = clonePtr(a.ApproverID)
	c.RoutedAt = clonePtr(a.RoutedAt)
	c.DecidedAt = clonePtr(a.DecidedAt)
	c.ExpiredAt = clonePtr(a.ExpiredAt)
	c.ReviewDate = clonePtr(a.ReviewDate)
	c.ProposedReviewDate = clonePtr(a.ProposedReviewDate)
	c.RiskID = clonePtr(a.RiskID)
	c.ControlID = clonePtr(a.ControlID)
	c.LinkedActionIDs = slices.Clone(a.LinkedActionIDs)
	c.Breach = clonePtr(a.Breach)
	return &c
}

// RolesOf resolves what actor may act as on this record.
func (a *Acceptance) RolesOf(actor Actor) []Role {
	if actor.IsSystem() {
		return []Role{RoleSystem}
	}
	var roles []Role
	if actor.Reviewer {
		roles = append(roles, RoleReviewer)
	}
	if actor.ID == a.ProposerID {
		roles = append(roles, RoleProposer)
	}
	if a.ApproverID != nil && *a.ApproverID == actor.ID {
		roles = append(roles, RoleApprover)
	}
	return roles
}

// IsDueForExpiry reports whether an approved record's review date has passed.
func (a *Acceptance) IsDueForExpiry(now time.Time) bool {
	return a.Status == StatusApproved && a.ReviewDate != nil && a.ReviewDate.Before(now)
}

// AddLinkedAction records a follow-up action id once.
func (a *Acceptance) AddLinkedAction(actionID id.ActionID, now time.Time) bool {
	if slices.Contains(a.LinkedActionIDs, actionID) {
		return false
	}
	a.LinkedActionIDs = append(a.LinkedActionIDs, actionID)
	a.UpdatedAt = now
	return true
}

// CheckInvariants verifies the field/status coupling documented on Acceptance.
func (a *Acceptance) CheckInvariants() error {
	approverHeld := a.Status == StatusAwaitingApproval || a.Status == StatusApproved ||
		a.Status == StatusRejected || a.Status == StatusExpired
	decided := a.Status == StatusApproved || a.Status == StatusRejected || a.Status == StatusExpired
	reviewDateAllowed := a.Status == StatusApproved || a.Status == StatusExpired

	switch {
	case !a.Status.IsValid():
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("unknown status %q", a.Status))
	case strings.TrimSpace(a.Rationale) == "":
		return dErrors.New(dErrors.CodeInvariantViolation, "rationale must be set")
	case (a.ApproverID != nil) != approverHeld:
		return dErrors.New(dErrors.CodeInvariantViolation, "approver must be set exactly while a decision is pending or recorded")
	case (a.ApproverRationale != "") != decided:
		return dErrors.New(dErrors.CodeInvariantViolation, "approver rationale must be set exactly when decided")
	case a.ReviewDate != nil && !reviewDateAllowed:
		return dErrors.New(dErrors.CodeInvariantViolation, "review date is only held by approved records")
	case a.Status == StatusApproved && a.ReviewDate == nil:
		return dErrors.New(dErrors.CodeInvariantViolation, "approved record requires a review date")
	}
	return nil
}

// CivilDate truncates t to midnight UTC of its calendar day.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD review date.
func ParseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, dErrors.NewField(dErrors.CodeValidation, field, field+" must be formatted YYYY-MM-DD")
	}
	return t, nil
}

// FormatDate renders a YYYY-MM-DD date, or "" for nil.
func FormatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func civilPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := CivilDate(*t)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
