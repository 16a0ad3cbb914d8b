package handler

import (
	"net/http"
	"strings"
	"time"

	"riskaccept/internal/acceptance/models"
	id "riskaccept/pkg/domain"
	dErrors "riskaccept/pkg/domain-errors"
	platformstrings "riskaccept/pkg/platform/strings"
)

// ProposeRequest is the body of POST /acceptances. The proposer is the
// authenticated actor, never a body field.
type ProposeRequest struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Source             string   `json:"source"`
	Rationale          string   `json:"rationale"`
	Conditions         string   `json:"conditions"`
	ProposedReviewDate string   `json:"proposed_review_date"`
	RiskID             string   `json:"risk_id"`
	ControlID          string   `json:"control_id"`
	OutcomeName        string   `json:"outcome_name"`
	LinkedActionIDs    []string `json:"linked_action_ids"`

	draft models.Draft
}

// Validate parses identifiers and dates; field rules are left to Draft.Validate.
func (r *ProposeRequest) Validate() error {
	source, err := models.ParseSource(strings.TrimSpace(r.Source))
	if err != nil {
		return err
	}
	d := models.Draft{
		Title:       r.Title,
		Description: r.Description,
		Source:      source,
		Rationale:   r.Rationale,
		Conditions:  r.Conditions,
		OutcomeName: r.OutcomeName,
	}
	if d.ProposedReviewDate, err = optionalDate("proposed_review_date", r.ProposedReviewDate); err != nil {
		return err
	}
	if s := strings.TrimSpace(r.RiskID); s != "" {
		riskID, err := id.ParseRiskID(s)
		if err != nil {
			return fieldErr("risk_id", err)
		}
		d.RiskID = &riskID
	}
	if s := strings.TrimSpace(r.ControlID); s != "" {
		controlID, err := id.ParseControlID(s)
		if err != nil {
			return fieldErr("control_id", err)
		}
		d.ControlID = &controlID
	}
	for _, raw := range platformstrings.DedupeAndTrim(r.LinkedActionIDs) {
		actionID, err := id.ParseActionID(raw)
		if err != nil {
			return fieldErr("linked_action_ids", err)
		}
		d.LinkedActionIDs = append(d.LinkedActionIDs, actionID)
	}
	// Differently cased spellings of one id collapse here.
	d.LinkedActionIDs = platformstrings.Dedupe(d.LinkedActionIDs)
	r.draft = d
	return nil
}

// Draft returns the parsed draft proposed by proposer.
func (r *ProposeRequest) Draft(proposer id.UserID) models.Draft {
	d := r.draft
	d.ProposerID = proposer
	return d
}

// TransitionRequest is the body of POST /acceptances/{id}/transitions.
type TransitionRequest struct {
	Action            string `json:"action"`
	ApproverID        string `json:"approver_id"`
	ReviewerNote      string `json:"reviewer_note"`
	ReviewDate        string `json:"review_date"`
	Comment           string `json:"comment"`
	ApproverRationale string `json:"approver_rationale"`
	Conditions        string `json:"conditions"`
	Details           string `json:"details"`

	input models.TransitionInput
}

func (r *TransitionRequest) Validate() error {
	action, err := models.ParseTransitionAction(strings.ToUpper(strings.TrimSpace(r.Action)))
	if err != nil {
		return err
	}
	in := models.TransitionInput{
		Action:            action,
		ReviewerNote:      r.ReviewerNote,
		Comment:           r.Comment,
		ApproverRationale: r.ApproverRationale,
		Conditions:        r.Conditions,
		Details:           r.Details,
	}
	if s := strings.TrimSpace(r.ApproverID); s != "" {
		approverID, err := id.ParseUserID(s)
		if err != nil {
			return fieldErr("approver_id", err)
		}
		in.ApproverID = &approverID
	}
	if in.ReviewDate, err = optionalDate("review_date", r.ReviewDate); err != nil {
		return err
	}
	r.input = in
	return nil
}

func (r *TransitionRequest) Input() models.TransitionInput {
	return r.input
}

// CommentRequest is the body of POST /acceptances/{id}/comments.
type CommentRequest struct {
	Content string `json:"content"`
}

func (r *CommentRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	if r.Content == "" {
		return dErrors.NewField(dErrors.CodeValidation, "content", "content is required")
	}
	return nil
}

// parseFilter reads the status, risk_id and proposer_id query parameters.
func parseFilter(r *http.Request) (models.Filter, error) {
	var f models.Filter
	q := r.URL.Query()
	if s := strings.TrimSpace(q.Get("status")); s != "" {
		status, err := models.ParseStatus(strings.ToUpper(s))
		if err != nil {
			return f, fieldErr("status", err)
		}
		f.Status = &status
	}
	if s := strings.TrimSpace(q.Get("risk_id")); s != "" {
		riskID, err := id.ParseRiskID(s)
		if err != nil {
			return f, fieldErr("risk_id", err)
		}
		f.RiskID = &riskID
	}
	if s := strings.TrimSpace(q.Get("proposer_id")); s != "" {
		proposerID, err := id.ParseUserID(s)
		if err != nil {
			return f, fieldErr("proposer_id", err)
		}
		f.ProposerID = &proposerID
	}
	return f, nil
}

func optionalDate(field, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := models.ParseDate(field, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// fieldErr attaches the offending field to an id parse error.
func fieldErr(field string, err error) error {
	return dErrors.NewField(dErrors.CodeOf(err), field, err.Error())
}
