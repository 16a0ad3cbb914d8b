package handler

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskaccept/internal/acceptance/models"
	id "riskaccept/pkg/domain"
	dErrors "riskaccept/pkg/domain-errors"
)

func TestProposeRequestValidate(t *testing.T) {
	t.Run("parses ids and dates", func(t *testing.T) {
		actionID := uuid.New()
		req := &ProposeRequest{
			Title:              "Legacy VPN",
			Source:             " RISK_REGISTER ",
			Rationale:          "Decommission planned",
			ProposedReviewDate: "2026-03-31",
			ControlID:          uuid.NewString(),
			LinkedActionIDs:    []string{actionID.String(), " " + actionID.String(), strings.ToUpper(actionID.String()), ""},
		}
		require.NoError(t, req.Validate())

		proposer := id.UserID(uuid.New())
		d := req.Draft(proposer)
		assert.Equal(t, proposer, d.ProposerID)
		assert.Equal(t, models.SourceRiskRegister, d.Source)
		assert.Equal(t, "2026-03-31", models.FormatDate(d.ProposedReviewDate))
		assert.NotNil(t, d.ControlID)
		assert.Nil(t, d.RiskID)
		assert.Equal(t, []id.ActionID{id.ActionID(actionID)}, d.LinkedActionIDs)
	})

	t.Run("bad linked action id names the field", func(t *testing.T) {
		req := &ProposeRequest{Title: "t", Source: "AD_HOC", Rationale: "r", LinkedActionIDs: []string{"x"}}
		err := req.Validate()
		require.Error(t, err)
		assert.Equal(t, "linked_action_ids", dErrors.FieldOf(err))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("bad date", func(t *testing.T) {
		req := &ProposeRequest{Title: "t", Source: "AD_HOC", Rationale: "r", ProposedReviewDate: "tomorrow"}
		err := req.Validate()
		require.Error(t, err)
		assert.Equal(t, "proposed_review_date", dErrors.FieldOf(err))
	})
}

func TestTransitionRequestValidate(t *testing.T) {
	t.Run("action is case-insensitive", func(t *testing.T) {
		req := &TransitionRequest{Action: " route_to_approver ", ApproverID: uuid.NewString()}
		require.NoError(t, req.Validate())
		in := req.Input()
		assert.Equal(t, models.ActionRouteToApprover, in.Action)
		assert.NotNil(t, in.ApproverID)
		assert.Nil(t, in.ReviewDate)
	})

	t.Run("derived actions cannot be requested", func(t *testing.T) {
		for _, action := range []string{"CREATED", "COMMENT_ADDED", ""} {
			req := &TransitionRequest{Action: action}
			assert.Error(t, req.Validate(), action)
		}
	})

	t.Run("bad approver id", func(t *testing.T) {
		req := &TransitionRequest{Action: "ROUTE_TO_APPROVER", ApproverID: "bob"}
		err := req.Validate()
		require.Error(t, err)
		assert.Equal(t, "approver_id", dErrors.FieldOf(err))
	})
}

func TestCommentRequestValidate(t *testing.T) {
	req := &CommentRequest{Content: "\n ok \t"}
	require.NoError(t, req.Validate())
	assert.Equal(t, "ok", req.Content)

	err := (&CommentRequest{Content: " "}).Validate()
	assert.Equal(t, "content", dErrors.FieldOf(err))
}

func TestParseFilter(t *testing.T) {
	riskID := uuid.New()
	f, err := parseFilter(httptest.NewRequest("GET", "/acceptances?status=expired&risk_id="+riskID.String(), nil))
	require.NoError(t, err)
	require.NotNil(t, f.Status)
	assert.Equal(t, models.StatusExpired, *f.Status)
	require.NotNil(t, f.RiskID)
	assert.Equal(t, id.RiskID(riskID), *f.RiskID)
	assert.Nil(t, f.ProposerID)

	_, err = parseFilter(httptest.NewRequest("GET", "/acceptances?proposer_id=nope", nil))
	assert.Equal(t, "proposer_id", dErrors.FieldOf(err))
}
