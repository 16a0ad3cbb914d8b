package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskaccept/internal/acceptance/scoring"
	id "riskaccept/pkg/domain"
	dErrors "riskaccept/pkg/domain-errors"
)

func TestNewAcceptance(t *testing.T) {
	t.Run("starts proposed with trimmed fields", func(t *testing.T) {
		review := time.Date(2025, 12, 31, 15, 30, 0, 0, time.UTC)
		a, err := NewAcceptance(id.NewAcceptanceID(), "RA-007", Draft{
			Title:              "  Vendor SOC2 gap  ",
			Source:             SourceControlTesting,
			ProposerID:         proposerID,
			Rationale:          " Compensating controls in place ",
			ProposedReviewDate: &review,
		}, testNow)
		require.NoError(t, err)

		assert.Equal(t, StatusProposed, a.Status)
		assert.Equal(t, "RA-007", a.Reference)
		assert.Equal(t, "Vendor SOC2 gap", a.Title)
		assert.Equal(t, "Compensating controls in place", a.Rationale)
		assert.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), *a.ProposedReviewDate)
		assert.NoError(t, a.CheckInvariants())
	})

	cases := []struct {
		name  string
		draft Draft
		field string
	}{
		{"missing title", Draft{Source: SourceAdHoc, ProposerID: proposerID, Rationale: "r"}, "title"},
		{"title too long", Draft{Title: strings.Repeat("x", MaxTitleLength+1), Source: SourceAdHoc, ProposerID: proposerID, Rationale: "r"}, "title"},
		{"missing rationale", Draft{Title: "t", Source: SourceAdHoc, ProposerID: proposerID, Rationale: "  "}, "rationale"},
		{"unknown source", Draft{Title: "t", Source: "SPREADSHEET", ProposerID: proposerID, Rationale: "r"}, "source"},
		{"missing proposer", Draft{Title: "t", Source: SourceAdHoc, Rationale: "r"}, "proposer_id"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewAcceptance(id.NewAcceptanceID(), "RA-001", c.draft, testNow)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Equal(t, c.field, dErrors.FieldOf(err))
		})
	}
}

func TestFormatReference(t *testing.T) {
	assert.Equal(t, "RA-001", FormatReference(1))
	assert.Equal(t, "RA-042", FormatReference(42))
	assert.Equal(t, "RA-1234", FormatReference(1234))
}

func TestClone_IsDeep(t *testing.T) {
	a := recordIn(t, StatusApproved)
	a.LinkedActionIDs = []id.ActionID{id.ActionID(approverID)}
	c := a.Clone()

	*c.ApproverID = outsiderID
	c.LinkedActionIDs[0] = id.ActionID(outsiderID)

	assert.Equal(t, approverID, *a.ApproverID)
	assert.Equal(t, id.ActionID(approverID), a.LinkedActionIDs[0])
}

func TestNewBreachSnapshot(t *testing.T) {
	snap, err := NewBreachSnapshot(4, 5, scoring.AppetiteModerate, testNow)
	require.NoError(t, err)
	assert.Equal(t, 20, snap.Score)
	assert.Equal(t, 12, snap.AppetiteMax)
	assert.True(t, snap.Breached)
	assert.Equal(t, 8, snap.Difference)

	_, err = NewBreachSnapshot(6, 1, scoring.AppetiteModerate, testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestAddLinkedAction_Deduplicates(t *testing.T) {
	a := newProposed(t)
	actionID := id.ActionID(outsiderID)

	assert.True(t, a.AddLinkedAction(actionID, testNow))
	assert.False(t, a.AddLinkedAction(actionID, testNow))
	assert.Len(t, a.LinkedActionIDs, 1)
}

func TestNewComment(t *testing.T) {
	_, err := NewComment(id.NewAcceptanceID(), proposerID, " \t ", testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	c, err := NewComment(id.NewAcceptanceID(), proposerID, " Clarified scope ", testNow)
	require.NoError(t, err)
	assert.Equal(t, "Clarified scope", c.Content)
}
