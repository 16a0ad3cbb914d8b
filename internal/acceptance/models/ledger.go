package models

import (
	"fmt"
	"strings"
	"time"

	id "riskaccept/pkg/domain"
	dErrors "riskaccept/pkg/domain-errors"
)

// AuditEntry is one immutable ledger row. Seq orders entries within an
// acceptance starting at 1; stores assign it on append.
type AuditEntry struct {
	ID           id.EntryID      `json:"id"`
	AcceptanceID id.AcceptanceID `json:"acceptance_id"`
	Seq          int64           `json:"seq"`
	Action       Action          `json:"action"`
	ActorID      *id.UserID      `json:"actor_id,omitempty"`
	FromStatus   Status          `json:"from_status,omitempty"`
	ToStatus     Status          `json:"to_status,omitempty"`
	Details      string          `json:"details"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewCreatedEntry is the first ledger row of every acceptance.
func NewCreatedEntry(a *Acceptance, now time.Time) *AuditEntry {
	proposer := a.ProposerID
	return &AuditEntry{
		ID:           id.NewEntryID(),
		AcceptanceID: a.ID,
		Action:       ActionCreated,
		ActorID:      &proposer,
		ToStatus:     StatusProposed,
		Details:      fmt.Sprintf("Proposed %s: %s", a.Reference, a.Title),
		CreatedAt:    now,
	}
}

// NewTransitionEntry records one applied step. A system actor leaves ActorID nil.
func NewTransitionEntry(acceptanceID id.AcceptanceID, actor Actor, step Step, now time.Time) *AuditEntry {
	e := &AuditEntry{
		ID:           id.NewEntryID(),
		AcceptanceID: acceptanceID,
		Action:       step.Action,
		FromStatus:   step.From,
		ToStatus:     step.To,
		Details:      step.Details,
		CreatedAt:    now,
	}
	if !actor.IsSystem() {
		actorID := actor.ID
		e.ActorID = &actorID
	}
	return e
}

// NewCommentEntry records a comment. Status is unchanged so ToStatus is empty.
func NewCommentEntry(c *Comment, status Status, now time.Time) *AuditEntry {
	author := c.AuthorID
	return &AuditEntry{
		ID:           id.NewEntryID(),
		AcceptanceID: c.AcceptanceID,
		Action:       ActionCommentAdded,
		ActorID:      &author,
		FromStatus:   status,
		Details:      fmt.Sprintf("Comment %s added", c.ID),
		CreatedAt:    now,
	}
}

// IsTransition reports whether the entry moved the record between statuses.
func (e *AuditEntry) IsTransition() bool {
	return e.Action != ActionCommentAdded
}

// VerifyPath checks that transition entries chain: each entry's FromStatus is
// the previous transition's ToStatus and each step is an edge of the table.
func VerifyPath(entries []*AuditEntry) error {
	var current Status
	var lastSeq int64
	for i, e := range entries {
		if e.Seq <= lastSeq {
			return fmt.Errorf("entry %d: sequence %d does not follow %d", i, e.Seq, lastSeq)
		}
		lastSeq = e.Seq
		if !e.IsTransition() {
			continue
		}
		if e.FromStatus != current {
			return fmt.Errorf("entry %d: %s starts at %q, record was %q", i, e.Action, e.FromStatus, current)
		}
		if !IsLegalStep(e.Action, e.FromStatus, e.ToStatus) {
			return fmt.Errorf("entry %d: %s %s→%s is not an edge", i, e.Action, e.FromStatus, e.ToStatus)
		}
		current = e.ToStatus
	}
	return nil
}

// Comment is an immutable remark in an acceptance's discussion thread.
type Comment struct {
	ID           id.CommentID    `json:"id"`
	AcceptanceID id.AcceptanceID `json:"acceptance_id"`
	AuthorID     id.UserID       `json:"author_id"`
	Content      string          `json:"content"`
	CreatedAt    time.Time       `json:"created_at"`
}

const MaxCommentLength = 4000

func NewComment(acceptanceID id.AcceptanceID, authorID id.UserID, content string, now time.Time) (*Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, dErrors.NewField(dErrors.CodeValidation, "content", "comment content is required")
	}
	if len([]rune(content)) > MaxCommentLength {
		return nil, dErrors.NewField(dErrors.CodeValidation, "content",
			fmt.Sprintf("comment must be %d characters or less", MaxCommentLength))
	}
	if authorID.IsNil() {
		return nil, dErrors.NewField(dErrors.CodeValidation, "author_id", "author is required")
	}
	return &Comment{
		ID:           id.NewCommentID(),
		AcceptanceID: acceptanceID,
		AuthorID:     authorID,
		Content:      content,
		CreatedAt:    now,
	}, nil
}
