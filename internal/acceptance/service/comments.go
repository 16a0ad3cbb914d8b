package service

import (
	"context"

	"riskaccept/internal/acceptance/models"
	id "riskaccept/pkg/domain"
	dErrors "riskaccept/pkg/domain-errors"
	"riskaccept/pkg/requestcontext"
)

// AddComment appends a comment and its COMMENT_ADDED ledger entry. Comments
// are allowed in every status and never change it. The author must be an
// active user in the directory.
func (s *Service) AddComment(ctx context.Context, acceptanceID id.AcceptanceID, authorID id.UserID, content string) (comment *models.Comment, err error) {
	ctx, span := s.startSpan(ctx, "acceptance.comment", acceptanceID)
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	c, err := models.NewComment(acceptanceID, authorID, content, now)
	if err != nil {
		return nil, err
	}
	author, err := s.resolveActor(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if !author.Active {
		return nil, dErrors.New(dErrors.CodeForbidden, "author is not an active user")
	}

	var entry *models.AuditEntry
	err = s.store.RunInTx(ctx, func(txCtx context.Context) error {
		a, err := s.loadForUpdate(txCtx, acceptanceID)
		if err != nil {
			return err
		}
		if err := s.store.AddComment(txCtx, c); err != nil {
			return translateStoreErr(err, "acceptance not found", "failed to add comment")
		}
		entry = models.NewCommentEntry(c, a.Status, now)
		return s.appendEntry(txCtx, a, entry)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementComments()
	s.logAudit(ctx, string(models.ActionCommentAdded),
		"acceptance_id", acceptanceID.String(),
		"comment_id", c.ID.String(),
		"actor_id", authorID.String(),
	)
	return c, nil
}

// ListComments returns the thread oldest first.
func (s *Service) ListComments(ctx context.Context, acceptanceID id.AcceptanceID) ([]*models.Comment, error) {
	if _, err := s.load(ctx, acceptanceID); err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, acceptanceID)
	if err != nil {
		return nil, translateStoreErr(err, "acceptance not found", "failed to list comments")
	}
	return comments, nil
}
