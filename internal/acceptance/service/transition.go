package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"riskaccept/internal/acceptance/models"
	"riskaccept/internal/directory"
	id "riskaccept/pkg/domain"
	dErrors "riskaccept/pkg/domain-errors"
	"riskaccept/pkg/requestcontext"
)

// TransitionCommand asks for one state-machine action on behalf of a user.
type TransitionCommand struct {
	AcceptanceID id.AcceptanceID
	ActorID      id.UserID
	Input        models.TransitionInput
}

// Transition applies a user-initiated action. The actor is resolved from the
// user directory; EXPIRE is refused for every user.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (result *Result, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "acceptance.transition", cmd.AcceptanceID)
	span.SetAttributes(attribute.String("acceptance.action", string(cmd.Input.Action)))
	defer func() {
		s.metrics.ObserveTransition(string(cmd.Input.Action), outcomeOf(err), start)
		endSpan(span, err)
	}()

	if cmd.ActorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}
	actor, err := s.resolveActor(ctx, cmd.ActorID)
	if err != nil {
		return nil, err
	}
	return s.applyTransition(ctx, cmd.AcceptanceID, actor, cmd.Input)
}

// Expire moves a due APPROVED record to EXPIRED as the system actor.
func (s *Service) Expire(ctx context.Context, acceptanceID id.AcceptanceID) (result *Result, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "acceptance.expire", acceptanceID)
	defer func() {
		s.metrics.ObserveTransition(string(models.ActionExpire), outcomeOf(err), start)
		endSpan(span, err)
	}()

	return s.applyTransition(ctx, acceptanceID, models.SystemActor(), models.TransitionInput{Action: models.ActionExpire})
}

// DueForExpiry lists APPROVED records whose review date is before now.
func (s *Service) DueForExpiry(ctx context.Context, now time.Time) ([]id.AcceptanceID, error) {
	ids, err := s.store.ListDueForExpiry(ctx, now)
	if err != nil {
		return nil, translateStoreErr(err, "acceptance not found", "failed to list acceptances due for expiry")
	}
	return ids, nil
}

func (s *Service) applyTransition(ctx context.Context, acceptanceID id.AcceptanceID, actor models.Actor, in models.TransitionInput) (*Result, error) {
	now := requestcontext.Now(ctx)

	// Fail fast on the unlocked copy before any directory traffic. The
	// authoritative check repeats under the record lock.
	current, err := s.load(ctx, acceptanceID)
	if err != nil {
		return nil, err
	}
	if err := current.CanTransition(actor, in, now); err != nil {
		return nil, err
	}
	if in.Action == models.ActionRouteToApprover {
		if err := s.checkApprover(ctx, *in.ApproverID); err != nil {
			return nil, err
		}
	}
	snapshot, warnings, err := s.refreshBreach(ctx, current, now)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = s.store.RunInTx(ctx, func(txCtx context.Context) error {
		a, err := s.loadForUpdate(txCtx, acceptanceID)
		if err != nil {
			return err
		}
		steps, err := a.Transition(actor, in, now)
		if err != nil {
			return err
		}
		if snapshot != nil {
			a.Breach = snapshot
		}
		if err := s.store.Update(txCtx, a); err != nil {
			return translateStoreErr(err, "acceptance not found", "failed to update acceptance")
		}
		entries := make([]*models.AuditEntry, 0, len(steps))
		for _, step := range steps {
			entry := models.NewTransitionEntry(a.ID, actor, step, now)
			if err := s.appendEntry(txCtx, a, entry); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		result = &Result{Acceptance: a, Entries: entries, Warnings: warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, entry := range result.Entries {
		s.logAudit(ctx, string(entry.Action),
			"acceptance_id", result.Acceptance.ID.String(),
			"reference", result.Acceptance.Reference,
			"actor_id", actorAttr(entry),
			"from_status", string(entry.FromStatus),
			"to_status", string(entry.ToStatus),
		)
	}

	if in.Action == models.ActionApprove && result.Acceptance.Conditions != "" {
		if warning := s.createLinkedAction(ctx, result.Acceptance); warning != nil {
			result.Warnings = append(result.Warnings, *warning)
		}
	}
	return result, nil
}

func (s *Service) resolveActor(ctx context.Context, actorID id.UserID) (models.Actor, error) {
	user, err := s.users.GetUser(ctx, actorID)
	if err != nil {
		return models.Actor{}, translateDirectoryErr(err, "actor not found", "user directory unavailable")
	}
	return models.Actor{ID: user.ID, Reviewer: user.IsReviewer(), Active: user.Active}, nil
}

func (s *Service) checkApprover(ctx context.Context, approverID id.UserID) error {
	approver, err := s.users.GetUser(ctx, approverID)
	if err != nil {
		return translateDirectoryErr(err, "approver not found", "user directory unavailable")
	}
	if !approver.Active {
		return dErrors.NewField(dErrors.CodeValidation, "approver_id", "approver is not an active user")
	}
	return nil
}

// refreshBreach recomputes the breach verdict for a linked risk. When the risk
// directory cannot answer, no longer knows the risk, or returns ratings out of
// range, the stored verdict is kept, flagged stale. Only Propose rejects an
// unknown risk.
func (s *Service) refreshBreach(ctx context.Context, a *models.Acceptance, now time.Time) (*models.BreachSnapshot, []models.Warning, error) {
	if a.RiskID == nil {
		return nil, nil, nil
	}
	risk, err := s.risks.GetRisk(ctx, *a.RiskID)
	if err != nil {
		if isNotFound(err) {
			s.logger.WarnContext(ctx, "linked risk no longer in register",
				"acceptance_id", a.ID.String(),
				"risk_id", a.RiskID.String(),
			)
		}
		return s.keepStale(a), []models.Warning{staleBreachWarning()}, nil
	}
	snapshot, err := models.NewBreachSnapshot(risk.ResidualLikelihood, risk.ResidualImpact, risk.Appetite, now)
	if err != nil {
		s.logger.WarnContext(ctx, "risk ratings out of range",
			"acceptance_id", a.ID.String(),
			"risk_id", a.RiskID.String(),
			"error", err,
		)
		return s.keepStale(a), []models.Warning{staleBreachWarning()}, nil
	}
	return snapshot, nil, nil
}

func (s *Service) keepStale(a *models.Acceptance) *models.BreachSnapshot {
	s.metrics.IncrementStaleBreach()
	return staleSnapshot(a.Breach)
}

func staleSnapshot(prev *models.BreachSnapshot) *models.BreachSnapshot {
	if prev == nil {
		return nil
	}
	stale := *prev
	stale.Stale = true
	return &stale
}

// createLinkedAction raises a follow-up action for approval conditions. The
// approval is already committed, so failures come back as a warning.
func (s *Service) createLinkedAction(ctx context.Context, a *models.Acceptance) *models.Warning {
	if s.actions == nil {
		return nil
	}
	req := directory.ActionRequest{
		AcceptanceID: a.ID,
		Reference:    a.Reference,
		Title:        "Conditions for " + a.Reference + ": " + a.Title,
		Description:  a.Conditions,
		OwnerID:      a.ProposerID,
		DueDate:      a.ReviewDate,
	}
	actionID, err := s.actions.CreateAction(ctx, req)
	if err != nil {
		return s.linkedActionFailed(ctx, a, err)
	}

	err = s.store.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.loadForUpdate(txCtx, a.ID)
		if err != nil {
			return err
		}
		if !locked.AddLinkedAction(actionID, requestcontext.Now(ctx)) {
			return nil
		}
		if err := s.store.Update(txCtx, locked); err != nil {
			return translateStoreErr(err, "acceptance not found", "failed to link action")
		}
		*a = *locked
		return nil
	})
	if err != nil {
		return s.linkedActionFailed(ctx, a, err)
	}
	s.logAudit(ctx, "linked_action_created",
		"acceptance_id", a.ID.String(),
		"reference", a.Reference,
		"action_id", actionID.String(),
	)
	return nil
}

func (s *Service) linkedActionFailed(ctx context.Context, a *models.Acceptance, err error) *models.Warning {
	s.metrics.IncrementLinkedActionFailures()
	s.logger.WarnContext(ctx, "linked action creation failed",
		"acceptance_id", a.ID.String(),
		"reference", a.Reference,
		"error", err,
	)
	return &models.Warning{
		Code:    dErrors.CodeLinkedActionFailed,
		Message: "approval recorded but the follow-up action could not be created",
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "applied"
	case dErrors.HasCode(err, dErrors.CodeIllegalTransition), dErrors.HasCode(err, dErrors.CodeValidation):
		return "rejected"
	default:
		return "error"
	}
}
