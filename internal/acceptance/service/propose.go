package service

import (
	"context"

	"riskaccept/internal/acceptance/models"
	id "riskaccept/pkg/domain"
	dErrors "riskaccept/pkg/domain-errors"
	"riskaccept/pkg/requestcontext"
)

// Propose creates a PROPOSED acceptance with its CREATED ledger entry.
func (s *Service) Propose(ctx context.Context, draft models.Draft) (result *Result, err error) {
	ctx, span := s.startSpan(ctx, "acceptance.propose", id.AcceptanceID{})
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	proposer, err := s.users.GetUser(ctx, draft.ProposerID)
	if err != nil {
		return nil, translateDirectoryErr(err, "proposer not found", "user directory unavailable")
	}
	if !proposer.Active {
		return nil, dErrors.NewField(dErrors.CodeValidation, "proposer_id", "proposer is not an active user")
	}

	var snapshot *models.BreachSnapshot
	var warnings []models.Warning
	if draft.RiskID != nil {
		risk, err := s.risks.GetRisk(ctx, *draft.RiskID)
		switch {
		case err == nil:
			snapshot, err = models.NewBreachSnapshot(risk.ResidualLikelihood, risk.ResidualImpact, risk.Appetite, now)
			if err != nil {
				return nil, err
			}
		case isNotFound(err):
			return nil, dErrors.NewField(dErrors.CodeNotFound, "risk_id", "linked risk not found")
		default:
			s.metrics.IncrementStaleBreach()
			warnings = append(warnings, staleBreachWarning())
		}
	}

	err = s.store.RunInTx(ctx, func(txCtx context.Context) error {
		reference, err := s.store.NextReference(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate reference")
		}
		a, err := models.NewAcceptance(id.NewAcceptanceID(), reference, draft, now)
		if err != nil {
			return err
		}
		a.Breach = snapshot
		if err := s.store.Create(txCtx, a); err != nil {
			return translateStoreErr(err, "acceptance not found", "failed to create acceptance")
		}
		entry := models.NewCreatedEntry(a, now)
		if err := s.appendEntry(txCtx, a, entry); err != nil {
			return err
		}
		result = &Result{Acceptance: a, Entries: []*models.AuditEntry{entry}, Warnings: warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementProposals()
	s.logAudit(ctx, string(models.ActionCreated),
		"acceptance_id", result.Acceptance.ID.String(),
		"reference", result.Acceptance.Reference,
		"actor_id", draft.ProposerID.String(),
		"to_status", string(models.StatusProposed),
	)
	return result, nil
}

func staleBreachWarning() models.Warning {
	return models.Warning{
		Code:    dErrors.CodeDependencyUnavailable,
		Message: "breach verdict could not be refreshed from the risk directory; showing the last stored value",
	}
}
