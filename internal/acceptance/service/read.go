package service

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"riskaccept/internal/acceptance/models"
	id "riskaccept/pkg/domain"
	"riskaccept/pkg/requestcontext"
)

// Get returns one acceptance with names resolved and a fresh breach verdict.
// Directory failures degrade the view; they never fail the read.
func (s *Service) Get(ctx context.Context, acceptanceID id.AcceptanceID) (view *models.View, err error) {
	ctx, span := s.startSpan(ctx, "acceptance.get", acceptanceID)
	defer func() { endSpan(span, err) }()

	a, err := s.load(ctx, acceptanceID)
	if err != nil {
		return nil, err
	}
	return s.project(ctx, a, newNameCache(s)), nil
}

// List returns acceptances matching filter, ordered by reference.
func (s *Service) List(ctx context.Context, filter models.Filter) ([]*models.Acceptance, error) {
	items, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, translateStoreErr(err, "acceptance not found", "failed to list acceptances")
	}
	return items, nil
}

// ListViews is List with each record projected as in Get. Used by exports.
func (s *Service) ListViews(ctx context.Context, filter models.Filter) ([]*models.View, error) {
	items, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	names := newNameCache(s)
	views := make([]*models.View, 0, len(items))
	for _, a := range items {
		views = append(views, s.project(ctx, a, names))
	}
	return views, nil
}

// History returns the ledger for one acceptance in sequence order.
func (s *Service) History(ctx context.Context, acceptanceID id.AcceptanceID) ([]*models.HistoryEntry, error) {
	if _, err := s.load(ctx, acceptanceID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListEntries(ctx, acceptanceID)
	if err != nil {
		return nil, translateStoreErr(err, "acceptance not found", "failed to list audit entries")
	}
	names := newNameCache(s)
	history := make([]*models.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		h := &models.HistoryEntry{AuditEntry: e}
		if e.ActorID != nil {
			h.ActorName = names.user(ctx, *e.ActorID)
		}
		history = append(history, h)
	}
	return history, nil
}

func (s *Service) project(ctx context.Context, a *models.Acceptance, names *nameCache) *models.View {
	now := requestcontext.Now(ctx)
	view := &models.View{Acceptance: a}

	var mu sync.Mutex
	warn := func(w models.Warning) {
		mu.Lock()
		defer mu.Unlock()
		view.Warnings = append(view.Warnings, w)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		view.ProposerName = names.user(gctx, a.ProposerID)
		return nil
	})
	if a.ApproverID != nil {
		approverID := *a.ApproverID
		g.Go(func() error {
			view.ApproverName = names.user(gctx, approverID)
			return nil
		})
	}
	if a.RiskID != nil {
		riskID := *a.RiskID
		g.Go(func() error {
			risk, err := s.risks.GetRisk(gctx, riskID)
			if err != nil {
				s.metrics.IncrementStaleBreach()
				a.Breach = staleSnapshot(a.Breach)
				warn(staleBreachWarning())
				return nil
			}
			view.RiskReference = risk.Reference
			snapshot, err := models.NewBreachSnapshot(risk.ResidualLikelihood, risk.ResidualImpact, risk.Appetite, now)
			if err != nil {
				s.logger.WarnContext(ctx, "risk ratings out of range", "risk_id", riskID.String(), "error", err)
				a.Breach = staleSnapshot(a.Breach)
				warn(staleBreachWarning())
				return nil
			}
			a.Breach = snapshot
			return nil
		})
	}
	_ = g.Wait()
	return view
}

// nameCache memoizes user display names for the span of one read.
type nameCache struct {
	svc   *Service
	mu    sync.Mutex
	names map[id.UserID]string
}

func newNameCache(s *Service) *nameCache {
	return &nameCache{svc: s, names: make(map[id.UserID]string)}
}

func (c *nameCache) user(ctx context.Context, userID id.UserID) string {
	c.mu.Lock()
	name, ok := c.names[userID]
	c.mu.Unlock()
	if ok {
		return name
	}
	u, err := c.svc.users.GetUser(ctx, userID)
	if err == nil {
		name = u.Name
	}
	c.mu.Lock()
	c.names[userID] = name
	c.mu.Unlock()
	return name
}
