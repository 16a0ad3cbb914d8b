// Package service implements the acceptance lifecycle: proposals, the
// transition state machine, the comment thread and the read paths.
//
// Every write runs inside Store.RunInTx under a per-record lock taken by
// FindByIDForUpdate, and commits the record, its ledger entries and its outbox
// events together. Directory lookups happen before the transaction opens, so
// no record lock is ever held across a network call.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"riskaccept/internal/acceptance/metrics"
	"riskaccept/internal/acceptance/models"
	"riskaccept/internal/directory"
	"riskaccept/pkg/attrs"
	id "riskaccept/pkg/domain"
	dErrors "riskaccept/pkg/domain-errors"
	"riskaccept/pkg/platform/outbox"
	"riskaccept/pkg/platform/sentinel"
	"riskaccept/pkg/requestcontext"
)

// Store persists acceptances, their ledger, comments and outbox events.
// Methods called inside RunInTx must join the transaction carried by ctx.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	NextReference(ctx context.Context) (string, error)
	Create(ctx context.Context, a *models.Acceptance) error
	FindByID(ctx context.Context, acceptanceID id.AcceptanceID) (*models.Acceptance, error)
	FindByIDForUpdate(ctx context.Context, acceptanceID id.AcceptanceID) (*models.Acceptance, error)
	Update(ctx context.Context, a *models.Acceptance) error
	List(ctx context.Context, filter models.Filter) ([]*models.Acceptance, error)
	ListDueForExpiry(ctx context.Context, now time.Time) ([]id.AcceptanceID, error)

	AppendEntry(ctx context.Context, entry *models.AuditEntry) error
	ListEntries(ctx context.Context, acceptanceID id.AcceptanceID) ([]*models.AuditEntry, error)

	AddComment(ctx context.Context, c *models.Comment) error
	ListComments(ctx context.Context, acceptanceID id.AcceptanceID) ([]*models.Comment, error)

	AppendEvent(ctx context.Context, event outbox.Event) error
}

// Service orchestrates the acceptance lifecycle.
type Service struct {
	store   Store
	risks   directory.RiskDirectory
	users   directory.UserDirectory
	actions directory.ActionTracker
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithActionTracker enables linked-action creation for conditional approvals.
func WithActionTracker(tracker directory.ActionTracker) Option {
	return func(s *Service) {
		s.actions = tracker
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs a Service.
func New(store Store, risks directory.RiskDirectory, users directory.UserDirectory, opts ...Option) *Service {
	s := &Service{
		store:  store,
		risks:  risks,
		users:  users,
		logger: slog.Default(),
		tracer: otel.Tracer("riskaccept/acceptance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is the outcome of a successful write.
type Result struct {
	Acceptance *models.Acceptance  `json:"acceptance"`
	Entries    []*models.AuditEntry `json:"entries"`
	Warnings   []models.Warning     `json:"warnings,omitempty"`
}

// eventPayload is the JSON body of every acceptance.* outbox event.
type eventPayload struct {
	AcceptanceID string `json:"acceptance_id"`
	Reference    string `json:"reference"`
	Action       string `json:"action"`
	FromStatus   string `json:"from_status,omitempty"`
	ToStatus     string `json:"to_status,omitempty"`
	ActorID      string `json:"actor_id,omitempty"`
	Details      string `json:"details"`
	OccurredAt   string `json:"occurred_at"`
	RequestID    string `json:"request_id,omitempty"`
}

// appendEntry writes one ledger entry and its outbox event inside the current transaction.
func (s *Service) appendEntry(ctx context.Context, a *models.Acceptance, entry *models.AuditEntry) error {
	if err := s.store.AppendEntry(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append audit entry")
	}
	payload := eventPayload{
		AcceptanceID: a.ID.String(),
		Reference:    a.Reference,
		Action:       string(entry.Action),
		FromStatus:   string(entry.FromStatus),
		ToStatus:     string(entry.ToStatus),
		Details:      entry.Details,
		OccurredAt:   entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		RequestID:    requestcontext.RequestID(ctx),
	}
	if entry.ActorID != nil {
		payload.ActorID = entry.ActorID.String()
	}
	event, err := outbox.NewEvent("acceptance", a.ID.String(), eventType(entry.Action), payload, entry.CreatedAt)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build outbox event")
	}
	if err := s.store.AppendEvent(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append outbox event")
	}
	return nil
}

// eventType names the outbox topic key for an action, e.g. acceptance.route_to_approver.
func eventType(action models.Action) string {
	return "acceptance." + strings.ToLower(string(action))
}

// loadForUpdate locks and loads a record inside a transaction.
func (s *Service) loadForUpdate(ctx context.Context, acceptanceID id.AcceptanceID) (*models.Acceptance, error) {
	a, err := s.store.FindByIDForUpdate(ctx, acceptanceID)
	if err != nil {
		return nil, translateStoreErr(err, "acceptance not found", "failed to load acceptance")
	}
	return a, nil
}

func (s *Service) load(ctx context.Context, acceptanceID id.AcceptanceID) (*models.Acceptance, error) {
	a, err := s.store.FindByID(ctx, acceptanceID)
	if err != nil {
		return nil, translateStoreErr(err, "acceptance not found", "failed to load acceptance")
	}
	return a, nil
}

func translateStoreErr(err error, notFoundMsg, internalMsg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "acceptance store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, internalMsg)
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
}

// translateDirectoryErr maps a collaborator failure. Not-found is the caller's
// problem; anything else means the directory could not answer.
func translateDirectoryErr(err error, notFoundMsg, unavailableMsg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	}
	return dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, unavailableMsg)
}

func isNotFound(err error) bool {
	return errors.Is(err, sentinel.ErrNotFound)
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger == nil {
		return
	}
	if actor := attrs.ExtractString(attributes, "actor_id"); actor == "" {
		args = append(args, "actor", "system")
	}
	s.logger.InfoContext(ctx, event, args...)
}

func (s *Service) startSpan(ctx context.Context, name string, acceptanceID id.AcceptanceID) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name)
	if !acceptanceID.IsNil() {
		span.SetAttributes(attribute.String("acceptance.id", acceptanceID.String()))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

func actorAttr(entry *models.AuditEntry) string {
	if entry.ActorID == nil {
		return ""
	}
	return entry.ActorID.String()
}
