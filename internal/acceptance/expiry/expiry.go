// Package expiry sweeps approved acceptances past their review date into EXPIRED.
//
// Each candidate is expired in its own short transaction through the same
// service path as an interactive transition, so no lock spans records and a
// slow sweep cannot block interactive approvals.
package expiry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"riskaccept/internal/acceptance/metrics"
	"riskaccept/internal/acceptance/service"
	id "riskaccept/pkg/domain"
	dErrors "riskaccept/pkg/domain-errors"
	"riskaccept/pkg/requestcontext"
)

// DefaultInterval is the sweep cadence when none is configured.
const DefaultInterval = 24 * time.Hour

// Expirer is the part of the lifecycle service the sweep drives.
type Expirer interface {
	DueForExpiry(ctx context.Context, now time.Time) ([]id.AcceptanceID, error)
	Expire(ctx context.Context, acceptanceID id.AcceptanceID) (*service.Result, error)
}

// Report summarizes one Tick.
type Report struct {
	Candidates int
	Expired    int
	Skipped    int
	Failed     int
}

type Evaluator struct {
	svc     Expirer
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	clock   func() time.Time
}

type Option func(*Evaluator)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

// WithClock overrides the wall clock Run passes to Tick.
func WithClock(clock func() time.Time) Option {
	return func(e *Evaluator) {
		e.clock = clock
	}
}

func New(svc Expirer, opts ...Option) *Evaluator {
	e := &Evaluator{
		svc:    svc,
		logger: slog.Default(),
		tracer: otel.Tracer("riskaccept/expiry"),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tick expires every APPROVED record whose review date is before now.
// Per-record failures are counted and logged; only a failed candidate
// query fails the tick. Running Tick twice expires nothing the second time.
func (e *Evaluator) Tick(ctx context.Context, now time.Time) (Report, error) {
	ctx, span := e.tracer.Start(ctx, "expiry.tick")
	defer span.End()
	ctx = requestcontext.WithTime(ctx, now)

	due, err := e.svc.DueForExpiry(ctx, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list candidates")
		return Report{}, err
	}

	report := Report{Candidates: len(due)}
	for _, acceptanceID := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := e.svc.Expire(ctx, acceptanceID)
		switch {
		case err == nil:
			report.Expired++
			e.logger.InfoContext(ctx, "acceptance expired",
				"acceptance_id", acceptanceID.String(),
				"reference", res.Acceptance.Reference,
			)
		case dErrors.HasCode(err, dErrors.CodeIllegalTransition):
			// Moved on since the candidate query; nothing to do.
			report.Skipped++
		default:
			report.Failed++
			e.logger.ErrorContext(ctx, "failed to expire acceptance",
				"acceptance_id", acceptanceID.String(),
				"error", err,
			)
		}
	}

	span.SetAttributes(
		attribute.Int("expiry.candidates", report.Candidates),
		attribute.Int("expiry.expired", report.Expired),
		attribute.Int("expiry.failed", report.Failed),
	)
	e.metrics.ObserveSweep(report.Expired, report.Failed)
	e.logger.InfoContext(ctx, "expiry sweep complete",
		"candidates", report.Candidates,
		"expired", report.Expired,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, nil
}

// Run sweeps once immediately, then every interval until ctx is cancelled.
func (e *Evaluator) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if _, err := e.Tick(ctx, e.clock()); err != nil && ctx.Err() == nil {
		e.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := e.Tick(ctx, e.clock()); err != nil && ctx.Err() == nil {
				e.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
