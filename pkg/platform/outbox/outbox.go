// Package outbox relays events written in the same transaction as domain
// changes to an external publisher.
//
// Writers insert Event rows alongside their state change, so an event exists
// iff the change committed. The Relay polls pending rows, publishes them in
// creation order and marks them published. Delivery is at-least-once:
// consumers deduplicate on Event.ID.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event is one outbox row.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	PublishedAt   *time.Time      `json:"published_at,omitempty"`
}

// NewEvent marshals payload into a new pending event.
func NewEvent(aggregateType, aggregateID, eventType string, payload any, now time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
		CreatedAt:     now,
	}, nil
}

// Store reads and acknowledges pending events.
type Store interface {
	PendingEvents(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Publisher delivers one event downstream.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

const (
	defaultBatchSize = 100
	defaultInterval  = 2 * time.Second
)

// Relay moves pending events from a Store to a Publisher.
type Relay struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	batchSize int
	interval  time.Duration
	onResult  func(published int, err error)
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithResultHook observes each drain, for metrics.
func WithResultHook(fn func(published int, err error)) Option {
	return func(r *Relay) {
		r.onResult = fn
	}
}

func NewRelay(store Store, publisher Publisher, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		logger:    slog.Default(),
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Drain publishes one batch. It stops at the first publish failure so
// ordering per aggregate is preserved; events before the failure are acked.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	events, err := r.store.PendingEvents(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := make([]uuid.UUID, 0, len(events))
	var publishErr error
	for _, ev := range events {
		if err := r.publisher.Publish(ctx, ev); err != nil {
			publishErr = err
			break
		}
		published = append(published, ev.ID)
	}

	if len(published) > 0 {
		if err := r.store.MarkPublished(ctx, published, time.Now()); err != nil {
			return 0, errors.Join(publishErr, err)
		}
	}
	return len(published), publishErr
}

// Run drains on every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		n, err := r.Drain(ctx)
		if r.onResult != nil {
			r.onResult(n, err)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.WarnContext(ctx, "outbox relay drain failed",
				"error", err,
				"published", n,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LogPublisher writes events to a logger. It stands in for a broker in
// single-node deployments.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.InfoContext(ctx, "event published",
		"event_id", event.ID.String(),
		"event_type", event.EventType,
		"aggregate_id", event.AggregateID,
		"log_type", "event",
	)
	return nil
}
