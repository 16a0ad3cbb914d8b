package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	events    []Event
	published map[uuid.UUID]bool
}

func newFakeStore(n int) *fakeStore {
	s := &fakeStore{published: map[uuid.UUID]bool{}}
	for i := 0; i < n; i++ {
		ev, _ := NewEvent("acceptance", "a-1", "acceptance.approve", map[string]int{"n": i}, time.Now())
		s.events = append(s.events, ev)
	}
	return s
}

func (s *fakeStore) PendingEvents(_ context.Context, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if !s.published[ev.ID] && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkPublished(_ context.Context, ids []uuid.UUID, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.published[id] = true
	}
	return nil
}

type recordingPublisher struct {
	got    []Event
	failAt int
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) error {
	if p.failAt > 0 && len(p.got)+1 == p.failAt {
		return errors.New("broker down")
	}
	p.got = append(p.got, ev)
	return nil
}

func TestRelayDrain_PublishesInOrderAndAcks(t *testing.T) {
	store := newFakeStore(3)
	pub := &recordingPublisher{}
	relay := NewRelay(store, pub, WithBatchSize(10))

	n, err := relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, pub.got, 3)
	assert.Equal(t, store.events[0].ID, pub.got[0].ID)

	n, err = relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "acked events are not redelivered")
}

func TestRelayDrain_StopsAtFirstFailure(t *testing.T) {
	store := newFakeStore(3)
	pub := &recordingPublisher{failAt: 2}
	relay := NewRelay(store, pub)

	n, err := relay.Drain(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)

	pending, _ := store.PendingEvents(context.Background(), 10)
	assert.Len(t, pending, 2, "failed and later events stay pending")
}

func TestRelayRun_StopsOnCancel(t *testing.T) {
	store := newFakeStore(1)
	pub := &recordingPublisher{}
	drains := make(chan int, 4)
	relay := NewRelay(store, pub,
		WithInterval(10*time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithResultHook(func(n int, _ error) {
			select {
			case drains <- n:
			default:
			}
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	assert.Equal(t, 1, <-drains)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
