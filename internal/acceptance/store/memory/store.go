// Package memory is the in-process acceptance store used for development and tests.
//
// RunInTx buffers writes and applies them atomically on commit. Record locks
// are sharded mutexes keyed by acceptance id, taken by FindByIDForUpdate and
// held until the transaction ends.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"riskaccept/internal/acceptance/models"
	id "riskaccept/pkg/domain"
	dErrors "riskaccept/pkg/domain-errors"
	"riskaccept/pkg/platform/outbox"
	"riskaccept/pkg/platform/sentinel"
	"riskaccept/pkg/platform/tx"
)

const numShards = 128

type Store struct {
	mu          sync.RWMutex
	acceptances map[id.AcceptanceID]*models.Acceptance
	order       []id.AcceptanceID
	entries     map[id.AcceptanceID][]*models.AuditEntry
	comments    map[id.AcceptanceID][]*models.Comment
	events      []outbox.Event
	refSeq      int64

	shards  [numShards]sync.Mutex
	timeout time.Duration
}

type Option func(*Store)

// WithTxTimeout bounds transactions started without a deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewInMemory(opts ...Option) *Store {
	s := &Store{
		acceptances: make(map[id.AcceptanceID]*models.Acceptance),
		entries:     make(map[id.AcceptanceID][]*models.AuditEntry),
		comments:    make(map[id.AcceptanceID][]*models.Comment),
		timeout:     tx.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// txState is the pending work of one RunInTx call.
type txState struct {
	held   map[int]bool
	writes []func() error
}

type txKey struct{}

func stateFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if stateFrom(ctx) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	st := &txState{held: make(map[int]bool)}
	defer func() {
		for shard := range st.held {
			s.shards[shard].Unlock()
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return s.commit(st)
}

// commit applies every buffered write or none of them.
func (s *Store) commit(st *txState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshotLocked()
	for _, write := range st.writes {
		if err := write(); err != nil {
			s.restoreLocked(snapshot)
			return err
		}
	}
	return nil
}

type storeSnapshot struct {
	acceptances map[id.AcceptanceID]*models.Acceptance
	order       []id.AcceptanceID
	entries     map[id.AcceptanceID][]*models.AuditEntry
	comments    map[id.AcceptanceID][]*models.Comment
	events      []outbox.Event
}

func (s *Store) snapshotLocked() storeSnapshot {
	snap := storeSnapshot{
		acceptances: make(map[id.AcceptanceID]*models.Acceptance, len(s.acceptances)),
		order:       slices.Clone(s.order),
		entries:     make(map[id.AcceptanceID][]*models.AuditEntry, len(s.entries)),
		comments:    make(map[id.AcceptanceID][]*models.Comment, len(s.comments)),
		events:      slices.Clone(s.events),
	}
	for k, v := range s.acceptances {
		snap.acceptances[k] = v
	}
	for k, v := range s.entries {
		snap.entries[k] = slices.Clone(v)
	}
	for k, v := range s.comments {
		snap.comments[k] = slices.Clone(v)
	}
	return snap
}

func (s *Store) restoreLocked(snap storeSnapshot) {
	s.acceptances = snap.acceptances
	s.order = snap.order
	s.entries = snap.entries
	s.comments = snap.comments
	s.events = snap.events
}

// write runs fn at commit inside a transaction, immediately otherwise.
func (s *Store) write(ctx context.Context, fn func() error) error {
	if st := stateFrom(ctx); st != nil {
		st.writes = append(st.writes, fn)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Store) NextReference(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refSeq++
	return models.FormatReference(s.refSeq), nil
}

func (s *Store) Create(ctx context.Context, a *models.Acceptance) error {
	stored := a.Clone()
	return s.write(ctx, func() error {
		if _, exists := s.acceptances[stored.ID]; exists {
			return fmt.Errorf("acceptance %s: %w", stored.ID, sentinel.ErrConflict)
		}
		for _, existing := range s.acceptances {
			if existing.Reference == stored.Reference {
				return fmt.Errorf("reference %s: %w", stored.Reference, sentinel.ErrConflict)
			}
		}
		s.acceptances[stored.ID] = stored
		s.order = append(s.order, stored.ID)
		return nil
	})
}

func (s *Store) FindByID(_ context.Context, acceptanceID id.AcceptanceID) (*models.Acceptance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.acceptances[acceptanceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return a.Clone(), nil
}

// FindByIDForUpdate locks the record until the surrounding transaction ends.
// Outside a transaction it behaves like FindByID.
func (s *Store) FindByIDForUpdate(ctx context.Context, acceptanceID id.AcceptanceID) (*models.Acceptance, error) {
	if st := stateFrom(ctx); st != nil {
		shard := shardFor(acceptanceID)
		if !st.held[shard] {
			if err := s.lockShard(ctx, shard); err != nil {
				return nil, err
			}
			st.held[shard] = true
		}
	}
	return s.FindByID(ctx, acceptanceID)
}

// lockShard waits for a shard mutex but gives up when ctx is done.
func (s *Store) lockShard(ctx context.Context, shard int) error {
	for {
		if s.shards[shard].TryLock() {
			return nil
		}
		select {
		case <-ctx.Done():
			return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "timed out waiting for record lock")
		case <-time.After(time.Millisecond):
		}
	}
}

func (s *Store) Update(ctx context.Context, a *models.Acceptance) error {
	stored := a.Clone()
	return s.write(ctx, func() error {
		if _, ok := s.acceptances[stored.ID]; !ok {
			return sentinel.ErrNotFound
		}
		s.acceptances[stored.ID] = stored
		return nil
	})
}

func (s *Store) List(_ context.Context, filter models.Filter) ([]*models.Acceptance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Acceptance, 0, len(s.order))
	for _, acceptanceID := range s.order {
		a := s.acceptances[acceptanceID]
		if filter.Matches(a) {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

func (s *Store) ListDueForExpiry(_ context.Context, now time.Time) ([]id.AcceptanceID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []id.AcceptanceID
	for _, acceptanceID := range s.order {
		if s.acceptances[acceptanceID].IsDueForExpiry(now) {
			out = append(out, acceptanceID)
		}
	}
	return out, nil
}

// AppendEntry assigns entry.Seq when the write is applied.
func (s *Store) AppendEntry(ctx context.Context, entry *models.AuditEntry) error {
	return s.write(ctx, func() error {
		if _, ok := s.acceptances[entry.AcceptanceID]; !ok {
			return sentinel.ErrNotFound
		}
		entry.Seq = int64(len(s.entries[entry.AcceptanceID]) + 1)
		stored := *entry
		s.entries[entry.AcceptanceID] = append(s.entries[entry.AcceptanceID], &stored)
		return nil
	})
}

func (s *Store) ListEntries(_ context.Context, acceptanceID id.AcceptanceID) ([]*models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.entries[acceptanceID]
	out := make([]*models.AuditEntry, 0, len(entries))
	for _, e := range entries {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) AddComment(ctx context.Context, c *models.Comment) error {
	stored := *c
	return s.write(ctx, func() error {
		if _, ok := s.acceptances[stored.AcceptanceID]; !ok {
			return sentinel.ErrNotFound
		}
		s.comments[stored.AcceptanceID] = append(s.comments[stored.AcceptanceID], &stored)
		return nil
	})
}

func (s *Store) ListComments(_ context.Context, acceptanceID id.AcceptanceID) ([]*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	comments := s.comments[acceptanceID]
	out := make([]*models.Comment, 0, len(comments))
	for _, c := range comments {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) AppendEvent(ctx context.Context, event outbox.Event) error {
	return s.write(ctx, func() error {
		s.events = append(s.events, event)
		return nil
	})
}

// PendingEvents returns unpublished events oldest first.
func (s *Store) PendingEvents(_ context.Context, limit int) ([]outbox.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []outbox.Event
	for _, e := range s.events {
		if e.PublishedAt != nil {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if slices.Contains(ids, s.events[i].ID) && s.events[i].PublishedAt == nil {
			published := at
			s.events[i].PublishedAt = &published
		}
	}
	return nil
}

// Events returns every outbox event, published or not.
func (s *Store) Events() []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

// shardFor uses FNV-1a over the id bytes.
func shardFor(acceptanceID id.AcceptanceID) int {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for _, b := range acceptanceID {
		h ^= uint32(b)
		h *= fnvPrime
	}
	return int(h % numShards)
}
