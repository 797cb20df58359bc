// Package memory provides an in-memory OutboxStore, the reference
// implementation used in tests and single-process setups.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PACK-Solutions/kommand"
	"github.com/google/uuid"
)

// Store keeps outbox messages in insertion order behind a mutex. It is safe
// for concurrent use. Nothing is evicted: published messages stay around
// until the process exits.
type Store struct {
	mu       sync.Mutex
	order    []uuid.UUID
	messages map[uuid.UUID]*kommand.OutboxMessage
	clock    func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// NewStore creates an empty in-memory outbox store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		messages: make(map[uuid.UUID]*kommand.OutboxMessage),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save persists the envelope as a new pending message.
func (s *Store) Save(ctx context.Context, env kommand.Envelope) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	s.messages[id] = &kommand.OutboxMessage{
		ID:        id,
		Envelope:  env,
		CreatedAt: s.clock(),
	}
	s.order = append(s.order, id)

	return id, nil
}

// FindUnpublished returns up to limit due pending messages, oldest first.
func (s *Store) FindUnpublished(ctx context.Context, limit int) ([]kommand.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit < 0 {
		limit = 0
	}

	now := s.clock()
	out := make([]kommand.OutboxMessage, 0, limit)

	for _, id := range s.order {
		if len(out) == limit {
			break
		}

		msg := s.messages[id]
		if msg.Published {
			continue
		}
		if msg.NextAttemptAt != nil && msg.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, *msg)
	}
	return out, nil
}

// MarkPublished flips the message to published; a second call is a no-op.
func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("outbox message not found: %s", id)
	}
	msg.Published = true
	return nil
}

// IncrementRetryCount records a failed delivery attempt.
func (s *Store) IncrementRetryCount(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("outbox message not found: %s", id)
	}
	msg.RetryCount++
	msg.NextAttemptAt = &nextAttemptAt
	return nil
}

var _ kommand.OutboxStore = (*Store)(nil)
