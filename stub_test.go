package kommand

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// testEvent is the minimal event used across the package tests.
type testEvent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (e testEvent) AggregateID() string { return e.ID }
func (e testEvent) EventType() string   { return TypeName(e) }

// fakeStore is an in-memory OutboxStore with optional error injection.
// Adapter-grade stores live under outboxstore; this one only needs to
// observe calls made by the middleware and the publisher.
type fakeStore struct {
	messages []OutboxMessage

	saveErr error
	findErr error
	markErr error

	saveCalls int
	markCalls int
	incrCalls int
}

func (s *fakeStore) Save(ctx context.Context, envelope Envelope) (uuid.UUID, error) {
	s.saveCalls++
	if s.saveErr != nil {
		return uuid.Nil, s.saveErr
	}
	id := uuid.New()
	s.messages = append(s.messages, OutboxMessage{
		ID:        id,
		Envelope:  envelope,
		CreatedAt: time.Now(),
	})
	return id, nil
}

func (s *fakeStore) FindUnpublished(ctx context.Context, limit int) ([]OutboxMessage, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	var unpublished []OutboxMessage
	for _, msg := range s.messages {
		if msg.Published {
			continue
		}
		unpublished = append(unpublished, msg)
		if len(unpublished) == limit {
			break
		}
	}
	return unpublished, nil
}

func (s *fakeStore) MarkPublished(ctx context.Context, id uuid.UUID) error {
	s.markCalls++
	if s.markErr != nil {
		return s.markErr
	}
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Published = true
			return nil
		}
	}
	return nil
}

func (s *fakeStore) IncrementRetryCount(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error {
	s.incrCalls++
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].RetryCount++
			at := nextAttemptAt
			s.messages[i].NextAttemptAt = &at
			return nil
		}
	}
	return nil
}

// fakeTxManager records begin/commit/rollback transitions and marks the
// derived context so code under test can assert it ran inside the
// transaction.
type fakeTxManager struct {
	begun      int
	committed  int
	rolledBack int
}

type fakeTxKey struct{}

func inFakeTx(ctx context.Context) bool {
	active, _ := ctx.Value(fakeTxKey{}).(bool)
	return active
}

func (m *fakeTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.begun++
	err := fn(context.WithValue(ctx, fakeTxKey{}, true))
	if err != nil {
		m.rolledBack++
		return err
	}
	m.committed++
	return nil
}

var (
	_ OutboxStore        = (*fakeStore)(nil)
	_ TransactionManager = (*fakeTxManager)(nil)
)
