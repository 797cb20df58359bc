package fixtures

import (
	"context"
	"sync"
	"time"

	"github.com/PACK-Solutions/kommand"
	"github.com/google/uuid"
)

// StoreSpy is a configurable in-memory OutboxStore for testing. It tracks
// calls and allows injecting failures per method.
type StoreSpy struct {
	mu       sync.Mutex
	order    []uuid.UUID
	messages map[uuid.UUID]*kommand.OutboxMessage

	// Call tracking
	SaveCalls           int
	FindCalls           int
	MarkPublishedCalls  int
	IncrementRetryCalls int

	// Error injection
	SaveErr error
	FindErr error
	MarkErr error
}

// NewStoreSpy creates an empty spy store.
func NewStoreSpy() *StoreSpy {
	return &StoreSpy{messages: make(map[uuid.UUID]*kommand.OutboxMessage)}
}

func (s *StoreSpy) Save(ctx context.Context, env kommand.Envelope) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.SaveCalls++
	if s.SaveErr != nil {
		return uuid.Nil, s.SaveErr
	}

	id := uuid.New()
	s.messages[id] = &kommand.OutboxMessage{ID: id, Envelope: env, CreatedAt: time.Now()}
	s.order = append(s.order, id)
	return id, nil
}

func (s *StoreSpy) FindUnpublished(ctx context.Context, limit int) ([]kommand.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.FindCalls++
	if s.FindErr != nil {
		return nil, s.FindErr
	}

	out := make([]kommand.OutboxMessage, 0, limit)
	for _, id := range s.order {
		if len(out) == limit {
			break
		}
		if msg := s.messages[id]; !msg.Published {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (s *StoreSpy) MarkPublished(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.MarkPublishedCalls++
	if s.MarkErr != nil {
		return s.MarkErr
	}
	if msg, ok := s.messages[id]; ok {
		msg.Published = true
	}
	return nil
}

func (s *StoreSpy) IncrementRetryCount(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.IncrementRetryCalls++
	if msg, ok := s.messages[id]; ok {
		msg.RetryCount++
		msg.NextAttemptAt = &nextAttemptAt
	}
	return nil
}

// Messages returns all stored messages in save order.
func (s *StoreSpy) Messages() []kommand.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]kommand.OutboxMessage, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.messages[id])
	}
	return out
}

// Unpublished returns the pending messages in save order.
func (s *StoreSpy) Unpublished() []kommand.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []kommand.OutboxMessage
	for _, id := range s.order {
		if msg := s.messages[id]; !msg.Published {
			out = append(out, *msg)
		}
	}
	return out
}

// PublisherSpy records delivered messages and can fail selected event
// types.
type PublisherSpy struct {
	mu        sync.Mutex
	attempts  int
	Delivered []kommand.OutboxMessage

	// FailFor makes Publish fail for messages wrapping the given event
	// types.
	FailFor map[string]error
}

// NewPublisherSpy creates a spy that succeeds for every message.
func NewPublisherSpy() *PublisherSpy {
	return &PublisherSpy{FailFor: make(map[string]error)}
}

func (p *PublisherSpy) Publish(ctx context.Context, msg kommand.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts++
	if err, ok := p.FailFor[kommand.TypeName(msg.Envelope.Event)]; ok {
		return err
	}
	p.Delivered = append(p.Delivered, msg)
	return nil
}

// Attempts returns how many deliveries were attempted, failed ones
// included. Successful deliveries are the length of Delivered.
func (p *PublisherSpy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// TxManagerSpy counts transactions and marks the callback context so tests
// can assert the outbox write ran inside the transaction.
type TxManagerSpy struct {
	Begun      int
	Committed  int
	RolledBack int
}

type txMarker struct{}

// InTx reports whether ctx descends from a TxManagerSpy transaction.
func InTx(ctx context.Context) bool {
	return ctx.Value(txMarker{}) != nil
}

func (m *TxManagerSpy) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.Begun++
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		m.RolledBack++
		return err
	}
	m.Committed++
	return nil
}

var (
	_ kommand.OutboxStore        = (*StoreSpy)(nil)
	_ kommand.Publisher          = (*PublisherSpy)(nil)
	_ kommand.TransactionManager = (*TxManagerSpy)(nil)
)
