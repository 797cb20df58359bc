package kommand

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxMessage is a durable wrapper around one event envelope.
//
// A message is created Pending when saved, ideally inside the same
// transaction as the business write that produced the event. It transitions
// to Published exactly once, on a successful delivery; a failed delivery
// leaves it Pending with RetryCount incremented. The core defines no retry
// bound and no dead-letter transition.
type OutboxMessage struct {
	ID            uuid.UUID
	Envelope      Envelope
	RetryCount    int
	NextAttemptAt *time.Time
	Published     bool
	CreatedAt     time.Time
}

// OutboxStore is the persistence contract for outbox messages, implemented
// by an external collaborator (see the outboxstore subpackages).
//
// Concurrent publishers pulling from the same store can select overlapping
// batches unless the store implements claim semantics (row locks, a
// visibility timeout); that is a property of the store, not enforced here.
type OutboxStore interface {
	// Save persists the envelope as a new pending message and returns the
	// assigned message ID. When used behind a TransactionBoundary
	// middleware it must join the ambient transaction.
	Save(ctx context.Context, env Envelope) (uuid.UUID, error)

	// FindUnpublished returns up to limit pending messages, oldest first.
	// Messages with a NextAttemptAt in the future are not yet due and are
	// skipped.
	FindUnpublished(ctx context.Context, limit int) ([]OutboxMessage, error)

	// MarkPublished flips the message to published. Marking an already
	// published message again is a no-op.
	MarkPublished(ctx context.Context, id uuid.UUID) error

	// IncrementRetryCount records one failed delivery attempt and schedules
	// the next one.
	IncrementRetryCount(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error
}

// Publisher delivers one outbox message to the outside world (a broker, a
// webhook, ...). Implemented by an external collaborator; see the publisher
// subpackages.
type Publisher interface {
	Publish(ctx context.Context, msg OutboxMessage) error
}

// PublisherFunc adapts a plain function to the Publisher interface.
type PublisherFunc func(ctx context.Context, msg OutboxMessage) error

func (f PublisherFunc) Publish(ctx context.Context, msg OutboxMessage) error {
	return f(ctx, msg)
}
