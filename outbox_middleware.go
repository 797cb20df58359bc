package kommand

import (
	"context"
	"fmt"
)

// OutboxMiddleware persists every event in a Result's event list to the
// outbox, in the order the handler recorded them, and only those events.
//
// It runs on the unwind half of the chain, after the continuation returns.
// Ordered after a TransactionBoundary middleware (New enforces this), the
// saves participate in the same transaction as the business write, which is
// the atomicity requirement of the outbox pattern. Results carrying a
// business error still have their events persisted.
type OutboxMiddleware struct {
	store OutboxStore
}

// NewOutboxMiddleware creates the outbox persistence middleware.
func NewOutboxMiddleware(store OutboxStore) *OutboxMiddleware {
	return &OutboxMiddleware{store: store}
}

// OutboxPersistence marks this middleware for the single-use validation in New.
func (m *OutboxMiddleware) OutboxPersistence() {}

func (m *OutboxMiddleware) ExecuteCommand(ctx context.Context, cmd Command, next CommandContinuation) (Result, error) {
	result, err := next(ctx, cmd)
	if err != nil {
		return result, err
	}

	for _, env := range result.Events {
		if _, err := m.store.Save(ctx, env); err != nil {
			return result, fmt.Errorf("outbox save %s: %w", TypeName(env.Event), err)
		}
	}
	return result, nil
}

// DispatchMiddleware fans a Result's events out to projection handlers
// synchronously, in order, as part of the Send call itself. It is the
// direct alternative to consuming events out-of-band through the outbox
// publisher; both paths end at the same EventDispatcher.
type DispatchMiddleware struct {
	dispatcher *EventDispatcher
}

// NewDispatchMiddleware creates the synchronous fan-out middleware.
func NewDispatchMiddleware(dispatcher *EventDispatcher) *DispatchMiddleware {
	return &DispatchMiddleware{dispatcher: dispatcher}
}

func (m *DispatchMiddleware) ExecuteCommand(ctx context.Context, cmd Command, next CommandContinuation) (Result, error) {
	result, err := next(ctx, cmd)
	if err != nil {
		return result, err
	}

	for _, env := range result.Events {
		if err := m.dispatcher.Dispatch(ctx, env); err != nil {
			return result, err
		}
	}
	return result, nil
}
