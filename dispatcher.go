package kommand

import (
	"context"
	"fmt"
)

// EventHandler represents a projection handler that can handle a delivered
// event. Handlers are expected to be idempotent: the outbox layer above only
// guarantees at-least-once delivery.
type EventHandler interface {
	// Handle processes the given envelope within the provided context.
	Handle(ctx context.Context, env Envelope) error
}

// NewEventHandlerFunc creates an EventHandler from a plain function, without
// defining a separate struct. There is no type filtering: the handler
// receives every envelope it is invoked with. Use On for type safety.
func NewEventHandlerFunc(fn func(ctx context.Context, env Envelope) error) EventHandler {
	return eventHandlerFunc(fn)
}

// eventHandlerFunc is a function type that implements EventHandler.
type eventHandlerFunc func(ctx context.Context, env Envelope) error

func (h eventHandlerFunc) Handle(ctx context.Context, env Envelope) error {
	return h(ctx, env)
}

// typedEventHandler is a strongly typed event handler for a specific Event type T.
type typedEventHandler[T Event] func(ctx context.Context, env Envelope, event T) error

// EventName returns the name of the event type T.
// It is used by EventDispatcher.Add for routing.
func (h typedEventHandler[T]) EventName() string {
	return typeKey[T]()
}

// Handle processes the envelope if its event matches the type T. Events
// rebuilt by the codec arrive as pointers, so *T is accepted as well.
func (h typedEventHandler[T]) Handle(ctx context.Context, env Envelope) error {
	ev, ok := env.Event.(T)
	if !ok {
		ptr, ok := any(env.Event).(*T)
		if !ok {
			return fmt.Errorf("handler for %s received event of type %T", h.EventName(), env.Event)
		}
		ev = *ptr
	}
	return h(ctx, env, ev)
}

// On creates a strongly-typed EventHandler for a specific event type.
//
// The resulting handler carries the type name of T, so it can be attached
// with EventDispatcher.Add without spelling out the event name.
//
// Example:
//
//	d := NewEventDispatcher()
//	d.Add(On(func(ctx context.Context, env Envelope, ev MoneyDeposited) error {
//	    return proj.ApplyDeposit(ctx, ev)
//	}))
func On[T Event](fn func(ctx context.Context, env Envelope, event T) error) EventHandler {
	return typedEventHandler[T](fn)
}

// EventDispatcher fans one delivered event out to the projection handlers
// registered for its exact runtime type.
//
// Registration is 1:N and accumulating: every handler registered for a type
// fires, in registration order. Registration is not synchronized with
// dispatching; finish registering before the first Dispatch call.
type EventDispatcher struct {
	handlers map[string][]EventHandler
}

// NewEventDispatcher creates a dispatcher, optionally attaching typed
// handlers created with On.
func NewEventDispatcher(handlers ...EventHandler) *EventDispatcher {
	d := &EventDispatcher{
		handlers: make(map[string][]EventHandler),
	}
	for _, h := range handlers {
		d.Add(h)
	}
	return d
}

// Register appends a handler to the ordered list for the given exact event
// type name. Multiple registrations for the same type all fire.
func (d *EventDispatcher) Register(eventType string, handler EventHandler) {
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// Add registers a handler that knows its own event name, as built by On.
// Panics if the handler lacks an EventName method.
func (d *EventDispatcher) Add(handler EventHandler) {
	named, ok := handler.(interface{ EventName() string })
	if !ok {
		panic(fmt.Sprintf("handler %T does not have a function `EventName()`", handler))
	}
	d.Register(named.EventName(), handler)
}

// Dispatch looks up handlers solely by the envelope's exact event type and
// invokes each in registration order, synchronously. Handlers run with the
// envelope's identity in the context, so the FromContext accessors resolve
// inside them and events they record chain their causation to this one.
//
// If a handler returns an error, dispatch aborts immediately: later
// handlers for this envelope are not invoked and the error propagates to
// the caller, who decides whether to continue with subsequent events. An
// envelope with no registered handlers is a no-op.
func (d *EventDispatcher) Dispatch(ctx context.Context, env Envelope) error {
	ctx = WithEnvelope(ctx, env)
	for _, h := range d.handlers[TypeName(env.Event)] {
		if err := h.Handle(ctx, env); err != nil {
			return fmt.Errorf("dispatch %s: %w", TypeName(env.Event), err)
		}
	}
	return nil
}

// EventNames returns a sorted list of all event names with at least one
// registered handler.
func (d *EventDispatcher) EventNames() []string {
	return sortedKeys(d.handlers)
}
