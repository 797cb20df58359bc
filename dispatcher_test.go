package kommand

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type otherEvent struct {
	ID string `json:"id"`
}

func (e otherEvent) AggregateID() string { return e.ID }
func (e otherEvent) EventType() string   { return TypeName(e) }

func TestEventDispatcher_InvokesHandlersInRegistrationOrder(t *testing.T) {
	var trace []string

	d := NewEventDispatcher(
		On(func(ctx context.Context, env Envelope, e testEvent) error {
			trace = append(trace, "first:"+e.Name)
			return nil
		}),
		On(func(ctx context.Context, env Envelope, e testEvent) error {
			trace = append(trace, "second:"+e.Name)
			return nil
		}),
		On(func(ctx context.Context, env Envelope, e testEvent) error {
			trace = append(trace, "third:"+e.Name)
			return nil
		}),
	)

	if err := d.Dispatch(context.Background(), NewEnvelope(testEvent{ID: "a1", Name: "x"})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"first:x", "second:x", "third:x"}
	if len(trace) != len(want) {
		t.Fatalf("expected %d invocations, got %v", len(want), trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace[%d] = %q, want %q", i, trace[i], want[i])
		}
	}
}

func TestEventDispatcher_ExactTypeOnly(t *testing.T) {
	invoked := 0

	d := NewEventDispatcher(
		On(func(ctx context.Context, env Envelope, e testEvent) error {
			invoked++
			return nil
		}),
	)

	if err := d.Dispatch(context.Background(), NewEnvelope(otherEvent{ID: "a1"})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if invoked != 0 {
		t.Fatalf("handler for a different event type must not run, ran %d times", invoked)
	}
}

func TestEventDispatcher_NoHandlersIsNoop(t *testing.T) {
	d := NewEventDispatcher()
	if err := d.Dispatch(context.Background(), NewEnvelope(testEvent{ID: "a1"})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEventDispatcher_AbortsOnFirstError(t *testing.T) {
	var trace []string
	boom := errors.New("projection unavailable")

	d := NewEventDispatcher(
		On(func(ctx context.Context, env Envelope, e testEvent) error {
			trace = append(trace, "first")
			return nil
		}),
		On(func(ctx context.Context, env Envelope, e testEvent) error {
			trace = append(trace, "second")
			return boom
		}),
		On(func(ctx context.Context, env Envelope, e testEvent) error {
			trace = append(trace, "third")
			return nil
		}),
	)

	err := d.Dispatch(context.Background(), NewEnvelope(testEvent{ID: "a1"}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if len(trace) != 2 || trace[0] != "first" || trace[1] != "second" {
		t.Fatalf("expected dispatch to stop after the failing handler, got %v", trace)
	}
}

func TestEventDispatcher_HandlesPointerEvents(t *testing.T) {
	// Envelopes decoded off the wire carry pointer events; the typed
	// handler must still receive the value it was registered for.
	received := ""

	d := NewEventDispatcher(
		On(func(ctx context.Context, env Envelope, e testEvent) error {
			received = e.Name
			return nil
		}),
	)

	env := NewEnvelope(testEvent{ID: "a1", Name: "decoded"})
	env.Event = &testEvent{ID: "a1", Name: "decoded"}

	if err := d.Dispatch(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received != "decoded" {
		t.Fatalf("expected pointer event to reach the handler, got %q", received)
	}
}

func TestEventDispatcher_HandlersSeeEnvelopeContext(t *testing.T) {
	var (
		gotEventID     uuid.UUID
		gotAggregateID string
		gotCausation   uuid.UUID
		gotCorrelation uuid.UUID
	)

	d := NewEventDispatcher(
		On(func(ctx context.Context, env Envelope, e testEvent) error {
			gotEventID = EventIDFromContext(ctx)
			gotAggregateID = AggregateIDFromContext(ctx)
			gotCausation = CausationIDFromContext(ctx)
			gotCorrelation = CorrelationIDFromContext(ctx)
			return nil
		}),
	)

	correlation := uuid.New()
	env := NewEnvelope(testEvent{ID: "a1"}, WithCorrelationID(correlation))

	if err := d.Dispatch(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotEventID != env.EventID {
		t.Fatalf("event id from context = %v, want %v", gotEventID, env.EventID)
	}
	if gotAggregateID != "a1" {
		t.Fatalf("aggregate id from context = %q, want %q", gotAggregateID, "a1")
	}
	// Causation chains: an event recorded by this handler is caused by the
	// event being handled.
	if gotCausation != env.EventID {
		t.Fatalf("causation id from context = %v, want %v", gotCausation, env.EventID)
	}
	if gotCorrelation != correlation {
		t.Fatalf("correlation id from context = %v, want %v", gotCorrelation, correlation)
	}
}

func TestEventDispatcher_RegisterAccumulates(t *testing.T) {
	invoked := 0

	d := NewEventDispatcher()
	d.Register(TypeName(testEvent{}), NewEventHandlerFunc(func(ctx context.Context, env Envelope) error {
		invoked++
		return nil
	}))
	d.Register(TypeName(testEvent{}), NewEventHandlerFunc(func(ctx context.Context, env Envelope) error {
		invoked++
		return nil
	}))

	if err := d.Dispatch(context.Background(), NewEnvelope(testEvent{ID: "a1"})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if invoked != 2 {
		t.Fatalf("expected both handlers to run, got %d", invoked)
	}
}

func TestEventDispatcher_EventNames(t *testing.T) {
	d := NewEventDispatcher(
		On(func(ctx context.Context, env Envelope, e otherEvent) error { return nil }),
		On(func(ctx context.Context, env Envelope, e testEvent) error { return nil }),
	)

	names := d.EventNames()
	if len(names) != 2 {
		t.Fatalf("expected 2 event names, got %v", names)
	}
	if names[0] != TypeName(otherEvent{}) || names[1] != TypeName(testEvent{}) {
		t.Fatalf("expected sorted event names, got %v", names)
	}
}
