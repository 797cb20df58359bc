package kommand

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

var now = time.Now

// Event is a domain event describing a fact that has happened to an aggregate.
type Event interface {
	AggregateID() string
	EventType() string
}

// Envelope wraps an Event with the identity and tracing metadata the
// dispatch and outbox layers need. Once built it is never mutated.
type Envelope struct {
	EventID       uuid.UUID
	AggregateID   string
	AggregateType string
	SchemaVersion uint64
	CausationID   uuid.UUID
	CorrelationID uuid.UUID
	OccurredAt    time.Time
	Metadata      map[string]any
	Event         Event
}

// EventOption customizes an Envelope at record time.
type EventOption func(*Envelope)

// WithAggregateType tags the envelope with the kind of aggregate that
// produced the event.
func WithAggregateType(aggregateType string) EventOption {
	return func(env *Envelope) { env.AggregateType = aggregateType }
}

// WithSchemaVersion sets the payload schema version of the wrapped event.
func WithSchemaVersion(version uint64) EventOption {
	return func(env *Envelope) { env.SchemaVersion = version }
}

// WithCausationID links the envelope to the event or command that caused it.
func WithCausationID(id uuid.UUID) EventOption {
	return func(env *Envelope) { env.CausationID = id }
}

// WithCorrelationID tags the envelope with the correlation ID of the whole
// causal chain.
func WithCorrelationID(id uuid.UUID) EventOption {
	return func(env *Envelope) { env.CorrelationID = id }
}

// WithMetadata merges the given key-value pairs into the envelope metadata.
func WithMetadata(md map[string]any) EventOption {
	return func(env *Envelope) {
		for k, v := range md {
			env.Metadata[k] = v
		}
	}
}

// NewEnvelope wraps an event in a fresh envelope with a new EventID and the
// current timestamp, then applies the given options.
func NewEnvelope(event Event, options ...EventOption) Envelope {
	env := Envelope{
		EventID:       uuid.New(),
		AggregateID:   event.AggregateID(),
		SchemaVersion: 1,
		OccurredAt:    now(),
		Metadata:      make(map[string]any),
		Event:         event,
	}

	for _, option := range options {
		option(&env)
	}

	return env
}

// TypeName returns the package-qualified type name of v with pointer markers
// stripped, e.g. "account.MoneyDeposited". It is the exact-type key used by
// every registry in this package; two distinct types never share a key.
func TypeName(v any) string {
	if v == nil {
		return ""
	}

	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return t.String()
}
