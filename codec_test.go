package kommand

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

var registerTestEvent = sync.OnceFunc(func() {
	RegisterEvent(func() Event { return &testEvent{} })
})

func TestEnvelopeRoundTrip(t *testing.T) {
	registerTestEvent()

	correlation := uuid.New()
	env := NewEnvelope(testEvent{ID: "agg-1", Name: "payload"},
		WithAggregateType("widget"),
		WithSchemaVersion(3),
		WithCorrelationID(correlation),
		WithMetadata(map[string]any{"tenant": "acme"}),
	)

	data, err := MarshalEnvelope(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	decoded, err := UnmarshalEnvelope(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.EventID != env.EventID {
		t.Fatalf("event id = %v, want %v", decoded.EventID, env.EventID)
	}
	if decoded.AggregateID != "agg-1" || decoded.AggregateType != "widget" {
		t.Fatalf("aggregate identity lost: %+v", decoded)
	}
	if decoded.SchemaVersion != 3 {
		t.Fatalf("schema version = %d, want 3", decoded.SchemaVersion)
	}
	if decoded.CorrelationID != correlation {
		t.Fatalf("correlation id = %v, want %v", decoded.CorrelationID, correlation)
	}
	if !decoded.OccurredAt.Equal(env.OccurredAt) {
		t.Fatalf("occurred at = %v, want %v", decoded.OccurredAt, env.OccurredAt)
	}
	if decoded.Metadata["tenant"] != "acme" {
		t.Fatalf("metadata lost: %v", decoded.Metadata)
	}

	event, ok := decoded.Event.(*testEvent)
	if !ok {
		t.Fatalf("decoded event has type %T", decoded.Event)
	}
	if event.ID != "agg-1" || event.Name != "payload" {
		t.Fatalf("payload lost: %+v", event)
	}
	if decoded.Event.EventType() != env.Event.EventType() {
		t.Fatalf("event type = %q, want %q", decoded.Event.EventType(), env.Event.EventType())
	}
}

func TestUnmarshalEnvelope_UnregisteredEvent(t *testing.T) {
	data := []byte(`{"event_type":"kommand.neverRegistered","payload":{}}`)
	if _, err := UnmarshalEnvelope(data); err == nil {
		t.Fatal("expected error for unregistered event type")
	}
}

func TestRegisterEventName_DuplicatePanics(t *testing.T) {
	name := "kommand.duplicateProbe-" + uuid.NewString()
	RegisterEventName(name, func() Event { return &testEvent{} })

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	RegisterEventName(name, func() Event { return &testEvent{} })
}

func TestNewEnvelopeDefaults(t *testing.T) {
	fixed := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	restore := now
	now = func() time.Time { return fixed }
	defer func() { now = restore }()

	env := NewEnvelope(testEvent{ID: "agg-1"})

	if env.EventID == uuid.Nil {
		t.Fatal("expected generated event id")
	}
	if env.AggregateID != "agg-1" {
		t.Fatalf("aggregate id = %q", env.AggregateID)
	}
	if env.SchemaVersion != 1 {
		t.Fatalf("schema version = %d, want 1", env.SchemaVersion)
	}
	if !env.OccurredAt.Equal(fixed) {
		t.Fatalf("occurred at = %v, want %v", env.OccurredAt, fixed)
	}
}
