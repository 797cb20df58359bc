package kommand

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// envelopeRecord is the JSON shape shared by the storage adapters and the
// broker publishers. The event payload itself is nested JSON, decoded back
// into its concrete type through the event registry.
type envelopeRecord struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type,omitempty"`
	SchemaVersion uint64          `json:"schema_version"`
	CausationID   uuid.UUID       `json:"causation_id,omitempty"`
	CorrelationID uuid.UUID       `json:"correlation_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// MarshalEnvelope encodes an envelope to its JSON wire form.
func MarshalEnvelope(env Envelope) ([]byte, error) {
	payload, err := json.Marshal(env.Event)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", TypeName(env.Event), err)
	}

	return json.Marshal(envelopeRecord{
		EventID:       env.EventID,
		EventType:     env.Event.EventType(),
		AggregateID:   env.AggregateID,
		AggregateType: env.AggregateType,
		SchemaVersion: env.SchemaVersion,
		CausationID:   env.CausationID,
		CorrelationID: env.CorrelationID,
		OccurredAt:    env.OccurredAt,
		Metadata:      env.Metadata,
		Payload:       payload,
	})
}

// UnmarshalEnvelope decodes an envelope from its JSON wire form, rebuilding
// the concrete event through the event registry. The event type must have
// been registered with RegisterEvent.
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var rec envelopeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	event, err := NewEventByName(rec.EventType)
	if err != nil {
		return Envelope{}, err
	}

	if err := json.Unmarshal(rec.Payload, event); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal event %s: %w", rec.EventType, err)
	}

	return Envelope{
		EventID:       rec.EventID,
		AggregateID:   rec.AggregateID,
		AggregateType: rec.AggregateType,
		SchemaVersion: rec.SchemaVersion,
		CausationID:   rec.CausationID,
		CorrelationID: rec.CorrelationID,
		OccurredAt:    rec.OccurredAt,
		Metadata:      rec.Metadata,
		Event:         event,
	}, nil
}
