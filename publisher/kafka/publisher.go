// Package kafka delivers outbox messages to a Kafka topic through
// segmentio/kafka-go.
package kafka

import (
	"context"

	"github.com/PACK-Solutions/kommand"
	"github.com/segmentio/kafka-go"
)

// Publisher writes one Kafka message per outbox message. The aggregate ID is
// used as the partition key, so all events of one aggregate stay in order
// within their partition.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a publisher over the given writer. The caller owns
// the writer's topic, balancer and lifecycle.
func NewPublisher(writer *kafka.Writer) *Publisher {
	return &Publisher{writer: writer}
}

func (p *Publisher) Publish(ctx context.Context, msg kommand.OutboxMessage) error {
	value, err := kommand.MarshalEnvelope(msg.Envelope)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Envelope.AggregateID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(msg.Envelope.Event.EventType())},
			{Key: "event_id", Value: []byte(msg.Envelope.EventID.String())},
		},
	})
}

var _ kommand.Publisher = (*Publisher)(nil)
