// Package nats delivers outbox messages to NATS subjects.
package nats

import (
	"context"
	"strings"

	"github.com/PACK-Solutions/kommand"
	"github.com/nats-io/nats.go"
)

// SubjectFunc derives the subject for one outbox message.
type SubjectFunc func(msg kommand.OutboxMessage) string

// Publisher publishes one NATS message per outbox message.
type Publisher struct {
	conn    *nats.Conn
	subject SubjectFunc
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithSubject overrides how subjects are derived. The default is
// "events.<prefixless event type>", e.g. "events.MoneyDeposited".
func WithSubject(fn SubjectFunc) Option {
	return func(p *Publisher) { p.subject = fn }
}

// NewPublisher creates a publisher over an established connection. The
// caller owns the connection lifecycle.
func NewPublisher(conn *nats.Conn, opts ...Option) *Publisher {
	p := &Publisher{
		conn: conn,
		subject: func(msg kommand.OutboxMessage) string {
			name := msg.Envelope.Event.EventType()
			// Strip the package qualifier: dots would add subject levels.
			if i := strings.LastIndex(name, "."); i >= 0 {
				name = name[i+1:]
			}
			return "events." + name
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Publish(ctx context.Context, msg kommand.OutboxMessage) error {
	data, err := kommand.MarshalEnvelope(msg.Envelope)
	if err != nil {
		return err
	}

	natsMsg := nats.NewMsg(p.subject(msg))
	natsMsg.Data = data
	natsMsg.Header.Set("event-id", msg.Envelope.EventID.String())
	natsMsg.Header.Set("event-type", msg.Envelope.Event.EventType())

	return p.conn.PublishMsg(natsMsg)
}

var _ kommand.Publisher = (*Publisher)(nil)
