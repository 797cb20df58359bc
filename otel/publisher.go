package otel

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/PACK-Solutions/kommand"
)

// InstrumentPublisher wraps a broker publisher with a span per delivery
// attempt, carrying the message identity and its retry count.
func InstrumentPublisher(next kommand.Publisher) kommand.Publisher {
	return kommand.PublisherFunc(func(ctx context.Context, msg kommand.OutboxMessage) error {
		ctx, span := tracer.Start(ctx, "kommand.outbox.publish",
			trace.WithSpanKind(trace.SpanKindProducer),
			trace.WithAttributes(
				AttrMessageID.String(msg.ID.String()),
				AttrEventType.String(kommand.TypeName(msg.Envelope.Event)),
				AttrEventID.String(msg.Envelope.EventID.String()),
				AttrRetryCount.Int(msg.RetryCount),
			),
		)
		defer span.End()

		if err := next.Publish(ctx, msg); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Ok, "")
		return nil
	})
}
