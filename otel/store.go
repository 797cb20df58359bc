package otel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/PACK-Solutions/kommand"
)

// InstrumentStore wraps an OutboxStore with a span per operation and the
// outbox metrics. Compose it around any concrete adapter:
//
//	store := otel.InstrumentStore(postgres.NewStore(pool))
func InstrumentStore(next kommand.OutboxStore) kommand.OutboxStore {
	return &instrumentedStore{next: next}
}

type instrumentedStore struct {
	next kommand.OutboxStore
}

func (s *instrumentedStore) Save(ctx context.Context, env kommand.Envelope) (uuid.UUID, error) {
	eventType := kommand.TypeName(env.Event)

	ctx, span := tracer.Start(ctx, "kommand.outbox.save",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrEventType.String(eventType),
			AttrEventID.String(env.EventID.String()),
			AttrAggregateID.String(env.AggregateID),
		),
	)
	defer span.End()

	id, err := s.next.Save(ctx, env)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return id, err
	}

	EventsPersisted.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(eventType)))
	span.SetAttributes(AttrMessageID.String(id.String()))
	span.SetStatus(codes.Ok, "")
	return id, nil
}

func (s *instrumentedStore) FindUnpublished(ctx context.Context, limit int) ([]kommand.OutboxMessage, error) {
	ctx, span := tracer.Start(ctx, "kommand.outbox.find_unpublished",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	messages, err := s.next.FindUnpublished(ctx, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(AttrEventCount.Int(len(messages)))
	span.SetStatus(codes.Ok, "")
	return messages, nil
}

func (s *instrumentedStore) MarkPublished(ctx context.Context, id uuid.UUID) error {
	return s.spanned(ctx, "kommand.outbox.mark_published", id, func(ctx context.Context) error {
		return s.next.MarkPublished(ctx, id)
	})
}

func (s *instrumentedStore) IncrementRetryCount(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error {
	return s.spanned(ctx, "kommand.outbox.increment_retry", id, func(ctx context.Context) error {
		return s.next.IncrementRetryCount(ctx, id, nextAttemptAt)
	})
}

func (s *instrumentedStore) spanned(ctx context.Context, name string, id uuid.UUID, op func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrMessageID.String(id.String())),
	)
	defer span.End()

	if err := op(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("%s: %s", name, err))
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

var _ kommand.OutboxStore = (*instrumentedStore)(nil)
