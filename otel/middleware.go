package otel

import (
	"context"
	"fmt"
	"time"

	"github.com/PACK-Solutions/kommand"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CommandTelemetry returns a middleware that wraps command handling in a
// span and records the command metrics.
//
// The wrapper performs the following steps for each command:
//  1. Starts an internal span named after the command type.
//  2. Invokes the continuation.
//  3. Records duration, handled/failed/rejected counters and span status.
//
// Business errors (Result.Err) are counted as rejections and do not mark
// the span as failed; infrastructural errors do.
func CommandTelemetry() kommand.CommandMiddleware {
	return kommand.CommandMiddlewareFunc(func(ctx context.Context, cmd kommand.Command, next kommand.CommandContinuation) (kommand.Result, error) {
		cmdType := kommand.TypeName(cmd)
		attrs := metric.WithAttributes(AttrCommandType.String(cmdType))

		ctx, span := tracer.Start(ctx, fmt.Sprintf("kommand.send %s", cmdType),
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				AttrCommandType.String(cmdType),
				AttrAggregateID.String(cmd.AggregateID()),
			),
		)
		defer span.End()

		startTime := time.Now()
		result, err := next(ctx, cmd)
		duration := float64(time.Since(startTime).Milliseconds())

		CommandsDuration.Record(ctx, duration, attrs)

		switch {
		case err != nil:
			CommandsFailed.Add(ctx, 1, metric.WithAttributes(
				AttrCommandType.String(cmdType),
				AttrErrorType.String(fmt.Sprintf("%T", err)),
			))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case result.Err != nil:
			CommandsRejected.Add(ctx, 1, attrs)
			span.SetAttributes(AttrErrorType.String(fmt.Sprintf("%T", result.Err)))
			span.SetStatus(codes.Ok, "")
		default:
			CommandsHandled.Add(ctx, 1, attrs)
			span.SetAttributes(AttrEventCount.Int(len(result.Events)))
			span.SetStatus(codes.Ok, "")
		}

		return result, err
	})
}

// QueryTelemetry returns a middleware that wraps query handling in a span
// and records the query metrics.
func QueryTelemetry() kommand.QueryMiddleware {
	return kommand.QueryMiddlewareFunc(func(ctx context.Context, qry kommand.Query, next kommand.QueryContinuation) (any, error) {
		qryType := kommand.TypeName(qry)
		attrs := metric.WithAttributes(AttrQueryType.String(qryType))

		ctx, span := tracer.Start(ctx, fmt.Sprintf("kommand.ask %s", qryType),
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(AttrQueryType.String(qryType)),
		)
		defer span.End()

		startTime := time.Now()
		value, err := next(ctx, qry)
		duration := float64(time.Since(startTime).Milliseconds())

		QueriesDuration.Record(ctx, duration, attrs)

		if err != nil {
			QueriesFailed.Add(ctx, 1, attrs)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return value, err
		}

		QueriesHandled.Add(ctx, 1, attrs)
		span.SetStatus(codes.Ok, "")
		return value, nil
	})
}

// WithHandlerTelemetry wraps a projection handler with a span per handled
// event and an error counter. EventName is forwarded when the inner handler
// has one.
func WithHandlerTelemetry(next kommand.EventHandler) kommand.EventHandler {
	h := &telemetryEventHandler{next: next}
	if named, ok := next.(interface{ EventName() string }); ok {
		return &namedTelemetryEventHandler{telemetryEventHandler: h, name: named.EventName()}
	}
	return h
}

type telemetryEventHandler struct {
	next kommand.EventHandler
}

func (h *telemetryEventHandler) Handle(ctx context.Context, env kommand.Envelope) error {
	eventType := kommand.TypeName(env.Event)

	ctx, span := tracer.Start(ctx, fmt.Sprintf("kommand.handle %s", eventType),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrEventType.String(eventType),
			AttrEventID.String(env.EventID.String()),
			AttrAggregateID.String(env.AggregateID),
		),
	)
	defer span.End()

	err := h.next.Handle(ctx, env)
	if err != nil {
		EventHandlerErrors.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(eventType)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	EventsDispatched.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(eventType)))
	span.SetStatus(codes.Ok, "")
	return nil
}

type namedTelemetryEventHandler struct {
	*telemetryEventHandler
	name string
}

func (h *namedTelemetryEventHandler) EventName() string { return h.name }
