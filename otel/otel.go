// Package otel provides OpenTelemetry tracing and metrics decorators for
// the mediator pipeline, the event dispatcher and the outbox publisher.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/PACK-Solutions/kommand"

// Semantic attribute keys following OpenTelemetry conventions
const (
	// Command attributes
	AttrCommandType = attribute.Key("kommand.command.type")
	AttrAggregateID = attribute.Key("kommand.aggregate.id")

	// Query attributes
	AttrQueryType = attribute.Key("kommand.query.type")

	// Event attributes
	AttrEventType  = attribute.Key("kommand.event.type")
	AttrEventID    = attribute.Key("kommand.event.id")
	AttrEventCount = attribute.Key("kommand.events.count")

	// Outbox attributes
	AttrMessageID  = attribute.Key("kommand.outbox.message_id")
	AttrRetryCount = attribute.Key("kommand.outbox.retry_count")

	// Error attributes
	AttrErrorType = attribute.Key("kommand.error.type")
)

var (
	meter  = otel.Meter(instrumentationName)
	tracer = otel.Tracer(instrumentationName)

	// Command metrics
	CommandsHandled, _ = meter.Int64Counter(
		"kommand.commands.handled",
		metric.WithDescription("Total number of commands handled"),
		metric.WithUnit("{command}"),
	)

	CommandsFailed, _ = meter.Int64Counter(
		"kommand.commands.failed",
		metric.WithDescription("Number of failed commands"),
		metric.WithUnit("{command}"),
	)

	CommandsRejected, _ = meter.Int64Counter(
		"kommand.commands.rejected",
		metric.WithDescription("Number of commands rejected by a business rule"),
		metric.WithUnit("{command}"),
	)

	CommandsDuration, _ = meter.Float64Histogram(
		"kommand.commands.duration",
		metric.WithDescription("Command handling duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	// Query metrics
	QueriesHandled, _ = meter.Int64Counter(
		"kommand.queries.handled",
		metric.WithDescription("Total number of queries handled"),
		metric.WithUnit("{query}"),
	)

	QueriesFailed, _ = meter.Int64Counter(
		"kommand.queries.failed",
		metric.WithDescription("Number of failed queries"),
		metric.WithUnit("{query}"),
	)

	QueriesDuration, _ = meter.Float64Histogram(
		"kommand.queries.duration",
		metric.WithDescription("Query handling duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000),
	)

	// Event metrics
	EventsPersisted, _ = meter.Int64Counter(
		"kommand.events.persisted",
		metric.WithDescription("Number of events persisted to the outbox"),
		metric.WithUnit("{event}"),
	)

	EventsDispatched, _ = meter.Int64Counter(
		"kommand.events.dispatched",
		metric.WithDescription("Number of events fanned out to projection handlers"),
		metric.WithUnit("{event}"),
	)

	EventHandlerErrors, _ = meter.Int64Counter(
		"kommand.events.handler_errors",
		metric.WithDescription("Number of projection handler failures"),
		metric.WithUnit("{error}"),
	)
)
