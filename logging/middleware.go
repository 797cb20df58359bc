// Package logging provides logrus-based decorators for the mediator
// pipeline and the event dispatcher.
package logging

import (
	"context"

	"github.com/PACK-Solutions/kommand"
	"github.com/sirupsen/logrus"
)

// CommandLogging returns a middleware that logs every command before it
// enters the rest of the chain and again when it fails.
func CommandLogging(logger logrus.FieldLogger) kommand.CommandMiddleware {
	return kommand.CommandMiddlewareFunc(func(ctx context.Context, cmd kommand.Command, next kommand.CommandContinuation) (kommand.Result, error) {
		log := logger.WithFields(logrus.Fields{
			"command":      kommand.TypeName(cmd),
			"aggregate_id": cmd.AggregateID(),
		})
		log.Info("dispatching command")

		result, err := next(ctx, cmd)
		switch {
		case err != nil:
			log.WithError(err).Error("command dispatch failed")
		case result.Err != nil:
			log.WithError(result.Err).Info("command rejected")
		default:
			log.WithField("events", len(result.Events)).Debug("command handled")
		}

		return result, err
	})
}

// QueryLogging returns a middleware that logs every query and its failure,
// if any.
func QueryLogging(logger logrus.FieldLogger) kommand.QueryMiddleware {
	return kommand.QueryMiddlewareFunc(func(ctx context.Context, qry kommand.Query, next kommand.QueryContinuation) (any, error) {
		log := logger.WithField("query", kommand.TypeName(qry))

		value, err := next(ctx, qry)
		if err != nil {
			log.WithError(err).Error("query dispatch failed")
		}
		return value, err
	})
}

// WithEventLogging wraps a projection handler with logging. The wrapper
// forwards EventName when the inner handler has one, so it can still be
// attached with EventDispatcher.Add.
func WithEventLogging(logger logrus.FieldLogger, next kommand.EventHandler) kommand.EventHandler {
	h := &loggingEventHandler{logger: logger, next: next}
	if named, ok := next.(interface{ EventName() string }); ok {
		return &namedLoggingEventHandler{loggingEventHandler: h, name: named.EventName()}
	}
	return h
}

type loggingEventHandler struct {
	logger logrus.FieldLogger
	next   kommand.EventHandler
}

func (h *loggingEventHandler) Handle(ctx context.Context, env kommand.Envelope) error {
	err := h.next.Handle(ctx, env)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"event":    kommand.TypeName(env.Event),
			"event_id": env.EventID,
		}).WithError(err).Error("projection handler failed")
	}
	return err
}

type namedLoggingEventHandler struct {
	*loggingEventHandler
	name string
}

func (h *namedLoggingEventHandler) EventName() string { return h.name }
