package kommand

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// DefaultBatchSize is the batch size used by Run and by
// PublishPendingEvents when the caller passes a non-positive value.
const DefaultBatchSize = 100

// RetryDelayFunc computes how long to wait before the next delivery attempt
// of a message that has already failed retries times.
type RetryDelayFunc func(retries int) time.Duration

// DefaultRetryDelay doubles the delay per failed attempt, starting at one
// second and capped at five minutes.
func DefaultRetryDelay(retries int) time.Duration {
	const (
		initial = time.Second
		max     = 5 * time.Minute
	)

	delay := initial
	for i := 0; i < retries; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}

// OutboxPublisher pulls pending messages from an OutboxStore and delivers
// them through a Publisher, marking each one published on success.
type OutboxPublisher struct {
	store      OutboxStore
	publisher  Publisher
	retryDelay RetryDelayFunc
	log        logrus.FieldLogger
	clock      func() time.Time
}

// PublisherOption customizes an OutboxPublisher.
type PublisherOption func(*OutboxPublisher)

// WithLogger sets the logger used by the publish loop. Defaults to the
// standard logrus logger.
func WithLogger(log logrus.FieldLogger) PublisherOption {
	return func(p *OutboxPublisher) { p.log = log }
}

// WithRetryDelay overrides the schedule for a message's next delivery
// attempt after a failure.
func WithRetryDelay(fn RetryDelayFunc) PublisherOption {
	return func(p *OutboxPublisher) { p.retryDelay = fn }
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) PublisherOption {
	return func(p *OutboxPublisher) { p.clock = clock }
}

// NewOutboxPublisher creates a publisher over the given store and delivery
// collaborator.
func NewOutboxPublisher(store OutboxStore, publisher Publisher, opts ...PublisherOption) *OutboxPublisher {
	p := &OutboxPublisher{
		store:      store,
		publisher:  publisher,
		retryDelay: DefaultRetryDelay,
		log:        logrus.StandardLogger(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishPendingEvents pulls up to batchSize unpublished messages in one
// pass and attempts delivery for each, in sequence.
//
// Failure is isolated per message: a failed delivery increments that
// message's retry count, schedules its next attempt and moves on to the
// next message. One message's failure never aborts the batch nor touches
// messages that already succeeded in the same pass. A failed message is
// retried only on a later invocation.
//
// The returned error reports a failure to read the batch from the store;
// delivery failures are never propagated.
func (p *OutboxPublisher) PublishPendingEvents(ctx context.Context, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	messages, err := p.store.FindUnpublished(ctx, batchSize)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		p.publishOne(ctx, msg)
	}
	return nil
}

func (p *OutboxPublisher) publishOne(ctx context.Context, msg OutboxMessage) {
	log := p.log.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"event_type": TypeName(msg.Envelope.Event),
	})

	if err := p.publisher.Publish(ctx, msg); err != nil {
		nextAttempt := p.clock().Add(p.retryDelay(msg.RetryCount))
		log.WithError(err).WithField("retry_count", msg.RetryCount+1).
			Warn("delivery failed, message stays pending")

		if err := p.store.IncrementRetryCount(ctx, msg.ID, nextAttempt); err != nil {
			log.WithError(err).Error("failed to record delivery attempt")
		}
		return
	}

	if err := p.store.MarkPublished(ctx, msg.ID); err != nil {
		// The message will be delivered again on a later pass; downstream
		// handlers must tolerate duplicates anyway.
		log.WithError(err).Error("failed to mark message published")
		return
	}

	log.Debug("message published")
}

// Run polls the store on the given interval until the context is cancelled,
// publishing one batch per tick with PublishPendingEvents.
//
// Transient store read failures are retried with exponential backoff before
// falling back to the regular interval.
func (p *OutboxPublisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.log.WithField("interval", interval).Info("outbox publisher started")

	for {
		select {
		case <-ctx.Done():
			p.log.Info("outbox publisher stopped")
			return
		case <-ticker.C:
			pass := func() error {
				return p.PublishPendingEvents(ctx, DefaultBatchSize)
			}

			bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
			if err := backoff.Retry(pass, backoff.WithMaxRetries(bo, 3)); err != nil {
				p.log.WithError(err).Warn("failed to read pending messages")
			}
		}
	}
}
