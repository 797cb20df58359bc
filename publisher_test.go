package kommand

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// failingPublisher fails delivery for envelopes whose event carries one of
// the given names and records every attempt.
type failingPublisher struct {
	failNames map[string]error
	delivered []OutboxMessage
	attempts  int
}

func (p *failingPublisher) Publish(ctx context.Context, msg OutboxMessage) error {
	p.attempts++
	if e, ok := msg.Envelope.Event.(testEvent); ok {
		if err, failing := p.failNames[e.Name]; failing {
			return err
		}
	}
	p.delivered = append(p.delivered, msg)
	return nil
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestOutboxPublisher_PublishesPendingBatch(t *testing.T) {
	store := &fakeStore{}
	for _, name := range []string{"a", "b", "c"} {
		if _, err := store.Save(context.Background(), NewEnvelope(testEvent{ID: "agg", Name: name})); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	sink := &failingPublisher{}
	pub := NewOutboxPublisher(store, sink, WithLogger(quietLogger()))

	if err := pub.PublishPendingEvents(context.Background(), 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sink.delivered) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(sink.delivered))
	}
	for i, msg := range store.messages {
		if !msg.Published {
			t.Fatalf("message %d must be marked published", i)
		}
	}

	// A second pass finds nothing left to do.
	sink.attempts = 0
	if err := pub.PublishPendingEvents(context.Background(), 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.attempts != 0 {
		t.Fatalf("published messages must not be redelivered, got %d attempts", sink.attempts)
	}
}

func TestOutboxPublisher_FailureIsIsolatedPerMessage(t *testing.T) {
	store := &fakeStore{}
	for _, name := range []string{"a", "bad", "c", "d"} {
		if _, err := store.Save(context.Background(), NewEnvelope(testEvent{ID: "agg", Name: name})); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	sink := &failingPublisher{failNames: map[string]error{"bad": errors.New("broker down")}}
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	pub := NewOutboxPublisher(store, sink,
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return base }),
	)

	if err := pub.PublishPendingEvents(context.Background(), 10); err != nil {
		t.Fatalf("delivery failures must not fail the pass: %v", err)
	}

	if sink.attempts != 4 {
		t.Fatalf("every message must be attempted, got %d of 4", sink.attempts)
	}
	if len(sink.delivered) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(sink.delivered))
	}

	published := 0
	for _, msg := range store.messages {
		if msg.Published {
			published++
			continue
		}
		if msg.RetryCount != 1 {
			t.Fatalf("failed message retry count = %d, want 1", msg.RetryCount)
		}
		if msg.NextAttemptAt == nil {
			t.Fatal("failed message must carry a next attempt time")
		}
		if want := base.Add(DefaultRetryDelay(0)); !msg.NextAttemptAt.Equal(want) {
			t.Fatalf("next attempt = %v, want %v", msg.NextAttemptAt, want)
		}
	}
	if published != 3 {
		t.Fatalf("expected 3 published messages, got %d", published)
	}
	if store.markCalls != 3 {
		t.Fatalf("MarkPublished must run once per success, got %d calls", store.markCalls)
	}
	if store.incrCalls != 1 {
		t.Fatalf("IncrementRetryCount must run once per failure, got %d calls", store.incrCalls)
	}
}

func TestOutboxPublisher_StoreReadErrorAbortsPass(t *testing.T) {
	boom := errors.New("connection reset")
	store := &fakeStore{findErr: boom}
	sink := &failingPublisher{}

	pub := NewOutboxPublisher(store, sink, WithLogger(quietLogger()))

	if err := pub.PublishPendingEvents(context.Background(), 10); !errors.Is(err, boom) {
		t.Fatalf("expected store read error, got %v", err)
	}
	if sink.attempts != 0 {
		t.Fatalf("no delivery may be attempted after a read failure, got %d", sink.attempts)
	}
}

func TestOutboxPublisher_MarkFailureKeepsMessagePending(t *testing.T) {
	store := &fakeStore{markErr: errors.New("deadlock")}
	if _, err := store.Save(context.Background(), NewEnvelope(testEvent{ID: "agg", Name: "a"})); err != nil {
		t.Fatalf("seed: %v", err)
	}

	sink := &failingPublisher{}
	pub := NewOutboxPublisher(store, sink, WithLogger(quietLogger()))

	if err := pub.PublishPendingEvents(context.Background(), 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.messages[0].Published {
		t.Fatal("message must stay pending when the mark fails")
	}

	// At-least-once: the next pass delivers the same message again.
	store.markErr = nil
	if err := pub.PublishPendingEvents(context.Background(), 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.attempts != 2 {
		t.Fatalf("expected redelivery, got %d attempts", sink.attempts)
	}
	if !store.messages[0].Published {
		t.Fatal("message must be published on the retry pass")
	}
}

func TestOutboxPublisher_BatchSizeLimitsPass(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 5; i++ {
		if _, err := store.Save(context.Background(), NewEnvelope(testEvent{ID: "agg"})); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	sink := &failingPublisher{}
	pub := NewOutboxPublisher(store, sink, WithLogger(quietLogger()))

	if err := pub.PublishPendingEvents(context.Background(), 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", sink.attempts)
	}
}

func TestDefaultRetryDelay(t *testing.T) {
	cases := []struct {
		retries int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{20, 5 * time.Minute},
	}
	for _, tc := range cases {
		if got := DefaultRetryDelay(tc.retries); got != tc.want {
			t.Fatalf("DefaultRetryDelay(%d) = %v, want %v", tc.retries, got, tc.want)
		}
	}
}
