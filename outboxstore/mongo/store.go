// Package mongo provides an OutboxStore backed by a MongoDB collection.
//
// The envelope travels as its JSON wire form inside the document, so the
// same event registry used by the SQL stores rebuilds concrete events here.
// MongoDB offers no SKIP LOCKED equivalent; run a single publisher per
// collection or add a claim field on top.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/PACK-Solutions/kommand"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists outbox messages in a MongoDB collection.
type Store struct {
	coll *mongo.Collection
}

// NewStore creates a store over the "outbox_messages" collection of the
// given database.
func NewStore(client *mongo.Client, dbName string) *Store {
	return &Store{coll: client.Database(dbName).Collection("outbox_messages")}
}

// document is the persisted shape of one outbox message.
type document struct {
	ID            string     `bson:"_id"`
	EventType     string     `bson:"eventType"`
	AggregateID   string     `bson:"aggregateId"`
	Envelope      []byte     `bson:"envelope"`
	RetryCount    int        `bson:"retryCount"`
	NextAttemptAt *time.Time `bson:"nextAttemptAt,omitempty"`
	Published     bool       `bson:"published"`
	CreatedAt     time.Time  `bson:"createdAt"`
}

// Save inserts a pending message.
func (s *Store) Save(ctx context.Context, env kommand.Envelope) (uuid.UUID, error) {
	raw, err := kommand.MarshalEnvelope(env)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	_, err = s.coll.InsertOne(ctx, document{
		ID:          id.String(),
		EventType:   env.Event.EventType(),
		AggregateID: env.AggregateID,
		Envelope:    raw,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert outbox message: %w", err)
	}
	return id, nil
}

// FindUnpublished returns up to limit due pending documents, oldest first.
func (s *Store) FindUnpublished(ctx context.Context, limit int) ([]kommand.OutboxMessage, error) {
	filter := bson.M{
		"published": false,
		"$or": bson.A{
			bson.M{"nextAttemptAt": bson.M{"$exists": false}},
			bson.M{"nextAttemptAt": nil},
			bson.M{"nextAttemptAt": bson.M{"$lte": time.Now().UTC()}},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(int64(limit))

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("select pending outbox messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []kommand.OutboxMessage
	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode outbox document: %w", err)
		}

		id, err := uuid.Parse(doc.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID in outbox document: %w", err)
		}

		env, err := kommand.UnmarshalEnvelope(doc.Envelope)
		if err != nil {
			return nil, fmt.Errorf("decode outbox document %s: %w", doc.ID, err)
		}

		messages = append(messages, kommand.OutboxMessage{
			ID:            id,
			Envelope:      env,
			RetryCount:    doc.RetryCount,
			NextAttemptAt: doc.NextAttemptAt,
			Published:     doc.Published,
			CreatedAt:     doc.CreatedAt,
		})
	}
	return messages, cursor.Err()
}

// MarkPublished flips the document to published; repeating it is a no-op.
func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"published": true}})
	if err != nil {
		return fmt.Errorf("mark outbox message published: %w", err)
	}
	return nil
}

// IncrementRetryCount records a failed delivery attempt.
func (s *Store) IncrementRetryCount(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{
			"$inc": bson.M{"retryCount": 1},
			"$set": bson.M{"nextAttemptAt": nextAttemptAt.UTC()},
		})
	if err != nil {
		return fmt.Errorf("increment outbox retry count: %w", err)
	}
	return nil
}

var _ kommand.OutboxStore = (*Store)(nil)
