// Package sqlite provides an OutboxStore backed by SQLite through
// database/sql and the modernc.org/sqlite driver. Suited to embedded and
// single-node deployments; SQLite's writer lock stands in for row-level
// claim semantics.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/PACK-Solutions/kommand"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// Schema is the DDL for the outbox table.
const Schema = `
CREATE TABLE IF NOT EXISTS outbox_messages (
    id              TEXT PRIMARY KEY,
    event_type      TEXT NOT NULL,
    aggregate_id    TEXT NOT NULL,
    envelope        TEXT NOT NULL,
    retry_count     INTEGER NOT NULL DEFAULT 0,
    next_attempt_at TIMESTAMP,
    published       INTEGER NOT NULL DEFAULT 0,
    created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS outbox_messages_pending_idx
    ON outbox_messages (created_at) WHERE published = 0;
`

// Store persists outbox messages in a SQLite table.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over the given database handle. The caller owns
// the handle and the schema.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (or creates) a SQLite database at path and ensures the outbox
// schema exists. Use ":memory:" for an in-process throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create outbox schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts a pending message.
func (s *Store) Save(ctx context.Context, env kommand.Envelope) (uuid.UUID, error) {
	raw, err := kommand.MarshalEnvelope(env)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO outbox_messages (id, event_type, aggregate_id, envelope, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		id.String(), env.Event.EventType(), env.AggregateID, string(raw), time.Now().UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert outbox message: %w", err)
	}
	return id, nil
}

// FindUnpublished selects up to limit due pending rows, oldest first.
func (s *Store) FindUnpublished(ctx context.Context, limit int) ([]kommand.OutboxMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, envelope, retry_count, next_attempt_at, published, created_at
         FROM outbox_messages
         WHERE published = 0 AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
         ORDER BY created_at
         LIMIT ?`, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("select pending outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []kommand.OutboxMessage
	for rows.Next() {
		var (
			msg     kommand.OutboxMessage
			rawID   string
			rawEnv  string
			nextAt  sql.NullTime
			created time.Time
		)
		if err := rows.Scan(&rawID, &rawEnv, &msg.RetryCount, &nextAt, &msg.Published, &created); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}

		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID in outbox row: %w", err)
		}
		msg.ID = id
		msg.CreatedAt = created
		if nextAt.Valid {
			t := nextAt.Time
			msg.NextAttemptAt = &t
		}

		env, err := kommand.UnmarshalEnvelope([]byte(rawEnv))
		if err != nil {
			return nil, fmt.Errorf("decode outbox row %s: %w", id, err)
		}
		msg.Envelope = env
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkPublished flips the row to published; a second call matches a row
// that is already published and changes nothing.
func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_messages SET published = 1 WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("mark outbox message published: %w", err)
	}
	return nil
}

// IncrementRetryCount records a failed delivery attempt.
func (s *Store) IncrementRetryCount(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_messages SET retry_count = retry_count + 1, next_attempt_at = ? WHERE id = ?`,
		nextAttemptAt.UTC(), id.String())
	if err != nil {
		return fmt.Errorf("increment outbox retry count: %w", err)
	}
	return nil
}

var _ kommand.OutboxStore = (*Store)(nil)
