// Package postgres provides an OutboxStore backed by PostgreSQL through
// pgx. FindUnpublished claims rows by pushing their next attempt one claim
// window into the future in the same statement that selects them (FOR
// UPDATE SKIP LOCKED on the subselect), so concurrent publishers work on
// disjoint batches for the length of the window. A claimed row whose
// publisher dies becomes due again once the window lapses.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/PACK-Solutions/kommand"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the outbox table. Run it once at deploy time, or
// feed it to a migration tool.
const Schema = `
CREATE TABLE IF NOT EXISTS outbox_messages (
    id              UUID PRIMARY KEY,
    event_type      TEXT NOT NULL,
    aggregate_id    TEXT NOT NULL,
    envelope        JSONB NOT NULL,
    retry_count     INT NOT NULL DEFAULT 0,
    next_attempt_at TIMESTAMPTZ,
    published       BOOLEAN NOT NULL DEFAULT FALSE,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS outbox_messages_pending_idx
    ON outbox_messages (created_at) WHERE NOT published;
`

type txCtxKey struct{}

// WithTx returns a context carrying a pgx transaction. Save joins it, so
// the outbox write commits atomically with the business write. This is the
// context a pgx-backed TransactionManager should hand to its callback.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txCtxKey{}, tx)
}

// TxManager is a kommand.TransactionManager over a pgx pool. Each WithinTx
// call begins one transaction, runs fn with the transaction in the context,
// and commits or rolls back on fn's error.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager creates a transaction manager over the given pool.
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

// DefaultClaimWindow is how long a batch returned by FindUnpublished stays
// invisible to other publishers.
const DefaultClaimWindow = time.Minute

// Store persists outbox messages in a PostgreSQL table.
type Store struct {
	pool        *pgxpool.Pool
	table       string
	claimWindow time.Duration
}

// Option customizes a Store.
type Option func(*Store)

// WithTableName overrides the default "outbox_messages" table name.
func WithTableName(table string) Option {
	return func(s *Store) { s.table = table }
}

// WithClaimWindow overrides how long claimed rows stay invisible to other
// publishers. Size it above the worst-case time to publish one batch;
// undersizing it reintroduces duplicate delivery (which downstream
// consumers must tolerate anyway).
func WithClaimWindow(window time.Duration) Option {
	return func(s *Store) { s.claimWindow = window }
}

// NewStore creates a store over the given pool.
func NewStore(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, table: "outbox_messages", claimWindow: DefaultClaimWindow}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func (s *Store) exec(ctx context.Context) execer {
	if tx, ok := ctx.Value(txCtxKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// Save inserts a pending message, joining the transaction in ctx when one
// is present.
func (s *Store) Save(ctx context.Context, env kommand.Envelope) (uuid.UUID, error) {
	raw, err := kommand.MarshalEnvelope(env)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	query := fmt.Sprintf(`INSERT INTO %s (id, event_type, aggregate_id, envelope, created_at)
        VALUES ($1, $2, $3, $4, $5)`, s.table)

	if _, err := s.exec(ctx).Exec(ctx, query, id, env.Event.EventType(), env.AggregateID, raw, time.Now().UTC()); err != nil {
		return uuid.Nil, fmt.Errorf("insert outbox message: %w", err)
	}
	return id, nil
}

// FindUnpublished claims up to limit due pending rows, oldest first. The
// claim (next_attempt_at pushed one window forward) and the selection are
// one statement, so it holds without the caller keeping a transaction open
// across the fetch-publish-mark cycle.
func (s *Store) FindUnpublished(ctx context.Context, limit int) ([]kommand.OutboxMessage, error) {
	rows, err := s.pool.Query(ctx, s.claimQuery(), limit, s.claimWindow)
	if err != nil {
		return nil, fmt.Errorf("select pending outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []kommand.OutboxMessage
	for rows.Next() {
		var (
			msg kommand.OutboxMessage
			raw []byte
		)
		if err := rows.Scan(&msg.ID, &raw, &msg.RetryCount, &msg.NextAttemptAt, &msg.Published, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}

		env, err := kommand.UnmarshalEnvelope(raw)
		if err != nil {
			return nil, fmt.Errorf("decode outbox row %s: %w", msg.ID, err)
		}
		msg.Envelope = env
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// claimQuery builds the claim-and-select statement. The UPDATE's subselect
// takes the row locks (SKIP LOCKED keeps concurrent claimers from
// blocking); the outer SELECT restores oldest-first order, which RETURNING
// does not guarantee.
func (s *Store) claimQuery() string {
	return fmt.Sprintf(`WITH claimed AS (
        UPDATE %[1]s SET next_attempt_at = now() + $2
        WHERE id IN (
            SELECT id FROM %[1]s
            WHERE NOT published AND (next_attempt_at IS NULL OR next_attempt_at <= now())
            ORDER BY created_at
            LIMIT $1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING id, envelope, retry_count, next_attempt_at, published, created_at
    )
    SELECT id, envelope, retry_count, next_attempt_at, published, created_at
    FROM claimed
    ORDER BY created_at`, s.table)
}

// MarkPublished flips the row to published. Re-marking a published row
// writes the same value again and is a no-op.
func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`UPDATE %s SET published = TRUE WHERE id = $1`, s.table)
	if _, err := s.exec(ctx).Exec(ctx, query, id); err != nil {
		return fmt.Errorf("mark outbox message published: %w", err)
	}
	return nil
}

// IncrementRetryCount records a failed delivery attempt.
func (s *Store) IncrementRetryCount(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET retry_count = retry_count + 1, next_attempt_at = $2 WHERE id = $1`, s.table)
	if _, err := s.exec(ctx).Exec(ctx, query, id, nextAttemptAt.UTC()); err != nil {
		return fmt.Errorf("increment outbox retry count: %w", err)
	}
	return nil
}

var _ kommand.OutboxStore = (*Store)(nil)
var _ kommand.TransactionManager = (*TxManager)(nil)
