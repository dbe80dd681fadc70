package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlConversations = `
CREATE TABLE IF NOT EXISTS conversations (
    id             BIGSERIAL    PRIMARY KEY,
    session_id     TEXT         NOT NULL,
    request_id     TEXT         NOT NULL DEFAULT '',
    category       TEXT         NOT NULL DEFAULT '',
    voice_model    TEXT         NOT NULL DEFAULT '',
    user_text      TEXT         NOT NULL,
    assistant_text TEXT         NOT NULL,
    audio_bytes    INTEGER      NOT NULL DEFAULT 0,
    duration_ns    BIGINT       NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_conversations_session_id
    ON conversations (session_id);

CREATE INDEX IF NOT EXISTS idx_conversations_created_at
    ON conversations (created_at);
`

// PostgresStore is a Store backed by a PostgreSQL conversations table.
// All methods are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore establishes a connection pool to the database at dsn and
// ensures the conversations table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlConversations); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit store: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Write implements [Store].
func (s *PostgresStore) Write(ctx context.Context, rec Record) error {
	const q = `
		INSERT INTO conversations
		    (session_id, request_id, category, voice_model, user_text, assistant_text, audio_bytes, duration_ns, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, q,
		rec.SessionID,
		rec.RequestID,
		rec.Category,
		rec.VoiceModel,
		rec.UserText,
		rec.AssistantText,
		rec.AudioBytes,
		rec.Duration.Nanoseconds(),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("audit store: write record: %w", err)
	}
	return nil
}

// Ping checks database connectivity. Used as a readiness check.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)
