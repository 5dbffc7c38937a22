// Package postgres provides a PostgreSQL-backed transcript archive.
//
// The store holds a single [pgxpool.Pool] and creates its own schema on
// startup via CREATE TABLE IF NOT EXISTS, so no external migration step is
// needed.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/resonate/internal/transcript"
)

// Compile-time interface check.
var _ transcript.Store = (*Store)(nil)

const ddlTranscriptEntries = `
CREATE TABLE IF NOT EXISTS transcript_entries (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    client_id   TEXT         NOT NULL DEFAULT '',
    role        TEXT         NOT NULL,
    content     TEXT         NOT NULL,
    strategy    TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcript_entries_session_id
    ON transcript_entries (session_id, id);
`

// Store is the PostgreSQL-backed transcript archive. All operations are safe
// for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store, establishes a connection pool to the database at dsn,
// verifies connectivity, and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("transcript store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("transcript store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript store: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, ddlTranscriptEntries); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Record implements [transcript.Store].
func (s *Store) Record(ctx context.Context, entry transcript.Entry) error {
	const q = `
		INSERT INTO transcript_entries
		    (session_id, client_id, role, content, strategy, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, q,
		entry.SessionID,
		entry.ClientID,
		entry.Role,
		entry.Content,
		entry.Strategy,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("transcript store: record: %w", err)
	}
	return nil
}

// Recent implements [transcript.Store]. It returns the last limit entries for
// sessionID in chronological order, oldest first.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]transcript.Entry, error) {
	const q = `
		SELECT session_id, client_id, role, content, strategy, created_at
		FROM   transcript_entries
		WHERE  session_id = $1
		ORDER  BY id DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("transcript store: recent: %w", err)
	}
	defer rows.Close()

	var entries []transcript.Entry
	for rows.Next() {
		var e transcript.Entry
		if err := rows.Scan(&e.SessionID, &e.ClientID, &e.Role, &e.Content, &e.Strategy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("transcript store: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcript store: iterate entries: %w", err)
	}

	// The query walks newest-first to honour the limit; flip back to
	// chronological order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements [transcript.Store].
func (s *Store) Close() {
	s.pool.Close()
}
