// Package postgres provides a PostgreSQL-backed [sessionstore.Store].
//
// Sessions are stored one row per session with a version column; Update is a
// conditional UPDATE on (id, version), which gives the compare-and-swap
// semantics the director relies on to serialize concurrent exchanges.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arcsong/arcsong/internal/sessionstore"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id                 TEXT         PRIMARY KEY,
    user_id            TEXT         NOT NULL,
    episode_id         TEXT         NOT NULL DEFAULT '',
    turn_count         INTEGER      NOT NULL DEFAULT 0,
    director_state     JSONB        NOT NULL DEFAULT '{}',
    state              TEXT         NOT NULL DEFAULT 'active',
    completion_trigger TEXT         NOT NULL DEFAULT '',
    version            BIGINT       NOT NULL DEFAULT 1,
    created_at         TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_id
    ON sessions (user_id);

CREATE INDEX IF NOT EXISTS idx_sessions_state
    ON sessions (state);
`

// Compile-time interface check.
var _ sessionstore.Store = (*Store)(nil)

// Store is a PostgreSQL-backed [sessionstore.Store]. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, and ensures the sessions table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("session store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("session store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlSessions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("session store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool wraps an existing pool. The caller keeps ownership of the
// pool; Close becomes a no-op.
func NewStoreWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping reports whether the database is reachable. Used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Create implements [sessionstore.Store.Create].
func (s *Store) Create(ctx context.Context, sess *sessionstore.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session store: create: session ID must not be empty")
	}
	if sess.State == "" {
		sess.State = sessionstore.StateActive
	}

	director, err := json.Marshal(sess.Director)
	if err != nil {
		return fmt.Errorf("session store: create: marshal director state: %w", err)
	}

	now := time.Now()
	const q = `
		INSERT INTO sessions
		    (id, user_id, episode_id, turn_count, director_state, state, completion_trigger, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $8)`

	_, err = s.pool.Exec(ctx, q,
		sess.ID,
		sess.UserID,
		sess.EpisodeID,
		sess.TurnCount,
		director,
		string(sess.State),
		string(sess.CompletionTrigger),
		now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return fmt.Errorf("session store: create: session %q already exists", sess.ID)
		}
		return fmt.Errorf("session store: create: %w", err)
	}

	sess.Version = 1
	sess.CreatedAt = now
	sess.UpdatedAt = now
	return nil
}

// Get implements [sessionstore.Store.Get].
func (s *Store) Get(ctx context.Context, id string) (*sessionstore.Session, error) {
	const q = `
		SELECT id, user_id, episode_id, turn_count, director_state, state, completion_trigger, version, created_at, updated_at
		FROM   sessions
		WHERE  id = $1`

	var (
		sess     sessionstore.Session
		director []byte
		state    string
		trigger  string
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.EpisodeID,
		&sess.TurnCount,
		&director,
		&state,
		&trigger,
		&sess.Version,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sessionstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session store: get: %w", err)
	}

	if err := json.Unmarshal(director, &sess.Director); err != nil {
		return nil, fmt.Errorf("session store: get: unmarshal director state: %w", err)
	}
	sess.State = sessionstore.State(state)
	sess.CompletionTrigger = sessionstore.CompletionTrigger(trigger)
	return &sess, nil
}

// Update implements [sessionstore.Store.Update]. The UPDATE is conditional on
// the stored version matching sess.Version; zero rows affected means either
// the session is gone or another writer got there first.
func (s *Store) Update(ctx context.Context, sess *sessionstore.Session) error {
	director, err := json.Marshal(sess.Director)
	if err != nil {
		return fmt.Errorf("session store: update: marshal director state: %w", err)
	}

	now := time.Now()
	const q = `
		UPDATE sessions
		SET    turn_count = $3,
		       director_state = $4,
		       state = $5,
		       completion_trigger = $6,
		       version = version + 1,
		       updated_at = $7
		WHERE  id = $1
		  AND  version = $2`

	tag, err := s.pool.Exec(ctx, q,
		sess.ID,
		sess.Version,
		sess.TurnCount,
		director,
		string(sess.State),
		string(sess.CompletionTrigger),
		now,
	)
	if err != nil {
		return fmt.Errorf("session store: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a stale version.
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, sess.ID).Scan(&exists); err != nil {
			return fmt.Errorf("session store: update: %w", err)
		}
		if !exists {
			return sessionstore.ErrNotFound
		}
		return sessionstore.ErrVersionConflict
	}

	sess.Version++
	sess.UpdatedAt = now
	return nil
}
