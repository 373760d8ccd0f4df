// Package postgres provides a PostgreSQL-backed [memorybank.Bank] with a
// pgvector similarity index over snippet embeddings.
//
// The pgvector extension must be available in the target database; the
// constructor installs it via CREATE EXTENSION IF NOT EXISTS.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/arcsong/arcsong/internal/memorybank"
	"github.com/arcsong/arcsong/pkg/provider/embeddings"
)

// Compile-time interface check.
var _ memorybank.Bank = (*Bank)(nil)

// Bank is a PostgreSQL-backed [memorybank.Bank]. All methods are safe for
// concurrent use.
type Bank struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
	logger   *slog.Logger
}

// DefaultDimensions sizes the vector column when neither an override nor an
// embedder supplies a dimension. Matches OpenAI's text-embedding-3-small.
const DefaultDimensions = 1536

// NewBank creates a Bank, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and ensures
// the snippets table exists.
//
// A nil embedder is allowed: snippets are then stored without vectors and
// recalled by recency. The vector column is sized from dims when positive,
// else from embedder.Dimensions(), else [DefaultDimensions]; changing
// embedding models after the first migration requires a manual schema change.
// A nil logger selects [slog.Default].
func NewBank(ctx context.Context, dsn string, embedder embeddings.Provider, dims int, logger *slog.Logger) (*Bank, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dims = resolveDimensions(dims, embedder, logger)

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("memory bank: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("memory bank: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("memory bank: ping: %w", err)
	}

	if err := migrate(ctx, pool, dims); err != nil {
		pool.Close()
		return nil, fmt.Errorf("memory bank: migrate: %w", err)
	}

	return &Bank{pool: pool, embedder: embedder, logger: logger}, nil
}

// resolveDimensions picks the vector column size: an explicit positive
// override wins, then the embedder's own report, then the default. A
// mismatch between override and embedder is logged; the override stands so
// an existing schema is not silently abandoned.
func resolveDimensions(dims int, embedder embeddings.Provider, logger *slog.Logger) int {
	if dims > 0 {
		if embedder != nil && embedder.Dimensions() > 0 && embedder.Dimensions() != dims {
			logger.Warn("configured embedding dimensions differ from the embedder's",
				"configured", dims, "embedder", embedder.Dimensions())
		}
		return dims
	}
	if embedder != nil && embedder.Dimensions() > 0 {
		return embedder.Dimensions()
	}
	return DefaultDimensions
}

// Ping verifies the connection pool is still usable.
func (b *Bank) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

// Close releases the underlying connection pool.
func (b *Bank) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

func migrate(ctx context.Context, pool *pgxpool.Pool, dims int) error {
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memory_snippets (
    id         BIGSERIAL    PRIMARY KEY,
    session_id TEXT         NOT NULL,
    content    TEXT         NOT NULL,
    embedding  vector(%d),
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_memory_snippets_session_id
    ON memory_snippets (session_id);

CREATE INDEX IF NOT EXISTS idx_memory_snippets_embedding
    ON memory_snippets USING hnsw (embedding vector_cosine_ops);
`, dims)

	_, err := pool.Exec(ctx, ddl)
	return err
}

// Save implements [memorybank.Bank.Save]. The snippet is embedded before
// insertion; with no embedder, or when the embedding call fails, the snippet
// is stored without a vector and any failure is logged, not returned.
func (b *Bank) Save(ctx context.Context, sessionID string, content string) error {
	var vec any
	if b.embedder != nil {
		embedding, err := b.embedder.Embed(ctx, content)
		if err != nil {
			b.logger.Warn("snippet embedding failed, storing without vector",
				"session_id", sessionID, "err", err)
		} else {
			vec = pgvector.NewVector(embedding)
		}
	}

	const q = `
		INSERT INTO memory_snippets (session_id, content, embedding)
		VALUES ($1, $2, $3)`

	if _, err := b.pool.Exec(ctx, q, sessionID, content, vec); err != nil {
		return fmt.Errorf("memory bank: save: %w", err)
	}
	return nil
}

// Recall implements [memorybank.Bank.Recall]. Snippets with vectors are
// ranked by cosine distance to the embedded query; with no embedder, or when
// the query embedding fails, recency order is used instead.
func (b *Bank) Recall(ctx context.Context, sessionID string, query string, topK int) ([]memorybank.Result, error) {
	if topK <= 0 {
		topK = 5
	}

	if b.embedder == nil {
		return b.recallRecent(ctx, sessionID, topK)
	}

	queryVec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		b.logger.Warn("query embedding failed, recalling by recency",
			"session_id", sessionID, "err", err)
		return b.recallRecent(ctx, sessionID, topK)
	}

	const q = `
		SELECT id, session_id, content, embedding IS NOT NULL, created_at,
		       embedding <=> $2 AS distance
		FROM   memory_snippets
		WHERE  session_id = $1
		  AND  embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $3`

	rows, err := b.pool.Query(ctx, q, sessionID, pgvector.NewVector(queryVec), topK)
	if err != nil {
		return nil, fmt.Errorf("memory bank: recall: %w", err)
	}
	return collectResults(rows)
}

// recallRecent returns the session's snippets newest first, with no distance.
func (b *Bank) recallRecent(ctx context.Context, sessionID string, topK int) ([]memorybank.Result, error) {
	const q = `
		SELECT id, session_id, content, embedding IS NOT NULL, created_at,
		       0::float8 AS distance
		FROM   memory_snippets
		WHERE  session_id = $1
		ORDER  BY created_at DESC
		LIMIT  $2`

	rows, err := b.pool.Query(ctx, q, sessionID, topK)
	if err != nil {
		return nil, fmt.Errorf("memory bank: recall recent: %w", err)
	}
	return collectResults(rows)
}

func collectResults(rows pgx.Rows) ([]memorybank.Result, error) {
	defer rows.Close()

	var out []memorybank.Result
	for rows.Next() {
		var (
			r       memorybank.Result
			created time.Time
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Content, &r.Embedded, &created, &r.Distance); err != nil {
			return nil, fmt.Errorf("memory bank: scan: %w", err)
		}
		r.CreatedAt = created
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory bank: rows: %w", err)
	}
	return out, nil
}
