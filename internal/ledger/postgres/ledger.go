// Package postgres provides a PostgreSQL-backed [ledger.Ledger].
//
// Balances live in a spark_balances row per user; every successful spend also
// writes a journal row, both inside one transaction. The deduction is a
// conditional UPDATE (balance >= cost), so concurrent spends can never drive
// a balance negative.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arcsong/arcsong/internal/ledger"
)

const ddlLedger = `
CREATE TABLE IF NOT EXISTS spark_balances (
    user_id  TEXT    PRIMARY KEY,
    balance  INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0)
);

CREATE TABLE IF NOT EXISTS spark_journal (
    id         BIGSERIAL    PRIMARY KEY,
    user_id    TEXT         NOT NULL,
    feature    TEXT         NOT NULL,
    amount     INTEGER      NOT NULL,
    reference  TEXT         NOT NULL DEFAULT '',
    metadata   JSONB        NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_spark_journal_user_id
    ON spark_journal (user_id);

CREATE INDEX IF NOT EXISTS idx_spark_journal_reference
    ON spark_journal (reference);
`

// Compile-time interface check.
var _ ledger.Ledger = (*Ledger)(nil)

// Ledger is a PostgreSQL-backed [ledger.Ledger]. All methods are safe for
// concurrent use.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a Ledger, establishes a connection pool to the PostgreSQL
// database at dsn, and ensures the ledger tables exist.
func NewLedger(ctx context.Context, dsn string) (*Ledger, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("spark ledger: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("spark ledger: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlLedger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("spark ledger: migrate: %w", err)
	}
	return &Ledger{pool: pool}, nil
}

// NewLedgerWithPool wraps an existing pool. The caller keeps ownership of the
// pool; Close becomes a no-op.
func NewLedgerWithPool(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Close releases the underlying connection pool.
// Ping verifies the connection pool is still usable.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

func (l *Ledger) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}

// Spend implements [ledger.Ledger.Spend]. The deduction and the journal row
// commit together or not at all.
func (l *Ledger) Spend(ctx context.Context, req ledger.SpendRequest) error {
	if req.Cost <= 0 {
		return fmt.Errorf("spark ledger: spend: cost must be positive, got %d", req.Cost)
	}

	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		return fmt.Errorf("spark ledger: spend: marshal metadata: %w", err)
	}

	err = pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		const deduct = `
			UPDATE spark_balances
			SET    balance = balance - $2
			WHERE  user_id = $1
			  AND  balance >= $2`

		tag, err := tx.Exec(ctx, deduct, req.UserID, req.Cost)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ledger.ErrInsufficientBalance
		}

		const journal = `
			INSERT INTO spark_journal (user_id, feature, amount, reference, metadata)
			VALUES ($1, $2, $3, $4, $5)`

		_, err = tx.Exec(ctx, journal, req.UserID, req.Feature, -req.Cost, req.Reference, metadata)
		return err
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			return ledger.ErrInsufficientBalance
		}
		return fmt.Errorf("spark ledger: spend: %w", err)
	}
	return nil
}

// Grant adds sparks to a user's balance, creating the account row if needed,
// and journals the credit.
func (l *Ledger) Grant(ctx context.Context, userID string, amount int, feature string) error {
	if amount <= 0 {
		return fmt.Errorf("spark ledger: grant: amount must be positive, got %d", amount)
	}

	err := pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		const upsert = `
			INSERT INTO spark_balances (user_id, balance)
			VALUES ($1, $2)
			ON CONFLICT (user_id) DO UPDATE SET balance = spark_balances.balance + EXCLUDED.balance`

		if _, err := tx.Exec(ctx, upsert, userID, amount); err != nil {
			return err
		}

		const journal = `
			INSERT INTO spark_journal (user_id, feature, amount)
			VALUES ($1, $2, $3)`

		_, err := tx.Exec(ctx, journal, userID, feature, amount)
		return err
	})
	if err != nil {
		return fmt.Errorf("spark ledger: grant: %w", err)
	}
	return nil
}

// Balance returns the user's current balance. Unknown users have zero.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	const q = `SELECT balance FROM spark_balances WHERE user_id = $1`

	var balance int
	err := l.pool.QueryRow(ctx, q, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("spark ledger: balance: %w", err)
	}
	return balance, nil
}
