// Package ledger defines the spark ledger interface the director spends
// against, plus in-memory and PostgreSQL implementations.
//
// Sparks are the resource unit charged for generating a visual. The ledger
// owns the accounting rules; the director only calls Spend and reacts to
// [ErrInsufficientBalance] by downgrading the action.
package ledger

import (
	"context"
	"errors"
)

// ErrInsufficientBalance is returned by Spend when the user's balance does
// not cover the requested cost. No partial charge is made.
var ErrInsufficientBalance = errors.New("ledger: insufficient balance")

// SpendRequest describes one charge against a user's spark balance.
type SpendRequest struct {
	// UserID is the account to charge.
	UserID string

	// Feature is a stable key naming what the charge pays for
	// (e.g., "episode_visual").
	Feature string

	// Cost is the number of sparks to deduct. Must be positive.
	Cost int

	// Reference ties the charge to a domain object (e.g., the session ID)
	// for audit and idempotent reconciliation.
	Reference string

	// Metadata carries free-form context recorded in the journal.
	Metadata map[string]string
}

// Ledger is the resource-accounting collaborator.
//
// Implementations must be safe for concurrent use. Spend must be atomic: it
// either deducts the full cost or returns an error leaving the balance
// untouched.
type Ledger interface {
	// Spend deducts req.Cost sparks from req.UserID's balance. Returns
	// [ErrInsufficientBalance] when the balance does not cover the cost.
	Spend(ctx context.Context, req SpendRequest) error
}
