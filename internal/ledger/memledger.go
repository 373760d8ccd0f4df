package ledger

import (
	"context"
	"fmt"
	"sync"
)

// Compile-time assertion that MemLedger satisfies Ledger.
var _ Ledger = (*MemLedger)(nil)

// MemLedger is a thread-safe, in-memory [Ledger] for tests and development.
// Unknown users have a zero balance. The zero value is ready to use.
type MemLedger struct {
	mu       sync.Mutex
	balances map[string]int
	spends   []SpendRequest

	// Err, when non-nil, is returned by every Spend call. Lets tests
	// exercise the fail-closed path for non-balance ledger errors.
	Err error
}

// NewMemLedger returns a [MemLedger] with the given starting balances.
func NewMemLedger(balances map[string]int) *MemLedger {
	l := &MemLedger{balances: make(map[string]int, len(balances))}
	for user, b := range balances {
		l.balances[user] = b
	}
	return l
}

// Spend implements [Ledger.Spend].
func (l *MemLedger) Spend(_ context.Context, req SpendRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.Err != nil {
		return l.Err
	}
	if req.Cost <= 0 {
		return fmt.Errorf("ledger: spend: cost must be positive, got %d", req.Cost)
	}
	if l.balances[req.UserID] < req.Cost {
		return ErrInsufficientBalance
	}
	l.balances[req.UserID] -= req.Cost
	l.spends = append(l.spends, req)
	return nil
}

// Grant adds sparks to a user's balance.
func (l *MemLedger) Grant(userID string, amount int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances == nil {
		l.balances = make(map[string]int)
	}
	l.balances[userID] += amount
}

// Balance returns the user's current balance.
func (l *MemLedger) Balance(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

// Spends returns a copy of all successful spends, in order.
func (l *MemLedger) Spends() []SpendRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SpendRequest, len(l.spends))
	copy(out, l.spends)
	return out
}
