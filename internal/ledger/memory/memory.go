package memory

import (
	"context"
	"sync"

	"famiglia/internal/core"
	"famiglia/internal/ledger"
)

// Ledger is an in-memory AccountLedger for development and tests. Accounts
// are created on first credit; debits require an existing account.
type Ledger struct {
	mu       sync.Mutex
	balances map[int64]int64
}

func New() *Ledger {
	return &Ledger{balances: make(map[int64]int64)}
}

// NewWithBalances seeds the ledger with initial account balances in cents.
func NewWithBalances(balances map[int64]int64) *Ledger {
	l := New()
	for id, cents := range balances {
		l.balances[id] = cents
	}
	return l
}

// Debit implements ledger.AccountLedger.
func (l *Ledger) Debit(_ context.Context, accountID int64, amount core.Money) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[accountID]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	if balance < amount.Cents {
		return ledger.ErrInsufficientFunds
	}
	l.balances[accountID] = balance - amount.Cents
	return nil
}

// Credit implements ledger.AccountLedger.
func (l *Ledger) Credit(_ context.Context, accountID int64, amount core.Money) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[accountID] += amount.Cents
	return nil
}

// Balance implements ledger.AccountLedger.
func (l *Ledger) Balance(_ context.Context, accountID int64) (core.Money, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[accountID]
	if !ok {
		return core.Money{}, ledger.ErrAccountNotFound
	}
	return core.Money{Cents: balance}, nil
}
