// Package balance holds the balance ledger port consumed by the staking
// engine, plus a Postgres implementation and an in-memory one for tests and
// local-only mode.
package balance

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Ledger is the debit/credit/transfer collaborator contract. Implementations
// must reject operations that would drive a balance negative.
type Ledger interface {
	GetBalance(ctx context.Context, user string) (decimal.Decimal, error)
	Debit(ctx context.Context, user string, amount decimal.Decimal) (bool, error)
	Credit(ctx context.Context, user string, amount decimal.Decimal) (bool, error)
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (bool, error)
}

// MemoryLedger is a mutex-guarded in-memory Ledger.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]decimal.Decimal)}
}

// Seed sets a user's balance directly, for tests and dev bootstrapping.
func (l *MemoryLedger) Seed(user string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[user] = amount
}

func (l *MemoryLedger) GetBalance(ctx context.Context, user string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[user], nil
}

func (l *MemoryLedger) Debit(ctx context.Context, user string, amount decimal.Decimal) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debitLocked(user, amount), nil
}

func (l *MemoryLedger) Credit(ctx context.Context, user string, amount decimal.Decimal) (bool, error) {
	if amount.IsNegative() {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[user] = l.balances[user].Add(amount)
	return true, nil
}

func (l *MemoryLedger) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.debitLocked(from, amount) {
		return false, nil
	}
	l.balances[to] = l.balances[to].Add(amount)
	return true, nil
}

func (l *MemoryLedger) debitLocked(user string, amount decimal.Decimal) bool {
	if amount.IsNegative() {
		return false
	}
	cur := l.balances[user]
	if cur.LessThan(amount) {
		return false
	}
	l.balances[user] = cur.Sub(amount)
	return true
}
