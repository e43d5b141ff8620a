// Package ledger defines the asset ledger collaborator: the atomic
// balance-transfer primitive every engine component uses for value
// movement. Components never mutate balances directly.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cilistia/engine/internal/clock"
)

var (
	// ErrInsufficientBalance is returned when the sender does not hold
	// the transfer amount.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
)

// Ledger is the atomic balance movement primitive, keyed by
// (asset, account). A transfer either fully applies or fails with no
// state change.
type Ledger interface {
	Transfer(ctx context.Context, asset, from, to string, amount decimal.Decimal) error
	BalanceOf(ctx context.Context, asset, account string) (decimal.Decimal, error)
}

// Entry is an immutable journal record of one transfer.
type Entry struct {
	ID     string          `json:"id"`
	Asset  string          `json:"asset"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
	At     time.Time       `json:"at"`
}

// Memory implements Ledger with in-memory balances and an append-only
// journal. The production collaborator is an external system; this
// implementation backs tests and single-node deployments.
type Memory struct {
	mu       sync.RWMutex
	balances map[string]map[string]decimal.Decimal // asset → account → amount
	journal  []Entry
	clk      clock.Clock
}

// NewMemory creates an empty in-memory ledger.
func NewMemory(clk clock.Clock) *Memory {
	return &Memory{
		balances: make(map[string]map[string]decimal.Decimal),
		clk:      clk,
	}
}

// Mint credits an account out of thin air. Seeding helper for tests and
// genesis provisioning; not part of the Ledger interface.
func (l *Memory) Mint(asset, account string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(asset, account, amount)
}

func (l *Memory) Transfer(_ context.Context, asset, from, to string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	have := l.balance(asset, from)
	if have.LessThan(amount) {
		return fmt.Errorf("%w: %s has %s %s, needs %s",
			ErrInsufficientBalance, from, have, asset, amount)
	}

	l.balances[asset][from] = have.Sub(amount)
	l.credit(asset, to, amount)

	l.journal = append(l.journal, Entry{
		ID:     uuid.New().String(),
		Asset:  asset,
		From:   from,
		To:     to,
		Amount: amount,
		At:     l.clk.Now(),
	})
	return nil
}

func (l *Memory) BalanceOf(_ context.Context, asset, account string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance(asset, account), nil
}

// Journal returns a copy of the transfer journal.
func (l *Memory) Journal() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.journal))
	copy(out, l.journal)
	return out
}

// TotalSupply sums every account's balance for an asset. Conservation
// checks rely on transfers never changing this value.
func (l *Memory) TotalSupply(asset string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := decimal.Zero
	for _, amount := range l.balances[asset] {
		total = total.Add(amount)
	}
	return total
}

func (l *Memory) balance(asset, account string) decimal.Decimal {
	if accounts, ok := l.balances[asset]; ok {
		return accounts[account]
	}
	return decimal.Zero
}

func (l *Memory) credit(asset, account string, amount decimal.Decimal) {
	if _, ok := l.balances[asset]; !ok {
		l.balances[asset] = make(map[string]decimal.Decimal)
	}
	l.balances[asset][account] = l.balances[asset][account].Add(amount)
}
