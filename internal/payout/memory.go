// Package payout holds in-process implementations of the lottery's payer.
package payout

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

// MemoryLedger keeps account balances in memory. Entries are credited to the
// house account and settlement transfers out of it. Accounts can be frozen to
// make transfers to them fail.
type MemoryLedger struct {
	house common.Address

	mu       sync.Mutex
	balances map[common.Address]*big.Int
	frozen   map[common.Address]bool
}

// NewMemoryLedger creates an empty ledger paying out of house.
func NewMemoryLedger(house common.Address) *MemoryLedger {
	return &MemoryLedger{
		house:    house,
		balances: make(map[common.Address]*big.Int),
		frozen:   make(map[common.Address]bool),
	}
}

// House returns the account entries are credited to.
func (m *MemoryLedger) House() common.Address {
	return m.house
}

// Credit adds amount to account.
func (m *MemoryLedger) Credit(_ context.Context, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("payout: invalid credit amount %v", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceLocked(account).Add(m.balanceLocked(account), amount)
	return nil
}

// Transfer moves amount from the house account to to.
func (m *MemoryLedger) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("payout: invalid transfer amount %v", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen[to] {
		return fmt.Errorf("payout: account %s is frozen", to.Hex())
	}
	house := m.balanceLocked(m.house)
	if house.Cmp(amount) < 0 {
		return fmt.Errorf("payout: house balance %s below %s", house, amount)
	}
	house.Sub(house, amount)
	dst := m.balanceLocked(to)
	dst.Add(dst, amount)
	return nil
}

// Balance returns the balance of account.
func (m *MemoryLedger) Balance(_ context.Context, account common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.balanceLocked(account)), nil
}

// Freeze makes every transfer to account fail until Unfreeze.
func (m *MemoryLedger) Freeze(account common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen[account] = true
}

// Unfreeze lifts Freeze.
func (m *MemoryLedger) Unfreeze(account common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.frozen, account)
}

func (m *MemoryLedger) balanceLocked(account common.Address) *big.Int {
	b, ok := m.balances[account]
	if !ok {
		b = new(big.Int)
		m.balances[account] = b
	}
	return b
}

var _ domain.Ledger = (*MemoryLedger)(nil)
