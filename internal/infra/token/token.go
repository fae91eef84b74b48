// Package token implements the fungible token the stake ledger takes custody of.
//
// It is a plain balance/allowance table with the usual transfer, approve and
// delegated transferFrom operations. Supply is created only by Mint, which the
// daemon calls while applying genesis.
package token

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ric-network/catalogdao/internal/domain"
)

// Ledger is an in-memory token ledger.
// Thread-safe via RWMutex.
type Ledger struct {
	mu         sync.RWMutex
	balances   map[domain.Account]uint64
	allowances map[domain.Account]map[domain.Account]uint64 // owner → spender → amount
	supply     uint64
}

// NewLedger creates an empty token ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[domain.Account]uint64),
		allowances: make(map[domain.Account]map[domain.Account]uint64),
	}
}

// Mint creates amount new tokens in to's balance.
func (l *Ledger) Mint(to domain.Account, amount uint64) error {
	if to.IsZero() {
		return fmt.Errorf("mint: %w", domain.ErrInvalidArgument)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[to] += amount
	l.supply += amount
	return nil
}

// Transfer moves amount from caller to to.
func (l *Ledger) Transfer(caller, to domain.Account, amount uint64) error {
	if caller.IsZero() {
		return domain.ErrMissingCaller
	}
	if to.IsZero() {
		return fmt.Errorf("transfer to empty account: %w", domain.ErrInvalidArgument)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(caller, to, amount)
}

// Approve sets spender's allowance over caller's balance.
func (l *Ledger) Approve(caller, spender domain.Account, amount uint64) error {
	if caller.IsZero() {
		return domain.ErrMissingCaller
	}
	if spender.IsZero() {
		return fmt.Errorf("approve empty spender: %w", domain.ErrInvalidArgument)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.allowances[caller]
	if !ok {
		m = make(map[domain.Account]uint64)
		l.allowances[caller] = m
	}
	m[spender] = amount
	return nil
}

// TransferFrom moves amount from from to to, spending spender's allowance.
func (l *Ledger) TransferFrom(spender, from, to domain.Account, amount uint64) error {
	if spender.IsZero() || from.IsZero() || to.IsZero() {
		return fmt.Errorf("transferFrom: %w", domain.ErrInvalidArgument)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	allowed := l.allowances[from][spender]
	if allowed < amount {
		return domain.ErrInsufficientAllowance
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	l.allowances[from][spender] = allowed - amount
	return nil
}

// move transfers between balances. Caller must hold mu.
func (l *Ledger) move(from, to domain.Account, amount uint64) error {
	if l.balances[from] < amount {
		return domain.ErrInsufficientBalance
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// BalanceOf returns account's balance.
func (l *Ledger) BalanceOf(account domain.Account) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account]
}

// Allowance returns how much spender may still move out of owner's balance.
func (l *Ledger) Allowance(owner, spender domain.Account) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowances[owner][spender]
}

// TotalSupply returns the sum of all minted tokens.
func (l *Ledger) TotalSupply() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply
}

// Holding is one non-zero balance.
type Holding struct {
	Account domain.Account `json:"account"`
	Balance uint64         `json:"balance"`
}

// Holders returns every non-zero balance ordered by account.
func (l *Ledger) Holders() []Holding {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Holding, 0, len(l.balances))
	for a, b := range l.balances {
		if b > 0 {
			out = append(out, Holding{Account: a, Balance: b})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}
